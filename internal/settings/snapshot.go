package settings

import (
	"fmt"
	"math"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/nerrad567/solarlog-collector/internal/decode"
)

// Fault group result keys. They name the measurement columns.
const (
	FaultA = "fault_a"
	FaultB = "fault_b"
)

// Accepted bounds for refresh_rate, in seconds.
const (
	MinRefreshSeconds = 0.1
	MaxRefreshSeconds = 86400
)

// Endpoint is the Modbus TCP target.
type Endpoint struct {
	Host string `json:"host"`
	Port int    `json:"port"`
}

// String returns the endpoint as host:port.
func (e Endpoint) String() string {
	return net.JoinHostPort(e.Host, strconv.Itoa(e.Port))
}

// FaultGroup is one fault register group read after the analog block.
// Quantity is 1 (16-bit value) or 2 (32-bit value, high word first).
type FaultGroup struct {
	Key      string `json:"key"`
	Address  uint16 `json:"address"`
	Quantity uint16 `json:"quantity"`
}

// FaultGroups is the fixed fault register layout: fault_a at 189 and
// fault_b at 193, both two registers wide.
func FaultGroups() []FaultGroup {
	return []FaultGroup{
		{Key: FaultA, Address: 189, Quantity: 2},
		{Key: FaultB, Address: 193, Quantity: 2},
	}
}

// AddressMap tells the device reader where the analog block starts, how to
// scale each channel and which fault groups to read.
//
// The collector reads power, voltage, current and temperature as one
// contiguous 4-register block at PowerAddress. The separate voltage, current
// and temperature addresses are kept for dashboards that read channels
// individually.
type AddressMap struct {
	PowerAddress       uint16       `json:"power_address"`
	VoltageAddress     uint16       `json:"voltage_address"`
	CurrentAddress     uint16       `json:"current_address"`
	TemperatureAddress uint16       `json:"temperature_address"`
	PowerScale         float64      `json:"power_scale"`
	VoltageScale       float64      `json:"voltage_scale"`
	CurrentScale       float64      `json:"current_scale"`
	TemperatureScale   float64      `json:"temperature_scale"`
	FaultGroups        []FaultGroup `json:"fault_groups"`
}

// Snapshot is an immutable view of the settings taken at one reload point.
type Snapshot struct {
	Endpoint      Endpoint      `json:"endpoint"`
	Refresh       time.Duration `json:"refresh"`
	DeviceIDs     []int         `json:"device_ids"`
	AddressMap    AddressMap    `json:"address_map"`
	RetentionDays int           `json:"retention_days"`
}

// Devices returns a copy of the configured device ids.
func (s Snapshot) Devices() []int {
	return append([]int(nil), s.DeviceIDs...)
}

// DefaultSnapshot returns the snapshot built from Defaults alone.
func DefaultSnapshot() Snapshot {
	snap, _ := ParseSnapshot(Defaults())
	return snap
}

// ParseSnapshot interprets string-encoded settings.
//
// Every malformed value is replaced by its default and reported as an error
// wrapping ErrInvalidValue. Id-list diagnostics from decode.ParseIDList are
// passed through unchanged. The returned snapshot is always usable.
func ParseSnapshot(s Settings) (Snapshot, []error) {
	p := &parser{settings: s}

	snap := Snapshot{
		Endpoint: Endpoint{
			Host: p.host(KeyTargetIP),
			Port: p.intInRange(KeyTargetPort, 1, math.MaxUint16),
		},
		Refresh: p.seconds(KeyRefreshRate, MinRefreshSeconds, MaxRefreshSeconds),
		AddressMap: AddressMap{
			PowerAddress:       p.address(KeyPowerAddr),
			VoltageAddress:     p.address(KeyVoltageAddr),
			CurrentAddress:     p.address(KeyCurrentAddr),
			TemperatureAddress: p.address(KeyTemperatureAddr),
			PowerScale:         p.float(KeyPowerScale),
			VoltageScale:       p.float(KeyVoltageScale),
			CurrentScale:       p.float(KeyCurrentScale),
			TemperatureScale:   p.float(KeyTemperatureScale),
			FaultGroups:        FaultGroups(),
		},
		RetentionDays: p.intInRange(KeyRetentionDays, 0, math.MaxInt32),
	}

	ids, idErrs := decode.ParseIDList(s.Value(KeySlaveIDs, DefaultValue(KeySlaveIDs)))
	snap.DeviceIDs = append([]int{}, ids...)
	p.errs = append(p.errs, idErrs...)

	return snap, p.errs
}

// Validate checks that value is acceptable for key before it is written.
// Unknown keys are accepted as free-form values.
func Validate(key, value string) error {
	if !IsKnown(key) {
		return nil
	}
	if key == KeySlaveIDs {
		if _, errs := decode.ParseIDList(value); len(errs) > 0 {
			return fmt.Errorf("%w: %s: %v", ErrInvalidValue, key, errs[0])
		}
		return nil
	}

	s := Defaults()
	s[key] = Setting{Key: key, Value: value}
	_, errs := ParseSnapshot(s)
	if len(errs) > 0 {
		return errs[0]
	}
	return nil
}

// parser collects diagnostics while reading typed values.
type parser struct {
	settings Settings
	errs     []error
}

func (p *parser) raw(key string) string {
	return strings.TrimSpace(p.settings.Value(key, DefaultValue(key)))
}

func (p *parser) invalid(key, value, reason string) {
	p.errs = append(p.errs, fmt.Errorf("%w: %s=%q: %s", ErrInvalidValue, key, value, reason))
}

func (p *parser) host(key string) string {
	v := p.raw(key)
	if v == "" || strings.ContainsAny(v, " /") {
		p.invalid(key, v, "not a host")
		return DefaultValue(key)
	}
	return v
}

func (p *parser) intInRange(key string, lo, hi int) int {
	v := p.raw(key)
	n, err := strconv.Atoi(v)
	if err != nil || n < lo || n > hi {
		p.invalid(key, v, fmt.Sprintf("want integer in [%d,%d]", lo, hi))
		n, _ = strconv.Atoi(DefaultValue(key))
	}
	return n
}

func (p *parser) address(key string) uint16 {
	return uint16(p.intInRange(key, 0, math.MaxUint16)) //nolint:gosec // G115: bounded above
}

func (p *parser) float(key string) float64 {
	v := p.raw(key)
	f, err := strconv.ParseFloat(v, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		p.invalid(key, v, "not a number")
		f, _ = strconv.ParseFloat(DefaultValue(key), 64)
	}
	return f
}

// seconds parses a duration in seconds. The range check happens before
// conversion so huge values cannot overflow time.Duration.
func (p *parser) seconds(key string, lo, hi float64) time.Duration {
	v := p.raw(key)
	f, err := strconv.ParseFloat(v, 64)
	if err != nil || math.IsNaN(f) || f < lo || f > hi {
		p.invalid(key, v, fmt.Sprintf("want seconds in [%g,%g]", lo, hi))
		f, _ = strconv.ParseFloat(DefaultValue(key), 64)
	}
	return time.Duration(f * float64(time.Second))
}
