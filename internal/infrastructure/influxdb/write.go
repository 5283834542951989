package influxdb

import (
	"strconv"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// Measurement names written by the collector.
const (
	measurementInverter = "inverter"
	measurementCycle    = "collector_cycle"
)

// Reading is one inverter sample as mirrored to InfluxDB.
type Reading struct {
	SiteID      string
	DeviceID    int
	Timestamp   time.Time
	Power       float64
	Voltage     float64
	Current     float64
	Temperature float64
	FaultA      uint32
	FaultB      uint32
	Degraded    bool
}

// CycleStats is one polling cycle summary as mirrored to InfluxDB.
type CycleStats struct {
	SiteID      string
	Cycle       uint64
	Timestamp   time.Time
	Duration    time.Duration
	OK          int
	Unreachable int
	Faults      int
}

// InverterPoint builds the point for one reading.
//
// Tags are site and device (low cardinality); the analog channels, both
// fault bitmasks and the degraded flag are fields.
func InverterPoint(r Reading) *write.Point {
	tags := map[string]string{
		"device_id": strconv.Itoa(r.DeviceID),
	}
	if r.SiteID != "" {
		tags["site"] = r.SiteID
	}

	return write.NewPoint(
		measurementInverter,
		tags,
		map[string]interface{}{
			"power":       r.Power,
			"voltage":     r.Voltage,
			"current":     r.Current,
			"temperature": r.Temperature,
			"fault_a":     int64(r.FaultA),
			"fault_b":     int64(r.FaultB),
			"degraded":    r.Degraded,
		},
		pointTime(r.Timestamp),
	)
}

// CyclePoint builds the point for one cycle summary.
func CyclePoint(s CycleStats) *write.Point {
	tags := map[string]string{}
	if s.SiteID != "" {
		tags["site"] = s.SiteID
	}

	return write.NewPoint(
		measurementCycle,
		tags,
		map[string]interface{}{
			"cycle":       int64(s.Cycle), //nolint:gosec // G115: cycle counts never approach MaxInt64
			"duration_ms": s.Duration.Milliseconds(),
			"ok":          s.OK,
			"unreachable": s.Unreachable,
			"faults":      s.Faults,
		},
		pointTime(s.Timestamp),
	)
}

func pointTime(ts time.Time) time.Time {
	if ts.IsZero() {
		return time.Now()
	}
	return ts
}

// WriteReading writes one inverter reading.
//
// The write is non-blocking; data is batched and sent asynchronously.
// Calls on a disconnected client are dropped.
func (c *Client) WriteReading(r Reading) {
	if !c.IsConnected() {
		return
	}
	c.writeAPI.WritePoint(InverterPoint(r))
}

// WriteCycle writes one polling cycle summary.
func (c *Client) WriteCycle(s CycleStats) {
	if !c.IsConnected() {
		return
	}
	c.writeAPI.WritePoint(CyclePoint(s))
}
