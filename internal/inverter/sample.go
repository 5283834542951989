package inverter

import (
	"time"

	"github.com/nerrad567/solarlog-collector/internal/measurement"
	"github.com/nerrad567/solarlog-collector/internal/settings"
)

// FaultStatus tells whether a fault group was actually read.
type FaultStatus int

// Fault read outcomes.
const (
	Healthy FaultStatus = iota
	Degraded
)

// String returns "healthy" or "degraded".
func (s FaultStatus) String() string {
	if s == Degraded {
		return "degraded"
	}
	return "healthy"
}

// FaultReading is the result of reading one fault group.
// A Degraded reading has Value 0 and Err wrapping ErrDegradedRead.
type FaultReading struct {
	Key    string
	Status FaultStatus
	Value  uint32
	Err    error
}

// Sample is one successful polling round for one device.
type Sample struct {
	DeviceID    int
	Timestamp   time.Time
	Power       float64
	Voltage     float64
	Current     float64
	Temperature float64
	Faults      []FaultReading
	Attempts    int
}

// Fault returns the value of the fault group named key, or 0 when the group
// was not read or is unknown.
func (s Sample) Fault(key string) uint32 {
	for _, f := range s.Faults {
		if f.Key == key {
			return f.Value
		}
	}
	return 0
}

// Degraded reports whether any fault group could not be read.
func (s Sample) Degraded() bool {
	for _, f := range s.Faults {
		if f.Status == Degraded {
			return true
		}
	}
	return false
}

// Measurement converts the sample into a storable measurement.
func (s Sample) Measurement() measurement.Measurement {
	return measurement.Measurement{
		DeviceID:    s.DeviceID,
		Timestamp:   s.Timestamp,
		Power:       s.Power,
		Voltage:     s.Voltage,
		Current:     s.Current,
		Temperature: s.Temperature,
		FaultA:      s.Fault(settings.FaultA),
		FaultB:      s.Fault(settings.FaultB),
	}
}
