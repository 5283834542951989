package measurement

import "time"

// AllDevices disables the device filter of aggregate queries.
const AllDevices = 0

// Measurement is one polling result for one device at one instant.
type Measurement struct {
	ID          int64     `json:"id,omitempty"`
	DeviceID    int       `json:"device_id"`
	Timestamp   time.Time `json:"timestamp"`
	Power       float64   `json:"power"`
	Voltage     float64   `json:"voltage"`
	Current     float64   `json:"current"`
	Temperature float64   `json:"temperature"`
	FaultA      uint32    `json:"fault_a"`
	FaultB      uint32    `json:"fault_b"`
}

// HasFault reports whether either fault bitmask is nonzero.
func (m Measurement) HasFault() bool {
	return m.FaultA != 0 || m.FaultB != 0
}

// Averages summarises the analog channels over a date range.
// All fields are zero when Count is zero.
type Averages struct {
	Count          int64   `json:"count"`
	AvgPower       float64 `json:"avg_power"`
	AvgVoltage     float64 `json:"avg_voltage"`
	AvgCurrent     float64 `json:"avg_current"`
	AvgTemperature float64 `json:"avg_temperature"`
	MaxPower       float64 `json:"max_power"`
	MinPower       float64 `json:"min_power"`
}

// Production is the sampling-based energy estimate for one day.
//
// OperatingHours assumes every sample stands for one refresh interval, so
// the estimate is only as good as the configured cadence matches reality.
type Production struct {
	Samples        int64   `json:"samples"`
	AvgPower       float64 `json:"avg_power"`
	OperatingHours float64 `json:"operating_hours"`
	EnergyWh       float64 `json:"energy_wh"`
	EnergyKWh      float64 `json:"energy_kwh"`
}

// FaultCounts counts samples with a nonzero fault bitmask.
type FaultCounts struct {
	TotalSamples int64 `json:"total_samples"`
	FaultA       int64 `json:"count_fault_a"`
	FaultB       int64 `json:"count_fault_b"`
}

// DeviceReport is one device's line of the daily report.
type DeviceReport struct {
	DeviceID   int         `json:"device_id"`
	Production Production  `json:"production"`
	Averages   Averages    `json:"averages"`
	Faults     FaultCounts `json:"faults"`
}
