package settings

import "time"

// Setting keys. The names are those persisted in existing databases.
const (
	KeyTargetIP         = "target_ip"
	KeyTargetPort       = "target_port"
	KeyRefreshRate      = "refresh_rate"
	KeySlaveIDs         = "slave_ids"
	KeyPowerAddr        = "guc_addr"
	KeyVoltageAddr      = "volt_addr"
	KeyCurrentAddr      = "akim_addr"
	KeyTemperatureAddr  = "isi_addr"
	KeyPowerScale       = "guc_scale"
	KeyVoltageScale     = "volt_scale"
	KeyCurrentScale     = "akim_scale"
	KeyTemperatureScale = "isi_scale"
	KeyRetentionDays    = "veri_saklama_gun"
)

// Setting is one named configuration value.
type Setting struct {
	Key         string    `json:"key"`
	Value       string    `json:"value"`
	Description string    `json:"description,omitempty"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Settings maps keys to their current values.
type Settings map[string]Setting

// Value returns the value stored under key, or def when the key is absent.
func (s Settings) Value(key, def string) string {
	if st, ok := s[key]; ok {
		return st.Value
	}
	return def
}

type defaultSetting struct {
	key, value, description string
}

// defaults is the minimal configuration the scheduler can start from.
// The initial migration seeds the same rows.
var defaults = []defaultSetting{
	{KeyTargetIP, "10.35.14.10", "Modbus TCP host of the inverter gateway"},
	{KeyTargetPort, "502", "Modbus TCP port"},
	{KeyRefreshRate, "2", "Polling cadence in seconds"},
	{KeySlaveIDs, "1,2,3", "Inverter unit ids, e.g. 1,3-5"},
	{KeyPowerAddr, "70", "Power register address (start of analog block)"},
	{KeyVoltageAddr, "71", "Voltage register address"},
	{KeyCurrentAddr, "72", "Current register address"},
	{KeyTemperatureAddr, "73", "Temperature register address"},
	{KeyPowerScale, "1.0", "Power scale factor"},
	{KeyVoltageScale, "0.1", "Voltage scale factor"},
	{KeyCurrentScale, "0.1", "Current scale factor"},
	{KeyTemperatureScale, "1.0", "Temperature scale factor"},
	{KeyRetentionDays, "365", "Measurement retention in days (0 keeps everything)"},
}

// Defaults returns a fresh copy of the hard-coded default settings.
func Defaults() Settings {
	s := make(Settings, len(defaults))
	for _, d := range defaults {
		s[d.key] = Setting{Key: d.key, Value: d.value, Description: d.description}
	}
	return s
}

// DefaultValue returns the default for key, or "" for an unknown key.
func DefaultValue(key string) string {
	for _, d := range defaults {
		if d.key == key {
			return d.value
		}
	}
	return ""
}

// IsKnown reports whether key is one of the collector's settings.
func IsKnown(key string) bool {
	for _, d := range defaults {
		if d.key == key {
			return true
		}
	}
	return false
}
