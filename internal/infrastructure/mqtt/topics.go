package mqtt

import (
	"fmt"
	"strings"
)

// DefaultTopicPrefix is the root of every collector topic when none is configured.
const DefaultTopicPrefix = "solarlog"

// Topics provides builders for collector MQTT topics.
// Using these helpers keeps topic naming consistent across publishers and
// subscribers.
//
//	topics := mqtt.Topics{Prefix: "site-a"}
//	stateTopic := topics.DeviceState(3)
//	// Returns: "site-a/device/3/state"
type Topics struct {
	// Prefix is the topic root. Empty means DefaultTopicPrefix.
	Prefix string
}

func (t Topics) root() string {
	p := strings.Trim(t.Prefix, "/")
	if p == "" {
		return DefaultTopicPrefix
	}
	return p
}

// =============================================================================
// Device Topics
// =============================================================================

// DeviceState returns the topic carrying the latest measurement of one inverter.
//
// Example: solarlog/device/3/state
func (t Topics) DeviceState(deviceID int) string {
	return fmt.Sprintf("%s/device/%d/state", t.root(), deviceID)
}

// DeviceStatus returns the topic carrying the read health of one inverter
// (ok, degraded or failed).
//
// Example: solarlog/device/3/status
func (t Topics) DeviceStatus(deviceID int) string {
	return fmt.Sprintf("%s/device/%d/status", t.root(), deviceID)
}

// =============================================================================
// Collector Topics
// =============================================================================

// CycleEvent returns the topic for polling cycle summaries.
//
// Example: solarlog/collector/cycle
func (t Topics) CycleEvent() string {
	return t.root() + "/collector/cycle"
}

// HealthCollector returns the topic for periodic collector heartbeats.
//
// Example: solarlog/health/collector
func (t Topics) HealthCollector() string {
	return t.root() + "/health/collector"
}

// CommandSettings returns the topic on which setting changes are accepted.
//
// Example: solarlog/command/settings
func (t Topics) CommandSettings() string {
	return t.root() + "/command/settings"
}

// =============================================================================
// System Topics
// =============================================================================

// SystemStatus returns the online/offline status topic (also the LWT topic).
//
// Example: solarlog/system/status
func (t Topics) SystemStatus() string {
	return t.root() + "/system/status"
}

// =============================================================================
// Wildcard Patterns for Subscriptions
// =============================================================================

// AllDeviceStates returns a pattern matching every inverter state topic.
//
// Pattern: solarlog/device/+/state
func (t Topics) AllDeviceStates() string {
	return t.root() + "/device/+/state"
}

// AllTopics returns a pattern matching all collector topics.
//
// Pattern: solarlog/#
func (t Topics) AllTopics() string {
	return t.root() + "/#"
}
