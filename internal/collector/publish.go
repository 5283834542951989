package collector

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/nerrad567/solarlog-collector/internal/decode"
	"github.com/nerrad567/solarlog-collector/internal/infrastructure/influxdb"
	"github.com/nerrad567/solarlog-collector/internal/infrastructure/mqtt"
	"github.com/nerrad567/solarlog-collector/internal/measurement"
)

// Publisher is the interface for publishing MQTT messages.
// This is typically implemented by *mqtt.Client.
type Publisher interface {
	// Publish sends a message to a topic with the specified QoS and retention.
	Publish(topic string, payload []byte, qos byte, retained bool) error

	// IsConnected returns true if the publisher is connected.
	IsConnected() bool
}

// Device status values published on <prefix>/device/{id}/status.
const (
	DeviceStatusOK       = "ok"
	DeviceStatusDegraded = "degraded"
	DeviceStatusFailed   = "failed"
)

// publishQoS is used for every collector message.
const publishQoS = 1

// DeviceStatePayload is the retained per-device state message.
type DeviceStatePayload struct {
	measurement.Measurement
	Outcome      Outcome  `json:"outcome"`
	Degraded     bool     `json:"degraded"`
	ActiveFaults []string `json:"active_faults"`
}

// NewDeviceStatePayload builds the state message for ev, decoding both fault
// bitmasks into descriptions.
func NewDeviceStatePayload(ev MeasurementEvent) DeviceStatePayload {
	active := decode.ActiveFaults(ev.Measurement.FaultA, decode.FaultTable189)
	active = append(active, decode.ActiveFaults(ev.Measurement.FaultB, decode.FaultTable193)...)
	return DeviceStatePayload{
		Measurement:  ev.Measurement,
		Outcome:      ev.Outcome,
		Degraded:     ev.Degraded,
		ActiveFaults: active,
	}
}

// DeviceStatusPayload is the retained per-device read health message.
type DeviceStatusPayload struct {
	DeviceID  int       `json:"device_id"`
	Status    string    `json:"status"`
	Error     string    `json:"error,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// MQTTObserver publishes scheduler events to MQTT.
//
// Device state and status are retained so late subscribers see the last
// known values; cycle summaries are not. Events are dropped while the
// publisher is disconnected.
type MQTTObserver struct {
	publisher Publisher
	topics    mqtt.Topics
	logger    Logger
}

// NewMQTTObserver creates an observer publishing under topics.
func NewMQTTObserver(publisher Publisher, topics mqtt.Topics, logger Logger) *MQTTObserver {
	if logger == nil {
		logger = nopLogger{}
	}
	return &MQTTObserver{publisher: publisher, topics: topics, logger: logger}
}

// MeasurementRecorded implements Observer.
func (o *MQTTObserver) MeasurementRecorded(ev MeasurementEvent) {
	id := ev.Measurement.DeviceID
	o.publish(o.topics.DeviceState(id), NewDeviceStatePayload(ev), true)

	status := DeviceStatusOK
	if ev.Degraded {
		status = DeviceStatusDegraded
	}
	o.publish(o.topics.DeviceStatus(id), DeviceStatusPayload{
		DeviceID:  id,
		Status:    status,
		Timestamp: ev.Measurement.Timestamp,
	}, true)
}

// DeviceUnreachable implements Observer.
func (o *MQTTObserver) DeviceUnreachable(ev UnreachableEvent) {
	o.publish(o.topics.DeviceStatus(ev.DeviceID), DeviceStatusPayload{
		DeviceID:  ev.DeviceID,
		Status:    DeviceStatusFailed,
		Error:     ev.Error,
		Timestamp: ev.Timestamp,
	}, true)
}

// CycleCompleted implements Observer.
func (o *MQTTObserver) CycleCompleted(summary CycleSummary) {
	o.publish(o.topics.CycleEvent(), summary, false)
}

func (o *MQTTObserver) publish(topic string, v any, retained bool) {
	if o.publisher == nil || !o.publisher.IsConnected() {
		return
	}

	payload, err := json.Marshal(v)
	if err != nil {
		o.logger.Error("encoding MQTT payload", "topic", topic, "error", err)
		return
	}
	if err := o.publisher.Publish(topic, payload, publishQoS, retained); err != nil {
		o.logger.Warn("publishing MQTT message", "topic", topic, "error", err)
	}
}

// InfluxWriter is the part of *influxdb.Client the InfluxObserver needs.
type InfluxWriter interface {
	WriteReading(r influxdb.Reading)
	WriteCycle(s influxdb.CycleStats)
}

// InfluxObserver mirrors samples and cycle summaries to InfluxDB.
type InfluxObserver struct {
	writer InfluxWriter
	siteID string
}

// NewInfluxObserver creates an observer tagging points with siteID.
func NewInfluxObserver(writer InfluxWriter, siteID string) *InfluxObserver {
	return &InfluxObserver{writer: writer, siteID: siteID}
}

// MeasurementRecorded implements Observer.
func (o *InfluxObserver) MeasurementRecorded(ev MeasurementEvent) {
	m := ev.Measurement
	o.writer.WriteReading(influxdb.Reading{
		SiteID:      o.siteID,
		DeviceID:    m.DeviceID,
		Timestamp:   m.Timestamp,
		Power:       m.Power,
		Voltage:     m.Voltage,
		Current:     m.Current,
		Temperature: m.Temperature,
		FaultA:      m.FaultA,
		FaultB:      m.FaultB,
		Degraded:    ev.Degraded,
	})
}

// DeviceUnreachable implements Observer. Failures are carried by the cycle
// point's unreachable count.
func (o *InfluxObserver) DeviceUnreachable(UnreachableEvent) {}

// CycleCompleted implements Observer.
func (o *InfluxObserver) CycleCompleted(summary CycleSummary) {
	o.writer.WriteCycle(influxdb.CycleStats{
		SiteID:      o.siteID,
		Cycle:       summary.Cycle,
		Timestamp:   summary.StartedAt,
		Duration:    summary.Duration,
		OK:          len(summary.OK),
		Unreachable: len(summary.Unreachable),
		Faults:      len(summary.Faulted),
	})
}

// LogObserver writes fault transitions to the log. A device is logged when
// its fault bitmasks change, not on every sample.
type LogObserver struct {
	logger Logger
	last   map[int][2]uint32
}

// NewLogObserver creates a fault-transition logger.
func NewLogObserver(logger Logger) *LogObserver {
	if logger == nil {
		logger = nopLogger{}
	}
	return &LogObserver{logger: logger, last: make(map[int][2]uint32)}
}

// MeasurementRecorded implements Observer.
func (o *LogObserver) MeasurementRecorded(ev MeasurementEvent) {
	m := ev.Measurement
	cur := [2]uint32{m.FaultA, m.FaultB}
	prev, seen := o.last[m.DeviceID]
	o.last[m.DeviceID] = cur
	if seen && prev == cur {
		return
	}
	if !seen && !m.HasFault() {
		return
	}

	if !m.HasFault() {
		o.logger.Info("device faults cleared", "device_id", m.DeviceID)
		return
	}
	o.logger.Warn("device faults active",
		"device_id", m.DeviceID,
		"fault_a", fmt.Sprintf("%#08x", m.FaultA),
		"fault_b", fmt.Sprintf("%#08x", m.FaultB),
		"faults", NewDeviceStatePayload(ev).ActiveFaults,
	)
}

// DeviceUnreachable implements Observer.
func (o *LogObserver) DeviceUnreachable(UnreachableEvent) {}

// CycleCompleted implements Observer.
func (o *LogObserver) CycleCompleted(CycleSummary) {}
