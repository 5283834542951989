package collector

import (
	"fmt"
	"time"

	"github.com/nerrad567/solarlog-collector/internal/measurement"
)

// Outcome classifies one device's result within a cycle.
type Outcome string

// Device outcomes.
const (
	OutcomeClean       Outcome = "clean"
	OutcomeFault       Outcome = "fault"
	OutcomeUnreachable Outcome = "unreachable"
)

// MeasurementEvent reports a successful read of one device.
type MeasurementEvent struct {
	Measurement measurement.Measurement `json:"measurement"`
	Outcome     Outcome                 `json:"outcome"`

	// Degraded is set when at least one fault group could not be read and
	// was stored as 0.
	Degraded bool `json:"degraded"`

	// Stored is false when the append failed and the sample was lost.
	Stored bool `json:"stored"`
}

// UnreachableEvent reports a device that failed every attempt of a cycle.
type UnreachableEvent struct {
	DeviceID  int       `json:"device_id"`
	Timestamp time.Time `json:"timestamp"`
	Error     string    `json:"error"`
}

// CycleSummary describes one completed polling cycle.
type CycleSummary struct {
	Cycle       uint64        `json:"cycle"`
	StartedAt   time.Time     `json:"started_at"`
	Duration    time.Duration `json:"-"`
	DurationMS  int64         `json:"duration_ms"`
	Devices     []int         `json:"devices"`
	OK          []int         `json:"ok"`
	Unreachable []int         `json:"unreachable"`
	Faulted     []int         `json:"faulted"`
	Degraded    []int         `json:"degraded"`
	StoreErrors int           `json:"store_errors"`
	Interrupted bool          `json:"interrupted"`
}

// Observer receives scheduler events. Calls are made synchronously from the
// polling goroutine, so implementations must not block for long.
type Observer interface {
	MeasurementRecorded(ev MeasurementEvent)
	DeviceUnreachable(ev UnreachableEvent)
	CycleCompleted(summary CycleSummary)
}

// NopObserver ignores every event.
type NopObserver struct{}

// MeasurementRecorded implements Observer.
func (NopObserver) MeasurementRecorded(MeasurementEvent) {}

// DeviceUnreachable implements Observer.
func (NopObserver) DeviceUnreachable(UnreachableEvent) {}

// CycleCompleted implements Observer.
func (NopObserver) CycleCompleted(CycleSummary) {}

// MultiObserver fans events out to several observers.
//
// Each call is isolated: a panic in one observer is recovered, logged and
// does not prevent delivery to the others.
type MultiObserver struct {
	observers []Observer
	logger    Logger
}

// NewMultiObserver creates a fan-out over observers. Nil entries are skipped.
func NewMultiObserver(logger Logger, observers ...Observer) *MultiObserver {
	if logger == nil {
		logger = nopLogger{}
	}
	m := &MultiObserver{logger: logger}
	for _, o := range observers {
		if o != nil {
			m.observers = append(m.observers, o)
		}
	}
	return m
}

// Len returns the number of registered observers.
func (m *MultiObserver) Len() int {
	return len(m.observers)
}

// MeasurementRecorded implements Observer.
func (m *MultiObserver) MeasurementRecorded(ev MeasurementEvent) {
	for _, o := range m.observers {
		m.deliver("measurement_recorded", func() { o.MeasurementRecorded(ev) })
	}
}

// DeviceUnreachable implements Observer.
func (m *MultiObserver) DeviceUnreachable(ev UnreachableEvent) {
	for _, o := range m.observers {
		m.deliver("device_unreachable", func() { o.DeviceUnreachable(ev) })
	}
}

// CycleCompleted implements Observer.
func (m *MultiObserver) CycleCompleted(summary CycleSummary) {
	for _, o := range m.observers {
		m.deliver("cycle_completed", func() { o.CycleCompleted(summary) })
	}
}

func (m *MultiObserver) deliver(event string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			m.logger.Error("observer panic recovered",
				"event", event,
				"error", fmt.Sprint(r),
			)
		}
	}()
	fn()
}
