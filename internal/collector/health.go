package collector

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/nerrad567/solarlog-collector/internal/infrastructure/mqtt"
)

// DefaultHealthInterval is used when no interval is configured.
const DefaultHealthInterval = 30 * time.Second

// HealthStatus is the collector status published in heartbeats.
type HealthStatus string

// Heartbeat statuses.
const (
	HealthHealthy  HealthStatus = "healthy"
	HealthDegraded HealthStatus = "degraded"
	HealthStopping HealthStatus = "stopping"
)

// StatsSource provides the counters reported in heartbeats.
type StatsSource interface {
	Stats() Stats
}

// HealthMessage is the retained heartbeat payload.
type HealthMessage struct {
	SiteID             string       `json:"site_id"`
	Status             HealthStatus `json:"status"`
	Reason             string       `json:"reason,omitempty"`
	Version            string       `json:"version"`
	UptimeSeconds      int64        `json:"uptime"`
	Cycles             uint64       `json:"cycles"`
	DevicesOK          int          `json:"devices_ok"`
	DevicesUnreachable int          `json:"devices_unreachable"`
	State              string       `json:"state"`
	Timestamp          time.Time    `json:"timestamp"`
}

// HealthReporter manages periodic health status reporting.
// It publishes heartbeat messages to MQTT at regular intervals.
type HealthReporter struct {
	siteID    string
	version   string
	startTime time.Time
	interval  time.Duration
	publisher Publisher
	stats     StatsSource
	topics    mqtt.Topics
	now       func() time.Time

	// Shutdown coordination (stopOnce prevents double-close panics)
	done     chan struct{}
	wg       sync.WaitGroup
	stopOnce sync.Once

	logger   Logger
	loggerMu sync.RWMutex
}

// HealthReporterConfig holds configuration for the health reporter.
type HealthReporterConfig struct {
	SiteID  string
	Version string

	// Interval is how often to publish health status.
	// Default: 30 seconds.
	Interval time.Duration

	// Publisher is the MQTT client for publishing messages.
	Publisher Publisher

	// Stats provides the loop counters, typically the Scheduler.
	Stats StatsSource

	// Topics builds the heartbeat topic.
	Topics mqtt.Topics
}

// NewHealthReporter creates a new health reporter.
// Call Start to begin reporting.
func NewHealthReporter(cfg HealthReporterConfig) *HealthReporter {
	interval := cfg.Interval
	if interval <= 0 {
		interval = DefaultHealthInterval
	}

	return &HealthReporter{
		siteID:    cfg.SiteID,
		version:   cfg.Version,
		startTime: time.Now(),
		interval:  interval,
		publisher: cfg.Publisher,
		stats:     cfg.Stats,
		topics:    cfg.Topics,
		now:       time.Now,
		done:      make(chan struct{}),
	}
}

// Start begins periodic health reporting until ctx is cancelled or Stop is
// called.
func (h *HealthReporter) Start(ctx context.Context) {
	h.wg.Add(1)
	go h.reportLoop(ctx)
}

// Stop gracefully stops health reporting.
// Publishes a final "stopping" status before returning.
// Safe to call multiple times (uses sync.Once).
func (h *HealthReporter) Stop() {
	h.stopOnce.Do(func() {
		close(h.done)
		h.wg.Wait()

		//nolint:errcheck // Best-effort during shutdown, nothing we can do if it fails
		h.publishStatus(HealthStopping, "collector stopping")
	})
}

// SetLogger sets the logger for this reporter.
func (h *HealthReporter) SetLogger(logger Logger) {
	h.loggerMu.Lock()
	h.logger = logger
	h.loggerMu.Unlock()
}

// PublishNow publishes the current health status immediately.
func (h *HealthReporter) PublishNow() error {
	status, reason := h.determineStatus()
	return h.publishStatus(status, reason)
}

// reportLoop runs the periodic health reporting.
func (h *HealthReporter) reportLoop(ctx context.Context) {
	defer h.wg.Done()

	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	if err := h.PublishNow(); err != nil {
		h.logError("failed to publish initial health", err)
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-h.done:
			return
		case <-ticker.C:
			if err := h.PublishNow(); err != nil {
				h.logError("failed to publish health", err)
			}
		}
	}
}

// determineStatus evaluates the current collector status.
func (h *HealthReporter) determineStatus() (HealthStatus, string) {
	if h.publisher == nil || !h.publisher.IsConnected() {
		return HealthDegraded, "MQTT disconnected"
	}
	if h.stats != nil {
		if st := h.stats.Stats(); st.LastUnreachable > 0 {
			return HealthDegraded, "devices unreachable in last cycle"
		}
	}
	return HealthHealthy, ""
}

// buildMessage assembles a heartbeat from the current counters.
func (h *HealthReporter) buildMessage(status HealthStatus, reason string) HealthMessage {
	now := h.now()
	msg := HealthMessage{
		SiteID:        h.siteID,
		Status:        status,
		Reason:        reason,
		Version:       h.version,
		UptimeSeconds: int64(now.Sub(h.startTime).Seconds()),
		Timestamp:     now.UTC(),
	}
	if h.stats != nil {
		st := h.stats.Stats()
		msg.Cycles = st.Cycles
		msg.DevicesOK = st.LastOK
		msg.DevicesUnreachable = st.LastUnreachable
		msg.State = st.State
	}
	return msg
}

// publishStatus publishes a heartbeat (QoS 1, retained).
func (h *HealthReporter) publishStatus(status HealthStatus, reason string) error {
	if h.publisher == nil {
		return nil
	}

	payload, err := json.Marshal(h.buildMessage(status, reason))
	if err != nil {
		return err
	}

	return h.publisher.Publish(h.topics.HealthCollector(), payload, publishQoS, true)
}

// logError logs an error if logger is set.
func (h *HealthReporter) logError(msg string, err error) {
	h.loggerMu.RLock()
	logger := h.logger
	h.loggerMu.RUnlock()

	if logger != nil {
		logger.Error(msg, "error", err)
	}
}
