package collector

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/nerrad567/solarlog-collector/internal/audit"
	"github.com/nerrad567/solarlog-collector/internal/decode"
	"github.com/nerrad567/solarlog-collector/internal/inverter"
	"github.com/nerrad567/solarlog-collector/internal/measurement"
	"github.com/nerrad567/solarlog-collector/internal/settings"
)

// Default loop cadence, counted in cycles.
const (
	DefaultReloadEvery = 10
	DefaultPruneEvery  = 1800
)

// Logger is the subset of logging.Logger the collector uses.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type nopLogger struct{}

func (nopLogger) Debug(string, ...any) {}
func (nopLogger) Info(string, ...any)  {}
func (nopLogger) Warn(string, ...any)  {}
func (nopLogger) Error(string, ...any) {}

// SnapshotLoader provides the settings snapshot at each reload point.
type SnapshotLoader interface {
	LoadSnapshot(ctx context.Context) (settings.Snapshot, []error)
}

// MeasurementStore is the part of the time-series store the loop writes to.
type MeasurementStore interface {
	Append(ctx context.Context, m measurement.Measurement) error
	PruneOlderThan(ctx context.Context, days int) (int64, error)
}

// DeviceReader performs one polling round for a device.
type DeviceReader interface {
	Read(ctx context.Context, deviceID int, amap settings.AddressMap) (inverter.Sample, error)
	Conn() *inverter.Conn
}

// Config tunes the loop cadence.
type Config struct {
	// ReloadEvery is the number of cycles between settings reloads.
	ReloadEvery int

	// PruneEvery is the number of cycles between retention prunes.
	PruneEvery int
}

// Deps holds the scheduler's collaborators.
type Deps struct {
	Settings SnapshotLoader
	Store    MeasurementStore
	Reader   DeviceReader

	// Audit records prunes that removed rows. Optional.
	Audit audit.Repository

	// Observer receives cycle events. Optional.
	Observer Observer

	// Logger receives loop diagnostics. Optional.
	Logger Logger
}

// Stats is a point-in-time view of the loop's counters.
type Stats struct {
	State              string    `json:"state"`
	Cycles             uint64    `json:"cycles"`
	LastCycleAt        time.Time `json:"last_cycle_at"`
	LastCycleMS        int64     `json:"last_cycle_ms"`
	LastOK             int       `json:"last_ok"`
	LastUnreachable    int       `json:"last_unreachable"`
	LastFaults         int       `json:"last_faults"`
	TotalSamples       uint64    `json:"total_samples"`
	TotalFailures      uint64    `json:"total_failures"`
	TotalStoreErrors   uint64    `json:"total_store_errors"`
	ConfiguredDevices  []int     `json:"configured_devices"`
	LastPruneAt        time.Time `json:"last_prune_at"`
	LastPruneDeleted   int64     `json:"last_prune_deleted"`
	ConfigDiagnostics  []string  `json:"config_diagnostics,omitempty"`
	ConnectionState    string    `json:"connection_state"`
	ConnectionEndpoint string    `json:"connection_endpoint"`
}

// Scheduler is the polling loop. Run must be called from one goroutine only;
// State, Stats and Snapshot are safe to call concurrently.
type Scheduler struct {
	cfg      Config
	settings SnapshotLoader
	store    MeasurementStore
	reader   DeviceReader
	audit    audit.Repository
	observer Observer
	logger   Logger

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error

	mu       sync.RWMutex
	state    State
	snapshot settings.Snapshot
	diags    []string
	cycle    uint64
	stats    Stats
}

// NewScheduler creates a scheduler. Zero cadence values take their defaults.
func NewScheduler(cfg Config, deps Deps) *Scheduler {
	if cfg.ReloadEvery <= 0 {
		cfg.ReloadEvery = DefaultReloadEvery
	}
	if cfg.PruneEvery <= 0 {
		cfg.PruneEvery = DefaultPruneEvery
	}

	s := &Scheduler{
		cfg:      cfg,
		settings: deps.Settings,
		store:    deps.Store,
		reader:   deps.Reader,
		audit:    deps.Audit,
		observer: deps.Observer,
		logger:   deps.Logger,
		now:      time.Now,
		sleep:    sleepContext,
		state:    StateIdle,
		snapshot: settings.DefaultSnapshot(),
	}
	if s.observer == nil {
		s.observer = NopObserver{}
	}
	if s.logger == nil {
		s.logger = nopLogger{}
	}
	return s
}

// State returns the current loop state.
func (s *Scheduler) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Snapshot returns the settings snapshot the loop is currently using.
func (s *Scheduler) Snapshot() settings.Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshot
}

// Stats returns a copy of the loop counters.
func (s *Scheduler) Stats() Stats {
	s.mu.RLock()
	st := s.stats
	st.State = s.state.String()
	st.Cycles = s.cycle
	st.ConfiguredDevices = s.snapshot.Devices()
	st.ConfigDiagnostics = append([]string(nil), s.diags...)
	s.mu.RUnlock()

	conn := s.reader.Conn()
	st.ConnectionState = conn.State().String()
	st.ConnectionEndpoint = conn.Endpoint().String()
	return st
}

func (s *Scheduler) setState(st State) {
	s.mu.Lock()
	s.state = st
	s.mu.Unlock()
}

// Run executes the polling loop until ctx is cancelled.
//
// It loads the settings snapshot, points the link at the configured
// endpoint and applies retention once before the first cycle. On return the
// link is closed. Run never fails once started; it returns nil on shutdown.
func (s *Scheduler) Run(ctx context.Context) error {
	s.setState(StateLoadingConfig)
	snap, _ := s.loadSnapshot(ctx, settings.DefaultSnapshot())
	s.reconcileEndpoint(snap)

	s.setState(StatePruning)
	s.prune(ctx, snap)

	s.logger.Info("collector started",
		"endpoint", snap.Endpoint.String(),
		"devices", decode.FormatIDList(snap.DeviceIDs),
		"refresh", snap.Refresh,
	)

	defer func() {
		if err := s.reader.Conn().Close(); err != nil {
			s.logger.Warn("closing inverter link", "error", err)
		}
		s.setState(StateStopped)
		s.logger.Info("collector stopped", "cycles", s.Stats().Cycles)
	}()

	for {
		if ctx.Err() != nil {
			return nil
		}

		cycle := s.nextCycle()
		start := s.now()

		if cycle%uint64(s.cfg.ReloadEvery) == 0 { //nolint:gosec // G115: positive by construction
			s.setState(StateReconciling)
			var fresh bool
			if snap, fresh = s.loadSnapshot(ctx, snap); fresh {
				s.reconcileEndpoint(snap)
			}
		}

		if cycle%uint64(s.cfg.PruneEvery) == 0 { //nolint:gosec // G115: positive by construction
			s.setState(StatePruning)
			s.prune(ctx, snap)
		}

		s.RunCycle(ctx, snap)

		// Reload and prune time counts against the cadence too.
		s.setState(StateSleeping)
		wait := snap.Refresh - s.now().Sub(start)
		if wait < 0 {
			wait = 0
		}
		if err := s.sleep(ctx, wait); err != nil {
			return nil
		}
	}
}

func (s *Scheduler) nextCycle() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cycle++
	return s.cycle
}

// loadSnapshot reads the settings and publishes the result to Snapshot.
// Diagnostics are logged and the usable snapshot is kept. When the settings
// table cannot be read, prev stays in force and fresh is false.
func (s *Scheduler) loadSnapshot(ctx context.Context, prev settings.Snapshot) (settings.Snapshot, bool) {
	snap, errs := s.settings.LoadSnapshot(ctx)

	diags := make([]string, 0, len(errs))
	for _, err := range errs {
		if errors.Is(err, settings.ErrStorage) {
			s.logger.Warn("settings unavailable, keeping current snapshot",
				"endpoint", prev.Endpoint.String(), "error", err)
			s.mu.Lock()
			s.diags = []string{err.Error()}
			s.mu.Unlock()
			return prev, false
		}
		diags = append(diags, err.Error())
		s.logger.Warn("settings diagnostic", "error", err)
	}
	if len(snap.DeviceIDs) == 0 {
		s.logger.Warn("no device ids configured; cycles will poll nothing")
	}

	s.mu.Lock()
	s.snapshot = snap
	s.diags = diags
	s.mu.Unlock()
	return snap, true
}

// reconcileEndpoint retargets the link when host or port changed.
func (s *Scheduler) reconcileEndpoint(snap settings.Snapshot) {
	conn := s.reader.Conn()
	old := conn.Endpoint()
	if conn.Reconfigure(snap.Endpoint) {
		s.logger.Info("inverter endpoint changed",
			"from", old.String(),
			"to", snap.Endpoint.String(),
		)
	}
}

// prune applies the retention window. Zero retention keeps everything.
func (s *Scheduler) prune(ctx context.Context, snap settings.Snapshot) {
	if snap.RetentionDays <= 0 {
		return
	}

	deleted, err := s.store.PruneOlderThan(ctx, snap.RetentionDays)
	if err != nil {
		s.logger.Error("pruning measurements", "retention_days", snap.RetentionDays, "error", err)
		return
	}

	s.mu.Lock()
	s.stats.LastPruneAt = s.now()
	s.stats.LastPruneDeleted = deleted
	s.mu.Unlock()

	if deleted == 0 {
		return
	}

	s.logger.Info("pruned measurements", "deleted", deleted, "retention_days", snap.RetentionDays)
	if s.audit != nil {
		details := map[string]any{"deleted": deleted, "retention_days": snap.RetentionDays}
		if err := audit.Record(ctx, s.audit, audit.ActionPrune, audit.EntityMeasurements, "", audit.SourceScheduler, details); err != nil {
			s.logger.Warn("recording prune audit", "error", err)
		}
	}
}

// RunCycle polls every device of snap once, in ascending id order.
//
// Unreachable devices are reported and skipped. A failed append is logged
// and the sample is lost, but the device still counts as read. The cycle
// stops early when ctx is cancelled.
func (s *Scheduler) RunCycle(ctx context.Context, snap settings.Snapshot) CycleSummary {
	s.setState(StatePolling)

	s.mu.RLock()
	cycle := s.cycle
	s.mu.RUnlock()

	start := s.now()
	summary := CycleSummary{
		Cycle:       cycle,
		StartedAt:   start,
		Devices:     snap.Devices(),
		OK:          []int{},
		Unreachable: []int{},
		Faulted:     []int{},
		Degraded:    []int{},
	}

	for _, id := range summary.Devices {
		if ctx.Err() != nil {
			summary.Interrupted = true
			break
		}

		sample, err := s.reader.Read(ctx, id, snap.AddressMap)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, context.Canceled) {
				summary.Interrupted = true
				break
			}
			summary.Unreachable = append(summary.Unreachable, id)
			s.logger.Warn("device unreachable", "device_id", id, "error", err)
			s.observer.DeviceUnreachable(UnreachableEvent{
				DeviceID:  id,
				Timestamp: s.now(),
				Error:     err.Error(),
			})
			continue
		}

		s.record(ctx, sample, &summary)
	}

	summary.Duration = s.now().Sub(start)
	summary.DurationMS = summary.Duration.Milliseconds()

	s.mu.Lock()
	s.stats.LastCycleAt = start
	s.stats.LastCycleMS = summary.DurationMS
	s.stats.LastOK = len(summary.OK)
	s.stats.LastUnreachable = len(summary.Unreachable)
	s.stats.LastFaults = len(summary.Faulted)
	s.stats.TotalSamples += uint64(len(summary.OK))
	s.stats.TotalFailures += uint64(len(summary.Unreachable))
	s.stats.TotalStoreErrors += uint64(summary.StoreErrors) //nolint:gosec // G115: non-negative count
	s.mu.Unlock()

	s.logger.Debug("cycle completed",
		"cycle", summary.Cycle,
		"ok", len(summary.OK),
		"unreachable", len(summary.Unreachable),
		"duration_ms", summary.DurationMS,
	)
	s.observer.CycleCompleted(summary)
	return summary
}

// record stores one sample and reports it.
func (s *Scheduler) record(ctx context.Context, sample inverter.Sample, summary *CycleSummary) {
	m := sample.Measurement()

	stored := true
	if err := s.store.Append(ctx, m); err != nil {
		stored = false
		summary.StoreErrors++
		s.logger.Error("storing measurement", "device_id", m.DeviceID, "error", err)
	}

	outcome := OutcomeClean
	if m.HasFault() {
		outcome = OutcomeFault
		summary.Faulted = append(summary.Faulted, m.DeviceID)
	}
	if sample.Degraded() {
		summary.Degraded = append(summary.Degraded, m.DeviceID)
		for _, f := range sample.Faults {
			if f.Status == inverter.Degraded {
				s.logger.Warn("fault group read degraded", "device_id", m.DeviceID, "group", f.Key, "error", f.Err)
			}
		}
	}
	summary.OK = append(summary.OK, m.DeviceID)

	s.observer.MeasurementRecorded(MeasurementEvent{
		Measurement: m,
		Outcome:     outcome,
		Degraded:    sample.Degraded(),
		Stored:      stored,
	})
}

// sleepContext waits for d or until ctx is done.
func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
