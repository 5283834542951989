package collector

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/solarlog-collector/internal/audit"
	"github.com/nerrad567/solarlog-collector/internal/infrastructure/database"
	"github.com/nerrad567/solarlog-collector/internal/inverter"
	"github.com/nerrad567/solarlog-collector/internal/measurement"
	"github.com/nerrad567/solarlog-collector/internal/settings"
	_ "github.com/nerrad567/solarlog-collector/migrations"
)

var errUnitDown = errors.New("unit not responding")

// fakeTransport serves holding registers from memory.
type fakeTransport struct {
	mu        sync.Mutex
	regs      map[uint8]map[uint16]uint16
	failUnits map[uint8]bool
	failAddrs map[uint16]bool
	connects  int
	closes    int
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{
		regs:      make(map[uint8]map[uint16]uint16),
		failUnits: make(map[uint8]bool),
		failAddrs: make(map[uint16]bool),
	}
}

func (f *fakeTransport) set(unit uint8, address uint16, words ...uint16) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.regs[unit] == nil {
		f.regs[unit] = make(map[uint16]uint16)
	}
	for i, w := range words {
		f.regs[unit][address+uint16(i)] = w //nolint:gosec // test data
	}
}

func (f *fakeTransport) Connect() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connects++
	return nil
}

func (f *fakeTransport) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closes++
	return nil
}

func (f *fakeTransport) ReadHoldingRegisters(unit uint8, address, quantity uint16) ([]uint16, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failUnits[unit] {
		return nil, fmt.Errorf("unit %d: %w", unit, errUnitDown)
	}
	if f.failAddrs[address] {
		return nil, fmt.Errorf("address %d: %w", address, errUnitDown)
	}
	out := make([]uint16, quantity)
	for i := range out {
		out[i] = f.regs[unit][address+uint16(i)] //nolint:gosec // test data
	}
	return out, nil
}

// fakeLoader returns a fixed snapshot and counts loads. Loads listed in
// failOn (1-based) behave like an unreadable settings table.
type fakeLoader struct {
	mu     sync.Mutex
	snaps  []settings.Snapshot
	loads  int
	failOn map[int]bool
}

func (l *fakeLoader) LoadSnapshot(context.Context) (settings.Snapshot, []error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.loads++
	if l.failOn[l.loads] {
		err := fmt.Errorf("%w: listing settings: database is locked", settings.ErrStorage)
		return settings.DefaultSnapshot(), []error{err}
	}
	snap := l.snaps[0]
	if len(l.snaps) > 1 {
		l.snaps = l.snaps[1:]
	}
	return snap, nil
}

func (l *fakeLoader) count() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.loads
}

// fakeStore records appends and prunes.
type fakeStore struct {
	mu        sync.Mutex
	appended  []measurement.Measurement
	appendErr error
	prunes    []int
	pruned    int64
	onPrune   func()
}

func (s *fakeStore) Append(_ context.Context, m measurement.Measurement) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.appendErr != nil {
		return s.appendErr
	}
	s.appended = append(s.appended, m)
	return nil
}

func (s *fakeStore) PruneOlderThan(_ context.Context, days int) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.prunes = append(s.prunes, days)
	if s.onPrune != nil {
		s.onPrune()
	}
	return s.pruned, nil
}

// recordingObserver captures every event.
type recordingObserver struct {
	mu          sync.Mutex
	recorded    []MeasurementEvent
	unreachable []UnreachableEvent
	cycles      []CycleSummary
}

func (o *recordingObserver) MeasurementRecorded(ev MeasurementEvent) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.recorded = append(o.recorded, ev)
}

func (o *recordingObserver) DeviceUnreachable(ev UnreachableEvent) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.unreachable = append(o.unreachable, ev)
}

func (o *recordingObserver) CycleCompleted(s CycleSummary) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.cycles = append(o.cycles, s)
}

// recordingLogger captures messages by level.
type recordingLogger struct {
	mu     sync.Mutex
	infos  []string
	warns  []string
	errors []string
}

func (l *recordingLogger) Debug(string, ...any) {}

func (l *recordingLogger) Info(msg string, _ ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.infos = append(l.infos, msg)
}

func (l *recordingLogger) Warn(msg string, _ ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.warns = append(l.warns, msg)
}

func (l *recordingLogger) Error(msg string, _ ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.errors = append(l.errors, msg)
}

// fakeClock is a manually advanced time source.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// snapshotWith builds a snapshot from the defaults plus overrides.
func snapshotWith(t *testing.T, overrides map[string]string) settings.Snapshot {
	t.Helper()
	s := settings.Defaults()
	for k, v := range overrides {
		s[k] = settings.Setting{Key: k, Value: v}
	}
	snap, errs := settings.ParseSnapshot(s)
	if len(errs) > 0 {
		t.Fatalf("ParseSnapshot() errors = %v", errs)
	}
	return snap
}

// newTestReader builds a reader over ft with no retry delays.
func newTestReader(ft *fakeTransport, ep settings.Endpoint) *inverter.Reader {
	dial := func(settings.Endpoint, time.Duration) inverter.Transport { return ft }
	conn := inverter.NewConn(dial, ep, time.Second)
	return inverter.NewReader(conn, inverter.Config{RetryAttempts: 2})
}

// loadDevice seeds a plausible register image for unit.
func loadDevice(ft *fakeTransport, unit uint8, power uint16) {
	ft.set(unit, 70, power, 2300, 65, 41)
	ft.set(unit, 189, 0, 0)
	ft.set(unit, 193, 0, 0)
}

// openTestDB opens a migrated database under t.TempDir().
func openTestDB(t *testing.T) *database.DB {
	t.Helper()

	ctx := context.Background()
	db, err := database.Open(ctx, database.Config{
		Path:        filepath.Join(t.TempDir(), "collector.db"),
		WALMode:     true,
		BusyTimeout: 5,
	})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { db.Close() }) //nolint:errcheck // Test cleanup

	if err := db.Migrate(ctx); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}
	return db
}

// nopRepo satisfies audit.Repository without storage.
type nopRepo struct {
	mu   sync.Mutex
	logs []audit.AuditLog
}

func (r *nopRepo) Create(_ context.Context, log *audit.AuditLog) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.logs = append(r.logs, *log)
	return nil
}

func (r *nopRepo) List(context.Context, audit.Filter) (*audit.ListResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return &audit.ListResult{Logs: append([]audit.AuditLog(nil), r.logs...), Total: len(r.logs)}, nil
}
