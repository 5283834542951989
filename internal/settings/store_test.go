package settings

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/solarlog-collector/internal/infrastructure/database"
	_ "github.com/nerrad567/solarlog-collector/migrations"
)

func openTestStore(t *testing.T) (*Store, *database.DB) {
	t.Helper()

	ctx := context.Background()
	db, err := database.Open(ctx, database.Config{
		Path:        filepath.Join(t.TempDir(), "settings.db"),
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
	return NewStore(db.DB), db
}

type recordingLogger struct {
	mu    sync.Mutex
	warns []string
}

func (l *recordingLogger) Warn(msg string, _ ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.warns = append(l.warns, msg)
}

func TestStore_RoundTrip(t *testing.T) {
	store, _ := openTestStore(t)
	ctx := context.Background()

	before := time.Now().UTC().Add(-time.Second)
	if err := store.Write(ctx, KeyRefreshRate, "5"); err != nil {
		t.Fatalf("Write() error = %v", err)
	}

	got, err := store.Read(ctx, KeyRefreshRate, "2")
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}
	if got != "5" {
		t.Errorf("Read() = %q, want 5", got)
	}

	all := store.ReadAll(ctx)
	st, ok := all[KeyRefreshRate]
	if !ok {
		t.Fatalf("ReadAll() missing %s", KeyRefreshRate)
	}
	if st.Value != "5" {
		t.Errorf("ReadAll()[%s] = %q, want 5", KeyRefreshRate, st.Value)
	}
	if st.UpdatedAt.Before(before) {
		t.Errorf("UpdatedAt = %v, want >= %v", st.UpdatedAt, before)
	}
	if st.Description == "" {
		t.Error("Write() should keep the seeded description")
	}
}

func TestStore_ReadMissingKey(t *testing.T) {
	store, _ := openTestStore(t)

	got, err := store.Read(context.Background(), "no_such_key", "fallback")
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}
	if got != "fallback" {
		t.Errorf("Read() = %q, want fallback", got)
	}
}

func TestStore_WriteIdempotent(t *testing.T) {
	store, _ := openTestStore(t)
	ctx := context.Background()

	tick := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return tick }

	if err := store.Write(ctx, "custom", "a"); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	tick = tick.Add(time.Minute)
	if err := store.Write(ctx, "custom", "a"); err != nil {
		t.Fatalf("second Write() error = %v", err)
	}

	st := store.ReadAll(ctx)["custom"]
	if st.Value != "a" {
		t.Errorf("Value = %q, want a", st.Value)
	}
	if !st.UpdatedAt.Equal(tick) {
		t.Errorf("UpdatedAt = %v, want %v", st.UpdatedAt, tick)
	}
}

func TestStore_WriteEmptyKey(t *testing.T) {
	store, _ := openTestStore(t)

	err := store.Write(context.Background(), "  ", "x")
	if !errors.Is(err, ErrInvalidKey) {
		t.Errorf("Write() error = %v, want ErrInvalidKey", err)
	}
}

func TestStore_SeededDefaults(t *testing.T) {
	store, _ := openTestStore(t)

	list, err := store.List(context.Background())
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(list) != len(defaults) {
		t.Fatalf("List() = %d settings, want %d", len(list), len(defaults))
	}
	for i := 1; i < len(list); i++ {
		if list[i-1].Key >= list[i].Key {
			t.Errorf("List() not ordered by key at %d: %q >= %q", i, list[i-1].Key, list[i].Key)
		}
	}
	for _, st := range list {
		if st.Value != DefaultValue(st.Key) {
			t.Errorf("seeded %s = %q, want %q", st.Key, st.Value, DefaultValue(st.Key))
		}
	}
}

func TestStore_StorageFault(t *testing.T) {
	store, db := openTestStore(t)
	logger := &recordingLogger{}
	store.SetLogger(logger)
	db.Close() //nolint:errcheck // force storage faults

	ctx := context.Background()

	got, err := store.Read(ctx, KeyTargetPort, "502")
	if !errors.Is(err, ErrStorage) {
		t.Errorf("Read() error = %v, want ErrStorage", err)
	}
	if got != "502" {
		t.Errorf("Read() = %q, want default 502", got)
	}

	if err := store.Write(ctx, KeyTargetPort, "503"); !errors.Is(err, ErrStorage) {
		t.Errorf("Write() error = %v, want ErrStorage", err)
	}

	all := store.ReadAll(ctx)
	if all.Value(KeyTargetIP, "") != "10.35.14.10" {
		t.Errorf("ReadAll() fallback target_ip = %q", all.Value(KeyTargetIP, ""))
	}
	if len(logger.warns) != 1 {
		t.Errorf("warnings = %v, want one", logger.warns)
	}

	snap, errs := store.LoadSnapshot(ctx)
	if len(errs) != 1 || !errors.Is(errs[0], ErrStorage) {
		t.Errorf("LoadSnapshot() errs = %v, want one ErrStorage", errs)
	}
	if snap.Endpoint.Port != 502 {
		t.Errorf("LoadSnapshot() port = %d, want 502", snap.Endpoint.Port)
	}
}

func TestStore_LoadSnapshotAfterWrite(t *testing.T) {
	store, _ := openTestStore(t)
	ctx := context.Background()

	writes := map[string]string{
		KeyTargetIP:    "192.168.1.50",
		KeyTargetPort:  "1502",
		KeySlaveIDs:    "4-6",
		KeyRefreshRate: "0.5",
	}
	for k, v := range writes {
		if err := store.Write(ctx, k, v); err != nil {
			t.Fatalf("Write(%s) error = %v", k, err)
		}
	}

	snap, errs := store.LoadSnapshot(ctx)
	if len(errs) != 0 {
		t.Fatalf("LoadSnapshot() errs = %v", errs)
	}
	if snap.Endpoint.String() != "192.168.1.50:1502" {
		t.Errorf("Endpoint = %s, want 192.168.1.50:1502", snap.Endpoint)
	}
	if snap.Refresh != 500*time.Millisecond {
		t.Errorf("Refresh = %v, want 500ms", snap.Refresh)
	}
	if len(snap.DeviceIDs) != 3 || snap.DeviceIDs[0] != 4 {
		t.Errorf("DeviceIDs = %v, want [4 5 6]", snap.DeviceIDs)
	}
}
