package influxdb_test

import (
	"context"
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/solarlog-collector/internal/infrastructure/config"
	"github.com/nerrad567/solarlog-collector/internal/infrastructure/influxdb"
)

// testConfig returns a configuration for the local dev InfluxDB.
// These values match docker-compose.yml.
func testConfig() config.InfluxDBConfig {
	return config.InfluxDBConfig{
		Enabled:       true,
		URL:           "http://127.0.0.1:8086",
		Token:         "solarlog-dev-token",
		Org:           "solarlog",
		Bucket:        "telemetry",
		BatchSize:     100,
		FlushInterval: 1, // 1 second for faster test feedback
	}
}

// skipIfNoInfluxDB skips the test if InfluxDB is not running.
func skipIfNoInfluxDB(t *testing.T) {
	t.Helper()
	if os.Getenv("RUN_INTEGRATION") == "" {
		// Quick check: try to connect
		cfg := testConfig()
		client, err := influxdb.Connect(cfg)
		if err != nil {
			t.Skip("InfluxDB not available, skipping integration test")
		}
		client.Close()
	}
}

// =============================================================================
// Connection Tests
// =============================================================================

func TestConnect(t *testing.T) {
	skipIfNoInfluxDB(t)
	cfg := testConfig()

	client, err := influxdb.Connect(cfg)
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	defer client.Close()

	if !client.IsConnected() {
		t.Error("IsConnected() = false after Connect()")
	}
}

func TestConnect_Disabled(t *testing.T) {
	cfg := testConfig()
	cfg.Enabled = false

	_, err := influxdb.Connect(cfg)
	if err == nil {
		t.Fatal("Connect() should return error when disabled")
	}
	if !errors.Is(err, influxdb.ErrDisabled) {
		t.Errorf("Connect() error = %v, want ErrDisabled", err)
	}
}

func TestConnect_InvalidURL(t *testing.T) {
	cfg := testConfig()
	cfg.URL = "http://127.0.0.1:59999" // Non-existent port

	_, err := influxdb.Connect(cfg)
	if err == nil {
		t.Fatal("Connect() should return error for invalid URL")
	}
}

func TestConnect_DefaultBatchSettings(t *testing.T) {
	skipIfNoInfluxDB(t)
	cfg := testConfig()
	cfg.BatchSize = 0     // Should use default
	cfg.FlushInterval = 0 // Should use default

	client, err := influxdb.Connect(cfg)
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	defer client.Close()

	if !client.IsConnected() {
		t.Error("IsConnected() = false after Connect() with default batch settings")
	}
}

func TestConnect_NegativeBatchSettings(t *testing.T) {
	skipIfNoInfluxDB(t)
	cfg := testConfig()
	cfg.BatchSize = -5     // Negative, should use default
	cfg.FlushInterval = -1 // Negative, should use default

	client, err := influxdb.Connect(cfg)
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	defer client.Close()

	if !client.IsConnected() {
		t.Error("IsConnected() = false after Connect() with negative batch settings")
	}
}

// =============================================================================
// Health Check Tests
// =============================================================================

func TestHealthCheck(t *testing.T) {
	skipIfNoInfluxDB(t)
	cfg := testConfig()

	client, err := influxdb.Connect(cfg)
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	defer client.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.HealthCheck(ctx); err != nil {
		t.Errorf("HealthCheck() error = %v", err)
	}
}

func TestHealthCheck_Cancelled(t *testing.T) {
	skipIfNoInfluxDB(t)
	cfg := testConfig()

	client, err := influxdb.Connect(cfg)
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	defer client.Close()

	// Create already cancelled context
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err = client.HealthCheck(ctx)
	if err == nil {
		t.Error("HealthCheck() should return error for cancelled context")
	}
}

// =============================================================================
// Write Tests
// =============================================================================

func TestWriteReading(t *testing.T) {
	skipIfNoInfluxDB(t)
	cfg := testConfig()

	client, err := influxdb.Connect(cfg)
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	defer client.Close()

	// Track errors with mutex for race safety
	var writeErr error
	var mu sync.Mutex
	client.SetOnError(func(err error) {
		mu.Lock()
		writeErr = err
		mu.Unlock()
	})

	client.WriteReading(influxdb.Reading{SiteID: "test", DeviceID: 1, Power: 1500, Voltage: 230, FaultA: 5})
	client.WriteCycle(influxdb.CycleStats{SiteID: "test", Cycle: 1, Duration: 120 * time.Millisecond, OK: 1})
	client.Flush()

	time.Sleep(100 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	if writeErr != nil {
		t.Errorf("Write error = %v", writeErr)
	}
}

// =============================================================================
// Point Builder Tests
// =============================================================================

func TestInverterPoint(t *testing.T) {
	ts := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	p := influxdb.InverterPoint(influxdb.Reading{
		SiteID:    "plant-1",
		DeviceID:  3,
		Timestamp: ts,
		Power:     1500,
		Voltage:   230,
		FaultA:    0x00010002,
		Degraded:  true,
	})

	if p.Name() != "inverter" {
		t.Errorf("Name() = %q, want inverter", p.Name())
	}
	if !p.Time().Equal(ts) {
		t.Errorf("Time() = %v, want %v", p.Time(), ts)
	}

	tags := map[string]string{}
	for _, tag := range p.TagList() {
		tags[tag.Key] = tag.Value
	}
	if tags["device_id"] != "3" || tags["site"] != "plant-1" {
		t.Errorf("tags = %v, want device_id=3 site=plant-1", tags)
	}

	fields := map[string]interface{}{}
	for _, f := range p.FieldList() {
		fields[f.Key] = f.Value
	}
	if fields["power"] != 1500.0 {
		t.Errorf("power = %v, want 1500", fields["power"])
	}
	if fields["fault_a"] != int64(0x00010002) {
		t.Errorf("fault_a = %v, want %d", fields["fault_a"], 0x00010002)
	}
	if fields["degraded"] != true {
		t.Errorf("degraded = %v, want true", fields["degraded"])
	}
}

func TestCyclePoint(t *testing.T) {
	p := influxdb.CyclePoint(influxdb.CycleStats{Cycle: 42, Duration: 1500 * time.Millisecond, OK: 2, Unreachable: 1})

	if p.Name() != "collector_cycle" {
		t.Errorf("Name() = %q, want collector_cycle", p.Name())
	}
	if len(p.TagList()) != 0 {
		t.Errorf("TagList() = %v, want none without a site", p.TagList())
	}
	if p.Time().IsZero() {
		t.Error("Time() is zero, want now")
	}

	fields := map[string]interface{}{}
	for _, f := range p.FieldList() {
		fields[f.Key] = f.Value
	}
	if fields["duration_ms"] != int64(1500) {
		t.Errorf("duration_ms = %v, want 1500", fields["duration_ms"])
	}
	if fields["unreachable"] != int64(1) {
		t.Errorf("unreachable = %v, want 1", fields["unreachable"])
	}
}

func TestWriteReading_Disconnected(t *testing.T) {
	// A client that never connected drops writes instead of panicking.
	client := &influxdb.Client{}
	client.WriteReading(influxdb.Reading{DeviceID: 1})
	client.WriteCycle(influxdb.CycleStats{Cycle: 1})
	client.Flush()
	if client.IsConnected() || client.WriteErrors() != 0 {
		t.Errorf("IsConnected() = %v, WriteErrors() = %d on a zero client", client.IsConnected(), client.WriteErrors())
	}
	if err := client.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
}

// =============================================================================
// Close Tests
// =============================================================================

func TestClose(t *testing.T) {
	skipIfNoInfluxDB(t)
	cfg := testConfig()

	client, err := influxdb.Connect(cfg)
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}

	// Write something before close
	client.WriteReading(influxdb.Reading{DeviceID: 1, Power: 1})

	// Close should flush and disconnect
	if err := client.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}

	// Should be disconnected
	if client.IsConnected() {
		t.Error("IsConnected() = true after Close()")
	}
}
