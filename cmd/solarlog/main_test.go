package main

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/nerrad567/solarlog-collector/internal/infrastructure/database"
)

// writeConfig writes a minimal config using a temp database and returns its path.
func writeConfig(t *testing.T, extra string) string {
	t.Helper()

	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "test-config.yaml")
	dbPath := filepath.Join(tmpDir, "test.db")

	configContent := `
site:
  id: test-site
  timezone: UTC

database:
  path: "` + dbPath + `"
  wal_mode: true
  busy_timeout: 5

modbus:
  timeout_ms: 100
  retry_attempts: 1
  connect_retry_delay_ms: 0
  read_retry_delay_ms: 0
  register_pause_ms: 0

mqtt:
  enabled: false

influxdb:
  enabled: false

logging:
  level: error
  format: text
  output: stdout
` + extra
	if err := os.WriteFile(configPath, []byte(configContent), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
	return configPath
}

func TestParseFlags(t *testing.T) {
	tests := []struct {
		name        string
		args        []string
		wantPath    string
		wantVersion bool
		wantErr     bool
	}{
		{"none", nil, "", false, false},
		{"long config", []string{"--config", "/etc/solarlog.yaml"}, "/etc/solarlog.yaml", false, false},
		{"short config", []string{"-c", "cfg.yaml"}, "cfg.yaml", false, false},
		{"version", []string{"--version"}, "", true, false},
		{"unknown flag", []string{"--bogus"}, "", false, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts, err := parseFlags(tt.args)
			if (err != nil) != tt.wantErr {
				t.Fatalf("parseFlags() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			if opts.configPath != tt.wantPath || opts.showVersion != tt.wantVersion {
				t.Errorf("opts = %+v", opts)
			}
		})
	}
}

func TestRun_Version(t *testing.T) {
	var out bytes.Buffer
	if err := run(context.Background(), []string{"--version"}, &out); err != nil {
		t.Fatalf("run() error: %v", err)
	}
	if !strings.HasPrefix(out.String(), "solarlog "+version) {
		t.Errorf("output = %q", out.String())
	}
}

func TestRun_InvalidConfig(t *testing.T) {
	t.Setenv(configEnv, "/nonexistent/path/config.yaml")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := run(ctx, nil, &bytes.Buffer{}); err == nil {
		t.Fatal("run() should fail with invalid config path")
	}
}

func TestRun_InvalidTimezone(t *testing.T) {
	configPath := writeConfig(t, "")
	data, err := os.ReadFile(configPath)
	if err != nil {
		t.Fatal(err)
	}
	bad := strings.Replace(string(data), "timezone: UTC", "timezone: Mars/Olympus", 1)
	if err := os.WriteFile(configPath, []byte(bad), 0600); err != nil {
		t.Fatal(err)
	}

	if err := run(context.Background(), []string{"--config", configPath}, &bytes.Buffer{}); err == nil {
		t.Fatal("run() should fail with an invalid timezone")
	}
}

func TestLoadConfig(t *testing.T) {
	t.Run("flag wins over env", func(t *testing.T) {
		path := writeConfig(t, "")
		t.Setenv(configEnv, "/nonexistent.yaml")

		cfg, used, err := loadConfig(path)
		if err != nil {
			t.Fatalf("loadConfig() error: %v", err)
		}
		if used != path || cfg.Site.ID != "test-site" {
			t.Errorf("used %q, site %q", used, cfg.Site.ID)
		}
	})

	t.Run("env path", func(t *testing.T) {
		path := writeConfig(t, "")
		t.Setenv(configEnv, path)

		_, used, err := loadConfig("")
		if err != nil {
			t.Fatalf("loadConfig() error: %v", err)
		}
		if used != path {
			t.Errorf("used %q, want %q", used, path)
		}
	})

	t.Run("missing default falls back to built-in", func(t *testing.T) {
		t.Setenv(configEnv, "")
		wd, err := os.Getwd()
		if err != nil {
			t.Fatalf("Getwd() error: %v", err)
		}
		if err := os.Chdir(t.TempDir()); err != nil {
			t.Fatalf("Chdir() error: %v", err)
		}
		t.Cleanup(func() { _ = os.Chdir(wd) })

		cfg, _, err := loadConfig("")
		if err != nil {
			t.Fatalf("loadConfig() error: %v", err)
		}
		if cfg.Database.Path == "" {
			t.Error("built-in defaults should set a database path")
		}
	})

	t.Run("explicit missing file fails", func(t *testing.T) {
		if _, _, err := loadConfig(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
			t.Error("loadConfig() should fail for a missing explicit file")
		}
	})
}

func TestRun_StartupAndShutdown(t *testing.T) {
	port := 19280
	configPath := writeConfig(t, fmt.Sprintf(`
api:
  enabled: true
  host: "127.0.0.1"
  port: %d
`, port))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	errCh := make(chan error, 1)
	go func() {
		errCh <- run(ctx, []string{"--config", configPath}, &bytes.Buffer{})
	}()

	url := fmt.Sprintf("http://127.0.0.1:%d/api/v1/health", port)
	deadline := time.Now().Add(5 * time.Second)
	for {
		resp, err := http.Get(url)
		if err == nil {
			resp.Body.Close()
			if resp.StatusCode != http.StatusOK {
				t.Errorf("health status = %d, want 200", resp.StatusCode)
			}
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("API never became ready: %v", err)
		}
		time.Sleep(50 * time.Millisecond)
	}

	cancel()

	select {
	case err := <-errCh:
		if err != nil {
			t.Errorf("run() error on shutdown: %v", err)
		}
	case <-time.After(15 * time.Second):
		t.Fatal("run() did not return after cancellation")
	}
}

func TestHealthCheck_DisabledClients(t *testing.T) {
	db, err := database.Open(context.Background(), database.Config{
		Path:        filepath.Join(t.TempDir(), "health.db"),
		WALMode:     true,
		BusyTimeout: 5,
	})
	if err != nil {
		t.Fatalf("Open() error: %v", err)
	}
	defer db.Close()

	if err := healthCheck(context.Background(), db, nil, nil); err != nil {
		t.Errorf("healthCheck() with MQTT and InfluxDB disabled: %v", err)
	}
}

func TestStatusAdapters_NilClients(t *testing.T) {
	if s := mqttStatus(nil); s != nil {
		t.Errorf("mqttStatus(nil) = %#v, want nil interface", s)
	}
	if s := influxStatus(nil); s != nil {
		t.Errorf("influxStatus(nil) = %#v, want nil interface", s)
	}
}
