package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()

	configPath := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(configPath, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
	return configPath
}

func TestLoad_ValidConfig(t *testing.T) {
	configPath := writeConfig(t, `
site:
  id: "test-site"
  timezone: "Europe/Istanbul"
database:
  path: "/tmp/test.db"
  wal_mode: true
  busy_timeout: 5
modbus:
  timeout_ms: 1500
  retry_attempts: 5
collector:
  reload_every: 20
mqtt:
  enabled: true
  broker:
    host: "localhost"
    port: 1883
    client_id: "test-client"
  qos: 1
  topic_prefix: "plant-a"
api:
  host: "0.0.0.0"
  port: 8080
`)

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Site.ID != "test-site" {
		t.Errorf("Site.ID = %q, want %q", cfg.Site.ID, "test-site")
	}
	if cfg.Database.Path != "/tmp/test.db" {
		t.Errorf("Database.Path = %q, want %q", cfg.Database.Path, "/tmp/test.db")
	}
	if cfg.ModbusTimeout() != 1500*time.Millisecond {
		t.Errorf("ModbusTimeout() = %v, want 1.5s", cfg.ModbusTimeout())
	}
	if cfg.Modbus.RetryAttempts != 5 {
		t.Errorf("Modbus.RetryAttempts = %d, want 5", cfg.Modbus.RetryAttempts)
	}
	// Fields absent from the file keep their defaults.
	if cfg.Modbus.RegisterPauseMS != 50 {
		t.Errorf("Modbus.RegisterPauseMS = %d, want default 50", cfg.Modbus.RegisterPauseMS)
	}
	if cfg.Collector.ReloadEvery != 20 || cfg.Collector.PruneEvery != 1800 {
		t.Errorf("Collector = %+v, want reload 20 prune 1800", cfg.Collector)
	}
	if cfg.MQTT.TopicPrefix != "plant-a" {
		t.Errorf("MQTT.TopicPrefix = %q, want plant-a", cfg.MQTT.TopicPrefix)
	}
	if cfg.Location().String() != "Europe/Istanbul" {
		t.Errorf("Location() = %v, want Europe/Istanbul", cfg.Location())
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load("/nonexistent/path/config.yaml")
	if err == nil {
		t.Error("Load() expected error for missing file, got nil")
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	configPath := writeConfig(t, "invalid: [yaml: content")

	_, err := Load(configPath)
	if err == nil {
		t.Error("Load() expected error for invalid YAML, got nil")
	}
}

func TestLoad_ValidationFailure(t *testing.T) {
	configPath := writeConfig(t, `
site:
  id: ""
database:
  path: "/tmp/test.db"
`)

	_, err := Load(configPath)
	if err == nil {
		t.Error("Load() expected validation error for empty site.id, got nil")
	}
}

func TestDefault(t *testing.T) {
	t.Setenv("SOLARLOG_DATABASE_PATH", "/var/lib/solarlog/test.db")

	cfg, err := Default()
	if err != nil {
		t.Fatalf("Default() error = %v", err)
	}
	if cfg.Database.Path != "/var/lib/solarlog/test.db" {
		t.Errorf("Database.Path = %q, want env override", cfg.Database.Path)
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{name: "defaults are valid", mutate: func(*Config) {}},
		{name: "missing site ID", mutate: func(c *Config) { c.Site.ID = "" }, wantErr: "site.id is required"},
		{name: "bad timezone", mutate: func(c *Config) { c.Site.Timezone = "Mars/Olympus" }, wantErr: "site.timezone"},
		{name: "missing database path", mutate: func(c *Config) { c.Database.Path = "" }, wantErr: "database.path is required"},
		{name: "zero modbus timeout", mutate: func(c *Config) { c.Modbus.TimeoutMS = 0 }, wantErr: "modbus.timeout_ms"},
		{name: "zero retry attempts", mutate: func(c *Config) { c.Modbus.RetryAttempts = 0 }, wantErr: "modbus.retry_attempts"},
		{name: "negative delay", mutate: func(c *Config) { c.Modbus.ReadRetryDelayMS = -1 }, wantErr: "modbus delays"},
		{name: "zero reload", mutate: func(c *Config) { c.Collector.ReloadEvery = 0 }, wantErr: "collector.reload_every"},
		{name: "zero prune", mutate: func(c *Config) { c.Collector.PruneEvery = 0 }, wantErr: "collector.prune_every"},
		{name: "invalid QoS", mutate: func(c *Config) { c.MQTT.QoS = 3 }, wantErr: "mqtt.qos"},
		{name: "empty topic prefix", mutate: func(c *Config) { c.MQTT.Enabled = true; c.MQTT.TopicPrefix = " " }, wantErr: "mqtt.topic_prefix"},
		{name: "invalid port low", mutate: func(c *Config) { c.API.Port = 0 }, wantErr: "api.port"},
		{name: "invalid port high", mutate: func(c *Config) { c.API.Port = 70000 }, wantErr: "api.port"},
		{name: "port ignored when api disabled", mutate: func(c *Config) { c.API.Enabled = false; c.API.Port = 0 }},
		{name: "influx without url", mutate: func(c *Config) { c.InfluxDB.Enabled = true }, wantErr: "influxdb.url"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := defaultConfig()
			tt.mutate(cfg)

			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Validate() error = %v, want nil", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() error = %v, want containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestConfig_ValidateJoinsErrors(t *testing.T) {
	cfg := defaultConfig()
	cfg.Site.ID = ""
	cfg.Database.Path = ""

	err := cfg.Validate()
	if err == nil {
		t.Fatal("Validate() error = nil")
	}
	if !strings.Contains(err.Error(), "site.id is required; database.path is required") {
		t.Errorf("Validate() error = %q, want joined messages", err)
	}
}

func TestConfig_GetTimeouts(t *testing.T) {
	cfg := &Config{
		API: APIConfig{
			Timeouts: APITimeoutConfig{
				Read:  30,
				Write: 45,
				Idle:  60,
			},
		},
		Collector: CollectorConfig{HealthInterval: 15},
	}

	if got := cfg.GetReadTimeout().Seconds(); got != 30 {
		t.Errorf("GetReadTimeout() = %v, want 30", got)
	}
	if got := cfg.GetWriteTimeout().Seconds(); got != 45 {
		t.Errorf("GetWriteTimeout() = %v, want 45", got)
	}
	if got := cfg.GetIdleTimeout().Seconds(); got != 60 {
		t.Errorf("GetIdleTimeout() = %v, want 60", got)
	}
	if got := cfg.HealthInterval(); got != 15*time.Second {
		t.Errorf("HealthInterval() = %v, want 15s", got)
	}
}

func TestApplyEnvOverrides(t *testing.T) {
	cfg := defaultConfig()

	t.Setenv("SOLARLOG_DATABASE_PATH", "/custom/path.db")
	t.Setenv("SOLARLOG_MQTT_HOST", "mqtt.example.com")
	t.Setenv("SOLARLOG_MQTT_USERNAME", "testuser")
	t.Setenv("SOLARLOG_MQTT_PASSWORD", "testpass")
	t.Setenv("SOLARLOG_API_HOST", "192.168.1.1")
	t.Setenv("SOLARLOG_INFLUXDB_TOKEN", "secret-token")
	t.Setenv("SOLARLOG_LOG_LEVEL", "debug")

	applyEnvOverrides(cfg)

	if cfg.Database.Path != "/custom/path.db" {
		t.Errorf("Database.Path = %q, want %q", cfg.Database.Path, "/custom/path.db")
	}
	if cfg.MQTT.Broker.Host != "mqtt.example.com" {
		t.Errorf("MQTT.Broker.Host = %q, want %q", cfg.MQTT.Broker.Host, "mqtt.example.com")
	}
	if cfg.MQTT.Auth.Username != "testuser" {
		t.Errorf("MQTT.Auth.Username = %q, want %q", cfg.MQTT.Auth.Username, "testuser")
	}
	if cfg.MQTT.Auth.Password != "testpass" {
		t.Errorf("MQTT.Auth.Password = %q, want %q", cfg.MQTT.Auth.Password, "testpass")
	}
	if cfg.API.Host != "192.168.1.1" {
		t.Errorf("API.Host = %q, want %q", cfg.API.Host, "192.168.1.1")
	}
	if cfg.InfluxDB.Token != "secret-token" {
		t.Errorf("InfluxDB.Token = %q, want %q", cfg.InfluxDB.Token, "secret-token")
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("Logging.Level = %q, want debug", cfg.Logging.Level)
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := defaultConfig()

	if cfg.Site.ID == "" {
		t.Error("defaultConfig should have non-empty Site.ID")
	}
	if cfg.Database.Path == "" {
		t.Error("defaultConfig should have non-empty Database.Path")
	}
	if cfg.MQTT.Enabled {
		t.Error("defaultConfig should leave MQTT disabled")
	}
	if cfg.MQTT.TopicPrefix != "solarlog" {
		t.Errorf("defaultConfig MQTT.TopicPrefix = %q, want solarlog", cfg.MQTT.TopicPrefix)
	}
	if cfg.Modbus.RetryAttempts != 3 || cfg.Modbus.ConnectRetryDelayMS != 500 || cfg.Modbus.ReadRetryDelayMS != 300 {
		t.Errorf("defaultConfig Modbus = %+v", cfg.Modbus)
	}
	if cfg.API.Port != 8080 {
		t.Errorf("defaultConfig API.Port = %d, want 8080", cfg.API.Port)
	}
}
