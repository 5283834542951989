package api

import (
	"net/http"
	"runtime"
	"time"

	"github.com/nerrad567/solarlog-collector/internal/collector"
)

// SystemMetrics represents the complete system metrics response.
type SystemMetrics struct {
	Timestamp     string           `json:"timestamp"`
	Version       string           `json:"version"`
	UptimeSeconds int64            `json:"uptime_seconds"`
	Runtime       RuntimeMetrics   `json:"runtime"`
	WebSocket     WSMetrics        `json:"websocket"`
	MQTT          MQTTMetrics      `json:"mqtt"`
	InfluxDB      InfluxMetrics    `json:"influxdb"`
	Collector     *collector.Stats `json:"collector,omitempty"`
	Database      DatabaseMetrics  `json:"database"`
}

// RuntimeMetrics contains Go runtime statistics.
type RuntimeMetrics struct {
	Goroutines    int     `json:"goroutines"`
	MemoryAllocMB float64 `json:"memory_alloc_mb"`
	MemoryTotalMB float64 `json:"memory_total_mb"`
	NumGC         uint32  `json:"num_gc"`
}

// WSMetrics contains WebSocket hub statistics.
type WSMetrics struct {
	ConnectedClients int    `json:"connected_clients"`
	DroppedEvents    uint64 `json:"dropped_events"`
}

// MQTTMetrics contains MQTT client statistics.
type MQTTMetrics struct {
	Enabled    bool   `json:"enabled"`
	Connected  bool   `json:"connected"`
	Reconnects uint64 `json:"reconnects"`
}

// InfluxMetrics contains InfluxDB mirror statistics.
type InfluxMetrics struct {
	Enabled     bool   `json:"enabled"`
	Connected   bool   `json:"connected"`
	WriteErrors uint64 `json:"write_errors"`
}

// DatabaseMetrics contains database connection pool statistics.
type DatabaseMetrics struct {
	OpenConnections int   `json:"open_connections"`
	InUse           int   `json:"in_use"`
	Idle            int   `json:"idle"`
	WaitCount       int64 `json:"wait_count"`
}

// handleMetrics returns comprehensive system metrics.
func (s *Server) handleMetrics(w http.ResponseWriter, _ *http.Request) {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	metrics := SystemMetrics{
		Timestamp:     time.Now().UTC().Format(time.RFC3339),
		Version:       s.version,
		UptimeSeconds: int64(time.Since(s.startTime).Seconds()),
		Runtime: RuntimeMetrics{
			Goroutines:    runtime.NumGoroutine(),
			MemoryAllocMB: float64(memStats.Alloc) / 1024 / 1024,
			MemoryTotalMB: float64(memStats.TotalAlloc) / 1024 / 1024,
			NumGC:         memStats.NumGC,
		},
		WebSocket: WSMetrics{
			ConnectedClients: s.hub.ClientCount(),
			DroppedEvents:    s.hub.Dropped(),
		},
	}

	if s.mqtt != nil {
		metrics.MQTT = MQTTMetrics{
			Enabled:    true,
			Connected:  s.mqtt.IsConnected(),
			Reconnects: s.mqtt.Reconnects(),
		}
	}

	if s.influx != nil {
		metrics.InfluxDB = InfluxMetrics{
			Enabled:     true,
			Connected:   s.influx.IsConnected(),
			WriteErrors: s.influx.WriteErrors(),
		}
	}

	if s.collector != nil {
		stats := s.collector.Stats()
		metrics.Collector = &stats
	}

	if s.db != nil {
		dbStats := s.db.Stats()
		metrics.Database = DatabaseMetrics{
			OpenConnections: dbStats.OpenConnections,
			InUse:           dbStats.InUse,
			Idle:            dbStats.Idle,
			WaitCount:       dbStats.WaitCount,
		}
	}

	writeJSON(w, http.StatusOK, metrics)
}
