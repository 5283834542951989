package api

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/nerrad567/solarlog-collector/internal/audit"
	"github.com/nerrad567/solarlog-collector/internal/collector"
	"github.com/nerrad567/solarlog-collector/internal/infrastructure/config"
	"github.com/nerrad567/solarlog-collector/internal/infrastructure/logging"
	"github.com/nerrad567/solarlog-collector/internal/measurement"
	"github.com/nerrad567/solarlog-collector/internal/settings"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight requests
// to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// MeasurementStore is the read and maintenance surface of the time-series store.
type MeasurementStore interface {
	Location() *time.Location
	ParseDay(v string) (time.Time, error)
	LatestPerDevice(ctx context.Context) ([]measurement.Measurement, error)
	RecentWindow(ctx context.Context, deviceID, limit int) ([]measurement.Measurement, error)
	RangeAverages(ctx context.Context, start, end time.Time, deviceID int) (measurement.Averages, error)
	DailyProductionEstimate(ctx context.Context, date time.Time, refresh time.Duration, deviceID int) (measurement.Production, error)
	FaultCounts(ctx context.Context, start, end time.Time, deviceID int) (measurement.FaultCounts, error)
	DailyReport(ctx context.Context, date time.Time, refresh time.Duration, deviceIDs []int) ([]measurement.DeviceReport, error)
	PurgeAll(ctx context.Context) (int64, error)
	PruneOlderThan(ctx context.Context, days int) (int64, error)
}

// SettingsStore lists and updates persisted settings.
type SettingsStore interface {
	List(ctx context.Context) ([]settings.Setting, error)
	Write(ctx context.Context, key, value string) error
	LoadSnapshot(ctx context.Context) (settings.Snapshot, []error)
}

// CollectorStatus exposes the running scheduler's view of the world.
type CollectorStatus interface {
	Snapshot() settings.Snapshot
	Stats() collector.Stats
}

// MQTTStatus reports broker connectivity.
type MQTTStatus interface {
	IsConnected() bool
	Reconnects() uint64
}

// InfluxStatus reports the state of the InfluxDB mirror.
type InfluxStatus interface {
	IsConnected() bool
	WriteErrors() uint64
}

// DBStatsProvider reports connection pool statistics.
type DBStatsProvider interface {
	Stats() sql.DBStats
}

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config       config.APIConfig
	WS           config.WebSocketConfig
	Logger       *logging.Logger
	Measurements MeasurementStore
	Settings     SettingsStore
	Audit        audit.Repository
	Collector    CollectorStatus // optional
	MQTT         MQTTStatus      // optional
	Influx       InfluxStatus    // optional
	DB           DBStatsProvider // optional
	ExternalHub  *Hub            // If set, the server uses this hub instead of creating its own
	Version      string
}

// Server is the HTTP API server for the collector.
//
// It manages the HTTP listener, routes, middleware, and WebSocket hub.
// The server is created with New() and started with Start().
type Server struct {
	cfg          config.APIConfig
	wsCfg        config.WebSocketConfig
	logger       *logging.Logger
	measurements MeasurementStore
	settings     SettingsStore
	auditRepo    audit.Repository
	auditCh      chan *audit.AuditLog
	collector    CollectorStatus
	mqtt         MQTTStatus
	influx       InfluxStatus
	db           DBStatsProvider
	version      string
	startTime    time.Time
	server       *http.Server
	hub          *Hub
	externalHub  bool               // true if hub was injected externally
	cancel       context.CancelFunc // cancels background goroutines on Close()
}

// New creates a new API server with the given dependencies.
//
// The server is not started until Start() is called.
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.Measurements == nil {
		return nil, fmt.Errorf("measurement store is required")
	}
	if deps.Settings == nil {
		return nil, fmt.Errorf("settings store is required")
	}

	s := &Server{
		cfg:          deps.Config,
		wsCfg:        deps.WS,
		logger:       deps.Logger,
		measurements: deps.Measurements,
		settings:     deps.Settings,
		auditRepo:    deps.Audit,
		collector:    deps.Collector,
		mqtt:         deps.MQTT,
		influx:       deps.Influx,
		db:           deps.DB,
		version:      deps.Version,
		startTime:    time.Now(),
	}
	if deps.Audit != nil {
		s.auditCh = make(chan *audit.AuditLog, auditChanSize)
	}

	// The hub must exist before Start when the scheduler registers it as an
	// observer during process wiring.
	if deps.ExternalHub != nil {
		s.hub = deps.ExternalHub
		s.externalHub = true
	} else {
		s.hub = NewHub(deps.WS, deps.Logger)
	}

	return s, nil
}

// Hub returns the server's WebSocket hub.
func (s *Server) Hub() *Hub {
	return s.hub
}

// Start begins listening for HTTP connections.
//
// It starts the WebSocket hub and the audit writer, then launches the HTTP
// listener in a background goroutine. The server can be stopped with Close().
func (s *Server) Start(ctx context.Context) error {
	var srvCtx context.Context
	srvCtx, s.cancel = context.WithCancel(ctx)

	if !s.externalHub {
		go s.hub.Run(srvCtx)
	}
	if s.auditCh != nil {
		go s.drainAuditLog(srvCtx)
	}

	s.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port),
		Handler:           s.buildRouter(),
		ReadTimeout:       time.Duration(s.cfg.Timeouts.Read) * time.Second,
		ReadHeaderTimeout: time.Duration(s.cfg.Timeouts.Read) * time.Second,
		WriteTimeout:      time.Duration(s.cfg.Timeouts.Write) * time.Second,
		IdleTimeout:       time.Duration(s.cfg.Timeouts.Idle) * time.Second,
	}

	go func() {
		s.logger.Info("API server starting", "address", s.server.Addr)
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server error", "error", err)
		}
	}()

	return nil
}

// Close gracefully shuts down the API server.
//
// It waits up to 10 seconds for in-flight requests to complete,
// then forcefully closes remaining connections.
func (s *Server) Close() error {
	if s.server == nil {
		return nil
	}

	if s.cancel != nil {
		s.cancel()
	}

	ctx, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
	defer cancel()

	s.logger.Info("API server shutting down")
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down API server: %w", err)
	}
	return nil
}

// HealthCheck verifies the API server is running and responsive.
func (s *Server) HealthCheck(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("api health check: %w", ctx.Err())
	default:
	}

	if s.server == nil {
		return fmt.Errorf("api server not started")
	}

	return nil
}
