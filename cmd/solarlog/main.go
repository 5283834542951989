// SolarLog collector - Modbus solar inverter telemetry logger
//
// This is the main entry point for the collector. It polls a fleet of
// inverters over one Modbus TCP gateway, stores every sample in SQLite and
// serves the stored history over HTTP. MQTT and InfluxDB mirroring are
// optional.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"

	_ "github.com/nerrad567/solarlog-collector/migrations"

	"github.com/nerrad567/solarlog-collector/internal/api"
	"github.com/nerrad567/solarlog-collector/internal/audit"
	"github.com/nerrad567/solarlog-collector/internal/collector"
	"github.com/nerrad567/solarlog-collector/internal/infrastructure/config"
	"github.com/nerrad567/solarlog-collector/internal/infrastructure/database"
	"github.com/nerrad567/solarlog-collector/internal/infrastructure/influxdb"
	"github.com/nerrad567/solarlog-collector/internal/infrastructure/logging"
	"github.com/nerrad567/solarlog-collector/internal/infrastructure/mqtt"
	"github.com/nerrad567/solarlog-collector/internal/inverter"
	"github.com/nerrad567/solarlog-collector/internal/measurement"
	"github.com/nerrad567/solarlog-collector/internal/settings"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"     // Semantic version (e.g., "1.0.0")
	commit  = "unknown" // Git commit hash
	date    = "unknown" // Build date
)

// Default configuration file path
const defaultConfigPath = "configs/config.yaml"

// configEnv names the environment variable holding the config path.
const configEnv = "SOLARLOG_CONFIG"

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// options are the parsed command-line flags.
type options struct {
	configPath  string
	showVersion bool
}

// parseFlags parses args (without the program name).
func parseFlags(args []string) (options, error) {
	var opts options
	fs := pflag.NewFlagSet("solarlog", pflag.ContinueOnError)
	fs.StringVarP(&opts.configPath, "config", "c", "", "path to config file (default $"+configEnv+" or "+defaultConfigPath+")")
	fs.BoolVarP(&opts.showVersion, "version", "v", false, "print version information and exit")
	if err := fs.Parse(args); err != nil {
		return options{}, fmt.Errorf("parsing flags: %w", err)
	}
	return opts, nil
}

// run is the actual application logic, separated from main for testability.
// It returns nil on clean shutdown.
func run(ctx context.Context, args []string, stdout io.Writer) error {
	opts, err := parseFlags(args)
	if err != nil {
		return err
	}
	if opts.showVersion {
		fmt.Fprintf(stdout, "solarlog %s (commit %s, built %s)\n", version, commit, date)
		return nil
	}

	// Use default logger until config is loaded
	log := logging.Default()
	log.Info("starting SolarLog collector",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	cfg, configPath, err := loadConfig(opts.configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log.Info("configuration loaded", "path", configPath)

	log = logging.New(cfg.Logging, version)
	log.Info("logger initialised",
		"level", cfg.Logging.Level,
		"format", cfg.Logging.Format,
	)

	loc, err := time.LoadLocation(cfg.Site.Timezone)
	if err != nil {
		return fmt.Errorf("loading site timezone: %w", err)
	}

	db, err := database.Open(ctx, database.Config{
		Path:         cfg.Database.Path,
		WALMode:      cfg.Database.WALMode,
		BusyTimeout:  cfg.Database.BusyTimeout,
		MaxOpenConns: cfg.Database.MaxOpenConns,
	})
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer func() {
		log.Info("closing database")
		if closeErr := db.Close(); closeErr != nil {
			log.Error("error closing database", "error", closeErr)
		}
	}()
	log.Info("database connected", "path", cfg.Database.Path)

	if migrateErr := db.Migrate(ctx); migrateErr != nil {
		return fmt.Errorf("running migrations: %w", migrateErr)
	}
	if v, verr := db.SchemaVersion(ctx); verr == nil {
		log.Info("database migrations complete", "schema_version", v)
	}

	settingsStore := settings.NewStore(db.DB)
	settingsStore.SetLogger(log)
	measurements := measurement.NewStore(db.DB, loc)
	auditRepo := audit.NewSQLiteRepository(db.DB)

	observers := []collector.Observer{collector.NewLogObserver(log)}

	var mqttClient *mqtt.Client
	if cfg.MQTT.Enabled {
		mqttClient, err = mqtt.Connect(cfg.MQTT, mqtt.Identity{SiteID: cfg.Site.ID, Version: version})
		if err != nil {
			return fmt.Errorf("connecting to MQTT: %w", err)
		}
		defer func() {
			log.Info("disconnecting from MQTT")
			if closeErr := mqttClient.Close(); closeErr != nil {
				log.Error("error closing MQTT", "error", closeErr)
			}
		}()
		mqttClient.SetLogger(log)
		mqttClient.SetOnConnect(func() {
			log.Info("MQTT reconnected")
		})
		mqttClient.SetOnDisconnect(func(err error) {
			log.Warn("MQTT disconnected", "error", err)
		})
		log.Info("MQTT connected",
			"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
			"client_id", cfg.MQTT.Broker.ClientID,
		)
		observers = append(observers, collector.NewMQTTObserver(mqttClient, mqttClient.Topics(), log))
	} else {
		log.Info("MQTT disabled")
	}

	var influxClient *influxdb.Client
	if cfg.InfluxDB.Enabled {
		influxClient, err = influxdb.Connect(cfg.InfluxDB)
		if err != nil {
			return fmt.Errorf("connecting to InfluxDB: %w", err)
		}
		defer func() {
			log.Info("closing InfluxDB connection")
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
		influxClient.SetOnError(func(err error) {
			log.Error("InfluxDB write error", "error", err)
		})
		log.Info("InfluxDB connected",
			"url", cfg.InfluxDB.URL,
			"org", cfg.InfluxDB.Org,
			"bucket", cfg.InfluxDB.Bucket,
		)
		observers = append(observers, collector.NewInfluxObserver(influxClient, cfg.Site.ID))
	} else {
		log.Info("InfluxDB disabled")
	}

	if err := healthCheck(ctx, db, mqttClient, influxClient); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	log.Info("all health checks passed")

	// The hub exists before the scheduler so it can receive its events.
	var hub *api.Hub
	if cfg.API.Enabled {
		hub = api.NewHub(cfg.WebSocket, log)
		observers = append(observers, hub)
	}

	conn := inverter.NewConn(inverter.DialTCP, settings.DefaultSnapshot().Endpoint,
		time.Duration(cfg.Modbus.TimeoutMS)*time.Millisecond)
	reader := inverter.NewReader(conn, inverter.Config{
		RetryAttempts:     cfg.Modbus.RetryAttempts,
		ConnectRetryDelay: time.Duration(cfg.Modbus.ConnectRetryDelayMS) * time.Millisecond,
		ReadRetryDelay:    time.Duration(cfg.Modbus.ReadRetryDelayMS) * time.Millisecond,
		RegisterPause:     time.Duration(cfg.Modbus.RegisterPauseMS) * time.Millisecond,
	})
	reader.SetLogger(log)

	scheduler := collector.NewScheduler(
		collector.Config{
			ReloadEvery: cfg.Collector.ReloadEvery,
			PruneEvery:  cfg.Collector.PruneEvery,
		},
		collector.Deps{
			Settings: settingsStore,
			Store:    measurements,
			Reader:   reader,
			Audit:    auditRepo,
			Observer: collector.NewMultiObserver(log, observers...),
			Logger:   log,
		},
	)

	var server *api.Server
	if cfg.API.Enabled {
		server, err = api.New(api.Deps{
			Config:       cfg.API,
			WS:           cfg.WebSocket,
			Logger:       log,
			Measurements: measurements,
			Settings:     settingsStore,
			Audit:        auditRepo,
			Collector:    scheduler,
			MQTT:         mqttStatus(mqttClient),
			Influx:       influxStatus(influxClient),
			DB:           db,
			ExternalHub:  hub,
			Version:      version,
		})
		if err != nil {
			return fmt.Errorf("creating API server: %w", err)
		}
	} else {
		log.Info("API server disabled")
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(runCtx)

	g.Go(func() error {
		return scheduler.Run(gctx)
	})

	if mqttClient != nil {
		commands := collector.NewSettingsCommandHandler(settingsStore, auditRepo, log)
		if subErr := mqttClient.SubscribeCommands(commands.MessageHandler(gctx)); subErr != nil {
			log.Warn("settings commands unavailable", "topic", mqttClient.Topics().CommandSettings(), "error", subErr)
		} else {
			log.Info("listening for settings commands", "topics", mqttClient.Subscriptions())
		}

		reporter := collector.NewHealthReporter(collector.HealthReporterConfig{
			SiteID:    cfg.Site.ID,
			Version:   version,
			Interval:  time.Duration(cfg.Collector.HealthInterval) * time.Second,
			Publisher: mqttClient,
			Stats:     scheduler,
			Topics:    mqttClient.Topics(),
		})
		reporter.SetLogger(log)
		reporter.Start(gctx)
		g.Go(func() error {
			<-gctx.Done()
			reporter.Stop()
			return nil
		})
	}

	if server != nil {
		g.Go(func() error {
			hub.Run(gctx)
			return nil
		})
		if startErr := server.Start(gctx); startErr != nil {
			cancel()
			_ = g.Wait()
			return fmt.Errorf("starting API server: %w", startErr)
		}
		g.Go(func() error {
			<-gctx.Done()
			return server.Close()
		})
	}

	log.Info("initialisation complete, waiting for shutdown signal")

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("collector stopped: %w", err)
	}

	// Deferred Close() calls run in reverse order:
	// 1. InfluxDB (if enabled)
	// 2. MQTT (if enabled)
	// 3. Database

	log.Info("SolarLog collector stopped")
	return nil
}

// loadConfig resolves the config path from the flag, then SOLARLOG_CONFIG,
// then the default location. A missing file at the default location falls
// back to built-in defaults; an explicitly named file must exist.
func loadConfig(flagPath string) (*config.Config, string, error) {
	path := flagPath
	if path == "" {
		path = os.Getenv(configEnv)
	}
	if path != "" {
		cfg, err := config.Load(path)
		return cfg, path, err
	}

	if _, err := os.Stat(defaultConfigPath); errors.Is(err, os.ErrNotExist) {
		cfg, defErr := config.Default()
		return cfg, "(built-in defaults)", defErr
	}
	cfg, err := config.Load(defaultConfigPath)
	return cfg, defaultConfigPath, err
}

// mqttStatus converts an optional client into the API's status interface,
// keeping a nil client a nil interface.
func mqttStatus(c *mqtt.Client) api.MQTTStatus {
	if c == nil {
		return nil
	}
	return c
}

// influxStatus is the InfluxDB counterpart of mqttStatus.
func influxStatus(c *influxdb.Client) api.InfluxStatus {
	if c == nil {
		return nil
	}
	return c
}

// healthCheck verifies all infrastructure connections are healthy.
// mqttClient and influxClient may be nil when disabled.
func healthCheck(ctx context.Context, db *database.DB, mqttClient *mqtt.Client, influxClient *influxdb.Client) error {
	if err := db.HealthCheck(ctx); err != nil {
		return fmt.Errorf("database: %w", err)
	}

	if mqttClient != nil {
		if err := mqttClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("mqtt: %w", err)
		}
	}

	if influxClient != nil {
		if err := influxClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("influxdb: %w", err)
		}
	}

	return nil
}
