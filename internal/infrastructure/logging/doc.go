// Package logging provides structured logging for the collector.
//
// It wraps log/slog with:
//
//   - JSON output for production and text output for development
//   - Default fields (service=solarlog, version) on every record
//   - Level filtering (debug, info, warn, error)
//
// Configuration comes from the logging section of config.yaml, and
// SOLARLOG_LOG_LEVEL overrides the level:
//
//	logging:
//	  level: "info"      # debug, info, warn, error
//	  format: "json"     # json, text
//	  output: "stdout"   # stdout, stderr
//
// Usage:
//
//	logger := logging.New(cfg.Logging, version)
//	logger.Info("collector started", "devices", "[1, 2, 3]")
//	logger.Component("api").Error("request failed", "error", err)
//
// Never log the MQTT password or the InfluxDB token.
package logging
