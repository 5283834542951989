// Package config loads and validates the collector's bootstrap configuration.
//
// This package manages:
//   - Loading configuration from a YAML file
//   - Overriding selected values with SOLARLOG_* environment variables
//   - Validation, reporting every problem in one error
//
// Secrets (MQTT password, InfluxDB token) should come from the environment
// rather than the file.
//
// Polling parameters are deliberately absent: they are operator settings
// stored in the database and reloaded while the collector runs.
//
// Usage:
//
//	cfg, err := config.Load("configs/config.yaml")
//	if err != nil {
//	    return err
//	}
//	fmt.Println(cfg.Site.Name)
package config
