// Package collector runs the polling loop of the solarlog collector.
//
// A single Scheduler goroutine owns the inverter link and is the only writer
// of measurements. Each cycle it reads every configured device in ascending
// id order, appends successful samples to the time-series store and reports
// the outcome to an Observer. Every ReloadEvery cycles it reloads the settings
// snapshot; every PruneEvery cycles it applies the retention window.
//
// Observers fan the same events out to MQTT (MQTTObserver), InfluxDB
// (InfluxObserver) and the API's WebSocket hub. A panicking observer is
// recovered and logged; it never stops the loop.
//
// The HealthReporter publishes a retained heartbeat to
// <prefix>/health/collector and the SettingsCommandHandler applies setting
// changes received on <prefix>/command/settings.
package collector
