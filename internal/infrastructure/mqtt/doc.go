// Package mqtt provides MQTT client connectivity for the solarlog collector.
//
// This package manages:
//   - Connection to the broker with auto-reconnect
//   - Message publishing with QoS guarantees
//   - Topic subscriptions with wildcard support
//   - Last Will and Testament (LWT) for offline detection
//
// # Topics
//
// Every topic lives under a configurable prefix (default "solarlog"):
//
//	<prefix>/device/{id}/state     retained latest measurement
//	<prefix>/device/{id}/status    retained read health (ok/degraded/failed)
//	<prefix>/collector/cycle       one summary per polling cycle
//	<prefix>/health/collector      periodic heartbeat
//	<prefix>/command/settings      inbound setting changes
//	<prefix>/system/status         online/offline (LWT)
//
// MQTT is optional. The collector runs without a broker and only publishes
// when mqtt.enabled is set.
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT, mqtt.Identity{SiteID: cfg.Site.ID, Version: version})
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	topic := client.Topics().DeviceState(3)
//	client.PublishJSON(topic, measurement, true)
//	client.SubscribeCommands(handler)
package mqtt
