// Package influxdb mirrors collector samples into InfluxDB v2.
//
// It wraps the official influxdb-client-go v2 library with connection
// management, non-blocking batched writes and health monitoring. SQLite
// stays the system of record; InfluxDB is an optional second sink for
// long-horizon dashboards.
//
// # Points
//
//	inverter,site=<site>,device_id=<id> power=..,voltage=..,current=..,temperature=..,fault_a=..i,fault_b=..i,degraded=false
//	collector_cycle,site=<site> cycle=..i,duration_ms=..i,ok=..i,unreachable=..i,faults=..i
//
// # Usage
//
//	client, err := influxdb.Connect(cfg.InfluxDB)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	client.WriteReading(influxdb.Reading{DeviceID: 1, Power: 1500})
//
// Writes are batched according to batch_size and flush_interval. Write
// failures are delivered asynchronously to the SetOnError callback.
package influxdb
