// Package api implements the HTTP REST API and WebSocket live feed for the
// solar collector.
//
// This package provides:
//   - Read endpoints over stored measurements (latest, windows, statistics, reports)
//   - Settings listing and validated updates
//   - Measurement purge and retention pruning
//   - A WebSocket hub that relays collector events in real time
//   - Middleware stack (request ID, logging, recovery, CORS, body limit)
//
// # Architecture
//
// The API server reads from the same SQLite file the polling loop writes to.
// It never talks to inverters directly. Settings written here are picked up
// by the scheduler on its next reload, and live events reach WebSocket
// clients because the Hub is registered as a collector.Observer.
//
// # Graceful Degradation
//
// MQTT and the collector are optional dependencies. Without them the
// metrics endpoint reports them as disconnected or absent and every
// database-backed endpoint keeps working.
package api
