package influxdb

import "errors"

var (
	// ErrDisabled is returned by Connect when influxdb.enabled is false.
	// Callers treat it as "no mirror", not as a startup failure.
	ErrDisabled = errors.New("influxdb: mirror disabled")

	// ErrConnectionFailed means the startup ping failed or the server
	// reported itself unhealthy.
	ErrConnectionFailed = errors.New("influxdb: connection failed")

	// ErrNotConnected is returned by HealthCheck after Close.
	ErrNotConnected = errors.New("influxdb: client closed")
)
