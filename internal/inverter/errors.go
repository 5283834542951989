package inverter

import "errors"

var (
	// ErrTransport marks a connect or analog read failure that exhausted
	// its retries. The device is skipped for the current cycle.
	ErrTransport = errors.New("inverter: transport error")

	// ErrNotConnected is returned by Conn.Read when the link is not up.
	ErrNotConnected = errors.New("inverter: not connected")

	// ErrDegradedRead marks a fault group that could not be read.
	// It is carried inside a FaultReading and never fails a round.
	ErrDegradedRead = errors.New("inverter: degraded fault read")

	// ErrShortResponse is returned when a device answers with fewer
	// registers than requested.
	ErrShortResponse = errors.New("inverter: short response")

	// ErrInvalidDevice is returned for device ids outside [1,255].
	ErrInvalidDevice = errors.New("inverter: invalid device id")
)
