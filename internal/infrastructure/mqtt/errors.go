package mqtt

import "errors"

// Errors returned by Client. Wrapped errors keep the paho cause.
var (
	// ErrNotConnected means the broker is currently unreachable. Telemetry
	// published meanwhile is dropped; polling is unaffected.
	ErrNotConnected = errors.New("mqtt: not connected to broker")

	// ErrConnectionFailed is returned by Connect when the broker does not
	// accept the first connection in time.
	ErrConnectionFailed = errors.New("mqtt: broker connection failed")

	ErrPublishFailed   = errors.New("mqtt: publish failed")
	ErrSubscribeFailed = errors.New("mqtt: subscribe failed")

	// ErrInvalidMessage covers an empty topic, a QoS above 2 and a payload
	// over the size limit. Nothing is sent to the broker.
	ErrInvalidMessage = errors.New("mqtt: invalid message")
)
