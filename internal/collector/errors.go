package collector

import "errors"

// Domain-specific errors for the collector.
var (
	// ErrInvalidCommand is returned when a settings command cannot be decoded
	// or carries an unacceptable key or value.
	ErrInvalidCommand = errors.New("collector: invalid command")

	// ErrCommandFailed is returned when a valid settings command could not be
	// persisted.
	ErrCommandFailed = errors.New("collector: command failed")
)
