package measurement

import "errors"

var (
	// ErrStorage wraps failures of the measurements table.
	ErrStorage = errors.New("measurement: storage error")

	// ErrInvalidDevice is returned when appending a measurement whose device
	// id is outside [1,255].
	ErrInvalidDevice = errors.New("measurement: invalid device id")
)
