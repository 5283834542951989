package settings

import "errors"

var (
	// ErrStorage wraps failures of the underlying settings table.
	ErrStorage = errors.New("settings: storage error")

	// ErrInvalidKey is returned when writing a setting with an empty key.
	ErrInvalidKey = errors.New("settings: invalid key")

	// ErrInvalidValue marks a stored value that could not be interpreted.
	// The snapshot falls back to the default for that key.
	ErrInvalidValue = errors.New("settings: invalid value")
)
