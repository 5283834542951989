// Package settings stores the operator-editable polling parameters and turns
// them into an immutable Snapshot.
//
// Values live in the SQLite settings table as strings. The store never lets
// a storage fault reach the scheduler: ReadAll falls back to Defaults, and
// ParseSnapshot replaces any malformed value with its default while
// reporting a diagnostic.
//
// A Snapshot is built once per reload point and handed to the scheduler and
// the device reader by value. Nothing mutates it afterwards; a new reload
// produces a new Snapshot.
package settings
