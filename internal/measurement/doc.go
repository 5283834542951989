// Package measurement is the collector's time-series store.
//
// Every successful device read appends one row to the measurements table.
// Rows are never updated; they leave the table only through retention
// pruning or an explicit purge. The polling scheduler is the single writer
// and any number of API handlers read concurrently; the database runs in
// WAL mode so neither side waits on the other for long.
//
// Timestamps are stored as "YYYY-MM-DD HH:MM:SS.ffffff" in the site
// timezone. The format sorts lexicographically in time order, so day ranges
// are plain string comparisons against "YYYY-MM-DD" bounds.
//
// Read methods return empty, non-nil results alongside any error so callers
// can render something even when storage misbehaves.
package measurement
