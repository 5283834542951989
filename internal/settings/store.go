package settings

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Logger is the subset of logging.Logger the store uses.
type Logger interface {
	Warn(msg string, args ...any)
}

type nopLogger struct{}

func (nopLogger) Warn(string, ...any) {}

// Store reads and writes the settings table.
//
// Safe for concurrent use: every method is a single statement.
type Store struct {
	db     *sql.DB
	logger Logger
	now    func() time.Time
}

// NewStore creates a settings store on an open, migrated database.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db, logger: nopLogger{}, now: time.Now}
}

// SetLogger sets the logger used for ReadAll fallbacks.
func (s *Store) SetLogger(l Logger) {
	if l != nil {
		s.logger = l
	}
}

// Read returns the value stored under key.
//
// A missing key yields def and a nil error. A storage fault yields def and
// an error wrapping ErrStorage.
func (s *Store) Read(ctx context.Context, key, def string) (string, error) {
	var value string
	err := s.db.QueryRowContext(ctx, "SELECT value FROM settings WHERE key = ?", key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return def, nil
	}
	if err != nil {
		return def, fmt.Errorf("%w: reading %s: %v", ErrStorage, key, err)
	}
	return value, nil
}

// Write upserts key with value and refreshes updated_at.
// An existing description is kept.
func (s *Store) Write(ctx context.Context, key, value string) error {
	if strings.TrimSpace(key) == "" {
		return ErrInvalidKey
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO settings (key, value, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, value, s.now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("%w: writing %s: %v", ErrStorage, key, err)
	}
	return nil
}

// ReadAll returns every stored setting. It never fails: on any storage
// fault it logs a warning and returns Defaults.
func (s *Store) ReadAll(ctx context.Context) Settings {
	list, err := s.List(ctx)
	if err != nil {
		s.logger.Warn("settings unavailable, using defaults", "error", err)
		return Defaults()
	}

	out := make(Settings, len(list))
	for _, st := range list {
		out[st.Key] = st
	}
	return out
}

// List returns every stored setting ordered by key.
func (s *Store) List(ctx context.Context) ([]Setting, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT key, value, description, updated_at FROM settings ORDER BY key",
	)
	if err != nil {
		return []Setting{}, fmt.Errorf("%w: listing settings: %v", ErrStorage, err)
	}
	defer rows.Close()

	list := []Setting{}
	for rows.Next() {
		var st Setting
		var description sql.NullString
		var updatedAt string
		if err := rows.Scan(&st.Key, &st.Value, &description, &updatedAt); err != nil {
			return []Setting{}, fmt.Errorf("%w: scanning setting: %v", ErrStorage, err)
		}
		st.Description = description.String
		st.UpdatedAt = parseUpdatedAt(updatedAt)
		list = append(list, st)
	}
	if err := rows.Err(); err != nil {
		return []Setting{}, fmt.Errorf("%w: iterating settings: %v", ErrStorage, err)
	}
	return list, nil
}

// LoadSnapshot reads all settings and parses them into a Snapshot.
//
// When the table cannot be read the snapshot is built from Defaults and the
// first diagnostic wraps ErrStorage, so callers can tell a fallback from a
// stored configuration.
func (s *Store) LoadSnapshot(ctx context.Context) (Snapshot, []error) {
	list, err := s.List(ctx)
	if err != nil {
		s.logger.Warn("settings unavailable, using defaults", "error", err)
		snap, errs := ParseSnapshot(Defaults())
		return snap, append([]error{err}, errs...)
	}

	out := make(Settings, len(list))
	for _, st := range list {
		out[st.Key] = st
	}
	return ParseSnapshot(out)
}

// parseUpdatedAt accepts RFC3339 with or without fractional seconds.
// Unparseable values map to the zero time.
func parseUpdatedAt(v string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, v)
	if err != nil {
		return time.Time{}
	}
	return t
}
