package measurement

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/nerrad567/solarlog-collector/internal/decode"
)

const (
	// timestampLayout is the stored timestamp format (UTC, microseconds).
	// Fixed width keeps lexical order equal to time order.
	timestampLayout = "2006-01-02 15:04:05.000000"

	// dayLayout is the date format accepted for report days.
	dayLayout = "2006-01-02"

	secondsPerHour = 3600
	whPerKWh       = 1000
)

const selectColumns = "id, device_id, timestamp, power, voltage, current, temperature, fault_a, fault_b"

// Store persists measurements in SQLite.
type Store struct {
	db  *sql.DB
	loc *time.Location
	now func() time.Time
}

// NewStore creates a store on an open, migrated database. Timestamps are
// stored in UTC; loc is the site timezone used for day boundaries and for
// the timestamps handed back to callers. nil means time.Local.
func NewStore(db *sql.DB, loc *time.Location) *Store {
	if loc == nil {
		loc = time.Local
	}
	return &Store{db: db, loc: loc, now: time.Now}
}

// Location returns the site timezone used for day boundaries.
func (s *Store) Location() *time.Location {
	return s.loc
}

// Append inserts one measurement. A zero timestamp is replaced by now.
func (s *Store) Append(ctx context.Context, m Measurement) error {
	if m.DeviceID < decode.MinDeviceID || m.DeviceID > decode.MaxDeviceID {
		return fmt.Errorf("%w: %d", ErrInvalidDevice, m.DeviceID)
	}
	if m.Timestamp.IsZero() {
		m.Timestamp = s.now()
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO measurements (device_id, timestamp, power, voltage, current, temperature, fault_a, fault_b)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		m.DeviceID, s.formatTimestamp(m.Timestamp),
		m.Power, m.Voltage, m.Current, m.Temperature,
		int64(m.FaultA), int64(m.FaultB),
	)
	if err != nil {
		return fmt.Errorf("%w: inserting measurement for device %d: %v", ErrStorage, m.DeviceID, err)
	}
	return nil
}

// LatestPerDevice returns the most recent measurement of every device,
// ordered by device id.
func (s *Store) LatestPerDevice(ctx context.Context) ([]Measurement, error) {
	// SQLite fills bare columns from the row that holds MAX(timestamp).
	return s.query(ctx,
		`SELECT id, device_id, MAX(timestamp), power, voltage, current, temperature, fault_a, fault_b
		 FROM measurements
		 GROUP BY device_id
		 ORDER BY device_id`,
	)
}

// RecentWindow returns up to limit of the device's most recent measurements
// in ascending time order. A limit of zero or less yields an empty result.
func (s *Store) RecentWindow(ctx context.Context, deviceID, limit int) ([]Measurement, error) {
	if limit <= 0 {
		return []Measurement{}, nil
	}

	list, err := s.query(ctx,
		`SELECT `+selectColumns+`
		 FROM measurements
		 WHERE device_id = ?
		 ORDER BY timestamp DESC, id DESC
		 LIMIT ?`,
		deviceID, limit,
	)
	if err != nil {
		return list, err
	}

	for i, j := 0, len(list)-1; i < j; i, j = i+1, j-1 {
		list[i], list[j] = list[j], list[i]
	}
	return list, nil
}

// RangeAverages aggregates the analog channels over the whole days from
// start to end inclusive. deviceID AllDevices means every device.
func (s *Store) RangeAverages(ctx context.Context, start, end time.Time, deviceID int) (Averages, error) {
	where, args := s.rangeFilter(start, end, deviceID)

	var a Averages
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*),
		        COALESCE(AVG(power), 0), COALESCE(AVG(voltage), 0),
		        COALESCE(AVG(current), 0), COALESCE(AVG(temperature), 0),
		        COALESCE(MAX(power), 0), COALESCE(MIN(power), 0)
		 FROM measurements `+where, //nolint:gosec // WHERE built from parameterised conditions
		args...,
	).Scan(&a.Count, &a.AvgPower, &a.AvgVoltage, &a.AvgCurrent, &a.AvgTemperature, &a.MaxPower, &a.MinPower)
	if err != nil {
		return Averages{}, fmt.Errorf("%w: averaging measurements: %v", ErrStorage, err)
	}
	return a, nil
}

// DailyProductionEstimate estimates the energy produced on date, treating
// every sample as one refresh interval of operation.
func (s *Store) DailyProductionEstimate(ctx context.Context, date time.Time, refresh time.Duration, deviceID int) (Production, error) {
	avg, err := s.RangeAverages(ctx, date, date, deviceID)
	if err != nil {
		return Production{}, err
	}
	return estimateProduction(avg, refresh), nil
}

func estimateProduction(avg Averages, refresh time.Duration) Production {
	hours := float64(avg.Count) * refresh.Seconds() / secondsPerHour
	wh := avg.AvgPower * hours
	return Production{
		Samples:        avg.Count,
		AvgPower:       avg.AvgPower,
		OperatingHours: hours,
		EnergyWh:       wh,
		EnergyKWh:      wh / whPerKWh,
	}
}

// FaultCounts counts samples with a nonzero fault_a and fault_b over the
// whole days from start to end inclusive.
func (s *Store) FaultCounts(ctx context.Context, start, end time.Time, deviceID int) (FaultCounts, error) {
	where, args := s.rangeFilter(start, end, deviceID)

	var fc FaultCounts
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*),
		        COALESCE(SUM(CASE WHEN fault_a != 0 THEN 1 ELSE 0 END), 0),
		        COALESCE(SUM(CASE WHEN fault_b != 0 THEN 1 ELSE 0 END), 0)
		 FROM measurements `+where, //nolint:gosec // WHERE built from parameterised conditions
		args...,
	).Scan(&fc.TotalSamples, &fc.FaultA, &fc.FaultB)
	if err != nil {
		return FaultCounts{}, fmt.Errorf("%w: counting faults: %v", ErrStorage, err)
	}
	return fc, nil
}

// DailyReport builds one report line per device in deviceIDs that produced
// at least one sample on date.
func (s *Store) DailyReport(ctx context.Context, date time.Time, refresh time.Duration, deviceIDs []int) ([]DeviceReport, error) {
	reports := []DeviceReport{}
	for _, id := range deviceIDs {
		avg, err := s.RangeAverages(ctx, date, date, id)
		if err != nil {
			return []DeviceReport{}, err
		}
		if avg.Count == 0 {
			continue
		}
		faults, err := s.FaultCounts(ctx, date, date, id)
		if err != nil {
			return []DeviceReport{}, err
		}
		reports = append(reports, DeviceReport{
			DeviceID:   id,
			Production: estimateProduction(avg, refresh),
			Averages:   avg,
			Faults:     faults,
		})
	}
	return reports, nil
}

// Count returns the total number of stored measurements.
func (s *Store) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM measurements").Scan(&n); err != nil {
		return 0, fmt.Errorf("%w: counting measurements: %v", ErrStorage, err)
	}
	return n, nil
}

// PurgeAll deletes every measurement and reclaims the freed space.
func (s *Store) PurgeAll(ctx context.Context) (int64, error) {
	return s.deleteAndVacuum(ctx, "DELETE FROM measurements")
}

// PruneOlderThan deletes measurements older than now minus days. Zero or
// negative days means unlimited retention and deletes nothing.
//
// Only rows strictly older than the cutoff are touched, so appends running
// concurrently are never affected.
func (s *Store) PruneOlderThan(ctx context.Context, days int) (int64, error) {
	if days <= 0 {
		return 0, nil
	}
	cutoff := s.now().UTC().AddDate(0, 0, -days)
	return s.deleteAndVacuum(ctx, "DELETE FROM measurements WHERE timestamp < ?", s.formatTimestamp(cutoff))
}

func (s *Store) deleteAndVacuum(ctx context.Context, query string, args ...any) (int64, error) {
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("%w: deleting measurements: %v", ErrStorage, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("%w: checking rows affected: %v", ErrStorage, err)
	}
	if n == 0 {
		return 0, nil
	}
	if _, err := s.db.ExecContext(ctx, "VACUUM"); err != nil {
		return n, fmt.Errorf("%w: vacuum after deleting %d rows: %v", ErrStorage, n, err)
	}
	return n, nil
}

// rangeFilter builds the WHERE clause for [start day, end day] inclusive,
// expressed as >= local midnight of start and < local midnight of the day
// after end, both converted to stored UTC form.
func (s *Store) rangeFilter(start, end time.Time, deviceID int) (string, []any) {
	from := s.formatTimestamp(s.day(start))
	until := s.formatTimestamp(s.day(end).AddDate(0, 0, 1))

	where := "WHERE timestamp >= ? AND timestamp < ?"
	args := []any{from, until}
	if deviceID != AllDevices {
		where += " AND device_id = ?"
		args = append(args, deviceID)
	}
	return where, args
}

// day truncates t to midnight in the site timezone, keeping its calendar date.
func (s *Store) day(t time.Time) time.Time {
	y, m, d := t.In(s.loc).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, s.loc)
}

// ParseDay parses a YYYY-MM-DD date in the store's timezone.
func (s *Store) ParseDay(v string) (time.Time, error) {
	return time.ParseInLocation(dayLayout, v, s.loc)
}

func (s *Store) formatTimestamp(t time.Time) string {
	return t.UTC().Format(timestampLayout)
}

func (s *Store) query(ctx context.Context, query string, args ...any) ([]Measurement, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return []Measurement{}, fmt.Errorf("%w: querying measurements: %v", ErrStorage, err)
	}
	defer rows.Close()

	list := []Measurement{}
	for rows.Next() {
		var m Measurement
		var ts string
		var faultA, faultB int64
		if err := rows.Scan(&m.ID, &m.DeviceID, &ts, &m.Power, &m.Voltage, &m.Current, &m.Temperature, &faultA, &faultB); err != nil {
			return []Measurement{}, fmt.Errorf("%w: scanning measurement: %v", ErrStorage, err)
		}
		t, err := time.ParseInLocation(timestampLayout, ts, time.UTC)
		if err != nil {
			return []Measurement{}, fmt.Errorf("%w: parsing timestamp %q: %v", ErrStorage, ts, err)
		}
		m.Timestamp = t.In(s.loc)
		m.FaultA = uint32(faultA) //nolint:gosec // G115: column holds a packed uint32
		m.FaultB = uint32(faultB) //nolint:gosec // G115: column holds a packed uint32
		list = append(list, m)
	}
	if err := rows.Err(); err != nil {
		return []Measurement{}, fmt.Errorf("%w: iterating measurements: %v", ErrStorage, err)
	}
	return list, nil
}
