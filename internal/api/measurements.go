package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/solarlog-collector/internal/audit"
	"github.com/nerrad567/solarlog-collector/internal/collector"
	"github.com/nerrad567/solarlog-collector/internal/decode"
	"github.com/nerrad567/solarlog-collector/internal/measurement"
	"github.com/nerrad567/solarlog-collector/internal/settings"
)

// Window limits for GET /devices/{id}/measurements.
const (
	defaultWindowLimit = 100
	maxWindowLimit     = 5000
)

// LatestResponse lists the newest sample of every device.
type LatestResponse struct {
	Devices []collector.DeviceStatePayload `json:"devices"`
	Count   int                            `json:"count"`
}

// WindowResponse lists a device's recent samples in ascending time order.
type WindowResponse struct {
	DeviceID     int                       `json:"device_id"`
	Measurements []measurement.Measurement `json:"measurements"`
	Count        int                       `json:"count"`
}

// RangeResponse wraps an aggregate over a day range.
type RangeResponse struct {
	Start    string `json:"start"`
	End      string `json:"end"`
	DeviceID int    `json:"device_id,omitempty"`
	Result   any    `json:"result"`
}

// ReportResponse is the daily per-device report.
type ReportResponse struct {
	Date    string                     `json:"date"`
	Devices []measurement.DeviceReport `json:"devices"`
}

// PruneRequest is the optional body of POST /measurements/prune.
type PruneRequest struct {
	Days *int `json:"days"`
}

// DeleteResponse reports how many rows a purge or prune removed.
type DeleteResponse struct {
	Deleted int64 `json:"deleted"`
	Days    int   `json:"days,omitempty"`
}

// handleLatest returns the newest measurement per device with decoded faults.
func (s *Server) handleLatest(w http.ResponseWriter, r *http.Request) {
	latest, err := s.measurements.LatestPerDevice(r.Context())
	if err != nil {
		s.logger.Error("failed to load latest measurements", "error", err)
		writeStoreError(w, r, err, "failed to load latest measurements")
		return
	}

	devices := make([]collector.DeviceStatePayload, 0, len(latest))
	for _, m := range latest {
		outcome := collector.OutcomeClean
		if m.HasFault() {
			outcome = collector.OutcomeFault
		}
		devices = append(devices, collector.NewDeviceStatePayload(collector.MeasurementEvent{
			Measurement: m,
			Outcome:     outcome,
			Stored:      true,
		}))
	}

	writeJSON(w, http.StatusOK, LatestResponse{Devices: devices, Count: len(devices)})
}

// handleDeviceMeasurements returns a device's most recent samples.
//
// Query parameters:
//   - limit: max results (default 100, max 5000)
func (s *Server) handleDeviceMeasurements(w http.ResponseWriter, r *http.Request) {
	id, err := parseDeviceID(chi.URLParam(r, "id"))
	if err != nil {
		writeBadRequest(w, r, err.Error())
		return
	}

	limit := defaultWindowLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, convErr := strconv.Atoi(v)
		if convErr != nil || n < 1 || n > maxWindowLimit {
			writeBadRequest(w, r, "limit must be an integer between 1 and 5000")
			return
		}
		limit = n
	}

	list, err := s.measurements.RecentWindow(r.Context(), id, limit)
	if err != nil {
		s.logger.Error("failed to load measurement window", "device_id", id, "error", err)
		writeStoreError(w, r, err, "failed to load measurements")
		return
	}

	writeJSON(w, http.StatusOK, WindowResponse{DeviceID: id, Measurements: list, Count: len(list)})
}

// handleAverages aggregates the analog channels over a day range.
func (s *Server) handleAverages(w http.ResponseWriter, r *http.Request) {
	q, ok := s.parseRangeQuery(w, r)
	if !ok {
		return
	}

	avg, err := s.measurements.RangeAverages(r.Context(), q.start, q.end, q.deviceID)
	if err != nil {
		s.logger.Error("failed to compute averages", "error", err)
		writeStoreError(w, r, err, "failed to compute averages")
		return
	}

	writeJSON(w, http.StatusOK, q.response(avg))
}

// handleFaultCounts counts faulted samples over a day range.
func (s *Server) handleFaultCounts(w http.ResponseWriter, r *http.Request) {
	q, ok := s.parseRangeQuery(w, r)
	if !ok {
		return
	}

	fc, err := s.measurements.FaultCounts(r.Context(), q.start, q.end, q.deviceID)
	if err != nil {
		s.logger.Error("failed to count faults", "error", err)
		writeStoreError(w, r, err, "failed to count faults")
		return
	}

	writeJSON(w, http.StatusOK, q.response(fc))
}

// handleProduction estimates one day's energy production.
func (s *Server) handleProduction(w http.ResponseWriter, r *http.Request) {
	date, ok := s.parseDayParam(w, r, "date")
	if !ok {
		return
	}
	deviceID, ok := parseOptionalDeviceID(w, r)
	if !ok {
		return
	}

	snap := s.currentSnapshot(r.Context())
	prod, err := s.measurements.DailyProductionEstimate(r.Context(), date, snap.Refresh, deviceID)
	if err != nil {
		s.logger.Error("failed to estimate production", "error", err)
		writeStoreError(w, r, err, "failed to estimate production")
		return
	}

	day := date.Format(dateLayout)
	writeJSON(w, http.StatusOK, RangeResponse{Start: day, End: day, DeviceID: deviceID, Result: prod})
}

// handleDailyReport builds the per-device report for the configured devices.
func (s *Server) handleDailyReport(w http.ResponseWriter, r *http.Request) {
	date, ok := s.parseDayParam(w, r, "date")
	if !ok {
		return
	}

	snap := s.currentSnapshot(r.Context())
	reports, err := s.measurements.DailyReport(r.Context(), date, snap.Refresh, snap.Devices())
	if err != nil {
		s.logger.Error("failed to build daily report", "error", err)
		writeStoreError(w, r, err, "failed to build daily report")
		return
	}

	writeJSON(w, http.StatusOK, ReportResponse{Date: date.Format(dateLayout), Devices: reports})
}

// handlePurgeMeasurements deletes every stored measurement.
func (s *Server) handlePurgeMeasurements(w http.ResponseWriter, r *http.Request) {
	n, err := s.measurements.PurgeAll(r.Context())
	if err != nil {
		s.logger.Error("failed to purge measurements", "error", err)
		writeStoreError(w, r, err, "failed to purge measurements")
		return
	}

	s.logger.Info("measurements purged", "deleted", n)
	s.auditLog(audit.ActionPurge, audit.EntityMeasurements, "", map[string]any{"deleted": n})
	writeJSON(w, http.StatusOK, DeleteResponse{Deleted: n})
}

// handlePruneMeasurements deletes measurements older than a number of days.
// Without a body the configured retention period is used.
func (s *Server) handlePruneMeasurements(w http.ResponseWriter, r *http.Request) {
	var req PruneRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeBadRequest(w, r, "invalid JSON body")
		return
	}

	days := s.currentSnapshot(r.Context()).RetentionDays
	if req.Days != nil {
		if *req.Days < 1 {
			writeBadRequest(w, r, "days must be a positive integer")
			return
		}
		days = *req.Days
	}
	if days <= 0 {
		writeJSON(w, http.StatusOK, DeleteResponse{})
		return
	}

	n, err := s.measurements.PruneOlderThan(r.Context(), days)
	if err != nil {
		s.logger.Error("failed to prune measurements", "days", days, "error", err)
		writeStoreError(w, r, err, "failed to prune measurements")
		return
	}

	if n > 0 {
		s.auditLog(audit.ActionPrune, audit.EntityMeasurements, "", map[string]any{"deleted": n, "days": days})
	}
	writeJSON(w, http.StatusOK, DeleteResponse{Deleted: n, Days: days})
}

// currentSnapshot prefers the running scheduler's snapshot and falls back
// to reading settings directly.
func (s *Server) currentSnapshot(ctx context.Context) settings.Snapshot {
	if s.collector != nil {
		return s.collector.Snapshot()
	}
	snap, diags := s.settings.LoadSnapshot(ctx)
	for _, d := range diags {
		s.logger.Debug("settings diagnostic", "error", d)
	}
	return snap
}

// dateLayout is the YYYY-MM-DD format of date query parameters.
const dateLayout = "2006-01-02"

// rangeQuery is a parsed start/end/device_id query.
type rangeQuery struct {
	start    time.Time
	end      time.Time
	deviceID int
}

func (q rangeQuery) response(result any) RangeResponse {
	return RangeResponse{
		Start:    q.start.Format(dateLayout),
		End:      q.end.Format(dateLayout),
		DeviceID: q.deviceID,
		Result:   result,
	}
}

// parseRangeQuery reads start, end and device_id. Missing dates default to
// today in the site timezone; a missing end equals start.
func (s *Server) parseRangeQuery(w http.ResponseWriter, r *http.Request) (rangeQuery, bool) {
	start, ok := s.parseDayParam(w, r, "start")
	if !ok {
		return rangeQuery{}, false
	}
	end := start
	if r.URL.Query().Get("end") != "" {
		if end, ok = s.parseDayParam(w, r, "end"); !ok {
			return rangeQuery{}, false
		}
	}
	if end.Before(start) {
		writeBadRequest(w, r, "end must not be before start")
		return rangeQuery{}, false
	}
	deviceID, ok := parseOptionalDeviceID(w, r)
	if !ok {
		return rangeQuery{}, false
	}
	return rangeQuery{start: start, end: end, deviceID: deviceID}, true
}

// parseDayParam parses a YYYY-MM-DD query parameter, defaulting to today.
func (s *Server) parseDayParam(w http.ResponseWriter, r *http.Request, name string) (time.Time, bool) {
	v := r.URL.Query().Get(name)
	if v == "" {
		now := time.Now().In(s.measurements.Location())
		return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location()), true
	}
	t, err := s.measurements.ParseDay(v)
	if err != nil {
		writeBadRequest(w, r, name+" must be a date in YYYY-MM-DD format")
		return time.Time{}, false
	}
	return t, true
}

// parseOptionalDeviceID reads device_id, returning AllDevices when absent.
func parseOptionalDeviceID(w http.ResponseWriter, r *http.Request) (int, bool) {
	v := r.URL.Query().Get("device_id")
	if v == "" {
		return measurement.AllDevices, true
	}
	id, err := parseDeviceID(v)
	if err != nil {
		writeBadRequest(w, r, err.Error())
		return 0, false
	}
	return id, true
}

var errBadDeviceID = errors.New("device id must be an integer between 1 and 255")

func parseDeviceID(v string) (int, error) {
	id, err := strconv.Atoi(v)
	if err != nil || id < decode.MinDeviceID || id > decode.MaxDeviceID {
		return 0, errBadDeviceID
	}
	return id, nil
}
