package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/nerrad567/solarlog-collector/internal/measurement"
	"github.com/nerrad567/solarlog-collector/internal/settings"
)

// Error is the body of every non-2xx response. RequestID repeats the
// X-Request-ID header so a dashboard report can be matched to the log.
type Error struct {
	Status    int    `json:"status"`
	Code      string `json:"code"`
	Message   string `json:"message"`
	RequestID string `json:"request_id,omitempty"`
}

// Error codes.
const (
	ErrCodeBadRequest       = "bad_request"
	ErrCodeValidation       = "validation_error" // setting value rejected
	ErrCodeNotFound         = "not_found"
	ErrCodeMethodNotAllowed = "method_not_allowed"
	ErrCodeStorage          = "storage_error" // SQLite read or write failed
	ErrCodeInternal         = "internal_error"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		json.NewEncoder(w).Encode(v) //nolint:errcheck,errchkjson // client may have gone
	}
}

func writeError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	writeJSON(w, status, Error{
		Status:    status,
		Code:      code,
		Message:   message,
		RequestID: requestIDFrom(r),
	})
}

func writeBadRequest(w http.ResponseWriter, r *http.Request, message string) {
	writeError(w, r, http.StatusBadRequest, ErrCodeBadRequest, message)
}

func writeValidationError(w http.ResponseWriter, r *http.Request, message string) {
	writeError(w, r, http.StatusBadRequest, ErrCodeValidation, message)
}

func writeNotFound(w http.ResponseWriter, r *http.Request, message string) {
	writeError(w, r, http.StatusNotFound, ErrCodeNotFound, message)
}

func writeInternalError(w http.ResponseWriter, r *http.Request, message string) {
	writeError(w, r, http.StatusInternalServerError, ErrCodeInternal, message)
}

// writeStoreError reports a failed store call. Faults of the measurement
// or settings database get ErrCodeStorage; anything else is internal.
func writeStoreError(w http.ResponseWriter, r *http.Request, err error, message string) {
	code := ErrCodeInternal
	if errors.Is(err, measurement.ErrStorage) || errors.Is(err, settings.ErrStorage) {
		code = ErrCodeStorage
	}
	writeError(w, r, http.StatusInternalServerError, code, message)
}
