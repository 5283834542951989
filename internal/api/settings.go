package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/solarlog-collector/internal/audit"
	"github.com/nerrad567/solarlog-collector/internal/settings"
)

// SettingsResponse lists every known setting.
type SettingsResponse struct {
	Settings []settings.Setting `json:"settings"`
	Count    int                `json:"count"`
}

// UpdateSettingRequest is the body of PUT /settings/{key}.
type UpdateSettingRequest struct {
	Value *string `json:"value"`
}

// handleListSettings returns all settings with their effective values.
func (s *Server) handleListSettings(w http.ResponseWriter, r *http.Request) {
	list, err := s.settings.List(r.Context())
	if err != nil {
		s.logger.Error("failed to list settings", "error", err)
		writeStoreError(w, r, err, "failed to list settings")
		return
	}
	writeJSON(w, http.StatusOK, SettingsResponse{Settings: list, Count: len(list)})
}

// handleUpdateSetting validates and stores one setting. The scheduler picks
// the change up on its next reload.
func (s *Server) handleUpdateSetting(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")

	var req UpdateSettingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, r, "invalid JSON body")
		return
	}
	if req.Value == nil {
		writeBadRequest(w, r, "value is required")
		return
	}

	if err := settings.Validate(key, *req.Value); err != nil {
		writeValidationError(w, r, err.Error())
		return
	}

	if err := s.settings.Write(r.Context(), key, *req.Value); err != nil {
		s.logger.Error("failed to write setting", "key", key, "error", err)
		writeStoreError(w, r, err, "failed to write setting")
		return
	}

	s.logger.Info("setting updated", "key", key, "value", *req.Value)
	s.auditLog(audit.ActionUpdate, audit.EntitySetting, key, map[string]any{"value": *req.Value})

	writeJSON(w, http.StatusOK, settings.Setting{Key: key, Value: *req.Value})
}
