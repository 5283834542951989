package collector

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/nerrad567/solarlog-collector/internal/audit"
	"github.com/nerrad567/solarlog-collector/internal/settings"
)

// SettingsWriter persists a single setting.
type SettingsWriter interface {
	Write(ctx context.Context, key, value string) error
}

// SettingsCommand is the payload accepted on <prefix>/command/settings.
type SettingsCommand struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// SettingsCommandHandler applies setting changes received over MQTT.
//
// Changes are written to the settings store and take effect at the
// scheduler's next reload point.
type SettingsCommandHandler struct {
	settings SettingsWriter
	audit    audit.Repository
	logger   Logger
}

// NewSettingsCommandHandler creates a handler. repo may be nil.
func NewSettingsCommandHandler(w SettingsWriter, repo audit.Repository, logger Logger) *SettingsCommandHandler {
	if logger == nil {
		logger = nopLogger{}
	}
	return &SettingsCommandHandler{settings: w, audit: repo, logger: logger}
}

// Handle decodes, validates and applies one command payload.
func (h *SettingsCommandHandler) Handle(ctx context.Context, payload []byte) error {
	var cmd SettingsCommand
	if err := json.Unmarshal(payload, &cmd); err != nil {
		return fmt.Errorf("%w: decoding payload: %w", ErrInvalidCommand, err)
	}

	cmd.Key = strings.TrimSpace(cmd.Key)
	if cmd.Key == "" {
		return fmt.Errorf("%w: key is required", ErrInvalidCommand)
	}
	if err := settings.Validate(cmd.Key, cmd.Value); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidCommand, err)
	}

	if err := h.settings.Write(ctx, cmd.Key, cmd.Value); err != nil {
		return fmt.Errorf("%w: %w", ErrCommandFailed, err)
	}

	h.logger.Info("setting updated", "key", cmd.Key, "source", audit.SourceMQTT)

	if h.audit != nil {
		details := map[string]any{"value": cmd.Value}
		if err := audit.Record(ctx, h.audit, audit.ActionUpdate, audit.EntitySetting, cmd.Key, audit.SourceMQTT, details); err != nil {
			h.logger.Warn("recording settings audit", "key", cmd.Key, "error", err)
		}
	}
	return nil
}

// MessageHandler adapts Handle to the MQTT client's callback signature.
func (h *SettingsCommandHandler) MessageHandler(ctx context.Context) func(topic string, payload []byte) error {
	return func(_ string, payload []byte) error {
		return h.Handle(ctx, payload)
	}
}
