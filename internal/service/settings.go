package service

import (
	"context"
	"fmt"

	"climate_bridge/internal/interpreter"
	"climate_bridge/internal/logger"
	"climate_bridge/internal/models"
)

type SettingsService struct {
	client    *StateClient
	telemetry interpreter.Telemetry
	log       *logger.Logger
}

func NewSettingsService(client *StateClient, tel interpreter.Telemetry, log *logger.Logger) *SettingsService {
	if log == nil {
		log = logger.Nop()
	}
	return &SettingsService{client: client, telemetry: tel, log: log}
}

// Get returns the stored configuration.
func (s *SettingsService) Get(ctx context.Context) (models.SystemConfig, error) {
	cfg, ok := s.client.SystemConfig(ctx)
	if !ok {
		return models.SystemConfig{}, ErrStoreUnavailable
	}
	return cfg, nil
}

// Patch validates p against the configuration bounds, stores it and mirrors it
// to the device. A changed temperature limit raises a WARNING alert.
func (s *SettingsService) Patch(ctx context.Context, p models.ConfigPatch) (models.SystemConfig, error) {
	if p.Empty() {
		return models.SystemConfig{}, ErrEmptyPatch
	}
	if err := p.Validate(); err != nil {
		return models.SystemConfig{}, err
	}

	base, ok := s.client.SystemConfig(ctx)
	if !ok {
		base = s.telemetry.Config()
	}
	if !s.client.PatchSystemConfig(ctx, p) {
		return models.SystemConfig{}, fmt.Errorf("patch config: %w", ErrStoreUnavailable)
	}
	next := p.Apply(base)
	if !next.Consistent() {
		s.log.Warnw("config_inconsistent", "setpoint", next.Setpoint, "temp_min", next.TempMin, "temp_max", next.TempMax)
	}

	if p.TempMax != nil {
		s.limitAlert(ctx, fmt.Sprintf("Temp máxima configurada en %d°C", *p.TempMax))
	}
	if p.TempMin != nil {
		s.limitAlert(ctx, fmt.Sprintf("Temp mínima configurada en %d°C", *p.TempMin))
	}
	return next, nil
}

func (s *SettingsService) limitAlert(ctx context.Context, msg string) {
	if !s.client.CreateAlert(ctx, models.AlertConfigChange, msg, models.SeverityWarning) {
		s.log.Warnw("config_alert_failed", "message", msg)
	}
}
