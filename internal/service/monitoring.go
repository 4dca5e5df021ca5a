package service

import (
	"context"
	"time"

	"climate_bridge/internal/interpreter"
	"climate_bridge/internal/models"
)

const (
	defaultAlertLimit = 20
	maxAlertLimit     = 200
)

type MonitoringService struct {
	client     *StateClient
	telemetry  interpreter.Telemetry
	link       interpreter.Link
	staleAfter time.Duration
	now        func() time.Time
}

func NewMonitoringService(client *StateClient, tel interpreter.Telemetry, link interpreter.Link, staleAfter time.Duration) *MonitoringService {
	return &MonitoringService{client: client, telemetry: tel, link: link, staleAfter: staleAfter, now: time.Now}
}

// Telemetry returns the live snapshot with its age and link state.
func (s *MonitoringService) Telemetry(_ context.Context) TelemetryView {
	snap := s.telemetry.Snapshot()
	v := TelemetryView{
		Snapshot:   snap,
		LastUpdate: toUTC(snap.LastUpdate()),
		AgeSeconds: -1,
		LinkUp:     s.link != nil && s.link.IsConnected(),
		Level:      levelName(snap.Sensor, snap.Config),
		RelaysOn:   snap.ActiveRelays(),
	}
	if !v.LastUpdate.IsZero() {
		age := s.now().Sub(v.LastUpdate)
		v.AgeSeconds = age.Seconds()
		v.Stale = s.staleAfter > 0 && age > s.staleAfter
	}
	return v
}

// Alerts returns recent alerts, newest first. limit <= 0 takes the default.
func (s *MonitoringService) Alerts(ctx context.Context, limit int) ([]models.Alert, error) {
	switch {
	case limit <= 0:
		limit = defaultAlertLimit
	case limit > maxAlertLimit:
		limit = maxAlertLimit
	}
	alerts, ok := s.client.RecentAlerts(ctx, limit)
	if !ok {
		return nil, ErrStoreUnavailable
	}
	if alerts == nil {
		alerts = []models.Alert{}
	}
	return alerts, nil
}

func levelName(r models.SensorReading, cfg models.SystemConfig) string {
	if !r.HasTemperature() {
		return "unknown"
	}
	return levelLabel(interpreter.TemperatureLevel(*r.Temperature, cfg))
}

// toUTC normalizes non-zero time to UTC, preserving zero values.
func toUTC(t time.Time) time.Time {
	if t.IsZero() {
		return t
	}
	return t.UTC()
}
