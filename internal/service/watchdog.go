package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"climate_bridge/internal/interpreter"
	"climate_bridge/internal/logger"
	"climate_bridge/internal/models"
	"climate_bridge/internal/telemetry"
)

// Notifier pushes a message to the people watching the system.
type Notifier interface {
	Notify(ctx context.Context, text string)
}

// Broadcast fans a message out to notifiers registered after wiring, such as
// a chat bot that itself depends on the services.
type Broadcast struct {
	mu      sync.RWMutex
	targets []Notifier
}

// Add registers n.
func (b *Broadcast) Add(n Notifier) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.targets = append(b.targets, n)
}

func (b *Broadcast) Notify(ctx context.Context, text string) {
	b.mu.RLock()
	targets := append([]Notifier(nil), b.targets...)
	b.mu.RUnlock()
	for _, n := range targets {
		n.Notify(ctx, text)
	}
}

// WatchdogOptions tunes the watchdog. Zero values take defaults.
type WatchdogOptions struct {
	StaleAfter time.Duration
	// RecordReadings appends each new cached reading to the store history.
	RecordReadings bool
}

const (
	defaultStaleAfter   = 30 * time.Second
	defaultWatchdogTick = 10 * time.Second
)

// WatchdogService compares live telemetry with the configured limits. Each
// excursion outside the limits raises one CRITICAL alert and one push; the
// next one fires only after the temperature has come back in range. Missing
// telemetry raises one WARNING per outage.
type WatchdogService struct {
	client    *StateClient
	telemetry interpreter.Telemetry
	notifier  Notifier
	opts      WatchdogOptions
	log       *logger.Logger

	started      time.Time
	excursion    interpreter.Level
	stale        bool
	lastRecorded time.Time
}

// NewWatchdogService returns a watchdog. notifier and log may be nil.
func NewWatchdogService(client *StateClient, tel interpreter.Telemetry, notifier Notifier, opts WatchdogOptions, log *logger.Logger) *WatchdogService {
	if opts.StaleAfter <= 0 {
		opts.StaleAfter = defaultStaleAfter
	}
	if log == nil {
		log = logger.Nop()
	}
	return &WatchdogService{
		client:    client,
		telemetry: tel,
		notifier:  notifier,
		opts:      opts,
		log:       log,
		excursion: interpreter.LevelOK,
	}
}

// Run checks at the given interval until ctx is canceled.
func (s *WatchdogService) Run(ctx context.Context, tick time.Duration) {
	if tick <= 0 {
		tick = defaultWatchdogTick
	}
	t := time.NewTicker(tick)
	defer t.Stop()
	s.started = time.Now()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-t.C:
			s.Check(ctx, now)
		}
	}
}

// Check runs one pass. It is not safe for concurrent use.
func (s *WatchdogService) Check(ctx context.Context, now time.Time) {
	if s.started.IsZero() {
		s.started = now
	}
	snap := s.telemetry.Snapshot()

	if s.detectStale(ctx, snap, now) {
		return
	}
	if !snap.Sensor.HasTemperature() {
		return
	}
	s.detectExcursion(ctx, *snap.Sensor.Temperature, snap.Config)
	s.recordReading(ctx, snap)
}

// detectStale returns true while telemetry is older than StaleAfter.
func (s *WatchdogService) detectStale(ctx context.Context, snap telemetry.Snapshot, now time.Time) bool {
	last := snap.SensorAt
	if last.IsZero() {
		last = s.started
	}
	age := now.Sub(last)
	if age <= s.opts.StaleAfter {
		if s.stale {
			s.log.Infow("telemetry_resumed")
		}
		s.stale = false
		return false
	}
	if s.stale {
		return true
	}
	s.stale = true
	msg := fmt.Sprintf("Sin datos del dispositivo desde hace %d segundos", int(age.Seconds()))
	s.log.Warnw("telemetry_stale", "age", age)
	if !s.client.CreateAlert(ctx, models.AlertStaleData, msg, models.SeverityWarning) {
		s.log.Warnw("watchdog_alert_failed", "type", models.AlertStaleData)
	}
	return true
}

func (s *WatchdogService) detectExcursion(ctx context.Context, temp float64, cfg models.SystemConfig) {
	level := interpreter.TemperatureLevel(temp, cfg)
	if level == s.excursion {
		return
	}
	prev := s.excursion
	s.excursion = level

	var alertType, msg string
	switch level {
	case interpreter.LevelHigh:
		alertType = models.AlertTempHigh
		msg = fmt.Sprintf("🔥 Temperatura ALTA: %.1f°C (máximo %d°C)", temp, cfg.TempMax)
	case interpreter.LevelLow:
		alertType = models.AlertTempLow
		msg = fmt.Sprintf("❄️ Temperatura BAJA: %.1f°C (mínimo %d°C)", temp, cfg.TempMin)
	default:
		s.log.Infow("temperature_in_range", "temp", temp, "previous", levelLabel(prev))
		return
	}

	s.log.Warnw("temperature_out_of_range", "type", alertType, "temp", temp,
		"temp_min", cfg.TempMin, "temp_max", cfg.TempMax)
	if !s.client.CreateAlert(ctx, alertType, msg, models.SeverityCritical) {
		s.log.Warnw("watchdog_alert_failed", "type", alertType)
	}
	if s.notifier != nil {
		s.notifier.Notify(ctx, msg)
	}
}

func (s *WatchdogService) recordReading(ctx context.Context, snap telemetry.Snapshot) {
	if !s.opts.RecordReadings || !snap.SensorAt.After(s.lastRecorded) {
		return
	}
	r := snap.Sensor
	r.CreatedAt = snap.SensorAt.UTC()
	if s.client.RecordReading(ctx, r) {
		s.lastRecorded = snap.SensorAt
	}
}

func levelLabel(l interpreter.Level) string {
	switch l {
	case interpreter.LevelHigh:
		return "high"
	case interpreter.LevelLow:
		return "low"
	default:
		return "ok"
	}
}
