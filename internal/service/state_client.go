package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"climate_bridge/internal/interpreter"
	"climate_bridge/internal/logger"
	"climate_bridge/internal/models"
	"climate_bridge/internal/repository"
)

// DevicePublisher is the command channel to the device.
type DevicePublisher interface {
	PublishRelayCommand(ctx context.Context, relay int, on bool) error
	PublishRelayMode(ctx context.Context, relay int, mode models.RelayMode) error
	PublishConfigPatch(ctx context.Context, patch models.ConfigPatch) error
}

// StoreObserver receives one call per store operation.
type StoreObserver interface {
	StoreOp(op string, d time.Duration, ok bool)
}

// Store operation names, used in logs and as metric labels.
const (
	opLatestSensor = "latest_sensor"
	opAppendSensor = "append_sensor"
	opSystemConfig = "system_config"
	opPatchConfig  = "patch_config"
	opAppendRelay  = "append_relay"
	opLatestRelay  = "latest_relay"
	opCreateAlert  = "create_alert"
	opRecentAlerts = "recent_alerts"
)

// StateClient is the state store as used by the rest of the bridge. Every
// failure is logged and reported as false or an empty result. Successful
// writes of configuration and relay records are mirrored to the device.
type StateClient struct {
	store  repository.StateStore
	device DevicePublisher
	log    *logger.Logger
	obs    StoreObserver
	now    func() time.Time
}

var _ interpreter.Store = (*StateClient)(nil)

// NewStateClient returns a client. device, log and obs may be nil.
func NewStateClient(store repository.StateStore, device DevicePublisher, log *logger.Logger, obs StoreObserver) *StateClient {
	if log == nil {
		log = logger.Nop()
	}
	return &StateClient{store: store, device: device, log: log, obs: obs, now: time.Now}
}

// LatestSensorReading returns the most recent stored reading.
func (c *StateClient) LatestSensorReading(ctx context.Context) (models.SensorReading, bool) {
	start := time.Now()
	r, err := c.store.LatestSensorReading(ctx)
	return r, c.done(opLatestSensor, start, err)
}

// RecordReading appends a reading to the history.
func (c *StateClient) RecordReading(ctx context.Context, r models.SensorReading) bool {
	if r.CreatedAt.IsZero() {
		r.CreatedAt = c.now().UTC()
	}
	start := time.Now()
	return c.done(opAppendSensor, start, c.store.AppendSensorReading(ctx, r))
}

// SystemConfig returns the latest stored configuration.
func (c *StateClient) SystemConfig(ctx context.Context) (models.SystemConfig, bool) {
	start := time.Now()
	cfg, err := c.store.LatestSystemConfig(ctx)
	return cfg, c.done(opSystemConfig, start, err)
}

// PatchSystemConfig writes only the fields present in p and stamps the
// update time. On success the same patch is published to the device; a
// failed publish is logged and does not undo the store write.
func (c *StateClient) PatchSystemConfig(ctx context.Context, p models.ConfigPatch) bool {
	if p.Empty() {
		return false
	}
	if p.UpdatedAt.IsZero() {
		p.UpdatedAt = c.now().UTC()
	}
	start := time.Now()
	if !c.done(opPatchConfig, start, c.store.PatchSystemConfig(ctx, p)) {
		return false
	}
	if c.device != nil {
		if err := c.device.PublishConfigPatch(ctx, p); err != nil {
			c.log.Warnw("device_config_publish_failed", "err", err)
		}
	}
	return true
}

// AppendRelayRecord stores a new state for relay. A nil mode is stored as
// MANUAL. On success the on/off command is published, followed by the mode
// when one was given.
func (c *StateClient) AppendRelayRecord(ctx context.Context, relay int, on bool, mode *models.RelayMode) bool {
	if !models.ValidRelay(relay) {
		c.log.Warnw("store_append_relay_invalid", "relay", relay)
		return false
	}
	rec := models.RelayRecord{
		RelayNumber: relay,
		RelayName:   models.Relay(relay).Name,
		State:       on,
		Mode:        models.ModeManual,
		CreatedAt:   c.now().UTC(),
	}
	if mode != nil {
		rec.Mode = *mode
	}

	start := time.Now()
	if !c.done(opAppendRelay, start, c.store.AppendRelayRecord(ctx, rec)) {
		return false
	}
	if c.device == nil {
		return true
	}
	if err := c.device.PublishRelayCommand(ctx, relay, on); err != nil {
		c.log.Warnw("device_relay_publish_failed", "relay", relay, "err", err)
	}
	if mode != nil {
		if err := c.device.PublishRelayMode(ctx, relay, *mode); err != nil {
			c.log.Warnw("device_mode_publish_failed", "relay", relay, "err", err)
		}
	}
	return true
}

// RelayState returns the latest record of one relay.
func (c *StateClient) RelayState(ctx context.Context, relay int) (models.RelayRecord, bool) {
	start := time.Now()
	rec, err := c.store.LatestRelayRecord(ctx, relay)
	return rec, c.done(opLatestRelay, start, err)
}

// RelayStates looks up every relay concurrently. Relays without history or
// whose lookup failed are absent from the result.
func (c *StateClient) RelayStates(ctx context.Context) map[int]models.RelayRecord {
	var (
		mu  sync.Mutex
		wg  sync.WaitGroup
		out = make(map[int]models.RelayRecord, models.RelayCount)
	)
	for n := 1; n <= models.RelayCount; n++ {
		wg.Add(1)
		go func(relay int) {
			defer wg.Done()
			rec, ok := c.RelayState(ctx, relay)
			if !ok {
				return
			}
			mu.Lock()
			out[relay] = rec
			mu.Unlock()
		}(n)
	}
	wg.Wait()
	return out
}

// CreateAlert appends an alert. Callers treat it as best effort.
func (c *StateClient) CreateAlert(ctx context.Context, alertType, message string, severity models.Severity) bool {
	start := time.Now()
	err := c.store.AppendAlert(ctx, models.Alert{
		Type:      alertType,
		Message:   message,
		Severity:  severity,
		CreatedAt: c.now().UTC(),
	})
	return c.done(opCreateAlert, start, err)
}

// RecentAlerts returns up to limit alerts, newest first.
func (c *StateClient) RecentAlerts(ctx context.Context, limit int) ([]models.Alert, bool) {
	start := time.Now()
	alerts, err := c.store.RecentAlerts(ctx, limit)
	return alerts, c.done(opRecentAlerts, start, err)
}

// done records the outcome of op. An empty collection counts as a completed
// call but still reports false to the caller.
func (c *StateClient) done(op string, start time.Time, err error) bool {
	notFound := errors.Is(err, repository.ErrNotFound)
	if c.obs != nil {
		c.obs.StoreOp(op, time.Since(start), err == nil || notFound)
	}
	switch {
	case err == nil:
		return true
	case notFound:
		c.log.Debugw("store_empty", "op", op)
	default:
		c.log.Warnw("store_"+op+"_failed", "err", err)
	}
	return false
}
