// Package interpreter maps free-form Spanish utterances to device actions.
//
// Classification is a priority-ordered list of keyword rules evaluated top to
// bottom; the first rule whose predicate holds handles the utterance. The
// order is significant because vocabularies overlap: a turn-on command naming
// relay "1" must be claimed before the config-change rule reads "1" as a value.
package interpreter

import (
	"context"

	"climate_bridge/internal/logger"
	"climate_bridge/internal/models"
	"climate_bridge/internal/telemetry"
)

// Store is the state store as seen by the interpreter. Failures are reported
// as false or an empty result, never as errors.
type Store interface {
	LatestSensorReading(ctx context.Context) (models.SensorReading, bool)
	SystemConfig(ctx context.Context) (models.SystemConfig, bool)
	// PatchSystemConfig also publishes the patch to the device on success.
	PatchSystemConfig(ctx context.Context, p models.ConfigPatch) bool
	// AppendRelayRecord also publishes the command (and mode, when given) on success.
	AppendRelayRecord(ctx context.Context, relay int, on bool, mode *models.RelayMode) bool
	// RelayStates returns the latest record per relay; relays without history are absent.
	RelayStates(ctx context.Context) map[int]models.RelayRecord
	CreateAlert(ctx context.Context, alertType, message string, severity models.Severity) bool
}

// Telemetry is the live cache fed by the device.
type Telemetry interface {
	Snapshot() telemetry.Snapshot
	Sensor() models.SensorReading
	Config() models.SystemConfig
}

// Link reports whether the device transport is up.
type Link interface {
	IsConnected() bool
}

// Result is the outcome of one interpretation.
type Result struct {
	Intent   Intent
	Response string
}

type rule struct {
	intent Intent
	match  func(u utterance) bool
	handle func(t *turn, ctx context.Context) string
}

type Interpreter struct {
	store     Store
	telemetry Telemetry
	link      Link
	log       *logger.Logger
	rules     []rule
}

// New returns an interpreter. log may be nil.
func New(store Store, tel Telemetry, link Link, log *logger.Logger) *Interpreter {
	if log == nil {
		log = logger.Nop()
	}
	ip := &Interpreter{store: store, telemetry: tel, link: link, log: log}
	ip.rules = []rule{
		{IntentTemperature, func(u utterance) bool {
			if u.control || u.assign {
				return false
			}
			return u.has(temperatureWords...) || (u.has(questionWords...) && u.has(ambientWords...) && u.field() == "")
		}, (*turn).temperature},
		{IntentHumidity, func(u utterance) bool {
			return !u.control && u.has(humidityWords...)
		}, (*turn).humidity},
		{IntentStatus, func(u utterance) bool {
			return !u.control && !u.assign && (u.has(statusWords...) || u.hasPhrase(statusPhrases...))
		}, (*turn).status},
		{IntentDevices, func(u utterance) bool {
			return !u.control && (u.has(devicesWords...) || u.hasPhrase(devicesPhrases...))
		}, (*turn).devices},
		{IntentConfig, func(u utterance) bool {
			if u.control || u.assign {
				return false
			}
			return u.has(configWords...) || (u.has(questionWords...) && u.field() != "")
		}, (*turn).configQuery},
		{IntentTurnOn, func(u utterance) bool { return u.has(turnOnVerbs...) }, (*turn).turnOn},
		{IntentTurnOff, func(u utterance) bool { return u.has(turnOffVerbs...) }, (*turn).turnOff},
		{IntentMode, func(u utterance) bool { return u.has(modeWords...) }, (*turn).mode},
		{IntentConfigChange, func(u utterance) bool {
			return u.assign || u.has(changeVerbs...)
		}, (*turn).configChange},
		{IntentHelp, func(u utterance) bool {
			return u.has(helpWords...) || u.hasPhrase(helpPhrases...)
		}, (*turn).help},
	}
	return ip
}

// Interpret classifies text and performs the matched action. The response is
// never empty and no failure escapes as an error.
func (ip *Interpreter) Interpret(ctx context.Context, text string) Result {
	u := parse(text)
	r, ok := ip.classify(u)
	if !ok {
		ip.log.Debugw("intent_unmatched", "text", u.text)
		return Result{Intent: IntentUnknown, Response: msgFallback}
	}
	ip.log.Debugw("intent_matched", "intent", r.intent.String(), "text", u.text)
	return Result{Intent: r.intent, Response: r.handle(&turn{ip: ip, u: u}, ctx)}
}

// classify returns the first rule claiming u.
func (ip *Interpreter) classify(u utterance) (rule, bool) {
	if u.empty() {
		return rule{}, false
	}
	for _, r := range ip.rules {
		if r.match(u) {
			return r, true
		}
	}
	return rule{}, false
}

// turn carries per-invocation state. The store config is read at most once,
// and only by handlers that depend on it.
type turn struct {
	ip *Interpreter
	u  utterance

	cfg       models.SystemConfig
	cfgLoaded bool
}

func (t *turn) currentConfig(ctx context.Context) models.SystemConfig {
	if t.cfgLoaded {
		return t.cfg
	}
	t.cfgLoaded = true
	if cfg, ok := t.ip.store.SystemConfig(ctx); ok {
		t.cfg = cfg
	} else {
		t.cfg = t.ip.telemetry.Config()
	}
	return t.cfg
}

// sensor prefers live telemetry and falls back to the latest stored reading.
func (t *turn) sensor(ctx context.Context) models.SensorReading {
	live := t.ip.telemetry.Sensor()
	if live.HasTemperature() {
		return live
	}
	if stored, ok := t.ip.store.LatestSensorReading(ctx); ok && stored.HasTemperature() {
		return stored
	}
	return live
}

// relayStates prefers the store history and falls back to the relay status
// last pushed by the device.
func (t *turn) relayStates(ctx context.Context) map[int]models.RelayRecord {
	if states := t.ip.store.RelayStates(ctx); len(states) > 0 {
		return states
	}
	snap := t.ip.telemetry.Snapshot()
	if snap.RelaysAt.IsZero() {
		return nil
	}
	out := make(map[int]models.RelayRecord, models.RelayCount)
	for i, r := range snap.Relays {
		out[i+1] = models.RelayRecord{RelayNumber: i + 1, RelayName: r.Name, State: r.State, Mode: r.Mode, CreatedAt: snap.RelaysAt}
	}
	return out
}

func (t *turn) temperature(ctx context.Context) string {
	r := t.sensor(ctx)
	if r.HasTemperature() {
		return temperatureReply(r)
	}
	if t.ip.link != nil && !t.ip.link.IsConnected() {
		return msgLinkDown
	}
	return msgWaitingSensor
}

func (t *turn) humidity(ctx context.Context) string {
	live := t.ip.telemetry.Sensor()
	if live.Humidity != nil {
		return humidityReply(*live.Humidity)
	}
	if stored, ok := t.ip.store.LatestSensorReading(ctx); ok && stored.Humidity != nil {
		return humidityReply(*stored.Humidity)
	}
	return msgWaitingHumid
}

func (t *turn) status(ctx context.Context) string {
	r := t.sensor(ctx)
	if !r.HasTemperature() {
		return msgSystemStarting
	}
	cfg := t.currentConfig(ctx)
	states := t.relayStates(ctx)
	active := 0
	for _, rec := range states {
		if rec.State {
			active++
		}
	}
	return statusReply(r, cfg, active, len(states) > 0)
}

func (t *turn) devices(ctx context.Context) string {
	states := t.relayStates(ctx)
	if len(states) == 0 {
		return msgNoDevices
	}
	return devicesReply(states, t.u.has(modeWords...))
}

func (t *turn) configQuery(ctx context.Context) string {
	return configReply(t.currentConfig(ctx))
}

func (t *turn) help(context.Context) string { return msgHelp }

func (t *turn) turnOn(ctx context.Context) string  { return t.switchRelay(ctx, true) }
func (t *turn) turnOff(ctx context.Context) string { return t.switchRelay(ctx, false) }

func (t *turn) switchRelay(ctx context.Context, on bool) string {
	relay, all := t.u.relay()
	switch {
	case all:
		done := 0
		for n := 1; n <= models.RelayCount; n++ {
			if t.ip.store.AppendRelayRecord(ctx, n, on, models.ModePtr(models.ModeManual)) {
				done++
			}
		}
		return allRelaysReply(on, done)
	case relay == 0:
		if on {
			return msgWhichDeviceOn
		}
		return msgWhichDeviceOff
	}

	info := models.Relay(relay)
	if !t.ip.store.AppendRelayRecord(ctx, relay, on, models.ModePtr(models.ModeManual)) {
		return relayFailedReply(info, on)
	}
	if on {
		return turnedOnReply(info)
	}
	return turnedOffReply(info)
}

func (t *turn) mode(ctx context.Context) string {
	mode, ok := t.u.mode()
	if !ok {
		return msgModes
	}
	relay, _ := t.u.relay()
	if relay == 0 {
		return msgModeDevice
	}

	current := false
	if rec, ok := t.relayStates(ctx)[relay]; ok {
		current = rec.State
	}
	info := models.Relay(relay)
	if !t.ip.store.AppendRelayRecord(ctx, relay, current, models.ModePtr(mode)) {
		return modeFailedReply(info)
	}
	return modeChangedReply(info, mode)
}

func (t *turn) configChange(ctx context.Context) string {
	value, ok := t.u.number()
	if !ok {
		return msgNeedNumber
	}
	field := t.u.field()
	if field == "" {
		return msgWhichField
	}

	patch := models.ConfigPatch{}
	switch field {
	case models.FieldSetpoint:
		patch.Setpoint = &value
	case models.FieldHysteresis:
		patch.Hysteresis = &value
	case models.FieldTempMax, models.FieldTempMin:
		// bounds apply to the spoken value, the store keeps whole degrees
		bounds := models.TempMaxRange
		if field == models.FieldTempMin {
			bounds = models.TempMinRange
		}
		if !bounds.Contains(value) {
			return boundsReply(field)
		}
		limit := int(value)
		if field == models.FieldTempMax {
			patch.TempMax = &limit
		} else {
			patch.TempMin = &limit
		}
	}
	if err := patch.Validate(); err != nil {
		t.ip.log.Debugw("config_change_rejected", "err", err)
		return boundsReply(field)
	}

	next := patch.Apply(t.currentConfig(ctx))
	if !t.ip.store.PatchSystemConfig(ctx, patch) {
		return msgConfigSave
	}
	if !next.Consistent() {
		t.ip.log.Warnw("config_inconsistent",
			"setpoint", next.Setpoint, "temp_min", next.TempMin, "temp_max", next.TempMax)
	}

	switch {
	case patch.TempMax != nil:
		t.raiseLimitAlert(ctx, field, *patch.TempMax)
	case patch.TempMin != nil:
		t.raiseLimitAlert(ctx, field, *patch.TempMin)
	}
	return configChangedReply(field, value)
}

// raiseLimitAlert is best effort; a failure never changes the reply.
func (t *turn) raiseLimitAlert(ctx context.Context, field string, limit int) {
	if !t.ip.store.CreateAlert(ctx, models.AlertConfigChange, limitAlertMessage(field, limit), models.SeverityWarning) {
		t.ip.log.Warnw("config_alert_failed", "field", field, "limit", limit)
	}
}
