package service

import (
	"context"
	"fmt"

	"climate_bridge/internal/interpreter"
	"climate_bridge/internal/logger"
	"climate_bridge/internal/models"
)

type DevicesService struct {
	client    *StateClient
	telemetry interpreter.Telemetry
	log       *logger.Logger
}

func NewDevicesService(client *StateClient, tel interpreter.Telemetry, log *logger.Logger) *DevicesService {
	if log == nil {
		log = logger.Nop()
	}
	return &DevicesService{client: client, telemetry: tel, log: log}
}

// List returns every relay with a known state. Stored history wins; relays
// without history fall back to the last device report, if any.
func (s *DevicesService) List(ctx context.Context) ([]DeviceState, error) {
	stored := s.client.RelayStates(ctx)
	snap := s.telemetry.Snapshot()

	out := make([]DeviceState, 0, models.RelayCount)
	for _, info := range models.Relays() {
		if rec, ok := stored[info.Number]; ok {
			out = append(out, deviceState(rec, SourceStore))
			continue
		}
		if snap.RelaysAt.IsZero() {
			continue
		}
		st := snap.Relays[info.Number-1]
		out = append(out, deviceState(models.RelayRecord{
			RelayNumber: info.Number,
			RelayName:   info.Name,
			State:       st.State,
			Mode:        st.Mode,
			CreatedAt:   snap.RelaysAt,
		}, SourceTelemetry))
	}
	return out, nil
}

// SetState switches a relay on or off in MANUAL mode.
func (s *DevicesService) SetState(ctx context.Context, relay int, on bool) (DeviceState, error) {
	if !models.ValidRelay(relay) {
		return DeviceState{}, ErrInvalidRelay
	}
	mode := models.ModeManual
	if !s.client.AppendRelayRecord(ctx, relay, on, &mode) {
		return DeviceState{}, fmt.Errorf("set relay %d: %w", relay, ErrStoreUnavailable)
	}
	s.log.Infow("relay_set", "relay", relay, "on", on)
	return s.current(relay, on, mode), nil
}

// SetMode changes the mode of a relay and keeps its on/off state.
func (s *DevicesService) SetMode(ctx context.Context, relay int, mode models.RelayMode) (DeviceState, error) {
	if !models.ValidRelay(relay) {
		return DeviceState{}, ErrInvalidRelay
	}
	if !mode.Valid() {
		return DeviceState{}, ErrInvalidMode
	}

	on := false
	if rec, ok := s.client.RelayState(ctx, relay); ok {
		on = rec.State
	} else if snap := s.telemetry.Snapshot(); !snap.RelaysAt.IsZero() {
		on = snap.Relays[relay-1].State
	}

	if !s.client.AppendRelayRecord(ctx, relay, on, &mode) {
		return DeviceState{}, fmt.Errorf("set relay %d mode: %w", relay, ErrStoreUnavailable)
	}
	s.log.Infow("relay_mode_set", "relay", relay, "mode", mode.String())
	return s.current(relay, on, mode), nil
}

// ResetAll switches every relay off in OFF mode so the device starts safe.
func (s *DevicesService) ResetAll(ctx context.Context) error {
	failed := 0
	for n := 1; n <= models.RelayCount; n++ {
		if !s.client.AppendRelayRecord(ctx, n, false, models.ModePtr(models.ModeOff)) {
			failed++
		}
	}
	if failed > 0 {
		return fmt.Errorf("reset %d of %d relays: %w", failed, models.RelayCount, ErrStoreUnavailable)
	}
	s.log.Infow("relays_reset")
	return nil
}

func (s *DevicesService) current(relay int, on bool, mode models.RelayMode) DeviceState {
	return deviceState(models.RelayRecord{
		RelayNumber: relay,
		RelayName:   models.Relay(relay).Name,
		State:       on,
		Mode:        mode,
		CreatedAt:   s.client.now().UTC(),
	}, SourceStore)
}

func deviceState(rec models.RelayRecord, source string) DeviceState {
	name := rec.RelayName
	if name == "" {
		name = models.Relay(rec.RelayNumber).Name
	}
	return DeviceState{
		Relay:     rec.RelayNumber,
		Name:      name,
		On:        rec.State,
		Mode:      rec.Mode,
		ModeLabel: rec.Mode.Label(),
		Source:    source,
		UpdatedAt: rec.CreatedAt,
	}
}
