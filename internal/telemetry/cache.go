// Package telemetry holds the most recent device telemetry in memory.
//
// Each slot (sensors, relays, config) is swapped under a lock, so readers
// always observe a complete value. Every payload is merged field by field into
// its slot: keys present in the payload overwrite and missing keys keep their
// previous value. In sensor payloads an explicit null clears the reading.
package telemetry

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"climate_bridge/internal/logger"
	"climate_bridge/internal/models"
)

// Slot names, also used as metric labels.
const (
	SlotSensors = "sensors"
	SlotRelays  = "relays"
	SlotConfig  = "config"
)

// ErrMalformed is returned for payloads that cannot be applied.
var ErrMalformed = errors.New("malformed telemetry payload")

// Topics maps inbound topics to cache slots.
type Topics struct {
	Sensors     string
	RelayStatus string
	Config      string
}

// Observer receives one call per handled message.
type Observer interface {
	TelemetryMessage(slot string, ok bool)
}

// Snapshot is a consistent copy of the cache.
type Snapshot struct {
	Sensor   models.SensorReading                   `json:"sensor"`
	Relays   [models.RelayCount]models.RelayStatus `json:"relays"`
	Config   models.SystemConfig                    `json:"config"`
	SensorAt time.Time                              `json:"sensor_at,omitempty"`
	RelaysAt time.Time                              `json:"relays_at,omitempty"`
	ConfigAt time.Time                              `json:"config_at,omitempty"`
}

// LastUpdate returns the time of the most recent telemetry of any kind.
func (s Snapshot) LastUpdate() time.Time {
	last := s.SensorAt
	if s.RelaysAt.After(last) {
		last = s.RelaysAt
	}
	if s.ConfigAt.After(last) {
		last = s.ConfigAt
	}
	return last
}

// ActiveRelays counts relays reported on.
func (s Snapshot) ActiveRelays() int {
	n := 0
	for _, r := range s.Relays {
		if r.State {
			n++
		}
	}
	return n
}

type Cache struct {
	mu     sync.RWMutex
	snap   Snapshot
	topics Topics
	log    *logger.Logger
	obs    Observer
	now    func() time.Time
}

// NewCache returns a cache holding the documented defaults. obs may be nil.
func NewCache(topics Topics, log *logger.Logger, obs Observer) *Cache {
	if log == nil {
		log = logger.Nop()
	}
	return &Cache{
		snap: Snapshot{
			Sensor: models.DefaultSensorReading(),
			Relays: models.DefaultRelayStatuses(),
			Config: models.DefaultSystemConfig(),
		},
		topics: topics,
		log:    log,
		obs:    obs,
		now:    time.Now,
	}
}

// Snapshot returns a copy of the current state.
func (c *Cache) Snapshot() Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.snap
}

// Sensor returns the current sensor slot.
func (c *Cache) Sensor() models.SensorReading {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.snap.Sensor
}

// Config returns the current config slot.
func (c *Cache) Config() models.SystemConfig {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.snap.Config
}

// OnTelemetry routes a message to its slot. Unknown topics are ignored and
// malformed payloads are logged and dropped, leaving the slot unchanged.
func (c *Cache) OnTelemetry(topic string, payload []byte) {
	var (
		slot string
		err  error
	)
	switch topic {
	case c.topics.Sensors:
		slot, err = SlotSensors, c.UpdateSensors(payload)
	case c.topics.RelayStatus:
		slot, err = SlotRelays, c.UpdateRelays(payload)
	case c.topics.Config:
		slot, err = SlotConfig, c.UpdateConfig(payload)
	default:
		c.log.Debugw("telemetry_unknown_topic", "topic", topic)
		return
	}
	if c.obs != nil {
		c.obs.TelemetryMessage(slot, err == nil)
	}
	if err != nil {
		c.log.Warnw("telemetry_payload_dropped", "topic", topic, "err", err)
	}
}

// UpdateSensors merges a sensors payload: {"temp", "hum", "alert", "setpoint"}.
func (c *Cache) UpdateSensors(payload []byte) error {
	fields, err := decodeObject(payload)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	next := c.snap.Sensor
	if raw, ok := fields["temp"]; ok {
		if next.Temperature, err = optionalFloat(raw); err != nil {
			return fmt.Errorf("%w: temp: %v", ErrMalformed, err)
		}
	}
	if raw, ok := fields["hum"]; ok {
		if next.Humidity, err = optionalFloat(raw); err != nil {
			return fmt.Errorf("%w: hum: %v", ErrMalformed, err)
		}
	}
	if raw, ok := fields["alert"]; ok {
		if err := json.Unmarshal(raw, &next.Alert); err != nil {
			return fmt.Errorf("%w: alert: %v", ErrMalformed, err)
		}
		if next.Alert == "" {
			next.Alert = models.AlertOK
		}
	}
	if raw, ok := fields["setpoint"]; ok {
		if err := json.Unmarshal(raw, &next.Setpoint); err != nil {
			return fmt.Errorf("%w: setpoint: %v", ErrMalformed, err)
		}
	}

	now := c.now()
	next.CreatedAt = now
	c.snap.Sensor = next
	c.snap.SensorAt = now
	return nil
}

type relayPayload struct {
	Name  *string          `json:"name"`
	State *bool            `json:"state"`
	Mode  *models.RelayMode `json:"mode"`
}

// UpdateRelays merges a relay status payload keyed r1..r4.
func (c *Cache) UpdateRelays(payload []byte) error {
	fields, err := decodeObject(payload)
	if err != nil {
		return err
	}

	var updates [models.RelayCount]*relayPayload
	for i := range updates {
		raw, ok := fields["r"+strconv.Itoa(i+1)]
		if !ok || string(raw) == "null" {
			continue
		}
		var rp relayPayload
		if err := json.Unmarshal(raw, &rp); err != nil {
			return fmt.Errorf("%w: r%d: %v", ErrMalformed, i+1, err)
		}
		if rp.Mode != nil && !rp.Mode.Valid() {
			return fmt.Errorf("%w: r%d: mode %d", ErrMalformed, i+1, int(*rp.Mode))
		}
		updates[i] = &rp
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	next := c.snap.Relays
	for i, rp := range updates {
		if rp == nil {
			continue
		}
		if rp.Name != nil {
			next[i].Name = *rp.Name
		}
		if rp.State != nil {
			next[i].State = *rp.State
		}
		if rp.Mode != nil {
			next[i].Mode = *rp.Mode
		}
	}
	c.snap.Relays = next
	c.snap.RelaysAt = c.now()
	return nil
}

// UpdateConfig merges a device config payload: {"setpoint", "hysteresis",
// "tempMax", "tempMin"}. A reported setpoint is mirrored into the sensor slot.
func (c *Cache) UpdateConfig(payload []byte) error {
	fields, err := decodeObject(payload)
	if err != nil {
		return err
	}

	values := map[string]*float64{}
	for _, key := range []string{"setpoint", "hysteresis", "tempMax", "tempMin"} {
		raw, ok := fields[key]
		if !ok {
			continue
		}
		v, err := optionalFloat(raw)
		if err != nil {
			return fmt.Errorf("%w: %s: %v", ErrMalformed, key, err)
		}
		if v != nil {
			values[key] = v
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	next := c.snap.Config
	if v, ok := values["setpoint"]; ok {
		next.Setpoint = *v
		c.snap.Sensor.Setpoint = *v
	}
	if v, ok := values["hysteresis"]; ok {
		next.Hysteresis = *v
	}
	if v, ok := values["tempMax"]; ok {
		next.TempMax = int(*v)
	}
	if v, ok := values["tempMin"]; ok {
		next.TempMin = int(*v)
	}
	now := c.now()
	next.UpdatedAt = now
	c.snap.Config = next
	c.snap.ConfigAt = now
	return nil
}

func decodeObject(payload []byte) (map[string]json.RawMessage, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(payload, &fields); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if fields == nil {
		return nil, fmt.Errorf("%w: not an object", ErrMalformed)
	}
	return fields, nil
}

func optionalFloat(raw json.RawMessage) (*float64, error) {
	if string(raw) == "null" {
		return nil, nil
	}
	var v float64
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, err
	}
	return &v, nil
}
