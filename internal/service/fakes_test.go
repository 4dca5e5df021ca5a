package service

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"climate_bridge/internal/models"
	"climate_bridge/internal/repository"
	"climate_bridge/internal/telemetry"
)

var errStoreDown = errors.New("store down")

// memStore is an in-memory repository.StateStore. fail lists operations that
// return errStoreDown.
type memStore struct {
	mu       sync.Mutex
	readings []models.SensorReading
	config   *models.SystemConfig
	relays   []models.RelayRecord
	alerts   []models.Alert
	patches  []models.ConfigPatch
	fail     map[string]bool
	calls    map[string]int
}

func newMemStore() *memStore {
	cfg := models.DefaultSystemConfig()
	cfg.ID = 1
	return &memStore{config: &cfg, fail: map[string]bool{}, calls: map[string]int{}}
}

func (m *memStore) hit(op string) error {
	m.calls[op]++
	if m.fail[op] {
		return errStoreDown
	}
	return nil
}

func (m *memStore) LatestSensorReading(context.Context) (models.SensorReading, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.hit(opLatestSensor); err != nil {
		return models.SensorReading{}, err
	}
	if len(m.readings) == 0 {
		return models.SensorReading{}, repository.ErrNotFound
	}
	return m.readings[len(m.readings)-1], nil
}

func (m *memStore) AppendSensorReading(_ context.Context, r models.SensorReading) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.hit(opAppendSensor); err != nil {
		return err
	}
	m.readings = append(m.readings, r)
	return nil
}

func (m *memStore) LatestSystemConfig(context.Context) (models.SystemConfig, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.hit(opSystemConfig); err != nil {
		return models.SystemConfig{}, err
	}
	if m.config == nil {
		return models.SystemConfig{}, repository.ErrNotFound
	}
	return *m.config, nil
}

func (m *memStore) PatchSystemConfig(_ context.Context, p models.ConfigPatch) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.hit(opPatchConfig); err != nil {
		return err
	}
	if m.config == nil {
		return repository.ErrNotFound
	}
	next := p.Apply(*m.config)
	m.config = &next
	m.patches = append(m.patches, p)
	return nil
}

func (m *memStore) AppendRelayRecord(_ context.Context, r models.RelayRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.hit(opAppendRelay); err != nil {
		return err
	}
	m.relays = append(m.relays, r)
	return nil
}

func (m *memStore) LatestRelayRecord(_ context.Context, relay int) (models.RelayRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.hit(opLatestRelay); err != nil {
		return models.RelayRecord{}, err
	}
	for i := len(m.relays) - 1; i >= 0; i-- {
		if m.relays[i].RelayNumber == relay {
			return m.relays[i], nil
		}
	}
	return models.RelayRecord{}, repository.ErrNotFound
}

func (m *memStore) AppendAlert(_ context.Context, a models.Alert) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.hit(opCreateAlert); err != nil {
		return err
	}
	m.alerts = append(m.alerts, a)
	return nil
}

func (m *memStore) RecentAlerts(_ context.Context, limit int) ([]models.Alert, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.hit(opRecentAlerts); err != nil {
		return nil, err
	}
	out := append([]models.Alert(nil), m.alerts...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *memStore) count(op string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[op]
}

type published struct {
	kind  string
	relay int
	value string
}

type fakePublisher struct {
	mu   sync.Mutex
	sent []published
	err  error
}

func (p *fakePublisher) PublishRelayCommand(_ context.Context, relay int, on bool) error {
	v := "OFF"
	if on {
		v = "ON"
	}
	return p.record(published{kind: "cmd", relay: relay, value: v})
}

func (p *fakePublisher) PublishRelayMode(_ context.Context, relay int, mode models.RelayMode) error {
	return p.record(published{kind: "mode", relay: relay, value: mode.String()})
}

func (p *fakePublisher) PublishConfigPatch(context.Context, models.ConfigPatch) error {
	return p.record(published{kind: "config"})
}

func (p *fakePublisher) record(m published) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sent = append(p.sent, m)
	return p.err
}

func (p *fakePublisher) messages() []published {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]published(nil), p.sent...)
}

type fakeTelemetry struct {
	mu   sync.Mutex
	snap telemetry.Snapshot
}

func newFakeTelemetry() *fakeTelemetry {
	return &fakeTelemetry{snap: telemetry.Snapshot{
		Sensor: models.DefaultSensorReading(),
		Relays: models.DefaultRelayStatuses(),
		Config: models.DefaultSystemConfig(),
	}}
}

func (f *fakeTelemetry) Snapshot() telemetry.Snapshot {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.snap
}

func (f *fakeTelemetry) Sensor() models.SensorReading { return f.Snapshot().Sensor }
func (f *fakeTelemetry) Config() models.SystemConfig  { return f.Snapshot().Config }

func (f *fakeTelemetry) setTemp(temp float64, at time.Time) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.snap.Sensor.Temperature = models.Float(temp)
	f.snap.SensorAt = at
}

type fakeLink struct{ up bool }

func (l fakeLink) IsConnected() bool { return l.up }

type recordingNotifier struct {
	mu   sync.Mutex
	msgs []string
}

func (n *recordingNotifier) Notify(_ context.Context, text string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.msgs = append(n.msgs, text)
}

type storeOpCounter struct {
	mu  sync.Mutex
	ok  map[string]int
	bad map[string]int
}

func newStoreOpCounter() *storeOpCounter {
	return &storeOpCounter{ok: map[string]int{}, bad: map[string]int{}}
}

func (o *storeOpCounter) StoreOp(op string, _ time.Duration, ok bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if ok {
		o.ok[op]++
		return
	}
	o.bad[op]++
}

var fixedNow = time.Date(2025, time.June, 1, 12, 0, 0, 0, time.UTC)

func newTestClient(store *memStore, pub *fakePublisher) *StateClient {
	var dp DevicePublisher
	if pub != nil {
		dp = pub
	}
	c := NewStateClient(store, dp, nil, nil)
	c.now = func() time.Time { return fixedNow }
	return c
}
