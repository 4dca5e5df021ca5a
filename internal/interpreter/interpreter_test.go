package interpreter

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"climate_bridge/internal/models"
	"climate_bridge/internal/telemetry"
)

type relayCall struct {
	relay int
	on    bool
	mode  *models.RelayMode
}

// fakeStore records every call and keeps relay history in memory.
type fakeStore struct {
	mu sync.Mutex

	sensor    *models.SensorReading
	cfg       *models.SystemConfig
	failWrite bool

	calls   []string
	patches []models.ConfigPatch
	relays  []relayCall
	alerts  []models.Alert
	history map[int]models.RelayRecord
}

func newFakeStore() *fakeStore {
	return &fakeStore{history: map[int]models.RelayRecord{}}
}

func (f *fakeStore) record(op string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, op)
}

func (f *fakeStore) LatestSensorReading(context.Context) (models.SensorReading, bool) {
	f.record("sensor")
	if f.sensor == nil {
		return models.SensorReading{}, false
	}
	return *f.sensor, true
}

func (f *fakeStore) SystemConfig(context.Context) (models.SystemConfig, bool) {
	f.record("config")
	if f.cfg == nil {
		return models.SystemConfig{}, false
	}
	return *f.cfg, true
}

func (f *fakeStore) PatchSystemConfig(_ context.Context, p models.ConfigPatch) bool {
	f.record("patch")
	if f.failWrite {
		return false
	}
	f.patches = append(f.patches, p)
	if f.cfg != nil {
		next := p.Apply(*f.cfg)
		f.cfg = &next
	}
	return true
}

func (f *fakeStore) AppendRelayRecord(_ context.Context, relay int, on bool, mode *models.RelayMode) bool {
	f.record("append_relay")
	if f.failWrite {
		return false
	}
	f.relays = append(f.relays, relayCall{relay: relay, on: on, mode: mode})
	rec := models.RelayRecord{RelayNumber: relay, RelayName: models.Relay(relay).Name, State: on}
	if mode != nil {
		rec.Mode = *mode
	}
	f.history[relay] = rec
	return true
}

func (f *fakeStore) RelayStates(context.Context) map[int]models.RelayRecord {
	f.record("relay_states")
	out := make(map[int]models.RelayRecord, len(f.history))
	for k, v := range f.history {
		out[k] = v
	}
	return out
}

func (f *fakeStore) CreateAlert(_ context.Context, typ, msg string, sev models.Severity) bool {
	f.record("alert")
	f.alerts = append(f.alerts, models.Alert{Type: typ, Message: msg, Severity: sev})
	return !f.failWrite
}

func (f *fakeStore) count(op string) int {
	n := 0
	for _, c := range f.calls {
		if c == op {
			n++
		}
	}
	return n
}

type fakeTelemetry struct{ snap telemetry.Snapshot }

func (f *fakeTelemetry) Snapshot() telemetry.Snapshot { return f.snap }
func (f *fakeTelemetry) Sensor() models.SensorReading { return f.snap.Sensor }
func (f *fakeTelemetry) Config() models.SystemConfig  { return f.snap.Config }

func newTelemetry() *fakeTelemetry {
	return &fakeTelemetry{snap: telemetry.Snapshot{
		Sensor: models.DefaultSensorReading(),
		Relays: models.DefaultRelayStatuses(),
		Config: models.DefaultSystemConfig(),
	}}
}

type fakeLink struct {
	up    bool
	calls int
}

func (f *fakeLink) IsConnected() bool {
	f.calls++
	return f.up
}

func newFixture() (*Interpreter, *fakeStore, *fakeTelemetry, *fakeLink) {
	store := newFakeStore()
	tel := newTelemetry()
	link := &fakeLink{up: true}
	return New(store, tel, link, nil), store, tel, link
}

// intentOf reports which rule would claim text, without running it.
func intentOf(ip *Interpreter, text string) Intent {
	if r, ok := ip.classify(parse(text)); ok {
		return r.intent
	}
	return IntentUnknown
}

func TestClassify_PriorityOrder(t *testing.T) {
	ip, _, _, _ := newFixture()

	tests := []struct {
		in   string
		want Intent
	}{
		{"¿Cuál es la temperatura?", IntentTemperature},
		{"cuántos grados hace", IntentTemperature},
		{"¿cuánto calor hace?", IntentTemperature},
		{"¿cuánto es el setpoint?", IntentConfig},
		{"¿cuál es la histéresis?", IntentConfig},
		{"¿cuánta humedad hay?", IntentHumidity},
		{"cuánto", IntentUnknown},
		{"humedad", IntentHumidity},
		{"¿cómo está el sistema?", IntentStatus},
		{"estado", IntentStatus},
		{"dispositivos", IntentDevices},
		{"qué está encendido", IntentDevices},
		{"configuración", IntentConfig},
		{"enciende ventilador", IntentTurnOn},
		{"enciende todos los dispositivos", IntentTurnOn},
		{"prende el 1", IntentTurnOn},
		{"apaga la luz", IntentTurnOff},
		{"desactiva el calefactor", IntentTurnOff},
		{"modo ventilador automático", IntentMode},
		{"modo luz siempre apagado", IntentMode},
		{"cambia setpoint a 25", IntentConfigChange},
		{"temperatura máxima 15", IntentConfigChange},
		{"temperatura maxima 32", IntentConfigChange},
		{"configura la histéresis 1,5", IntentConfigChange},
		{"cambia setpoint a 1e1", IntentConfigChange},
		{"temperatura máxima 1e400", IntentTemperature},
		{"ayuda", IntentHelp},
		{"¿qué puedes hacer?", IntentHelp},
		{"asdkjh", IntentUnknown},
		{"   ", IntentUnknown},
		{"", IntentUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			if got := intentOf(ip, tt.in); got != tt.want {
				t.Fatalf("intentOf(%q) = %s, want %s", tt.in, got, tt.want)
			}
		})
	}
}

func TestInterpret_TemperatureFromCache(t *testing.T) {
	ip, store, tel, _ := newFixture()
	tel.snap.Sensor.Temperature = models.Float(23.44)
	tel.snap.Sensor.Humidity = models.Float(55.2)

	res := ip.Interpret(context.Background(), "temperatura")
	want := "La temperatura actual es 23.4 grados celsius y la humedad es 55 por ciento"
	if res.Response != want {
		t.Fatalf("response:\n got %q\nwant %q", res.Response, want)
	}
	if len(store.calls) != 0 {
		t.Fatalf("live data must not hit the store, calls=%v", store.calls)
	}
}

func TestInterpret_TemperatureFallsBackToStore(t *testing.T) {
	ip, store, _, _ := newFixture()
	store.sensor = &models.SensorReading{Temperature: models.Float(19)}

	res := ip.Interpret(context.Background(), "temp")
	if res.Response != "La temperatura actual es 19.0 grados celsius" {
		t.Fatalf("response: %q", res.Response)
	}
}

func TestInterpret_TemperatureWaiting(t *testing.T) {
	ip, _, _, link := newFixture()

	if got := ip.Interpret(context.Background(), "temperatura").Response; got != msgWaitingSensor {
		t.Fatalf("link up: %q", got)
	}
	link.up = false
	if got := ip.Interpret(context.Background(), "temperatura").Response; got != msgLinkDown {
		t.Fatalf("link down: %q", got)
	}
}

func TestInterpret_StatusHigh(t *testing.T) {
	ip, store, tel, _ := newFixture()
	tel.snap.Sensor.Temperature = models.Float(31)
	tel.snap.Sensor.Humidity = models.Float(40)
	store.cfg = &models.SystemConfig{ID: 1, Setpoint: 24, Hysteresis: 2, TempMax: 30, TempMin: 18}
	store.history[1] = models.RelayRecord{RelayNumber: 1, State: true}
	store.history[2] = models.RelayRecord{RelayNumber: 2, State: false}

	res := ip.Interpret(context.Background(), "estado del sistema")
	if res.Intent != IntentStatus {
		t.Fatalf("intent: %s", res.Intent)
	}
	if !strings.Contains(res.Response, "ALTA") {
		t.Fatalf("expected over-max status, got %q", res.Response)
	}
	if !strings.Contains(res.Response, "Dispositivos activos: 1 de 4") {
		t.Fatalf("expected relay count, got %q", res.Response)
	}
	if store.count("config") != 1 {
		t.Fatalf("config must be read once per invocation, got %d", store.count("config"))
	}
}

func TestInterpret_StatusUsesCachedConfigWhenStoreDown(t *testing.T) {
	ip, _, tel, _ := newFixture()
	tel.snap.Sensor.Temperature = models.Float(10)
	tel.snap.Config.TempMin = 15

	res := ip.Interpret(context.Background(), "estado")
	if !strings.Contains(res.Response, "BAJA") {
		t.Fatalf("expected under-min status, got %q", res.Response)
	}
	if strings.Contains(res.Response, "Dispositivos activos") {
		t.Fatalf("relay count must be omitted without relay data: %q", res.Response)
	}
}

func TestInterpret_StatusWithoutData(t *testing.T) {
	ip, _, _, _ := newFixture()
	if got := ip.Interpret(context.Background(), "estado").Response; got != msgSystemStarting {
		t.Fatalf("response: %q", got)
	}
}

func TestInterpret_DevicesOmitsAbsentRelays(t *testing.T) {
	ip, store, _, _ := newFixture()
	store.history[2] = models.RelayRecord{RelayNumber: 2, RelayName: "Calefactor", State: true, Mode: models.ModeAuto}

	res := ip.Interpret(context.Background(), "dispositivos")
	if res.Response != "Estado actual: Calefactor: encendido" {
		t.Fatalf("response: %q", res.Response)
	}
	res = ip.Interpret(context.Background(), "dispositivos y modos")
	if res.Response != "Estado actual: Calefactor: encendido (Automático)" {
		t.Fatalf("with modes: %q", res.Response)
	}
}

func TestInterpret_DevicesFallsBackToTelemetry(t *testing.T) {
	ip, _, tel, _ := newFixture()
	if got := ip.Interpret(context.Background(), "dispositivos").Response; got != msgNoDevices {
		t.Fatalf("no data: %q", got)
	}

	tel.snap.RelaysAt = time.Now()
	tel.snap.Relays[3].State = true
	got := ip.Interpret(context.Background(), "dispositivos").Response
	if !strings.Contains(got, "Foco/Luz: encendido") || !strings.Contains(got, "Ventilador: apagado") {
		t.Fatalf("telemetry fallback: %q", got)
	}
}

func TestInterpret_ConfigQuery(t *testing.T) {
	ip, store, _, _ := newFixture()
	store.cfg = &models.SystemConfig{Setpoint: 24.5, Hysteresis: 1.5, TempMax: 32, TempMin: 16}

	want := "Configuración actual: Temperatura objetivo 24.5°C, Histéresis 1.5°C, Temperatura máxima 32°C, Temperatura mínima 16°C"
	if got := ip.Interpret(context.Background(), "config").Response; got != want {
		t.Fatalf("response:\n got %q\nwant %q", got, want)
	}
}

func TestInterpret_TurnOnFan(t *testing.T) {
	ip, store, _, _ := newFixture()

	res := ip.Interpret(context.Background(), "enciende ventilador")
	if res.Intent != IntentTurnOn {
		t.Fatalf("intent: %s", res.Intent)
	}
	if len(store.relays) != 1 {
		t.Fatalf("expected exactly one append, got %d", len(store.relays))
	}
	call := store.relays[0]
	if call.relay != 1 || !call.on || call.mode == nil || *call.mode != models.ModeManual {
		t.Fatalf("append call: %+v", call)
	}
	if !strings.Contains(res.Response, "ventilador") {
		t.Fatalf("response must mention the device: %q", res.Response)
	}
	if store.count("config") != 0 {
		t.Fatalf("turn-on must not read config")
	}
}

func TestInterpret_TurnOnIsRepeatable(t *testing.T) {
	ip, store, _, _ := newFixture()

	first := ip.Interpret(context.Background(), "enciende la luz")
	second := ip.Interpret(context.Background(), "enciende la luz")
	if first.Response != second.Response {
		t.Fatalf("responses differ: %q vs %q", first.Response, second.Response)
	}
	if len(store.relays) != 2 {
		t.Fatalf("history is append-only, want 2 appends, got %d", len(store.relays))
	}
	if !store.RelayStates(context.Background())[4].State {
		t.Fatalf("light must be on")
	}
}

func TestInterpret_DeviceTokens(t *testing.T) {
	tests := []struct {
		in     string
		relays []int
		on     bool
	}{
		{"prende el 2", []int{2}, true},
		{"enciende el calefactor", []int{2}, true},
		{"apaga el humidificador", []int{3}, false},
		{"apaga foco", []int{4}, false},
		{"enciende todo", []int{1, 2, 3, 4}, true},
		{"apaga todos", []int{1, 2, 3, 4}, false},
		// names win over ids
		{"enciende la luz 1", []int{4}, true},
		// digits embedded in other tokens are not ids
		{"enciende r12", nil, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			ip, store, _, _ := newFixture()
			ip.Interpret(context.Background(), tt.in)
			if len(store.relays) != len(tt.relays) {
				t.Fatalf("appends: got %+v, want relays %v", store.relays, tt.relays)
			}
			for i, n := range tt.relays {
				if store.relays[i].relay != n || store.relays[i].on != tt.on {
					t.Fatalf("append %d: %+v", i, store.relays[i])
				}
			}
		})
	}
}

func TestInterpret_TurnOnUnknownDevice(t *testing.T) {
	ip, store, _, _ := newFixture()
	if got := ip.Interpret(context.Background(), "enciende la tele").Response; got != msgWhichDeviceOn {
		t.Fatalf("response: %q", got)
	}
	if got := ip.Interpret(context.Background(), "apaga eso").Response; got != msgWhichDeviceOff {
		t.Fatalf("response: %q", got)
	}
	if len(store.calls) != 0 {
		t.Fatalf("no store call expected, got %v", store.calls)
	}
}

func TestInterpret_TurnOnStoreFailure(t *testing.T) {
	ip, store, _, _ := newFixture()
	store.failWrite = true

	got := ip.Interpret(context.Background(), "enciende ventilador").Response
	if !strings.HasPrefix(got, "No pude encender el ventilador") {
		t.Fatalf("response: %q", got)
	}
	got = ip.Interpret(context.Background(), "apaga todo").Response
	if !strings.HasPrefix(got, "No pude apagar los dispositivos") {
		t.Fatalf("response: %q", got)
	}
}

func TestInterpret_ModePreservesState(t *testing.T) {
	ip, store, _, _ := newFixture()
	store.history[1] = models.RelayRecord{RelayNumber: 1, State: true, Mode: models.ModeManual}

	res := ip.Interpret(context.Background(), "modo ventilador automático")
	if res.Response != "✅ He cambiado el ventilador a modo automático" {
		t.Fatalf("response: %q", res.Response)
	}
	call := store.relays[0]
	if call.relay != 1 || !call.on || *call.mode != models.ModeAuto {
		t.Fatalf("append: %+v", call)
	}
}

func TestInterpret_ModeTokens(t *testing.T) {
	tests := []struct {
		in   string
		mode models.RelayMode
	}{
		{"modo calefactor manual", models.ModeManual},
		{"modo luz siempre encendido", models.ModeForcedOn},
		{"modo humidificador siempre apagado", models.ModeOff},
		{"pon el 3 en modo auto", models.ModeAuto},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			ip, store, _, _ := newFixture()
			res := ip.Interpret(context.Background(), tt.in)
			if res.Intent != IntentMode || len(store.relays) != 1 || *store.relays[0].mode != tt.mode {
				t.Fatalf("intent %s, appends %+v", res.Intent, store.relays)
			}
			if store.relays[0].on {
				t.Fatalf("relay without history must stay off")
			}
		})
	}
}

func TestInterpret_ModeClarifications(t *testing.T) {
	ip, store, _, _ := newFixture()
	if got := ip.Interpret(context.Background(), "modo ventilador rápido").Response; got != msgModes {
		t.Fatalf("unknown mode: %q", got)
	}
	if got := ip.Interpret(context.Background(), "modo automático").Response; got != msgModeDevice {
		t.Fatalf("missing device: %q", got)
	}
	if len(store.relays) != 0 {
		t.Fatalf("no append expected")
	}
}

func TestInterpret_ConfigChange(t *testing.T) {
	tests := []struct {
		name  string
		in    string
		check func(t *testing.T, p models.ConfigPatch)
		reply string
		alert bool
	}{
		{
			name:  "setpoint",
			in:    "cambia setpoint a 25",
			check: func(t *testing.T, p models.ConfigPatch) { assertFloat(t, p.Setpoint, 25) },
			reply: "✅ Temperatura objetivo cambiada a 25°C",
		},
		{
			name:  "decimal comma",
			in:    "ajusta la temperatura objetivo a 22,5",
			check: func(t *testing.T, p models.ConfigPatch) { assertFloat(t, p.Setpoint, 22.5) },
			reply: "✅ Temperatura objetivo cambiada a 22.5°C",
		},
		{
			name:  "hysteresis",
			in:    "histéresis 1,5",
			check: func(t *testing.T, p models.ConfigPatch) { assertFloat(t, p.Hysteresis, 1.5) },
			reply: "✅ Histéresis cambiada a 1.5°C",
		},
		{
			name: "temp max truncates",
			in:   "temperatura máxima 32.7",
			check: func(t *testing.T, p models.ConfigPatch) {
				if p.TempMax == nil || *p.TempMax != 32 || p.Setpoint != nil {
					t.Fatalf("patch: %+v", p)
				}
			},
			reply: "✅ Temperatura máxima configurada en 32°C. Te avisaré si se supera este valor",
			alert: true,
		},
		{
			name: "temp min with degree sign",
			in:   "pon la mínima en 18°C",
			check: func(t *testing.T, p models.ConfigPatch) {
				if p.TempMin == nil || *p.TempMin != 18 {
					t.Fatalf("patch: %+v", p)
				}
			},
			reply: "✅ Temperatura mínima configurada en 18°C. Te avisaré si baja de este valor",
			alert: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ip, store, _, _ := newFixture()
			store.cfg = &models.SystemConfig{ID: 1, Setpoint: 24, Hysteresis: 2, TempMax: 30, TempMin: 18}

			res := ip.Interpret(context.Background(), tt.in)
			if res.Intent != IntentConfigChange || res.Response != tt.reply {
				t.Fatalf("got %s %q, want %q", res.Intent, res.Response, tt.reply)
			}
			if len(store.patches) != 1 {
				t.Fatalf("patches: %d", len(store.patches))
			}
			tt.check(t, store.patches[0])
			if tt.alert {
				if len(store.alerts) != 1 || store.alerts[0].Type != models.AlertConfigChange || store.alerts[0].Severity != models.SeverityWarning {
					t.Fatalf("alerts: %+v", store.alerts)
				}
			} else if len(store.alerts) != 0 {
				t.Fatalf("unexpected alerts: %+v", store.alerts)
			}
		})
	}
}

func TestInterpret_ConfigChangeOutOfBounds(t *testing.T) {
	tests := []struct {
		in    string
		reply string
	}{
		{"temperatura máxima 15", "La temperatura máxima debe estar entre 20 y 50 grados"},
		{"temperatura mínima 26", "La temperatura mínima debe estar entre 5 y 25 grados"},
		{"temperatura mínima -5", "La temperatura mínima debe estar entre 5 y 25 grados"},
		{"cambia setpoint a 40", "El setpoint debe estar entre 15 y 35 grados"},
		{"histéresis 0,2", "La histéresis debe estar entre 0.5 y 5 grados"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			ip, store, _, _ := newFixture()
			res := ip.Interpret(context.Background(), tt.in)
			if res.Response != tt.reply {
				t.Fatalf("got %q, want %q", res.Response, tt.reply)
			}
			if len(store.calls) != 0 {
				t.Fatalf("no store call expected, got %v", store.calls)
			}
		})
	}
}

func TestInterpret_ConfigChangePrompts(t *testing.T) {
	ip, store, _, _ := newFixture()
	if got := ip.Interpret(context.Background(), "cambia la máxima").Response; got != msgNeedNumber {
		t.Fatalf("missing number: %q", got)
	}
	if got := ip.Interpret(context.Background(), "cambia a 25").Response; got != msgWhichField {
		t.Fatalf("missing field: %q", got)
	}
	if len(store.calls) != 0 {
		t.Fatalf("no store call expected, got %v", store.calls)
	}
}

func TestInterpret_ConfigChangeRejectsNonDecimalNumbers(t *testing.T) {
	for _, in := range []string{"cambia setpoint a 1e1", "cambia setpoint a 0x1A", "pon la máxima en 3.0.1", "cambia setpoint a 2,5,0"} {
		t.Run(in, func(t *testing.T) {
			ip, store, _, _ := newFixture()
			if got := ip.Interpret(context.Background(), in).Response; got != msgNeedNumber {
				t.Fatalf("response: %q", got)
			}
			if len(store.patches) != 0 {
				t.Fatalf("unexpected patch %+v", store.patches)
			}
		})
	}
}

func TestParseNumber(t *testing.T) {
	cases := []struct {
		in   string
		want float64
		ok   bool
	}{
		{"25", 25, true},
		{"1,5", 1.5, true},
		{"22.5", 22.5, true},
		{"-3", -3, true},
		{"30ºc", 30, true},
		{"1e1", 0, false},
		{"1e400", 0, false},
		{"0x1a", 0, false},
		{"3.0.1", 0, false},
		{"--5", 0, false},
		{"-", 0, false},
		{"inf", 0, false},
		{"5-", 0, false},
	}
	for _, tc := range cases {
		t.Run(tc.in, func(t *testing.T) {
			got, ok := parseNumber(tc.in)
			if ok != tc.ok || got != tc.want {
				t.Fatalf("parseNumber(%q) = %v, %v; want %v, %v", tc.in, got, ok, tc.want, tc.ok)
			}
		})
	}
}

func TestInterpret_ConfigChangeStoreFailure(t *testing.T) {
	ip, store, _, _ := newFixture()
	store.failWrite = true

	if got := ip.Interpret(context.Background(), "temperatura máxima 35").Response; got != msgConfigSave {
		t.Fatalf("response: %q", got)
	}
	if len(store.alerts) != 0 {
		t.Fatalf("no alert on failed patch")
	}
}

func TestInterpret_AlertFailureKeepsReply(t *testing.T) {
	ip, store, _, _ := newFixture()
	store.cfg = &models.SystemConfig{ID: 1, Setpoint: 24, TempMax: 30, TempMin: 18}
	ip.store = &alertFailingStore{fakeStore: store}

	res := ip.Interpret(context.Background(), "temperatura máxima 35")
	if !strings.HasPrefix(res.Response, "✅ Temperatura máxima configurada en 35°C") {
		t.Fatalf("response: %q", res.Response)
	}
}

type alertFailingStore struct{ *fakeStore }

func (s *alertFailingStore) CreateAlert(context.Context, string, string, models.Severity) bool {
	return false
}

func TestInterpret_FallbackHasNoSideEffects(t *testing.T) {
	ip, store, _, link := newFixture()

	res := ip.Interpret(context.Background(), "asdkjh")
	if res.Intent != IntentUnknown || res.Response != msgFallback {
		t.Fatalf("got %s %q", res.Intent, res.Response)
	}
	if len(store.calls) != 0 || link.calls != 0 {
		t.Fatalf("fallback must not touch collaborators: store=%v link=%d", store.calls, link.calls)
	}
}

func TestInterpret_Help(t *testing.T) {
	ip, _, _, _ := newFixture()
	if got := ip.Interpret(context.Background(), "ayuda").Response; got != msgHelp {
		t.Fatalf("help: %q", got)
	}
}

func TestIntentString(t *testing.T) {
	if IntentConfigChange.String() != "config_change" || Intent(99).String() != "unknown" {
		t.Fatalf("unexpected names")
	}
	if !IntentMode.Control() || IntentStatus.Control() {
		t.Fatalf("control classification")
	}
}

func assertFloat(t *testing.T, got *float64, want float64) {
	t.Helper()
	if got == nil || *got != want {
		t.Fatalf("got %v, want %v", got, want)
	}
}
