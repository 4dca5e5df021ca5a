package handlers

import (
	"context"
	"net/http"

	"climate_bridge/internal/models"
	"climate_bridge/internal/service"

	"github.com/gin-gonic/gin"
)

// ---- Service Mocks ----

type mockAuth struct {
	signUpID      int
	signUpErr     error
	genTokenToken string
	genTokenErr   error
	parseID       int
	parseErr      error

	lastSignUpUsername string
	lastSignUpPassword string
	lastGenUsername    string
	lastGenPassword    string
	lastParseToken     string
}

func (m *mockAuth) SignUp(_ context.Context, username, password string) (int, error) {
	m.lastSignUpUsername = username
	m.lastSignUpPassword = password
	return m.signUpID, m.signUpErr
}
func (m *mockAuth) GenerateToken(_ context.Context, username, password string) (string, error) {
	m.lastGenUsername = username
	m.lastGenPassword = password
	return m.genTokenToken, m.genTokenErr
}
func (m *mockAuth) ParseToken(token string) (int, error) {
	m.lastParseToken = token
	return m.parseID, m.parseErr
}

type mockDevices struct {
	list     []service.DeviceState
	listErr  error
	setErr   error
	resetErr error

	lastRelay  int
	lastOn     bool
	lastMode   models.RelayMode
	stateCalls int
	modeCalls  int
	resetCalls int
}

func (m *mockDevices) List(context.Context) ([]service.DeviceState, error) {
	return m.list, m.listErr
}
func (m *mockDevices) SetState(_ context.Context, relay int, on bool) (service.DeviceState, error) {
	m.stateCalls++
	m.lastRelay, m.lastOn = relay, on
	if m.setErr != nil {
		return service.DeviceState{}, m.setErr
	}
	return service.DeviceState{Relay: relay, On: on, Mode: models.ModeManual}, nil
}
func (m *mockDevices) SetMode(_ context.Context, relay int, mode models.RelayMode) (service.DeviceState, error) {
	m.modeCalls++
	m.lastRelay, m.lastMode = relay, mode
	if m.setErr != nil {
		return service.DeviceState{}, m.setErr
	}
	return service.DeviceState{Relay: relay, Mode: mode}, nil
}
func (m *mockDevices) ResetAll(context.Context) error {
	m.resetCalls++
	return m.resetErr
}

type mockSettings struct {
	cfg       models.SystemConfig
	getErr    error
	patchErr  error
	lastPatch models.ConfigPatch
	patches   int
}

func (m *mockSettings) Get(context.Context) (models.SystemConfig, error) { return m.cfg, m.getErr }
func (m *mockSettings) Patch(_ context.Context, p models.ConfigPatch) (models.SystemConfig, error) {
	m.patches++
	m.lastPatch = p
	if m.patchErr != nil {
		return models.SystemConfig{}, m.patchErr
	}
	return p.Apply(m.cfg), nil
}

type mockMonitoring struct {
	view      service.TelemetryView
	alerts    []models.Alert
	alertsErr error
	lastLimit int
}

func (m *mockMonitoring) Telemetry(context.Context) service.TelemetryView { return m.view }
func (m *mockMonitoring) Alerts(_ context.Context, limit int) ([]models.Alert, error) {
	m.lastLimit = limit
	return m.alerts, m.alertsErr
}

type mockEventLog struct {
	resp  []models.CommandEvent
	err   error
	last  service.LogFilter
	calls int
}

func (m *mockEventLog) List(_ context.Context, f service.LogFilter) ([]models.CommandEvent, error) {
	m.calls++
	m.last = f
	return m.resp, m.err
}

type mockAssistant struct {
	reply   service.Reply
	lastReq service.Request
	calls   int
}

func (m *mockAssistant) Handle(_ context.Context, req service.Request) service.Reply {
	m.calls++
	m.lastReq = req
	return m.reply
}
func (m *mockAssistant) Speak(context.Context, string) []byte { return nil }
func (m *mockAssistant) Transcribe(context.Context, []byte, string) (string, error) {
	return "", nil
}

// ---- Shared Test Helpers ----

func newTestRouter(s *service.Service) *gin.Engine {
	h := NewHandler(s, nil, nil)
	gin.SetMode(gin.TestMode)
	return h.InitRoutes()
}

func authHeader(token string) http.Header {
	h := http.Header{}
	if token != "" {
		h.Set("Authorization", "Bearer "+token)
	}
	return h
}
