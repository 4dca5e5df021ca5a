// Package service holds the bridge use cases behind the chat and HTTP
// surfaces: the state store client, device and settings control, monitoring,
// the command assistant, the limit watchdog, the command journal and auth.
package service

import (
	"context"
	"time"

	"climate_bridge/internal/interpreter"
	"climate_bridge/internal/logger"
	"climate_bridge/internal/models"
	"climate_bridge/internal/repository"
)

type Authorization interface {
	SignUp(ctx context.Context, username, password string) (int, error)
	GenerateToken(ctx context.Context, username, password string) (string, error)
	ParseToken(accessToken string) (int, error)
}

// Devices controls the relays.
type Devices interface {
	List(ctx context.Context) ([]DeviceState, error)
	SetState(ctx context.Context, relay int, on bool) (DeviceState, error)
	SetMode(ctx context.Context, relay int, mode models.RelayMode) (DeviceState, error)
	ResetAll(ctx context.Context) error
}

// Settings reads and changes the climate configuration.
type Settings interface {
	Get(ctx context.Context) (models.SystemConfig, error)
	Patch(ctx context.Context, p models.ConfigPatch) (models.SystemConfig, error)
}

// Monitoring exposes read-only live state and the alert log.
type Monitoring interface {
	Telemetry(ctx context.Context) TelemetryView
	Alerts(ctx context.Context, limit int) ([]models.Alert, error)
}

// EventLog exposes the command journal with filtering access.
type EventLog interface {
	List(ctx context.Context, f LogFilter) ([]models.CommandEvent, error)
}

// Assistant answers utterances and voices the answers.
type Assistant interface {
	Handle(ctx context.Context, req Request) Reply
	Speak(ctx context.Context, text string) []byte
	Transcribe(ctx context.Context, audio []byte, filename string) (string, error)
}

// Watchdog runs the background limit checks.
// Stop via context cancellation in main() for graceful shutdown.
type Watchdog interface {
	Run(ctx context.Context, tick time.Duration)
}

// Service aggregates all sub-services.
type Service struct {
	Devices
	Settings
	Monitoring
	EventLog
	Assistant
	Watchdog
	Authorization
}

// Deps are the collaborators NewService wires together.
type Deps struct {
	Repos      *repository.Repository
	Device     DevicePublisher
	Telemetry  interpreter.Telemetry
	Link       interpreter.Link
	Assistant  AssistantOptions
	Watchdog   WatchdogOptions
	Notifier   Notifier
	Observer   StoreObserver
	SigningKey string
	TokenTTL   time.Duration
}

// NewService wires the repository layer and the device link into concrete
// services. All of them act through one StateClient.
func NewService(d Deps, log *logger.Logger) *Service {
	if log == nil {
		log = logger.Nop()
	}
	client := NewStateClient(d.Repos.State, d.Device, log.Named("store"), d.Observer)
	interp := interpreter.New(client, d.Telemetry, d.Link, log.Named("interpreter"))

	assistantOpts := d.Assistant
	if assistantOpts.Journal == nil {
		assistantOpts.Journal = d.Repos.Journal
	}

	return &Service{
		Devices:       NewDevicesService(client, d.Telemetry, log.Named("devices")),
		Settings:      NewSettingsService(client, d.Telemetry, log.Named("settings")),
		Monitoring:    NewMonitoringService(client, d.Telemetry, d.Link, d.Watchdog.StaleAfter),
		EventLog:      NewEventLogService(d.Repos.Journal),
		Assistant:     NewAssistantService(interp, assistantOpts, log.Named("assistant")),
		Watchdog:      NewWatchdogService(client, d.Telemetry, d.Notifier, d.Watchdog, log.Named("watchdog")),
		Authorization: NewAuthService(d.Repos.Auth, d.SigningKey, d.TokenTTL),
	}
}
