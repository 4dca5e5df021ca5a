package service

import (
	"time"

	"climate_bridge/internal/models"
	"climate_bridge/internal/telemetry"
)

// DeviceState is the current state of one relay.
type DeviceState struct {
	Relay     int              `json:"relay"`
	Name      string           `json:"name"`
	On        bool             `json:"on"`
	Mode      models.RelayMode `json:"mode"`
	ModeLabel string           `json:"mode_label"`
	Source    string           `json:"source"` // "store" | "telemetry"
	UpdatedAt time.Time        `json:"updated_at,omitempty"`
}

// State sources.
const (
	SourceStore     = "store"
	SourceTelemetry = "telemetry"
)

// TelemetryView is the live cache as exposed to operators.
type TelemetryView struct {
	telemetry.Snapshot
	LastUpdate time.Time `json:"last_update,omitempty"`
	// AgeSeconds is -1 until any telemetry has arrived.
	AgeSeconds float64 `json:"age_seconds"`
	Stale      bool    `json:"stale"`
	LinkUp     bool    `json:"link_up"`
	Level      string  `json:"level"` // "ok" | "high" | "low" | "unknown"
	RelaysOn   int     `json:"relays_on"`
}

// LogFilter selects journal entries. Zero fields do not filter.
type LogFilter struct {
	From       time.Time // inclusive
	To         time.Time // inclusive
	Intent     string    // "temperature", "turn_on", ...
	Source     string    // models.Source*
	OperatorID int
}

// Request is one utterance to interpret.
type Request struct {
	Source     string // models.Source*
	ChatID     int64
	OperatorID int // authenticated HTTP operator, 0 for chat
	Text       string
}

// Reply is the interpreted response.
type Reply struct {
	EventID string `json:"event_id"`
	Intent  string `json:"intent"`
	Text    string `json:"text"`
	// Control is set when the intent writes relay or config state.
	Control bool `json:"control"`
}
