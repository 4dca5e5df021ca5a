package models

import "time"

// Sources a command can arrive from.
const (
	SourceText     = "TEXT"
	SourceVoice    = "VOICE"
	SourceCallback = "CALLBACK"
	SourceHTTP     = "HTTP"
)

// ValidSource reports whether s is one of the Source* constants.
func ValidSource(s string) bool {
	switch s {
	case SourceText, SourceVoice, SourceCallback, SourceHTTP:
		return true
	}
	return false
}

// CommandEvent is a single journal entry for an interpreted command.
type CommandEvent struct {
	EventID    string    `json:"event_id"`
	OccurredAt time.Time `json:"occurred_at"`
	Source     string    `json:"source"` // TEXT | VOICE | CALLBACK | HTTP
	ChatID     int64     `json:"chat_id,omitempty"`
	OperatorID int       `json:"operator_id,omitempty"` // HTTP operator account, 0 for chat
	Utterance  string    `json:"utterance"`
	Intent     string    `json:"intent"`
	Response   string    `json:"response"`
}
