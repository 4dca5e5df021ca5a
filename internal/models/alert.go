package models

import "time"

// Severity of a system alert.
type Severity string

const (
	SeverityInfo     Severity = "INFO"
	SeverityWarning  Severity = "WARNING"
	SeverityCritical Severity = "CRITICAL"
)

// Alert types raised by the bridge.
const (
	AlertConfigChange = "CONFIG_CHANGE"
	AlertTempHigh     = "TEMP_HIGH"
	AlertTempLow      = "TEMP_LOW"
	AlertStaleData    = "STALE_DATA"
)

// Alert is an entry appended to the alert log.
type Alert struct {
	Type      string    `json:"alert_type"`
	Message   string    `json:"message"`
	Severity  Severity  `json:"severity"`
	CreatedAt time.Time `json:"created_at"`
}
