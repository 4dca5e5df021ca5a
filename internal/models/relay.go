package models

import (
	"fmt"
	"time"
)

// RelayCount is the number of relays on the device.
const RelayCount = 4

// Relay identities.
const (
	RelayFan        = 1
	RelayHeater     = 2
	RelayHumidifier = 3
	RelayLight      = 4
)

// RelayInfo describes one relay for display and speech.
type RelayInfo struct {
	Number int
	Name   string // name stored with relay records
	Spoken string // name with article, as used in replies
}

var relays = [RelayCount]RelayInfo{
	{Number: RelayFan, Name: "Ventilador", Spoken: "el ventilador"},
	{Number: RelayHeater, Name: "Calefactor", Spoken: "el calefactor"},
	{Number: RelayHumidifier, Name: "Humidificador", Spoken: "el humidificador"},
	{Number: RelayLight, Name: "Foco/Luz", Spoken: "la luz"},
}

// ValidRelay reports whether n names a relay.
func ValidRelay(n int) bool { return n >= 1 && n <= RelayCount }

// Relay returns the identity of relay n. n must be valid.
func Relay(n int) RelayInfo { return relays[n-1] }

// Relays returns all relay identities ordered by number.
func Relays() []RelayInfo {
	out := make([]RelayInfo, RelayCount)
	copy(out, relays[:])
	return out
}

// RelayMode is the control mode of a relay.
type RelayMode int

const (
	ModeOff      RelayMode = 0
	ModeForcedOn RelayMode = 1
	ModeAuto     RelayMode = 2
	ModeManual   RelayMode = 3
)

// Valid reports whether m is a known mode.
func (m RelayMode) Valid() bool { return m >= ModeOff && m <= ModeManual }

func (m RelayMode) String() string {
	switch m {
	case ModeOff:
		return "OFF"
	case ModeForcedOn:
		return "FORCED_ON"
	case ModeAuto:
		return "AUTO"
	case ModeManual:
		return "MANUAL"
	default:
		return fmt.Sprintf("MODE(%d)", int(m))
	}
}

// Label returns the user-facing name of the mode.
func (m RelayMode) Label() string {
	switch m {
	case ModeOff:
		return "Siempre apagado"
	case ModeForcedOn:
		return "Siempre encendido"
	case ModeAuto:
		return "Automático"
	case ModeManual:
		return "Manual"
	default:
		return "Desconocido"
	}
}

// ParseRelayMode accepts a mode name (OFF, FORCED_ON, AUTO, MANUAL) or its number.
func ParseRelayMode(s string) (RelayMode, error) {
	for m := ModeOff; m <= ModeManual; m++ {
		if s == m.String() || s == fmt.Sprint(int(m)) {
			return m, nil
		}
	}
	return 0, fmt.Errorf("unknown relay mode %q", s)
}

// ModePtr returns a pointer to m.
func ModePtr(m RelayMode) *RelayMode { return &m }

// RelayStatus is the live state of a relay as reported by the device.
type RelayStatus struct {
	Name  string    `json:"name"`
	State bool      `json:"state"`
	Mode  RelayMode `json:"mode"`
}

// DefaultRelayStatuses returns every relay off in OFF mode.
func DefaultRelayStatuses() [RelayCount]RelayStatus {
	var out [RelayCount]RelayStatus
	for i, r := range relays {
		out[i] = RelayStatus{Name: r.Name, Mode: ModeOff}
	}
	return out
}

// RelayRecord is a persisted relay state change.
type RelayRecord struct {
	RelayNumber int       `json:"relay_number"`
	RelayName   string    `json:"relay_name"`
	State       bool      `json:"state"`
	Mode        RelayMode `json:"mode"`
	CreatedAt   time.Time `json:"created_at"`
}
