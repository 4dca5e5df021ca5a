package interpreter

// Intent is the category an utterance was classified into.
type Intent int

const (
	IntentUnknown Intent = iota
	IntentTemperature
	IntentHumidity
	IntentStatus
	IntentDevices
	IntentConfig
	IntentTurnOn
	IntentTurnOff
	IntentMode
	IntentConfigChange
	IntentHelp
)

func (i Intent) String() string {
	switch i {
	case IntentTemperature:
		return "temperature"
	case IntentHumidity:
		return "humidity"
	case IntentStatus:
		return "status"
	case IntentDevices:
		return "devices"
	case IntentConfig:
		return "config"
	case IntentTurnOn:
		return "turn_on"
	case IntentTurnOff:
		return "turn_off"
	case IntentMode:
		return "mode"
	case IntentConfigChange:
		return "config_change"
	case IntentHelp:
		return "help"
	default:
		return "unknown"
	}
}

// Control reports whether the intent writes device state.
func (i Intent) Control() bool {
	switch i {
	case IntentTurnOn, IntentTurnOff, IntentMode, IntentConfigChange:
		return true
	}
	return false
}
