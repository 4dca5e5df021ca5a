package device

import (
	"strconv"
	"strings"
)

// Topics builds the device topic names under a common prefix ("device" by default).
type Topics struct {
	prefix string
}

// NewTopics returns topic names rooted at prefix. Surrounding slashes are trimmed.
func NewTopics(prefix string) Topics {
	prefix = strings.Trim(prefix, "/")
	if prefix == "" {
		prefix = "device"
	}
	return Topics{prefix: prefix}
}

func (t Topics) join(parts ...string) string {
	return t.prefix + "/" + strings.Join(parts, "/")
}

// Inbound telemetry.

func (t Topics) Sensors() string     { return t.join("sensors") }
func (t Topics) RelayStatus() string { return t.join("relay", "status") }
func (t Topics) Config() string      { return t.join("config") }

// Outbound commands.

func (t Topics) RelayCommand(relay int) string {
	return t.join("relay", strconv.Itoa(relay), "cmd")
}

func (t Topics) RelayMode(relay int) string {
	return t.join("relay", strconv.Itoa(relay), "mode")
}

func (t Topics) ConfigSet() string  { return t.join("config", "set") }
func (t Topics) AudioStart() string { return t.join("tts", "audio", "start") }
func (t Topics) AudioChunk() string { return t.join("tts", "audio", "chunk") }
func (t Topics) AudioEnd() string   { return t.join("tts", "audio", "end") }

// Inbound lists the topics the bridge subscribes to.
func (t Topics) Inbound() []string {
	return []string{t.Sensors(), t.RelayStatus(), t.Config()}
}
