package chat

import (
	"fmt"
	"strings"

	"climate_bridge/internal/models"
	"climate_bridge/internal/service"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// Panel names, shared by slash commands and inline button callbacks.
const (
	panelStart   = "start"
	panelTemp    = "temp"
	panelStatus  = "status"
	panelDevices = "devices"
	panelConfig  = "config"
	panelHelp    = "help"
)

const (
	msgUnauthorized   = "⛔ Este chat no está autorizado para controlar el sistema."
	msgProcessing     = "🎤 Procesando..."
	msgNotUnderstood  = "❌ No entendí el audio. Intenta de nuevo o escribe el comando."
	msgVoiceDisabled  = "❌ Reconocimiento de voz no disponible. Usa texto."
	msgVoiceFailed    = "❌ No pude descargar la nota de voz."
	msgWaitingData    = "⏳ Aún no he recibido datos del sensor."
	msgStarting       = "⏳ Sistema iniciando."
	msgNoDevices      = "No hay información de dispositivos"
	msgConfigMissing  = "⚠️ No pude leer la configuración."
	msgUnknownCommand = "Comando desconocido. Usa /help para ver los comandos."
)

// panel is a rendered chat answer. Speech, when set, is also voiced.
type panel struct {
	Text     string
	Speech   string
	Keyboard *tgbotapi.InlineKeyboardMarkup
}

func startPanel() panel {
	kb := tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData("📊 Estado", panelStatus)),
		tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData("🌡️ Temperatura", panelTemp)),
		tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData("🔌 Dispositivos", panelDevices)),
		tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData("⚙️ Configuración", panelConfig)),
		tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData("❓ Ayuda", panelHelp)),
	)
	text := `🤖 *Control de clima ESP32*

*🎤 Envía una nota de voz:*
• "¿Qué temperatura hay?"
• "Enciende el ventilador"
• "Temperatura mínima 18"

*💬 O escribe:*
• temperatura
• enciende luz
• apaga todo

Escribe *ayuda* para ver todos los comandos`
	return panel{Text: text, Keyboard: &kb}
}

func helpPanel() panel {
	return panel{Text: `📚 *Comandos disponibles*

*📊 Consultas:*
• temperatura / humedad / estado / dispositivos / configuración

*🎛️ Control:*
• enciende/apaga ventilador, calefactor, humidificador, luz o todo
• pon el ventilador en modo automático

*⚙️ Configuración:*
• temperatura mínima/máxima 18
• cambia el setpoint a 23
• histéresis 1,5

*🎤 Nota de voz:*
Envía cualquier comando por voz`}
}

func tempPanel(r models.SensorReading, cfg models.SystemConfig) panel {
	if !r.HasTemperature() {
		return panel{Text: msgWaitingData}
	}
	temp := *r.Temperature
	var b strings.Builder
	fmt.Fprintf(&b, "🌡️ *Temperatura*\n\nTemperatura: *%.1f°C*\n", temp)
	if r.Humidity != nil {
		fmt.Fprintf(&b, "Humedad: *%.0f%%*\n", *r.Humidity)
	}
	fmt.Fprintf(&b, "Setpoint: *%.1f°C*\n\nLímites:\n📈 Máx: *%d°C*\n📉 Mín: *%d°C*", cfg.Setpoint, cfg.TempMax, cfg.TempMin)

	speech := fmt.Sprintf("La temperatura es %.1f grados", temp)
	if r.Humidity != nil {
		speech += fmt.Sprintf(" y la humedad es %.0f por ciento", *r.Humidity)
	}
	return panel{Text: b.String(), Speech: speech}
}

func statusPanel(r models.SensorReading, cfg models.SystemConfig, devices []service.DeviceState) panel {
	if !r.HasTemperature() {
		return panel{Text: msgStarting}
	}
	temp := *r.Temperature
	icon := "✅"
	switch {
	case temp > float64(cfg.TempMax):
		icon = "🔥"
	case temp < float64(cfg.TempMin):
		icon = "❄️"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s *Estado*\n\n🌡️ %.1f°C", icon, temp)
	if r.Humidity != nil {
		fmt.Fprintf(&b, " | 💧 %.0f%%", *r.Humidity)
	}
	fmt.Fprintf(&b, "\n🎯 Setpoint: %.1f°C\n\n*Dispositivos:*", cfg.Setpoint)
	for _, d := range devices {
		fmt.Fprintf(&b, "\n%s %s", stateDot(d.On), escape(d.Name))
	}
	return panel{Text: b.String(), Speech: fmt.Sprintf("Temperatura %.1f grados", temp)}
}

func devicesPanel(devices []service.DeviceState) panel {
	if len(devices) == 0 {
		return panel{Text: msgNoDevices}
	}
	var b strings.Builder
	b.WriteString("*🔌 Dispositivos*\n")
	for _, d := range devices {
		fmt.Fprintf(&b, "\n%s *%s* - %s", stateDot(d.On), escape(d.Name), modeBadge(d.Mode))
	}
	return panel{Text: b.String()}
}

func configPanel(cfg models.SystemConfig) panel {
	return panel{Text: fmt.Sprintf(`⚙️ *Configuración*

🎯 Objetivo: *%.1f°C*
📊 Histéresis: *%.1f°C*
🔥 Máx: *%d°C*
❄️ Mín: *%d°C*`, cfg.Setpoint, cfg.Hysteresis, cfg.TempMax, cfg.TempMin)}
}

func stateDot(on bool) string {
	if on {
		return "🟢"
	}
	return "🔴"
}

func modeBadge(m models.RelayMode) string {
	switch m {
	case models.ModeOff:
		return "🔴 OFF"
	case models.ModeForcedOn:
		return "🟢 ON"
	case models.ModeAuto:
		return "🤖 AUTO"
	case models.ModeManual:
		return "✋ MANUAL"
	default:
		return m.String()
	}
}

// escape quotes Markdown control characters in names that come from the
// store or the device.
func escape(s string) string {
	return tgbotapi.EscapeText(tgbotapi.ModeMarkdown, s)
}
