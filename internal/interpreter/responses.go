package interpreter

import (
	"fmt"
	"strconv"
	"strings"

	"climate_bridge/internal/models"
)

// Replies. Every reply is plain Spanish text suitable for speech synthesis
// once emoji are stripped.
const (
	msgFallback = "No entendí tu comando. Escribe 'ayuda' para ver todos los comandos"

	msgHelp = `Puedo ayudarte con:

📊 CONSULTAS:
• temperatura / humedad / estado / dispositivos / configuración

🎛️ CONTROL:
• enciende/apaga ventilador, calefactor, humidificador, luz o todos

⚙️ CONFIGURACIÓN:
• "cambia setpoint a 25"
• "histéresis 1,5"
• "temperatura mínima 18"
• "temperatura máxima 30"

🔄 MODOS:
• modo ventilador automático / manual / siempre encendido / siempre apagado`

	msgLinkDown       = "No puedo conectarme al sistema ESP32. Verifica que esté encendido."
	msgWaitingSensor  = "Aún no he recibido datos del sensor. Espera unos segundos."
	msgWaitingHumid   = "Aún no he recibido datos del sensor de humedad."
	msgSystemStarting = "El sistema está iniciando. Aún no he recibido datos."
	msgNoDevices      = "No tengo información de los dispositivos"
	msgAllOk          = "Todo está bien"

	msgWhichDeviceOn  = "No entendí qué dispositivo encender. Di: ventilador, calefactor, humidificador o luz"
	msgWhichDeviceOff = "No entendí qué dispositivo apagar. Di: ventilador, calefactor, humidificador o luz"
	msgModes          = "Modos: automático, manual, siempre encendido, siempre apagado"
	msgModeDevice     = "Especifica el dispositivo (ventilador, calefactor, humidificador o luz) y el modo: automático, manual, siempre encendido o siempre apagado"

	msgNeedNumber = "No entendí el valor. Di un número. Ejemplo: 'temperatura mínima 18'"
	msgWhichField = "Especifica qué cambiar: temperatura mínima, temperatura máxima, setpoint o histéresis"
	msgConfigSave = "No pude guardar la configuración. El sistema de datos no responde, intenta de nuevo en unos segundos."
)

func formatNumber(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func temperatureReply(r models.SensorReading) string {
	if r.Humidity == nil {
		return fmt.Sprintf("La temperatura actual es %.1f grados celsius", *r.Temperature)
	}
	return fmt.Sprintf("La temperatura actual es %.1f grados celsius y la humedad es %.0f por ciento", *r.Temperature, *r.Humidity)
}

func humidityReply(hum float64) string {
	return fmt.Sprintf("La humedad actual es del %.0f por ciento", hum)
}

// Level classifies a temperature against the configured limits.
type Level int

const (
	LevelOK Level = iota
	LevelHigh
	LevelLow
)

// TemperatureLevel compares temp with the configured limits.
func TemperatureLevel(temp float64, cfg models.SystemConfig) Level {
	switch {
	case temp > float64(cfg.TempMax):
		return LevelHigh
	case temp < float64(cfg.TempMin):
		return LevelLow
	default:
		return LevelOK
	}
}

func statusReply(r models.SensorReading, cfg models.SystemConfig, active int, relaysKnown bool) string {
	temp := *r.Temperature
	var b strings.Builder
	switch TemperatureLevel(temp, cfg) {
	case LevelHigh:
		fmt.Fprintf(&b, "⚠️ Temperatura ALTA (%.1f°C)", temp)
	case LevelLow:
		fmt.Fprintf(&b, "⚠️ Temperatura BAJA (%.1f°C)", temp)
	default:
		b.WriteString(msgAllOk)
	}
	fmt.Fprintf(&b, ". Temperatura %.1f grados", temp)
	if r.Humidity != nil {
		fmt.Fprintf(&b, ", Humedad %.0f por ciento", *r.Humidity)
	}
	b.WriteString(".")
	if relaysKnown {
		fmt.Fprintf(&b, " Dispositivos activos: %d de %d.", active, models.RelayCount)
	}
	return b.String()
}

func devicesReply(states map[int]models.RelayRecord, withModes bool) string {
	parts := make([]string, 0, models.RelayCount)
	for _, info := range models.Relays() {
		rec, ok := states[info.Number]
		if !ok {
			continue
		}
		name := rec.RelayName
		if name == "" {
			name = info.Name
		}
		part := name + ": apagado"
		if rec.State {
			part = name + ": encendido"
		}
		if withModes {
			part += " (" + rec.Mode.Label() + ")"
		}
		parts = append(parts, part)
	}
	return "Estado actual: " + strings.Join(parts, ", ")
}

func configReply(cfg models.SystemConfig) string {
	return fmt.Sprintf("Configuración actual: Temperatura objetivo %s°C, Histéresis %s°C, Temperatura máxima %d°C, Temperatura mínima %d°C",
		formatNumber(cfg.Setpoint), formatNumber(cfg.Hysteresis), cfg.TempMax, cfg.TempMin)
}

func turnedOnReply(info models.RelayInfo) string {
	return "✅ He encendido " + info.Spoken + " correctamente"
}

func turnedOffReply(info models.RelayInfo) string {
	return "✅ He apagado " + info.Spoken
}

func relayFailedReply(info models.RelayInfo, on bool) string {
	verb := "apagar"
	if on {
		verb = "encender"
	}
	return fmt.Sprintf("No pude %s %s. El sistema de datos no responde.", verb, info.Spoken)
}

func allRelaysReply(on bool, done int) string {
	verb, past := "apagar", "apagado"
	if on {
		verb, past = "encender", "encendido"
	}
	switch done {
	case models.RelayCount:
		return fmt.Sprintf("✅ He %s todos los dispositivos", past)
	case 0:
		return fmt.Sprintf("No pude %s los dispositivos. El sistema de datos no responde.", verb)
	default:
		return fmt.Sprintf("Solo pude %s %d de %d dispositivos.", verb, done, models.RelayCount)
	}
}

func modeChangedReply(info models.RelayInfo, mode models.RelayMode) string {
	return fmt.Sprintf("✅ He cambiado %s a modo %s", info.Spoken, strings.ToLower(mode.Label()))
}

func modeFailedReply(info models.RelayInfo) string {
	return fmt.Sprintf("No pude cambiar el modo de %s. El sistema de datos no responde.", info.Spoken)
}

func boundsReply(field string) string {
	var name string
	var b models.Bounds
	switch field {
	case models.FieldSetpoint:
		name, b = "El setpoint", models.SetpointRange
	case models.FieldHysteresis:
		name, b = "La histéresis", models.HysteresisRange
	case models.FieldTempMax:
		name, b = "La temperatura máxima", models.TempMaxRange
	default:
		name, b = "La temperatura mínima", models.TempMinRange
	}
	return fmt.Sprintf("%s debe estar entre %s y %s grados", name, formatNumber(b.Min), formatNumber(b.Max))
}

func configChangedReply(field string, v float64) string {
	switch field {
	case models.FieldSetpoint:
		return "✅ Temperatura objetivo cambiada a " + formatNumber(v) + "°C"
	case models.FieldHysteresis:
		return "✅ Histéresis cambiada a " + formatNumber(v) + "°C"
	case models.FieldTempMax:
		return fmt.Sprintf("✅ Temperatura máxima configurada en %d°C. Te avisaré si se supera este valor", int(v))
	default:
		return fmt.Sprintf("✅ Temperatura mínima configurada en %d°C. Te avisaré si baja de este valor", int(v))
	}
}

func limitAlertMessage(field string, limit int) string {
	if field == models.FieldTempMax {
		return fmt.Sprintf("Temp máxima configurada en %d°C", limit)
	}
	return fmt.Sprintf("Temp mínima configurada en %d°C", limit)
}
