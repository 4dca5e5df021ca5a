package interpreter

import (
	"strconv"
	"strings"
	"unicode"

	"climate_bridge/internal/models"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Keyword sets are accent-folded and lowercase. A trailing '*' matches any
// token with that prefix.
var (
	temperatureWords = []string{"temperatura*", "temp", "grados", "clima"}
	questionWords    = []string{"cuanto", "cuanta", "cual"}
	ambientWords     = []string{"hace", "calor", "frio"}
	humidityWords    = []string{"humedad", "humedo", "humeda"}
	statusWords      = []string{"estado", "sistema"}
	statusPhrases    = []string{"como esta", "todo bien"}
	devicesWords     = []string{"dispositivos", "relays", "reles"}
	devicesPhrases   = []string{"que esta encendido"}
	configWords      = []string{"configuracion", "config"}

	turnOnVerbs  = []string{"enciende", "encienda", "encender", "prende", "prenda", "prender", "activa", "active", "activar"}
	turnOffVerbs = []string{"apaga", "apague", "apagar", "desactiva", "desactive", "desactivar"}
	modeWords    = []string{"modo", "modos"}
	changeVerbs  = []string{"cambia", "cambiar", "ajusta", "ajustar", "modifica", "modificar", "pon", "poner", "configura", "configurar", "establece", "fija"}

	helpWords   = []string{"ayuda", "comandos", "help"}
	helpPhrases = []string{"que puedes hacer"}

	allWords = []string{"todo", "todos", "todas", "all"}
)

// Config field keywords in evaluation order.
var fieldWords = []struct {
	field string
	words []string
}{
	{models.FieldSetpoint, []string{"setpoint", "objetivo", "consigna"}},
	{models.FieldHysteresis, []string{"histeresis", "margen"}},
	{models.FieldTempMax, []string{"maxima", "maximo", "max", "alta"}},
	{models.FieldTempMin, []string{"minima", "minimo", "min", "baja"}},
}

// Device names in evaluation order; names win over numeric ids.
var deviceWords = []struct {
	relay int
	words []string
}{
	{models.RelayFan, []string{"ventilador", "ventiladores"}},
	{models.RelayHeater, []string{"calefactor", "calefaccion", "calor"}},
	{models.RelayHumidifier, []string{"humidificador"}},
	{models.RelayLight, []string{"luz", "luces", "foco", "lampara"}},
}

var modePhrases = []struct {
	mode    models.RelayMode
	words   []string
	phrases []string
}{
	{models.ModeAuto, []string{"automatico", "auto"}, nil},
	{models.ModeManual, []string{"manual"}, nil},
	{models.ModeForcedOn, nil, []string{"siempre encendido", "siempre encendida", "forzado on", "forzado encendido"}},
	{models.ModeOff, nil, []string{"siempre apagado", "siempre apagada", "forzado off", "forzado apagado"}},
}

// utterance is a normalized command with its tokens.
type utterance struct {
	text   string
	tokens []string

	control bool // carries a turn-on or turn-off verb
	assign  bool // carries a number and a config field keyword
}

func parse(raw string) utterance {
	text := fold(strings.ToLower(strings.TrimSpace(raw)))
	u := utterance{text: text, tokens: tokenize(text)}
	u.control = u.has(turnOnVerbs...) || u.has(turnOffVerbs...)
	_, hasNumber := u.number()
	u.assign = hasNumber && u.field() != ""
	return u
}

// fold strips combining marks so "máxima" and "maxima" compare equal.
func fold(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return out
}

func tokenize(s string) []string {
	fields := strings.FieldsFunc(s, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '.' && r != ',' && r != '-'
	})
	out := fields[:0]
	for _, f := range fields {
		f = strings.Trim(f, ".,")
		if strings.Trim(f, "-") == "" {
			continue
		}
		out = append(out, f)
	}
	return out
}

func (u utterance) empty() bool { return len(u.tokens) == 0 }

// has reports whether any token matches one of the keywords.
func (u utterance) has(words ...string) bool {
	for _, tok := range u.tokens {
		for _, w := range words {
			if prefix, ok := strings.CutSuffix(w, "*"); ok {
				if strings.HasPrefix(tok, prefix) {
					return true
				}
				continue
			}
			if tok == w {
				return true
			}
		}
	}
	return false
}

// hasPhrase matches multi-word phrases on token boundaries.
func (u utterance) hasPhrase(phrases ...string) bool {
	joined := " " + strings.Join(u.tokens, " ") + " "
	for _, p := range phrases {
		if strings.Contains(joined, " "+p+" ") {
			return true
		}
	}
	return false
}

// number returns the first token that parses as a finite decimal number.
// A decimal comma and a trailing degree sign are accepted.
func (u utterance) number() (float64, bool) {
	for _, tok := range u.tokens {
		if v, ok := parseNumber(tok); ok {
			return v, true
		}
	}
	return 0, false
}

// parseNumber accepts an optional leading minus, digits and at most one
// decimal point or comma. Exponents and hex forms are not numbers here.
func parseNumber(tok string) (float64, bool) {
	tok = strings.TrimRight(tok, "ºc")
	digits := strings.TrimPrefix(tok, "-")
	if digits == "" || digits[0] < '0' || digits[0] > '9' {
		return 0, false
	}
	sep := false
	for i := 1; i < len(digits); i++ {
		switch c := digits[i]; {
		case c >= '0' && c <= '9':
		case (c == '.' || c == ',') && !sep:
			sep = true
		default:
			return 0, false
		}
	}
	v, err := strconv.ParseFloat(strings.Replace(tok, ",", ".", 1), 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// field returns the config field named by the utterance, or "".
func (u utterance) field() string {
	for _, f := range fieldWords {
		if u.has(f.words...) {
			return f.field
		}
	}
	return ""
}

// relay returns the addressed relay number. all is set for "todos".
func (u utterance) relay() (relay int, all bool) {
	for _, d := range deviceWords {
		if u.has(d.words...) {
			return d.relay, false
		}
	}
	for n := 1; n <= models.RelayCount; n++ {
		if u.has(strconv.Itoa(n)) {
			return n, false
		}
	}
	if u.has(allWords...) {
		return 0, true
	}
	return 0, false
}

func (u utterance) mode() (models.RelayMode, bool) {
	for _, m := range modePhrases {
		if u.has(m.words...) || u.hasPhrase(m.phrases...) {
			return m.mode, true
		}
	}
	return 0, false
}
