package speech

import (
	"regexp"
	"strings"
	"unicode"
)

// MaxSpeechChars bounds the text sent for synthesis.
const MaxSpeechChars = 600

var (
	markdownMarks = strings.NewReplacer("*", "", "_", "", "`", "", "#", "", "•", ",", "°C", " grados", "°", " grados")
	annotation    = regexp.MustCompile(`[\[(][^\])]*[\])]`)
	spaces        = regexp.MustCompile(`\s+`)
)

// CleanForSpeech strips emoji and markdown from a reply, flattens line breaks
// into pauses and truncates at a word boundary.
func CleanForSpeech(text string) string {
	text = markdownMarks.Replace(text)

	var b strings.Builder
	b.Grow(len(text))
	for _, r := range text {
		switch {
		case r == '\n':
			b.WriteString(". ")
		case isEmoji(r):
			b.WriteByte(' ')
		default:
			b.WriteRune(r)
		}
	}

	out := spaces.ReplaceAllString(b.String(), " ")
	out = strings.NewReplacer(" .", ".", " ,", ",", ":.", ":", "..", ".", ". .", ".").Replace(out)
	out = strings.Trim(out, " .,")
	return truncateWords(out, MaxSpeechChars)
}

func isEmoji(r rune) bool {
	switch {
	case r == '\u200d', r == '\ufe0f', r == '\u20e3':
		return true
	case r >= 0x1F000 && r <= 0x1FAFF:
		return true
	case r >= 0x2600 && r <= 0x27BF:
		return true
	case r >= 0x2B00 && r <= 0x2BFF:
		return true
	}
	return unicode.Is(unicode.So, r)
}

func truncateWords(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	cut := string(runes[:max])
	if i := strings.LastIndexByte(cut, ' '); i > 0 {
		cut = cut[:i]
	}
	return strings.TrimRight(cut, " .,") + "."
}

// CleanTranscript normalizes an engine transcript and drops bracketed
// non-speech annotations such as "[música]" or "(silencio)".
func CleanTranscript(s string) string {
	s = annotation.ReplaceAllString(s, " ")
	s = spaces.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}
