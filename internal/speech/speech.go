// Package speech converts replies to audio and voice notes to text.
//
// Engines are black boxes behind Synthesizer and Transcriber. Recognition
// failures (nothing intelligible in the audio) are reported as ErrNoSpeech so
// callers can tell them apart from transport or format errors.
package speech

import (
	"context"
	"errors"
)

var (
	// ErrNoSpeech means the audio was processed but contained nothing usable.
	ErrNoSpeech = errors.New("no speech recognized")
	// ErrDisabled is returned by the no-op adapter.
	ErrDisabled = errors.New("speech disabled")
)

// Synthesizer turns text into encoded audio (mp3).
type Synthesizer interface {
	Synthesize(ctx context.Context, text string) ([]byte, error)
}

// Transcriber turns an encoded voice note into text. filename carries the
// container hint (e.g. "voice.ogg").
type Transcriber interface {
	Transcribe(ctx context.Context, audio []byte, filename string) (string, error)
}

// Observer receives one call per engine request.
type Observer interface {
	SpeechOp(op string, ok bool)
}

// Operation names, used as metric labels.
const (
	OpSynthesize = "tts"
	OpTranscribe = "stt"
	OpResample   = "resample"
)

// NoOp is used when speech is disabled.
type NoOp struct{}

var (
	_ Synthesizer = NoOp{}
	_ Transcriber = NoOp{}
)

func (NoOp) Synthesize(context.Context, string) ([]byte, error) { return nil, ErrDisabled }

func (NoOp) Transcribe(context.Context, []byte, string) (string, error) { return "", ErrDisabled }
