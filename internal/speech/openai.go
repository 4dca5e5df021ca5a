package speech

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"path/filepath"
	"time"

	"climate_bridge/internal/logger"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
)

const (
	defaultTTSModel   = "tts-1"
	defaultTTSVoice   = "nova"
	defaultSTTModel   = "whisper-1"
	defaultLanguage   = "es"
	defaultTTSTimeout = 20 * time.Second
	defaultSTTTimeout = 30 * time.Second
	maxAudioBytes     = 25 << 20
)

// OpenAIOptions configures the OpenAI speech adapter. Zero values take defaults.
type OpenAIOptions struct {
	APIKey     string
	TTSModel   string
	Voice      string
	STTModel   string
	Language   string
	TTSTimeout time.Duration
	STTTimeout time.Duration
	// BaseURL overrides the API endpoint (tests, proxies).
	BaseURL    string
	HTTPClient *http.Client
}

// OpenAI implements Synthesizer and Transcriber on the OpenAI audio API.
type OpenAI struct {
	client openai.Client
	opts   OpenAIOptions
	log    *logger.Logger
	obs    Observer
}

var (
	_ Synthesizer = (*OpenAI)(nil)
	_ Transcriber = (*OpenAI)(nil)
)

// NewOpenAI returns an adapter. log and obs may be nil.
func NewOpenAI(opts OpenAIOptions, log *logger.Logger, obs Observer) *OpenAI {
	if opts.TTSModel == "" {
		opts.TTSModel = defaultTTSModel
	}
	if opts.Voice == "" {
		opts.Voice = defaultTTSVoice
	}
	if opts.STTModel == "" {
		opts.STTModel = defaultSTTModel
	}
	if opts.Language == "" {
		opts.Language = defaultLanguage
	}
	if opts.TTSTimeout <= 0 {
		opts.TTSTimeout = defaultTTSTimeout
	}
	if opts.STTTimeout <= 0 {
		opts.STTTimeout = defaultSTTTimeout
	}
	if log == nil {
		log = logger.Nop()
	}

	reqOpts := []option.RequestOption{option.WithAPIKey(opts.APIKey), option.WithMaxRetries(0)}
	if opts.BaseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(opts.BaseURL))
	}
	if opts.HTTPClient != nil {
		reqOpts = append(reqOpts, option.WithHTTPClient(opts.HTTPClient))
	}
	return &OpenAI{client: openai.NewClient(reqOpts...), opts: opts, log: log, obs: obs}
}

// Voice returns the configured synthesis voice.
func (o *OpenAI) Voice() string { return o.opts.Voice }

// Synthesize returns mp3 audio for text.
func (o *OpenAI) Synthesize(ctx context.Context, text string) ([]byte, error) {
	if text == "" {
		return nil, errors.New("empty text")
	}
	ctx, cancel := context.WithTimeout(ctx, o.opts.TTSTimeout)
	defer cancel()

	start := time.Now()
	resp, err := o.client.Audio.Speech.New(ctx, openai.AudioSpeechNewParams{
		Model:          openai.SpeechModel(o.opts.TTSModel),
		Input:          text,
		Voice:          openai.AudioSpeechNewParamsVoice(o.opts.Voice),
		ResponseFormat: openai.AudioSpeechNewParamsResponseFormatMP3,
	})
	if err != nil {
		o.observe(OpSynthesize, false)
		return nil, fmt.Errorf("tts request: %w", err)
	}
	defer resp.Body.Close()

	audio, err := io.ReadAll(io.LimitReader(resp.Body, maxAudioBytes))
	if err != nil {
		o.observe(OpSynthesize, false)
		return nil, fmt.Errorf("tts read: %w", err)
	}
	if len(audio) == 0 {
		o.observe(OpSynthesize, false)
		return nil, errors.New("tts returned no audio")
	}
	o.observe(OpSynthesize, true)
	o.log.Debugw("tts_done", "chars", len(text), "bytes", len(audio), "took", time.Since(start))
	return audio, nil
}

// Transcribe returns the text spoken in a voice note, in the configured
// language. An empty transcript yields ErrNoSpeech.
func (o *OpenAI) Transcribe(ctx context.Context, audio []byte, filename string) (string, error) {
	if len(audio) == 0 {
		return "", errors.New("empty audio")
	}
	if filename == "" {
		filename = "voice.ogg"
	}
	ctx, cancel := context.WithTimeout(ctx, o.opts.STTTimeout)
	defer cancel()

	res, err := o.client.Audio.Transcriptions.New(ctx, openai.AudioTranscriptionNewParams{
		Model:    openai.AudioModel(o.opts.STTModel),
		File:     openai.File(bytes.NewReader(audio), filename, contentType(filename)),
		Language: openai.String(o.opts.Language),
	})
	if err != nil {
		o.observe(OpTranscribe, false)
		return "", fmt.Errorf("stt request: %w", err)
	}
	o.observe(OpTranscribe, true)

	text := CleanTranscript(res.Text)
	if text == "" {
		return "", ErrNoSpeech
	}
	return text, nil
}

func (o *OpenAI) observe(op string, ok bool) {
	if o.obs != nil {
		o.obs.SpeechOp(op, ok)
	}
}

func contentType(filename string) string {
	switch ext := filepath.Ext(filename); ext {
	case ".ogg", ".oga", ".opus":
		return "audio/ogg"
	case ".mp3":
		return "audio/mpeg"
	case ".wav":
		return "audio/wav"
	default:
		if t := mime.TypeByExtension(ext); t != "" {
			return t
		}
		return "application/octet-stream"
	}
}
