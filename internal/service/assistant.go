package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"climate_bridge/internal/interpreter"
	"climate_bridge/internal/logger"
	"climate_bridge/internal/models"
	"climate_bridge/internal/repository"
	"climate_bridge/internal/speech"

	"github.com/google/uuid"
)

const defaultStreamTimeout = 60 * time.Second

// CommandInterpreter turns an utterance into a reply.
type CommandInterpreter interface {
	Interpret(ctx context.Context, text string) interpreter.Result
}

// AudioSink plays WAV audio on the device speaker.
type AudioSink interface {
	StreamAudio(ctx context.Context, wav []byte) error
}

// AssistantObserver receives intent and speech outcomes.
type AssistantObserver interface {
	Intent(intent string)
	SpeechOp(op string, ok bool)
}

// AssistantOptions wires the optional legs of a reply. Nil engines disable
// the matching leg.
type AssistantOptions struct {
	Journal       repository.CommandLog
	Synthesizer   speech.Synthesizer
	Transcriber   speech.Transcriber
	Speaker       AudioSink
	Observer      AssistantObserver
	StreamTimeout time.Duration
}

// AssistantService interprets commands, journals them and produces the spoken
// legs of a reply: an mp3 for the chat and a WAV stream for the device.
type AssistantService struct {
	interp  CommandInterpreter
	opts    AssistantOptions
	log     *logger.Logger
	now     func() time.Time
	streams sync.WaitGroup
}

func NewAssistantService(interp CommandInterpreter, opts AssistantOptions, log *logger.Logger) *AssistantService {
	if log == nil {
		log = logger.Nop()
	}
	if opts.StreamTimeout <= 0 {
		opts.StreamTimeout = defaultStreamTimeout
	}
	return &AssistantService{interp: interp, opts: opts, log: log, now: time.Now}
}

// Handle interprets req and appends the exchange to the journal. Journal
// failures are logged and never change the reply.
func (s *AssistantService) Handle(ctx context.Context, req Request) Reply {
	res := s.interp.Interpret(ctx, req.Text)
	reply := Reply{EventID: uuid.NewString(), Intent: res.Intent.String(), Text: res.Response, Control: res.Intent.Control()}

	if s.opts.Observer != nil {
		s.opts.Observer.Intent(reply.Intent)
	}
	s.log.Infow("command_handled",
		"event_id", reply.EventID, "source", req.Source, "chat_id", req.ChatID, "operator_id", req.OperatorID, "intent", reply.Intent, "control", reply.Control)

	if s.opts.Journal != nil {
		err := s.opts.Journal.Append(ctx, models.CommandEvent{
			EventID:    reply.EventID,
			OccurredAt: s.now().UTC(),
			Source:     req.Source,
			ChatID:     req.ChatID,
			OperatorID: req.OperatorID,
			Utterance:  req.Text,
			Intent:     reply.Intent,
			Response:   reply.Text,
		})
		if err != nil {
			s.log.Warnw("journal_append_failed", "event_id", reply.EventID, "err", err)
		}
	}
	return reply
}

// Speak synthesizes text for the chat and, when a speaker is wired, streams it
// to the device in the background. It returns nil when synthesis is disabled
// or failed.
func (s *AssistantService) Speak(ctx context.Context, text string) []byte {
	if s.opts.Synthesizer == nil {
		return nil
	}
	clean := speech.CleanForSpeech(text)
	if clean == "" {
		return nil
	}
	audio, err := s.opts.Synthesizer.Synthesize(ctx, clean)
	if err != nil {
		if errors.Is(err, speech.ErrDisabled) {
			return nil
		}
		s.log.Warnw("tts_failed", "chars", len(clean), "err", err)
		return nil
	}
	if s.opts.Speaker != nil {
		s.streams.Add(1)
		go s.streamToDevice(audio)
	}
	return audio
}

// streamToDevice runs detached from the request so a finished chat update does
// not cut the speaker stream short.
func (s *AssistantService) streamToDevice(mp3 []byte) {
	defer s.streams.Done()

	wav, err := speech.ResampleForDevice(mp3)
	s.observeSpeech(speech.OpResample, err == nil)
	if err != nil {
		s.log.Warnw("device_audio_resample_failed", "err", err)
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), s.opts.StreamTimeout)
	defer cancel()
	if err := s.opts.Speaker.StreamAudio(ctx, wav); err != nil {
		s.log.Warnw("device_audio_stream_failed", "bytes", len(wav), "err", err)
	}
}

// Transcribe converts a voice note to text. Audio without recognizable speech
// and engine failures both return an error but are logged apart.
func (s *AssistantService) Transcribe(ctx context.Context, audio []byte, filename string) (string, error) {
	if s.opts.Transcriber == nil {
		return "", speech.ErrDisabled
	}
	text, err := s.opts.Transcriber.Transcribe(ctx, audio, filename)
	switch {
	case err == nil:
		s.log.Debugw("stt_done", "chars", len(text))
		return text, nil
	case errors.Is(err, speech.ErrNoSpeech):
		s.log.Infow("stt_no_speech", "bytes", len(audio))
	case errors.Is(err, speech.ErrDisabled):
	default:
		s.log.Errorw("stt_failed", "bytes", len(audio), "err", err)
	}
	return "", err
}

// Wait blocks until pending device streams finish.
func (s *AssistantService) Wait() { s.streams.Wait() }

func (s *AssistantService) observeSpeech(op string, ok bool) {
	if s.opts.Observer != nil {
		s.opts.Observer.SpeechOp(op, ok)
	}
}
