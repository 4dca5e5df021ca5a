// Package device turns bridge intents into messages on the device topics.
package device

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"

	"climate_bridge/internal/logger"
	"climate_bridge/internal/models"
)

// ErrNotConnected is returned when the device link is down.
var ErrNotConnected = errors.New("device link not connected")

// AudioChunkSize is the number of base64 characters per audio chunk message.
const AudioChunkSize = 1000

// Relay command payloads.
const (
	PayloadOn  = "ON"
	PayloadOff = "OFF"
)

// Publish kinds, used as metric labels.
const (
	KindRelayCommand = "relay_cmd"
	KindRelayMode    = "relay_mode"
	KindConfigSet    = "config_set"
	KindAudio        = "audio"
)

// Transport delivers a payload to a topic. Implementations bound the wait for
// delivery and honour ctx.
type Transport interface {
	Publish(ctx context.Context, topic string, payload []byte) error
	IsConnected() bool
}

// Observer receives one call per publish attempt.
type Observer interface {
	Publish(kind string, ok bool)
}

type Publisher struct {
	transport Transport
	topics    Topics
	log       *logger.Logger
	obs       Observer

	// audio streams are serialized so chunks of two replies never interleave
	streamMu sync.Mutex
}

// NewPublisher returns a publisher over transport. log and obs may be nil.
func NewPublisher(transport Transport, topics Topics, log *logger.Logger, obs Observer) *Publisher {
	if log == nil {
		log = logger.Nop()
	}
	return &Publisher{transport: transport, topics: topics, log: log, obs: obs}
}

// IsConnected reports whether the device link is up.
func (p *Publisher) IsConnected() bool { return p.transport.IsConnected() }

// PublishRelayCommand sends "ON" or "OFF" to relay n.
func (p *Publisher) PublishRelayCommand(ctx context.Context, relay int, on bool) error {
	if !models.ValidRelay(relay) {
		return fmt.Errorf("relay %d out of range", relay)
	}
	payload := PayloadOff
	if on {
		payload = PayloadOn
	}
	return p.send(ctx, KindRelayCommand, p.topics.RelayCommand(relay), []byte(payload))
}

// PublishRelayMode sends the numeric mode to relay n.
func (p *Publisher) PublishRelayMode(ctx context.Context, relay int, mode models.RelayMode) error {
	if !models.ValidRelay(relay) {
		return fmt.Errorf("relay %d out of range", relay)
	}
	if !mode.Valid() {
		return fmt.Errorf("relay mode %d out of range", int(mode))
	}
	return p.send(ctx, KindRelayMode, p.topics.RelayMode(relay), []byte(strconv.Itoa(int(mode))))
}

// PublishConfigPatch sends a partial configuration document.
func (p *Publisher) PublishConfigPatch(ctx context.Context, patch models.ConfigPatch) error {
	body, err := json.Marshal(patch)
	if err != nil {
		return fmt.Errorf("marshal config patch: %w", err)
	}
	return p.send(ctx, KindConfigSet, p.topics.ConfigSet(), body)
}

// StreamAudio sends a WAV file to the device speaker as an empty start message,
// base64 chunks of AudioChunkSize characters, and an empty end message.
func (p *Publisher) StreamAudio(ctx context.Context, wav []byte) error {
	if len(wav) == 0 {
		return errors.New("empty audio")
	}
	encoded := base64.StdEncoding.EncodeToString(wav)
	chunks := ChunkString(encoded, AudioChunkSize)

	p.streamMu.Lock()
	defer p.streamMu.Unlock()

	if err := p.send(ctx, KindAudio, p.topics.AudioStart(), nil); err != nil {
		return err
	}
	for i, chunk := range chunks {
		if err := p.send(ctx, KindAudio, p.topics.AudioChunk(), []byte(chunk)); err != nil {
			return fmt.Errorf("audio chunk %d/%d: %w", i+1, len(chunks), err)
		}
	}
	if err := p.send(ctx, KindAudio, p.topics.AudioEnd(), nil); err != nil {
		return err
	}
	p.log.Debugw("device_audio_streamed", "bytes", len(wav), "chunks", len(chunks))
	return nil
}

func (p *Publisher) send(ctx context.Context, kind, topic string, payload []byte) error {
	err := p.transport.Publish(ctx, topic, payload)
	if p.obs != nil {
		p.obs.Publish(kind, err == nil)
	}
	if err != nil {
		return fmt.Errorf("publish %s: %w", topic, err)
	}
	return nil
}

// ChunkString splits s into pieces of at most size bytes. s must be ASCII.
func ChunkString(s string, size int) []string {
	if size <= 0 || s == "" {
		return nil
	}
	out := make([]string, 0, (len(s)+size-1)/size)
	for start := 0; start < len(s); start += size {
		end := start + size
		if end > len(s) {
			end = len(s)
		}
		out = append(out, s[start:end])
	}
	return out
}
