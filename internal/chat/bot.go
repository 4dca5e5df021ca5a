// Package chat is the Telegram surface of the bridge: slash command panels,
// free text and voice notes, and alert pushes from the watchdog.
package chat

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"climate_bridge/internal/logger"
	"climate_bridge/internal/models"
	"climate_bridge/internal/service"
	"climate_bridge/internal/speech"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

const (
	defaultDownloadTimeout = 30 * time.Second
	maxVoiceBytes          = 20 << 20
	voiceFilename          = "voice.ogg"
	replyAudioFilename     = "respuesta.mp3"
)

// Sender is the part of the Telegram Bot API the bot talks to.
// *tgbotapi.BotAPI satisfies it.
type Sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
	GetFileDirectURL(fileID string) (string, error)
}

// Services are the use cases the bot drives.
type Services struct {
	Assistant  service.Assistant
	Devices    service.Devices
	Settings   service.Settings
	Monitoring service.Monitoring
}

// Options tunes the bot. Zero values take defaults.
type Options struct {
	// AllowedChatIDs restricts who may use the bot. Empty allows everyone.
	AllowedChatIDs  []int64
	DownloadTimeout time.Duration
	HTTPClient      *http.Client
}

// Bot handles Telegram updates.
type Bot struct {
	api     Sender
	svc     Services
	log     *logger.Logger
	http    *http.Client
	timeout time.Duration
	allowed map[int64]struct{}

	mu    sync.Mutex
	chats map[int64]struct{}
	wg    sync.WaitGroup
}

var _ service.Notifier = (*Bot)(nil)

func NewBot(api Sender, svc Services, opts Options, log *logger.Logger) *Bot {
	if log == nil {
		log = logger.Nop()
	}
	if opts.DownloadTimeout <= 0 {
		opts.DownloadTimeout = defaultDownloadTimeout
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = http.DefaultClient
	}
	b := &Bot{
		api:     api,
		svc:     svc,
		log:     log,
		http:    opts.HTTPClient,
		timeout: opts.DownloadTimeout,
		allowed: make(map[int64]struct{}, len(opts.AllowedChatIDs)),
		chats:   make(map[int64]struct{}),
	}
	for _, id := range opts.AllowedChatIDs {
		b.allowed[id] = struct{}{}
	}
	return b
}

// Run dispatches updates until ctx is cancelled or the channel closes, then
// waits for in-flight handlers. Each update runs in its own goroutine.
func (b *Bot) Run(ctx context.Context, updates <-chan tgbotapi.Update) {
	defer b.wg.Wait()
	for {
		select {
		case <-ctx.Done():
			return
		case upd, ok := <-updates:
			if !ok {
				return
			}
			b.wg.Add(1)
			go func() {
				defer b.wg.Done()
				b.HandleUpdate(ctx, upd)
			}()
		}
	}
}

// Start runs Run in the background. The returned channel is closed once Run
// has returned, which is after every in-flight update has been handled.
func (b *Bot) Start(ctx context.Context, updates <-chan tgbotapi.Update) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)
		b.Run(ctx, updates)
	}()
	return done
}

// HandleUpdate processes a single update.
func (b *Bot) HandleUpdate(ctx context.Context, upd tgbotapi.Update) {
	switch {
	case upd.CallbackQuery != nil:
		b.handleCallback(ctx, upd.CallbackQuery)
	case upd.Message != nil:
		b.handleMessage(ctx, upd.Message)
	}
}

// Notify pushes text to the allowed chats, or to every chat seen so far when
// no allow-list is configured.
func (b *Bot) Notify(ctx context.Context, text string) {
	for _, id := range b.recipients() {
		if ctx.Err() != nil {
			return
		}
		b.send(tgbotapi.NewMessage(id, text))
	}
}

func (b *Bot) recipients() []int64 {
	src := b.allowed
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(src) == 0 {
		src = b.chats
	}
	ids := make([]int64, 0, len(src))
	for id := range src {
		ids = append(ids, id)
	}
	return ids
}

func (b *Bot) authorize(chatID int64) bool {
	if len(b.allowed) > 0 {
		if _, ok := b.allowed[chatID]; !ok {
			b.log.Warnw("chat_unauthorized", "chat_id", chatID)
			return false
		}
	}
	b.mu.Lock()
	b.chats[chatID] = struct{}{}
	b.mu.Unlock()
	return true
}

func (b *Bot) handleMessage(ctx context.Context, msg *tgbotapi.Message) {
	if msg.Chat == nil {
		return
	}
	chatID := msg.Chat.ID
	if !b.authorize(chatID) {
		b.send(tgbotapi.NewMessage(chatID, msgUnauthorized))
		return
	}

	switch {
	case msg.IsCommand():
		b.showPanel(ctx, chatID, msg.Command())
	case msg.Voice != nil:
		b.handleVoice(ctx, chatID, msg.Voice)
	case msg.Text != "":
		b.answer(ctx, chatID, models.SourceText, msg.Text)
	}
}

func (b *Bot) handleCallback(ctx context.Context, q *tgbotapi.CallbackQuery) {
	if _, err := b.api.Request(tgbotapi.NewCallback(q.ID, "")); err != nil {
		b.log.Debugw("callback_ack_failed", "error", err)
	}
	if q.Message == nil || q.Message.Chat == nil {
		return
	}
	chatID := q.Message.Chat.ID
	if !b.authorize(chatID) {
		return
	}
	b.showPanel(ctx, chatID, q.Data)
}

// answer runs an utterance through the assistant and replies with text and,
// when speech is available, a voice note.
func (b *Bot) answer(ctx context.Context, chatID int64, source, text string) {
	reply := b.svc.Assistant.Handle(ctx, service.Request{Source: source, ChatID: chatID, Text: text})
	b.send(tgbotapi.NewMessage(chatID, "💬 "+reply.Text))
	b.speak(ctx, chatID, reply.Text)
}

func (b *Bot) speak(ctx context.Context, chatID int64, text string) {
	audio := b.svc.Assistant.Speak(ctx, text)
	if len(audio) == 0 {
		return
	}
	b.send(tgbotapi.NewVoice(chatID, tgbotapi.FileBytes{Name: replyAudioFilename, Bytes: audio}))
}

func (b *Bot) handleVoice(ctx context.Context, chatID int64, v *tgbotapi.Voice) {
	b.send(tgbotapi.NewMessage(chatID, msgProcessing))

	audio, err := b.download(ctx, v.FileID)
	if err != nil {
		b.log.Errorw("voice_download_failed", "chat_id", chatID, "error", err)
		b.send(tgbotapi.NewMessage(chatID, msgVoiceFailed))
		return
	}

	text, err := b.svc.Assistant.Transcribe(ctx, audio, voiceFilename)
	switch {
	case errors.Is(err, speech.ErrDisabled):
		b.send(tgbotapi.NewMessage(chatID, msgVoiceDisabled))
		return
	case err != nil:
		b.send(tgbotapi.NewMessage(chatID, msgNotUnderstood))
		return
	}

	b.send(tgbotapi.NewMessage(chatID, fmt.Sprintf("📝 \"%s\"", text)))
	b.answer(ctx, chatID, models.SourceVoice, text)
}

func (b *Bot) download(ctx context.Context, fileID string) ([]byte, error) {
	url, err := b.api.GetFileDirectURL(fileID)
	if err != nil {
		return nil, fmt.Errorf("file url: %w", err)
	}
	ctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := b.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("download: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("download: status %d", resp.StatusCode)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxVoiceBytes))
	if err != nil {
		return nil, fmt.Errorf("download read: %w", err)
	}
	if len(data) == 0 {
		return nil, errors.New("download: empty file")
	}
	return data, nil
}

func (b *Bot) showPanel(ctx context.Context, chatID int64, name string) {
	var p panel
	switch name {
	case panelStart:
		p = startPanel()
	case panelHelp:
		p = helpPanel()
	case panelTemp:
		view := b.svc.Monitoring.Telemetry(ctx)
		p = tempPanel(view.Sensor, b.config(ctx, view))
	case panelStatus:
		view := b.svc.Monitoring.Telemetry(ctx)
		p = statusPanel(view.Sensor, b.config(ctx, view), b.devices(ctx))
	case panelDevices:
		p = devicesPanel(b.devices(ctx))
	case panelConfig:
		cfg, err := b.svc.Settings.Get(ctx)
		if err != nil {
			p = panel{Text: msgConfigMissing}
			break
		}
		p = configPanel(cfg)
	default:
		p = panel{Text: msgUnknownCommand}
	}

	msg := tgbotapi.NewMessage(chatID, p.Text)
	msg.ParseMode = tgbotapi.ModeMarkdown
	if p.Keyboard != nil {
		msg.ReplyMarkup = *p.Keyboard
	}
	b.send(msg)
	if p.Speech != "" {
		b.speak(ctx, chatID, p.Speech)
	}
}

// config prefers the stored configuration and falls back to the last one the
// device reported.
func (b *Bot) config(ctx context.Context, view service.TelemetryView) models.SystemConfig {
	cfg, err := b.svc.Settings.Get(ctx)
	if err != nil {
		return view.Config
	}
	return cfg
}

func (b *Bot) devices(ctx context.Context) []service.DeviceState {
	list, err := b.svc.Devices.List(ctx)
	if err != nil {
		b.log.Warnw("devices_list_failed", "error", err)
		return nil
	}
	return list
}

func (b *Bot) send(c tgbotapi.Chattable) {
	if _, err := b.api.Send(c); err != nil {
		b.log.Errorw("telegram_send_failed", "error", err)
	}
}
