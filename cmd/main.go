package main

import (
	"context"
	"database/sql"
	"os"
	"os/signal"
	"syscall"
	"time"

	"climate_bridge/internal/chat"
	"climate_bridge/internal/config"
	"climate_bridge/internal/device"
	"climate_bridge/internal/handlers"
	"climate_bridge/internal/logger"
	"climate_bridge/internal/metrics"
	"climate_bridge/internal/repository"
	"climate_bridge/internal/repository/db"
	"climate_bridge/internal/server"
	"climate_bridge/internal/service"
	"climate_bridge/internal/speech"
	"climate_bridge/internal/telemetry"
	"climate_bridge/internal/transport/mqtt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

const shutdownTimeout = 10 * time.Second

func main() {
	// load config.yml, .env, BRIDGE_* and flags
	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		logger.New(logger.InfoLevel).Fatalw("error reading config", "err", err)
	}

	// init logger
	log := logger.Get(cfg.Log.Level)
	defer func() { _ = log.Sync() }()

	m := metrics.New()

	// open DB
	conn, err := openDB(cfg.DB.Path, log)
	if err != nil {
		log.Fatalw("failed to init sqlite", "err", err)
	}
	defer func() {
		if cerr := conn.Close(); cerr != nil {
			log.Errorw("failed to close sqlite", "err", cerr)
		}
	}()

	// context for background goroutines
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// device link: telemetry in, commands out
	topics := device.NewTopics(cfg.MQTT.TopicPrefix)
	cache := telemetry.NewCache(telemetry.Topics{
		Sensors:     topics.Sensors(),
		RelayStatus: topics.RelayStatus(),
		Config:      topics.Config(),
	}, log.Named("telemetry"), m)

	var services *service.Service
	link := mqtt.New(mqtt.Options{
		Broker:         cfg.MQTT.Broker,
		ClientID:       cfg.MQTT.ClientID,
		Username:       cfg.MQTT.Username,
		Password:       cfg.MQTT.Password,
		QoS:            cfg.MQTT.QoS,
		PublishTimeout: cfg.MQTT.PublishTimeout,
		ConnectTimeout: cfg.MQTT.ConnectTimeout,
		Subscriptions:  topics.Inbound(),
		OnMessage:      cache.OnTelemetry,
		OnConnect: func() {
			if cfg.MQTT.ResetOnConnect && services != nil {
				resetDevices(ctx, services, log)
			}
		},
	}, log.Named("mqtt"), m)
	publisher := device.NewPublisher(link, topics, log.Named("device"), m)

	// wire dependencies
	repos := repository.NewRepository(conn, newStateStore(cfg, conn))
	notifier := &service.Broadcast{}
	services = service.NewService(service.Deps{
		Repos:      repos,
		Device:     publisher,
		Telemetry:  cache,
		Link:       publisher,
		Assistant:  assistantOptions(cfg, publisher, m, log),
		Watchdog:   service.WatchdogOptions{StaleAfter: cfg.Watchdog.StaleAfter, RecordReadings: cfg.Watchdog.RecordReadings},
		Notifier:   notifier,
		Observer:   m,
		SigningKey: cfg.Auth.SigningKey,
		TokenTTL:   cfg.Auth.TokenTTL,
	}, log)

	// connect after services exist so the reset hook has something to call
	if err := link.Connect(ctx); err != nil {
		log.Warnw("mqtt_connect_pending", "err", err)
	}
	defer link.Close()

	// start watchdog
	go services.Watchdog.Run(ctx, cfg.Watchdog.Interval)

	// start chat bot
	bot, botDone := startBot(ctx, cfg, services, notifier, log)

	// start HTTP server
	srv := &server.Server{}
	runHTTPServer(srv, cfg.HTTP.Port, handlers.NewHandler(services, log.Named("http"), m), log)

	// graceful shutdown
	waitForShutdown(cancel, srv, bot, log)

	// chat handlers may still start speech work; let them finish first
	<-botDone
	if a, ok := services.Assistant.(*service.AssistantService); ok {
		a.Wait()
	}
}

// openDB initializes the local SQLite database (users, command journal and,
// with the sqlite driver, the state collections).
func openDB(path string, log *logger.Logger) (*sql.DB, error) {
	if path == "" {
		log.Infow("db.path not set in config; using default file", "default", "bridge.db")
		path = "bridge.db"
	}
	return db.InitDB(path)
}

func newStateStore(cfg *config.Config, conn *sql.DB) repository.StateStore {
	if cfg.Store.Driver == config.DriverSQLite {
		return repository.NewSQLiteStore(conn)
	}
	return repository.NewRESTStore(cfg.Store.URL, cfg.Store.APIKey, cfg.Store.Timeout)
}

func assistantOptions(cfg *config.Config, publisher *device.Publisher, m *metrics.Metrics, log *logger.Logger) service.AssistantOptions {
	opts := service.AssistantOptions{Observer: m}
	if !cfg.Speech.Enabled || cfg.Speech.OpenAIAPIKey == "" {
		log.Infow("speech disabled")
		opts.Synthesizer = speech.NoOp{}
		opts.Transcriber = speech.NoOp{}
		return opts
	}
	engine := speech.NewOpenAI(speech.OpenAIOptions{
		APIKey:     cfg.Speech.OpenAIAPIKey,
		TTSModel:   cfg.Speech.TTSModel,
		Voice:      cfg.Speech.TTSVoice,
		STTModel:   cfg.Speech.STTModel,
		Language:   cfg.Speech.Language,
		TTSTimeout: cfg.Speech.TTSTimeout,
		STTTimeout: cfg.Speech.STTTimeout,
	}, log.Named("speech"), m)
	opts.Synthesizer = speech.NewCachingSynthesizer(engine, engine.Voice(), cfg.Speech.CacheSize, log.Named("tts_cache"))
	opts.Transcriber = engine
	if cfg.Speech.DeviceAudio {
		opts.Speaker = publisher
	}
	return opts
}

// resetDevices turns every relay off after the device link (re)connects.
func resetDevices(ctx context.Context, services *service.Service, log *logger.Logger) {
	if err := services.Devices.ResetAll(ctx); err != nil {
		log.Warnw("devices_reset_failed", "err", err)
		return
	}
	log.Infow("devices_reset")
}

// startBot starts Telegram long polling when a token is configured. The
// returned API is nil when the bot is disabled. The channel is closed once
// the bot has stopped and drained its handlers.
func startBot(ctx context.Context, cfg *config.Config, services *service.Service, notifier *service.Broadcast, log *logger.Logger) (*tgbotapi.BotAPI, <-chan struct{}) {
	if cfg.Telegram.Token == "" {
		log.Infow("telegram.token not set; chat bot disabled")
		done := make(chan struct{})
		close(done)
		return nil, done
	}
	api, err := tgbotapi.NewBotAPI(cfg.Telegram.Token)
	if err != nil {
		log.Fatalw("failed to init telegram bot", "err", err)
	}
	bot := chat.NewBot(api, chat.Services{
		Assistant:  services.Assistant,
		Devices:    services.Devices,
		Settings:   services.Settings,
		Monitoring: services.Monitoring,
	}, chat.Options{
		AllowedChatIDs:  cfg.Telegram.AllowedChatIDs,
		DownloadTimeout: cfg.Telegram.DownloadTimeout,
	}, log.Named("chat"))
	notifier.Add(bot)

	u := tgbotapi.NewUpdate(0)
	u.Timeout = cfg.Telegram.PollTimeout
	done := bot.Start(ctx, api.GetUpdatesChan(u))
	log.Infow("telegram bot started", "username", api.Self.UserName)
	return api, done
}

// runHTTPServer runs the HTTP server in a separate goroutine.
func runHTTPServer(srv *server.Server, port string, handler *handlers.Handler, log *logger.Logger) {
	go func() {
		if port == "" {
			port = "8080"
		}
		if err := srv.Run(port, handler.InitRoutes()); err != nil {
			log.Fatalw("error starting server", "err", err)
		}
	}()
}

// waitForShutdown listens for termination signals and performs graceful shutdown.
func waitForShutdown(cancel context.CancelFunc, srv *server.Server, bot *tgbotapi.BotAPI, log *logger.Logger) {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Infow("shutting down server...")

	// stop background goroutines
	cancel()
	if bot != nil {
		bot.StopReceivingUpdates()
	}

	// allow in-flight requests to complete
	ctx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Errorw("server forced to shutdown", "err", err)
	}
}
