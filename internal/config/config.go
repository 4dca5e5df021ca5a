// Package config loads the bridge configuration from configs/config.yml,
// an optional .env file, BRIDGE_* environment variables and command-line flags.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Store drivers.
const (
	DriverREST   = "rest"
	DriverSQLite = "sqlite"
)

const envPrefix = "BRIDGE"

type Config struct {
	Log      LogConfig      `mapstructure:"log"`
	HTTP     HTTPConfig     `mapstructure:"http"`
	DB       DBConfig       `mapstructure:"db"`
	Auth     AuthConfig     `mapstructure:"auth"`
	Store    StoreConfig    `mapstructure:"store"`
	MQTT     MQTTConfig     `mapstructure:"mqtt"`
	Telegram TelegramConfig `mapstructure:"telegram"`
	Speech   SpeechConfig   `mapstructure:"speech"`
	Watchdog WatchdogConfig `mapstructure:"watchdog"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
}

type HTTPConfig struct {
	Port string `mapstructure:"port"`
}

type DBConfig struct {
	Path string `mapstructure:"path"`
}

type AuthConfig struct {
	SigningKey string        `mapstructure:"signing_key"`
	TokenTTL   time.Duration `mapstructure:"token_ttl"`
}

// StoreConfig selects the state store. The rest driver talks to a PostgREST
// endpoint (Supabase); the sqlite driver keeps the same collections locally.
type StoreConfig struct {
	Driver  string        `mapstructure:"driver"`
	URL     string        `mapstructure:"url"`
	APIKey  string        `mapstructure:"api_key"`
	Timeout time.Duration `mapstructure:"timeout"`
}

type MQTTConfig struct {
	Broker         string        `mapstructure:"broker"`
	ClientID       string        `mapstructure:"client_id"`
	Username       string        `mapstructure:"username"`
	Password       string        `mapstructure:"password"`
	TopicPrefix    string        `mapstructure:"topic_prefix"`
	QoS            byte          `mapstructure:"qos"`
	PublishTimeout time.Duration `mapstructure:"publish_timeout"`
	ConnectTimeout time.Duration `mapstructure:"connect_timeout"`
	ResetOnConnect bool          `mapstructure:"reset_on_connect"`
}

type TelegramConfig struct {
	Token           string        `mapstructure:"token"`
	PollTimeout     int           `mapstructure:"poll_timeout"`
	AllowedChatIDs  []int64       `mapstructure:"allowed_chat_ids"`
	DownloadTimeout time.Duration `mapstructure:"download_timeout"`
}

type SpeechConfig struct {
	Enabled      bool          `mapstructure:"enabled"`
	OpenAIAPIKey string        `mapstructure:"openai_api_key"`
	TTSModel     string        `mapstructure:"tts_model"`
	TTSVoice     string        `mapstructure:"tts_voice"`
	STTModel     string        `mapstructure:"stt_model"`
	Language     string        `mapstructure:"language"`
	TTSTimeout   time.Duration `mapstructure:"tts_timeout"`
	STTTimeout   time.Duration `mapstructure:"stt_timeout"`
	CacheSize    int           `mapstructure:"cache_size"`
	DeviceAudio  bool          `mapstructure:"device_audio"`
}

type WatchdogConfig struct {
	Interval       time.Duration `mapstructure:"interval"`
	StaleAfter     time.Duration `mapstructure:"stale_after"`
	RecordReadings bool          `mapstructure:"record_readings"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("log.level", "info")
	v.SetDefault("http.port", "8080")
	v.SetDefault("db.path", "bridge.db")
	v.SetDefault("auth.token_ttl", time.Hour)
	v.SetDefault("store.driver", DriverREST)
	v.SetDefault("store.timeout", 8*time.Second)
	v.SetDefault("mqtt.client_id", "climate-bridge")
	v.SetDefault("mqtt.topic_prefix", "device")
	v.SetDefault("mqtt.qos", 0)
	v.SetDefault("mqtt.publish_timeout", 5*time.Second)
	v.SetDefault("mqtt.connect_timeout", 10*time.Second)
	v.SetDefault("mqtt.reset_on_connect", true)
	v.SetDefault("telegram.poll_timeout", 30)
	v.SetDefault("telegram.download_timeout", 15*time.Second)
	v.SetDefault("speech.enabled", true)
	v.SetDefault("speech.tts_model", "tts-1")
	v.SetDefault("speech.tts_voice", "nova")
	v.SetDefault("speech.stt_model", "whisper-1")
	v.SetDefault("speech.language", "es")
	v.SetDefault("speech.tts_timeout", 20*time.Second)
	v.SetDefault("speech.stt_timeout", 30*time.Second)
	v.SetDefault("speech.cache_size", 64)
	v.SetDefault("speech.device_audio", true)
	v.SetDefault("watchdog.interval", 10*time.Second)
	v.SetDefault("watchdog.stale_after", 30*time.Second)
}

// Load reads configuration using the given command-line arguments (without the
// program name). Secrets are expected in the environment or in .env.
func Load(args []string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	flags := pflag.NewFlagSet("climate-bridge", pflag.ContinueOnError)
	cfgFile := flags.String("config", "", "path to config file (default configs/config.yml)")
	flags.String("log-level", "", "log level: debug|info|warn|error")
	flags.String("port", "", "HTTP listen port")
	if err := flags.Parse(args); err != nil {
		return nil, err
	}

	v := viper.New()
	setDefaults(v)
	if *cfgFile != "" {
		v.SetConfigFile(*cfgFile)
	} else {
		v.AddConfigPath("configs")
		v.SetConfigName("config")
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for _, key := range []string{
		"store.api_key", "store.url", "mqtt.broker", "mqtt.username", "mqtt.password",
		"telegram.token", "speech.openai_api_key", "auth.signing_key",
	} {
		_ = v.BindEnv(key)
	}
	if err := v.BindPFlag("log.level", flags.Lookup("log-level")); err != nil {
		return nil, err
	}
	if err := v.BindPFlag("http.port", flags.Lookup("port")); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks settings that would make the bridge unusable.
func (c *Config) Validate() error {
	switch c.Store.Driver {
	case DriverREST:
		if c.Store.URL == "" {
			return errors.New("store.url is required for the rest driver")
		}
	case DriverSQLite:
	default:
		return fmt.Errorf("unknown store.driver %q", c.Store.Driver)
	}
	if c.MQTT.Broker == "" {
		return errors.New("mqtt.broker is required")
	}
	if c.MQTT.QoS > 2 {
		return fmt.Errorf("mqtt.qos must be 0, 1 or 2, got %d", c.MQTT.QoS)
	}
	if c.Auth.SigningKey == "" {
		return errors.New("auth.signing_key is required")
	}
	return nil
}
