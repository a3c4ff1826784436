// Package config loads service configuration from the environment, with an
// optional .env file.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
)

type Config struct {
	App       AppConfig
	Log       LogConfig
	Voice     VoiceConfig
	Functions FunctionsConfig
	OpenAI    OpenAIConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	Events    EventsConfig
	SMTP      SMTPConfig
	Realtor   RealtorConfig
}

type AppConfig struct {
	Port        string
	BaseURL     string
	Environment string
}

type LogConfig struct {
	Level  string
	Format string
}

// VoiceConfig holds the voice session tunables. The timeouts bound session
// creation and socket open, which otherwise wait on the network indefinitely.
type VoiceConfig struct {
	DefaultMode    string
	DefaultVoice   string
	SessionTimeout time.Duration
	ConnectTimeout time.Duration
	SettleDelay    time.Duration
	ChunkInterval  time.Duration
	TTSCacheTTL    time.Duration
}

// FunctionsConfig points at the hosted functions the voice and chat clients
// call. When BaseURL is empty the CLI falls back to this service's own URL.
type FunctionsConfig struct {
	BaseURL string
	AnonKey string
	Timeout time.Duration
}

type OpenAIConfig struct {
	APIKey        string
	ChatModel     string
	TTSModel      string
	RealtimeURL   string
	RealtimeModel string
	RealtimeVoice string
}

type DatabaseConfig struct {
	Connection  string
	AutoMigrate bool
}

type RedisConfig struct {
	URL           string
	TranscriptTTL time.Duration
}

type EventsConfig struct {
	Backend string // kafka, nats or log
	Brokers []string
	Topic   string
	NatsURL string
}

type SMTPConfig struct {
	Host       string
	Port       int
	Email      string
	Password   string
	SenderName string
}

// RealtorConfig is where lead and appointment notifications go.
type RealtorConfig struct {
	Email string
	Phone string
}

func Load() *Config {
	if err := godotenv.Load(); err != nil {
		log.Debug().Msg(".env file not found, using system environment")
	}

	return &Config{
		App: AppConfig{
			Port:        getEnv("APP_PORT", "8080"),
			BaseURL:     getEnv("APP_BASE_URL", "http://localhost:8080"),
			Environment: getEnv("GO_ENV", "development"),
		},
		Log: LogConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
		Voice: VoiceConfig{
			DefaultMode:    getEnv("VOICE_DEFAULT_MODE", "realtime"),
			DefaultVoice:   getEnv("VOICE_DEFAULT_VOICE", "alloy"),
			SessionTimeout: getEnvAsDuration("VOICE_SESSION_TIMEOUT", 10*time.Second),
			ConnectTimeout: getEnvAsDuration("VOICE_CONNECT_TIMEOUT", 10*time.Second),
			SettleDelay:    getEnvAsDuration("VOICE_SETTLE_DELAY", 500*time.Millisecond),
			ChunkInterval:  getEnvAsDuration("VOICE_CHUNK_INTERVAL", 100*time.Millisecond),
			TTSCacheTTL:    getEnvAsDuration("VOICE_TTS_CACHE_TTL", 30*time.Minute),
		},
		Functions: FunctionsConfig{
			BaseURL: getEnv("FUNCTIONS_BASE_URL", ""),
			AnonKey: getEnv("FUNCTIONS_ANON_KEY", ""),
			Timeout: getEnvAsDuration("FUNCTIONS_TIMEOUT", 15*time.Second),
		},
		OpenAI: OpenAIConfig{
			APIKey:        getEnv("OPENAI_API_KEY", ""),
			ChatModel:     getEnv("OPENAI_CHAT_MODEL", "gpt-4o-mini"),
			TTSModel:      getEnv("OPENAI_TTS_MODEL", "tts-1"),
			RealtimeURL:   getEnv("OPENAI_REALTIME_URL", "wss://api.openai.com/v1/realtime"),
			RealtimeModel: getEnv("OPENAI_REALTIME_MODEL", "gpt-4o-realtime-preview"),
			RealtimeVoice: getEnv("OPENAI_REALTIME_VOICE", "alloy"),
		},
		Database: DatabaseConfig{
			Connection:  getEnv("DB_CONNECTION_STRING", ""),
			AutoMigrate: getEnvAsBool("DB_AUTO_MIGRATE", true),
		},
		Redis: RedisConfig{
			URL:           getEnv("REDIS_URL", ""),
			TranscriptTTL: getEnvAsDuration("REDIS_TRANSCRIPT_TTL", 24*time.Hour),
		},
		Events: EventsConfig{
			Backend: getEnv("EVENTS_BACKEND", "log"),
			Brokers: getEnvAsList("KAFKA_BROKERS", nil),
			Topic:   getEnv("KAFKA_TOPIC", "listing-voice.events"),
			NatsURL: getEnv("NATS_URL", "nats://localhost:4222"),
		},
		SMTP: SMTPConfig{
			Host:       getEnv("SMTP_HOST", ""),
			Port:       getEnvAsInt("SMTP_PORT", 587),
			Email:      getEnv("SMTP_EMAIL", ""),
			Password:   getEnv("SMTP_PASSWORD", ""),
			SenderName: getEnv("SMTP_SENDER_NAME", "Listing Assistant"),
		},
		Realtor: RealtorConfig{
			Email: getEnv("REALTOR_EMAIL", ""),
			Phone: getEnv("REALTOR_PHONE", ""),
		},
	}
}

// FunctionsURL returns the hosted functions base URL, defaulting to the
// functions mounted on this service.
func (c *Config) FunctionsURL() string {
	if c.Functions.BaseURL != "" {
		return strings.TrimRight(c.Functions.BaseURL, "/")
	}
	return strings.TrimRight(c.App.BaseURL, "/") + "/functions/v1"
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	strValue := getEnv(key, "")
	if value, err := strconv.Atoi(strValue); err == nil {
		return value
	}
	return fallback
}

func getEnvAsBool(key string, fallback bool) bool {
	strValue := getEnv(key, "")
	if value, err := strconv.ParseBool(strValue); err == nil {
		return value
	}
	return fallback
}

func getEnvAsDuration(key string, fallback time.Duration) time.Duration {
	strValue := getEnv(key, "")
	if value, err := time.ParseDuration(strValue); err == nil {
		return value
	}
	return fallback
}

func getEnvAsList(key string, fallback []string) []string {
	strValue := getEnv(key, "")
	if strValue == "" {
		return fallback
	}
	var out []string
	for _, part := range strings.Split(strValue, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
