package config

import (
	"os"
	"testing"
	"time"

	"github.com/matryer/is"
)

func TestLoad_Defaults(t *testing.T) {
	is := is.New(t)

	for _, v := range []string{
		"APP_PORT", "APP_BASE_URL", "VOICE_DEFAULT_MODE", "VOICE_SESSION_TIMEOUT",
		"VOICE_CONNECT_TIMEOUT", "VOICE_SETTLE_DELAY", "EVENTS_BACKEND", "KAFKA_BROKERS",
		"FUNCTIONS_BASE_URL", "SMTP_PORT",
	} {
		os.Unsetenv(v)
	}

	cfg := Load()

	is.Equal(cfg.App.Port, "8080")
	is.Equal(cfg.Voice.DefaultMode, "realtime")
	is.Equal(cfg.Voice.SessionTimeout, 10*time.Second)
	is.Equal(cfg.Voice.ConnectTimeout, 10*time.Second)
	is.Equal(cfg.Voice.SettleDelay, 500*time.Millisecond)
	is.Equal(cfg.Events.Backend, "log")
	is.Equal(len(cfg.Events.Brokers), 0) // no brokers unless configured
	is.Equal(cfg.SMTP.Port, 587)
	is.Equal(cfg.FunctionsURL(), "http://localhost:8080/functions/v1") // served locally by default
}

func TestLoad_CustomValues(t *testing.T) {
	is := is.New(t)

	t.Setenv("APP_PORT", "9999")
	t.Setenv("VOICE_SESSION_TIMEOUT", "3s")
	t.Setenv("VOICE_SETTLE_DELAY", "50ms")
	t.Setenv("KAFKA_BROKERS", "kafka-1:9092, kafka-2:9092,")
	t.Setenv("FUNCTIONS_BASE_URL", "https://fn.example.com/functions/v1/")
	t.Setenv("SMTP_PORT", "2525")

	cfg := Load()

	is.Equal(cfg.App.Port, "9999")
	is.Equal(cfg.Voice.SessionTimeout, 3*time.Second)
	is.Equal(cfg.Voice.SettleDelay, 50*time.Millisecond)
	is.Equal(cfg.Events.Brokers, []string{"kafka-1:9092", "kafka-2:9092"})
	is.Equal(cfg.FunctionsURL(), "https://fn.example.com/functions/v1") // trailing slash trimmed
	is.Equal(cfg.SMTP.Port, 2525)
}

func TestLoad_InvalidValuesFallBack(t *testing.T) {
	is := is.New(t)

	t.Setenv("VOICE_CONNECT_TIMEOUT", "soon")
	t.Setenv("SMTP_PORT", "not-a-port")

	cfg := Load()

	is.Equal(cfg.Voice.ConnectTimeout, 10*time.Second)
	is.Equal(cfg.SMTP.Port, 587)
}
