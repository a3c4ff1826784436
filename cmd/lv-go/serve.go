package main

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/chriscow/listing-voice-go/internal/config"
	"github.com/chriscow/listing-voice-go/internal/events"
	"github.com/chriscow/listing-voice-go/internal/logging"
	"github.com/chriscow/listing-voice-go/internal/mailer"
	"github.com/chriscow/listing-voice-go/internal/metrics"
	"github.com/chriscow/listing-voice-go/internal/notify"
	"github.com/chriscow/listing-voice-go/internal/server"
	"github.com/chriscow/listing-voice-go/internal/store"
	"github.com/chriscow/listing-voice-go/internal/transcript"
	"github.com/chriscow/listing-voice-go/pkg/ai/llm"
	"github.com/chriscow/listing-voice-go/pkg/ai/tts"
	"github.com/chriscow/listing-voice-go/pkg/listing"
	"github.com/chriscow/listing-voice-go/pkg/plugin"
	"github.com/chriscow/listing-voice-go/pkg/plugin/hosted"
)

const shutdownTimeout = 15 * time.Second

type serveOptions struct {
	Addr           string
	PropertiesFile string
	TTSProvider    string
}

// runServe wires the configured backends into the HTTP server. Postgres,
// Redis, SMTP and OpenAI are optional; each falls back to an in-process or
// disabled stand-in when unconfigured.
func runServe(ctx context.Context, cfg *config.Config, opts serveOptions) error {
	logger := logging.WithComponent("serve")

	var seed []listing.Property
	if opts.PropertiesFile != "" {
		props, err := listing.LoadFile(opts.PropertiesFile)
		if err != nil {
			return err
		}
		seed = props
	}

	var (
		properties server.Properties
		dispatch   []notify.Option
	)
	if cfg.Database.Connection != "" {
		db, err := store.Open(cfg.Database.Connection, logging.WithComponent("store"))
		if err != nil {
			return err
		}
		repo := store.NewRepository(db)
		if cfg.Database.AutoMigrate {
			if err := repo.Migrate(ctx); err != nil {
				return fmt.Errorf("migrate: %w", err)
			}
		}
		for i := range seed {
			if err := repo.SaveProperty(ctx, &seed[i]); err != nil {
				return fmt.Errorf("seed property %s: %w", seed[i].ID, err)
			}
		}
		properties = repo
		dispatch = append(dispatch, notify.WithStore(repo))
	} else {
		static := server.StaticProperties{}
		for i := range seed {
			static[seed[i].ID] = &seed[i]
		}
		properties = static
		logger.Warn().Msg("DB_CONNECTION_STRING not set; leads and appointments are not persisted")
	}

	var transcripts transcript.Store
	if cfg.Redis.URL != "" {
		rdb, err := transcript.Dial(ctx, cfg.Redis.URL)
		if err != nil {
			return err
		}
		defer rdb.Close()
		transcripts = transcript.NewRedisStore(rdb, cfg.Redis.TranscriptTTL)
	} else {
		transcripts = transcript.NewMemoryStore(cfg.Redis.TranscriptTTL)
	}

	publisher, err := events.Open(events.Config{
		Backend: cfg.Events.Backend,
		Brokers: cfg.Events.Brokers,
		Topic:   cfg.Events.Topic,
		NatsURL: cfg.Events.NatsURL,
	}, logging.WithComponent("events"), metrics.DefaultMetrics)
	if err != nil {
		return err
	}
	defer publisher.Close()

	if cfg.SMTP.Host != "" {
		m := mailer.New(mailer.Config{
			Host:       cfg.SMTP.Host,
			Port:       cfg.SMTP.Port,
			Username:   cfg.SMTP.Email,
			Password:   cfg.SMTP.Password,
			SenderName: cfg.SMTP.SenderName,
		}, logging.WithComponent("mailer"))
		dispatch = append(dispatch, notify.WithMailer(m))
	}

	functions := hosted.NewClient(cfg.FunctionsURL(), cfg.Functions.AnonKey, hosted.WithTimeout(cfg.Functions.Timeout))
	dispatch = append(dispatch,
		notify.WithSMS(functions),
		notify.WithPublisher(publisher),
		notify.WithRealtor(notify.Realtor{Email: cfg.Realtor.Email, Phone: cfg.Realtor.Phone}),
	)
	notifier := notify.New(dispatch...)

	synth, err := serverTTS(cfg, opts.TTSProvider)
	if err != nil {
		return err
	}

	var model llm.LLM
	var bridge *server.Bridge
	if cfg.OpenAI.APIKey != "" {
		model, err = plugin.NewLLM("openai", map[string]any{"api_key": cfg.OpenAI.APIKey, "model": cfg.OpenAI.ChatModel})
		if err != nil {
			return err
		}
		bridge = server.NewBridge(server.BridgeConfig{
			URL:    realtimeURL(cfg.OpenAI.RealtimeURL, cfg.OpenAI.RealtimeModel),
			APIKey: cfg.OpenAI.APIKey,
			Voice:  cfg.OpenAI.RealtimeVoice,
		}, logging.WithComponent("bridge"), metrics.DefaultMetrics)
	} else {
		logger.Warn().Msg("OPENAI_API_KEY not set; chat uses keyword rules and realtime voice is disabled")
	}

	srv, err := server.New(server.Config{
		BaseURL:      cfg.App.BaseURL,
		DefaultVoice: cfg.Voice.DefaultVoice,
		TTSCacheTTL:  cfg.Voice.TTSCacheTTL,
	}, server.Deps{
		Properties:  properties,
		Transcripts: transcripts,
		Notifier:    notifier,
		TTS:         synth,
		LLM:         model,
		Bridge:      bridge,
	})
	if err != nil {
		return err
	}

	errc := make(chan error, 1)
	go func() { errc <- srv.Start(opts.Addr) }()

	log.Info().
		Str("addr", opts.Addr).
		Str("env", cfg.App.Environment).
		Str("events", cfg.Events.Backend).
		Int("properties", len(seed)).
		Msg("listing voice service started")

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	log.Info().Msg("shutting down")
	return srv.Shutdown(shutdownCtx)
}

// serverTTS picks the provider behind the text-to-speech function. The
// hosted provider would call this service, so it is not offered.
func serverTTS(cfg *config.Config, provider string) (tts.TTS, error) {
	if provider == "" {
		provider = "fake"
		if cfg.OpenAI.APIKey != "" {
			provider = "openai"
		}
	}
	if provider == "hosted" {
		return nil, fmt.Errorf("the hosted TTS provider cannot back the server's own text-to-speech function")
	}
	return newTTS(cfg, provider)
}

func realtimeURL(base, model string) string {
	u, err := url.Parse(base)
	if err != nil || model == "" {
		return base
	}
	q := u.Query()
	q.Set("model", model)
	u.RawQuery = q.Encode()
	return u.String()
}
