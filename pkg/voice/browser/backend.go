// Package browser implements the fallback voice backend: a single-utterance
// speech recognizer for input and a queued text-to-speech pipeline for
// output. It holds no persistent connection.
package browser

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/chriscow/listing-voice-go/internal/logging"
	"github.com/chriscow/listing-voice-go/internal/metrics"
	"github.com/chriscow/listing-voice-go/pkg/ai"
	"github.com/chriscow/listing-voice-go/pkg/ai/stt"
	"github.com/chriscow/listing-voice-go/pkg/ai/tts"
	"github.com/chriscow/listing-voice-go/pkg/rtc"
	"github.com/chriscow/listing-voice-go/pkg/voice"
)

// Config configures a Backend.
type Config struct {
	Caps voice.Capabilities
	TTS  tts.TTS

	// Voice is the initial voice ID. Defaults to tts.DefaultVoice.
	Voice string
	// Language overrides the recognizer locale. Defaults to en-US.
	Language string
	// Provider labels TTS metrics.
	Provider string

	Callbacks voice.Callbacks

	Logger  *zerolog.Logger
	Metrics *metrics.Metrics
}

// Backend is the browser voice.Backend.
type Backend struct {
	cfg     Config
	log     zerolog.Logger
	metrics *metrics.Metrics

	mu          sync.Mutex
	listening   bool
	recognition stt.Recognition
	denied      bool
	err         string
	voice       string

	// speech queue, see speech.go
	queue     []string
	draining  bool
	gen       uint64
	stopDrain context.CancelFunc
	drainDone chan struct{}
}

var (
	_ voice.Backend = (*Backend)(nil)
	_ voice.Speaker = (*Backend)(nil)
)

// New creates a backend. Missing capabilities are reported through Status
// and the errors returned by StartListening and Speak.
func New(cfg Config) (*Backend, error) {
	if cfg.Voice == "" {
		cfg.Voice = tts.DefaultVoice
	}
	if _, ok := tts.LookupVoice(cfg.Voice); !ok {
		return nil, fmt.Errorf("browser: unknown voice %q", cfg.Voice)
	}
	if cfg.Provider == "" {
		cfg.Provider = "hosted"
	}
	if cfg.Metrics == nil {
		cfg.Metrics = metrics.DefaultMetrics
	}
	logger := logging.WithComponent("browser_voice")
	if cfg.Logger != nil {
		logger = *cfg.Logger
	}
	return &Backend{
		cfg:     cfg,
		log:     logger,
		metrics: cfg.Metrics,
		voice:   cfg.Voice,
	}, nil
}

// Mode implements voice.Backend.
func (b *Backend) Mode() voice.Mode { return voice.ModeBrowser }

// Status implements voice.Backend. The backend is always considered connected.
func (b *Backend) Status() voice.Status {
	b.mu.Lock()
	defer b.mu.Unlock()
	return voice.Status{
		Listening: b.listening,
		Speaking:  b.draining,
		Connected: true,
		Supported: b.cfg.Caps.Recognizer != nil && !b.denied,
		Err:       b.err,
	}
}

// StartListening checks microphone permission and starts one single-utterance
// recognition. The final transcript goes to OnTranscript and listening ends.
func (b *Backend) StartListening(ctx context.Context) error {
	b.mu.Lock()
	if b.listening {
		b.mu.Unlock()
		return nil
	}
	b.mu.Unlock()

	rec := b.cfg.Caps.Recognizer
	if rec == nil {
		err := ai.NewUnsupportedError(nil, "speech recognition is not available on this device")
		b.fail(err)
		return err
	}

	if err := b.checkMicrophone(ctx); err != nil {
		if errors.Is(err, context.Canceled) {
			return err
		}
		b.fail(err)
		return err
	}

	cfg := stt.SingleUtterance()
	if b.cfg.Language != "" {
		cfg.Language = b.cfg.Language
	}

	// The recognition outlives this call, so it gets its own context.
	recCtx, cancel := context.WithCancel(context.Background())
	recognition, err := rec.Start(recCtx, cfg)
	if err != nil {
		cancel()
		if !ai.IsUnsupported(err) && !ai.IsFatal(err) {
			err = ai.NewRecoverableError(err, "could not start speech recognition")
		}
		b.fail(err)
		return err
	}

	b.mu.Lock()
	if err := ctx.Err(); err != nil {
		b.mu.Unlock()
		cancel()
		recognition.Stop()
		return err
	}
	b.listening = true
	b.recognition = recognition
	b.err = ""
	b.mu.Unlock()

	go b.watch(recognition, cancel)

	b.log.Info().Str("language", cfg.Language).Msg("listening")
	return nil
}

// checkMicrophone opens and immediately releases the microphone. The
// recognizer does its own capture.
func (b *Backend) checkMicrophone(ctx context.Context) error {
	mic := b.cfg.Caps.Microphone
	if mic == nil {
		return nil
	}
	capture, err := mic.Open(ctx, rtc.DefaultConstraints())
	if err != nil {
		if ai.IsUnsupported(err) {
			b.mu.Lock()
			b.denied = true
			b.mu.Unlock()
			return err
		}
		return ai.NewRecoverableError(err, "could not access the microphone")
	}
	capture.Close()
	return ctx.Err()
}

func (b *Backend) watch(rec stt.Recognition, cancel context.CancelFunc) {
	defer cancel()
	for ev := range rec.Events() {
		switch ev.Type {
		case stt.SpeechEventFinal:
			if ev.Text != "" {
				b.log.Debug().Str("text", ev.Text).Msg("utterance recognized")
				b.cfg.Callbacks.Transcript(voice.TranscriptEvent{Role: voice.RoleUser, Text: ev.Text})
			}
		case stt.SpeechEventError:
			b.log.Warn().Err(ev.Error).Msg("speech recognition error")
		}
	}

	b.mu.Lock()
	if b.recognition == rec {
		b.recognition = nil
		b.listening = false
	}
	b.mu.Unlock()
}

// StopListening ends the current recognition. It is idempotent.
func (b *Backend) StopListening() error {
	b.mu.Lock()
	rec := b.recognition
	b.recognition = nil
	b.listening = false
	b.mu.Unlock()

	if rec == nil {
		return nil
	}
	if err := rec.Stop(); err != nil {
		b.log.Debug().Err(err).Msg("recognition stop")
	}
	return nil
}

// Shutdown stops listening and speaking and waits for the speech worker to exit.
func (b *Backend) Shutdown(ctx context.Context) error {
	b.StopListening()
	done := b.stopSpeaking()
	if done == nil {
		return nil
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Voice returns the voice used for subsequent synthesis.
func (b *Backend) Voice() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.voice
}

// SetVoice selects a voice from the catalog. Utterances already being
// synthesized keep their voice.
func (b *Backend) SetVoice(id string) error {
	if _, ok := tts.LookupVoice(id); !ok {
		return fmt.Errorf("unknown voice %q", id)
	}
	b.mu.Lock()
	b.voice = id
	b.mu.Unlock()
	return nil
}

// Voices returns the voice catalog.
func (b *Backend) Voices() []tts.Voice {
	return append([]tts.Voice(nil), tts.Catalog...)
}

// ClearError implements voice.Backend.
func (b *Backend) ClearError() {
	b.mu.Lock()
	b.err = ""
	b.mu.Unlock()
}

func (b *Backend) fail(err error) {
	b.mu.Lock()
	b.err = ai.Describe(err)
	b.mu.Unlock()
	if errors.Is(err, context.Canceled) {
		return
	}
	b.log.Error().Err(err).Msg("browser voice error")
}
