package openai

import (
	"bytes"
	"context"
	"encoding/binary"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	openai "github.com/sashabaranov/go-openai"

	"github.com/chriscow/listing-voice-go/internal/logging"
	"github.com/chriscow/listing-voice-go/pkg/ai/stt"
	"github.com/chriscow/listing-voice-go/pkg/audio/wav"
	"github.com/chriscow/listing-voice-go/pkg/rtc"
)

const (
	defaultMaxUtterance   = 15 * time.Second
	defaultSilenceTimeout = 800 * time.Millisecond
	defaultSilenceLevel   = 0.01

	// Whisper rejects clips shorter than this.
	minAudio = 100 * time.Millisecond
)

// Config holds configuration for the Whisper recognizer.
type Config struct {
	APIKey     string
	BaseURL    string
	Model      string // Default: whisper-1
	Language   string // Default: from RecognizeConfig, else auto-detect
	Microphone rtc.Microphone

	// MaxUtterance caps how long one recognition records.
	MaxUtterance time.Duration
	// SilenceTimeout ends the utterance after this much quiet following speech.
	SilenceTimeout time.Duration
	// SilenceLevel is the RMS level (0..1) below which a chunk is quiet.
	SilenceLevel float64
	// Constraints overrides the capture request; zero means rtc.DefaultConstraints.
	Constraints rtc.Constraints
}

// WhisperSTT records one utterance from the microphone per Start and
// transcribes it with Whisper once the speaker goes quiet.
type WhisperSTT struct {
	client *openai.Client
	cfg    Config
	log    zerolog.Logger
}

// NewWhisperSTT creates a new OpenAI Whisper recognizer.
func NewWhisperSTT(cfg Config) (*WhisperSTT, error) {
	client, err := newClient(cfg.APIKey, cfg.BaseURL)
	if err != nil {
		return nil, err
	}
	if cfg.Model == "" {
		cfg.Model = openai.Whisper1
	}
	if cfg.MaxUtterance <= 0 {
		cfg.MaxUtterance = defaultMaxUtterance
	}
	if cfg.SilenceTimeout <= 0 {
		cfg.SilenceTimeout = defaultSilenceTimeout
	}
	if cfg.SilenceLevel <= 0 {
		cfg.SilenceLevel = defaultSilenceLevel
	}
	if cfg.Constraints.SampleRate == 0 {
		cfg.Constraints = rtc.DefaultConstraints()
	}
	return &WhisperSTT{client: client, cfg: cfg, log: logging.WithComponent("whisper")}, nil
}

// Start opens the microphone and begins recording one utterance.
func (w *WhisperSTT) Start(ctx context.Context, rc stt.RecognizeConfig) (stt.Recognition, error) {
	if w.cfg.Microphone == nil {
		return nil, rtc.ErrNoMicrophone
	}
	capture, err := w.cfg.Microphone.Open(ctx, w.cfg.Constraints)
	if err != nil {
		return nil, err
	}

	language := w.cfg.Language
	if language == "" {
		language = isoLanguage(rc.Language)
	}

	r := &recognition{
		events: make(chan stt.SpeechEvent, 2),
		stop:   make(chan struct{}),
	}
	go r.run(ctx, w, capture, language)
	return r, nil
}

// Capabilities returns the STT capabilities.
func (w *WhisperSTT) Capabilities() stt.STTCapabilities {
	return stt.STTCapabilities{
		InterimResults:     false,
		SupportedLanguages: []string{"en", "es", "fr", "de", "it", "pt", "nl", "ja", "ko", "zh"},
	}
}

// isoLanguage turns a BCP 47 tag like en-US into the ISO-639-1 code Whisper expects.
func isoLanguage(tag string) string {
	if i := strings.IndexByte(tag, '-'); i > 0 {
		tag = tag[:i]
	}
	return strings.ToLower(tag)
}

type recognition struct {
	events chan stt.SpeechEvent
	stop   chan struct{}
	once   sync.Once
}

func (r *recognition) Events() <-chan stt.SpeechEvent { return r.events }

// Stop ends recording; whatever speech was captured is still transcribed.
func (r *recognition) Stop() error {
	r.once.Do(func() { close(r.stop) })
	return nil
}

func (r *recognition) run(ctx context.Context, w *WhisperSTT, capture rtc.Capture, language string) {
	defer close(r.events)

	pcm, rate, channels, heard := r.record(ctx, w, capture)
	capture.Close()

	if ctx.Err() != nil || !heard {
		return
	}
	if bytesDuration(len(pcm), rate, channels) < minAudio {
		return
	}

	resp, err := w.client.CreateTranscription(ctx, openai.AudioRequest{
		Model:    w.cfg.Model,
		Language: language,
		Format:   openai.AudioResponseFormatJSON,
		Reader:   bytes.NewReader(wav.Encode(pcm, rate, channels)),
		FilePath: "utterance.wav",
	})
	if err != nil {
		w.log.Error().Err(err).Msg("transcription failed")
		r.events <- stt.SpeechEvent{
			Type:      stt.SpeechEventError,
			Error:     classify(err, "transcription failed"),
			Timestamp: time.Now().UnixMilli(),
		}
		return
	}

	text := strings.TrimSpace(resp.Text)
	w.log.Debug().Str("text", text).Msg("utterance transcribed")
	r.events <- stt.SpeechEvent{
		Type:      stt.SpeechEventFinal,
		Text:      text,
		IsFinal:   true,
		Language:  language,
		Timestamp: time.Now().UnixMilli(),
	}
}

// record collects chunks until the speaker goes quiet after talking, Stop,
// the utterance cap, or the capture ending.
func (r *recognition) record(ctx context.Context, w *WhisperSTT, capture rtc.Capture) (pcm []byte, rate, channels int, heard bool) {
	rate, channels = w.cfg.Constraints.SampleRate, w.cfg.Constraints.ChannelCount
	limit := time.NewTimer(w.cfg.MaxUtterance)
	defer limit.Stop()

	var quiet time.Duration
	for {
		select {
		case <-ctx.Done():
			return
		case <-r.stop:
			return
		case <-limit.C:
			return
		case chunk, ok := <-capture.Chunks():
			if !ok {
				return
			}
			if chunk.SampleRate > 0 {
				rate, channels = chunk.SampleRate, chunk.NumChannels
			}
			pcm = append(pcm, chunk.Data...)

			if level(chunk.Data) >= w.cfg.SilenceLevel {
				heard = true
				quiet = 0
				continue
			}
			if heard {
				quiet += chunk.Duration()
				if quiet >= w.cfg.SilenceTimeout {
					return
				}
			}
		}
	}
}

// level returns the RMS of 16-bit little-endian PCM, scaled to 0..1.
func level(pcm []byte) float64 {
	n := len(pcm) / 2
	if n == 0 {
		return 0
	}
	var sum float64
	for i := 0; i < n; i++ {
		s := float64(int16(binary.LittleEndian.Uint16(pcm[2*i:]))) / math.MaxInt16
		sum += s * s
	}
	return math.Sqrt(sum / float64(n))
}

func bytesDuration(n, rate, channels int) time.Duration {
	if rate <= 0 || channels <= 0 {
		return 0
	}
	return time.Duration(n/(2*channels)) * time.Second / time.Duration(rate)
}

var _ stt.Recognizer = (*WhisperSTT)(nil)

