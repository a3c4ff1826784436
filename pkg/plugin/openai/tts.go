package openai

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/rs/zerolog"
	openai "github.com/sashabaranov/go-openai"

	"github.com/chriscow/listing-voice-go/internal/logging"
	"github.com/chriscow/listing-voice-go/pkg/ai"
	"github.com/chriscow/listing-voice-go/pkg/ai/tts"
)

// DefaultTTSModel is used when no model is configured.
const DefaultTTSModel = "tts-1"

// TTS implements tts.TTS using OpenAI's speech endpoint.
type TTS struct {
	client *openai.Client
	model  string
	voice  string
	log    zerolog.Logger
}

// NewTTS creates an OpenAI TTS. An empty voice means tts.DefaultVoice.
func NewTTS(apiKey, baseURL, model, voice string) (*TTS, error) {
	client, err := newClient(apiKey, baseURL)
	if err != nil {
		return nil, err
	}
	if voice == "" {
		voice = tts.DefaultVoice
	}
	if _, ok := tts.LookupVoice(voice); !ok {
		return nil, fmt.Errorf("unknown voice %q", voice)
	}
	return &TTS{
		client: client,
		model:  model,
		voice:  voice,
		log:    logging.WithComponent("openai-tts"),
	}, nil
}

// Synthesize renders the whole utterance as MP3.
func (o *TTS) Synthesize(ctx context.Context, req tts.SynthesizeRequest) (tts.Speech, error) {
	voice := req.Voice
	if voice == "" {
		voice = o.voice
	}
	start := time.Now()

	speechReq := openai.CreateSpeechRequest{
		Model:          openai.SpeechModel(o.model),
		Input:          req.Text,
		Voice:          openai.SpeechVoice(voice),
		ResponseFormat: openai.SpeechResponseFormatMp3,
	}
	if req.Speed > 0 {
		speechReq.Speed = float64(req.Speed)
	}

	resp, err := o.client.CreateSpeech(ctx, speechReq)
	if err != nil {
		o.log.Error().Err(err).Str("voice", voice).Msg("speech request failed")
		return tts.Speech{}, classify(err, "speech request failed")
	}
	defer resp.Close()

	audio, err := io.ReadAll(resp)
	if err != nil {
		return tts.Speech{}, ai.NewRecoverableError(err, "read speech response")
	}

	o.log.Debug().
		Str("voice", voice).
		Int("bytes", len(audio)).
		Dur("duration", time.Since(start)).
		Msg("speech synthesized")

	return tts.Speech{Audio: audio, Format: "mp3", Voice: voice, Text: req.Text}, nil
}

// Capabilities returns the OpenAI TTS provider's capabilities.
func (o *TTS) Capabilities() tts.TTSCapabilities {
	return tts.TTSCapabilities{
		SupportedVoices:      tts.VoiceIDs(),
		Formats:              []string{"mp3"},
		SupportsSpeedControl: true,
	}
}
