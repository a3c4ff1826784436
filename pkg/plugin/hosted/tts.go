package hosted

import (
	"context"
	"encoding/base64"
	"os"

	"github.com/chriscow/listing-voice-go/pkg/ai"
	"github.com/chriscow/listing-voice-go/pkg/ai/tts"
	"github.com/chriscow/listing-voice-go/pkg/plugin"
)

// TTS implements tts.TTS with the hosted text-to-speech function.
type TTS struct {
	client *Client
}

// NewTTS creates a TTS backed by client.
func NewTTS(client *Client) *TTS {
	return &TTS{client: client}
}

// Synthesize calls the function and decodes its base64 audio.
func (t *TTS) Synthesize(ctx context.Context, req tts.SynthesizeRequest) (tts.Speech, error) {
	voice := req.Voice
	if voice == "" {
		voice = tts.DefaultVoice
	}
	resp, err := t.client.TextToSpeech(ctx, req.Text, voice)
	if err != nil {
		return tts.Speech{}, err
	}
	if resp.AudioContent == "" {
		return tts.Speech{}, ai.NewRecoverableError(ErrNoAudio, "text-to-speech returned no audio")
	}
	audio, err := base64.StdEncoding.DecodeString(resp.AudioContent)
	if err != nil {
		return tts.Speech{}, ai.NewRecoverableError(err, "decode text-to-speech audio")
	}
	return tts.Speech{Audio: audio, Format: "mp3", Voice: voice, Text: req.Text}, nil
}

// Capabilities implements tts.TTS.
func (t *TTS) Capabilities() tts.TTSCapabilities {
	return tts.TTSCapabilities{
		SupportedVoices: tts.VoiceIDs(),
		Formats:         []string{"mp3"},
	}
}

func newHostedTTS(cfg map[string]any) (any, error) {
	baseURL, _ := cfg["base_url"].(string)
	if baseURL == "" {
		baseURL = os.Getenv("FUNCTIONS_BASE_URL")
	}
	anonKey, _ := cfg["anon_key"].(string)
	if anonKey == "" {
		anonKey = os.Getenv("FUNCTIONS_ANON_KEY")
	}
	if baseURL == "" {
		return nil, ai.NewFatalError(nil, "hosted TTS needs base_url (or FUNCTIONS_BASE_URL)")
	}
	return NewTTS(NewClient(baseURL, anonKey)), nil
}

func init() {
	plugin.RegisterWithMetadata(&plugin.Plugin{
		Kind:        plugin.KindTTS,
		Name:        "hosted",
		Factory:     newHostedTTS,
		Description: "Hosted text-to-speech function",
		Version:     "1.0.0",
		Config: map[string]any{
			"base_url": "functions base URL (or set FUNCTIONS_BASE_URL)",
			"anon_key": "functions key (or set FUNCTIONS_ANON_KEY)",
		},
	})
}
