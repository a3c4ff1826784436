// Package fake registers the in-memory providers so the server and CLI can
// run without any external speech or language service.
package fake

import (
	"time"

	llmfake "github.com/chriscow/listing-voice-go/pkg/ai/llm/fake"
	sttfake "github.com/chriscow/listing-voice-go/pkg/ai/stt/fake"
	ttsfake "github.com/chriscow/listing-voice-go/pkg/ai/tts/fake"
	"github.com/chriscow/listing-voice-go/pkg/plugin"
)

// newFakeSTT creates a recognizer that hears the configured transcript.
func newFakeSTT(cfg map[string]any) (any, error) {
	transcript, _ := cfg["transcript"].(string)
	return sttfake.NewFakeSTT(transcript), nil
}

// newFakeTTS creates a TTS that returns the request text as audio.
func newFakeTTS(cfg map[string]any) (any, error) {
	f := ttsfake.NewFakeTTS()
	if d, ok := cfg["delay"].(time.Duration); ok {
		f.WithDelay(d)
	}
	return f, nil
}

// newFakeLLM creates a model that cycles through canned replies.
func newFakeLLM(cfg map[string]any) (any, error) {
	responses, _ := cfg["responses"].([]string)
	return llmfake.NewFakeLLM(responses...), nil
}

func init() {
	plugin.RegisterWithMetadata(&plugin.Plugin{
		Kind:        plugin.KindSTT,
		Name:        "fake",
		Factory:     newFakeSTT,
		Description: "Fake recognizer for testing and development",
		Version:     "1.0.0",
		Config: map[string]any{
			"transcript": sttfake.DefaultTranscript,
		},
	})

	plugin.RegisterWithMetadata(&plugin.Plugin{
		Kind:        plugin.KindTTS,
		Name:        "fake",
		Factory:     newFakeTTS,
		Description: "Fake TTS that echoes text as audio",
		Version:     "1.0.0",
		Config: map[string]any{
			"delay": time.Duration(0),
		},
	})

	plugin.RegisterWithMetadata(&plugin.Plugin{
		Kind:        plugin.KindLLM,
		Name:        "fake",
		Factory:     newFakeLLM,
		Description: "Fake LLM with canned listing answers",
		Version:     "1.0.0",
		Config: map[string]any{
			"responses": []string{},
		},
	})
}
