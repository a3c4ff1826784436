// Package openai provides OpenAI-based providers: Whisper speech
// recognition, text-to-speech, and chat completion.
package openai

import (
	"errors"
	"fmt"
	"net/http"
	"os"

	openai "github.com/sashabaranov/go-openai"

	"github.com/chriscow/listing-voice-go/pkg/ai"
	"github.com/chriscow/listing-voice-go/pkg/plugin"
	"github.com/chriscow/listing-voice-go/pkg/rtc"
)

// newClient builds a client for apiKey, pointed at baseURL when set.
func newClient(apiKey, baseURL string) (*openai.Client, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("OpenAI API key is required (set OPENAI_API_KEY environment variable or provide api_key in config)")
	}
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	return openai.NewClientWithConfig(cfg), nil
}

// classify wraps an OpenAI error. Client errors other than rate limiting
// are fatal; everything else is worth retrying.
func classify(err error, message string) error {
	status := 0
	var apiErr *openai.APIError
	var reqErr *openai.RequestError
	switch {
	case errors.As(err, &apiErr):
		status = apiErr.HTTPStatusCode
	case errors.As(err, &reqErr):
		status = reqErr.HTTPStatusCode
	}
	if status >= 400 && status < 500 && status != http.StatusTooManyRequests {
		return ai.NewFatalError(err, message)
	}
	return ai.NewRecoverableError(err, message)
}

func stringOpt(cfg map[string]any, key, fallback string) string {
	if v, ok := cfg[key].(string); ok && v != "" {
		return v
	}
	return fallback
}

func apiKey(cfg map[string]any) string {
	return stringOpt(cfg, "api_key", os.Getenv("OPENAI_API_KEY"))
}

// newOpenAISTT is the factory function for OpenAI STT. The microphone
// must be supplied in cfg["microphone"].
func newOpenAISTT(cfg map[string]any) (any, error) {
	mic, _ := cfg["microphone"].(rtc.Microphone)
	return NewWhisperSTT(Config{
		APIKey:     apiKey(cfg),
		BaseURL:    stringOpt(cfg, "base_url", ""),
		Model:      stringOpt(cfg, "model", ""),
		Language:   stringOpt(cfg, "language", ""),
		Microphone: mic,
	})
}

func newOpenAILLM(cfg map[string]any) (any, error) {
	return NewLLM(apiKey(cfg), stringOpt(cfg, "base_url", ""), stringOpt(cfg, "model", DefaultChatModel))
}

func newOpenAITTS(cfg map[string]any) (any, error) {
	return NewTTS(apiKey(cfg), stringOpt(cfg, "base_url", ""),
		stringOpt(cfg, "model", DefaultTTSModel), stringOpt(cfg, "voice", ""))
}

func init() {
	plugin.RegisterWithMetadata(&plugin.Plugin{
		Kind:        plugin.KindSTT,
		Name:        "openai",
		Factory:     newOpenAISTT,
		Description: "OpenAI Whisper single-utterance recognizer",
		Version:     "1.0.0",
		Config: map[string]any{
			"api_key":    "OpenAI API key (or set OPENAI_API_KEY env var)",
			"model":      openai.Whisper1,
			"language":   "auto-detect (leave empty) or specify language code",
			"microphone": "rtc.Microphone to capture from",
		},
	})

	plugin.RegisterWithMetadata(&plugin.Plugin{
		Kind:        plugin.KindLLM,
		Name:        "openai",
		Factory:     newOpenAILLM,
		Description: "OpenAI GPT chat completion service",
		Version:     "1.0.0",
		Config: map[string]any{
			"api_key": "OpenAI API key (or set OPENAI_API_KEY env var)",
			"model":   DefaultChatModel,
		},
	})

	plugin.RegisterWithMetadata(&plugin.Plugin{
		Kind:        plugin.KindTTS,
		Name:        "openai",
		Factory:     newOpenAITTS,
		Description: "OpenAI text-to-speech service",
		Version:     "1.0.0",
		Config: map[string]any{
			"api_key": "OpenAI API key (or set OPENAI_API_KEY env var)",
			"model":   DefaultTTSModel,
			"voice":   "alloy",
		},
	})
}

