package fake

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/chriscow/listing-voice-go/pkg/ai"
	"github.com/chriscow/listing-voice-go/pkg/ai/tts"
)

// FakeTTS is a fake TTS implementation for testing. The audio it returns is
// the request text, so players can tell utterances apart.
type FakeTTS struct {
	mu       sync.Mutex
	delay    time.Duration
	failOn   map[string]error
	requests []tts.SynthesizeRequest
}

// NewFakeTTS creates a new fake TTS provider.
func NewFakeTTS() *FakeTTS {
	return &FakeTTS{failOn: make(map[string]error)}
}

// WithDelay makes each synthesis take d, honoring context cancellation.
func (f *FakeTTS) WithDelay(d time.Duration) *FakeTTS {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.delay = d
	return f
}

// FailOn makes synthesis of text fail with a recoverable error.
func (f *FakeTTS) FailOn(text string) *FakeTTS {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failOn[text] = ai.NewRecoverableError(errors.New("fake synthesis failure"), "text-to-speech request failed")
	return f
}

// Synthesize returns the request text as audio.
func (f *FakeTTS) Synthesize(ctx context.Context, req tts.SynthesizeRequest) (tts.Speech, error) {
	f.mu.Lock()
	f.requests = append(f.requests, req)
	delay := f.delay
	failure := f.failOn[req.Text]
	f.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return tts.Speech{}, ctx.Err()
		}
	}
	if failure != nil {
		return tts.Speech{}, failure
	}

	return tts.Speech{
		Audio:  []byte(req.Text),
		Format: "pcm",
		Voice:  req.Voice,
		Text:   req.Text,
	}, nil
}

// Requests returns a copy of every request received so far.
func (f *FakeTTS) Requests() []tts.SynthesizeRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]tts.SynthesizeRequest(nil), f.requests...)
}

// Capabilities returns the fake TTS capabilities.
func (f *FakeTTS) Capabilities() tts.TTSCapabilities {
	return tts.TTSCapabilities{
		SupportedVoices:      tts.VoiceIDs(),
		Formats:              []string{"pcm"},
		SupportsSpeedControl: false,
	}
}
