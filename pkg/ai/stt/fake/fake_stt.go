package fake

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/chriscow/listing-voice-go/pkg/ai/stt"
)

// DefaultTranscript is used when no transcript is provided.
const DefaultTranscript = "What's the price of this home?"

// FakeSTT is a fake recognizer. By default each recognition yields one final
// transcript and ends; in manual mode the test drives it with Say or Fail.
type FakeSTT struct {
	mu           sync.Mutex
	transcript   string
	delay        time.Duration
	manual       bool
	startErr     error
	recognitions []*FakeRecognition
	configs      []stt.RecognizeConfig
}

// NewFakeSTT creates a new fake recognizer with a fixed transcript.
func NewFakeSTT(transcript string) *FakeSTT {
	if transcript == "" {
		transcript = DefaultTranscript
	}
	return &FakeSTT{transcript: transcript}
}

// Manual stops recognitions from producing results on their own.
func (f *FakeSTT) Manual() *FakeSTT {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.manual = true
	return f
}

// WithDelay delays the automatic result by d.
func (f *FakeSTT) WithDelay(d time.Duration) *FakeSTT {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.delay = d
	return f
}

// FailStart makes every Start return err.
func (f *FakeSTT) FailStart(err error) *FakeSTT {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.startErr = err
	return f
}

// Start creates a new fake recognition.
func (f *FakeSTT) Start(ctx context.Context, cfg stt.RecognizeConfig) (stt.Recognition, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.configs = append(f.configs, cfg)
	if f.startErr != nil {
		return nil, f.startErr
	}

	r := &FakeRecognition{
		events:   make(chan stt.SpeechEvent, 4),
		language: cfg.Language,
	}
	f.recognitions = append(f.recognitions, r)

	if !f.manual {
		go func(text string, delay time.Duration) {
			select {
			case <-time.After(delay):
				r.Say(text)
			case <-ctx.Done():
				r.Stop()
			}
		}(f.transcript, f.delay)
	}
	return r, nil
}

// Capabilities returns the fake recognizer capabilities.
func (f *FakeSTT) Capabilities() stt.STTCapabilities {
	return stt.STTCapabilities{
		InterimResults:     false,
		SupportedLanguages: []string{"en-US"},
	}
}

// Recognitions returns every recognition started so far.
func (f *FakeSTT) Recognitions() []*FakeRecognition {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*FakeRecognition(nil), f.recognitions...)
}

// Last returns the most recent recognition, or nil.
func (f *FakeSTT) Last() *FakeRecognition {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.recognitions) == 0 {
		return nil
	}
	return f.recognitions[len(f.recognitions)-1]
}

// Configs returns the configuration passed to each Start.
func (f *FakeSTT) Configs() []stt.RecognizeConfig {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]stt.RecognizeConfig(nil), f.configs...)
}

// FakeRecognition is one fake utterance capture.
type FakeRecognition struct {
	mu       sync.Mutex
	events   chan stt.SpeechEvent
	language string
	ended    bool
	stopped  bool
}

// Events implements stt.Recognition.
func (r *FakeRecognition) Events() <-chan stt.SpeechEvent {
	return r.events
}

// Say delivers a final transcript and ends the recognition.
func (r *FakeRecognition) Say(text string) {
	r.finish(stt.SpeechEvent{
		Type:      stt.SpeechEventFinal,
		Text:      text,
		IsFinal:   true,
		Language:  r.language,
		Timestamp: time.Now().UnixMilli(),
	})
}

// Fail delivers an error event and ends the recognition.
func (r *FakeRecognition) Fail(err error) {
	if err == nil {
		err = errors.New("fake recognition error")
	}
	r.finish(stt.SpeechEvent{
		Type:      stt.SpeechEventError,
		Error:     err,
		Timestamp: time.Now().UnixMilli(),
	})
}

// Stop ends the recognition without a result. It is idempotent.
func (r *FakeRecognition) Stop() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stopped = true
	if !r.ended {
		r.ended = true
		close(r.events)
	}
	return nil
}

// Stopped reports whether Stop was called.
func (r *FakeRecognition) Stopped() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stopped
}

func (r *FakeRecognition) finish(ev stt.SpeechEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.ended {
		return
	}
	r.ended = true
	r.events <- ev
	close(r.events)
}
