// Package voice presents a single start/stop/speak interface over two
// interchangeable voice backends: a realtime streaming conversation and a
// recognizer-plus-TTS pipeline. Exactly one backend is active at a time.
package voice

import (
	"context"

	"github.com/chriscow/listing-voice-go/pkg/ai/stt"
	"github.com/chriscow/listing-voice-go/pkg/rtc"
)

// Role identifies who spoke a transcript.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// TranscriptEvent is handed to callbacks and never retained.
type TranscriptEvent struct {
	Role Role
	Text string
}

// Callbacks receive backend output. Every field is optional.
type Callbacks struct {
	OnTranscript func(TranscriptEvent)
	OnAIResponse func(text string)
	OnError      func(err error)
}

func (c Callbacks) Transcript(ev TranscriptEvent) {
	if c.OnTranscript != nil {
		c.OnTranscript(ev)
	}
}

func (c Callbacks) AIResponse(text string) {
	if c.OnAIResponse != nil {
		c.OnAIResponse(text)
	}
}

func (c Callbacks) Error(err error) {
	if c.OnError != nil {
		c.OnError(err)
	}
}

// Status is a snapshot of a backend's derived state.
type Status struct {
	Listening bool
	Speaking  bool
	Connected bool
	Supported bool
	Err       string
}

// Backend is one voice implementation the controller can hold.
type Backend interface {
	Mode() Mode

	// StartListening engages the microphone. Failures are also recorded in Status().Err.
	StartListening(ctx context.Context) error

	// StopListening is idempotent.
	StopListening() error

	// Shutdown releases everything the backend holds and returns once
	// teardown has completed or ctx is done.
	Shutdown(ctx context.Context) error

	Status() Status

	// ClearError drops the error reported in Status().Err.
	ClearError()
}

// Speaker is implemented by backends that synthesize speech on request.
type Speaker interface {
	Speak(text string) error
	StopSpeaking()
}

// Capabilities are the optional host media APIs, discovered once and
// injected into the backends. A nil field means the capability does not exist.
type Capabilities struct {
	Microphone rtc.Microphone
	Recognizer stt.Recognizer
	Player     rtc.Player
}
