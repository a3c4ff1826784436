// Package stt provides interfaces and types for speech recognizers.
// A Recognizer captures one utterance per Start; the resulting Recognition
// delivers speech events and ends by itself once the utterance is final.
package stt

import (
	"context"
)

// RecognizeConfig contains configuration for a recognition.
type RecognizeConfig struct {
	Language       string
	Continuous     bool
	InterimResults bool
}

// SingleUtterance returns the configuration used for push-to-talk input:
// English, no interim results, auto-stop after one utterance.
func SingleUtterance() RecognizeConfig {
	return RecognizeConfig{
		Language:       "en-US",
		Continuous:     false,
		InterimResults: false,
	}
}

// SpeechEvent represents a speech recognition event containing transcription results or errors.
type SpeechEvent struct {
	Type      SpeechEventType // Type of event (interim, final, or error)
	Text      string          // Transcribed text (empty for error events)
	IsFinal   bool            // True if this is a final result that won't change
	Language  string          // Detected or configured language code
	Timestamp int64           // Event timestamp in milliseconds since epoch
	Error     error           // Error details (only set for error events)
}

// SpeechEventType represents the type of speech recognition event.
type SpeechEventType int

const (
	// SpeechEventInterim represents partial transcription results that may change
	SpeechEventInterim SpeechEventType = iota
	// SpeechEventFinal represents final transcription results that won't change
	SpeechEventFinal
	// SpeechEventError represents transcription errors
	SpeechEventError
)

func (t SpeechEventType) String() string {
	switch t {
	case SpeechEventInterim:
		return "interim"
	case SpeechEventFinal:
		return "final"
	case SpeechEventError:
		return "error"
	default:
		return "unknown"
	}
}

// STTCapabilities describes the capabilities of a recognizer.
type STTCapabilities struct {
	InterimResults     bool
	SupportedLanguages []string
}

// Recognizer is the main interface for speech recognizers.
type Recognizer interface {
	// Start begins capturing one utterance.
	Start(ctx context.Context, cfg RecognizeConfig) (Recognition, error)

	// Capabilities returns the recognizer's capabilities.
	Capabilities() STTCapabilities
}

// Recognition is one active utterance capture.
type Recognition interface {
	// Events delivers recognition events and is closed when the
	// recognition ends, whether by result, error or Stop.
	Events() <-chan SpeechEvent

	// Stop asks the recognition to end. It is idempotent.
	Stop() error
}
