package rtc

import (
	"context"
	"time"

	"github.com/chriscow/listing-voice-go/pkg/ai"
)

var (
	// ErrPermissionDenied is returned by Microphone.Open when the user refuses access.
	ErrPermissionDenied = ai.NewUnsupportedError(nil, "microphone permission denied")

	// ErrNoMicrophone is returned when no capture device exists.
	ErrNoMicrophone = ai.NewUnsupportedError(nil, "no microphone available")
)

// Constraints describes the capture a backend asks for.
type Constraints struct {
	SampleRate       int
	ChannelCount     int
	EchoCancellation bool
	NoiseSuppression bool
	ChunkInterval    time.Duration
}

// DefaultConstraints is 16 kHz mono with echo cancellation and noise
// suppression, emitted in 100 ms chunks.
func DefaultConstraints() Constraints {
	return Constraints{
		SampleRate:       16000,
		ChannelCount:     1,
		EchoCancellation: true,
		NoiseSuppression: true,
		ChunkInterval:    100 * time.Millisecond,
	}
}

// Microphone acquires a fresh capture on every Open.
type Microphone interface {
	Open(ctx context.Context, c Constraints) (Capture, error)
}

// Capture is an open microphone stream with a running recorder.
type Capture interface {
	// Chunks delivers recorder output. It is closed when the capture ends.
	Chunks() <-chan AudioChunk

	// Close stops the recorder and releases every track. It is idempotent.
	Close() error
}
