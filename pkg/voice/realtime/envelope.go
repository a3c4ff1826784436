package realtime

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/chriscow/listing-voice-go/pkg/voice"
)

// EnvelopeType tags each JSON text frame on the voice socket.
type EnvelopeType string

const (
	EnvelopeTranscript EnvelopeType = "transcript"
	EnvelopeAudioStart EnvelopeType = "audio_start"
	EnvelopeAudioEnd   EnvelopeType = "audio_end"
	EnvelopeError      EnvelopeType = "error"
)

// ErrMalformedEnvelope is returned for frames that cannot be dispatched.
var ErrMalformedEnvelope = errors.New("malformed envelope")

// Envelope is one server message. Role and Text are set on transcripts,
// Error on error envelopes.
type Envelope struct {
	Type  EnvelopeType `json:"type"`
	Role  voice.Role   `json:"role,omitempty"`
	Text  string       `json:"text,omitempty"`
	Error string       `json:"error,omitempty"`
}

// Known reports whether the envelope type is one the client acts on.
func (e Envelope) Known() bool {
	switch e.Type {
	case EnvelopeTranscript, EnvelopeAudioStart, EnvelopeAudioEnd, EnvelopeError:
		return true
	}
	return false
}

// DecodeEnvelope parses a text frame. Unknown types decode without error so
// callers can skip them; a transcript without a valid role is malformed.
func DecodeEnvelope(data []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return Envelope{}, fmt.Errorf("%w: %v", ErrMalformedEnvelope, err)
	}
	if env.Type == "" {
		return Envelope{}, fmt.Errorf("%w: missing type", ErrMalformedEnvelope)
	}
	if env.Type == EnvelopeTranscript && env.Role != voice.RoleUser && env.Role != voice.RoleAssistant {
		return Envelope{}, fmt.Errorf("%w: transcript role %q", ErrMalformedEnvelope, env.Role)
	}
	return env, nil
}

// Encode marshals the envelope for the wire.
func (e Envelope) Encode() []byte {
	// Marshal cannot fail for a struct of strings.
	b, _ := json.Marshal(e)
	return b
}
