// Package tts defines the text-to-speech provider seam used by the browser
// voice backend and the hosted text-to-speech function.
package tts

import (
	"context"
	"slices"
)

// SynthesizeRequest contains parameters for text-to-speech synthesis.
type SynthesizeRequest struct {
	Text  string
	Voice string
	Speed float32
}

// Speech is one synthesized utterance, encoded and ready for playback.
type Speech struct {
	Audio  []byte
	Format string // mp3, wav, pcm
	Voice  string
	Text   string
}

// TTSCapabilities describes the capabilities of a TTS provider.
type TTSCapabilities struct {
	SupportedVoices      []string
	Formats              []string
	SupportsSpeedControl bool
}

// TTS is the main interface for text-to-speech providers. Synthesize returns
// the whole utterance; playback starts only once the audio is complete.
type TTS interface {
	Synthesize(ctx context.Context, req SynthesizeRequest) (Speech, error)
	Capabilities() TTSCapabilities
}

// Voice is one entry of the voice catalog.
type Voice struct {
	ID          string
	Name        string
	Description string
}

// Catalog is the fixed set of voices offered to the user.
var Catalog = []Voice{
	{ID: "alloy", Name: "Alloy", Description: "Neutral and balanced"},
	{ID: "echo", Name: "Echo", Description: "Warm and measured"},
	{ID: "fable", Name: "Fable", Description: "Expressive storyteller"},
	{ID: "onyx", Name: "Onyx", Description: "Deep and authoritative"},
	{ID: "nova", Name: "Nova", Description: "Bright and friendly"},
	{ID: "shimmer", Name: "Shimmer", Description: "Soft and clear"},
}

// DefaultVoice is used when no voice has been selected.
const DefaultVoice = "alloy"

// LookupVoice reports whether id names a voice in the catalog.
func LookupVoice(id string) (Voice, bool) {
	i := slices.IndexFunc(Catalog, func(v Voice) bool { return v.ID == id })
	if i < 0 {
		return Voice{}, false
	}
	return Catalog[i], true
}

// VoiceIDs returns the catalog voice identifiers in catalog order.
func VoiceIDs() []string {
	ids := make([]string, len(Catalog))
	for i, v := range Catalog {
		ids[i] = v.ID
	}
	return ids
}
