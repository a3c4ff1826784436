package fake

import (
	"context"
	"testing"
	"time"

	"github.com/chriscow/listing-voice-go/pkg/ai"
	"github.com/chriscow/listing-voice-go/pkg/ai/tts"
	"github.com/matryer/is"
)

func TestFakeTTSCapabilities(t *testing.T) {
	is := is.New(t)
	caps := NewFakeTTS().Capabilities()

	is.Equal(len(caps.SupportedVoices), len(tts.Catalog)) // every catalog voice supported
	is.Equal(caps.Formats, []string{"pcm"})
}

func TestFakeTTSSynthesize(t *testing.T) {
	is := is.New(t)
	provider := NewFakeTTS()

	speech, err := provider.Synthesize(context.Background(), tts.SynthesizeRequest{Text: "Hello", Voice: "nova"})
	is.NoErr(err)
	is.Equal(string(speech.Audio), "Hello")
	is.Equal(speech.Voice, "nova")
	is.Equal(len(provider.Requests()), 1)
}

func TestFakeTTSFailOn(t *testing.T) {
	is := is.New(t)
	provider := NewFakeTTS().FailOn("bad")

	_, err := provider.Synthesize(context.Background(), tts.SynthesizeRequest{Text: "bad"})
	is.True(ai.IsRecoverable(err)) // injected failures are transient

	_, err = provider.Synthesize(context.Background(), tts.SynthesizeRequest{Text: "good"})
	is.NoErr(err)
}

func TestFakeTTSContextCancellation(t *testing.T) {
	is := is.New(t)
	provider := NewFakeTTS().WithDelay(time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := provider.Synthesize(ctx, tts.SynthesizeRequest{Text: "slow"})
	is.Equal(err, context.Canceled)
}
