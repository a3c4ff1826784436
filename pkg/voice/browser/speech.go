package browser

import (
	"context"
	"strings"
	"time"

	"github.com/chriscow/listing-voice-go/pkg/ai"
	"github.com/chriscow/listing-voice-go/pkg/ai/tts"
)

// Speak appends text to the speech queue and starts the worker if it is
// idle. Utterances play one at a time in the order they were queued.
func (b *Backend) Speak(text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	if b.cfg.TTS == nil || b.cfg.Caps.Player == nil {
		return ai.NewUnsupportedError(nil, "speech output is not available on this device")
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	b.queue = append(b.queue, text)
	b.metrics.RecordSpeechQueued()
	if b.draining {
		return nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	prev := b.drainDone
	done := make(chan struct{})
	b.draining = true
	b.stopDrain = cancel
	b.drainDone = done
	go b.drain(ctx, cancel, b.gen, prev, done)
	return nil
}

// drain is the only consumer of the queue. A worker started after
// StopSpeaking waits for its predecessor so playback never overlaps.
func (b *Backend) drain(ctx context.Context, cancel context.CancelFunc, gen uint64, prev, done chan struct{}) {
	defer close(done)
	defer cancel()
	if prev != nil {
		<-prev
	}

	for {
		b.mu.Lock()
		if b.gen != gen {
			b.mu.Unlock()
			return
		}
		if len(b.queue) == 0 {
			b.draining = false
			b.stopDrain = nil
			b.mu.Unlock()
			return
		}
		text := b.queue[0]
		b.queue = b.queue[1:]
		voiceID := b.voice
		b.mu.Unlock()

		err := b.say(ctx, text, voiceID)
		if ctx.Err() != nil {
			// StopSpeaking already reset the queue.
			return
		}
		if err != nil {
			b.halt(gen, err)
			return
		}
		b.metrics.RecordSpeechPlayed()
	}
}

func (b *Backend) say(ctx context.Context, text, voiceID string) error {
	start := time.Now()
	speech, err := b.cfg.TTS.Synthesize(ctx, tts.SynthesizeRequest{Text: text, Voice: voiceID})
	b.metrics.RecordTTS(b.cfg.Provider, err, time.Since(start).Seconds())
	if err != nil {
		if ai.IsRecoverable(err) || ai.IsFatal(err) {
			return err
		}
		return ai.NewRecoverableError(err, "text-to-speech request failed")
	}
	if speech.Text == "" {
		speech.Text = text
	}
	if speech.Voice == "" {
		speech.Voice = voiceID
	}

	if err := b.cfg.Caps.Player.Play(ctx, speech); err != nil {
		return ai.NewRecoverableError(err, "audio playback failed")
	}
	return nil
}

// halt abandons the rest of the queue after a failed utterance.
func (b *Backend) halt(gen uint64, err error) {
	b.mu.Lock()
	if b.gen != gen {
		b.mu.Unlock()
		return
	}
	abandoned := len(b.queue)
	b.queue = nil
	b.draining = false
	b.stopDrain = nil
	b.err = ai.Describe(err)
	b.mu.Unlock()

	b.metrics.RecordSpeechAbandoned(abandoned)
	b.log.Error().Err(err).Int("abandoned", abandoned).Msg("speech queue halted")
	b.cfg.Callbacks.Error(err)
}

// StopSpeaking clears the queue, stops playback and cancels synthesis in flight.
func (b *Backend) StopSpeaking() {
	b.stopSpeaking()
}

func (b *Backend) stopSpeaking() chan struct{} {
	b.mu.Lock()
	abandoned := len(b.queue)
	b.queue = nil
	b.gen++
	cancel := b.stopDrain
	b.stopDrain = nil
	b.draining = false
	done := b.drainDone
	b.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if b.cfg.Caps.Player != nil {
		b.cfg.Caps.Player.Stop()
	}
	if abandoned > 0 {
		b.metrics.RecordSpeechAbandoned(abandoned)
	}
	return done
}
