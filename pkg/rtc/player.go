package rtc

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/chriscow/listing-voice-go/pkg/ai/tts"
)

// ErrPlaybackStopped is returned by Play when Stop interrupts it.
var ErrPlaybackStopped = errors.New("playback stopped")

// Player is a single reusable audio output handle.
type Player interface {
	// Play blocks until the speech has played to completion, playback
	// fails, ctx is done, or Stop is called.
	Play(ctx context.Context, speech tts.Speech) error

	// Stop pauses and rewinds whatever is playing.
	Stop()
}

// FilePlayer "plays" each utterance by writing it to a numbered file in Dir.
// It lets the CLI exercise the speech queue without an audio device.
type FilePlayer struct {
	Dir string

	mu    sync.Mutex
	count int
	files []string
}

// NewFilePlayer creates the output directory if needed.
func NewFilePlayer(dir string) (*FilePlayer, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}
	return &FilePlayer{Dir: dir}, nil
}

// Play writes speech to <Dir>/NNN-<voice>.<format>.
func (p *FilePlayer) Play(ctx context.Context, speech tts.Speech) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	p.mu.Lock()
	p.count++
	n := p.count
	p.mu.Unlock()

	format := speech.Format
	if format == "" {
		format = "bin"
	}
	voice := speech.Voice
	if voice == "" {
		voice = tts.DefaultVoice
	}
	name := filepath.Join(p.Dir, fmt.Sprintf("%03d-%s.%s", n, voice, format))
	if err := os.WriteFile(name, speech.Audio, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", name, err)
	}

	p.mu.Lock()
	p.files = append(p.files, name)
	p.mu.Unlock()
	return nil
}

// Stop is a no-op; writes complete immediately.
func (p *FilePlayer) Stop() {}

// Files returns the files written so far, in play order.
func (p *FilePlayer) Files() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.files...)
}
