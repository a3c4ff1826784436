package fake

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/chriscow/listing-voice-go/pkg/ai/tts"
	"github.com/chriscow/listing-voice-go/pkg/rtc"
)

// Playback records one call to Play.
type Playback struct {
	Text    string
	Voice   string
	Start   time.Time
	End     time.Time
	Stopped bool
	Err     error
}

// Player is a fake rtc.Player. Each Play lasts the configured duration
// unless Stop interrupts it.
type Player struct {
	mu        sync.Mutex
	duration  time.Duration
	failOn    map[string]error
	playbacks []Playback
	active    int
	maxActive int
	stops     int
	interrupt chan struct{}
	started   chan string
}

// NewPlayer creates a player whose playbacks take d.
func NewPlayer(d time.Duration) *Player {
	return &Player{
		duration: d,
		failOn:   make(map[string]error),
		started:  make(chan string, 64),
	}
}

// FailOn makes playback of text fail.
func (p *Player) FailOn(text string) *Player {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.failOn[text] = errors.New("fake playback failure")
	return p
}

// Play implements rtc.Player.
func (p *Player) Play(ctx context.Context, speech tts.Speech) error {
	p.mu.Lock()
	interrupt := make(chan struct{})
	p.interrupt = interrupt
	p.active++
	if p.active > p.maxActive {
		p.maxActive = p.active
	}
	idx := len(p.playbacks)
	p.playbacks = append(p.playbacks, Playback{Text: speech.Text, Voice: speech.Voice, Start: time.Now()})
	failure := p.failOn[speech.Text]
	d := p.duration
	p.mu.Unlock()

	select {
	case p.started <- speech.Text:
	default:
	}

	var err error
	if failure != nil {
		err = failure
	} else {
		select {
		case <-time.After(d):
		case <-interrupt:
			err = rtc.ErrPlaybackStopped
		case <-ctx.Done():
			err = ctx.Err()
		}
	}

	p.mu.Lock()
	p.active--
	p.playbacks[idx].End = time.Now()
	p.playbacks[idx].Stopped = errors.Is(err, rtc.ErrPlaybackStopped)
	p.playbacks[idx].Err = err
	if p.interrupt == interrupt {
		p.interrupt = nil
	}
	p.mu.Unlock()
	return err
}

// Stop implements rtc.Player.
func (p *Player) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stops++
	if p.interrupt != nil {
		close(p.interrupt)
		p.interrupt = nil
	}
}

// Started delivers the text of each playback as it begins.
func (p *Player) Started() <-chan string {
	return p.started
}

// Playbacks returns every recorded playback in start order.
func (p *Player) Playbacks() []Playback {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]Playback(nil), p.playbacks...)
}

// MaxConcurrent returns the largest number of overlapping playbacks seen.
func (p *Player) MaxConcurrent() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.maxActive
}

// Stops returns how many times Stop was called.
func (p *Player) Stops() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stops
}
