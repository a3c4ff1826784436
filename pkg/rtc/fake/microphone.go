// Package fake provides in-memory microphone and player capabilities for tests.
package fake

import (
	"context"
	"sync"
	"time"

	"github.com/chriscow/listing-voice-go/pkg/rtc"
)

// Microphone is a fake rtc.Microphone. Each Open returns a new Capture that
// the test drives with Emit.
type Microphone struct {
	mu       sync.Mutex
	err      error
	captures []*Capture
	hold     chan struct{}
	prompted chan struct{}
}

// NewMicrophone creates a microphone that grants permission.
func NewMicrophone() *Microphone {
	return &Microphone{}
}

// Deny makes every subsequent Open fail with rtc.ErrPermissionDenied.
func (m *Microphone) Deny() *Microphone {
	return m.FailWith(rtc.ErrPermissionDenied)
}

// FailWith makes every subsequent Open fail with err.
func (m *Microphone) FailWith(err error) *Microphone {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
	return m
}

// Hold makes Open block until Release, the way a permission prompt does.
// A held Open grants access even if its context is canceled meanwhile.
func (m *Microphone) Hold() *Microphone {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.hold = make(chan struct{})
	m.prompted = make(chan struct{}, 16)
	return m
}

// Release unblocks every Open waiting on Hold.
func (m *Microphone) Release() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.hold != nil {
		close(m.hold)
		m.hold = nil
	}
}

// Prompted receives once for each Open that starts waiting on Hold.
func (m *Microphone) Prompted() <-chan struct{} {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.prompted
}

// Open returns a new capture or the configured error.
func (m *Microphone) Open(ctx context.Context, c rtc.Constraints) (rtc.Capture, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	hold, prompted := m.hold, m.prompted
	m.mu.Unlock()
	if hold != nil {
		select {
		case prompted <- struct{}{}:
		default:
		}
		<-hold
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	capture := &Capture{
		constraints: c,
		chunks:      make(chan rtc.AudioChunk, 64),
		started:     time.Now(),
	}
	m.captures = append(m.captures, capture)
	return capture, nil
}

// Captures returns every capture opened so far.
func (m *Microphone) Captures() []*Capture {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*Capture(nil), m.captures...)
}

// Last returns the most recently opened capture, or nil.
func (m *Microphone) Last() *Capture {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.captures) == 0 {
		return nil
	}
	return m.captures[len(m.captures)-1]
}

// Capture is a fake open microphone stream.
type Capture struct {
	constraints rtc.Constraints
	started     time.Time

	mu     sync.Mutex
	chunks chan rtc.AudioChunk
	closed bool
}

// Emit pushes one chunk of PCM. It reports false once the capture is closed
// or its buffer is full.
func (c *Capture) Emit(data []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	chunk := rtc.AudioChunk{
		Data:        data,
		SampleRate:  c.constraints.SampleRate,
		NumChannels: c.constraints.ChannelCount,
		Timestamp:   time.Since(c.started),
	}
	select {
	case c.chunks <- chunk:
		return true
	default:
		return false
	}
}

// EmitSilence pushes one chunk of silence sized by the capture constraints.
func (c *Capture) EmitSilence() bool {
	size := rtc.ChunkBytes(c.constraints.SampleRate, c.constraints.ChannelCount, c.constraints.ChunkInterval)
	return c.Emit(make([]byte, size))
}

// Chunks implements rtc.Capture.
func (c *Capture) Chunks() <-chan rtc.AudioChunk {
	return c.chunks
}

// Close releases the fake tracks. It is idempotent.
func (c *Capture) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.chunks)
	}
	return nil
}

// Closed reports whether the tracks have been released.
func (c *Capture) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// Constraints returns what the backend asked for.
func (c *Capture) Constraints() rtc.Constraints {
	return c.constraints
}
