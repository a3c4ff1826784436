package rtc

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sync"
	"time"

	"github.com/chriscow/listing-voice-go/pkg/ai"
	"github.com/chriscow/listing-voice-go/pkg/audio/wav"
)

// WAVMicrophone replays a 16-bit PCM WAV file as microphone input. Every
// Open starts the file from the beginning; the capture ends after the last
// sample.
type WAVMicrophone struct {
	Path string

	// Paced emits one chunk per ChunkInterval, like a live device. When
	// false the file is delivered as fast as the reader drains it.
	Paced bool
}

var _ Microphone = (*WAVMicrophone)(nil)

// NewWAVMicrophone replays path in real time.
func NewWAVMicrophone(path string) *WAVMicrophone {
	return &WAVMicrophone{Path: path, Paced: true}
}

// Open decodes the file and starts emitting it. The file must match the
// requested sample rate and channel count; nothing is resampled.
func (m *WAVMicrophone) Open(ctx context.Context, c Constraints) (Capture, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(m.Path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrNoMicrophone, m.Path)
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", m.Path, err)
	}

	hdr, pcm, err := wav.Decode(data)
	if err != nil {
		return nil, ai.NewUnsupportedError(err, fmt.Sprintf("%s is not usable as microphone input", m.Path))
	}
	rate, channels := int(hdr.SampleRate), int(hdr.NumChannels)
	if hdr.BitsPerSample != 16 {
		return nil, ai.NewUnsupportedError(nil, fmt.Sprintf("%s: %d-bit samples, want 16", m.Path, hdr.BitsPerSample))
	}
	if (c.SampleRate != 0 && rate != c.SampleRate) || (c.ChannelCount != 0 && channels != c.ChannelCount) {
		return nil, ai.NewUnsupportedError(nil, fmt.Sprintf("%s is %d Hz x%d, capture wants %d Hz x%d",
			m.Path, rate, channels, c.SampleRate, c.ChannelCount))
	}

	interval := c.ChunkInterval
	if interval <= 0 {
		interval = DefaultConstraints().ChunkInterval
	}

	capture := &wavCapture{
		chunks: make(chan AudioChunk),
		stop:   make(chan struct{}),
	}
	go capture.run(pcm, rate, channels, interval, m.Paced)
	return capture, nil
}

type wavCapture struct {
	chunks chan AudioChunk
	stop   chan struct{}
	once   sync.Once
}

func (c *wavCapture) Chunks() <-chan AudioChunk { return c.chunks }

// Close stops the replay. It is idempotent.
func (c *wavCapture) Close() error {
	c.once.Do(func() { close(c.stop) })
	return nil
}

func (c *wavCapture) run(pcm []byte, rate, channels int, interval time.Duration, paced bool) {
	defer close(c.chunks)

	var tick <-chan time.Time
	if paced {
		t := time.NewTicker(interval)
		defer t.Stop()
		tick = t.C
	}

	size := max(ChunkBytes(rate, channels, interval), 2*channels)
	var ts time.Duration
	for off := 0; off < len(pcm); off += size {
		chunk := AudioChunk{
			Data:        pcm[off:min(off+size, len(pcm))],
			SampleRate:  rate,
			NumChannels: channels,
			Timestamp:   ts,
		}
		select {
		case c.chunks <- chunk:
		case <-c.stop:
			return
		}
		ts += chunk.Duration()

		if tick != nil {
			select {
			case <-tick:
			case <-c.stop:
				return
			}
		}
	}
}
