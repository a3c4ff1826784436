// Package rtc wraps the host media capabilities the voice backends rely on:
// microphone capture and audio playback. Both are optional; a backend that
// is handed a nil capability reports itself as unsupported.
package rtc

import (
	"fmt"
	"time"
)

// AudioChunk is one recorder emission, roughly ChunkInterval of 16-bit
// little-endian PCM.
type AudioChunk struct {
	Data        []byte
	SampleRate  int
	NumChannels int
	Timestamp   time.Duration // offset from the start of the capture
}

// NewAudioChunk validates that data holds whole 16-bit samples for every channel.
func NewAudioChunk(data []byte, sampleRate, numChannels int, timestamp time.Duration) (*AudioChunk, error) {
	if sampleRate <= 0 || numChannels <= 0 {
		return nil, fmt.Errorf("invalid audio format: %dHz %d-channel", sampleRate, numChannels)
	}
	if len(data)%(numChannels*2) != 0 {
		return nil, fmt.Errorf("AudioChunk data length %d is not a whole number of %d-channel 16-bit samples",
			len(data), numChannels)
	}
	return &AudioChunk{
		Data:        data,
		SampleRate:  sampleRate,
		NumChannels: numChannels,
		Timestamp:   timestamp,
	}, nil
}

// SamplesPerChannel returns the number of samples each channel carries.
func (c *AudioChunk) SamplesPerChannel() int {
	if c.NumChannels == 0 {
		return 0
	}
	return len(c.Data) / (c.NumChannels * 2)
}

// Duration returns the audio duration the chunk represents.
func (c *AudioChunk) Duration() time.Duration {
	if c.SampleRate == 0 {
		return 0
	}
	return time.Duration(c.SamplesPerChannel()) * time.Second / time.Duration(c.SampleRate)
}

// ChunkBytes returns the byte size of a chunk of the given length.
func ChunkBytes(sampleRate, numChannels int, interval time.Duration) int {
	samples := int(int64(sampleRate) * int64(interval) / int64(time.Second))
	return samples * numChannels * 2
}
