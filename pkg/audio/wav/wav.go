// Package wav wraps 16-bit PCM in a RIFF/WAVE container so captured
// microphone audio can be handed to transcription APIs as a file.
package wav

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
)

const (
	headerSize    = 44
	bitsPerSample = 16
)

// Header represents a WAV file header
type Header struct {
	SampleRate    uint32
	NumChannels   uint16
	BitsPerSample uint16
	DataSize      uint32
}

// ErrNotWAV is returned by Decode when the data has no RIFF/WAVE header.
var ErrNotWAV = errors.New("not a WAV file")

// Encode wraps little-endian 16-bit PCM in a canonical 44-byte header.
func Encode(pcm []byte, sampleRate, numChannels int) []byte {
	var buf bytes.Buffer
	buf.Grow(headerSize + len(pcm))

	byteRate := uint32(sampleRate * numChannels * bitsPerSample / 8)
	blockAlign := uint16(numChannels * bitsPerSample / 8)

	buf.WriteString("RIFF")
	binary.Write(&buf, binary.LittleEndian, uint32(36+len(pcm)))
	buf.WriteString("WAVE")

	buf.WriteString("fmt ")
	binary.Write(&buf, binary.LittleEndian, uint32(16))
	binary.Write(&buf, binary.LittleEndian, uint16(1)) // PCM
	binary.Write(&buf, binary.LittleEndian, uint16(numChannels))
	binary.Write(&buf, binary.LittleEndian, uint32(sampleRate))
	binary.Write(&buf, binary.LittleEndian, byteRate)
	binary.Write(&buf, binary.LittleEndian, blockAlign)
	binary.Write(&buf, binary.LittleEndian, uint16(bitsPerSample))

	buf.WriteString("data")
	binary.Write(&buf, binary.LittleEndian, uint32(len(pcm)))
	buf.Write(pcm)

	return buf.Bytes()
}

// Decode parses a canonical header produced by Encode and returns the PCM payload.
func Decode(data []byte) (Header, []byte, error) {
	if len(data) < headerSize || string(data[0:4]) != "RIFF" || string(data[8:12]) != "WAVE" {
		return Header{}, nil, ErrNotWAV
	}
	h := Header{
		NumChannels:   binary.LittleEndian.Uint16(data[22:24]),
		SampleRate:    binary.LittleEndian.Uint32(data[24:28]),
		BitsPerSample: binary.LittleEndian.Uint16(data[34:36]),
		DataSize:      binary.LittleEndian.Uint32(data[40:44]),
	}
	end := headerSize + int(h.DataSize)
	if end > len(data) {
		return h, nil, fmt.Errorf("truncated WAV data: header says %d bytes, have %d", h.DataSize, len(data)-headerSize)
	}
	return h, data[headerSize:end], nil
}
