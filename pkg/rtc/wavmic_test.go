package rtc

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/matryer/is"

	"github.com/chriscow/listing-voice-go/pkg/ai"
	"github.com/chriscow/listing-voice-go/pkg/audio/wav"
)

func writeWAV(t *testing.T, pcm []byte, rate, channels int) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "input.wav")
	if err := os.WriteFile(path, wav.Encode(pcm, rate, channels), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestWAVMicrophoneReplaysFile(t *testing.T) {
	is := is.New(t)
	c := DefaultConstraints()
	size := ChunkBytes(c.SampleRate, c.ChannelCount, c.ChunkInterval)

	pcm := make([]byte, 2*size+10)
	for i := range pcm {
		pcm[i] = byte(i)
	}
	mic := &WAVMicrophone{Path: writeWAV(t, pcm, c.SampleRate, c.ChannelCount)}

	capture, err := mic.Open(context.Background(), c)
	is.NoErr(err)
	defer capture.Close()

	var got []byte
	var chunks []AudioChunk
	for chunk := range capture.Chunks() {
		chunks = append(chunks, chunk)
		got = append(got, chunk.Data...)
	}
	is.Equal(len(chunks), 3)
	is.Equal(got, pcm)
	is.Equal(chunks[0].SampleRate, 16000)
	is.Equal(chunks[1].Timestamp, c.ChunkInterval)
	is.Equal(len(chunks[2].Data), 10) // short tail
}

func TestWAVMicrophoneReopensFromStart(t *testing.T) {
	is := is.New(t)
	c := DefaultConstraints()
	mic := &WAVMicrophone{Path: writeWAV(t, []byte{1, 0, 2, 0}, c.SampleRate, 1)}

	for range 2 {
		capture, err := mic.Open(context.Background(), c)
		is.NoErr(err)
		chunk := <-capture.Chunks()
		is.Equal(chunk.Data, []byte{1, 0, 2, 0})
		is.NoErr(capture.Close())
	}
}

func TestWAVMicrophoneCloseStopsReplay(t *testing.T) {
	is := is.New(t)
	c := DefaultConstraints()
	pcm := make([]byte, 50*ChunkBytes(c.SampleRate, 1, c.ChunkInterval))
	mic := NewWAVMicrophone(writeWAV(t, pcm, c.SampleRate, 1))

	capture, err := mic.Open(context.Background(), c)
	is.NoErr(err)
	<-capture.Chunks()
	is.NoErr(capture.Close())
	is.NoErr(capture.Close()) // idempotent

	select {
	case <-drain(capture):
	case <-time.After(time.Second):
		t.Fatal("capture still open after Close")
	}
}

func drain(c Capture) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		for range c.Chunks() {
		}
		close(done)
	}()
	return done
}

func TestWAVMicrophoneRejectsMismatch(t *testing.T) {
	is := is.New(t)
	mic := &WAVMicrophone{Path: writeWAV(t, make([]byte, 64), 24000, 1)}

	_, err := mic.Open(context.Background(), DefaultConstraints())
	is.True(ai.IsUnsupported(err)) // 24 kHz file, 16 kHz capture
}

func TestWAVMicrophoneMissingFile(t *testing.T) {
	is := is.New(t)
	mic := &WAVMicrophone{Path: filepath.Join(t.TempDir(), "nope.wav")}

	_, err := mic.Open(context.Background(), DefaultConstraints())
	is.True(errors.Is(err, ErrNoMicrophone))
}

func TestWAVMicrophoneNotWAV(t *testing.T) {
	is := is.New(t)
	path := filepath.Join(t.TempDir(), "notes.txt")
	is.NoErr(os.WriteFile(path, []byte("hello"), 0o644))

	_, err := (&WAVMicrophone{Path: path}).Open(context.Background(), DefaultConstraints())
	is.True(errors.Is(err, wav.ErrNotWAV))
}

func TestWAVMicrophoneCanceled(t *testing.T) {
	is := is.New(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewWAVMicrophone("unused.wav").Open(ctx, DefaultConstraints())
	is.True(errors.Is(err, context.Canceled))
}
