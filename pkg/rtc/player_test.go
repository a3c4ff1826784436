package rtc

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/chriscow/listing-voice-go/pkg/ai/tts"
	"github.com/matryer/is"
)

func TestFilePlayerWritesInOrder(t *testing.T) {
	is := is.New(t)
	dir := filepath.Join(t.TempDir(), "out")

	p, err := NewFilePlayer(dir)
	is.NoErr(err)

	is.NoErr(p.Play(context.Background(), tts.Speech{Audio: []byte("first"), Format: "mp3", Voice: "nova"}))
	is.NoErr(p.Play(context.Background(), tts.Speech{Audio: []byte("second"), Format: "mp3"}))

	files := p.Files()
	is.Equal(len(files), 2)
	is.Equal(filepath.Base(files[0]), "001-nova.mp3")
	is.Equal(filepath.Base(files[1]), "002-alloy.mp3") // default voice in the name

	data, err := os.ReadFile(files[1])
	is.NoErr(err)
	is.Equal(string(data), "second")
}

func TestFilePlayerHonorsCanceledContext(t *testing.T) {
	is := is.New(t)
	p, err := NewFilePlayer(t.TempDir())
	is.NoErr(err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	is.Equal(p.Play(ctx, tts.Speech{Audio: []byte("x")}), context.Canceled)
	is.Equal(len(p.Files()), 0) // nothing written
}
