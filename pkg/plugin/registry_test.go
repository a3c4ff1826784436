package plugin

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"github.com/chriscow/listing-voice-go/pkg/ai/tts"
)

// stubTTS is a minimal tts.TTS for registry tests.
type stubTTS struct {
	voice string
}

func (s *stubTTS) Synthesize(ctx context.Context, req tts.SynthesizeRequest) (tts.Speech, error) {
	return tts.Speech{Voice: s.voice, Text: req.Text}, nil
}

func (s *stubTTS) Capabilities() tts.TTSCapabilities { return tts.TTSCapabilities{} }

func newStubTTS(cfg map[string]any) (any, error) {
	voice := tts.DefaultVoice
	if v, ok := cfg["voice"].(string); ok {
		voice = v
	}
	return &stubTTS{voice: voice}, nil
}

func TestRegistry_Register(t *testing.T) {
	r := NewRegistry()
	r.Register(KindTTS, "stub", newStubTTS)

	if factory, ok := r.Get(KindTTS, "stub"); !ok {
		t.Error("Expected plugin to be registered")
	} else if factory == nil {
		t.Error("Expected factory to not be nil")
	}
}

func TestRegistry_RegisterPanics(t *testing.T) {
	tests := []struct {
		name    string
		kind    string
		plugin  string
		factory Factory
	}{
		{"empty kind", "", "stub", newStubTTS},
		{"empty name", KindTTS, "", newStubTTS},
		{"nil factory", KindTTS, "stub", nil},
		{"duplicate", KindTTS, "dup", newStubTTS},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewRegistry()
			r.Register(KindTTS, "dup", newStubTTS)

			defer func() {
				if recover() == nil {
					t.Errorf("Expected panic for %s", tt.name)
				}
			}()
			r.Register(tt.kind, tt.plugin, tt.factory)
		})
	}
}

func TestRegistry_Get(t *testing.T) {
	r := NewRegistry()
	r.Register(KindTTS, "stub", newStubTTS)

	factory, ok := r.Get(KindTTS, "stub")
	if !ok {
		t.Fatal("Expected to find registered plugin")
	}

	instance, err := factory(map[string]any{"voice": "nova"})
	if err != nil {
		t.Fatalf("Factory failed: %v", err)
	}
	if s, ok := instance.(*stubTTS); !ok {
		t.Error("Expected stubTTS instance")
	} else if s.voice != "nova" {
		t.Errorf("Expected voice 'nova', got %s", s.voice)
	}

	if _, ok := r.Get(KindTTS, "nonexistent"); ok {
		t.Error("Expected to not find non-existent plugin")
	}
	if _, ok := r.Get("nonexistent", "stub"); ok {
		t.Error("Expected to not find plugin with non-existent kind")
	}
}

func TestRegistry_List(t *testing.T) {
	r := NewRegistry()
	r.RegisterWithMetadata(&Plugin{Kind: KindTTS, Name: "openai", Factory: newStubTTS, Version: "1.0.0"})
	r.RegisterWithMetadata(&Plugin{Kind: KindTTS, Name: "hosted", Factory: newStubTTS, Version: "1.0.0"})
	r.RegisterWithMetadata(&Plugin{Kind: KindLLM, Name: "openai", Factory: newStubTTS, Version: "1.0.0"})

	all := r.List("")
	expectedOrder := []struct{ kind, name string }{
		{KindLLM, "openai"},
		{KindTTS, "hosted"},
		{KindTTS, "openai"},
	}
	if len(all) != len(expectedOrder) {
		t.Fatalf("Expected %d plugins, got %d", len(expectedOrder), len(all))
	}
	for i, expected := range expectedOrder {
		if all[i].Kind != expected.kind || all[i].Name != expected.name {
			t.Errorf("Expected plugin %d to be %s/%s, got %s/%s",
				i, expected.kind, expected.name, all[i].Kind, all[i].Name)
		}
	}

	if got := len(r.List(KindTTS)); got != 2 {
		t.Errorf("Expected 2 TTS plugins, got %d", got)
	}
	if got := len(r.List("nonexistent")); got != 0 {
		t.Errorf("Expected 0 plugins for non-existent kind, got %d", got)
	}
}

func TestRegistry_ListKinds(t *testing.T) {
	r := NewRegistry()
	if kinds := r.ListKinds(); len(kinds) != 0 {
		t.Errorf("Expected 0 kinds initially, got %d", len(kinds))
	}

	r.Register(KindTTS, "stub", newStubTTS)
	r.Register(KindSTT, "stub", newStubTTS)
	r.Register(KindLLM, "stub", newStubTTS)

	expected := []string{KindLLM, KindSTT, KindTTS}
	if kinds := r.ListKinds(); !reflect.DeepEqual(kinds, expected) {
		t.Errorf("Expected kinds %v, got %v", expected, kinds)
	}

	r.Clear()
	if len(r.List("")) != 0 {
		t.Error("Expected 0 plugins after clear")
	}
}

func TestBuild(t *testing.T) {
	r := NewRegistry()
	r.Register(KindTTS, "stub", newStubTTS)
	r.Register(KindTTS, "broken", func(map[string]any) (any, error) {
		return nil, errors.New("missing api key")
	})
	r.Register(KindTTS, "wrong", func(map[string]any) (any, error) {
		return "not a tts", nil
	})

	p, err := build[tts.TTS](r, KindTTS, "stub", nil)
	if err != nil {
		t.Fatalf("build() error = %v", err)
	}
	speech, _ := p.Synthesize(context.Background(), tts.SynthesizeRequest{Text: "hi"})
	if speech.Voice != tts.DefaultVoice {
		t.Errorf("Expected default voice, got %q", speech.Voice)
	}

	if _, err := build[tts.TTS](r, KindTTS, "missing", nil); err == nil {
		t.Error("Expected error for unknown plugin")
	}
	if _, err := build[tts.TTS](r, KindTTS, "broken", nil); err == nil {
		t.Error("Expected factory error to propagate")
	}
	if _, err := build[tts.TTS](r, KindTTS, "wrong", nil); err == nil {
		t.Error("Expected error for wrong provider type")
	}
}
