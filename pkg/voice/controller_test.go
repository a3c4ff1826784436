package voice

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/matryer/is"
	"github.com/rs/zerolog"

	"github.com/chriscow/listing-voice-go/pkg/ai"
)

// stubBackend records the calls the controller makes.
type stubBackend struct {
	mode Mode

	mu        sync.Mutex
	calls     []string
	status    Status
	startErr  error
	startWait time.Duration
	spoken    []string
}

func newStub(m Mode) *stubBackend {
	return &stubBackend{mode: m, status: Status{Supported: true}}
}

func (s *stubBackend) record(call string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, call)
}

func (s *stubBackend) Calls() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.calls...)
}

func (s *stubBackend) Mode() Mode { return s.mode }

func (s *stubBackend) StartListening(ctx context.Context) error {
	s.record("start")
	if s.startWait > 0 {
		select {
		case <-time.After(s.startWait):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if s.startErr != nil {
		return s.startErr
	}
	s.mu.Lock()
	s.status.Listening = true
	s.mu.Unlock()
	return nil
}

func (s *stubBackend) StopListening() error {
	s.record("stop")
	s.mu.Lock()
	s.status.Listening = false
	s.mu.Unlock()
	return nil
}

func (s *stubBackend) Shutdown(ctx context.Context) error {
	s.record("shutdown")
	s.mu.Lock()
	s.status.Listening = false
	s.status.Connected = false
	s.mu.Unlock()
	return nil
}

func (s *stubBackend) ClearError() {
	s.mu.Lock()
	s.status.Err = ""
	s.mu.Unlock()
}

func (s *stubBackend) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// stubSpeaker adds Speaker to stubBackend.
type stubSpeaker struct {
	*stubBackend
}

func (s stubSpeaker) Speak(text string) error {
	s.record("speak")
	s.mu.Lock()
	defer s.mu.Unlock()
	s.spoken = append(s.spoken, text)
	return nil
}

func (s stubSpeaker) StopSpeaking() { s.record("stop_speaking") }

func newTestController(t *testing.T, opts ...ControllerOption) (*Controller, *stubBackend, *stubBackend) {
	t.Helper()
	rt := newStub(ModeRealtime)
	br := newStub(ModeBrowser)
	opts = append([]ControllerOption{WithLogger(zerolog.Nop())}, opts...)
	c, err := NewController(rt, stubSpeaker{br}, opts...)
	if err != nil {
		t.Fatalf("NewController() error = %v", err)
	}
	return c, rt, br
}

func TestNewControllerValidatesSlots(t *testing.T) {
	is := is.New(t)

	_, err := NewController(nil, newStub(ModeBrowser))
	is.True(err != nil)

	_, err = NewController(newStub(ModeBrowser), newStub(ModeBrowser))
	is.True(err != nil)

	c, err := NewController(newStub(ModeRealtime), newStub(ModeBrowser), WithInitialMode(ModeBrowser))
	is.NoErr(err)
	is.Equal(c.Mode(), ModeBrowser)
}

func TestStartRoutesToActiveBackend(t *testing.T) {
	is := is.New(t)
	c, rt, br := newTestController(t)

	is.NoErr(c.StartListening(context.Background()))
	is.Equal(rt.Calls(), []string{"start"})
	is.Equal(len(br.Calls()), 0)
	is.True(c.IsListening())
}

func TestSwitchModeTearsDownFirst(t *testing.T) {
	is := is.New(t)
	c, rt, br := newTestController(t)

	is.NoErr(c.StartListening(context.Background()))
	is.NoErr(c.SwitchMode(context.Background(), ModeBrowser))

	is.Equal(c.Mode(), ModeBrowser)
	is.Equal(rt.Calls(), []string{"start", "shutdown"})
	is.Equal(len(br.Calls()), 0) // listening does not resume on its own
	is.True(!c.IsListening())

	is.NoErr(c.StartListening(context.Background()))
	is.Equal(br.Calls(), []string{"start"})
}

func TestSwitchToSameModeIsNoop(t *testing.T) {
	is := is.New(t)
	c, rt, _ := newTestController(t)

	is.NoErr(c.SwitchMode(context.Background(), ModeRealtime))
	is.Equal(len(rt.Calls()), 0)
}

func TestSwitchModeRejectsUnknownMode(t *testing.T) {
	is := is.New(t)
	c, _, _ := newTestController(t)
	is.True(c.SwitchMode(context.Background(), Mode(9)) != nil)
}

func TestStartFailureSetsError(t *testing.T) {
	is := is.New(t)
	c, rt, _ := newTestController(t)
	rt.startErr = ai.NewRecoverableError(errors.New("502"), "failed to create voice session")

	err := c.StartListening(context.Background())
	is.True(err != nil)
	is.Equal(c.Error(), "Failed to create voice session")
	is.True(!c.IsListening())

	rt.startErr = nil
	is.NoErr(c.StartListening(context.Background()))
	is.Equal(c.Error(), "") // cleared on success
}

func TestSwitchBackClearsStaleBackendError(t *testing.T) {
	is := is.New(t)
	c, rt, _ := newTestController(t)

	rt.mu.Lock()
	rt.status.Err = "Voice connection lost"
	rt.mu.Unlock()
	is.Equal(c.Error(), "Voice connection lost")

	is.NoErr(c.SwitchMode(context.Background(), ModeBrowser))
	is.Equal(c.Error(), "")
	is.NoErr(c.SwitchMode(context.Background(), ModeRealtime))
	is.Equal(c.Error(), "")
	is.Equal(rt.Status().Err, "")
}

func TestStopWhenIdleLeavesStateUnchanged(t *testing.T) {
	is := is.New(t)
	c, _, _ := newTestController(t)

	before := c.Status()
	is.NoErr(c.StopListening())
	is.NoErr(c.StopListening())
	is.Equal(c.Status(), before)
}

func TestStopAbortsPendingStart(t *testing.T) {
	is := is.New(t)
	c, rt, _ := newTestController(t)
	rt.startWait = time.Minute

	done := make(chan error, 1)
	go func() { done <- c.StartListening(context.Background()) }()

	deadline := time.Now().Add(2 * time.Second)
	for len(rt.Calls()) == 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	is.NoErr(c.StopListening())

	select {
	case err := <-done:
		is.True(errors.Is(err, context.Canceled))
	case <-time.After(2 * time.Second):
		t.Fatal("pending start was not aborted")
	}
	is.Equal(c.Error(), "") // an aborted start is not an error
}

func TestSpeakOnlyInBrowserMode(t *testing.T) {
	is := is.New(t)
	c, _, br := newTestController(t)

	is.NoErr(c.Speak("ignored in realtime"))
	is.Equal(len(br.Calls()), 0)

	is.NoErr(c.SwitchMode(context.Background(), ModeBrowser))
	is.NoErr(c.Speak("hello"))
	c.StopSpeaking()
	is.Equal(br.Calls(), []string{"speak", "stop_speaking"})
	is.Equal(br.spoken, []string{"hello"})
}

func TestConnectedIsAlwaysTrueInBrowserMode(t *testing.T) {
	is := is.New(t)
	c, _, _ := newTestController(t, WithInitialMode(ModeBrowser))
	is.True(c.IsConnected())
}

func TestSupportedWhenEitherBackendIs(t *testing.T) {
	is := is.New(t)
	c, rt, br := newTestController(t)

	rt.status.Supported = false
	is.True(c.IsSupported())

	br.status.Supported = false
	is.True(!c.IsSupported())
}

func TestShutdownReleasesActiveBackend(t *testing.T) {
	is := is.New(t)
	c, rt, _ := newTestController(t)

	is.NoErr(c.StartListening(context.Background()))
	is.NoErr(c.Shutdown(context.Background()))
	is.Equal(rt.Calls(), []string{"start", "shutdown"})
}

func TestParseMode(t *testing.T) {
	is := is.New(t)

	m, err := ParseMode("Browser")
	is.NoErr(err)
	is.Equal(m, ModeBrowser)

	m, err = ParseMode(" realtime ")
	is.NoErr(err)
	is.Equal(m, ModeRealtime)

	_, err = ParseMode("webrtc")
	is.True(err != nil)
	is.Equal(Mode(7).String(), "Unknown(7)")
}
