package realtime

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/matryer/is"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"

	"github.com/chriscow/listing-voice-go/internal/metrics"
	"github.com/chriscow/listing-voice-go/pkg/ai"
	"github.com/chriscow/listing-voice-go/pkg/listing"
	"github.com/chriscow/listing-voice-go/pkg/rtc/fake"
	"github.com/chriscow/listing-voice-go/pkg/voice"
)

// voiceServer is a websocket endpoint standing in for the realtime service.
type voiceServer struct {
	srv    *httptest.Server
	conns  chan *websocket.Conn
	binary chan []byte
}

func newVoiceServer(t *testing.T) *voiceServer {
	t.Helper()
	vs := &voiceServer{
		conns:  make(chan *websocket.Conn, 4),
		binary: make(chan []byte, 256),
	}
	upgrader := websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}
	vs.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		vs.conns <- conn
		for {
			mt, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			if mt == websocket.BinaryMessage {
				select {
				case vs.binary <- data:
				default:
				}
			}
		}
	}))
	t.Cleanup(vs.srv.Close)
	return vs
}

func (vs *voiceServer) url() string {
	return "ws" + strings.TrimPrefix(vs.srv.URL, "http")
}

func (vs *voiceServer) accept(t *testing.T) *websocket.Conn {
	t.Helper()
	select {
	case conn := <-vs.conns:
		return conn
	case <-time.After(2 * time.Second):
		t.Fatal("server never saw a connection")
		return nil
	}
}

type recorder struct {
	mu          sync.Mutex
	transcripts []voice.TranscriptEvent
	responses   []string
	errs        []error
}

func (r *recorder) callbacks() voice.Callbacks {
	return voice.Callbacks{
		OnTranscript: func(ev voice.TranscriptEvent) {
			r.mu.Lock()
			defer r.mu.Unlock()
			r.transcripts = append(r.transcripts, ev)
		},
		OnAIResponse: func(text string) {
			r.mu.Lock()
			defer r.mu.Unlock()
			r.responses = append(r.responses, text)
		},
		OnError: func(err error) {
			r.mu.Lock()
			defer r.mu.Unlock()
			r.errs = append(r.errs, err)
		},
	}
}

func (r *recorder) counts() (int, int, int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.transcripts), len(r.responses), len(r.errs)
}

type harness struct {
	backend  *Backend
	mic      *fake.Microphone
	server   *voiceServer
	rec      *recorder
	metrics  *metrics.Metrics
	sessions atomic.Int32
}

func newHarness(t *testing.T, mutate func(*Config)) *harness {
	t.Helper()
	h := &harness{
		mic:     fake.NewMicrophone(),
		server:  newVoiceServer(t),
		rec:     &recorder{},
		metrics: metrics.New(prometheus.NewRegistry()),
	}
	logger := zerolog.Nop()
	cfg := Config{
		Creator: SessionCreatorFunc(func(ctx context.Context, req SessionRequest) (VoiceSession, error) {
			n := h.sessions.Add(1)
			return VoiceSession{ID: "sess-" + string(rune('0'+n)), URL: h.server.url()}, nil
		}),
		Caps:        voice.Capabilities{Microphone: h.mic},
		Callbacks:   h.rec.callbacks(),
		SettleDelay: time.Millisecond,
		Logger:      &logger,
		Metrics:     h.metrics,
	}
	if mutate != nil {
		mutate(&cfg)
	}
	b, err := New(cfg)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	h.backend = b
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		b.Shutdown(ctx)
	})
	return h
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func send(t *testing.T, conn *websocket.Conn, payload string) {
	t.Helper()
	if err := conn.WriteMessage(websocket.TextMessage, []byte(payload)); err != nil {
		t.Fatalf("server write: %v", err)
	}
}

func TestNewRequiresCreator(t *testing.T) {
	is := is.New(t)
	_, err := New(Config{})
	is.True(err != nil)
}

func TestStartListeningStreamsAudio(t *testing.T) {
	is := is.New(t)
	h := newHarness(t, nil)

	err := h.backend.StartListening(context.Background())
	is.NoErr(err)
	h.server.accept(t)

	is.Equal(h.backend.State(), StateListening)
	st := h.backend.Status()
	is.True(st.Listening)
	is.True(st.Connected)
	is.True(st.Supported)
	is.Equal(st.Err, "")

	capture := h.mic.Last()
	is.True(capture != nil)
	is.Equal(capture.Constraints().SampleRate, 16000)
	is.Equal(capture.Constraints().ChannelCount, 1)
	is.True(capture.Constraints().EchoCancellation)

	is.True(capture.Emit([]byte{1, 2, 3, 4}))
	select {
	case got := <-h.server.binary:
		is.Equal(got, []byte{1, 2, 3, 4})
	case <-time.After(2 * time.Second):
		t.Fatal("audio chunk never reached the server")
	}
}

func TestStartListeningIsIdempotent(t *testing.T) {
	is := is.New(t)
	h := newHarness(t, nil)

	is.NoErr(h.backend.StartListening(context.Background()))
	is.NoErr(h.backend.StartListening(context.Background()))
	is.Equal(len(h.mic.Captures()), 1)
	is.Equal(h.sessions.Load(), int32(1))
}

func TestRestartReusesSession(t *testing.T) {
	is := is.New(t)
	h := newHarness(t, nil)

	is.NoErr(h.backend.StartListening(context.Background()))
	is.NoErr(h.backend.StopListening())
	is.Equal(h.backend.State(), StateConnected)
	is.True(h.mic.Captures()[0].Closed())
	is.True(h.backend.Status().Connected)

	is.NoErr(h.backend.StartListening(context.Background()))
	is.Equal(h.sessions.Load(), int32(1))
	is.Equal(len(h.mic.Captures()), 2)
}

func TestStopListeningWhenIdle(t *testing.T) {
	is := is.New(t)
	h := newHarness(t, nil)

	before := h.backend.Status()
	is.NoErr(h.backend.StopListening())
	is.NoErr(h.backend.StopListening())
	is.Equal(h.backend.Status(), before)
	is.Equal(h.backend.State(), StateIdle)
}

func TestStopDuringPermissionPrompt(t *testing.T) {
	is := is.New(t)
	h := newHarness(t, nil)
	h.mic.Hold()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- h.backend.StartListening(ctx) }()

	select {
	case <-h.mic.Prompted():
	case <-time.After(2 * time.Second):
		t.Fatal("microphone was never requested")
	}
	cancel()
	is.NoErr(h.backend.StopListening())
	h.mic.Release()

	select {
	case err := <-done:
		is.True(errors.Is(err, context.Canceled))
	case <-time.After(2 * time.Second):
		t.Fatal("StartListening did not return")
	}
	is.True(!h.backend.Status().Listening)
	is.Equal(h.backend.Status().Err, "")
	is.Equal(h.backend.State(), StateConnected)
	is.True(h.mic.Last().Closed())
}

func TestEnvelopeDispatch(t *testing.T) {
	is := is.New(t)
	h := newHarness(t, nil)

	is.NoErr(h.backend.StartListening(context.Background()))
	conn := h.server.accept(t)

	// Malformed and unknown frames are dropped without closing the socket.
	send(t, conn, "not json")
	send(t, conn, `{"type":"transcript","role":"robot","text":"beep"}`)
	send(t, conn, `{"role":"user"}`)
	send(t, conn, `{"type":"session.updated"}`)

	send(t, conn, `{"type":"transcript","role":"user","text":"How many bedrooms?"}`)
	send(t, conn, `{"type":"transcript","role":"assistant","text":"It has three."}`)
	waitFor(t, "transcripts", func() bool {
		tr, resp, _ := h.rec.counts()
		return tr == 1 && resp == 1
	})

	h.rec.mu.Lock()
	is.Equal(h.rec.transcripts[0], voice.TranscriptEvent{Role: voice.RoleUser, Text: "How many bedrooms?"})
	is.Equal(h.rec.responses[0], "It has three.")
	h.rec.mu.Unlock()

	send(t, conn, `{"type":"audio_start"}`)
	waitFor(t, "speaking", func() bool { return h.backend.Status().Speaking })
	send(t, conn, `{"type":"audio_end"}`)
	waitFor(t, "not speaking", func() bool { return !h.backend.Status().Speaking })

	send(t, conn, `{"type":"error","error":"rate limited"}`)
	waitFor(t, "error", func() bool { return h.backend.Status().Err == "rate limited" })

	is.True(h.backend.Status().Connected)
	is.Equal(testutil.ToFloat64(h.metrics.EnvelopesMalformed), 3.0)
	is.Equal(testutil.ToFloat64(h.metrics.EnvelopesReceived.WithLabelValues("transcript")), 2.0)
}

func TestAssistantAudioGoesToSink(t *testing.T) {
	is := is.New(t)
	got := make(chan []byte, 1)
	h := newHarness(t, func(c *Config) {
		c.AudioSink = func(b []byte) { got <- b }
	})

	is.NoErr(h.backend.StartListening(context.Background()))
	conn := h.server.accept(t)
	is.NoErr(conn.WriteMessage(websocket.BinaryMessage, []byte{9, 9}))

	select {
	case b := <-got:
		is.Equal(b, []byte{9, 9})
	case <-time.After(2 * time.Second):
		t.Fatal("audio sink never called")
	}
}

func TestSocketLossReturnsToIdle(t *testing.T) {
	is := is.New(t)
	h := newHarness(t, nil)

	is.NoErr(h.backend.StartListening(context.Background()))
	conn := h.server.accept(t)
	send(t, conn, `{"type":"audio_start"}`)
	waitFor(t, "speaking", func() bool { return h.backend.Status().Speaking })

	conn.Close()
	waitFor(t, "idle", func() bool { return h.backend.State() == StateIdle })

	st := h.backend.Status()
	is.True(!st.Connected)
	is.True(!st.Listening)
	is.True(!st.Speaking)
	is.Equal(st.Err, "Voice connection lost")
	is.True(h.mic.Last().Closed())
	_, ok := h.backend.Session()
	is.True(!ok)

	_, _, errs := h.rec.counts()
	is.Equal(errs, 1)
}

func TestNormalCloseIsNotAnError(t *testing.T) {
	is := is.New(t)
	h := newHarness(t, nil)

	is.NoErr(h.backend.StartListening(context.Background()))
	conn := h.server.accept(t)
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye")
	is.NoErr(conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second)))

	waitFor(t, "idle", func() bool { return h.backend.State() == StateIdle })
	is.Equal(h.backend.Status().Err, "")
}

func TestAudioDroppedWhileGateShut(t *testing.T) {
	is := is.New(t)
	h := newHarness(t, nil)

	is.NoErr(h.backend.StartListening(context.Background()))
	h.server.accept(t)

	h.backend.gate.SetOpen(false)
	is.True(h.mic.Last().Emit([]byte{7}))
	waitFor(t, "dropped chunk", func() bool {
		return testutil.ToFloat64(h.metrics.AudioChunksDropped) == 1
	})

	select {
	case <-h.server.binary:
		t.Fatal("chunk sent while the gate was shut")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestSessionCreationFailure(t *testing.T) {
	is := is.New(t)
	h := newHarness(t, func(c *Config) {
		c.Creator = SessionCreatorFunc(func(context.Context, SessionRequest) (VoiceSession, error) {
			return VoiceSession{}, errors.New("502 bad gateway")
		})
	})

	err := h.backend.StartListening(context.Background())
	is.True(err != nil)
	is.True(ai.IsRecoverable(err))
	is.Equal(h.backend.State(), StateIdle)
	is.Equal(h.backend.Status().Err, "Failed to create voice session")
	is.Equal(len(h.mic.Captures()), 0) // never reached audio capture
}

func TestSessionCreationTimeout(t *testing.T) {
	is := is.New(t)
	h := newHarness(t, func(c *Config) {
		c.SessionTimeout = 20 * time.Millisecond
		c.Creator = SessionCreatorFunc(func(ctx context.Context, _ SessionRequest) (VoiceSession, error) {
			<-ctx.Done()
			return VoiceSession{}, ctx.Err()
		})
	})

	err := h.backend.StartListening(context.Background())
	is.True(err != nil)
	is.True(errors.Is(err, context.DeadlineExceeded))
	is.True(strings.Contains(h.backend.Status().Err, "switch to browser voice"))
	is.Equal(testutil.ToFloat64(h.metrics.SessionsFailed.WithLabelValues("create")), 1.0)
}

func TestConnectFailure(t *testing.T) {
	is := is.New(t)
	h := newHarness(t, func(c *Config) {
		c.Creator = SessionCreatorFunc(func(context.Context, SessionRequest) (VoiceSession, error) {
			return VoiceSession{ID: "s", URL: "ws://127.0.0.1:1/nowhere"}, nil
		})
	})

	err := h.backend.StartListening(context.Background())
	is.True(err != nil)
	is.Equal(h.backend.State(), StateIdle)
	is.Equal(h.backend.Status().Err, "Failed to connect to voice service")
	is.Equal(len(h.mic.Captures()), 0)
}

func TestPermissionDenied(t *testing.T) {
	is := is.New(t)
	h := newHarness(t, nil)
	h.mic.Deny()

	err := h.backend.StartListening(context.Background())
	is.True(ai.IsUnsupported(err))
	st := h.backend.Status()
	is.True(!st.Supported)
	is.True(!st.Listening)
	is.Equal(st.Err, "Microphone permission denied")
}

func TestNoMicrophoneCapability(t *testing.T) {
	is := is.New(t)
	h := newHarness(t, func(c *Config) { c.Caps = voice.Capabilities{} })

	is.True(!h.backend.Status().Supported)
	err := h.backend.StartListening(context.Background())
	is.True(ai.IsUnsupported(err))
	is.Equal(h.sessions.Load(), int32(0))
}

func TestShutdownForgetsSession(t *testing.T) {
	is := is.New(t)
	h := newHarness(t, nil)

	is.NoErr(h.backend.StartListening(context.Background()))
	h.server.accept(t)

	is.NoErr(h.backend.Shutdown(context.Background()))
	is.Equal(h.backend.State(), StateIdle)
	is.True(!h.backend.Status().Connected)
	is.True(h.mic.Last().Closed())
	_, ok := h.backend.Session()
	is.True(!ok)

	// Shutting down twice is harmless.
	is.NoErr(h.backend.Shutdown(context.Background()))
}

func TestSystemPromptCarriesProperty(t *testing.T) {
	is := is.New(t)
	var got SessionRequest
	h := newHarness(t, func(c *Config) {
		inner := c.Creator
		c.Property = &listing.Property{ID: "p1", Title: "Maple Cottage", Description: "Sunny corner lot."}
		c.Creator = SessionCreatorFunc(func(ctx context.Context, req SessionRequest) (VoiceSession, error) {
			got = req
			return inner.CreateSession(ctx, req)
		})
	})

	_, err := h.backend.CreateSession(context.Background())
	is.NoErr(err)
	is.Equal(h.backend.State(), StateSessionCreated)
	is.Equal(got.PropertyID, "p1")
	is.True(strings.Contains(got.SystemPrompt, "Maple Cottage"))
	is.True(strings.Contains(got.SystemPrompt, "Sunny corner lot."))
}
