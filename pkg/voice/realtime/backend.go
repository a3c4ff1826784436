// Package realtime implements the streaming voice backend: a server-issued
// session, a websocket carrying microphone PCM upstream and JSON envelopes
// plus assistant audio downstream.
package realtime

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/chriscow/listing-voice-go/internal/logging"
	"github.com/chriscow/listing-voice-go/internal/metrics"
	"github.com/chriscow/listing-voice-go/pkg/ai"
	"github.com/chriscow/listing-voice-go/pkg/listing"
	"github.com/chriscow/listing-voice-go/pkg/rtc"
	"github.com/chriscow/listing-voice-go/pkg/voice"
)

const (
	DefaultSessionTimeout = 10 * time.Second
	DefaultConnectTimeout = 10 * time.Second
	DefaultSettleDelay    = 500 * time.Millisecond

	writeWait = 5 * time.Second
	closeWait = time.Second
)

// Config configures a Backend. Creator is required.
type Config struct {
	Creator  SessionCreator
	Caps     voice.Capabilities
	Property *listing.Property

	Callbacks voice.Callbacks

	// AudioSink receives binary frames (assistant audio) from the socket.
	AudioSink func([]byte)

	Dialer *websocket.Dialer
	Header http.Header

	SessionTimeout time.Duration
	ConnectTimeout time.Duration
	SettleDelay    time.Duration
	Constraints    rtc.Constraints

	Logger  *zerolog.Logger
	Metrics *metrics.Metrics
}

// Backend is the realtime voice.Backend.
type Backend struct {
	cfg     Config
	log     zerolog.Logger
	metrics *metrics.Metrics
	gate    rtc.SendGate

	startMu sync.Mutex // one StartListening at a time
	writeMu sync.Mutex // gorilla allows one concurrent writer

	mu        sync.Mutex
	state     State
	session   *VoiceSession
	conn      *websocket.Conn
	readDone  chan struct{}
	capture   rtc.Capture
	supported bool
	err       string

	speaking atomic.Bool
}

var _ voice.Backend = (*Backend)(nil)

// New creates an idle backend.
func New(cfg Config) (*Backend, error) {
	if cfg.Creator == nil {
		return nil, errors.New("realtime: session creator is required")
	}
	if cfg.SessionTimeout <= 0 {
		cfg.SessionTimeout = DefaultSessionTimeout
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = DefaultConnectTimeout
	}
	if cfg.SettleDelay <= 0 {
		cfg.SettleDelay = DefaultSettleDelay
	}
	if cfg.Constraints.SampleRate == 0 {
		cfg.Constraints = rtc.DefaultConstraints()
	}
	if cfg.Dialer == nil {
		d := *websocket.DefaultDialer
		cfg.Dialer = &d
	}
	if cfg.Metrics == nil {
		cfg.Metrics = metrics.DefaultMetrics
	}

	logger := logging.WithComponent("realtime")
	if cfg.Logger != nil {
		logger = *cfg.Logger
	}

	return &Backend{
		cfg:       cfg,
		log:       logger,
		metrics:   cfg.Metrics,
		gate:      rtc.NewSendGate(),
		supported: cfg.Caps.Microphone != nil,
	}, nil
}

// Mode implements voice.Backend.
func (b *Backend) Mode() voice.Mode { return voice.ModeRealtime }

// State returns the current lifecycle state.
func (b *Backend) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Session returns the current session, if any.
func (b *Backend) Session() (VoiceSession, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.session == nil {
		return VoiceSession{}, false
	}
	return *b.session, true
}

// Status implements voice.Backend.
func (b *Backend) Status() voice.Status {
	b.mu.Lock()
	defer b.mu.Unlock()
	return voice.Status{
		Listening: b.state == StateListening,
		Speaking:  b.speaking.Load(),
		Connected: b.conn != nil,
		Supported: b.supported,
		Err:       b.err,
	}
}

// StartListening creates and connects a session if there is none, waits for
// the connection to settle, then streams microphone audio over the socket.
func (b *Backend) StartListening(ctx context.Context) error {
	b.startMu.Lock()
	defer b.startMu.Unlock()

	b.mu.Lock()
	if b.state == StateListening {
		b.mu.Unlock()
		return nil
	}
	mic := b.cfg.Caps.Microphone
	if mic == nil {
		b.supported = false
		b.mu.Unlock()
		err := ai.NewUnsupportedError(nil, "voice chat needs microphone access, which this device does not provide")
		b.fail(err)
		return err
	}
	b.mu.Unlock()

	if err := b.ensureConnected(ctx); err != nil {
		return err
	}

	capture, err := mic.Open(ctx, b.cfg.Constraints)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return err
		}
		b.metrics.RecordSessionFailed("microphone")
		if ai.IsUnsupported(err) {
			b.mu.Lock()
			b.supported = false
			b.mu.Unlock()
		}
		err = wrapRecoverable(err, "could not access the microphone")
		b.fail(err)
		return err
	}

	b.mu.Lock()
	// StopListening may have run while the permission prompt was up.
	if err := ctx.Err(); err != nil {
		b.mu.Unlock()
		capture.Close()
		return err
	}
	if b.conn == nil {
		b.mu.Unlock()
		capture.Close()
		err := ai.NewRecoverableError(nil, "voice connection closed before listening started")
		b.fail(err)
		return err
	}
	b.capture = capture
	b.state = StateListening
	b.err = ""
	b.mu.Unlock()

	go b.pump(capture)

	b.log.Info().Msg("listening")
	return nil
}

func (b *Backend) ensureConnected(ctx context.Context) error {
	b.mu.Lock()
	connected := b.conn != nil
	sess := b.session
	b.mu.Unlock()
	if connected {
		return nil
	}

	if sess == nil {
		s, err := b.CreateSession(ctx)
		if err != nil {
			return err
		}
		sess = &s
	}
	if err := b.Connect(ctx, *sess); err != nil {
		return err
	}

	select {
	case <-time.After(b.cfg.SettleDelay):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// CreateSession asks the server for a session primed with the property prompt.
func (b *Backend) CreateSession(ctx context.Context) (VoiceSession, error) {
	ctx, cancel := context.WithTimeout(ctx, b.cfg.SessionTimeout)
	defer cancel()

	req := SessionRequest{SystemPrompt: BuildSystemPrompt(b.cfg.Property)}
	if b.cfg.Property != nil {
		req.PropertyID = b.cfg.Property.ID
	}

	start := time.Now()
	sess, err := b.cfg.Creator.CreateSession(ctx, req)
	if err == nil && sess.URL == "" {
		err = ai.NewFatalError(nil, "voice session response has no websocket URL")
	}
	if err != nil {
		b.metrics.RecordSessionFailed("create")
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			err = ai.NewRecoverableError(err, fmt.Sprintf("voice session was not created within %s; try again or switch to browser voice", b.cfg.SessionTimeout))
		} else {
			err = wrapRecoverable(err, "failed to create voice session")
		}
		b.fail(err)
		return VoiceSession{}, err
	}
	b.metrics.RecordSessionCreated(time.Since(start).Seconds())

	b.mu.Lock()
	b.session = &sess
	b.state = StateSessionCreated
	b.mu.Unlock()

	b.sessionLog(&sess).Info().Msg("voice session created")
	return sess, nil
}

// Connect opens the socket for sess and starts the read loop.
func (b *Backend) Connect(ctx context.Context, sess VoiceSession) error {
	dialCtx, cancel := context.WithTimeout(ctx, b.cfg.ConnectTimeout)
	defer cancel()

	conn, _, err := b.cfg.Dialer.DialContext(dialCtx, sess.URL, b.cfg.Header)
	if err != nil {
		b.metrics.RecordSessionFailed("connect")
		b.mu.Lock()
		b.session = nil
		b.state = StateIdle
		b.mu.Unlock()
		err = ai.NewRecoverableError(err, "failed to connect to voice service")
		b.fail(err)
		return err
	}

	done := make(chan struct{})
	b.mu.Lock()
	b.session = &sess
	b.conn = conn
	b.readDone = done
	b.state = StateConnected
	b.err = ""
	b.mu.Unlock()
	b.gate.SetOpen(true)
	b.metrics.RecordSocketOpen(true)

	go b.readLoop(conn, done)

	b.sessionLog(&sess).Info().Msg("voice socket connected")
	return nil
}

// StopListening stops the recorder and releases the microphone. The socket
// stays open.
func (b *Backend) StopListening() error {
	b.mu.Lock()
	capture := b.capture
	b.capture = nil
	if b.state == StateListening {
		b.state = StateConnected
	}
	b.mu.Unlock()

	if capture != nil {
		capture.Close()
		b.log.Info().Msg("stopped listening")
	}
	return nil
}

// Disconnect stops listening, closes the socket and forgets the session.
func (b *Backend) Disconnect() {
	b.StopListening()

	b.mu.Lock()
	conn := b.conn
	b.conn = nil
	b.session = nil
	b.state = StateIdle
	b.mu.Unlock()
	b.gate.SetOpen(false)
	b.speaking.Store(false)

	if conn == nil {
		return
	}
	b.writeMu.Lock()
	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(closeWait))
	b.writeMu.Unlock()
	conn.Close()
	b.metrics.RecordSocketOpen(false)
	b.log.Info().Msg("voice socket closed")
}

// Shutdown implements voice.Backend. It waits for the read loop to exit.
func (b *Backend) Shutdown(ctx context.Context) error {
	b.mu.Lock()
	done := b.readDone
	b.mu.Unlock()

	b.Disconnect()

	if done == nil {
		return nil
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (b *Backend) readLoop(conn *websocket.Conn, done chan struct{}) {
	defer close(done)
	for {
		mt, data, err := conn.ReadMessage()
		if err != nil {
			b.socketClosed(conn, err)
			return
		}
		switch mt {
		case websocket.TextMessage:
			b.dispatch(data)
		case websocket.BinaryMessage:
			if b.cfg.AudioSink != nil {
				b.cfg.AudioSink(data)
			}
		}
	}
}

// socketClosed moves straight to Idle when the server side goes away.
func (b *Backend) socketClosed(conn *websocket.Conn, cause error) {
	b.mu.Lock()
	if b.conn != conn {
		// Disconnect already tore this socket down.
		b.mu.Unlock()
		return
	}
	capture := b.capture
	log := b.sessionLog(b.session)
	b.capture = nil
	b.conn = nil
	b.session = nil
	b.state = StateIdle
	unexpected := !websocket.IsCloseError(cause, websocket.CloseNormalClosure, websocket.CloseGoingAway)
	if unexpected {
		b.err = "Voice connection lost"
	}
	b.mu.Unlock()

	b.gate.SetOpen(false)
	b.speaking.Store(false)
	if capture != nil {
		capture.Close()
	}
	conn.Close()
	b.metrics.RecordSocketOpen(false)

	if unexpected {
		log.Warn().Err(cause).Msg("voice socket lost")
		b.cfg.Callbacks.Error(ai.NewRecoverableError(cause, "voice connection lost"))
	} else {
		log.Info().Msg("voice socket closed by server")
	}
}

func (b *Backend) dispatch(data []byte) {
	defer func() {
		if r := recover(); r != nil {
			b.log.Error().Interface("panic", r).Msg("voice callback panicked")
		}
	}()

	env, err := DecodeEnvelope(data)
	if err != nil {
		b.metrics.RecordEnvelope("")
		b.log.Warn().Err(err).Int("bytes", len(data)).Msg("dropping envelope")
		return
	}
	if !env.Known() {
		b.log.Debug().Str("type", string(env.Type)).Msg("ignoring envelope")
		return
	}
	b.metrics.RecordEnvelope(string(env.Type))

	switch env.Type {
	case EnvelopeTranscript:
		if env.Role == voice.RoleUser {
			b.cfg.Callbacks.Transcript(voice.TranscriptEvent{Role: voice.RoleUser, Text: env.Text})
		} else {
			b.cfg.Callbacks.AIResponse(env.Text)
		}
	case EnvelopeAudioStart:
		b.speaking.Store(true)
	case EnvelopeAudioEnd:
		b.speaking.Store(false)
	case EnvelopeError:
		msg := env.Error
		if msg == "" {
			msg = "voice service error"
		}
		b.mu.Lock()
		b.err = msg
		b.mu.Unlock()
		b.log.Warn().Str("error", msg).Msg("voice service reported an error")
		b.cfg.Callbacks.Error(errors.New(msg))
	}
}

// pump forwards captured chunks until the capture ends. Chunks that arrive
// while the socket is not open are dropped.
func (b *Backend) pump(capture rtc.Capture) {
	for chunk := range capture.Chunks() {
		if b.gate.ShouldDropAudio() {
			b.metrics.RecordAudioChunk(len(chunk.Data), false)
			continue
		}
		b.mu.Lock()
		conn := b.conn
		b.mu.Unlock()
		if conn == nil {
			b.metrics.RecordAudioChunk(len(chunk.Data), false)
			continue
		}

		b.writeMu.Lock()
		_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
		err := conn.WriteMessage(websocket.BinaryMessage, chunk.Data)
		b.writeMu.Unlock()
		if err != nil {
			b.metrics.RecordAudioChunk(len(chunk.Data), false)
			b.log.Debug().Err(err).Msg("audio chunk not sent")
			continue
		}
		b.metrics.RecordAudioChunk(len(chunk.Data), true)
	}
}

func (b *Backend) sessionLog(sess *VoiceSession) zerolog.Logger {
	if sess == nil {
		return b.log
	}
	return logging.WithSession(b.log, sess.ID)
}

// ClearError implements voice.Backend.
func (b *Backend) ClearError() {
	b.mu.Lock()
	b.err = ""
	b.mu.Unlock()
}

func (b *Backend) fail(err error) {
	b.mu.Lock()
	b.err = ai.Describe(err)
	b.mu.Unlock()
	b.log.Error().Err(err).Msg("realtime voice error")
}

func wrapRecoverable(err error, msg string) error {
	if ai.IsRecoverable(err) || ai.IsFatal(err) || ai.IsUnsupported(err) {
		return err
	}
	return ai.NewRecoverableError(err, msg)
}
