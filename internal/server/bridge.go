package server

import (
	"context"
	"encoding/base64"
	"encoding/binary"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/chriscow/listing-voice-go/internal/logging"
	"github.com/chriscow/listing-voice-go/internal/metrics"
	"github.com/chriscow/listing-voice-go/pkg/voice"
	"github.com/chriscow/listing-voice-go/pkg/voice/realtime"
)

// upstreamRate is the PCM16 sample rate the realtime model speaks and hears.
const upstreamRate = 24000

// OpenAI realtime event types the bridge reads or writes.
const (
	evSessionUpdate      = "session.update"
	evAudioAppend        = "input_audio_buffer.append"
	evResponseCancel     = "response.cancel"
	evAudioDelta         = "response.audio.delta"
	evAssistantDone      = "response.audio_transcript.done"
	evUserTranscript     = "conversation.item.input_audio_transcription.completed"
	evSpeechStarted      = "input_audio_buffer.speech_started"
	evResponseDone       = "response.done"
	evUpstreamError      = "error"
	evSessionUpdated     = "session.updated"
	evTranscriptionModel = "whisper-1"
)

type upstreamEvent struct {
	Type       string          `json:"type"`
	Audio      string          `json:"audio,omitempty"`
	Delta      string          `json:"delta,omitempty"`
	Transcript string          `json:"transcript,omitempty"`
	Session    *sessionConfig  `json:"session,omitempty"`
	Error      *upstreamDetail `json:"error,omitempty"`
}

type sessionConfig struct {
	Modalities              []string       `json:"modalities"`
	Instructions            string         `json:"instructions"`
	Voice                   string         `json:"voice"`
	InputAudioFormat        string         `json:"input_audio_format"`
	OutputAudioFormat       string         `json:"output_audio_format"`
	InputAudioTranscription *transcription `json:"input_audio_transcription"`
	TurnDetection           *turnDetection `json:"turn_detection"`
}

type transcription struct {
	Model string `json:"model"`
}

type turnDetection struct {
	Type string `json:"type"`
}

type upstreamDetail struct {
	Type    string `json:"type"`
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

// BridgeConfig configures the realtime bridge.
type BridgeConfig struct {
	URL       string // full upstream URL including the model query
	APIKey    string
	Voice     string
	InputRate int // sample rate of client microphone PCM
	Dialer    *websocket.Dialer
}

// Bridge relays one client voice socket to the OpenAI realtime API. The
// client sends binary PCM16 and receives envelopes plus assistant PCM16.
type Bridge struct {
	cfg     BridgeConfig
	log     zerolog.Logger
	metrics *metrics.Metrics
}

// NewBridge creates a bridge.
func NewBridge(cfg BridgeConfig, log zerolog.Logger, m *metrics.Metrics) *Bridge {
	if cfg.InputRate <= 0 {
		cfg.InputRate = 16000
	}
	if cfg.Voice == "" {
		cfg.Voice = "alloy"
	}
	if cfg.Dialer == nil {
		d := *websocket.DefaultDialer
		d.HandshakeTimeout = 10 * time.Second
		cfg.Dialer = &d
	}
	if m == nil {
		m = metrics.DefaultMetrics
	}
	return &Bridge{cfg: cfg, log: log, metrics: m}
}

// BridgeSession is one pending realtime session. OnTranscript, when set,
// sees every transcript envelope sent to the client.
type BridgeSession struct {
	ID           string
	Instructions string
	PropertyID   string
	OnTranscript func(role voice.Role, text string)
}

// bridgeConn serializes writes; gorilla allows one writer per connection.
type bridgeConn struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func (c *bridgeConn) write(typ int, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	return c.conn.WriteMessage(typ, data)
}

func (c *bridgeConn) writeJSON(v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return c.write(websocket.TextMessage, b)
}

func (c *bridgeConn) envelope(env realtime.Envelope) error {
	return c.write(websocket.TextMessage, env.Encode())
}

func (c *bridgeConn) close(code int, text string) {
	_ = c.write(websocket.CloseMessage, websocket.FormatCloseMessage(code, text))
}

// Serve runs until either side closes. It always closes the client.
func (b *Bridge) Serve(ctx context.Context, clientConn *websocket.Conn, sess BridgeSession) error {
	client := &bridgeConn{conn: clientConn}
	log := logging.WithSession(b.log, sess.ID)
	defer clientConn.Close()

	header := http.Header{}
	header.Set("Authorization", "Bearer "+b.cfg.APIKey)
	header.Set("OpenAI-Beta", "realtime=v1")

	upConn, _, err := b.cfg.Dialer.DialContext(ctx, b.cfg.URL, header)
	if err != nil {
		log.Error().Err(err).Msg("failed to connect to realtime upstream")
		_ = client.envelope(realtime.Envelope{Type: realtime.EnvelopeError, Error: "voice service unavailable"})
		client.close(websocket.CloseInternalServerErr, "upstream unavailable")
		return err
	}
	upstream := &bridgeConn{conn: upConn}
	defer upConn.Close()

	err = upstream.writeJSON(upstreamEvent{
		Type: evSessionUpdate,
		Session: &sessionConfig{
			Modalities:              []string{"audio", "text"},
			Instructions:            sess.Instructions,
			Voice:                   b.cfg.Voice,
			InputAudioFormat:        "pcm16",
			OutputAudioFormat:       "pcm16",
			InputAudioTranscription: &transcription{Model: evTranscriptionModel},
			TurnDetection:           &turnDetection{Type: "server_vad"},
		},
	})
	if err != nil {
		return err
	}

	errc := make(chan error, 2)
	go func() { errc <- b.fromClient(client, upstream) }()
	go func() { errc <- b.fromUpstream(upstream, client, sess, log) }()

	select {
	case err = <-errc:
	case <-ctx.Done():
		err = ctx.Err()
	}

	if isNormalClose(err) {
		client.close(websocket.CloseNormalClosure, "")
		return nil
	}
	log.Warn().Err(err).Msg("realtime bridge ended")
	client.close(websocket.CloseInternalServerErr, "voice connection lost")
	return err
}

// fromClient forwards microphone PCM upstream as base64 buffer appends.
func (b *Bridge) fromClient(client, upstream *bridgeConn) error {
	for {
		typ, data, err := client.conn.ReadMessage()
		if err != nil {
			return err
		}
		if typ != websocket.BinaryMessage || len(data) == 0 {
			continue
		}
		pcm := resample(data, b.cfg.InputRate, upstreamRate)
		err = upstream.writeJSON(upstreamEvent{
			Type:  evAudioAppend,
			Audio: base64.StdEncoding.EncodeToString(pcm),
		})
		if err != nil {
			return err
		}
	}
}

// fromUpstream translates realtime events into client envelopes.
func (b *Bridge) fromUpstream(upstream, client *bridgeConn, sess BridgeSession, log zerolog.Logger) error {
	speaking := false
	for {
		_, raw, err := upstream.conn.ReadMessage()
		if err != nil {
			return err
		}

		var ev upstreamEvent
		if err := json.Unmarshal(raw, &ev); err != nil {
			log.Warn().Err(err).Msg("skipping malformed upstream event")
			continue
		}

		switch ev.Type {
		case evAudioDelta:
			pcm, err := base64.StdEncoding.DecodeString(ev.Delta)
			if err != nil || len(pcm) == 0 {
				continue
			}
			if !speaking {
				speaking = true
				if err := b.send(client, realtime.Envelope{Type: realtime.EnvelopeAudioStart}); err != nil {
					return err
				}
			}
			if err := client.write(websocket.BinaryMessage, pcm); err != nil {
				return err
			}

		case evAssistantDone:
			if ev.Transcript == "" {
				continue
			}
			err = b.transcript(client, sess, voice.RoleAssistant, ev.Transcript)

		case evUserTranscript:
			if ev.Transcript == "" {
				continue
			}
			err = b.transcript(client, sess, voice.RoleUser, ev.Transcript)

		case evSpeechStarted:
			// Barge-in: stop the assistant when the buyer talks over it.
			if speaking {
				speaking = false
				if err := upstream.writeJSON(upstreamEvent{Type: evResponseCancel}); err != nil {
					return err
				}
				err = b.send(client, realtime.Envelope{Type: realtime.EnvelopeAudioEnd})
			}

		case evResponseDone:
			if speaking {
				speaking = false
				err = b.send(client, realtime.Envelope{Type: realtime.EnvelopeAudioEnd})
			}

		case evUpstreamError:
			msg := "voice service error"
			if ev.Error != nil && ev.Error.Message != "" {
				msg = ev.Error.Message
			}
			log.Error().Str("message", msg).Msg("realtime upstream error")
			err = b.send(client, realtime.Envelope{Type: realtime.EnvelopeError, Error: msg})

		case evSessionUpdated:
			log.Debug().Msg("realtime session configured")
		}
		if err != nil {
			return err
		}
	}
}

func (b *Bridge) transcript(client *bridgeConn, sess BridgeSession, role voice.Role, text string) error {
	if sess.OnTranscript != nil {
		sess.OnTranscript(role, text)
	}
	return b.send(client, realtime.Envelope{Type: realtime.EnvelopeTranscript, Role: role, Text: text})
}

func (b *Bridge) send(client *bridgeConn, env realtime.Envelope) error {
	b.metrics.RecordEnvelope(string(env.Type))
	return client.envelope(env)
}

func isNormalClose(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return true
	}
	return websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway)
}

// resample converts little-endian mono PCM16 between sample rates by linear
// interpolation.
func resample(pcm []byte, from, to int) []byte {
	if from == to || from <= 0 || to <= 0 {
		return pcm
	}
	n := len(pcm) / 2
	if n == 0 {
		return nil
	}
	in := make([]int16, n)
	for i := range in {
		in[i] = int16(binary.LittleEndian.Uint16(pcm[2*i:]))
	}

	outN := n * to / from
	out := make([]byte, outN*2)
	step := float64(from) / float64(to)
	for i := 0; i < outN; i++ {
		pos := float64(i) * step
		j := int(pos)
		frac := pos - float64(j)
		s := float64(in[j])
		if j+1 < n {
			s += (float64(in[j+1]) - s) * frac
		}
		binary.LittleEndian.PutUint16(out[2*i:], uint16(int16(s)))
	}
	return out
}
