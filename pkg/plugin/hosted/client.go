// Package hosted is the client for the hosted functions the voice and chat
// clients call: realtime session creation, text-to-speech, chat and SMS.
package hosted

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/chriscow/listing-voice-go/internal/logging"
	"github.com/chriscow/listing-voice-go/pkg/ai"
	"github.com/chriscow/listing-voice-go/pkg/chat"
	"github.com/chriscow/listing-voice-go/pkg/voice/realtime"
)

// Function names, relative to the client's base URL.
const (
	FuncRealtimeSession = "realtime-session"
	FuncTextToSpeech    = "text-to-speech"
	FuncChat            = "chat"
	FuncSendSMS         = "send-sms"
)

const defaultTimeout = 15 * time.Second

// TTSRequest is the body of the text-to-speech function.
type TTSRequest struct {
	Text  string `json:"text" validate:"required,max=4096"`
	Voice string `json:"voice"`
}

// TTSResponse carries base64-encoded audio.
type TTSResponse struct {
	AudioContent string `json:"audioContent"`
}

// SMSRequest is the body of the send-sms function.
type SMSRequest struct {
	To      string `json:"to" validate:"required,min=7,max=20"`
	Message string `json:"message" validate:"required,max=1600"`
}

// ErrorResponse is what every function returns on failure.
type ErrorResponse struct {
	Error string `json:"error"`
}

// Client invokes hosted functions over HTTP.
type Client struct {
	baseURL string
	anonKey string
	http    *http.Client
	log     zerolog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithTimeout bounds each function call.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.http = &http.Client{Timeout: d} }
}

// WithLogger sets the client logger.
func WithLogger(l zerolog.Logger) Option {
	return func(c *Client) { c.log = l }
}

// NewClient creates a client for the functions under baseURL, e.g.
// https://example.com/functions/v1.
func NewClient(baseURL, anonKey string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		anonKey: anonKey,
		http:    &http.Client{Timeout: defaultTimeout},
		log:     logging.WithComponent("hosted"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// CreateSession implements realtime.SessionCreator.
func (c *Client) CreateSession(ctx context.Context, req realtime.SessionRequest) (realtime.VoiceSession, error) {
	var s realtime.VoiceSession
	if err := c.invoke(ctx, FuncRealtimeSession, req, &s); err != nil {
		return realtime.VoiceSession{}, err
	}
	return s, nil
}

// Chat implements chat.ChatClient.
func (c *Client) Chat(ctx context.Context, req chat.ChatRequest) (chat.ChatResponse, error) {
	var resp chat.ChatResponse
	err := c.invoke(ctx, FuncChat, req, &resp)
	return resp, err
}

// SendSMS asks the hosted function to text a phone number.
func (c *Client) SendSMS(ctx context.Context, to, message string) error {
	return c.invoke(ctx, FuncSendSMS, SMSRequest{To: to, Message: message}, nil)
}

// TextToSpeech returns the raw base64 payload for text spoken by voice.
func (c *Client) TextToSpeech(ctx context.Context, text, voice string) (TTSResponse, error) {
	var resp TTSResponse
	err := c.invoke(ctx, FuncTextToSpeech, TTSRequest{Text: text, Voice: voice}, &resp)
	return resp, err
}

// invoke POSTs body as JSON to the named function and decodes the reply
// into out. Transport failures, 429 and 5xx are recoverable; other 4xx
// responses are fatal.
func (c *Client) invoke(ctx context.Context, fn string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return ai.NewFatalError(err, fmt.Sprintf("encode %s request", fn))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/"+fn, bytes.NewReader(payload))
	if err != nil {
		return ai.NewFatalError(err, fmt.Sprintf("build %s request", fn))
	}
	req.Header.Set("Content-Type", "application/json")
	if c.anonKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.anonKey)
		req.Header.Set("apikey", c.anonKey)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		c.log.Warn().Err(err).Str("function", fn).Msg("hosted function unreachable")
		return ai.NewRecoverableError(err, fmt.Sprintf("%s function unreachable", fn))
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 32<<20))
	if err != nil {
		return ai.NewRecoverableError(err, fmt.Sprintf("read %s response", fn))
	}

	c.log.Debug().
		Str("function", fn).
		Int("status", resp.StatusCode).
		Dur("duration", time.Since(start)).
		Msg("hosted function call")

	if resp.StatusCode >= 300 {
		return statusError(fn, resp.StatusCode, data)
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return ai.NewRecoverableError(err, fmt.Sprintf("decode %s response", fn))
	}
	return nil
}

func statusError(fn string, status int, body []byte) error {
	var er ErrorResponse
	detail := http.StatusText(status)
	if json.Unmarshal(body, &er) == nil && er.Error != "" {
		detail = er.Error
	}
	err := fmt.Errorf("%s returned %d: %s", fn, status, detail)
	if status == http.StatusTooManyRequests || status >= 500 {
		return ai.NewRecoverableError(err, fmt.Sprintf("%s function failed", fn))
	}
	return ai.NewFatalError(err, fmt.Sprintf("%s function rejected the request", fn))
}

// ErrNoAudio is returned when the text-to-speech function answers without audio.
var ErrNoAudio = errors.New("no audio content")
