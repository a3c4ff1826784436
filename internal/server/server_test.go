package server

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/matryer/is"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/chriscow/listing-voice-go/internal/events"
	"github.com/chriscow/listing-voice-go/internal/metrics"
	"github.com/chriscow/listing-voice-go/internal/notify"
	"github.com/chriscow/listing-voice-go/internal/transcript"
	"github.com/chriscow/listing-voice-go/pkg/ai"
	llmfake "github.com/chriscow/listing-voice-go/pkg/ai/llm/fake"
	"github.com/chriscow/listing-voice-go/pkg/ai/tts"
	"github.com/chriscow/listing-voice-go/pkg/chat"
	"github.com/chriscow/listing-voice-go/pkg/lead"
	"github.com/chriscow/listing-voice-go/pkg/listing"
	"github.com/chriscow/listing-voice-go/pkg/plugin/hosted"
	"github.com/chriscow/listing-voice-go/pkg/version"
)

var maple = &listing.Property{
	ID:         "maple",
	Title:      "Maple Cottage",
	Address:    "12 Maple St",
	Price:      425000,
	Bedrooms:   3,
	Bathrooms:  2,
	SquareFeet: 1700,
	AgentName:  "Dana Reyes",
}

// recorder stands in for the database and the event backend.
type recorder struct {
	mu           sync.Mutex
	leads        []lead.Lead
	appointments []lead.Appointment
	events       []events.Event
}

func (r *recorder) CreateLead(_ context.Context, l *lead.Lead) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.leads = append(r.leads, *l)
	return nil
}

func (r *recorder) CreateAppointment(_ context.Context, a *lead.Appointment) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.appointments = append(r.appointments, *a)
	return nil
}

func (r *recorder) Publish(_ context.Context, ev events.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return nil
}

func (r *recorder) Close() error { return nil }

func (r *recorder) eventTypes() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []string
	for _, ev := range r.events {
		out = append(out, ev.Type)
	}
	return out
}

// countingTTS returns the text as audio and counts calls.
type countingTTS struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (c *countingTTS) Synthesize(_ context.Context, req tts.SynthesizeRequest) (tts.Speech, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	if c.err != nil {
		return tts.Speech{}, c.err
	}
	return tts.Speech{Audio: []byte(req.Voice + ":" + req.Text), Format: "mp3", Voice: req.Voice, Text: req.Text}, nil
}

func (c *countingTTS) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

func (c *countingTTS) Capabilities() tts.TTSCapabilities { return tts.TTSCapabilities{} }

type harness struct {
	srv         *Server
	http        *httptest.Server
	rec         *recorder
	notifier    *notify.Dispatcher
	transcripts *transcript.MemoryStore
}

func newHarness(t *testing.T, mutate func(*Config, *Deps)) *harness {
	t.Helper()
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	rec := &recorder{}
	nop := zerolog.Nop()

	h := &harness{rec: rec, transcripts: transcript.NewMemoryStore(time.Hour)}
	h.notifier = notify.New(
		notify.WithStore(rec),
		notify.WithPublisher(rec),
		notify.WithLogger(nop),
		notify.WithMetrics(m),
	)

	cfg := Config{}
	deps := Deps{
		Properties:  StaticProperties{"maple": maple},
		Transcripts: h.transcripts,
		Notifier:    h.notifier,
		TTS:         &countingTTS{},
		Gatherer:    reg,
		Metrics:     m,
		Logger:      &nop,
	}
	if mutate != nil {
		mutate(&cfg, &deps)
	}

	// Socket URLs embed the listener address, so listen before building.
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "http://" + ln.Addr().String()
	}

	srv, err := New(cfg, deps)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	h.srv = srv
	h.http = &httptest.Server{Listener: ln, Config: &http.Server{Handler: srv.Handler()}}
	h.http.Start()
	t.Cleanup(h.http.Close)
	return h
}

func (h *harness) post(t *testing.T, path string, body any) (*http.Response, []byte) {
	t.Helper()
	b, err := json.Marshal(body)
	if err != nil {
		t.Fatal(err)
	}
	resp, err := http.Post(h.http.URL+path, "application/json", bytes.NewReader(b))
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	var buf bytes.Buffer
	_, _ = buf.ReadFrom(resp.Body)
	return resp, buf.Bytes()
}

func (h *harness) client() *hosted.Client {
	return hosted.NewClient(h.http.URL+"/functions/v1", "anon", hosted.WithLogger(zerolog.Nop()))
}

func errorText(t *testing.T, body []byte) string {
	t.Helper()
	var er hosted.ErrorResponse
	if err := json.Unmarshal(body, &er); err != nil {
		t.Fatalf("error body %q: %v", body, err)
	}
	return er.Error
}

func TestNewRequiresDependencies(t *testing.T) {
	is := is.New(t)
	_, err := New(Config{}, Deps{})
	is.True(err != nil)
}

func TestHealthAndMetrics(t *testing.T) {
	is := is.New(t)
	h := newHarness(t, nil)

	resp, err := http.Get(h.http.URL + "/healthz")
	is.NoErr(err)
	var health healthResponse
	is.NoErr(json.NewDecoder(resp.Body).Decode(&health))
	resp.Body.Close()
	is.Equal(resp.StatusCode, http.StatusOK)
	is.Equal(health.Status, "ok")
	is.Equal(health.Build.Version, version.Version)

	resp, err = http.Get(h.http.URL + "/metrics")
	is.NoErr(err)
	resp.Body.Close()
	is.Equal(resp.StatusCode, http.StatusOK)
}

func TestUnknownRouteUsesErrorShape(t *testing.T) {
	is := is.New(t)
	h := newHarness(t, nil)

	resp, err := http.Get(h.http.URL + "/nope")
	is.NoErr(err)
	defer resp.Body.Close()
	is.Equal(resp.StatusCode, http.StatusNotFound)
	var er hosted.ErrorResponse
	is.NoErr(json.NewDecoder(resp.Body).Decode(&er))
	is.True(er.Error != "")
}

func TestRealtimeSessionValidation(t *testing.T) {
	is := is.New(t)
	h := newHarness(t, nil)

	resp, body := h.post(t, "/functions/v1/realtime-session", map[string]string{"propertyId": "maple"})
	is.Equal(resp.StatusCode, http.StatusBadRequest)
	is.Equal(errorText(t, body), "systemPrompt is required")
}

func TestRealtimeSessionWithoutBridge(t *testing.T) {
	is := is.New(t)
	h := newHarness(t, nil)

	resp, _ := h.post(t, "/functions/v1/realtime-session", map[string]string{"systemPrompt": "hi"})
	is.Equal(resp.StatusCode, http.StatusServiceUnavailable)
}

func TestTextToSpeechCachesAudio(t *testing.T) {
	is := is.New(t)
	synth := &countingTTS{}
	h := newHarness(t, func(_ *Config, d *Deps) { d.TTS = synth })
	client := h.client()

	for i := 0; i < 2; i++ {
		out, err := client.TextToSpeech(context.Background(), "Welcome home", "")
		is.NoErr(err)
		audio, err := base64.StdEncoding.DecodeString(out.AudioContent)
		is.NoErr(err)
		is.Equal(string(audio), "alloy:Welcome home")
	}
	is.Equal(synth.count(), 1)

	_, err := client.TextToSpeech(context.Background(), "Welcome home", "nova")
	is.NoErr(err)
	is.Equal(synth.count(), 2)
}

func TestTextToSpeechErrors(t *testing.T) {
	is := is.New(t)
	synth := &countingTTS{err: errors.New("provider down")}
	h := newHarness(t, func(_ *Config, d *Deps) { d.TTS = synth })
	client := h.client()

	_, err := client.TextToSpeech(context.Background(), "hi", "robot")
	is.True(errors.Is(err, ai.ErrFatal)) // unknown voice is a 400

	_, err = client.TextToSpeech(context.Background(), "hi", "alloy")
	is.True(errors.Is(err, ai.ErrRecoverable)) // provider failure is a 502
}

func TestChatAnswersFromKeywords(t *testing.T) {
	is := is.New(t)
	h := newHarness(t, nil)

	resp, err := h.client().Chat(context.Background(), chat.ChatRequest{
		Message:    "How much is it?",
		PropertyID: "maple",
		SessionID:  "s1",
	})
	is.NoErr(err)
	is.True(strings.Contains(resp.Response, "Maple Cottage"))
	is.True(strings.Contains(resp.Response, "425,000"))
	is.True(!resp.TriggerAppointment)

	resp, err = h.client().Chat(context.Background(), chat.ChatRequest{
		Message:    "I'd like to make an offer",
		PropertyID: "maple",
		SessionID:  "s1",
	})
	is.NoErr(err)
	is.True(resp.TriggerAppointment)
	is.Equal(*resp.LeadScore, chat.BuyingIntentDelta)

	msgs, err := h.transcripts.Load(context.Background(), "s1")
	is.NoErr(err)
	is.Equal(len(msgs), 4)
	is.Equal(msgs[0].Role, chat.RoleUser)
	is.Equal(msgs[1].Role, chat.RoleAssistant)

	h.notifier.Wait()
	is.Equal(h.rec.eventTypes(), []string{events.TypeChatAnswered, events.TypeChatAnswered})
}

func TestChatUsesModelWithKeywordFallback(t *testing.T) {
	is := is.New(t)
	model := llmfake.NewFakeLLM("It has a lovely porch.")
	h := newHarness(t, func(_ *Config, d *Deps) { d.LLM = model })

	resp, err := h.client().Chat(context.Background(), chat.ChatRequest{Message: "Tell me about it", PropertyID: "maple"})
	is.NoErr(err)
	is.Equal(resp.Response, "It has a lovely porch.")

	model.FailWith(errors.New("model down"))
	resp, err = h.client().Chat(context.Background(), chat.ChatRequest{Message: "How much?", PropertyID: "maple"})
	is.NoErr(err)
	is.True(strings.Contains(resp.Response, "425,000"))
}

func TestChatRejectsBlankMessage(t *testing.T) {
	is := is.New(t)
	h := newHarness(t, nil)

	_, err := h.client().Chat(context.Background(), chat.ChatRequest{Message: "   "})
	is.True(errors.Is(err, ai.ErrFatal))
}

func TestSendSMS(t *testing.T) {
	is := is.New(t)
	h := newHarness(t, nil)

	is.NoErr(h.client().SendSMS(context.Background(), "+15550100", "New lead"))
	h.notifier.Wait()
	is.Equal(h.rec.eventTypes(), []string{events.TypeSMSRequested})

	err := h.client().SendSMS(context.Background(), "", "New lead")
	is.True(errors.Is(err, ai.ErrFatal))
}

func TestCreateLead(t *testing.T) {
	is := is.New(t)
	h := newHarness(t, nil)
	ctx := context.Background()
	is.NoErr(h.transcripts.Append(ctx, "s1",
		chat.Message{Role: chat.RoleUser, Text: "Is there a garage?"},
		chat.Message{Role: chat.RoleAssistant, Text: "Yes, two cars."},
	))

	resp, body := h.post(t, "/api/leads", map[string]any{
		"propertyId": "maple",
		"sessionId":  "s1",
		"name":       "Jordan Buyer",
		"email":      "jordan@example.com",
		"phone":      "555-0142",
	})
	is.Equal(resp.StatusCode, http.StatusAccepted)

	var out CaptureResponse
	is.NoErr(json.Unmarshal(body, &out))
	is.True(out.ID != "")
	is.True(out.Score > 0)
	is.Equal(out.Temperature, lead.Temperature(out.Score))

	h.notifier.Wait()
	is.Equal(len(h.rec.leads), 1)
	got := h.rec.leads[0]
	is.Equal(got.ID, out.ID)
	is.Equal(got.Source, lead.SourceChat)
	is.Equal(got.Messages, 1)
	is.True(strings.Contains(got.Transcript, "Buyer: Is there a garage?"))
	is.Equal(h.rec.eventTypes(), []string{events.TypeLeadCaptured})
}

func TestCreateLeadValidation(t *testing.T) {
	tests := []struct {
		name string
		body map[string]any
		want string
	}{
		{"no contact", map[string]any{"propertyId": "maple", "name": "Jo"}, "email or phone is required"},
		{"bad email", map[string]any{"propertyId": "maple", "name": "Jo", "email": "nope"}, "email must be a valid email address"},
		{"no name", map[string]any{"propertyId": "maple", "email": "jo@example.com"}, "name is required"},
		{"bad source", map[string]any{"propertyId": "maple", "name": "Jo", "email": "jo@example.com", "source": "fax"}, "source must be one of"},
	}
	h := newHarness(t, nil)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			is := is.New(t)
			resp, body := h.post(t, "/api/leads", tt.body)
			is.Equal(resp.StatusCode, http.StatusBadRequest)
			is.True(strings.Contains(errorText(t, body), tt.want))
		})
	}
	h.notifier.Wait()
	if len(h.rec.leads) != 0 {
		t.Errorf("expected no leads stored, got %d", len(h.rec.leads))
	}
}

func TestCreateAppointment(t *testing.T) {
	is := is.New(t)
	h := newHarness(t, nil)

	resp, _ := h.post(t, "/api/appointments", map[string]any{
		"propertyId":  "maple",
		"name":        "Jordan Buyer",
		"phone":       "555-0142",
		"scheduledAt": time.Now().Add(-time.Hour),
	})
	is.Equal(resp.StatusCode, http.StatusBadRequest)

	resp, body := h.post(t, "/api/appointments", map[string]any{
		"propertyId":  "maple",
		"name":        "Jordan Buyer",
		"phone":       "555-0142",
		"scheduledAt": time.Now().Add(48 * time.Hour),
	})
	is.Equal(resp.StatusCode, http.StatusAccepted)
	var out CaptureResponse
	is.NoErr(json.Unmarshal(body, &out))

	h.notifier.Wait()
	is.Equal(len(h.rec.appointments), 1)
	is.Equal(h.rec.appointments[0].ID, out.ID)
	is.Equal(h.rec.eventTypes(), []string{events.TypeAppointmentBooked})
}

func TestGetProperty(t *testing.T) {
	is := is.New(t)
	h := newHarness(t, nil)

	resp, err := http.Get(h.http.URL + "/api/properties/maple")
	is.NoErr(err)
	var p listing.Property
	is.NoErr(json.NewDecoder(resp.Body).Decode(&p))
	resp.Body.Close()
	is.Equal(p.Title, "Maple Cottage")

	resp, err = http.Get(h.http.URL + "/api/properties/elm")
	is.NoErr(err)
	resp.Body.Close()
	is.Equal(resp.StatusCode, http.StatusNotFound)
}

func TestSocketURL(t *testing.T) {
	tests := []struct{ base, want string }{
		{"http://localhost:8080", "ws://localhost:8080/realtime/abc"},
		{"https://voice.example.com/", "wss://voice.example.com/realtime/abc"},
	}
	for _, tt := range tests {
		s := &Server{cfg: Config{BaseURL: strings.TrimRight(tt.base, "/")}}
		if got := s.socketURL("abc"); got != tt.want {
			t.Errorf("socketURL(%q) = %q, want %q", tt.base, got, tt.want)
		}
	}
}
