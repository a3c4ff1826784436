package server

import (
	"context"
	"encoding/base64"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/chriscow/listing-voice-go/internal/events"
	"github.com/chriscow/listing-voice-go/internal/logging"
	"github.com/chriscow/listing-voice-go/internal/store"
	"github.com/chriscow/listing-voice-go/internal/transcript"
	"github.com/chriscow/listing-voice-go/pkg/ai/tts"
	"github.com/chriscow/listing-voice-go/pkg/chat"
	"github.com/chriscow/listing-voice-go/pkg/lead"
	"github.com/chriscow/listing-voice-go/pkg/listing"
	"github.com/chriscow/listing-voice-go/pkg/plugin/hosted"
	"github.com/chriscow/listing-voice-go/pkg/voice"
	"github.com/chriscow/listing-voice-go/pkg/voice/realtime"
)

// CaptureResponse acknowledges a lead or appointment. Side effects run after
// the response is written.
type CaptureResponse struct {
	ID          string `json:"id"`
	Score       int    `json:"score,omitempty"`
	Temperature string `json:"temperature,omitempty"`
}

// SMSResponse acknowledges a send-sms request.
type SMSResponse struct {
	Success bool `json:"success"`
}

func bindValid(c echo.Context, v any) error {
	if err := c.Bind(v); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	return c.Validate(v)
}

func (s *Server) handleRealtimeSession(c echo.Context) error {
	var req realtime.SessionRequest
	if err := bindValid(c, &req); err != nil {
		return err
	}
	if s.deps.Bridge == nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "realtime voice is not configured")
	}

	id := uuid.NewString()
	s.sessions.SetDefault(id, BridgeSession{
		ID:           id,
		Instructions: req.SystemPrompt,
		PropertyID:   req.PropertyID,
	})
	s.log.Info().Str("sessionId", id).Str("propertyId", req.PropertyID).Msg("realtime session created")

	return c.JSON(http.StatusOK, realtime.VoiceSession{ID: id, URL: s.socketURL(id)})
}

func (s *Server) handleRealtimeSocket(c echo.Context) error {
	id := c.Param("id")
	v, ok := s.sessions.Get(id)
	if !ok {
		return echo.NewHTTPError(http.StatusNotFound, "unknown or expired session")
	}
	// A session is good for one connection.
	s.sessions.Delete(id)
	sess := v.(BridgeSession)
	log := logging.WithSession(s.log, id)

	conn, err := s.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		log.Warn().Err(err).Msg("websocket upgrade failed")
		return nil
	}

	sess.OnTranscript = func(role voice.Role, text string) {
		msg := chat.Message{Role: chat.Role(role), Text: text, At: time.Now().UTC()}
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.deps.Transcripts.Append(ctx, id, msg); err != nil {
			log.Warn().Err(err).Msg("failed to store voice transcript")
		}
	}

	if err := s.deps.Bridge.Serve(c.Request().Context(), conn, sess); err != nil {
		log.Warn().Err(err).Msg("realtime session ended with error")
	}
	return nil
}

func (s *Server) handleTextToSpeech(c echo.Context) error {
	var req hosted.TTSRequest
	if err := bindValid(c, &req); err != nil {
		return err
	}
	if s.deps.TTS == nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "text-to-speech is not configured")
	}
	if req.Voice == "" {
		req.Voice = s.cfg.DefaultVoice
	}
	if _, ok := tts.LookupVoice(req.Voice); !ok {
		return echo.NewHTTPError(http.StatusBadRequest, "unknown voice "+req.Voice)
	}

	key := req.Voice + "\x00" + req.Text
	if audio, ok := s.speech.Get(key); ok {
		return c.JSON(http.StatusOK, hosted.TTSResponse{AudioContent: audio.(string)})
	}

	start := time.Now()
	speech, err := s.deps.TTS.Synthesize(c.Request().Context(), tts.SynthesizeRequest{Text: req.Text, Voice: req.Voice})
	s.metrics.RecordTTS("function", err, time.Since(start).Seconds())
	if err != nil {
		s.log.Error().Err(err).Str("voice", req.Voice).Msg("speech synthesis failed")
		return echo.NewHTTPError(http.StatusBadGateway, "speech synthesis failed")
	}
	if len(speech.Audio) == 0 {
		return echo.NewHTTPError(http.StatusBadGateway, "speech synthesis returned no audio")
	}

	audio := base64.StdEncoding.EncodeToString(speech.Audio)
	s.speech.SetDefault(key, audio)
	return c.JSON(http.StatusOK, hosted.TTSResponse{AudioContent: audio})
}

func (s *Server) handleChat(c echo.Context) error {
	var req chat.ChatRequest
	if err := bindValid(c, &req); err != nil {
		return err
	}
	message := strings.TrimSpace(req.Message)
	if message == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "message is required")
	}

	ctx := c.Request().Context()
	pc := chat.PropertyContext{SessionID: req.SessionID}
	if p := s.property(ctx, req.PropertyID); p != nil {
		pc.Property = *p
	} else {
		pc.Property = listing.Property{ID: req.PropertyID}
	}
	if req.SessionID != "" {
		history, err := s.deps.Transcripts.Load(ctx, req.SessionID)
		if err != nil {
			s.log.Warn().Err(err).Str("sessionId", req.SessionID).Msg("failed to load transcript")
		}
		pc.History = history
	}

	reply, err := s.resolver.Resolve(ctx, message, pc)
	if err != nil {
		s.log.Error().Err(err).Str("sessionId", req.SessionID).Msg("chat resolution failed")
		return echo.NewHTTPError(http.StatusBadGateway, "chat is unavailable")
	}
	s.metrics.RecordChatResolution("function", string(reply.Category))

	if req.SessionID != "" {
		now := time.Now().UTC()
		err := s.deps.Transcripts.Append(ctx, req.SessionID,
			chat.Message{Role: chat.RoleUser, Text: message, At: now},
			chat.Message{Role: chat.RoleAssistant, Text: reply.Text, At: now},
		)
		if err != nil {
			s.log.Warn().Err(err).Str("sessionId", req.SessionID).Msg("failed to store transcript")
		}
	}

	s.deps.Notifier.Publish(events.New(events.TypeChatAnswered, req.SessionID, req.PropertyID, map[string]any{
		"category":           reply.Category,
		"triggerAppointment": reply.TriggerAppointment,
	}))

	return c.JSON(http.StatusOK, reply.ToResponse())
}

// handleSendSMS records the request; delivery belongs to whatever consumes
// the sms.requested event.
func (s *Server) handleSendSMS(c echo.Context) error {
	var req hosted.SMSRequest
	if err := bindValid(c, &req); err != nil {
		return err
	}
	s.log.Info().Str("to", maskPhone(req.To)).Int("length", len(req.Message)).Msg("sms requested")
	s.deps.Notifier.Publish(events.New(events.TypeSMSRequested, req.To, "", req))
	return c.JSON(http.StatusOK, SMSResponse{Success: true})
}

func (s *Server) handleCreateLead(c echo.Context) error {
	var l lead.Lead
	if err := bindValid(c, &l); err != nil {
		return err
	}
	ctx := c.Request().Context()

	if l.ID == "" {
		l.ID = uuid.NewString()
	}
	if l.Source == "" {
		l.Source = lead.SourceChat
	}
	if l.SessionID != "" && l.Transcript == "" {
		msgs, err := s.deps.Transcripts.Load(ctx, l.SessionID)
		if err != nil {
			s.log.Warn().Err(err).Str("sessionId", l.SessionID).Msg("failed to load transcript for lead")
		}
		l.Transcript = transcript.Format(msgs)
		l.Messages = max(l.Messages, transcript.UserMessages(msgs))
	}
	// The client's score includes conversation deltas the signals cannot see.
	l.Score = max(l.Score, lead.Score(l.Signals(), lead.DefaultWeights))
	l.CreatedAt = time.Now().UTC()

	s.deps.Notifier.LeadCaptured(l, s.property(ctx, l.PropertyID))

	return c.JSON(http.StatusAccepted, CaptureResponse{
		ID:          l.ID,
		Score:       l.Score,
		Temperature: lead.Temperature(l.Score),
	})
}

func (s *Server) handleCreateAppointment(c echo.Context) error {
	var a lead.Appointment
	if err := bindValid(c, &a); err != nil {
		return err
	}
	if !a.ScheduledAt.After(time.Now()) {
		return echo.NewHTTPError(http.StatusBadRequest, "scheduledAt must be in the future")
	}
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	a.CreatedAt = time.Now().UTC()

	s.deps.Notifier.AppointmentBooked(a, s.property(c.Request().Context(), a.PropertyID))

	return c.JSON(http.StatusAccepted, CaptureResponse{ID: a.ID})
}

func (s *Server) handleGetProperty(c echo.Context) error {
	p, err := s.deps.Properties.GetProperty(c.Request().Context(), c.Param("id"))
	if errors.Is(err, store.ErrNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, "property not found")
	}
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, p)
}

func maskPhone(phone string) string {
	if len(phone) <= 4 {
		return "****"
	}
	return strings.Repeat("*", len(phone)-4) + phone[len(phone)-4:]
}
