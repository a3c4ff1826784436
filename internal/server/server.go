// Package server serves the hosted functions the voice and chat clients call
// (realtime sessions, text-to-speech, chat, SMS) and the lead capture API.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/patrickmn/go-cache"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/chriscow/listing-voice-go/internal/logging"
	"github.com/chriscow/listing-voice-go/internal/metrics"
	"github.com/chriscow/listing-voice-go/internal/notify"
	"github.com/chriscow/listing-voice-go/internal/store"
	"github.com/chriscow/listing-voice-go/internal/transcript"
	"github.com/chriscow/listing-voice-go/pkg/ai/llm"
	"github.com/chriscow/listing-voice-go/pkg/ai/tts"
	"github.com/chriscow/listing-voice-go/pkg/chat"
	"github.com/chriscow/listing-voice-go/pkg/listing"
	"github.com/chriscow/listing-voice-go/pkg/plugin/hosted"
	"github.com/chriscow/listing-voice-go/pkg/version"
)

const (
	DefaultSessionTTL  = 2 * time.Minute
	DefaultTTSCacheTTL = 30 * time.Minute
)

// Properties looks up listings by id.
type Properties interface {
	GetProperty(ctx context.Context, id string) (*listing.Property, error)
}

// StaticProperties serves listings from memory.
type StaticProperties map[string]*listing.Property

func (s StaticProperties) GetProperty(_ context.Context, id string) (*listing.Property, error) {
	if p, ok := s[id]; ok {
		return p, nil
	}
	return nil, store.ErrNotFound
}

// Config holds the server settings.
type Config struct {
	// BaseURL is the public address of this service; realtime socket URLs
	// are derived from it.
	BaseURL      string
	DefaultVoice string
	SessionTTL   time.Duration
	TTSCacheTTL  time.Duration
}

// Deps are the server's collaborators. Properties, Transcripts and Notifier
// are required; a nil TTS, LLM or Bridge disables what depends on it.
type Deps struct {
	Properties  Properties
	Transcripts transcript.Store
	Notifier    *notify.Dispatcher
	TTS         tts.TTS
	LLM         llm.LLM
	Bridge      *Bridge
	Gatherer    prometheus.Gatherer
	Metrics     *metrics.Metrics
	Logger      *zerolog.Logger
}

// Server is the HTTP service.
type Server struct {
	cfg      Config
	deps     Deps
	echo     *echo.Echo
	log      zerolog.Logger
	metrics  *metrics.Metrics
	resolver chat.Resolver
	upgrader websocket.Upgrader

	sessions *cache.Cache // pending realtime sessions by id
	speech   *cache.Cache // synthesized audio by voice and text
}

// New wires routes and middleware.
func New(cfg Config, deps Deps) (*Server, error) {
	if deps.Properties == nil || deps.Transcripts == nil || deps.Notifier == nil {
		return nil, errors.New("server: properties, transcripts and notifier are required")
	}
	if cfg.SessionTTL <= 0 {
		cfg.SessionTTL = DefaultSessionTTL
	}
	if cfg.TTSCacheTTL <= 0 {
		cfg.TTSCacheTTL = DefaultTTSCacheTTL
	}
	if cfg.DefaultVoice == "" {
		cfg.DefaultVoice = tts.DefaultVoice
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if deps.Gatherer == nil {
		deps.Gatherer = prometheus.DefaultGatherer
	}
	if deps.Metrics == nil {
		deps.Metrics = metrics.DefaultMetrics
	}

	logger := logging.WithComponent("server")
	if deps.Logger != nil {
		logger = *deps.Logger
	}

	keywords := chat.NewKeywordResolver()
	var resolver chat.Resolver = keywords
	if deps.LLM != nil {
		resolver = chat.Fallback(chat.NewLLMResolver(deps.LLM), keywords)
	}

	s := &Server{
		cfg:      cfg,
		deps:     deps,
		echo:     echo.New(),
		log:      logger,
		metrics:  deps.Metrics,
		resolver: resolver,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		sessions: cache.New(cfg.SessionTTL, cfg.SessionTTL),
		speech:   cache.New(cfg.TTSCacheTTL, 2*cfg.TTSCacheTTL),
	}
	s.setup()
	return s, nil
}

func (s *Server) setup() {
	e := s.echo
	e.HideBanner = true
	e.HidePort = true
	e.Validator = newRequestValidator()
	e.HTTPErrorHandler = s.errorHandler

	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogMethod:  true,
		LogURI:     true,
		LogStatus:  true,
		LogLatency: true,
		LogError:   true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			ev := s.log.Info()
			if v.Error != nil || v.Status >= http.StatusInternalServerError {
				ev = s.log.Error().Err(v.Error)
			}
			ev.Str("method", v.Method).
				Str("uri", v.URI).
				Int("status", v.Status).
				Dur("latency", v.Latency).
				Msg("request")
			return nil
		},
	}))
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())

	fn := e.Group("/functions/v1")
	fn.POST("/"+hosted.FuncRealtimeSession, s.handleRealtimeSession)
	fn.POST("/"+hosted.FuncTextToSpeech, s.handleTextToSpeech)
	fn.POST("/"+hosted.FuncChat, s.handleChat)
	fn.POST("/"+hosted.FuncSendSMS, s.handleSendSMS)

	e.GET("/realtime/:id", s.handleRealtimeSocket)

	api := e.Group("/api")
	api.POST("/leads", s.handleCreateLead)
	api.POST("/appointments", s.handleCreateAppointment)
	api.GET("/properties/:id", s.handleGetProperty)

	e.GET("/healthz", func(c echo.Context) error {
		return c.JSON(http.StatusOK, healthResponse{Status: "ok", Build: version.Get()})
	})
	e.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(s.deps.Gatherer, promhttp.HandlerOpts{})))
}

type healthResponse struct {
	Status string       `json:"status"`
	Build  version.Info `json:"build"`
}

// errorHandler renders every failure as {"error": "..."}, the shape the
// hosted function client decodes.
func (s *Server) errorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	code := http.StatusInternalServerError
	msg := http.StatusText(code)
	var he *echo.HTTPError
	if errors.As(err, &he) {
		code = he.Code
		msg = fmt.Sprint(he.Message)
	} else {
		s.log.Error().Err(err).Str("uri", c.Request().RequestURI).Msg("unhandled error")
	}

	if c.Request().Method == http.MethodHead {
		err = c.NoContent(code)
	} else {
		err = c.JSON(code, hosted.ErrorResponse{Error: msg})
	}
	if err != nil {
		s.log.Error().Err(err).Msg("failed to write error response")
	}
}

// Handler exposes the router, mainly for httptest.
func (s *Server) Handler() http.Handler { return s.echo }

// Start listens on addr until Shutdown.
func (s *Server) Start(addr string) error {
	s.log.Info().Str("addr", addr).Msg("server listening")
	if err := s.echo.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting requests and waits for in-flight side effects.
func (s *Server) Shutdown(ctx context.Context) error {
	err := s.echo.Shutdown(ctx)
	s.deps.Notifier.Wait()
	return err
}

// socketURL maps the public base URL onto the websocket scheme.
func (s *Server) socketURL(id string) string {
	base := s.cfg.BaseURL
	switch {
	case strings.HasPrefix(base, "https://"):
		base = "wss://" + strings.TrimPrefix(base, "https://")
	case strings.HasPrefix(base, "http://"):
		base = "ws://" + strings.TrimPrefix(base, "http://")
	}
	return base + "/realtime/" + id
}

// property looks up id, returning nil when it is empty or unknown.
func (s *Server) property(ctx context.Context, id string) *listing.Property {
	if id == "" {
		return nil
	}
	p, err := s.deps.Properties.GetProperty(ctx, id)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			s.log.Warn().Err(err).Str("propertyId", id).Msg("property lookup failed")
		}
		return nil
	}
	return p
}
