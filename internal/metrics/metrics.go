// Package metrics provides Prometheus metrics for observability.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "listing_voice"

// Metrics holds all Prometheus metrics for the service.
type Metrics struct {
	// Realtime session metrics
	SessionsCreated prometheus.Counter
	SessionsFailed  *prometheus.CounterVec
	SocketsOpen     prometheus.Gauge
	SessionLatency  prometheus.Histogram

	// Audio metrics
	AudioChunksSent    prometheus.Counter
	AudioChunksDropped prometheus.Counter
	AudioBytesSent     prometheus.Counter

	// Envelope metrics
	EnvelopesReceived  *prometheus.CounterVec
	EnvelopesMalformed prometheus.Counter

	// Speech queue metrics
	SpeechQueued    prometheus.Counter
	SpeechPlayed    prometheus.Counter
	SpeechAbandoned prometheus.Counter
	TTSLatency      *prometheus.HistogramVec
	TTSErrors       *prometheus.CounterVec

	// Chat metrics
	ChatResolutions *prometheus.CounterVec
	ChatFallbacks   prometheus.Counter

	// Side-effect metrics
	SideEffects *prometheus.CounterVec

	// Event publish metrics
	EventPublishTotal   *prometheus.CounterVec
	EventPublishErrors  *prometheus.CounterVec
	EventPublishLatency *prometheus.HistogramVec
}

// DefaultMetrics is the global metrics instance.
var DefaultMetrics = New(prometheus.DefaultRegisterer)

// New creates all metrics and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		SessionsCreated: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "realtime_sessions_created_total",
			Help:      "Total number of realtime voice sessions created",
		}),
		SessionsFailed: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "realtime_sessions_failed_total",
			Help:      "Total number of realtime voice sessions that failed to start",
		}, []string{"stage"}),
		SocketsOpen: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "realtime_sockets_open",
			Help:      "Number of currently open realtime sockets",
		}),
		SessionLatency: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "realtime_session_create_seconds",
			Help:      "Latency of the session-creation call",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
		}),

		AudioChunksSent: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "audio_chunks_sent_total",
			Help:      "Total microphone chunks forwarded to the realtime socket",
		}),
		AudioChunksDropped: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "audio_chunks_dropped_total",
			Help:      "Total microphone chunks dropped because the socket was not open",
		}),
		AudioBytesSent: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "audio_bytes_sent_total",
			Help:      "Total microphone bytes forwarded to the realtime socket",
		}),

		EnvelopesReceived: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "envelopes_received_total",
			Help:      "Total realtime envelopes received by type",
		}, []string{"type"}),
		EnvelopesMalformed: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "envelopes_malformed_total",
			Help:      "Total realtime messages that could not be decoded",
		}),

		SpeechQueued: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "speech_queued_total",
			Help:      "Total utterances enqueued for synthesis",
		}),
		SpeechPlayed: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "speech_played_total",
			Help:      "Total utterances played to completion",
		}),
		SpeechAbandoned: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "speech_abandoned_total",
			Help:      "Total queued utterances abandoned after a failure or stop",
		}),
		TTSLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "tts_latency_seconds",
			Help:      "Text-to-speech synthesis latency",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2, 5},
		}, []string{"provider"}),
		TTSErrors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tts_errors_total",
			Help:      "Total text-to-speech failures",
		}, []string{"provider"}),

		ChatResolutions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "chat_resolutions_total",
			Help:      "Total chat replies by resolution path and category",
		}, []string{"path", "category"}),
		ChatFallbacks: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "chat_fallbacks_total",
			Help:      "Total chat replies that used the fallback message",
		}),

		SideEffects: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "side_effects_total",
			Help:      "Total fire-and-forget side effects by kind and result",
		}, []string{"kind", "result"}),

		EventPublishTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "event_publish_total",
			Help:      "Total events published",
		}, []string{"backend", "event_type"}),
		EventPublishErrors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "event_publish_errors_total",
			Help:      "Total event publish errors",
		}, []string{"backend", "event_type"}),
		EventPublishLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "event_publish_latency_seconds",
			Help:      "Event publish latency in seconds",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}, []string{"backend"}),
	}
}

// RecordSessionCreated records a successful session-creation call.
func (m *Metrics) RecordSessionCreated(latencySeconds float64) {
	m.SessionsCreated.Inc()
	m.SessionLatency.Observe(latencySeconds)
}

// RecordSessionFailed records a failed session start at the given stage
// (create, connect, microphone).
func (m *Metrics) RecordSessionFailed(stage string) {
	m.SessionsFailed.WithLabelValues(stage).Inc()
}

// RecordSocketOpen records a realtime socket opening or closing.
func (m *Metrics) RecordSocketOpen(open bool) {
	if open {
		m.SocketsOpen.Inc()
		return
	}
	m.SocketsOpen.Dec()
}

// RecordAudioChunk records a microphone chunk being forwarded or dropped.
func (m *Metrics) RecordAudioChunk(bytes int, sent bool) {
	if !sent {
		m.AudioChunksDropped.Inc()
		return
	}
	m.AudioChunksSent.Inc()
	m.AudioBytesSent.Add(float64(bytes))
}

// RecordEnvelope records a decoded envelope, or a malformed one when typ is empty.
func (m *Metrics) RecordEnvelope(typ string) {
	if typ == "" {
		m.EnvelopesMalformed.Inc()
		return
	}
	m.EnvelopesReceived.WithLabelValues(typ).Inc()
}

// RecordSpeechQueued records an utterance entering the speech queue.
func (m *Metrics) RecordSpeechQueued() {
	m.SpeechQueued.Inc()
}

// RecordSpeechPlayed records an utterance played to completion.
func (m *Metrics) RecordSpeechPlayed() {
	m.SpeechPlayed.Inc()
}

// RecordSpeechAbandoned records queued utterances that were dropped.
func (m *Metrics) RecordSpeechAbandoned(n int) {
	m.SpeechAbandoned.Add(float64(n))
}

// RecordTTS records a synthesis attempt.
func (m *Metrics) RecordTTS(provider string, err error, latencySeconds float64) {
	m.TTSLatency.WithLabelValues(provider).Observe(latencySeconds)
	if err != nil {
		m.TTSErrors.WithLabelValues(provider).Inc()
	}
}

// RecordChatResolution records how a chat message was answered.
func (m *Metrics) RecordChatResolution(path, category string) {
	m.ChatResolutions.WithLabelValues(path, category).Inc()
}

// RecordChatFallback records a chat reply that fell back to the fixed message.
func (m *Metrics) RecordChatFallback() {
	m.ChatFallbacks.Inc()
}

// RecordSideEffect records the outcome of a fire-and-forget side effect.
func (m *Metrics) RecordSideEffect(kind string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.SideEffects.WithLabelValues(kind, result).Inc()
}

// RecordEventPublish records an event publish attempt.
func (m *Metrics) RecordEventPublish(backend, eventType string, err error, latencySeconds float64) {
	m.EventPublishTotal.WithLabelValues(backend, eventType).Inc()
	m.EventPublishLatency.WithLabelValues(backend).Observe(latencySeconds)
	if err != nil {
		m.EventPublishErrors.WithLabelValues(backend, eventType).Inc()
	}
}
