// Package events publishes lead and appointment events to Kafka, NATS
// JetStream, or the log.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/chriscow/listing-voice-go/internal/metrics"
)

// Event types.
const (
	TypeLeadCaptured      = "lead.captured"
	TypeAppointmentBooked = "appointment.booked"
	TypeSMSRequested      = "sms.requested"
	TypeChatAnswered      = "chat.answered"
)

// Event is one published fact. Key partitions related events together.
type Event struct {
	ID         string    `json:"id"`
	Type       string    `json:"type"`
	Key        string    `json:"key"`
	PropertyID string    `json:"propertyId,omitempty"`
	At         time.Time `json:"at"`
	Payload    any       `json:"payload"`
}

// New stamps an event with an id and time.
func New(typ, key, propertyID string, payload any) Event {
	return Event{
		ID:         uuid.NewString(),
		Type:       typ,
		Key:        key,
		PropertyID: propertyID,
		At:         time.Now().UTC(),
		Payload:    payload,
	}
}

// Publisher sends events somewhere.
type Publisher interface {
	Publish(ctx context.Context, ev Event) error
	Close() error
}

// Config selects and configures a backend.
type Config struct {
	Backend string // kafka, nats or log
	Brokers []string
	Topic   string
	NatsURL string
}

// Open builds the configured publisher. Kafka without brokers falls back
// to the log publisher.
func Open(cfg Config, log zerolog.Logger, m *metrics.Metrics) (Publisher, error) {
	switch cfg.Backend {
	case "kafka":
		if len(cfg.Brokers) == 0 {
			log.Info().Msg("Kafka has no brokers, using log-only mode")
			return NewLogPublisher(log, m), nil
		}
		return NewKafkaPublisher(cfg.Brokers, cfg.Topic, log, m), nil
	case "nats":
		return NewNATSPublisher(cfg.NatsURL, log, m)
	case "", "log":
		return NewLogPublisher(log, m), nil
	default:
		return nil, fmt.Errorf("unknown events backend %q", cfg.Backend)
	}
}

// LogPublisher only logs events.
type LogPublisher struct {
	log     zerolog.Logger
	metrics *metrics.Metrics
}

// NewLogPublisher creates a log-only publisher.
func NewLogPublisher(log zerolog.Logger, m *metrics.Metrics) *LogPublisher {
	return &LogPublisher{log: log, metrics: m}
}

func (p *LogPublisher) Publish(ctx context.Context, ev Event) error {
	start := time.Now()
	payload, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	p.log.Info().
		Str("type", ev.Type).
		Str("key", ev.Key).
		RawJSON("event", payload).
		Msg("Event")
	p.metrics.RecordEventPublish("log", ev.Type, nil, time.Since(start).Seconds())
	return nil
}

func (p *LogPublisher) Close() error { return nil }
