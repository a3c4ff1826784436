package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog"

	"github.com/chriscow/listing-voice-go/internal/metrics"
)

// StreamName is the JetStream stream that holds every event subject.
const StreamName = "LISTING_EVENTS"

// NATSPublisher publishes events to JetStream subjects events.<type>.
type NATSPublisher struct {
	nc      *nats.Conn
	js      jetstream.JetStream
	log     zerolog.Logger
	metrics *metrics.Metrics
}

// NewNATSPublisher connects to url and makes sure the stream exists.
func NewNATSPublisher(url string, log zerolog.Logger, m *metrics.Metrics) (*NATSPublisher, error) {
	nc, err := nats.Connect(url,
		nats.Name("listing-voice"),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(5),
		nats.ReconnectWait(2*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("failed to create JetStream context: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, err = js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:     StreamName,
		Subjects: []string{"events.>"},
		Storage:  jetstream.FileStorage,
	})
	if err != nil {
		log.Warn().Err(err).Str("stream", StreamName).Msg("Failed to ensure stream")
	}

	return &NATSPublisher{nc: nc, js: js, log: log, metrics: m}, nil
}

func subject(ev Event) string {
	return "events." + ev.Type
}

func (p *NATSPublisher) Publish(ctx context.Context, ev Event) error {
	start := time.Now()
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	_, err = p.js.Publish(ctx, subject(ev), data, jetstream.WithMsgID(ev.ID))
	p.metrics.RecordEventPublish("nats", ev.Type, err, time.Since(start).Seconds())
	if err != nil {
		return fmt.Errorf("failed to publish event to subject %s: %w", subject(ev), err)
	}
	return nil
}

func (p *NATSPublisher) Close() error {
	if p.nc != nil {
		p.nc.Close()
	}
	return nil
}
