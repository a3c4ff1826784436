package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"

	"github.com/chriscow/listing-voice-go/internal/metrics"
)

// KafkaPublisher writes events to one topic, keyed by Event.Key.
type KafkaPublisher struct {
	writer  *kafka.Writer
	topic   string
	log     zerolog.Logger
	metrics *metrics.Metrics
}

// NewKafkaPublisher creates a publisher for topic on brokers.
func NewKafkaPublisher(brokers []string, topic string, log zerolog.Logger, m *metrics.Metrics) *KafkaPublisher {
	dialer := &kafka.Dialer{
		Timeout:   10 * time.Second,
		DualStack: true,
	}
	w := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		BatchTimeout: 10 * time.Millisecond,
		WriteTimeout: 10 * time.Second,
		RequiredAcks: kafka.RequireOne,
		Transport:    &kafka.Transport{Dial: dialer.DialFunc},
	}

	log.Info().
		Strs("brokers", brokers).
		Str("topic", topic).
		Msg("Kafka publisher initialized")

	return &KafkaPublisher{writer: w, topic: topic, log: log, metrics: m}
}

// kafkaMessage encodes ev with its type in a header.
func kafkaMessage(ev Event) (kafka.Message, error) {
	payload, err := json.Marshal(ev)
	if err != nil {
		return kafka.Message{}, err
	}
	return kafka.Message{
		Key:   []byte(ev.Key),
		Value: payload,
		Headers: []kafka.Header{
			{Key: "eventType", Value: []byte(ev.Type)},
			{Key: "eventId", Value: []byte(ev.ID)},
		},
	}, nil
}

func (p *KafkaPublisher) Publish(ctx context.Context, ev Event) error {
	start := time.Now()
	msg, err := kafkaMessage(ev)
	if err != nil {
		p.log.Error().Err(err).Str("type", ev.Type).Msg("Failed to marshal event")
		return err
	}

	err = p.writer.WriteMessages(ctx, msg)
	p.metrics.RecordEventPublish("kafka", ev.Type, err, time.Since(start).Seconds())
	if err != nil {
		p.log.Error().
			Err(err).
			Str("topic", p.topic).
			Str("key", ev.Key).
			Msg("Failed to write to Kafka")
		return err
	}
	return nil
}

func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}
