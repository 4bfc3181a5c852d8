// Package kafka publishes resolution events to a Kafka topic.
package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/couchcryptid/haulage-resolver-service/internal/domain"
	kafkago "github.com/segmentio/kafka-go"
)

// Publisher produces resolution events to Kafka. Writes are asynchronous so
// a slow broker never holds up a resolution; delivery failures are logged.
type Publisher struct {
	writer *kafkago.Writer
	logger *slog.Logger
}

// NewPublisher creates an async Kafka producer for topic.
func NewPublisher(brokers []string, topic string, logger *slog.Logger) *Publisher {
	p := &Publisher{logger: logger}
	p.writer = &kafkago.Writer{
		Addr:                   kafkago.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafkago.Hash{},
		RequiredAcks:           kafkago.RequireOne,
		BatchTimeout:           50 * time.Millisecond,
		Async:                  true,
		AllowAutoTopicCreation: true,
		Completion:             p.completed,
	}
	return p
}

// Publish enqueues event. Events with the same key land on the same partition.
func (p *Publisher) Publish(ctx context.Context, event domain.ResolutionEvent) error {
	msg, err := serializeToMessage(event)
	if err != nil {
		return err
	}
	return p.writer.WriteMessages(ctx, msg)
}

// Close flushes pending messages and closes the producer.
func (p *Publisher) Close() error {
	return p.writer.Close()
}

func (p *Publisher) completed(messages []kafkago.Message, err error) {
	if err != nil {
		p.logger.Warn("kafka delivery failed", "messages", len(messages), "error", err)
	}
}

// serializeToMessage marshals a ResolutionEvent into a Kafka message.
func serializeToMessage(event domain.ResolutionEvent) (kafkago.Message, error) {
	data, err := json.Marshal(event)
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize resolution event: %w", err)
	}
	return kafkago.Message{
		Key:   []byte(event.Key),
		Value: data,
		Headers: []kafkago.Header{
			{Key: "operation", Value: []byte(event.Operation)},
			{Key: "source", Value: []byte(event.Source)},
			{Key: "resolved_at", Value: []byte(event.ResolvedAt.Format(time.RFC3339))},
		},
	}, nil
}
