package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/yixuanzhou/student-portal-server/internal/models"
)

// Producer publishes rose transaction events after a ledger transaction
// commits. Publishing is best-effort and never fails the transaction.
type Producer interface {
	PublishTransactionEvent(ctx context.Context, event *models.RoseTransactionEvent) error
	Close() error
}

type kafkaProducer struct {
	writer *kafka.Writer
}

// NewKafkaProducer creates a Producer writing to the given brokers and topic
func NewKafkaProducer(brokers []string, topic string) Producer {
	writer := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.LeastBytes{},
		BatchSize:    100,
		BatchTimeout: 10 * time.Millisecond,
		RequiredAcks: kafka.RequireOne,
		Compression:  kafka.Snappy,
	}

	return &kafkaProducer{
		writer: writer,
	}
}

func (p *kafkaProducer) PublishTransactionEvent(ctx context.Context, event *models.RoseTransactionEvent) error {
	eventJSON, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal transaction event: %w", err)
	}

	message := kafka.Message{
		Key:   []byte(event.Username),
		Value: eventJSON,
		Time:  event.Timestamp,
		Headers: []kafka.Header{
			{Key: "event-type", Value: []byte(event.Type)},
		},
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := p.writer.WriteMessages(ctx, message); err != nil {
		return fmt.Errorf("failed to write transaction event to kafka: %w", err)
	}

	return nil
}

func (p *kafkaProducer) Close() error {
	return p.writer.Close()
}

type nopProducer struct{}

// NewNopProducer returns a Producer that drops every event. Used when no
// brokers are configured.
func NewNopProducer() Producer {
	return nopProducer{}
}

func (nopProducer) PublishTransactionEvent(context.Context, *models.RoseTransactionEvent) error {
	return nil
}

func (nopProducer) Close() error { return nil }
