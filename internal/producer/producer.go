// Package producer provides Kafka producer functionality for the ingest and
// notification work topics.
package producer

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/mannylee/cloudops-command-center/internal/events"
	kafkautil "github.com/mannylee/cloudops-command-center/internal/kafka"
	"github.com/mannylee/cloudops-command-center/internal/normalizer"
)

// Producer wraps a Kafka writer and provides a simple interface for
// publishing JSON payloads keyed for partition locality.
type Producer struct {
	writer *kafka.Writer
	topic  string
}

// NewProducer creates a new Kafka producer for the given topic. The producer
// is configured for at-least-once delivery with synchronous writes.
func NewProducer(brokers string, topic string) (*Producer, error) {
	if err := kafkautil.ValidateProducerParams(brokers, topic); err != nil {
		return nil, err
	}

	brokerList := kafkautil.ParseBrokers(brokers)

	slog.Info("Initializing Kafka producer",
		"brokers", brokerList,
		"topic", topic,
	)

	// Hash balancer keys messages by event/account so same-key updates land
	// on one partition and preserve order
	writer := &kafka.Writer{
		Addr:         kafka.TCP(brokerList...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		WriteTimeout: kafkautil.WriteTimeout,
		RequiredAcks: kafka.RequireOne,
		Async:        false,
	}

	return &Producer{
		writer: writer,
		topic:  topic,
	}, nil
}

// ingestEnvelope is the fan-out shape resolved back into a push directive on
// the consuming side.
type ingestEnvelope struct {
	Mode  string             `json:"mode"`
	Event events.HealthEvent `json:"event"`
	Force bool               `json:"force,omitempty"`
}

// PublishIngest fans one normalized event back onto the ingest topic, keyed
// by composite event key.
func (p *Producer) PublishIngest(ctx context.Context, ev events.HealthEvent, force bool) error {
	payload, err := json.Marshal(ingestEnvelope{
		Mode:  normalizer.ModeIngestEvent,
		Event: ev,
		Force: force,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal ingest event: %w", err)
	}

	key := ev.EventID + ":" + ev.AccountID
	if err := p.Publish(ctx, key, payload); err != nil {
		return err
	}

	slog.Debug("Fanned out event for parallel processing",
		"event_id", ev.EventID,
		"account_id", ev.AccountID,
		"force", force,
	)
	return nil
}

// Publish writes one pre-serialized payload to the topic, synchronously.
func (p *Producer) Publish(ctx context.Context, key string, payload []byte) error {
	msg := kafka.Message{
		Key:   []byte(key),
		Value: payload,
		Time:  time.Now(),
	}

	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		slog.Error("Failed to write message to Kafka",
			"topic", p.topic,
			"key", key,
			"error", err,
		)
		return fmt.Errorf("failed to write message to Kafka: %w", err)
	}
	return nil
}

// Close gracefully closes the Kafka writer and releases resources.
func (p *Producer) Close() error {
	slog.Info("Closing Kafka producer", "topic", p.topic)
	if err := p.writer.Close(); err != nil {
		slog.Error("Error closing Kafka producer", "error", err)
		return err
	}
	slog.Info("Kafka producer closed successfully")
	return nil
}
