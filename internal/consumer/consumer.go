// Package consumer provides Kafka consumer functionality for the health
// ingest topic.
package consumer

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/segmentio/kafka-go"

	"github.com/mannylee/cloudops-command-center/internal/events"
	kafkautil "github.com/mannylee/cloudops-command-center/internal/kafka"
	"github.com/mannylee/cloudops-command-center/internal/normalizer"
)

// Consumer wraps a Kafka reader and resolves raw payloads into typed
// ingestion directives.
type Consumer struct {
	reader *kafka.Reader
	topic  string
}

// NewConsumer creates a new Kafka consumer with the specified brokers, topic
// and group ID. The consumer is configured for at-least-once delivery: the
// caller commits each message only after processing it.
func NewConsumer(brokers string, topic string, groupID string) (*Consumer, error) {
	if err := kafkautil.ValidateConsumerParams(brokers, topic, groupID); err != nil {
		return nil, err
	}

	brokerList := kafkautil.ParseBrokers(brokers)

	slog.Info("Initializing Kafka consumer",
		"brokers", brokerList,
		"topic", topic,
		"group_id", groupID,
	)

	reader := kafka.NewReader(kafkautil.NewReaderConfig(brokerList, topic, groupID))

	return &Consumer{
		reader: reader,
		topic:  topic,
	}, nil
}

// ReadDirective reads the next message and resolves it into a typed
// directive. On a malformed payload the raw message is still returned so the
// caller can commit past it.
func (c *Consumer) ReadDirective(ctx context.Context) (events.Directive, *kafka.Message, error) {
	// FetchMessage, not ReadMessage: with a consumer group, ReadMessage
	// commits the offset at read time, which would break redelivery of
	// failed directives.
	msg, err := c.reader.FetchMessage(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read message from Kafka: %w", err)
	}

	directive, err := normalizer.ParseDirective(msg.Value)
	if err != nil {
		return nil, &msg, fmt.Errorf("failed to resolve directive: %w", err)
	}

	return directive, &msg, nil
}

// CommitMessage commits the offset for the given message. This should be
// called only after the message was fully processed.
func (c *Consumer) CommitMessage(ctx context.Context, msg *kafka.Message) error {
	return c.reader.CommitMessages(ctx, *msg)
}

// Close gracefully closes the Kafka reader and releases resources.
func (c *Consumer) Close() error {
	slog.Info("Closing Kafka consumer", "topic", c.topic)
	if err := c.reader.Close(); err != nil {
		slog.Error("Error closing Kafka consumer", "error", err)
		return err
	}
	slog.Info("Kafka consumer closed successfully")
	return nil
}
