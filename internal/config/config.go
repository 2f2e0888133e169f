// Package config provides configuration parsing and validation for the
// pipeline services.
package config

import (
	"fmt"
	"time"
)

// ProcessorConfig holds all configuration parameters for the event-processor
// service.
type ProcessorConfig struct {
	KafkaBrokers    string
	IngestTopic     string
	ConsumerGroupID string
	RedisAddr       string

	SourceAPIURL   string
	SourceAPIToken string

	ModelEndpoint string
	ModelID       string

	RetentionDays    int
	SweepConcurrency int
	FanOutThreshold  int

	MetricsAddr string
}

// Validate checks that all required configuration fields are set and have
// valid values. Returns an error if validation fails, nil otherwise.
func (c *ProcessorConfig) Validate() error {
	if c.KafkaBrokers == "" {
		return fmt.Errorf("kafka-brokers cannot be empty")
	}
	if c.IngestTopic == "" {
		return fmt.Errorf("ingest-topic cannot be empty")
	}
	if c.ConsumerGroupID == "" {
		return fmt.Errorf("consumer-group-id cannot be empty")
	}
	if c.RedisAddr == "" {
		return fmt.Errorf("redis-addr cannot be empty")
	}
	if c.SourceAPIURL == "" {
		return fmt.Errorf("source-api-url cannot be empty")
	}
	if c.ModelEndpoint == "" {
		return fmt.Errorf("model-endpoint cannot be empty")
	}
	if c.RetentionDays <= 0 {
		return fmt.Errorf("retention-days must be > 0")
	}
	if c.SweepConcurrency <= 0 {
		return fmt.Errorf("sweep-concurrency must be > 0")
	}
	if c.FanOutThreshold <= 0 {
		return fmt.Errorf("fan-out-threshold must be > 0")
	}
	return nil
}

// DispatcherConfig holds all configuration parameters for the
// email-dispatcher service.
type DispatcherConfig struct {
	KafkaBrokers string
	WorkTopic    string
	RedisAddr    string

	SourceAPIURL   string
	SourceAPIToken string

	DispatchInterval time.Duration
	MaxMessageBytes  int

	MetricsAddr string
}

// Validate checks that all required configuration fields are set and have
// valid values. Returns an error if validation fails, nil otherwise.
func (c *DispatcherConfig) Validate() error {
	if c.KafkaBrokers == "" {
		return fmt.Errorf("kafka-brokers cannot be empty")
	}
	if c.WorkTopic == "" {
		return fmt.Errorf("work-topic cannot be empty")
	}
	if c.RedisAddr == "" {
		return fmt.Errorf("redis-addr cannot be empty")
	}
	if c.SourceAPIURL == "" {
		return fmt.Errorf("source-api-url cannot be empty")
	}
	if c.DispatchInterval <= 0 {
		return fmt.Errorf("dispatch-interval must be > 0")
	}
	if c.MaxMessageBytes <= 0 {
		return fmt.Errorf("max-message-bytes must be > 0")
	}
	return nil
}
