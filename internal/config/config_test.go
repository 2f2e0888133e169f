package config

import (
	"testing"
	"time"
)

func validProcessorConfig() ProcessorConfig {
	return ProcessorConfig{
		KafkaBrokers:     "localhost:9092",
		IngestTopic:      "health.events.ingest",
		ConsumerGroupID:  "event-processor-group",
		RedisAddr:        "localhost:6379",
		SourceAPIURL:     "https://health.example.com",
		SourceAPIToken:   "token",
		ModelEndpoint:    "https://bedrock.example.com",
		ModelID:          "anthropic.claude-3-haiku-20240307-v1:0",
		RetentionDays:    90,
		SweepConcurrency: 4,
		FanOutThreshold:  50,
		MetricsAddr:      ":9090",
	}
}

func TestProcessorConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*ProcessorConfig)
		wantErr bool
		errMsg  string
	}{
		{
			name:    "valid config",
			mutate:  func(c *ProcessorConfig) {},
			wantErr: false,
		},
		{
			name:    "empty kafka brokers",
			mutate:  func(c *ProcessorConfig) { c.KafkaBrokers = "" },
			wantErr: true,
			errMsg:  "kafka-brokers cannot be empty",
		},
		{
			name:    "empty ingest topic",
			mutate:  func(c *ProcessorConfig) { c.IngestTopic = "" },
			wantErr: true,
			errMsg:  "ingest-topic cannot be empty",
		},
		{
			name:    "empty consumer group id",
			mutate:  func(c *ProcessorConfig) { c.ConsumerGroupID = "" },
			wantErr: true,
			errMsg:  "consumer-group-id cannot be empty",
		},
		{
			name:    "empty redis addr",
			mutate:  func(c *ProcessorConfig) { c.RedisAddr = "" },
			wantErr: true,
			errMsg:  "redis-addr cannot be empty",
		},
		{
			name:    "empty source api url",
			mutate:  func(c *ProcessorConfig) { c.SourceAPIURL = "" },
			wantErr: true,
			errMsg:  "source-api-url cannot be empty",
		},
		{
			name:    "empty model endpoint",
			mutate:  func(c *ProcessorConfig) { c.ModelEndpoint = "" },
			wantErr: true,
			errMsg:  "model-endpoint cannot be empty",
		},
		{
			name:    "zero retention days",
			mutate:  func(c *ProcessorConfig) { c.RetentionDays = 0 },
			wantErr: true,
			errMsg:  "retention-days must be > 0",
		},
		{
			name:    "negative sweep concurrency",
			mutate:  func(c *ProcessorConfig) { c.SweepConcurrency = -1 },
			wantErr: true,
			errMsg:  "sweep-concurrency must be > 0",
		},
		{
			name:    "zero fan out threshold",
			mutate:  func(c *ProcessorConfig) { c.FanOutThreshold = 0 },
			wantErr: true,
			errMsg:  "fan-out-threshold must be > 0",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := validProcessorConfig()
			tt.mutate(&config)
			err := config.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("ProcessorConfig.Validate() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if tt.wantErr && err != nil && tt.errMsg != "" {
				if err.Error() != tt.errMsg {
					t.Errorf("ProcessorConfig.Validate() error = %v, want error message %v", err.Error(), tt.errMsg)
				}
			}
		})
	}
}

func validDispatcherConfig() DispatcherConfig {
	return DispatcherConfig{
		KafkaBrokers:     "localhost:9092",
		WorkTopic:        "health.notifications.work",
		RedisAddr:        "localhost:6379",
		SourceAPIURL:     "https://health.example.com",
		SourceAPIToken:   "token",
		DispatchInterval: time.Hour,
		MaxMessageBytes:  256 * 1024,
		MetricsAddr:      ":9091",
	}
}

func TestDispatcherConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*DispatcherConfig)
		wantErr bool
		errMsg  string
	}{
		{
			name:    "valid config",
			mutate:  func(c *DispatcherConfig) {},
			wantErr: false,
		},
		{
			name:    "empty kafka brokers",
			mutate:  func(c *DispatcherConfig) { c.KafkaBrokers = "" },
			wantErr: true,
			errMsg:  "kafka-brokers cannot be empty",
		},
		{
			name:    "empty work topic",
			mutate:  func(c *DispatcherConfig) { c.WorkTopic = "" },
			wantErr: true,
			errMsg:  "work-topic cannot be empty",
		},
		{
			name:    "empty redis addr",
			mutate:  func(c *DispatcherConfig) { c.RedisAddr = "" },
			wantErr: true,
			errMsg:  "redis-addr cannot be empty",
		},
		{
			name:    "empty source api url",
			mutate:  func(c *DispatcherConfig) { c.SourceAPIURL = "" },
			wantErr: true,
			errMsg:  "source-api-url cannot be empty",
		},
		{
			name:    "zero dispatch interval",
			mutate:  func(c *DispatcherConfig) { c.DispatchInterval = 0 },
			wantErr: true,
			errMsg:  "dispatch-interval must be > 0",
		},
		{
			name:    "zero max message bytes",
			mutate:  func(c *DispatcherConfig) { c.MaxMessageBytes = 0 },
			wantErr: true,
			errMsg:  "max-message-bytes must be > 0",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := validDispatcherConfig()
			tt.mutate(&config)
			err := config.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("DispatcherConfig.Validate() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if tt.wantErr && err != nil && tt.errMsg != "" {
				if err.Error() != tt.errMsg {
					t.Errorf("DispatcherConfig.Validate() error = %v, want error message %v", err.Error(), tt.errMsg)
				}
			}
		})
	}
}
