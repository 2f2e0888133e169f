package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/mannylee/cloudops-command-center/internal/config"
	"github.com/mannylee/cloudops-command-center/internal/dispatcher"
	"github.com/mannylee/cloudops-command-center/internal/metrics"
	"github.com/mannylee/cloudops-command-center/internal/producer"
	"github.com/mannylee/cloudops-command-center/internal/shared"
	"github.com/mannylee/cloudops-command-center/internal/source"
	"github.com/mannylee/cloudops-command-center/internal/store"
)

func main() {
	// Load .env if present; real environments set variables directly
	_ = godotenv.Load()

	// Parse command-line flags with environment variable fallbacks
	cfg := &config.DispatcherConfig{}
	flag.StringVar(&cfg.KafkaBrokers, "kafka-brokers", shared.GetEnvOrDefault("KAFKA_BROKERS", "localhost:9092"), "Kafka broker addresses (comma-separated)")
	flag.StringVar(&cfg.WorkTopic, "work-topic", shared.GetEnvOrDefault("WORK_TOPIC", "health.notifications.work"), "Kafka topic for notification work items")
	flag.StringVar(&cfg.RedisAddr, "redis-addr", shared.GetEnvOrDefault("REDIS_ADDR", "localhost:6379"), "Redis server address")
	flag.StringVar(&cfg.SourceAPIURL, "source-api-url", shared.GetEnvOrDefault("SOURCE_API_URL", "http://localhost:8480"), "Provider health API base URL")
	flag.StringVar(&cfg.SourceAPIToken, "source-api-token", shared.GetEnvOrDefault("SOURCE_API_TOKEN", ""), "Provider health API bearer token")
	flag.DurationVar(&cfg.DispatchInterval, "dispatch-interval", envDuration("DISPATCH_INTERVAL", time.Hour), "Interval between dispatch cycles")
	flag.IntVar(&cfg.MaxMessageBytes, "max-message-bytes", envInt("MAX_MESSAGE_BYTES", dispatcher.DefaultMaxMessageBytes), "Serialized work item size ceiling")
	flag.StringVar(&cfg.MetricsAddr, "metrics-addr", shared.GetEnvOrDefault("METRICS_ADDR", ":9091"), "Prometheus metrics listen address")
	flag.Parse()

	// Set up structured logging
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	})))

	slog.Info("Starting email-dispatcher service",
		"kafka_brokers", cfg.KafkaBrokers,
		"work_topic", cfg.WorkTopic,
		"redis_addr", cfg.RedisAddr,
		"source_api_url", cfg.SourceAPIURL,
		"dispatch_interval", cfg.DispatchInterval,
		"max_message_bytes", cfg.MaxMessageBytes,
	)

	if err := cfg.Validate(); err != nil {
		slog.Error("Invalid configuration", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		slog.Info("Received shutdown signal, shutting down gracefully...")
		cancel()
	}()

	// Initialize Redis client
	slog.Info("Connecting to Redis", "addr", cfg.RedisAddr)
	redisClient, err := shared.ConnectRedis(ctx, cfg.RedisAddr)
	if err != nil {
		slog.Error("Failed to connect to Redis", "error", err)
		slog.Info("Tip: Start Redis with 'docker compose up -d redis'")
		os.Exit(1)
	}
	defer redisClient.Close()
	slog.Info("Successfully connected to Redis")

	// Initialize metrics collector and scrape endpoint
	metricsCollector := metrics.NewCollector("email-dispatcher", redisClient)
	metricsCollector.Start(ctx)
	defer metricsCollector.Stop()
	go metrics.ServeHTTP(ctx, cfg.MetricsAddr)

	// Initialize Kafka producer for work items
	slog.Info("Connecting to Kafka producer", "topic", cfg.WorkTopic)
	kafkaProducer, err := producer.NewProducer(cfg.KafkaBrokers, cfg.WorkTopic)
	if err != nil {
		slog.Error("Failed to create Kafka producer", "error", err)
		slog.Info("Tip: Start Kafka with 'docker compose up -d kafka'")
		os.Exit(1)
	}
	defer kafkaProducer.Close()
	slog.Info("Successfully connected to Kafka producer")

	// Initialize dispatcher over the event store index, custom mappings and
	// the organization directory
	eventStore := store.New(redisClient, store.DefaultRetentionDays)
	mappingStore := dispatcher.NewRedisMappingStore(redisClient)
	sourceClient := source.NewHTTPClient(cfg.SourceAPIURL, cfg.SourceAPIToken)
	disp := dispatcher.New(eventStore, mappingStore, sourceClient, kafkaProducer, cfg.MaxMessageBytes)

	// Dispatch immediately on startup, then on the configured interval
	runCycle(ctx, disp, metricsCollector)

	ticker := time.NewTicker(cfg.DispatchInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			slog.Info("Email-dispatcher service stopped")
			return
		case <-ticker.C:
			runCycle(ctx, disp, metricsCollector)
		}
	}
}

// runCycle executes one dispatch cycle and records its outcome.
func runCycle(ctx context.Context, disp *dispatcher.Dispatcher, collector *metrics.Collector) {
	startTime := time.Now()
	collector.RecordReceived()
	if err := disp.Run(ctx); err != nil {
		collector.RecordError()
		slog.Error("Dispatch cycle failed", "error", err)
		return
	}
	collector.RecordProcessed(time.Since(startTime))
}

// envInt returns an integer environment variable value or a default.
func envInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

// envDuration returns a duration environment variable value or a default.
func envDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
