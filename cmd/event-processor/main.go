package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/mannylee/cloudops-command-center/internal/analysis"
	"github.com/mannylee/cloudops-command-center/internal/config"
	"github.com/mannylee/cloudops-command-center/internal/consumer"
	"github.com/mannylee/cloudops-command-center/internal/counters"
	"github.com/mannylee/cloudops-command-center/internal/metrics"
	"github.com/mannylee/cloudops-command-center/internal/processor"
	"github.com/mannylee/cloudops-command-center/internal/producer"
	"github.com/mannylee/cloudops-command-center/internal/shared"
	"github.com/mannylee/cloudops-command-center/internal/source"
	"github.com/mannylee/cloudops-command-center/internal/store"
	"github.com/mannylee/cloudops-command-center/internal/sweeper"
)

// Model call parameters. The analysis schema is short; a small token budget
// keeps cost and latency bounded.
const (
	modelMaxTokens   = 1500
	modelTemperature = 0.2
)

func main() {
	// Load .env if present; real environments set variables directly
	_ = godotenv.Load()

	// Parse command-line flags with environment variable fallbacks
	cfg := &config.ProcessorConfig{}
	flag.StringVar(&cfg.KafkaBrokers, "kafka-brokers", shared.GetEnvOrDefault("KAFKA_BROKERS", "localhost:9092"), "Kafka broker addresses (comma-separated)")
	flag.StringVar(&cfg.IngestTopic, "ingest-topic", shared.GetEnvOrDefault("INGEST_TOPIC", "health.events.ingest"), "Kafka topic for ingestion directives")
	flag.StringVar(&cfg.ConsumerGroupID, "consumer-group-id", shared.GetEnvOrDefault("CONSUMER_GROUP_ID", "event-processor-group"), "Kafka consumer group ID")
	flag.StringVar(&cfg.RedisAddr, "redis-addr", shared.GetEnvOrDefault("REDIS_ADDR", "localhost:6379"), "Redis server address")
	flag.StringVar(&cfg.SourceAPIURL, "source-api-url", shared.GetEnvOrDefault("SOURCE_API_URL", "http://localhost:8480"), "Provider health API base URL")
	flag.StringVar(&cfg.SourceAPIToken, "source-api-token", shared.GetEnvOrDefault("SOURCE_API_TOKEN", ""), "Provider health API bearer token")
	flag.StringVar(&cfg.ModelEndpoint, "model-endpoint", shared.GetEnvOrDefault("MODEL_ENDPOINT", "http://localhost:8580/invoke"), "Reasoning model endpoint URL")
	flag.StringVar(&cfg.ModelID, "model-id", shared.GetEnvOrDefault("MODEL_ID", "anthropic.claude-3-haiku-20240307-v1:0"), "Reasoning model identifier")
	flag.IntVar(&cfg.RetentionDays, "retention-days", envInt("RETENTION_DAYS", store.DefaultRetentionDays), "Event record retention in days")
	flag.IntVar(&cfg.SweepConcurrency, "sweep-concurrency", envInt("SWEEP_CONCURRENCY", sweeper.DefaultConcurrency), "Parallel enrichment limit during sweeps")
	flag.IntVar(&cfg.FanOutThreshold, "fan-out-threshold", envInt("FAN_OUT_THRESHOLD", sweeper.DefaultFanOutThreshold), "Account count above which sweep units are republished")
	flag.StringVar(&cfg.MetricsAddr, "metrics-addr", shared.GetEnvOrDefault("METRICS_ADDR", ":9090"), "Prometheus metrics listen address")
	flag.Parse()

	// Set up structured logging
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	})))

	slog.Info("Starting event-processor service",
		"kafka_brokers", cfg.KafkaBrokers,
		"ingest_topic", cfg.IngestTopic,
		"consumer_group_id", cfg.ConsumerGroupID,
		"redis_addr", cfg.RedisAddr,
		"source_api_url", cfg.SourceAPIURL,
		"model_endpoint", shared.MaskEndpoint(cfg.ModelEndpoint),
		"model_id", cfg.ModelID,
		"retention_days", cfg.RetentionDays,
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
	metricsCollector := metrics.NewCollector("event-processor", redisClient)
	metricsCollector.Start(ctx)
	defer metricsCollector.Stop()
	go metrics.ServeHTTP(ctx, cfg.MetricsAddr)

	// Initialize event store and counter maintainer
	eventStore := store.New(redisClient, cfg.RetentionDays)
	counterMaintainer := counters.NewMaintainer(eventStore)

	// Initialize source API and model clients
	sourceClient := source.NewHTTPClient(cfg.SourceAPIURL, cfg.SourceAPIToken)
	modelClient := analysis.NewHTTPModelClient(cfg.ModelEndpoint, cfg.ModelID)
	analyzer := analysis.NewAnalyzer(modelClient, modelMaxTokens, modelTemperature)

	// Initialize Kafka consumer
	slog.Info("Connecting to Kafka consumer", "topic", cfg.IngestTopic)
	kafkaConsumer, err := consumer.NewConsumer(cfg.KafkaBrokers, cfg.IngestTopic, cfg.ConsumerGroupID)
	if err != nil {
		slog.Error("Failed to create Kafka consumer", "error", err)
		slog.Info("Tip: Start Kafka with 'docker compose up -d kafka'")
		os.Exit(1)
	}
	defer kafkaConsumer.Close()
	slog.Info("Successfully connected to Kafka consumer")

	// Initialize Kafka producer for sweep fan-out, writing back to the
	// ingest topic
	kafkaProducer, err := producer.NewProducer(cfg.KafkaBrokers, cfg.IngestTopic)
	if err != nil {
		slog.Error("Failed to create Kafka producer", "error", err)
		os.Exit(1)
	}
	defer kafkaProducer.Close()

	// Initialize processor and sweeper
	proc := processor.NewProcessorWithMetrics(kafkaConsumer, eventStore, analyzer, counterMaintainer, metricsCollector)
	sweep := sweeper.New(sourceClient, proc, kafkaProducer, cfg.SweepConcurrency, cfg.FanOutThreshold)
	proc.SetSweepHandler(sweep)

	// Main processing loop
	if err := proc.Run(ctx); err != nil {
		slog.Error("Directive processing failed", "error", err)
		os.Exit(1)
	}

	slog.Info("Event-processor service stopped")
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
