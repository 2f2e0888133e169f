package metrics

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Prometheus counters shared by all collectors in a process, labeled by
// service name.
var (
	receivedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "healthops_messages_received_total",
		Help: "Messages read from the queue.",
	}, []string{"service"})

	processedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "healthops_messages_processed_total",
		Help: "Messages fully processed and committed.",
	}, []string{"service"})

	errorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "healthops_processing_errors_total",
		Help: "Messages that failed processing.",
	}, []string{"service"})

	processingSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "healthops_processing_duration_seconds",
		Help:    "Per-message processing latency.",
		Buckets: prometheus.DefBuckets,
	}, []string{"service"})

	customTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "healthops_custom_total",
		Help: "Service-specific counters.",
	}, []string{"service", "counter"})
)

// ServeHTTP runs the Prometheus scrape endpoint until the context is
// cancelled. It is intended to be started as a goroutine from main.
func ServeHTTP(ctx context.Context, addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	server := &http.Server{Addr: addr, Handler: mux}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	slog.Info("Metrics endpoint listening", "addr", addr)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("Metrics endpoint failed", "error", err)
	}
}
