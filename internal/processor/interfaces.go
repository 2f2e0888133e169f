// Package processor orchestrates health event processing: directive
// dispatch, enrichment gating, store writes and counter accounting.
package processor

import (
	"context"

	"github.com/segmentio/kafka-go"

	"github.com/mannylee/cloudops-command-center/internal/events"
	"github.com/mannylee/cloudops-command-center/internal/store"
)

// DirectiveReader reads ingestion directives from a message queue.
type DirectiveReader interface {
	// ReadDirective reads the next message and returns the resolved
	// directive. The raw message is returned for offset tracking, and is
	// non-nil even when resolution fails.
	ReadDirective(ctx context.Context) (events.Directive, *kafka.Message, error)

	// CommitMessage commits the offset for the given message.
	CommitMessage(ctx context.Context, msg *kafka.Message) error

	// Close closes the reader and releases resources.
	Close() error
}

// EventStore persists canonical event records.
type EventStore interface {
	// Get loads one record, or nil when it does not exist.
	Get(ctx context.Context, key events.EventKey) (*events.HealthEvent, error)

	// Upsert writes a record with last-writer-wins ordering and reports the
	// atomically observed prior state.
	Upsert(ctx context.Context, ev *events.HealthEvent) (store.UpsertResult, error)
}

// Enricher produces the analysis attached to an event record. It never
// fails: on model exhaustion it returns a fallback analysis carrying the
// failure marker.
type Enricher interface {
	Analyze(ctx context.Context, ev *events.HealthEvent) *events.Analysis
}

// CounterMaintainer keeps per-account actionable counters consistent.
type CounterMaintainer interface {
	// HandleRemoval applies an expiry removal, decrementing at most once.
	HandleRemoval(ctx context.Context, rm events.StreamRemoval) error

	// Recalculate rebuilds all counters from stored records.
	Recalculate(ctx context.Context) error
}

// SweepHandler runs the bulk ingestion paths.
type SweepHandler interface {
	HandleScheduledSync(ctx context.Context, d events.ScheduledSync) error
	HandleBackfill(ctx context.Context, d events.Backfill) error
	HandleSingleEvent(ctx context.Context, d events.SingleEvent) error
}
