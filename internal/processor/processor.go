package processor

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/mannylee/cloudops-command-center/internal/analysis"
	"github.com/mannylee/cloudops-command-center/internal/events"
)

// eventProcessTimeout bounds one unit of pipeline work, model call included.
const eventProcessTimeout = 2 * time.Minute

// Processor dispatches ingestion directives and runs the shared event
// pipeline: cache gate, enrichment, store write, counter accounting.
type Processor struct {
	reader   DirectiveReader
	store    EventStore
	enricher Enricher
	counters CounterMaintainer
	sweeper  SweepHandler
	metrics  MetricsRecorder
}

// NewProcessor creates a processor with no-op metrics. The sweep handler is
// attached separately because the bulk paths feed events back through the
// processor.
func NewProcessor(reader DirectiveReader, store EventStore, enricher Enricher, counters CounterMaintainer) *Processor {
	return &Processor{
		reader:   reader,
		store:    store,
		enricher: enricher,
		counters: counters,
		metrics:  &NoOpMetrics{},
	}
}

// NewProcessorWithMetrics creates a processor with the provided metrics
// recorder. If m is nil, a no-op implementation is used.
func NewProcessorWithMetrics(reader DirectiveReader, store EventStore, enricher Enricher, counters CounterMaintainer, m MetricsRecorder) *Processor {
	if m == nil {
		m = &NoOpMetrics{}
	}
	p := NewProcessor(reader, store, enricher, counters)
	p.metrics = m
	return p
}

// SetSweepHandler attaches the handler for the bulk ingestion directives.
func (p *Processor) SetSweepHandler(h SweepHandler) {
	p.sweeper = h
}

// Run continuously reads directives from the queue and dispatches them.
// Offsets are committed only after successful processing, so a crash before
// commit redelivers the message (at-least-once). Malformed payloads are
// logged and committed past: redelivering them can never succeed.
func (p *Processor) Run(ctx context.Context) error {
	slog.Info("Starting directive processing loop")

	for {
		select {
		case <-ctx.Done():
			slog.Info("Directive processing loop stopped")
			return nil
		default:
			directive, msg, err := p.reader.ReadDirective(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return nil
				}
				if msg != nil {
					// Resolved to no known shape: skip the message
					p.metrics.IncrementCustom(metricMalformedPayloads)
					slog.Warn("Skipping malformed payload", "error", err)
					if commitErr := p.reader.CommitMessage(ctx, msg); commitErr != nil {
						slog.Error("Failed to commit past malformed payload", "error", commitErr)
					}
					continue
				}
				slog.Error("Failed to read directive", "error", err)
				continue
			}

			p.metrics.RecordReceived()

			if err := p.Dispatch(ctx, directive); err != nil {
				p.metrics.RecordError()
				slog.Error("Failed to process directive",
					"mode", directive.Mode(),
					"error", err,
				)
				// No commit: the message redelivers
				continue
			}

			if err := p.reader.CommitMessage(ctx, msg); err != nil {
				slog.Error("Failed to commit offset",
					"mode", directive.Mode(),
					"error", err,
				)
				// Continue processing - offset will be committed on next interval or retry
			}
		}
	}
}

// Dispatch routes one resolved directive to its handler.
func (p *Processor) Dispatch(ctx context.Context, directive events.Directive) error {
	switch d := directive.(type) {
	case events.PushEvent:
		return p.ProcessEvent(ctx, d.Event, d.Force)
	case events.StreamRemoval:
		return p.counters.HandleRemoval(ctx, d)
	case events.ScheduledSync:
		if p.sweeper == nil {
			return fmt.Errorf("no sweep handler attached for mode %q", directive.Mode())
		}
		return p.sweeper.HandleScheduledSync(ctx, d)
	case events.Backfill:
		if p.sweeper == nil {
			return fmt.Errorf("no sweep handler attached for mode %q", directive.Mode())
		}
		return p.sweeper.HandleBackfill(ctx, d)
	case events.SingleEvent:
		if p.sweeper == nil {
			return fmt.Errorf("no sweep handler attached for mode %q", directive.Mode())
		}
		return p.sweeper.HandleSingleEvent(ctx, d)
	case events.RecalculateCounts:
		return p.counters.Recalculate(ctx)
	default:
		return fmt.Errorf("unsupported directive mode %q", directive.Mode())
	}
}

// ProcessEvent runs one normalized event through the shared pipeline. Every
// ingestion path converges here, so gating, write ordering and counter
// accounting behave identically regardless of how an event arrived.
func (p *Processor) ProcessEvent(ctx context.Context, ev events.HealthEvent, force bool) error {
	startTime := time.Now()

	ctx, cancel := context.WithTimeout(ctx, eventProcessTimeout)
	defer cancel()

	existing, err := p.store.Get(ctx, ev.Key())
	if err != nil {
		p.metrics.RecordError()
		return fmt.Errorf("failed to load existing record: %w", err)
	}

	decision := analysis.Decide(existing, force)
	if decision == analysis.SkipAnalysis {
		ev.Analysis = existing.Analysis
		p.metrics.IncrementCustom(metricAnalysisCacheHits)
	} else {
		ev.Analysis = p.enricher.Analyze(ctx, &ev)
		p.metrics.IncrementCustom(metricAnalysisRuns)
		if ev.Analysis != nil && ev.Analysis.Failed {
			p.metrics.IncrementCustom(metricAnalysisFallbacks)
		}
	}

	// A status-only update must not blank fields the prior record carried
	if existing != nil {
		if ev.Description == "" {
			ev.Description = existing.Description
		}
		if ev.AccountName == "" {
			ev.AccountName = existing.AccountName
		}
		if len(ev.AffectedResources) == 0 {
			ev.AffectedResources = existing.AffectedResources
		}
		if ev.StartTime.IsZero() {
			ev.StartTime = existing.StartTime
		}
	}
	if ev.SimplifiedDesc == "" {
		ev.SimplifiedDesc = analysis.SimplifyDescription(ev.Service, ev.EventTypeCode)
	}

	result, err := p.store.Upsert(ctx, &ev)
	if err != nil {
		p.metrics.RecordError()
		return fmt.Errorf("failed to write record: %w", err)
	}

	if !result.Applied {
		p.metrics.IncrementCustom(metricStaleWrites)
		slog.Debug("Stale write rejected",
			"event_id", ev.EventID,
			"account_id", ev.AccountID,
			"status", ev.Status,
			"stored_status", result.PriorStatus,
		)
		return nil
	}

	switch {
	case result.IndexDelta > 0:
		p.metrics.IncrementCustom(metricCounterIncrements)
	case result.IndexDelta < 0:
		p.metrics.IncrementCustom(metricCounterDecrements)
	}

	slog.Info("Event processed",
		"event_id", ev.EventID,
		"account_id", ev.AccountID,
		"status", ev.Status,
		"prior_status", result.PriorStatus,
		"counter_delta", result.IndexDelta,
		"analysis_cached", decision == analysis.SkipAnalysis,
	)

	p.metrics.RecordProcessed(time.Since(startTime))
	return nil
}
