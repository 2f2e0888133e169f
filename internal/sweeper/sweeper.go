// Package sweeper runs the bulk ingestion paths: scheduled reconciliation
// sweeps, operator backfills and single-event repair. Each discovered
// (event, account) unit goes through the same pipeline as a pushed event, so
// the cache gate decides whether enrichment actually runs.
package sweeper

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/mannylee/cloudops-command-center/internal/events"
	"github.com/mannylee/cloudops-command-center/internal/normalizer"
	"github.com/mannylee/cloudops-command-center/internal/source"
)

const (
	// DefaultConcurrency bounds parallel enrichment during a sweep.
	DefaultConcurrency = 4
	// DefaultFanOutThreshold is the per-event account count above which
	// units are republished to the ingest topic instead of processed
	// inline.
	DefaultFanOutThreshold = 50
)

// Pipeline is the shared per-event processing entry point.
type Pipeline interface {
	ProcessEvent(ctx context.Context, ev events.HealthEvent, force bool) error
}

// Publisher fans units back onto the ingest topic for parallel processing.
type Publisher interface {
	PublishIngest(ctx context.Context, ev events.HealthEvent, force bool) error
}

// Sweeper discovers events from the source API and routes them through the
// pipeline.
type Sweeper struct {
	api             source.API
	pipeline        Pipeline
	publisher       Publisher
	concurrency     int
	fanOutThreshold int
}

// New creates a Sweeper. A nil publisher disables fan-out: every unit is
// processed inline.
func New(api source.API, pipeline Pipeline, publisher Publisher, concurrency, fanOutThreshold int) *Sweeper {
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}
	if fanOutThreshold <= 0 {
		fanOutThreshold = DefaultFanOutThreshold
	}
	return &Sweeper{
		api:             api,
		pipeline:        pipeline,
		publisher:       publisher,
		concurrency:     concurrency,
		fanOutThreshold: fanOutThreshold,
	}
}

// HandleScheduledSync reconciles the store against the provider over the
// lookback window. Events that closed without a push notification are
// re-listed here and their stored status updated.
func (s *Sweeper) HandleScheduledSync(ctx context.Context, d events.ScheduledSync) error {
	end := time.Now().UTC()
	start := end.AddDate(0, 0, -d.LookbackDays)
	slog.Info("Starting scheduled sync",
		"lookback_days", d.LookbackDays,
		"window_start", start,
		"window_end", end,
	)
	return s.sweep(ctx, start, end)
}

// HandleBackfill processes an explicit historical window.
func (s *Sweeper) HandleBackfill(ctx context.Context, d events.Backfill) error {
	slog.Info("Starting backfill",
		"window_start", d.StartTime,
		"window_end", d.EndTime,
	)
	return s.sweep(ctx, d.StartTime, d.EndTime)
}

// HandleSingleEvent repairs one event by identifier, forcing re-analysis for
// every affected account.
func (s *Sweeper) HandleSingleEvent(ctx context.Context, d events.SingleEvent) error {
	detail, err := s.api.GetEventDetail(ctx, d.EventID)
	if err != nil {
		return fmt.Errorf("failed to fetch event %s: %w", d.EventID, err)
	}
	if detail == nil {
		slog.Warn("Event no longer known to the provider, nothing to repair", "event_id", d.EventID)
		return nil
	}

	units, err := s.expand(ctx, detail)
	if err != nil {
		return err
	}
	if len(units) == 0 {
		slog.Warn("Event has no affected accounts", "event_id", d.EventID)
		return nil
	}

	failed := s.processInline(ctx, units, true)
	slog.Info("Single event repair completed",
		"event_id", d.EventID,
		"accounts", len(units),
		"failed", failed,
	)
	if failed > 0 {
		return fmt.Errorf("repair failed for %d of %d accounts", failed, len(units))
	}
	return nil
}

// sweep lists the window and processes every discovered unit. Per-unit
// failures are logged and skipped so one bad event cannot abort a sweep; the
// sweep itself fails only when the listing does.
func (s *Sweeper) sweep(ctx context.Context, start, end time.Time) error {
	summaries, err := s.api.ListEvents(ctx, start, end)
	if err != nil {
		return fmt.Errorf("failed to list events for window: %w", err)
	}
	if len(summaries) == 0 {
		slog.Info("No events found in window", "window_start", start, "window_end", end)
		return nil
	}

	var processed, fannedOut, failed int
	for _, summary := range summaries {
		detail, err := s.api.GetEventDetail(ctx, summary.EventID)
		if err != nil {
			failed++
			slog.Error("Failed to fetch event detail", "event_id", summary.EventID, "error", err)
			continue
		}
		if detail == nil {
			// Listed but already gone from the detail endpoint
			continue
		}

		units, err := s.expand(ctx, detail)
		if err != nil {
			failed++
			slog.Error("Failed to expand event", "event_id", summary.EventID, "error", err)
			continue
		}

		if s.publisher != nil && len(units) > s.fanOutThreshold {
			for _, unit := range units {
				if err := s.publisher.PublishIngest(ctx, unit, false); err != nil {
					failed++
					slog.Error("Failed to fan out unit",
						"event_id", unit.EventID,
						"account_id", unit.AccountID,
						"error", err,
					)
					continue
				}
				fannedOut++
			}
			continue
		}

		failed += s.processInline(ctx, units, false)
		processed += len(units)
	}

	slog.Info("Sweep completed",
		"events", len(summaries),
		"units_processed", processed,
		"units_fanned_out", fannedOut,
		"failed", failed,
	)
	return nil
}

// expand turns one event into its per-account processing units.
func (s *Sweeper) expand(ctx context.Context, detail *source.EventDetail) ([]events.HealthEvent, error) {
	accounts, err := s.api.ListAffectedAccounts(ctx, detail.EventID)
	if err != nil {
		return nil, fmt.Errorf("failed to list affected accounts for event %s: %w", detail.EventID, err)
	}
	if len(accounts) == 0 {
		// Public events affect no specific account; record them once under
		// the event's own scope
		accounts = []string{"public"}
	}

	units := make([]events.HealthEvent, 0, len(accounts))
	for _, accountID := range accounts {
		entities, err := s.api.ListAffectedEntities(ctx, detail.EventID, accountID)
		if err != nil {
			slog.Warn("Failed to list affected entities",
				"event_id", detail.EventID,
				"account_id", accountID,
				"error", err,
			)
			entities = nil
		}
		units = append(units, buildUnit(detail, accountID, entities))
	}
	return units, nil
}

// processInline runs units through the pipeline with bounded concurrency.
// Returns the number of failed units.
func (s *Sweeper) processInline(ctx context.Context, units []events.HealthEvent, force bool) int {
	var failed atomic.Int64

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for _, unit := range units {
		unit := unit
		g.Go(func() error {
			if err := s.pipeline.ProcessEvent(gctx, unit, force); err != nil {
				failed.Add(1)
				slog.Error("Failed to process unit",
					"event_id", unit.EventID,
					"account_id", unit.AccountID,
					"error", err,
				)
			}
			// Unit failures never cancel siblings
			return nil
		})
	}
	_ = g.Wait()

	return int(failed.Load())
}

func buildUnit(detail *source.EventDetail, accountID string, entities []string) events.HealthEvent {
	lastUpdate := detail.LastUpdateTime
	if lastUpdate.IsZero() {
		lastUpdate = time.Now().UTC()
	}
	return events.HealthEvent{
		EventID:           detail.EventID,
		AccountID:         accountID,
		EventTypeCode:     detail.EventTypeCode,
		Category:          detail.Category,
		Service:           detail.Service,
		Region:            normalizer.NormalizeRegion(detail.Region),
		Status:            normalizer.NormalizeStatus(detail.Status),
		StartTime:         detail.StartTime,
		LastUpdateTime:    lastUpdate,
		Description:       detail.Description,
		AffectedResources: entities,
	}
}
