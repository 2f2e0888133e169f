// Package counters maintains the per-account live count of actionable
// events. The count is derived from the store's actionable index set, so
// every increment and decrement applies exactly once per status transition.
package counters

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/mannylee/cloudops-command-center/internal/events"
)

// EventIndex is the slice of the event store the maintainer needs.
type EventIndex interface {
	Remove(ctx context.Context, key events.EventKey) (int, error)
	Accounts(ctx context.Context) ([]string, error)
	ActionableEventIDs(ctx context.Context, accountID string) ([]string, error)
	RebuildAccountIndex(ctx context.Context, accountID string, eventIDs []string) (int64, error)
	ScanEvents(ctx context.Context, fn func(*events.HealthEvent) error) error
	CountActionable(ctx context.Context, accountID string) (int64, error)
}

// Maintainer keeps per-account counters consistent with stored records.
type Maintainer struct {
	index EventIndex
}

// NewMaintainer creates a Maintainer over the given index.
func NewMaintainer(index EventIndex) *Maintainer {
	return &Maintainer{index: index}
}

// Transition describes one observed status change for logging and metrics.
type Transition struct {
	Key         events.EventKey
	PriorStatus string
	NewStatus   string
	Delta       int
}

// ObserveUpsert derives the counter transition from an applied upsert.
func ObserveUpsert(key events.EventKey, priorStatus, newStatus string, indexDelta int) Transition {
	return Transition{
		Key:         key,
		PriorStatus: priorStatus,
		NewStatus:   newStatus,
		Delta:       indexDelta,
	}
}

// HandleRemoval processes an expiry removal. The decrement is applied at
// most once per removal: redelivered removal messages and removals of
// records that were never actionable are no-ops.
func (m *Maintainer) HandleRemoval(ctx context.Context, rm events.StreamRemoval) error {
	delta, err := m.index.Remove(ctx, rm.Key)
	if err != nil {
		return fmt.Errorf("failed to apply removal for %s/%s: %w", rm.Key.EventID, rm.Key.AccountID, err)
	}

	if delta == 0 {
		slog.Debug("Removal already handled or event not actionable",
			"event_id", rm.Key.EventID,
			"account_id", rm.Key.AccountID,
			"prior_status", rm.PriorStatus,
		)
		return nil
	}

	slog.Info("Actionable count decremented for expired event",
		"event_id", rm.Key.EventID,
		"account_id", rm.Key.AccountID,
		"prior_status", rm.PriorStatus,
		"service", rm.Service,
	)
	return nil
}

// Count returns an account's live actionable count.
func (m *Maintainer) Count(ctx context.Context, accountID string) (int64, error) {
	return m.index.CountActionable(ctx, accountID)
}

// Recalculate rebuilds every account's actionable index and counter from a
// full scan of stored records. Accounts with no remaining actionable events
// are reset to zero.
func (m *Maintainer) Recalculate(ctx context.Context) error {
	actionable := make(map[string][]string)
	err := m.index.ScanEvents(ctx, func(ev *events.HealthEvent) error {
		if events.IsActionable(ev.Status) {
			actionable[ev.AccountID] = append(actionable[ev.AccountID], ev.EventID)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to scan events for recalculation: %w", err)
	}

	accounts, err := m.index.Accounts(ctx)
	if err != nil {
		return fmt.Errorf("failed to list accounts for recalculation: %w", err)
	}

	// Known accounts missing from the scan still get rebuilt, to zero.
	seen := make(map[string]bool, len(accounts))
	for _, accountID := range accounts {
		seen[accountID] = true
	}
	for accountID := range actionable {
		if !seen[accountID] {
			accounts = append(accounts, accountID)
		}
	}

	var rebuilt, failed int
	for _, accountID := range accounts {
		count, err := m.index.RebuildAccountIndex(ctx, accountID, actionable[accountID])
		if err != nil {
			failed++
			slog.Error("Failed to rebuild account counter",
				"account_id", accountID,
				"error", err,
			)
			continue
		}
		rebuilt++
		slog.Debug("Account counter rebuilt",
			"account_id", accountID,
			"actionable_count", count,
		)
	}

	slog.Info("Counter recalculation completed",
		"accounts_rebuilt", rebuilt,
		"accounts_failed", failed,
	)
	if failed > 0 {
		return fmt.Errorf("recalculation failed for %d of %d accounts", failed, rebuilt+failed)
	}
	return nil
}
