// Package source provides the client for the provider health and
// organizations APIs that the sweeper and dispatcher read from.
package source

import (
	"context"
	"time"
)

// EventSummary is one event as returned by the provider list endpoint.
type EventSummary struct {
	EventID        string    `json:"event_id"`
	EventTypeCode  string    `json:"event_type_code"`
	Category       string    `json:"category"`
	Service        string    `json:"service"`
	Region         string    `json:"region"`
	Status         string    `json:"status"`
	StartTime      time.Time `json:"start_time"`
	LastUpdateTime time.Time `json:"last_update_time"`
}

// EventDetail extends a summary with the full event description.
type EventDetail struct {
	EventSummary
	Description string `json:"description"`
}

// Account is one entry from the organization directory.
type Account struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

// API is the read surface of the provider health and organizations APIs.
type API interface {
	// ListEvents returns all events whose last update falls inside the
	// window. Implementations follow pagination to exhaustion.
	ListEvents(ctx context.Context, start, end time.Time) ([]EventSummary, error)
	// GetEventDetail returns the full detail of one event, or nil when the
	// provider no longer knows the event.
	GetEventDetail(ctx context.Context, eventID string) (*EventDetail, error)
	// ListAffectedAccounts returns the account IDs affected by an event.
	ListAffectedAccounts(ctx context.Context, eventID string) ([]string, error)
	// ListAffectedEntities returns the resource identifiers affected for
	// one account.
	ListAffectedEntities(ctx context.Context, eventID, accountID string) ([]string, error)
	// ListOrgAccounts returns the organization account directory.
	ListOrgAccounts(ctx context.Context) ([]Account, error)
}
