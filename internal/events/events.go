// Package events defines the canonical health event record and the ingestion
// directive types shared by all processing paths.
package events

import "time"

// Event status codes reported by the provider health API.
const (
	StatusOpen      = "open"
	StatusUpcoming  = "upcoming"
	StatusScheduled = "scheduled"
	StatusClosed    = "closed"
	StatusUnknown   = "unknown"
)

// Event type categories reported by the provider health API.
const (
	CategoryIssue               = "issue"
	CategoryScheduledChange     = "scheduledChange"
	CategoryAccountNotification = "accountNotification"
)

// Risk levels assigned by enrichment analysis.
const (
	RiskLow      = "LOW"
	RiskMedium   = "MEDIUM"
	RiskHigh     = "HIGH"
	RiskCritical = "CRITICAL"
)

// AnalysisVersion is the current enrichment schema version. Stored analyses
// with a different version are considered stale and recomputed.
const AnalysisVersion = "1.0"

// IsActionable reports whether a status contributes to the per-account live
// counter. Actionable statuses are open, upcoming and scheduled.
func IsActionable(status string) bool {
	switch status {
	case StatusOpen, StatusUpcoming, StatusScheduled:
		return true
	}
	return false
}

// Analysis holds the AI-derived enrichment fields attached to an event record.
type Analysis struct {
	RiskLevel             string    `json:"risk_level"`
	RiskCategory          string    `json:"risk_category"`
	ImpactAnalysis        string    `json:"impact_analysis"`
	RequiredActions       string    `json:"required_actions"`
	ConsequencesIfIgnored string    `json:"consequences_if_ignored"`
	TimeSensitivity       string    `json:"time_sensitivity"`
	EventImpactType       string    `json:"event_impact_type"`
	Critical              bool      `json:"critical"`
	AnalyzedAt            time.Time `json:"analyzed_at"`
	Version               string    `json:"version"`
	// Failed marks a fallback analysis written after the model call was
	// exhausted. The cache gate retries failed analyses on the next touch.
	Failed bool `json:"failed,omitempty"`
}

// Valid reports whether a stored analysis can be reused without recomputation.
// An analysis is valid when it matches the current schema version, does not
// carry the failure marker, and has its key fields populated.
func (a *Analysis) Valid() bool {
	if a == nil {
		return false
	}
	if a.Failed || a.Version != AnalysisVersion {
		return false
	}
	return a.RiskLevel != "" && a.RiskCategory != "" && a.ImpactAnalysis != ""
}

// HealthEvent is the canonical event record. It is uniquely identified by the
// (EventID, AccountID) composite key, stable across all ingestion paths.
type HealthEvent struct {
	EventID           string    `json:"event_id"`
	AccountID         string    `json:"account_id"`
	AccountName       string    `json:"account_name,omitempty"`
	EventTypeCode     string    `json:"event_type_code"`
	Category          string    `json:"category"`
	Service           string    `json:"service"`
	Region            string    `json:"region"`
	Status            string    `json:"status"`
	StartTime         time.Time `json:"start_time"`
	LastUpdateTime    time.Time `json:"last_update_time"`
	Description       string    `json:"description"`
	SimplifiedDesc    string    `json:"simplified_description,omitempty"`
	AffectedResources []string  `json:"affected_resources,omitempty"`

	Analysis *Analysis `json:"analysis,omitempty"`

	// ExpiresAt is the automatic deletion timestamp, derived from the
	// retention window at write time.
	ExpiresAt time.Time `json:"expires_at,omitempty"`
}

// Key returns the composite storage key for this record.
func (e *HealthEvent) Key() EventKey {
	return EventKey{EventID: e.EventID, AccountID: e.AccountID}
}

// EventKey is the (event, account) composite key identifying one record.
type EventKey struct {
	EventID   string `json:"event_id"`
	AccountID string `json:"account_id"`
}

// Directive is the tagged union over the five ingestion trigger shapes.
// A raw queue payload is resolved into exactly one concrete directive at the
// boundary; the shared pipeline dispatches on the concrete type.
type Directive interface {
	// Mode returns the directive discriminator, used for logging.
	Mode() string
}

// PushEvent carries one normalized event through the pipeline: a provider
// push notification, or a sweep/backfill/repair expansion fanned back onto
// the ingest topic. Force bypasses the enrichment cache gate.
type PushEvent struct {
	Event HealthEvent `json:"event"`
	Force bool        `json:"force,omitempty"`
}

func (PushEvent) Mode() string { return "push" }

// StreamRemoval signals that the store expired a record. It carries only the
// key and the state the record held before deletion.
type StreamRemoval struct {
	Key         EventKey `json:"key"`
	PriorStatus string   `json:"prior_status"`
	Category    string   `json:"category"`
	Service     string   `json:"service"`
}

func (StreamRemoval) Mode() string { return "stream_removal" }

// ScheduledSync triggers a reconciliation sweep over a lookback window.
type ScheduledSync struct {
	LookbackDays int `json:"lookback_days"`
}

func (ScheduledSync) Mode() string { return "scheduled_sync" }

// Backfill triggers bulk processing of an explicit time window.
type Backfill struct {
	StartTime time.Time `json:"start_time"`
	EndTime   time.Time `json:"end_time"`
}

func (Backfill) Mode() string { return "backfill" }

// SingleEvent triggers repair of one event by identifier, forcing re-analysis
// for every affected account.
type SingleEvent struct {
	EventID string `json:"event_id"`
}

func (SingleEvent) Mode() string { return "single_event" }

// RecalculateCounts triggers a full rebuild of the per-account counters from
// the event store.
type RecalculateCounts struct{}

func (RecalculateCounts) Mode() string { return "recalculate_counts" }
