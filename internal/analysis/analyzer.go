package analysis

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/mannylee/cloudops-command-center/internal/events"
	"github.com/mannylee/cloudops-command-center/internal/retry"
)

// Analyzer enriches canonical events by calling the reasoning model with a
// bounded retry policy, falling back to a rule-based classification when the
// model is exhausted.
type Analyzer struct {
	model       ModelClient
	retryCfg    retry.Config
	maxTokens   int
	temperature float64
	now         func() time.Time
}

// Option configures an Analyzer.
type Option func(*Analyzer)

// WithRetryConfig overrides the default retry policy.
func WithRetryConfig(cfg retry.Config) Option {
	return func(a *Analyzer) { a.retryCfg = cfg }
}

// WithClock overrides the analysis timestamp source, for tests.
func WithClock(now func() time.Time) Option {
	return func(a *Analyzer) { a.now = now }
}

// NewAnalyzer creates an analyzer over the given model client.
func NewAnalyzer(model ModelClient, maxTokens int, temperature float64, opts ...Option) *Analyzer {
	a := &Analyzer{
		model:       model,
		retryCfg:    retry.DefaultConfig(),
		maxTokens:   maxTokens,
		temperature: temperature,
		now:         func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Analyze produces enrichment for one event. It never returns an error:
// when the model call or parsing fails after retries, the result is the
// rule-based fallback carrying the failure marker, so the cache gate retries
// it on the next encounter and one bad item never blocks a batch.
func (a *Analyzer) Analyze(ctx context.Context, ev *events.HealthEvent) *events.Analysis {
	prompt := BuildPrompt(ev)

	var raw string
	err := retry.WithRetry(ctx, a.retryCfg, "model_analyze_"+ev.EventID, func() error {
		var callErr error
		raw, callErr = a.model.Analyze(ctx, prompt, a.maxTokens, a.temperature)
		return callErr
	})
	if err != nil {
		slog.Warn("Model analysis failed, using rule-based fallback",
			"event_id", ev.EventID,
			"account_id", ev.AccountID,
			"error", err,
		)
		return a.fallback(ev)
	}

	parsed, err := parseAnalysis(raw)
	if err != nil {
		slog.Warn("Failed to parse model response, using rule-based fallback",
			"event_id", ev.EventID,
			"error", err,
		)
		return a.fallback(ev)
	}

	parsed.AnalyzedAt = a.now()
	parsed.Version = events.AnalysisVersion
	return parsed
}

// fallback derives a deterministic classification from the event type so the
// dashboard still shows a risk level while the failure marker schedules a
// retry.
func (a *Analyzer) fallback(ev *events.HealthEvent) *events.Analysis {
	typeUpper := strings.ToUpper(ev.EventTypeCode)

	riskLevel := events.RiskMedium
	riskCategory := "Maintenance"
	impactType := "Informational"
	switch {
	case strings.Contains(typeUpper, "OPERATIONAL_ISSUE"):
		riskLevel = events.RiskHigh
		riskCategory = "Availability"
		impactType = "Service Outage"
	case strings.Contains(typeUpper, "SECURITY"):
		riskLevel = events.RiskHigh
		riskCategory = "Security"
		impactType = "Security Issue"
	case strings.Contains(typeUpper, "MAINTENANCE"), strings.Contains(typeUpper, "LIFECYCLE"):
		riskLevel = events.RiskLow
	case strings.Contains(typeUpper, "BILLING"):
		riskCategory = "Cost"
		impactType = "Billing Impact"
	}

	timeSensitivity := "Routine"
	if ev.Status == events.StatusOpen && riskLevel == events.RiskHigh {
		timeSensitivity = "Urgent"
	}

	return &events.Analysis{
		RiskLevel:             riskLevel,
		RiskCategory:          riskCategory,
		ImpactAnalysis:        fmt.Sprintf("Basic analysis: %s %s event with %s status", ev.Service, ev.EventTypeCode, ev.Status),
		RequiredActions:       "Review event details and assess impact on your resources",
		ConsequencesIfIgnored: "Potential service disruption if not addressed",
		TimeSensitivity:       timeSensitivity,
		EventImpactType:       impactType,
		Critical:              riskLevel == events.RiskHigh,
		AnalyzedAt:            a.now(),
		Version:               events.AnalysisVersion,
		Failed:                true,
	}
}

var (
	fencedJSONPattern = regexp.MustCompile("(?s)```json\\s*(.*?)\\s*```")
	bareJSONPattern   = regexp.MustCompile(`(?s)(\{.*\})`)
)

// modelAnalysis mirrors the JSON schema requested in the prompt.
type modelAnalysis struct {
	Critical              bool   `json:"critical"`
	RiskLevel             string `json:"risk_level"`
	TimeSensitivity       string `json:"time_sensitivity"`
	RiskCategory          string `json:"risk_category"`
	RequiredActions       string `json:"required_actions"`
	ImpactAnalysis        string `json:"impact_analysis"`
	ConsequencesIfIgnored string `json:"consequences_if_ignored"`
	EventImpactType       string `json:"event_impact_type"`
}

// parseAnalysis extracts the structured analysis from model output, which may
// wrap the JSON in a fenced code block or surrounding prose.
func parseAnalysis(raw string) (*events.Analysis, error) {
	jsonStr := raw
	if m := fencedJSONPattern.FindStringSubmatch(raw); m != nil {
		jsonStr = m[1]
	} else if m := bareJSONPattern.FindStringSubmatch(raw); m != nil {
		jsonStr = m[1]
	}

	var parsed modelAnalysis
	if err := json.Unmarshal([]byte(jsonStr), &parsed); err != nil {
		return nil, fmt.Errorf("no parseable JSON in model response: %w", err)
	}
	if parsed.RiskLevel == "" || parsed.ImpactAnalysis == "" {
		return nil, fmt.Errorf("model response missing required analysis fields")
	}

	riskLevel, critical := normalizeRiskLevel(parsed.RiskLevel, parsed.Critical)

	riskCategory := parsed.RiskCategory
	if riskCategory == "" {
		riskCategory = "Unknown"
	}
	timeSensitivity := parsed.TimeSensitivity
	if timeSensitivity == "" {
		timeSensitivity = "Routine"
	}
	impactType := parsed.EventImpactType
	if impactType == "" {
		impactType = "Informational"
	}

	return &events.Analysis{
		RiskLevel:             riskLevel,
		RiskCategory:          riskCategory,
		ImpactAnalysis:        parsed.ImpactAnalysis,
		RequiredActions:       parsed.RequiredActions,
		ConsequencesIfIgnored: parsed.ConsequencesIfIgnored,
		TimeSensitivity:       timeSensitivity,
		EventImpactType:       impactType,
		Critical:              critical,
	}, nil
}

// normalizeRiskLevel maps model risk levels onto the canonical set and keeps
// the critical flag consistent with a CRITICAL level in either direction.
func normalizeRiskLevel(level string, critical bool) (string, bool) {
	switch strings.ToUpper(strings.TrimSpace(level)) {
	case "CRITICAL", "SEVERE":
		return events.RiskCritical, true
	case "HIGH":
		if critical {
			return events.RiskCritical, true
		}
		return events.RiskHigh, false
	case "MEDIUM", "MODERATE":
		if critical {
			return events.RiskCritical, true
		}
		return events.RiskMedium, false
	case "LOW":
		if critical {
			return events.RiskCritical, true
		}
		return events.RiskLow, false
	}
	if critical {
		return events.RiskCritical, true
	}
	return events.RiskLow, false
}
