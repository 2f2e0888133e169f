// Package normalizer resolves raw queue payloads into typed ingestion
// directives and converts provider event shapes into the canonical record.
package normalizer

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/mannylee/cloudops-command-center/internal/events"
)

// Directive mode discriminators accepted on the ingest topic.
const (
	modeScheduledSync     = "scheduled_sync"
	modeRecalculateCounts = "recalculate_counts"

	// ModeIngestEvent marks a pre-normalized event fanned back onto the
	// ingest topic by the sweeper for parallel processing.
	ModeIngestEvent = "ingest_event"
)

// envelope is the superset of fields used to sniff the payload shape. The
// shape is decided once here; the pipeline never re-inspects raw JSON.
type envelope struct {
	// push notification envelope
	Source     string          `json:"source"`
	DetailType string          `json:"detail-type"`
	Detail     json.RawMessage `json:"detail"`

	// stream-change removal record
	EventName string          `json:"eventName"`
	OldImage  json.RawMessage `json:"oldImage"`

	// operator directives
	Mode         string `json:"mode"`
	LookbackDays int    `json:"lookback_days"`
	StartTime    string `json:"start_time"`
	EndTime      string `json:"end_time"`
	EventID      string `json:"event_id"`

	// pre-normalized fan-out event
	Event *events.HealthEvent `json:"event,omitempty"`
	Force bool                `json:"force,omitempty"`
}

// pushDetail is the provider-specific detail blob inside a push envelope.
type pushDetail struct {
	EventID           string          `json:"eventArn"`
	EventTypeCode     string          `json:"eventTypeCode"`
	EventTypeCategory string          `json:"eventTypeCategory"`
	Service           string          `json:"service"`
	Region            string          `json:"region"`
	StartTime         string          `json:"startTime"`
	LastUpdatedTime   string          `json:"lastUpdatedTime"`
	StatusCode        string          `json:"statusCode"`
	AccountID         string          `json:"accountId"`
	AffectedAccount   string          `json:"affectedAccount"`
	EventDescription  json.RawMessage `json:"eventDescription"`
}

// removalImage is the prior state carried on a stream removal record.
type removalImage struct {
	EventID    string `json:"eventArn"`
	AccountID  string `json:"accountId"`
	StatusCode string `json:"statusCode"`
	Category   string `json:"eventTypeCategory"`
	Service    string `json:"service"`
}

// ParseDirective resolves one raw message into a typed directive. Malformed
// payloads return an error; callers log and skip without failing siblings.
func ParseDirective(raw []byte) (events.Directive, error) {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("failed to parse directive payload: %w", err)
	}

	switch {
	case env.Source == "aws.health" && len(env.Detail) > 0:
		return parsePush(env.Detail)

	case env.EventName == "REMOVE":
		return parseRemoval(env.OldImage)

	case env.Mode == modeScheduledSync:
		lookback := env.LookbackDays
		if lookback <= 0 {
			lookback = DefaultLookbackDays
		}
		return events.ScheduledSync{LookbackDays: lookback}, nil

	case env.Mode == modeRecalculateCounts:
		return events.RecalculateCounts{}, nil

	case env.Mode == ModeIngestEvent:
		if env.Event == nil || env.Event.EventID == "" || env.Event.AccountID == "" {
			return nil, fmt.Errorf("ingest_event directive missing event identity")
		}
		return events.PushEvent{Event: *env.Event, Force: env.Force}, nil

	case env.StartTime != "" && env.EndTime != "":
		start, err := ParseTimestamp(env.StartTime)
		if err != nil {
			return nil, fmt.Errorf("invalid backfill start_time %q: %w", env.StartTime, err)
		}
		end, err := ParseTimestamp(env.EndTime)
		if err != nil {
			return nil, fmt.Errorf("invalid backfill end_time %q: %w", env.EndTime, err)
		}
		if !end.After(start) {
			return nil, fmt.Errorf("backfill window is empty: %s >= %s", env.StartTime, env.EndTime)
		}
		return events.Backfill{StartTime: start, EndTime: end}, nil

	case env.EventID != "":
		return events.SingleEvent{EventID: env.EventID}, nil
	}

	return nil, fmt.Errorf("unrecognized directive shape")
}

// DefaultLookbackDays is the sweep window used when a scheduled sync
// directive omits one.
const DefaultLookbackDays = 30

func parsePush(detail json.RawMessage) (events.Directive, error) {
	var d pushDetail
	if err := json.Unmarshal(detail, &d); err != nil {
		return nil, fmt.Errorf("failed to parse push detail: %w", err)
	}
	if d.EventID == "" {
		return nil, fmt.Errorf("push detail missing event identifier")
	}

	accountID := d.AccountID
	if accountID == "" {
		accountID = d.AffectedAccount
	}
	if accountID == "" {
		return nil, fmt.Errorf("push detail for %s missing account identifier", d.EventID)
	}

	ev := events.HealthEvent{
		EventID:        d.EventID,
		AccountID:      accountID,
		EventTypeCode:  d.EventTypeCode,
		Category:       d.EventTypeCategory,
		Service:        d.Service,
		Region:         NormalizeRegion(d.Region),
		Status:         NormalizeStatus(d.StatusCode),
		Description:    extractDescription(d.EventDescription),
		StartTime:      parseTimestampOrZero(d.StartTime),
		LastUpdateTime: parseTimestampOrZero(d.LastUpdatedTime),
	}
	if ev.LastUpdateTime.IsZero() {
		ev.LastUpdateTime = time.Now().UTC()
	}

	return events.PushEvent{Event: ev}, nil
}

func parseRemoval(oldImage json.RawMessage) (events.Directive, error) {
	if len(oldImage) == 0 {
		return nil, fmt.Errorf("removal record missing prior image")
	}
	var img removalImage
	if err := json.Unmarshal(oldImage, &img); err != nil {
		return nil, fmt.Errorf("failed to parse removal image: %w", err)
	}
	if img.EventID == "" || img.AccountID == "" {
		return nil, fmt.Errorf("removal record missing composite key")
	}

	return events.StreamRemoval{
		Key:         events.EventKey{EventID: img.EventID, AccountID: img.AccountID},
		PriorStatus: NormalizeStatus(img.StatusCode),
		Category:    img.Category,
		Service:     img.Service,
	}, nil
}

// NormalizeRegion maps an empty region to "global": some provider events
// (billing, account notifications) carry no region.
func NormalizeRegion(region string) string {
	if strings.TrimSpace(region) == "" {
		return "global"
	}
	return region
}

// NormalizeStatus lowercases a provider status code and maps anything
// outside the known set to unknown.
func NormalizeStatus(status string) string {
	s := strings.ToLower(strings.TrimSpace(status))
	switch s {
	case events.StatusOpen, events.StatusUpcoming, events.StatusScheduled, events.StatusClosed:
		return s
	}
	return events.StatusUnknown
}

// extractDescription handles the eventDescription field, which the provider
// emits as an object, a list of objects, or a bare string.
func extractDescription(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}

	var obj struct {
		LatestDescription string `json:"latestDescription"`
	}
	if err := json.Unmarshal(raw, &obj); err == nil && obj.LatestDescription != "" {
		return obj.LatestDescription
	}

	var list []struct {
		LatestDescription string `json:"latestDescription"`
	}
	if err := json.Unmarshal(raw, &list); err == nil && len(list) > 0 {
		return list[0].LatestDescription
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}

	return ""
}

// ParseTimestamp parses the timestamp formats seen across the provider
// surfaces: RFC 3339, RFC 1123, and the date-only form used by start times.
func ParseTimestamp(value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, fmt.Errorf("empty timestamp")
	}

	layouts := []string{
		time.RFC3339Nano,
		time.RFC3339,
		time.RFC1123,
		time.RFC1123Z,
		"2006-01-02 15:04:05",
		"2006-01-02",
	}
	for _, layout := range layouts {
		if t, err := time.Parse(layout, value); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unsupported timestamp format: %q", value)
}

func parseTimestampOrZero(value string) time.Time {
	t, err := ParseTimestamp(value)
	if err != nil {
		return time.Time{}
	}
	return t
}
