package normalizer

import (
	"testing"
	"time"

	"github.com/mannylee/cloudops-command-center/internal/events"
)

func TestParseDirectivePush(t *testing.T) {
	raw := []byte(`{
		"source": "aws.health",
		"detail-type": "AWS Health Event",
		"detail": {
			"eventArn": "arn:aws:health:us-east-1::event/EC2/EC2_OPERATIONAL_ISSUE/abc",
			"eventTypeCode": "AWS_EC2_OPERATIONAL_ISSUE",
			"eventTypeCategory": "issue",
			"service": "EC2",
			"region": "us-east-1",
			"startTime": "2025-06-01T10:00:00Z",
			"lastUpdatedTime": "2025-06-01T11:30:00Z",
			"statusCode": "open",
			"affectedAccount": "111122223333",
			"eventDescription": {"latestDescription": "Instance connectivity issues"}
		}
	}`)

	directive, err := ParseDirective(raw)
	if err != nil {
		t.Fatalf("ParseDirective() error = %v", err)
	}
	push, ok := directive.(events.PushEvent)
	if !ok {
		t.Fatalf("directive type = %T, want PushEvent", directive)
	}

	ev := push.Event
	if ev.EventID != "arn:aws:health:us-east-1::event/EC2/EC2_OPERATIONAL_ISSUE/abc" {
		t.Errorf("event id = %q", ev.EventID)
	}
	if ev.AccountID != "111122223333" {
		t.Errorf("account id = %q, want affectedAccount fallback", ev.AccountID)
	}
	if ev.Status != events.StatusOpen {
		t.Errorf("status = %q, want open", ev.Status)
	}
	if ev.Description != "Instance connectivity issues" {
		t.Errorf("description = %q", ev.Description)
	}
	if ev.LastUpdateTime.Format(time.RFC3339) != "2025-06-01T11:30:00Z" {
		t.Errorf("last update = %v", ev.LastUpdateTime)
	}
	if push.Force {
		t.Error("provider push should not force analysis")
	}
}

func TestParseDirectivePushDescriptionForms(t *testing.T) {
	tests := []struct {
		name string
		desc string
		want string
	}{
		{"object", `{"latestDescription": "from object"}`, "from object"},
		{"list", `[{"latestDescription": "from list"}]`, "from list"},
		{"string", `"from string"`, "from string"},
		{"missing", `null`, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			raw := []byte(`{"source": "aws.health", "detail": {
				"eventArn": "arn:evt", "accountId": "123", "statusCode": "open",
				"eventDescription": ` + tt.desc + `}}`)
			directive, err := ParseDirective(raw)
			if err != nil {
				t.Fatalf("ParseDirective() error = %v", err)
			}
			if got := directive.(events.PushEvent).Event.Description; got != tt.want {
				t.Errorf("description = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestParseDirectivePushNormalization(t *testing.T) {
	raw := []byte(`{"source": "aws.health", "detail": {
		"eventArn": "arn:evt", "accountId": "123",
		"statusCode": "RESOLVED", "region": ""}}`)

	directive, err := ParseDirective(raw)
	if err != nil {
		t.Fatalf("ParseDirective() error = %v", err)
	}
	ev := directive.(events.PushEvent).Event
	if ev.Status != events.StatusUnknown {
		t.Errorf("status = %q, want unknown for unrecognized code", ev.Status)
	}
	if ev.Region != "global" {
		t.Errorf("region = %q, want global for empty region", ev.Region)
	}
	if ev.LastUpdateTime.IsZero() {
		t.Error("missing last update time should default to now")
	}
}

func TestParseDirectiveRemoval(t *testing.T) {
	raw := []byte(`{
		"eventName": "REMOVE",
		"oldImage": {
			"eventArn": "arn:evt",
			"accountId": "444455556666",
			"statusCode": "open",
			"eventTypeCategory": "issue",
			"service": "RDS"
		}
	}`)

	directive, err := ParseDirective(raw)
	if err != nil {
		t.Fatalf("ParseDirective() error = %v", err)
	}
	rm, ok := directive.(events.StreamRemoval)
	if !ok {
		t.Fatalf("directive type = %T, want StreamRemoval", directive)
	}
	if rm.Key.EventID != "arn:evt" || rm.Key.AccountID != "444455556666" {
		t.Errorf("key = %+v", rm.Key)
	}
	if rm.PriorStatus != events.StatusOpen {
		t.Errorf("prior status = %q", rm.PriorStatus)
	}
}

func TestParseDirectiveScheduledSync(t *testing.T) {
	directive, err := ParseDirective([]byte(`{"mode": "scheduled_sync", "lookback_days": 7}`))
	if err != nil {
		t.Fatalf("ParseDirective() error = %v", err)
	}
	sync := directive.(events.ScheduledSync)
	if sync.LookbackDays != 7 {
		t.Errorf("lookback = %d, want 7", sync.LookbackDays)
	}

	directive, err = ParseDirective([]byte(`{"mode": "scheduled_sync"}`))
	if err != nil {
		t.Fatalf("ParseDirective() error = %v", err)
	}
	if got := directive.(events.ScheduledSync).LookbackDays; got != DefaultLookbackDays {
		t.Errorf("default lookback = %d, want %d", got, DefaultLookbackDays)
	}
}

func TestParseDirectiveBackfill(t *testing.T) {
	directive, err := ParseDirective([]byte(`{"start_time": "2025-01-01", "end_time": "2025-02-01"}`))
	if err != nil {
		t.Fatalf("ParseDirective() error = %v", err)
	}
	backfill := directive.(events.Backfill)
	if !backfill.EndTime.After(backfill.StartTime) {
		t.Errorf("window = %v..%v", backfill.StartTime, backfill.EndTime)
	}

	if _, err := ParseDirective([]byte(`{"start_time": "2025-02-01", "end_time": "2025-01-01"}`)); err == nil {
		t.Error("inverted window should fail")
	}
	if _, err := ParseDirective([]byte(`{"start_time": "soon", "end_time": "2025-01-01"}`)); err == nil {
		t.Error("unparseable start time should fail")
	}
}

func TestParseDirectiveSingleEvent(t *testing.T) {
	directive, err := ParseDirective([]byte(`{"event_id": "arn:evt"}`))
	if err != nil {
		t.Fatalf("ParseDirective() error = %v", err)
	}
	if got := directive.(events.SingleEvent).EventID; got != "arn:evt" {
		t.Errorf("event id = %q", got)
	}
}

func TestParseDirectiveRecalculateCounts(t *testing.T) {
	directive, err := ParseDirective([]byte(`{"mode": "recalculate_counts"}`))
	if err != nil {
		t.Fatalf("ParseDirective() error = %v", err)
	}
	if _, ok := directive.(events.RecalculateCounts); !ok {
		t.Fatalf("directive type = %T, want RecalculateCounts", directive)
	}
}

func TestParseDirectiveIngestEvent(t *testing.T) {
	raw := []byte(`{
		"mode": "ingest_event",
		"force": true,
		"event": {
			"event_id": "arn:evt",
			"account_id": "123",
			"status": "open",
			"service": "EC2",
			"last_update_time": "2025-06-01T11:30:00Z"
		}
	}`)

	directive, err := ParseDirective(raw)
	if err != nil {
		t.Fatalf("ParseDirective() error = %v", err)
	}
	push := directive.(events.PushEvent)
	if push.Event.EventID != "arn:evt" || push.Event.AccountID != "123" {
		t.Errorf("event = %+v", push.Event)
	}
	if !push.Force {
		t.Error("force flag lost in round trip")
	}

	if _, err := ParseDirective([]byte(`{"mode": "ingest_event"}`)); err == nil {
		t.Error("ingest_event without event should fail")
	}
}

func TestParseDirectiveRejectsGarbage(t *testing.T) {
	if _, err := ParseDirective([]byte(`not json`)); err == nil {
		t.Error("invalid JSON should fail")
	}
	if _, err := ParseDirective([]byte(`{"unrelated": true}`)); err == nil {
		t.Error("unrecognized shape should fail")
	}
	if _, err := ParseDirective([]byte(`{"eventName": "REMOVE"}`)); err == nil {
		t.Error("removal without prior image should fail")
	}
	if _, err := ParseDirective([]byte(`{"source": "aws.health", "detail": {"statusCode": "open"}}`)); err == nil {
		t.Error("push without event identifier should fail")
	}
}

func TestParseTimestampFormats(t *testing.T) {
	tests := []struct {
		value string
		want  string
	}{
		{"2025-06-01T10:00:00Z", "2025-06-01T10:00:00Z"},
		{"2025-06-01T10:00:00.123456Z", "2025-06-01T10:00:00Z"},
		{"Sun, 01 Jun 2025 10:00:00 UTC", "2025-06-01T10:00:00Z"},
		{"2025-06-01 10:00:00", "2025-06-01T10:00:00Z"},
		{"2025-06-01", "2025-06-01T00:00:00Z"},
	}

	for _, tt := range tests {
		got, err := ParseTimestamp(tt.value)
		if err != nil {
			t.Errorf("ParseTimestamp(%q) error = %v", tt.value, err)
			continue
		}
		if got.Truncate(time.Second).Format(time.RFC3339) != tt.want {
			t.Errorf("ParseTimestamp(%q) = %v, want %s", tt.value, got, tt.want)
		}
	}

	if _, err := ParseTimestamp(""); err == nil {
		t.Error("empty timestamp should fail")
	}
	if _, err := ParseTimestamp("yesterday"); err == nil {
		t.Error("unsupported format should fail")
	}
}
