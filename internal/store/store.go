package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/mannylee/cloudops-command-center/internal/events"
)

// DefaultRetentionDays is the retention window applied when no explicit
// retention is configured.
const DefaultRetentionDays = 90

// removalTombstoneTTL bounds how long a handled removal blocks redelivered
// removal messages for the same key.
const removalTombstoneTTL = 24 * time.Hour

// scanBatchSize is the SCAN page size used by full-store scans.
const scanBatchSize = 200

// UpsertResult reports the outcome of one conditional upsert as observed
// atomically inside the write script.
type UpsertResult struct {
	// PriorStatus is the status stored before this write, or empty when the
	// record did not exist.
	PriorStatus string
	// Applied is false when the write was rejected as stale.
	Applied bool
	// IndexDelta is the actionable index change caused by this write:
	// +1, -1 or 0.
	IndexDelta int
}

// record is the stored JSON shape. The numeric update timestamp lets the
// upsert script compare versions without parsing RFC 3339 strings.
type record struct {
	events.HealthEvent
	LastUpdateUnix int64 `json:"lastUpdateUnix"`
}

// Store persists health event records in Redis.
type Store struct {
	client        *redis.Client
	retentionDays int

	upsertScript  *redis.Script
	removeScript  *redis.Script
	rebuildScript *redis.Script
}

// New creates a Store with the given Redis client and retention window in
// days. A non-positive retention falls back to DefaultRetentionDays.
func New(client *redis.Client, retentionDays int) *Store {
	if retentionDays <= 0 {
		retentionDays = DefaultRetentionDays
	}
	upsert, remove, rebuild := newLuaScripts()
	return &Store{
		client:        client,
		retentionDays: retentionDays,
		upsertScript:  upsert,
		removeScript:  remove,
		rebuildScript: rebuild,
	}
}

// Upsert writes an event record with last-writer-wins ordering. The record's
// expiry is set to the retention window past its most recent timestamp, so a
// future-dated maintenance never expires before it starts. The account
// actionable index and counter hash are updated in the same script, and the
// previously stored status is returned for transition accounting.
func (s *Store) Upsert(ctx context.Context, ev *events.HealthEvent) (UpsertResult, error) {
	if ev.EventID == "" || ev.AccountID == "" {
		return UpsertResult{}, fmt.Errorf("event is missing its identity: event_id=%q account_id=%q", ev.EventID, ev.AccountID)
	}

	expiresAt := s.expiryFor(ev)
	ev.ExpiresAt = expiresAt

	data, err := json.Marshal(record{
		HealthEvent:    *ev,
		LastUpdateUnix: ev.LastUpdateTime.Unix(),
	})
	if err != nil {
		return UpsertResult{}, fmt.Errorf("failed to marshal event record: %w", err)
	}

	actionable := "0"
	if events.IsActionable(ev.Status) {
		actionable = "1"
	}

	keys := []string{
		EventKeyFor(ev.EventID, ev.AccountID),
		IndexKeyFor(ev.AccountID),
		CountsKeyFor(ev.AccountID),
		AccountsKnownKey(),
	}
	args := []interface{}{
		string(data),
		ev.LastUpdateTime.Unix(),
		expiresAt.Unix(),
		actionable,
		ev.EventID,
		ev.AccountID,
		time.Now().UTC().Format(time.RFC3339),
	}

	raw, err := s.upsertScript.Run(ctx, s.client, keys, args...).Slice()
	if err != nil {
		return UpsertResult{}, fmt.Errorf("failed to upsert event %s/%s: %w", ev.EventID, ev.AccountID, err)
	}
	return parseUpsertReply(raw)
}

// Get loads one record by composite key. Returns nil when the record does
// not exist or has expired.
func (s *Store) Get(ctx context.Context, key events.EventKey) (*events.HealthEvent, error) {
	data, err := s.client.Get(ctx, EventKeyFor(key.EventID, key.AccountID)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get event %s/%s: %w", key.EventID, key.AccountID, err)
	}

	var rec record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("failed to unmarshal event %s/%s: %w", key.EventID, key.AccountID, err)
	}
	ev := rec.HealthEvent
	return &ev, nil
}

// GetBatch loads multiple records in one round trip. Missing or unreadable
// records are skipped.
func (s *Store) GetBatch(ctx context.Context, keys []events.EventKey) ([]*events.HealthEvent, error) {
	if len(keys) == 0 {
		return nil, nil
	}
	redisKeys := make([]string, len(keys))
	for i, key := range keys {
		redisKeys[i] = EventKeyFor(key.EventID, key.AccountID)
	}

	values, err := s.client.MGet(ctx, redisKeys...).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to batch get %d events: %w", len(keys), err)
	}

	result := make([]*events.HealthEvent, 0, len(values))
	for _, value := range values {
		raw, ok := value.(string)
		if !ok {
			continue
		}
		var rec record
		if err := json.Unmarshal([]byte(raw), &rec); err != nil {
			continue
		}
		ev := rec.HealthEvent
		result = append(result, &ev)
	}
	return result, nil
}

// Remove handles an expiry removal for one key: it drops the actionable
// index membership and decrements the counter, at most once per removal.
// A key holding a live record was re-ingested since the expiry and is left
// untouched. Returns the counter delta applied (0 or -1).
func (s *Store) Remove(ctx context.Context, key events.EventKey) (int, error) {
	keys := []string{
		EventKeyFor(key.EventID, key.AccountID),
		IndexKeyFor(key.AccountID),
		CountsKeyFor(key.AccountID),
		RemovedKeyFor(key.EventID, key.AccountID),
	}
	args := []interface{}{
		key.EventID,
		time.Now().UTC().Format(time.RFC3339),
		int(removalTombstoneTTL.Seconds()),
	}

	delta, err := s.removeScript.Run(ctx, s.client, keys, args...).Int()
	if err != nil {
		return 0, fmt.Errorf("failed to remove event %s/%s: %w", key.EventID, key.AccountID, err)
	}
	return delta, nil
}

// ActionableEventIDs returns the IDs of an account's actionable events.
func (s *Store) ActionableEventIDs(ctx context.Context, accountID string) ([]string, error) {
	ids, err := s.client.SMembers(ctx, IndexKeyFor(accountID)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read actionable index for account %s: %w", accountID, err)
	}
	return ids, nil
}

// CountActionable returns an account's live actionable count. The index set
// is authoritative; the counts hash is a mirror for dashboard reads.
func (s *Store) CountActionable(ctx context.Context, accountID string) (int64, error) {
	count, err := s.client.SCard(ctx, IndexKeyFor(accountID)).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to count actionable events for account %s: %w", accountID, err)
	}
	return count, nil
}

// Accounts returns every account ID that has ever had a record written.
func (s *Store) Accounts(ctx context.Context) ([]string, error) {
	accounts, err := s.client.SMembers(ctx, AccountsKnownKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list known accounts: %w", err)
	}
	return accounts, nil
}

// RebuildAccountIndex resets one account's actionable index and counter from
// an authoritative list of event IDs. Returns the rebuilt count.
func (s *Store) RebuildAccountIndex(ctx context.Context, accountID string, eventIDs []string) (int64, error) {
	keys := []string{IndexKeyFor(accountID), CountsKeyFor(accountID)}
	args := make([]interface{}, 0, len(eventIDs)+1)
	args = append(args, time.Now().UTC().Format(time.RFC3339))
	for _, id := range eventIDs {
		args = append(args, id)
	}

	count, err := s.rebuildScript.Run(ctx, s.client, keys, args...).Int64()
	if err != nil {
		return 0, fmt.Errorf("failed to rebuild index for account %s: %w", accountID, err)
	}
	return count, nil
}

// ScanEvents walks every stored event record and calls fn for each one.
// Records that fail to decode are skipped.
func (s *Store) ScanEvents(ctx context.Context, fn func(*events.HealthEvent) error) error {
	var cursor uint64
	for {
		keys, next, err := s.client.Scan(ctx, cursor, eventKeyPrefix+"*", scanBatchSize).Result()
		if err != nil {
			return fmt.Errorf("failed to scan event records: %w", err)
		}

		if len(keys) > 0 {
			values, err := s.client.MGet(ctx, keys...).Result()
			if err != nil {
				return fmt.Errorf("failed to load scanned event records: %w", err)
			}
			for _, value := range values {
				raw, ok := value.(string)
				if !ok {
					continue
				}
				var rec record
				if err := json.Unmarshal([]byte(raw), &rec); err != nil {
					continue
				}
				ev := rec.HealthEvent
				if err := fn(&ev); err != nil {
					return err
				}
			}
		}

		cursor = next
		if cursor == 0 {
			return nil
		}
	}
}

// expiryFor derives the deletion timestamp from the retention window and the
// record's most recent timestamp.
func (s *Store) expiryFor(ev *events.HealthEvent) time.Time {
	anchor := ev.LastUpdateTime
	if ev.StartTime.After(anchor) {
		anchor = ev.StartTime
	}
	if anchor.IsZero() {
		anchor = time.Now().UTC()
	}
	return anchor.Add(time.Duration(s.retentionDays) * 24 * time.Hour)
}

func parseUpsertReply(raw []interface{}) (UpsertResult, error) {
	if len(raw) != 3 {
		return UpsertResult{}, fmt.Errorf("unexpected upsert script reply length %d", len(raw))
	}
	prior, _ := raw[0].(string)
	applied, ok := raw[1].(int64)
	if !ok {
		return UpsertResult{}, fmt.Errorf("unexpected upsert script reply type %T", raw[1])
	}
	delta, ok := raw[2].(int64)
	if !ok {
		return UpsertResult{}, fmt.Errorf("unexpected upsert script reply type %T", raw[2])
	}
	return UpsertResult{
		PriorStatus: prior,
		Applied:     applied == 1,
		IndexDelta:  int(delta),
	}, nil
}
