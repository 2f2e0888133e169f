// Package dispatcher groups actionable events by notification destination
// and emits keys-only work items for downstream senders. Record payloads
// stay in the store; a work item never carries event bodies, so a sender
// always reads the freshest state.
package dispatcher

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/mannylee/cloudops-command-center/internal/events"
	"github.com/mannylee/cloudops-command-center/internal/source"
)

// DefaultMaxMessageBytes is the serialized size ceiling for one work item.
const DefaultMaxMessageBytes = 256 * 1024

// Mapping provenance recorded on emitted work items.
const (
	MappingSourceCustom    = "custom"
	MappingSourceDirectory = "directory"
)

// ActionableIndex is the slice of the event store the dispatcher reads.
type ActionableIndex interface {
	Accounts(ctx context.Context) ([]string, error)
	ActionableEventIDs(ctx context.Context, accountID string) ([]string, error)
}

// MappingStore resolves operator-managed destination overrides.
type MappingStore interface {
	Get(ctx context.Context, accountID string) (string, error)
}

// Directory lists the organization account directory.
type Directory interface {
	ListOrgAccounts(ctx context.Context) ([]source.Account, error)
}

// Publisher writes serialized work items to the notification work queue.
type Publisher interface {
	Publish(ctx context.Context, key string, payload []byte) error
}

// WorkItem is one unit of notification work. It carries event keys only.
type WorkItem struct {
	ID             string            `json:"id"`
	Destination    string            `json:"destination"`
	AccountIDs     []string          `json:"account_ids"`
	AccountNames   []string          `json:"account_names"`
	EventKeys      []events.EventKey `json:"event_keys"`
	IsConsolidated bool              `json:"is_consolidated"`
	MappingSource  string            `json:"mapping_source"`
	Timestamp      time.Time         `json:"timestamp"`
	ChunkIndex     int               `json:"chunk_index,omitempty"`
	TotalChunks    int               `json:"total_chunks,omitempty"`
}

// Dispatcher builds and emits notification work items.
type Dispatcher struct {
	index           ActionableIndex
	mappings        MappingStore
	directory       Directory
	publisher       Publisher
	maxMessageBytes int
}

// New creates a Dispatcher. A non-positive size ceiling falls back to
// DefaultMaxMessageBytes.
func New(index ActionableIndex, mappings MappingStore, directory Directory, publisher Publisher, maxMessageBytes int) *Dispatcher {
	if maxMessageBytes <= 0 {
		maxMessageBytes = DefaultMaxMessageBytes
	}
	return &Dispatcher{
		index:           index,
		mappings:        mappings,
		directory:       directory,
		publisher:       publisher,
		maxMessageBytes: maxMessageBytes,
	}
}

// destinationGroup accumulates the accounts resolving to one address.
type destinationGroup struct {
	destination   string
	mappingSource string
	accountIDs    []string
	names         map[string]string
	eventKeys     []events.EventKey
}

// Run executes one dispatch cycle: resolve destinations for every account
// with actionable events, consolidate accounts sharing an address, and emit
// chunked work items. Accounts that cannot be resolved or read are logged
// and skipped; the cycle itself fails only when the directory is
// unavailable.
func (d *Dispatcher) Run(ctx context.Context) error {
	startTime := time.Now()

	accounts, err := d.index.Accounts(ctx)
	if err != nil {
		return fmt.Errorf("failed to list accounts: %w", err)
	}
	if len(accounts) == 0 {
		slog.Info("No accounts known, nothing to dispatch")
		return nil
	}

	orgAccounts, err := d.directory.ListOrgAccounts(ctx)
	if err != nil {
		return fmt.Errorf("failed to load account directory: %w", err)
	}
	byID := make(map[string]source.Account, len(orgAccounts))
	for _, acct := range orgAccounts {
		byID[acct.ID] = acct
	}

	groups := make(map[string]*destinationGroup)
	var skipped int
	for _, accountID := range accounts {
		ids, err := d.index.ActionableEventIDs(ctx, accountID)
		if err != nil {
			skipped++
			slog.Error("Failed to read actionable events", "account_id", accountID, "error", err)
			continue
		}
		if len(ids) == 0 {
			continue
		}

		destination, mappingSource, err := d.resolveDestination(ctx, accountID, byID)
		if err != nil {
			skipped++
			slog.Error("Failed to resolve destination", "account_id", accountID, "error", err)
			continue
		}
		if destination == "" {
			skipped++
			slog.Warn("No destination for account, skipping", "account_id", accountID)
			continue
		}

		group, ok := groups[destination]
		if !ok {
			group = &destinationGroup{
				destination:   destination,
				mappingSource: mappingSource,
				names:         make(map[string]string),
			}
			groups[destination] = group
		}
		// A single custom override marks the whole group as custom
		if mappingSource == MappingSourceCustom {
			group.mappingSource = MappingSourceCustom
		}
		name := byID[accountID].Name
		if name == "" {
			// Custom-mapped accounts may be absent from the directory
			name = accountID
		}
		group.accountIDs = append(group.accountIDs, accountID)
		group.names[accountID] = name
		for _, id := range ids {
			group.eventKeys = append(group.eventKeys, events.EventKey{EventID: id, AccountID: accountID})
		}
	}

	// Deterministic emission order across cycles
	destinations := make([]string, 0, len(groups))
	for destination := range groups {
		destinations = append(destinations, destination)
	}
	sort.Strings(destinations)

	var emitted int
	for _, destination := range destinations {
		n, err := d.emit(ctx, groups[destination])
		if err != nil {
			slog.Error("Failed to emit work items", "destination", destination, "error", err)
			continue
		}
		emitted += n
	}

	slog.Info("Dispatch cycle completed",
		"accounts", len(accounts),
		"destinations", len(groups),
		"work_items", emitted,
		"accounts_skipped", skipped,
		"duration", time.Since(startTime),
	)
	return nil
}

// resolveDestination returns the address for one account: custom mapping
// first, then the directory entry.
func (d *Dispatcher) resolveDestination(ctx context.Context, accountID string, directory map[string]source.Account) (string, string, error) {
	custom, err := d.mappings.Get(ctx, accountID)
	if err != nil {
		return "", "", err
	}
	if custom != "" {
		return custom, MappingSourceCustom, nil
	}
	return directory[accountID].Email, MappingSourceDirectory, nil
}

// emit publishes one group's work items, split so every serialized message
// stays under the size ceiling. Each chunk carries only the accounts its
// keys belong to, so consolidation cannot inflate a chunk past the ceiling.
// Returns the number of items published.
func (d *Dispatcher) emit(ctx context.Context, group *destinationGroup) (int, error) {
	now := time.Now().UTC()
	chunks := d.chunkGroup(group, now)

	for i, chunk := range chunks {
		names := make([]string, len(chunk.accountIDs))
		for j, accountID := range chunk.accountIDs {
			names[j] = group.names[accountID]
		}
		item := WorkItem{
			ID:             uuid.New().String(),
			Destination:    group.destination,
			AccountIDs:     chunk.accountIDs,
			AccountNames:   names,
			EventKeys:      chunk.keys,
			IsConsolidated: len(group.accountIDs) > 1,
			MappingSource:  group.mappingSource,
			Timestamp:      now,
		}
		if len(chunks) > 1 {
			item.ChunkIndex = i + 1
			item.TotalChunks = len(chunks)
		}

		payload, err := json.Marshal(item)
		if err != nil {
			return i, fmt.Errorf("failed to marshal work item: %w", err)
		}
		if err := d.publisher.Publish(ctx, group.destination, payload); err != nil {
			return i, fmt.Errorf("failed to publish work item: %w", err)
		}

		slog.Debug("Work item published",
			"work_item_id", item.ID,
			"destination", group.destination,
			"event_keys", len(chunk.keys),
			"consolidated", item.IsConsolidated,
			"chunk", i+1,
			"chunks", len(chunks),
		)
	}
	return len(chunks), nil
}

// itemChunk is one work item's worth of keys plus the accounts they belong
// to, in first-seen order.
type itemChunk struct {
	keys       []events.EventKey
	accountIDs []string
}

// chunkGroup splits a group so each chunk's fully serialized work item fits
// under the ceiling. Sizes are measured, not estimated: the fixed envelope
// is marshaled once, and every key and account entry contributes its own
// serialized length.
func (d *Dispatcher) chunkGroup(group *destinationGroup, now time.Time) []itemChunk {
	base := envelopeBytes(group, now)

	var chunks []itemChunk
	var current itemChunk
	currentBytes := base
	seen := make(map[string]bool)
	for _, key := range group.eventKeys {
		encoded, err := json.Marshal(key)
		if err != nil {
			continue
		}
		keySize := len(encoded) + 1
		acctSize := jsonStringLen(key.AccountID) + jsonStringLen(group.names[key.AccountID]) + 2

		need := keySize
		if !seen[key.AccountID] {
			need += acctSize
		}
		if len(current.keys) > 0 && currentBytes+need > d.maxMessageBytes {
			chunks = append(chunks, current)
			current = itemChunk{}
			currentBytes = base
			seen = make(map[string]bool)
			// A fresh chunk always pays for the key's account entry
			need = keySize + acctSize
		}
		if !seen[key.AccountID] {
			seen[key.AccountID] = true
			current.accountIDs = append(current.accountIDs, key.AccountID)
		}
		current.keys = append(current.keys, key)
		currentBytes += need
	}
	if len(current.keys) > 0 {
		chunks = append(chunks, current)
	}
	return chunks
}

// envelopeBytes measures the serialized work item with empty key and account
// lists. Chunk markers are included at their widest so multi-chunk items
// cannot outgrow the measurement.
func envelopeBytes(group *destinationGroup, now time.Time) int {
	prototype := WorkItem{
		ID:             uuid.Nil.String(),
		Destination:    group.destination,
		AccountIDs:     []string{},
		AccountNames:   []string{},
		EventKeys:      []events.EventKey{},
		IsConsolidated: true,
		MappingSource:  group.mappingSource,
		Timestamp:      now,
		ChunkIndex:     1 << 20,
		TotalChunks:    1 << 20,
	}
	data, err := json.Marshal(prototype)
	if err != nil {
		return 0
	}
	return len(data)
}

func jsonStringLen(s string) int {
	data, err := json.Marshal(s)
	if err != nil {
		return len(s) + 2
	}
	return len(data)
}
