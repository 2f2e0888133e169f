package dispatcher

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"testing"

	"github.com/mannylee/cloudops-command-center/internal/source"
)

// fakeIndex is a test fake for ActionableIndex.
type fakeIndex struct {
	accounts   []string
	actionable map[string][]string
	listErr    error
}

func (f *fakeIndex) Accounts(ctx context.Context) ([]string, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.accounts, nil
}

func (f *fakeIndex) ActionableEventIDs(ctx context.Context, accountID string) ([]string, error) {
	return f.actionable[accountID], nil
}

// fakeMappings is a test fake for MappingStore.
type fakeMappings struct {
	mappings map[string]string
}

func (f *fakeMappings) Get(ctx context.Context, accountID string) (string, error) {
	return f.mappings[accountID], nil
}

// fakeDirectory is a test fake for Directory.
type fakeDirectory struct {
	accounts []source.Account
	err      error
}

func (f *fakeDirectory) ListOrgAccounts(ctx context.Context) ([]source.Account, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.accounts, nil
}

// fakePublisher captures published work items.
type fakePublisher struct {
	keys     []string
	payloads [][]byte
}

func (f *fakePublisher) Publish(ctx context.Context, key string, payload []byte) error {
	f.keys = append(f.keys, key)
	f.payloads = append(f.payloads, payload)
	return nil
}

func (f *fakePublisher) items(t *testing.T) []WorkItem {
	t.Helper()
	items := make([]WorkItem, 0, len(f.payloads))
	for _, payload := range f.payloads {
		var item WorkItem
		if err := json.Unmarshal(payload, &item); err != nil {
			t.Fatalf("work item payload not valid JSON: %v", err)
		}
		items = append(items, item)
	}
	return items
}

func TestRunConsolidatesSharedDestination(t *testing.T) {
	index := &fakeIndex{
		accounts: []string{"111", "222", "333"},
		actionable: map[string][]string{
			"111": {"evt-a"},
			"222": {"evt-b", "evt-c"},
			"333": {"evt-d"},
		},
	}
	directory := &fakeDirectory{accounts: []source.Account{
		{ID: "111", Name: "prod", Email: "ops@example.com"},
		{ID: "222", Name: "staging", Email: "ops@example.com"},
		{ID: "333", Name: "sandbox", Email: "dev@example.com"},
	}}
	pub := &fakePublisher{}
	d := New(index, &fakeMappings{}, directory, pub, 0)

	if err := d.Run(context.Background()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	items := pub.items(t)
	if len(items) != 2 {
		t.Fatalf("work items = %d, want 2 (one per destination)", len(items))
	}

	byDestination := make(map[string]WorkItem)
	for _, item := range items {
		byDestination[item.Destination] = item
	}

	shared := byDestination["ops@example.com"]
	if !shared.IsConsolidated {
		t.Error("shared destination not marked consolidated")
	}
	if len(shared.AccountIDs) != 2 || len(shared.EventKeys) != 3 {
		t.Errorf("consolidated item accounts=%d keys=%d, want 2/3", len(shared.AccountIDs), len(shared.EventKeys))
	}
	if shared.MappingSource != MappingSourceDirectory {
		t.Errorf("mapping source = %q, want directory", shared.MappingSource)
	}

	solo := byDestination["dev@example.com"]
	if solo.IsConsolidated {
		t.Error("single-account destination marked consolidated")
	}
	if solo.ID == "" || solo.ID == shared.ID {
		t.Error("work items missing distinct identifiers")
	}
}

func TestRunCustomMappingWins(t *testing.T) {
	index := &fakeIndex{
		accounts:   []string{"111"},
		actionable: map[string][]string{"111": {"evt-a"}},
	}
	directory := &fakeDirectory{accounts: []source.Account{
		{ID: "111", Name: "prod", Email: "directory@example.com"},
	}}
	mappings := &fakeMappings{mappings: map[string]string{"111": "override@example.com"}}
	pub := &fakePublisher{}
	d := New(index, mappings, directory, pub, 0)

	if err := d.Run(context.Background()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	items := pub.items(t)
	if len(items) != 1 {
		t.Fatalf("work items = %d, want 1", len(items))
	}
	if items[0].Destination != "override@example.com" {
		t.Errorf("destination = %q, want custom override", items[0].Destination)
	}
	if items[0].MappingSource != MappingSourceCustom {
		t.Errorf("mapping source = %q, want custom", items[0].MappingSource)
	}
}

func TestRunSkipsEmptyAndUnresolvedAccounts(t *testing.T) {
	index := &fakeIndex{
		accounts: []string{"quiet", "orphan", "active"},
		actionable: map[string][]string{
			"orphan": {"evt-x"},
			"active": {"evt-y"},
		},
	}
	// orphan has no directory entry and no custom mapping
	directory := &fakeDirectory{accounts: []source.Account{
		{ID: "active", Name: "active", Email: "active@example.com"},
	}}
	pub := &fakePublisher{}
	d := New(index, &fakeMappings{}, directory, pub, 0)

	if err := d.Run(context.Background()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	items := pub.items(t)
	if len(items) != 1 {
		t.Fatalf("work items = %d, want 1 (quiet and orphan skipped)", len(items))
	}
	if items[0].Destination != "active@example.com" {
		t.Errorf("destination = %q", items[0].Destination)
	}
}

func TestRunChunksLargeGroups(t *testing.T) {
	// One account with enough actionable events that a single work item
	// would exceed a small ceiling
	ids := make([]string, 600)
	for i := range ids {
		ids[i] = fmt.Sprintf("arn:aws:health:us-east-1::event/EC2/AWS_EC2_OPERATIONAL_ISSUE/evt-%04d", i)
	}
	index := &fakeIndex{
		accounts:   []string{"111"},
		actionable: map[string][]string{"111": ids},
	}
	directory := &fakeDirectory{accounts: []source.Account{
		{ID: "111", Name: "prod", Email: "ops@example.com"},
	}}
	pub := &fakePublisher{}

	ceiling := 16 * 1024
	d := New(index, &fakeMappings{}, directory, pub, ceiling)

	if err := d.Run(context.Background()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	items := pub.items(t)
	if len(items) < 2 {
		t.Fatalf("work items = %d, want multiple chunks", len(items))
	}

	total := 0
	for i, payload := range pub.payloads {
		if len(payload) > ceiling {
			t.Errorf("chunk %d size = %d, exceeds ceiling %d", i, len(payload), ceiling)
		}
		total += len(items[i].EventKeys)
		if items[i].ChunkIndex == 0 || items[i].TotalChunks != len(items) {
			t.Errorf("chunk %d missing chunk markers: %+v", i, items[i])
		}
	}
	if total != 600 {
		t.Errorf("keys across chunks = %d, want 600 (none lost)", total)
	}
}

func TestRunConsolidationRespectsCeiling(t *testing.T) {
	// Many accounts share one address: the consolidated account lists must
	// not push any chunk past the ceiling
	const accountCount = 400
	accounts := make([]string, accountCount)
	actionable := make(map[string][]string, accountCount)
	orgAccounts := make([]source.Account, accountCount)
	for i := range accounts {
		id := fmt.Sprintf("%012d", i)
		accounts[i] = id
		for j := 0; j < 3; j++ {
			actionable[id] = append(actionable[id],
				fmt.Sprintf("arn:aws:health:us-east-1::event/EC2/AWS_EC2_OPERATIONAL_ISSUE/evt-%04d-%d", i, j))
		}
		orgAccounts[i] = source.Account{ID: id, Name: "account-" + id, Email: "ops@example.com"}
	}
	index := &fakeIndex{accounts: accounts, actionable: actionable}
	directory := &fakeDirectory{accounts: orgAccounts}
	pub := &fakePublisher{}

	ceiling := 16 * 1024
	d := New(index, &fakeMappings{}, directory, pub, ceiling)

	if err := d.Run(context.Background()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	items := pub.items(t)
	if len(items) < 2 {
		t.Fatalf("work items = %d, want multiple chunks", len(items))
	}

	totalKeys := 0
	for i, payload := range pub.payloads {
		if len(payload) > ceiling {
			t.Errorf("chunk %d size = %d, exceeds ceiling %d (accounts=%d keys=%d)",
				i, len(payload), ceiling, len(items[i].AccountIDs), len(items[i].EventKeys))
		}

		item := items[i]
		totalKeys += len(item.EventKeys)
		if !item.IsConsolidated {
			t.Errorf("chunk %d not marked consolidated", i)
		}
		if len(item.AccountNames) != len(item.AccountIDs) {
			t.Errorf("chunk %d account lists not parallel: %d ids, %d names",
				i, len(item.AccountIDs), len(item.AccountNames))
		}

		// Each chunk carries exactly the accounts its keys belong to
		keyAccounts := make(map[string]bool)
		for _, key := range item.EventKeys {
			keyAccounts[key.AccountID] = true
		}
		if len(keyAccounts) != len(item.AccountIDs) {
			t.Errorf("chunk %d lists %d accounts for keys from %d", i, len(item.AccountIDs), len(keyAccounts))
		}
		for _, id := range item.AccountIDs {
			if !keyAccounts[id] {
				t.Errorf("chunk %d lists account %s with no keys in the chunk", i, id)
			}
		}
	}
	if totalKeys != accountCount*3 {
		t.Errorf("keys across chunks = %d, want %d (none lost)", totalKeys, accountCount*3)
	}
}

func TestRunNameFallsBackToAccountID(t *testing.T) {
	index := &fakeIndex{
		accounts:   []string{"999"},
		actionable: map[string][]string{"999": {"evt-a"}},
	}
	// Custom-mapped account with no directory entry
	mappings := &fakeMappings{mappings: map[string]string{"999": "override@example.com"}}
	pub := &fakePublisher{}
	d := New(index, mappings, &fakeDirectory{}, pub, 0)

	if err := d.Run(context.Background()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	items := pub.items(t)
	if len(items) != 1 {
		t.Fatalf("work items = %d, want 1", len(items))
	}
	if len(items[0].AccountNames) != 1 || items[0].AccountNames[0] != "999" {
		t.Errorf("account names = %v, want fallback to the account ID", items[0].AccountNames)
	}
}

func TestWorkItemsCarryKeysOnly(t *testing.T) {
	index := &fakeIndex{
		accounts:   []string{"111"},
		actionable: map[string][]string{"111": {"evt-a"}},
	}
	directory := &fakeDirectory{accounts: []source.Account{
		{ID: "111", Name: "prod", Email: "ops@example.com"},
	}}
	pub := &fakePublisher{}
	d := New(index, &fakeMappings{}, directory, pub, 0)

	if err := d.Run(context.Background()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	payload := string(pub.payloads[0])
	for _, field := range []string{"description", "analysis", "risk_level"} {
		if strings.Contains(payload, field) {
			t.Errorf("work item payload contains %q, must carry keys only", field)
		}
	}
}

func TestRunFailsWithoutDirectory(t *testing.T) {
	index := &fakeIndex{accounts: []string{"111"}}
	directory := &fakeDirectory{err: fmt.Errorf("organizations unavailable")}
	d := New(index, &fakeMappings{}, directory, &fakePublisher{}, 0)

	if err := d.Run(context.Background()); err == nil {
		t.Error("Run() should fail when the directory is unavailable")
	}
}
