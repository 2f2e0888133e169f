package processor

import (
	"context"
	"errors"

	"github.com/segmentio/kafka-go"

	"github.com/mannylee/cloudops-command-center/internal/events"
	"github.com/mannylee/cloudops-command-center/internal/store"
)

// FakeReader is a test fake for DirectiveReader.
type FakeReader struct {
	Directives []events.Directive
	ReadErr    error
	CommitErr  error
	ReadIndex  int
	Committed  int
}

func (f *FakeReader) ReadDirective(ctx context.Context) (events.Directive, *kafka.Message, error) {
	if f.ReadErr != nil {
		return nil, nil, f.ReadErr
	}
	if f.ReadIndex >= len(f.Directives) {
		return nil, nil, errors.New("no more messages")
	}
	directive := f.Directives[f.ReadIndex]
	f.ReadIndex++
	return directive, &kafka.Message{}, nil
}

func (f *FakeReader) CommitMessage(ctx context.Context, msg *kafka.Message) error {
	if f.CommitErr != nil {
		return f.CommitErr
	}
	f.Committed++
	return nil
}

func (f *FakeReader) Close() error {
	return nil
}

// readStep is one scripted ReadDirective outcome. A non-nil err models a
// malformed payload: the raw message is returned alongside it.
type readStep struct {
	directive events.Directive
	err       error
}

// ScriptedReader feeds a fixed sequence to the Run loop and cancels the
// context once exhausted.
type ScriptedReader struct {
	Steps     []readStep
	Cancel    context.CancelFunc
	ReadIndex int
	Committed int
}

func (r *ScriptedReader) ReadDirective(ctx context.Context) (events.Directive, *kafka.Message, error) {
	if r.ReadIndex >= len(r.Steps) {
		r.Cancel()
		return nil, nil, context.Canceled
	}
	step := r.Steps[r.ReadIndex]
	r.ReadIndex++
	if step.err != nil {
		return nil, &kafka.Message{}, step.err
	}
	return step.directive, &kafka.Message{}, nil
}

func (r *ScriptedReader) CommitMessage(ctx context.Context, msg *kafka.Message) error {
	r.Committed++
	return nil
}

func (r *ScriptedReader) Close() error {
	return nil
}

// FakeStore is an in-memory EventStore that mirrors the write script's
// semantics: last-writer-wins ordering and index membership deltas.
type FakeStore struct {
	Records  map[string]*events.HealthEvent
	Index    map[string]map[string]bool
	GetErr   error
	WriteErr error
	Upserts  int
}

func NewFakeStore() *FakeStore {
	return &FakeStore{
		Records: make(map[string]*events.HealthEvent),
		Index:   make(map[string]map[string]bool),
	}
}

func (f *FakeStore) Get(ctx context.Context, key events.EventKey) (*events.HealthEvent, error) {
	if f.GetErr != nil {
		return nil, f.GetErr
	}
	ev, ok := f.Records[key.EventID+":"+key.AccountID]
	if !ok {
		return nil, nil
	}
	clone := *ev
	return &clone, nil
}

func (f *FakeStore) Upsert(ctx context.Context, ev *events.HealthEvent) (store.UpsertResult, error) {
	if f.WriteErr != nil {
		return store.UpsertResult{}, f.WriteErr
	}
	f.Upserts++

	key := ev.EventID + ":" + ev.AccountID
	prior := ""
	if existing, ok := f.Records[key]; ok {
		prior = existing.Status
		if existing.LastUpdateTime.After(ev.LastUpdateTime) {
			return store.UpsertResult{PriorStatus: prior, Applied: false}, nil
		}
	}

	clone := *ev
	f.Records[key] = &clone

	if f.Index[ev.AccountID] == nil {
		f.Index[ev.AccountID] = make(map[string]bool)
	}
	delta := 0
	member := f.Index[ev.AccountID][ev.EventID]
	if events.IsActionable(ev.Status) {
		if !member {
			f.Index[ev.AccountID][ev.EventID] = true
			delta = 1
		}
	} else if member {
		delete(f.Index[ev.AccountID], ev.EventID)
		delta = -1
	}

	return store.UpsertResult{PriorStatus: prior, Applied: true, IndexDelta: delta}, nil
}

// FakeEnricher is a test fake for Enricher.
type FakeEnricher struct {
	Result *events.Analysis
	Calls  int
}

func (f *FakeEnricher) Analyze(ctx context.Context, ev *events.HealthEvent) *events.Analysis {
	f.Calls++
	if f.Result != nil {
		clone := *f.Result
		return &clone
	}
	return &events.Analysis{
		RiskLevel:      events.RiskMedium,
		RiskCategory:   "Availability",
		ImpactAnalysis: "fake analysis",
		Version:        events.AnalysisVersion,
	}
}

// FakeCounters is a test fake for CounterMaintainer.
type FakeCounters struct {
	Removals   []events.StreamRemoval
	Recalcs    int
	RemovalErr error
	RecalcErr  error
}

func (f *FakeCounters) HandleRemoval(ctx context.Context, rm events.StreamRemoval) error {
	if f.RemovalErr != nil {
		return f.RemovalErr
	}
	f.Removals = append(f.Removals, rm)
	return nil
}

func (f *FakeCounters) Recalculate(ctx context.Context) error {
	if f.RecalcErr != nil {
		return f.RecalcErr
	}
	f.Recalcs++
	return nil
}

// FakeSweeper is a test fake for SweepHandler.
type FakeSweeper struct {
	Syncs     []events.ScheduledSync
	Backfills []events.Backfill
	Singles   []events.SingleEvent
}

func (f *FakeSweeper) HandleScheduledSync(ctx context.Context, d events.ScheduledSync) error {
	f.Syncs = append(f.Syncs, d)
	return nil
}

func (f *FakeSweeper) HandleBackfill(ctx context.Context, d events.Backfill) error {
	f.Backfills = append(f.Backfills, d)
	return nil
}

func (f *FakeSweeper) HandleSingleEvent(ctx context.Context, d events.SingleEvent) error {
	f.Singles = append(f.Singles, d)
	return nil
}
