package analysis

import "github.com/mannylee/cloudops-command-center/internal/events"

// Decision is the cache gate outcome for one event.
type Decision int

const (
	// SkipAnalysis reuses the stored analysis unchanged.
	SkipAnalysis Decision = iota
	// RunAnalysis recomputes enrichment via the model.
	RunAnalysis
)

func (d Decision) String() string {
	if d == RunAnalysis {
		return "run"
	}
	return "skip"
}

// Decide returns whether the event needs (re)analysis given the stored
// record. Analysis runs for new events, stored failure markers, stale
// analysis versions, and explicit force requests; everything else reuses the
// prior result. This bounds model-call volume: every sweep touches every
// event in the window, and re-analyzing unchanged events at organization
// scale would be slow and expensive.
func Decide(existing *events.HealthEvent, force bool) Decision {
	if force {
		return RunAnalysis
	}
	if existing == nil || existing.Analysis == nil {
		return RunAnalysis
	}
	if !existing.Analysis.Valid() {
		return RunAnalysis
	}
	return SkipAnalysis
}
