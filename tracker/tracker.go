// Package tracker implements the Performance Tracker (spec.md §4.7): a
// set of pure, read-only aggregate views over the Database Adapter. It
// performs no I/O of its own beyond the store.Store calls the spec
// mandates, and holds no state between calls, mirroring the
// read-only-over-store shape the teacher's PromptOptimizer.
// GetOptimizationHistory uses over its own in-memory history slice.
package tracker

import (
	"context"

	"github.com/google/uuid"

	"github.com/archerhq/archer/store"
)

// Store is the subset of store.Store the tracker needs.
type Store interface {
	GetPerformanceMetrics(ctx context.Context, maxRounds int) ([]store.GenerationMetrics, error)
	GetPromptHistory(ctx context.Context) ([]store.PromptHistoryEntry, error)
}

var _ Store = (store.Store)(nil)

// GenerationMetrics is one generation's aggregate performance, matching
// spec.md §4.7's per_generation_metrics entry shape.
type GenerationMetrics struct {
	Generation    int
	MeanScore     *float64
	BestScore     *float64
	SurvivalRatio float64
	PromptCount   int
}

// LineageEntry is one ancestor in a lineage series, root first.
type LineageEntry struct {
	Generation     int
	PromptID       uuid.UUID
	ContentExcerpt string
	MeanScore      *float64
}

// Tracker is the default Performance Tracker.
type Tracker struct {
	store Store
}

// New builds a Tracker around store.
func New(store Store) *Tracker {
	return &Tracker{store: store}
}

// PerGenerationMetrics implements spec.md §4.7's
// per_generation_metrics() → list, in ascending generation order.
// maxRounds <= 0 means no windowing; a positive value returns only the
// most recent maxRounds generations.
func (t *Tracker) PerGenerationMetrics(ctx context.Context, maxRounds int) ([]GenerationMetrics, error) {
	rows, err := t.store.GetPerformanceMetrics(ctx, maxRounds)
	if err != nil {
		return nil, err
	}
	out := make([]GenerationMetrics, len(rows))
	for i, r := range rows {
		out[i] = GenerationMetrics{
			Generation:    r.Generation,
			MeanScore:     r.MeanScore,
			BestScore:     r.BestScore,
			SurvivalRatio: r.SurvivalRatio,
			PromptCount:   r.PromptCount,
		}
	}
	return out, nil
}

// LineageSeries implements spec.md §4.7's lineage_series(prompt_id) →
// list of ancestors from root to prompt_id, each with its mean score.
// The store's GetPromptHistory returns the full prompt population;
// LineageSeries walks parent links from promptID back to the root and
// returns them in root-first order.
func (t *Tracker) LineageSeries(ctx context.Context, promptID uuid.UUID) ([]LineageEntry, error) {
	all, err := t.store.GetPromptHistory(ctx)
	if err != nil {
		return nil, err
	}

	byID := make(map[uuid.UUID]store.PromptHistoryEntry, len(all))
	for _, e := range all {
		byID[e.PromptID] = e
	}

	var chain []LineageEntry
	for id := promptID; ; {
		entry, ok := byID[id]
		if !ok {
			break
		}
		chain = append(chain, LineageEntry{
			Generation:     entry.Generation,
			PromptID:       entry.PromptID,
			ContentExcerpt: entry.ContentExcerpt,
			MeanScore:      entry.MeanScore,
		})
		if entry.ParentID == nil {
			break
		}
		id = *entry.ParentID
	}

	for i, j := 0, len(chain)-1; i < j; i, j = i+1, j-1 {
		chain[i], chain[j] = chain[j], chain[i]
	}
	return chain, nil
}
