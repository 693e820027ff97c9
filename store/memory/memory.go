// Package memory is an in-memory Store implementation (spec.md §4.3),
// used by tests and by embedders who don't need cross-process
// persistence. All state lives behind a single mutex; the append-only
// discipline the specification requires (performance records and
// evaluations are never updated in place) is enforced by only ever
// appending to slices.
package memory

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/archerhq/archer/store"
)

// round2 rounds v to two decimal places, the precision spec.md §4.3 and
// property 3 require for every persisted or reported mean/best score.
func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// latestPerformanceByPrompt returns each prompt's most recently appended
// performance record. s.performances is append-only in call order, so a
// forward scan that always overwrites naturally lands on the latest.
func latestPerformanceByPrompt(performances []store.PerformanceRecord) map[uuid.UUID]store.PerformanceRecord {
	latest := make(map[uuid.UUID]store.PerformanceRecord)
	for _, pr := range performances {
		latest[pr.PromptID] = pr
	}
	return latest
}

// Store is an in-memory implementation of store.Store.
type Store struct {
	mu sync.RWMutex

	prompts      map[uuid.UUID]store.StoredPrompt
	performances []store.PerformanceRecord // append-only
	outputs      map[uuid.UUID]store.OutputRecord
	evaluations  []store.EvaluationResult // append-only, keyed by OutputID
}

// New returns an empty in-memory Store.
func New() *Store {
	return &Store{
		prompts: make(map[uuid.UUID]store.StoredPrompt),
		outputs: make(map[uuid.UUID]store.OutputRecord),
	}
}

func (s *Store) StorePrompt(_ context.Context, content, modelID, purpose string, generation int, parentID *uuid.UUID) (uuid.UUID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := uuid.New()
	s.prompts[id] = store.StoredPrompt{
		ID:         id,
		Content:    content,
		ModelID:    modelID,
		Purpose:    purpose,
		Generation: generation,
		ParentID:   parentID,
		CreatedAt:  time.Now(),
	}
	return id, nil
}

func (s *Store) UpdatePromptPerformance(_ context.Context, promptID uuid.UUID, avgScore *float64, survived bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.prompts[promptID]; !ok {
		return fmt.Errorf("store/memory: unknown prompt %s", promptID)
	}
	s.performances = append(s.performances, store.PerformanceRecord{
		PromptID:   promptID,
		AvgScore:   avgScore,
		Survived:   survived,
		RecordedAt: time.Now(),
	})
	return nil
}

func (s *Store) StoreGeneratedContent(_ context.Context, inputData, content string, promptID uuid.UUID, roundNum int) (uuid.UUID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.prompts[promptID]; !ok {
		return uuid.Nil, fmt.Errorf("store/memory: unknown prompt %s", promptID)
	}
	id := uuid.New()
	s.outputs[id] = store.OutputRecord{
		ID:        id,
		PromptID:  promptID,
		InputData: inputData,
		Content:   content,
		RoundNum:  roundNum,
		CreatedAt: time.Now(),
	}
	return id, nil
}

func (s *Store) StoreEvaluation(_ context.Context, outputID uuid.UUID, score *int, feedback, improvedOutput string, isHuman bool, evaluatorID string, coerced bool) (uuid.UUID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.outputs[outputID]; !ok {
		return uuid.Nil, fmt.Errorf("store/memory: unknown output %s", outputID)
	}
	id := uuid.New()
	s.evaluations = append(s.evaluations, store.EvaluationResult{
		ID:             id,
		OutputID:       outputID,
		Score:          score,
		Feedback:       feedback,
		ImprovedOutput: improvedOutput,
		IsHuman:        isHuman,
		EvaluatorID:    evaluatorID,
		Coerced:        coerced,
		CreatedAt:      time.Now(),
	})
	return id, nil
}

func (s *Store) StoreHumanFeedback(ctx context.Context, outputID uuid.UUID, score *int, feedback, improvedOutput string) (uuid.UUID, error) {
	return s.StoreEvaluation(ctx, outputID, score, feedback, improvedOutput, true, "human", false)
}

func (s *Store) GetPrompt(_ context.Context, id uuid.UUID) (*store.StoredPrompt, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.prompts[id]
	if !ok {
		return nil, fmt.Errorf("store/memory: unknown prompt %s", id)
	}
	cp := p
	return &cp, nil
}

// GetCurrentDataForAnnotation returns up to limit outputs from roundNum
// that do not yet have a human evaluation, each carrying its latest AI
// evaluation if one exists (spec.md §4.3).
func (s *Store) GetCurrentDataForAnnotation(_ context.Context, roundNum, limit int) ([]store.AnnotationItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	humanEvaluated := make(map[uuid.UUID]bool)
	latestAI := make(map[uuid.UUID]store.EvaluationResult)
	for _, e := range s.evaluations {
		if e.IsHuman {
			humanEvaluated[e.OutputID] = true
			continue
		}
		latestAI[e.OutputID] = e
	}

	var items []store.AnnotationItem
	var ids []uuid.UUID
	for id, o := range s.outputs {
		if o.RoundNum != roundNum || humanEvaluated[id] {
			continue
		}
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return s.outputs[ids[i]].CreatedAt.Before(s.outputs[ids[j]].CreatedAt) })

	for _, id := range ids {
		if limit > 0 && len(items) >= limit {
			break
		}
		o := s.outputs[id]
		item := store.AnnotationItem{
			OutputID: o.ID,
			Input:    o.InputData,
			Content:  o.Content,
			PromptID: o.PromptID,
		}
		if ai, ok := latestAI[id]; ok {
			aiCopy := ai
			item.AIEvaluation = &aiCopy
		}
		items = append(items, item)
	}
	return items, nil
}

// effectiveScoresByPrompt groups each output's effective score under its
// prompt. An output's effective evaluation is its latest human evaluation
// if one exists, else its latest AI evaluation (DESIGN.md's Open Question
// decision on human-preferred, AI-fallback scoring); outputs whose
// effective evaluation has a null score (persistent parse failure) are
// excluded entirely rather than treated as zero.
func (s *Store) effectiveScoresByPrompt() map[uuid.UUID][]int {
	latestHuman := make(map[uuid.UUID]store.EvaluationResult)
	latestAI := make(map[uuid.UUID]store.EvaluationResult)
	for _, e := range s.evaluations {
		if e.IsHuman {
			if cur, ok := latestHuman[e.OutputID]; !ok || e.CreatedAt.After(cur.CreatedAt) {
				latestHuman[e.OutputID] = e
			}
			continue
		}
		if cur, ok := latestAI[e.OutputID]; !ok || e.CreatedAt.After(cur.CreatedAt) {
			latestAI[e.OutputID] = e
		}
	}

	scores := make(map[uuid.UUID][]int)
	for _, o := range s.outputs {
		eff, ok := latestHuman[o.ID]
		if !ok {
			eff, ok = latestAI[o.ID]
		}
		if ok && eff.Score != nil {
			scores[o.PromptID] = append(scores[o.PromptID], *eff.Score)
		}
	}
	return scores
}

// GetCurrentBestPrompts ranks prompts by mean score descending, breaking
// ties by evaluation count descending then by CreatedAt ascending (the
// "more evidence, then earlier" tie-break recorded as an Open Question
// decision in DESIGN.md).
func (s *Store) GetCurrentBestPrompts(_ context.Context, topN int) ([]store.BestPrompt, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	scores := s.effectiveScoresByPrompt()
	latestPerf := latestPerformanceByPrompt(s.performances)

	var out []store.BestPrompt
	for id, p := range s.prompts {
		ss := scores[id]
		var mean *float64
		if len(ss) > 0 {
			sum := 0
			for _, v := range ss {
				sum += v
			}
			m := round2(float64(sum) / float64(len(ss)))
			mean = &m
		}
		perf, hasPerf := latestPerf[id]
		out = append(out, store.BestPrompt{
			PromptID:             id,
			Content:              p.Content,
			Generation:           p.Generation,
			MeanScore:            mean,
			EvaluationCount:      len(ss),
			CreatedAt:            p.CreatedAt,
			Survived:             hasPerf && perf.Survived,
			HasPerformanceRecord: hasPerf,
		})
	}

	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		switch {
		case a.MeanScore == nil && b.MeanScore == nil:
			// fall through to tie-break
		case a.MeanScore == nil:
			return false
		case b.MeanScore == nil:
			return true
		case *a.MeanScore != *b.MeanScore:
			return *a.MeanScore > *b.MeanScore
		}
		if a.EvaluationCount != b.EvaluationCount {
			return a.EvaluationCount > b.EvaluationCount
		}
		return a.CreatedAt.Before(b.CreatedAt)
	})

	if topN > 0 && len(out) > topN {
		out = out[:topN]
	}
	return out, nil
}

func (s *Store) GetPerformanceMetrics(_ context.Context, maxRounds int) ([]store.GenerationMetrics, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	byGen := make(map[int][]store.PerformanceRecord)
	for _, pr := range latestPerformanceByPrompt(s.performances) {
		p, ok := s.prompts[pr.PromptID]
		if !ok {
			continue
		}
		byGen[p.Generation] = append(byGen[p.Generation], pr)
	}

	var gens []int
	for g := range byGen {
		gens = append(gens, g)
	}
	sort.Ints(gens)
	if maxRounds > 0 && len(gens) > maxRounds {
		gens = gens[len(gens)-maxRounds:]
	}

	var out []store.GenerationMetrics
	for _, g := range gens {
		recs := byGen[g]
		var sum float64
		var n int
		var best *float64
		var survivors int
		for _, r := range recs {
			if r.AvgScore != nil {
				sum += *r.AvgScore
				n++
				if best == nil || *r.AvgScore > *best {
					v := *r.AvgScore
					best = &v
				}
			}
			if r.Survived {
				survivors++
			}
		}
		var mean *float64
		if n > 0 {
			m := round2(sum / float64(n))
			mean = &m
		}
		if best != nil {
			v := round2(*best)
			best = &v
		}
		ratio := 0.0
		if len(recs) > 0 {
			ratio = float64(survivors) / float64(len(recs))
		}
		out = append(out, store.GenerationMetrics{
			Generation:    g,
			MeanScore:     mean,
			BestScore:     best,
			SurvivalRatio: ratio,
			PromptCount:   len(recs),
		})
	}
	return out, nil
}

func (s *Store) GetPromptHistory(_ context.Context) ([]store.PromptHistoryEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	latestScore := make(map[uuid.UUID]float64)
	hasScore := make(map[uuid.UUID]bool)
	for _, pr := range s.performances {
		if pr.AvgScore != nil {
			latestScore[pr.PromptID] = *pr.AvgScore
			hasScore[pr.PromptID] = true
		}
	}

	var out []store.PromptHistoryEntry
	for id, p := range s.prompts {
		entry := store.PromptHistoryEntry{
			Generation:     p.Generation,
			PromptID:       id,
			ParentID:       p.ParentID,
			ContentExcerpt: excerpt(p.Content, 120),
		}
		if hasScore[id] {
			v := latestScore[id]
			entry.MeanScore = &v
		}
		out = append(out, entry)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Generation != out[j].Generation {
			return out[i].Generation < out[j].Generation
		}
		return out[i].PromptID.String() < out[j].PromptID.String()
	})
	return out, nil
}

// CommitGeneration applies all survivor flags and inserts all variant
// prompts under a single lock acquisition, so a reader never observes a
// partially-committed generation.
func (s *Store) CommitGeneration(_ context.Context, survivors []store.PerformanceRecord, variants []store.StoredPrompt) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, sv := range survivors {
		if _, ok := s.prompts[sv.PromptID]; !ok {
			return fmt.Errorf("store/memory: commit references unknown prompt %s", sv.PromptID)
		}
	}
	for _, v := range variants {
		if v.ParentID != nil {
			if _, ok := s.prompts[*v.ParentID]; !ok {
				return fmt.Errorf("store/memory: commit references unknown parent %s", *v.ParentID)
			}
		}
	}

	for _, sv := range survivors {
		rec := sv
		rec.RecordedAt = time.Now()
		s.performances = append(s.performances, rec)
	}
	for _, v := range variants {
		s.prompts[v.ID] = v
	}
	return nil
}

func excerpt(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "…"
}
