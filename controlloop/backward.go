package controlloop

import (
	"context"
	"math"
	"sort"

	"github.com/google/uuid"

	"github.com/archerhq/archer/archererr"
	"github.com/archerhq/archer/optimizer"
	"github.com/archerhq/archer/prompt"
	"github.com/archerhq/archer/store"
)

// round2 rounds v to two decimal places, the precision spec.md §4.3 and
// property 3 require for every persisted or reported mean/best score.
func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// backwardResult is everything BACKWARD_PASS computes, ready for
// COMMIT_GENERATION to persist as one atomic operation.
type backwardResult struct {
	survivorRecords []store.PerformanceRecord
	variants        []store.StoredPrompt
	meanScore       *float64
	bestScore       *float64
	survivorIDs     []uuid.UUID
	variantIDs      []uuid.UUID
	failures        []FailureCount
}

// scoredVariant pairs a candidate variant with its source parent's
// average score, so backwardPass can truncate the accepted variants
// preferring those of higher-scoring parents (spec.md §4.8's "parent preferred, then
// score" truncation rule).
type scoredVariant struct {
	prompt      *prompt.Prompt
	parentScore float64
}

// backwardPass implements BACKWARD_PASS (spec.md §4.8 step 4): compute
// each active prompt's aggregate score, mark the top survivor_fraction
// (rounded up) of active prompts as survivors, drawn only from prompts
// with a score (a null average is never eligible, per spec.md §8
// scenario S3), and ask the Prompt Optimizer for
// num_variants_per_survivor children of each survivor.
//
// Scores are read fresh from the store's effective evaluations (latest
// human evaluation if one exists, else latest AI) rather than from the
// forward pass's in-memory AI-only snapshot, the same basis
// get_current_best_prompts uses — so a human override recorded during a
// HUMAN_GATE suspension changes the survival decision (spec.md §8
// scenario S6).
func (l *Loop) backwardPass(ctx context.Context, active []*prompt.Prompt, fo *forwardOutcome) (*backwardResult, error) {
	res := &backwardResult{}

	effective, err := l.store.GetCurrentBestPrompts(ctx, 0)
	if err != nil {
		return nil, err
	}
	byID := make(map[uuid.UUID]store.BestPrompt, len(effective))
	for _, b := range effective {
		byID[b.PromptID] = b
	}

	type scored struct {
		p       *prompt.Prompt
		avg     *float64
		evalCnt int
	}
	all := make([]scored, 0, len(active))

	var sum float64
	var n int
	var best *float64
	for _, p := range active {
		b := byID[p.ID]
		all = append(all, scored{p: p, avg: b.MeanScore, evalCnt: b.EvaluationCount})
		if b.MeanScore != nil {
			sum += *b.MeanScore
			n++
			if best == nil || *b.MeanScore > *best {
				best = b.MeanScore
			}
		}
	}
	if n > 0 {
		mean := round2(sum / float64(n))
		res.meanScore = &mean
	}
	if best != nil {
		v := round2(*best)
		res.bestScore = &v
	}

	candidates := make([]scored, 0, len(all))
	for _, s := range all {
		if s.avg != nil {
			candidates = append(candidates, s)
		}
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		if *candidates[i].avg != *candidates[j].avg {
			return *candidates[i].avg > *candidates[j].avg
		}
		if candidates[i].evalCnt != candidates[j].evalCnt {
			return candidates[i].evalCnt > candidates[j].evalCnt
		}
		return candidates[i].p.CreatedAt.Before(candidates[j].p.CreatedAt)
	})

	survivorCount := int(math.Ceil(float64(len(active)) * l.cfg.SurvivorFraction))
	if survivorCount > len(candidates) {
		survivorCount = len(candidates)
	}
	survived := make(map[uuid.UUID]bool, survivorCount)
	for i := 0; i < survivorCount; i++ {
		survived[candidates[i].p.ID] = true
	}

	for _, s := range all {
		s.p.AttachScore(s.avg, "")
		s.p.MarkSurvived(survived[s.p.ID])
		res.survivorRecords = append(res.survivorRecords, store.PerformanceRecord{
			PromptID: s.p.ID,
			AvgScore: s.avg,
			Survived: s.p.Survived,
		})
		if s.p.Survived {
			res.survivorIDs = append(res.survivorIDs, s.p.ID)
		}
	}

	var scoredVariants []scoredVariant
	for _, s := range all {
		if !s.p.Survived {
			continue
		}
		variants, discarded, err := l.optimizer.GenerateVariants(ctx, s.p, fo.feedback[s.p.ID], l.cfg.NumVariantsPerSurvivor)
		if err != nil {
			res.failures = append(res.failures, FailureCount{Stage: "BACKWARD_PASS", Kind: archererr.KindOf(err).String(), Count: 1})
			continue
		}
		for _, d := range discarded {
			res.failures = append(res.failures, FailureCount{Stage: "BACKWARD_PASS", Kind: discardKind(d.Reason), Count: 1})
		}
		parentScore := 0.0
		if s.avg != nil {
			parentScore = *s.avg
		}
		for _, v := range variants {
			scoredVariants = append(scoredVariants, scoredVariant{prompt: v, parentScore: parentScore})
		}
	}

	sort.SliceStable(scoredVariants, func(i, j int) bool {
		return scoredVariants[i].parentScore > scoredVariants[j].parentScore
	})

	keep := l.cfg.MaxPromptsPerCycle - len(res.survivorIDs)
	if keep < 0 {
		keep = 0
	}
	if keep < len(scoredVariants) {
		scoredVariants = scoredVariants[:keep]
	}

	for _, sv := range scoredVariants {
		res.variants = append(res.variants, store.StoredPrompt{
			ID:         sv.prompt.ID,
			Content:    sv.prompt.Content,
			ModelID:    sv.prompt.ModelID,
			Purpose:    sv.prompt.Purpose,
			Generation: sv.prompt.Generation,
			ParentID:   sv.prompt.ParentID,
			CreatedAt:  sv.prompt.CreatedAt,
		})
		res.variantIDs = append(res.variantIDs, sv.prompt.ID)
	}

	res.failures = append(res.failures, fo.failureCounts()...)
	return res, nil
}

func discardKind(reason optimizer.DiscardReason) string {
	switch reason {
	case optimizer.DiscardSlotViolation:
		return archererr.KindSlotMissing.String()
	case optimizer.DiscardCallFailed:
		return archererr.KindTransport.String()
	case optimizer.DiscardUnparseable:
		return archererr.KindParse.String()
	default:
		return string(reason)
	}
}
