package controlloop

import (
	"context"

	"github.com/archerhq/archer/prompt"
)

// selectActive implements SELECT_ACTIVE (spec.md §4.8 step 1). The
// candidate set is the committed candidate set from the previous
// COMMIT_GENERATION — surviving parents unioned with the variants that
// generation accepted — recovered from get_current_best_prompts' latest
// performance snapshot rather than a prompt's own Generation field
// (spec.md §3 invariant 4: a surviving parent keeps appearing as a
// candidate alongside its own variants, even though its Generation value
// is older than theirs). Prompts with no performance snapshot at all —
// freshly committed variants, or a freshly seeded generation-0 prompt —
// are eligible precisely because nothing has judged them yet. At a fresh
// store this returns nothing and RunCycle no-ops.
func (l *Loop) selectActive(ctx context.Context) ([]*prompt.Prompt, int, error) {
	ranked, err := l.store.GetCurrentBestPrompts(ctx, 0)
	if err != nil {
		return nil, 0, err
	}

	candidates := ranked[:0:0]
	for _, r := range ranked {
		if r.Survived || !r.HasPerformanceRecord {
			candidates = append(candidates, r)
		}
	}
	if len(candidates) == 0 {
		return nil, l.currentGeneration(), nil
	}
	if len(candidates) > l.cfg.MaxPromptsPerCycle {
		candidates = candidates[:l.cfg.MaxPromptsPerCycle]
	}

	active := make([]*prompt.Prompt, 0, len(candidates))
	for _, r := range candidates {
		sp, err := l.store.GetPrompt(ctx, r.PromptID)
		if err != nil {
			return nil, 0, err
		}
		p := &prompt.Prompt{
			ID:         sp.ID,
			Content:    sp.Content,
			Generation: sp.Generation,
			ModelID:    sp.ModelID,
			Purpose:    sp.Purpose,
			Score:      r.MeanScore,
			ParentID:   sp.ParentID,
			CreatedAt:  sp.CreatedAt,
		}
		active = append(active, p)
	}
	return active, l.currentGeneration(), nil
}
