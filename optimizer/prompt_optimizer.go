package optimizer

import (
	"context"

	"github.com/archerhq/archer/archererr"
	"github.com/archerhq/archer/prompt"
)

// GenerateVariants implements spec.md §4.6's optimize operation end to
// end: it builds one optimizer prompt from parent and feedback, fires
// numVariants independent calls at the configured temperature, verifies
// and repairs the slot invariant per response, enforces the diversity
// floor against the parent and against each other, and returns the
// survivors as unpersisted generation+1 children of parent alongside a
// record of everything discarded and why.
//
// numVariants <= 0 uses the configured default; values above
// MaxNumVariants are capped.
func (o *Optimizer) GenerateVariants(ctx context.Context, parent *prompt.Prompt, feedback []string, numVariants int) ([]*prompt.Prompt, []Discarded, error) {
	if ctx.Err() != nil {
		return nil, nil, archererr.Wrap(archererr.KindCancelled, "generate variants cancelled", ctx.Err())
	}

	if numVariants <= 0 {
		numVariants = o.defaultNumVariants
	}
	if numVariants > MaxNumVariants {
		numVariants = MaxNumVariants
	}

	variantPrompt := o.buildVariantPrompt(parent, summarizeFeedback(feedback))

	o.logger.Debug("generating variants", "parent_id", parent.ID, "num_variants", numVariants, "temperature", o.temperature)

	results := callConcurrently(ctx, numVariants, func(ctx context.Context, _ int) (string, error) {
		return o.caller.Call(ctx, parent.ModelID, variantPrompt, o.temperature)
	})

	var (
		variants  []*prompt.Prompt
		discarded []Discarded
		accepted  []string
	)

	for _, r := range results {
		if r.err != nil {
			discarded = append(discarded, Discarded{Reason: DiscardCallFailed, Detail: r.err.Error()})
			continue
		}

		content, ok := o.resolveContent(ctx, parent, r.text)
		if !ok {
			resp, parseErr := parseVariantResponse(r.text)
			detail := ""
			if parseErr != nil {
				detail = parseErr.Error()
			}
			reason := DiscardUnparseable
			if parseErr == nil {
				reason = DiscardSlotViolation
			}
			discarded = append(discarded, Discarded{Reason: reason, Content: resp.Content, Detail: detail})
			continue
		}

		if o.isNearDuplicate(content, parent.Content, accepted) {
			discarded = append(discarded, Discarded{Reason: DiscardNearDuplicate, Content: content})
			continue
		}

		accepted = append(accepted, content)
		variants = append(variants, parent.DeriveChild(content))
	}

	return variants, discarded, nil
}

// resolveContent parses raw, verifies the slot invariant, and attempts
// up to o.maxRepairAttempts repair calls (spec.md §4.6 step 3) before
// giving up. ok is false when the content could not be parsed or never
// satisfied the invariant.
func (o *Optimizer) resolveContent(ctx context.Context, parent *prompt.Prompt, raw string) (string, bool) {
	resp, err := parseVariantResponse(raw)
	if err != nil {
		return "", false
	}
	if prompt.HasExactlyOneSlot(resp.Content) {
		return resp.Content, true
	}

	current := resp.Content
	for attempt := 0; attempt < o.maxRepairAttempts; attempt++ {
		repaired, err := o.caller.Call(ctx, parent.ModelID, buildSlotRepairPrompt(current, prompt.Slot), o.temperature)
		if err != nil {
			return "", false
		}
		resp, err := parseVariantResponse(repaired)
		if err != nil {
			return "", false
		}
		current = resp.Content
		if prompt.HasExactlyOneSlot(resp.Content) {
			return resp.Content, true
		}
	}
	return "", false
}

// isNearDuplicate reports whether candidate is too similar to the parent
// or to any already-accepted variant, per spec.md §4.6's diversity
// requirement.
func (o *Optimizer) isNearDuplicate(candidate, parentContent string, accepted []string) bool {
	if normalizedLevenshtein(candidate, parentContent) < o.diversityThreshold {
		return true
	}
	for _, a := range accepted {
		if normalizedLevenshtein(candidate, a) < o.diversityThreshold {
			return true
		}
	}
	return false
}
