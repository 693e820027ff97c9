package optimizer

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/archerhq/archer/prompt"
)

// buildVariantPrompt assembles the optimizer prompt described by
// spec.md §4.6 step 1: the parent's content, a summary of its score and
// aggregated feedback, and an explicit requirement that the variant
// preserve the {input} slot exactly once and the parent's purpose. The
// response contract is rendered from o.responseSchema so the model sees
// the exact field names parseVariantResponse expects.
func (o *Optimizer) buildVariantPrompt(parent *prompt.Prompt, feedbackSummary string) string {
	schemaJSON, err := json.MarshalIndent(o.responseSchema, "", "  ")
	if err != nil {
		// The schema is built once from a fixed struct at construction
		// time; marshaling it cannot fail in practice.
		schemaJSON = []byte(`{"content": "string", "reasoning": "string"}`)
	}

	var b strings.Builder
	b.WriteString("You are rewriting a prompt to improve its performance, based on past feedback.\n\n")
	fmt.Fprintf(&b, "Purpose: %s\n\n", parent.Purpose)
	fmt.Fprintf(&b, "Current prompt:\n%s\n\n", parent.Content)
	if parent.Score != nil {
		fmt.Fprintf(&b, "Current mean score: %.2f\n\n", *parent.Score)
	}
	if feedbackSummary != "" {
		fmt.Fprintf(&b, "Aggregated feedback from past evaluations:\n%s\n\n", feedbackSummary)
	} else {
		b.WriteString("No prior feedback is available; propose a genuinely different phrasing.\n\n")
	}
	b.WriteString("Requirements:\n")
	fmt.Fprintf(&b, "- The rewritten prompt MUST contain the literal slot %q exactly once.\n", prompt.Slot)
	b.WriteString("- Preserve the stated purpose; do not change what task the prompt asks for.\n")
	b.WriteString("- Make a substantive change, not a cosmetic one (whitespace or punctuation only is not acceptable).\n\n")
	b.WriteString("Respond with ONLY a raw JSON object matching this schema, no markdown fences:\n")
	b.Write(schemaJSON)
	return b.String()
}

// summarizeFeedback deduplicates and concatenates feedback strings from
// the parent's evaluations (spec.md §4.6 step 1's "deduplicated"
// requirement). Order of first appearance is preserved.
func summarizeFeedback(feedback []string) string {
	seen := make(map[string]bool, len(feedback))
	var lines []string
	for _, f := range feedback {
		f = strings.TrimSpace(f)
		if f == "" || seen[f] {
			continue
		}
		seen[f] = true
		lines = append(lines, "- "+f)
	}
	return strings.Join(lines, "\n")
}
