package optimizer

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/archerhq/archer/archererr"
)

// parseVariantResponse extracts a variantResponse out of a possibly
// markdown-fenced or prose-wrapped LLM response, using the teacher's
// cleanJSONResponse approach to locate the JSON payload first.
func parseVariantResponse(raw string) (variantResponse, error) {
	cleaned := cleanJSONResponse(raw)
	var v variantResponse
	if err := json.Unmarshal([]byte(cleaned), &v); err != nil {
		return variantResponse{}, archererr.Wrap(archererr.KindParse, "parsing variant response", err)
	}
	if strings.TrimSpace(v.Content) == "" {
		return variantResponse{}, archererr.New(archererr.KindParse, "variant response has empty content")
	}
	return v, nil
}

// buildSlotRepairPrompt asks the model to restate a variant that failed
// the slot-preservation check, per spec.md §4.6 step 3's one repair
// attempt before discarding.
func buildSlotRepairPrompt(previousContent string, slot string) string {
	var b strings.Builder
	b.WriteString("The prompt you proposed does not satisfy the required format.\n\n")
	fmt.Fprintf(&b, "Previous proposal:\n%s\n\n", previousContent)
	fmt.Fprintf(&b, "It must contain the literal slot %q exactly once, and nowhere else. Restate the same idea, fixed.\n\n", slot)
	b.WriteString(`Respond with ONLY a raw JSON object: {"content": "...", "reasoning": "..."}`)
	return b.String()
}
