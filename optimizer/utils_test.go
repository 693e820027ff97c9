package optimizer

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCleanJSONResponseStripsFencesAndProse(t *testing.T) {
	assert.Equal(t, `{"a":1}`, cleanJSONResponse("```json\n{\"a\":1}\n```"))
	assert.Equal(t, `{"a":1}`, cleanJSONResponse(`{"a":1}`))
	assert.Equal(t, `{"a":1}`, cleanJSONResponse(`Sure, here you go: {"a":1} Hope that helps!`))
}

func TestNormalizedLevenshteinIdenticalIsZero(t *testing.T) {
	assert.Equal(t, 0.0, normalizedLevenshtein("same text", "same text"))
}

func TestNormalizedLevenshteinDetectsNearDuplicate(t *testing.T) {
	d := normalizedLevenshtein("Summarize the following: {input}", "Summarize the following:  {input}")
	assert.Less(t, d, 0.05)
}

func TestNormalizedLevenshteinDetectsGenuineDifference(t *testing.T) {
	d := normalizedLevenshtein("Summarize the following: {input}", "Translate this into French, keeping the tone: {input}")
	assert.Greater(t, d, 0.3)
}

func TestSummarizeFeedbackDeduplicatesPreservingOrder(t *testing.T) {
	got := summarizeFeedback([]string{"too long", "unclear", "too long", "  ", ""})
	assert.Equal(t, "- too long\n- unclear", got)
}
