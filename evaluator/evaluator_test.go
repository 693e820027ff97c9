package evaluator

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/archerhq/archer/llmcaller"
)

func mustNewEvaluator(t *testing.T, provider *llmcaller.MockProvider, opts ...Option) *RubricEvaluator {
	t.Helper()
	caller := llmcaller.New(provider, nil)
	e, err := New(caller, nil, "gpt-4", opts...)
	require.NoError(t, err)
	return e
}

func TestEvaluateHappyPath(t *testing.T) {
	provider := llmcaller.NewMockProvider("SCORE: 4\nFEEDBACK: concise\nIMPROVED_OUTPUT: A cat was sitting.")
	e := mustNewEvaluator(t, provider)

	res, err := e.Evaluate(context.Background(), "gpt-4", "The cat sat.", "A cat sat down.", Rubric{Text: "clarity"}, nil)
	require.NoError(t, err)
	require.NotNil(t, res.Score)
	assert.Equal(t, 4, *res.Score)
	assert.Equal(t, "concise", res.Feedback)
	assert.Equal(t, "A cat was sitting.", res.ImprovedOutput)
	assert.False(t, res.Coerced)
}

func TestEvaluateAlternativeLabelFormats(t *testing.T) {
	t.Run("fraction score", func(t *testing.T) {
		provider := llmcaller.NewMockProvider("score - 4/5\nfeedback - solid\nimproved_output - better text")
		e := mustNewEvaluator(t, provider)
		res, err := e.Evaluate(context.Background(), "gpt-4", "in", "out", Rubric{Text: "r"}, nil)
		require.NoError(t, err)
		require.NotNil(t, res.Score)
		assert.Equal(t, 4, *res.Score)
	})

	t.Run("spelled out score", func(t *testing.T) {
		provider := llmcaller.NewMockProvider("Score: four\nFeedback: fine")
		e := mustNewEvaluator(t, provider)
		res, err := e.Evaluate(context.Background(), "gpt-4", "in", "out", Rubric{Text: "r"}, nil)
		require.NoError(t, err)
		require.NotNil(t, res.Score)
		assert.Equal(t, 4, *res.Score)
	})

	t.Run("noisy prose around labels", func(t *testing.T) {
		provider := llmcaller.NewMockProvider("Sure, here is my evaluation.\nSCORE: 3\nFEEDBACK: needs work\nIMPROVED_OUTPUT: try again\nThanks!")
		e := mustNewEvaluator(t, provider)
		res, err := e.Evaluate(context.Background(), "gpt-4", "in", "out", Rubric{Text: "r"}, nil)
		require.NoError(t, err)
		require.NotNil(t, res.Score)
		assert.Equal(t, 3, *res.Score)
	})
}

func TestEvaluateClampsOutOfRangeScore(t *testing.T) {
	provider := llmcaller.NewMockProvider("SCORE: 9\nFEEDBACK: excessive\nIMPROVED_OUTPUT: n/a")
	e := mustNewEvaluator(t, provider)

	res, err := e.Evaluate(context.Background(), "gpt-4", "in", "out", Rubric{Text: "r"}, nil)
	require.NoError(t, err)
	require.NotNil(t, res.Score)
	assert.Equal(t, 5, *res.Score)
	assert.True(t, res.Coerced)
}

func TestEvaluateRepairsOnParseFailure(t *testing.T) {
	provider := llmcaller.NewMockProvider(
		"it was fine",
		"SCORE: 3\nFEEDBACK: ok\nIMPROVED_OUTPUT: ...",
	)
	e := mustNewEvaluator(t, provider)

	res, err := e.Evaluate(context.Background(), "gpt-4", "in", "out", Rubric{Text: "r"}, nil)
	require.NoError(t, err)
	require.NotNil(t, res.Score)
	assert.Equal(t, 3, *res.Score)
	assert.NotEqual(t, "parse_error", res.Feedback)
	assert.Equal(t, 2, provider.Calls())
}

func TestEvaluatePersistentParseFailureReturnsNilScore(t *testing.T) {
	provider := llmcaller.NewMockProvider("prose", "still prose, no labels here")
	e := mustNewEvaluator(t, provider)

	res, err := e.Evaluate(context.Background(), "gpt-4", "in", "out", Rubric{Text: "r"}, nil)
	require.NoError(t, err)
	assert.Nil(t, res.Score)
	assert.Equal(t, "parse_error", res.Feedback)
	assert.Equal(t, 2, provider.Calls())
}

func TestEvaluateRejectsEmptyRubric(t *testing.T) {
	provider := llmcaller.NewMockProvider("SCORE: 4")
	e := mustNewEvaluator(t, provider)

	_, err := e.Evaluate(context.Background(), "gpt-4", "in", "out", Rubric{}, nil)
	assert.Error(t, err)
	assert.Zero(t, provider.Calls())
}

func TestEvaluateBoundsContextPassageCount(t *testing.T) {
	var gotPrompt string
	provider := &llmcaller.MockProvider{
		CallFunc: func(_ context.Context, _, promptText string, _ float64) (string, error) {
			gotPrompt = promptText
			return "SCORE: 3\nFEEDBACK: ok\nIMPROVED_OUTPUT: n/a", nil
		},
	}
	e := mustNewEvaluator(t, provider, WithMaxContextPassages(2))

	snippets := []string{"alpha passage", "beta passage", "gamma passage should be dropped"}
	_, err := e.Evaluate(context.Background(), "gpt-4", "in", "out", Rubric{Text: "r"}, snippets)
	require.NoError(t, err)
	assert.Contains(t, gotPrompt, "alpha passage")
	assert.Contains(t, gotPrompt, "beta passage")
	assert.NotContains(t, gotPrompt, "gamma passage")
}
