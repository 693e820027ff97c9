package archer_test

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/archerhq/archer"
	"github.com/archerhq/archer/controlloop"
	"github.com/archerhq/archer/llmcaller"
)

// scriptedCall routes a generator's plain-text call, an evaluator's
// template call, and an optimizer's variant call to distinct canned
// responses, keyed on a marker only the evaluation prompt contains
// ("SCORE:", part of its response template) and one only the optimizer
// prompt contains ("rewriting a prompt"). Variant calls cycle through
// distinct slot-preserving rewrites so none is discarded as a
// near-duplicate. All three collaborators share one Caller, so CallFunc
// is the only place that can tell them apart.
func scriptedCall(generated, evalTemplate string) func(ctx context.Context, model, promptText string, temperature float64) (string, error) {
	variants := []string{
		`{"content": "Rewrite concisely: {input}"}`,
		`{"content": "In one paragraph, distill: {input}"}`,
		`{"content": "As a helpful assistant, summarize: {input}"}`,
	}
	next := 0
	return func(ctx context.Context, model, promptText string, temperature float64) (string, error) {
		if strings.Contains(promptText, "SCORE:") {
			return evalTemplate, nil
		}
		if strings.Contains(promptText, "rewriting a prompt") {
			v := variants[next%len(variants)]
			next++
			return v, nil
		}
		return generated, nil
	}
}

func TestArcherRunCycleEndToEnd(t *testing.T) {
	ctx := context.Background()

	provider := &llmcaller.MockProvider{
		CallFunc: scriptedCall("a tidy summary", "SCORE: 4\nFEEDBACK: trim the intro\nIMPROVED_OUTPUT: a tidier summary\n"),
	}

	cfg := archer.DefaultConfig()
	cfg.NumSimulationsPerPrompt = 1
	cfg.MaxPromptsPerCycle = 4
	cfg.NumVariantsPerSurvivor = 2
	cfg.SurvivorFraction = 1.0

	eng, err := archer.New(provider, cfg, archer.WithRubric(archer.Rubric{Text: "be concise and accurate"}))
	require.NoError(t, err)

	_, err = eng.Seed(ctx, "Summarize: {input}", "gpt-4", "summarization")
	require.NoError(t, err)

	report, err := eng.RunCycle(ctx, controlloop.NewSliceSampler([]string{"a long article about bees"}))
	require.NoError(t, err)

	assert.Equal(t, 0, report.Generation)
	assert.Equal(t, 1, report.PromptsEvaluated)
	assert.Equal(t, 1, report.OutputsProduced)
	assert.Equal(t, 1, report.EvaluationsRecorded)
	require.NotNil(t, report.MeanScore)
	assert.InDelta(t, 4.0, *report.MeanScore, 0.001)
	require.Len(t, report.Survivors, 1)
	assert.Empty(t, report.Failures)

	metrics, err := eng.Tracker().PerGenerationMetrics(ctx, 0)
	require.NoError(t, err)
	require.NotEmpty(t, metrics)
	assert.Equal(t, 0, metrics[0].Generation)
}

func TestArcherRunCycleNoSeedIsNoop(t *testing.T) {
	ctx := context.Background()
	provider := &llmcaller.MockProvider{}

	eng, err := archer.New(provider, archer.DefaultConfig())
	require.NoError(t, err)

	report, err := eng.RunCycle(ctx, controlloop.NewSliceSampler([]string{"anything"}))
	require.NoError(t, err)
	assert.Equal(t, 0, report.PromptsEvaluated)
	assert.Equal(t, 0, report.OutputsProduced)
}
