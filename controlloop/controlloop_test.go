package controlloop_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/archerhq/archer/controlloop"
	"github.com/archerhq/archer/evaluator"
	"github.com/archerhq/archer/optimizer"
	"github.com/archerhq/archer/prompt"
	"github.com/archerhq/archer/store/memory"
)

type fakeGenerator struct {
	content string
	err     error
}

func (f *fakeGenerator) Generate(context.Context, *prompt.Prompt, string) (string, error) {
	return f.content, f.err
}

type fakeEvaluator struct {
	score    *int
	feedback string
	err      error
}

func (f *fakeEvaluator) Evaluate(context.Context, string, string, string, evaluator.Rubric, []string) (evaluator.Result, error) {
	if f.err != nil {
		return evaluator.Result{}, f.err
	}
	return evaluator.Result{Score: f.score, Feedback: f.feedback}, nil
}

type fakeOptimizer struct {
	variants  []*prompt.Prompt
	discarded []optimizer.Discarded
	err       error
}

func (f *fakeOptimizer) GenerateVariants(context.Context, *prompt.Prompt, []string, int) ([]*prompt.Prompt, []optimizer.Discarded, error) {
	return f.variants, f.discarded, f.err
}

type sliceSampler struct {
	inputs []string
	i      int
}

func (s *sliceSampler) Next(context.Context) (string, bool, error) {
	if s.i >= len(s.inputs) {
		return "", false, nil
	}
	v := s.inputs[s.i]
	s.i++
	return v, true, nil
}

func score(v int) *int { return &v }

func seedPrompt(t *testing.T, st *memory.Store) prompt.Prompt {
	t.Helper()
	ctx := context.Background()
	id, err := st.StorePrompt(ctx, "Summarize: {input}", "gpt-4", "summarization", 0, nil)
	require.NoError(t, err)
	sp, err := st.GetPrompt(ctx, id)
	require.NoError(t, err)
	return prompt.Prompt{ID: sp.ID, Content: sp.Content, ModelID: sp.ModelID, Purpose: sp.Purpose}
}

func TestRunCycleHappyPath(t *testing.T) {
	ctx := context.Background()
	st := memory.New()
	seeded := seedPrompt(t, st)

	variantA := (&prompt.Prompt{ID: seeded.ID}).DeriveChild("Rewrite: {input}")
	variantB := (&prompt.Prompt{ID: seeded.ID}).DeriveChild("Condense: {input}")

	l := controlloop.New(
		&fakeGenerator{content: "an output"},
		&fakeEvaluator{score: score(4), feedback: "solid"},
		&fakeOptimizer{variants: []*prompt.Prompt{variantA, variantB}},
		st,
		controlloop.WithConfig(controlloop.Config{
			NumSimulationsPerPrompt: 1,
			MaxPromptsPerCycle:      4,
			NumVariantsPerSurvivor:  2,
			SurvivorFraction:        1.0,
		}),
		controlloop.WithRubric(evaluator.Rubric{Text: "be concise"}),
	)

	report, err := l.RunCycle(ctx, &sliceSampler{inputs: []string{"hello"}})
	require.NoError(t, err)

	assert.Equal(t, 0, report.Generation)
	assert.Equal(t, 1, report.PromptsEvaluated)
	assert.Equal(t, 1, report.OutputsProduced)
	assert.Equal(t, 1, report.EvaluationsRecorded)
	require.NotNil(t, report.MeanScore)
	assert.InDelta(t, 4.0, *report.MeanScore, 0.001)
	require.NotNil(t, report.BestScore)
	assert.InDelta(t, 4.0, *report.BestScore, 0.001)
	require.Len(t, report.Survivors, 1)
	assert.Equal(t, seeded.ID, report.Survivors[0])
	assert.Len(t, report.NewVariants, 2)
	assert.Empty(t, report.Failures)

	best, err := st.GetCurrentBestPrompts(ctx, 0)
	require.NoError(t, err)
	var sawGeneration1 int
	for _, b := range best {
		if b.Generation == 1 {
			sawGeneration1++
		}
	}
	assert.Equal(t, 2, sawGeneration1)
}

func TestRunCycleRecordsSlotMissingDiscardAsFailure(t *testing.T) {
	ctx := context.Background()
	st := memory.New()
	seeded := seedPrompt(t, st)

	l := controlloop.New(
		&fakeGenerator{content: "an output"},
		&fakeEvaluator{score: score(5)},
		&fakeOptimizer{discarded: []optimizer.Discarded{{Reason: optimizer.DiscardSlotViolation, Content: "no slot here"}}},
		st,
		controlloop.WithConfig(controlloop.Config{
			NumSimulationsPerPrompt: 1,
			MaxPromptsPerCycle:      4,
			NumVariantsPerSurvivor:  1,
			SurvivorFraction:        1.0,
		}),
	)

	report, err := l.RunCycle(ctx, &sliceSampler{inputs: []string{"hello"}})
	require.NoError(t, err)
	require.Len(t, report.Survivors, 1)
	assert.Equal(t, seeded.ID, report.Survivors[0])
	assert.Empty(t, report.NewVariants)
	require.Len(t, report.Failures, 1)
	assert.Equal(t, "BACKWARD_PASS", report.Failures[0].Stage)
	assert.Equal(t, "SLOT_MISSING", report.Failures[0].Kind)
}

func TestRunCyclePreCancelledContextStopsBeforeCommit(t *testing.T) {
	st := memory.New()
	seedPrompt(t, st)

	l := controlloop.New(
		&fakeGenerator{content: "an output"},
		&fakeEvaluator{score: score(4)},
		&fakeOptimizer{},
		st,
		controlloop.WithConfig(controlloop.Config{
			NumSimulationsPerPrompt: 3,
			MaxPromptsPerCycle:      4,
			SurvivorFraction:        1.0,
		}),
	)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	report, err := l.RunCycle(ctx, &sliceSampler{inputs: []string{"a", "b", "c"}})
	require.Error(t, err)
	require.NotNil(t, report)
	assert.Equal(t, 0, report.OutputsProduced)
	assert.Equal(t, 0, report.EvaluationsRecorded)
	assert.Empty(t, report.Survivors)
	assert.Empty(t, report.NewVariants)
	require.NotEmpty(t, report.Failures)
	for _, f := range report.Failures {
		assert.Equal(t, "CANCELLED", f.Kind)
	}

	metrics, err := st.GetPerformanceMetrics(context.Background(), 0)
	require.NoError(t, err)
	assert.Empty(t, metrics)
}

func TestRunCycleHumanGateStopsBeforeBackwardPass(t *testing.T) {
	ctx := context.Background()
	st := memory.New()
	seedPrompt(t, st)

	l := controlloop.New(
		&fakeGenerator{content: "an output"},
		&fakeEvaluator{score: score(3)},
		&fakeOptimizer{},
		st,
		controlloop.WithConfig(controlloop.Config{
			NumSimulationsPerPrompt: 1,
			MaxPromptsPerCycle:      4,
			SurvivorFraction:        1.0,
			HumanGate:               true,
		}),
	)

	report, err := l.RunCycle(ctx, &sliceSampler{inputs: []string{"hello"}})
	require.NoError(t, err)
	assert.Equal(t, 1, report.OutputsProduced)
	assert.Equal(t, 1, report.EvaluationsRecorded)
	assert.Empty(t, report.Survivors)
	assert.Empty(t, report.NewVariants)
	assert.Nil(t, report.MeanScore)

	metrics, err := st.GetPerformanceMetrics(ctx, 0)
	require.NoError(t, err)
	assert.Empty(t, metrics)
}

func TestResumeCycleAppliesHumanOverride(t *testing.T) {
	ctx := context.Background()
	st := memory.New()
	seeded := seedPrompt(t, st)
	variantA := (&prompt.Prompt{ID: seeded.ID}).DeriveChild("Rewrite: {input}")

	l := controlloop.New(
		&fakeGenerator{content: "an output"},
		&fakeEvaluator{score: score(2), feedback: "weak"},
		&fakeOptimizer{variants: []*prompt.Prompt{variantA}},
		st,
		controlloop.WithConfig(controlloop.Config{
			NumSimulationsPerPrompt: 1,
			MaxPromptsPerCycle:      4,
			NumVariantsPerSurvivor:  1,
			SurvivorFraction:        1.0,
			HumanGate:               true,
		}),
	)

	report, err := l.RunCycle(ctx, &sliceSampler{inputs: []string{"hello"}})
	require.NoError(t, err)
	assert.Empty(t, report.Survivors)
	assert.Nil(t, report.MeanScore)

	// The AI scored this output a 2 — below what this test's survivor
	// fraction would keep on its own merits were it not 1.0 — but a human
	// reviewer disagrees, and that override must be what BACKWARD_PASS
	// sees once resumed (spec.md §8 scenario S6).
	items, err := st.GetCurrentDataForAnnotation(ctx, report.Generation, 10)
	require.NoError(t, err)
	require.Len(t, items, 1)
	_, err = st.StoreHumanFeedback(ctx, items[0].OutputID, score(5), "much better", "")
	require.NoError(t, err)

	resumed, err := l.ResumeCycle(ctx)
	require.NoError(t, err)
	require.NotNil(t, resumed.MeanScore)
	assert.InDelta(t, 5.0, *resumed.MeanScore, 0.001)
	require.Len(t, resumed.Survivors, 1)
	assert.Equal(t, seeded.ID, resumed.Survivors[0])
	assert.Len(t, resumed.NewVariants, 1)

	_, err = l.ResumeCycle(ctx)
	assert.Error(t, err)
}

func TestSelectActiveKeepsSurvivingParentAlongsideItsVariants(t *testing.T) {
	ctx := context.Background()
	st := memory.New()
	seeded := seedPrompt(t, st)
	variantA := (&prompt.Prompt{ID: seeded.ID}).DeriveChild("Rewrite: {input}")

	l := controlloop.New(
		&fakeGenerator{content: "an output"},
		&fakeEvaluator{score: score(4)},
		&fakeOptimizer{variants: []*prompt.Prompt{variantA}},
		st,
		controlloop.WithConfig(controlloop.Config{
			NumSimulationsPerPrompt: 1,
			MaxPromptsPerCycle:      4,
			NumVariantsPerSurvivor:  1,
			SurvivorFraction:        1.0,
		}),
	)

	_, err := l.RunCycle(ctx, &sliceSampler{inputs: []string{"hello"}})
	require.NoError(t, err)

	// Gen 0's seed survived and gen 1 now holds its variant. The next
	// cycle's active set must include both, not just the newer generation.
	report, err := l.RunCycle(ctx, &sliceSampler{inputs: []string{"world"}})
	require.NoError(t, err)
	assert.Equal(t, 2, report.PromptsEvaluated)
}

func TestRunTrainingLoopStopsWhenSamplerExhausted(t *testing.T) {
	ctx := context.Background()
	st := memory.New()
	seedPrompt(t, st)

	l := controlloop.New(
		&fakeGenerator{content: "an output"},
		&fakeEvaluator{score: score(4)},
		&fakeOptimizer{},
		st,
		controlloop.WithConfig(controlloop.Config{
			NumSimulationsPerPrompt: 1,
			MaxPromptsPerCycle:      4,
			SurvivorFraction:        1.0,
		}),
	)

	reports, err := l.RunTrainingLoop(ctx, &sliceSampler{inputs: []string{"only-one"}}, 5, 0)
	require.NoError(t, err)
	require.Len(t, reports, 2)
	assert.Equal(t, 1, reports[0].OutputsProduced)
	assert.Equal(t, 1, reports[1].PromptsEvaluated)
	assert.Equal(t, 0, reports[1].OutputsProduced)
}
