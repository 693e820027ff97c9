package memory

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/archerhq/archer/store"
)

func TestStorePromptAndGet(t *testing.T) {
	s := New()
	ctx := context.Background()

	id, err := s.StorePrompt(ctx, "summarize {input}", "gpt-4", "generator", 0, nil)
	require.NoError(t, err)

	got, err := s.GetPrompt(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "summarize {input}", got.Content)
	assert.Equal(t, 0, got.Generation)
	assert.Nil(t, got.ParentID)
}

func TestUpdatePromptPerformanceUnknownPrompt(t *testing.T) {
	s := New()
	score := 4.2
	err := s.UpdatePromptPerformance(context.Background(), uuid.New(), &score, true)
	assert.Error(t, err)
}

func TestStoreGeneratedContentAndEvaluation(t *testing.T) {
	s := New()
	ctx := context.Background()

	promptID, err := s.StorePrompt(ctx, "summarize {input}", "gpt-4", "generator", 0, nil)
	require.NoError(t, err)

	outputID, err := s.StoreGeneratedContent(ctx, "the input text", "the summary", promptID, 1)
	require.NoError(t, err)

	score := 4
	evalID, err := s.StoreEvaluation(ctx, outputID, &score, "clear and accurate", "", false, "ai_evaluator", false)
	require.NoError(t, err)
	assert.NotEqual(t, evalID, outputID)

	items, err := s.GetCurrentDataForAnnotation(ctx, 1, 0)
	require.NoError(t, err)
	require.Len(t, items, 1)
	require.NotNil(t, items[0].AIEvaluation)
	assert.Equal(t, 4, *items[0].AIEvaluation.Score)

	// Once a human evaluation exists, the item drops out of the
	// annotation queue.
	_, err = s.StoreHumanFeedback(ctx, outputID, &score, "agreed", "")
	require.NoError(t, err)

	items, err = s.GetCurrentDataForAnnotation(ctx, 1, 0)
	require.NoError(t, err)
	assert.Empty(t, items)
}

func TestGetCurrentBestPromptsOrdersByScoreWithUnscoredLast(t *testing.T) {
	s := New()
	ctx := context.Background()

	strong, err := s.StorePrompt(ctx, "a {input}", "gpt-4", "generator", 0, nil)
	require.NoError(t, err)
	weak, err := s.StorePrompt(ctx, "b {input}", "gpt-4", "generator", 0, nil)
	require.NoError(t, err)
	unscored, err := s.StorePrompt(ctx, "c {input}", "gpt-4", "generator", 0, nil)
	require.NoError(t, err)

	out1, err := s.StoreGeneratedContent(ctx, "in", "out", strong, 1)
	require.NoError(t, err)
	out2, err := s.StoreGeneratedContent(ctx, "in", "out", weak, 1)
	require.NoError(t, err)
	_, err = s.StoreGeneratedContent(ctx, "in", "out", unscored, 1)
	require.NoError(t, err)

	hi, lo := 5, 2
	_, err = s.StoreEvaluation(ctx, out1, &hi, "great", "", false, "ai_evaluator", false)
	require.NoError(t, err)
	_, err = s.StoreEvaluation(ctx, out2, &lo, "meh", "", false, "ai_evaluator", false)
	require.NoError(t, err)

	best, err := s.GetCurrentBestPrompts(ctx, 0)
	require.NoError(t, err)
	require.Len(t, best, 3)
	assert.Equal(t, strong, best[0].PromptID)
	assert.Equal(t, weak, best[1].PromptID)
	assert.Equal(t, unscored, best[2].PromptID)
	assert.Nil(t, best[2].MeanScore)
}

func TestCommitGenerationIsAllOrNothing(t *testing.T) {
	s := New()
	ctx := context.Background()

	parent, err := s.StorePrompt(ctx, "a {input}", "gpt-4", "generator", 0, nil)
	require.NoError(t, err)

	danglingParent := uuid.New()
	badVariant := store.StoredPrompt{
		ID:         uuid.New(),
		Content:    "b {input}",
		ModelID:    "gpt-4",
		Purpose:    "generator",
		Generation: 1,
		ParentID:   &danglingParent,
	}

	err = s.CommitGeneration(ctx, nil, []store.StoredPrompt{badVariant})
	assert.Error(t, err)

	// The failed commit must not have persisted the variant.
	_, err = s.GetPrompt(ctx, badVariant.ID)
	assert.Error(t, err)

	goodVariant := store.StoredPrompt{
		ID:         uuid.New(),
		Content:    "b {input}",
		ModelID:    "gpt-4",
		Purpose:    "generator",
		Generation: 1,
		ParentID:   &parent,
	}
	score := 3.5
	err = s.CommitGeneration(ctx,
		[]store.PerformanceRecord{{PromptID: parent, AvgScore: &score, Survived: true}},
		[]store.StoredPrompt{goodVariant})
	require.NoError(t, err)

	_, err = s.GetPrompt(ctx, goodVariant.ID)
	assert.NoError(t, err)
}
