package generator

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/archerhq/archer/archererr"
	"github.com/archerhq/archer/llmcaller"
	"github.com/archerhq/archer/prompt"
)

func TestGenerateSubstitutesSlotAndCallsLLM(t *testing.T) {
	provider := llmcaller.NewMockProvider("the summary")
	caller := llmcaller.New(provider, nil)
	g := New(caller, nil)

	p := prompt.New("Summarize: {input}", "gpt-4", "generator")

	out, err := g.Generate(context.Background(), p, "a long article")
	require.NoError(t, err)
	assert.Equal(t, "the summary", out)
}

func TestGenerateFailsFastWithoutCallingLLMWhenSlotMissing(t *testing.T) {
	provider := llmcaller.NewMockProvider("should never be returned")
	caller := llmcaller.New(provider, nil)
	g := New(caller, nil)

	p := prompt.New("Summarize the following text.", "gpt-4", "generator")

	_, err := g.Generate(context.Background(), p, "a long article")
	require.Error(t, err)
	assert.Equal(t, archererr.KindSlotMissing, archererr.KindOf(err))
	assert.Zero(t, provider.Calls())
}

func TestGenerateFailsFastWhenSlotAppearsTwice(t *testing.T) {
	provider := llmcaller.NewMockProvider("unused")
	caller := llmcaller.New(provider, nil)
	g := New(caller, nil)

	p := prompt.New("{input} and again {input}", "gpt-4", "generator")

	_, err := g.Generate(context.Background(), p, "x")
	require.Error(t, err)
	assert.Equal(t, archererr.KindSlotMissing, archererr.KindOf(err))
	assert.Zero(t, provider.Calls())
}

func TestGenerateUsesConfiguredTemperature(t *testing.T) {
	var gotTemp float64
	provider := &llmcaller.MockProvider{
		CallFunc: func(_ context.Context, _, _ string, temperature float64) (string, error) {
			gotTemp = temperature
			return "ok", nil
		},
	}
	caller := llmcaller.New(provider, nil)
	g := New(caller, nil, WithTemperature(1.3))

	p := prompt.New("{input}", "gpt-4", "generator")
	_, err := g.Generate(context.Background(), p, "x")
	require.NoError(t, err)
	assert.Equal(t, 1.3, gotTemp)
}
