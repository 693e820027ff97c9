// Package generator implements the Content Generator (spec.md §4.4): it
// substitutes one input string into a prompt's single {input} slot and
// forwards the result to the LLM Caller. Grounded on the original
// Python implementation's GenerativeModel.generate
// (_examples/original_source/archer/forwardPass/generator/generator.py),
// adapted so each call handles exactly one prompt against one input
// rather than the original's batch-over-active-prompts loop — that
// fan-out now lives in the control loop, which parallelizes across
// prompts with a WaitGroup bounded per model.
package generator

import (
	"context"
	"strings"

	"github.com/archerhq/archer/archererr"
	"github.com/archerhq/archer/archerlog"
	"github.com/archerhq/archer/llmcaller"
	"github.com/archerhq/archer/prompt"
)

// Generator is the narrow interface the control loop depends on,
// letting tests substitute a stub that never calls an LLM.
type Generator interface {
	Generate(ctx context.Context, p *prompt.Prompt, input string) (string, error)
}

// Caller is the subset of *llmcaller.Caller the generator needs.
type Caller interface {
	Call(ctx context.Context, modelID, promptText string, temperature float64) (string, error)
}

var _ Caller = (*llmcaller.Caller)(nil)

// Option configures a ContentGenerator.
type Option func(*ContentGenerator)

// WithTemperature overrides the generation temperature (spec.md §6's
// GeneratorTemperature); the default is 0.7.
func WithTemperature(temperature float64) Option {
	return func(g *ContentGenerator) { g.temperature = temperature }
}

// ContentGenerator is the default Generator.
type ContentGenerator struct {
	caller      Caller
	logger      archerlog.Logger
	temperature float64
}

// New builds a ContentGenerator around caller. A nil logger falls back
// to a no-op logger.
func New(caller Caller, logger archerlog.Logger, opts ...Option) *ContentGenerator {
	if logger == nil {
		logger = archerlog.Nop()
	}
	g := &ContentGenerator{caller: caller, logger: logger, temperature: 0.7}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Generate substitutes input into p's single {input} slot and calls the
// LLM with p's model at the generator's configured temperature. It
// fails with KindSlotMissing before any LLM call when the slot isn't
// present exactly once (spec.md §4.4, §7).
func (g *ContentGenerator) Generate(ctx context.Context, p *prompt.Prompt, input string) (string, error) {
	if !prompt.HasExactlyOneSlot(p.Content) {
		return "", archererr.New(archererr.KindSlotMissing, "prompt does not contain the {input} slot exactly once")
	}

	promptText := strings.Replace(p.Content, prompt.Slot, input, 1)

	g.logger.Debug("generating content", "prompt_id", p.ID, "model", p.ModelID, "input_len", len(input))

	content, err := g.caller.Call(ctx, p.ModelID, promptText, g.temperature)
	if err != nil {
		return "", err
	}
	return content, nil
}
