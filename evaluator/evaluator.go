// Package evaluator implements the Rubric Evaluator (spec.md §4.5): it
// builds an evaluation prompt from a rubric, input, and generated
// content, calls the LLM at low temperature, and tolerantly parses the
// labeled response into a structured result. Grounded on the original
// Python AIExpert.evaluate
// (_examples/original_source/archer/forwardPass/evaluator/evaluator.py)
// for the prompt shape, and on the teacher's cleanJSONResponse
// (optimizer/utils.go) for the general "extract the payload out of a
// noisy LLM response" approach, adapted from JSON-block extraction to
// labeled-section extraction.
package evaluator

import (
	"context"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/pkoukk/tiktoken-go"

	"github.com/archerhq/archer/archererr"
	"github.com/archerhq/archer/archerlog"
)

// Rubric is the scoring criteria handed to the evaluator. Text is the
// full rubric description injected verbatim into the evaluation prompt.
type Rubric struct {
	Text string `validate:"required"`
}

// Result is the outcome of one evaluate call.
type Result struct {
	// Score is nil when parsing failed persistently (spec.md §4.5 step 4).
	Score          *int
	Feedback       string
	ImprovedOutput string
	// Coerced is true when the raw score was out of range or non-integer
	// and had to be clamped/rounded (spec.md §4.5 step 5).
	Coerced bool
}

// Caller is the subset of *llmcaller.Caller the evaluator needs.
type Caller interface {
	Call(ctx context.Context, modelID, promptText string, temperature float64) (string, error)
}

// Evaluator is the narrow interface the control loop depends on.
type Evaluator interface {
	Evaluate(ctx context.Context, modelID, inputData, generatedContent string, rubric Rubric, contextSnippets []string) (Result, error)
}

// Option configures a RubricEvaluator.
type Option func(*RubricEvaluator)

// WithTemperature overrides the evaluation temperature (spec.md §6's
// EvaluatorTemperature); the default is 0.2.
func WithTemperature(temperature float64) Option {
	return func(e *RubricEvaluator) { e.temperature = temperature }
}

// WithContextBudget overrides the maximum token length of the
// concatenated knowledge-base context window. spec.md §4.5 states the
// default as "≤8000 characters"; approximated here as 2000 tokens (the
// conventional ~4 characters/token ratio), then enforced in tokens via
// tiktoken-go so truncation matches what the target model actually
// sees, following the teacher's llm/memory.go token-budgeting approach.
func WithContextBudget(tokens int) Option {
	return func(e *RubricEvaluator) {
		if tokens > 0 {
			e.contextBudgetTokens = tokens
		}
	}
}

// WithMaxContextPassages overrides M, the max number of context
// passages accepted (spec.md §4.5's default 5).
func WithMaxContextPassages(m int) Option {
	return func(e *RubricEvaluator) {
		if m > 0 {
			e.maxContextPassages = m
		}
	}
}

// RubricEvaluator is the default Evaluator.
type RubricEvaluator struct {
	caller              Caller
	logger              archerlog.Logger
	validate            *validator.Validate
	encoding            *tiktoken.Tiktoken
	temperature         float64
	contextBudgetTokens int
	maxContextPassages  int
}

// New builds a RubricEvaluator around caller. A nil logger falls back
// to a no-op logger. modelID selects the tiktoken encoding used to
// measure the knowledge-base context window; unrecognized models fall
// back to the gpt-4o encoding, mirroring the teacher's NewMemory.
func New(caller Caller, logger archerlog.Logger, modelID string, opts ...Option) (*RubricEvaluator, error) {
	if logger == nil {
		logger = archerlog.Nop()
	}
	encoding, err := tiktoken.EncodingForModel(modelID)
	if err != nil {
		encoding, err = tiktoken.EncodingForModel("gpt-4o")
		if err != nil {
			return nil, archererr.Wrap(archererr.KindMalformed, "loading token encoding", err)
		}
	}
	e := &RubricEvaluator{
		caller:              caller,
		logger:              logger,
		validate:            validator.New(),
		encoding:            encoding,
		temperature:         0.2,
		contextBudgetTokens: 2000,
		maxContextPassages:  5,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Evaluate implements spec.md §4.5's algorithm end to end, including
// the one-shot repair call on parse failure.
func (e *RubricEvaluator) Evaluate(ctx context.Context, modelID, inputData, generatedContent string, rubric Rubric, contextSnippets []string) (Result, error) {
	if err := e.validate.Struct(rubric); err != nil {
		return Result{}, archererr.Wrap(archererr.KindMalformed, "invalid rubric", err)
	}

	context := tokenBoundContext(contextSnippets, e.maxContextPassages, e.contextBudgetTokens, e.encoding)
	evalPrompt := buildEvaluationPrompt(inputData, generatedContent, rubric.Text, context)

	e.logger.Debug("evaluating content", "model", modelID, "prompt_len", len(evalPrompt))

	raw, err := e.caller.Call(ctx, modelID, evalPrompt, e.temperature)
	if err != nil {
		return Result{}, err
	}

	if parsed, ok := parseEvaluation(raw); ok {
		return parsed.clamp(), nil
	}

	e.logger.Warn("evaluator response unparseable, attempting repair", "model", modelID)
	repairPrompt := buildRepairPrompt(raw)
	repaired, err := e.caller.Call(ctx, modelID, repairPrompt, e.temperature)
	if err != nil {
		return Result{}, err
	}

	if parsed, ok := parseEvaluation(repaired); ok {
		return parsed.clamp(), nil
	}

	e.logger.Warn("evaluator response unparseable after repair", "model", modelID)
	return Result{Score: nil, Feedback: "parse_error", ImprovedOutput: ""}, nil
}

func buildEvaluationPrompt(inputData, generatedContent, rubricText string, context []string) string {
	var b strings.Builder
	b.WriteString("You are an expert evaluator. Assess the generated content against the rubric below.\n\n")
	if len(context) > 0 {
		b.WriteString("Reference context:\n")
		for _, c := range context {
			b.WriteString("- ")
			b.WriteString(c)
			b.WriteString("\n")
		}
		b.WriteString("\n")
	}
	fmt.Fprintf(&b, "Rubric:\n%s\n\n", rubricText)
	fmt.Fprintf(&b, "Input data:\n%s\n\n", inputData)
	fmt.Fprintf(&b, "Generated content:\n%s\n\n", generatedContent)
	b.WriteString("Respond using exactly this template, one item per line:\n")
	b.WriteString("SCORE: <integer 1-5>\n")
	b.WriteString("FEEDBACK: <how to improve>\n")
	b.WriteString("IMPROVED_OUTPUT: <an example of better output>\n")
	return b.String()
}

func buildRepairPrompt(previousResponse string) string {
	var b strings.Builder
	b.WriteString("Your previous response could not be parsed. Restate it in the exact template below, with no other text.\n\n")
	fmt.Fprintf(&b, "Previous response:\n%s\n\n", previousResponse)
	b.WriteString("SCORE: <integer 1-5>\n")
	b.WriteString("FEEDBACK: <how to improve>\n")
	b.WriteString("IMPROVED_OUTPUT: <an example of better output>\n")
	return b.String()
}
