// Package controlloop implements the Control Loop (spec.md §4.8): the
// state machine that ties the Prompt Entity, Content Generator, Rubric
// Evaluator, Prompt Optimizer, and Database Adapter into one cycle —
// SELECT_ACTIVE, FORWARD_PASS, an optional HUMAN_GATE, BACKWARD_PASS, and
// COMMIT_GENERATION. Grounded on the teacher's optimizer/batch_optimizer.go
// (goroutine-per-item fan-out with a bound on concurrent work) generalized
// from a WaitGroup over one slice to a per-model concurrency gate, and on
// the original Python program's run_forward_pass/run_backward_pass/
// run_training_loop sequencing
// (_examples/original_source/archer/archer.py).
package controlloop

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/archerhq/archer/evaluator"
	"github.com/archerhq/archer/optimizer"
	"github.com/archerhq/archer/prompt"
	"github.com/archerhq/archer/store"
)

// Generator is the subset of *generator.ContentGenerator the loop needs.
type Generator interface {
	Generate(ctx context.Context, p *prompt.Prompt, input string) (string, error)
}

// Evaluator is the subset of *evaluator.RubricEvaluator the loop needs.
type Evaluator interface {
	Evaluate(ctx context.Context, modelID, inputData, generatedContent string, rubric evaluator.Rubric, contextSnippets []string) (evaluator.Result, error)
}

// Optimizer is the subset of *optimizer.Optimizer the loop needs.
type Optimizer interface {
	GenerateVariants(ctx context.Context, parent *prompt.Prompt, feedback []string, numVariants int) ([]*prompt.Prompt, []optimizer.Discarded, error)
}

// Store is the subset of store.Store the loop needs.
type Store interface {
	StoreGeneratedContent(ctx context.Context, inputData, content string, promptID uuid.UUID, roundNum int) (uuid.UUID, error)
	StoreEvaluation(ctx context.Context, outputID uuid.UUID, score *int, feedback, improvedOutput string, isHuman bool, evaluatorID string, coerced bool) (uuid.UUID, error)
	GetPrompt(ctx context.Context, id uuid.UUID) (*store.StoredPrompt, error)
	GetCurrentBestPrompts(ctx context.Context, topN int) ([]store.BestPrompt, error)
	CommitGeneration(ctx context.Context, survivors []store.PerformanceRecord, variants []store.StoredPrompt) error
}

var (
	_ Store = (store.Store)(nil)
)

// InputSampler draws the next input record for a forward-pass simulation.
// ok is false once the sampler is exhausted; a finite sampler ending
// mid-cycle simply stops the loop from drawing further pairs for that
// cycle, per spec.md §6 ("core treats exhaustion as end-of-loop").
type InputSampler interface {
	Next(ctx context.Context) (input string, ok bool, err error)
}

// FailureCount is one entry of CycleReport.Failures: how many times a
// given kind of failure occurred at a given stage (spec.md §6).
type FailureCount struct {
	Stage string
	Kind  string
	Count int
}

// CycleReport is the exact shape spec.md §6 assigns to run_cycle's return
// value.
type CycleReport struct {
	Generation          int
	PromptsEvaluated    int
	OutputsProduced     int
	EvaluationsRecorded int
	MeanScore           *float64
	BestScore           *float64
	Survivors           []uuid.UUID
	NewVariants         []uuid.UUID
	Failures            []FailureCount
}

// Config holds run_cycle's tunables (spec.md §6's Configuration options).
type Config struct {
	NumSimulationsPerPrompt int
	MaxPromptsPerCycle      int
	NumVariantsPerSurvivor  int
	SurvivorFraction        float64
	HumanGate               bool
	PerModelConcurrency     int
}

// DefaultConfig returns spec.md §6's stated defaults.
func DefaultConfig() Config {
	return Config{
		NumSimulationsPerPrompt: 3,
		MaxPromptsPerCycle:      4,
		NumVariantsPerSurvivor:  3,
		SurvivorFraction:        0.5,
		HumanGate:               false,
		PerModelConcurrency:     8,
	}
}

// Option configures a Loop.
type Option func(*Loop)

// WithConfig replaces the loop's whole Config.
func WithConfig(cfg Config) Option {
	return func(l *Loop) { l.cfg = cfg }
}

// WithRubric sets the rubric passed to every Evaluate call this loop
// makes.
func WithRubric(rubric evaluator.Rubric) Option {
	return func(l *Loop) { l.rubric = rubric }
}

// WithContextSnippets sets the knowledge-base passages passed to every
// Evaluate call this loop makes.
func WithContextSnippets(snippets ...string) Option {
	return func(l *Loop) { l.contextSnippets = snippets }
}

// Loop is the default Control Loop.
type Loop struct {
	generator Generator
	evaluator Evaluator
	optimizer Optimizer
	store     Store

	cfg             Config
	rubric          evaluator.Rubric
	contextSnippets []string

	sems *modelSemaphores

	genMu      sync.Mutex
	generation int

	pendingMu sync.Mutex
	pending   *pendingCycle
}

// pendingCycle is a cycle's state after FORWARD_PASS has completed but
// BACKWARD_PASS has not yet run, held between RunCycle's HUMAN_GATE
// suspension and a later ResumeCycle call.
type pendingCycle struct {
	active []*prompt.Prompt
	fo     *forwardOutcome
	report *CycleReport
}

// currentGeneration returns the loop's cycle-level generation counter
// (spec.md Glossary: "Generation... increments by 1 each completed
// cycle"), independent of any individual prompt's Generation field.
func (l *Loop) currentGeneration() int {
	l.genMu.Lock()
	defer l.genMu.Unlock()
	return l.generation
}

// advanceGeneration increments the loop's generation counter after a
// cycle commits, per spec.md §4.8's COMMIT_GENERATION step.
func (l *Loop) advanceGeneration() int {
	l.genMu.Lock()
	defer l.genMu.Unlock()
	l.generation++
	return l.generation
}

// setPending stashes a suspended cycle's state for a later ResumeCycle
// call, overwriting anything left over from an abandoned prior gate.
func (l *Loop) setPending(p *pendingCycle) {
	l.pendingMu.Lock()
	defer l.pendingMu.Unlock()
	l.pending = p
}

// takePending returns and clears the pending cycle, if any.
func (l *Loop) takePending() *pendingCycle {
	l.pendingMu.Lock()
	defer l.pendingMu.Unlock()
	p := l.pending
	l.pending = nil
	return p
}

// New builds a Loop around its collaborators.
func New(gen Generator, eval Evaluator, opt Optimizer, st Store, opts ...Option) *Loop {
	l := &Loop{
		generator: gen,
		evaluator: eval,
		optimizer: opt,
		store:     st,
		cfg:       DefaultConfig(),
	}
	for _, o := range opts {
		o(l)
	}
	l.cfg.normalize()
	l.sems = newModelSemaphores(l.cfg.PerModelConcurrency)
	return l
}

// normalize fills in any zero-value field of a Config supplied wholesale
// via WithConfig with spec.md §6's default, so a caller that only cares
// about overriding one knob doesn't have to restate the rest.
func (c *Config) normalize() {
	d := DefaultConfig()
	if c.NumSimulationsPerPrompt <= 0 {
		c.NumSimulationsPerPrompt = d.NumSimulationsPerPrompt
	}
	if c.MaxPromptsPerCycle <= 0 {
		c.MaxPromptsPerCycle = d.MaxPromptsPerCycle
	}
	if c.NumVariantsPerSurvivor <= 0 {
		c.NumVariantsPerSurvivor = d.NumVariantsPerSurvivor
	}
	if c.SurvivorFraction <= 0 {
		c.SurvivorFraction = d.SurvivorFraction
	}
	if c.PerModelConcurrency <= 0 {
		c.PerModelConcurrency = d.PerModelConcurrency
	}
}
