// Package archer is the module root: a small facade that wires the LLM
// Caller, Content Generator, Rubric Evaluator, Prompt Optimizer,
// Performance Tracker, and Control Loop together around one Database
// Adapter, following the teacher's gollm.go shape (NewLLM loads config,
// builds a logger, then constructs the concrete LLM around a provider
// registry) generalized to this engine's larger collaborator graph.
package archer

import (
	"context"

	"github.com/google/uuid"

	"github.com/archerhq/archer/archerconfig"
	"github.com/archerhq/archer/archererr"
	"github.com/archerhq/archer/archerlog"
	"github.com/archerhq/archer/controlloop"
	"github.com/archerhq/archer/evaluator"
	"github.com/archerhq/archer/generator"
	"github.com/archerhq/archer/llmcaller"
	"github.com/archerhq/archer/optimizer"
	"github.com/archerhq/archer/store"
	"github.com/archerhq/archer/store/memory"
	"github.com/archerhq/archer/tracker"
)

// Config is the engine's tunable set (spec.md §6); re-exported so callers
// need only import this package for the common case.
type Config = archerconfig.Config

// DefaultConfig returns every tunable at its specification default.
func DefaultConfig() archerconfig.Config { return archerconfig.Default() }

// LoadConfig builds a Config from environment variables, per
// archerconfig.Load.
func LoadConfig() (archerconfig.Config, error) { return archerconfig.Load() }

// Rubric re-exports evaluator.Rubric so callers configuring an Archer
// don't need a second import for it.
type Rubric = evaluator.Rubric

// InputSampler re-exports controlloop.InputSampler.
type InputSampler = controlloop.InputSampler

// CycleReport re-exports controlloop.CycleReport.
type CycleReport = controlloop.CycleReport

// settings accumulates New's optional configuration before construction.
type settings struct {
	store              store.Store
	logger             archerlog.Logger
	debug              *archerlog.DebugManager
	rubric             evaluator.Rubric
	contextSnippets    []string
	evaluatorModelHint string
}

// Option configures New.
type Option func(*settings)

// WithStore supplies a Database Adapter other than the in-memory default
// (for example store/postgres.Connect's result).
func WithStore(s store.Store) Option {
	return func(st *settings) { st.store = s }
}

// WithLogger supplies a Logger other than the no-op default.
func WithLogger(logger archerlog.Logger) Option {
	return func(st *settings) { st.logger = logger }
}

// WithDebugManager attaches a DebugManager that records every prompt and
// response the LLM Caller sends and receives.
func WithDebugManager(dm *archerlog.DebugManager) Option {
	return func(st *settings) { st.debug = dm }
}

// WithRubric sets the rubric text every Evaluate call is scored against.
func WithRubric(rubric evaluator.Rubric) Option {
	return func(st *settings) { st.rubric = rubric }
}

// WithContextSnippets sets the knowledge-base passages supplied to every
// Evaluate call (spec.md §4.5).
func WithContextSnippets(snippets ...string) Option {
	return func(st *settings) { st.contextSnippets = snippets }
}

// WithEvaluatorModelHint selects the tiktoken encoding the Rubric
// Evaluator uses to size its context budget (evaluator.New's modelID
// parameter). Unrecognized hints, and the zero value, fall back to the
// gpt-4o encoding. Only affects context-window truncation, not scoring.
func WithEvaluatorModelHint(modelID string) Option {
	return func(st *settings) { st.evaluatorModelHint = modelID }
}

// Archer is one engine instance: a Control Loop and its Database Adapter,
// wired to a single LLM provider.
type Archer struct {
	loop    *controlloop.Loop
	store   store.Store
	tracker *tracker.Tracker
	logger  archerlog.Logger
	cfg     archerconfig.Config
}

// New builds an Archer around provider and cfg. provider is the only
// required external collaborator: the transport the LLM Caller retries
// and rate-limits against (spec.md §1 names it out of core scope).
func New(provider llmcaller.Provider, cfg archerconfig.Config, opts ...Option) (*Archer, error) {
	st := &settings{logger: archerlog.Nop()}
	for _, opt := range opts {
		opt(st)
	}
	if st.store == nil {
		st.store = memory.New()
	}

	callerOpts := []llmcaller.Option{
		llmcaller.WithMaxAttempts(cfg.LLMMaxAttempts),
		llmcaller.WithPerAttemptTimeout(cfg.LLMPerAttemptTimeout),
		llmcaller.WithOverallBudget(cfg.LLMOverallBudget),
	}
	if st.debug != nil {
		callerOpts = append(callerOpts, llmcaller.WithDebugManager(st.debug))
	}
	caller := llmcaller.New(provider, st.logger, callerOpts...)

	gen := generator.New(caller, st.logger, generator.WithTemperature(cfg.GeneratorTemperature))

	eval, err := evaluator.New(caller, st.logger, st.evaluatorModelHint, evaluator.WithTemperature(cfg.EvaluatorTemperature))
	if err != nil {
		return nil, err
	}

	opt := optimizer.New(caller, st.logger, optimizer.WithTemperature(cfg.OptimizerTemperature))

	loop := controlloop.New(gen, eval, opt, st.store,
		controlloop.WithConfig(controlloop.Config{
			NumSimulationsPerPrompt: cfg.NumSimulationsPerPrompt,
			MaxPromptsPerCycle:      cfg.MaxPromptsPerCycle,
			NumVariantsPerSurvivor:  cfg.NumVariantsPerSurvivor,
			SurvivorFraction:        cfg.SurvivorFraction,
			HumanGate:               cfg.HumanGate,
			PerModelConcurrency:     cfg.ModelConcurrency,
		}),
		controlloop.WithRubric(st.rubric),
		controlloop.WithContextSnippets(st.contextSnippets...),
	)

	return &Archer{
		loop:    loop,
		store:   st.store,
		tracker: tracker.New(st.store),
		logger:  st.logger,
		cfg:     cfg,
	}, nil
}

// Store exposes the Database Adapter, for seeding prompts and recording
// human feedback.
func (a *Archer) Store() store.Store { return a.store }

// Tracker exposes the Performance Tracker's read-only aggregate views.
func (a *Archer) Tracker() *tracker.Tracker { return a.tracker }

// Seed persists a generation-0 prompt, the one way to populate a fresh
// Database Adapter before the first cycle (SELECT_ACTIVE picks up every
// stored prompt that has no performance snapshot yet, which includes a
// freshly seeded one).
func (a *Archer) Seed(ctx context.Context, content, modelID, purpose string) (uuid.UUID, error) {
	return a.store.StorePrompt(ctx, content, modelID, purpose, 0, nil)
}

// RunCycle implements spec.md §4.8's run_cycle, applying the configured
// cycle wall budget as a deadline. If the cycle is still running when the
// budget expires, the returned error's kind is BUDGET_EXCEEDED rather
// than CANCELLED, distinguishing a graceful, expected stop from an
// externally requested one (spec.md §7).
func (a *Archer) RunCycle(ctx context.Context, sampler controlloop.InputSampler) (*controlloop.CycleReport, error) {
	if a.cfg.CycleWallBudget <= 0 {
		return a.loop.RunCycle(ctx, sampler)
	}

	budgeted, cancel := context.WithTimeout(ctx, a.cfg.CycleWallBudget)
	defer cancel()

	report, err := a.loop.RunCycle(budgeted, sampler)
	if err != nil && budgeted.Err() == context.DeadlineExceeded && ctx.Err() == nil {
		err = archererr.Wrap(archererr.KindBudgetExceeded, "cycle wall budget exceeded", err)
	}
	return report, err
}

// RunTrainingLoop implements spec.md §4.8's run_training_loop, applying
// the configured early-stop epsilon.
func (a *Archer) RunTrainingLoop(ctx context.Context, sampler controlloop.InputSampler, numCycles int) ([]*controlloop.CycleReport, error) {
	return a.loop.RunTrainingLoop(ctx, sampler, numCycles, a.cfg.EarlyStopEpsilon)
}

// ResumeCycle completes a cycle that RunCycle suspended at HUMAN_GATE
// (WithConfig's HumanGate option), running BACKWARD_PASS and
// COMMIT_GENERATION against whatever evaluations — AI or human — are now
// recorded in the store. It returns an error if no cycle is pending.
func (a *Archer) ResumeCycle(ctx context.Context) (*controlloop.CycleReport, error) {
	return a.loop.ResumeCycle(ctx)
}
