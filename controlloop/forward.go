package controlloop

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/archerhq/archer/archererr"
	"github.com/archerhq/archer/prompt"
)

// pair is one (active prompt, sampled input) unit of forward-pass work.
type pair struct {
	prompt *prompt.Prompt
	input  string
}

// forwardOutcome accumulates FORWARD_PASS's results across every
// concurrently executed pair. Scores themselves are not tallied here:
// BACKWARD_PASS re-reads each prompt's effective (human-preferred,
// AI-fallback) evaluations from the store instead of trusting this
// in-memory, AI-only snapshot (spec.md §8 scenario S6).
type forwardOutcome struct {
	mu                  sync.Mutex
	feedback            map[uuid.UUID][]string
	outputsProduced     int
	evaluationsRecorded int
	failures            map[[2]string]int
	cancelledPairs      int
}

func newForwardOutcome() *forwardOutcome {
	return &forwardOutcome{
		feedback: make(map[uuid.UUID][]string),
		failures: make(map[[2]string]int),
	}
}

func (fo *forwardOutcome) recordFailure(stage, kind string) {
	fo.mu.Lock()
	defer fo.mu.Unlock()
	fo.failures[[2]string{stage, kind}]++
}

func (fo *forwardOutcome) recordSuccess(promptID uuid.UUID, fb string) {
	fo.mu.Lock()
	defer fo.mu.Unlock()
	fo.outputsProduced++
	fo.evaluationsRecorded++
	if fb != "" {
		fo.feedback[promptID] = append(fo.feedback[promptID], fb)
	}
}

func (fo *forwardOutcome) failureCounts() []FailureCount {
	fo.mu.Lock()
	defer fo.mu.Unlock()
	out := make([]FailureCount, 0, len(fo.failures))
	for k, n := range fo.failures {
		out = append(out, FailureCount{Stage: k[0], Kind: k[1], Count: n})
	}
	return out
}

// forwardPass implements FORWARD_PASS (spec.md §4.8 step 2): for each
// active prompt, draw num_simulations_per_prompt inputs, then generate
// and evaluate every (prompt, input) pair concurrently, bounded per model
// by l.sems. Each pair is isolated — one pair's failure is counted and
// does not stop the others, per spec.md §7's per-pair failure isolation.
func (l *Loop) forwardPass(ctx context.Context, sampler InputSampler, active []*prompt.Prompt, generation int) *forwardOutcome {
	fo := newForwardOutcome()

	var pairs []pair
gather:
	for _, p := range active {
		for i := 0; i < l.cfg.NumSimulationsPerPrompt; i++ {
			input, ok, err := sampler.Next(ctx)
			if err != nil {
				fo.recordFailure("FORWARD_PASS", archererr.KindOf(err).String())
				continue
			}
			if !ok {
				break gather
			}
			pairs = append(pairs, pair{prompt: p, input: input})
		}
	}

	var wg sync.WaitGroup
	for _, pr := range pairs {
		wg.Add(1)
		go func(pr pair) {
			defer wg.Done()
			l.runPair(ctx, pr, generation, fo)
		}(pr)
	}
	wg.Wait()

	return fo
}

// runPair generates and evaluates one pair, persisting the result. It
// never returns an error: every failure mode is recorded on fo instead,
// so one pair's outcome never determines another's.
func (l *Loop) runPair(ctx context.Context, pr pair, generation int, fo *forwardOutcome) {
	if ctx.Err() != nil {
		fo.recordFailure("FORWARD_PASS", archererr.KindCancelled.String())
		return
	}

	modelID := pr.prompt.ModelID
	if err := l.sems.acquire(ctx, modelID); err != nil {
		fo.recordFailure("FORWARD_PASS", archererr.KindCancelled.String())
		return
	}

	content, genErr := l.generator.Generate(ctx, pr.prompt, pr.input)
	if genErr != nil {
		l.sems.release(modelID)
		fo.recordFailure("FORWARD_PASS", archererr.KindOf(genErr).String())
		return
	}

	result, evalErr := l.evaluator.Evaluate(ctx, modelID, pr.input, content, l.rubric, l.contextSnippets)
	l.sems.release(modelID)
	if evalErr != nil {
		fo.recordFailure("FORWARD_PASS", archererr.KindOf(evalErr).String())
		return
	}

	outputID, err := l.store.StoreGeneratedContent(ctx, pr.input, content, pr.prompt.ID, generation)
	if err != nil {
		fo.recordFailure("FORWARD_PASS", archererr.KindStore.String())
		return
	}

	if _, err := l.store.StoreEvaluation(ctx, outputID, result.Score, result.Feedback, result.ImprovedOutput, false, "ai", result.Coerced); err != nil {
		fo.recordFailure("FORWARD_PASS", archererr.KindStore.String())
		return
	}

	fo.recordSuccess(pr.prompt.ID, result.Feedback)
}
