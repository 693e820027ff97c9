package controlloop

import (
	"context"

	"github.com/archerhq/archer/archererr"
	"github.com/archerhq/archer/prompt"
)

// RunCycle implements spec.md §4.8's run_cycle: SELECT_ACTIVE,
// FORWARD_PASS, an optional HUMAN_GATE, BACKWARD_PASS, and
// COMMIT_GENERATION. A cycle either commits every survivor flag and
// variant it produced, or (on cancellation or a commit failure) commits
// nothing — the generation counter never advances partway.
//
// When the loop is configured with HumanGate, RunCycle suspends after
// FORWARD_PASS instead of proceeding into BACKWARD_PASS: outputs and AI
// evaluations are already persisted, but no survivor flags or variants
// exist yet for this generation. The suspended state is held on the Loop
// until a caller records human feedback through the store and calls
// ResumeCycle.
func (l *Loop) RunCycle(ctx context.Context, sampler InputSampler) (*CycleReport, error) {
	active, generation, err := l.selectActive(ctx)
	if err != nil {
		return nil, err
	}
	if len(active) == 0 {
		return &CycleReport{Generation: generation}, nil
	}

	fo := l.forwardPass(ctx, sampler, active, generation)

	report := &CycleReport{
		Generation:          generation,
		PromptsEvaluated:    len(active),
		OutputsProduced:     fo.outputsProduced,
		EvaluationsRecorded: fo.evaluationsRecorded,
	}

	if l.cfg.HumanGate {
		report.Failures = fo.failureCounts()
		pending := *report
		l.setPending(&pendingCycle{active: active, fo: fo, report: &pending})
		return report, nil
	}

	return l.finishCycle(ctx, active, fo, report)
}

// ResumeCycle implements the HUMAN_GATE → BACKWARD_PASS transition
// (spec.md §4.8): it picks up the cycle a prior HumanGate-configured
// RunCycle suspended, and runs BACKWARD_PASS and COMMIT_GENERATION
// against whatever evaluations — AI or human — are now recorded in the
// store. It is an error to call ResumeCycle with no suspended cycle
// pending.
func (l *Loop) ResumeCycle(ctx context.Context) (*CycleReport, error) {
	pending := l.takePending()
	if pending == nil {
		return nil, archererr.New(archererr.KindUnknown, "no cycle is pending human review")
	}

	report := *pending.report
	return l.finishCycle(ctx, pending.active, pending.fo, &report)
}

// finishCycle runs BACKWARD_PASS and COMMIT_GENERATION against an
// already-completed FORWARD_PASS, shared between RunCycle's non-gated
// path and ResumeCycle.
func (l *Loop) finishCycle(ctx context.Context, active []*prompt.Prompt, fo *forwardOutcome, report *CycleReport) (*CycleReport, error) {
	if ctx.Err() != nil {
		report.Failures = fo.failureCounts()
		return report, archererr.Wrap(archererr.KindCancelled, "cycle cancelled before backward pass", ctx.Err())
	}

	bw, err := l.backwardPass(ctx, active, fo)
	if err != nil {
		report.Failures = append(report.Failures, FailureCount{Stage: "BACKWARD_PASS", Kind: archererr.KindOf(err).String(), Count: 1})
		return report, err
	}
	report.MeanScore = bw.meanScore
	report.BestScore = bw.bestScore
	report.Survivors = bw.survivorIDs
	report.Failures = bw.failures

	if ctx.Err() != nil {
		report.Failures = append(report.Failures, FailureCount{Stage: "BACKWARD_PASS", Kind: archererr.KindCancelled.String(), Count: 1})
		return report, archererr.Wrap(archererr.KindCancelled, "cycle cancelled during backward pass", ctx.Err())
	}

	if err := l.store.CommitGeneration(ctx, bw.survivorRecords, bw.variants); err != nil {
		report.Failures = append(report.Failures, FailureCount{Stage: "COMMIT_GENERATION", Kind: archererr.KindOf(err).String(), Count: 1})
		return report, err
	}
	report.NewVariants = bw.variantIDs
	l.advanceGeneration()

	return report, nil
}

// RunTrainingLoop implements spec.md §4.8's run_training_loop: repeated
// run_cycle calls, up to numCycles, stopping early once the survivor best
// score fails to improve on the previous cycle's by at least epsilon.
// epsilon<=0 disables early stop (spec.md §6 default 0.0). Not meant to
// be combined with HumanGate: a gated cycle never reaches BestScore
// within RunCycle, so early stop never triggers, the loop goes on
// running gated cycles, and each one replaces the previous cycle's
// pending state before it can be resumed.
func (l *Loop) RunTrainingLoop(ctx context.Context, sampler InputSampler, numCycles int, epsilon float64) ([]*CycleReport, error) {
	reports := make([]*CycleReport, 0, numCycles)
	var previousBest *float64

	for i := 0; i < numCycles; i++ {
		if ctx.Err() != nil {
			return reports, archererr.Wrap(archererr.KindCancelled, "training loop cancelled", ctx.Err())
		}

		report, err := l.RunCycle(ctx, sampler)
		if report != nil {
			reports = append(reports, report)
		}
		if err != nil {
			return reports, err
		}
		if report.PromptsEvaluated == 0 || report.OutputsProduced == 0 {
			break
		}

		if epsilon > 0 && previousBest != nil && report.BestScore != nil {
			if *report.BestScore-*previousBest < epsilon {
				break
			}
		}
		previousBest = report.BestScore
	}

	return reports, nil
}
