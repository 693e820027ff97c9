// Package optimizer implements the Prompt Optimizer (spec.md §4.6): it
// synthesizes variant prompts from a parent prompt and its aggregated
// feedback, enforcing the slot-preservation invariant and a diversity
// floor before handing survivors back for persistence.
package optimizer

import (
	"context"

	"github.com/invopop/jsonschema"

	"github.com/archerhq/archer/archerlog"
)

// Caller is the subset of *llmcaller.Caller the optimizer needs.
type Caller interface {
	Call(ctx context.Context, modelID, promptText string, temperature float64) (string, error)
}

// Option configures an Optimizer.
type Option func(*Optimizer)

// DiscardReason names why a candidate variant did not survive.
type DiscardReason string

const (
	DiscardSlotViolation DiscardReason = "slot_violation"
	DiscardNearDuplicate DiscardReason = "near_duplicate"
	DiscardCallFailed    DiscardReason = "call_failed"
	DiscardUnparseable   DiscardReason = "unparseable_response"
)

// Discarded records one variant attempt that did not survive, surfaced
// in a cycle report rather than silently dropped.
type Discarded struct {
	Reason  DiscardReason
	Content string
	Detail  string
}

// variantResponse is the structured shape each variant call is asked to
// return. Its jsonschema tags feed invopop/jsonschema, which renders
// them into the contract embedded in the prompt by buildVariantPrompt.
type variantResponse struct {
	Content   string `json:"content" jsonschema:"required,description=The full rewritten prompt text. Must contain the {input} slot exactly once."`
	Reasoning string `json:"reasoning,omitempty" jsonschema:"description=One or two sentences on what changed and why."`
}

// Optimizer is the default implementation of spec.md §4.6's optimize
// operation.
type Optimizer struct {
	caller Caller
	logger archerlog.Logger

	temperature        float64
	defaultNumVariants int
	maxRepairAttempts  int
	diversityThreshold float64
	responseSchema     *jsonschema.Schema
}

// New builds an Optimizer around caller. A nil logger falls back to a
// no-op logger.
func New(caller Caller, logger archerlog.Logger, opts ...Option) *Optimizer {
	if logger == nil {
		logger = archerlog.Nop()
	}
	o := &Optimizer{
		caller:             caller,
		logger:             logger,
		temperature:        DefaultTemperature,
		defaultNumVariants: DefaultNumVariants,
		maxRepairAttempts:  DefaultMaxRepairAttempts,
		diversityThreshold: DefaultDiversityThreshold,
		responseSchema:     (&jsonschema.Reflector{ExpandedStruct: true}).Reflect(&variantResponse{}),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}
