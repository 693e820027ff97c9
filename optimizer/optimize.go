package optimizer

import (
	"context"

	"github.com/archerhq/archer/archerlog"
	"github.com/archerhq/archer/prompt"
)

// Optimize is the package-level convenience entry point mirroring the
// teacher's top-level OptimizePrompt: build an Optimizer around caller
// with opts and run one variant-generation pass over parent.
func Optimize(ctx context.Context, caller Caller, logger archerlog.Logger, parent *prompt.Prompt, feedback []string, numVariants int, opts ...Option) ([]*prompt.Prompt, []Discarded, error) {
	return New(caller, logger, opts...).GenerateVariants(ctx, parent, feedback, numVariants)
}
