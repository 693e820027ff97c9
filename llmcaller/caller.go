// Package llmcaller implements the LLM Caller (spec.md §4.1): a uniform,
// stateless-per-call operation that every other component depends on to
// reach a model provider. It retries transient failures with exponential
// backoff and jitter (grounded on the teacher's llm.DefaultRetryStrategy)
// and throttles concurrent load per model using the same
// golang.org/x/time/rate limiter the teacher's BatchPromptOptimizer uses.
package llmcaller

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/archerhq/archer/archererr"
	"github.com/archerhq/archer/archerlog"
)

// Option configures a Caller.
type Option func(*Caller)

// WithMaxAttempts overrides the default bound on retry attempts (spec.md
// §4.1 default K=3).
func WithMaxAttempts(n int) Option {
	return func(c *Caller) {
		if n > 0 {
			c.maxAttempts = n
		}
	}
}

// WithPerAttemptTimeout overrides the per-attempt timeout (spec.md §5
// default 60s).
func WithPerAttemptTimeout(d time.Duration) Option {
	return func(c *Caller) {
		if d > 0 {
			c.perAttemptTimeout = d
		}
	}
}

// WithOverallBudget overrides the total retry budget across attempts
// (spec.md §5 default 180s).
func WithOverallBudget(d time.Duration) Option {
	return func(c *Caller) {
		if d > 0 {
			c.overallBudget = d
		}
	}
}

// WithInitialBackoff overrides the base delay used before the first
// retry.
func WithInitialBackoff(d time.Duration) Option {
	return func(c *Caller) {
		if d > 0 {
			c.initialBackoff = d
		}
	}
}

// WithModelRateLimit sets the requests-per-second and burst allowed for a
// given model. Guards against provider rate limits independent of the
// pool-level concurrency bound the control loop applies (spec.md §5).
func WithModelRateLimit(model string, rps rate.Limit, burst int) Option {
	return func(c *Caller) {
		c.limiterFor(model).SetLimit(rps)
		c.limiterFor(model).SetBurst(burst)
	}
}

// WithDebugManager attaches a debug manager that records prompts and
// responses.
func WithDebugManager(dm *archerlog.DebugManager) Option {
	return func(c *Caller) { c.debug = dm }
}

// Caller is the LLM Caller. It holds no per-call state; rate-limiter and
// retry bookkeeping are the only state, and both are safe under
// concurrent invocation (spec.md §5 "Shared resources").
type Caller struct {
	provider Provider
	logger   archerlog.Logger
	debug    *archerlog.DebugManager

	maxAttempts       int
	perAttemptTimeout time.Duration
	overallBudget     time.Duration
	initialBackoff    time.Duration
	maxBackoff        time.Duration

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

// New builds a Caller around provider. A nil logger falls back to a
// no-op logger.
func New(provider Provider, logger archerlog.Logger, opts ...Option) *Caller {
	if logger == nil {
		logger = archerlog.Nop()
	}
	c := &Caller{
		provider:          provider,
		logger:            logger,
		maxAttempts:       3,
		perAttemptTimeout: 60 * time.Second,
		overallBudget:     180 * time.Second,
		initialBackoff:    250 * time.Millisecond,
		maxBackoff:        10 * time.Second,
		limiters:          make(map[string]*rate.Limiter),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Caller) limiterFor(model string) *rate.Limiter {
	c.mu.Lock()
	defer c.mu.Unlock()
	l, ok := c.limiters[model]
	if !ok {
		// Default: 8 requests/second per model, matching the control
		// loop's default per-model concurrency bound (spec.md §5).
		l = rate.NewLimiter(rate.Limit(8), 8)
		c.limiters[model] = l
	}
	return l
}

// Call implements spec.md §4.1's single operation.
func (c *Caller) Call(ctx context.Context, modelID, promptText string, temperature float64) (string, error) {
	if strings.TrimSpace(promptText) == "" {
		return "", archererr.New(archererr.KindMalformed, "prompt_text must not be empty")
	}
	if temperature < 0.0 || temperature > 2.0 {
		return "", archererr.New(archererr.KindMalformed, fmt.Sprintf("temperature %.2f out of range [0.0, 2.0]", temperature))
	}

	if err := c.limiterFor(modelID).Wait(ctx); err != nil {
		return "", archererr.Wrap(archererr.KindCancelled, "rate limiter wait cancelled", err)
	}

	deadline := time.Now().Add(c.overallBudget)
	var lastErr error

	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		if ctx.Err() != nil {
			return "", archererr.Wrap(archererr.KindCancelled, "call cancelled", ctx.Err())
		}
		if c.overallBudget > 0 && time.Now().After(deadline) {
			return "", archererr.Wrap(archererr.KindBudgetExceeded, "overall LLM call budget exceeded", lastErr)
		}

		c.debug.LogPrompt(fmt.Sprintf("%s#%d", modelID, attempt), promptText)

		attemptCtx, cancel := context.WithTimeout(ctx, c.perAttemptTimeout)
		text, err := c.provider.Call(attemptCtx, modelID, promptText, temperature)
		cancel()

		if err == nil {
			c.debug.LogResponse(fmt.Sprintf("%s#%d", modelID, attempt), text)
			return text, nil
		}

		lastErr = err
		if errors.Is(err, context.DeadlineExceeded) {
			lastErr = archererr.WrapRetriable(archererr.KindTransport, "provider call timed out", err)
		}

		if !archererr.IsRetriable(lastErr) || attempt == c.maxAttempts {
			break
		}

		c.logger.Warn("llm call failed, retrying", "provider", c.provider.Name(), "model", modelID, "attempt", attempt, "error", lastErr)
		select {
		case <-ctx.Done():
			return "", archererr.Wrap(archererr.KindCancelled, "call cancelled during backoff", ctx.Err())
		case <-time.After(c.backoff(attempt)):
		}
	}

	return "", lastErr
}

// backoff implements exponential backoff with full jitter, capped at
// maxBackoff, following the shape of the teacher's
// DefaultRetryStrategy.NextDelay.
func (c *Caller) backoff(attempt int) time.Duration {
	shift := attempt - 1
	if shift > 20 {
		shift = 20
	}
	base := c.initialBackoff * time.Duration(int64(1)<<uint(shift))
	if base > c.maxBackoff {
		base = c.maxBackoff
	}
	jitter := time.Duration(rand.Int63n(int64(base) + 1))
	return jitter
}
