package optimizer

import (
	"context"
	"sync"
)

// callResult holds one concurrent variant call's outcome; its position in
// callConcurrently's result slice is its request index, so results come
// back in request order after fan-out.
type callResult struct {
	text string
	err  error
}

// callConcurrently issues n independent calls to fn and returns their
// results in the same order they were requested, following the
// goroutine-per-item fan-out the teacher's BatchPromptOptimizer uses for
// independent LLM calls. Unlike the control loop's bounded worker pool,
// spec.md §4.6 step 2 calls for exactly num_variants independent calls
// per optimize invocation, a count small enough to fan out unbounded.
func callConcurrently(ctx context.Context, n int, fn func(ctx context.Context, i int) (string, error)) []callResult {
	results := make([]callResult, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			text, err := fn(ctx, i)
			results[i] = callResult{text: text, err: err}
		}(i)
	}
	wg.Wait()
	return results
}
