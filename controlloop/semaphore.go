package controlloop

import (
	"context"
	"sync"
)

// modelSemaphores bounds concurrent LLM work per model, per spec.md §5's
// "configurable concurrency limit per model (default 8)". Each model gets
// its own buffered channel used as a counting semaphore, created lazily on
// first use.
type modelSemaphores struct {
	mu    sync.Mutex
	gates map[string]chan struct{}
	limit int
}

func newModelSemaphores(limit int) *modelSemaphores {
	if limit <= 0 {
		limit = 1
	}
	return &modelSemaphores{gates: make(map[string]chan struct{}), limit: limit}
}

func (m *modelSemaphores) gateFor(model string) chan struct{} {
	m.mu.Lock()
	defer m.mu.Unlock()
	g, ok := m.gates[model]
	if !ok {
		g = make(chan struct{}, m.limit)
		m.gates[model] = g
	}
	return g
}

// acquire blocks until a slot for model is free or ctx is done.
func (m *modelSemaphores) acquire(ctx context.Context, model string) error {
	gate := m.gateFor(model)
	select {
	case gate <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m *modelSemaphores) release(model string) {
	gate := m.gateFor(model)
	<-gate
}
