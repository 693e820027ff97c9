package llmcaller

import (
	"context"
	"fmt"
	"sync"
)

// MockProvider is a deterministic, scriptable Provider used by tests
// (spec.md §8's end-to-end scenarios are all driven by one of these).
// It is test tooling, never a production transport — the real transport
// is an external collaborator the core never implements (spec.md §1).
type MockProvider struct {
	mu    sync.Mutex
	calls int

	// CallFunc, when set, is invoked for every call and takes
	// precedence over Responses/Errors.
	CallFunc func(ctx context.Context, model, promptText string, temperature float64) (string, error)

	// Responses is consumed in order, one per call, once CallFunc is
	// nil. Errs, if non-nil at the same index, is returned instead.
	Responses []string
	Errs      []error
}

// NewMockProvider builds a MockProvider that returns responses in order.
func NewMockProvider(responses ...string) *MockProvider {
	return &MockProvider{Responses: responses}
}

func (m *MockProvider) Name() string { return "mock" }

func (m *MockProvider) Call(ctx context.Context, model, promptText string, temperature float64) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	idx := m.calls
	m.calls++

	if m.CallFunc != nil {
		return m.CallFunc(ctx, model, promptText, temperature)
	}

	if idx < len(m.Errs) && m.Errs[idx] != nil {
		return "", m.Errs[idx]
	}
	if idx < len(m.Responses) {
		return m.Responses[idx], nil
	}
	return "", fmt.Errorf("mock provider: no scripted response for call %d", idx)
}

// Calls reports how many times Call has been invoked.
func (m *MockProvider) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}
