package controlloop

import (
	"context"
	"sync"
)

// SliceSampler draws inputs from a fixed, ordered slice, exhausting after
// the last element — the simplest InputSampler, useful for a one-shot
// batch of records or in tests.
type SliceSampler struct {
	mu     sync.Mutex
	inputs []string
	pos    int
}

// NewSliceSampler builds a SliceSampler over inputs. The slice is not
// copied; callers should not mutate it after construction.
func NewSliceSampler(inputs []string) *SliceSampler {
	return &SliceSampler{inputs: inputs}
}

func (s *SliceSampler) Next(context.Context) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pos >= len(s.inputs) {
		return "", false, nil
	}
	v := s.inputs[s.pos]
	s.pos++
	return v, true, nil
}

// FuncSampler adapts a plain function into an InputSampler, for callers
// whose input source is a generator, a queue, or any other shape that
// doesn't fit a fixed slice.
type FuncSampler func(ctx context.Context) (string, bool, error)

func (f FuncSampler) Next(ctx context.Context) (string, bool, error) { return f(ctx) }
