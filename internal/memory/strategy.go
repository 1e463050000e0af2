package memory

import (
	"context"
	"sync"

	sdkmath "cosmossdk.io/math"
)

// StrategyCall is one recorded Execute invocation.
type StrategyCall struct {
	Current sdkmath.Int
	Target  sdkmath.Int
}

// StaticStrategy records every Execute call and takes no action.
type StaticStrategy struct {
	mu    sync.Mutex
	calls []StrategyCall
	err   error
}

// NewStaticStrategy returns a strategy that fails every call with err when err is non-nil.
func NewStaticStrategy(err error) *StaticStrategy {
	return &StaticStrategy{err: err}
}

func (s *StaticStrategy) Execute(_ context.Context, current, target sdkmath.Int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, StrategyCall{Current: current, Target: target})
	return s.err
}

// Calls returns the recorded invocations.
func (s *StaticStrategy) Calls() []StrategyCall {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]StrategyCall(nil), s.calls...)
}
