package testing

import (
	"context"
	"io"
	"sync"

	"github.com/aristath/adaptivetrader/internal/domain"
	"github.com/stretchr/testify/mock"
)

// MockInference is a testify mock for domain.Inference
type MockInference struct {
	mock.Mock
}

// PredictConfidence returns the configured confidence
func (m *MockInference) PredictConfidence(ctx context.Context, state domain.MarketState, action domain.Action, repeats int) (float64, error) {
	args := m.Called(ctx, state, action, repeats)
	return args.Get(0).(float64), args.Error(1)
}

// MockExecutor is a testify mock for domain.Executor
type MockExecutor struct {
	mock.Mock
}

// Execute returns the configured report. A func return value is called
// with the arguments so fills can track the requested price.
func (m *MockExecutor) Execute(ctx context.Context, symbol string, action domain.Action, price, size float64) (domain.ExecutionReport, error) {
	args := m.Called(ctx, symbol, action, price, size)
	if fn, ok := args.Get(0).(func(context.Context, string, domain.Action, float64, float64) domain.ExecutionReport); ok {
		return fn(ctx, symbol, action, price, size), args.Error(1)
	}
	return args.Get(0).(domain.ExecutionReport), args.Error(1)
}

// SliceFeeder replays a fixed list of observations then returns io.EOF
type SliceFeeder struct {
	mu           sync.Mutex
	observations []domain.Observation
	pos          int
}

// NewSliceFeeder creates a feeder over observations
func NewSliceFeeder(observations []domain.Observation) *SliceFeeder {
	return &SliceFeeder{observations: observations}
}

// Next returns the next observation
func (f *SliceFeeder) Next(ctx context.Context) (domain.Observation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return domain.Observation{}, err
	}
	if f.pos >= len(f.observations) {
		return domain.Observation{}, io.EOF
	}
	obs := f.observations[f.pos]
	f.pos++
	return obs, nil
}
