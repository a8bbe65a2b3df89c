package domain

import "context"

// Feeder supplies one observation per cycle.
// Replay feeders return io.EOF once history is exhausted.
type Feeder interface {
	Next(ctx context.Context) (Observation, error)
}

// Executor places orders for authorized trades
type Executor interface {
	Execute(ctx context.Context, symbol string, action Action, price, size float64) (ExecutionReport, error)
}

// Inference scores a proposed action in context.
// Returns ErrInferenceUnavailable when no model is loaded.
type Inference interface {
	PredictConfidence(ctx context.Context, state MarketState, action Action, repeats int) (float64, error)
}

// DecisionHistory yields the most recent decisions, newest first
type DecisionHistory interface {
	Recent(n int) ([]DecisionRecord, error)
}
