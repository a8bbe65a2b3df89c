package learning

import (
	"context"
	"fmt"
	"math"

	"github.com/aristath/adaptivetrader/internal/domain"
)

// Inference serves confidence scores from the registry's active model.
// The active pointer is read on every call, so a promotion takes effect on
// the next prediction.
type Inference struct {
	registry *Registry
}

// NewInference creates an inference adapter over a registry
func NewInference(registry *Registry) *Inference {
	return &Inference{registry: registry}
}

// PredictConfidence implements domain.Inference
func (i *Inference) PredictConfidence(ctx context.Context, state domain.MarketState, action domain.Action, repeats int) (float64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	active := i.registry.Active()
	if active == nil || active.Ensemble == nil {
		return 0, domain.ErrInferenceUnavailable
	}

	p := active.Ensemble.Predict(state.Regime.Family(), Encode(state, action, repeats))
	if math.IsNaN(p) {
		return 0, fmt.Errorf("%w: model %s returned no score", domain.ErrInferenceUnavailable, active.Version)
	}
	return p, nil
}

// ModelVersion returns the active model version, or "" when rule-only
func (i *Inference) ModelVersion() string {
	if active := i.registry.Active(); active != nil {
		return active.Version
	}
	return ""
}
