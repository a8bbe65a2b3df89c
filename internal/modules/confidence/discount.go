package confidence

import "github.com/aristath/adaptivetrader/internal/domain"

// DiscountConfig sets the confidence penalties for uncertain contexts
type DiscountConfig struct {
	MinSamples         int
	SmallSamplePenalty float64
	TransitionPenalty  float64
	HighVolPenalty     float64
}

// Context is what the discount needs to know about the decision
type Context struct {
	SampleSize int // historical outcomes for this (regime, volatility, strategy)
	Regime     domain.Regime
	Volatility domain.VolatilityLevel
}

// Discount lowers confidence when evidence is thin or the market is unsettled.
// The result stays within [0, 1].
func Discount(conf float64, ctx Context, cfg DiscountConfig) float64 {
	if ctx.SampleSize < cfg.MinSamples {
		conf -= cfg.SmallSamplePenalty
	}
	if ctx.Regime == domain.RegimeTransition {
		conf -= cfg.TransitionPenalty
	}
	if ctx.Volatility == domain.VolatilityHigh {
		conf -= cfg.HighVolPenalty
	}

	switch {
	case conf < 0:
		return 0
	case conf > 1:
		return 1
	default:
		return conf
	}
}
