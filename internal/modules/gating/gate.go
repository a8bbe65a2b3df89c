package gating

import "github.com/aristath/adaptivetrader/internal/domain"

// CircuitBreakerDrawdown is the drawdown (percent) at or below which nothing is allowed
const CircuitBreakerDrawdown = -5.0

// Allowed returns the strategies permitted for a state, in priority order.
// Anything not explicitly enabled is denied; an empty slice means WAIT.
func Allowed(state domain.MarketState) []domain.Strategy {
	if state.DrawdownPercent <= CircuitBreakerDrawdown {
		return []domain.Strategy{}
	}

	var base []domain.Strategy
	switch state.Regime {
	case domain.RegimeBullTrend:
		base = []domain.Strategy{domain.StrategyMomentum, domain.StrategyBreakout}
	case domain.RegimeBearTrend:
		base = []domain.Strategy{domain.StrategyShortMomentum}
	case domain.RegimeSidewaysLowVol, domain.RegimeSidewaysHighVol:
		base = []domain.Strategy{domain.StrategyScalp, domain.StrategyMeanReversion}
	case domain.RegimeTransition:
		base = nil
	default:
		base = nil
	}

	allowed := make([]domain.Strategy, 0, len(base))
	for _, s := range base {
		// Breakouts need volatility to follow through
		if s == domain.StrategyBreakout && state.VolatilityLevel == domain.VolatilityLow {
			continue
		}
		allowed = append(allowed, s)
	}
	return allowed
}

// IsAllowed reports whether strategy s is permitted for the state
func IsAllowed(state domain.MarketState, s domain.Strategy) bool {
	for _, a := range Allowed(state) {
		if a == s {
			return true
		}
	}
	return false
}
