// Package gating decides whether a market state is trustworthy and which
// strategies it permits.
package gating

import (
	"fmt"

	"github.com/aristath/adaptivetrader/internal/domain"
)

// Validate checks a market state for integrity before any decision is made.
// Checks run in a fixed order and the first failure is returned as a
// *domain.ValidationError.
func Validate(state domain.MarketState) error {
	// Required fields
	if state.Regime == "" {
		return invalid("market_regime", "is required")
	}
	if state.VolatilityLevel == "" {
		return invalid("volatility_level", "is required")
	}

	// Closed sets
	if !state.Regime.Valid() {
		return invalid("market_regime", fmt.Sprintf("unknown value %q", state.Regime))
	}
	if !state.VolatilityLevel.Valid() {
		return invalid("volatility_level", fmt.Sprintf("unknown value %q", state.VolatilityLevel))
	}
	if state.TrendStrength != "" && !state.TrendStrength.Valid() {
		return invalid("trend_strength", fmt.Sprintf("unknown value %q", state.TrendStrength))
	}
	if state.RiskState != "" && !state.RiskState.Valid() {
		return invalid("current_risk_state", fmt.Sprintf("unknown value %q", state.RiskState))
	}

	// Ranges
	if state.DrawdownPercent > 0 {
		return invalid("current_drawdown_percent", fmt.Sprintf("must be <= 0, got %v", state.DrawdownPercent))
	}
	if state.DrawdownPercent < -100 {
		return invalid("current_drawdown_percent", fmt.Sprintf("must be >= -100, got %v", state.DrawdownPercent))
	}
	if state.TimeRemainingDays < 0 {
		return invalid("time_remaining_days", fmt.Sprintf("must be >= 0, got %v", state.TimeRemainingDays))
	}
	if state.OpenPositions < 0 {
		return invalid("current_open_positions", fmt.Sprintf("must be >= 0, got %d", state.OpenPositions))
	}

	// Consistency
	if state.Regime == domain.RegimeSidewaysLowVol && state.VolatilityLevel == domain.VolatilityHigh {
		return invalid("volatility_level", "SIDEWAYS_LOW_VOL regime contradicts HIGH volatility")
	}

	return nil
}

func invalid(field, reason string) error {
	return &domain.ValidationError{Field: field, Reason: reason}
}
