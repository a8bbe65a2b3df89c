// Package risk enforces account-level risk downgrades on proposed actions.
package risk

import (
	"fmt"
	"math"

	"github.com/aristath/adaptivetrader/internal/domain"
)

const (
	// DowngradeDrawdown is the drawdown (percent) at or below which risk is forced to LOW
	DowngradeDrawdown = -4.0
	// MaxRiskPercent caps the per-trade risk regardless of multipliers
	MaxRiskPercent = 2.0
)

// Authorize returns the action with risk downgraded when the account is in
// danger or close to the drawdown limit. It never mutates its input and
// applying it twice yields the same result as applying it once.
func Authorize(state domain.MarketState, action domain.Action) domain.Action {
	if action.IsWait() {
		return action
	}

	cause := downgradeCause(state)
	if cause == "" || action.RiskLevel == domain.RiskLow {
		return action
	}

	out := action
	out.RiskLevel = domain.RiskLow
	out.Reasoning = fmt.Sprintf("Downgraded risk due to %s. (Original: %s)", cause, action.Reasoning)
	return out
}

func downgradeCause(state domain.MarketState) string {
	switch {
	case state.RiskState == domain.RiskStateDanger:
		return "DANGER state"
	case state.DrawdownPercent <= DowngradeDrawdown:
		return "Drawdown proximity"
	default:
		return ""
	}
}

// BaseRiskPercent maps a risk level onto the percent of equity put at risk
func BaseRiskPercent(level domain.RiskLevel) float64 {
	switch level {
	case domain.RiskMedium:
		return 1.0
	case domain.RiskHigh:
		return 2.0
	default:
		return 0.5
	}
}

// AdjustedRiskPercent scales the base risk by a multiplier and enforces the hard cap
func AdjustedRiskPercent(level domain.RiskLevel, multiplier float64) float64 {
	if multiplier < 0 {
		multiplier = 0
	}
	return math.Min(BaseRiskPercent(level)*multiplier, MaxRiskPercent)
}
