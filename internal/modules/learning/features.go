// Package learning trains, evaluates and serves the confidence models that
// score proposed actions, and manages their promotion through the registry.
package learning

import (
	"github.com/aristath/adaptivetrader/internal/domain"
)

// Sessions recognised by the encoder. Anything else maps to the trailing "other" slot.
var Sessions = []string{"ASIA", "LONDON", "NY", "OVERLAP"}

var trendStrengths = []domain.TrendStrength{
	domain.TrendWeak,
	domain.TrendModerate,
	domain.TrendStrong,
	domain.TrendVeryStrong,
}

var riskStates = []domain.RiskState{
	domain.RiskStateSafe,
	domain.RiskStateCaution,
	domain.RiskStateDanger,
}

var directions = []domain.Direction{
	domain.DirectionLong,
	domain.DirectionShort,
	domain.DirectionFlat,
}

// FeatureCount is the length of every encoded vector
var FeatureCount = len(FeatureNames())

// FeatureNames lists the columns produced by Encode, in order
func FeatureNames() []string {
	var names []string
	for _, r := range domain.AllRegimes {
		names = append(names, "regime_"+string(r))
	}
	for _, v := range domain.AllVolatilityLevels {
		names = append(names, "vol_"+string(v))
	}
	for _, t := range trendStrengths {
		names = append(names, "trend_"+string(t))
	}
	for _, s := range domain.AllStrategies {
		names = append(names, "strategy_"+string(s))
	}
	for _, d := range directions {
		names = append(names, "direction_"+string(d))
	}
	for _, rs := range riskStates {
		names = append(names, "risk_"+string(rs))
	}
	for _, s := range Sessions {
		names = append(names, "session_"+s)
	}
	names = append(names,
		"session_OTHER",
		"weekend",
		"funding_extreme",
		"regime_stable",
		"repeats",
		"open_positions",
		"drawdown_pct",
		"distance_to_key_levels",
		"time_remaining_days",
		"rsi",
		"atr",
		"dist_to_high",
		"dist_to_low",
		"macd_hist",
		"volume_zscore",
		"regime_confidence",
		"momentum_shift_score",
	)
	return names
}

// Encode flattens a decision context into the model's feature vector.
// Categorical fields are one-hot; unknown values leave their group all zero.
func Encode(state domain.MarketState, action domain.Action, repeats int) []float64 {
	x := make([]float64, 0, FeatureCount)

	for _, r := range domain.AllRegimes {
		x = append(x, indicator(state.Regime == r))
	}
	for _, v := range domain.AllVolatilityLevels {
		x = append(x, indicator(state.VolatilityLevel == v))
	}
	for _, t := range trendStrengths {
		x = append(x, indicator(state.TrendStrength == t))
	}
	for _, s := range domain.AllStrategies {
		x = append(x, indicator(action.Strategy == s))
	}
	for _, d := range directions {
		x = append(x, indicator(action.Direction == d))
	}
	for _, rs := range riskStates {
		x = append(x, indicator(state.RiskState == rs))
	}
	known := false
	for _, s := range Sessions {
		match := state.TradingSession == s
		known = known || match
		x = append(x, indicator(match))
	}

	x = append(x,
		indicator(!known),
		indicator(state.DayType == "WEEKEND"),
		indicator(state.FundingExtreme),
		indicator(state.RegimeStable),
		float64(repeats),
		float64(state.OpenPositions),
		state.DrawdownPercent,
		state.DistanceToKeyLevels,
		state.TimeRemainingDays,
		state.RSI,
		state.ATR,
		state.DistToHigh,
		state.DistToLow,
		state.MACDHist,
		state.VolumeZScore,
		state.RegimeConfidence,
		state.MomentumShiftScore,
	)
	return x
}

func indicator(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
