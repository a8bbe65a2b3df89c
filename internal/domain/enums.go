// Package domain provides the core decision-loop types shared by every module.
package domain

// Regime classifies the market context for a single observation.
type Regime string

const (
	RegimeBullTrend       Regime = "BULL_TREND"
	RegimeBearTrend       Regime = "BEAR_TREND"
	RegimeSidewaysLowVol  Regime = "SIDEWAYS_LOW_VOL"
	RegimeSidewaysHighVol Regime = "SIDEWAYS_HIGH_VOL"
	RegimeTransition      Regime = "TRANSITION"
)

// AllRegimes lists every regime in declaration order
var AllRegimes = []Regime{
	RegimeBullTrend,
	RegimeBearTrend,
	RegimeSidewaysLowVol,
	RegimeSidewaysHighVol,
	RegimeTransition,
}

// Valid reports whether r is a member of the closed regime set
func (r Regime) Valid() bool {
	switch r {
	case RegimeBullTrend, RegimeBearTrend, RegimeSidewaysLowVol, RegimeSidewaysHighVol, RegimeTransition:
		return true
	default:
		return false
	}
}

// IsSideways reports whether r is one of the range-bound regimes
func (r Regime) IsSideways() bool {
	return r == RegimeSidewaysLowVol || r == RegimeSidewaysHighVol
}

// Family groups regimes for expert routing: bull, bear, sideways or transition.
func (r Regime) Family() string {
	switch r {
	case RegimeBullTrend:
		return "bull"
	case RegimeBearTrend:
		return "bear"
	case RegimeSidewaysLowVol, RegimeSidewaysHighVol:
		return "sideways"
	case RegimeTransition:
		return "transition"
	default:
		return ""
	}
}

// VolatilityLevel is the coarse volatility bucket
type VolatilityLevel string

const (
	VolatilityLow    VolatilityLevel = "LOW"
	VolatilityNormal VolatilityLevel = "NORMAL"
	VolatilityHigh   VolatilityLevel = "HIGH"
)

// AllVolatilityLevels lists every volatility level
var AllVolatilityLevels = []VolatilityLevel{VolatilityLow, VolatilityNormal, VolatilityHigh}

// Valid reports whether v is a known volatility level
func (v VolatilityLevel) Valid() bool {
	switch v {
	case VolatilityLow, VolatilityNormal, VolatilityHigh:
		return true
	default:
		return false
	}
}

// TrendStrength grades how directional the market is
type TrendStrength string

const (
	TrendWeak       TrendStrength = "WEAK"
	TrendModerate   TrendStrength = "MODERATE"
	TrendStrong     TrendStrength = "STRONG"
	TrendVeryStrong TrendStrength = "VERY_STRONG"
)

// Valid reports whether t is a known trend strength
func (t TrendStrength) Valid() bool {
	switch t {
	case TrendWeak, TrendModerate, TrendStrong, TrendVeryStrong:
		return true
	default:
		return false
	}
}

// RiskState is the account-level risk assessment supplied with each observation
type RiskState string

const (
	RiskStateSafe    RiskState = "SAFE"
	RiskStateCaution RiskState = "CAUTION"
	RiskStateDanger  RiskState = "DANGER"
)

// Valid reports whether s is a known risk state
func (s RiskState) Valid() bool {
	switch s {
	case RiskStateSafe, RiskStateCaution, RiskStateDanger:
		return true
	default:
		return false
	}
}

// Strategy names a trading playbook. WAIT is the explicit do-nothing strategy.
type Strategy string

const (
	StrategyMomentum      Strategy = "MOMENTUM"
	StrategyBreakout      Strategy = "BREAKOUT"
	StrategyShortMomentum Strategy = "SHORT_MOMENTUM"
	StrategyScalp         Strategy = "SCALP"
	StrategyMeanReversion Strategy = "MEAN_REVERSION"
	StrategyWait          Strategy = "WAIT"
)

// AllStrategies lists every strategy including WAIT
var AllStrategies = []Strategy{
	StrategyMomentum,
	StrategyBreakout,
	StrategyShortMomentum,
	StrategyScalp,
	StrategyMeanReversion,
	StrategyWait,
}

// Valid reports whether s is a known strategy
func (s Strategy) Valid() bool {
	switch s {
	case StrategyMomentum, StrategyBreakout, StrategyShortMomentum, StrategyScalp, StrategyMeanReversion, StrategyWait:
		return true
	default:
		return false
	}
}

// Direction is the side of a proposed trade
type Direction string

const (
	DirectionLong  Direction = "LONG"
	DirectionShort Direction = "SHORT"
	DirectionFlat  Direction = "FLAT"
)

// RiskLevel is the risk budget attached to an action
type RiskLevel string

const (
	RiskLow    RiskLevel = "LOW"
	RiskMedium RiskLevel = "MEDIUM"
	RiskHigh   RiskLevel = "HIGH"
)

// Rank orders risk levels so callers can assert a stage never raised risk.
func (l RiskLevel) Rank() int {
	switch l {
	case RiskLow:
		return 0
	case RiskMedium:
		return 1
	case RiskHigh:
		return 2
	default:
		return -1
	}
}

// ExitReason explains why a decision was resolved
type ExitReason string

const (
	ExitTakeProfit   ExitReason = "TP"
	ExitStopLoss     ExitReason = "SL"
	ExitTimeout      ExitReason = "TIMEOUT"
	ExitManual       ExitReason = "MANUAL"
	ExitWaitResolved ExitReason = "WAIT_RESOLVED"
)

// Valid reports whether r is a known exit reason
func (r ExitReason) Valid() bool {
	switch r {
	case ExitTakeProfit, ExitStopLoss, ExitTimeout, ExitManual, ExitWaitResolved:
		return true
	default:
		return false
	}
}

// TradingMode distinguishes replayed history from live paper trading
type TradingMode string

const (
	ModeReplay TradingMode = "replay"
	ModePaper  TradingMode = "paper"
	ModeLive   TradingMode = "live"
)
