// Package reward turns resolved outcomes into scalar learning signals.
package reward

import (
	"math"

	"github.com/aristath/adaptivetrader/internal/domain"
)

const (
	quickTakeProfitCandles = 5
	quickTakeProfitBonus   = 0.5
	timeoutPenalty         = 0.1

	waitAvoidedLossPct = -1.0
	waitMissedMovePct  = 2.0
	waitAvoidedReward  = 1.0
	waitMissedPenalty  = -0.5
	waitPatienceReward = 0.05
)

// Input describes a resolved decision
type Input struct {
	ExitReason      domain.ExitReason
	RealizedPnL     float64 // percent
	DurationCandles int
	IsWait          bool
	// MarketChangeDuringWait is the favourable move (percent) the
	// hypothetical trade would have seen while waiting.
	MarketChangeDuringWait float64
	Repeats                int
}

// Compute returns the reward for a resolved decision, rounded to 4 decimals.
func Compute(in Input) float64 {
	if in.IsWait {
		return round4(waitReward(in.MarketChangeDuringWait))
	}

	r := in.RealizedPnL
	switch in.ExitReason {
	case domain.ExitTakeProfit:
		if in.DurationCandles < quickTakeProfitCandles {
			r += quickTakeProfitBonus
		}
	case domain.ExitTimeout:
		r -= timeoutPenalty
	case domain.ExitStopLoss, domain.ExitManual, domain.ExitWaitResolved:
	}

	return round4(Damp(r, in.Repeats))
}

func waitReward(change float64) float64 {
	switch {
	case change < waitAvoidedLossPct:
		return waitAvoidedReward
	case change > waitMissedMovePct:
		return waitMissedPenalty
	default:
		return waitPatienceReward
	}
}

// Damp scales positive rewards down for repeated decisions.
// Penalties are never softened.
func Damp(r float64, repeats int) float64 {
	if r <= 0 {
		return r
	}
	return r * DampingFactor(repeats)
}

// DampingFactor is the multiplier applied for a given repetition count
func DampingFactor(repeats int) float64 {
	switch {
	case repeats <= 0:
		return 1.0
	case repeats == 1:
		return 0.8
	case repeats == 2:
		return 0.5
	default:
		return 0.2
	}
}

func round4(v float64) float64 {
	return math.Round(v*1e4) / 1e4
}
