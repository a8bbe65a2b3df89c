// Package confidence converts model confidence into go/no-go decisions and
// position-size multipliers.
package confidence

import (
	"fmt"
	"math"

	"github.com/aristath/adaptivetrader/internal/domain"
	"github.com/shopspring/decimal"
)

// Band names reported on each result
const (
	BandBlocked  = "blocked"
	BandReduced  = "reduced"
	BandNormal   = "normal"
	BandBoost    = "boost"
	BandFallback = "fallback"
	BandWait     = "wait"
)

// Bands holds the confidence thresholds and the multiplier for each band
type Bands struct {
	BlockBelow   float64
	ReducedBelow float64
	NormalBelow  float64
	ReducedMult  float64
	NormalMult   float64
	BoostMult    float64
}

// DefaultBands returns the standard 0.50 / 0.60 / 0.70 bands
func DefaultBands() Bands {
	return Bands{
		BlockBelow:   0.50,
		ReducedBelow: 0.60,
		NormalBelow:  0.70,
		ReducedMult:  0.50,
		NormalMult:   0.75,
		BoostMult:    1.25,
	}
}

// Result is the gated action with its sizing
type Result struct {
	Action         domain.Action
	Band           string
	Multiplier     float64
	Size           float64
	OriginalAction *domain.Action // set when a trade was overridden to WAIT
}

// Overridden reports whether the gate replaced a trade with WAIT
func (r Result) Overridden() bool {
	return r.OriginalAction != nil
}

// Gate applies confidence bands and the hard size cap
type Gate struct {
	bands   Bands
	maxSize decimal.Decimal
}

// NewGate creates a gate. maxSize is the absolute notional cap for one position.
func NewGate(bands Bands, maxSize float64) *Gate {
	return &Gate{bands: bands, maxSize: decimal.NewFromFloat(maxSize)}
}

// Apply gates a risk-authorized action. It never raises risk and never turns
// a WAIT into a trade.
func (g *Gate) Apply(action domain.Action, confidence, baseSize float64) Result {
	if action.IsWait() {
		return Result{Action: action, Band: BandWait}
	}

	if math.IsNaN(confidence) {
		confidence = 0
	}

	if confidence < g.bands.BlockBelow {
		original := action
		return Result{
			Action:         domain.Wait(fmt.Sprintf("Blocked by ML confidence (%.4f < %.2f)", confidence, g.bands.BlockBelow)),
			Band:           BandBlocked,
			OriginalAction: &original,
		}
	}

	band, mult := g.band(confidence)
	return Result{
		Action:     action,
		Band:       band,
		Multiplier: mult,
		Size:       g.size(baseSize, mult),
	}
}

// Fallback sizes a trade when no confidence is available, using the most
// conservative executing multiplier.
func (g *Gate) Fallback(action domain.Action, baseSize float64) Result {
	if action.IsWait() {
		return Result{Action: action, Band: BandWait}
	}
	mult := math.Min(g.bands.ReducedMult, math.Min(g.bands.NormalMult, g.bands.BoostMult))
	return Result{
		Action:     action,
		Band:       BandFallback,
		Multiplier: mult,
		Size:       g.size(baseSize, mult),
	}
}

func (g *Gate) band(c float64) (string, float64) {
	switch {
	case c < g.bands.ReducedBelow:
		return BandReduced, g.bands.ReducedMult
	case c < g.bands.NormalBelow:
		return BandNormal, g.bands.NormalMult
	default:
		return BandBoost, g.bands.BoostMult
	}
}

func (g *Gate) size(base, mult float64) float64 {
	if base <= 0 || mult <= 0 {
		return 0
	}
	s := decimal.NewFromFloat(base).Mul(decimal.NewFromFloat(mult))
	if s.GreaterThan(g.maxSize) {
		s = g.maxSize
	}
	return s.Round(8).InexactFloat64()
}
