// Package selection picks a concrete action from the strategies the gate allows.
package selection

import (
	"fmt"
	"math/rand"
	"sync"

	"github.com/aristath/adaptivetrader/internal/domain"
)

const (
	ReasonNoStrategies  = "No strategies allowed by gating rules"
	ReasonStrategicWait = "Strategic WAIT injection to gather inaction data"
	ReasonMaxRepeats    = "Max consecutive repetitions reached. Forcing WAIT for diversity"
)

// Config tunes the selector
type Config struct {
	StrategicWaitProb float64
	MaxRepeats        int
}

// Selector is the rule-based cold-start decision maker. It prefers the first
// allowed strategy, injects occasional WAITs and refuses to repeat the same
// decision in the same context indefinitely.
type Selector struct {
	cfg Config
	mu  sync.Mutex
	rng *rand.Rand
}

// New creates a selector drawing from rng. Tests inject a seeded source.
func New(cfg Config, rng *rand.Rand) *Selector {
	if cfg.MaxRepeats < 1 {
		cfg.MaxRepeats = 3
	}
	return &Selector{cfg: cfg, rng: rng}
}

// Select returns the chosen action and how many identical decisions
// immediately precede it. history must be newest first.
func (s *Selector) Select(state domain.MarketState, allowed []domain.Strategy, history []domain.DecisionRecord) (domain.Action, int) {
	if len(allowed) == 0 {
		return domain.Wait(ReasonNoStrategies), 0
	}

	if s.draw() < s.cfg.StrategicWaitProb {
		return domain.Wait(ReasonStrategicWait), 0
	}

	proposed := allowed[0]
	repeats := CountRepeats(state, proposed, history)

	if repeats >= s.cfg.MaxRepeats {
		alt, ok := firstOther(allowed, proposed)
		if !ok {
			return domain.Wait(ReasonMaxRepeats), 0
		}
		proposed = alt
		repeats = 0
	}

	return domain.Action{
		Strategy:  proposed,
		Direction: DirectionFor(proposed, state.Regime),
		RiskLevel: domain.RiskLow,
		Reasoning: fmt.Sprintf("Selected %s based on %s", proposed, state.Regime),
	}, repeats
}

func (s *Selector) draw() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rng.Float64()
}

// CountRepeats counts the contiguous run of records, newest first, that made
// the same strategy choice in the same regime and volatility.
func CountRepeats(state domain.MarketState, strategy domain.Strategy, history []domain.DecisionRecord) int {
	n := 0
	for _, rec := range history {
		if rec.Action.Strategy != strategy ||
			rec.MarketState.Regime != state.Regime ||
			rec.MarketState.VolatilityLevel != state.VolatilityLevel {
			break
		}
		n++
	}
	return n
}

func firstOther(allowed []domain.Strategy, not domain.Strategy) (domain.Strategy, bool) {
	for _, s := range allowed {
		if s != not {
			return s, true
		}
	}
	return "", false
}

// DirectionFor resolves the trade side. Strategies with an inherent side win;
// otherwise the regime decides, defaulting to LONG.
func DirectionFor(strategy domain.Strategy, regime domain.Regime) domain.Direction {
	switch strategy {
	case domain.StrategyWait:
		return domain.DirectionFlat
	case domain.StrategyShortMomentum:
		return domain.DirectionShort
	case domain.StrategyMomentum, domain.StrategyBreakout:
		return domain.DirectionLong
	case domain.StrategyScalp, domain.StrategyMeanReversion:
	}

	switch regime {
	case domain.RegimeBearTrend:
		return domain.DirectionShort
	default:
		return domain.DirectionLong
	}
}
