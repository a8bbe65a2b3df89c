// Package outcome follows open decisions until they resolve and hands the
// resulting outcome and reward back to the experience store.
package outcome

import (
	"errors"
	"sync"

	"github.com/aristath/adaptivetrader/internal/domain"
	"github.com/aristath/adaptivetrader/internal/metrics"
	"github.com/aristath/adaptivetrader/internal/modules/experience"
	"github.com/aristath/adaptivetrader/internal/modules/reward"
	"github.com/rs/zerolog"
)

// Finalizer is the write side of the experience store used for resolution
type Finalizer interface {
	Finalize(id string, outcome domain.Outcome, reward float64) error
	FinalizeBatch(resolutions []experience.Resolution) (int, error)
}

// Targets are take-profit and stop-loss distances in percent
type Targets struct {
	TakeProfitPct float64
	StopLossPct   float64
}

// Config controls resolution horizons and exit targets
type Config struct {
	WaitHorizonCandles int
	MaxHoldCandles     int
	Scalp              Targets
	Swing              Targets
	// BatchSize > 0 buffers resolutions and writes them with one rewrite
	// per batch. Used in replay where thousands resolve back to back.
	BatchSize int
}

// TargetsFor picks swing targets for strong directional trends and scalp
// targets for everything else.
func TargetsFor(state domain.MarketState, cfg Config) (string, Targets) {
	strong := state.TrendStrength == domain.TrendStrong || state.TrendStrength == domain.TrendVeryStrong
	directional := state.Regime == domain.RegimeBullTrend || state.Regime == domain.RegimeBearTrend
	if strong && directional {
		return "SWING", cfg.Swing
	}
	return "SCALP", cfg.Scalp
}

// Tick is one price update. High and Low are optional (zero = use Price).
type Tick struct {
	Price float64
	High  float64
	Low   float64
}

// TickFromCandle builds a tick from a bar
func TickFromCandle(c domain.Candle) Tick {
	return Tick{Price: c.Close, High: c.High, Low: c.Low}
}

func (t Tick) high() float64 {
	if t.High > 0 {
		return t.High
	}
	return t.Price
}

func (t Tick) low() float64 {
	if t.Low > 0 {
		return t.Low
	}
	return t.Price
}

type pendingWait struct {
	id        string
	direction domain.Direction // side a trade would have taken
	price     float64
	age       int
}

type position struct {
	id         string
	direction  domain.Direction
	entryPrice float64
	takeProfit float64
	stopLoss   float64
	repeats    int
	age        int
}

// Tracker holds pending WAITs and open positions for one instrument
type Tracker struct {
	cfg   Config
	store Finalizer
	log   zerolog.Logger

	mu        sync.Mutex
	waits     []*pendingWait
	positions []*position
	buffered  []experience.Resolution
}

// NewTracker creates a tracker that finalizes into store
func NewTracker(cfg Config, store Finalizer, log zerolog.Logger) *Tracker {
	return &Tracker{
		cfg:   cfg,
		store: store,
		log:   log.With().Str("component", "outcome_tracker").Logger(),
	}
}

// TrackWait registers a logged WAIT. direction is the side a trade would
// have taken, used to judge whether waiting avoided a loss or missed a move.
func (t *Tracker) TrackWait(id string, direction domain.Direction, price float64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.waits = append(t.waits, &pendingWait{id: id, direction: direction, price: price})
}

// TrackPosition registers an executed trade
func (t *Tracker) TrackPosition(id string, state domain.MarketState, action domain.Action, entryPrice float64, repeats int) {
	mode, targets := TargetsFor(state, t.cfg)

	p := &position{
		id:         id,
		direction:  action.Direction,
		entryPrice: entryPrice,
		repeats:    repeats,
	}
	if action.Direction == domain.DirectionShort {
		p.takeProfit = entryPrice * (1 - targets.TakeProfitPct/100)
		p.stopLoss = entryPrice * (1 + targets.StopLossPct/100)
	} else {
		p.takeProfit = entryPrice * (1 + targets.TakeProfitPct/100)
		p.stopLoss = entryPrice * (1 - targets.StopLossPct/100)
	}

	t.mu.Lock()
	t.positions = append(t.positions, p)
	t.mu.Unlock()

	t.log.Debug().
		Str("id", id).
		Str("mode", mode).
		Str("direction", string(p.direction)).
		Float64("entry", entryPrice).
		Float64("tp", p.takeProfit).
		Float64("sl", p.stopLoss).
		Msg("Position tracked")
}

// OpenPositions is the number of unresolved trades
func (t *Tracker) OpenPositions() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.positions)
}

// PendingWaits is the number of unresolved WAITs
func (t *Tracker) PendingWaits() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.waits)
}

// Observe advances every pending decision by one candle and resolves those
// that hit a target, a timeout or their WAIT horizon. Returns the number of
// decisions resolved.
func (t *Tracker) Observe(tick Tick) (int, error) {
	t.mu.Lock()
	resolved := t.resolveLocked(tick)
	retry := len(t.buffered) > 0
	t.mu.Unlock()

	if len(resolved) == 0 && !retry {
		return 0, nil
	}
	for _, r := range resolved {
		metrics.Resolutions.WithLabelValues(string(r.Outcome.ExitReason)).Inc()
		metrics.Rewards.Observe(r.Reward)
	}
	return len(resolved), t.finalize(resolved)
}

// Flush writes any buffered resolutions
func (t *Tracker) Flush() error {
	t.mu.Lock()
	batch := t.buffered
	t.buffered = nil
	t.mu.Unlock()

	if len(batch) == 0 {
		return nil
	}
	applied, err := t.store.FinalizeBatch(batch)
	if err != nil {
		// Put them back so a later flush can retry
		t.mu.Lock()
		t.buffered = append(batch, t.buffered...)
		t.mu.Unlock()
		return err
	}
	if applied != len(batch) {
		t.log.Warn().Int("expected", len(batch)).Int("applied", applied).Msg("Some resolutions matched no record")
	}
	return nil
}

func (t *Tracker) resolveLocked(tick Tick) []experience.Resolution {
	var out []experience.Resolution

	waits := t.waits[:0]
	for _, w := range t.waits {
		w.age++
		if w.age < t.cfg.WaitHorizonCandles {
			waits = append(waits, w)
			continue
		}
		change := favourableMove(w.direction, w.price, tick.Price)
		o := domain.Outcome{
			ExitReason:             domain.ExitWaitResolved,
			DurationCandles:        w.age,
			EntryPrice:             w.price,
			ExitPrice:              tick.Price,
			MarketChangeDuringWait: change,
		}
		out = append(out, experience.Resolution{
			ID:      w.id,
			Outcome: o,
			Reward:  reward.Compute(reward.Input{IsWait: true, MarketChangeDuringWait: change, DurationCandles: w.age}),
		})
	}
	t.waits = waits

	positions := t.positions[:0]
	for _, p := range t.positions {
		p.age++
		reason, exit, done := p.check(tick, t.cfg.MaxHoldCandles)
		if !done {
			positions = append(positions, p)
			continue
		}
		pnl := favourableMove(p.direction, p.entryPrice, exit)
		o := domain.Outcome{
			ExitReason:      reason,
			RealizedPnL:     pnl,
			DurationCandles: p.age,
			EntryPrice:      p.entryPrice,
			ExitPrice:       exit,
		}
		out = append(out, experience.Resolution{
			ID:      p.id,
			Outcome: o,
			Reward: reward.Compute(reward.Input{
				ExitReason:      reason,
				RealizedPnL:     pnl,
				DurationCandles: p.age,
				Repeats:         p.repeats,
			}),
		})
	}
	t.positions = positions

	return out
}

// check evaluates stop-loss before take-profit when a bar touches both
func (p *position) check(tick Tick, maxHold int) (domain.ExitReason, float64, bool) {
	if p.direction == domain.DirectionShort {
		if tick.high() >= p.stopLoss {
			return domain.ExitStopLoss, p.stopLoss, true
		}
		if tick.low() <= p.takeProfit {
			return domain.ExitTakeProfit, p.takeProfit, true
		}
	} else {
		if tick.low() <= p.stopLoss {
			return domain.ExitStopLoss, p.stopLoss, true
		}
		if tick.high() >= p.takeProfit {
			return domain.ExitTakeProfit, p.takeProfit, true
		}
	}
	if maxHold > 0 && p.age >= maxHold {
		return domain.ExitTimeout, tick.Price, true
	}
	return "", 0, false
}

func (t *Tracker) finalize(resolved []experience.Resolution) error {
	if t.cfg.BatchSize > 0 {
		t.mu.Lock()
		t.buffered = append(t.buffered, resolved...)
		full := len(t.buffered) >= t.cfg.BatchSize
		t.mu.Unlock()
		if full {
			return t.Flush()
		}
		return nil
	}

	// Resolutions that failed earlier go first so the log keeps resolution order
	t.mu.Lock()
	pending := append(t.buffered, resolved...)
	t.buffered = nil
	t.mu.Unlock()

	var failed []experience.Resolution
	var firstErr error
	for _, r := range pending {
		err := t.store.Finalize(r.ID, r.Outcome, r.Reward)
		switch {
		case err == nil:
			t.log.Debug().Str("id", r.ID).Str("reason", string(r.Outcome.ExitReason)).Float64("reward", r.Reward).Msg("Decision resolved")
		case errors.Is(err, domain.ErrRecordNotFound):
			t.log.Warn().Str("id", r.ID).Msg("Resolved decision missing from log")
		default:
			t.log.Error().Err(err).Str("id", r.ID).Msg("Failed to finalize decision, will retry")
			failed = append(failed, r)
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	if len(failed) > 0 {
		t.mu.Lock()
		t.buffered = append(failed, t.buffered...)
		t.mu.Unlock()
	}
	return firstErr
}

// favourableMove is the percent move in the trade's favour
func favourableMove(direction domain.Direction, from, to float64) float64 {
	if from <= 0 {
		return 0
	}
	change := (to - from) / from * 100
	if direction == domain.DirectionShort {
		return -change
	}
	return change
}
