package engine

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/aristath/adaptivetrader/internal/domain"
	"github.com/aristath/adaptivetrader/internal/metrics"
	"github.com/aristath/adaptivetrader/internal/modules/outcome"
	"github.com/rs/zerolog"
)

// Finalizer resolves a decision immediately, used when an order never fills
type Finalizer interface {
	Finalize(id string, outcome domain.Outcome, reward float64) error
}

// LoopConfig controls pacing of the decision loop
type LoopConfig struct {
	Symbol   string
	Interval time.Duration // pause between cycles; zero in replay
}

// Loop drives one instrument: feed, decide, execute, track, resolve
type Loop struct {
	cfg       LoopConfig
	engine    *Engine
	feeder    domain.Feeder
	executor  domain.Executor
	tracker   *outcome.Tracker
	finalizer Finalizer
	log       zerolog.Logger
}

// NewLoop creates a decision loop
func NewLoop(cfg LoopConfig, engine *Engine, feeder domain.Feeder, executor domain.Executor, tracker *outcome.Tracker, finalizer Finalizer, log zerolog.Logger) *Loop {
	return &Loop{
		cfg:       cfg,
		engine:    engine,
		feeder:    feeder,
		executor:  executor,
		tracker:   tracker,
		finalizer: finalizer,
		log:       log.With().Str("component", "decision_loop").Str("symbol", cfg.Symbol).Logger(),
	}
}

// Run processes observations until the feeder is exhausted or ctx is done
func (l *Loop) Run(ctx context.Context) error {
	l.log.Info().Dur("interval", l.cfg.Interval).Msg("Decision loop started")
	defer l.flush()

	cycles := 0
	for {
		if ctx.Err() != nil {
			l.log.Info().Int("cycles", cycles).Msg("Decision loop stopped")
			return nil
		}

		obs, err := l.feeder.Next(ctx)
		switch {
		case errors.Is(err, io.EOF):
			l.log.Info().Int("cycles", cycles).Msg("Feed exhausted")
			return nil
		case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
			return nil
		case err != nil:
			l.log.Error().Err(err).Msg("Failed to read observation")
			if !l.sleep(ctx) {
				return nil
			}
			continue
		}

		if err := l.Step(ctx, obs); err != nil {
			// Only an unloggable decision lands here; the next cycle may succeed
			l.log.Error().Err(err).Msg("Decision cycle failed")
		}
		cycles++

		if !l.sleep(ctx) {
			return nil
		}
	}
}

// Step runs a single cycle for obs. Pending decisions are resolved against
// the current price before deciding; in replay the strictly-future candle is
// applied after the new decision is tracked.
func (l *Loop) Step(ctx context.Context, obs domain.Observation) error {
	if obs.FutureCandle == nil && obs.Price > 0 {
		l.observe(outcome.Tick{Price: obs.Price})
	}

	if obs.State.OpenPositions == 0 {
		obs.State.OpenPositions = l.tracker.OpenPositions()
	}

	dec, err := l.engine.RunCycle(ctx, obs)
	if err != nil {
		return err
	}

	if dec.Action.IsWait() {
		l.tracker.TrackWait(dec.ID, dec.Hypothetical, obs.Price)
	} else {
		l.execute(ctx, obs, dec)
	}

	if obs.FutureCandle != nil {
		if obs.FutureCandle.Time.After(obs.Time) {
			l.observe(outcome.TickFromCandle(*obs.FutureCandle))
		} else {
			l.log.Warn().Time("candle", obs.FutureCandle.Time).Time("state", obs.Time).Msg("Ignoring candle that is not strictly after the state")
		}
	}

	metrics.OpenPositions.Set(float64(l.tracker.OpenPositions()))
	metrics.PendingWaits.Set(float64(l.tracker.PendingWaits()))
	return nil
}

func (l *Loop) execute(ctx context.Context, obs domain.Observation, dec Decision) {
	report, err := l.executor.Execute(ctx, l.cfg.Symbol, dec.Action, obs.Price, dec.Size)
	if err != nil {
		l.log.Error().Err(err).Str("id", dec.ID).Msg("Order failed, closing decision without a position")
		ferr := l.finalizer.Finalize(dec.ID, domain.Outcome{
			ExitReason: domain.ExitManual,
			EntryPrice: obs.Price,
			ExitPrice:  obs.Price,
		}, 0)
		if ferr != nil {
			l.log.Error().Err(ferr).Str("id", dec.ID).Msg("Failed to close unfilled decision")
		}
		return
	}

	l.tracker.TrackPosition(dec.ID, obs.State, dec.Action, report.FillPrice, dec.Repeats)
	l.log.Info().
		Str("id", dec.ID).
		Str("order_id", report.OrderID).
		Str("direction", string(report.Direction)).
		Float64("size", report.Size).
		Float64("fill", report.FillPrice).
		Msg("Order filled")
}

func (l *Loop) observe(tick outcome.Tick) {
	n, err := l.tracker.Observe(tick)
	if err != nil {
		l.log.Error().Err(err).Msg("Failed to finalize resolved decisions")
	}
	if n > 0 {
		l.log.Debug().Int("resolved", n).Float64("price", tick.Price).Msg("Decisions resolved")
	}
}

func (l *Loop) flush() {
	if err := l.tracker.Flush(); err != nil {
		l.log.Error().Err(err).Msg("Failed to flush buffered resolutions")
	}
}

// sleep waits for the configured interval; false means ctx ended
func (l *Loop) sleep(ctx context.Context) bool {
	if l.cfg.Interval <= 0 {
		return true
	}
	t := time.NewTimer(l.cfg.Interval)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
