// Package engine runs the per-cycle decision pipeline and the loop that feeds it.
package engine

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/aristath/adaptivetrader/internal/domain"
	"github.com/aristath/adaptivetrader/internal/metrics"
	"github.com/aristath/adaptivetrader/internal/modules/confidence"
	"github.com/aristath/adaptivetrader/internal/modules/experience"
	"github.com/aristath/adaptivetrader/internal/modules/gating"
	"github.com/aristath/adaptivetrader/internal/modules/risk"
	"github.com/aristath/adaptivetrader/internal/modules/selection"
	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"
)

// Store is the experience store as seen by the engine
type Store interface {
	Log(state domain.MarketState, action domain.Action, reward float64, opts experience.LogOptions) (string, error)
	Recent(n int) ([]domain.DecisionRecord, error)
}

// SampleSizer reports how many resolved outcomes back a context
type SampleSizer interface {
	SampleSize(regime domain.Regime, vol domain.VolatilityLevel, strategy domain.Strategy) int
}

// ModelVersioner is implemented by inference backends that can name their model
type ModelVersioner interface {
	ModelVersion() string
}

// Config controls a decision engine
type Config struct {
	DataSource       string // replay, paper or live
	HistoryWindow    int
	BasePositionSize float64
	Discount         confidence.DiscountConfig
	// MaxElapsedLogRetry bounds how long a failed append is retried
	MaxElapsedLogRetry time.Duration
}

// Decision is the outcome of one cycle
type Decision struct {
	ID         string
	Action     domain.Action
	Repeats    int
	Confidence *float64
	Band       string
	Size       float64
	// Hypothetical is the side a trade would have taken; used to score WAITs
	Hypothetical domain.Direction
	Fallback     bool // the cycle failed safe into WAIT
}

// Engine turns one observation into exactly one logged decision
type Engine struct {
	cfg       Config
	store     Store
	selector  *selection.Selector
	gate      *confidence.Gate
	inference domain.Inference
	samples   SampleSizer
	log       zerolog.Logger
}

// New creates a decision engine
func New(
	cfg Config,
	store Store,
	selector *selection.Selector,
	gate *confidence.Gate,
	inference domain.Inference,
	samples SampleSizer,
	log zerolog.Logger,
) *Engine {
	if cfg.HistoryWindow <= 0 {
		cfg.HistoryWindow = 3
	}
	if cfg.MaxElapsedLogRetry <= 0 {
		cfg.MaxElapsedLogRetry = 5 * time.Second
	}
	return &Engine{
		cfg:       cfg,
		store:     store,
		selector:  selector,
		gate:      gate,
		inference: inference,
		samples:   samples,
		log:       log.With().Str("component", "engine").Logger(),
	}
}

// RunCycle validates, gates, selects, authorizes, scores and logs one decision.
// Any fault inside the cycle becomes a logged WAIT carrying the failure in its
// reasoning. An error is returned only when the decision could not be logged.
func (e *Engine) RunCycle(ctx context.Context, obs domain.Observation) (dec Decision, err error) {
	start := time.Now()
	defer func() {
		metrics.CycleDuration.Observe(time.Since(start).Seconds())
	}()

	defer func() {
		if p := recover(); p != nil {
			e.log.Error().
				Interface("panic", p).
				Str("stack", string(debug.Stack())).
				Msg("Decision cycle panicked")
			if dec.ID != "" {
				// Already logged; a second record would duplicate the cycle
				err = nil
				return
			}
			dec, err = e.fallback(obs, "fault", fmt.Sprintf("Internal fault: %v", p))
		}
	}()

	state := obs.State

	if verr := gating.Validate(state); verr != nil {
		e.log.Warn().Err(verr).Msg("Invalid market state")
		return e.fallback(obs, "validation", verr.Error())
	}

	allowed := gating.Allowed(state)

	history, herr := e.store.Recent(e.cfg.HistoryWindow)
	if herr != nil {
		e.log.Error().Err(herr).Msg("Failed to read decision history")
		return e.fallback(obs, "history", fmt.Sprintf("Decision history unavailable: %v", herr))
	}

	action, repeats := e.selector.Select(state, allowed, history)
	action = risk.Authorize(state, action)

	var first domain.Strategy
	if len(allowed) > 0 {
		first = allowed[0]
	}
	dec = Decision{
		Repeats:      repeats,
		Hypothetical: selection.DirectionFor(first, state.Regime),
	}

	var result confidence.Result
	if action.IsWait() {
		result = confidence.Result{Action: action, Band: confidence.BandWait}
	} else {
		result, dec.Confidence = e.score(ctx, state, action, repeats)
	}
	if result.OriginalAction != nil {
		dec.Hypothetical = result.OriginalAction.Direction
	}

	dec.Action = result.Action
	dec.Band = result.Band
	dec.Size = result.Size

	opts := experience.LogOptions{
		DataSource:      e.cfg.DataSource,
		MarketPeriodID:  obs.PeriodID,
		RepetitionCount: repeats,
		MLConfidence:    dec.Confidence,
		SizeMultiplier:  result.Multiplier,
		PositionSize:    result.Size,
		ModelVersion:    e.modelVersion(),
		OriginalAction:  result.OriginalAction,
		Timestamp:       obs.Time,
	}

	dec.ID, err = e.logWithRetry(ctx, state, dec.Action, opts)
	if err != nil {
		return dec, err
	}

	metrics.Decisions.WithLabelValues(string(dec.Action.Strategy), string(dec.Action.Direction)).Inc()
	metrics.ConfidenceBands.WithLabelValues(dec.Band).Inc()

	event := e.log.Info().
		Str("id", dec.ID).
		Str("regime", string(state.Regime)).
		Str("action", dec.Action.String()).
		Int("repeats", repeats).
		Str("band", dec.Band)
	if dec.Confidence != nil {
		event = event.Float64("confidence", *dec.Confidence)
	}
	event.Msg(dec.Action.Reasoning)

	return dec, nil
}

// score asks the model for confidence, discounts it for thin evidence and
// unsettled markets, and applies the gate. Without a model the most
// conservative size is used and no confidence is recorded.
func (e *Engine) score(ctx context.Context, state domain.MarketState, action domain.Action, repeats int) (confidence.Result, *float64) {
	if e.inference == nil {
		return e.gate.Fallback(action, e.cfg.BasePositionSize), nil
	}

	raw, err := e.inference.PredictConfidence(ctx, state, action, repeats)
	if err != nil {
		if !errors.Is(err, domain.ErrInferenceUnavailable) {
			e.log.Warn().Err(err).Msg("Inference failed, using rule-only sizing")
		}
		return e.gate.Fallback(action, e.cfg.BasePositionSize), nil
	}

	sampleSize := 0
	if e.samples != nil {
		sampleSize = e.samples.SampleSize(state.Regime, state.VolatilityLevel, action.Strategy)
	}
	conf := confidence.Discount(raw, confidence.Context{
		SampleSize: sampleSize,
		Regime:     state.Regime,
		Volatility: state.VolatilityLevel,
	}, e.cfg.Discount)

	e.log.Debug().Float64("raw", raw).Float64("discounted", conf).Int("samples", sampleSize).Msg("Confidence scored")
	return e.gate.Apply(action, conf, e.cfg.BasePositionSize), &conf
}

// fallback logs a WAIT for a cycle that could not complete normally
func (e *Engine) fallback(obs domain.Observation, kind, reason string) (Decision, error) {
	metrics.CycleFallbacks.WithLabelValues(kind).Inc()

	action := domain.Wait(reason)
	dec := Decision{
		Action:       action,
		Band:         confidence.BandWait,
		Hypothetical: selection.DirectionFor("", obs.State.Regime),
		Fallback:     true,
	}

	id, err := e.logWithRetry(context.Background(), obs.State, action, experience.LogOptions{
		DataSource:     e.cfg.DataSource,
		MarketPeriodID: obs.PeriodID,
		Timestamp:      obs.Time,
	})
	if err != nil {
		return dec, err
	}
	dec.ID = id
	metrics.Decisions.WithLabelValues(string(action.Strategy), string(action.Direction)).Inc()
	return dec, nil
}

// logWithRetry appends with exponential backoff. A decision is never
// silently dropped: the final error is returned to the caller.
func (e *Engine) logWithRetry(ctx context.Context, state domain.MarketState, action domain.Action, opts experience.LogOptions) (string, error) {
	var id string
	operation := func() error {
		var err error
		id, err = e.store.Log(state, action, 0, opts)
		if err != nil {
			e.log.Warn().Err(err).Msg("Decision append failed, retrying")
		}
		return err
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 50 * time.Millisecond
	b.MaxElapsedTime = e.cfg.MaxElapsedLogRetry

	if err := backoff.Retry(operation, backoff.WithContext(b, ctx)); err != nil {
		metrics.CycleFallbacks.WithLabelValues("storage").Inc()
		return "", fmt.Errorf("failed to log decision: %w", err)
	}
	return id, nil
}

func (e *Engine) modelVersion() string {
	if v, ok := e.inference.(ModelVersioner); ok {
		return v.ModelVersion()
	}
	return ""
}
