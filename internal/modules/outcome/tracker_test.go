package outcome

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/aristath/adaptivetrader/internal/domain"
	"github.com/aristath/adaptivetrader/internal/modules/experience"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig() Config {
	return Config{
		WaitHorizonCandles: 2,
		MaxHoldCandles:     3,
		Scalp:              Targets{TakeProfitPct: 1.5, StopLossPct: 1.0},
		Swing:              Targets{TakeProfitPct: 6.0, StopLossPct: 2.0},
	}
}

func newStore(t *testing.T) *experience.Store {
	store, err := experience.NewStore(experience.Config{
		Path: filepath.Join(t.TempDir(), "experience_log_TEST.jsonl"),
		Mode: "paper",
	}, zerolog.New(nil).Level(zerolog.Disabled))
	require.NoError(t, err)
	return store
}

func logDecision(t *testing.T, store *experience.Store, action domain.Action) string {
	state := domain.MarketState{Regime: domain.RegimeBullTrend, VolatilityLevel: domain.VolatilityNormal}
	id, err := store.Log(state, action, 0, experience.LogOptions{})
	require.NoError(t, err)
	return id
}

var long = domain.Action{Strategy: domain.StrategyScalp, Direction: domain.DirectionLong, RiskLevel: domain.RiskLow}
var short = domain.Action{Strategy: domain.StrategyShortMomentum, Direction: domain.DirectionShort, RiskLevel: domain.RiskMedium}

func TestTargetsFor(t *testing.T) {
	cfg := testConfig()

	mode, targets := TargetsFor(domain.MarketState{Regime: domain.RegimeBullTrend, TrendStrength: domain.TrendVeryStrong}, cfg)
	assert.Equal(t, "SWING", mode)
	assert.Equal(t, cfg.Swing, targets)

	mode, _ = TargetsFor(domain.MarketState{Regime: domain.RegimeSidewaysHighVol, TrendStrength: domain.TrendStrong}, cfg)
	assert.Equal(t, "SCALP", mode)

	mode, _ = TargetsFor(domain.MarketState{Regime: domain.RegimeBearTrend, TrendStrength: domain.TrendModerate}, cfg)
	assert.Equal(t, "SCALP", mode)
}

func TestTracker_LongTakeProfit(t *testing.T) {
	store := newStore(t)
	tr := NewTracker(testConfig(), store, zerolog.New(nil).Level(zerolog.Disabled))

	id := logDecision(t, store, long)
	tr.TrackPosition(id, domain.MarketState{Regime: domain.RegimeSidewaysLowVol}, long, 100, 0)
	assert.Equal(t, 1, tr.OpenPositions())

	n, err := tr.Observe(TickFromCandle(domain.Candle{Open: 100, High: 102, Low: 99.5, Close: 101}))
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, 0, tr.OpenPositions())

	rec, err := store.Get(id)
	require.NoError(t, err)
	require.True(t, rec.Resolved)
	assert.Equal(t, domain.ExitTakeProfit, rec.Outcome.ExitReason)
	assert.InDelta(t, 1.5, rec.Outcome.RealizedPnL, 1e-9)
	// Quick take-profit bonus applies
	assert.InDelta(t, 2.0, rec.Reward, 1e-9)
}

func TestTracker_StopLossWinsWhenBarTouchesBoth(t *testing.T) {
	store := newStore(t)
	tr := NewTracker(testConfig(), store, zerolog.New(nil).Level(zerolog.Disabled))

	id := logDecision(t, store, short)
	tr.TrackPosition(id, domain.MarketState{Regime: domain.RegimeTransition}, short, 100, 0)

	_, err := tr.Observe(Tick{Price: 100, High: 101.5, Low: 98})
	require.NoError(t, err)

	rec, err := store.Get(id)
	require.NoError(t, err)
	assert.Equal(t, domain.ExitStopLoss, rec.Outcome.ExitReason)
	assert.InDelta(t, -1.0, rec.Outcome.RealizedPnL, 1e-9)
	assert.InDelta(t, -1.0, rec.Reward, 1e-9)
}

func TestTracker_Timeout(t *testing.T) {
	store := newStore(t)
	tr := NewTracker(testConfig(), store, zerolog.New(nil).Level(zerolog.Disabled))

	id := logDecision(t, store, long)
	tr.TrackPosition(id, domain.MarketState{}, long, 100, 2)

	for i := 0; i < 2; i++ {
		n, err := tr.Observe(Tick{Price: 100.5})
		require.NoError(t, err)
		assert.Equal(t, 0, n)
	}
	n, err := tr.Observe(Tick{Price: 101})
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	rec, err := store.Get(id)
	require.NoError(t, err)
	assert.Equal(t, domain.ExitTimeout, rec.Outcome.ExitReason)
	assert.Equal(t, 3, rec.Outcome.DurationCandles)
	// (1.0 - 0.1) damped by 0.5 for two repeats
	assert.InDelta(t, 0.45, rec.Reward, 1e-9)
}

func TestTracker_WaitResolvesAfterHorizon(t *testing.T) {
	store := newStore(t)
	tr := NewTracker(testConfig(), store, zerolog.New(nil).Level(zerolog.Disabled))

	avoided := logDecision(t, store, domain.Wait("strategic"))
	missed := logDecision(t, store, domain.Wait("strategic"))
	tr.TrackWait(avoided, domain.DirectionLong, 100)
	tr.TrackWait(missed, domain.DirectionShort, 100)

	n, err := tr.Observe(Tick{Price: 99})
	require.NoError(t, err)
	assert.Equal(t, 0, n)
	assert.Equal(t, 2, tr.PendingWaits())

	n, err = tr.Observe(Tick{Price: 97})
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	rec, err := store.Get(avoided)
	require.NoError(t, err)
	assert.Equal(t, domain.ExitWaitResolved, rec.Outcome.ExitReason)
	assert.InDelta(t, -3.0, rec.Outcome.MarketChangeDuringWait, 1e-9)
	assert.Equal(t, 1.0, rec.Reward, "waiting avoided a long that would have lost")

	rec, err = store.Get(missed)
	require.NoError(t, err)
	assert.InDelta(t, 3.0, rec.Outcome.MarketChangeDuringWait, 1e-9)
	assert.Equal(t, -0.5, rec.Reward, "waiting missed a short that would have won")
}

func TestTracker_BatchMode(t *testing.T) {
	store := newStore(t)
	cfg := testConfig()
	cfg.WaitHorizonCandles = 1
	cfg.BatchSize = 10
	tr := NewTracker(cfg, store, zerolog.New(nil).Level(zerolog.Disabled))

	id := logDecision(t, store, domain.Wait("no strategies"))
	tr.TrackWait(id, domain.DirectionLong, 100)

	n, err := tr.Observe(Tick{Price: 100.5})
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	rec, err := store.Get(id)
	require.NoError(t, err)
	assert.False(t, rec.Resolved, "buffered until flush")

	require.NoError(t, tr.Flush())
	rec, err = store.Get(id)
	require.NoError(t, err)
	assert.True(t, rec.Resolved)
	assert.Equal(t, 0.05, rec.Reward)
}

func TestTracker_MissingRecordIsNotFatal(t *testing.T) {
	store := newStore(t)
	tr := NewTracker(testConfig(), store, zerolog.New(nil).Level(zerolog.Disabled))

	tr.TrackPosition("does-not-exist", domain.MarketState{}, long, 100, 0)
	n, err := tr.Observe(Tick{Price: 110})
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

// flakyFinalizer fails the first Finalize with a storage error
type flakyFinalizer struct {
	*experience.Store
	failures int
	calls    []string
}

func (f *flakyFinalizer) Finalize(id string, outcome domain.Outcome, reward float64) error {
	f.calls = append(f.calls, id)
	if f.failures > 0 {
		f.failures--
		return &domain.StorageError{Op: "rename", Path: f.Path(), Err: errors.New("disk full")}
	}
	return f.Store.Finalize(id, outcome, reward)
}

func TestTracker_FailedFinalizeIsRetried(t *testing.T) {
	store := newStore(t)
	flaky := &flakyFinalizer{Store: store, failures: 1}
	tr := NewTracker(testConfig(), flaky, zerolog.New(nil).Level(zerolog.Disabled))

	id := logDecision(t, store, domain.Wait("test"))
	tr.TrackWait(id, domain.DirectionLong, 100)

	_, err := tr.Observe(Tick{Price: 100})
	require.NoError(t, err)
	_, err = tr.Observe(Tick{Price: 100})
	var storageErr *domain.StorageError
	require.ErrorAs(t, err, &storageErr)
	assert.Equal(t, 0, tr.PendingWaits())

	rec, err := store.Get(id)
	require.NoError(t, err)
	assert.False(t, rec.Resolved)

	// Nothing new resolves on this tick, the failed write is retried anyway
	n, err := tr.Observe(Tick{Price: 100})
	require.NoError(t, err)
	assert.Equal(t, 0, n)
	assert.Equal(t, []string{id, id}, flaky.calls)

	rec, err = store.Get(id)
	require.NoError(t, err)
	assert.True(t, rec.Resolved)
	assert.Equal(t, domain.ExitWaitResolved, rec.Outcome.ExitReason)
}

func TestTracker_FailedFinalizeIsRetriedByFlush(t *testing.T) {
	store := newStore(t)
	flaky := &flakyFinalizer{Store: store, failures: 1}
	tr := NewTracker(testConfig(), flaky, zerolog.New(nil).Level(zerolog.Disabled))

	id := logDecision(t, store, long)
	tr.TrackPosition(id, domain.MarketState{Regime: domain.RegimeSidewaysLowVol}, long, 100, 0)

	_, err := tr.Observe(Tick{Price: 102})
	require.Error(t, err)

	require.NoError(t, tr.Flush())
	rec, err := store.Get(id)
	require.NoError(t, err)
	assert.True(t, rec.Resolved)
	assert.Equal(t, domain.ExitTakeProfit, rec.Outcome.ExitReason)
}
