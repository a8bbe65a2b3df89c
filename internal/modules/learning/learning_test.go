package learning

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/aristath/adaptivetrader/internal/domain"
	testingpkg "github.com/aristath/adaptivetrader/internal/testing"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testLog = zerolog.New(nil).Level(zerolog.Disabled)

// syntheticRecords alternates winning bull momentum trades with losing bear
// trades so the label is fully determined by regime and strategy.
func syntheticRecords(n int) []domain.DecisionRecord {
	start := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	records := make([]domain.DecisionRecord, n)
	for i := range records {
		rec := domain.DecisionRecord{
			ID:        fmt.Sprintf("rec-%d", i),
			Timestamp: start.Add(time.Duration(i) * time.Minute),
			Resolved:  true,
		}
		rsi := 40 + float64(i%20)
		if i%2 == 0 {
			rec.MarketState = domain.MarketState{
				Regime: domain.RegimeBullTrend, VolatilityLevel: domain.VolatilityNormal,
				TrendStrength: domain.TrendStrong, TradingSession: "NY", RSI: rsi,
			}
			rec.Action = domain.Action{Strategy: domain.StrategyMomentum, Direction: domain.DirectionLong, RiskLevel: domain.RiskMedium}
			rec.Reward = 1.0
		} else {
			rec.MarketState = domain.MarketState{
				Regime: domain.RegimeBearTrend, VolatilityLevel: domain.VolatilityHigh,
				TrendStrength: domain.TrendWeak, TradingSession: "ASIA", RSI: rsi,
			}
			rec.Action = domain.Action{Strategy: domain.StrategyShortMomentum, Direction: domain.DirectionShort, RiskLevel: domain.RiskHigh}
			rec.Reward = -1.0
		}
		records[i] = rec
	}
	return records
}

func TestEncode(t *testing.T) {
	state := domain.MarketState{
		Regime:          domain.RegimeSidewaysHighVol,
		VolatilityLevel: domain.VolatilityHigh,
		TrendStrength:   domain.TrendWeak,
		TradingSession:  "TOKYO",
		DayType:         "WEEKEND",
		RiskState:       domain.RiskStateCaution,
		DrawdownPercent: -2.5,
	}
	action := domain.Action{Strategy: domain.StrategyScalp, Direction: domain.DirectionLong, RiskLevel: domain.RiskLow}

	x := Encode(state, action, 2)
	names := FeatureNames()
	require.Len(t, x, FeatureCount)
	require.Len(t, names, FeatureCount)

	value := func(name string) float64 {
		for i, n := range names {
			if n == name {
				return x[i]
			}
		}
		t.Fatalf("feature %s not found", name)
		return 0
	}

	assert.Equal(t, 1.0, value("regime_SIDEWAYS_HIGH_VOL"))
	assert.Equal(t, 0.0, value("regime_BULL_TREND"))
	assert.Equal(t, 1.0, value("strategy_SCALP"))
	assert.Equal(t, 1.0, value("session_OTHER"), "unknown sessions land in the other slot")
	assert.Equal(t, 1.0, value("weekend"))
	assert.Equal(t, 2.0, value("repeats"))
	assert.Equal(t, -2.5, value("drawdown_pct"))
}

func TestBuildDataset_TimeOrderedSplit(t *testing.T) {
	records := syntheticRecords(10)
	// Shuffle order and add an unresolved record
	records[0], records[9] = records[9], records[0]
	records = append(records, domain.DecisionRecord{ID: "pending", Timestamp: time.Now()})

	ds := BuildDataset(records, 0.2)
	require.Len(t, ds.Train, 8)
	require.Len(t, ds.Validation, 2)

	// Newest two decisions (indexes 8 and 9) are held out: 8 is bull, 9 is bear
	assert.Equal(t, "bull", ds.Validation[0].Family)
	assert.Equal(t, "bear", ds.Validation[1].Family)
	assert.Equal(t, 1.0, ds.Validation[0].Label)
	assert.Equal(t, 0.0, ds.Validation[1].Label)
}

func TestTrain(t *testing.T) {
	ds := BuildDataset(syntheticRecords(200), 0.2)

	m, err := Train(ds.Train, DefaultTrainConfig())
	require.NoError(t, err)

	metrics := Evaluate(&Ensemble{Global: m}, ds.Validation)
	assert.InDelta(t, 1.0, metrics.AUC, 1e-9)
	assert.Equal(t, 1.0, metrics.Accuracy)
	assert.Equal(t, 40, metrics.Samples)

	again, err := Train(ds.Train, DefaultTrainConfig())
	require.NoError(t, err)
	assert.Equal(t, m.Weights, again.Weights, "training is deterministic")

	assert.True(t, math.IsNaN(m.Predict([]float64{1, 2})), "wrong dimension yields NaN")
}

func TestTrain_SingleClass(t *testing.T) {
	samples := []Sample{{Features: []float64{1}, Label: 1}, {Features: []float64{2}, Label: 1}}
	_, err := Train(samples, DefaultTrainConfig())
	assert.ErrorIs(t, err, ErrSingleClass)
}

func TestAUC(t *testing.T) {
	scores := []float64{0.1, 0.4, 0.35, 0.8}
	labels := []bool{false, false, true, true}
	assert.InDelta(t, 0.75, AUC(scores, labels), 1e-9)

	// Inputs are not reordered
	assert.Equal(t, []float64{0.1, 0.4, 0.35, 0.8}, scores)

	assert.Equal(t, 0.5, AUC([]float64{0.2, 0.9}, []bool{true, true}))
	assert.Equal(t, 0.5, AUC(nil, nil))
}

func TestEnsemble_RoutesByFamily(t *testing.T) {
	global := &Model{Weights: []float64{0}, Bias: 0, Means: []float64{0}, Stds: []float64{1}}
	bull := &Model{Weights: []float64{0}, Bias: 5, Means: []float64{0}, Stds: []float64{1}}
	e := &Ensemble{Global: global, Experts: map[string]*Model{"bull": bull}}

	assert.Equal(t, "ensemble", e.Kind())
	assert.InDelta(t, sigmoid(5), e.Predict("bull", []float64{0}), 1e-12)
	assert.InDelta(t, 0.5, e.Predict("bear", []float64{0}), 1e-12)
	assert.InDelta(t, 0.5, e.Predict("transition", []float64{0}), 1e-12)
}

func TestTrainEnsemble_ExpertsNeedEnoughData(t *testing.T) {
	ds := BuildDataset(syntheticRecords(200), 0.2)

	e, err := TrainEnsemble(ds.Train, DefaultTrainConfig(), 50)
	require.NoError(t, err)
	// Each family is single-class in the synthetic data
	assert.Empty(t, e.Experts)
	assert.Equal(t, "single", e.Kind())
}

func TestArtifactsRoundTrip(t *testing.T) {
	ds := BuildDataset(syntheticRecords(100), 0.2)
	m, err := Train(ds.Train, DefaultTrainConfig())
	require.NoError(t, err)
	e := &Ensemble{Global: m, Experts: map[string]*Model{"bull": m}}

	dir := filepath.Join(t.TempDir(), "v1")
	artifacts, err := SaveArtifacts(e, dir)
	require.NoError(t, err)
	assert.Contains(t, artifacts, "global")
	assert.Contains(t, artifacts, "expert_bull")

	loaded, err := LoadArtifacts(artifacts)
	require.NoError(t, err)
	x := ds.Validation[0].Features
	assert.Equal(t, e.Predict("bull", x), loaded.Predict("bull", x))

	require.NoError(t, os.WriteFile(artifacts["global"], []byte("garbage"), 0644))
	_, err = LoadArtifacts(artifacts)
	assert.Error(t, err)
}

func newTestRegistry(t *testing.T) *Registry {
	db, cleanup := testingpkg.NewTestDB(t, "registry")
	t.Cleanup(cleanup)
	return NewRegistry(db, filepath.Join(t.TempDir(), "models"), testLog)
}

func trainedCandidate(t *testing.T, auc float64) Candidate {
	ds := BuildDataset(syntheticRecords(60), 0.2)
	m, err := Train(ds.Train, DefaultTrainConfig())
	require.NoError(t, err)
	return Candidate{Ensemble: &Ensemble{Global: m}, Metrics: Metrics{AUC: auc}, RecordCount: 60}
}

func TestRegistry_PromotionLifecycle(t *testing.T) {
	ctx := context.Background()
	r := newTestRegistry(t)
	assert.Nil(t, r.Active())

	first, err := r.RegisterCandidate(ctx, trainedCandidate(t, 0.7))
	require.NoError(t, err)
	assert.Equal(t, "v1", first.Version)
	assert.Equal(t, StatusCandidate, first.Status)

	require.NoError(t, r.Promote(ctx, first.Version))
	require.NotNil(t, r.Active())
	assert.Equal(t, "v1", r.Active().Version)

	second, err := r.RegisterCandidate(ctx, trainedCandidate(t, 0.8))
	require.NoError(t, err)
	assert.Equal(t, "v2", second.Version)
	require.NoError(t, r.Promote(ctx, second.Version))
	assert.Equal(t, "v2", r.Active().Version)

	entries, err := r.List(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	active := 0
	for _, e := range entries {
		if e.Status == StatusActive {
			active++
		}
	}
	assert.Equal(t, 1, active, "exactly one ACTIVE entry")

	old, err := r.Get(ctx, "v1")
	require.NoError(t, err)
	assert.Equal(t, StatusRetired, old.Status)

	// Promoting a non-candidate is refused and does not disturb the pointer
	err = r.Promote(ctx, "v1")
	assert.ErrorIs(t, err, ErrNotCandidate)
	assert.Equal(t, "v2", r.Active().Version)

	// A fresh registry over the same database restores the active model
	restored := NewRegistry(r.db, r.modelsDir, testLog)
	require.NoError(t, restored.Load(ctx))
	require.NotNil(t, restored.Active())
	assert.Equal(t, "v2", restored.Active().Version)
}

func TestRegistry_RejectDeletesArtifacts(t *testing.T) {
	ctx := context.Background()
	r := newTestRegistry(t)

	entry, err := r.RegisterCandidate(ctx, trainedCandidate(t, 0.4))
	require.NoError(t, err)
	_, err = os.Stat(entry.Artifacts["global"])
	require.NoError(t, err)

	require.NoError(t, r.Reject(ctx, entry.Version, "worse"))

	got, err := r.Get(ctx, entry.Version)
	require.NoError(t, err)
	assert.Equal(t, StatusRejected, got.Status)
	assert.Equal(t, "worse", got.Notes)
	_, err = os.Stat(entry.Artifacts["global"])
	assert.True(t, os.IsNotExist(err))

	assert.ErrorIs(t, r.Reject(ctx, entry.Version, "again"), ErrNotCandidate)
}

func TestRegistry_CorruptActiveArtifactsRunRuleOnly(t *testing.T) {
	ctx := context.Background()
	r := newTestRegistry(t)

	entry, err := r.RegisterCandidate(ctx, trainedCandidate(t, 0.7))
	require.NoError(t, err)
	require.NoError(t, r.Promote(ctx, entry.Version))
	require.NoError(t, os.Remove(entry.Artifacts["global"]))

	restored := NewRegistry(r.db, r.modelsDir, testLog)
	require.NoError(t, restored.Load(ctx))
	assert.Nil(t, restored.Active())

	_, err = NewInference(restored).PredictConfidence(ctx, domain.MarketState{}, domain.Action{}, 0)
	assert.ErrorIs(t, err, domain.ErrInferenceUnavailable)
}

func TestInference(t *testing.T) {
	ctx := context.Background()
	r := newTestRegistry(t)
	inf := NewInference(r)

	_, err := inf.PredictConfidence(ctx, domain.MarketState{}, domain.Action{}, 0)
	assert.ErrorIs(t, err, domain.ErrInferenceUnavailable)
	assert.Equal(t, "", inf.ModelVersion())

	entry, err := r.RegisterCandidate(ctx, trainedCandidate(t, 0.9))
	require.NoError(t, err)
	require.NoError(t, r.Promote(ctx, entry.Version))

	records := syntheticRecords(2)
	good, err := inf.PredictConfidence(ctx, records[0].MarketState, records[0].Action, 0)
	require.NoError(t, err)
	bad, err := inf.PredictConfidence(ctx, records[1].MarketState, records[1].Action, 0)
	require.NoError(t, err)
	assert.Greater(t, good, 0.5)
	assert.Less(t, bad, 0.5)
	assert.Equal(t, entry.Version, inf.ModelVersion())
}

type staticSource struct {
	records []domain.DecisionRecord
}

func (s *staticSource) Resolved() ([]domain.DecisionRecord, error) {
	return s.records, nil
}

func TestPipeline(t *testing.T) {
	ctx := context.Background()
	r := newTestRegistry(t)
	source := &staticSource{records: syntheticRecords(100)}
	p := NewPipeline(source, r, PipelineConfig{
		RetrainThreshold: 150,
		ValidationSplit:  0.2,
		MinExpertSamples: 50,
		Train:            DefaultTrainConfig(),
	}, testLog)

	// Below threshold: nothing trained, counter untouched
	run, err := p.Run(ctx, false)
	require.NoError(t, err)
	assert.Equal(t, OutcomeSkipped, run.Outcome)
	last, err := r.RecordsAtLastTrain(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, last)

	// Crossing the threshold trains and promotes over the 0.5 baseline
	source.records = syntheticRecords(160)
	run, err = p.Run(ctx, false)
	require.NoError(t, err)
	assert.Equal(t, OutcomePromoted, run.Outcome)
	assert.Equal(t, 0.5, run.BaselineAUC)
	assert.Greater(t, run.CandidateAUC, 0.5)
	require.NotNil(t, r.Active())
	assert.Equal(t, run.CandidateVersion, r.Active().Version)

	last, err = r.RecordsAtLastTrain(ctx)
	require.NoError(t, err)
	assert.Equal(t, 160, last)

	// Same data again: the candidate ties the active model and is rejected
	run, err = p.Run(ctx, true)
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrPromotionRejected))
	assert.Equal(t, OutcomeRejected, run.Outcome)
	assert.Equal(t, "v1", r.Active().Version)

	rejected, err := r.Get(ctx, run.CandidateVersion)
	require.NoError(t, err)
	assert.Equal(t, StatusRejected, rejected.Status)

	runs, err := r.ListRuns(ctx, 10)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, OutcomeRejected, runs[0].Outcome)
	assert.Equal(t, OutcomePromoted, runs[1].Outcome)
}

type blockingSource struct {
	entered chan struct{}
	release chan struct{}
}

func (s *blockingSource) Resolved() ([]domain.DecisionRecord, error) {
	close(s.entered)
	<-s.release
	return nil, nil
}

func TestPipeline_OverlappingRunsAreSkipped(t *testing.T) {
	r := newTestRegistry(t)
	source := &blockingSource{entered: make(chan struct{}), release: make(chan struct{})}
	p := NewPipeline(source, r, PipelineConfig{RetrainThreshold: 1, ValidationSplit: 0.2}, testLog)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, _ = p.Run(context.Background(), false)
	}()

	<-source.entered
	run, err := p.Run(context.Background(), true)
	require.NoError(t, err)
	assert.Equal(t, OutcomeBusy, run.Outcome)

	close(source.release)
	wg.Wait()
}
