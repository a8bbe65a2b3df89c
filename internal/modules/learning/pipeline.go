package learning

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/aristath/adaptivetrader/internal/domain"
	"github.com/rs/zerolog"
)

// RunOutcome is the result category of a pipeline run
type RunOutcome string

const (
	OutcomeSkipped  RunOutcome = "skipped"
	OutcomeBusy     RunOutcome = "busy"
	OutcomePromoted RunOutcome = "promoted"
	OutcomeRejected RunOutcome = "rejected"
	OutcomeFailed   RunOutcome = "failed"
)

// RecordSource yields resolved decisions for training
type RecordSource interface {
	Resolved() ([]domain.DecisionRecord, error)
}

// PipelineConfig controls when and how candidates are trained
type PipelineConfig struct {
	RetrainThreshold int
	ValidationSplit  float64
	MinExpertSamples int
	Train            TrainConfig
}

// Pipeline trains candidates from the experience store and promotes them
// through the registry when they beat the active model.
type Pipeline struct {
	source   RecordSource
	registry *Registry
	cfg      PipelineConfig
	log      zerolog.Logger
	now      func() time.Time

	mu sync.Mutex
}

// NewPipeline creates a retraining pipeline
func NewPipeline(source RecordSource, registry *Registry, cfg PipelineConfig, log zerolog.Logger) *Pipeline {
	return &Pipeline{
		source:   source,
		registry: registry,
		cfg:      cfg,
		log:      log.With().Str("component", "retrain_pipeline").Logger(),
		now:      time.Now,
	}
}

// Run executes one pipeline pass. Unless force is set, training only happens
// once RetrainThreshold new resolved records exist since the last training run.
// A candidate that does not strictly beat the baseline is rejected and the
// returned error wraps domain.ErrPromotionRejected.
func (p *Pipeline) Run(ctx context.Context, force bool) (*Run, error) {
	if !p.mu.TryLock() {
		p.log.Debug().Msg("Pipeline already running, skipping")
		return &Run{Outcome: OutcomeBusy}, nil
	}
	defer p.mu.Unlock()

	run := &Run{StartedAt: p.now().UTC()}

	records, err := p.source.Resolved()
	if err != nil {
		return nil, fmt.Errorf("failed to read resolved records: %w", err)
	}
	run.TotalRecords = len(records)

	last, err := p.registry.RecordsAtLastTrain(ctx)
	if err != nil {
		return nil, err
	}
	run.NewRecords = run.TotalRecords - last
	if run.NewRecords < 0 {
		// Log was truncated or replaced; count everything as new
		run.NewRecords = run.TotalRecords
	}

	if !force && run.NewRecords < p.cfg.RetrainThreshold {
		run.Outcome = OutcomeSkipped
		run.Message = fmt.Sprintf("%d new records, need %d", run.NewRecords, p.cfg.RetrainThreshold)
		p.log.Debug().Int("new_records", run.NewRecords).Int("threshold", p.cfg.RetrainThreshold).Msg("Not enough new records to retrain")
		return run, nil
	}

	ds := BuildDataset(records, p.cfg.ValidationSplit)
	if len(ds.Train) == 0 || len(ds.Validation) == 0 {
		run.Outcome = OutcomeSkipped
		run.Message = "not enough resolved records for a train/validation split"
		return run, nil
	}

	p.log.Info().
		Int("train", len(ds.Train)).
		Int("validation", len(ds.Validation)).
		Int("new_records", run.NewRecords).
		Msg("Training candidate model")

	runErr := p.trainAndEvaluate(ctx, ds, run)
	run.FinishedAt = p.now().UTC()

	if err := p.registry.SetRecordsAtLastTrain(ctx, run.TotalRecords); err != nil {
		p.log.Error().Err(err).Msg("Failed to update training counter")
	}
	if err := p.registry.RecordRun(ctx, *run); err != nil {
		p.log.Error().Err(err).Msg("Failed to record training run")
	}

	return run, runErr
}

func (p *Pipeline) trainAndEvaluate(ctx context.Context, ds Dataset, run *Run) error {
	ensemble, err := TrainEnsemble(ds.Train, p.cfg.Train, p.cfg.MinExpertSamples)
	if err != nil {
		run.Outcome = OutcomeFailed
		run.Message = err.Error()
		if errors.Is(err, ErrSingleClass) {
			p.log.Warn().Err(err).Msg("Candidate training skipped")
			return nil
		}
		return err
	}

	metrics := Evaluate(ensemble, ds.Validation)
	run.CandidateAUC = metrics.AUC

	run.BaselineAUC = 0.5
	baselineVersion := "none"
	if active := p.registry.Active(); active != nil {
		run.BaselineAUC = Evaluate(active.Ensemble, ds.Validation).AUC
		baselineVersion = active.Version
	}

	entry, err := p.registry.RegisterCandidate(ctx, Candidate{
		Ensemble:    ensemble,
		Metrics:     metrics,
		RecordCount: run.TotalRecords,
		Notes:       fmt.Sprintf("baseline %s auc=%.4f", baselineVersion, run.BaselineAUC),
	})
	if err != nil {
		run.Outcome = OutcomeFailed
		run.Message = err.Error()
		return err
	}
	run.CandidateVersion = entry.Version

	if metrics.AUC > run.BaselineAUC {
		if err := p.registry.Promote(ctx, entry.Version); err != nil {
			run.Outcome = OutcomeFailed
			run.Message = err.Error()
			return err
		}
		run.Outcome = OutcomePromoted
		run.Message = fmt.Sprintf("auc %.4f > %.4f", metrics.AUC, run.BaselineAUC)
		return nil
	}

	reason := fmt.Sprintf("auc %.4f did not beat %.4f", metrics.AUC, run.BaselineAUC)
	if err := p.registry.Reject(ctx, entry.Version, reason); err != nil {
		run.Outcome = OutcomeFailed
		run.Message = err.Error()
		return err
	}
	run.Outcome = OutcomeRejected
	run.Message = reason
	return fmt.Errorf("%w: %s %s", domain.ErrPromotionRejected, entry.Version, reason)
}
