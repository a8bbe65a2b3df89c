package scheduler

import (
	"context"
	"errors"
	"time"

	"github.com/aristath/adaptivetrader/internal/domain"
	"github.com/aristath/adaptivetrader/internal/metrics"
	"github.com/aristath/adaptivetrader/internal/modules/learning"
	"github.com/rs/zerolog"
)

// Retrainer runs one pass of the retraining pipeline
type Retrainer interface {
	Run(ctx context.Context, force bool) (*learning.Run, error)
}

// RetrainJob checks the new-record threshold and retrains when it is met
type RetrainJob struct {
	pipeline Retrainer
	timeout  time.Duration
	log      zerolog.Logger
}

// NewRetrainJob creates a new RetrainJob
func NewRetrainJob(pipeline Retrainer, timeout time.Duration, log zerolog.Logger) *RetrainJob {
	if timeout <= 0 {
		timeout = 30 * time.Minute
	}
	return &RetrainJob{
		pipeline: pipeline,
		timeout:  timeout,
		log:      log.With().Str("job", "retrain").Logger(),
	}
}

// Name returns the job name
func (j *RetrainJob) Name() string {
	return "retrain"
}

// Run executes the retraining pipeline. A rejected candidate is a normal
// outcome and is not reported as a job failure.
func (j *RetrainJob) Run() error {
	ctx, cancel := context.WithTimeout(context.Background(), j.timeout)
	defer cancel()

	run, err := j.pipeline.Run(ctx, false)
	if run != nil {
		metrics.RetrainRuns.WithLabelValues(string(run.Outcome)).Inc()
	}
	if err != nil && !errors.Is(err, domain.ErrPromotionRejected) {
		return err
	}

	if run != nil && run.Outcome != learning.OutcomeSkipped {
		j.log.Info().
			Str("outcome", string(run.Outcome)).
			Str("candidate", run.CandidateVersion).
			Float64("candidate_auc", run.CandidateAUC).
			Float64("baseline_auc", run.BaselineAUC).
			Msg(run.Message)
	}
	return nil
}
