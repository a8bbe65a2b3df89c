package scheduler

import (
	"github.com/aristath/adaptivetrader/internal/metrics"
	"github.com/aristath/adaptivetrader/internal/modules/policy"
	"github.com/rs/zerolog"
)

// PolicyRebuilder publishes a new policy table version
type PolicyRebuilder interface {
	Rebuild() (*policy.Table, error)
}

// RebuildPolicyJob re-aggregates resolved outcomes into a new policy version
type RebuildPolicyJob struct {
	policy PolicyRebuilder
	log    zerolog.Logger
}

// NewRebuildPolicyJob creates a new RebuildPolicyJob
func NewRebuildPolicyJob(p PolicyRebuilder, log zerolog.Logger) *RebuildPolicyJob {
	return &RebuildPolicyJob{
		policy: p,
		log:    log.With().Str("job", "rebuild_policy").Logger(),
	}
}

// Name returns the job name
func (j *RebuildPolicyJob) Name() string {
	return "rebuild_policy"
}

// Run rebuilds the policy table
func (j *RebuildPolicyJob) Run() error {
	t, err := j.policy.Rebuild()
	if err != nil {
		return err
	}
	metrics.PolicyVersion.Set(float64(t.Version))
	return nil
}
