package di

import (
	"fmt"

	"github.com/aristath/adaptivetrader/internal/config"
	"github.com/aristath/adaptivetrader/internal/database"
	"github.com/aristath/adaptivetrader/internal/scheduler"
	"github.com/rs/zerolog"
)

// RegisterJobs creates the scheduler and registers every background job
func RegisterJobs(container *Container, cfg *config.Config, log zerolog.Logger) (*JobInstances, error) {
	sched := scheduler.New(log)
	jobs := &JobInstances{}

	jobs.Retrain = scheduler.NewRetrainJob(container.Pipeline, 0, log)
	if err := sched.AddJob(cfg.Training.RetrainSchedule, jobs.Retrain); err != nil {
		return nil, fmt.Errorf("failed to register retrain job: %w", err)
	}

	jobs.RebuildPolicy = scheduler.NewRebuildPolicyJob(container.Policy, log)
	if err := sched.AddJob(cfg.Training.PolicySchedule, jobs.RebuildPolicy); err != nil {
		return nil, fmt.Errorf("failed to register policy job: %w", err)
	}

	walJob := scheduler.NewCheckWALCheckpointsJob(map[string]*database.DB{
		"registry": container.RegistryDB,
	})
	walJob.SetLogger(log.With().Str("job", "check_wal_checkpoints").Logger())
	jobs.CheckWALCheckpoints = walJob
	if err := sched.AddJob(cfg.MaintenanceSchedule, walJob); err != nil {
		return nil, fmt.Errorf("failed to register maintenance job: %w", err)
	}

	if container.Backup != nil {
		jobs.Backup = scheduler.NewBackupJob(container.Backup, cfg.Backup.RetentionDays, log)
		if err := sched.AddJob(cfg.Backup.Schedule, jobs.Backup); err != nil {
			return nil, fmt.Errorf("failed to register backup job: %w", err)
		}
	}

	container.Scheduler = sched
	log.Info().Int("jobs", len(sched.Jobs())).Msg("Jobs registered")
	return jobs, nil
}
