package scheduler

import (
	"context"
	"time"

	"github.com/aristath/adaptivetrader/internal/metrics"
	"github.com/aristath/adaptivetrader/internal/reliability"
	"github.com/rs/zerolog"
)

// Backuper creates and rotates offsite backups
type Backuper interface {
	CreateAndUpload(ctx context.Context) (*reliability.BackupInfo, error)
	RotateOldBackups(ctx context.Context, retentionDays int) (int, error)
}

// BackupJob uploads a fresh backup and then prunes expired ones
type BackupJob struct {
	backup        Backuper
	retentionDays int
	timeout       time.Duration
	log           zerolog.Logger
}

// NewBackupJob creates a new BackupJob
func NewBackupJob(backup Backuper, retentionDays int, log zerolog.Logger) *BackupJob {
	return &BackupJob{
		backup:        backup,
		retentionDays: retentionDays,
		timeout:       15 * time.Minute,
		log:           log.With().Str("job", "backup").Logger(),
	}
}

// Name returns the job name
func (j *BackupJob) Name() string {
	return "backup"
}

// Run executes the backup. Rotation only runs after a successful upload.
func (j *BackupJob) Run() error {
	ctx, cancel := context.WithTimeout(context.Background(), j.timeout)
	defer cancel()

	if _, err := j.backup.CreateAndUpload(ctx); err != nil {
		metrics.Backups.WithLabelValues("failed").Inc()
		return err
	}
	metrics.Backups.WithLabelValues("uploaded").Inc()

	if _, err := j.backup.RotateOldBackups(ctx, j.retentionDays); err != nil {
		// Rotation failures leave extra backups behind; not fatal
		j.log.Warn().Err(err).Msg("Backup rotation failed")
	}
	return nil
}
