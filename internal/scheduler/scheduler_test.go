package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"

	"github.com/aristath/adaptivetrader/internal/database"
	"github.com/aristath/adaptivetrader/internal/domain"
	"github.com/aristath/adaptivetrader/internal/modules/learning"
	"github.com/aristath/adaptivetrader/internal/modules/policy"
	"github.com/aristath/adaptivetrader/internal/reliability"
	testingpkg "github.com/aristath/adaptivetrader/internal/testing"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

var testLog = zerolog.New(nil).Level(zerolog.Disabled)

type countingJob struct {
	name string
	runs atomic.Int32
	err  error
}

func (j *countingJob) Name() string { return j.name }

func (j *countingJob) Run() error {
	j.runs.Add(1)
	return j.err
}

func TestScheduler_AddJobAndRunNow(t *testing.T) {
	s := New(testLog)
	job := &countingJob{name: "count"}

	require.NoError(t, s.AddJob("0 */5 * * * *", job))
	assert.Equal(t, []string{"count"}, s.Jobs())

	require.NoError(t, s.RunNow("count"))
	assert.Equal(t, int32(1), job.runs.Load())

	assert.Error(t, s.RunNow("missing"))
}

func TestScheduler_InvalidSchedule(t *testing.T) {
	s := New(testLog)
	err := s.AddJob("not a schedule", &countingJob{name: "bad"})
	assert.Error(t, err)
	assert.Empty(t, s.Jobs())
}

func TestScheduler_RunNowPropagatesError(t *testing.T) {
	s := New(testLog)
	require.NoError(t, s.AddJob("@every 1h", &countingJob{name: "failing", err: errors.New("boom")}))
	assert.EqualError(t, s.RunNow("failing"), "boom")
}

type mockRetrainer struct {
	mock.Mock
}

func (m *mockRetrainer) Run(ctx context.Context, force bool) (*learning.Run, error) {
	args := m.Called(ctx, force)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*learning.Run), args.Error(1)
}

func TestRetrainJob(t *testing.T) {
	testCases := []struct {
		name    string
		run     *learning.Run
		err     error
		wantErr bool
	}{
		{"skipped", &learning.Run{Outcome: learning.OutcomeSkipped}, nil, false},
		{"promoted", &learning.Run{Outcome: learning.OutcomePromoted, CandidateVersion: "v2"}, nil, false},
		{"rejected is not a failure", &learning.Run{Outcome: learning.OutcomeRejected},
			fmt.Errorf("%w: auc did not improve", domain.ErrPromotionRejected), false},
		{"storage failure", &learning.Run{Outcome: learning.OutcomeFailed}, errors.New("registry locked"), true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			p := new(mockRetrainer)
			p.On("Run", mock.Anything, false).Return(tc.run, tc.err)

			err := NewRetrainJob(p, 0, testLog).Run()
			if tc.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
			p.AssertExpectations(t)
		})
	}
}

type staticSource struct{}

func (staticSource) Resolved() ([]domain.DecisionRecord, error) {
	return []domain.DecisionRecord{{
		MarketState: domain.MarketState{Regime: domain.RegimeBullTrend, VolatilityLevel: domain.VolatilityNormal},
		Action:      domain.Action{Strategy: domain.StrategyMomentum},
		Reward:      1,
		Resolved:    true,
	}}, nil
}

func TestRebuildPolicyJob(t *testing.T) {
	svc := policy.NewService(staticSource{}, "", testLog)
	job := NewRebuildPolicyJob(svc, testLog)

	assert.Equal(t, "rebuild_policy", job.Name())
	require.NoError(t, job.Run())
	require.NoError(t, job.Run())
	assert.Equal(t, int64(2), svc.Current().Version)
	assert.Equal(t, 1, svc.SampleSize(domain.RegimeBullTrend, domain.VolatilityNormal, domain.StrategyMomentum))
}

type mockBackuper struct {
	mock.Mock
}

func (m *mockBackuper) CreateAndUpload(ctx context.Context) (*reliability.BackupInfo, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*reliability.BackupInfo), args.Error(1)
}

func (m *mockBackuper) RotateOldBackups(ctx context.Context, retentionDays int) (int, error) {
	args := m.Called(ctx, retentionDays)
	return args.Int(0), args.Error(1)
}

func TestBackupJob_RotatesAfterUpload(t *testing.T) {
	b := new(mockBackuper)
	b.On("CreateAndUpload", mock.Anything).Return(&reliability.BackupInfo{Filename: "x.tar.gz"}, nil)
	b.On("RotateOldBackups", mock.Anything, 30).Return(0, errors.New("list failed"))

	assert.NoError(t, NewBackupJob(b, 30, testLog).Run(), "rotation failure is not fatal")
	b.AssertExpectations(t)
}

func TestBackupJob_UploadFailureSkipsRotation(t *testing.T) {
	b := new(mockBackuper)
	b.On("CreateAndUpload", mock.Anything).Return(nil, errors.New("bucket gone"))

	assert.Error(t, NewBackupJob(b, 30, testLog).Run())
	b.AssertNotCalled(t, "RotateOldBackups", mock.Anything, mock.Anything)
}

func TestCheckWALCheckpointsJob_Name(t *testing.T) {
	job := &CheckWALCheckpointsJob{
		log: zerolog.Nop(),
	}
	assert.Equal(t, "check_wal_checkpoints", job.Name())
}

func TestCheckWALCheckpointsJob_Run(t *testing.T) {
	db, cleanup := testingpkg.NewTestDB(t, "registry")
	defer cleanup()

	job := NewCheckWALCheckpointsJob(map[string]*database.DB{"registry": db, "missing": nil})
	job.SetLogger(testLog)
	assert.NoError(t, job.Run())
}

func TestCheckWALCheckpointsJob_ClosedDatabaseFails(t *testing.T) {
	db, cleanup := testingpkg.NewTestDB(t, "registry")
	defer cleanup()
	require.NoError(t, db.Close())

	job := NewCheckWALCheckpointsJob(map[string]*database.DB{"registry": db})
	assert.Error(t, job.Run())
}

func TestCheckWALCheckpointsJob_CorruptDatabaseFails(t *testing.T) {
	db := testingpkg.NewCorruptTestDB(t)

	job := NewCheckWALCheckpointsJob(map[string]*database.DB{"registry": db})
	job.SetLogger(testLog)
	err := job.Run()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed health check")
}
