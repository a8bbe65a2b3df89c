package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/aristath/adaptivetrader/internal/modules/policy"
	"github.com/aristath/adaptivetrader/internal/reliability"
	testingpkg "github.com/aristath/adaptivetrader/internal/testing"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type fakePositions struct{ open, waits int }

func (f fakePositions) OpenPositions() int { return f.open }
func (f fakePositions) PendingWaits() int  { return f.waits }

type fakeModel string

func (f fakeModel) ModelVersion() string { return string(f) }

type fakePolicy struct{ table *policy.Table }

func (f fakePolicy) Current() *policy.Table { return f.table }

type mockJobs struct {
	mock.Mock
}

func (m *mockJobs) Jobs() []string {
	return m.Called().Get(0).([]string)
}

func (m *mockJobs) RunNow(name string) error {
	return m.Called(name).Error(0)
}

type mockBackups struct {
	mock.Mock
}

func (m *mockBackups) ListBackups(ctx context.Context) ([]reliability.BackupInfo, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]reliability.BackupInfo), args.Error(1)
}

func newRouter(h *SystemHandlers) http.Handler {
	r := chi.NewRouter()
	h.RegisterRoutes(r)
	return r
}

func TestSystemHandlers_HandleSystemStatus(t *testing.T) {
	db, cleanup := testingpkg.NewTestDB(t, "registry")
	defer cleanup()

	h := NewSystemHandlers(
		zerolog.Nop(), "paper", "BTCUSDT", db,
		fakePositions{open: 2, waits: 1},
		fakeModel("v3"),
		fakePolicy{table: &policy.Table{Version: 7, RecordCount: 420}},
		&mockJobs{}, nil,
	)

	req := httptest.NewRequest(http.MethodGet, "/system/status", nil)
	w := httptest.NewRecorder()
	newRouter(h).ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	var resp SystemStatusResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.Equal(t, "paper", resp.Mode)
	assert.Equal(t, "BTCUSDT", resp.Symbol)
	assert.Equal(t, 2, resp.OpenPositions)
	assert.Equal(t, 1, resp.PendingWaits)
	assert.Equal(t, "v3", resp.ModelVersion)
	assert.Equal(t, int64(7), resp.PolicyVersion)
	assert.Equal(t, 420, resp.PolicyRecords)
}

func TestSystemHandlers_HandleTriggerJob(t *testing.T) {
	tests := []struct {
		name       string
		job        string
		runErr     error
		wantStatus int
		wantRun    bool
	}{
		{"runs known job", "rebuild_policy", nil, http.StatusOK, true},
		{"reports job failure", "retrain", errors.New("registry locked"), http.StatusInternalServerError, true},
		{"unknown job", "format_disk", nil, http.StatusNotFound, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			jobs := &mockJobs{}
			jobs.On("Jobs").Return([]string{"rebuild_policy", "retrain"})
			if tt.wantRun {
				jobs.On("RunNow", tt.job).Return(tt.runErr)
			}

			h := NewSystemHandlers(zerolog.Nop(), "paper", "BTCUSDT", nil, nil, nil, nil, jobs, nil)
			req := httptest.NewRequest(http.MethodPost, "/system/jobs/"+tt.job, nil)
			w := httptest.NewRecorder()
			newRouter(h).ServeHTTP(w, req)

			assert.Equal(t, tt.wantStatus, w.Code)
			if !tt.wantRun {
				jobs.AssertNotCalled(t, "RunNow", mock.Anything)
			}
			jobs.AssertExpectations(t)
		})
	}
}

func TestSystemHandlers_HandleListBackups(t *testing.T) {
	h := NewSystemHandlers(zerolog.Nop(), "paper", "BTCUSDT", nil, nil, nil, nil, &mockJobs{}, nil)
	req := httptest.NewRequest(http.MethodGet, "/system/backups", nil)
	w := httptest.NewRecorder()
	newRouter(h).ServeHTTP(w, req)
	assert.Equal(t, http.StatusNotFound, w.Code, "disabled backups")

	backups := &mockBackups{}
	backups.On("ListBackups", mock.Anything).Return([]reliability.BackupInfo{{Filename: "a.tar.gz"}}, nil)
	h = NewSystemHandlers(zerolog.Nop(), "paper", "BTCUSDT", nil, nil, nil, nil, &mockJobs{}, backups)

	w = httptest.NewRecorder()
	newRouter(h).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/system/backups", nil))
	assert.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Backups []reliability.BackupInfo `json:"backups"`
		Count   int                      `json:"count"`
	}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
	assert.Equal(t, 1, body.Count)
	assert.Equal(t, "a.tar.gz", body.Backups[0].Filename)
}
