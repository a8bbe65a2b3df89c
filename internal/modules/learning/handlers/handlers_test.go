package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/aristath/adaptivetrader/internal/domain"
	"github.com/aristath/adaptivetrader/internal/modules/learning"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockCatalog struct {
	mock.Mock
}

func (m *mockCatalog) List(ctx context.Context) ([]learning.Entry, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]learning.Entry), args.Error(1)
}

func (m *mockCatalog) ActiveEntry(ctx context.Context) (*learning.Entry, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*learning.Entry), args.Error(1)
}

func (m *mockCatalog) ListRuns(ctx context.Context, limit int) ([]learning.Run, error) {
	args := m.Called(ctx, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]learning.Run), args.Error(1)
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

func setup() (*mockCatalog, *mockRetrainer, http.Handler) {
	catalog := &mockCatalog{}
	retrainer := &mockRetrainer{}
	h := NewHandler(catalog, retrainer, zerolog.New(nil).Level(zerolog.Disabled))
	router := chi.NewRouter()
	h.RegisterRoutes(router)
	return catalog, retrainer, router
}

func TestHandleListModels(t *testing.T) {
	catalog, _, router := setup()
	catalog.On("List", mock.Anything).Return([]learning.Entry{
		{Version: "v2", Status: learning.StatusActive},
		{Version: "v1", Status: learning.StatusRetired},
	}, nil)

	req := httptest.NewRequest(http.MethodGet, "/models/", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Data []learning.Entry `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Data, 2)
	assert.Equal(t, "v2", body.Data[0].Version)
}

func TestHandleGetActive_None(t *testing.T) {
	catalog, _, router := setup()
	catalog.On("ActiveEntry", mock.Anything).Return(nil, nil)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/models/active", nil))

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandleListRuns(t *testing.T) {
	catalog, _, router := setup()
	catalog.On("ListRuns", mock.Anything, 5).Return([]learning.Run{{ID: 1, Outcome: learning.OutcomeRejected}}, nil)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/models/runs?limit=5", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	catalog.AssertExpectations(t)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/models/runs?limit=abc", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleRetrain(t *testing.T) {
	t.Run("rejection is a normal outcome", func(t *testing.T) {
		_, retrainer, router := setup()
		retrainer.On("Run", mock.Anything, true).Return(
			&learning.Run{Outcome: learning.OutcomeRejected, CandidateVersion: "v3"},
			fmt.Errorf("%w: v3", domain.ErrPromotionRejected),
		)

		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/models/retrain", nil))
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), `"rejected"`)
	})

	t.Run("busy", func(t *testing.T) {
		_, retrainer, router := setup()
		retrainer.On("Run", mock.Anything, true).Return(&learning.Run{Outcome: learning.OutcomeBusy}, nil)

		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/models/retrain", nil))
		assert.Equal(t, http.StatusConflict, rec.Code)
	})

	t.Run("failure", func(t *testing.T) {
		_, retrainer, router := setup()
		retrainer.On("Run", mock.Anything, true).Return(nil, errors.New("disk full"))

		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/models/retrain", nil))
		assert.Equal(t, http.StatusInternalServerError, rec.Code)
	})
}
