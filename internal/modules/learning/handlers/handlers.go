// Package handlers provides HTTP handlers for the model registry and retraining pipeline.
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/aristath/adaptivetrader/internal/domain"
	"github.com/aristath/adaptivetrader/internal/modules/learning"
	"github.com/rs/zerolog"
)

// Catalog is the read side of the model registry
type Catalog interface {
	List(ctx context.Context) ([]learning.Entry, error)
	ActiveEntry(ctx context.Context) (*learning.Entry, error)
	ListRuns(ctx context.Context, limit int) ([]learning.Run, error)
}

// Retrainer triggers a pipeline pass
type Retrainer interface {
	Run(ctx context.Context, force bool) (*learning.Run, error)
}

// Handler handles model registry HTTP requests
type Handler struct {
	catalog   Catalog
	retrainer Retrainer
	log       zerolog.Logger
}

// NewHandler creates a new model registry handler
func NewHandler(catalog Catalog, retrainer Retrainer, log zerolog.Logger) *Handler {
	return &Handler{
		catalog:   catalog,
		retrainer: retrainer,
		log:       log.With().Str("handler", "models").Logger(),
	}
}

// HandleListModels handles GET /api/models
func (h *Handler) HandleListModels(w http.ResponseWriter, r *http.Request) {
	entries, err := h.catalog.List(r.Context())
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to list models")
		http.Error(w, "Failed to list models", http.StatusInternalServerError)
		return
	}
	if entries == nil {
		entries = []learning.Entry{}
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"data": entries,
		"metadata": map[string]interface{}{
			"timestamp": time.Now().Format(time.RFC3339),
			"count":     len(entries),
		},
	})
}

// HandleGetActive handles GET /api/models/active
func (h *Handler) HandleGetActive(w http.ResponseWriter, r *http.Request) {
	entry, err := h.catalog.ActiveEntry(r.Context())
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to get active model")
		http.Error(w, "Failed to get active model", http.StatusInternalServerError)
		return
	}
	if entry == nil {
		http.Error(w, "No active model", http.StatusNotFound)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"data": entry,
		"metadata": map[string]interface{}{
			"timestamp": time.Now().Format(time.RFC3339),
		},
	})
}

// HandleListRuns handles GET /api/models/runs?limit=N
func (h *Handler) HandleListRuns(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			http.Error(w, "Invalid limit", http.StatusBadRequest)
			return
		}
		limit = n
	}

	runs, err := h.catalog.ListRuns(r.Context(), limit)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to list training runs")
		http.Error(w, "Failed to list training runs", http.StatusInternalServerError)
		return
	}
	if runs == nil {
		runs = []learning.Run{}
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"data": runs,
		"metadata": map[string]interface{}{
			"timestamp": time.Now().Format(time.RFC3339),
			"count":     len(runs),
		},
	})
}

// HandleRetrain handles POST /api/models/retrain
// Forces a training pass regardless of the new-record threshold.
func (h *Handler) HandleRetrain(w http.ResponseWriter, r *http.Request) {
	run, err := h.retrainer.Run(r.Context(), true)
	if err != nil && !errors.Is(err, domain.ErrPromotionRejected) {
		h.log.Error().Err(err).Msg("Manual retrain failed")
		http.Error(w, "Retrain failed: "+err.Error(), http.StatusInternalServerError)
		return
	}

	status := http.StatusOK
	if run.Outcome == learning.OutcomeBusy {
		status = http.StatusConflict
	}
	h.writeJSON(w, status, map[string]interface{}{
		"data": run,
		"metadata": map[string]interface{}{
			"timestamp": time.Now().Format(time.RFC3339),
		},
	})
}

// writeJSON writes a JSON response
func (h *Handler) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}
