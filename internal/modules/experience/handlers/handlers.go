// Package handlers provides HTTP handlers for reading the decision log.
package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/aristath/adaptivetrader/internal/domain"
	"github.com/aristath/adaptivetrader/internal/modules/experience"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
)

const maxRecentLimit = 500

// Reader is the read side of the experience store
type Reader interface {
	Stats() (experience.Stats, error)
	Recent(n int) ([]domain.DecisionRecord, error)
	Pending() ([]domain.DecisionRecord, error)
	Get(id string) (*domain.DecisionRecord, error)
}

// Handler handles decision log HTTP requests
type Handler struct {
	reader Reader
	log    zerolog.Logger
}

// NewHandler creates a new decision log handler
func NewHandler(reader Reader, log zerolog.Logger) *Handler {
	return &Handler{
		reader: reader,
		log:    log.With().Str("handler", "decisions").Logger(),
	}
}

// HandleGetStats handles GET /api/decisions/stats
func (h *Handler) HandleGetStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.reader.Stats()
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to compute decision stats")
		http.Error(w, "Failed to compute decision stats", http.StatusInternalServerError)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"data": stats,
		"metadata": map[string]interface{}{
			"timestamp": time.Now().Format(time.RFC3339),
		},
	})
}

// HandleGetRecent handles GET /api/decisions/recent?limit=N
// Records are returned newest first.
func (h *Handler) HandleGetRecent(w http.ResponseWriter, r *http.Request) {
	limit := 20
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			http.Error(w, "Invalid limit", http.StatusBadRequest)
			return
		}
		limit = min(n, maxRecentLimit)
	}

	records, err := h.reader.Recent(limit)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to read recent decisions")
		http.Error(w, "Failed to read recent decisions", http.StatusInternalServerError)
		return
	}
	h.writeRecords(w, records)
}

// HandleGetPending handles GET /api/decisions/pending
func (h *Handler) HandleGetPending(w http.ResponseWriter, r *http.Request) {
	records, err := h.reader.Pending()
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to read pending decisions")
		http.Error(w, "Failed to read pending decisions", http.StatusInternalServerError)
		return
	}
	h.writeRecords(w, records)
}

// HandleGetDecision handles GET /api/decisions/{id}
func (h *Handler) HandleGetDecision(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	rec, err := h.reader.Get(id)
	if errors.Is(err, domain.ErrRecordNotFound) {
		http.Error(w, "Decision not found", http.StatusNotFound)
		return
	}
	if err != nil {
		h.log.Error().Err(err).Str("id", id).Msg("Failed to read decision")
		http.Error(w, "Failed to read decision", http.StatusInternalServerError)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"data": rec,
		"metadata": map[string]interface{}{
			"timestamp": time.Now().Format(time.RFC3339),
		},
	})
}

func (h *Handler) writeRecords(w http.ResponseWriter, records []domain.DecisionRecord) {
	if records == nil {
		records = []domain.DecisionRecord{}
	}
	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"data": records,
		"metadata": map[string]interface{}{
			"timestamp": time.Now().Format(time.RFC3339),
			"count":     len(records),
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
