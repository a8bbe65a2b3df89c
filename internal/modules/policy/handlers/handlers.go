// Package handlers provides HTTP handlers for the aggregated policy table.
package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/aristath/adaptivetrader/internal/domain"
	"github.com/aristath/adaptivetrader/internal/modules/policy"
	"github.com/rs/zerolog"
)

// Policy is the policy service as seen over HTTP
type Policy interface {
	Current() *policy.Table
	Rebuild() (*policy.Table, error)
}

// Handler handles policy HTTP requests
type Handler struct {
	policy Policy
	log    zerolog.Logger
}

// NewHandler creates a new policy handler
func NewHandler(p Policy, log zerolog.Logger) *Handler {
	return &Handler{
		policy: p,
		log:    log.With().Str("handler", "policy").Logger(),
	}
}

// HandleGetPolicy handles GET /api/policy
// Optional regime and volatility query params filter the cells.
func (h *Handler) HandleGetPolicy(w http.ResponseWriter, r *http.Request) {
	t := h.policy.Current()
	regime := domain.Regime(r.URL.Query().Get("regime"))
	vol := domain.VolatilityLevel(r.URL.Query().Get("volatility"))

	if regime != "" && !regime.Valid() {
		http.Error(w, "Invalid regime", http.StatusBadRequest)
		return
	}
	if vol != "" && !vol.Valid() {
		http.Error(w, "Invalid volatility", http.StatusBadRequest)
		return
	}

	cells := make([]policy.Cell, 0, len(t.Cells))
	for _, c := range t.Sorted() {
		if regime != "" && c.Regime != regime {
			continue
		}
		if vol != "" && c.Volatility != vol {
			continue
		}
		cells = append(cells, c)
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"data": cells,
		"metadata": map[string]interface{}{
			"timestamp":    time.Now().Format(time.RFC3339),
			"version":      t.Version,
			"built_at":     t.BuiltAt,
			"record_count": t.RecordCount,
		},
	})
}

// HandleRebuild handles POST /api/policy/rebuild
func (h *Handler) HandleRebuild(w http.ResponseWriter, r *http.Request) {
	t, err := h.policy.Rebuild()
	if err != nil {
		h.log.Error().Err(err).Msg("Policy rebuild failed")
		http.Error(w, "Policy rebuild failed", http.StatusInternalServerError)
		return
	}

	h.log.Info().Int64("version", t.Version).Int("records", t.RecordCount).Msg("Policy rebuilt on request")
	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"data": map[string]interface{}{
			"version":      t.Version,
			"record_count": t.RecordCount,
			"cells":        len(t.Cells),
		},
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
