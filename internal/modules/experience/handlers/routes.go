package handlers

import (
	"github.com/go-chi/chi/v5"
)

// RegisterRoutes registers decision log routes
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/decisions", func(r chi.Router) {
		r.Get("/stats", h.HandleGetStats)
		r.Get("/recent", h.HandleGetRecent)
		r.Get("/pending", h.HandleGetPending)
		r.Get("/{id}", h.HandleGetDecision)
	})
}
