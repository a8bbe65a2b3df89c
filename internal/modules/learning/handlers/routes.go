package handlers

import (
	"github.com/go-chi/chi/v5"
)

// RegisterRoutes registers model registry routes
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/models", func(r chi.Router) {
		r.Get("/", h.HandleListModels)
		r.Get("/active", h.HandleGetActive)
		r.Get("/runs", h.HandleListRuns)
		r.Post("/retrain", h.HandleRetrain)
	})
}
