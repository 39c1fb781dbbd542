package mfa

import (
	"github.com/go-chi/chi/v5"
)

// RegisterRoutes registers MFA management routes. r must already require
// authentication.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/mfa/status", h.Status)
	r.Post("/mfa/setup-init", h.SetupInit)
	r.Post("/mfa/setup-complete", h.SetupComplete)
	r.Post("/mfa/disable", h.Disable)
}
