package password

import (
	"github.com/go-chi/chi/v5"
)

// RegisterRoutes registers the public account routes.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/signup", h.Signup)
	r.Post("/login", h.Login)
	r.Post("/forgotpassword", h.ForgotPassword)
	r.Put("/resetPassword/{token}", h.ResetPassword)
	r.Put("/resetpassword/{token}", h.ResetPassword)
}
