package me

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/tendant/listings-idm/internal/http/middleware"
	"github.com/tendant/listings-idm/internal/httputil"
	"github.com/tendant/listings-idm/pkg/auth"
	"github.com/tendant/listings-idm/pkg/domain"
)

// Handler handles profile endpoints.
type Handler struct {
	logger  *slog.Logger
	service *auth.Service
}

// NewHandler creates a new me handler.
func NewHandler(logger *slog.Logger, service *auth.Service) *Handler {
	return &Handler{
		logger:  logger,
		service: service,
	}
}

// ProfileResponse wraps the public account.
type ProfileResponse struct {
	Message string                `json:"message,omitempty"`
	User    *domain.PublicAccount `json:"user"`
}

// RegisterRoutes registers profile routes. r must already require
// authentication.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/me", h.GetMe)
	r.Patch("/me", h.UpdateMe)
}

// GetMe returns the current account.
// GET /api/me
func (h *Handler) GetMe(w http.ResponseWriter, r *http.Request) {
	account, ok := middleware.GetAccount(r.Context())
	if !ok {
		httputil.WriteError(w, domain.ErrInvalidToken)
		return
	}

	httputil.JSON(w, http.StatusOK, ProfileResponse{User: account.Public()})
}

// UpdateMe changes username, email or profile picture. Omitted fields keep
// their value.
// PATCH /api/me
func (h *Handler) UpdateMe(w http.ResponseWriter, r *http.Request) {
	accountID, ok := middleware.GetAccountID(r.Context())
	if !ok {
		httputil.WriteError(w, domain.ErrInvalidToken)
		return
	}

	var req auth.UpdateProfileRequest
	if !httputil.DecodeJSON(w, r, &req) {
		return
	}

	account, err := h.service.UpdateProfile(r.Context(), accountID, req)
	if err != nil {
		if domain.KindOf(err) != domain.KindDependency {
			h.logger.DebugContext(r.Context(), "profile update rejected", "account_id", accountID, "error", err)
		}
		httputil.WriteError(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, ProfileResponse{
		Message: "Profile updated",
		User:    account,
	})
}
