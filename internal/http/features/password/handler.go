package password

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/tendant/listings-idm/internal/httputil"
	"github.com/tendant/listings-idm/pkg/auth"
	"github.com/tendant/listings-idm/pkg/domain"
)

// Handler handles signup, login and password reset endpoints.
type Handler struct {
	logger  *slog.Logger
	service *auth.Service
}

// NewHandler creates a new password handler.
func NewHandler(logger *slog.Logger, service *auth.Service) *Handler {
	return &Handler{
		logger:  logger,
		service: service,
	}
}

// SignupResponse is returned after a successful signup.
type SignupResponse struct {
	Message string                `json:"message"`
	User    *domain.PublicAccount `json:"user"`
}

// LoginResponse carries the session token. Token duplicates Session.Token
// for clients that only read the top-level field.
type LoginResponse struct {
	Message string                `json:"message"`
	Token   string                `json:"token"`
	Session *domain.SessionToken  `json:"session"`
	User    *domain.PublicAccount `json:"user"`
}

// ForgotPasswordRequest represents a reset link request.
type ForgotPasswordRequest struct {
	Email string `json:"email"`
}

// LoginRequest accepts the TOTP code as "mfa_code" or "mfaToken".
type LoginRequest struct {
	auth.LoginRequest
	MFAToken string `json:"mfaToken,omitempty"`
}

// ResetPasswordRequest accepts the new password as "password",
// "new_password" or "newPassword".
type ResetPasswordRequest struct {
	Password         string `json:"password"`
	NewPassword      string `json:"new_password"`
	NewPasswordCamel string `json:"newPassword"`
}

// StatusResponse acknowledges a request that returns no data.
type StatusResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// Signup handles POST /api/signup.
func (h *Handler) Signup(w http.ResponseWriter, r *http.Request) {
	var req auth.SignupRequest
	if !httputil.DecodeJSON(w, r, &req) {
		return
	}

	account, err := h.service.Signup(r.Context(), req)
	if err != nil {
		h.reject(r, "signup", err)
		httputil.WriteError(w, err)
		return
	}

	httputil.JSON(w, http.StatusCreated, SignupResponse{
		Message: "Signup successful! You can login now.",
		User:    account,
	})
}

// Login handles POST /api/login. Accounts with MFA enabled must send
// mfa_code; without it the response is 401 with mfa_required set.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if !httputil.DecodeJSON(w, r, &req) {
		return
	}
	if req.MFACode == "" {
		req.MFACode = req.MFAToken
	}

	result, err := h.service.Login(r.Context(), req.LoginRequest)
	if err != nil {
		h.reject(r, "login", err)
		httputil.WriteError(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, LoginResponse{
		Message: "Login successful",
		Token:   result.Session.Token,
		Session: result.Session,
		User:    result.Account,
	})
}

// ForgotPassword handles POST /api/forgotpassword. The response is the same
// whether or not the email is registered.
func (h *Handler) ForgotPassword(w http.ResponseWriter, r *http.Request) {
	var req ForgotPasswordRequest
	if !httputil.DecodeJSON(w, r, &req) {
		return
	}

	if _, err := h.service.ForgotPassword(r.Context(), req.Email); err != nil {
		h.reject(r, "forgot password", err)
		httputil.WriteError(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, StatusResponse{
		Success: true,
		Message: "If an account exists for that email, a password reset link has been sent.",
	})
}

// ResetPassword handles PUT /api/resetPassword/{token} and its lowercase alias.
func (h *Handler) ResetPassword(w http.ResponseWriter, r *http.Request) {
	var req ResetPasswordRequest
	if !httputil.DecodeJSON(w, r, &req) {
		return
	}

	newPassword := req.NewPassword
	if newPassword == "" {
		newPassword = req.NewPasswordCamel
	}
	if newPassword == "" {
		newPassword = req.Password
	}

	err := h.service.ResetPassword(r.Context(), auth.ResetPasswordRequest{
		Token:       chi.URLParam(r, "token"),
		NewPassword: newPassword,
	})
	if err != nil {
		h.reject(r, "reset password", err)
		httputil.WriteError(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, StatusResponse{
		Success: true,
		Message: "Password reset successfully.",
	})
}

// reject logs client-side failures at debug level. Dependency failures are
// already logged by the service.
func (h *Handler) reject(r *http.Request, op string, err error) {
	if domain.KindOf(err) == domain.KindDependency {
		return
	}
	h.logger.DebugContext(r.Context(), op+" rejected", "error", err)
}
