package mfa

import (
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/tendant/listings-idm/internal/http/middleware"
	"github.com/tendant/listings-idm/internal/httputil"
	"github.com/tendant/listings-idm/pkg/auth"
	"github.com/tendant/listings-idm/pkg/domain"
)

// Handler handles MFA-related HTTP requests
type Handler struct {
	logger  *slog.Logger
	service *auth.Service
}

// NewHandler creates a new MFA handler
func NewHandler(logger *slog.Logger, service *auth.Service) *Handler {
	return &Handler{
		logger:  logger,
		service: service,
	}
}

// SetupResponse represents the response body for MFA setup.
// QRCodeURL repeats QRCode under the camelCase name browser clients read.
type SetupResponse struct {
	QRCode     string `json:"qr_code"`
	QRCodeURL  string `json:"qrCodeUrl"`
	Secret     string `json:"secret"`
	OTPAuthURL string `json:"otpauth_url"`
}

// CompleteRequest represents the request body for confirming MFA setup.
// The code may also be sent as "token".
type CompleteRequest struct {
	Code  string `json:"code"`
	Token string `json:"token"`
}

// DisableRequest represents the request body for disabling MFA
type DisableRequest struct {
	Password string `json:"password"`
}

// MessageResponse acknowledges a state change.
type MessageResponse struct {
	Message string `json:"message"`
}

// SetupInit handles POST /api/mfa/setup-init
func (h *Handler) SetupInit(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	accountID, ok := h.accountID(w, r)
	if !ok {
		return
	}

	setup, err := h.service.InitiateMFASetup(ctx, accountID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, SetupResponse{
		QRCode:     setup.QRCodeDataURI,
		QRCodeURL:  setup.QRCodeDataURI,
		Secret:     setup.Secret,
		OTPAuthURL: setup.ProvisioningURI,
	})
}

// SetupComplete handles POST /api/mfa/setup-complete
func (h *Handler) SetupComplete(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	accountID, ok := h.accountID(w, r)
	if !ok {
		return
	}

	var req CompleteRequest
	if !httputil.DecodeJSON(w, r, &req) {
		return
	}

	code := req.Code
	if code == "" {
		code = req.Token
	}

	if err := h.service.CompleteMFASetup(ctx, accountID, code); err != nil {
		httputil.WriteError(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, MessageResponse{Message: "MFA enabled successfully"})
}

// Disable handles POST /api/mfa/disable
func (h *Handler) Disable(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	accountID, ok := h.accountID(w, r)
	if !ok {
		return
	}

	var req DisableRequest
	if !httputil.DecodeJSON(w, r, &req) {
		return
	}

	if err := h.service.DisableMFA(ctx, accountID, req.Password); err != nil {
		httputil.WriteError(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, MessageResponse{Message: "MFA disabled successfully"})
}

// Status handles GET /api/mfa/status
func (h *Handler) Status(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	accountID, ok := h.accountID(w, r)
	if !ok {
		return
	}

	status, err := h.service.MFAStatus(ctx, accountID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, status)
}

// accountID reads the account set by the auth middleware. A miss means the
// route was mounted without it.
func (h *Handler) accountID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, ok := middleware.GetAccountID(r.Context())
	if !ok {
		h.logger.WarnContext(r.Context(), "mfa route reached without authentication", "path", r.URL.Path)
		httputil.WriteError(w, domain.ErrInvalidToken)
	}
	return id, ok
}
