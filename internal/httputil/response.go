package httputil

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/tendant/listings-idm/pkg/domain"
)

// ErrorResponse is the JSON body of every error response.
type ErrorResponse struct {
	Error       string `json:"error"`
	Message     string `json:"message"`
	MFARequired bool   `json:"mfa_required,omitempty"`
	// MFARequiredCamel mirrors MFARequired for camelCase clients.
	MFARequiredCamel bool `json:"mfaRequired,omitempty"`
}

// JSON writes v as a JSON response with the given status.
func JSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// Error writes an error response with an explicit status.
func Error(w http.ResponseWriter, status int, code, message string) {
	JSON(w, status, ErrorResponse{Error: code, Message: message})
}

// StatusFor maps a domain error kind to an HTTP status.
func StatusFor(kind domain.ErrorKind) int {
	switch kind {
	case domain.KindValidation:
		return http.StatusBadRequest
	case domain.KindConflict, domain.KindState:
		return http.StatusConflict
	case domain.KindAuth:
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}

// WriteError writes err as an error response. Errors that did not come from
// the authentication core are reported as internal errors without detail.
func WriteError(w http.ResponseWriter, err error) {
	var de *domain.Error
	if !errors.As(err, &de) {
		de = domain.ErrDependency
	}

	resp := ErrorResponse{Error: de.Code, Message: de.Message}
	if errors.Is(err, domain.ErrMFARequired) {
		resp.MFARequired = true
		resp.MFARequiredCamel = true
	}
	JSON(w, StatusFor(de.Kind), resp)
}

// BearerToken extracts the token from an "Authorization: Bearer" header.
func BearerToken(r *http.Request) (string, bool) {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return "", false
	}
	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", false
	}
	token := strings.TrimSpace(parts[1])
	return token, token != ""
}

// DecodeJSON decodes the request body into v. It writes the error response
// itself and returns false when the body is unusable.
func DecodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	err := json.NewDecoder(r.Body).Decode(v)
	if err == nil {
		return true
	}

	var maxBytesErr *http.MaxBytesError
	if errors.As(err, &maxBytesErr) {
		Error(w, http.StatusRequestEntityTooLarge, "request_too_large", "request body too large")
		return false
	}
	Error(w, http.StatusBadRequest, domain.ErrValidationFailed.Code, "invalid request body")
	return false
}
