package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/tendant/listings-idm/internal/config"
)

func serveWith(mw func(http.Handler) http.Handler) *httptest.ResponseRecorder {
	handler := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/me", nil))
	return w
}

func TestSecurityHeaders(t *testing.T) {
	cfg := config.SecurityHeadersConfig{
		Enabled:            true,
		CSP:                "default-src 'none'",
		HSTSMaxAge:         31536000,
		FrameOptions:       "DENY",
		ContentTypeOptions: "nosniff",
		ReferrerPolicy:     "no-referrer",
	}

	w := serveWith(SecurityHeaders(cfg))

	want := map[string]string{
		"Content-Security-Policy":   "default-src 'none'",
		"Strict-Transport-Security": "max-age=31536000; includeSubDomains",
		"X-Frame-Options":           "DENY",
		"X-Content-Type-Options":    "nosniff",
		"Referrer-Policy":           "no-referrer",
		"Cache-Control":             "no-store",
	}
	for name, value := range want {
		if got := w.Header().Get(name); got != value {
			t.Errorf("%s = %q, want %q", name, got, value)
		}
	}
	for _, name := range []string{"X-XSS-Protection", "Permissions-Policy"} {
		if got := w.Header().Get(name); got != "" {
			t.Errorf("%s should be omitted when empty, got %q", name, got)
		}
	}
}

func TestSecurityHeaders_Disabled(t *testing.T) {
	w := serveWith(SecurityHeaders(config.SecurityHeadersConfig{Enabled: false, CSP: "default-src 'self'"}))

	if got := w.Header().Get("Content-Security-Policy"); got != "" {
		t.Errorf("CSP header should not be set when disabled, got %v", got)
	}
	if got := w.Header().Get("Cache-Control"); got != "" {
		t.Errorf("Cache-Control should not be set when disabled, got %v", got)
	}
}

func TestSecurityHeaders_NoHSTSWithoutMaxAge(t *testing.T) {
	w := serveWith(SecurityHeaders(config.SecurityHeadersConfig{Enabled: true}))

	if got := w.Header().Get("Strict-Transport-Security"); got != "" {
		t.Errorf("HSTS header should not be set when max age is 0, got %v", got)
	}
}
