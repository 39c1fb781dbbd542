package httputil

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/tendant/listings-idm/pkg/domain"
)

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) ErrorResponse {
	t.Helper()
	var resp ErrorResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return resp
}

func TestWriteError(t *testing.T) {
	tests := []struct {
		name        string
		err         error
		wantStatus  int
		wantCode    string
		wantMessage string
		wantMFA     bool
	}{
		{
			name:        "validation keeps message",
			err:         domain.Validation("Please enter all fields"),
			wantStatus:  http.StatusBadRequest,
			wantCode:    "validation_failed",
			wantMessage: "Please enter all fields",
		},
		{
			name:       "conflict",
			err:        domain.ErrEmailTaken,
			wantStatus: http.StatusConflict,
			wantCode:   "email_taken",
		},
		{
			name:       "state",
			err:        domain.ErrMFAAlreadyEnabled,
			wantStatus: http.StatusConflict,
			wantCode:   "mfa_already_enabled",
		},
		{
			name:       "auth",
			err:        domain.ErrInvalidCredentials,
			wantStatus: http.StatusUnauthorized,
			wantCode:   "invalid_credentials",
		},
		{
			name:       "mfa required flag",
			err:        domain.ErrMFARequired,
			wantStatus: http.StatusUnauthorized,
			wantCode:   "mfa_required",
			wantMFA:    true,
		},
		{
			name:        "dependency hides cause",
			err:         domain.Dependency(errors.New("dial tcp 10.0.0.1:5432: connection refused")),
			wantStatus:  http.StatusInternalServerError,
			wantCode:    "internal_error",
			wantMessage: "internal server error",
		},
		{
			name:        "foreign error",
			err:         fmt.Errorf("boom"),
			wantStatus:  http.StatusInternalServerError,
			wantCode:    "internal_error",
			wantMessage: "internal server error",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			WriteError(rec, tt.err)

			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
				t.Errorf("Content-Type = %q", ct)
			}
			resp := decodeError(t, rec)
			if resp.Error != tt.wantCode {
				t.Errorf("error = %q, want %q", resp.Error, tt.wantCode)
			}
			if tt.wantMessage != "" && resp.Message != tt.wantMessage {
				t.Errorf("message = %q, want %q", resp.Message, tt.wantMessage)
			}
			if resp.MFARequired != tt.wantMFA {
				t.Errorf("mfa_required = %v, want %v", resp.MFARequired, tt.wantMFA)
			}
			if resp.MFARequiredCamel != tt.wantMFA {
				t.Errorf("mfaRequired = %v, want %v", resp.MFARequiredCamel, tt.wantMFA)
			}
			if strings.Contains(resp.Message, "10.0.0.1") {
				t.Error("response must not leak internal detail")
			}
		})
	}
}

func TestBearerToken(t *testing.T) {
	tests := []struct {
		header string
		want   string
		wantOK bool
	}{
		{header: "Bearer abc.def.ghi", want: "abc.def.ghi", wantOK: true},
		{header: "bearer abc", want: "abc", wantOK: true},
		{header: "Bearer ", wantOK: false},
		{header: "Basic dXNlcjpwYXNz", wantOK: false},
		{header: "abc.def.ghi", wantOK: false},
		{header: "", wantOK: false},
	}

	for _, tt := range tests {
		t.Run(tt.header, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			got, ok := BearerToken(req)
			if ok != tt.wantOK || got != tt.want {
				t.Errorf("BearerToken() = %q, %v, want %q, %v", got, ok, tt.want, tt.wantOK)
			}
		})
	}
}

func TestDecodeJSON(t *testing.T) {
	var v struct {
		Email string `json:"email"`
	}

	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"email":"a@b.co"}`))
	if !DecodeJSON(httptest.NewRecorder(), req, &v) || v.Email != "a@b.co" {
		t.Errorf("DecodeJSON() failed, got %+v", v)
	}

	rec := httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{not json`))
	if DecodeJSON(rec, req, &v) {
		t.Error("DecodeJSON() should reject malformed JSON")
	}
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}

	rec = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"email":"`+strings.Repeat("a", 64)+`"}`))
	req.Body = http.MaxBytesReader(rec, req.Body, 16)
	if DecodeJSON(rec, req, &v) {
		t.Error("DecodeJSON() should reject oversized body")
	}
	if rec.Code != http.StatusRequestEntityTooLarge {
		t.Errorf("status = %d, want 413", rec.Code)
	}
}
