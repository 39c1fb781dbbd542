package middleware

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"

	"github.com/tendant/listings-idm/pkg/domain"
)

type stubAuthenticator struct {
	account *domain.Account
	err     error
	token   string
}

func (s *stubAuthenticator) Authenticate(_ context.Context, token string) (*domain.Account, error) {
	s.token = token
	return s.account, s.err
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestAuth(t *testing.T) {
	account := &domain.Account{ID: uuid.New(), Username: "alice"}

	tests := []struct {
		name       string
		header     string
		authErr    error
		wantStatus int
	}{
		{name: "valid token", header: "Bearer good", wantStatus: http.StatusOK},
		{name: "missing header", header: "", wantStatus: http.StatusUnauthorized},
		{name: "wrong scheme", header: "Token good", wantStatus: http.StatusUnauthorized},
		{name: "rejected token", header: "Bearer bad", authErr: domain.ErrInvalidToken, wantStatus: http.StatusUnauthorized},
		{name: "store down", header: "Bearer good", authErr: domain.Dependency(errors.New("down")), wantStatus: http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stub := &stubAuthenticator{account: account, err: tt.authErr}
			var gotID uuid.UUID
			var gotAccount *domain.Account

			handler := Auth(stub, discardLogger())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				gotID, _ = GetAccountID(r.Context())
				gotAccount, _ = GetAccount(r.Context())
				w.WriteHeader(http.StatusOK)
			}))

			req := httptest.NewRequest(http.MethodGet, "/api/me", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			if tt.wantStatus == http.StatusOK {
				if gotID != account.ID || gotAccount != account {
					t.Error("account should be available from the request context")
				}
				if stub.token != "good" {
					t.Errorf("authenticator saw token %q, want %q", stub.token, "good")
				}
			}
		})
	}
}

func TestGetAccountID_Missing(t *testing.T) {
	if _, ok := GetAccountID(context.Background()); ok {
		t.Error("GetAccountID() should report false without Auth")
	}
	if _, ok := GetAccount(context.Background()); ok {
		t.Error("GetAccount() should report false without Auth")
	}
}

func TestLogging(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))
	account := &domain.Account{ID: uuid.New()}

	handler := Logging(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	req := httptest.NewRequest(http.MethodPost, "/api/login", nil)
	req = req.WithContext(WithAccount(req.Context(), account))
	handler.ServeHTTP(httptest.NewRecorder(), req)

	out := buf.String()
	for _, want := range []string{"method=POST", "path=/api/login", "status=418", "account_id=" + account.ID.String()} {
		if !strings.Contains(out, want) {
			t.Errorf("log line missing %q: %s", want, out)
		}
	}
}
