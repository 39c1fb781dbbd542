package middleware

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/tendant/listings-idm/internal/httputil"
	"github.com/tendant/listings-idm/pkg/domain"
)

type contextKey string

const (
	// AccountIDKey is the context key for the authenticated account ID.
	AccountIDKey contextKey = "account_id"
	// AccountKey is the context key for the authenticated account.
	AccountKey contextKey = "account"
)

// Authenticator resolves a session token to its account.
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (*domain.Account, error)
}

// Auth creates middleware that requires a valid Bearer session token.
func Auth(authenticator Authenticator, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := httputil.BearerToken(r)
			if !ok {
				httputil.Error(w, http.StatusUnauthorized, "missing_authorization", "Not authorized, no token")
				return
			}

			account, err := authenticator.Authenticate(r.Context(), token)
			if err != nil {
				if domain.KindOf(err) == domain.KindDependency {
					logger.ErrorContext(r.Context(), "authenticate request", "error", err)
				}
				httputil.WriteError(w, err)
				return
			}

			ctx := context.WithValue(r.Context(), AccountIDKey, account.ID)
			ctx = context.WithValue(ctx, AccountKey, account)

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// GetAccountID extracts the account ID from the request context.
func GetAccountID(ctx context.Context) (uuid.UUID, bool) {
	id, ok := ctx.Value(AccountIDKey).(uuid.UUID)
	return id, ok
}

// GetAccount extracts the account loaded by Auth from the request context.
func GetAccount(ctx context.Context) (*domain.Account, bool) {
	account, ok := ctx.Value(AccountKey).(*domain.Account)
	return account, ok
}

// WithAccount returns a context carrying account, as Auth would set it.
func WithAccount(ctx context.Context, account *domain.Account) context.Context {
	ctx = context.WithValue(ctx, AccountIDKey, account.ID)
	return context.WithValue(ctx, AccountKey, account)
}
