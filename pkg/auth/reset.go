package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/tendant/listings-idm/pkg/domain"
)

const (
	// DefaultResetTokenTTL is how long a password reset link stays usable.
	DefaultResetTokenTTL = time.Hour

	resetTokenBytes = 20
)

// ResetToken is a freshly generated password reset token. Plain is sent to
// the user and never stored; Hash is what the store keeps.
type ResetToken struct {
	Plain     string
	Hash      string
	ExpiresAt time.Time
}

// ResetTokens manages single-use password reset tokens.
type ResetTokens struct {
	accounts AccountStore
	clock    Clock
	ttl      time.Duration
}

// NewResetTokens creates a reset token manager.
func NewResetTokens(accounts AccountStore, clock Clock, ttl time.Duration) *ResetTokens {
	if ttl <= 0 {
		ttl = DefaultResetTokenTTL
	}
	if clock == nil {
		clock = SystemClock{}
	}
	return &ResetTokens{accounts: accounts, clock: clock, ttl: ttl}
}

// Generate creates a token without persisting it.
func (r *ResetTokens) Generate() (*ResetToken, error) {
	plain, err := GenerateToken(resetTokenBytes)
	if err != nil {
		return nil, err
	}
	return &ResetToken{
		Plain:     plain,
		Hash:      HashToken(plain),
		ExpiresAt: r.clock.Now().Add(r.ttl),
	}, nil
}

// Issue generates a token and records its hash on the account, replacing any
// outstanding token.
func (r *ResetTokens) Issue(ctx context.Context, accountID uuid.UUID) (*ResetToken, error) {
	token, err := r.Generate()
	if err != nil {
		return nil, err
	}

	_, err = r.accounts.Update(ctx, accountID, AccountPatch{
		ResetTokenHash:      &token.Hash,
		ResetTokenExpiresAt: &token.ExpiresAt,
	})
	if err != nil {
		return nil, fmt.Errorf("store reset token: %w", err)
	}
	return token, nil
}

// Revoke clears the reset token with the given hash if it is still the
// outstanding one.
func (r *ResetTokens) Revoke(ctx context.Context, accountID uuid.UUID, hash string) error {
	_, err := r.accounts.UpdateConditional(ctx,
		AccountFilter{ID: &accountID, ResetTokenHash: &hash},
		AccountPatch{ClearResetToken: true},
	)
	if err != nil && !errors.Is(err, domain.ErrAccountNotFound) {
		return fmt.Errorf("revoke reset token: %w", err)
	}
	return nil
}

// Consume sets a new password hash on the account holding the presented
// token and clears the token, in a single conditional write. Of any number of
// concurrent calls with the same token at most one succeeds.
func (r *ResetTokens) Consume(ctx context.Context, presented, newPasswordHash string) (*domain.Account, error) {
	if presented == "" {
		return nil, domain.ErrInvalidOrExpiredToken
	}

	hash := HashToken(presented)
	now := r.clock.Now()

	account, err := r.accounts.UpdateConditional(ctx,
		AccountFilter{ResetTokenHash: &hash, ResetTokenValidAt: &now},
		AccountPatch{PasswordHash: &newPasswordHash, ClearResetToken: true},
	)
	if err != nil {
		if errors.Is(err, domain.ErrAccountNotFound) {
			return nil, domain.ErrInvalidOrExpiredToken
		}
		return nil, domain.Dependency(fmt.Errorf("consume reset token: %w", err))
	}
	return account, nil
}

// GenerateToken returns size cryptographically random bytes, hex encoded.
func GenerateToken(size int) (string, error) {
	if size <= 0 {
		return "", fmt.Errorf("token size must be positive, got %d", size)
	}
	buf := make([]byte, size)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate random token: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

// HashToken returns the hex SHA-256 digest of a token.
func HashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
