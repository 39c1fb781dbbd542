package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/tendant/listings-idm/pkg/domain"
)

// DefaultSessionTTL is how long a session token stays valid.
const DefaultSessionTTL = time.Hour

// SessionConfig holds session configuration.
type SessionConfig struct {
	Secret []byte
	Issuer string
	TTL    time.Duration
}

// SessionService issues and verifies signed session tokens. Tokens are
// self-contained; there is no server-side revocation.
type SessionService struct {
	config SessionConfig
	clock  Clock
}

// NewSessionService creates a new session service.
func NewSessionService(config SessionConfig, clock Clock) *SessionService {
	if config.TTL <= 0 {
		config.TTL = DefaultSessionTTL
	}
	if clock == nil {
		clock = SystemClock{}
	}
	return &SessionService{config: config, clock: clock}
}

// sessionClaims carries the exact expiry next to the whole-second exp claim.
// exp is rounded up so standard JWT consumers never reject a token early;
// Verify enforces ExpiresAtNano.
type sessionClaims struct {
	jwt.RegisteredClaims
	ExpiresAtNano int64 `json:"exp_ns"`
}

// Issue signs a token naming accountID as its subject.
func (s *SessionService) Issue(accountID uuid.UUID) (*domain.SessionToken, error) {
	if len(s.config.Secret) == 0 {
		return nil, errors.New("session signing secret is not configured")
	}

	now := s.clock.Now()
	expiresAt := now.Add(s.config.TTL)

	claims := sessionClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   accountID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(ceilSecond(expiresAt)),
			Issuer:    s.config.Issuer,
		},
		ExpiresAtNano: expiresAt.UnixNano(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.config.Secret)
	if err != nil {
		return nil, err
	}

	return &domain.SessionToken{
		Token:     signed,
		TokenType: "Bearer",
		ExpiresIn: int(s.config.TTL.Seconds()),
		ExpiresAt: expiresAt,
	}, nil
}

func ceilSecond(t time.Time) time.Time {
	if t.Equal(t.Truncate(time.Second)) {
		return t
	}
	return t.Truncate(time.Second).Add(time.Second)
}

// Verify checks the signature and expiry of a token and returns its subject.
// A token is valid while now is before its exact expiry.
func (s *SessionService) Verify(tokenString string) (uuid.UUID, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.clock.Now),
	}
	if s.config.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(s.config.Issuer))
	}

	claims := &sessionClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, domain.ErrInvalidToken
		}
		return s.config.Secret, nil
	}, opts...)
	if err != nil || !token.Valid {
		return uuid.Nil, domain.ErrInvalidToken
	}
	if claims.ExpiresAtNano == 0 || !s.clock.Now().Before(time.Unix(0, claims.ExpiresAtNano)) {
		return uuid.Nil, domain.ErrInvalidToken
	}

	accountID, err := uuid.Parse(claims.Subject)
	if err != nil {
		return uuid.Nil, domain.ErrInvalidToken
	}
	return accountID, nil
}
