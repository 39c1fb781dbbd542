// Package featuretest builds a fully wired auth.Service over the in-memory
// store for HTTP handler tests.
package featuretest

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"regexp"
	"sync"
	"testing"
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/tendant/listings-idm/pkg/auth"
	"github.com/tendant/listings-idm/pkg/domain"
	"github.com/tendant/listings-idm/pkg/repository/memory"
)

// Secret is the session signing secret used by Env.
const Secret = "featuretest-signing-secret-0123456789"

// Clock is a settable auth.Clock.
type Clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward by d.
func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// Mailer records sent messages and optionally fails.
type Mailer struct {
	mu   sync.Mutex
	sent []auth.Message
	Err  error
}

func (m *Mailer) Send(_ context.Context, msg auth.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	m.sent = append(m.sent, msg)
	return nil
}

// Sent returns a copy of the recorded messages.
func (m *Mailer) Sent() []auth.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]auth.Message(nil), m.sent...)
}

var resetLinkRe = regexp.MustCompile(`/resetPassword/([0-9a-f]+)`)

// ResetToken returns the token from the most recent reset email.
func (m *Mailer) ResetToken(t *testing.T) string {
	t.Helper()
	sent := m.Sent()
	require.NotEmpty(t, sent, "no email sent")
	match := resetLinkRe.FindStringSubmatch(sent[len(sent)-1].HTMLBody)
	require.Len(t, match, 2, "no reset link in email")
	return match[1]
}

// Env is a service wired for tests.
type Env struct {
	Service *auth.Service
	Store   *memory.AccountsRepository
	Mailer  *Mailer
	Clock   *Clock
	Logger  *slog.Logger
}

// New returns an Env whose clock starts at 2026-01-15 12:00:00 UTC.
func New(t *testing.T) *Env {
	t.Helper()
	env := &Env{
		Store:  memory.NewAccountsRepository(),
		Mailer: &Mailer{},
		Clock:  &Clock{now: time.Date(2026, 1, 15, 12, 0, 0, 0, time.UTC)},
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	env.Service = auth.NewService(auth.Config{
		AppName: "Listings",
		BaseURL: "http://localhost:5173",
		Session: auth.SessionConfig{Secret: []byte(Secret), Issuer: "listings-idm"},
	}, auth.Dependencies{
		Accounts: env.Store,
		Mailer:   env.Mailer,
		Hasher:   auth.NewPasswordHasher(bcrypt.MinCost),
		Clock:    env.Clock,
		Logger:   env.Logger,
	})
	return env
}

// Signup creates an account with the given password.
func (e *Env) Signup(t *testing.T, username, email, password string) *domain.PublicAccount {
	t.Helper()
	account, err := e.Service.Signup(context.Background(), auth.SignupRequest{
		Username: username,
		Email:    email,
		Password: password,
	})
	require.NoError(t, err)
	return account
}

// Login returns a session token for the account.
func (e *Env) Login(t *testing.T, email, password, code string) string {
	t.Helper()
	result, err := e.Service.Login(context.Background(), auth.LoginRequest{
		Email:    email,
		Password: password,
		MFACode:  code,
	})
	require.NoError(t, err)
	return result.Session.Token
}

// Code returns the TOTP code for secret at the env clock's current time.
func (e *Env) Code(t *testing.T, secret string) string {
	t.Helper()
	code, err := totp.GenerateCodeCustom(secret, e.Clock.Now(), totp.ValidateOpts{
		Period:    30,
		Digits:    otp.DigitsSix,
		Algorithm: otp.AlgorithmSHA1,
	})
	require.NoError(t, err)
	return code
}

// Do sends a JSON request through h. body may be nil; token may be empty.
func Do(t *testing.T, h http.Handler, method, path string, body any, token string) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

// Decode unmarshals the response body into a generic map.
func Decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), "body: %s", rec.Body.String())
	return out
}
