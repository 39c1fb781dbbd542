package auth_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"regexp"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
	"github.com/stretchr/testify/require"
	"github.com/tendant/listings-idm/pkg/auth"
	"github.com/tendant/listings-idm/pkg/domain"
	"github.com/tendant/listings-idm/pkg/repository/memory"
	"golang.org/x/crypto/bcrypt"
)

// baseTime is on a 30 second boundary so TOTP windows line up with whole
// periods.
var baseTime = time.Date(2026, 1, 15, 12, 0, 0, 0, time.UTC)

const testSecret = "test-signing-secret-that-is-at-least-32-bytes"

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: baseTime}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type fakeMailer struct {
	mu   sync.Mutex
	sent []auth.Message
	err  error
}

func (m *fakeMailer) Send(ctx context.Context, msg auth.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.sent = append(m.sent, msg)
	return nil
}

func (m *fakeMailer) Sent() []auth.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]auth.Message(nil), m.sent...)
}

var resetLinkRe = regexp.MustCompile(`/resetPassword/([0-9a-f]{40})`)

// resetTokenFrom extracts the plain reset token from a reset email.
func resetTokenFrom(t *testing.T, msg auth.Message) string {
	t.Helper()
	m := resetLinkRe.FindStringSubmatch(msg.HTMLBody)
	require.Len(t, m, 2, "reset link not found in %q", msg.HTMLBody)
	return m[1]
}

// failingStore fails every lookup with err.
type failingStore struct {
	auth.AccountStore
	err error
}

func (s failingStore) FindByEmail(ctx context.Context, email string) (*domain.Account, error) {
	return nil, s.err
}

func (s failingStore) FindByID(ctx context.Context, id uuid.UUID) (*domain.Account, error) {
	return nil, s.err
}

var errStoreDown = errors.New("connection refused")

type testEnv struct {
	svc    *auth.Service
	store  *memory.AccountsRepository
	clock  *fakeClock
	mailer *fakeMailer
	hasher *auth.PasswordHasher
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	env := &testEnv{
		store:  memory.NewAccountsRepository(),
		clock:  newFakeClock(),
		mailer: &fakeMailer{},
		hasher: auth.NewPasswordHasher(bcrypt.MinCost),
	}
	env.svc = auth.NewService(auth.Config{
		AppName: "Listings",
		BaseURL: "http://localhost:5173/",
		Session: auth.SessionConfig{
			Secret: []byte(testSecret),
			Issuer: "listings-idm",
		},
	}, auth.Dependencies{
		Accounts: env.store,
		Mailer:   env.mailer,
		Hasher:   env.hasher,
		Clock:    env.clock,
		Logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	return env
}

// signup creates an account with password "password123".
func (e *testEnv) signup(t *testing.T, username, email string) *domain.PublicAccount {
	t.Helper()
	account, err := e.svc.Signup(context.Background(), auth.SignupRequest{
		Username: username,
		Email:    email,
		Password: "password123",
	})
	require.NoError(t, err)
	return account
}

// enableMFA runs setup to completion and returns the shared secret.
func (e *testEnv) enableMFA(t *testing.T, id uuid.UUID) string {
	t.Helper()
	ctx := context.Background()
	setup, err := e.svc.InitiateMFASetup(ctx, id)
	require.NoError(t, err)
	require.NoError(t, e.svc.CompleteMFASetup(ctx, id, totpCode(t, setup.Secret, e.clock.Now())))
	return setup.Secret
}

func totpCode(t *testing.T, secret string, at time.Time) string {
	t.Helper()
	code, err := totp.GenerateCodeCustom(secret, at, totp.ValidateOpts{
		Period:    30,
		Digits:    otp.DigitsSix,
		Algorithm: otp.AlgorithmSHA1,
	})
	require.NoError(t, err)
	return code
}
