package auth

import (
	"context"
	"errors"
	"fmt"
	"html"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/tendant/listings-idm/pkg/domain"
)

// Config holds the orchestrator configuration.
type Config struct {
	// AppName is shown in authenticator apps and email subjects.
	AppName string

	// BaseURL is the client origin reset links point at.
	BaseURL string

	Session       SessionConfig
	ResetTokenTTL time.Duration

	BlockDisposableEmail bool
}

// Dependencies are the collaborators the orchestrator calls out to.
type Dependencies struct {
	Accounts AccountStore
	Mailer   Mailer
	QR       QRRenderer
	Hasher   *PasswordHasher
	Policy   *PasswordPolicy
	Clock    Clock
	Logger   *slog.Logger
}

// Service runs the account flows: signup, login with optional TOTP step-up,
// password reset, MFA setup and profile updates.
type Service struct {
	config   Config
	accounts AccountStore
	mailer   Mailer
	hasher   *PasswordHasher
	policy   *PasswordPolicy
	clock    Clock
	logger   *slog.Logger

	sessions *SessionService
	resets   *ResetTokens
	mfa      *MFAService
}

// NewService wires the orchestrator and its sub-services.
func NewService(cfg Config, deps Dependencies) *Service {
	if deps.Clock == nil {
		deps.Clock = SystemClock{}
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Hasher == nil {
		deps.Hasher = NewPasswordHasher(DefaultBcryptCost)
	}
	if deps.Policy == nil {
		deps.Policy = DefaultPasswordPolicy()
	}
	if deps.QR == nil {
		deps.QR = NewQRRenderer(defaultQRSize)
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")

	return &Service{
		config:   cfg,
		accounts: deps.Accounts,
		mailer:   deps.Mailer,
		hasher:   deps.Hasher,
		policy:   deps.Policy,
		clock:    deps.Clock,
		logger:   deps.Logger,
		sessions: NewSessionService(cfg.Session, deps.Clock),
		resets:   NewResetTokens(deps.Accounts, deps.Clock, cfg.ResetTokenTTL),
		mfa:      NewMFAService(MFAConfig{Issuer: cfg.AppName}, deps.Accounts, deps.Hasher, deps.QR, deps.Clock),
	}
}

// SignupRequest is the input to Signup.
type SignupRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// LoginRequest is the input to Login. MFACode is required only for accounts
// with MFA enabled.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	MFACode  string `json:"mfa_code,omitempty"`
}

// LoginResult is a successful login.
type LoginResult struct {
	Session *domain.SessionToken  `json:"session"`
	Account *domain.PublicAccount `json:"user"`
}

// ForgotPasswordResult is returned whether or not the email is registered.
type ForgotPasswordResult struct {
	Accepted bool `json:"accepted"`
}

// ResetPasswordRequest is the input to ResetPassword.
type ResetPasswordRequest struct {
	Token       string `json:"-"`
	NewPassword string `json:"new_password"`
}

// UpdateProfileRequest changes the non-nil fields.
type UpdateProfileRequest struct {
	Username       *string `json:"username,omitempty"`
	Email          *string `json:"email,omitempty"`
	ProfilePicture *string `json:"profile_picture,omitempty"`
}

// Signup creates an account.
func (s *Service) Signup(ctx context.Context, req SignupRequest) (*domain.PublicAccount, error) {
	username := NormalizeUsername(req.Username)
	email := NormalizeEmail(req.Email)

	if username == "" || email == "" || req.Password == "" {
		return nil, domain.Validation("please enter all fields")
	}
	if err := s.validatePassword(req.Password); err != nil {
		return nil, err
	}
	if err := ValidateUsername(username); err != nil {
		return nil, err
	}
	if err := ValidateEmail(email, s.config.BlockDisposableEmail); err != nil {
		return nil, err
	}

	if err := s.ensureEmailFree(ctx, email); err != nil {
		return nil, err
	}
	if err := s.ensureUsernameFree(ctx, username); err != nil {
		return nil, err
	}

	hash, err := s.hasher.Hash(req.Password)
	if err != nil {
		return nil, s.dependency(ctx, "hash password", err)
	}

	now := s.clock.Now()
	account := &domain.Account{
		ID:           uuid.New(),
		Username:     username,
		Email:        email,
		PasswordHash: hash,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := s.accounts.Insert(ctx, account); err != nil {
		if isConflict(err) {
			return nil, err
		}
		return nil, s.dependency(ctx, "insert account", err)
	}

	s.logger.InfoContext(ctx, "account created", "account_id", account.ID)
	return account.Public(), nil
}

// Login checks credentials and, for accounts with MFA enabled, the TOTP code.
// Unknown emails and wrong passwords produce the same error.
func (s *Service) Login(ctx context.Context, req LoginRequest) (*LoginResult, error) {
	email := NormalizeEmail(req.Email)
	if email == "" || req.Password == "" {
		return nil, domain.Validation("please enter all fields")
	}

	account, err := s.accounts.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, domain.ErrAccountNotFound) {
			s.hasher.SimulateVerify(req.Password)
			return nil, domain.ErrInvalidCredentials
		}
		return nil, s.dependency(ctx, "find account by email", err)
	}

	if !s.hasher.Verify(req.Password, account.PasswordHash) {
		return nil, domain.ErrInvalidCredentials
	}

	if account.MFAEnabled {
		code := strings.TrimSpace(req.MFACode)
		if code == "" {
			return nil, domain.ErrMFARequired
		}
		if err := s.mfa.VerifyLogin(account, code); err != nil {
			return nil, domain.ErrInvalidMFACode
		}
	}

	session, err := s.sessions.Issue(account.ID)
	if err != nil {
		return nil, s.dependency(ctx, "issue session", err)
	}

	s.logger.InfoContext(ctx, "login succeeded", "account_id", account.ID, "mfa", account.MFAEnabled)
	return &LoginResult{Session: session, Account: account.Public()}, nil
}

// ForgotPassword emails a reset link to a registered address. The result is
// the same whether or not the address is registered.
func (s *Service) ForgotPassword(ctx context.Context, email string) (*ForgotPasswordResult, error) {
	email = NormalizeEmail(email)
	if email == "" {
		return nil, domain.Validation("please enter your email address")
	}

	account, err := s.accounts.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, domain.ErrAccountNotFound) {
			return &ForgotPasswordResult{Accepted: true}, nil
		}
		return nil, s.dependency(ctx, "find account by email", err)
	}

	token, err := s.resets.Issue(ctx, account.ID)
	if err != nil {
		return nil, s.dependency(ctx, "issue reset token", err)
	}

	resetURL := fmt.Sprintf("%s/resetPassword/%s", s.config.BaseURL, token.Plain)
	if err := s.mailer.Send(ctx, s.passwordResetMessage(account.Email, resetURL)); err != nil {
		s.logger.ErrorContext(ctx, "failed to send password reset email", "account_id", account.ID, "error", err)
		if rerr := s.resets.Revoke(ctx, account.ID, token.Hash); rerr != nil {
			s.logger.ErrorContext(ctx, "failed to revoke undelivered reset token", "account_id", account.ID, "error", rerr)
		}
		return nil, &domain.Error{
			Kind:    domain.ErrDeliveryFailed.Kind,
			Code:    domain.ErrDeliveryFailed.Code,
			Message: domain.ErrDeliveryFailed.Message,
			Err:     err,
		}
	}

	s.logger.InfoContext(ctx, "password reset requested", "account_id", account.ID)
	return &ForgotPasswordResult{Accepted: true}, nil
}

func (s *Service) passwordResetMessage(to, resetURL string) Message {
	link := html.EscapeString(resetURL)
	body := fmt.Sprintf(`<html><body>
		<h2>You have requested a password reset</h2>
		<p>Please go to this link to reset your password:</p>
		<p><a href="%s">%s</a></p>
		<p>This link will expire in %s.</p>
		<p>If you did not request this, please ignore this email.</p>
	</body></html>`, link, link, humanDuration(s.resets.ttl))

	subject := "Password Reset Token"
	if s.config.AppName != "" {
		subject = s.config.AppName + ": " + subject
	}
	return Message{To: to, Subject: subject, HTMLBody: body}
}

func humanDuration(d time.Duration) string {
	switch {
	case d == time.Hour:
		return "1 hour"
	case d%time.Hour == 0:
		return fmt.Sprintf("%d hours", int(d.Hours()))
	case d%time.Minute == 0:
		return fmt.Sprintf("%d minutes", int(d.Minutes()))
	default:
		return d.String()
	}
}

// ResetPassword sets a new password using an emailed reset token. The token
// is consumed by the same write that stores the new hash.
func (s *Service) ResetPassword(ctx context.Context, req ResetPasswordRequest) error {
	if strings.TrimSpace(req.Token) == "" {
		return domain.ErrInvalidOrExpiredToken
	}
	if err := s.validatePassword(req.NewPassword); err != nil {
		return err
	}

	hash, err := s.hasher.Hash(req.NewPassword)
	if err != nil {
		return s.dependency(ctx, "hash password", err)
	}

	account, err := s.resets.Consume(ctx, req.Token, hash)
	if err != nil {
		if domain.KindOf(err) == domain.KindDependency {
			s.logger.ErrorContext(ctx, "failed to consume reset token", "error", err)
		}
		return err
	}

	s.logger.InfoContext(ctx, "password reset", "account_id", account.ID)
	return nil
}

// InitiateMFASetup starts TOTP enrollment.
func (s *Service) InitiateMFASetup(ctx context.Context, accountID uuid.UUID) (*domain.MFASetup, error) {
	setup, err := s.mfa.InitiateSetup(ctx, accountID)
	if err != nil {
		s.logFailure(ctx, "initiate MFA setup", accountID, err)
		return nil, err
	}
	s.logger.InfoContext(ctx, "MFA setup initiated", "account_id", accountID)
	return setup, nil
}

// CompleteMFASetup enables MFA after the first valid code.
func (s *Service) CompleteMFASetup(ctx context.Context, accountID uuid.UUID, code string) error {
	if strings.TrimSpace(code) == "" {
		return domain.Validation("verification code is required")
	}
	if err := s.mfa.CompleteSetup(ctx, accountID, code); err != nil {
		s.logFailure(ctx, "complete MFA setup", accountID, err)
		return err
	}
	s.logger.InfoContext(ctx, "MFA enabled", "account_id", accountID)
	return nil
}

// DisableMFA turns MFA off after re-checking the password.
func (s *Service) DisableMFA(ctx context.Context, accountID uuid.UUID, password string) error {
	if err := s.mfa.Disable(ctx, accountID, password); err != nil {
		s.logFailure(ctx, "disable MFA", accountID, err)
		return err
	}
	s.logger.InfoContext(ctx, "MFA disabled", "account_id", accountID)
	return nil
}

// MFAStatus reports the account's MFA state.
func (s *Service) MFAStatus(ctx context.Context, accountID uuid.UUID) (*domain.MFAStatus, error) {
	status, err := s.mfa.Status(ctx, accountID)
	if err != nil {
		s.logFailure(ctx, "load MFA status", accountID, err)
		return nil, err
	}
	return status, nil
}

// UpdateProfile changes username, email or profile picture.
func (s *Service) UpdateProfile(ctx context.Context, accountID uuid.UUID, req UpdateProfileRequest) (*domain.PublicAccount, error) {
	account, err := s.load(ctx, accountID)
	if err != nil {
		return nil, err
	}

	var patch AccountPatch
	changed := false

	if req.Username != nil {
		username := NormalizeUsername(*req.Username)
		if err := ValidateUsername(username); err != nil {
			return nil, err
		}
		if username != account.Username {
			if err := s.ensureUsernameFree(ctx, username); err != nil {
				return nil, err
			}
			patch.Username = &username
			changed = true
		}
	}

	if req.Email != nil {
		email := NormalizeEmail(*req.Email)
		if err := ValidateEmail(email, s.config.BlockDisposableEmail); err != nil {
			return nil, err
		}
		if email != account.Email {
			if err := s.ensureEmailFree(ctx, email); err != nil {
				return nil, err
			}
			patch.Email = &email
			changed = true
		}
	}

	if req.ProfilePicture != nil {
		ref := SanitizeReference(*req.ProfilePicture)
		if err := ValidateReference(ref); err != nil {
			return nil, err
		}
		patch.ProfilePicture = &ref
		changed = true
	}

	if !changed {
		return account.Public(), nil
	}

	updated, err := s.accounts.Update(ctx, accountID, patch)
	if err != nil {
		switch {
		case isConflict(err):
			return nil, err
		case errors.Is(err, domain.ErrAccountNotFound):
			return nil, domain.ErrInvalidToken
		}
		return nil, s.dependency(ctx, "update profile", err)
	}

	s.logger.InfoContext(ctx, "profile updated", "account_id", accountID)
	return updated.Public(), nil
}

// Me returns the public view of the account.
func (s *Service) Me(ctx context.Context, accountID uuid.UUID) (*domain.PublicAccount, error) {
	account, err := s.load(ctx, accountID)
	if err != nil {
		return nil, err
	}
	return account.Public(), nil
}

// Authenticate verifies a session token and returns the account it names.
// Tokens for accounts that no longer exist are rejected.
func (s *Service) Authenticate(ctx context.Context, token string) (*domain.Account, error) {
	accountID, err := s.sessions.Verify(token)
	if err != nil {
		return nil, err
	}
	return s.load(ctx, accountID)
}

func (s *Service) load(ctx context.Context, accountID uuid.UUID) (*domain.Account, error) {
	account, err := s.accounts.FindByID(ctx, accountID)
	if err != nil {
		if errors.Is(err, domain.ErrAccountNotFound) {
			return nil, domain.ErrInvalidToken
		}
		return nil, s.dependency(ctx, "find account by id", err)
	}
	return account, nil
}

func (s *Service) ensureEmailFree(ctx context.Context, email string) error {
	_, err := s.accounts.FindByEmail(ctx, email)
	switch {
	case err == nil:
		return domain.ErrEmailTaken
	case errors.Is(err, domain.ErrAccountNotFound):
		return nil
	default:
		return s.dependency(ctx, "find account by email", err)
	}
}

func (s *Service) ensureUsernameFree(ctx context.Context, username string) error {
	_, err := s.accounts.FindByUsername(ctx, username)
	switch {
	case err == nil:
		return domain.ErrUsernameTaken
	case errors.Is(err, domain.ErrAccountNotFound):
		return nil
	default:
		return s.dependency(ctx, "find account by username", err)
	}
}

// validatePassword appends the full policy to the first unmet requirement so
// clients can show every rule at once.
func (s *Service) validatePassword(password string) error {
	err := s.policy.ValidatePassword(password)
	var derr *domain.Error
	if err == nil || !errors.As(err, &derr) {
		return err
	}
	return domain.Validation(derr.Message + ". " + s.policy.Requirements())
}

func (s *Service) dependency(ctx context.Context, op string, err error) error {
	s.logger.ErrorContext(ctx, "store operation failed", "op", op, "error", err)
	return domain.Dependency(fmt.Errorf("%s: %w", op, err))
}

func (s *Service) logFailure(ctx context.Context, op string, accountID uuid.UUID, err error) {
	if domain.KindOf(err) == domain.KindDependency {
		s.logger.ErrorContext(ctx, "operation failed", "op", op, "account_id", accountID, "error", err)
	}
}

func isConflict(err error) bool {
	return errors.Is(err, domain.ErrEmailTaken) || errors.Is(err, domain.ErrUsernameTaken)
}
