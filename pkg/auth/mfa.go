package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
	"github.com/tendant/listings-idm/pkg/domain"
)

const (
	// TOTP parameters
	totpDigits     = 6
	totpPeriod     = 30
	totpWindow     = 1 // Allow ±30 seconds clock drift
	totpSecretSize = 20
)

// MFAConfig contains configuration for the MFA service
type MFAConfig struct {
	Issuer string // shown in authenticator apps
}

// MFAService drives the TOTP setup state machine: unset, pending setup,
// enabled. Every transition is a conditional store write so concurrent
// requests cannot skip a state.
type MFAService struct {
	config   MFAConfig
	accounts AccountStore
	hasher   *PasswordHasher
	qr       QRRenderer
	clock    Clock
}

// NewMFAService creates a new MFA service
func NewMFAService(config MFAConfig, accounts AccountStore, hasher *PasswordHasher, qr QRRenderer, clock Clock) *MFAService {
	if clock == nil {
		clock = SystemClock{}
	}
	return &MFAService{
		config:   config,
		accounts: accounts,
		hasher:   hasher,
		qr:       qr,
		clock:    clock,
	}
}

// InitiateSetup generates a new TOTP secret and stores it as pending.
// Calling it again before completion replaces the pending secret.
func (s *MFAService) InitiateSetup(ctx context.Context, accountID uuid.UUID) (*domain.MFASetup, error) {
	account, err := s.load(ctx, accountID)
	if err != nil {
		return nil, err
	}
	if account.MFAEnabled {
		return nil, domain.ErrMFAAlreadyEnabled
	}

	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      s.config.Issuer,
		AccountName: account.Email,
		Period:      totpPeriod,
		SecretSize:  totpSecretSize,
		Digits:      otp.DigitsSix,
		Algorithm:   otp.AlgorithmSHA1,
	})
	if err != nil {
		return nil, domain.Dependency(fmt.Errorf("generate TOTP key: %w", err))
	}

	qrDataURI, err := s.qr.Render(key.URL())
	if err != nil {
		return nil, domain.Dependency(fmt.Errorf("render QR code: %w", err))
	}

	secret := key.Secret()
	_, err = s.accounts.UpdateConditional(ctx,
		AccountFilter{ID: &accountID, MFAEnabled: ptr(false)},
		AccountPatch{MFASecret: &secret},
	)
	if err != nil {
		if errors.Is(err, domain.ErrAccountNotFound) {
			return nil, domain.ErrMFAAlreadyEnabled
		}
		return nil, domain.Dependency(fmt.Errorf("store pending MFA secret: %w", err))
	}

	return &domain.MFASetup{
		Secret:          secret,
		ProvisioningURI: key.URL(),
		QRCodeDataURI:   qrDataURI,
	}, nil
}

// CompleteSetup verifies a code against the pending secret and enables MFA.
func (s *MFAService) CompleteSetup(ctx context.Context, accountID uuid.UUID, code string) error {
	account, err := s.load(ctx, accountID)
	if err != nil {
		return err
	}
	if err := setupPrecondition(account); err != nil {
		return err
	}

	secret := *account.MFASecret
	if !s.validateCode(code, secret) {
		return domain.ErrInvalidCode
	}

	_, err = s.accounts.UpdateConditional(ctx,
		AccountFilter{ID: &accountID, MFAEnabled: ptr(false), MFASecret: &secret},
		AccountPatch{MFAEnabled: ptr(true)},
	)
	if err == nil {
		return nil
	}
	if !errors.Is(err, domain.ErrAccountNotFound) {
		return domain.Dependency(fmt.Errorf("enable MFA: %w", err))
	}

	// Lost a race with another setup request; report what happened.
	current, err := s.load(ctx, accountID)
	if err != nil {
		return err
	}
	if err := setupPrecondition(current); err != nil {
		return err
	}
	// The secret was replaced after the code was checked.
	return domain.ErrInvalidCode
}

func setupPrecondition(account *domain.Account) error {
	if account.MFAEnabled {
		return domain.ErrMFAAlreadyEnabled
	}
	if account.MFASecret == nil {
		return domain.ErrMFANotInitiated
	}
	return nil
}

// VerifyLogin checks a code for an account with MFA enabled.
func (s *MFAService) VerifyLogin(account *domain.Account, code string) error {
	if !account.MFAEnabled || account.MFASecret == nil {
		return domain.ErrInvalidCode
	}
	if !s.validateCode(code, *account.MFASecret) {
		return domain.ErrInvalidCode
	}
	return nil
}

// Disable turns MFA off after re-verifying the account password.
func (s *MFAService) Disable(ctx context.Context, accountID uuid.UUID, password string) error {
	if password == "" {
		return domain.Validation("password is required")
	}

	account, err := s.load(ctx, accountID)
	if err != nil {
		return err
	}
	if !account.MFAEnabled {
		return domain.ErrMFANotEnabled
	}
	if !s.hasher.Verify(password, account.PasswordHash) {
		return domain.ErrIncorrectPassword
	}

	_, err = s.accounts.UpdateConditional(ctx,
		AccountFilter{ID: &accountID, MFAEnabled: ptr(true)},
		AccountPatch{MFAEnabled: ptr(false), ClearMFASecret: true},
	)
	if err != nil {
		if errors.Is(err, domain.ErrAccountNotFound) {
			return domain.ErrMFANotEnabled
		}
		return domain.Dependency(fmt.Errorf("disable MFA: %w", err))
	}
	return nil
}

// Status returns the MFA status for an account.
func (s *MFAService) Status(ctx context.Context, accountID uuid.UUID) (*domain.MFAStatus, error) {
	account, err := s.load(ctx, accountID)
	if err != nil {
		return nil, err
	}
	return &domain.MFAStatus{
		Enabled: account.MFAEnabled,
		Pending: account.MFAPending(),
	}, nil
}

func (s *MFAService) load(ctx context.Context, accountID uuid.UUID) (*domain.Account, error) {
	account, err := s.accounts.FindByID(ctx, accountID)
	if err != nil {
		if errors.Is(err, domain.ErrAccountNotFound) {
			return nil, domain.ErrInvalidToken
		}
		return nil, domain.Dependency(fmt.Errorf("load account: %w", err))
	}
	return account, nil
}

// validateCode accepts exactly six ASCII digits matching the secret within
// one period either side of now.
func (s *MFAService) validateCode(code, secret string) bool {
	return validateTOTP(code, secret, s.clock.Now())
}

func validateTOTP(code, secret string, at time.Time) bool {
	code = strings.TrimSpace(code)
	if !isSixDigits(code) {
		return false
	}

	valid, err := totp.ValidateCustom(code, secret, at, totp.ValidateOpts{
		Period:    totpPeriod,
		Skew:      totpWindow,
		Digits:    otp.DigitsSix,
		Algorithm: otp.AlgorithmSHA1,
	})
	if err != nil {
		return false
	}
	return valid
}

func isSixDigits(code string) bool {
	if len(code) != totpDigits {
		return false
	}
	for i := 0; i < len(code); i++ {
		if code[i] < '0' || code[i] > '9' {
			return false
		}
	}
	return true
}
