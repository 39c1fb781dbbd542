package auth

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/tendant/listings-idm/pkg/domain"
)

// AccountStore persists accounts. Implementations must enforce uniqueness of
// username and email themselves and report violations as
// domain.ErrUsernameTaken or domain.ErrEmailTaken. Lookups that match nothing
// return domain.ErrAccountNotFound.
type AccountStore interface {
	FindByEmail(ctx context.Context, email string) (*domain.Account, error)
	FindByUsername(ctx context.Context, username string) (*domain.Account, error)
	FindByID(ctx context.Context, id uuid.UUID) (*domain.Account, error)
	Insert(ctx context.Context, account *domain.Account) error

	// UpdateConditional applies patch to the single account matching filter
	// in one atomic write and returns the updated account. When nothing
	// matches it returns domain.ErrAccountNotFound and writes nothing.
	UpdateConditional(ctx context.Context, filter AccountFilter, patch AccountPatch) (*domain.Account, error)

	// Update applies patch to the account with the given id.
	Update(ctx context.Context, id uuid.UUID, patch AccountPatch) (*domain.Account, error)
}

// AccountFilter selects the account a conditional write applies to. Every
// non-nil field must match.
type AccountFilter struct {
	ID         *uuid.UUID
	MFAEnabled *bool
	MFASecret  *string

	// ResetTokenHash matches accounts whose outstanding reset token hash is
	// equal; ResetTokenValidAt additionally requires the token to expire
	// strictly after the given instant.
	ResetTokenHash    *string
	ResetTokenValidAt *time.Time
}

// AccountPatch describes the fields a write changes. Nil fields are left
// untouched.
type AccountPatch struct {
	Username       *string
	Email          *string
	PasswordHash   *string
	ProfilePicture *string

	MFAEnabled     *bool
	MFASecret      *string
	ClearMFASecret bool

	// ResetTokenHash and ResetTokenExpiresAt are set together.
	ResetTokenHash      *string
	ResetTokenExpiresAt *time.Time
	ClearResetToken     bool
}

// Apply mutates a in place according to the patch. Store implementations
// that work on in-memory copies share this so patch semantics stay the same
// everywhere.
func (p AccountPatch) Apply(a *domain.Account, now time.Time) {
	if p.Username != nil {
		a.Username = *p.Username
	}
	if p.Email != nil {
		a.Email = *p.Email
	}
	if p.PasswordHash != nil {
		a.PasswordHash = *p.PasswordHash
	}
	if p.ProfilePicture != nil {
		v := *p.ProfilePicture
		a.ProfilePicture = &v
	}
	if p.MFAEnabled != nil {
		a.MFAEnabled = *p.MFAEnabled
	}
	if p.ClearMFASecret {
		a.MFASecret = nil
	} else if p.MFASecret != nil {
		v := *p.MFASecret
		a.MFASecret = &v
	}
	if p.ClearResetToken {
		a.ResetTokenHash = nil
		a.ResetTokenExpiresAt = nil
	} else if p.ResetTokenHash != nil && p.ResetTokenExpiresAt != nil {
		h, e := *p.ResetTokenHash, *p.ResetTokenExpiresAt
		a.ResetTokenHash = &h
		a.ResetTokenExpiresAt = &e
	}
	a.UpdatedAt = now
}

// Matches reports whether a satisfies every condition of the filter.
func (f AccountFilter) Matches(a *domain.Account) bool {
	if f.ID != nil && a.ID != *f.ID {
		return false
	}
	if f.MFAEnabled != nil && a.MFAEnabled != *f.MFAEnabled {
		return false
	}
	if f.MFASecret != nil && (a.MFASecret == nil || *a.MFASecret != *f.MFASecret) {
		return false
	}
	if f.ResetTokenHash != nil && (a.ResetTokenHash == nil || *a.ResetTokenHash != *f.ResetTokenHash) {
		return false
	}
	if f.ResetTokenValidAt != nil && (a.ResetTokenExpiresAt == nil || !a.ResetTokenExpiresAt.After(*f.ResetTokenValidAt)) {
		return false
	}
	return true
}

// Message is an outbound email.
type Message struct {
	To       string
	Subject  string
	HTMLBody string
}

// Mailer delivers email.
type Mailer interface {
	Send(ctx context.Context, msg Message) error
}

// QRRenderer renders a provisioning URI as an image data URI.
type QRRenderer interface {
	Render(uri string) (string, error)
}

// Clock reports the current time.
type Clock interface {
	Now() time.Time
}

// SystemClock is the wall clock.
type SystemClock struct{}

// Now returns the current UTC time.
func (SystemClock) Now() time.Time { return time.Now().UTC() }

func ptr[T any](v T) *T { return &v }
