package domain

import (
	"time"

	"github.com/google/uuid"
)

// Account represents a user account and its credentials.
type Account struct {
	ID                  uuid.UUID
	Username            string
	Email               string
	PasswordHash        string
	MFAEnabled          bool
	MFASecret           *string // base32 TOTP secret, set from setup-init until disable
	ResetTokenHash      *string
	ResetTokenExpiresAt *time.Time
	ProfilePicture      *string
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// MFAPending returns true if MFA setup has been initiated but not completed.
func (a *Account) MFAPending() bool {
	return !a.MFAEnabled && a.MFASecret != nil
}

// Public returns the view of the account that is safe to send to clients.
func (a *Account) Public() *PublicAccount {
	return &PublicAccount{
		ID:             a.ID.String(),
		Username:       a.Username,
		Email:          a.Email,
		MFAEnabled:     a.MFAEnabled,
		ProfilePicture: a.ProfilePicture,
		CreatedAt:      a.CreatedAt,
	}
}

// PublicAccount is the outward representation of an account.
type PublicAccount struct {
	ID             string    `json:"id"`
	Username       string    `json:"username"`
	Email          string    `json:"email"`
	MFAEnabled     bool      `json:"mfa_enabled"`
	ProfilePicture *string   `json:"profile_picture,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

// Clone returns a deep copy of the account.
func (a *Account) Clone() *Account {
	c := *a
	c.MFASecret = cloneString(a.MFASecret)
	c.ResetTokenHash = cloneString(a.ResetTokenHash)
	c.ProfilePicture = cloneString(a.ProfilePicture)
	if a.ResetTokenExpiresAt != nil {
		t := *a.ResetTokenExpiresAt
		c.ResetTokenExpiresAt = &t
	}
	return &c
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}
