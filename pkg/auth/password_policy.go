package auth

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/tendant/listings-idm/internal/config"
	"github.com/tendant/listings-idm/pkg/domain"
)

const (
	// MinPasswordLength is the shortest accepted password.
	MinPasswordLength = 8
	// MaxPasswordBytes is bcrypt's input limit.
	MaxPasswordBytes = 72
)

// PasswordPolicy defines password requirements.
type PasswordPolicy struct {
	MinLength        int
	RequireUppercase bool
	RequireLowercase bool
	RequireNumber    bool
	RequireSpecial   bool
}

// DefaultPasswordPolicy only enforces the length bounds.
func DefaultPasswordPolicy() *PasswordPolicy {
	return &PasswordPolicy{MinLength: MinPasswordLength}
}

// NewPasswordPolicy creates a PasswordPolicy from config. The minimum length
// never drops below MinPasswordLength.
func NewPasswordPolicy(cfg config.PasswordPolicyConfig) *PasswordPolicy {
	minLength := cfg.MinLength
	if minLength < MinPasswordLength {
		minLength = MinPasswordLength
	}
	return &PasswordPolicy{
		MinLength:        minLength,
		RequireUppercase: cfg.RequireUppercase,
		RequireLowercase: cfg.RequireLowercase,
		RequireNumber:    cfg.RequireNumber,
		RequireSpecial:   cfg.RequireSpecial,
	}
}

// ValidatePassword checks password against the policy and returns a
// validation error describing the first unmet requirement.
func (p *PasswordPolicy) ValidatePassword(password string) error {
	if password == "" {
		return domain.Validation("password is required")
	}

	if len(password) < p.MinLength {
		return domain.Validation(fmt.Sprintf("password must be at least %d characters long", p.MinLength))
	}

	if len(password) > MaxPasswordBytes {
		return domain.Validation(fmt.Sprintf("password must be at most %d bytes long", MaxPasswordBytes))
	}

	if p.RequireUppercase && !containsUppercase(password) {
		return domain.Validation("password must contain at least one uppercase letter")
	}

	if p.RequireLowercase && !containsLowercase(password) {
		return domain.Validation("password must contain at least one lowercase letter")
	}

	if p.RequireNumber && !containsNumber(password) {
		return domain.Validation("password must contain at least one number")
	}

	if p.RequireSpecial && !containsSpecial(password) {
		return domain.Validation("password must contain at least one special character")
	}

	return nil
}

// Requirements returns a human-readable description of the policy.
func (p *PasswordPolicy) Requirements() string {
	requirements := []string{fmt.Sprintf("%d to %d characters", p.MinLength, MaxPasswordBytes)}

	if p.RequireUppercase {
		requirements = append(requirements, "one uppercase letter")
	}
	if p.RequireLowercase {
		requirements = append(requirements, "one lowercase letter")
	}
	if p.RequireNumber {
		requirements = append(requirements, "one number")
	}
	if p.RequireSpecial {
		requirements = append(requirements, "one special character")
	}

	return "Password must contain " + strings.Join(requirements, ", ")
}

func containsUppercase(s string) bool {
	for _, r := range s {
		if unicode.IsUpper(r) {
			return true
		}
	}
	return false
}

func containsLowercase(s string) bool {
	for _, r := range s {
		if unicode.IsLower(r) {
			return true
		}
	}
	return false
}

func containsNumber(s string) bool {
	for _, r := range s {
		if unicode.IsDigit(r) {
			return true
		}
	}
	return false
}

// containsSpecial checks for anything that is not a letter, digit or space.
func containsSpecial(s string) bool {
	for _, r := range s {
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) && !unicode.IsSpace(r) {
			return true
		}
	}
	return false
}
