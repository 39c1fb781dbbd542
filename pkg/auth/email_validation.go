package auth

import (
	"fmt"
	"net/mail"
	"regexp"
	"strings"

	"github.com/tendant/listings-idm/pkg/domain"
)

// Common disposable email domains to block (can be extended)
var disposableDomains = map[string]bool{
	"tempmail.com":      true,
	"10minutemail.com":  true,
	"guerrillamail.com": true,
	"mailinator.com":    true,
	"throwaway.email":   true,
}

// Word characters, optional single dot or hyphen separators, and a 2-3
// character final label.
var emailRegex = regexp.MustCompile(`^\w+([.-]?\w+)*@\w+([.-]?\w+)*(\.\w{2,3})+$`)

const maxEmailLength = 254 // RFC 5321

// ValidateEmail validates a normalized email address.
func ValidateEmail(email string, blockDisposable bool) error {
	if email == "" {
		return domain.Validation("email is required")
	}

	if len(email) > maxEmailLength {
		return domain.Validation(fmt.Sprintf("email address is too long (max %d characters)", maxEmailLength))
	}

	if !emailRegex.MatchString(email) {
		return domain.Validation("please enter a valid email address")
	}

	// Must also be usable as an SMTP recipient.
	if _, err := mail.ParseAddress(email); err != nil {
		return domain.Validation("please enter a valid email address")
	}

	if blockDisposable && disposableDomains[getDomain(email)] {
		return domain.Validation("disposable email addresses are not allowed")
	}

	return nil
}

// NormalizeEmail normalizes an email address by lowercasing and trimming.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func getDomain(email string) string {
	parts := strings.Split(email, "@")
	if len(parts) != 2 {
		return ""
	}
	return strings.ToLower(parts[1])
}
