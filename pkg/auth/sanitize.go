package auth

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/tendant/listings-idm/pkg/domain"
)

const maxReferenceLength = 512

// SanitizeReference trims a stored file reference and strips control
// characters.
func SanitizeReference(ref string) string {
	return strings.TrimSpace(removeControlChars(ref))
}

// ValidateReference checks a sanitized profile picture reference.
func ValidateReference(ref string) error {
	if ref == "" {
		return domain.Validation("profile picture reference must not be empty")
	}
	return ValidateStringLength("profile picture reference", ref, 1, maxReferenceLength)
}

// ValidateStringLength validates that a string is within the specified length constraints.
func ValidateStringLength(field, value string, min, max int) error {
	length := len(value)

	if min > 0 && length < min {
		return domain.Validation(fmt.Sprintf("%s must be at least %d characters long", field, min))
	}

	if max > 0 && length > max {
		return domain.Validation(fmt.Sprintf("%s must be at most %d characters long", field, max))
	}

	return nil
}

func removeControlChars(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, s)
}
