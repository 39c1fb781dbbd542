package auth

import (
	"regexp"
	"strings"

	"github.com/tendant/listings-idm/pkg/domain"
)

const (
	minUsernameLength = 3
	maxUsernameLength = 30
)

var usernameRegex = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_-]*$`)

// NormalizeUsername trims surrounding whitespace. Case is preserved.
func NormalizeUsername(username string) string {
	return strings.TrimSpace(username)
}

// ValidateUsername checks a normalized username: 3-30 ASCII letters, digits,
// underscores or hyphens, starting with a letter or digit.
func ValidateUsername(username string) error {
	if username == "" {
		return domain.Validation("username is required")
	}
	if err := ValidateStringLength("username", username, minUsernameLength, maxUsernameLength); err != nil {
		return err
	}
	if !usernameRegex.MatchString(username) {
		return domain.Validation("username may only contain letters, numbers, underscores and hyphens, and must start with a letter or number")
	}
	return nil
}
