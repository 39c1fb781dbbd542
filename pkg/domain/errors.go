package domain

import (
	"errors"
	"fmt"
)

// ErrorKind classifies failures so callers can decide how to surface them.
type ErrorKind string

const (
	// KindValidation is missing or malformed input.
	KindValidation ErrorKind = "validation"
	// KindConflict is a duplicate username or email.
	KindConflict ErrorKind = "conflict"
	// KindAuth is a failed credential, MFA code or token check.
	KindAuth ErrorKind = "auth"
	// KindState is an operation that does not fit the account's current state.
	KindState ErrorKind = "state"
	// KindDependency is a store or email delivery failure.
	KindDependency ErrorKind = "dependency"
)

// Error is the structured error returned by the authentication core.
type Error struct {
	Kind    ErrorKind
	Code    string
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap returns the wrapped cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches errors of the same kind and code, so a validation error with a
// specific message still satisfies errors.Is(err, ErrValidationFailed).
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind && e.Code == t.Code
}

func newError(kind ErrorKind, code, message string) *Error {
	return &Error{Kind: kind, Code: code, Message: message}
}

// Validation errors
var (
	ErrValidationFailed = newError(KindValidation, "validation_failed", "validation failed")
)

// Conflict errors
var (
	ErrEmailTaken    = newError(KindConflict, "email_taken", "user with that email already exists")
	ErrUsernameTaken = newError(KindConflict, "username_taken", "username already taken")
)

// Authentication errors
var (
	ErrInvalidCredentials    = newError(KindAuth, "invalid_credentials", "invalid credentials")
	ErrMFARequired           = newError(KindAuth, "mfa_required", "multi-factor authentication code required")
	ErrInvalidMFACode        = newError(KindAuth, "invalid_mfa_code", "invalid MFA code")
	ErrInvalidCode           = newError(KindAuth, "invalid_code", "invalid verification code")
	ErrIncorrectPassword     = newError(KindAuth, "incorrect_password", "incorrect password")
	ErrInvalidOrExpiredToken = newError(KindAuth, "invalid_or_expired_token", "invalid or expired reset token")
	ErrInvalidToken          = newError(KindAuth, "invalid_token", "invalid or expired token")
)

// State errors
var (
	ErrMFAAlreadyEnabled = newError(KindState, "mfa_already_enabled", "MFA is already enabled")
	ErrMFANotInitiated   = newError(KindState, "mfa_not_initiated", "MFA setup has not been initiated")
	ErrMFANotEnabled     = newError(KindState, "mfa_not_enabled", "MFA is not enabled for this account")
)

// Dependency errors
var (
	ErrDependency     = newError(KindDependency, "internal_error", "internal server error")
	ErrDeliveryFailed = newError(KindDependency, "delivery_failed", "email could not be sent, please try again later")
)

// ErrAccountNotFound is returned by stores when no account matches. It never
// leaves the authentication core unconverted.
var ErrAccountNotFound = errors.New("account not found")

// Validation returns a validation error with a caller-facing message.
func Validation(message string) error {
	return &Error{Kind: KindValidation, Code: ErrValidationFailed.Code, Message: message}
}

// Dependency wraps an infrastructure failure. The message shown to callers is
// generic; the cause is kept for logging.
func Dependency(err error) error {
	return &Error{Kind: KindDependency, Code: ErrDependency.Code, Message: ErrDependency.Message, Err: err}
}

// KindOf reports the kind of err, or KindDependency for errors that did not
// originate in the authentication core.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindDependency
}
