package domain

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrBlocked        = errors.New("identifier is blocked")
	ErrInvalidRule    = errors.New("invalid rate limit rule")
	ErrUnknownRule    = errors.New("unknown rate limit rule")
	ErrUserNotFound   = errors.New("user not found")
	ErrInvalidSession = errors.New("invalid session token")
)

func IsBlockedError(err error) bool {
	return errors.Is(err, ErrBlocked)
}

func IsUserNotFound(err error) bool {
	return errors.Is(err, ErrUserNotFound)
}

type ErrorCode string

const (
	CodeUnauthenticated ErrorCode = "UNAUTHENTICATED"
	CodeForbidden       ErrorCode = "FORBIDDEN"
	CodeInvalidInput    ErrorCode = "INVALID_INPUT"
	CodeNotFound        ErrorCode = "NOT_FOUND"
)

// SecurityError is raised by the guard functions. Callers are expected to
// catch this type specifically and let anything else propagate.
type SecurityError struct {
	Code    ErrorCode
	Message string
}

func (e *SecurityError) Error() string {
	if e.Message == "" {
		return string(e.Code)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Is matches any SecurityError carrying the same code, so
// errors.Is(err, ErrForbidden) works for every forbidden failure.
func (e *SecurityError) Is(target error) bool {
	t, ok := target.(*SecurityError)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

var (
	ErrUnauthenticated = &SecurityError{Code: CodeUnauthenticated}
	ErrForbidden       = &SecurityError{Code: CodeForbidden}
	ErrInvalidInput    = &SecurityError{Code: CodeInvalidInput}
	ErrNotFound        = &SecurityError{Code: CodeNotFound}
)

func NewSecurityError(code ErrorCode, message string) *SecurityError {
	return &SecurityError{Code: code, Message: message}
}

// CodeOf returns the code of a SecurityError anywhere in err's chain.
func CodeOf(err error) (ErrorCode, bool) {
	var se *SecurityError
	if errors.As(err, &se) {
		return se.Code, true
	}
	return "", false
}

// PublicMessage is what end users see for a guard failure. It never says why
// access was refused.
func PublicMessage(code ErrorCode) string {
	switch code {
	case CodeUnauthenticated:
		return "You must be signed in to do that."
	case CodeForbidden:
		return "You do not have permission to do that."
	case CodeInvalidInput:
		return "The request contained invalid input."
	case CodeNotFound:
		return "Not found."
	default:
		return "Something went wrong."
	}
}

// ValidateID trims value and rejects it when nothing is left.
func ValidateID(value, field string) (string, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return "", NewSecurityError(CodeInvalidInput, fmt.Sprintf("invalid %s", field))
	}
	return trimmed, nil
}
