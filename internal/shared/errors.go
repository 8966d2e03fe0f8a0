package shared

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound indicates resource not found.
	ErrNotFound = errors.New("not found")
	// ErrInvalidCredentials indicates login failure.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrBanned indicates the account has been banned.
	ErrBanned = errors.New("banned")
	// ErrPendingActivation indicates staff has not confirmed the account yet.
	ErrPendingActivation = errors.New("pending activation")
	// ErrEmailRequired indicates the account lacks a confirmed e-mail address.
	ErrEmailRequired = errors.New("email required")
)

// ValidationError reports bad or missing job arguments.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

// NewValidationError formats a ValidationError.
func NewValidationError(format string, args ...any) *ValidationError {
	return &ValidationError{Message: fmt.Sprintf(format, args...)}
}

// UnsatisfiedPreconditionError is raised when a job's argument bag does not
// satisfy its precondition. Execute is never reached.
type UnsatisfiedPreconditionError struct {
	Job     string
	Message string
}

func (e *UnsatisfiedPreconditionError) Error() string {
	if e.Job == "" {
		return e.Message
	}
	return e.Job + ": " + e.Message
}

// InsufficientPrivilegesError is an authorization denial.
type InsufficientPrivilegesError struct {
	Privilege string
}

func (e *InsufficientPrivilegesError) Error() string {
	return "Insufficient privileges"
}

// AuthenticationError wraps one of ErrInvalidCredentials, ErrBanned,
// ErrPendingActivation or ErrEmailRequired with a user-facing message.
type AuthenticationError struct {
	Kind    error
	Message string
}

func (e *AuthenticationError) Error() string { return e.Message }

// Unwrap exposes the kind so callers can use errors.Is.
func (e *AuthenticationError) Unwrap() error { return e.Kind }

// NewAuthenticationError constructs an AuthenticationError.
func NewAuthenticationError(kind error, message string) *AuthenticationError {
	return &AuthenticationError{Kind: kind, Message: message}
}

// NotFoundError names the entity that could not be resolved.
type NotFoundError struct {
	Entity string
	Key    string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found", e.Entity, e.Key)
}

// Unwrap allows errors.Is(err, ErrNotFound).
func (e *NotFoundError) Unwrap() error { return ErrNotFound }

// UserSafeMessage returns a message suitable for display to end users.
func UserSafeMessage(err error) string {
	if err == nil {
		return ""
	}
	var (
		validation   *ValidationError
		precondition *UnsatisfiedPreconditionError
		privileges   *InsufficientPrivilegesError
		authn        *AuthenticationError
		notFound     *NotFoundError
	)
	switch {
	case errors.As(err, &validation):
		return validation.Message
	case errors.As(err, &precondition):
		return precondition.Message
	case errors.As(err, &privileges):
		return privileges.Error()
	case errors.As(err, &authn):
		return authn.Message
	case errors.As(err, &notFound):
		return notFound.Error()
	case errors.Is(err, ErrNotFound):
		return "Not found"
	default:
		return "Internal error"
	}
}
