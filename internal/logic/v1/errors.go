// Package v1 provides authentication business logic for API version 1.
//
// Error Handling:
// This package defines sentinel errors that represent the failure classes of
// the auth core. They are wrapped with context using fmt.Errorf("%w") when
// returned from business logic methods.
//
// Example Usage:
//
//	if user == nil {
//	    return nil, fmt.Errorf("authenticate %q: %w", identifier, ErrInvalidCredentials)
//	}
//
// Error Checking (in handlers):
//
//	var verr *logicv1.ValidationError
//	switch {
//	case errors.As(err, &verr):
//	    c.JSON(http.StatusBadRequest, ...verr.Message...)
//	case errors.Is(err, logicv1.ErrInvalidCredentials):
//	    c.JSON(http.StatusUnauthorized, ...)
//	default:
//	    c.JSON(http.StatusInternalServerError, ...)
//	}
package v1

import (
	"errors"
	"fmt"
)

// Sentinel errors for auth operations.
var (
	// ErrValidation indicates malformed or missing input.
	// HTTP Status: 400 Bad Request
	ErrValidation = errors.New("validation failed")

	// ErrConflict indicates a uniqueness violation.
	// HTTP Status: 400 Bad Request
	ErrConflict = errors.New("conflict")

	// ErrEmailTaken indicates the email is already registered.
	ErrEmailTaken = fmt.Errorf("email is already registered: %w", ErrConflict)

	// ErrUsernameTaken indicates the normalized username is already in use.
	ErrUsernameTaken = fmt.Errorf("username is already taken: %w", ErrConflict)

	// ErrInvalidCredentials indicates an unknown identifier or a wrong password.
	// The two cases are indistinguishable to callers.
	// HTTP Status: 401 Unauthorized
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrUnauthenticated indicates a missing, invalid, revoked or expired session.
	// HTTP Status: 401 Unauthorized
	ErrUnauthenticated = errors.New("unauthenticated")

	// ErrBotCheckFailed indicates the challenge token was rejected.
	// HTTP Status: 400 Bad Request
	ErrBotCheckFailed = errors.New("bot check failed")

	// ErrInvalidOrExpiredCode indicates no live reset record matched.
	// HTTP Status: 400 Bad Request
	ErrInvalidOrExpiredCode = errors.New("invalid or expired code")

	// ErrUserNotFound indicates the account vanished between steps.
	// HTTP Status: 404 Not Found
	ErrUserNotFound = errors.New("user not found")

	// ErrServiceUnavailable indicates the backing store cannot be reached.
	// HTTP Status: 503 Service Unavailable
	ErrServiceUnavailable = errors.New("service unavailable")
)

// ValidationError carries a message that is safe to show to the client.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

// Unwrap lets errors.Is(err, ErrValidation) match.
func (e *ValidationError) Unwrap() error { return ErrValidation }

func invalid(format string, args ...any) error {
	return &ValidationError{Message: fmt.Sprintf(format, args...)}
}
