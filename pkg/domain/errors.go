package domain

import (
	"errors"
	"fmt"
)

// Sentinel errors classifying a DomainError.
var (
	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("conflict")
	ErrInvalidState = errors.New("invalid state transition")
	ErrValidation   = errors.New("validation failed")
	ErrUpstream     = errors.New("upstream unavailable")
	ErrRateLimited  = errors.New("rate limited")
	ErrForbidden    = errors.New("forbidden")
)

// DomainError is an error carrying a machine-readable code and a user-facing message.
type DomainError struct {
	Code    string
	Message string
	Err     error
}

// Error implements the error interface.
func (e *DomainError) Error() string {
	return e.Message
}

// Unwrap returns the sentinel this error is classified under.
func (e *DomainError) Unwrap() error {
	return e.Err
}

// NewNotFoundError reports a missing entity.
func NewNotFoundError(entity, id string) *DomainError {
	return &DomainError{
		Code:    "NOT_FOUND",
		Message: fmt.Sprintf("%s with id '%s' not found", entity, id),
		Err:     ErrNotFound,
	}
}

// NewConflictError reports a concurrent modification or a contended resource.
func NewConflictError(message string) *DomainError {
	return &DomainError{Code: "CONFLICT", Message: message, Err: ErrConflict}
}

// NewInvalidStateError reports a forbidden state transition.
func NewInvalidStateError(from, to string) *DomainError {
	return &DomainError{
		Code:    "INVALID_STATE",
		Message: fmt.Sprintf("cannot transition from '%s' to '%s'", from, to),
		Err:     ErrInvalidState,
	}
}

// NewValidationError reports bad input or a failed business rule.
func NewValidationError(message string) *DomainError {
	return &DomainError{Code: "VALIDATION_ERROR", Message: message, Err: ErrValidation}
}

// NewUpstreamError reports an unreachable external dependency.
func NewUpstreamError(message string, cause error) *DomainError {
	return &DomainError{
		Code:    "UPSTREAM_ERROR",
		Message: message,
		Err:     fmt.Errorf("%w: %v", ErrUpstream, cause),
	}
}

// NewRateLimitedError reports a client exceeding its request budget.
func NewRateLimitedError(message string) *DomainError {
	return &DomainError{Code: "RATE_LIMITED", Message: message, Err: ErrRateLimited}
}

// NewForbiddenError reports a caller lacking a capability.
func NewForbiddenError(message string) *DomainError {
	return &DomainError{Code: "FORBIDDEN", Message: message, Err: ErrForbidden}
}

// IsNotFound reports whether err is classified as not found.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
