package errors

import (
	stderrors "errors"
	"fmt"
)

// ErrDuplicateOccurrence signals that a scheduled event already exists for a
// (command, scheduledFor) pair. It is a suppression signal, not a failure.
var ErrDuplicateOccurrence = stderrors.New("occurrence already scheduled")

// ApplicationError represents a domain-specific error
type ApplicationError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Status  int    `json:"-"`
}

func (e *ApplicationError) Error() string {
	return e.Message
}

// Error constructors
func NewValidationError(message string) *ApplicationError {
	return &ApplicationError{
		Code:    "VALIDATION_ERROR",
		Message: message,
		Status:  400,
	}
}

func NewNotFoundError(resource string) *ApplicationError {
	return &ApplicationError{
		Code:    "NOT_FOUND",
		Message: fmt.Sprintf("%s not found", resource),
		Status:  404,
	}
}

// NewExpiredWindowError is returned when an undo arrives after the undo window
// has closed. The message points the caller at the correction flow.
func NewExpiredWindowError(message string) *ApplicationError {
	return &ApplicationError{
		Code:    "EXPIRED_WINDOW",
		Message: message,
		Status:  409,
	}
}

// NewStaleVersionError is returned when a command mutation carries a version
// that no longer matches the stored one. The caller must re-read and retry.
func NewStaleVersionError(message string) *ApplicationError {
	return &ApplicationError{
		Code:    "STALE_VERSION",
		Message: message,
		Status:  409,
	}
}

func NewStoreError(message string) *ApplicationError {
	return &ApplicationError{
		Code:    "STORE_ERROR",
		Message: message,
		Status:  500,
	}
}

func NewConflictError(message string) *ApplicationError {
	return &ApplicationError{
		Code:    "CONFLICT",
		Message: message,
		Status:  409,
	}
}

func NewUnauthorizedError(message string) *ApplicationError {
	return &ApplicationError{
		Code:    "UNAUTHORIZED",
		Message: message,
		Status:  401,
	}
}

func NewForbiddenError(message string) *ApplicationError {
	return &ApplicationError{
		Code:    "FORBIDDEN",
		Message: message,
		Status:  403,
	}
}

func NewInternalError(message string) *ApplicationError {
	return &ApplicationError{
		Code:    "INTERNAL_ERROR",
		Message: message,
		Status:  500,
	}
}

func NewRequestTimeoutError(message string) *ApplicationError {
	return &ApplicationError{
		Code:    "REQUEST_TIMEOUT",
		Message: message,
		Status:  408,
	}
}
