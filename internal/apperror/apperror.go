// Package apperror defines the domain error taxonomy shared by every layer.
//
// Lower layers return these (usually wrapped with fmt.Errorf("...: %w")),
// and the HTTP layer maps them to status codes in one place.
package apperror

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound        = errors.New("not found")
	ErrValidation      = errors.New("validation error")
	ErrConflict        = errors.New("conflict")
	ErrForbidden       = errors.New("forbidden")
	ErrUnauthorized    = errors.New("unauthorized")
	ErrUpgradeRequired = errors.New("upgrade required")
	ErrRateLimited     = errors.New("rate limited")
)

type AppError struct {
	Err     error  // sentinel the error maps to
	Message string // Human-readable error message
	Field   string // Optional: field causing the error
}

func (e *AppError) Error() string {
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

func NotFound(resource, id string) *AppError {
	return &AppError{
		Err:     ErrNotFound,
		Message: fmt.Sprintf("%s not found with id %s", resource, id),
	}
}

// ValidationFailed reports bad input. Validation errors are raised before any
// network call is made, so nothing invalid ever reaches the analysis API.
func ValidationFailed(field, message string) *AppError {
	return &AppError{
		Err:     ErrValidation,
		Message: message,
		Field:   field,
	}
}

func Conflict(resource, id string) *AppError {
	return &AppError{
		Err:     ErrConflict,
		Message: fmt.Sprintf("%s conflict with id %s", resource, id),
	}
}

// Forbidden returns an AppError indicating the caller lacks permission.
// HTTP handlers map this to 403 Forbidden.
func Forbidden(message string) *AppError {
	return &AppError{
		Err:     ErrForbidden,
		Message: message,
	}
}

// Unauthorized means there is no usable session. Auth failures of any kind
// end up here: the caller is treated as signed out.
func Unauthorized(message string) *AppError {
	return &AppError{
		Err:     ErrUnauthorized,
		Message: message,
	}
}

// UpgradeRequired carries the backend's quota/tier refusal. Callers redirect
// to the pricing page instead of only showing the message.
func UpgradeRequired(message string) *AppError {
	if message == "" {
		message = "Upgrade required"
	}
	return &AppError{
		Err:     ErrUpgradeRequired,
		Message: message,
	}
}

func RateLimited(message string) *AppError {
	return &AppError{
		Err:     ErrRateLimited,
		Message: message,
	}
}
