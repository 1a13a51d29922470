package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorType tags an AppError with the domain it belongs to.
type ErrorType string

const (
	ErrorTypeValidation     ErrorType = "VALIDATION_ERROR"
	ErrorTypeAuthorization  ErrorType = "AUTHORIZATION_ERROR"
	ErrorTypeInfrastructure ErrorType = "INFRASTRUCTURE_ERROR"
	ErrorTypeNotFound       ErrorType = "NOT_FOUND_ERROR"
	ErrorTypeInternal       ErrorType = "INTERNAL_ERROR"
)

// Sentinel errors for the gateway's failure taxonomy.
var (
	ErrInvalidReference = errors.New("invalid reference")
	ErrUnauthorized     = errors.New("unauthorized")
	ErrUnknownCommand   = errors.New("unknown command")
)

// AppError is the uniform error carrier across the gateway. Commands convert
// it to the {error: message} reply shape at the transport boundary.
type AppError struct {
	Type     ErrorType              `json:"type"`
	Message  string                 `json:"message"`
	HTTPCode int                    `json:"-"`
	Details  map[string]interface{} `json:"details,omitempty"`
	Cause    error                  `json:"-"`
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *AppError) Unwrap() error { return e.Cause }

// NewAppError creates a new application error.
func NewAppError(errorType ErrorType, message string, httpCode int) *AppError {
	return &AppError{
		Type:     errorType,
		Message:  message,
		HTTPCode: httpCode,
	}
}

// WithCause attaches the underlying cause.
func (e *AppError) WithCause(cause error) *AppError {
	e.Cause = cause
	return e
}

// WithDetail attaches a detail field.
func (e *AppError) WithDetail(key string, value interface{}) *AppError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// NewInvalidReference reports a malformed or unresolvable wire reference.
// The command fails before touching rules or the adapter.
func NewInvalidReference(path string) *AppError {
	return NewAppError(ErrorTypeValidation, fmt.Sprintf("invalid reference %q", path), http.StatusBadRequest).
		WithCause(ErrInvalidReference).
		WithDetail("ref", path)
}

// NewUnauthorized reports a missing or invalid admin credential.
func NewUnauthorized(message string) *AppError {
	return NewAppError(ErrorTypeAuthorization, message, http.StatusForbidden).
		WithCause(ErrUnauthorized)
}

// NewAdapterError surfaces a storage backend failure verbatim. No retry
// happens at this layer.
func NewAdapterError(operation string, cause error) *AppError {
	return NewAppError(ErrorTypeInfrastructure, fmt.Sprintf("storage adapter %s failed", operation), http.StatusInternalServerError).
		WithCause(cause).
		WithDetail("operation", operation)
}

// NewValidationError creates a validation error.
func NewValidationError(message string) *AppError {
	return NewAppError(ErrorTypeValidation, message, http.StatusBadRequest)
}

// NewNotFoundError creates a not found error.
func NewNotFoundError(resource string) *AppError {
	return NewAppError(ErrorTypeNotFound, fmt.Sprintf("%s not found", resource), http.StatusNotFound)
}

// NewInternalError creates an internal error.
func NewInternalError(message string) *AppError {
	return NewAppError(ErrorTypeInternal, message, http.StatusInternalServerError)
}

// IsInvalidReference checks whether err stems from reference resolution.
func IsInvalidReference(err error) bool {
	return errors.Is(err, ErrInvalidReference)
}

// IsUnauthorized checks whether err stems from a failed credential check.
func IsUnauthorized(err error) bool {
	return errors.Is(err, ErrUnauthorized)
}

// IsAdapterError checks whether err surfaced from a storage backend.
func IsAdapterError(err error) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Type == ErrorTypeInfrastructure
	}
	return false
}
