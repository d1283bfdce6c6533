package apperror

import (
	"fmt"
	"net/http"
)

// Kind is a stable machine-readable error discriminator. Every handler
// surfaces one of these in the response envelope; clients switch on kind,
// never on message text.
type Kind string

const (
	KindValidation    Kind = "validation"
	KindUnauthorized  Kind = "unauthorized"    // no API key presented
	KindInvalidAPIKey Kind = "invalid_api_key" // key presented but unknown
	KindOwnership     Kind = "ownership"
	KindNotFound      Kind = "not_found"
	KindStateConflict Kind = "state_conflict"
	KindRateLimited   Kind = "rate_limited"
	KindInternal      Kind = "internal"
)

// AppError is a structured error that maps to HTTP responses.
type AppError struct {
	Kind       Kind           `json:"kind"`
	Message    string         `json:"message"`
	Details    map[string]any `json:"details,omitempty"`
	HTTPStatus int            `json:"-"`
	Err        error          `json:"-"` // wrapped internal error, not exposed to clients
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Kind, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// WithDetail attaches a detail entry and returns the error for chaining.
func (e *AppError) WithDetail(key string, value any) *AppError {
	if e.Details == nil {
		e.Details = map[string]any{}
	}
	e.Details[key] = value
	return e
}

// New creates a new AppError.
func New(kind Kind, message string, httpStatus int) *AppError {
	return &AppError{Kind: kind, Message: message, HTTPStatus: httpStatus}
}

// Validation returns a 400 validation error.
func Validation(message string) *AppError {
	return New(KindValidation, message, http.StatusBadRequest)
}

// ErrMissingAPIKey is returned when a protected route receives no key at all.
func ErrMissingAPIKey() *AppError {
	return New(KindUnauthorized, "Missing x-api-key header", http.StatusUnauthorized)
}

// ErrInvalidAPIKey is returned when a presented key matches no merchant.
func ErrInvalidAPIKey() *AppError {
	return New(KindInvalidAPIKey, "Invalid API key", http.StatusUnauthorized)
}

// ErrOwnership is returned on a cross-merchant access attempt.
func ErrOwnership() *AppError {
	return New(KindOwnership, "Payment link belongs to another merchant", http.StatusForbidden)
}

// ErrNotFound returns a 404 for an unknown entity.
func ErrNotFound(entity string) *AppError {
	return New(KindNotFound, fmt.Sprintf("%s not found", entity), http.StatusNotFound)
}

// ErrStateConflict rejects an illegal transition, naming the current status.
func ErrStateConflict(currentStatus string) *AppError {
	return New(KindStateConflict, fmt.Sprintf("Payment link is already %s", currentStatus), http.StatusBadRequest).
		WithDetail("current_status", currentStatus)
}

// ErrInsufficientAmount rejects a verification whose paid amount is short.
func ErrInsufficientAmount() *AppError {
	return New(KindValidation, "insufficient payment amount", http.StatusBadRequest)
}

// ErrCurrencyMismatch rejects a verification in the wrong currency.
func ErrCurrencyMismatch(want, got string) *AppError {
	return New(KindValidation, fmt.Sprintf("paid currency %s does not match requested currency %s", got, want), http.StatusBadRequest)
}

// ErrRateLimitExceeded is returned when a rate-limit window is exhausted.
func ErrRateLimitExceeded() *AppError {
	return New(KindRateLimited, "Rate limit exceeded", http.StatusTooManyRequests)
}

// InternalError wraps an unexpected failure as a 500.
func InternalError(err error) *AppError {
	return &AppError{
		Kind:       KindInternal,
		Message:    "Internal server error",
		HTTPStatus: http.StatusInternalServerError,
		Err:        err,
	}
}
