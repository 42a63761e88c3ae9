package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
)

// APIError represents a custom error type for API responses
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Status  int    `json:"status"`
	Details string `json:"details,omitempty"`
}

// Error returns the error message
func (e *APIError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("%s: %s (%s)", e.Code, e.Message, e.Details)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Is reports whether target carries the same code, so a wrapped or
// detailed copy still matches its sentinel.
func (e *APIError) Is(target error) bool {
	t, ok := target.(*APIError)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

func NewAPIError(code, message string, status int, details ...string) *APIError {
	err := &APIError{
		Code:    code,
		Message: message,
		Status:  status,
	}
	if len(details) > 0 {
		err.Details = details[0]
	}
	return err
}

var (
	ErrInvalidInput = NewAPIError("INVALID_INPUT", "Invalid request data", http.StatusBadRequest)
	ErrUnauthorized = NewAPIError("UNAUTHORIZED", "Authentication required", http.StatusUnauthorized)
	ErrForbidden    = NewAPIError("FORBIDDEN", "Not allowed to modify this resource", http.StatusForbidden)
	ErrNotFound     = NewAPIError("NOT_FOUND", "Resource not found", http.StatusNotFound)
	ErrInternal     = NewAPIError("INTERNAL_SERVER_ERROR", "Internal server error", http.StatusInternalServerError)
	ErrConflict     = NewAPIError("CONFLICT", "Resource conflict", http.StatusConflict)

	ErrRepositoryUnavailable = NewAPIError("REPOSITORY_UNAVAILABLE", "Card repository unavailable, retry later", http.StatusServiceUnavailable)
	ErrPersistence           = NewAPIError("PERSISTENCE_ERROR", "Failed to persist saved contacts", http.StatusInternalServerError)
	ErrMalformedPayload      = NewAPIError("MALFORMED_PAYLOAD", "Payload does not contain a card identifier", http.StatusBadRequest)
	ErrSelfExchange          = NewAPIError("SELF_EXCHANGE", "Cannot save your own card", http.StatusUnprocessableEntity)
)

// Wrap converts err into an APIError. An APIError passes through unchanged.
func Wrap(err error, code, message string, status int) *APIError {
	if apiErr, ok := err.(*APIError); ok {
		return apiErr
	}
	return NewAPIError(code, message, status, err.Error())
}

// WithDetails returns a copy of sentinel carrying err as details.
func WithDetails(sentinel *APIError, err error) *APIError {
	if err == nil {
		return sentinel
	}
	return NewAPIError(sentinel.Code, sentinel.Message, sentinel.Status, err.Error())
}

// Withf returns a copy of sentinel with a formatted detail string.
func Withf(sentinel *APIError, format string, args ...any) *APIError {
	return NewAPIError(sentinel.Code, sentinel.Message, sentinel.Status, fmt.Sprintf(format, args...))
}

// Is reports whether any error in err's chain matches target.
func Is(err, target error) bool {
	return stderrors.Is(err, target)
}

// As finds the first error in err's chain that matches target.
func As(err error, target any) bool {
	return stderrors.As(err, target)
}
