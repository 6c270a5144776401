// Package errors defines the structured API error responses and the mapping
// from domain errors to HTTP status codes. Storage failures are always
// rendered as a generic internal error: internal detail never crosses the
// API boundary.
package errors

import (
	"fmt"
	"net/http"

	"github.com/go-chi/render"
)

// APIError represents a structured API error response.
type APIError struct {
	StatusCode int    `json:"status_code"`
	ErrorCode  string `json:"error_code"`
	Message    string `json:"message"`
	Details    any    `json:"details,omitempty"`
}

// Error implements the error interface.
func (e *APIError) Error() string {
	return e.Message
}

// Render implements the render.Renderer interface for chi/render.
func (e *APIError) Render(w http.ResponseWriter, r *http.Request) error {
	render.Status(r, e.StatusCode)
	return nil
}

// ValidationError carries field-level validation detail.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// New creates a new APIError.
func New(statusCode int, errorCode, message string) *APIError {
	return &APIError{
		StatusCode: statusCode,
		ErrorCode:  errorCode,
		Message:    message,
	}
}

// NewWithDetails creates a new APIError with additional details.
func NewWithDetails(statusCode int, errorCode, message string, details any) *APIError {
	return &APIError{
		StatusCode: statusCode,
		ErrorCode:  errorCode,
		Message:    message,
		Details:    details,
	}
}

// Error codes for license operations.
const (
	CodeInvalidRequest    = "INVALID_REQUEST"
	CodeValidationFailed  = "VALIDATION_FAILED"
	CodeUnauthorized      = "UNAUTHORIZED"
	CodeForbidden         = "FORBIDDEN"
	CodeLicenseNotFound   = "LICENSE_NOT_FOUND"
	CodeSnapshotNotFound  = "SNAPSHOT_NOT_FOUND"
	CodeDuplicateKey      = "DUPLICATE_LICENSE_KEY"
	CodeAlreadyAssigned   = "LICENSE_ALREADY_ASSIGNED"
	CodeLicenseInactive   = "LICENSE_DEACTIVATED"
	CodeLicenseExpired    = "LICENSE_EXPIRED"
	CodeRateLimited       = "RATE_LIMIT_EXCEEDED"
	CodeInternalServer    = "INTERNAL_SERVER_ERROR"
)

// Predefined error responses for common scenarios.
var (
	ErrInvalidRequest = New(http.StatusBadRequest, CodeInvalidRequest, "Invalid request format")

	ErrUnauthorized = New(http.StatusUnauthorized, CodeUnauthorized, "Authentication required")

	ErrForbidden = New(http.StatusForbidden, CodeForbidden, "You do not have permission to perform this operation")

	ErrLicenseNotFound = New(http.StatusNotFound, CodeLicenseNotFound, "Invalid license key")

	ErrSnapshotNotFound = New(http.StatusNotFound, CodeSnapshotNotFound, "The requested snapshot does not exist")

	ErrDuplicateKey = New(http.StatusConflict, CodeDuplicateKey, "A license with this key already exists")

	ErrAlreadyAssigned = New(http.StatusConflict, CodeAlreadyAssigned, "This license is already assigned to another user")

	ErrLicenseInactive = New(http.StatusForbidden, CodeLicenseInactive, "This license has been deactivated and cannot be redeemed")

	ErrLicenseExpired = New(http.StatusForbidden, CodeLicenseExpired, "This license has expired and cannot be redeemed")

	ErrRateLimited = New(http.StatusTooManyRequests, CodeRateLimited, "Too many requests, please try again later")

	// ErrInternalServer is the only shape a storage failure takes at the
	// boundary; details stay in the server-side log.
	ErrInternalServer = New(http.StatusInternalServerError, CodeInternalServer, "Internal server error")
)

// InvalidRequestWithError creates an invalid request error with details.
func InvalidRequestWithError(err error) *APIError {
	return NewWithDetails(http.StatusBadRequest, CodeInvalidRequest, "Invalid request format", err.Error())
}

// ErrValidation creates a validation error with field detail.
func ErrValidation(field, message string) *APIError {
	return NewWithDetails(http.StatusBadRequest, CodeValidationFailed, "Request validation failed", ValidationError{
		Field:   field,
		Message: message,
	})
}

// NotFoundError creates a not found error for a named resource.
func NotFoundError(resource string) *APIError {
	return New(http.StatusNotFound, CodeLicenseNotFound, fmt.Sprintf("%s not found", resource))
}
