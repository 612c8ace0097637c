package domain

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// AppError represents a domain-specific error with structured information and enhanced context
type AppError struct {
	Code       string    `json:"code"`
	Message    string    `json:"message"`
	StatusCode int       `json:"-"`
	Details    any       `json:"details,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
	RequestID  string    `json:"request_id,omitempty"`
	Operation  string    `json:"operation,omitempty"`
	Cause      error     `json:"-"` // Original error, not serialized
}

// Error implements the error interface
func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause for error wrapping
func (e *AppError) Unwrap() error {
	return e.Cause
}

// WithContext adds context information to the error
func (e *AppError) WithContext(ctx context.Context, operation string) *AppError {
	if requestID := ctx.Value(RequestIDKey); requestID != nil {
		if id, ok := requestID.(string); ok {
			e.RequestID = id
		}
	}
	e.Operation = operation
	return e
}

type contextKey string

// RequestIDKey is the context key under which the API stores the request ID
const RequestIDKey contextKey = "request_id"

// Error codes for the pack pipeline. The HTTP status is what the local API answers with.
const (
	ErrInvalidFormat        = "INVALID_FORMAT"        // 422
	ErrMissingField         = "MISSING_FIELD"         // 422
	ErrIncompatibleVersion  = "INCOMPATIBLE_VERSION"  // 422
	ErrIncompatiblePlatform = "INCOMPATIBLE_PLATFORM" // 422
	ErrLicenseInfoMissing   = "LICENSE_INFO_MISSING"  // 422
	ErrConflictsDetected    = "CONFLICTS_DETECTED"    // 409
	ErrMissingDependencies  = "MISSING_DEPENDENCIES"  // 424
	ErrCircularDependency   = "CIRCULAR_DEPENDENCY"   // 422
	ErrInvalidArchive       = "INVALID_ARCHIVE"       // 400
	ErrMissingManifest      = "MISSING_MANIFEST"      // 400
	ErrNotInstalled         = "NOT_INSTALLED"         // 404
	ErrLicenseRequired      = "LICENSE_REQUIRED"      // 402
	ErrTrialAlreadyUsed     = "TRIAL_ALREADY_USED"    // 409
	ErrNetworkUnavailable   = "NETWORK_UNAVAILABLE"   // 503

	ErrExtensionLoadFailed = "EXTENSION_LOAD_FAILED" // 500
	ErrComponentRejected   = "COMPONENT_REJECTED"    // 409
	ErrInvalidInput        = "INVALID_INPUT"         // 400
	ErrNotFound            = "NOT_FOUND"             // 404
	ErrInternal            = "INTERNAL_ERROR"        // 500
	ErrTimeout             = "TIMEOUT"               // 408
	ErrTooLarge            = "PAYLOAD_TOO_LARGE"     // 413
	ErrRateLimited         = "RATE_LIMITED"          // 429
)

// NewAppError creates a new AppError with the specified parameters
func NewAppError(code, message string, statusCode int, details any) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		StatusCode: statusCode,
		Details:    details,
		Timestamp:  time.Now(),
	}
}

// NewAppErrorWithCause creates a new AppError with underlying cause
func NewAppErrorWithCause(code, message string, statusCode int, cause error, details any) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		StatusCode: statusCode,
		Details:    details,
		Timestamp:  time.Now(),
		Cause:      cause,
	}
}

// HasCode reports whether err is, or wraps, an AppError with the given code
func HasCode(err error, code string) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code == code
	}
	return false
}

// CodeOf returns the code of the first AppError in err's chain, or ErrInternal
func CodeOf(err error) string {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return ErrInternal
}

// IsNotInstalled checks if the error is a not installed error
func IsNotInstalled(err error) bool {
	return HasCode(err, ErrNotInstalled)
}

// IsValidationError checks if the error came out of manifest validation
func IsValidationError(err error) bool {
	switch CodeOf(err) {
	case ErrInvalidFormat, ErrMissingField, ErrIncompatibleVersion, ErrIncompatiblePlatform, ErrLicenseInfoMissing:
		return true
	}
	return false
}
