package errors

import "fmt"

// ErrorCode represents a Kiki error code.
type ErrorCode string

const (
	ErrInvalidRequest ErrorCode = "INVALID_REQUEST" // 400
	ErrNotFound       ErrorCode = "NOT_FOUND"       // 404
	ErrInvalidConfig  ErrorCode = "INVALID_CONFIG"  // 422
	ErrStatusCorrupt  ErrorCode = "STATUS_CORRUPT"  // 500
	ErrInternal       ErrorCode = "INTERNAL"        // 500
	ErrStatusMissing  ErrorCode = "STATUS_MISSING"  // 503
)

// KikiError represents a structured error with code, status, and details.
type KikiError struct {
	Code    ErrorCode
	Status  int
	Message string
	Details map[string]any
	cause   error
}

// Error implements the error interface.
func (e *KikiError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause, if any.
func (e *KikiError) Unwrap() error {
	return e.cause
}

// NewInvalidRequest creates a 400 error for invalid request parameters.
func NewInvalidRequest(msg string) *KikiError {
	return &KikiError{
		Code:    ErrInvalidRequest,
		Status:  400,
		Message: msg,
	}
}

// NewNotFound creates a 404 error for an unknown resource.
func NewNotFound(identifier string) *KikiError {
	return &KikiError{
		Code:    ErrNotFound,
		Status:  404,
		Message: fmt.Sprintf("not found: %s", identifier),
		Details: map[string]any{"identifier": identifier},
	}
}

// NewInvalidConfig creates a 422 error for a configuration that fails validation.
func NewInvalidConfig(field, reason string) *KikiError {
	return &KikiError{
		Code:    ErrInvalidConfig,
		Status:  422,
		Message: fmt.Sprintf("invalid config %s: %s", field, reason),
		Details: map[string]any{"field": field},
	}
}

// NewStatusMissing creates a 503 error when no snapshot has been published yet.
func NewStatusMissing(err error) *KikiError {
	return &KikiError{
		Code:    ErrStatusMissing,
		Status:  503,
		Message: "no status has been published",
		cause:   err,
	}
}

// NewStatusCorrupt creates a 500 error when the persisted snapshot cannot be parsed.
func NewStatusCorrupt(err error) *KikiError {
	msg := "failed to read status"
	if err != nil {
		msg = fmt.Sprintf("failed to read status: %v", err)
	}
	return &KikiError{
		Code:    ErrStatusCorrupt,
		Status:  500,
		Message: msg,
		cause:   err,
	}
}

// NewInternal creates a 500 error for unexpected internal errors.
func NewInternal(err error) *KikiError {
	msg := "internal error"
	if err != nil {
		msg = err.Error()
	}
	return &KikiError{
		Code:    ErrInternal,
		Status:  500,
		Message: msg,
		cause:   err,
	}
}

// Is checks if an error is a KikiError with the given code.
func Is(err error, code ErrorCode) bool {
	if kErr, ok := err.(*KikiError); ok {
		return kErr.Code == code
	}
	return false
}
