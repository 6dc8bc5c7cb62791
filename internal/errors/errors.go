package errors

import (
	stderrors "errors"
	"fmt"
)

// ErrorCode represents a poetrybox error code.
type ErrorCode string

const (
	ErrInvalidRequest ErrorCode = "INVALID_REQUEST" // 400
	ErrNotFound       ErrorCode = "NOT_FOUND"       // 404
	ErrFileNotFound   ErrorCode = "FILE_NOT_FOUND"  // 404
	ErrAlreadyExists  ErrorCode = "ALREADY_EXISTS"  // 409
	ErrConflict       ErrorCode = "CONFLICT"        // 409
	ErrFileTooLarge   ErrorCode = "FILE_TOO_LARGE"  // 413
	ErrCancelled      ErrorCode = "CANCELLED"       // 499
	ErrInternal       ErrorCode = "INTERNAL"        // 500

	// Snap rejections. These are outcomes rather than failures; Status is 422.
	ErrNoCandidates        ErrorCode = "NO_CANDIDATES"
	ErrOutOfRange          ErrorCode = "OUT_OF_RANGE"
	ErrOrientationMismatch ErrorCode = "ORIENTATION_MISMATCH"
	ErrTargetOccupied      ErrorCode = "TARGET_OCCUPIED"
	ErrSnapInFlight        ErrorCode = "SNAP_IN_FLIGHT"
)

// PoetryError represents a structured error with code, status, and details.
type PoetryError struct {
	Code    ErrorCode
	Status  int
	Message string
	Details map[string]any
}

// Error implements the error interface.
func (e *PoetryError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// NewInvalidRequest creates a 400 error for invalid request parameters.
func NewInvalidRequest(msg string) *PoetryError {
	return &PoetryError{
		Code:    ErrInvalidRequest,
		Status:  400,
		Message: msg,
	}
}

// NewNotFound creates a 404 error for a missing entity, reel, or word list.
func NewNotFound(identifier string) *PoetryError {
	return &PoetryError{
		Code:    ErrNotFound,
		Status:  404,
		Message: fmt.Sprintf("not found: %s", identifier),
		Details: map[string]any{"identifier": identifier},
	}
}

// NewFileNotFound creates a 404 error for a missing import or word list file.
func NewFileNotFound(path string) *PoetryError {
	return &PoetryError{
		Code:    ErrFileNotFound,
		Status:  404,
		Message: fmt.Sprintf("file not found: %s", path),
		Details: map[string]any{"path": path},
	}
}

// NewAlreadyExists creates a 409 error for ID collisions.
func NewAlreadyExists(identifier string) *PoetryError {
	return &PoetryError{
		Code:    ErrAlreadyExists,
		Status:  409,
		Message: fmt.Sprintf("already exists: %s", identifier),
		Details: map[string]any{"identifier": identifier},
	}
}

// NewConflict creates a 409 error for general conflicts.
func NewConflict(msg string) *PoetryError {
	return &PoetryError{
		Code:    ErrConflict,
		Status:  409,
		Message: msg,
	}
}

// NewFileTooLarge creates a 413 error when an import or word list file exceeds the size limit.
func NewFileTooLarge(max, actual int64) *PoetryError {
	return &PoetryError{
		Code:    ErrFileTooLarge,
		Status:  413,
		Message: fmt.Sprintf("file exceeds maximum size: %d bytes (max %d)", actual, max),
		Details: map[string]any{"max_bytes": max, "actual_bytes": actual},
	}
}

// NewCancelled creates a 499 error when an operation is cancelled by its context.
func NewCancelled(operation string) *PoetryError {
	return &PoetryError{
		Code:    ErrCancelled,
		Status:  499,
		Message: fmt.Sprintf("%s cancelled", operation),
		Details: map[string]any{"operation": operation},
	}
}

// NewInternal creates a 500 error for unexpected internal errors.
// The message stays generic; the original error is kept in Details for logging.
func NewInternal(err error) *PoetryError {
	details := map[string]any{}
	if err != nil {
		details["internal_error"] = err.Error()
	}
	return &PoetryError{
		Code:    ErrInternal,
		Status:  500,
		Message: "an internal error occurred",
		Details: details,
	}
}

// NewSnapRejected creates a 422 error describing why a snap did not happen.
func NewSnapRejected(code ErrorCode, msg string, details map[string]any) *PoetryError {
	return &PoetryError{
		Code:    code,
		Status:  422,
		Message: msg,
		Details: details,
	}
}

// Is checks if an error is a PoetryError with the given code.
func Is(err error, code ErrorCode) bool {
	var pErr *PoetryError
	if stderrors.As(err, &pErr) {
		return pErr.Code == code
	}
	return false
}
