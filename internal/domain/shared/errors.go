package shared

import "errors"

// ErrorCategory groups domain errors by how callers should react to them
type ErrorCategory string

const (
	CategoryValidation ErrorCategory = "VALIDATION" // Invalid input, nothing was mutated
	CategoryConflict   ErrorCategory = "CONFLICT"   // Uniqueness or version conflict in storage
	CategoryNotFound   ErrorCategory = "NOT_FOUND"
	CategoryState      ErrorCategory = "STATE" // Operation not allowed in the current lifecycle state
)

// DomainError represents a domain-level error
type DomainError struct {
	Code     string        `json:"code"`
	Message  string        `json:"message"`
	Category ErrorCategory `json:"-"`
}

// Error implements the error interface
func (e *DomainError) Error() string {
	return e.Message
}

// NewValidationError creates a domain error for rejected input
func NewValidationError(code, message string) *DomainError {
	return &DomainError{Code: code, Message: message, Category: CategoryValidation}
}

// NewConflictError creates a domain error for storage conflicts
func NewConflictError(code, message string) *DomainError {
	return &DomainError{Code: code, Message: message, Category: CategoryConflict}
}

// NewStateError creates a domain error for operations not allowed in the current state
func NewStateError(code, message string) *DomainError {
	return &DomainError{Code: code, Message: message, Category: CategoryState}
}

// IsValidationError reports whether err is (or wraps) a validation error
func IsValidationError(err error) bool {
	return hasCategory(err, CategoryValidation)
}

// IsConflictError reports whether err is (or wraps) a conflict error
func IsConflictError(err error) bool {
	return hasCategory(err, CategoryConflict)
}

// IsNotFound reports whether err is (or wraps) a not-found error
func IsNotFound(err error) bool {
	return hasCategory(err, CategoryNotFound)
}

func hasCategory(err error, category ErrorCategory) bool {
	var domainErr *DomainError
	if !errors.As(err, &domainErr) {
		return false
	}
	return domainErr.Category == category
}

// Common domain errors
var (
	ErrNotFound            = &DomainError{Code: "NOT_FOUND", Message: "Resource not found", Category: CategoryNotFound}
	ErrAlreadyExists       = &DomainError{Code: "ALREADY_EXISTS", Message: "Resource already exists", Category: CategoryConflict}
	ErrInvalidInput        = &DomainError{Code: "INVALID_INPUT", Message: "Invalid input provided", Category: CategoryValidation}
	ErrConcurrencyConflict = &DomainError{Code: "CONCURRENCY_CONFLICT", Message: "Resource was modified by another process", Category: CategoryConflict}
	ErrInvalidState        = &DomainError{Code: "INVALID_STATE", Message: "Operation not allowed in current state", Category: CategoryState}
)
