package cloudauth

import (
	"errors"
	"fmt"
)

// ErrorCategory categorizes errors for handling and reporting.
type ErrorCategory string

const (
	// ErrCategoryUnauthenticated indicates no caller credentials were presented.
	ErrCategoryUnauthenticated ErrorCategory = "unauthenticated"
	// ErrCategoryInvalidToken indicates a presented token failed verification.
	ErrCategoryInvalidToken ErrorCategory = "invalid_token"
	// ErrCategoryKeySource indicates verification keys could not be obtained.
	ErrCategoryKeySource ErrorCategory = "key_source"
	// ErrCategoryCredential indicates outbound credentials could not be acquired.
	ErrCategoryCredential ErrorCategory = "credential"
	// ErrCategoryAuth indicates an authentication or signing failure.
	ErrCategoryAuth ErrorCategory = "auth"
	// ErrCategoryNetwork indicates a network-related failure.
	ErrCategoryNetwork ErrorCategory = "network"
	// ErrCategoryValidation indicates invalid input or configuration.
	ErrCategoryValidation ErrorCategory = "validation"
	// ErrCategoryNotFound indicates a resource was not found.
	ErrCategoryNotFound ErrorCategory = "not_found"
	// ErrCategoryConflict indicates a resource conflict (already exists).
	ErrCategoryConflict ErrorCategory = "conflict"
	// ErrCategoryInternal indicates an internal error.
	ErrCategoryInternal ErrorCategory = "internal"
	// ErrCategoryTimeout indicates an operation timed out.
	ErrCategoryTimeout ErrorCategory = "timeout"
)

// CloudAuthError is a structured error with category and context.
type CloudAuthError struct {
	// Category classifies the error type.
	Category ErrorCategory

	// Message is a human-readable error message.
	Message string

	// Provider is the cloud provider where the error occurred.
	Provider CloudProvider

	// Operation is the operation that failed.
	Operation string

	// Cause is the underlying error.
	Cause error

	// Retryable indicates whether the operation can be retried.
	Retryable bool

	// Details contains additional error context.
	Details map[string]interface{}
}

// Error implements the error interface.
func (e *CloudAuthError) Error() string {
	msg := fmt.Sprintf("[%s] %s", e.Category, e.Message)
	if e.Provider != "" {
		msg = fmt.Sprintf("[%s:%s] %s", e.Provider, e.Category, e.Message)
	}
	if e.Cause != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Cause)
	}
	return msg
}

// Unwrap returns the underlying error.
func (e *CloudAuthError) Unwrap() error {
	return e.Cause
}

// Is checks if the target error matches this error's category.
func (e *CloudAuthError) Is(target error) bool {
	var caErr *CloudAuthError
	if errors.As(target, &caErr) {
		return e.Category == caErr.Category
	}
	return false
}

// NewError creates a new CloudAuthError.
func NewError(category ErrorCategory, message string) *CloudAuthError {
	return &CloudAuthError{
		Category: category,
		Message:  message,
		Details:  make(map[string]interface{}),
	}
}

// WithProvider sets the provider.
func (e *CloudAuthError) WithProvider(p CloudProvider) *CloudAuthError {
	e.Provider = p
	return e
}

// WithOperation sets the operation.
func (e *CloudAuthError) WithOperation(op string) *CloudAuthError {
	e.Operation = op
	return e
}

// WithCause sets the underlying error.
func (e *CloudAuthError) WithCause(err error) *CloudAuthError {
	e.Cause = err
	return e
}

// WithRetryable marks the error as retryable.
func (e *CloudAuthError) WithRetryable(retryable bool) *CloudAuthError {
	e.Retryable = retryable
	return e
}

// WithDetail adds a detail to the error.
func (e *CloudAuthError) WithDetail(key string, value interface{}) *CloudAuthError {
	e.Details[key] = value
	return e
}

// Convenience constructors for common error types

// ErrUnauthenticated creates an error for a request without credentials.
func ErrUnauthenticated(message string) *CloudAuthError {
	return NewError(ErrCategoryUnauthenticated, message)
}

// ErrInvalidToken creates an error for a token that failed verification.
func ErrInvalidToken(message string) *CloudAuthError {
	return NewError(ErrCategoryInvalidToken, message)
}

// ErrKeySource creates an error for unavailable verification keys.
func ErrKeySource(message string) *CloudAuthError {
	return NewError(ErrCategoryKeySource, message).WithRetryable(true)
}

// ErrCredential creates an error for a failed credential acquisition.
func ErrCredential(message string) *CloudAuthError {
	return NewError(ErrCategoryCredential, message)
}

// ErrAuth creates an authentication error.
func ErrAuth(message string) *CloudAuthError {
	return NewError(ErrCategoryAuth, message)
}

// ErrNetwork creates a network error.
func ErrNetwork(message string) *CloudAuthError {
	return NewError(ErrCategoryNetwork, message).WithRetryable(true)
}

// ErrValidation creates a validation error.
func ErrValidation(message string) *CloudAuthError {
	return NewError(ErrCategoryValidation, message)
}

// ErrNotFound creates a not found error.
func ErrNotFound(resourceType, resourceID string) *CloudAuthError {
	return NewError(ErrCategoryNotFound, fmt.Sprintf("%s not found: %s", resourceType, resourceID)).
		WithDetail("resource_type", resourceType).
		WithDetail("resource_id", resourceID)
}

// ErrConflict creates a conflict error.
func ErrConflict(resourceType, resourceID string) *CloudAuthError {
	return NewError(ErrCategoryConflict, fmt.Sprintf("%s already exists: %s", resourceType, resourceID)).
		WithDetail("resource_type", resourceType).
		WithDetail("resource_id", resourceID)
}

// ErrInternal creates an internal error.
func ErrInternal(message string) *CloudAuthError {
	return NewError(ErrCategoryInternal, message)
}

// ErrTimeout creates a timeout error.
func ErrTimeout(message string) *CloudAuthError {
	return NewError(ErrCategoryTimeout, message).WithRetryable(true)
}

// IsCategory checks if an error is of a specific category.
func IsCategory(err error, category ErrorCategory) bool {
	var caErr *CloudAuthError
	if errors.As(err, &caErr) {
		return caErr.Category == category
	}
	return false
}

// IsRetryable checks if an error is retryable.
func IsRetryable(err error) bool {
	var caErr *CloudAuthError
	if errors.As(err, &caErr) {
		return caErr.Retryable
	}
	return false
}

// GetErrorProvider extracts the provider from an error.
func GetErrorProvider(err error) CloudProvider {
	var caErr *CloudAuthError
	if errors.As(err, &caErr) {
		return caErr.Provider
	}
	return ""
}

// CategoryOf returns the category of err, or ErrCategoryInternal when err
// is not a CloudAuthError.
func CategoryOf(err error) ErrorCategory {
	var caErr *CloudAuthError
	if errors.As(err, &caErr) {
		return caErr.Category
	}
	return ErrCategoryInternal
}
