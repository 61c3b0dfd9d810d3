package errors

import (
	stderrors "errors"
	"fmt"
)

// AppError is the unified error type.
type AppError struct {
	// Code is a machine-readable error code.
	Code ErrorCode `json:"code"`
	// Message is a human-readable error message.
	Message string `json:"message"`
	// Retryable indicates if the operation can be retried.
	Retryable bool `json:"retryable"`
	// Details contains additional context for the error.
	Details map[string]any `json:"details,omitempty"`
	// Cause is the underlying error that caused this error.
	Cause error `json:"-"`
}

// Error returns the string representation of the error.
func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (cause: %v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause of the error.
func (e *AppError) Unwrap() error { return e.Cause }

// WithCause sets the underlying cause of the error and returns the receiver.
func (e *AppError) WithCause(cause error) *AppError {
	e.Cause = cause
	return e
}

// WithDetail sets a single detail key-value pair and returns the receiver.
func (e *AppError) WithDetail(key string, value any) *AppError {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}
	e.Details[key] = value
	return e
}

// New creates a new AppError with automatic retryable detection.
func New(code ErrorCode, message string) *AppError {
	return &AppError{
		Code:      code,
		Message:   message,
		Retryable: IsRetryableCode(code),
	}
}

// --- Constructors ---

// NotRegistered is the configuration error raised when a runtime handler
// fires for a service that was never registered.
func NotRegistered(service string) *AppError {
	return &AppError{
		Code: ErrCodeNotRegistered, Message: fmt.Sprintf("service %q is not registered", service),
		Details: map[string]any{"service": service},
	}
}

// AlreadyRegistered creates an error for a duplicate registration.
func AlreadyRegistered(service string) *AppError {
	return &AppError{
		Code: ErrCodeAlreadyRegistered, Message: fmt.Sprintf("service %q is already registered", service),
		Details: map[string]any{"service": service},
	}
}

// CircularDependency creates an error describing the resolution path that looped.
func CircularDependency(path []string) *AppError {
	return &AppError{
		Code: ErrCodeCircularDependency, Message: fmt.Sprintf("circular dependency: %v", path),
		Details: map[string]any{"path": path},
	}
}

// InvalidBinding creates an error for a malformed parameter binding.
func InvalidBinding(method string, index int, reason string) *AppError {
	return &AppError{
		Code: ErrCodeInvalidBinding, Message: fmt.Sprintf("invalid binding for %s[%d]: %s", method, index, reason),
		Details: map[string]any{"method": method, "index": index},
	}
}

// MethodNotFound creates an error for a listener whose method does not exist.
func MethodNotFound(service, method string) *AppError {
	return &AppError{
		Code: ErrCodeMethodNotFound, Message: fmt.Sprintf("service %q has no exported method %q", service, method),
		Details: map[string]any{"service": service, "method": method},
	}
}

// ConstructionFailed wraps a constructor error.
func ConstructionFailed(service string, cause error) *AppError {
	return &AppError{
		Code: ErrCodeConstructionFailed, Message: fmt.Sprintf("failed to construct %q", service),
		Retryable: true, Details: map[string]any{"service": service}, Cause: cause,
	}
}

// InitializationFailed wraps an init body error.
func InitializationFailed(service string, cause error) *AppError {
	return &AppError{
		Code: ErrCodeInitializationFailed, Message: fmt.Sprintf("failed to initialize %q", service),
		Retryable: true, Details: map[string]any{"service": service}, Cause: cause,
	}
}

// FilterFailed wraps a filter predicate error.
func FilterFailed(namespace string, cause error) *AppError {
	return &AppError{
		Code: ErrCodeFilterFailed, Message: fmt.Sprintf("filter failed for %s listener", namespace),
		Details: map[string]any{"namespace": namespace}, Cause: cause,
	}
}

// ArgumentMismatch creates an error for an argument that cannot be converted.
func ArgumentMismatch(method string, index int, cause error) *AppError {
	return &AppError{
		Code: ErrCodeArgumentMismatch, Message: fmt.Sprintf("cannot convert argument %d of %s", index, method),
		Details: map[string]any{"method": method, "index": index}, Cause: cause,
	}
}

// InvocationFailed creates an error for a method that panicked.
func InvocationFailed(method string, recovered any) *AppError {
	return &AppError{
		Code: ErrCodeInvocationFailed, Message: fmt.Sprintf("%s panicked: %v", method, recovered),
		Details: map[string]any{"method": method},
	}
}

// SubscribeFailed wraps an event source subscription error.
func SubscribeFailed(category string, cause error) *AppError {
	return &AppError{
		Code: ErrCodeSubscribeFailed, Message: fmt.Sprintf("failed to subscribe %s source", category),
		Retryable: true, Details: map[string]any{"category": category}, Cause: cause,
	}
}

// CapacityExceeded creates an error for a call rejected by a concurrency limit.
func CapacityExceeded(name string, limit int) *AppError {
	return &AppError{
		Code: ErrCodeCapacityExceeded, Message: fmt.Sprintf("%s is at capacity (%d)", name, limit),
		Retryable: true, Details: map[string]any{"name": name, "limit": limit},
	}
}

// Validation creates an error for invalid configuration.
func Validation(message string) *AppError {
	return New(ErrCodeValidation, message)
}

// --- Inspection ---

// Is reports whether any error in err's chain matches target.
func Is(err, target error) bool { return stderrors.Is(err, target) }

// As finds the first error in err's chain that matches target.
func As(err error, target any) bool { return stderrors.As(err, target) }

// IsAppError checks if an error is an AppError.
func IsAppError(err error) bool {
	var appErr *AppError
	return stderrors.As(err, &appErr)
}

// AsAppError converts an error to an AppError if possible.
func AsAppError(err error) (*AppError, bool) {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// IsRetryable reports whether err is an AppError marked retryable.
func IsRetryable(err error) bool {
	appErr, ok := AsAppError(err)
	return ok && appErr.Retryable
}

// IsCode reports whether err, or any error it wraps, is an AppError with code.
func IsCode(err error, code ErrorCode) bool {
	for err != nil {
		appErr, ok := AsAppError(err)
		if !ok {
			return false
		}
		if appErr.Code == code {
			return true
		}
		err = appErr.Cause
	}
	return false
}
