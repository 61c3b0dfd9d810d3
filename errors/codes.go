package errors

// ErrorCode represents a machine-readable error code.
type ErrorCode string

// Configuration errors
const (
	// ErrCodeNotRegistered indicates a service definition was used by a
	// dispatcher but never registered with the container.
	ErrCodeNotRegistered ErrorCode = "NOT_REGISTERED"
	// ErrCodeAlreadyRegistered indicates a definition was registered twice.
	ErrCodeAlreadyRegistered ErrorCode = "ALREADY_REGISTERED"
	// ErrCodeCircularDependency indicates the dependency graph contains a cycle.
	ErrCodeCircularDependency ErrorCode = "CIRCULAR_DEPENDENCY"
	// ErrCodeInvalidBinding indicates a parameter binding is malformed.
	ErrCodeInvalidBinding ErrorCode = "INVALID_BINDING"
	// ErrCodeMethodNotFound indicates the listened method does not exist on the instance.
	ErrCodeMethodNotFound ErrorCode = "METHOD_NOT_FOUND"
	// ErrCodeValidation indicates invalid configuration values.
	ErrCodeValidation ErrorCode = "VALIDATION_FAILED"
)

// Lifecycle errors
const (
	// ErrCodeConstructionFailed indicates a service constructor returned an error.
	ErrCodeConstructionFailed ErrorCode = "CONSTRUCTION_FAILED"
	// ErrCodeInitializationFailed indicates an init body (own or dependency) failed.
	ErrCodeInitializationFailed ErrorCode = "INITIALIZATION_FAILED"
)

// Dispatch errors
const (
	// ErrCodeFilterFailed indicates a listener filter predicate returned an error.
	ErrCodeFilterFailed ErrorCode = "FILTER_FAILED"
	// ErrCodeArgumentMismatch indicates an extracted value cannot be converted
	// to the method's parameter type.
	ErrCodeArgumentMismatch ErrorCode = "ARGUMENT_MISMATCH"
	// ErrCodeInvocationFailed indicates the listened method panicked.
	ErrCodeInvocationFailed ErrorCode = "INVOCATION_FAILED"
	// ErrCodeSubscribeFailed indicates an event source refused the subscription.
	ErrCodeSubscribeFailed ErrorCode = "SUBSCRIBE_FAILED"
	// ErrCodeCapacityExceeded indicates a listener's concurrency limit was reached.
	ErrCodeCapacityExceeded ErrorCode = "CAPACITY_EXCEEDED"
	// ErrCodeNotStarted indicates a source was used before Start.
	ErrCodeNotStarted ErrorCode = "NOT_STARTED"
)

// Initialization failures clear the in-flight slot, so a later Init call
// re-runs the chain.
var retryableCodes = map[ErrorCode]bool{
	ErrCodeInitializationFailed: true,
	ErrCodeConstructionFailed:   true,
	ErrCodeSubscribeFailed:      true,
	ErrCodeCapacityExceeded:     true,
	ErrCodeNotStarted:           true,
}

// IsRetryableCode returns true if the error code indicates a retryable error.
func IsRetryableCode(code ErrorCode) bool {
	return retryableCodes[code]
}
