package errors

// ErrorCode represents a machine-readable error code.
type ErrorCode string

// Registry configuration errors. These represent operator or programmer
// mistakes and are always returned to the caller.
const (
	// ErrCodeRegistrationConflict indicates a provider or factory name is already in use.
	ErrCodeRegistrationConflict ErrorCode = "REGISTRATION_CONFLICT"
	// ErrCodeFactoryNotFound indicates no registered factory supports the requested type.
	ErrCodeFactoryNotFound ErrorCode = "FACTORY_NOT_FOUND"
	// ErrCodeConfiguration indicates invalid or missing provider configuration.
	ErrCodeConfiguration ErrorCode = "CONFIGURATION_ERROR"
	// ErrCodeDependency indicates a declared dependency does not exist.
	ErrCodeDependency ErrorCode = "DEPENDENCY_ERROR"
	// ErrCodeCircularDependency indicates the dependency graph contains a cycle.
	ErrCodeCircularDependency ErrorCode = "CIRCULAR_DEPENDENCY"
)

// Runtime errors.
const (
	// ErrCodeLifecycle indicates a provider's initialize/start/stop/destroy failed.
	ErrCodeLifecycle ErrorCode = "LIFECYCLE_ERROR"
	// ErrCodeTimeout indicates an operation did not complete in time.
	ErrCodeTimeout ErrorCode = "TIMEOUT"
	// ErrCodeUnsupported indicates the provider does not declare the capability required.
	ErrCodeUnsupported ErrorCode = "UNSUPPORTED"
)

// Resource and input errors.
const (
	// ErrCodeNotFound indicates the referenced provider or resource is unknown.
	ErrCodeNotFound ErrorCode = "NOT_FOUND"
	// ErrCodeInvalidInput indicates the input is invalid.
	ErrCodeInvalidInput ErrorCode = "INVALID_INPUT"
	// ErrCodeInternal indicates an unexpected internal error.
	ErrCodeInternal ErrorCode = "INTERNAL_ERROR"
	// ErrCodeRateLimited indicates the caller exceeded the admin API rate limit.
	ErrCodeRateLimited ErrorCode = "RATE_LIMITED"
)

var retryableCodes = map[ErrorCode]bool{
	ErrCodeTimeout:     true,
	ErrCodeLifecycle:   true,
	ErrCodeRateLimited: true,
	ErrCodeInternal:    false,
}

// IsRetryableCode returns true if the error code indicates a retryable error.
func IsRetryableCode(code ErrorCode) bool {
	return retryableCodes[code]
}
