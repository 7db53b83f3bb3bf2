package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"strings"
)

// AppError is the unified error type returned by the registry.
type AppError struct {
	// Code is a machine-readable error code.
	Code ErrorCode `json:"code"`
	// Message is a human-readable error message.
	Message string `json:"message"`
	// Retryable indicates if the operation can be retried.
	Retryable bool `json:"retryable"`
	// HTTPStatus is the recommended HTTP status code for this error.
	HTTPStatus int `json:"-"`
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

// WithDetails merges the provided details into the error and returns the receiver.
func (e *AppError) WithDetails(details map[string]any) *AppError {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}
	for k, v := range details {
		e.Details[k] = v
	}
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
func New(code ErrorCode, message string, httpStatus int) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: httpStatus,
		Retryable:  IsRetryableCode(code),
	}
}

// --- Registry error constructors ---

// RegistrationConflict reports that a provider or factory name is already registered.
func RegistrationConflict(name string) *AppError {
	return &AppError{
		Code: ErrCodeRegistrationConflict, Message: fmt.Sprintf("%q is already registered", name),
		HTTPStatus: http.StatusConflict, Retryable: false,
		Details: map[string]any{"name": name},
	}
}

// FactoryNotFound reports that no factory supports the requested provider type.
func FactoryNotFound(providerType string) *AppError {
	return &AppError{
		Code: ErrCodeFactoryNotFound, Message: fmt.Sprintf("no factory supports provider type %q", providerType),
		HTTPStatus: http.StatusBadRequest, Retryable: false,
		Details: map[string]any{"type": providerType},
	}
}

// Configuration reports invalid or missing configuration for a provider.
func Configuration(provider, reason string) *AppError {
	details := map[string]any{}
	if provider != "" {
		details["provider"] = provider
	}
	return &AppError{
		Code: ErrCodeConfiguration, Message: fmt.Sprintf("invalid configuration: %s", reason),
		HTTPStatus: http.StatusBadRequest, Retryable: false, Details: details,
	}
}

// Dependency reports that dependent declares a dependency on a provider that
// does not exist.
func Dependency(dependent, missing string) *AppError {
	return &AppError{
		Code: ErrCodeDependency, Message: fmt.Sprintf("provider %q depends on unknown provider %q", dependent, missing),
		HTTPStatus: http.StatusUnprocessableEntity, Retryable: false,
		Details: map[string]any{"provider": dependent, "dependency": missing},
	}
}

// CircularDependency reports a dependency cycle. path lists the full cycle,
// starting and ending with the same provider.
func CircularDependency(path []string) *AppError {
	cp := make([]string, len(path))
	copy(cp, path)
	return &AppError{
		Code: ErrCodeCircularDependency, Message: fmt.Sprintf("circular dependency: %s", strings.Join(cp, " -> ")),
		HTTPStatus: http.StatusUnprocessableEntity, Retryable: false,
		Details: map[string]any{"path": cp},
	}
}

// Lifecycle wraps a failure of a provider lifecycle operation.
func Lifecycle(operation, provider string, cause error) *AppError {
	return &AppError{
		Code: ErrCodeLifecycle, Message: fmt.Sprintf("%s %q failed", operation, provider),
		HTTPStatus: http.StatusInternalServerError, Retryable: true,
		Details: map[string]any{"operation": operation, "provider": provider},
		Cause:   cause,
	}
}

// NotFound creates a new AppError for a resource that was not found.
func NotFound(resource, id string) *AppError {
	details := map[string]any{"resource": resource}
	if id != "" {
		details["id"] = id
	}
	msg := fmt.Sprintf("%s not found", resource)
	if id != "" {
		msg = fmt.Sprintf("%s %q not found", resource, id)
	}
	return &AppError{
		Code: ErrCodeNotFound, Message: msg,
		HTTPStatus: http.StatusNotFound, Retryable: false, Details: details,
	}
}

// Timeout creates a new AppError for an operation that did not finish in time.
func Timeout(operation string) *AppError {
	return &AppError{
		Code: ErrCodeTimeout, Message: fmt.Sprintf("%s timed out", operation),
		HTTPStatus: http.StatusGatewayTimeout, Retryable: true,
		Details: map[string]any{"operation": operation},
	}
}

// Unsupported reports that a provider does not declare the capability an
// operation requires.
func Unsupported(provider, capability string) *AppError {
	return &AppError{
		Code: ErrCodeUnsupported, Message: fmt.Sprintf("provider %q does not support %s", provider, capability),
		HTTPStatus: http.StatusNotImplemented, Retryable: false,
		Details: map[string]any{"provider": provider, "capability": capability},
	}
}

// InvalidInput creates a new AppError for invalid input.
func InvalidInput(field, reason string) *AppError {
	details := make(map[string]any)
	if field != "" {
		details["field"] = field
	}
	return &AppError{
		Code: ErrCodeInvalidInput, Message: fmt.Sprintf("Invalid input: %s", reason),
		HTTPStatus: http.StatusBadRequest, Retryable: false, Details: details,
	}
}

// Internal creates a new AppError for an internal error.
func Internal(cause error) *AppError {
	return &AppError{
		Code: ErrCodeInternal, Message: "An unexpected error occurred.",
		HTTPStatus: http.StatusInternalServerError, Retryable: false, Cause: cause,
	}
}

// HasCode reports whether err, or any error it wraps, is an AppError with the
// given code. Wrapped causes are searched too, so a lifecycle error caused by
// a timeout matches both codes.
func HasCode(err error, code ErrorCode) bool {
	for err != nil {
		var appErr *AppError
		if !stderrors.As(err, &appErr) {
			return false
		}
		if appErr.Code == code {
			return true
		}
		err = appErr.Cause
	}
	return false
}
