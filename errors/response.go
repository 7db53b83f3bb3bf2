package errors

import (
	"context"
	stderrors "errors"
)

// ErrorResponse is the problem body the admin API answers with.
type ErrorResponse struct {
	Error ErrorBody `json:"error"`
}

// ErrorBody is the client-visible part of an AppError. Cause is never
// exposed.
type ErrorBody struct {
	Code      ErrorCode      `json:"code"`
	Message   string         `json:"message"`
	Status    int            `json:"status"`
	Provider  string         `json:"provider,omitempty"`
	Retryable bool           `json:"retryable"`
	Details   map[string]any `json:"details,omitempty"`
}

// ToResponse renders e for JSON. The "provider" detail, when present, is
// lifted to the top of the body.
func (e *AppError) ToResponse() ErrorResponse {
	body := ErrorBody{
		Code:      e.Code,
		Message:   e.Message,
		Status:    e.HTTPStatus,
		Retryable: e.Retryable,
		Details:   e.Details,
	}
	if name, ok := e.Details["provider"].(string); ok {
		body.Provider = name
	}
	return ErrorResponse{Error: body}
}

// AsAppError finds the first AppError in err's chain.
func AsAppError(err error) (*AppError, bool) {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// From maps any error onto an AppError. Deadline expiry becomes a timeout;
// other unknown errors are internal.
func From(err error) *AppError {
	if err == nil {
		return nil
	}
	if appErr, ok := AsAppError(err); ok {
		return appErr
	}
	if stderrors.Is(err, context.DeadlineExceeded) {
		return Timeout("request").WithCause(err)
	}
	return Internal(err)
}
