package http

import (
	"fmt"
	"net/http"
)

// StatusError is returned by the client for non-2xx responses so callers can
// branch on the upstream status code.
type StatusError struct {
	Code       int
	Body       string
	RetryAfter string // raw Retry-After header, if present
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d: %s", e.Code, e.Body)
}

// AppError is an application-level error that carries the HTTP status and a
// machine-readable code through the response envelope.
type AppError struct {
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Field   string                 `json:"field,omitempty"`
	Params  map[string]interface{} `json:"params,omitempty"`
	Status  int                    `json:"-"`
	Err     error                  `json:"-"`
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap returns the underlying error.
func (e *AppError) Unwrap() error {
	return e.Err
}

// BadRequestError creates a 400 error.
func BadRequestError(message string) *AppError {
	return &AppError{
		Code:    "ERR_BAD_REQUEST",
		Message: message,
		Status:  http.StatusBadRequest,
	}
}

// BadRequestErrorf creates a 400 error with formatting.
func BadRequestErrorf(format string, a ...interface{}) *AppError {
	return BadRequestError(fmt.Sprintf(format, a...))
}

// InternalError creates a 500 error.
func InternalError(message string) *AppError {
	return &AppError{
		Code:    "ERR_INTERNAL",
		Message: message,
		Status:  http.StatusInternalServerError,
	}
}
