// Package apperror defines the structured, client-visible error taxonomy used
// by the offer, order and payment services.
package apperror

import (
	"errors"
	"fmt"
	"net/http"
)

// Code is a stable machine-readable error code.
type Code string

const (
	CodeNotFound           Code = "NOT_FOUND"
	CodeForbidden          Code = "FORBIDDEN"
	CodeConflict           Code = "CONFLICT"
	CodeInvalidArgument    Code = "INVALID_ARGUMENT"
	CodePreconditionFailed Code = "PRECONDITION_FAILED"
	CodeGatewayError       Code = "GATEWAY_ERROR"
	CodeValidationFailed   Code = "VALIDATION_FAILED"
	CodeUnauthenticated    Code = "UNAUTHENTICATED"
	CodeInternal           Code = "INTERNAL"
)

// Error carries a code, a message safe to show to clients and an optional cause.
type Error struct {
	Code    Code
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New returns an error with the given code and message.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Wrap attaches a code and message to an underlying error.
func Wrap(code Code, err error, message string) *Error {
	return &Error{Code: code, Message: message, Err: err}
}

func NotFound(message string) *Error           { return New(CodeNotFound, message) }
func Forbidden(message string) *Error          { return New(CodeForbidden, message) }
func Conflict(message string) *Error           { return New(CodeConflict, message) }
func InvalidArgument(message string) *Error    { return New(CodeInvalidArgument, message) }
func PreconditionFailed(message string) *Error { return New(CodePreconditionFailed, message) }
func ValidationFailed(message string) *Error   { return New(CodeValidationFailed, message) }

// Gateway wraps a payment provider failure.
func Gateway(err error, message string) *Error {
	return Wrap(CodeGatewayError, err, message)
}

// Internal wraps an unexpected storage or runtime failure.
func Internal(err error, message string) *Error {
	return Wrap(CodeInternal, err, message)
}

// CodeOf returns the code of the first *Error in err's chain, or CodeInternal.
func CodeOf(err error) Code {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return CodeInternal
}

// Is reports whether err carries the given code.
func Is(err error, code Code) bool {
	return err != nil && CodeOf(err) == code
}

// MessageOf returns the client-safe message for err.
func MessageOf(err error) string {
	var appErr *Error
	if errors.As(err, &appErr) && appErr.Code != CodeInternal {
		return appErr.Message
	}
	return "Internal server error"
}

// HTTPStatus maps a code to the HTTP status used by the REST layer.
func HTTPStatus(code Code) int {
	switch code {
	case CodeNotFound:
		return http.StatusNotFound
	case CodeUnauthenticated:
		return http.StatusUnauthorized
	case CodeForbidden:
		return http.StatusForbidden
	case CodeConflict:
		return http.StatusConflict
	case CodeInvalidArgument, CodeValidationFailed:
		return http.StatusBadRequest
	case CodePreconditionFailed:
		return http.StatusPreconditionFailed
	case CodeGatewayError:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
