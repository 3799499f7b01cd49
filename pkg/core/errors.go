package core

import (
	"errors"
	"fmt"
)

// Error is the typed error surfaced by the assistant engine.
type Error struct {
	Type    ErrorType `json:"type"`
	Message string    `json:"message"`
	Param   string    `json:"param,omitempty"`
	Code    string    `json:"code,omitempty"`
	Cause   error     `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%s: %s (code: %s)", e.Type, e.Message, e.Code)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// ErrorType categorizes errors.
type ErrorType string

const (
	ErrAuthentication ErrorType = "authentication_error"
	ErrConnection     ErrorType = "connection_error"
	ErrDecode         ErrorType = "decode_error"
	ErrToolExecution  ErrorType = "tool_execution_error"
	ErrValidation     ErrorType = "validation_error"
)

// NewAuthenticationError reports a missing or rejected credential.
func NewAuthenticationError(message string) *Error {
	return &Error{
		Type:    ErrAuthentication,
		Message: message,
	}
}

// NewConnectionError reports a transport open or runtime failure.
func NewConnectionError(message string, cause error) *Error {
	return &Error{
		Type:    ErrConnection,
		Message: message,
		Cause:   cause,
	}
}

// NewDecodeError reports a malformed audio payload.
func NewDecodeError(message string, cause error) *Error {
	return &Error{
		Type:    ErrDecode,
		Message: message,
		Cause:   cause,
	}
}

// NewToolExecutionError wraps a failed tool side effect.
func NewToolExecutionError(tool string, cause error) *Error {
	msg := "tool failed"
	if cause != nil {
		msg = cause.Error()
	}
	return &Error{
		Type:    ErrToolExecution,
		Message: msg,
		Code:    tool,
		Cause:   cause,
	}
}

// NewValidationError reports a malformed tool argument.
func NewValidationError(message, param string) *Error {
	return &Error{
		Type:    ErrValidation,
		Message: message,
		Param:   param,
	}
}

// Unwrap returns the underlying error for error wrapping.
func (e *Error) Unwrap() error {
	return e.Cause
}

// IsType reports whether err is a *Error of the given type anywhere in its chain.
func IsType(err error, typ ErrorType) bool {
	var coreErr *Error
	if !errors.As(err, &coreErr) {
		return false
	}
	return coreErr.Type == typ
}

// IsAuthentication reports whether err is an authentication error.
func IsAuthentication(err error) bool { return IsType(err, ErrAuthentication) }

// IsConnection reports whether err is a connection error.
func IsConnection(err error) bool { return IsType(err, ErrConnection) }

// IsDecode reports whether err is a decode error.
func IsDecode(err error) bool { return IsType(err, ErrDecode) }

// IsValidation reports whether err is a validation error.
func IsValidation(err error) bool { return IsType(err, ErrValidation) }
