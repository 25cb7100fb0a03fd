package errors

import (
	"fmt"
	"net/http"
)

type ErrorType string

const (
	ErrorTypeNotFound        ErrorType = "NOT_FOUND"
	ErrorTypeNotAFile        ErrorType = "NOT_A_FILE"
	ErrorTypeNotADirectory   ErrorType = "NOT_A_DIRECTORY"
	ErrorTypeValidation      ErrorType = "VALIDATION"
	ErrorTypeStagingConflict ErrorType = "STAGING_CONFLICT"
	ErrorTypeStaleVersion    ErrorType = "STALE_VERSION"
	ErrorTypeTransport       ErrorType = "TRANSPORT"
	ErrorTypeUnauthorized    ErrorType = "UNAUTHORIZED"
	ErrorTypeForbidden       ErrorType = "FORBIDDEN"
	ErrorTypeAlreadyExists   ErrorType = "ALREADY_EXISTS"
	ErrorTypeInternal        ErrorType = "INTERNAL"
)

// Sentinels for errors.Is. Matching is by Type only.
var (
	ErrNotFound        = &Error{Type: ErrorTypeNotFound}
	ErrNotAFile        = &Error{Type: ErrorTypeNotAFile}
	ErrNotADirectory   = &Error{Type: ErrorTypeNotADirectory}
	ErrValidation      = &Error{Type: ErrorTypeValidation}
	ErrStagingConflict = &Error{Type: ErrorTypeStagingConflict}
	ErrStaleVersion    = &Error{Type: ErrorTypeStaleVersion}
	ErrTransport       = &Error{Type: ErrorTypeTransport}
	ErrUnauthorized    = &Error{Type: ErrorTypeUnauthorized}
	ErrForbidden       = &Error{Type: ErrorTypeForbidden}
	ErrAlreadyExists   = &Error{Type: ErrorTypeAlreadyExists}
)

type Error struct {
	Type    ErrorType `json:"type"`
	Message string    `json:"message"`
	Code    int       `json:"code"`
	Details any       `json:"details,omitempty"`
	Err     error     `json:"-"`
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target is an *Error of the same type.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Type == e.Type
}

func NotFound(message string) *Error {
	return &Error{
		Type:    ErrorTypeNotFound,
		Message: message,
		Code:    http.StatusNotFound,
	}
}

func NotAFile(path string) *Error {
	return &Error{
		Type:    ErrorTypeNotAFile,
		Message: fmt.Sprintf("not a file: %s", path),
		Code:    http.StatusBadRequest,
		Details: path,
	}
}

func NotADirectory(path string) *Error {
	return &Error{
		Type:    ErrorTypeNotADirectory,
		Message: fmt.Sprintf("not a directory: %s", path),
		Code:    http.StatusBadRequest,
		Details: path,
	}
}

func ValidationError(message string, details any) *Error {
	return &Error{
		Type:    ErrorTypeValidation,
		Message: message,
		Code:    http.StatusBadRequest,
		Details: details,
	}
}

// StagingConflict reports a staging request that the one-operation-per-path
// rules cannot absorb.
func StagingConflict(path, message string) *Error {
	return &Error{
		Type:    ErrorTypeStagingConflict,
		Message: fmt.Sprintf("%s: %s", path, message),
		Code:    http.StatusConflict,
		Details: path,
	}
}

func StaleVersion(message string, details any) *Error {
	return &Error{
		Type:    ErrorTypeStaleVersion,
		Message: message,
		Code:    http.StatusConflict,
		Details: details,
	}
}

func Transport(message string, err error) *Error {
	return &Error{
		Type:    ErrorTypeTransport,
		Message: message,
		Code:    http.StatusBadGateway,
		Err:     err,
	}
}

func Unauthorized(message string) *Error {
	return &Error{
		Type:    ErrorTypeUnauthorized,
		Message: message,
		Code:    http.StatusUnauthorized,
	}
}

func Forbidden(message string) *Error {
	return &Error{
		Type:    ErrorTypeForbidden,
		Message: message,
		Code:    http.StatusForbidden,
	}
}

func AlreadyExists(message string) *Error {
	return &Error{
		Type:    ErrorTypeAlreadyExists,
		Message: message,
		Code:    http.StatusUnprocessableEntity,
	}
}

func Internal(message string, err error) *Error {
	return &Error{
		Type:    ErrorTypeInternal,
		Message: message,
		Code:    http.StatusInternalServerError,
		Err:     err,
	}
}
