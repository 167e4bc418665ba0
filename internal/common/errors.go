// Package common defines the shared error taxonomy used across all layers.
// Every failure surfaced to a caller carries a stable, user-visible code;
// callers match either on the code or with errors.Is against the sentinels.
package common

import (
	"errors"
	"fmt"
)

// Code identifies an error class. Codes are part of the public contract and
// must stay stable across releases.
type Code string

const (
	CodeAccessDenied             Code = "ACCESS_DENIED"
	CodeInvalidParams            Code = "INVALID_PARAMS"
	CodeUserDoesNotExist         Code = "USER_DOES_NOT_EXIST"
	CodeContainerDoesNotExist    Code = "CONTAINER_DOES_NOT_EXIST"
	CodeResourceDoesNotExist     Code = "RESOURCE_DOES_NOT_EXIST"
	CodeResourceTypeDoesNotExist Code = "RESOURCE_TYPE_DOES_NOT_EXIST"
	CodeParentDoesNotExist       Code = "PARENT_DOES_NOT_EXIST"
	CodeContextDoesNotExist      Code = "CONTEXT_DOES_NOT_EXIST"
	CodeFileDoesNotExist         Code = "FILE_DOES_NOT_EXIST"
	CodeInvalidKeyID             Code = "INVALID_KEY_ID"
	CodeInvalidKey               Code = "INVALID_KEY"
	CodeVersionConflict          Code = "VERSION_CONFLICT"
	CodeNotFound                 Code = "NOT_FOUND"
	CodeInternal                 Code = "INTERNAL"
)

// Error is a typed, user-visible error with a stable code.
type Error struct {
	Code    Code
	Message string
}

func (e *Error) Error() string {
	if e.Message == "" {
		return string(e.Code)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Is makes two coded errors equal when their codes match, so sentinels below
// work with errors.Is regardless of the message.
func (e *Error) Is(target error) bool {
	var t *Error
	if errors.As(target, &t) {
		return e.Code == t.Code
	}
	return false
}

// NewError builds a coded error with a formatted message.
func NewError(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Sentinels for errors.Is matching.
var (
	ErrAccessDenied             = &Error{Code: CodeAccessDenied}
	ErrInvalidParams            = &Error{Code: CodeInvalidParams}
	ErrUserDoesNotExist         = &Error{Code: CodeUserDoesNotExist}
	ErrContainerDoesNotExist    = &Error{Code: CodeContainerDoesNotExist}
	ErrResourceDoesNotExist     = &Error{Code: CodeResourceDoesNotExist}
	ErrResourceTypeDoesNotExist = &Error{Code: CodeResourceTypeDoesNotExist}
	ErrParentDoesNotExist       = &Error{Code: CodeParentDoesNotExist}
	ErrContextDoesNotExist      = &Error{Code: CodeContextDoesNotExist}
	ErrFileDoesNotExist         = &Error{Code: CodeFileDoesNotExist}
	ErrInvalidKeyID             = &Error{Code: CodeInvalidKeyID}
	ErrInvalidKey               = &Error{Code: CodeInvalidKey}
	ErrVersionConflict          = &Error{Code: CodeVersionConflict}
	ErrNotFound                 = &Error{Code: CodeNotFound}
	ErrInternal                 = &Error{Code: CodeInternal}
)

// CodeOf extracts the stable code from err, or CodeInternal when err carries
// no code.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeInternal
}
