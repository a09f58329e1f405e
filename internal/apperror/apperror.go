package apperror

import (
	stdErrors "errors"
	"fmt"
	"net/http"
)

// Code classifies an error for callers and the HTTP layer
type Code string

const (
	CodeValidation        Code = "VALIDATION_ERROR"
	CodeInvalidMovement   Code = "INVALID_MOVEMENT"
	CodeNotFound          Code = "NOT_FOUND"
	CodeConflict          Code = "CONFLICT"
	CodeStateConflict     Code = "STATE_CONFLICT"
	CodeInsufficientStock Code = "INSUFFICIENT_STOCK"
	CodeIntegrity         Code = "INTEGRITY_ERROR"
	CodeInternal          Code = "INTERNAL_ERROR"
	CodeDependency        Code = "DEPENDENCY_ERROR"
)

// Metadata describes how a code is presented to API clients
type Metadata struct {
	HTTPStatus     int
	PublicMessage  string
	DetailsAllowed bool
}

var metadataByCode = map[Code]Metadata{
	CodeValidation: {
		HTTPStatus:     http.StatusBadRequest,
		PublicMessage:  "validation failed",
		DetailsAllowed: true,
	},
	CodeInvalidMovement: {
		HTTPStatus:     http.StatusBadRequest,
		PublicMessage:  "invalid movement",
		DetailsAllowed: true,
	},
	CodeNotFound: {
		HTTPStatus:     http.StatusNotFound,
		PublicMessage:  "resource not found",
		DetailsAllowed: true,
	},
	CodeConflict: {
		HTTPStatus:     http.StatusConflict,
		PublicMessage:  "conflict detected",
		DetailsAllowed: true,
	},
	CodeStateConflict: {
		HTTPStatus:     http.StatusUnprocessableEntity,
		PublicMessage:  "state transition disallowed",
		DetailsAllowed: true,
	},
	CodeInsufficientStock: {
		HTTPStatus:     http.StatusConflict,
		PublicMessage:  "insufficient stock",
		DetailsAllowed: true,
	},
	CodeIntegrity: {
		HTTPStatus:     http.StatusInternalServerError,
		PublicMessage:  "inventory integrity problem",
		DetailsAllowed: true,
	},
	CodeInternal: {
		HTTPStatus:     http.StatusInternalServerError,
		PublicMessage:  "internal server error",
		DetailsAllowed: false,
	},
	CodeDependency: {
		HTTPStatus:     http.StatusServiceUnavailable,
		PublicMessage:  "dependency unavailable",
		DetailsAllowed: false,
	},
}

// MetadataFor returns the presentation metadata for code, defaulting to internal
func MetadataFor(code Code) Metadata {
	if meta, ok := metadataByCode[code]; ok {
		return meta
	}
	return metadataByCode[CodeInternal]
}

// Error is the typed error returned by the core operations
type Error struct {
	code    Code
	message string
	details map[string]any
	cause   error
}

func New(code Code, message string) *Error {
	return &Error{code: code, message: message}
}

func Newf(code Code, format string, args ...any) *Error {
	return &Error{code: code, message: fmt.Sprintf(format, args...)}
}

func Wrap(code Code, err error, message string) *Error {
	if err == nil {
		return New(code, message)
	}
	return &Error{code: code, message: message, cause: err}
}

func (e *Error) Code() Code {
	if e == nil {
		return CodeInternal
	}
	return e.code
}

func (e *Error) Message() string {
	if e == nil {
		return ""
	}
	return e.message
}

func (e *Error) Details() map[string]any {
	if e == nil {
		return nil
	}
	return e.details
}

// With attaches a detail such as the offending product or location key
func (e *Error) With(key string, value any) *Error {
	if e == nil {
		return nil
	}
	if e.details == nil {
		e.details = make(map[string]any)
	}
	e.details[key] = value
	return e
}

// WithDetails attaches several details at once
func (e *Error) WithDetails(details map[string]any) *Error {
	for k, v := range details {
		e = e.With(k, v)
	}
	return e
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.code, e.message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.code, e.message)
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.cause
}

// As extracts the first *Error in err's chain
func As(err error) *Error {
	if err == nil {
		return nil
	}
	var typed *Error
	if stdErrors.As(err, &typed) {
		return typed
	}
	return nil
}

// Is reports whether err carries the given code
func Is(err error, code Code) bool {
	typed := As(err)
	return typed != nil && typed.code == code
}

// CodeOf returns the code carried by err, CodeInternal for untyped errors
func CodeOf(err error) Code {
	if typed := As(err); typed != nil {
		return typed.code
	}
	return CodeInternal
}

func Validation(message string) *Error {
	return New(CodeValidation, message)
}

func InvalidMovement(message string) *Error {
	return New(CodeInvalidMovement, message)
}

func NotFound(kind, key string) *Error {
	return Newf(CodeNotFound, "%s not found: %s", kind, key).With(kind, key)
}

func Conflict(message string) *Error {
	return New(CodeConflict, message)
}
