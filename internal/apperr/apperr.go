// Package apperr defines the error taxonomy shared by every layer of the
// service, so HTTP handlers and job bodies can convert errors to response
// codes / job outcomes without re-deriving the classification ad hoc.
package apperr

import (
	"fmt"
	"net/http"
)

// Code classifies an error for the purposes of HTTP status mapping and job
// outcome reporting.
type Code string

const (
	CodeValidation Code = "validation"
	CodeNotFound   Code = "not_found"
	CodeConflict   Code = "conflict"
	CodeUpstream   Code = "upstream"
	CodeTimeout    Code = "timeout"
	CodeCancelled  Code = "cancelled"
	CodeInternal   Code = "internal"
)

// Error is a typed, wrapped error carrying a Code for classification.
type Error struct {
	Code    Code
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// HTTPStatus maps the error's Code to an HTTP status code.
func (e *Error) HTTPStatus() int {
	switch e.Code {
	case CodeValidation:
		return http.StatusBadRequest
	case CodeNotFound:
		return http.StatusNotFound
	case CodeConflict:
		return http.StatusConflict
	case CodeUpstream:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func Validation(msg string) *Error { return &Error{Code: CodeValidation, Message: msg} }
func NotFound(msg string) *Error   { return &Error{Code: CodeNotFound, Message: msg} }
func Conflict(msg string) *Error   { return &Error{Code: CodeConflict, Message: msg} }

func Upstream(msg string, cause error) *Error {
	return &Error{Code: CodeUpstream, Message: msg, Err: cause}
}

func Timeout(msg string) *Error   { return &Error{Code: CodeTimeout, Message: msg} }
func Cancelled(msg string) *Error { return &Error{Code: CodeCancelled, Message: msg} }

func Internal(msg string, cause error) *Error {
	return &Error{Code: CodeInternal, Message: msg, Err: cause}
}

// As extracts an *Error from err, if any wraps one.
func As(err error) (*Error, bool) {
	ae, ok := err.(*Error)
	if ok {
		return ae, true
	}
	type unwrapper interface{ Unwrap() error }
	for u, ok := err.(unwrapper); ok; u, ok = err.(unwrapper) {
		err = u.Unwrap()
		if ae, ok := err.(*Error); ok {
			return ae, true
		}
	}
	return nil, false
}
