// Package apperr defines the user-visible error taxonomy of the claims service.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Code classifies a user-visible failure
type Code string

const (
	CodeNotFound          Code = "NotFound"
	CodeValidation        Code = "ValidationError"
	CodeRuleViolation     Code = "RuleViolation"
	CodeInvalidTransition Code = "InvalidTransition"
	CodeForbidden         Code = "Forbidden"
	CodeConflict          Code = "Conflict"
	CodeConcurrency       Code = "ConcurrencyError"
	CodeUpstream          Code = "UpstreamError"
	CodeInternal          Code = "ServerError"
)

// HTTPStatus maps a code to its response status
func (c Code) HTTPStatus() int {
	switch c {
	case CodeNotFound:
		return http.StatusNotFound
	case CodeValidation, CodeRuleViolation, CodeInvalidTransition:
		return http.StatusBadRequest
	case CodeForbidden:
		return http.StatusForbidden
	case CodeConflict, CodeConcurrency:
		return http.StatusConflict
	case CodeUpstream:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// Error is a classified failure with optional per-field messages
type Error struct {
	Code    Code
	Message string
	Fields  map[string][]string
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

// New creates an error with the given code
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Wrap attaches a code to an underlying cause
func Wrap(err error, code Code, message string) *Error {
	return &Error{Code: code, Message: message, Err: err}
}

// Validation creates a ValidationError for a single field
func Validation(field, message string) *Error {
	return &Error{
		Code:    CodeValidation,
		Message: message,
		Fields:  map[string][]string{field: {message}},
	}
}

// Add appends a field message, turning the error into a multi-field validation error
func (e *Error) Add(field, message string) *Error {
	if e.Fields == nil {
		e.Fields = make(map[string][]string)
	}
	e.Fields[field] = append(e.Fields[field], message)
	return e
}

// NotFound creates a NotFound error for a resource id
func NotFound(resource, id string) *Error {
	return New(CodeNotFound, fmt.Sprintf("%s '%s' not found.", resource, id))
}

// As extracts an *Error from the chain
func As(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// CodeOf returns the code of the first *Error in the chain, or CodeInternal
func CodeOf(err error) Code {
	if e, ok := As(err); ok {
		return e.Code
	}
	return CodeInternal
}

// HasCode reports whether err carries the given code
func HasCode(err error, code Code) bool {
	e, ok := As(err)
	return ok && e.Code == code
}
