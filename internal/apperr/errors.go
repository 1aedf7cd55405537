// Package apperr defines the typed errors the ledger reports to its callers.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

const (
	CodeValidation   = "VALIDATION_ERROR"
	CodeConflict     = "STATE_CONFLICT"
	CodeNotFound     = "NOT_FOUND"
	CodeInternal     = "INTERNAL_ERROR"
	CodeUnauthorized = "UNAUTHORIZED"
	CodeForbidden    = "FORBIDDEN"
)

// Sentinels for errors.Is; matching is by Code only.
var (
	ErrValidation = Error{Code: CodeValidation}
	ErrConflict   = Error{Code: CodeConflict}
	ErrNotFound   = Error{Code: CodeNotFound}
	ErrInternal   = Error{Code: CodeInternal}
)

// Error is an application error with an HTTP-compatible status code.
type Error struct {
	Code       string
	Message    string
	Details    []string
	StatusCode int
	Err        error
}

func (e Error) Error() string {
	msg := e.Message
	if len(e.Details) > 0 {
		msg = strings.Join(e.Details, "; ")
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, msg)
}

func (e Error) Is(target error) bool {
	if t, ok := target.(Error); ok {
		return t.Code == e.Code
	}
	return false
}

func (e Error) Unwrap() error {
	return e.Err
}

// Validation aggregates one or more validation messages into a single error.
func Validation(msgs ...string) Error {
	msg := "Validation failed"
	if len(msgs) == 1 {
		msg = msgs[0]
	}
	return Error{
		Code:       CodeValidation,
		Message:    msg,
		Details:    msgs,
		StatusCode: http.StatusBadRequest,
	}
}

func Conflict(msg string) Error {
	return Error{Code: CodeConflict, Message: msg, StatusCode: http.StatusConflict}
}

func NotFound(entity string, id any) Error {
	return Error{
		Code:       CodeNotFound,
		Message:    fmt.Sprintf("%s %v not found", entity, id),
		StatusCode: http.StatusNotFound,
	}
}

// Internal hides err from clients; only msg is ever rendered.
func Internal(msg string, err error) Error {
	return Error{Code: CodeInternal, Message: msg, StatusCode: http.StatusInternalServerError, Err: err}
}

func Unauthorized(msg string) Error {
	return Error{Code: CodeUnauthorized, Message: msg, StatusCode: http.StatusUnauthorized}
}

func Forbidden(msg string) Error {
	return Error{Code: CodeForbidden, Message: msg, StatusCode: http.StatusForbidden}
}

// Wrap passes an Error through unchanged and turns anything else into an internal error.
func Wrap(err error, msg string) error {
	if err == nil {
		return nil
	}
	if _, ok := As(err); ok {
		return err
	}
	return Internal(msg, err)
}

// As extracts an Error from err's chain.
func As(err error) (Error, bool) {
	var e Error
	if errors.As(err, &e) {
		return e, true
	}
	return Error{}, false
}
