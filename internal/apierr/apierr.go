// Package apierr is the terminal error stage of the request pipeline.
//
// Every failure a client can observe is an *Error: a Kind, an HTTP status
// and a message that is safe to show. The underlying cause stays on the
// server side and is only ever logged. Normalize turns arbitrary errors
// into that shape; unknown errors become a generic internal failure.
package apierr

import (
	"errors"
	"fmt"
	"net/http"
)

type Kind string

const (
	KindCorsMismatch    Kind = "cors_mismatch"
	KindUnauthenticated Kind = "unauthenticated"
	KindNotFound        Kind = "resource_not_found"
	KindAPI             Kind = "api_error"
	KindInternal        Kind = "internal_failure"
)

const (
	msgNotFound        = "resource not found"
	msgInternal        = "internal server error"
	msgUnauthenticated = "authentication required"
	msgCorsMismatch    = "origin not allowed"
)

// Error is a classified failure. Message is returned to clients, Detail and
// Err are for operators.
type Error struct {
	Kind    Kind
	Status  int
	Message string
	Detail  string
	Err     error
}

func (e *Error) Error() string {
	s := string(e.Kind) + ": " + e.Message
	if e.Detail != "" {
		s += " (" + e.Detail + ")"
	}
	if e.Err != nil {
		s += ": " + e.Err.Error()
	}
	return s
}

func (e *Error) Unwrap() error { return e.Err }

// New returns an API-level failure with a client-facing message.
func New(status int, msg string) *Error {
	return &Error{Kind: KindAPI, Status: status, Message: msg}
}

// Wrap is New with an operator-only cause.
func Wrap(err error, status int, msg string) *Error {
	return &Error{Kind: KindAPI, Status: status, Message: msg, Err: err}
}

// BadRequest is a convenience for malformed client input.
func BadRequest(msg string, err error) *Error {
	return Wrap(err, http.StatusBadRequest, msg)
}

// Internal classifies err as an unrecognized failure.
func Internal(err error) *Error {
	return &Error{Kind: KindInternal, Status: http.StatusInternalServerError, Message: msgInternal, Err: err}
}

// NotFound is the unmatched-route failure.
func NotFound() *Error {
	return &Error{Kind: KindNotFound, Status: http.StatusNotFound, Message: msgNotFound}
}

// Unauthenticated is the auth barrier rejection.
func Unauthenticated() *Error {
	return &Error{Kind: KindUnauthenticated, Status: http.StatusUnauthorized, Message: msgUnauthenticated}
}

// CorsMismatch is the origin rejection. origin and base are kept in Detail
// for the log line only.
func CorsMismatch(origin, base string) *Error {
	return &Error{
		Kind:    KindCorsMismatch,
		Status:  http.StatusForbidden,
		Message: msgCorsMismatch,
		Detail:  fmt.Sprintf("origin %q not allowed for webapp domain %q", origin, base),
	}
}

// Normalize classifies err. A recognized *Error anywhere in the chain keeps
// its kind and status; a status outside 4xx/5xx or a missing message is
// replaced with the generic form. Anything else is internal.
func Normalize(err error) *Error {
	if err == nil {
		return nil
	}
	var ae *Error
	if !errors.As(err, &ae) {
		return Internal(err)
	}
	out := *ae
	if out.Status < 400 || out.Status > 599 {
		out.Status = http.StatusInternalServerError
	}
	if out.Message == "" {
		out.Message = http.StatusText(out.Status)
	}
	if out.Kind == "" {
		out.Kind = KindAPI
	}
	// keep the outer context for the log when err wrapped the *Error
	if err != error(ae) {
		out.Err = err
	}
	return &out
}
