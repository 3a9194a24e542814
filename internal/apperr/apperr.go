// Package apperr defines the wire-level error taxonomy (spec.md §7) as
// typed errors, so HTTP and gRPC transports can map them to the right
// status code without string-matching messages.
package apperr

import "fmt"

// Code is one of the wire `code` values spec.md §7 enumerates.
type Code string

const (
	CodeAuthRequired   Code = "auth_required"
	CodeForbidden      Code = "forbidden"
	CodeValidation     Code = "validation"
	CodeConflictSchema Code = "conflict_schema"
	CodeNotFound       Code = "not_found"
	CodeRateLimited    Code = "rate_limited"
	CodeInternal       Code = "internal"
)

// Error is the typed error every sync-core package returns for
// caller-visible failures. The message is safe to show to a client;
// it is never a raw stack trace (spec.md §7).
type Error struct {
	Code    Code
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

func Wrap(code Code, message string, cause error) *Error {
	return &Error{Code: code, Message: message, Cause: cause}
}

func AuthRequired(msg string) *Error   { return New(CodeAuthRequired, msg) }
func Forbidden(msg string) *Error      { return New(CodeForbidden, msg) }
func Validation(msg string) *Error     { return New(CodeValidation, msg) }
func ConflictSchema(msg string) *Error { return New(CodeConflictSchema, msg) }
func NotFound(msg string) *Error       { return New(CodeNotFound, msg) }
func RateLimited(msg string) *Error    { return New(CodeRateLimited, msg) }
func Internal(cause error) *Error      { return Wrap(CodeInternal, "internal error", cause) }

// As extracts an *Error from err, returning (nil, false) if err is not
// (or does not wrap) one.
func As(err error) (*Error, bool) {
	if err == nil {
		return nil, false
	}
	type causer interface{ Unwrap() error }
	for e := err; e != nil; {
		if ae, ok := e.(*Error); ok {
			return ae, true
		}
		c, ok := e.(causer)
		if !ok {
			return nil, false
		}
		e = c.Unwrap()
	}
	return nil, false
}

// HTTPStatus maps a Code to the spec.md §7 status code convention.
func (c Code) HTTPStatus() int {
	switch c {
	case CodeAuthRequired:
		return 401
	case CodeForbidden:
		return 403
	case CodeValidation:
		return 400
	case CodeConflictSchema:
		return 409
	case CodeNotFound:
		return 404
	case CodeRateLimited:
		return 429
	default:
		return 500
	}
}
