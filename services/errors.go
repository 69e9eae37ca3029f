package services

import (
	"errors"
	"fmt"
)

// Error kinds. Match them with errors.Is.
var (
	ErrConflict     = errors.New("conflict")
	ErrUnauthorized = errors.New("unauthorized")
	ErrBadRequest   = errors.New("bad request")
	ErrNotFound     = errors.New("not found")
	ErrStorage      = errors.New("storage failure")
)

// Error is a kind plus a message that is safe to show to the caller. The
// underlying cause, if any, is kept for logs.
type Error struct {
	Kind   error
	Detail string
	Err    error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Detail, e.Err)
	}
	return e.Detail
}

func (e *Error) Unwrap() []error {
	if e.Err != nil {
		return []error{e.Kind, e.Err}
	}
	return []error{e.Kind}
}

// Detail returns the client-safe message of err, or "" when err carries none.
func Detail(err error) string {
	var se *Error
	if errors.As(err, &se) {
		return se.Detail
	}
	return ""
}

func conflict(detail string) error     { return &Error{Kind: ErrConflict, Detail: detail} }
func unauthorized(detail string) error { return &Error{Kind: ErrUnauthorized, Detail: detail} }
func badRequest(detail string) error   { return &Error{Kind: ErrBadRequest, Detail: detail} }
func notFound(detail string) error     { return &Error{Kind: ErrNotFound, Detail: detail} }

func storageError(op string, err error) error {
	return &Error{Kind: ErrStorage, Detail: "storage unavailable", Err: fmt.Errorf("%s: %w", op, err)}
}
