package comments

import (
	"errors"
	"fmt"
)

// Business outcomes. Anything else returned by Manager is an internal failure.
var (
	ErrNotFound   = errors.New("not found")
	ErrForbidden  = errors.New("forbidden")
	ErrValidation = errors.New("validation failed")
)

// Error is returned for every failed operation. Msg is safe to show to users;
// Err is either one of the sentinels above or an internal cause.
type Error struct {
	Op  string
	ID  string
	Err error
	Msg string
}

func (e *Error) Error() string {
	msg := e.Msg
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	if e.ID == "" {
		return fmt.Sprintf("comments.%s: %s", e.Op, msg)
	}
	return fmt.Sprintf("comments.%s %s: %s", e.Op, e.ID, msg)
}

func (e *Error) Unwrap() error { return e.Err }

func notFound(op, id, msg string) error {
	return &Error{Op: op, ID: id, Err: ErrNotFound, Msg: msg}
}

func forbidden(op, id, msg string) error {
	return &Error{Op: op, ID: id, Err: ErrForbidden, Msg: msg}
}

func invalid(op, id, msg string) error {
	return &Error{Op: op, ID: id, Err: ErrValidation, Msg: msg}
}

// internal wraps a store failure. The cause stays reachable through Unwrap
// but never reaches Msg.
func internal(op, id string, err error) error {
	return &Error{Op: op, ID: id, Err: err}
}

// Message returns the user-facing message of err, or "" when err is not a
// business outcome.
func Message(err error) string {
	var e *Error
	if errors.As(err, &e) && isBusiness(e.Err) {
		return e.Msg
	}
	return ""
}

func isBusiness(err error) bool {
	return errors.Is(err, ErrNotFound) || errors.Is(err, ErrForbidden) || errors.Is(err, ErrValidation)
}
