// Package fault classifies engine errors into user faults (caller
// mistakes that map to 4xx responses) and system faults (everything
// else). Callers outside this engine only need the kind and the status
// hint; the wrapped cause keeps its stack trace for the error log.
package fault

import (
	"errors"
	"fmt"

	eParser "github.com/go-errors/errors"
)

// Kind separates caller mistakes from internal failures.
type Kind int

const (
	// System marks an internal failure that should surface as a 5xx.
	System Kind = iota
	// User marks a caller mistake that should surface as a 4xx.
	User
)

// Error carries the fault kind, an HTTP-ish status hint and the cause.
type Error struct {
	Kind   Kind
	Status int
	Msg    string
	Err    error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s", e.Msg, e.Err)
	}
	return e.Msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Userf builds a user fault with a status-code hint.
func Userf(status int, format string, v ...interface{}) *Error {
	return &Error{Kind: User, Status: status, Msg: fmt.Sprintf(format, v...)}
}

// Systemf builds a system fault from scratch.
func Systemf(format string, v ...interface{}) *Error {
	return &Error{Kind: System, Status: 500, Msg: fmt.Sprintf(format, v...)}
}

// Wrap marks err as a system fault, capturing the stack at the wrap
// site. A nil err returns nil; an err that is already an *Error passes
// through unchanged so classification survives layered wrapping.
func Wrap(err error) error {
	if err == nil {
		return nil
	}
	var fe *Error
	if errors.As(err, &fe) {
		return err
	}
	return &Error{Kind: System, Status: 500, Msg: "internal error", Err: eParser.Wrap(err, 1)}
}

// IsUser reports whether err is a user fault.
func IsUser(err error) bool {
	var fe *Error
	return errors.As(err, &fe) && fe.Kind == User
}

// StatusOf returns the status hint of err, or 500 for anything that is
// not a classified fault.
func StatusOf(err error) int {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Status
	}
	return 500
}
