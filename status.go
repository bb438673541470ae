package sshpass

import (
	"errors"
	"fmt"
)

// Status is the single integer outcome of a session: one of the values below,
// or the child's own exit code when the controller did not force one.
//
// The two ranges overlap. A child exiting with 1 through 7 (or 255) yields the
// same Status as the controller condition with that number, and String and
// Err describe it as that condition. Callers that must tell them apart need
// the child's own diagnostics.
type Status int

const (
	StatusOK Status = iota
	StatusInvalidArguments
	StatusConflictingArguments
	StatusRuntimeError
	StatusParseError
	StatusIncorrectPassword
	StatusHostKeyUnknown
	StatusHostKeyChanged
)

// StatusSignaled stands in for a child that terminated abnormally.
const StatusSignaled Status = 255

var (
	ErrInvalidArguments     = errors.New("invalid arguments")
	ErrConflictingArguments = errors.New("conflicting arguments")
	ErrRuntime              = errors.New("runtime error")
	ErrParse                = errors.New("parse error")
	ErrIncorrectPassword    = errors.New("incorrect password")
	ErrHostKeyUnknown       = errors.New("host key unknown")
	ErrHostKeyChanged       = errors.New("host key changed")
	ErrSignaled             = errors.New("connection failed or terminated by signal")
)

var statusErrors = map[Status]error{
	StatusInvalidArguments:     ErrInvalidArguments,
	StatusConflictingArguments: ErrConflictingArguments,
	StatusRuntimeError:         ErrRuntime,
	StatusParseError:           ErrParse,
	StatusIncorrectPassword:    ErrIncorrectPassword,
	StatusHostKeyUnknown:       ErrHostKeyUnknown,
	StatusHostKeyChanged:       ErrHostKeyChanged,
	StatusSignaled:             ErrSignaled,
}

func (s Status) String() string {
	if s == StatusOK {
		return "ok"
	}
	if err, ok := statusErrors[s]; ok {
		return err.Error()
	}
	return fmt.Sprintf("exit status %d", int(s))
}

// Err returns nil for StatusOK and a *StatusError otherwise.
func (s Status) Err() error {
	if s == StatusOK {
		return nil
	}
	return &StatusError{Status: s}
}

// StatusError carries a non-zero Status. It unwraps to one of the sentinel
// errors above when the status is one the controller assigns.
type StatusError struct {
	Status Status
}

func (e *StatusError) Error() string {
	return "sshpass: " + e.Status.String()
}

func (e *StatusError) Unwrap() error {
	return statusErrors[e.Status]
}

// StatusOf maps an error back to a Status. Unknown errors are runtime errors.
func StatusOf(err error) Status {
	if err == nil {
		return StatusOK
	}
	var se *StatusError
	if errors.As(err, &se) {
		return se.Status
	}
	for s, sentinel := range statusErrors {
		if errors.Is(err, sentinel) {
			return s
		}
	}
	return StatusRuntimeError
}
