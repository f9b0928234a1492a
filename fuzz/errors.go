package fuzz

import (
	"fmt"

	"github.com/pkg/errors"
)

// Well known bus error names.
const (
	ErrorNoReply      = "org.freedesktop.DBus.Error.NoReply"
	ErrorTimeout      = "org.freedesktop.DBus.Error.Timeout"
	ErrorAccessDenied = "org.freedesktop.DBus.Error.AccessDenied"
	ErrorAuthFailed   = "org.freedesktop.DBus.Error.AuthFailed"
)

var (
	ErrFormatTooSmall      = errors.New("format string too small to consume all signatures")
	ErrUnknownSignature    = errors.New("unknown argument signature")
	ErrNoValue             = errors.New("failed to construct value")
	ErrUnstableOwnership   = errors.New("composed call does not own its arguments")
	ErrTargetIndeterminate = errors.New("cannot determine state of tested process")
)

// RemoteError is an error reply of the remote peer. Name is empty when the
// error did not carry a formal bus error name.
type RemoteError struct {
	Name    string
	Message string
}

func (e *RemoteError) Error() string {
	switch {
	case e.Name == "":
		return e.Message
	case e.Message == "":
		return e.Name
	default:
		return e.Name + ": " + e.Message
	}
}

// InternalError aborts the test of a method. Signature is set when the
// problem is tied to one argument.
type InternalError struct {
	Method    string
	Signature string
	Err       error
}

func (e *InternalError) Error() string {
	if e.Signature != "" {
		return fmt.Sprintf("method %s, signature %q: %v", e.Method, e.Signature, e.Err)
	}
	return fmt.Sprintf("method %s: %v", e.Method, e.Err)
}

func (e *InternalError) Unwrap() error {
	return e.Err
}

func internalError(method, signature string, err error) *InternalError {
	return &InternalError{Method: method, Signature: signature, Err: err}
}
