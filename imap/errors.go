package imap

import (
	"errors"
	"fmt"

	"github.com/kestrelmail/goimapcore/handlers"
	"github.com/kestrelmail/goimapcore/pipeline"
)

// ErrorKind discriminates the public error taxonomy (spec §7). Every
// operation that fails surfaces one of these, wrapped in *Error.
type ErrorKind int

const (
	ErrConnectionFailed ErrorKind = iota
	ErrConnectionLost
	ErrTimeout
	ErrGreetingFailed
	ErrLoginFailed
	ErrSelectFailed
	ErrFetchFailed
	ErrStoreFailed
	ErrCopyFailed
	ErrExpungeFailed
	ErrCommandFailed
	ErrInvalidArgument
	ErrEmptyIdentifierSet
	ErrCommandNotSupported
	ErrUndefinedFolder
)

func (k ErrorKind) String() string {
	switch k {
	case ErrConnectionFailed:
		return "ConnectionFailed"
	case ErrConnectionLost:
		return "ConnectionLost"
	case ErrTimeout:
		return "Timeout"
	case ErrGreetingFailed:
		return "GreetingFailed"
	case ErrLoginFailed:
		return "LoginFailed"
	case ErrSelectFailed:
		return "SelectFailed"
	case ErrFetchFailed:
		return "FetchFailed"
	case ErrStoreFailed:
		return "StoreFailed"
	case ErrCopyFailed:
		return "CopyFailed"
	case ErrExpungeFailed:
		return "ExpungeFailed"
	case ErrCommandFailed:
		return "CommandFailed"
	case ErrInvalidArgument:
		return "InvalidArgument"
	case ErrEmptyIdentifierSet:
		return "EmptyIdentifierSet"
	case ErrCommandNotSupported:
		return "CommandNotSupported"
	case ErrUndefinedFolder:
		return "UndefinedFolder"
	default:
		return "Unknown"
	}
}

// Error is the public error type every Session operation returns on
// failure.
type Error struct {
	Kind  ErrorKind
	Text  string
	Cause error
}

func (e *Error) Error() string {
	if e.Text == "" {
		return e.Kind.String()
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Text)
}

func (e *Error) Unwrap() error { return e.Cause }

func newError(kind ErrorKind, text string) *Error {
	return &Error{Kind: kind, Text: text}
}

// commandErrorKind maps a handlers.CommandError.Kind string onto the
// public taxonomy.
func commandErrorKind(kind string) ErrorKind {
	switch kind {
	case "GreetingFailed":
		return ErrGreetingFailed
	case "LoginFailed":
		return ErrLoginFailed
	case "SelectFailed":
		return ErrSelectFailed
	case "FetchFailed":
		return ErrFetchFailed
	case "StoreFailed":
		return ErrStoreFailed
	case "CopyFailed":
		return ErrCopyFailed
	case "ExpungeFailed":
		return ErrExpungeFailed
	default:
		return ErrCommandFailed
	}
}

// translate maps a pipeline/handlers error onto the public taxonomy. The
// pipeline and handlers packages stay free of any dependency on this
// package to avoid an import cycle, so this is the one place the two
// error worlds meet.
func translate(err error) error {
	if err == nil {
		return nil
	}
	switch {
	case errors.Is(err, pipeline.ErrConnectionLost):
		return &Error{Kind: ErrConnectionLost, Cause: err}
	case errors.Is(err, pipeline.ErrTimeout):
		return &Error{Kind: ErrTimeout, Cause: err}
	case errors.Is(err, pipeline.ErrCancelled):
		return &Error{Kind: ErrTimeout, Text: "dispatch cancelled", Cause: err}
	}
	var cerr *handlers.CommandError
	if errors.As(err, &cerr) {
		return &Error{Kind: commandErrorKind(cerr.Kind), Text: cerr.Text}
	}
	return &Error{Kind: ErrConnectionFailed, Cause: err}
}
