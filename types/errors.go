package types

import (
	"context"
	"errors"
	"fmt"
)

// Kind classifies pipeline errors
type Kind string

const (
	KindValidation      Kind = "validation"
	KindUpstream        Kind = "upstream"
	KindStorage         Kind = "storage"
	KindToolUnavailable Kind = "tool_unavailable"
	KindAssembly        Kind = "assembly"
	KindCancelled       Kind = "cancelled"
	KindRateLimited     Kind = "rate_limited"
)

// Sentinels for errors.Is
var (
	ErrValidation      = &Error{Kind: KindValidation}
	ErrUpstream        = &Error{Kind: KindUpstream}
	ErrStorage         = &Error{Kind: KindStorage}
	ErrToolUnavailable = &Error{Kind: KindToolUnavailable}
	ErrAssembly        = &Error{Kind: KindAssembly}
	ErrCancelled       = &Error{Kind: KindCancelled}
	ErrRateLimited     = &Error{Kind: KindRateLimited}
)

// Error carries the taxonomy kind and the operation that failed
type Error struct {
	Kind Kind
	Op   string
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	msg := e.Msg
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	} else if e.Err != nil {
		msg = msg + ": " + e.Err.Error()
	}
	if e.Op == "" {
		return fmt.Sprintf("%s: %s", e.Kind, msg)
	}
	return fmt.Sprintf("%s %s: %s", e.Op, e.Kind, msg)
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error of the same kind, so the sentinels work with errors.Is
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Kind == e.Kind && t.Op == "" && t.Msg == "" && t.Err == nil
}

// Errorf builds an Error with a formatted message
func Errorf(kind Kind, op, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Op: op, Msg: fmt.Sprintf(format, args...)}
}

// Wrap attaches a kind to err. A cancelled context is always KindCancelled.
func Wrap(kind Kind, op string, err error) error {
	if err == nil {
		return nil
	}
	var te *Error
	if errors.As(err, &te) && te.Kind == kind {
		return err
	}
	if errors.Is(err, context.Canceled) {
		kind = KindCancelled
	}
	return &Error{Kind: kind, Op: op, Err: err}
}

// KindOf returns the kind of the outermost *Error in err's chain
func KindOf(err error) Kind {
	var te *Error
	if errors.As(err, &te) {
		return te.Kind
	}
	if errors.Is(err, context.Canceled) {
		return KindCancelled
	}
	return ""
}
