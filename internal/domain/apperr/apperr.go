package apperr

import (
	"errors"
	"fmt"
)

// Kind classifies why a message could not be built or applied.
type Kind string

const (
	KindStructural       Kind = "STRUCTURAL"
	KindSequenceRejected Kind = "SEQUENCE_REJECTED"
	KindDeferred         Kind = "SEQUENCE_DEFERRED"
	KindNotFound         Kind = "NOT_FOUND"
	KindBusinessRule     Kind = "BUSINESS_RULE"
	KindPersistence      Kind = "PERSISTENCE"
)

// Sentinels for errors.Is matching by kind.
var (
	ErrStructural       = &Error{Kind: KindStructural}
	ErrSequenceRejected = &Error{Kind: KindSequenceRejected}
	ErrDeferred         = &Error{Kind: KindDeferred}
	ErrNotFound         = &Error{Kind: KindNotFound}
	ErrBusinessRule     = &Error{Kind: KindBusinessRule}
	ErrPersistence      = &Error{Kind: KindPersistence}
)

// Error is a classified pipeline error.
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	switch {
	case e.Msg != "" && e.Err != nil:
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Msg, e.Err)
	case e.Msg != "":
		return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	}
	return string(e.Kind)
}

func (e *Error) Unwrap() error { return e.Err }

// Is reports whether target is an *Error of the same kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

func newf(kind Kind, format string, args ...any) error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

// Structural reports a malformed message.
func Structural(format string, args ...any) error { return newf(KindStructural, format, args...) }

// Rejected reports a message that can never apply to local state.
func Rejected(format string, args ...any) error { return newf(KindSequenceRejected, format, args...) }

// Deferred reports a message waiting for a prerequisite.
func Deferred(format string, args ...any) error { return newf(KindDeferred, format, args...) }

// NotFound reports a missing referenced object.
func NotFound(format string, args ...any) error { return newf(KindNotFound, format, args...) }

// BusinessRule reports a violated domain rule.
func BusinessRule(format string, args ...any) error { return newf(KindBusinessRule, format, args...) }

// Persistence wraps an infrastructure failure. Classified errors pass through unchanged.
func Persistence(msg string, err error) error {
	if err == nil {
		return nil
	}
	var classified *Error
	if errors.As(err, &classified) {
		return err
	}
	return &Error{Kind: KindPersistence, Msg: msg, Err: err}
}

// KindOf returns the kind of err, or "" when err is not classified.
func KindOf(err error) Kind {
	var classified *Error
	if errors.As(err, &classified) {
		return classified.Kind
	}
	return ""
}

// IsDeferred reports whether err asks for later redelivery.
func IsDeferred(err error) bool {
	return errors.Is(err, ErrDeferred)
}
