// Package apperror defines the failure taxonomy shared by the billing core.
//
// Every error returned by a core operation carries one Kind so callers can react
// to the category (re-authenticate, fix input, retry later) without string matching.
// Domain sentinels are wrapped, so both errors.Is(err, ErrValidation) and
// errors.Is(err, usagedomain.ErrInvalidQuantity) hold for the same value.
package apperror

import (
	"errors"
	"fmt"
)

// Kind classifies a failure.
type Kind string

const (
	KindValidation         Kind = "validation_error"
	KindNotAuthenticated   Kind = "not_authenticated"
	KindPersistence        Kind = "persistence_error"
	KindProfileUnavailable Kind = "profile_unavailable"
	KindNotFound           Kind = "not_found"
)

// Error is a categorized failure wrapping the underlying cause.
type Error struct {
	Kind Kind
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return string(e.Kind)
	}
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches kind sentinels (an *Error with a nil cause) by kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok || t.Err != nil {
		return false
	}
	return t.Kind == e.Kind
}

var (
	ErrValidation         = &Error{Kind: KindValidation}
	ErrNotAuthenticated   = &Error{Kind: KindNotAuthenticated}
	ErrPersistence        = &Error{Kind: KindPersistence}
	ErrProfileUnavailable = &Error{Kind: KindProfileUnavailable}
	ErrNotFound           = &Error{Kind: KindNotFound}
)

func wrap(kind Kind, err error) error {
	if err == nil {
		return nil
	}
	var existing *Error
	if errors.As(err, &existing) && existing.Kind == kind {
		return err
	}
	return &Error{Kind: kind, Err: err}
}

func Validation(err error) error         { return wrap(KindValidation, err) }
func NotAuthenticated(err error) error   { return wrap(KindNotAuthenticated, err) }
func Persistence(err error) error        { return wrap(KindPersistence, err) }
func ProfileUnavailable(err error) error { return wrap(KindProfileUnavailable, err) }
func NotFound(err error) error           { return wrap(KindNotFound, err) }

// KindOf returns the kind of err, or an empty Kind when err is uncategorized.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}
