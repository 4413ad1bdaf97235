package queue

import (
	"errors"
	"fmt"

	"queueforge/pkg/types"
)

// ErrorKind classifies engine failures so callers can route them.
type ErrorKind string

const (
	KindNotFound            ErrorKind = "not_found"
	KindEffectApplication   ErrorKind = "effect_application"
	KindConcurrencyConflict ErrorKind = "concurrency_conflict"
	KindPersistence         ErrorKind = "persistence"
	KindInvalidItem         ErrorKind = "invalid_item"
	KindNotCancellable      ErrorKind = "not_cancellable"
)

// Sentinels for errors.Is. Any *Error of the same kind matches.
var (
	ErrNotFound            = &Error{Kind: KindNotFound}
	ErrEffectApplication   = &Error{Kind: KindEffectApplication}
	ErrConcurrencyConflict = &Error{Kind: KindConcurrencyConflict}
	ErrPersistence         = &Error{Kind: KindPersistence}
	ErrInvalidItem         = &Error{Kind: KindInvalidItem}
	ErrNotCancellable      = &Error{Kind: KindNotCancellable}
)

// Error carries the kind of failure plus the queue it happened on.
type Error struct {
	Kind     ErrorKind
	Op       string
	PlanetID int64
	Category types.Category
	ItemID   string
	Err      error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("[%s] %s", e.Kind, e.Op)
	if e.Category != "" {
		msg += fmt.Sprintf(" planet=%d category=%s", e.PlanetID, e.Category)
	}
	if e.ItemID != "" {
		msg += " item=" + e.ItemID
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches on kind only, so wrapped causes do not need to line up.
func (e *Error) Is(target error) bool {
	var other *Error
	if errors.As(target, &other) {
		return other.Kind == e.Kind
	}
	return false
}

// Retryable reports whether the caller may simply try again.
func (e *Error) Retryable() bool {
	return e.Kind == KindConcurrencyConflict
}

// NewError builds an *Error for repository and port implementations.
func NewError(kind ErrorKind, op string, planetID int64, category types.Category, err error) *Error {
	return &Error{Kind: kind, Op: op, PlanetID: planetID, Category: category, Err: err}
}

// KindOf extracts the kind from err, or "" when err is not an *Error.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// IsRetryable reports whether err is a retryable engine error.
func IsRetryable(err error) bool {
	var e *Error
	return errors.As(err, &e) && e.Retryable()
}

// classify keeps an existing kind from a collaborator, otherwise tags err with fallback.
func classify(err error, fallback ErrorKind, op string, planetID int64, category types.Category) error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		if e.Category == "" {
			cp := *e
			cp.Op, cp.PlanetID, cp.Category = op, planetID, category
			return &cp
		}
		return err
	}
	return NewError(fallback, op, planetID, category, err)
}
