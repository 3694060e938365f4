// Package apperr classifies core rejections into the categories the calling
// layer maps onto its own error taxonomy.
package apperr

import "errors"

// Kind is a rejection category. Kinds are themselves errors so callers can
// test with errors.Is(err, apperr.Conflict).
type Kind string

const (
	// Validation covers malformed input: empty URIs, mismatched arrays, bad splits.
	Validation Kind = "validation"
	// Authorization covers caller rule violations.
	Authorization Kind = "authorization"
	// Economic covers insufficient fees, balances, allowances or stakes.
	Economic Kind = "economic"
	// Conflict covers duplicate hashes, terminal disputes and the supply cap.
	Conflict Kind = "conflict"
	// Unavailable covers operations attempted while paused.
	Unavailable Kind = "unavailable"
)

func (k Kind) Error() string { return string(k) }

// Error is a categorized rejection with a distinct reason.
type Error struct {
	Kind Kind
	Msg  string
}

// New declares a rejection reason of the given kind.
func New(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Msg: msg}
}

func (e *Error) Error() string { return e.Msg }

// Is reports whether target is this error or its category.
func (e *Error) Is(target error) bool {
	if k, ok := target.(Kind); ok {
		return e.Kind == k
	}
	return e == target
}

// KindOf returns the category of err, or "" when err is not a core rejection.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	var k Kind
	if errors.As(err, &k) {
		return k
	}
	return ""
}
