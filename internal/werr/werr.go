// Package werr classifies winsfs errors into the kinds the CLI maps to
// exit codes: InputParse and Config are user-input errors (exit 1), Io is
// an I/O failure (exit 2), and Numeric/Intersection are computation
// failures (exit 3).
package werr

import (
	"fmt"

	"github.com/pkg/errors"
)

// Kind classifies an error for exit-code mapping at the CLI boundary.
type Kind int

const (
	// InputParse covers malformed SAF headers, malformed shuffled-file
	// headers, and shape mismatches across populations.
	InputParse Kind = iota
	// Io covers read/write failures and premature EOF.
	Io
	// Numeric covers non-finite log-likelihoods and Q sums collapsing to
	// zero.
	Numeric
	// Intersection covers a zero-size intersected site set.
	Intersection
	// Config covers mutually exclusive flags, block-size > N, and a
	// zero window-size.
	Config
)

func (k Kind) String() string {
	switch k {
	case InputParse:
		return "input parse error"
	case Io:
		return "I/O error"
	case Numeric:
		return "numeric error"
	case Intersection:
		return "intersection error"
	case Config:
		return "configuration error"
	default:
		return "error"
	}
}

// ExitCode maps a Kind to the exit codes in the estimator CLI surface:
// 1 user-input error, 2 I/O error, 3 numerical failure.
func (k Kind) ExitCode() int {
	switch k {
	case InputParse, Config:
		return 1
	case Io:
		return 2
	case Numeric, Intersection:
		return 3
	default:
		return 1
	}
}

// Error wraps an underlying error with a Kind, preserving the pkg/errors
// stack trace of the wrapped cause.
type Error struct {
	Kind  Kind
	cause error
}

func (e *Error) Error() string { return fmt.Sprintf("%s: %v", e.Kind, e.cause) }

func (e *Error) Unwrap() error { return e.cause }

// Wrap annotates err with kind and a formatted message, in the style of
// the teacher's errors.Wrapf call sites.
func Wrap(kind Kind, err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, cause: errors.Wrapf(err, format, args...)}
}

// New builds a fresh Error of the given kind, in the style of
// errors.Errorf.
func New(kind Kind, format string, args ...interface{}) error {
	return &Error{Kind: kind, cause: errors.Errorf(format, args...)}
}

// KindOf extracts the Kind from err, defaulting to Io for unclassified
// errors (e.g. raw os errors bubbling up from a read call).
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return Io
}
