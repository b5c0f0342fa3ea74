// Package evalerr defines the error kinds shared across the evaluator.
//
// Every error that crosses a component boundary carries one of the sentinel
// kinds below, so callers can branch with errors.Is without knowing which
// backend or parser produced it.
package evalerr

import (
	"context"
	"errors"
	"fmt"
)

// Sentinel kinds.
var (
	// ErrSchema means required columns are absent.
	ErrSchema = errors.New("schema error")
	// ErrValidation means values are present but not of the expected type.
	ErrValidation = errors.New("validation error")
	// ErrNoOverlap means ground truth and submission share no ids.
	ErrNoOverlap = errors.New("no overlapping ids")
	// ErrVersionConflict means a compare-and-swap precondition failed.
	ErrVersionConflict = errors.New("version conflict")
	// ErrTransient covers network failures, timeouts and rate limiting.
	ErrTransient = errors.New("transient error")
	// ErrAuth means the store rejected our credentials.
	ErrAuth = errors.New("auth error")
	// ErrNotFound means the requested blob does not exist.
	ErrNotFound = errors.New("not found")
	// ErrRetriesExhausted wraps the last error once a retry budget is spent.
	ErrRetriesExhausted = errors.New("retries exhausted")
)

// Error annotates a cause with the operation that failed and its kind.
type Error struct {
	Op   string
	Kind error
	Err  error
}

func (e *Error) Error() string {
	switch {
	case e.Err == nil:
		return fmt.Sprintf("%s: %v", e.Op, e.Kind)
	case e.Kind == nil:
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	default:
		return fmt.Sprintf("%s: %v: %v", e.Op, e.Kind, e.Err)
	}
}

// Unwrap exposes both the kind and the cause to errors.Is / errors.As.
func (e *Error) Unwrap() []error {
	out := make([]error, 0, 2)
	if e.Kind != nil {
		out = append(out, e.Kind)
	}
	if e.Err != nil {
		out = append(out, e.Err)
	}
	return out
}

// New returns an error of kind for op without a further cause.
func New(op string, kind error) error {
	return &Error{Op: op, Kind: kind}
}

// Newf returns an error of kind for op with a formatted message.
func Newf(op string, kind error, format string, args ...any) error {
	return &Error{Op: op, Kind: kind, Err: fmt.Errorf(format, args...)}
}

// Wrap annotates err with op and kind. A nil err yields nil.
func Wrap(op string, kind error, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Op: op, Kind: kind, Err: err}
}

// WrapOp annotates err with op, keeping whatever kind it already carries.
func WrapOp(op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Op: op, Err: err}
}

var kinds = []error{
	ErrSchema,
	ErrValidation,
	ErrNoOverlap,
	ErrVersionConflict,
	ErrAuth,
	ErrNotFound,
	ErrTransient,
}

// KindOf returns the first known kind carried by err, or nil.
func KindOf(err error) error {
	if err == nil {
		return nil
	}
	for _, k := range kinds {
		if errors.Is(err, k) {
			return k
		}
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return ErrTransient
	}
	return nil
}

// Retryable reports whether err is worth another attempt.
func Retryable(err error) bool {
	if err == nil || errors.Is(err, ErrAuth) {
		return false
	}
	return errors.Is(err, ErrVersionConflict) || errors.Is(err, ErrTransient)
}

// Code returns a short machine-readable name for err's kind.
func Code(err error) string {
	switch KindOf(err) {
	case ErrSchema:
		return "schema_error"
	case ErrValidation:
		return "validation_error"
	case ErrNoOverlap:
		return "no_overlap"
	case ErrVersionConflict:
		return "version_conflict"
	case ErrAuth:
		return "auth_error"
	case ErrNotFound:
		return "not_found"
	case ErrTransient:
		return "transient_error"
	default:
		return "internal_error"
	}
}
