// Package apperr defines the error taxonomy shared by every domain package.
// Each error carries a stable machine-readable Kind and a human-readable
// Reason suitable for direct display.
package apperr

import "errors"

// Kind classifies an error for callers and transports.
type Kind string

const (
	KindNotFound         Kind = "not_found"
	KindCapacityExceeded Kind = "capacity_exceeded"
	KindConflict         Kind = "conflict"
	KindForbidden        Kind = "forbidden"
	KindExternalService  Kind = "external_service"
	KindValidation       Kind = "validation"
	KindInternal         Kind = "internal"
)

// Error is a classified error.
type Error struct {
	Kind   Kind
	Reason string
	Err    error
}

// New creates a classified error with a display reason.
func New(kind Kind, reason string) *Error {
	return &Error{Kind: kind, Reason: reason}
}

// Wrap classifies an underlying error. The reason is shown to callers; err is kept for logs.
func Wrap(kind Kind, reason string, err error) *Error {
	return &Error{Kind: kind, Reason: reason, Err: err}
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Reason + ": " + e.Err.Error()
	}
	return e.Reason
}

func (e *Error) Unwrap() error {
	return e.Err
}

// KindOf returns the kind of the first classified error in err's chain,
// or KindInternal when none is classified.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// ReasonOf returns the display reason of the first classified error in err's chain.
func ReasonOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Reason
	}
	return "internal server error"
}

// Is reports whether err is classified as kind.
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}
