// Package errs contains sentinel errors used across layers for stable error mapping.
package errs

import "errors"

// Common sentinels across repo/service layers.
var (
	// ErrNotFound indicates the requested entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrForbidden indicates an authenticated caller without the required permission.
	ErrForbidden = errors.New("forbidden")

	// ErrInvalid indicates malformed input or a business-rule violation.
	ErrInvalid = errors.New("invalid")

	// ErrInternal indicates a storage or cascade failure.
	ErrInternal = errors.New("internal error")

	// ErrVersionConflict indicates a conditional update matched no row.
	ErrVersionConflict = errors.New("version conflict")

	// ErrUnauthorized indicates failed authentication.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrRateLimited indicates temporary login lock due to rate limiting.
	ErrRateLimited = errors.New("rate limited")

	// ErrAlreadyExists indicates a unique constraint violation (e.g., email taken).
	ErrAlreadyExists = errors.New("already exists")
)

// Error is a typed failure: Kind is one of the sentinels above and Reason is
// the message shown to the caller.
type Error struct {
	Kind   error
	Reason string
	Err    error
}

func (e *Error) Error() string {
	switch {
	case e.Reason != "":
		return e.Reason
	case e.Err != nil:
		return e.Err.Error()
	default:
		return e.Kind.Error()
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

// NotFound returns an ErrNotFound failure with a reason.
func NotFound(reason string) error { return &Error{Kind: ErrNotFound, Reason: reason} }

// Forbidden returns an ErrForbidden failure with a reason.
func Forbidden(reason string) error { return &Error{Kind: ErrForbidden, Reason: reason} }

// Invalid returns an ErrInvalid failure with a reason.
func Invalid(reason string) error { return &Error{Kind: ErrInvalid, Reason: reason} }

// Internal wraps a storage failure as ErrInternal.
func Internal(err error, reason string) error {
	return &Error{Kind: ErrInternal, Reason: reason, Err: err}
}

// Reason returns the caller-facing message of err.
func Reason(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Error()
	}
	return err.Error()
}

// Unauthorized returns an ErrUnauthorized failure with a reason.
func Unauthorized(reason string) error { return &Error{Kind: ErrUnauthorized, Reason: reason} }

// AlreadyExists returns an ErrAlreadyExists failure with a reason.
func AlreadyExists(reason string) error { return &Error{Kind: ErrAlreadyExists, Reason: reason} }
