package scanning

import (
	"errors"
	"fmt"
	"time"
)

// ErrorKind tags a scan failure at the point it occurs so the transport layer
// can map it to a status code without inspecting message text.
type ErrorKind int

// The set of failure classes a scan can surface.
const (
	// KindUnknown covers unexpected internal failures.
	KindUnknown ErrorKind = iota

	// KindInput marks a malformed reference or missing request field.
	KindInput

	// KindAccess marks a private or nonexistent repository.
	KindAccess

	// KindQuotaExceeded marks local admission denial; ResetAt is populated.
	KindQuotaExceeded

	// KindUpstreamRateLimited marks exhaustion of the hosting provider's API
	// quota. Never retried.
	KindUpstreamRateLimited

	// KindUpstreamUnavailable marks a timeout or 5xx from the hosting
	// provider. The only retryable kind.
	KindUpstreamUnavailable

	// KindEngine marks a single (rule, file) evaluation failure. Recorded
	// internally, never surfaced to the caller as an error.
	KindEngine
)

// String implements fmt.Stringer.
func (k ErrorKind) String() string {
	switch k {
	case KindInput:
		return "INPUT"
	case KindAccess:
		return "ACCESS"
	case KindQuotaExceeded:
		return "QUOTA_EXCEEDED"
	case KindUpstreamRateLimited:
		return "UPSTREAM_RATE_LIMITED"
	case KindUpstreamUnavailable:
		return "UPSTREAM_UNAVAILABLE"
	case KindEngine:
		return "ENGINE"
	default:
		return "UNKNOWN"
	}
}

// Retryable reports whether an operation failing with this kind may be
// retried. Rate-limit and access failures must never be retried; doing so
// burns upstream quota without any chance of success.
func (k ErrorKind) Retryable() bool { return k == KindUpstreamUnavailable }

// Error is a scan failure tagged with its kind.
type Error struct {
	Kind    ErrorKind
	Message string

	// ResetAt is set for KindQuotaExceeded so callers know when the local
	// window reopens.
	ResetAt time.Time

	wrapped error
}

// NewError creates a tagged error with a formatted message.
func NewError(kind ErrorKind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// WrapError tags an underlying error with a kind and context message.
func WrapError(kind ErrorKind, err error, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), wrapped: err}
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.wrapped != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.wrapped)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Unwrap returns the underlying error, if any.
func (e *Error) Unwrap() error { return e.wrapped }

// KindOf extracts the kind from an error chain. Errors without a tag report
// KindUnknown.
func KindOf(err error) ErrorKind {
	var scanErr *Error
	if errors.As(err, &scanErr) {
		return scanErr.Kind
	}
	return KindUnknown
}

// ResetAtOf extracts the quota reset time from an error chain, if present.
func ResetAtOf(err error) time.Time {
	var scanErr *Error
	if errors.As(err, &scanErr) {
		return scanErr.ResetAt
	}
	return time.Time{}
}
