package captions

import (
	"errors"
	"fmt"
)

// Reason is a stable, machine-readable failure code. Values are part of
// the HTTP API and must not change.
type Reason string

const (
	// ReasonMissingID means no video identifier was supplied.
	ReasonMissingID Reason = "missing_identifier"

	// ReasonInvalidID means the identifier was not a recognisable video
	// URL or ID.
	ReasonInvalidID Reason = "invalid_identifier"

	// ReasonNoCaptions covers every source failure (tool error, timeout,
	// oversized output, no track) as well as a pipeline that produced
	// zero segments.
	ReasonNoCaptions Reason = "no_captions_found"
)

// Error is a user-facing failure carrying a stable reason and a
// human-readable detail.
type Error struct {
	Reason Reason
	Detail string
	Err    error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Reason, e.Detail, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Reason, e.Detail)
}

func (e *Error) Unwrap() error { return e.Err }

// MissingID returns a [ReasonMissingID] error.
func MissingID() *Error {
	return &Error{Reason: ReasonMissingID, Detail: "missing identifier"}
}

// InvalidID returns a [ReasonInvalidID] error for input.
func InvalidID(input string) *Error {
	return &Error{Reason: ReasonInvalidID, Detail: fmt.Sprintf("not a video URL or ID: %q", input)}
}

// NoCaptions returns a [ReasonNoCaptions] error wrapping cause, which
// may be nil.
func NoCaptions(detail string, cause error) *Error {
	return &Error{Reason: ReasonNoCaptions, Detail: detail, Err: cause}
}

// ReasonOf extracts the reason from err, or "" when err does not wrap an
// [*Error].
func ReasonOf(err error) Reason {
	var ce *Error
	if errors.As(err, &ce) {
		return ce.Reason
	}
	return ""
}
