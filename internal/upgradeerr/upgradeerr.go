// Package upgradeerr defines the error taxonomy of SPEC_FULL.md §8 so
// callers can branch on the failure category (retryable transport error,
// terminal validation failure, cooperative cancellation, ...) instead of
// matching error strings.
package upgradeerr

import (
	"errors"
	"fmt"
)

// Kind classifies why an operation failed.
type Kind string

const (
	KindUnreachable          Kind = "unreachable"
	KindAuth                 Kind = "auth"
	KindStall                Kind = "stall"
	KindInsufficientDisk     Kind = "insufficient_disk"
	KindVersionNotFound      Kind = "version_not_found"
	KindVerificationFailed   Kind = "verification_failed"
	KindHAAmbiguous          Kind = "ha_ambiguous"
	KindDuplicateJob         Kind = "duplicate_job"
	KindConflictingType      Kind = "conflicting_type"
	KindValidationMargin     Kind = "validation_margin_exceeded"
	KindMissingMgmtIP        Kind = "missing_mgmt_ip"
	KindCancelled            Kind = "cancelled"
	KindInternal             Kind = "internal"
)

// Error wraps an underlying cause with a Kind and the phase it occurred in.
type Error struct {
	Kind  Kind
	Phase string
	Err   error
}

func (e *Error) Error() string {
	if e.Phase != "" {
		return fmt.Sprintf("%s (phase=%s): %v", e.Kind, e.Phase, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// New builds a typed error for the given kind/phase.
func New(kind Kind, phase string, err error) *Error {
	return &Error{Kind: kind, Phase: phase, Err: err}
}

// Newf builds a typed error from a format string.
func Newf(kind Kind, phase, format string, args ...any) *Error {
	return &Error{Kind: kind, Phase: phase, Err: fmt.Errorf(format, args...)}
}

// KindOf extracts the Kind from err, or "" if err is not (or does not
// wrap) an *Error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// IsRetryable reports whether the kind is one the caller should retry
// with backoff rather than fail immediately.
func (k Kind) IsRetryable() bool {
	return k == KindUnreachable || k == KindStall
}
