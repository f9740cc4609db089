// Package errors provides error wrapping utilities and the error taxonomy
// shared by the loader pipeline. Provider errors are classified into these
// sentinels once, at the cloud boundary, so the pipeline never string-matches
// SDK errors.
package errors

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound means the referenced object does not exist. Fatal for the
	// affected file.
	ErrNotFound = errors.New("not found")

	// ErrAccessDenied means no usable credentials grant access, even after
	// the scoped-credential fallback. Fatal for the affected file.
	ErrAccessDenied = errors.New("access denied")

	// ErrCredentialExpired means an assumed-role session has outlived its
	// duration. Always fatal for the affected bundle; never silently
	// retried with stale credentials.
	ErrCredentialExpired = errors.New("credential expired")

	// ErrTransient marks network/service errors worth retrying with backoff.
	ErrTransient = errors.New("transient error")

	// ErrQuotaExceeded means the staging bucket rejected a write for
	// capacity reasons.
	ErrQuotaExceeded = errors.New("quota exceeded")

	// ErrPermissionDenied means the staging bucket rejected a write for
	// permission reasons.
	ErrPermissionDenied = errors.New("permission denied")

	// ErrConflict means the store already holds different content under the
	// same identity. Never overwritten, never retried.
	ErrConflict = errors.New("conflict with different content")

	// ErrValidation marks a malformed bundle, rejected before any network
	// call.
	ErrValidation = errors.New("validation error")
)

// Wrap wraps an error with additional context information.
// If err is nil, it returns nil without wrapping.
func Wrap(err error, context string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", context, err)
}

// Wrapf is Wrap with a formatted context string.
func Wrapf(err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
}

// Tag attaches a taxonomy sentinel to err, preserving both in the chain so
// errors.Is works against either.
func Tag(sentinel, err error) error {
	if err == nil {
		return sentinel
	}
	return fmt.Errorf("%w: %w", sentinel, err)
}

// IsTransient reports whether err should be retried with backoff.
func IsTransient(err error) bool {
	return errors.Is(err, ErrTransient)
}

// IsFatalForBundle reports whether err must fail the whole bundle rather
// than a single file.
func IsFatalForBundle(err error) bool {
	return errors.Is(err, ErrCredentialExpired) || errors.Is(err, ErrConflict)
}

// Is re-exports errors.Is so call sites need a single errors import.
func Is(err, target error) bool { return errors.Is(err, target) }

// As re-exports errors.As.
func As(err error, target any) bool { return errors.As(err, target) }

// New re-exports errors.New.
func New(text string) error { return errors.New(text) }
