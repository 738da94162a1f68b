package apperr

import "errors"

// Sentinel errors shared across services. Wrap with %w so callers can
// dispatch on errors.Is.
var (
	// ErrValidation marks malformed caller input.
	ErrValidation = errors.New("validation failed")
	// ErrAuth marks a signature mismatch. Handlers fail closed on it and
	// services must not have mutated any state before returning it.
	ErrAuth = errors.New("signature verification failed")
	// ErrNotFound marks an unknown order or user.
	ErrNotFound = errors.New("not found")
	// ErrUnavailable marks a missing gateway integration (unset keys or
	// secrets), distinct from a gateway that is merely failing.
	ErrUnavailable = errors.New("payment gateway not configured")
	// ErrTransientGateway marks a gateway call that failed in a retriable
	// way. The reconciler logs it and retries on the next sweep; it is
	// never surfaced to a user.
	ErrTransientGateway = errors.New("transient gateway error")
)
