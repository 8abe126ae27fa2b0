package domain

import "errors"

// Sentinel errors shared by the invite, enrollment and device sync flows.
var (
	ErrNotFound = errors.New("not found")

	// ErrInvalidInput is returned when required enrollment or invite fields are missing or malformed.
	ErrInvalidInput = errors.New("invalid input")

	// ErrInvalidOrExpiredToken covers unknown, already used and expired invite tokens alike,
	// so that callers cannot probe which tokens exist.
	ErrInvalidOrExpiredToken = errors.New("invalid or expired token")

	ErrSiteNotFound = errors.New("site not found")

	// ErrStorageFailure means the enrollment transaction did not commit. Nothing was consumed
	// and the same token may be retried.
	ErrStorageFailure = errors.New("storage failure")

	// ErrTokenCollision is returned by the token store when a live PENDING token already uses the value.
	ErrTokenCollision = errors.New("invite token collision")

	// ErrTokenSpaceExhausted is returned when no free token value was found within the retry budget.
	ErrTokenSpaceExhausted = errors.New("could not allocate a unique invite token")
)

// Device push failures. Adapters wrap one of these so the fan-out can classify the outcome.
var (
	ErrDeviceUnreachable = errors.New("device unreachable")
	ErrDeviceRejected    = errors.New("device rejected credential")
	ErrDeviceTimeout     = errors.New("device timeout")
)
