package domain

import "errors"

// Sentinel errors shared between services and handlers.
var (
	// ErrUserNotFound means the resolved identity has no row in the user
	// store. Fatal for the linking flow, not retryable.
	ErrUserNotFound = errors.New("user not found")

	// ErrTokenInvalid covers expired, revoked, tampered, and unknown
	// credentials. Any ambiguity fails closed onto this error.
	ErrTokenInvalid = errors.New("token invalid")

	// ErrBillingRequired means issuance preconditions were not met: the
	// entitlement is inactive or no live device token backs it.
	ErrBillingRequired = errors.New("billing required")

	// ErrConnectionRequired means the external workspace connection has not
	// been established yet.
	ErrConnectionRequired = errors.New("workspace connection required")
)
