package campaign

import "errors"

var (
	// ErrNotFound covers both a missing campaign and a tenant mismatch; the
	// caller cannot distinguish the two by design.
	ErrNotFound = errors.New("campaign: not found")

	// ErrPreconditionFailed signals an invalid state transition.
	ErrPreconditionFailed = errors.New("campaign: invalid state transition")

	// ErrConfigMissing means the tenant has no telephony credentials.
	ErrConfigMissing = errors.New("campaign: telephony credentials not configured")

	ErrInvalidArgument = errors.New("campaign: invalid argument")
)
