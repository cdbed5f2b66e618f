package core

import "errors"

// Remote persistence failures. Adapters wrap one of these so callers can
// branch with errors.Is regardless of the backend.
var (
	// ErrRemoteUnavailable is a transport failure: network, timeout, 5xx.
	ErrRemoteUnavailable = errors.New("remote unavailable")
	// ErrRemoteRejected is a validation or authorization refusal.
	ErrRemoteRejected = errors.New("remote rejected")
	// ErrNotFound means a mutation targeted an id the remote does not hold.
	// The caller's view is stale and should be refreshed.
	ErrNotFound = errors.New("record not found")
)

var (
	ErrNoOwner            = errors.New("no active owner")
	ErrDescriptionTooLong = errors.New("description too long (max 200 characters)")
)

// ErrOwnerMismatch is returned when a mutation carries a record owned by
// someone other than the coordinator's owner.
var ErrOwnerMismatch = errors.New("record belongs to another owner")
