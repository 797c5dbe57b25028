package lock

import "errors"

// Lock-related errors.
var (
	// ErrLockTimeout is returned when a lock cannot be acquired within the timeout period.
	ErrLockTimeout = errors.New("lock acquisition timeout")

	// ErrInFlight is returned when the user already has a request in progress.
	ErrInFlight = errors.New("request already in progress")
)
