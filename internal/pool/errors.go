package pool

import "errors"

// Domain errors for the pool package.
var (
	// ErrPoolExhausted is returned when no session became free before the
	// acquire timeout or the caller's context ended.
	ErrPoolExhausted = errors.New("pool: exhausted")

	// ErrPoolClosed is returned by Acquire once Shutdown has begun.
	ErrPoolClosed = errors.New("pool: closed")

	// ErrInvalidRelease is returned when a session is released that the pool
	// did not lend, or that was already released.
	ErrInvalidRelease = errors.New("pool: session not on loan")

	// ErrConnect wraps failures to open a new session.
	ErrConnect = errors.New("pool: failed to open session")
)
