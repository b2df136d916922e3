package pool

import "errors"

var (
	// ErrDraining is returned by Acquire once Drain has been called.
	ErrDraining = errors.New("pool is draining")

	// ErrClosed is returned by Acquire after the pool has been cleared and closed.
	ErrClosed = errors.New("pool is closed")

	// ErrInvalidSize is returned by New when Min/Max are inconsistent.
	ErrInvalidSize = errors.New("invalid pool size")
)
