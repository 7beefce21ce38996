package core

import "context"

// Handle is a live session resource (e.g. a browser) handed out by a
// ResourceManager. Close is called at run teardown.
type Handle interface {
	Close() error
}

// ResourceManager hands out at most one live handle per resource kind per
// run, creating it lazily on first demand. Implementations must guarantee a
// single initializer even under concurrent Acquire calls, idempotent
// Release, and a bounded retry window after a failed initialization.
type ResourceManager interface {
	// Acquire returns the cached handle for kind, initializing it exactly
	// once. Concurrent acquirers block until initialization completes and
	// share the result.
	Acquire(ctx context.Context, kind string) (Handle, error)

	// Release closes and forgets the handle for kind. Safe to call multiple
	// times.
	Release(kind string) error

	// ReleaseAll releases every live handle. Invoked at run teardown.
	ReleaseAll() error
}
