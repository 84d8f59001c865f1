// Package lock provides the per-call turn lock. At most one turn per call
// may be in flight; a second concurrent turn is rejected fast rather than
// queued.
package lock

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrAlreadyLocked indicates another turn holds the call's lock.
	ErrAlreadyLocked = errors.New("lock: already locked")

	// ErrNotHeld indicates the release token no longer owns the lock,
	// either because the lease expired or another holder took over.
	ErrNotHeld = errors.New("lock: not held")
)

// Locker serializes turn processing per call.
//
// Acquire is fail-fast: it never blocks waiting for the current holder.
// The lease bounds how long a crashed holder can wedge a call.
type Locker interface {
	// Acquire takes the lock for callID with the given lease and returns
	// an opaque ownership token. ErrAlreadyLocked if held.
	Acquire(ctx context.Context, callID string, lease time.Duration) (token string, err error)

	// Release frees the lock if token still owns it. ErrNotHeld otherwise.
	Release(ctx context.Context, callID string, token string) error
}
