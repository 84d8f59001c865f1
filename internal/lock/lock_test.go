package lock

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestAcquireIsExclusive(t *testing.T) {
	l := NewMemoryLocker()
	ctx := context.Background()

	token, err := l.Acquire(ctx, "CA1", 30*time.Second)
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	if token == "" {
		t.Fatalf("expected non-empty token")
	}

	if _, err := l.Acquire(ctx, "CA1", 30*time.Second); !errors.Is(err, ErrAlreadyLocked) {
		t.Fatalf("expected ErrAlreadyLocked, got %v", err)
	}

	// A different call is unaffected.
	if _, err := l.Acquire(ctx, "CA2", 30*time.Second); err != nil {
		t.Fatalf("acquire other call: %v", err)
	}
}

func TestReleaseThenReacquire(t *testing.T) {
	l := NewMemoryLocker()
	ctx := context.Background()

	token, err := l.Acquire(ctx, "CA1", 30*time.Second)
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	if err := l.Release(ctx, "CA1", token); err != nil {
		t.Fatalf("release: %v", err)
	}
	if _, err := l.Acquire(ctx, "CA1", 30*time.Second); err != nil {
		t.Fatalf("reacquire: %v", err)
	}
}

func TestReleaseWithWrongToken(t *testing.T) {
	l := NewMemoryLocker()
	ctx := context.Background()

	if _, err := l.Acquire(ctx, "CA1", 30*time.Second); err != nil {
		t.Fatalf("acquire: %v", err)
	}
	if err := l.Release(ctx, "CA1", "bogus"); !errors.Is(err, ErrNotHeld) {
		t.Fatalf("expected ErrNotHeld, got %v", err)
	}
}

func TestExpiredLeaseCanBeTakenOver(t *testing.T) {
	now := time.Now()
	l := NewMemoryLocker().WithClock(func() time.Time { return now })
	ctx := context.Background()

	stale, err := l.Acquire(ctx, "CA1", 30*time.Second)
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}

	now = now.Add(31 * time.Second)

	// New holder takes over after expiry.
	if _, err := l.Acquire(ctx, "CA1", 30*time.Second); err != nil {
		t.Fatalf("takeover after expiry: %v", err)
	}

	// The old token must not be able to free the new holder's lock.
	if err := l.Release(ctx, "CA1", stale); !errors.Is(err, ErrNotHeld) {
		t.Fatalf("expected ErrNotHeld for stale token, got %v", err)
	}
}
