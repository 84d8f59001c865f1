package lock

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryLocker is an in-process Locker for tests and local development.
// Lease expiry is checked lazily on the next Acquire/Release.
type MemoryLocker struct {
	mu    sync.Mutex
	held  map[string]memoryLease
	clock func() time.Time
}

type memoryLease struct {
	token     string
	expiresAt time.Time
}

func NewMemoryLocker() *MemoryLocker {
	return &MemoryLocker{held: make(map[string]memoryLease), clock: time.Now}
}

// WithClock overrides the time source for expiry tests.
func (l *MemoryLocker) WithClock(clock func() time.Time) *MemoryLocker {
	l.clock = clock
	return l
}

func (l *MemoryLocker) Acquire(_ context.Context, callID string, lease time.Duration) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.clock()
	if cur, ok := l.held[callID]; ok && now.Before(cur.expiresAt) {
		return "", ErrAlreadyLocked
	}
	token := uuid.NewString()
	l.held[callID] = memoryLease{token: token, expiresAt: now.Add(lease)}
	return token, nil
}

func (l *MemoryLocker) Release(_ context.Context, callID, token string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	cur, ok := l.held[callID]
	if !ok || cur.token != token || !l.clock().Before(cur.expiresAt) {
		return ErrNotHeld
	}
	delete(l.held, callID)
	return nil
}
