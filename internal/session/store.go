package session

import (
	"context"
	"errors"
)

var (
	// ErrNotFound indicates no session exists for the call id.
	ErrNotFound = errors.New("session: not found")

	// ErrVersionConflict indicates the stored version did not match the
	// expected version passed to Save. The caller's snapshot is stale.
	ErrVersionConflict = errors.New("session: version conflict")

	// ErrAlreadyExists indicates an insert raced with another writer.
	ErrAlreadyExists = errors.New("session: already exists")
)

// Store persists call sessions with optimistic concurrency control.
//
// Save semantics:
//   - expectedVersion == 0: insert a new session; on success the stored
//     and in-memory Version become 1. A concurrent insert yields
//     ErrAlreadyExists.
//   - expectedVersion > 0: update only if the stored version equals
//     expectedVersion; on success Version becomes expectedVersion+1.
//     A mismatch yields ErrVersionConflict and writes nothing.
type Store interface {
	Load(ctx context.Context, callID string) (*CallSession, error)
	Save(ctx context.Context, s *CallSession, expectedVersion int64) error

	// List returns recent sessions for the admin surface, newest first.
	List(ctx context.Context, f ListFilter) ([]*CallSession, error)
}

// ListFilter narrows List results. Zero values mean "no filter".
type ListFilter struct {
	Status      CallStatus
	PhoneNumber string
	Limit       int
	Offset      int
}
