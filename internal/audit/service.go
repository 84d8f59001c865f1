package audit

import (
	"context"
	"errors"
	"time"
)

// Repository is the persistence contract for audit entries.
//
// It MUST be append-only.
// No Update/Delete methods are provided by design.

type Repository interface {
	Append(ctx context.Context, e Entry) error
	List(ctx context.Context, f ListFilter) ([]Entry, error)
}

// ListFilter narrows List results. Zero values mean "no filter".
type ListFilter struct {
	EntityType string
	EntityID   string
	Action     string
	Limit      int
	Offset     int
}

// Service records internal audit information.
//
// IMPORTANT:
// - Audit entries are staff/admin-facing only. Never speak them to callers.
// - A failed audit append fails the surrounding operation; every tool
//   invocation attempt must leave exactly one entry.

type Service struct {
	repo  Repository
	clock func() time.Time
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo, clock: time.Now}
}

// WithClock overrides the time source for tests.
func (s *Service) WithClock(clock func() time.Time) *Service {
	s.clock = clock
	return s
}

var ErrInvalidEntry = errors.New("audit: invalid entry")

func (s *Service) Append(ctx context.Context, e Entry) error {
	if s.repo == nil {
		return errors.New("audit: repository not configured")
	}
	if e.Action == "" || e.EntityType == "" {
		return ErrInvalidEntry
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = s.clock().UTC()
	}
	return s.repo.Append(ctx, e)
}

// RecordToolAttempt writes the single audit entry for one tool invocation
// attempt, successful or not.
func (s *Service) RecordToolAttempt(ctx context.Context, callID, tool, entityType, entityID, outcome string, metadata map[string]any) error {
	action := ActionToolInvoked
	switch outcome {
	case "error":
		action = ActionToolFailed
	case "deduplicated":
		action = ActionToolDeduplicated
	}
	if metadata == nil {
		metadata = map[string]any{}
	}
	metadata["tool"] = tool
	metadata["outcome"] = outcome
	return s.Append(ctx, Entry{
		Action:      action,
		EntityType:  entityType,
		EntityID:    entityID,
		ActorCallID: callID,
		Metadata:    metadata,
	})
}

// RecordCallEvent marks a call lifecycle change (started, completed, failed,
// abandoned).
func (s *Service) RecordCallEvent(ctx context.Context, action, callID string, metadata map[string]any) error {
	return s.Append(ctx, Entry{
		Action:      action,
		EntityType:  EntityCallSession,
		EntityID:    callID,
		ActorCallID: callID,
		Metadata:    metadata,
	})
}

// RecordStaffAction records a staff-initiated change on a reservation.
func (s *Service) RecordStaffAction(ctx context.Context, action, staffID, entityType, entityID string, metadata map[string]any) error {
	return s.Append(ctx, Entry{
		Action:       action,
		EntityType:   entityType,
		EntityID:     entityID,
		ActorStaffID: staffID,
		Metadata:     metadata,
	})
}

// List exposes audit entries to the admin surface.
func (s *Service) List(ctx context.Context, f ListFilter) ([]Entry, error) {
	if s.repo == nil {
		return nil, errors.New("audit: repository not configured")
	}
	return s.repo.List(ctx, f)
}
