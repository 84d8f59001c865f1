package audit

import "time"

// Entry is an append-only audit record. Entries are never updated or
// deleted; corrections are recorded as new entries.
type Entry struct {
	ID         int64  `json:"id" db:"id"`
	Action     string `json:"action" db:"action"`
	EntityType string `json:"entity_type" db:"entity_type"`
	EntityID   string `json:"entity_id" db:"entity_id"`

	// ActorCallID is the phone call on whose behalf the action ran.
	// Empty for staff-initiated actions, which set ActorStaffID instead.
	ActorCallID  string `json:"actor_call_id,omitempty" db:"actor_call_id"`
	ActorStaffID string `json:"actor_staff_id,omitempty" db:"actor_staff_id"`

	Metadata  map[string]any `json:"metadata,omitempty" db:"metadata"`
	CreatedAt time.Time      `json:"created_at" db:"created_at"`
}

// Entity types used across the platform.
const (
	EntityReservation = "reservation"
	EntityCallSession = "call_session"
	EntityTool        = "tool"
)

// Actions recorded by the call engine and the staff API.
const (
	ActionToolInvoked          = "tool.invoked"
	ActionToolFailed           = "tool.failed"
	ActionToolDeduplicated     = "tool.deduplicated"
	ActionCallStarted          = "call.started"
	ActionCallCompleted        = "call.completed"
	ActionCallFailed           = "call.failed"
	ActionCallAbandoned        = "call.abandoned"
	ActionReservationCreated   = "reservation.created"
	ActionReservationUpdated   = "reservation.updated"
	ActionReservationCanceled  = "reservation.canceled"
	ActionReservationConfirmed = "reservation.confirmed"
)
