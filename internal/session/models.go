package session

import (
	"encoding/json"
	"time"
)

// CallSession is the durable record of one phone call.
//
// Invariants:
// - Version increases by exactly 1 on every successful persist.
// - Turns are append-only within a call.
// - Status/CurrentStep/Intent/ErrorCount are owned by the call session engine;
//   no other component writes them.
type CallSession struct {
	CallID      string `json:"call_id" db:"call_id"`
	PhoneNumber string `json:"phone_number" db:"phone_number"`

	Status      CallStatus `json:"status" db:"status"`
	CurrentStep string     `json:"current_step" db:"current_step"`
	Intent      Intent     `json:"intent" db:"intent"`

	// Turns is the ordered conversation history (caller, assistant, tool).
	Turns []Turn `json:"turns"`

	// Pending confirmation bookkeeping. Set while Status == awaiting_confirmation.
	// PendingArguments holds the gated tool call's arguments so a caller
	// "yes" replays exactly what was proposed.
	PendingReservationID string          `json:"pending_reservation_id,omitempty"`
	PendingAction        string          `json:"pending_action,omitempty"`
	PendingArguments     json.RawMessage `json:"pending_arguments,omitempty"`
	ConfirmAttempts      int             `json:"confirm_attempts,omitempty"`

	// GeneratorDone records that the turn generator signaled call-end intent.
	// Used to pick completed vs abandoned when the transport reports a hangup.
	GeneratorDone bool `json:"generator_done,omitempty"`

	// ErrorCount counts consecutive tool/generation failures; drives escalation.
	ErrorCount int `json:"error_count" db:"error_count"`

	StartedAt   time.Time  `json:"started_at" db:"started_at"`
	UpdatedAt   time.Time  `json:"updated_at" db:"updated_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty" db:"completed_at"`

	// Version is the optimistic-concurrency counter. 0 means not yet persisted.
	Version int64 `json:"version" db:"version"`
}

type CallStatus string

const (
	StatusRinging              CallStatus = "ringing"
	StatusInProgress           CallStatus = "in_progress"
	StatusAwaitingConfirmation CallStatus = "awaiting_confirmation"
	StatusCompleted            CallStatus = "completed"
	StatusFailed               CallStatus = "failed"
	StatusAbandoned            CallStatus = "abandoned"
)

// IsTerminal reports whether no further turns may be processed.
func (s CallStatus) IsTerminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusAbandoned:
		return true
	default:
		return false
	}
}

type Intent string

const (
	IntentReservationCreate Intent = "reservation_create"
	IntentReservationModify Intent = "reservation_modify"
	IntentReservationCancel Intent = "reservation_cancel"
	IntentLookup            Intent = "lookup"
	IntentGeneralInquiry    Intent = "general_inquiry"
	IntentUnknown           Intent = "unknown"
)

type Role string

const (
	RoleCaller    Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// ToolCallRecord captures a tool invocation made during a turn.
type ToolCallRecord struct {
	Tool       string          `json:"tool"`
	Arguments  json.RawMessage `json:"arguments,omitempty"`
	DedupToken string          `json:"dedup_token,omitempty"`
	Outcome    string          `json:"outcome,omitempty"`
}

// Turn is one entry of the conversation history.
type Turn struct {
	Role     Role            `json:"role"`
	Content  string          `json:"content,omitempty"`
	ToolCall *ToolCallRecord `json:"tool_call,omitempty"`
	At       time.Time       `json:"at"`
}

// legalEdges encodes the allowed status transitions.
var legalEdges = map[CallStatus][]CallStatus{
	StatusRinging:              {StatusInProgress, StatusFailed, StatusAbandoned},
	StatusInProgress:           {StatusAwaitingConfirmation, StatusCompleted, StatusFailed, StatusAbandoned},
	StatusAwaitingConfirmation: {StatusInProgress, StatusCompleted, StatusFailed, StatusAbandoned},
}

// CanTransition reports whether from -> to is a legal edge.
func CanTransition(from, to CallStatus) bool {
	for _, next := range legalEdges[from] {
		if next == to {
			return true
		}
	}
	return false
}

// New returns a fresh session in the ringing state.
func New(callID, phoneNumber string, now time.Time) *CallSession {
	return &CallSession{
		CallID:      callID,
		PhoneNumber: phoneNumber,
		Status:      StatusRinging,
		CurrentStep: "greeting",
		Intent:      IntentUnknown,
		StartedAt:   now.UTC(),
		UpdatedAt:   now.UTC(),
	}
}

// Transition moves the session to a new status, enforcing the legal edges.
// Terminal statuses set CompletedAt.
func (s *CallSession) Transition(to CallStatus, now time.Time) error {
	if s.Status == to {
		return nil
	}
	if !CanTransition(s.Status, to) {
		return &IllegalTransitionError{From: s.Status, To: to}
	}
	s.Status = to
	s.UpdatedAt = now.UTC()
	if to.IsTerminal() {
		t := now.UTC()
		s.CompletedAt = &t
	}
	return nil
}

// AppendTurn appends to the conversation history. History is append-only;
// callers must not rewrite earlier turns.
func (s *CallSession) AppendTurn(t Turn) {
	s.Turns = append(s.Turns, t)
}

// ClearPending resets confirmation bookkeeping after a confirm or decline.
func (s *CallSession) ClearPending() {
	s.PendingReservationID = ""
	s.PendingAction = ""
	s.PendingArguments = nil
	s.ConfirmAttempts = 0
}

// IllegalTransitionError reports a state-machine edge violation.
type IllegalTransitionError struct {
	From CallStatus
	To   CallStatus
}

func (e *IllegalTransitionError) Error() string {
	return "session: illegal transition " + string(e.From) + " -> " + string(e.To)
}
