// Package telephony is the provider adapter boundary. It translates
// provider webhooks into normalized call events and engine replies into
// provider markup. No business logic lives here.
package telephony

import "time"

// EventKind classifies normalized inbound call events.
type EventKind string

const (
	// EventCallStarted fires when the provider connects a new call.
	EventCallStarted EventKind = "call_started"
	// EventUtterance carries one transcribed caller utterance.
	EventUtterance EventKind = "utterance"
	// EventCallEnded fires when the provider reports the call is over.
	EventCallEnded EventKind = "call_ended"
)

// CallEvent is the provider-agnostic inbound event handed to the engine.
type CallEvent struct {
	Kind EventKind `json:"kind"`

	// CallID is the provider's unique identifier for the call.
	CallID string `json:"call_id"`

	// From and To are E.164 where possible.
	From string `json:"from"`
	To   string `json:"to"`

	// Utterance is the caller's transcribed speech (utterance events).
	Utterance string `json:"utterance,omitempty"`

	// EndedReason is the provider call status on call_ended events.
	EndedReason string `json:"ended_reason,omitempty"`

	OccurredAt time.Time `json:"occurred_at"`
}

// Reply is what the engine wants spoken back, rendered by the adapter.
type Reply struct {
	// Say is the text to speak.
	Say string

	// Hangup ends the call after speaking instead of listening again.
	Hangup bool

	// GatherAction is the webhook URL the provider posts the next
	// utterance to. Required unless Hangup is set.
	GatherAction string
}
