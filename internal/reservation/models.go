package reservation

import "time"

// Reservation is a booking for one party at one seating time.
type Reservation struct {
	ID          string    `json:"id" db:"id"`
	PhoneNumber string    `json:"phone_number" db:"phone_number"`
	GuestName   string    `json:"guest_name" db:"guest_name"`
	PartySize   int       `json:"party_size" db:"party_size"`
	SlotStart   time.Time `json:"slot_start" db:"slot_start"`
	Notes       string    `json:"notes,omitempty" db:"notes"`
	Status      Status    `json:"status" db:"status"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time `json:"updated_at" db:"updated_at"`

	// CanceledAt is set once, when the booking moves to canceled.
	CanceledAt *time.Time `json:"canceled_at,omitempty" db:"canceled_at"`
}

type Status string

const (
	// StatusPending is a booking proposed during a call, not yet confirmed
	// by the caller. Pending bookings hold capacity.
	StatusPending   Status = "pending"
	StatusConfirmed Status = "confirmed"
	StatusCanceled  Status = "canceled"
	StatusCompleted Status = "completed"
	StatusNoShow    Status = "no_show"
)

// IsActive reports whether the booking still holds capacity.
func (s Status) IsActive() bool {
	return s == StatusPending || s == StatusConfirmed
}
