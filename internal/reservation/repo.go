package reservation

import (
	"context"
	"errors"
	"time"
)

var (
	ErrNotFound        = errors.New("reservation: not found")
	ErrSlotUnavailable = errors.New("reservation: slot is fully booked")
)

// CapacityLimit bounds one seating window.
type CapacityLimit struct {
	WindowStart     time.Time
	WindowEnd       time.Time
	MaxReservations int
	MaxGuests       int
}

// Repository is the persistence contract for reservations.
//
// CreateIfAvailable and UpdateIfAvailable perform the capacity check and the
// write atomically; two callers racing for the last table cannot both win.
type Repository interface {
	CreateIfAvailable(ctx context.Context, r *Reservation, limit CapacityLimit) error
	UpdateIfAvailable(ctx context.Context, r *Reservation, limit CapacityLimit) error

	// Update writes without a capacity check. Used for status-only changes
	// (cancel, complete, no-show) that never add load to a slot.
	Update(ctx context.Context, r *Reservation) error

	Get(ctx context.Context, id string) (*Reservation, error)

	// ListByPhone returns active bookings for a phone number with
	// SlotStart >= from, soonest first.
	ListByPhone(ctx context.Context, phone string, from time.Time) ([]*Reservation, error)

	// CountWindow tallies active bookings overlapping [start, end).
	CountWindow(ctx context.Context, start, end time.Time) (reservations, guests int, err error)

	// List returns bookings for the staff surface, soonest first.
	List(ctx context.Context, f ListFilter) ([]*Reservation, error)
}

// ListFilter narrows List results. Zero values mean "no filter".
type ListFilter struct {
	Status Status
	From   time.Time
	To     time.Time
	Limit  int
	Offset int
}
