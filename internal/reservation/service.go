package reservation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"voicebot-platform/internal/schedule"
)

var (
	ErrInvalidInput  = errors.New("reservation: invalid input")
	ErrPhoneMismatch = errors.New("reservation: phone number does not match booking")
	ErrNotActive     = errors.New("reservation: booking is no longer active")
)

// Service owns reservation lifecycle and booking-policy enforcement.
// Callers identified by phone number may only touch their own bookings;
// staff paths pass an empty phone to skip that check.
type Service struct {
	repo   Repository
	policy *schedule.Policy
	clock  func() time.Time
}

func NewService(repo Repository, policy *schedule.Policy) *Service {
	return &Service{repo: repo, policy: policy, clock: time.Now}
}

// WithClock overrides the time source for tests.
func (s *Service) WithClock(clock func() time.Time) *Service {
	s.clock = clock
	return s
}

type CreateInput struct {
	PhoneNumber string
	GuestName   string
	PartySize   int
	SlotStart   time.Time
	Notes       string
}

// Create books a pending reservation. It stays pending until the caller
// confirms it; pending bookings hold capacity so a confirm cannot lose the
// table.
func (s *Service) Create(ctx context.Context, in CreateInput) (*Reservation, error) {
	if err := s.validateCreate(in); err != nil {
		return nil, err
	}
	now := s.clock().UTC()
	r := &Reservation{
		ID:          uuid.NewString(),
		PhoneNumber: in.PhoneNumber,
		GuestName:   strings.TrimSpace(in.GuestName),
		PartySize:   in.PartySize,
		SlotStart:   in.SlotStart.UTC(),
		Notes:       strings.TrimSpace(in.Notes),
		Status:      StatusPending,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.repo.CreateIfAvailable(ctx, r, s.capacityFor(r.SlotStart)); err != nil {
		return nil, err
	}
	return r, nil
}

// Confirm promotes a pending booking. Confirming an already confirmed
// booking is a no-op.
func (s *Service) Confirm(ctx context.Context, id, phone string) (*Reservation, error) {
	r, err := s.getOwned(ctx, id, phone)
	if err != nil {
		return nil, err
	}
	switch r.Status {
	case StatusConfirmed:
		return r, nil
	case StatusPending:
	default:
		return nil, fmt.Errorf("%w: status %s", ErrNotActive, r.Status)
	}
	r.Status = StatusConfirmed
	r.UpdatedAt = s.clock().UTC()
	if err := s.repo.Update(ctx, r); err != nil {
		return nil, err
	}
	return r, nil
}

type ModifyInput struct {
	GuestName *string
	PartySize *int
	SlotStart *time.Time
	Notes     *string
}

// Modify changes an active booking. Slot and party-size changes re-run the
// booking policy and the capacity check.
func (s *Service) Modify(ctx context.Context, id, phone string, in ModifyInput) (*Reservation, error) {
	r, err := s.getOwned(ctx, id, phone)
	if err != nil {
		return nil, err
	}
	if !r.Status.IsActive() {
		return nil, fmt.Errorf("%w: status %s", ErrNotActive, r.Status)
	}

	if in.GuestName != nil {
		name := strings.TrimSpace(*in.GuestName)
		if name == "" {
			return nil, fmt.Errorf("%w: guest name is required", ErrInvalidInput)
		}
		r.GuestName = name
	}
	if in.Notes != nil {
		r.Notes = strings.TrimSpace(*in.Notes)
	}
	if in.PartySize != nil {
		if err := s.policy.ValidatePartySize(*in.PartySize); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
		}
		r.PartySize = *in.PartySize
	}
	if in.SlotStart != nil {
		if err := s.policy.ValidateSlot(*in.SlotStart, s.clock()); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
		}
		r.SlotStart = in.SlotStart.UTC()
	}

	r.UpdatedAt = s.clock().UTC()
	if in.PartySize != nil || in.SlotStart != nil {
		if err := s.repo.UpdateIfAvailable(ctx, r, s.capacityFor(r.SlotStart)); err != nil {
			return nil, err
		}
		return r, nil
	}
	if err := s.repo.Update(ctx, r); err != nil {
		return nil, err
	}
	return r, nil
}

// Cancel releases a booking. Canceling an already canceled booking succeeds
// and changes nothing.
func (s *Service) Cancel(ctx context.Context, id, phone string) (*Reservation, error) {
	r, err := s.getOwned(ctx, id, phone)
	if err != nil {
		return nil, err
	}
	if r.Status == StatusCanceled {
		return r, nil
	}
	if !r.Status.IsActive() {
		return nil, fmt.Errorf("%w: status %s", ErrNotActive, r.Status)
	}
	now := s.clock().UTC()
	r.Status = StatusCanceled
	r.UpdatedAt = now
	r.CanceledAt = &now
	if err := s.repo.Update(ctx, r); err != nil {
		return nil, err
	}
	return r, nil
}

// Lookup returns the caller's upcoming active bookings.
func (s *Service) Lookup(ctx context.Context, phone string) ([]*Reservation, error) {
	if phone == "" {
		return nil, fmt.Errorf("%w: phone number is required", ErrInvalidInput)
	}
	return s.repo.ListByPhone(ctx, phone, s.clock().UTC())
}

// Get fetches one booking. A non-empty phone must match the booking.
func (s *Service) Get(ctx context.Context, id, phone string) (*Reservation, error) {
	return s.getOwned(ctx, id, phone)
}

// SlotAvailability describes one seating time's remaining capacity.
type SlotAvailability struct {
	Slot                  time.Time `json:"slot"`
	RemainingReservations int       `json:"remaining_reservations"`
	RemainingGuests       int       `json:"remaining_guests"`
}

// Availability lists each bookable slot on a date with remaining capacity.
func (s *Service) Availability(ctx context.Context, year int, month time.Month, day int) ([]SlotAvailability, error) {
	slots := s.policy.SlotsForDate(year, month, day)
	out := make([]SlotAvailability, 0, len(slots))
	for _, slot := range slots {
		start, end := s.policy.SlotBucket(slot)
		count, guests, err := s.repo.CountWindow(ctx, start.UTC(), end.UTC())
		if err != nil {
			return nil, err
		}
		remRes := s.policy.MaxReservationsPerSlot() - count
		if remRes < 0 {
			remRes = 0
		}
		remGuests := s.policy.MaxGuestsPerSlot() - guests
		if remGuests < 0 {
			remGuests = 0
		}
		out = append(out, SlotAvailability{
			Slot:                  slot.UTC(),
			RemainingReservations: remRes,
			RemainingGuests:       remGuests,
		})
	}
	return out, nil
}

// MarkCompleted and MarkNoShow are staff-only terminal transitions.
func (s *Service) MarkCompleted(ctx context.Context, id string) (*Reservation, error) {
	return s.finish(ctx, id, StatusCompleted)
}

func (s *Service) MarkNoShow(ctx context.Context, id string) (*Reservation, error) {
	return s.finish(ctx, id, StatusNoShow)
}

// List exposes bookings to the staff surface.
func (s *Service) List(ctx context.Context, f ListFilter) ([]*Reservation, error) {
	return s.repo.List(ctx, f)
}

func (s *Service) finish(ctx context.Context, id string, to Status) (*Reservation, error) {
	r, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !r.Status.IsActive() {
		return nil, fmt.Errorf("%w: status %s", ErrNotActive, r.Status)
	}
	r.Status = to
	r.UpdatedAt = s.clock().UTC()
	if err := s.repo.Update(ctx, r); err != nil {
		return nil, err
	}
	return r, nil
}

func (s *Service) getOwned(ctx context.Context, id, phone string) (*Reservation, error) {
	if id == "" {
		return nil, fmt.Errorf("%w: reservation id is required", ErrInvalidInput)
	}
	r, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if phone != "" && r.PhoneNumber != phone {
		return nil, ErrPhoneMismatch
	}
	return r, nil
}

func (s *Service) validateCreate(in CreateInput) error {
	if in.PhoneNumber == "" {
		return fmt.Errorf("%w: phone number is required", ErrInvalidInput)
	}
	if strings.TrimSpace(in.GuestName) == "" {
		return fmt.Errorf("%w: guest name is required", ErrInvalidInput)
	}
	if err := s.policy.ValidatePartySize(in.PartySize); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	if err := s.policy.ValidateSlot(in.SlotStart, s.clock()); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	return nil
}

func (s *Service) capacityFor(slot time.Time) CapacityLimit {
	start, end := s.policy.SlotBucket(slot)
	return CapacityLimit{
		WindowStart:     start.UTC(),
		WindowEnd:       end.UTC(),
		MaxReservations: s.policy.MaxReservationsPerSlot(),
		MaxGuests:       s.policy.MaxGuestsPerSlot(),
	}
}
