// Package schedule evaluates the restaurant's operating hours and booking
// rules. It is pure policy: no storage, no transport.
package schedule

import (
	"errors"
	"fmt"
	"time"

	"voicebot-platform/internal/config"
)

var (
	ErrOutsideHours   = errors.New("schedule: requested time is outside operating hours")
	ErrBadGranularity = errors.New("schedule: requested time is not on a bookable slot boundary")
	ErrTooSoon        = errors.New("schedule: requested time is inside the minimum lead time")
	ErrBeyondHorizon  = errors.New("schedule: requested time is beyond the booking horizon")
	ErrPartySize      = errors.New("schedule: party size is out of range")
)

// Policy answers "is this slot bookable" questions from the restaurant
// configuration. All reasoning happens in the restaurant's timezone.
type Policy struct {
	loc          *time.Location
	openMinutes  int
	closeMinutes int

	granularity       time.Duration
	lastSeatingOffset time.Duration
	minLeadTime       time.Duration
	slotDuration      time.Duration
	maxHorizonDays    int

	minPartySize int
	maxPartySize int

	maxReservationsPerSlot int
	maxGuestsPerSlot       int
}

func NewPolicy(cfg config.RestaurantConfig) (*Policy, error) {
	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		return nil, fmt.Errorf("schedule: load timezone %q: %w", cfg.Timezone, err)
	}
	open, err := parseClock(cfg.OpenTime)
	if err != nil {
		return nil, fmt.Errorf("schedule: open time: %w", err)
	}
	closeAt, err := parseClock(cfg.CloseTime)
	if err != nil {
		return nil, fmt.Errorf("schedule: close time: %w", err)
	}
	if closeAt <= open {
		return nil, fmt.Errorf("schedule: close time %s is not after open time %s", cfg.CloseTime, cfg.OpenTime)
	}
	return &Policy{
		loc:                    loc,
		openMinutes:            open,
		closeMinutes:           closeAt,
		granularity:            time.Duration(cfg.SlotGranularityMinutes) * time.Minute,
		lastSeatingOffset:      time.Duration(cfg.LastSeatingOffsetMinutes) * time.Minute,
		minLeadTime:            time.Duration(cfg.MinLeadTimeMinutes) * time.Minute,
		slotDuration:           time.Duration(cfg.SlotDurationMinutes) * time.Minute,
		maxHorizonDays:         cfg.MaxHorizonDays,
		minPartySize:           cfg.MinPartySize,
		maxPartySize:           cfg.MaxPartySize,
		maxReservationsPerSlot: cfg.MaxReservationsPerSlot,
		maxGuestsPerSlot:       cfg.MaxGuestsPerSlot,
	}, nil
}

// Location is the restaurant's timezone.
func (p *Policy) Location() *time.Location { return p.loc }

// SlotDuration is how long one seating occupies a table.
func (p *Policy) SlotDuration() time.Duration { return p.slotDuration }

// MaxReservationsPerSlot bounds concurrent bookings sharing a slot.
func (p *Policy) MaxReservationsPerSlot() int { return p.maxReservationsPerSlot }

// MaxGuestsPerSlot bounds total covers sharing a slot.
func (p *Policy) MaxGuestsPerSlot() int { return p.maxGuestsPerSlot }

// ValidatePartySize checks the configured party-size range.
func (p *Policy) ValidatePartySize(size int) error {
	if size < p.minPartySize || size > p.maxPartySize {
		return fmt.Errorf("%w: %d (allowed %d-%d)", ErrPartySize, size, p.minPartySize, p.maxPartySize)
	}
	return nil
}

// ValidateSlot checks a requested seating time against operating hours,
// slot granularity, lead time and the booking horizon. now is the caller's
// wall clock; both times may be in any zone.
func (p *Policy) ValidateSlot(requested, now time.Time) error {
	local := requested.In(p.loc)

	if local.Minute()%int(p.granularity.Minutes()) != 0 || local.Second() != 0 || local.Nanosecond() != 0 {
		return ErrBadGranularity
	}

	minutes := local.Hour()*60 + local.Minute()
	lastSeating := p.closeMinutes - int(p.lastSeatingOffset.Minutes())
	if minutes < p.openMinutes || minutes > lastSeating {
		return ErrOutsideHours
	}

	if local.Sub(now) < p.minLeadTime {
		return ErrTooSoon
	}

	horizon := now.In(p.loc).AddDate(0, 0, p.maxHorizonDays)
	if local.After(horizon) {
		return ErrBeyondHorizon
	}
	return nil
}

// SlotsForDate lists every bookable seating time on the given calendar date
// (restaurant timezone), ignoring lead time and capacity.
func (p *Policy) SlotsForDate(year int, month time.Month, day int) []time.Time {
	var out []time.Time
	lastSeating := p.closeMinutes - int(p.lastSeatingOffset.Minutes())
	step := int(p.granularity.Minutes())
	for m := p.openMinutes; m <= lastSeating; m += step {
		out = append(out, time.Date(year, month, day, m/60, m%60, 0, 0, p.loc))
	}
	return out
}

// Window returns the interval a seating at slot occupies the table.
func (p *Policy) Window(slot time.Time) (start, end time.Time) {
	return slot, slot.Add(p.slotDuration)
}

// SlotBucket returns the interval that groups bookings into one capacity
// bucket. Per-slot limits apply to bookings sharing a bucket.
func (p *Policy) SlotBucket(slot time.Time) (start, end time.Time) {
	return slot, slot.Add(p.granularity)
}

func parseClock(v string) (int, error) {
	t, err := time.Parse("15:04", v)
	if err != nil {
		return 0, fmt.Errorf("invalid HH:MM value %q", v)
	}
	return t.Hour()*60 + t.Minute(), nil
}
