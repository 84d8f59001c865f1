package reservation

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryRepo is an in-memory Repository for tests and local development.
// Capacity checks run under the repo mutex, matching the atomicity the
// Postgres implementation gets from its transaction.
type MemoryRepo struct {
	mu   sync.Mutex
	rows map[string]*Reservation
}

func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{rows: make(map[string]*Reservation)}
}

func (m *MemoryRepo) CreateIfAvailable(_ context.Context, r *Reservation, limit CapacityLimit) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	count, guests := m.countWindowLocked(limit.WindowStart, limit.WindowEnd, "")
	if count >= limit.MaxReservations || guests+r.PartySize > limit.MaxGuests {
		return ErrSlotUnavailable
	}
	cp := *r
	m.rows[r.ID] = &cp
	return nil
}

func (m *MemoryRepo) UpdateIfAvailable(_ context.Context, r *Reservation, limit CapacityLimit) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.rows[r.ID]; !ok {
		return ErrNotFound
	}
	count, guests := m.countWindowLocked(limit.WindowStart, limit.WindowEnd, r.ID)
	if count >= limit.MaxReservations || guests+r.PartySize > limit.MaxGuests {
		return ErrSlotUnavailable
	}
	cp := *r
	m.rows[r.ID] = &cp
	return nil
}

func (m *MemoryRepo) Update(_ context.Context, r *Reservation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.rows[r.ID]; !ok {
		return ErrNotFound
	}
	cp := *r
	m.rows[r.ID] = &cp
	return nil
}

func (m *MemoryRepo) Get(_ context.Context, id string) (*Reservation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rows[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *r
	return &cp, nil
}

func (m *MemoryRepo) ListByPhone(_ context.Context, phone string, from time.Time) ([]*Reservation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []*Reservation
	for _, r := range m.rows {
		if r.PhoneNumber != phone || !r.Status.IsActive() || r.SlotStart.Before(from) {
			continue
		}
		cp := *r
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SlotStart.Before(out[j].SlotStart) })
	return out, nil
}

func (m *MemoryRepo) CountWindow(_ context.Context, start, end time.Time) (int, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	count, guests := m.countWindowLocked(start, end, "")
	return count, guests, nil
}

func (m *MemoryRepo) List(_ context.Context, f ListFilter) ([]*Reservation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []*Reservation
	for _, r := range m.rows {
		if f.Status != "" && r.Status != f.Status {
			continue
		}
		if !f.From.IsZero() && r.SlotStart.Before(f.From) {
			continue
		}
		if !f.To.IsZero() && !r.SlotStart.Before(f.To) {
			continue
		}
		cp := *r
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SlotStart.Before(out[j].SlotStart) })

	if f.Offset > 0 {
		if f.Offset >= len(out) {
			return nil, nil
		}
		out = out[f.Offset:]
	}
	limit := f.Limit
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *MemoryRepo) countWindowLocked(start, end time.Time, excludeID string) (count, guests int) {
	for _, r := range m.rows {
		if r.ID == excludeID || !r.Status.IsActive() {
			continue
		}
		if r.SlotStart.Before(start) || !r.SlotStart.Before(end) {
			continue
		}
		count++
		guests += r.PartySize
	}
	return count, guests
}
