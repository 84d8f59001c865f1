package session

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
)

// MemoryStore is an in-memory Store for tests and local development.
// It applies the same optimistic-concurrency rules as PostgresStore.
type MemoryStore struct {
	mu   sync.Mutex
	rows map[string]*CallSession
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{rows: make(map[string]*CallSession)}
}

func (m *MemoryStore) Load(_ context.Context, callID string) (*CallSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	stored, ok := m.rows[callID]
	if !ok {
		return nil, ErrNotFound
	}
	return clone(stored), nil
}

func (m *MemoryStore) Save(_ context.Context, s *CallSession, expectedVersion int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	stored, ok := m.rows[s.CallID]
	if expectedVersion == 0 {
		if ok {
			return ErrAlreadyExists
		}
		s.Version = 1
		m.rows[s.CallID] = clone(s)
		return nil
	}
	if !ok || stored.Version != expectedVersion {
		return ErrVersionConflict
	}
	s.Version = expectedVersion + 1
	m.rows[s.CallID] = clone(s)
	return nil
}

func (m *MemoryStore) List(_ context.Context, f ListFilter) ([]*CallSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []*CallSession
	for _, stored := range m.rows {
		if f.Status != "" && stored.Status != f.Status {
			continue
		}
		if f.PhoneNumber != "" && stored.PhoneNumber != f.PhoneNumber {
			continue
		}
		out = append(out, clone(stored))
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].StartedAt.After(out[j].StartedAt)
	})

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

// clone deep-copies via JSON so callers cannot mutate stored rows.
func clone(s *CallSession) *CallSession {
	b, err := json.Marshal(s)
	if err != nil {
		panic(err)
	}
	var out CallSession
	if err := json.Unmarshal(b, &out); err != nil {
		panic(err)
	}
	out.Version = s.Version
	return &out
}
