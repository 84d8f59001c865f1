package tools

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"reflect"
	"sync"
	"time"
)

var (
	// ErrDedupMiss indicates no stored invocation for the token.
	ErrDedupMiss = errors.New("tools: no deduplicated result")

	// ErrDedupConflict indicates the token was already spent on a call
	// with different arguments. A replay is only valid for the exact
	// invocation that was stored.
	ErrDedupConflict = errors.New("tools: token already used with different arguments")
)

// Invocation is one recorded effectful tool call: the arguments it ran
// with and the result it produced.
type Invocation struct {
	Arguments json.RawMessage `json:"arguments"`
	Result    Result          `json:"result"`
}

// DedupStore remembers each effectful tool invocation by token, so a
// retried turn replays the stored result instead of applying the side
// effect again. The stored arguments let the caller verify the retry is
// the same invocation.
type DedupStore interface {
	Get(ctx context.Context, token string) (Invocation, error)
	Put(ctx context.Context, token string, inv Invocation) error
}

// SameArguments reports whether two argument payloads are the same JSON
// value. Key order and whitespace do not matter.
func SameArguments(a, b json.RawMessage) bool {
	if len(a) == 0 {
		a = json.RawMessage(`{}`)
	}
	if len(b) == 0 {
		b = json.RawMessage(`{}`)
	}
	var av, bv any
	if err := json.Unmarshal(a, &av); err != nil {
		return false
	}
	if err := json.Unmarshal(b, &bv); err != nil {
		return false
	}
	return reflect.DeepEqual(av, bv)
}

// MemoryDedupStore is an in-memory DedupStore for tests.
type MemoryDedupStore struct {
	mu   sync.Mutex
	rows map[string]Invocation
}

func NewMemoryDedupStore() *MemoryDedupStore {
	return &MemoryDedupStore{rows: make(map[string]Invocation)}
}

func (m *MemoryDedupStore) Get(_ context.Context, token string) (Invocation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	inv, ok := m.rows[token]
	if !ok {
		return Invocation{}, ErrDedupMiss
	}
	return inv, nil
}

func (m *MemoryDedupStore) Put(_ context.Context, token string, inv Invocation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.rows[token]; exists {
		return nil
	}
	m.rows[token] = inv
	return nil
}

// PostgresDedupStore persists invocations in tool_invocations.
type PostgresDedupStore struct {
	db *sql.DB
}

func NewPostgresDedupStore(db *sql.DB) *PostgresDedupStore {
	return &PostgresDedupStore{db: db}
}

// EnsureSchema creates the tool_invocations table if missing.
func (s *PostgresDedupStore) EnsureSchema(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
CREATE TABLE IF NOT EXISTS tool_invocations (
    token      TEXT PRIMARY KEY,
    arguments  JSONB NOT NULL,
    result     JSONB NOT NULL,
    created_at TIMESTAMPTZ NOT NULL
);
`)
	return err
}

func (s *PostgresDedupStore) Get(ctx context.Context, token string) (Invocation, error) {
	var args, res []byte
	err := s.db.QueryRowContext(ctx, `
SELECT arguments, result FROM tool_invocations WHERE token = $1
`, token).Scan(&args, &res)
	if errors.Is(err, sql.ErrNoRows) {
		return Invocation{}, ErrDedupMiss
	}
	if err != nil {
		return Invocation{}, err
	}
	inv := Invocation{Arguments: args}
	if err := json.Unmarshal(res, &inv.Result); err != nil {
		return Invocation{}, err
	}
	return inv, nil
}

func (s *PostgresDedupStore) Put(ctx context.Context, token string, inv Invocation) error {
	res, err := json.Marshal(inv.Result)
	if err != nil {
		return err
	}
	args := inv.Arguments
	if len(args) == 0 {
		args = json.RawMessage(`{}`)
	}
	// First writer wins; a concurrent duplicate keeps the original row.
	_, err = s.db.ExecContext(ctx, `
INSERT INTO tool_invocations (token, arguments, result, created_at)
VALUES ($1, $2, $3, $4)
ON CONFLICT (token) DO NOTHING
`, token, []byte(args), res, time.Now().UTC())
	return err
}
