package session

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
)

// state is the JSONB blob holding the parts of the session that the admin
// surface never filters on.
type state struct {
	Turns                []Turn          `json:"turns"`
	PendingReservationID string          `json:"pending_reservation_id,omitempty"`
	PendingAction        string          `json:"pending_action,omitempty"`
	PendingArguments     json.RawMessage `json:"pending_arguments,omitempty"`
	ConfirmAttempts      int             `json:"confirm_attempts,omitempty"`
	GeneratorDone        bool            `json:"generator_done,omitempty"`
}

// PostgresStore persists sessions in the call_sessions table.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// EnsureSchema creates the call_sessions table if missing.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
CREATE TABLE IF NOT EXISTS call_sessions (
    call_id      TEXT PRIMARY KEY,
    phone_number TEXT NOT NULL,
    status       TEXT NOT NULL,
    current_step TEXT NOT NULL,
    intent       TEXT NOT NULL,
    state        JSONB NOT NULL DEFAULT '{}'::jsonb,
    error_count  INT NOT NULL DEFAULT 0,
    started_at   TIMESTAMPTZ NOT NULL,
    updated_at   TIMESTAMPTZ NOT NULL,
    completed_at TIMESTAMPTZ,
    version      BIGINT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_call_sessions_phone ON call_sessions (phone_number);
CREATE INDEX IF NOT EXISTS idx_call_sessions_status ON call_sessions (status);
`)
	return err
}

func (s *PostgresStore) Load(ctx context.Context, callID string) (*CallSession, error) {
	row := s.db.QueryRowContext(ctx, `
SELECT call_id, phone_number, status, current_step, intent, state,
       error_count, started_at, updated_at, completed_at, version
FROM call_sessions
WHERE call_id = $1
`, callID)
	return scanSession(row)
}

func (s *PostgresStore) Save(ctx context.Context, sess *CallSession, expectedVersion int64) error {
	stateJSON, err := json.Marshal(state{
		Turns:                sess.Turns,
		PendingReservationID: sess.PendingReservationID,
		PendingAction:        sess.PendingAction,
		PendingArguments:     sess.PendingArguments,
		ConfirmAttempts:      sess.ConfirmAttempts,
		GeneratorDone:        sess.GeneratorDone,
	})
	if err != nil {
		return fmt.Errorf("session: marshal state: %w", err)
	}

	if expectedVersion == 0 {
		_, err := s.db.ExecContext(ctx, `
INSERT INTO call_sessions
    (call_id, phone_number, status, current_step, intent, state,
     error_count, started_at, updated_at, completed_at, version)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, 1)
`, sess.CallID, sess.PhoneNumber, string(sess.Status), sess.CurrentStep,
			string(sess.Intent), stateJSON, sess.ErrorCount,
			sess.StartedAt, sess.UpdatedAt, sess.CompletedAt)
		if err != nil {
			if isUniqueViolation(err) {
				return ErrAlreadyExists
			}
			return err
		}
		sess.Version = 1
		return nil
	}

	res, err := s.db.ExecContext(ctx, `
UPDATE call_sessions
SET phone_number = $2,
    status       = $3,
    current_step = $4,
    intent       = $5,
    state        = $6,
    error_count  = $7,
    updated_at   = $8,
    completed_at = $9,
    version      = version + 1
WHERE call_id = $1 AND version = $10
`, sess.CallID, sess.PhoneNumber, string(sess.Status), sess.CurrentStep,
		string(sess.Intent), stateJSON, sess.ErrorCount,
		sess.UpdatedAt, sess.CompletedAt, expectedVersion)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrVersionConflict
	}
	sess.Version = expectedVersion + 1
	return nil
}

func (s *PostgresStore) List(ctx context.Context, f ListFilter) ([]*CallSession, error) {
	var (
		where []string
		args  []any
	)
	if f.Status != "" {
		args = append(args, string(f.Status))
		where = append(where, fmt.Sprintf("status = $%d", len(args)))
	}
	if f.PhoneNumber != "" {
		args = append(args, f.PhoneNumber)
		where = append(where, fmt.Sprintf("phone_number = $%d", len(args)))
	}
	q := `
SELECT call_id, phone_number, status, current_step, intent, state,
       error_count, started_at, updated_at, completed_at, version
FROM call_sessions
`
	if len(where) > 0 {
		q += "WHERE " + strings.Join(where, " AND ") + "\n"
	}
	q += "ORDER BY started_at DESC\n"

	limit := f.Limit
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	args = append(args, limit)
	q += fmt.Sprintf("LIMIT $%d", len(args))
	if f.Offset > 0 {
		args = append(args, f.Offset)
		q += fmt.Sprintf(" OFFSET $%d", len(args))
	}

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*CallSession
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, sess)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(r rowScanner) (*CallSession, error) {
	var (
		sess        CallSession
		status      string
		intent      string
		stateJSON   []byte
		completedAt sql.NullTime
	)
	err := r.Scan(&sess.CallID, &sess.PhoneNumber, &status, &sess.CurrentStep,
		&intent, &stateJSON, &sess.ErrorCount, &sess.StartedAt, &sess.UpdatedAt,
		&completedAt, &sess.Version)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	sess.Status = CallStatus(status)
	sess.Intent = Intent(intent)
	if completedAt.Valid {
		t := completedAt.Time.UTC()
		sess.CompletedAt = &t
	}
	sess.StartedAt = sess.StartedAt.UTC()
	sess.UpdatedAt = sess.UpdatedAt.UTC()

	var st state
	if len(stateJSON) > 0 {
		if err := json.Unmarshal(stateJSON, &st); err != nil {
			return nil, fmt.Errorf("session: unmarshal state: %w", err)
		}
	}
	sess.Turns = st.Turns
	sess.PendingReservationID = st.PendingReservationID
	sess.PendingAction = st.PendingAction
	sess.PendingArguments = st.PendingArguments
	sess.ConfirmAttempts = st.ConfirmAttempts
	sess.GeneratorDone = st.GeneratorDone
	return &sess, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
