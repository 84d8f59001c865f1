package reservation

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"voicebot-platform/pkg/utils"
)

// PostgresRepo persists reservations in the reservations table.
type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo {
	return &PostgresRepo{db: db}
}

// EnsureSchema creates the reservations table if missing.
func (r *PostgresRepo) EnsureSchema(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, `
CREATE TABLE IF NOT EXISTS reservations (
    id           UUID PRIMARY KEY,
    phone_number TEXT NOT NULL,
    guest_name   TEXT NOT NULL,
    party_size   INT NOT NULL,
    slot_start   TIMESTAMPTZ NOT NULL,
    notes        TEXT NOT NULL DEFAULT '',
    status       TEXT NOT NULL,
    created_at   TIMESTAMPTZ NOT NULL,
    updated_at   TIMESTAMPTZ NOT NULL,
    canceled_at  TIMESTAMPTZ
);
CREATE INDEX IF NOT EXISTS idx_reservations_phone_slot ON reservations (phone_number, slot_start);
CREATE INDEX IF NOT EXISTS idx_reservations_slot ON reservations (slot_start);
`)
	return err
}

func (r *PostgresRepo) CreateIfAvailable(ctx context.Context, res *Reservation, limit CapacityLimit) error {
	return utils.WithTx(ctx, r.db, &sql.TxOptions{Isolation: sql.LevelSerializable}, func(ctx context.Context, tx *sql.Tx) error {
		count, guests, err := countWindowTx(ctx, tx, limit.WindowStart, limit.WindowEnd, "")
		if err != nil {
			return err
		}
		if count >= limit.MaxReservations || guests+res.PartySize > limit.MaxGuests {
			return ErrSlotUnavailable
		}
		_, err = tx.ExecContext(ctx, `
INSERT INTO reservations (id, phone_number, guest_name, party_size, slot_start, notes, status, created_at, updated_at, canceled_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
`, res.ID, res.PhoneNumber, res.GuestName, res.PartySize, res.SlotStart, res.Notes, string(res.Status), res.CreatedAt, res.UpdatedAt, res.CanceledAt)
		return err
	})
}

func (r *PostgresRepo) UpdateIfAvailable(ctx context.Context, res *Reservation, limit CapacityLimit) error {
	return utils.WithTx(ctx, r.db, &sql.TxOptions{Isolation: sql.LevelSerializable}, func(ctx context.Context, tx *sql.Tx) error {
		count, guests, err := countWindowTx(ctx, tx, limit.WindowStart, limit.WindowEnd, res.ID)
		if err != nil {
			return err
		}
		if count >= limit.MaxReservations || guests+res.PartySize > limit.MaxGuests {
			return ErrSlotUnavailable
		}
		return updateTx(ctx, tx, res)
	})
}

func (r *PostgresRepo) Update(ctx context.Context, res *Reservation) error {
	return utils.WithTx(ctx, r.db, nil, func(ctx context.Context, tx *sql.Tx) error {
		return updateTx(ctx, tx, res)
	})
}

func (r *PostgresRepo) Get(ctx context.Context, id string) (*Reservation, error) {
	row := r.db.QueryRowContext(ctx, `
SELECT id, phone_number, guest_name, party_size, slot_start, notes, status, created_at, updated_at, canceled_at
FROM reservations
WHERE id = $1
`, id)
	return scanReservation(row)
}

func (r *PostgresRepo) ListByPhone(ctx context.Context, phone string, from time.Time) ([]*Reservation, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT id, phone_number, guest_name, party_size, slot_start, notes, status, created_at, updated_at, canceled_at
FROM reservations
WHERE phone_number = $1 AND slot_start >= $2 AND status IN ('pending', 'confirmed')
ORDER BY slot_start ASC
`, phone, from)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collect(rows)
}

func (r *PostgresRepo) CountWindow(ctx context.Context, start, end time.Time) (int, int, error) {
	row := r.db.QueryRowContext(ctx, `
SELECT COUNT(*), COALESCE(SUM(party_size), 0)
FROM reservations
WHERE slot_start >= $1 AND slot_start < $2 AND status IN ('pending', 'confirmed')
`, start, end)
	var count, guests int
	if err := row.Scan(&count, &guests); err != nil {
		return 0, 0, err
	}
	return count, guests, nil
}

func (r *PostgresRepo) List(ctx context.Context, f ListFilter) ([]*Reservation, error) {
	var (
		where []string
		args  []any
	)
	if f.Status != "" {
		args = append(args, string(f.Status))
		where = append(where, fmt.Sprintf("status = $%d", len(args)))
	}
	if !f.From.IsZero() {
		args = append(args, f.From)
		where = append(where, fmt.Sprintf("slot_start >= $%d", len(args)))
	}
	if !f.To.IsZero() {
		args = append(args, f.To)
		where = append(where, fmt.Sprintf("slot_start < $%d", len(args)))
	}

	q := `
SELECT id, phone_number, guest_name, party_size, slot_start, notes, status, created_at, updated_at, canceled_at
FROM reservations
`
	if len(where) > 0 {
		q += "WHERE " + strings.Join(where, " AND ") + "\n"
	}
	q += "ORDER BY slot_start ASC\n"

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

	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collect(rows)
}

func countWindowTx(ctx context.Context, tx *sql.Tx, start, end time.Time, excludeID string) (int, int, error) {
	q := `
SELECT COUNT(*), COALESCE(SUM(party_size), 0)
FROM reservations
WHERE slot_start >= $1 AND slot_start < $2 AND status IN ('pending', 'confirmed')
`
	args := []any{start, end}
	if excludeID != "" {
		q += "AND id <> $3"
		args = append(args, excludeID)
	}
	var count, guests int
	if err := tx.QueryRowContext(ctx, q, args...).Scan(&count, &guests); err != nil {
		return 0, 0, err
	}
	return count, guests, nil
}

func updateTx(ctx context.Context, tx *sql.Tx, res *Reservation) error {
	out, err := tx.ExecContext(ctx, `
UPDATE reservations
SET guest_name = $2, party_size = $3, slot_start = $4, notes = $5, status = $6, updated_at = $7, canceled_at = $8
WHERE id = $1
`, res.ID, res.GuestName, res.PartySize, res.SlotStart, res.Notes, string(res.Status), res.UpdatedAt, res.CanceledAt)
	if err != nil {
		return err
	}
	n, err := out.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanReservation(row rowScanner) (*Reservation, error) {
	var (
		res        Reservation
		status     string
		canceledAt sql.NullTime
	)
	err := row.Scan(&res.ID, &res.PhoneNumber, &res.GuestName, &res.PartySize,
		&res.SlotStart, &res.Notes, &status, &res.CreatedAt, &res.UpdatedAt, &canceledAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	res.Status = Status(status)
	res.SlotStart = res.SlotStart.UTC()
	res.CreatedAt = res.CreatedAt.UTC()
	res.UpdatedAt = res.UpdatedAt.UTC()
	if canceledAt.Valid {
		t := canceledAt.Time.UTC()
		res.CanceledAt = &t
	}
	return &res, nil
}

func collect(rows *sql.Rows) ([]*Reservation, error) {
	var out []*Reservation
	for rows.Next() {
		res, err := scanReservation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, res)
	}
	return out, rows.Err()
}
