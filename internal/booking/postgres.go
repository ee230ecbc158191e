package booking

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const ddlBooking = `
CREATE TABLE IF NOT EXISTS sessions (
    id               UUID         PRIMARY KEY DEFAULT gen_random_uuid(),
    name             TEXT         NOT NULL,
    instructor       TEXT         NOT NULL DEFAULT '',
    duration_minutes INT          NOT NULL DEFAULT 60,
    start_time       TIMESTAMPTZ  NOT NULL,
    max_capacity     INT          NOT NULL DEFAULT 20
);

CREATE INDEX IF NOT EXISTS idx_sessions_start_time
    ON sessions (start_time);

CREATE TABLE IF NOT EXISTS bookings (
    id           UUID         PRIMARY KEY DEFAULT gen_random_uuid(),
    user_id      TEXT         NOT NULL,
    session_id   UUID         NOT NULL REFERENCES sessions (id) ON DELETE CASCADE,
    booking_date TIMESTAMPTZ  NOT NULL DEFAULT now(),
    status       TEXT         NOT NULL DEFAULT 'confirmed'
);

CREATE INDEX IF NOT EXISTS idx_bookings_user_id
    ON bookings (user_id);

CREATE INDEX IF NOT EXISTS idx_bookings_session_id
    ON bookings (session_id);
`

// PostgresStore is the pgx-backed Store. Capacity is enforced inside a
// transaction that locks the session row, so concurrent bookings of the last
// spot cannot both succeed.
type PostgresStore struct {
	pool *pgxpool.Pool
}

var _ Store = (*PostgresStore)(nil)

// NewPostgresStore connects to the database at dsn and ensures the schema
// exists.
func NewPostgresStore(ctx context.Context, dsn string) (*PostgresStore, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("booking store: parse dsn: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("booking store: create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("booking store: ping: %w", err)
	}
	if _, err := pool.Exec(ctx, ddlBooking); err != nil {
		pool.Close()
		return nil, fmt.Errorf("booking store: migrate: %w", err)
	}
	return &PostgresStore{pool: pool}, nil
}

// SessionsOn implements Store.
func (p *PostgresStore) SessionsOn(ctx context.Context, dayStart time.Time) ([]SessionAvailability, error) {
	rows, err := p.pool.Query(ctx, `
		SELECT s.id, s.name, s.instructor, s.duration_minutes, s.start_time, s.max_capacity,
		       count(b.id) AS booked
		FROM sessions s
		LEFT JOIN bookings b ON b.session_id = s.id
		WHERE s.start_time >= $1 AND s.start_time < $2
		GROUP BY s.id
		ORDER BY s.start_time`,
		dayStart, dayStart.Add(24*time.Hour))
	if err != nil {
		return nil, fmt.Errorf("booking store: list sessions: %w", err)
	}
	defer rows.Close()

	var out []SessionAvailability
	for rows.Next() {
		var s Session
		var booked int
		if err := rows.Scan(&s.ID, &s.Name, &s.Instructor, &s.DurationMinutes, &s.StartTime, &s.Capacity, &booked); err != nil {
			return nil, fmt.Errorf("booking store: scan session: %w", err)
		}
		out = append(out, availability(s, booked))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("booking store: list sessions: %w", err)
	}
	return out, nil
}

// NextSessionAfter implements Store.
func (p *PostgresStore) NextSessionAfter(ctx context.Context, after time.Time) (*Session, error) {
	var s Session
	err := p.pool.QueryRow(ctx, `
		SELECT id, name, instructor, duration_minutes, start_time, max_capacity
		FROM sessions
		WHERE start_time > $1
		ORDER BY start_time
		LIMIT 1`, after).
		Scan(&s.ID, &s.Name, &s.Instructor, &s.DurationMinutes, &s.StartTime, &s.Capacity)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("booking store: next session: %w", err)
	}
	return &s, nil
}

// CreateBooking implements Store.
func (p *PostgresStore) CreateBooking(ctx context.Context, userID, sessionID string, bookedAt time.Time) (*Booking, error) {
	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("booking store: begin: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	// Lock the session row so the capacity check and the insert are atomic
	// against concurrent bookings.
	var capacity int
	err = tx.QueryRow(ctx, `SELECT max_capacity FROM sessions WHERE id = $1 FOR UPDATE`, sessionID).Scan(&capacity)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("booking store: lock session: %w", err)
	}
	if capacity <= 0 {
		capacity = DefaultCapacity
	}

	var booked int
	if err := tx.QueryRow(ctx, `SELECT count(*) FROM bookings WHERE session_id = $1`, sessionID).Scan(&booked); err != nil {
		return nil, fmt.Errorf("booking store: count bookings: %w", err)
	}
	if booked >= capacity {
		return nil, ErrFullyBooked
	}

	b := Booking{
		UserID:    userID,
		SessionID: sessionID,
		BookedAt:  bookedAt,
		Status:    "confirmed",
	}
	err = tx.QueryRow(ctx, `
		INSERT INTO bookings (user_id, session_id, booking_date, status)
		VALUES ($1, $2, $3, $4)
		RETURNING id`,
		b.UserID, b.SessionID, b.BookedAt, b.Status).Scan(&b.ID)
	if err != nil {
		return nil, fmt.Errorf("booking store: insert booking: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("booking store: commit: %w", err)
	}
	return &b, nil
}

// CancelBooking implements Store.
func (p *PostgresStore) CancelBooking(ctx context.Context, userID, bookingID string) error {
	tag, err := p.pool.Exec(ctx, `DELETE FROM bookings WHERE id = $1 AND user_id = $2`, bookingID, userID)
	if err != nil {
		return fmt.Errorf("booking store: cancel booking: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// UserBookings implements Store.
func (p *PostgresStore) UserBookings(ctx context.Context, userID string) ([]BookingDetail, error) {
	rows, err := p.pool.Query(ctx, `
		SELECT b.id, b.user_id, b.session_id, b.booking_date, b.status,
		       s.name, s.instructor, s.duration_minutes, s.start_time
		FROM bookings b
		JOIN sessions s ON s.id = b.session_id
		WHERE b.user_id = $1
		ORDER BY s.start_time`, userID)
	if err != nil {
		return nil, fmt.Errorf("booking store: list bookings: %w", err)
	}
	defer rows.Close()

	var out []BookingDetail
	for rows.Next() {
		var d BookingDetail
		if err := rows.Scan(&d.ID, &d.UserID, &d.SessionID, &d.BookedAt, &d.Status,
			&d.SessionName, &d.Instructor, &d.DurationMinutes, &d.StartTime); err != nil {
			return nil, fmt.Errorf("booking store: scan booking: %w", err)
		}
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("booking store: list bookings: %w", err)
	}
	return out, nil
}

// Close implements Store.
func (p *PostgresStore) Close() {
	p.pool.Close()
}
