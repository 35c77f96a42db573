package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"venuebook/internal/booking"
	"venuebook/internal/models"

	"github.com/google/uuid"
)

const bookingColumns = `id, user_id, user_email, user_name, venue, facility_name, date, start_time, end_time,
	purpose, participants, special_requirements, status, created_at, decided_at, decided_by, decision_reason`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanBooking(row rowScanner) (*models.Booking, error) {
	var (
		b          models.Booking
		start, end string
		decidedAt  sql.NullTime
	)
	err := row.Scan(
		&b.ID, &b.RequesterID, &b.RequesterEmail, &b.RequesterName, &b.Venue, &b.FacilityName, &b.Date,
		&start, &end, &b.Purpose, &b.Participants, &b.SpecialRequirements, &b.Status, &b.CreatedAt,
		&decidedAt, &b.DecidedBy, &b.DecisionReason,
	)
	if err != nil {
		return nil, err
	}

	// Records that fail to parse keep zero times and never conflict.
	b.StartTime, _ = models.ParseWallClock(b.Date, start)
	b.EndTime, _ = models.ParseWallClock(b.Date, end)
	if decidedAt.Valid {
		t := decidedAt.Time.UTC()
		b.DecidedAt = &t
	}
	b.CreatedAt = b.CreatedAt.UTC()
	return &b, nil
}

func scanBookings(rows *sql.Rows) ([]*models.Booking, error) {
	defer rows.Close()

	var bookings []*models.Booking
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan booking: %w", err)
		}
		bookings = append(bookings, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate bookings: %w", err)
	}
	return bookings, nil
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func insertBooking(ctx context.Context, ex execer, b *models.Booking, upsert bool) error {
	if b.ID == "" {
		b.ID = uuid.NewString()
	}
	if b.CreatedAt.IsZero() {
		b.CreatedAt = time.Now().UTC()
	}

	var decidedAt any
	if b.DecidedAt != nil {
		decidedAt = b.DecidedAt.UTC()
	}

	query := `INSERT INTO bookings (` + bookingColumns + `, updated_at)
              VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	if upsert {
		query += ` ON CONFLICT(id) DO UPDATE SET
            user_id = excluded.user_id, user_email = excluded.user_email, user_name = excluded.user_name,
            venue = excluded.venue, facility_name = excluded.facility_name, date = excluded.date,
            start_time = excluded.start_time, end_time = excluded.end_time, purpose = excluded.purpose,
            participants = excluded.participants, special_requirements = excluded.special_requirements,
            status = excluded.status, created_at = excluded.created_at, decided_at = excluded.decided_at,
            decided_by = excluded.decided_by, decision_reason = excluded.decision_reason,
            updated_at = excluded.updated_at`
	}

	_, err := ex.ExecContext(ctx, query,
		b.ID,
		b.RequesterID,
		b.RequesterEmail,
		b.RequesterName,
		b.Venue,
		b.FacilityName,
		b.Date,
		models.FormatWallClock(b.StartTime),
		models.FormatWallClock(b.EndTime),
		b.Purpose,
		b.Participants,
		b.SpecialRequirements,
		b.Status,
		b.CreatedAt.UTC(),
		decidedAt,
		b.DecidedBy,
		b.DecisionReason,
		time.Now().UTC(),
	)
	return err
}

// CreateBooking stores b as is. An empty ID is replaced with a new UUID.
func (db *DB) CreateBooking(ctx context.Context, b *models.Booking) error {
	if err := insertBooking(ctx, db, b, false); err != nil {
		return fmt.Errorf("failed to create booking: %w", err)
	}
	return nil
}

// UpsertBooking inserts b or replaces the stored record with the same ID.
func (db *DB) UpsertBooking(ctx context.Context, b *models.Booking) error {
	if err := insertBooking(ctx, db, b, true); err != nil {
		return fmt.Errorf("failed to upsert booking: %w", err)
	}
	return nil
}

// CreateBookingWithLock re-checks the slot inside the write transaction and
// inserts b only when no non-rejected booking of the same venue and date
// overlaps it. ErrNotAvailable is returned otherwise.
func (db *DB) CreateBookingWithLock(ctx context.Context, b *models.Booking) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	rows, err := tx.QueryContext(ctx,
		`SELECT `+bookingColumns+` FROM bookings WHERE venue = ? AND date = ? AND status != ?`,
		b.Venue, b.Date, models.StatusRejected)
	if err != nil {
		return fmt.Errorf("failed to check availability in tx: %w", err)
	}
	existing, err := scanBookings(rows)
	if err != nil {
		return err
	}

	if booking.DetectConflict(b.Venue, b.Date, b.StartTime, b.EndTime, existing) {
		return ErrNotAvailable
	}

	if err := insertBooking(ctx, tx, b, false); err != nil {
		return fmt.Errorf("failed to insert booking in tx: %w", err)
	}

	return tx.Commit()
}

func (db *DB) GetBooking(ctx context.Context, id string) (*models.Booking, error) {
	row := db.QueryRowContext(ctx, `SELECT `+bookingColumns+` FROM bookings WHERE id = ?`, id)
	b, err := scanBooking(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("booking %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get booking: %w", err)
	}
	return b, nil
}

// GetSlotBookings returns the non-rejected bookings of a venue on a date.
func (db *DB) GetSlotBookings(ctx context.Context, venue, date string) ([]*models.Booking, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT `+bookingColumns+` FROM bookings WHERE venue = ? AND date = ? AND status != ? ORDER BY start_time`,
		venue, date, models.StatusRejected)
	if err != nil {
		return nil, fmt.Errorf("failed to get slot bookings: %w", err)
	}
	return scanBookings(rows)
}

// ListBookings returns every booking, newest first.
func (db *DB) ListBookings(ctx context.Context) ([]*models.Booking, error) {
	rows, err := db.QueryContext(ctx, `SELECT `+bookingColumns+` FROM bookings ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list bookings: %w", err)
	}
	return scanBookings(rows)
}

// GetUserBookings returns the bookings of one requester, newest first.
func (db *DB) GetUserBookings(ctx context.Context, userID string) ([]*models.Booking, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT `+bookingColumns+` FROM bookings WHERE user_id = ? ORDER BY created_at DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to get user bookings: %w", err)
	}
	return scanBookings(rows)
}

func (db *DB) CountBookingsByStatus(ctx context.Context) (map[string]int, error) {
	rows, err := db.QueryContext(ctx, `SELECT status, COUNT(*) FROM bookings GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("failed to count bookings: %w", err)
	}
	defer rows.Close()

	counts := map[string]int{
		models.StatusPending:  0,
		models.StatusApproved: 0,
		models.StatusRejected: 0,
	}
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("failed to scan count: %w", err)
		}
		counts[status] = n
	}
	return counts, rows.Err()
}

// DecideBooking persists a decision made on a pending booking together with
// the notification for its requester. The update only applies while the
// stored status is still pending; otherwise ErrConcurrentModification is
// returned and nothing is written.
func (db *DB) DecideBooking(ctx context.Context, decided *models.Booking, n *models.Notification) error {
	if decided.DecidedAt == nil {
		return errors.New("decided booking has no decision time")
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	result, err := tx.ExecContext(ctx,
		`UPDATE bookings SET status = ?, decided_at = ?, decided_by = ?, decision_reason = ?, updated_at = ?
         WHERE id = ? AND status = ?`,
		decided.Status, decided.DecidedAt.UTC(), decided.DecidedBy, decided.DecisionReason, time.Now().UTC(),
		decided.ID, models.StatusPending)
	if err != nil {
		return fmt.Errorf("failed to update booking decision: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		var exists int
		err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM bookings WHERE id = ?`, decided.ID).Scan(&exists)
		if err != nil {
			return fmt.Errorf("failed to check booking: %w", err)
		}
		if exists == 0 {
			return fmt.Errorf("booking %s: %w", decided.ID, ErrNotFound)
		}
		return ErrConcurrentModification
	}

	if n != nil {
		if err := insertNotification(ctx, tx, n, false); err != nil {
			return fmt.Errorf("failed to insert notification in tx: %w", err)
		}
	}

	return tx.Commit()
}
