package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"lineup/internal/models"
)

const reservationColumns = `id, confirmation_code, venue_id, resource_id, resource_name, kind,
       start_at, end_at, party_size, status, source, owner_id, guest_name, guest_phone,
       cancel_reason, cancelled_by, cancelled_at, warning_notified, created_at, updated_at, version`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanReservation(row rowScanner) (*models.Reservation, error) {
	var r models.Reservation
	var cancelledAt sql.NullTime
	err := row.Scan(
		&r.ID, &r.ConfirmationCode, &r.VenueID, &r.ResourceID, &r.ResourceName, &r.Kind,
		&r.Start, &r.End, &r.PartySize, &r.Status, &r.Source, &r.OwnerID, &r.GuestName, &r.GuestPhone,
		&r.CancelReason, &r.CancelledBy, &cancelledAt, &r.WarningNotified, &r.CreatedAt, &r.UpdatedAt, &r.Version,
	)
	if err != nil {
		return nil, err
	}
	if cancelledAt.Valid {
		r.CancelledAt = cancelledAt.Time
	}
	return &r, nil
}

func (db *DB) queryReservations(ctx context.Context, query string, args ...interface{}) ([]*models.Reservation, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*models.Reservation
	for rows.Next() {
		r, err := scanReservation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// CreateReservationTx checks capacity and inserts the reservation in one
// transaction. For exclusive resources the check is "no committed overlap on
// this resource"; for dining it is "committed covers in the window plus this
// party fit within venueCovers", and when the reservation is pinned to a
// specific table, additionally within that table's tableCovers. The checks
// and the insert commit together, which is what keeps two concurrent creates
// from both succeeding.
func (db *DB) CreateReservationTx(ctx context.Context, r *models.Reservation, venueCovers, tableCovers int, exclusive bool) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	start := r.Start.UTC()
	end := r.End.UTC()

	if exclusive {
		var overlap int
		query := `SELECT COUNT(*) FROM reservations
                  WHERE resource_id = ? AND status IN (?, ?, ?)
                  AND start_at < ? AND end_at > ?`
		err = tx.QueryRowContext(ctx, query, r.ResourceID,
			models.StatusPending, models.StatusConfirmed, models.StatusArrived,
			end, start).Scan(&overlap)
		if err != nil {
			return fmt.Errorf("check exclusive overlap in tx: %w", err)
		}
		if overlap > 0 {
			return ErrNotAvailable
		}
	} else {
		var committed int
		query := `SELECT COALESCE(SUM(party_size), 0) FROM reservations
                  WHERE kind = ? AND status IN (?, ?, ?)
                  AND start_at < ? AND end_at > ?`
		err = tx.QueryRowContext(ctx, query, models.KindTable,
			models.StatusPending, models.StatusConfirmed, models.StatusArrived,
			end, start).Scan(&committed)
		if err != nil {
			return fmt.Errorf("check dining capacity in tx: %w", err)
		}
		if committed+r.PartySize > venueCovers {
			return ErrNotAvailable
		}

		if r.ResourceID != 0 && tableCovers > 0 {
			var seated int
			query := `SELECT COALESCE(SUM(party_size), 0) FROM reservations
	                  WHERE resource_id = ? AND status IN (?, ?, ?)
	                  AND start_at < ? AND end_at > ?`
			err = tx.QueryRowContext(ctx, query, r.ResourceID,
				models.StatusPending, models.StatusConfirmed, models.StatusArrived,
				end, start).Scan(&seated)
			if err != nil {
				return fmt.Errorf("check table capacity in tx: %w", err)
			}
			if seated+r.PartySize > tableCovers {
				return ErrNotAvailable
			}
		}
	}

	now := time.Now().UTC()
	query := `INSERT INTO reservations (
                confirmation_code, venue_id, resource_id, resource_name, kind,
                start_at, end_at, party_size, status, source, owner_id,
                guest_name, guest_phone, warning_notified, created_at, updated_at, version
            ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 0, ?, ?, 1)`
	result, err := tx.ExecContext(ctx, query,
		r.ConfirmationCode, r.VenueID, r.ResourceID, r.ResourceName, r.Kind,
		start, end, r.PartySize, r.Status, r.Source, r.OwnerID,
		r.GuestName, r.GuestPhone, now, now,
	)
	if err != nil {
		return fmt.Errorf("insert reservation in tx: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("last insert id in tx: %w", err)
	}
	r.ID = id
	r.Start = start
	r.End = end
	r.CreatedAt = now
	r.UpdatedAt = now
	r.Version = 1

	return tx.Commit()
}

func (db *DB) GetReservation(ctx context.Context, id int64) (*models.Reservation, error) {
	query := `SELECT ` + reservationColumns + ` FROM reservations WHERE id = ?`
	r, err := scanReservation(db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrReservationNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get reservation: %w", err)
	}
	return r, nil
}

// UpdateReservationStatusWithVersion applies an optimistic status transition.
func (db *DB) UpdateReservationStatusWithVersion(ctx context.Context, id, fromVersion int64, status string) error {
	query := `UPDATE reservations SET status = ?, version = version + 1, updated_at = ?
              WHERE id = ? AND version = ?`
	result, err := db.ExecContext(ctx, query, status, time.Now().UTC(), id, fromVersion)
	if err != nil {
		return fmt.Errorf("update reservation status: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return ErrConcurrentModification
	}
	return nil
}

// CancelReservation records the cancellation and its metadata in one write.
func (db *DB) CancelReservation(ctx context.Context, id, fromVersion int64, actor, reason string) error {
	now := time.Now().UTC()
	query := `UPDATE reservations
              SET status = ?, cancel_reason = ?, cancelled_by = ?, cancelled_at = ?,
                  version = version + 1, updated_at = ?
              WHERE id = ? AND version = ?`
	result, err := db.ExecContext(ctx, query, models.StatusCancelled, reason, actor, now, now, id, fromVersion)
	if err != nil {
		return fmt.Errorf("cancel reservation: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return ErrConcurrentModification
	}
	return nil
}

// ExtendReservationEnd pushes a session's end out and rearms the warning.
func (db *DB) ExtendReservationEnd(ctx context.Context, id, fromVersion int64, newEnd time.Time) error {
	query := `UPDATE reservations
              SET end_at = ?, warning_notified = 0, version = version + 1, updated_at = ?
              WHERE id = ? AND version = ?`
	result, err := db.ExecContext(ctx, query, newEnd.UTC(), time.Now().UTC(), id, fromVersion)
	if err != nil {
		return fmt.Errorf("extend reservation: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return ErrConcurrentModification
	}
	return nil
}

// ListActiveByOwner returns the owner's upcoming commitments, soonest first.
func (db *DB) ListActiveByOwner(ctx context.Context, ownerID string, now time.Time) ([]*models.Reservation, error) {
	query := `SELECT ` + reservationColumns + ` FROM reservations
              WHERE owner_id = ? AND status IN (?, ?, ?) AND end_at > ?
              ORDER BY start_at ASC`
	return db.queryReservations(ctx, query, ownerID,
		models.StatusPending, models.StatusConfirmed, models.StatusArrived, now.UTC())
}

// ListPastByOwner returns finished or elapsed reservations, newest first.
func (db *DB) ListPastByOwner(ctx context.Context, ownerID string, now time.Time, limit int) ([]*models.Reservation, error) {
	if limit <= 0 {
		limit = 20
	}
	query := `SELECT ` + reservationColumns + ` FROM reservations
              WHERE owner_id = ? AND (status IN (?, ?, ?) OR end_at <= ?)
              ORDER BY start_at DESC LIMIT ?`
	return db.queryReservations(ctx, query, ownerID,
		models.StatusCompleted, models.StatusCancelled, models.StatusNoShow, now.UTC(), limit)
}

func (db *DB) ListByDateRange(ctx context.Context, start, end time.Time) ([]*models.Reservation, error) {
	query := `SELECT ` + reservationColumns + ` FROM reservations
              WHERE start_at >= ? AND start_at < ?
              ORDER BY start_at ASC, created_at ASC`
	return db.queryReservations(ctx, query, start.UTC(), end.UTC())
}

// CommittedCovers sums committed dining party sizes overlapping the window.
func (db *DB) CommittedCovers(ctx context.Context, start, end time.Time) (int, error) {
	query := `SELECT COALESCE(SUM(party_size), 0) FROM reservations
              WHERE kind = ? AND status IN (?, ?, ?)
              AND start_at < ? AND end_at > ?`
	var covers int
	err := db.QueryRowContext(ctx, query, models.KindTable,
		models.StatusPending, models.StatusConfirmed, models.StatusArrived,
		end.UTC(), start.UTC()).Scan(&covers)
	if err != nil {
		return 0, fmt.Errorf("committed covers: %w", err)
	}
	return covers, nil
}

// ExclusiveOverlapExists reports whether a committed reservation other than
// excludeID claims any part of [start, end) on the resource.
func (db *DB) ExclusiveOverlapExists(ctx context.Context, resourceID int64, start, end time.Time, excludeID int64) (bool, error) {
	query := `SELECT COUNT(*) FROM reservations
              WHERE resource_id = ? AND id != ? AND status IN (?, ?, ?)
              AND start_at < ? AND end_at > ?`
	var count int
	err := db.QueryRowContext(ctx, query, resourceID, excludeID,
		models.StatusPending, models.StatusConfirmed, models.StatusArrived,
		end.UTC(), start.UTC()).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("exclusive overlap: %w", err)
	}
	return count > 0, nil
}

// ListWarningCandidates returns committed sessions whose end falls inside
// (now, warnBefore] and which have not been warned yet.
func (db *DB) ListWarningCandidates(ctx context.Context, now, warnBefore time.Time) ([]*models.Reservation, error) {
	query := `SELECT ` + reservationColumns + ` FROM reservations
              WHERE kind != ? AND status IN (?, ?) AND warning_notified = 0
              AND end_at > ? AND end_at <= ?
              ORDER BY end_at ASC`
	return db.queryReservations(ctx, query, models.KindTable,
		models.StatusConfirmed, models.StatusArrived, now.UTC(), warnBefore.UTC())
}

// ListSessionsPastEnd returns committed sessions whose end has passed.
func (db *DB) ListSessionsPastEnd(ctx context.Context, now time.Time) ([]*models.Reservation, error) {
	query := `SELECT ` + reservationColumns + ` FROM reservations
              WHERE kind != ? AND status IN (?, ?) AND end_at <= ?
              ORDER BY end_at ASC`
	return db.queryReservations(ctx, query, models.KindTable,
		models.StatusConfirmed, models.StatusArrived, now.UTC())
}

// MarkWarningNotified flips the warning flag exactly once. The conditional
// update is what makes concurrent sweeps idempotent: only the caller that
// wins the flip dispatches the notification.
func (db *DB) MarkWarningNotified(ctx context.Context, id int64) (bool, error) {
	query := `UPDATE reservations SET warning_notified = 1, updated_at = ?
              WHERE id = ? AND warning_notified = 0`
	result, err := db.ExecContext(ctx, query, time.Now().UTC(), id)
	if err != nil {
		return false, fmt.Errorf("mark warning notified: %w", err)
	}
	rows, _ := result.RowsAffected()
	return rows > 0, nil
}

func (db *DB) ClearWarningNotified(ctx context.Context, id int64) error {
	query := `UPDATE reservations SET warning_notified = 0, updated_at = ? WHERE id = ?`
	_, err := db.ExecContext(ctx, query, time.Now().UTC(), id)
	return err
}
