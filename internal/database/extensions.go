package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"lineup/internal/models"
)

func (db *DB) CreateExtensionRequest(ctx context.Context, req *models.ExtensionRequest) error {
	now := time.Now().UTC()
	query := `INSERT INTO extension_requests (id, reservation_id, minutes, actor_id, status, created_at)
              VALUES (?, ?, ?, ?, ?, ?)`
	_, err := db.ExecContext(ctx, query, req.ID, req.ReservationID, req.Minutes, req.ActorID, req.Status, now)
	if err != nil {
		return fmt.Errorf("create extension request: %w", err)
	}
	req.CreatedAt = now
	return nil
}

func (db *DB) GetExtensionRequest(ctx context.Context, id string) (*models.ExtensionRequest, error) {
	query := `SELECT id, reservation_id, minutes, actor_id, status, created_at, resolved_at
              FROM extension_requests WHERE id = ?`

	var req models.ExtensionRequest
	var resolvedAt sql.NullTime
	err := db.QueryRowContext(ctx, query, id).Scan(
		&req.ID, &req.ReservationID, &req.Minutes, &req.ActorID, &req.Status, &req.CreatedAt, &resolvedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrExtensionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get extension request: %w", err)
	}
	if resolvedAt.Valid {
		req.ResolvedAt = resolvedAt.Time
	}
	return &req, nil
}

func (db *DB) ResolveExtensionRequest(ctx context.Context, id, status string) error {
	query := `UPDATE extension_requests SET status = ?, resolved_at = ? WHERE id = ?`
	result, err := db.ExecContext(ctx, query, status, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("resolve extension request: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return ErrExtensionNotFound
	}
	return nil
}

// ExpirePendingExtensions resolves any unanswered requests for a reservation
// to expired. Called when the session runs out so nothing lingers in a limbo
// state; denied stays reserved for requests refused on conflict.
func (db *DB) ExpirePendingExtensions(ctx context.Context, reservationID int64) (int64, error) {
	query := `UPDATE extension_requests SET status = ?, resolved_at = ?
              WHERE reservation_id = ? AND status = ?`
	result, err := db.ExecContext(ctx, query, models.ExtensionExpired, time.Now().UTC(), reservationID, models.ExtensionRequested)
	if err != nil {
		return 0, fmt.Errorf("expire pending extensions: %w", err)
	}
	rows, _ := result.RowsAffected()
	return rows, nil
}
