package database

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"
	_ "github.com/mattn/go-sqlite3"
)

// DB is the durable store behind the reservation ledger.
type DB struct {
	*sql.DB
	log zerolog.Logger
}

func NewDB(path string, logger *zerolog.Logger) (*DB, error) {
	if path != ":memory:" {
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path+"?_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if path == ":memory:" {
		// Every pooled connection would otherwise get its own empty database.
		db.SetMaxOpenConns(1)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}

	if err := createTables(db); err != nil {
		return nil, fmt.Errorf("create tables: %w", err)
	}

	logger.Info().Str("path", path).Msg("database initialized")
	return &DB{DB: db, log: logger.With().Str("component", "database").Logger()}, nil
}

func createTables(db *sql.DB) error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS reservations (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            confirmation_code TEXT NOT NULL,
            venue_id TEXT NOT NULL,
            resource_id INTEGER NOT NULL,
            resource_name TEXT NOT NULL DEFAULT '',
            kind TEXT NOT NULL,
            start_at DATETIME NOT NULL,
            end_at DATETIME NOT NULL,
            party_size INTEGER NOT NULL,
            status TEXT NOT NULL DEFAULT 'pending',
            source TEXT NOT NULL DEFAULT 'app',
            owner_id TEXT NOT NULL,
            guest_name TEXT NOT NULL DEFAULT '',
            guest_phone TEXT NOT NULL DEFAULT '',
            cancel_reason TEXT NOT NULL DEFAULT '',
            cancelled_by TEXT NOT NULL DEFAULT '',
            cancelled_at DATETIME,
            warning_notified INTEGER NOT NULL DEFAULT 0,
            created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
            updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
            version INTEGER NOT NULL DEFAULT 1
        )`,
		`CREATE TABLE IF NOT EXISTS extension_requests (
            id TEXT PRIMARY KEY,
            reservation_id INTEGER NOT NULL,
            minutes INTEGER NOT NULL,
            actor_id TEXT NOT NULL,
            status TEXT NOT NULL DEFAULT 'requested',
            created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
            resolved_at DATETIME
        )`,
		`CREATE TABLE IF NOT EXISTS resource_status (
            resource_id INTEGER PRIMARY KEY,
            status TEXT NOT NULL,
            updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
        )`,

		`CREATE INDEX IF NOT EXISTS idx_reservations_resource_window ON reservations(resource_id, start_at, end_at)`,
		`CREATE INDEX IF NOT EXISTS idx_reservations_owner ON reservations(owner_id)`,
		`CREATE INDEX IF NOT EXISTS idx_reservations_status ON reservations(status)`,
		`CREATE INDEX IF NOT EXISTS idx_reservations_end ON reservations(end_at)`,
		`CREATE INDEX IF NOT EXISTS idx_extensions_reservation ON extension_requests(reservation_id)`,
	}

	for _, query := range queries {
		if _, err := db.Exec(query); err != nil {
			return fmt.Errorf("error executing query %s: %w", query, err)
		}
	}
	return nil
}

// SetResourceStatus persists an operator status override.
func (db *DB) SetResourceStatus(ctx context.Context, resourceID int64, status string) error {
	query := `INSERT INTO resource_status (resource_id, status, updated_at)
              VALUES (?, ?, CURRENT_TIMESTAMP)
              ON CONFLICT(resource_id) DO UPDATE SET
                  status = excluded.status,
                  updated_at = excluded.updated_at`
	_, err := db.ExecContext(ctx, query, resourceID, status)
	if err != nil {
		return fmt.Errorf("set resource status: %w", err)
	}
	return nil
}

// ResourceStatusOverrides returns the persisted status overrides, applied to
// the registry at startup.
func (db *DB) ResourceStatusOverrides(ctx context.Context) (map[int64]string, error) {
	rows, err := db.QueryContext(ctx, `SELECT resource_id, status FROM resource_status`)
	if err != nil {
		return nil, fmt.Errorf("load resource status overrides: %w", err)
	}
	defer rows.Close()

	overrides := make(map[int64]string)
	for rows.Next() {
		var id int64
		var status string
		if err := rows.Scan(&id, &status); err != nil {
			return nil, err
		}
		overrides[id] = status
	}
	return overrides, rows.Err()
}
