package domain

import (
	"context"
	"time"

	"lineup/internal/models"
)

// Store is the persistence contract the ledger and scheduler run against.
// Implemented by internal/database on sqlite.
type Store interface {
	CreateReservationTx(ctx context.Context, r *models.Reservation, venueCovers, tableCovers int, exclusive bool) error
	GetReservation(ctx context.Context, id int64) (*models.Reservation, error)
	UpdateReservationStatusWithVersion(ctx context.Context, id, fromVersion int64, status string) error
	CancelReservation(ctx context.Context, id, fromVersion int64, actor, reason string) error
	ExtendReservationEnd(ctx context.Context, id, fromVersion int64, newEnd time.Time) error

	ListActiveByOwner(ctx context.Context, ownerID string, now time.Time) ([]*models.Reservation, error)
	ListPastByOwner(ctx context.Context, ownerID string, now time.Time, limit int) ([]*models.Reservation, error)
	ListByDateRange(ctx context.Context, start, end time.Time) ([]*models.Reservation, error)

	CommittedCovers(ctx context.Context, start, end time.Time) (int, error)
	ExclusiveOverlapExists(ctx context.Context, resourceID int64, start, end time.Time, excludeID int64) (bool, error)

	ListWarningCandidates(ctx context.Context, now, warnBefore time.Time) ([]*models.Reservation, error)
	ListSessionsPastEnd(ctx context.Context, now time.Time) ([]*models.Reservation, error)
	MarkWarningNotified(ctx context.Context, id int64) (bool, error)
	ClearWarningNotified(ctx context.Context, id int64) error

	CreateExtensionRequest(ctx context.Context, req *models.ExtensionRequest) error
	GetExtensionRequest(ctx context.Context, id string) (*models.ExtensionRequest, error)
	ResolveExtensionRequest(ctx context.Context, id, status string) error
	ExpirePendingExtensions(ctx context.Context, reservationID int64) (int64, error)

	SetResourceStatus(ctx context.Context, resourceID int64, status string) error
	ResourceStatusOverrides(ctx context.Context) (map[int64]string, error)
}

// HoldRepository keeps short-lived checkout holds. Redis-backed in
// production with an in-memory fallback.
type HoldRepository interface {
	PlaceHold(ctx context.Context, hold *models.Hold) error
	ReleaseHold(ctx context.Context, token string) error
	BlockingHold(ctx context.Context, resourceID int64, start, end time.Time, ownerID string) (*models.Hold, error)
}

// Dispatcher delivers owner notifications. Fire-and-forget: delivery
// failures never block or roll back a state transition.
type Dispatcher interface {
	Notify(ctx context.Context, ownerID, templateID string, payload map[string]interface{}) error
}

// EventPublisher fans reservation lifecycle events out in-process.
type EventPublisher interface {
	PublishJSON(eventType string, payload interface{}) error
}

// ScheduleMirror pushes a day's reservations to an external host-stand view.
type ScheduleMirror interface {
	ReplaceDaySchedule(ctx context.Context, day time.Time, reservations []*models.Reservation) error
}

// SyncWorker accepts day-refresh requests for the schedule mirror.
type SyncWorker interface {
	EnqueueDay(day time.Time)
}
