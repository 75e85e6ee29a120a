// Package ledger is the system of record for reservations. All reservation
// state transitions go through it; the availability engine and the scheduler
// only observe.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"lineup/internal/config"
	"lineup/internal/domain"
	"lineup/internal/events"
	"lineup/internal/metrics"
	"lineup/internal/models"
	"lineup/internal/registry"
	"lineup/internal/timeslot"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Actor is the already-authenticated identity attached to every mutation.
// The identity provider upstream vouches for it; the ledger only checks
// ownership and the staff override.
type Actor struct {
	ID   string
	Role string
}

func (a Actor) Staff() bool { return a.Role == models.RoleStaff }

// CreateRequest describes a booking attempt. ResourceID 0 means "any table
// seating the party", resolved against the registry at commit.
type CreateRequest struct {
	VenueID         string
	ResourceID      int64
	Start           time.Time
	DurationMinutes int
	PartySize       int
	OwnerID         string
	GuestName       string
	GuestPhone      string
	Source          string
}

type Ledger struct {
	store    domain.Store
	registry *registry.Registry
	holds    domain.HoldRepository
	bus      domain.EventPublisher
	mirror   domain.SyncWorker
	cfg      config.BookingConfig
	logger   zerolog.Logger
	now      func() time.Time

	// one mutex per exclusive resource; serializes the check-and-commit so
	// two concurrent creates for the same lane cannot interleave.
	resourceLocks sync.Map
}

func New(store domain.Store, reg *registry.Registry, holds domain.HoldRepository, bus domain.EventPublisher, mirror domain.SyncWorker, cfg config.BookingConfig, logger *zerolog.Logger) *Ledger {
	return &Ledger{
		store:    store,
		registry: reg,
		holds:    holds,
		bus:      bus,
		mirror:   mirror,
		cfg:      cfg,
		logger:   logger.With().Str("component", "ledger").Logger(),
		now:      time.Now,
	}
}

// SetClock overrides the time source; tests only.
func (l *Ledger) SetClock(now func() time.Time) { l.now = now }

func (l *Ledger) granularity() time.Duration {
	return time.Duration(l.cfg.GranularityMinutes) * time.Minute
}

func (l *Ledger) cutoff() time.Duration {
	return time.Duration(l.cfg.CutoffMinutes) * time.Minute
}

func (l *Ledger) lockResource(id int64) *sync.Mutex {
	v, _ := l.resourceLocks.LoadOrStore(id, &sync.Mutex{})
	return v.(*sync.Mutex)
}

// Create validates and commits a reservation. The returned reservation is
// CONFIRMED: the slot claim happens inside the same transaction as the
// insert, so there is no observable pending phase.
func (l *Ledger) Create(ctx context.Context, req CreateRequest) (*models.Reservation, error) {
	now := l.now()

	if req.PartySize <= 0 {
		return nil, fmt.Errorf("party size must be positive: %w", domain.ErrInvalidRequest)
	}
	if req.OwnerID == "" {
		return nil, fmt.Errorf("owner is required: %w", domain.ErrInvalidRequest)
	}
	if !timeslot.Aligned(req.Start, l.granularity()) {
		return nil, fmt.Errorf("start %s is not on the %d-minute grid: %w",
			req.Start.Format(time.RFC3339), l.cfg.GranularityMinutes, domain.ErrInvalidRequest)
	}
	if req.Start.Before(now) {
		return nil, fmt.Errorf("start is in the past: %w", domain.ErrInvalidRequest)
	}
	if req.Start.After(now.AddDate(0, 0, l.cfg.HorizonDays)) {
		return nil, fmt.Errorf("start is beyond the %d-day booking horizon: %w",
			l.cfg.HorizonDays, domain.ErrInvalidRequest)
	}

	duration := time.Duration(req.DurationMinutes) * time.Minute
	if duration == 0 {
		duration = time.Duration(l.cfg.DefaultDurationMinutes) * time.Minute
	}
	if duration <= 0 || duration%l.granularity() != 0 {
		return nil, fmt.Errorf("duration must be a positive multiple of the grid: %w", domain.ErrInvalidRequest)
	}
	end := req.Start.Add(duration)

	venue := l.registry.Venue()
	if req.VenueID != venue.ID {
		return nil, fmt.Errorf("venue %q: %w", req.VenueID, domain.ErrNotFound)
	}
	window, open, err := timeslot.OperatingWindow(&venue, req.Start)
	if err != nil {
		return nil, err
	}
	if !open || !window.Contains(req.Start, end) {
		return nil, fmt.Errorf("venue is not open for %s..%s: %w",
			req.Start.Format("15:04"), end.Format("15:04"), domain.ErrInvalidRequest)
	}

	r := &models.Reservation{
		ConfirmationCode: uuid.NewString(),
		VenueID:          req.VenueID,
		ResourceID:       req.ResourceID,
		Kind:             models.KindTable,
		Start:            req.Start,
		End:              end,
		PartySize:        req.PartySize,
		Status:           models.StatusConfirmed,
		Source:           req.Source,
		OwnerID:          req.OwnerID,
		GuestName:        req.GuestName,
		GuestPhone:       req.GuestPhone,
	}
	if r.Source == "" {
		r.Source = models.SourceApp
	}

	exclusive := false
	tableCovers := 0
	if req.ResourceID != 0 {
		res, err := l.registry.Resource(req.ResourceID)
		if err != nil {
			return nil, err
		}
		if res.Status == models.ResourceOutOfService {
			return nil, fmt.Errorf("resource %q is out of service: %w", res.Name, domain.ErrSlotUnavailable)
		}
		if res.Kind == models.KindTable && res.Capacity > 0 && req.PartySize > res.Capacity {
			return nil, fmt.Errorf("table %q seats %d: %w", res.Name, res.Capacity, domain.ErrSlotUnavailable)
		}
		if res.Kind != models.KindTable && res.Capacity > 0 && req.PartySize > res.Capacity {
			return nil, fmt.Errorf("resource %q holds %d: %w", res.Name, res.Capacity, domain.ErrSlotUnavailable)
		}
		r.Kind = res.Kind
		r.ResourceName = res.Name
		exclusive = res.Exclusive()
		if res.Kind == models.KindTable {
			tableCovers = res.Capacity
		}
	} else {
		largest, err := l.registry.LargestTable(req.VenueID)
		if err != nil {
			return nil, err
		}
		if req.PartySize > largest {
			return nil, fmt.Errorf("no table seats a party of %d: %w", req.PartySize, domain.ErrSlotUnavailable)
		}
	}

	if exclusive && l.holds != nil {
		blocking, err := l.holds.BlockingHold(ctx, req.ResourceID, req.Start, end, req.OwnerID)
		if err != nil {
			l.logger.Warn().Err(err).Msg("hold check failed, continuing without it")
		} else if blocking != nil {
			metrics.IncSlotConflict()
			return nil, fmt.Errorf("resource is held by another guest: %w", domain.ErrSlotUnavailable)
		}
	}

	venueCovers := 0
	if !exclusive {
		covers, _, err := l.registry.DiningCapacity(req.VenueID)
		if err != nil {
			return nil, err
		}
		venueCovers = covers
	}

	if exclusive {
		mu := l.lockResource(req.ResourceID)
		mu.Lock()
		defer mu.Unlock()
	}

	if err := l.store.CreateReservationTx(ctx, r, venueCovers, tableCovers, exclusive); err != nil {
		if errors.Is(err, domain.ErrSlotUnavailable) {
			metrics.IncSlotConflict()
		}
		return nil, err
	}

	if exclusive {
		if err := l.registry.SetStatus(req.ResourceID, models.ResourceHeld); err != nil {
			l.logger.Warn().Err(err).Int64("resource_id", req.ResourceID).Msg("mark resource held")
		}
	}

	metrics.IncCreated(r.Source)
	l.publishEvent(events.EventReservationConfirmed, r, req.OwnerID)
	l.enqueueMirror(r.Start)

	l.logger.Info().
		Int64("reservation_id", r.ID).
		Int64("resource_id", r.ResourceID).
		Time("start", r.Start).
		Int("party_size", r.PartySize).
		Str("source", r.Source).
		Msg("reservation confirmed")

	return r, nil
}

// Cancel releases a reservation's capacity. Blocked inside the cutoff window
// unless the actor is staff. Capacity is visible to the next availability
// query as soon as this returns.
func (l *Ledger) Cancel(ctx context.Context, id int64, actor Actor, reason string) error {
	r, err := l.store.GetReservation(ctx, id)
	if err != nil {
		return err
	}

	if r.Terminal() {
		return fmt.Errorf("reservation is already %s: %w", r.Status, domain.ErrInvalidTransition)
	}
	if !actor.Staff() && actor.ID != r.OwnerID {
		return fmt.Errorf("only the owner may cancel: %w", domain.ErrUnauthorized)
	}
	if !actor.Staff() && timeslot.WithinCutoff(l.now(), r.Start, l.cutoff()) {
		return &domain.CutoffError{Deadline: r.Start.Add(-l.cutoff())}
	}

	if err := l.store.CancelReservation(ctx, id, r.Version, actor.ID, reason); err != nil {
		return err
	}

	l.releaseResource(r)
	metrics.IncCancelled()
	l.publishEvent(events.EventReservationCancelled, r, actor.ID)
	l.enqueueMirror(r.Start)

	l.logger.Info().Int64("reservation_id", id).Str("actor", actor.ID).Str("reason", reason).Msg("reservation cancelled")
	return nil
}

// MarkArrived transitions confirmed -> arrived. Staff only.
func (l *Ledger) MarkArrived(ctx context.Context, id int64, actor Actor) error {
	return l.transition(ctx, id, actor, models.StatusArrived, events.EventReservationArrived,
		models.StatusConfirmed)
}

// MarkCompleted transitions arrived -> completed. Staff only.
func (l *Ledger) MarkCompleted(ctx context.Context, id int64, actor Actor) error {
	return l.transition(ctx, id, actor, models.StatusCompleted, events.EventReservationCompleted,
		models.StatusArrived)
}

// MarkNoShow transitions confirmed -> no_show. Staff only.
func (l *Ledger) MarkNoShow(ctx context.Context, id int64, actor Actor) error {
	return l.transition(ctx, id, actor, models.StatusNoShow, events.EventReservationNoShow,
		models.StatusConfirmed)
}

func (l *Ledger) transition(ctx context.Context, id int64, actor Actor, to, eventType string, allowedFrom ...string) error {
	if !actor.Staff() {
		return fmt.Errorf("operator transition requires staff role: %w", domain.ErrUnauthorized)
	}

	r, err := l.store.GetReservation(ctx, id)
	if err != nil {
		return err
	}

	legal := false
	for _, from := range allowedFrom {
		if r.Status == from {
			legal = true
			break
		}
	}
	if !legal {
		return fmt.Errorf("cannot move %s to %s: %w", r.Status, to, domain.ErrInvalidTransition)
	}

	if err := l.store.UpdateReservationStatusWithVersion(ctx, id, r.Version, to); err != nil {
		return err
	}

	switch to {
	case models.StatusArrived:
		if r.ResourceID != 0 && r.Kind != models.KindTable {
			_ = l.registry.SetStatus(r.ResourceID, models.ResourceOccupied)
		}
	case models.StatusCompleted, models.StatusNoShow:
		l.releaseResource(r)
	}

	l.publishEvent(eventType, r, actor.ID)
	l.enqueueMirror(r.Start)
	return nil
}

func (l *Ledger) releaseResource(r *models.Reservation) {
	if r.ResourceID == 0 || r.Kind == models.KindTable {
		return
	}
	if err := l.registry.SetStatus(r.ResourceID, models.ResourceAvailable); err != nil {
		l.logger.Warn().Err(err).Int64("resource_id", r.ResourceID).Msg("release resource")
	}
}

// ListActive returns the owner's upcoming reservations, soonest first.
func (l *Ledger) ListActive(ctx context.Context, ownerID string, actor Actor) ([]*models.Reservation, error) {
	if !actor.Staff() && actor.ID != ownerID {
		return nil, fmt.Errorf("cannot list another guest's reservations: %w", domain.ErrUnauthorized)
	}
	return l.store.ListActiveByOwner(ctx, ownerID, l.now())
}

// ListPast returns finished reservations, newest first.
func (l *Ledger) ListPast(ctx context.Context, ownerID string, actor Actor, limit int) ([]*models.Reservation, error) {
	if !actor.Staff() && actor.ID != ownerID {
		return nil, fmt.Errorf("cannot list another guest's reservations: %w", domain.ErrUnauthorized)
	}
	return l.store.ListPastByOwner(ctx, ownerID, l.now(), limit)
}

// ExtendSession pushes a session's end out under the same per-resource lock
// creates use, so an extension and a back-to-back create cannot both claim
// the window. verify runs inside the lock; typically it is the availability
// engine's exclusive-window re-check.
func (l *Ledger) ExtendSession(ctx context.Context, r *models.Reservation, newEnd time.Time, verify func(context.Context) error) error {
	if r.Kind == models.KindTable {
		return fmt.Errorf("only session resources can be extended: %w", domain.ErrInvalidRequest)
	}

	mu := l.lockResource(r.ResourceID)
	mu.Lock()
	defer mu.Unlock()

	if verify != nil {
		if err := verify(ctx); err != nil {
			return err
		}
	}

	if err := l.store.ExtendReservationEnd(ctx, r.ID, r.Version, newEnd); err != nil {
		return err
	}

	r.End = newEnd
	l.publishEvent(events.EventSessionExtended, r, r.OwnerID)
	l.enqueueMirror(r.Start)
	return nil
}

// PlaceHold claims an exclusive resource window for the duration of a
// checkout. Best-effort: holds live in redis and expire on their own.
func (l *Ledger) PlaceHold(ctx context.Context, resourceID int64, start, end time.Time, ownerID string) (*models.Hold, error) {
	if l.holds == nil {
		return nil, fmt.Errorf("holds are not configured: %w", domain.ErrInvalidRequest)
	}
	res, err := l.registry.Resource(resourceID)
	if err != nil {
		return nil, err
	}
	if !res.Exclusive() {
		return nil, fmt.Errorf("holds apply to session resources only: %w", domain.ErrInvalidRequest)
	}

	if blocking, err := l.holds.BlockingHold(ctx, resourceID, start, end, ownerID); err != nil {
		return nil, err
	} else if blocking != nil {
		return nil, fmt.Errorf("resource is held by another guest: %w", domain.ErrSlotUnavailable)
	}

	hold := &models.Hold{
		Token:      uuid.NewString(),
		ResourceID: resourceID,
		OwnerID:    ownerID,
		Start:      start,
		End:        end,
		ExpiresAt:  l.now().Add(time.Duration(l.cfg.HoldTTLSeconds) * time.Second),
	}
	if err := l.holds.PlaceHold(ctx, hold); err != nil {
		return nil, err
	}
	return hold, nil
}

// ReleaseHold drops a checkout hold early.
func (l *Ledger) ReleaseHold(ctx context.Context, token string) error {
	if l.holds == nil {
		return nil
	}
	return l.holds.ReleaseHold(ctx, token)
}

// SetResourceOutOfService records an operator override, persisted so it
// survives restarts.
func (l *Ledger) SetResourceOutOfService(ctx context.Context, resourceID int64, actor Actor, outOfService bool) error {
	if !actor.Staff() {
		return fmt.Errorf("resource overrides require staff role: %w", domain.ErrUnauthorized)
	}

	status := models.ResourceAvailable
	if outOfService {
		status = models.ResourceOutOfService
	}
	if err := l.registry.SetStatus(resourceID, status); err != nil {
		return err
	}
	return l.store.SetResourceStatus(ctx, resourceID, status)
}

func (l *Ledger) publishEvent(eventType string, r *models.Reservation, actor string) {
	if l.bus == nil {
		return
	}
	err := l.bus.PublishJSON(eventType, events.ReservationEventPayload{
		ReservationID: r.ID,
		OwnerID:       r.OwnerID,
		ResourceID:    r.ResourceID,
		ResourceName:  r.ResourceName,
		Status:        r.Status,
		Start:         r.Start,
		End:           r.End,
		PartySize:     r.PartySize,
		Actor:         actor,
	})
	if err != nil {
		l.logger.Warn().Err(err).Str("event", eventType).Msg("publish event")
	}
}

func (l *Ledger) enqueueMirror(day time.Time) {
	if l.mirror != nil {
		l.mirror.EnqueueDay(day)
	}
}

// Store exposes the underlying store to sibling components (engine, sweep).
func (l *Ledger) Store() domain.Store { return l.store }
