// Package scheduler runs the session lifecycle: the periodic sweep that
// moves active sessions into their warning window and expires them, and the
// extension request flow.
package scheduler

import (
	"context"
	"time"

	"lineup/internal/availability"
	"lineup/internal/config"
	"lineup/internal/domain"
	"lineup/internal/events"
	"lineup/internal/ledger"
	"lineup/internal/metrics"
	"lineup/internal/models"
	"lineup/internal/notify"
	"lineup/internal/registry"
	"lineup/internal/worker"

	"github.com/rs/zerolog"
)

type Sweeper struct {
	store      domain.Store
	ledger     *ledger.Ledger
	engine     *availability.Engine
	registry   *registry.Registry
	dispatcher domain.Dispatcher
	bus        domain.EventPublisher
	cfg        config.BookingConfig
	retry      worker.RetryPolicy
	logger     zerolog.Logger
	now        func() time.Time
}

func NewSweeper(store domain.Store, led *ledger.Ledger, engine *availability.Engine, reg *registry.Registry, dispatcher domain.Dispatcher, bus domain.EventPublisher, cfg config.BookingConfig, logger *zerolog.Logger) *Sweeper {
	return &Sweeper{
		store:      store,
		ledger:     led,
		engine:     engine,
		registry:   reg,
		dispatcher: dispatcher,
		bus:        bus,
		cfg:        cfg,
		retry: worker.RetryPolicy{
			MaxRetries:   3,
			InitialDelay: time.Second,
			MaxDelay:     10 * time.Second,
		},
		logger: logger.With().Str("component", "sweeper").Logger(),
		now:    time.Now,
	}
}

// SetClock overrides the time source; tests only.
func (s *Sweeper) SetClock(now func() time.Time) { s.now = now }

// Run sweeps once per configured interval until the context is cancelled.
func (s *Sweeper) Run(ctx context.Context) {
	interval := time.Duration(s.cfg.SweepIntervalSeconds) * time.Second
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.logger.Info().Dur("interval", interval).Msg("session sweep started")
	for {
		select {
		case <-ctx.Done():
			s.logger.Info().Msg("session sweep stopped")
			return
		case <-ticker.C:
			if err := s.Sweep(ctx); err != nil {
				s.logger.Error().Err(err).Msg("sweep failed")
			}
		}
	}
}

// Sweep runs one pass. Safe to run concurrently with creates, cancels and
// extensions: the warning flip is a conditional update, so re-entrant sweeps
// cannot double-fire a notification.
func (s *Sweeper) Sweep(ctx context.Context) error {
	now := s.now()

	if err := s.sweepWarnings(ctx, now); err != nil {
		return err
	}
	return s.sweepExpirations(ctx, now)
}

func (s *Sweeper) sweepWarnings(ctx context.Context, now time.Time) error {
	warnBefore := now.Add(time.Duration(s.cfg.WarningMinutes) * time.Minute)
	candidates, err := s.store.ListWarningCandidates(ctx, now, warnBefore)
	if err != nil {
		return err
	}

	for _, r := range candidates {
		won, err := s.store.MarkWarningNotified(ctx, r.ID)
		if err != nil {
			s.logger.Error().Err(err).Int64("reservation_id", r.ID).Msg("mark warning")
			continue
		}
		if !won {
			continue // another sweep got here first
		}

		metrics.IncSessionWarning()
		s.publish(events.EventSessionWarning, r)
		s.notify(ctx, r.OwnerID, notify.TemplateSessionWarning, map[string]interface{}{
			"reservation_id": r.ID,
			"resource_name":  r.ResourceName,
			"ends_at":        r.End,
			"minutes_left":   int(r.End.Sub(now).Minutes()),
		})
		s.logger.Info().Int64("reservation_id", r.ID).Time("end", r.End).Msg("session entered warning window")
	}
	return nil
}

func (s *Sweeper) sweepExpirations(ctx context.Context, now time.Time) error {
	expired, err := s.store.ListSessionsPastEnd(ctx, now)
	if err != nil {
		return err
	}

	for _, r := range expired {
		if err := s.store.UpdateReservationStatusWithVersion(ctx, r.ID, r.Version, models.StatusCompleted); err != nil {
			// Version conflict means someone extended or cancelled mid-sweep;
			// the next pass will see the fresh row.
			s.logger.Warn().Err(err).Int64("reservation_id", r.ID).Msg("expire session")
			continue
		}

		lapsed, err := s.store.ExpirePendingExtensions(ctx, r.ID)
		if err != nil {
			s.logger.Error().Err(err).Int64("reservation_id", r.ID).Msg("expire pending extensions")
		}

		if r.ResourceID != 0 {
			if err := s.registry.SetStatus(r.ResourceID, models.ResourceAvailable); err != nil {
				s.logger.Warn().Err(err).Int64("resource_id", r.ResourceID).Msg("release expired resource")
			}
		}

		metrics.IncSessionExpiration()
		s.publish(events.EventSessionExpired, r)
		s.notify(ctx, r.OwnerID, notify.TemplateSessionExpired, map[string]interface{}{
			"reservation_id": r.ID,
			"resource_name":  r.ResourceName,
		})
		s.logger.Info().
			Int64("reservation_id", r.ID).
			Int64("lapsed_extensions", lapsed).
			Msg("session expired")
	}
	return nil
}

// notify is best-effort with a short backoff. Failures are logged and
// swallowed; they never block or roll back the state transition.
func (s *Sweeper) notify(ctx context.Context, ownerID, templateID string, payload map[string]interface{}) {
	if s.dispatcher == nil {
		return
	}

	var err error
	for attempt := 1; attempt <= s.retry.MaxRetries; attempt++ {
		if err = s.dispatcher.Notify(ctx, ownerID, templateID, payload); err == nil {
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(s.retry.NextDelay(attempt)):
		}
	}
	s.logger.Warn().Err(err).Str("owner_id", ownerID).Str("template", templateID).Msg("notification dropped")
}

func (s *Sweeper) publish(eventType string, r *models.Reservation) {
	if s.bus == nil {
		return
	}
	_ = s.bus.PublishJSON(eventType, events.ReservationEventPayload{
		ReservationID: r.ID,
		OwnerID:       r.OwnerID,
		ResourceID:    r.ResourceID,
		ResourceName:  r.ResourceName,
		Status:        r.Status,
		Start:         r.Start,
		End:           r.End,
		PartySize:     r.PartySize,
	})
}
