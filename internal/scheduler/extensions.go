package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"lineup/internal/domain"
	"lineup/internal/ledger"
	"lineup/internal/models"
	"lineup/internal/notify"

	"github.com/google/uuid"
)

// RequestExtension handles an owner's response to an expiration warning.
// Accepted only while the session is inside its warning window; the grant
// re-checks the same resource's extended window and can fail with
// SlotUnavailable when a back-to-back booking already claims it.
func (s *Sweeper) RequestExtension(ctx context.Context, reservationID int64, actor ledger.Actor, minutes int) (*models.ExtensionRequest, error) {
	r, err := s.store.GetReservation(ctx, reservationID)
	if err != nil {
		return nil, err
	}

	if !actor.Staff() && actor.ID != r.OwnerID {
		return nil, fmt.Errorf("only the reservation owner may request an extension: %w", domain.ErrUnauthorized)
	}
	if r.Kind == models.KindTable {
		return nil, fmt.Errorf("dining reservations cannot be extended: %w", domain.ErrInvalidRequest)
	}
	if !s.validIncrement(minutes) {
		return nil, fmt.Errorf("extension must be one of %v minutes: %w", s.cfg.ExtensionIncrements, domain.ErrInvalidRequest)
	}

	now := s.now()
	switch {
	case r.Terminal() || !now.Before(r.End):
		return nil, fmt.Errorf("session already ended: %w", domain.ErrInvalidState)
	case !r.WarningNotified:
		return nil, fmt.Errorf("session is not in its warning window yet: %w", domain.ErrInvalidState)
	}

	req := &models.ExtensionRequest{
		ID:            uuid.NewString(),
		ReservationID: reservationID,
		Minutes:       minutes,
		ActorID:       actor.ID,
		Status:        models.ExtensionRequested,
	}
	if err := s.store.CreateExtensionRequest(ctx, req); err != nil {
		return nil, err
	}

	newEnd := r.End.Add(time.Duration(minutes) * time.Minute)
	err = s.ledger.ExtendSession(ctx, r, newEnd, func(ctx context.Context) error {
		return s.engine.CheckResourceWindow(ctx, r.ResourceID, r.End, newEnd, r.ID)
	})
	if err != nil {
		if errors.Is(err, domain.ErrSlotUnavailable) {
			req.Status = models.ExtensionDenied
			if rerr := s.store.ResolveExtensionRequest(ctx, req.ID, models.ExtensionDenied); rerr != nil {
				s.logger.Error().Err(rerr).Str("request_id", req.ID).Msg("resolve denied extension")
			}
			s.notify(ctx, r.OwnerID, notify.TemplateExtensionDenied, map[string]interface{}{
				"reservation_id": r.ID,
				"resource_name":  r.ResourceName,
				"minutes":        minutes,
			})
		}
		return req, err
	}

	req.Status = models.ExtensionApproved
	if err := s.store.ResolveExtensionRequest(ctx, req.ID, models.ExtensionApproved); err != nil {
		s.logger.Error().Err(err).Str("request_id", req.ID).Msg("resolve approved extension")
	}

	s.notify(ctx, r.OwnerID, notify.TemplateExtensionApproved, map[string]interface{}{
		"reservation_id": r.ID,
		"resource_name":  r.ResourceName,
		"minutes":        minutes,
		"new_end":        newEnd,
	})
	s.logger.Info().
		Int64("reservation_id", r.ID).
		Int("minutes", minutes).
		Time("new_end", newEnd).
		Msg("session extended")

	return req, nil
}

func (s *Sweeper) validIncrement(minutes int) bool {
	for _, inc := range s.cfg.ExtensionIncrements {
		if minutes == inc {
			return true
		}
	}
	return false
}
