package repository

import (
	"context"
	"sync/atomic"
	"time"

	"lineup/internal/domain"
	"lineup/internal/models"

	"github.com/rs/zerolog"
)

// FailoverHoldRepository serves holds from the primary (redis) and drops to
// the in-memory fallback when it fails, probing the primary again after a
// minute. Holds placed during an outage live only in this process; that is
// acceptable for a best-effort checkout courtesy.
type FailoverHoldRepository struct {
	primary   domain.HoldRepository
	fallback  domain.HoldRepository
	logger    *zerolog.Logger
	isDown    atomic.Bool
	lastCheck atomic.Int64
}

func NewFailoverHoldRepository(primary, fallback domain.HoldRepository, logger *zerolog.Logger) *FailoverHoldRepository {
	return &FailoverHoldRepository{
		primary:  primary,
		fallback: fallback,
		logger:   logger,
	}
}

func (r *FailoverHoldRepository) markDown(err error) {
	r.logger.Error().Err(err).Msg("primary hold repository failed, falling back to memory")
	r.isDown.Store(true)
	r.lastCheck.Store(time.Now().UnixNano())
}

func (r *FailoverHoldRepository) shouldProbe() bool {
	return time.Since(time.Unix(0, r.lastCheck.Load())) > time.Minute
}

func (r *FailoverHoldRepository) PlaceHold(ctx context.Context, hold *models.Hold) error {
	if !r.isDown.Load() || r.shouldProbe() {
		err := r.primary.PlaceHold(ctx, hold)
		if err == nil {
			r.isDown.Store(false)
			return nil
		}
		r.markDown(err)
	}
	return r.fallback.PlaceHold(ctx, hold)
}

func (r *FailoverHoldRepository) ReleaseHold(ctx context.Context, token string) error {
	if !r.isDown.Load() || r.shouldProbe() {
		err := r.primary.ReleaseHold(ctx, token)
		if err == nil {
			r.isDown.Store(false)
		} else {
			r.markDown(err)
		}
	}
	// Release on both sides; a hold may have landed in the fallback.
	return r.fallback.ReleaseHold(ctx, token)
}

func (r *FailoverHoldRepository) BlockingHold(ctx context.Context, resourceID int64, start, end time.Time, ownerID string) (*models.Hold, error) {
	if !r.isDown.Load() || r.shouldProbe() {
		hold, err := r.primary.BlockingHold(ctx, resourceID, start, end, ownerID)
		if err == nil {
			r.isDown.Store(false)
			if hold != nil {
				return hold, nil
			}
			return r.fallback.BlockingHold(ctx, resourceID, start, end, ownerID)
		}
		r.markDown(err)
	}
	return r.fallback.BlockingHold(ctx, resourceID, start, end, ownerID)
}
