package repository

import (
	"context"
	"sync"
	"time"

	"lineup/internal/models"
)

// MemoryHoldRepository keeps checkout holds in process memory. Used in tests
// and as the failover target when redis is unreachable.
type MemoryHoldRepository struct {
	mu    sync.Mutex
	holds map[string]*models.Hold
	now   func() time.Time
}

func NewMemoryHoldRepository() *MemoryHoldRepository {
	return &MemoryHoldRepository{holds: make(map[string]*models.Hold), now: time.Now}
}

// SetClock overrides the time source; tests only. Hold expiry must be judged
// against the same clock that stamped ExpiresAt.
func (r *MemoryHoldRepository) SetClock(now func() time.Time) { r.now = now }

func (r *MemoryHoldRepository) PlaceHold(ctx context.Context, hold *models.Hold) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	copied := *hold
	r.holds[hold.Token] = &copied
	return nil
}

func (r *MemoryHoldRepository) ReleaseHold(ctx context.Context, token string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.holds, token)
	return nil
}

// BlockingHold returns a live hold by another owner overlapping the window,
// or nil when the window is clear. Expired holds are pruned on the way.
func (r *MemoryHoldRepository) BlockingHold(ctx context.Context, resourceID int64, start, end time.Time, ownerID string) (*models.Hold, error) {
	now := r.now()

	r.mu.Lock()
	defer r.mu.Unlock()

	for token, h := range r.holds {
		if now.After(h.ExpiresAt) {
			delete(r.holds, token)
			continue
		}
		if h.ResourceID != resourceID || h.OwnerID == ownerID {
			continue
		}
		if h.Start.Before(end) && start.Before(h.End) {
			copied := *h
			return &copied, nil
		}
	}
	return nil, nil
}
