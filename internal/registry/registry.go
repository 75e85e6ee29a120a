// Package registry holds the quasi-static description of the venue's
// bookable resources. It is read-mostly: the only mutations are resource
// status transitions driven by the ledger or an operator override.
package registry

import (
	"fmt"
	"sort"
	"sync"

	"lineup/internal/config"
	"lineup/internal/domain"
	"lineup/internal/models"
)

// fallbackTableCovers stands in for a dining table with no configured
// capacity. Slots computed from it are flagged low-confidence.
const fallbackTableCovers = 4

type Registry struct {
	mu        sync.RWMutex
	venue     models.Venue
	resources map[int64]*models.Resource
}

func New(venue models.Venue, resources []models.Resource) (*Registry, error) {
	if venue.ID == "" {
		return nil, fmt.Errorf("venue id is required")
	}
	if err := config.ValidateResources(resources); err != nil {
		return nil, err
	}

	byID := make(map[int64]*models.Resource, len(resources))
	for i := range resources {
		r := resources[i]
		if r.Status == "" {
			r.Status = models.ResourceAvailable
		}
		byID[r.ID] = &r
	}

	return &Registry{venue: venue, resources: byID}, nil
}

// Venue returns the configured venue description.
func (reg *Registry) Venue() models.Venue {
	reg.mu.RLock()
	defer reg.mu.RUnlock()
	return reg.venue
}

func (reg *Registry) checkVenue(venueID string) error {
	if venueID != reg.venue.ID {
		return fmt.Errorf("venue %q: %w", venueID, domain.ErrNotFound)
	}
	return nil
}

// ResourcesFor lists the venue's resources ordered by sort order then id.
func (reg *Registry) ResourcesFor(venueID string) ([]models.Resource, error) {
	reg.mu.RLock()
	defer reg.mu.RUnlock()

	if err := reg.checkVenue(venueID); err != nil {
		return nil, err
	}

	out := make([]models.Resource, 0, len(reg.resources))
	for _, r := range reg.resources {
		out = append(out, *r)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].SortOrder == out[j].SortOrder {
			return out[i].ID < out[j].ID
		}
		return out[i].SortOrder < out[j].SortOrder
	})
	return out, nil
}

// Resource returns one resource by id.
func (reg *Registry) Resource(id int64) (models.Resource, error) {
	reg.mu.RLock()
	defer reg.mu.RUnlock()

	r, ok := reg.resources[id]
	if !ok {
		return models.Resource{}, fmt.Errorf("resource %d: %w", id, domain.ErrNotFound)
	}
	return *r, nil
}

// DiningCapacity returns the venue's aggregate covers across in-service
// tables. estimated is true when any table had no configured capacity and a
// fallback figure was used; callers propagate that as low confidence.
func (reg *Registry) DiningCapacity(venueID string) (covers int, estimated bool, err error) {
	reg.mu.RLock()
	defer reg.mu.RUnlock()

	if err := reg.checkVenue(venueID); err != nil {
		return 0, false, err
	}

	for _, r := range reg.resources {
		if r.Kind != models.KindTable || r.Status == models.ResourceOutOfService {
			continue
		}
		if r.Capacity <= 0 {
			covers += fallbackTableCovers
			estimated = true
			continue
		}
		covers += r.Capacity
	}
	return covers, estimated, nil
}

// LargestTable returns the biggest in-service table capacity, used to reject
// parties no single table arrangement could seat.
func (reg *Registry) LargestTable(venueID string) (int, error) {
	reg.mu.RLock()
	defer reg.mu.RUnlock()

	if err := reg.checkVenue(venueID); err != nil {
		return 0, err
	}

	largest := 0
	for _, r := range reg.resources {
		if r.Kind != models.KindTable || r.Status == models.ResourceOutOfService {
			continue
		}
		c := r.Capacity
		if c <= 0 {
			c = fallbackTableCovers
		}
		if c > largest {
			largest = c
		}
	}
	return largest, nil
}

// SessionResources lists in-service exclusive resources (lanes, time blocks).
func (reg *Registry) SessionResources(venueID string) ([]models.Resource, error) {
	all, err := reg.ResourcesFor(venueID)
	if err != nil {
		return nil, err
	}
	out := all[:0]
	for _, r := range all {
		if r.Exclusive() && r.Status != models.ResourceOutOfService {
			out = append(out, r)
		}
	}
	return out, nil
}

// SetStatus transitions a resource's status. The ledger calls this on
// reservation create/cancel/complete; operators call it for out-of-service.
func (reg *Registry) SetStatus(id int64, status string) error {
	switch status {
	case models.ResourceAvailable, models.ResourceHeld, models.ResourceOccupied, models.ResourceOutOfService:
	default:
		return fmt.Errorf("resource status %q: %w", status, domain.ErrInvalidRequest)
	}

	reg.mu.Lock()
	defer reg.mu.Unlock()

	r, ok := reg.resources[id]
	if !ok {
		return fmt.Errorf("resource %d: %w", id, domain.ErrNotFound)
	}
	r.Status = status
	return nil
}

// ApplyOverrides restores persisted status overrides, typically at startup.
func (reg *Registry) ApplyOverrides(overrides map[int64]string) {
	reg.mu.Lock()
	defer reg.mu.Unlock()

	for id, status := range overrides {
		if r, ok := reg.resources[id]; ok {
			r.Status = status
		}
	}
}
