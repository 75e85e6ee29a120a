// Package availability computes bookable slots for a venue/date/party from
// registry capacity minus the ledger's committed covers. Slots are derived
// on demand and never stored; they are only as fresh as the ledger state at
// query time.
package availability

import (
	"context"
	"fmt"
	"strings"
	"time"

	"lineup/internal/config"
	"lineup/internal/domain"
	"lineup/internal/metrics"
	"lineup/internal/models"
	"lineup/internal/registry"
	"lineup/internal/timeslot"

	"github.com/rs/zerolog"
)

// Result carries the slot list plus a reason, so callers can message
// "closed" or "too far out" differently from "fully booked".
type Result struct {
	Reason string        `json:"reason"`
	Slots  []models.Slot `json:"slots"`
}

type Engine struct {
	store    domain.Store
	registry *registry.Registry
	cfg      config.BookingConfig
	logger   zerolog.Logger
	now      func() time.Time
}

func New(store domain.Store, reg *registry.Registry, cfg config.BookingConfig, logger *zerolog.Logger) *Engine {
	return &Engine{
		store:    store,
		registry: reg,
		cfg:      cfg,
		logger:   logger.With().Str("component", "availability").Logger(),
		now:      time.Now,
	}
}

// SetClock overrides the time source; tests only.
func (e *Engine) SetClock(now func() time.Time) { e.now = now }

// ComputeAvailability returns the bookable slots for the date. Past dates
// and closed days come back as empty results, not errors; only a malformed
// request or unknown venue errors.
func (e *Engine) ComputeAvailability(ctx context.Context, venueID string, date time.Time, partySize int) (*Result, error) {
	if partySize <= 0 {
		return nil, fmt.Errorf("party size must be positive: %w", domain.ErrInvalidRequest)
	}

	venue := e.registry.Venue()
	if venueID != venue.ID {
		return nil, fmt.Errorf("venue %q: %w", venueID, domain.ErrNotFound)
	}

	loc, err := time.LoadLocation(venue.Timezone)
	if err != nil {
		return nil, fmt.Errorf("venue timezone: %w", err)
	}

	// The date parameter names a calendar day. Take its Y/M/D literally in
	// the venue's timezone, whatever location the caller parsed it in;
	// otherwise a UTC-midnight date shifts to the previous local day.
	day := time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, loc)

	now := e.now().In(loc)
	dayStart, _ := timeslot.DayBounds(day, loc)
	todayStart, _ := timeslot.DayBounds(now, loc)

	if dayStart.Before(todayStart) {
		return e.result(models.ReasonPastDate, nil), nil
	}
	if dayStart.After(todayStart.AddDate(0, 0, e.cfg.HorizonDays)) {
		return e.result(models.ReasonBeyondHorizon, nil), nil
	}

	window, open, err := timeslot.OperatingWindow(&venue, day)
	if err != nil {
		return nil, err
	}
	if !open {
		return e.result(models.ReasonClosed, nil), nil
	}

	covers, estimated, err := e.registry.DiningCapacity(venueID)
	if err != nil {
		return nil, err
	}

	granularity := time.Duration(e.cfg.GranularityMinutes) * time.Minute
	duration := time.Duration(e.cfg.DefaultDurationMinutes) * time.Minute

	// Candidate starts span the operating window on the midnight-anchored
	// grid the ledger validates against; an off-grid opening time rounds up
	// to the first bookable line. The last start is the one whose
	// reservation still ends by closing time.
	var starts []time.Time
	var avail []int
	for start := timeslot.QuantizeUp(window.Open, granularity); !start.Add(duration).After(window.Close); start = start.Add(granularity) {
		committed, err := e.store.CommittedCovers(ctx, start, start.Add(duration))
		if err != nil {
			return nil, err
		}
		starts = append(starts, start)
		avail = append(avail, covers-committed)
	}

	confidence := models.ConfidenceHigh
	if estimated {
		confidence = models.ConfidenceLow
	}

	var slots []models.Slot
	for i, start := range starts {
		if avail[i] < partySize {
			continue
		}
		if start.Before(now) {
			continue // today's elapsed grid lines
		}
		slots = append(slots, models.Slot{
			Start:           start,
			End:             start.Add(duration),
			Tier:            e.tierFor(start, avail, i, partySize),
			Confidence:      confidence,
			AvailableCovers: avail[i],
		})
	}

	return e.result(models.ReasonOK, slots), nil
}

func (e *Engine) result(reason string, slots []models.Slot) *Result {
	metrics.IncAvailabilityQuery(reason)
	return &Result{Reason: reason, Slots: slots}
}

// tierFor classifies one candidate. Most favorable tier wins:
// recommended > available > flexible.
func (e *Engine) tierFor(start time.Time, avail []int, i, partySize int) string {
	if e.inRecommendedWindow(start) && float64(avail[i]) >= e.cfg.RecommendedMargin*float64(partySize) {
		return models.TierRecommended
	}

	tight := avail[i]-partySize < e.cfg.TightFitCovers
	neighborFull := (i > 0 && avail[i-1] <= 0) || (i+1 < len(avail) && avail[i+1] <= 0)
	if tight || neighborFull {
		return models.TierFlexible
	}

	return models.TierAvailable
}

func (e *Engine) inRecommendedWindow(start time.Time) bool {
	minutes := start.Hour()*60 + start.Minute()
	for _, w := range e.cfg.RecommendedWindows {
		from, err := timeslot.ParseClock(w.From)
		if err != nil {
			continue
		}
		to, err := timeslot.ParseClock(w.To)
		if err != nil {
			continue
		}
		if minutes >= from && minutes < to {
			return true
		}
	}
	return false
}

// CheckResourceWindow re-validates an exclusive resource for [start, end),
// ignoring reservation excludeID. The extension flow calls this before
// granting extra time on the same lane.
func (e *Engine) CheckResourceWindow(ctx context.Context, resourceID int64, start, end time.Time, excludeID int64) error {
	res, err := e.registry.Resource(resourceID)
	if err != nil {
		return err
	}
	if !res.Exclusive() {
		return fmt.Errorf("resource %q is not exclusive-occupancy: %w", res.Name, domain.ErrInvalidRequest)
	}
	if res.Status == models.ResourceOutOfService {
		return fmt.Errorf("resource %q is out of service: %w", res.Name, domain.ErrSlotUnavailable)
	}

	taken, err := e.store.ExclusiveOverlapExists(ctx, resourceID, start, end, excludeID)
	if err != nil {
		return err
	}
	if taken {
		metrics.IncSlotConflict()
		return fmt.Errorf("%s is already claimed for %s..%s: %w",
			strings.ToLower(res.Name), start.Format("15:04"), end.Format("15:04"), domain.ErrSlotUnavailable)
	}
	return nil
}
