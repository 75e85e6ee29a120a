// Package timeslot provides the pure time arithmetic the scheduler core is
// built on: grid quantization, cutoff checks and operating-window resolution.
package timeslot

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"lineup/internal/models"
)

// Quantize rounds t down to the nearest grid line. The grid is anchored at
// local midnight, so any venue opening time on a grid boundary stays aligned.
func Quantize(t time.Time, granularity time.Duration) time.Time {
	if granularity <= 0 {
		granularity = time.Duration(models.DefaultGranularityMinutes) * time.Minute
	}
	midnight := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
	offset := t.Sub(midnight)
	return midnight.Add(offset - offset%granularity)
}

// QuantizeUp rounds t up to the nearest grid line. A time already on the
// grid is returned unchanged.
func QuantizeUp(t time.Time, granularity time.Duration) time.Time {
	q := Quantize(t, granularity)
	if q.Before(t) {
		q = q.Add(granularity)
	}
	return q
}

// Aligned reports whether t sits exactly on a grid line.
func Aligned(t time.Time, granularity time.Duration) bool {
	return Quantize(t, granularity).Equal(t)
}

// WithinCutoff reports whether eventStart is closer to now than the cutoff
// window allows. A start exactly at the cutoff boundary is still allowed.
func WithinCutoff(now, eventStart time.Time, cutoff time.Duration) bool {
	return eventStart.Sub(now) < cutoff
}

// ParseClock parses "HH:MM" into minutes since midnight.
func ParseClock(s string) (int, error) {
	parts := strings.SplitN(strings.TrimSpace(s), ":", 2)
	if len(parts) != 2 {
		return 0, fmt.Errorf("invalid clock value %q", s)
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil || h < 0 || h > 23 {
		return 0, fmt.Errorf("invalid hour in %q", s)
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil || m < 0 || m > 59 {
		return 0, fmt.Errorf("invalid minute in %q", s)
	}
	return h*60 + m, nil
}

// Window is a resolved operating window for one date.
type Window struct {
	Open  time.Time
	Close time.Time
}

// Duration returns the window length.
func (w Window) Duration() time.Duration { return w.Close.Sub(w.Open) }

// Contains reports whether [start, end) fits inside the window.
func (w Window) Contains(start, end time.Time) bool {
	return !start.Before(w.Open) && !end.After(w.Close)
}

// OperatingWindow resolves date to the venue's hours for that weekday in the
// venue's timezone. Closed days return ok=false, not an error; a malformed
// hours table does return an error.
func OperatingWindow(venue *models.Venue, date time.Time) (Window, bool, error) {
	loc, err := time.LoadLocation(venue.Timezone)
	if err != nil {
		return Window{}, false, fmt.Errorf("venue timezone %q: %w", venue.Timezone, err)
	}

	local := date.In(loc)
	weekday := strings.ToLower(local.Weekday().String())

	for _, day := range venue.Hours {
		if strings.ToLower(day.Weekday) != weekday {
			continue
		}
		openMin, err := ParseClock(day.Open)
		if err != nil {
			return Window{}, false, err
		}
		closeMin, err := ParseClock(day.Close)
		if err != nil {
			return Window{}, false, err
		}
		if openMin == closeMin {
			return Window{}, false, nil
		}
		if closeMin < openMin {
			return Window{}, false, fmt.Errorf("venue hours for %s close before they open", day.Weekday)
		}

		midnight := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)
		return Window{
			Open:  midnight.Add(time.Duration(openMin) * time.Minute),
			Close: midnight.Add(time.Duration(closeMin) * time.Minute),
		}, true, nil
	}

	return Window{}, false, nil
}

// DayBounds returns local midnight of the date and of the following day.
func DayBounds(date time.Time, loc *time.Location) (time.Time, time.Time) {
	local := date.In(loc)
	start := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)
	return start, start.AddDate(0, 0, 1)
}
