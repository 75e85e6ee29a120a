package timeslot

import (
	"testing"
	"time"

	"lineup/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQuantize(t *testing.T) {
	grid := 15 * time.Minute
	base := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name string
		in   time.Time
		want time.Time
	}{
		{"on the line", base.Add(11 * time.Hour), base.Add(11 * time.Hour)},
		{"rounds down", base.Add(11*time.Hour + 7*time.Minute), base.Add(11 * time.Hour)},
		{"just before next line", base.Add(11*time.Hour + 14*time.Minute + 59*time.Second), base.Add(11 * time.Hour)},
		{"odd minutes", base.Add(18*time.Hour + 22*time.Minute), base.Add(18*time.Hour + 15*time.Minute)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.True(t, Quantize(tt.in, grid).Equal(tt.want))
		})
	}
}

func TestQuantizeUp(t *testing.T) {
	grid := 15 * time.Minute
	base := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name string
		in   time.Time
		want time.Time
	}{
		{"on the line stays", base.Add(11 * time.Hour), base.Add(11 * time.Hour)},
		{"rounds up", base.Add(11*time.Hour + 10*time.Minute), base.Add(11*time.Hour + 15*time.Minute)},
		{"one second past the line", base.Add(11*time.Hour + time.Second), base.Add(11*time.Hour + 15*time.Minute)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.True(t, QuantizeUp(tt.in, grid).Equal(tt.want))
		})
	}
}

func TestAligned(t *testing.T) {
	grid := 15 * time.Minute
	aligned := time.Date(2026, 3, 10, 18, 30, 0, 0, time.UTC)
	assert.True(t, Aligned(aligned, grid))
	assert.False(t, Aligned(aligned.Add(5*time.Minute), grid))
	assert.False(t, Aligned(aligned.Add(time.Second), grid))
}

func TestWithinCutoff(t *testing.T) {
	now := time.Date(2026, 3, 10, 17, 0, 0, 0, time.UTC)
	cutoff := 2 * time.Hour

	// 121 minutes ahead: outside the cutoff, cancellation allowed.
	assert.False(t, WithinCutoff(now, now.Add(121*time.Minute), cutoff))
	// Exactly at the boundary is still allowed.
	assert.False(t, WithinCutoff(now, now.Add(120*time.Minute), cutoff))
	// 119 minutes ahead: inside the cutoff.
	assert.True(t, WithinCutoff(now, now.Add(119*time.Minute), cutoff))
	// Already started.
	assert.True(t, WithinCutoff(now, now.Add(-10*time.Minute), cutoff))
}

func TestParseClock(t *testing.T) {
	m, err := ParseClock("11:00")
	require.NoError(t, err)
	assert.Equal(t, 660, m)

	m, err = ParseClock("23:45")
	require.NoError(t, err)
	assert.Equal(t, 23*60+45, m)

	for _, bad := range []string{"", "24:00", "11:60", "eleven", "11"} {
		_, err := ParseClock(bad)
		assert.Error(t, err, bad)
	}
}

func testVenue() *models.Venue {
	return &models.Venue{
		ID:       "main",
		Name:     "The Lineup",
		Timezone: "UTC",
		Hours: []models.DayHours{
			{Weekday: "Monday", Open: "00:00", Close: "00:00"},
			{Weekday: "Tuesday", Open: "16:00", Close: "23:00"},
			{Weekday: "Wednesday", Open: "16:00", Close: "23:00"},
			{Weekday: "Thursday", Open: "16:00", Close: "23:00"},
			{Weekday: "Friday", Open: "11:00", Close: "23:00"},
			{Weekday: "Saturday", Open: "11:00", Close: "23:00"},
			{Weekday: "Sunday", Open: "11:00", Close: "22:00"},
		},
	}
}

func TestOperatingWindow(t *testing.T) {
	venue := testVenue()

	// 2026-03-13 is a Friday.
	friday := time.Date(2026, 3, 13, 12, 0, 0, 0, time.UTC)
	window, open, err := OperatingWindow(venue, friday)
	require.NoError(t, err)
	require.True(t, open)
	assert.Equal(t, time.Date(2026, 3, 13, 11, 0, 0, 0, time.UTC), window.Open)
	assert.Equal(t, time.Date(2026, 3, 13, 23, 0, 0, 0, time.UTC), window.Close)
	assert.Equal(t, 12*time.Hour, window.Duration())

	// Monday is marked closed with open == close.
	monday := time.Date(2026, 3, 9, 12, 0, 0, 0, time.UTC)
	_, open, err = OperatingWindow(venue, monday)
	require.NoError(t, err)
	assert.False(t, open)

	// A weekday with no entry at all is closed too.
	venue.Hours = venue.Hours[:1]
	_, open, err = OperatingWindow(venue, friday)
	require.NoError(t, err)
	assert.False(t, open)
}

func TestOperatingWindow_Invalid(t *testing.T) {
	venue := testVenue()
	venue.Hours[4].Close = "09:00" // Friday closes before it opens
	friday := time.Date(2026, 3, 13, 12, 0, 0, 0, time.UTC)
	_, _, err := OperatingWindow(venue, friday)
	assert.Error(t, err)

	venue.Timezone = "Not/AZone"
	_, _, err = OperatingWindow(venue, friday)
	assert.Error(t, err)
}

func TestWindowContains(t *testing.T) {
	day := time.Date(2026, 3, 13, 0, 0, 0, 0, time.UTC)
	w := Window{Open: day.Add(11 * time.Hour), Close: day.Add(23 * time.Hour)}

	// The last bookable 90-minute start is 21:30.
	assert.True(t, w.Contains(day.Add(21*time.Hour+30*time.Minute), day.Add(23*time.Hour)))
	assert.False(t, w.Contains(day.Add(21*time.Hour+45*time.Minute), day.Add(23*time.Hour+15*time.Minute)))
	assert.False(t, w.Contains(day.Add(10*time.Hour), day.Add(11*time.Hour+30*time.Minute)))
}

func TestDayBounds(t *testing.T) {
	loc := time.UTC
	noon := time.Date(2026, 3, 13, 12, 34, 0, 0, loc)
	start, end := DayBounds(noon, loc)
	assert.Equal(t, time.Date(2026, 3, 13, 0, 0, 0, 0, loc), start)
	assert.Equal(t, time.Date(2026, 3, 14, 0, 0, 0, 0, loc), end)
}
