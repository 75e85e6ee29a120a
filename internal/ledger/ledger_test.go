package ledger

import (
	"context"
	"sync"
	"testing"
	"time"

	"lineup/internal/config"
	"lineup/internal/database"
	"lineup/internal/domain"
	"lineup/internal/models"
	"lineup/internal/registry"
	"lineup/internal/repository"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2026, 3, 13, 12, 0, 0, 0, time.UTC) // a Friday

func testBookingConfig() config.BookingConfig {
	return config.BookingConfig{
		GranularityMinutes:     15,
		DefaultDurationMinutes: 90,
		CutoffMinutes:          120,
		HorizonDays:            90,
		WarningMinutes:         15,
		HoldTTLSeconds:         300,
	}
}

func testVenue() models.Venue {
	allWeek := []models.DayHours{}
	for _, d := range []string{"Monday", "Tuesday", "Wednesday", "Thursday", "Friday", "Saturday", "Sunday"} {
		allWeek = append(allWeek, models.DayHours{Weekday: d, Open: "11:00", Close: "23:00"})
	}
	return models.Venue{ID: "main", Name: "The Lineup", Timezone: "UTC", Hours: allWeek}
}

func setupLedger(t *testing.T) (*Ledger, *registry.Registry, *database.DB) {
	t.Helper()
	logger := zerolog.Nop()

	db, err := database.NewDB(":memory:", &logger)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	reg, err := registry.New(testVenue(), []models.Resource{
		{ID: 1, Name: "Table 1", Kind: models.KindTable, Capacity: 4, SortOrder: 1},
		{ID: 2, Name: "Table 2", Kind: models.KindTable, Capacity: 6, SortOrder: 2},
		{ID: 10, Name: "Lane 1", Kind: models.KindLane, Capacity: 6, SortOrder: 10},
		{ID: 11, Name: "Lane 2", Kind: models.KindLane, Capacity: 6, SortOrder: 11},
	})
	require.NoError(t, err)

	holds := repository.NewMemoryHoldRepository()
	holds.SetClock(func() time.Time { return testNow })

	led := New(db, reg, holds, nil, nil, testBookingConfig(), &logger)
	led.SetClock(func() time.Time { return testNow })
	return led, reg, db
}

func diningRequest(start time.Time, party int) CreateRequest {
	return CreateRequest{
		VenueID:   "main",
		Start:     start,
		PartySize: party,
		OwnerID:   "guest-1",
		GuestName: "Sam",
	}
}

func laneRequest(start time.Time, party int) CreateRequest {
	req := diningRequest(start, party)
	req.ResourceID = 10
	req.DurationMinutes = 90
	return req
}

func TestCreate_Dining(t *testing.T) {
	led, _, _ := setupLedger(t)
	start := testNow.Add(6 * time.Hour) // 18:00

	r, err := led.Create(context.Background(), diningRequest(start, 4))
	require.NoError(t, err)
	assert.Equal(t, models.StatusConfirmed, r.Status)
	assert.Equal(t, models.KindTable, r.Kind)
	assert.NotEmpty(t, r.ConfirmationCode)
	assert.True(t, r.End.Equal(start.Add(90*time.Minute))) // default duration
	assert.Equal(t, models.SourceApp, r.Source)
}

func TestCreate_Validation(t *testing.T) {
	led, _, _ := setupLedger(t)
	start := testNow.Add(6 * time.Hour)

	tests := []struct {
		name   string
		mutate func(*CreateRequest)
		want   error
	}{
		{"zero party", func(r *CreateRequest) { r.PartySize = 0 }, domain.ErrInvalidRequest},
		{"no owner", func(r *CreateRequest) { r.OwnerID = "" }, domain.ErrInvalidRequest},
		{"off grid", func(r *CreateRequest) { r.Start = start.Add(7 * time.Minute) }, domain.ErrInvalidRequest},
		{"in the past", func(r *CreateRequest) { r.Start = testNow.Add(-2 * time.Hour) }, domain.ErrInvalidRequest},
		{"beyond horizon", func(r *CreateRequest) { r.Start = testNow.AddDate(0, 0, 91) }, domain.ErrInvalidRequest},
		{"odd duration", func(r *CreateRequest) { r.DurationMinutes = 50 }, domain.ErrInvalidRequest},
		{"unknown venue", func(r *CreateRequest) { r.VenueID = "other" }, domain.ErrNotFound},
		{"before open", func(r *CreateRequest) { r.Start = testNow.Add(-11*time.Hour - 15*time.Minute).Add(24 * time.Hour) }, domain.ErrInvalidRequest},
		{"runs past close", func(r *CreateRequest) { r.Start = testNow.Add(10 * time.Hour) }, domain.ErrInvalidRequest}, // 22:00 + 90m > 23:00
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := diningRequest(start, 4)
			tt.mutate(&req)
			_, err := led.Create(context.Background(), req)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestCreate_PartyExceedsLargestTable(t *testing.T) {
	led, _, _ := setupLedger(t)
	start := testNow.Add(6 * time.Hour)

	_, err := led.Create(context.Background(), diningRequest(start, 7))
	assert.ErrorIs(t, err, domain.ErrSlotUnavailable)
}

func TestCreate_SpecificTableCapacity(t *testing.T) {
	led, _, _ := setupLedger(t)
	start := testNow.Add(6 * time.Hour)

	req := diningRequest(start, 5)
	req.ResourceID = 1 // seats 4
	_, err := led.Create(context.Background(), req)
	assert.ErrorIs(t, err, domain.ErrSlotUnavailable)

	req.ResourceID = 2 // seats 6
	r, err := led.Create(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, "Table 2", r.ResourceName)
}

func TestCreate_SameTableOverlap(t *testing.T) {
	led, _, _ := setupLedger(t)
	ctx := context.Background()
	start := testNow.Add(6 * time.Hour)

	first := diningRequest(start, 4)
	first.ResourceID = 1 // seats 4
	_, err := led.Create(ctx, first)
	require.NoError(t, err)

	// The venue has covers left, but the 4-top is already seated for the
	// window; a second party on the same table must not confirm.
	second := diningRequest(start.Add(30*time.Minute), 4)
	second.ResourceID = 1
	second.OwnerID = "guest-2"
	_, err = led.Create(ctx, second)
	assert.ErrorIs(t, err, domain.ErrSlotUnavailable)

	// Same window on the other table seats fine.
	second.ResourceID = 2
	_, err = led.Create(ctx, second)
	require.NoError(t, err)

	// And the 4-top takes the next party once the first window ends.
	later := diningRequest(start.Add(90*time.Minute), 4)
	later.ResourceID = 1
	later.OwnerID = "guest-3"
	_, err = led.Create(ctx, later)
	require.NoError(t, err)
}

func TestCreate_LaneExclusive(t *testing.T) {
	led, reg, _ := setupLedger(t)
	ctx := context.Background()
	start := testNow.Add(6 * time.Hour)

	first, err := led.Create(ctx, laneRequest(start, 4))
	require.NoError(t, err)
	assert.Equal(t, models.KindLane, first.Kind)

	res, err := reg.Resource(10)
	require.NoError(t, err)
	assert.Equal(t, models.ResourceHeld, res.Status)

	// Overlapping claim on the same lane loses.
	_, err = led.Create(ctx, laneRequest(start.Add(30*time.Minute), 2))
	assert.ErrorIs(t, err, domain.ErrSlotUnavailable)

	// The other lane is free.
	other := laneRequest(start, 2)
	other.ResourceID = 11
	_, err = led.Create(ctx, other)
	assert.NoError(t, err)
}

func TestCreate_OutOfServiceResource(t *testing.T) {
	led, reg, _ := setupLedger(t)
	require.NoError(t, reg.SetStatus(10, models.ResourceOutOfService))

	_, err := led.Create(context.Background(), laneRequest(testNow.Add(6*time.Hour), 4))
	assert.ErrorIs(t, err, domain.ErrSlotUnavailable)
}

func TestCreate_ConcurrentSameLane(t *testing.T) {
	led, _, _ := setupLedger(t)
	start := testNow.Add(6 * time.Hour)

	const attempts = 8
	var wg sync.WaitGroup
	errs := make([]error, attempts)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = led.Create(context.Background(), laneRequest(start, 2))
		}(i)
	}
	wg.Wait()

	winners := 0
	for _, err := range errs {
		if err == nil {
			winners++
		} else {
			assert.ErrorIs(t, err, domain.ErrSlotUnavailable)
		}
	}
	assert.Equal(t, 1, winners)
}

func TestCreate_DiningCapacityConserved(t *testing.T) {
	led, _, db := setupLedger(t)
	ctx := context.Background()
	start := testNow.Add(6 * time.Hour)

	// Venue covers = 4 + 6 = 10. Book 6, then 4, then fail on 1 more.
	_, err := led.Create(ctx, diningRequest(start, 6))
	require.NoError(t, err)
	_, err = led.Create(ctx, diningRequest(start, 4))
	require.NoError(t, err)
	_, err = led.Create(ctx, diningRequest(start, 1))
	assert.ErrorIs(t, err, domain.ErrSlotUnavailable)

	covers, err := db.CommittedCovers(ctx, start, start.Add(90*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, 10, covers)
}

func TestCancel_CutoffWindow(t *testing.T) {
	led, _, _ := setupLedger(t)
	ctx := context.Background()
	owner := Actor{ID: "guest-1", Role: models.RoleDiner}

	// Starts in 90 minutes: inside the 120-minute cutoff.
	soon, err := led.Create(ctx, diningRequest(testNow.Add(90*time.Minute), 2))
	require.NoError(t, err)

	err = led.Cancel(ctx, soon.ID, owner, "change of plans")
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrCutoffExceeded)

	var cutoffErr *domain.CutoffError
	require.ErrorAs(t, err, &cutoffErr)
	assert.True(t, cutoffErr.Deadline.Equal(soon.Start.Add(-2*time.Hour)))

	// Staff can still cancel inside the window.
	staff := Actor{ID: "host-1", Role: models.RoleStaff}
	assert.NoError(t, led.Cancel(ctx, soon.ID, staff, "guest called"))

	// Starts in 150 minutes: outside the cutoff, owner may cancel.
	later, err := led.Create(ctx, diningRequest(testNow.Add(150*time.Minute), 2))
	require.NoError(t, err)
	assert.NoError(t, led.Cancel(ctx, later.ID, owner, ""))
}

func TestCancel_Authorization(t *testing.T) {
	led, _, _ := setupLedger(t)
	ctx := context.Background()

	r, err := led.Create(ctx, diningRequest(testNow.Add(6*time.Hour), 2))
	require.NoError(t, err)

	err = led.Cancel(ctx, r.ID, Actor{ID: "guest-2", Role: models.RoleDiner}, "")
	assert.ErrorIs(t, err, domain.ErrUnauthorized)

	require.NoError(t, led.Cancel(ctx, r.ID, Actor{ID: "guest-1", Role: models.RoleDiner}, ""))

	// Cancelling twice is an invalid transition.
	err = led.Cancel(ctx, r.ID, Actor{ID: "guest-1", Role: models.RoleDiner}, "")
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)
}

func TestCancel_FreesCapacity(t *testing.T) {
	led, _, _ := setupLedger(t)
	ctx := context.Background()
	start := testNow.Add(6 * time.Hour)

	first, err := led.Create(ctx, laneRequest(start, 4))
	require.NoError(t, err)

	_, err = led.Create(ctx, laneRequest(start, 2))
	require.ErrorIs(t, err, domain.ErrSlotUnavailable)

	require.NoError(t, led.Cancel(ctx, first.ID, Actor{ID: "host-1", Role: models.RoleStaff}, ""))

	// The freed window is immediately claimable.
	_, err = led.Create(ctx, laneRequest(start, 2))
	assert.NoError(t, err)
}

func TestOperatorTransitions(t *testing.T) {
	led, reg, _ := setupLedger(t)
	ctx := context.Background()
	staff := Actor{ID: "host-1", Role: models.RoleStaff}

	r, err := led.Create(ctx, laneRequest(testNow.Add(6*time.Hour), 4))
	require.NoError(t, err)

	// Guests cannot drive operator transitions.
	err = led.MarkArrived(ctx, r.ID, Actor{ID: "guest-1", Role: models.RoleDiner})
	assert.ErrorIs(t, err, domain.ErrUnauthorized)

	// confirmed -> completed skips arrived.
	err = led.MarkCompleted(ctx, r.ID, staff)
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)

	require.NoError(t, led.MarkArrived(ctx, r.ID, staff))
	res, _ := reg.Resource(10)
	assert.Equal(t, models.ResourceOccupied, res.Status)

	// arrived -> no_show is illegal.
	err = led.MarkNoShow(ctx, r.ID, staff)
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)

	require.NoError(t, led.MarkCompleted(ctx, r.ID, staff))
	res, _ = reg.Resource(10)
	assert.Equal(t, models.ResourceAvailable, res.Status)
}

func TestMarkNoShow(t *testing.T) {
	led, reg, _ := setupLedger(t)
	ctx := context.Background()
	staff := Actor{ID: "host-1", Role: models.RoleStaff}

	r, err := led.Create(ctx, laneRequest(testNow.Add(6*time.Hour), 4))
	require.NoError(t, err)

	require.NoError(t, led.MarkNoShow(ctx, r.ID, staff))
	res, _ := reg.Resource(10)
	assert.Equal(t, models.ResourceAvailable, res.Status)
}

func TestListAuthorization(t *testing.T) {
	led, _, _ := setupLedger(t)
	ctx := context.Background()

	_, err := led.Create(ctx, diningRequest(testNow.Add(6*time.Hour), 2))
	require.NoError(t, err)

	_, err = led.ListActive(ctx, "guest-1", Actor{ID: "guest-2", Role: models.RoleDiner})
	assert.ErrorIs(t, err, domain.ErrUnauthorized)

	active, err := led.ListActive(ctx, "guest-1", Actor{ID: "guest-1", Role: models.RoleDiner})
	require.NoError(t, err)
	assert.Len(t, active, 1)

	// Staff can list anyone.
	active, err = led.ListActive(ctx, "guest-1", Actor{ID: "host-1", Role: models.RoleStaff})
	require.NoError(t, err)
	assert.Len(t, active, 1)
}

func TestExtendSession(t *testing.T) {
	led, _, db := setupLedger(t)
	ctx := context.Background()

	r, err := led.Create(ctx, laneRequest(testNow.Add(6*time.Hour), 4))
	require.NoError(t, err)

	newEnd := r.End.Add(30 * time.Minute)
	require.NoError(t, led.ExtendSession(ctx, r, newEnd, nil))
	assert.True(t, r.End.Equal(newEnd))

	got, err := db.GetReservation(ctx, r.ID)
	require.NoError(t, err)
	assert.True(t, got.End.Equal(newEnd))
}

func TestExtendSession_VerifyRejects(t *testing.T) {
	led, _, _ := setupLedger(t)
	ctx := context.Background()

	r, err := led.Create(ctx, laneRequest(testNow.Add(6*time.Hour), 4))
	require.NoError(t, err)

	err = led.ExtendSession(ctx, r, r.End.Add(30*time.Minute), func(context.Context) error {
		return domain.ErrSlotUnavailable
	})
	assert.ErrorIs(t, err, domain.ErrSlotUnavailable)
}

func TestExtendSession_TableRejected(t *testing.T) {
	led, _, _ := setupLedger(t)
	ctx := context.Background()

	r, err := led.Create(ctx, diningRequest(testNow.Add(6*time.Hour), 2))
	require.NoError(t, err)

	err = led.ExtendSession(ctx, r, r.End.Add(30*time.Minute), nil)
	assert.ErrorIs(t, err, domain.ErrInvalidRequest)
}

func TestHolds(t *testing.T) {
	led, _, _ := setupLedger(t)
	ctx := context.Background()
	start := testNow.Add(6 * time.Hour)
	end := start.Add(90 * time.Minute)

	hold, err := led.PlaceHold(ctx, 10, start, end, "guest-1")
	require.NoError(t, err)
	assert.NotEmpty(t, hold.Token)

	// Another guest cannot hold or book the same window.
	_, err = led.PlaceHold(ctx, 10, start, end, "guest-2")
	assert.ErrorIs(t, err, domain.ErrSlotUnavailable)

	req := laneRequest(start, 2)
	req.OwnerID = "guest-2"
	_, err = led.Create(ctx, req)
	assert.ErrorIs(t, err, domain.ErrSlotUnavailable)

	// The hold's owner books straight through it.
	_, err = led.Create(ctx, laneRequest(start, 2))
	assert.NoError(t, err)

	require.NoError(t, led.ReleaseHold(ctx, hold.Token))
}

func TestPlaceHold_TableRejected(t *testing.T) {
	led, _, _ := setupLedger(t)
	start := testNow.Add(6 * time.Hour)

	_, err := led.PlaceHold(context.Background(), 1, start, start.Add(time.Hour), "guest-1")
	assert.ErrorIs(t, err, domain.ErrInvalidRequest)
}

func TestSetResourceOutOfService(t *testing.T) {
	led, reg, db := setupLedger(t)
	ctx := context.Background()

	err := led.SetResourceOutOfService(ctx, 10, Actor{ID: "guest-1", Role: models.RoleDiner}, true)
	assert.ErrorIs(t, err, domain.ErrUnauthorized)

	staff := Actor{ID: "host-1", Role: models.RoleStaff}
	require.NoError(t, led.SetResourceOutOfService(ctx, 10, staff, true))

	res, _ := reg.Resource(10)
	assert.Equal(t, models.ResourceOutOfService, res.Status)

	// The override is persisted for the next startup.
	overrides, err := db.ResourceStatusOverrides(ctx)
	require.NoError(t, err)
	assert.Equal(t, models.ResourceOutOfService, overrides[10])

	require.NoError(t, led.SetResourceOutOfService(ctx, 10, staff, false))
	res, _ = reg.Resource(10)
	assert.Equal(t, models.ResourceAvailable, res.Status)
}
