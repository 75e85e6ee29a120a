package registry

import (
	"testing"

	"lineup/internal/domain"
	"lineup/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testRegistry(t *testing.T) *Registry {
	t.Helper()
	reg, err := New(
		models.Venue{ID: "main", Name: "The Lineup", Timezone: "UTC"},
		[]models.Resource{
			{ID: 1, Name: "Table 1", Kind: models.KindTable, Capacity: 2, SortOrder: 1},
			{ID: 2, Name: "Table 2", Kind: models.KindTable, Capacity: 4, SortOrder: 2},
			{ID: 3, Name: "Table 3", Kind: models.KindTable, Capacity: 6, SortOrder: 3},
			{ID: 10, Name: "Lane 1", Kind: models.KindLane, Capacity: 6, SortOrder: 10},
			{ID: 20, Name: "Sim Bay A", Kind: models.KindTimeBlock, Capacity: 4, SortOrder: 20},
		},
	)
	require.NoError(t, err)
	return reg
}

func TestNew_Validation(t *testing.T) {
	_, err := New(models.Venue{}, nil)
	assert.Error(t, err)

	_, err = New(models.Venue{ID: "main"}, []models.Resource{
		{ID: 1, Name: "A", Kind: models.KindTable},
		{ID: 1, Name: "B", Kind: models.KindTable},
	})
	assert.Error(t, err)
}

func TestResourcesFor(t *testing.T) {
	reg := testRegistry(t)

	resources, err := reg.ResourcesFor("main")
	require.NoError(t, err)
	require.Len(t, resources, 5)
	assert.Equal(t, "Table 1", resources[0].Name)
	assert.Equal(t, "Sim Bay A", resources[4].Name)
	// Every resource starts in service.
	for _, r := range resources {
		assert.Equal(t, models.ResourceAvailable, r.Status)
	}

	_, err = reg.ResourcesFor("elsewhere")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestDiningCapacity(t *testing.T) {
	reg := testRegistry(t)

	covers, estimated, err := reg.DiningCapacity("main")
	require.NoError(t, err)
	assert.Equal(t, 12, covers)
	assert.False(t, estimated)

	// Out-of-service tables drop out of the total.
	require.NoError(t, reg.SetStatus(3, models.ResourceOutOfService))
	covers, _, err = reg.DiningCapacity("main")
	require.NoError(t, err)
	assert.Equal(t, 6, covers)
}

func TestDiningCapacity_EstimatedFallback(t *testing.T) {
	reg, err := New(
		models.Venue{ID: "main"},
		[]models.Resource{
			{ID: 1, Name: "Table 1", Kind: models.KindTable, Capacity: 2},
			{ID: 2, Name: "Table 2", Kind: models.KindTable}, // capacity unknown
		},
	)
	require.NoError(t, err)

	covers, estimated, err := reg.DiningCapacity("main")
	require.NoError(t, err)
	assert.Equal(t, 2+fallbackTableCovers, covers)
	assert.True(t, estimated)
}

func TestLargestTable(t *testing.T) {
	reg := testRegistry(t)

	largest, err := reg.LargestTable("main")
	require.NoError(t, err)
	assert.Equal(t, 6, largest)

	require.NoError(t, reg.SetStatus(3, models.ResourceOutOfService))
	largest, err = reg.LargestTable("main")
	require.NoError(t, err)
	assert.Equal(t, 4, largest)
}

func TestSessionResources(t *testing.T) {
	reg := testRegistry(t)

	sessions, err := reg.SessionResources("main")
	require.NoError(t, err)
	require.Len(t, sessions, 2)
	assert.Equal(t, "Lane 1", sessions[0].Name)

	require.NoError(t, reg.SetStatus(10, models.ResourceOutOfService))
	sessions, err = reg.SessionResources("main")
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	assert.Equal(t, "Sim Bay A", sessions[0].Name)
}

func TestSetStatus(t *testing.T) {
	reg := testRegistry(t)

	require.NoError(t, reg.SetStatus(10, models.ResourceHeld))
	r, err := reg.Resource(10)
	require.NoError(t, err)
	assert.Equal(t, models.ResourceHeld, r.Status)

	assert.ErrorIs(t, reg.SetStatus(999, models.ResourceHeld), domain.ErrNotFound)
	assert.ErrorIs(t, reg.SetStatus(10, "broken"), domain.ErrInvalidRequest)
}

func TestApplyOverrides(t *testing.T) {
	reg := testRegistry(t)

	reg.ApplyOverrides(map[int64]string{
		10:  models.ResourceOutOfService,
		999: models.ResourceOutOfService, // unknown ids ignored
	})

	r, err := reg.Resource(10)
	require.NoError(t, err)
	assert.Equal(t, models.ResourceOutOfService, r.Status)
}
