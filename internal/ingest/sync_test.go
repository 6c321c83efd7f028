package ingest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"smart-parking-backend/internal/model"
)

func athensSpot(id int, status string) model.ParkingSpot {
	return model.ParkingSpot{
		ID:          id,
		Latitude:    ptrF(37.9838),
		Longitude:   ptrF(23.7275),
		Location:    "Syntagma Square",
		City:        "Athens",
		Status:      status,
		LastUpdated: time.Now().UTC().Add(-time.Hour),
	}
}

func TestSynchronizer_StatusTransition(t *testing.T) {
	ctx := context.Background()
	fs := newFakeStore(athensSpot(7, model.StatusAvailable))
	fc := newFakeCache()
	seeded := athensSpot(7, model.StatusAvailable)
	require.NoError(t, fc.UpsertSpot(ctx, &seeded))

	y := NewSynchronizer(fs, fc)
	observed := time.Now().UTC()
	y.ApplySnapshot(ctx, map[int]pendingUpdate{
		7: {Status: model.StatusOccupied, City: "Athens", ObservedAt: observed},
	})

	assert.Equal(t, model.StatusOccupied, fs.spotStatus(7))
	assert.Equal(t, model.StatusOccupied, fc.hashStatus(7))

	assert.False(t, fc.inStatusSet(model.StatusAvailable, 7), "old status bucket should not contain the spot")
	assert.True(t, fc.inStatusSet(model.StatusOccupied, 7))
	assert.False(t, fc.inGeoSet(model.StatusAvailable, 7), "old geo bucket should not contain the spot")
	assert.True(t, fc.inGeoSet(model.StatusOccupied, 7))

	assert.Equal(t, []string{model.StatusOccupied}, fc.statusMemberships(7),
		"spot must live in exactly one status bucket after settling")
}

func TestSynchronizer_UnchangedStatusRefreshesMirror(t *testing.T) {
	ctx := context.Background()
	fs := newFakeStore(athensSpot(7, model.StatusOccupied))
	fc := newFakeCache()

	y := NewSynchronizer(fs, fc)
	observed := time.Now().UTC()
	nowAvailable := y.ApplySnapshot(ctx, map[int]pendingUpdate{
		7: {Status: model.StatusOccupied, City: "Athens", ObservedAt: observed},
	})

	// Same status: mirror still refreshed, nothing removed, no notification.
	assert.Empty(t, nowAvailable)
	assert.Equal(t, model.StatusOccupied, fc.hashStatus(7))
	assert.True(t, fc.inStatusSet(model.StatusOccupied, 7))
	assert.Equal(t, observed, fc.hashes[7].LastUpdated)
}

func TestSynchronizer_Idempotence(t *testing.T) {
	ctx := context.Background()
	fs := newFakeStore(athensSpot(7, model.StatusAvailable))
	fc := newFakeCache()
	y := NewSynchronizer(fs, fc)

	snapshot := map[int]pendingUpdate{
		7: {Status: model.StatusOccupied, City: "Athens", ObservedAt: time.Now().UTC()},
	}
	y.ApplySnapshot(ctx, snapshot)

	firstHash := fc.hashes[7]
	firstMemberships := fc.statusMemberships(7)

	y.ApplySnapshot(ctx, snapshot)

	assert.Equal(t, firstHash, fc.hashes[7], "second identical application must not change the mirror")
	assert.Equal(t, firstMemberships, fc.statusMemberships(7))
	assert.True(t, fc.inGeoSet(model.StatusOccupied, 7))
	assert.False(t, fc.inGeoSet(model.StatusAvailable, 7))
}

func TestSynchronizer_MissingCoordinatesSkipsGeo(t *testing.T) {
	ctx := context.Background()
	spot := model.ParkingSpot{ID: 9, Location: "Underground lot", Status: model.StatusAvailable}
	fs := newFakeStore(spot)
	fc := newFakeCache()
	y := NewSynchronizer(fs, fc)

	y.ApplySnapshot(ctx, map[int]pendingUpdate{
		9: {Status: model.StatusOccupied, City: "Athens", ObservedAt: time.Now().UTC()},
	})

	assert.Equal(t, model.StatusOccupied, fs.spotStatus(9))
	assert.Equal(t, model.StatusOccupied, fc.hashStatus(9))
	assert.True(t, fc.inStatusSet(model.StatusOccupied, 9))
	assert.False(t, fc.inGeoSet(model.StatusOccupied, 9), "spot without coordinates must stay out of geo buckets")
	assert.False(t, fc.inGeoSet(model.StatusAvailable, 9))
}

func TestSynchronizer_PerSpotFailureIsolation(t *testing.T) {
	ctx := context.Background()
	fs := newFakeStore(
		athensSpot(1, model.StatusAvailable),
		athensSpot(2, model.StatusAvailable),
		athensSpot(3, model.StatusAvailable),
	)
	fs.failUpdate[2] = true
	fc := newFakeCache()
	y := NewSynchronizer(fs, fc)

	now := time.Now().UTC()
	y.ApplySnapshot(ctx, map[int]pendingUpdate{
		1: {Status: model.StatusOccupied, ObservedAt: now},
		2: {Status: model.StatusOccupied, ObservedAt: now},
		3: {Status: model.StatusReserved, ObservedAt: now},
	})

	assert.Equal(t, model.StatusOccupied, fs.spotStatus(1))
	assert.Equal(t, model.StatusAvailable, fs.spotStatus(2), "failing spot keeps its previous status")
	assert.Equal(t, model.StatusReserved, fs.spotStatus(3))
	assert.True(t, fc.inStatusSet(model.StatusOccupied, 1))
	assert.True(t, fc.inStatusSet(model.StatusReserved, 3))
}

func TestSynchronizer_CacheWriteFailureIsIgnored(t *testing.T) {
	ctx := context.Background()
	fs := newFakeStore(athensSpot(7, model.StatusAvailable))
	fc := newFakeCache()
	fc.upsertErr = errors.New("redis down")
	y := NewSynchronizer(fs, fc)

	nowAvailable := y.ApplySnapshot(ctx, map[int]pendingUpdate{
		7: {Status: model.StatusOccupied, ObservedAt: time.Now().UTC()},
	})

	// The durable store is still updated; the mirror heals later.
	assert.Equal(t, model.StatusOccupied, fs.spotStatus(7))
	assert.Empty(t, nowAvailable)
}

func TestSynchronizer_ReportsNewlyAvailableSpots(t *testing.T) {
	ctx := context.Background()
	fs := newFakeStore(
		athensSpot(1, model.StatusOccupied),
		athensSpot(2, model.StatusAvailable),
		athensSpot(3, model.StatusOccupied),
	)
	fc := newFakeCache()
	y := NewSynchronizer(fs, fc)

	now := time.Now().UTC()
	nowAvailable := y.ApplySnapshot(ctx, map[int]pendingUpdate{
		1: {Status: model.StatusAvailable, ObservedAt: now}, // transition
		2: {Status: model.StatusAvailable, ObservedAt: now}, // already available
		3: {Status: model.StatusReserved, ObservedAt: now},  // different transition
	})

	assert.Equal(t, []int{1}, nowAvailable)
}

func TestSynchronizer_Warm(t *testing.T) {
	ctx := context.Background()
	noCoords := model.ParkingSpot{ID: 3, Location: "Garage B", Status: model.StatusReserved}
	fs := newFakeStore(
		athensSpot(1, model.StatusAvailable),
		athensSpot(2, model.StatusOccupied),
		noCoords,
	)
	fc := newFakeCache()
	y := NewSynchronizer(fs, fc)

	require.NoError(t, y.Warm(ctx))

	// Union of all status buckets equals the full id set, no duplicates.
	seen := make(map[int]int)
	for _, status := range model.AllStatuses {
		for id := range fc.statusSets[status] {
			seen[id]++
		}
	}
	assert.Equal(t, map[int]int{1: 1, 2: 1, 3: 1}, seen)

	assert.True(t, fc.inGeoSet(model.StatusAvailable, 1))
	assert.True(t, fc.inGeoSet(model.StatusOccupied, 2))
	assert.False(t, fc.inGeoSet(model.StatusReserved, 3), "spot without coordinates stays out of geo buckets")
	assert.Equal(t, model.StatusReserved, fc.hashStatus(3))
}
