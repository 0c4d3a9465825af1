package services

import (
	"context"
	"testing"
	"time"

	"campusride/pkg/events"
	"campusride/pkg/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateRideValidation(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	owner := e.db.addProfile("Owner", "")

	tests := []struct {
		name  string
		req   models.CreateRideRequest
		field string
	}{
		{"missing origin", models.CreateRideRequest{Destination: "B", RideTime: e.future()}, "origin"},
		{"blank destination", models.CreateRideRequest{Origin: "A", Destination: "  ", RideTime: e.future()}, "destination"},
		{"past time", models.CreateRideRequest{Origin: "A", Destination: "B", RideTime: time.Now().Add(-time.Minute)}, "ride_time"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := e.rides.Create(ctx, owner, tt.req)
			var verr *ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, tt.field, verr.Field)
		})
	}
}

func TestDeleteRide(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	owner := e.db.addProfile("Owner", "")
	other := e.db.addProfile("Other", "")
	admin := e.db.addProfile("Admin", "")

	ride := e.db.addRide(owner, e.future())
	assert.ErrorIs(t, e.rides.Delete(ctx, ride.ID, other, false), ErrForbidden)
	require.NoError(t, e.rides.Delete(ctx, ride.ID, owner, false))
	assert.ErrorIs(t, e.rides.Delete(ctx, ride.ID, owner, false), ErrNotFound)

	moderated := e.db.addRide(owner, e.future())
	require.NoError(t, e.rides.Delete(ctx, moderated.ID, admin, true))

	assert.Equal(t, []string{events.RideDeleted, events.RideDeleted}, e.events.Keys())
	assert.Equal(t, true, e.events.Events[1].Data.(map[string]interface{})["by_admin"])
}

func TestIsRideExpired(t *testing.T) {
	now := time.Now()
	assert.True(t, models.IsRideExpired(now.Add(-time.Second), now))
	assert.False(t, models.IsRideExpired(now.Add(time.Second), now))
}

// An expired ride is removed with all of its messages and requests, and the
// reported counts match what was removed.
func TestCleanupExpired(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	owner := e.db.addProfile("Owner", "")
	rider := e.db.addProfile("Rider", "")

	gone := e.db.addRide(owner, e.future())
	kept := e.db.addRide(owner, e.future())
	for _, r := range []models.Ride{gone, kept} {
		_, err := e.requests.Create(ctx, r.ID, rider, "")
		require.NoError(t, err)
		_, err = e.chat.SendMessage(ctx, r.ID, rider, "hi")
		require.NoError(t, err)
		_, err = e.chat.SendMessage(ctx, r.ID, owner, "hello")
		require.NoError(t, err)
	}

	e.db.mu.Lock()
	g := e.db.rides[gone.ID]
	g.RideTime = time.Now().Add(-time.Hour)
	e.db.rides[gone.ID] = g
	e.db.mu.Unlock()
	require.True(t, models.IsRideExpired(g.RideTime, time.Now()))

	res, err := e.rides.CleanupExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, models.CleanupResult{Rides: 1, Messages: 2, Requests: 1}, res)
	assert.Equal(t, 2, e.db.messageCount())

	_, err = e.rides.Get(ctx, gone.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = e.rides.Get(ctx, kept.ID)
	assert.NoError(t, err)
	assert.Contains(t, e.events.Keys(), events.RidesExpired)

	res, err = e.rides.CleanupExpired(ctx)
	require.NoError(t, err)
	assert.Zero(t, res.Total())
}

func TestListRidesUpcomingOnly(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	owner := e.db.addProfile("Owner", "")
	e.db.addRide(owner, time.Now().Add(-time.Hour))
	upcoming := e.db.addRide(owner, e.future())

	rides, err := e.rides.List(ctx, models.RideFilter{})
	require.NoError(t, err)
	require.Len(t, rides, 1)
	assert.Equal(t, upcoming.ID, rides[0].ID)
}
