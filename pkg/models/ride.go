package models

import (
	"time"

	"github.com/google/uuid"
)

type Ride struct {
	ID          uuid.UUID `json:"id"`
	OwnerID     uuid.UUID `json:"owner_id"`
	Origin      string    `json:"origin"`
	Destination string    `json:"destination"`
	RideTime    time.Time `json:"ride_time"`
	Notes       string    `json:"notes,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	Owner       *Profile  `json:"owner,omitempty"`
}

// IsRideExpired reports whether a ride departing at rideTime is in the past.
func IsRideExpired(rideTime, now time.Time) bool {
	return rideTime.Before(now)
}

type CreateRideRequest struct {
	Origin      string    `json:"origin" validate:"required,max=200"`
	Destination string    `json:"destination" validate:"required,max=200"`
	RideTime    time.Time `json:"ride_time" validate:"required"`
	Notes       string    `json:"notes" validate:"max=500"`
}

type RideFilter struct {
	Origin      string
	Destination string
	After       time.Time
	Limit       int
	Offset      int
}

type CleanupResult struct {
	Rides    int64 `json:"rides"`
	Messages int64 `json:"messages"`
	Requests int64 `json:"requests"`
}

func (r CleanupResult) Total() int64 {
	return r.Rides + r.Messages + r.Requests
}
