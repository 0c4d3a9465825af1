package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

type RequestStatus string

const (
	StatusPending  RequestStatus = "pending"
	StatusAccepted RequestStatus = "accepted"
	StatusRejected RequestStatus = "rejected"
)

// ParseRequestStatus accepts "declined" as an alias of rejected.
func ParseRequestStatus(s string) (RequestStatus, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "pending":
		return StatusPending, true
	case "accepted", "approved":
		return StatusAccepted, true
	case "rejected", "declined":
		return StatusRejected, true
	}
	return "", false
}

func (s RequestStatus) Terminal() bool {
	return s == StatusAccepted || s == StatusRejected
}

// CanTransition allows pending to move to a terminal state, nothing else.
func (s RequestStatus) CanTransition(to RequestStatus) bool {
	return s == StatusPending && to.Terminal()
}

type RideRequest struct {
	ID          uuid.UUID     `json:"id"`
	RideID      uuid.UUID     `json:"ride_id"`
	RequesterID uuid.UUID     `json:"requester_id"`
	Message     string        `json:"message"`
	Status      RequestStatus `json:"status"`
	CreatedAt   time.Time     `json:"created_at"`
	UpdatedAt   time.Time     `json:"updated_at"`
	Requester   *Profile      `json:"requester,omitempty"`
}

type CreateRideRequestBody struct {
	Message string `json:"message" validate:"max=500"`
}
