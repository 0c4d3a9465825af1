package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"campusride/pkg/events"
	"campusride/pkg/logger"
	"campusride/pkg/models"
	"campusride/pkg/repository"

	"github.com/google/uuid"
)

const welcomeText = "Your request was accepted. Welcome aboard!"

type RequestService interface {
	Create(ctx context.Context, rideID, requesterID uuid.UUID, message string) (models.RideRequest, error)
	ListForRide(ctx context.Context, rideID, ownerID uuid.UUID) ([]models.RideRequest, error)
	ListMine(ctx context.Context, requesterID uuid.UUID) ([]models.RideRequest, error)
	Respond(ctx context.Context, requestID, ownerID uuid.UUID, to models.RequestStatus) (models.RideRequest, error)
}

type requestService struct {
	rides    repository.RideRepository
	requests repository.RequestRepository
	chat     ChatService
	roster   RosterService
	events   events.Publisher
	log      *logger.Logger
	now      func() time.Time
}

func NewRequestService(
	rides repository.RideRepository,
	requests repository.RequestRepository,
	chat ChatService,
	roster RosterService,
	pub events.Publisher,
	log *logger.Logger,
) RequestService {
	return &requestService{
		rides:    rides,
		requests: requests,
		chat:     chat,
		roster:   roster,
		events:   pub,
		log:      log.Component("requests"),
		now:      time.Now,
	}
}

func (s *requestService) ride(ctx context.Context, id uuid.UUID) (models.Ride, error) {
	ride, err := s.rides.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.Ride{}, ErrNotFound
		}
		return models.Ride{}, fmt.Errorf("get ride: %w", err)
	}
	return ride, nil
}

func (s *requestService) Create(ctx context.Context, rideID, requesterID uuid.UUID, message string) (models.RideRequest, error) {
	message = strings.TrimSpace(message)
	if len([]rune(message)) > 500 {
		return models.RideRequest{}, invalid("message", "must be at most 500 characters")
	}

	ride, err := s.ride(ctx, rideID)
	if err != nil {
		return models.RideRequest{}, err
	}
	if ride.OwnerID == requesterID {
		return models.RideRequest{}, ErrForbidden
	}
	if models.IsRideExpired(ride.RideTime, s.now()) {
		return models.RideRequest{}, invalid("ride_time", "this ride has already departed")
	}

	req, err := s.requests.Create(ctx, rideID, requesterID, message)
	if err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return models.RideRequest{}, ErrConflict
		}
		return models.RideRequest{}, fmt.Errorf("create request: %w", err)
	}

	s.roster.Invalidate(ctx)
	s.events.Publish(ctx, events.RequestCreated, rideID, requesterID, map[string]interface{}{
		"request_id": req.ID,
		"owner_id":   ride.OwnerID,
	})
	return req, nil
}

func (s *requestService) ListForRide(ctx context.Context, rideID, ownerID uuid.UUID) ([]models.RideRequest, error) {
	ride, err := s.ride(ctx, rideID)
	if err != nil {
		return nil, err
	}
	if ride.OwnerID != ownerID {
		return nil, ErrForbidden
	}
	reqs, err := s.requests.ListForRide(ctx, rideID)
	if err != nil {
		return nil, fmt.Errorf("list requests: %w", err)
	}
	return reqs, nil
}

func (s *requestService) ListMine(ctx context.Context, requesterID uuid.UUID) ([]models.RideRequest, error) {
	reqs, err := s.requests.ListByRequester(ctx, requesterID)
	if err != nil {
		return nil, fmt.Errorf("list requests: %w", err)
	}
	return reqs, nil
}

// Respond settles a pending request. Accepting posts a welcome note from the
// owner into the ride's chat.
func (s *requestService) Respond(ctx context.Context, requestID, ownerID uuid.UUID, to models.RequestStatus) (models.RideRequest, error) {
	if !to.Terminal() {
		return models.RideRequest{}, invalid("status", "must be accepted or rejected")
	}

	req, err := s.requests.GetByID(ctx, requestID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.RideRequest{}, ErrNotFound
		}
		return models.RideRequest{}, fmt.Errorf("get request: %w", err)
	}

	ride, err := s.ride(ctx, req.RideID)
	if err != nil {
		return models.RideRequest{}, err
	}
	if ride.OwnerID != ownerID {
		return models.RideRequest{}, ErrForbidden
	}
	if !req.Status.CanTransition(to) {
		return models.RideRequest{}, ErrInvalidTransition
	}

	updated, err := s.requests.UpdateStatus(ctx, req.ID, models.StatusPending, to)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.RideRequest{}, ErrInvalidTransition
		}
		return models.RideRequest{}, fmt.Errorf("update request: %w", err)
	}
	updated.Requester = req.Requester

	key := events.RequestRejected
	if to == models.StatusAccepted {
		key = events.RequestAccepted
		if _, err := s.chat.Post(ctx, models.Message{
			RideID:   ride.ID,
			SenderID: ownerID,
			Content:  welcomeText,
			Body:     models.SystemBody{},
		}); err != nil {
			s.log.WithError(err).WithField("request_id", req.ID).Warn("welcome message failed")
		}
	} else {
		s.roster.Invalidate(ctx)
	}

	s.events.Publish(ctx, key, ride.ID, ownerID, map[string]interface{}{
		"request_id":   req.ID,
		"requester_id": req.RequesterID,
	})
	return updated, nil
}
