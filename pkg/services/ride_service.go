package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"campusride/pkg/cache"
	"campusride/pkg/events"
	"campusride/pkg/logger"
	"campusride/pkg/models"
	"campusride/pkg/repository"
	"campusride/pkg/validation"

	"github.com/google/uuid"
)

type RideService interface {
	Create(ctx context.Context, ownerID uuid.UUID, req models.CreateRideRequest) (models.Ride, error)
	Get(ctx context.Context, id uuid.UUID) (models.Ride, error)
	List(ctx context.Context, filter models.RideFilter) ([]models.Ride, error)
	ListMine(ctx context.Context, ownerID uuid.UUID) ([]models.Ride, error)
	Delete(ctx context.Context, rideID, actorID uuid.UUID, isAdmin bool) error
	CleanupExpired(ctx context.Context) (models.CleanupResult, error)
	RunCleanup(ctx context.Context, interval time.Duration)
}

type rideService struct {
	repo   repository.RideRepository
	roster RosterService
	redis  *cache.Redis
	events events.Publisher
	log    *logger.Logger
	now    func() time.Time
}

func NewRideService(repo repository.RideRepository, roster RosterService, redis *cache.Redis, pub events.Publisher, log *logger.Logger) RideService {
	return &rideService{
		repo:   repo,
		roster: roster,
		redis:  redis,
		events: pub,
		log:    log.Component("rides"),
		now:    time.Now,
	}
}

func (s *rideService) Create(ctx context.Context, ownerID uuid.UUID, req models.CreateRideRequest) (models.Ride, error) {
	req.Origin = strings.TrimSpace(req.Origin)
	req.Destination = strings.TrimSpace(req.Destination)
	req.Notes = strings.TrimSpace(req.Notes)
	if err := validation.Struct(req); err != nil {
		return models.Ride{}, fromValidation(err)
	}
	if models.IsRideExpired(req.RideTime, s.now()) {
		return models.Ride{}, invalid("ride_time", "must be in the future")
	}

	ride, err := s.repo.Create(ctx, ownerID, req)
	if err != nil {
		return models.Ride{}, fmt.Errorf("create ride: %w", err)
	}
	s.redis.DelPattern(ctx, "rides:list:*")
	return ride, nil
}

func (s *rideService) Get(ctx context.Context, id uuid.UUID) (models.Ride, error) {
	ride, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.Ride{}, ErrNotFound
		}
		return models.Ride{}, fmt.Errorf("get ride: %w", err)
	}
	return ride, nil
}

// List returns upcoming rides matching the filter, soonest first.
func (s *rideService) List(ctx context.Context, filter models.RideFilter) ([]models.Ride, error) {
	if filter.Limit <= 0 || filter.Limit > 100 {
		filter.Limit = 20
	}
	if filter.Offset < 0 {
		filter.Offset = 0
	}
	if filter.After.IsZero() {
		filter.After = s.now()
	}
	filter.Origin = strings.ToLower(strings.TrimSpace(filter.Origin))
	filter.Destination = strings.ToLower(strings.TrimSpace(filter.Destination))

	cacheKey := fmt.Sprintf("rides:list:%s:%s:%d:%d:%d", filter.Origin, filter.Destination,
		filter.After.Truncate(time.Minute).Unix(), filter.Limit, filter.Offset)
	var cached []models.Ride
	if s.redis.Get(ctx, cacheKey, &cached) {
		return cached, nil
	}

	rides, err := s.repo.List(ctx, filter)
	if err != nil {
		s.log.WithError(err).Warn("ride list failed")
		return []models.Ride{}, nil
	}

	s.redis.Set(ctx, cacheKey, rides, 15*time.Second)
	return rides, nil
}

func (s *rideService) ListMine(ctx context.Context, ownerID uuid.UUID) ([]models.Ride, error) {
	rides, err := s.repo.ListByOwner(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list rides: %w", err)
	}
	return rides, nil
}

// Delete removes a ride with its chat and requests. Only the owner or an
// admin may do it.
func (s *rideService) Delete(ctx context.Context, rideID, actorID uuid.UUID, isAdmin bool) error {
	ride, err := s.Get(ctx, rideID)
	if err != nil {
		return err
	}
	if ride.OwnerID != actorID && !isAdmin {
		return ErrForbidden
	}

	n, err := s.repo.Delete(ctx, rideID)
	if err != nil {
		return fmt.Errorf("delete ride: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}

	s.redis.DelPattern(ctx, "rides:list:*")
	s.roster.Invalidate(ctx)
	s.events.Publish(ctx, events.RideDeleted, rideID, actorID, map[string]interface{}{"by_admin": isAdmin && ride.OwnerID != actorID})
	return nil
}

// CleanupExpired deletes every ride whose departure time has passed.
func (s *rideService) CleanupExpired(ctx context.Context) (models.CleanupResult, error) {
	res, err := s.repo.DeleteExpired(ctx, s.now())
	if err != nil {
		return models.CleanupResult{}, fmt.Errorf("cleanup expired rides: %w", err)
	}
	if res.Total() > 0 {
		s.redis.DelPattern(ctx, "rides:list:*")
		s.roster.Invalidate(ctx)
		s.events.Publish(ctx, events.RidesExpired, uuid.Nil, uuid.Nil, res)
		s.log.WithFields(map[string]interface{}{
			"rides":    res.Rides,
			"messages": res.Messages,
			"requests": res.Requests,
		}).Info("expired rides removed")
	}
	return res, nil
}

// RunCleanup calls CleanupExpired on every tick until ctx is done.
func (s *rideService) RunCleanup(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.CleanupExpired(ctx); err != nil {
				s.log.WithError(err).Error("scheduled cleanup failed")
			}
		}
	}
}
