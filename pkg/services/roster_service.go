package services

import (
	"context"
	"sort"
	"time"

	"campusride/pkg/cache"
	"campusride/pkg/logger"
	"campusride/pkg/models"
	"campusride/pkg/repository"

	"github.com/google/uuid"
)

const rosterKeyPrefix = "chat:roster:"

// RosterService builds the conversation list shown to a user. The roster is
// best effort: failing sources and enrichments are logged and skipped.
type RosterService interface {
	ListChatRides(ctx context.Context, userID uuid.UUID) ([]models.ChatRide, error)
	Invalidate(ctx context.Context)
}

type rosterService struct {
	chat     repository.ChatRepository
	messages repository.MessageRepository
	profiles repository.ProfileRepository
	redis    *cache.Redis
	ttl      time.Duration
	log      *logger.Logger
}

func NewRosterService(
	chat repository.ChatRepository,
	messages repository.MessageRepository,
	profiles repository.ProfileRepository,
	redis *cache.Redis,
	ttl time.Duration,
	log *logger.Logger,
) RosterService {
	return &rosterService{
		chat:     chat,
		messages: messages,
		profiles: profiles,
		redis:    redis,
		ttl:      ttl,
		log:      log.Component("roster"),
	}
}

func rosterKey(userID uuid.UUID) string {
	return rosterKeyPrefix + userID.String()
}

// Invalidate drops every cached roster. Any chat write can change the order or
// the partner of several users' rosters at once.
func (s *rosterService) Invalidate(ctx context.Context) {
	s.redis.DelPattern(ctx, rosterKeyPrefix+"*")
}

func (s *rosterService) ListChatRides(ctx context.Context, userID uuid.UUID) ([]models.ChatRide, error) {
	key := rosterKey(userID)
	var cached []models.ChatRide
	if s.redis.Get(ctx, key, &cached) {
		return cached, nil
	}

	// A roster built while any lookup failed is served but never cached.
	rides, complete := s.candidates(ctx, userID)
	if len(rides) == 0 {
		return []models.ChatRide{}, nil
	}

	ids := make([]uuid.UUID, len(rides))
	for i, r := range rides {
		ids[i] = r.ID
	}

	latest, err := s.messages.LatestByRides(ctx, ids)
	if err != nil {
		complete = false
		s.log.WithError(err).Warn("latest messages unavailable")
	}
	requesters, err := s.chat.LatestRequesters(ctx, ids)
	if err != nil {
		complete = false
		s.log.WithError(err).Warn("latest requesters unavailable")
	}
	senders, err := s.chat.LatestSenders(ctx, ids)
	if err != nil {
		complete = false
		s.log.WithError(err).Warn("latest senders unavailable")
	}

	type partnerRef struct {
		id       uuid.UUID
		resolved bool
	}
	partners := make(map[uuid.UUID]partnerRef, len(rides))
	var partnerIDs []uuid.UUID
	for _, r := range rides {
		var ref partnerRef
		if r.OwnerID != userID {
			ref = partnerRef{id: r.OwnerID, resolved: true}
		} else if id, ok := requesters[r.ID]; ok {
			ref = partnerRef{id: id, resolved: true}
		} else if id, ok := senders[r.ID]; ok {
			ref = partnerRef{id: id, resolved: true}
		}
		partners[r.ID] = ref
		if ref.resolved {
			partnerIDs = append(partnerIDs, ref.id)
		}
	}

	profiles, err := s.profiles.GetMany(ctx, partnerIDs)
	if err != nil {
		complete = false
		s.log.WithError(err).Warn("partner profiles unavailable")
	}

	out := make([]models.ChatRide, 0, len(rides))
	for _, r := range rides {
		isOwner := r.OwnerID == userID
		last, hasLast := latest[r.ID]
		_, hasRequest := requesters[r.ID]
		_, hasSender := senders[r.ID]

		// Non-owners only reach the candidate set through a request or a
		// message of their own. Owners need someone to have shown up.
		if isOwner && !hasLast && !hasRequest && !hasSender {
			continue
		}

		cr := models.ChatRide{Ride: r, IsOwner: isOwner}
		if hasLast {
			cr.LastMessage = &last
		}
		if ref := partners[r.ID]; ref.resolved {
			if p, ok := profiles[ref.id]; ok {
				cr.Partner = p.Public()
			} else {
				cr.Partner = models.UnknownProfile(ref.id)
			}
		}
		out = append(out, cr)
	}

	sortRoster(out)
	if complete {
		s.redis.Set(ctx, key, out, s.ttl)
	}
	return out, nil
}

// candidates runs the bulk query and falls back to the four individual
// sources when it fails. complete is false when a source was skipped.
func (s *rosterService) candidates(ctx context.Context, userID uuid.UUID) (rides []models.Ride, complete bool) {
	rides, err := s.chat.ChatRides(ctx, userID)
	if err == nil {
		return rides, true
	}
	s.log.WithError(err).Warn("bulk roster query failed, rebuilding from sources")

	sources := []struct {
		name  string
		fetch func(context.Context, uuid.UUID) ([]models.Ride, error)
	}{
		{"owned", s.chat.OwnedRides},
		{"messaged", s.chat.MessagedRides},
		{"accepted", s.chat.AcceptedRides},
		{"requested", s.chat.RequestedRides},
	}

	complete = true
	seen := make(map[uuid.UUID]bool)
	var out []models.Ride
	for _, src := range sources {
		rs, err := src.fetch(ctx, userID)
		if err != nil {
			complete = false
			s.log.WithError(err).WithField("source", src.name).Warn("roster source skipped")
			continue
		}
		for _, r := range rs {
			if seen[r.ID] {
				continue
			}
			seen[r.ID] = true
			out = append(out, r)
		}
	}
	return out, complete
}

func activityAt(c models.ChatRide) time.Time {
	if c.LastMessage != nil {
		return c.LastMessage.CreatedAt
	}
	return c.Ride.CreatedAt
}

// sortRoster orders by most recent activity, newest first, ties by ride id.
func sortRoster(rides []models.ChatRide) {
	sort.Slice(rides, func(i, j int) bool {
		ti, tj := activityAt(rides[i]), activityAt(rides[j])
		if !ti.Equal(tj) {
			return ti.After(tj)
		}
		return rides[i].Ride.ID.String() < rides[j].Ride.ID.String()
	})
}
