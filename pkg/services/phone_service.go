package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"campusride/pkg/events"
	"campusride/pkg/logger"
	"campusride/pkg/models"
	"campusride/pkg/repository"
	"campusride/pkg/validation"

	"github.com/google/uuid"
)

const (
	phoneSharedText   = "I've shared my phone number with you."
	phoneDeclinedText = "I'd rather not share my phone number right now."
	phoneMissingText  = "add a phone number to your profile first"
)

// PhoneService runs the request, approve or decline, and share steps of
// phone number disclosure inside a ride's chat.
type PhoneService interface {
	RequestPhone(ctx context.Context, rideID, requesterID uuid.UUID, note string) (models.RideRequest, error)
	RespondPhoneRequest(ctx context.Context, rideID, ownerID, requesterID uuid.UUID, approve bool) (models.Message, error)
	SharePhone(ctx context.Context, rideID, senderID uuid.UUID, share bool, note string) (models.Message, error)
}

type phoneService struct {
	chat     ChatService
	rides    repository.ChatRepository
	requests repository.RequestRepository
	profiles repository.ProfileRepository
	events   events.Publisher
	log      *logger.Logger
}

func NewPhoneService(
	chat ChatService,
	rides repository.ChatRepository,
	requests repository.RequestRepository,
	profiles repository.ProfileRepository,
	pub events.Publisher,
	log *logger.Logger,
) PhoneService {
	return &phoneService{
		chat:     chat,
		rides:    rides,
		requests: requests,
		profiles: profiles,
		events:   pub,
		log:      log.Component("phone"),
	}
}

// RequestPhone records the ask on the requester's ride request and announces
// it in the chat. A request that was already accepted or rejected keeps its
// status; only a pending one has its note refreshed.
func (s *phoneService) RequestPhone(ctx context.Context, rideID, requesterID uuid.UUID, note string) (models.RideRequest, error) {
	note = strings.TrimSpace(note)
	if len([]rune(note)) > 500 {
		return models.RideRequest{}, invalid("note", "must be at most 500 characters")
	}

	owner, err := s.rides.RideOwner(ctx, rideID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.RideRequest{}, ErrNotFound
		}
		return models.RideRequest{}, fmt.Errorf("ride owner: %w", err)
	}
	if owner == requesterID {
		return models.RideRequest{}, ErrForbidden
	}

	req, err := s.ensureRequest(ctx, rideID, requesterID, note)
	if err != nil {
		return models.RideRequest{}, err
	}

	name := models.UnknownUserName
	if p, err := s.profiles.Get(ctx, requesterID); err == nil && p.FullName != "" {
		name = p.FullName
	}
	content := name + " asked for your phone number."
	if note != "" {
		content += " " + note
	}
	if _, err := s.chat.Post(ctx, models.Message{
		RideID:   rideID,
		SenderID: requesterID,
		Content:  content,
		Body:     models.SystemBody{},
	}); err != nil {
		return models.RideRequest{}, err
	}

	s.events.Publish(ctx, events.PhoneRequested, rideID, requesterID, map[string]interface{}{
		"request_id": req.ID,
		"owner_id":   owner,
	})
	return req, nil
}

func (s *phoneService) ensureRequest(ctx context.Context, rideID, requesterID uuid.UUID, note string) (models.RideRequest, error) {
	existing, err := s.requests.Get(ctx, rideID, requesterID)
	switch {
	case err == nil:
		if existing.Status == models.StatusPending && note != "" && note != existing.Message {
			if err := s.requests.UpdatePendingMessage(ctx, existing.ID, note); err != nil {
				s.log.WithError(err).Warn("request note refresh failed")
			} else {
				existing.Message = note
			}
		}
		return existing, nil
	case !errors.Is(err, sql.ErrNoRows):
		return models.RideRequest{}, fmt.Errorf("get request: %w", err)
	}

	created, err := s.requests.Create(ctx, rideID, requesterID, note)
	if errors.Is(err, repository.ErrDuplicate) {
		// Lost a race with a concurrent request; the winner's row is the one.
		return s.requests.Get(ctx, rideID, requesterID)
	}
	if err != nil {
		return models.RideRequest{}, fmt.Errorf("create request: %w", err)
	}
	return created, nil
}

// RespondPhoneRequest lets the ride owner approve or decline. A pending
// request moves to accepted or rejected; a request already settled keeps its
// status and only the share or decline message is posted.
func (s *phoneService) RespondPhoneRequest(ctx context.Context, rideID, ownerID, requesterID uuid.UUID, approve bool) (models.Message, error) {
	owner, err := s.rides.RideOwner(ctx, rideID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.Message{}, ErrNotFound
		}
		return models.Message{}, fmt.Errorf("ride owner: %w", err)
	}
	if owner != ownerID {
		return models.Message{}, ErrForbidden
	}

	req, err := s.requests.Get(ctx, rideID, requesterID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.Message{}, ErrNotFound
		}
		return models.Message{}, fmt.Errorf("get request: %w", err)
	}

	// Fail before moving the request if sharing is bound to be rejected.
	if approve {
		if _, err := s.ownPhone(ctx, ownerID); err != nil {
			return models.Message{}, err
		}
	}

	if req.Status == models.StatusPending {
		to := models.StatusRejected
		if approve {
			to = models.StatusAccepted
		}
		if _, err := s.requests.UpdateStatus(ctx, req.ID, models.StatusPending, to); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return models.Message{}, ErrInvalidTransition
			}
			return models.Message{}, fmt.Errorf("update request: %w", err)
		}
	}

	return s.SharePhone(ctx, rideID, ownerID, approve, "")
}

// SharePhone posts exactly one message: a phone share when share is true and
// the sender has a valid number on file, a system notice otherwise.
func (s *phoneService) SharePhone(ctx context.Context, rideID, senderID uuid.UUID, share bool, note string) (models.Message, error) {
	var content string
	if strings.TrimSpace(note) != "" {
		text, err := validation.MessageContent(note)
		if err != nil {
			return models.Message{}, invalid("message", err.Error())
		}
		content = text
	}

	if !s.chat.HasAccess(ctx, rideID, senderID) {
		return models.Message{}, ErrAccessDenied
	}

	msg := models.Message{RideID: rideID, SenderID: senderID}
	if share {
		phone, err := s.ownPhone(ctx, senderID)
		if err != nil {
			return models.Message{}, err
		}
		msg.Body = models.PhoneShareBody{PhoneNumber: phone}
		if content == "" {
			content = phoneSharedText
		}
	} else {
		msg.Body = models.SystemBody{}
		if content == "" {
			content = phoneDeclinedText
		}
	}
	msg.Content = content

	saved, err := s.chat.Post(ctx, msg)
	if err != nil {
		return models.Message{}, err
	}

	key := events.PhoneDeclined
	if share {
		key = events.PhoneShared
	}
	s.events.Publish(ctx, key, rideID, senderID, map[string]interface{}{"message_id": saved.ID})
	return saved, nil
}

func (s *phoneService) ownPhone(ctx context.Context, userID uuid.UUID) (string, error) {
	p, err := s.profiles.Get(ctx, userID)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("get profile: %w", err)
	}
	if !validation.Phone(p.PhoneNumber) {
		return "", invalid("phone_number", phoneMissingText)
	}
	return validation.NormalizePhone(p.PhoneNumber), nil
}
