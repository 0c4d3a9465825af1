package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"campusride/pkg/broker"
	"campusride/pkg/logger"
	"campusride/pkg/models"
	"campusride/pkg/repository"
	"campusride/pkg/validation"

	"github.com/google/uuid"
)

// Notifier announces chat changes to realtime subscribers.
type Notifier interface {
	PublishMessage(ctx context.Context, action string, ev broker.MessageEvent) error
}

type ChatService interface {
	SendMessage(ctx context.Context, rideID, senderID uuid.UUID, content string) (models.Message, error)
	GetMessages(ctx context.Context, rideID, userID uuid.UUID) ([]models.Message, error)
	GetMessage(ctx context.Context, rideID, messageID uuid.UUID) (models.Message, error)
	DeleteMessage(ctx context.Context, rideID, messageID, userID uuid.UUID) error

	// Post stores an already validated message of any kind and notifies
	// subscribers. Callers are responsible for the access check.
	Post(ctx context.Context, m models.Message) (models.Message, error)
	HasAccess(ctx context.Context, rideID, userID uuid.UUID) bool
}

type chatService struct {
	access   AccessResolver
	messages repository.MessageRepository
	profiles repository.ProfileRepository
	chat     repository.ChatRepository
	roster   RosterService
	notify   Notifier
	log      *logger.Logger
}

func NewChatService(
	access AccessResolver,
	messages repository.MessageRepository,
	profiles repository.ProfileRepository,
	chat repository.ChatRepository,
	roster RosterService,
	notify Notifier,
	log *logger.Logger,
) ChatService {
	return &chatService{
		access:   access,
		messages: messages,
		profiles: profiles,
		chat:     chat,
		roster:   roster,
		notify:   notify,
		log:      log.Component("chat"),
	}
}

func (s *chatService) HasAccess(ctx context.Context, rideID, userID uuid.UUID) bool {
	return s.access.HasChatAccess(ctx, rideID, userID)
}

func (s *chatService) SendMessage(ctx context.Context, rideID, senderID uuid.UUID, content string) (models.Message, error) {
	text, err := validation.MessageContent(content)
	if err != nil {
		return models.Message{}, invalid("content", err.Error())
	}

	if !s.access.HasChatAccess(ctx, rideID, senderID) {
		return models.Message{}, ErrAccessDenied
	}

	return s.Post(ctx, models.Message{
		RideID:   rideID,
		SenderID: senderID,
		Content:  text,
		Body:     models.TextBody{},
	})
}

func (s *chatService) Post(ctx context.Context, m models.Message) (models.Message, error) {
	saved, err := s.messages.Insert(ctx, m)
	if err != nil {
		return models.Message{}, fmt.Errorf("store message: %w", err)
	}
	saved.Sender = s.profileOrPlaceholder(ctx, saved.SenderID)

	ev := broker.MessageEvent{RideID: saved.RideID, MessageID: saved.ID}
	if err := s.notify.PublishMessage(ctx, broker.ActionMessageInsert, ev); err != nil {
		s.log.WithError(err).WithField("ride_id", saved.RideID).Warn("realtime notify failed")
	}
	s.roster.Invalidate(ctx)

	return saved, nil
}

func (s *chatService) GetMessages(ctx context.Context, rideID, userID uuid.UUID) ([]models.Message, error) {
	if !s.access.HasChatAccess(ctx, rideID, userID) {
		return nil, ErrAccessDenied
	}

	msgs, err := s.messages.ListByRide(ctx, rideID)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	s.attachSenders(ctx, msgs)
	return msgs, nil
}

func (s *chatService) GetMessage(ctx context.Context, rideID, messageID uuid.UUID) (models.Message, error) {
	m, err := s.messages.Get(ctx, rideID, messageID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.Message{}, ErrNotFound
		}
		return models.Message{}, fmt.Errorf("get message: %w", err)
	}
	m.Sender = s.profileOrPlaceholder(ctx, m.SenderID)
	return m, nil
}

// DeleteMessage is reserved to the ride owner.
func (s *chatService) DeleteMessage(ctx context.Context, rideID, messageID, userID uuid.UUID) error {
	owner, err := s.chat.RideOwner(ctx, rideID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		return fmt.Errorf("ride owner: %w", err)
	}
	if owner != userID {
		return ErrForbidden
	}

	n, err := s.messages.Delete(ctx, rideID, messageID)
	if err != nil {
		return fmt.Errorf("delete message: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}

	ev := broker.MessageEvent{RideID: rideID, MessageID: messageID}
	if err := s.notify.PublishMessage(ctx, broker.ActionMessageDelete, ev); err != nil {
		s.log.WithError(err).WithField("ride_id", rideID).Warn("realtime notify failed")
	}
	s.roster.Invalidate(ctx)
	return nil
}

// attachSenders joins sender profiles in a second pass. A failed or partial
// lookup leaves placeholders instead of failing the read.
func (s *chatService) attachSenders(ctx context.Context, msgs []models.Message) {
	if len(msgs) == 0 {
		return
	}
	seen := make(map[uuid.UUID]bool)
	var ids []uuid.UUID
	for _, m := range msgs {
		if !seen[m.SenderID] {
			seen[m.SenderID] = true
			ids = append(ids, m.SenderID)
		}
	}

	profiles, err := s.profiles.GetMany(ctx, ids)
	if err != nil {
		s.log.WithError(err).Warn("sender profiles unavailable")
	}
	for i := range msgs {
		if p, ok := profiles[msgs[i].SenderID]; ok {
			msgs[i].Sender = p.Public()
		} else {
			msgs[i].Sender = models.UnknownProfile(msgs[i].SenderID)
		}
	}
}

func (s *chatService) profileOrPlaceholder(ctx context.Context, id uuid.UUID) *models.Profile {
	p, err := s.profiles.Get(ctx, id)
	if err != nil {
		return models.UnknownProfile(id)
	}
	return p.Public()
}
