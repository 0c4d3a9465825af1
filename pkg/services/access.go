package services

import (
	"context"
	"database/sql"
	"errors"

	"campusride/pkg/logger"
	"campusride/pkg/repository"

	"github.com/google/uuid"
)

// AccessResolver is the single gate in front of every chat read and write.
type AccessResolver interface {
	HasChatAccess(ctx context.Context, rideID, userID uuid.UUID) bool
}

type accessResolver struct {
	repo repository.ChatRepository
	log  *logger.Logger
}

func NewAccessResolver(repo repository.ChatRepository, log *logger.Logger) AccessResolver {
	return &accessResolver{repo: repo, log: log.Component("access")}
}

// HasChatAccess reports whether the user owns the ride, has a request on it in
// any status, or has already posted in it. Lookup failures deny access.
func (a *accessResolver) HasChatAccess(ctx context.Context, rideID, userID uuid.UUID) bool {
	if rideID == uuid.Nil || userID == uuid.Nil {
		return false
	}

	owner, err := a.repo.RideOwner(ctx, rideID)
	if err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			a.deny(rideID, userID, err)
		}
		return false
	}
	if owner == userID {
		return true
	}

	requested, err := a.repo.HasRequest(ctx, rideID, userID)
	if err != nil {
		a.deny(rideID, userID, err)
		return false
	}
	if requested {
		return true
	}

	posted, err := a.repo.HasSentMessage(ctx, rideID, userID)
	if err != nil {
		a.deny(rideID, userID, err)
		return false
	}
	return posted
}

func (a *accessResolver) deny(rideID, userID uuid.UUID, err error) {
	a.log.WithError(err).WithFields(map[string]interface{}{
		"ride_id": rideID,
		"user_id": userID,
	}).Warn("chat access lookup failed, denying")
}
