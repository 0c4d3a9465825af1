package services

import (
	"context"
	"errors"
	"testing"

	"campusride/pkg/models"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHasChatAccess(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)

	owner := e.db.addProfile("Owner", "")
	requester := e.db.addProfile("Requester", "")
	rejected := e.db.addProfile("Rejected", "")
	stranger := e.db.addProfile("Stranger", "")
	ride := e.db.addRide(owner, e.future())

	_, err := e.requests.Create(ctx, ride.ID, requester, "Can I join?")
	require.NoError(t, err)
	req, err := e.requests.Create(ctx, ride.ID, rejected, "")
	require.NoError(t, err)
	_, err = e.requests.Respond(ctx, req.ID, owner, models.StatusRejected)
	require.NoError(t, err)

	tests := []struct {
		name string
		user uuid.UUID
		want bool
	}{
		{"owner", owner, true},
		{"pending requester", requester, true},
		{"rejected requester keeps access", rejected, true},
		{"stranger", stranger, false},
		{"nil user", uuid.Nil, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, e.access.HasChatAccess(ctx, ride.ID, tt.user))
		})
	}

	assert.False(t, e.access.HasChatAccess(ctx, uuid.New(), owner), "unknown ride")
}

func TestHasChatAccessViaSentMessage(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)

	owner := e.db.addProfile("Owner", "")
	sender := e.db.addProfile("Sender", "")
	ride := e.db.addRide(owner, e.future())

	assert.False(t, e.access.HasChatAccess(ctx, ride.ID, sender))

	_, err := e.chat.Post(ctx, models.Message{RideID: ride.ID, SenderID: sender, Content: "hi", Body: models.TextBody{}})
	require.NoError(t, err)

	assert.True(t, e.access.HasChatAccess(ctx, ride.ID, sender))
}

func TestHasChatAccessFailsClosed(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)

	owner := e.db.addProfile("Owner", "")
	requester := e.db.addProfile("Requester", "")
	ride := e.db.addRide(owner, e.future())
	_, err := e.requests.Create(ctx, ride.ID, requester, "")
	require.NoError(t, err)

	e.db.fail["HasRequest"] = errors.New("connection reset")
	assert.False(t, e.access.HasChatAccess(ctx, ride.ID, requester))

	e.db.fail["RideOwner"] = errors.New("connection reset")
	assert.False(t, e.access.HasChatAccess(ctx, ride.ID, owner))
}
