package events

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecorderKeepsOrder(t *testing.T) {
	var pub Publisher = &Recorder{}
	ride, actor := uuid.New(), uuid.New()

	pub.Publish(context.Background(), RequestCreated, ride, actor, nil)
	pub.Publish(context.Background(), RequestAccepted, ride, actor, map[string]string{"status": "accepted"})

	rec := pub.(*Recorder)
	assert.Equal(t, []string{RequestCreated, RequestAccepted}, rec.Keys())
	assert.Equal(t, ride, rec.Events[1].RideID)
	assert.NoError(t, pub.Close())
}

func TestEventWireShape(t *testing.T) {
	raw, err := json.Marshal(Event{ID: "e1", RoutingKey: PhoneShared, RideID: uuid.New()})
	require.NoError(t, err)

	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(raw, &out))
	assert.Equal(t, PhoneShared, out["type"])
	assert.Contains(t, out, "ride_id")
	assert.Contains(t, out, "occurred_at")
}

func TestNoopIsSilent(t *testing.T) {
	var pub Publisher = Noop{}
	pub.Publish(context.Background(), RideDeleted, uuid.New(), uuid.New(), nil)
	assert.NoError(t, pub.Close())
}
