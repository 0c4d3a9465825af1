package envelope

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReplyCarriesCorrelation(t *testing.T) {
	req, err := NewRequest("chat.send", "chat", map[string]string{"content": "hi"})
	require.NoError(t, err)
	req.UserID = "u1"
	req.ConnID = "c1"

	reply, err := NewReply(req, map[string]int{"ok": 1})
	require.NoError(t, err)
	assert.Equal(t, "chat.send.result", reply.Action)
	assert.Equal(t, req.ID, reply.ReplyTo)
	assert.Equal(t, "u1", reply.UserID)
	assert.Empty(t, reply.ConnID)

	errEnv := NewError(req, 403, "denied")
	assert.Equal(t, "chat.send.error", errEnv.Action)
	assert.Equal(t, 403, errEnv.Error.Code)
}

func TestConnIDNeverSerialized(t *testing.T) {
	e := New("ping", "system")
	e.ConnID = "secret"
	raw, err := e.Marshal()
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "secret")

	back, err := Unmarshal(raw)
	require.NoError(t, err)
	assert.Equal(t, e.ID, back.ID)
	assert.Empty(t, back.ConnID)
}

func TestParseDataEmpty(t *testing.T) {
	type req struct{ RideID string }
	got, err := ParseData[req](New("chat.close", "chat"))
	require.NoError(t, err)
	assert.Empty(t, got.RideID)
}

func TestRequestAction(t *testing.T) {
	req := New("chat.open", "chat")
	res, err := NewReply(req, nil)
	require.NoError(t, err)
	assert.Equal(t, "chat.open", res.RequestAction())
	assert.False(t, res.Failed())

	fail := NewError(req, 404, "unknown action: chat.open")
	assert.Equal(t, "chat.open", fail.RequestAction())
	assert.True(t, fail.Failed())

	assert.Equal(t, "chat.message", New("chat.message", "chat").RequestAction())
}
