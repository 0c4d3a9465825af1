package envelope

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	resultSuffix = ".result"
	errorSuffix  = ".error"
)

// Envelope is the frame exchanged over the WebSocket hub and the Redis broker.
// Replies carry the request's ID in ReplyTo and the request's action with a
// ".result" or ".error" suffix.
type Envelope struct {
	ID        string          `json:"id"`
	Action    string          `json:"action"`
	Service   string          `json:"service,omitempty"`
	UserID    string          `json:"user_id,omitempty"`
	ReplyTo   string          `json:"reply_to,omitempty"`
	Data      json.RawMessage `json:"data,omitempty"`
	Error     *ErrorPayload   `json:"error,omitempty"`
	Timestamp int64           `json:"ts"`

	// ConnID is stamped by the hub on inbound frames and never leaves the process.
	ConnID string `json:"-"`
}

type ErrorPayload struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func NewID() string {
	return uuid.NewString()
}

func New(action, service string) Envelope {
	return Envelope{
		ID:        NewID(),
		Action:    action,
		Service:   service,
		Timestamp: time.Now().UnixMilli(),
	}
}

// NewRequest builds a frame carrying data as JSON. Events use the same shape.
func NewRequest(action, service string, data interface{}) (Envelope, error) {
	e := New(action, service)
	raw, err := json.Marshal(data)
	if err != nil {
		return e, err
	}
	e.Data = raw
	return e, nil
}

func NewEvent(action, service string, data interface{}) (Envelope, error) {
	return NewRequest(action, service, data)
}

func NewReply(original Envelope, data interface{}) (Envelope, error) {
	e, err := NewRequest(ResultOf(original.Action), original.Service, data)
	e.ReplyTo = original.ID
	e.UserID = original.UserID
	return e, err
}

func NewError(original Envelope, code int, message string) Envelope {
	e := New(ErrorOf(original.Action), original.Service)
	e.ReplyTo = original.ID
	e.UserID = original.UserID
	e.Error = &ErrorPayload{Code: code, Message: message}
	return e
}

func ResultOf(action string) string { return action + resultSuffix }

func ErrorOf(action string) string { return action + errorSuffix }

// RequestAction strips a reply suffix, returning the action that was asked.
func (e Envelope) RequestAction() string {
	if a, ok := strings.CutSuffix(e.Action, resultSuffix); ok {
		return a
	}
	if a, ok := strings.CutSuffix(e.Action, errorSuffix); ok {
		return a
	}
	return e.Action
}

func (e Envelope) Failed() bool {
	return e.Error != nil
}

func (e Envelope) Marshal() ([]byte, error) {
	return json.Marshal(e)
}

func Unmarshal(data []byte) (Envelope, error) {
	var e Envelope
	err := json.Unmarshal(data, &e)
	return e, err
}

// ParseData decodes the payload into T. An empty payload yields T's zero value.
func ParseData[T any](e Envelope) (T, error) {
	var v T
	if len(e.Data) == 0 {
		return v, nil
	}
	err := json.Unmarshal(e.Data, &v)
	return v, err
}
