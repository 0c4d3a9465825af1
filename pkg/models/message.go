package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

type MessageKind string

const (
	KindText       MessageKind = "text"
	KindPhoneShare MessageKind = "phone_share"
	KindSystem     MessageKind = "system"
)

const MaxMessageLength = 1000

// Body is the kind-specific payload of a Message. Only PhoneShareBody can
// carry a phone number.
type Body interface {
	Kind() MessageKind
}

type TextBody struct{}

func (TextBody) Kind() MessageKind { return KindText }

type SystemBody struct{}

func (SystemBody) Kind() MessageKind { return KindSystem }

type PhoneShareBody struct {
	PhoneNumber string
}

func (PhoneShareBody) Kind() MessageKind { return KindPhoneShare }

type Message struct {
	ID        uuid.UUID
	RideID    uuid.UUID
	SenderID  uuid.UUID
	Content   string
	CreatedAt time.Time
	Seq       int64
	Body      Body
	Sender    *Profile
}

func (m Message) Kind() MessageKind {
	if m.Body == nil {
		return KindText
	}
	return m.Body.Kind()
}

// DisclosedPhone is the only way to read a shared number.
func (m Message) DisclosedPhone() (string, bool) {
	b, ok := m.Body.(PhoneShareBody)
	if !ok || b.PhoneNumber == "" {
		return "", false
	}
	return b.PhoneNumber, true
}

// BodyFromColumns rebuilds the variant from the stored columns. A number on a
// row that is not a flagged phone_share row is dropped.
func BodyFromColumns(kind string, phone *string, shared bool) Body {
	switch MessageKind(kind) {
	case KindPhoneShare:
		if shared && phone != nil && *phone != "" {
			return PhoneShareBody{PhoneNumber: *phone}
		}
		return SystemBody{}
	case KindSystem:
		return SystemBody{}
	default:
		return TextBody{}
	}
}

// Columns is the inverse of BodyFromColumns.
func (m Message) Columns() (kind string, phone *string, shared bool) {
	if p, ok := m.DisclosedPhone(); ok {
		return string(KindPhoneShare), &p, true
	}
	return string(m.Kind()), nil, false
}

type messageJSON struct {
	ID          uuid.UUID   `json:"id"`
	RideID      uuid.UUID   `json:"ride_id"`
	SenderID    uuid.UUID   `json:"sender_id"`
	Content     string      `json:"content"`
	CreatedAt   time.Time   `json:"created_at"`
	Seq         int64       `json:"seq"`
	MessageType MessageKind `json:"message_type"`
	PhoneNumber string      `json:"phone_number,omitempty"`
	PhoneShared bool        `json:"phone_shared,omitempty"`
	Sender      *Profile    `json:"sender,omitempty"`
}

func (m Message) MarshalJSON() ([]byte, error) {
	out := messageJSON{
		ID:          m.ID,
		RideID:      m.RideID,
		SenderID:    m.SenderID,
		Content:     m.Content,
		CreatedAt:   m.CreatedAt,
		Seq:         m.Seq,
		MessageType: m.Kind(),
		Sender:      m.Sender,
	}
	if p, ok := m.DisclosedPhone(); ok {
		out.PhoneNumber = p
		out.PhoneShared = true
	}
	return json.Marshal(out)
}

func (m *Message) UnmarshalJSON(data []byte) error {
	var in messageJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	*m = Message{
		ID:        in.ID,
		RideID:    in.RideID,
		SenderID:  in.SenderID,
		Content:   in.Content,
		CreatedAt: in.CreatedAt,
		Seq:       in.Seq,
		Sender:    in.Sender,
		Body:      BodyFromColumns(string(in.MessageType), &in.PhoneNumber, in.PhoneShared),
	}
	return nil
}

type SendMessageRequest struct {
	Content string `json:"content"`
}

type SharePhoneRequest struct {
	Share   bool   `json:"share"`
	Message string `json:"message"`
}

type PhoneRequestBody struct {
	Note string `json:"note"`
}

type PhoneResponseBody struct {
	RequesterID uuid.UUID `json:"requester_id"`
	Approve     bool      `json:"approve"`
}
