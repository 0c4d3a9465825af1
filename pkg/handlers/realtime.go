package handlers

import (
	"context"
	"errors"
	"sync"
	"time"

	"campusride/pkg/chatsync"
	"campusride/pkg/envelope"
	"campusride/pkg/hub"
	"campusride/pkg/logger"
	"campusride/pkg/services"

	"github.com/google/uuid"
)

const (
	ActionChatOpen    = "chat.open"
	ActionChatSend    = "chat.send"
	ActionChatClose   = "chat.close"
	ActionChatRoster  = "chat.roster"
	EventChatMessage  = "chat.message"
	EventChatRemoved  = "chat.removed"
	EventChatSnapshot = "chat.snapshot"

	realtimeService = "chat"
	actionTimeout   = 10 * time.Second
)

// Pusher is the part of the hub the realtime handlers use.
type Pusher interface {
	On(action string, fn hub.ActionHandler)
	OnDisconnect(fn func(connID string))
	Reply(original envelope.Envelope, data interface{})
	ReplyError(original envelope.Envelope, code int, msg string)
	SendTo(connID, action, service string, data interface{}) bool
	Connected(connID string) bool
}

type rideRef struct {
	RideID uuid.UUID `json:"ride_id"`
}

type sendFrame struct {
	RideID  uuid.UUID `json:"ride_id"`
	Content string    `json:"content"`
}

// Realtime keeps one chatsync session per open chat per socket and streams
// their updates back to that socket.
type Realtime struct {
	hub    Pusher
	chat   services.ChatService
	roster services.RosterService
	feed   chatsync.Feed
	poll   time.Duration
	log    *logger.Logger

	mu       sync.Mutex
	sessions map[string]map[uuid.UUID]*chatsync.Session
}

func NewRealtime(p Pusher, chat services.ChatService, roster services.RosterService, feed chatsync.Feed, poll time.Duration, log *logger.Logger) *Realtime {
	return &Realtime{
		hub:      p,
		chat:     chat,
		roster:   roster,
		feed:     feed,
		poll:     poll,
		log:      log.Component("realtime"),
		sessions: make(map[string]map[uuid.UUID]*chatsync.Session),
	}
}

func (r *Realtime) Register() {
	r.hub.On(ActionChatOpen, r.open)
	r.hub.On(ActionChatSend, r.send)
	r.hub.On(ActionChatClose, r.close)
	r.hub.On(ActionChatRoster, r.rosterAction)
	r.hub.OnDisconnect(r.disconnect)
}

// OpenSessions counts live sessions across all sockets.
func (r *Realtime) OpenSessions() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, m := range r.sessions {
		n += len(m)
	}
	return n
}

func (r *Realtime) open(env envelope.Envelope) {
	userID, ok := r.caller(env)
	if !ok {
		return
	}
	ref, err := envelope.ParseData[rideRef](env)
	if err != nil || ref.RideID == uuid.Nil {
		r.hub.ReplyError(env, 400, "ride_id is required")
		return
	}

	if s := r.lookup(env.ConnID, ref.RideID); s != nil {
		r.hub.Reply(env, chatsync.Update{Kind: chatsync.Snapshot, RideID: ref.RideID, Messages: s.Messages()})
		return
	}

	connID := env.ConnID
	if !r.hub.Connected(connID) {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), actionTimeout)
	defer cancel()
	s, err := chatsync.Open(ctx, ref.RideID, userID, r.chat, r.feed, chatsync.Options{
		PollInterval: r.poll,
		OnUpdate: func(u chatsync.Update) {
			r.hub.SendTo(connID, eventFor(u.Kind), realtimeService, u)
		},
	}, r.log)
	if err != nil {
		code, msg := statusFor(err)
		r.hub.ReplyError(env, code, msg)
		return
	}

	// The hub drops the peer before its disconnect hooks run, and the hook
	// takes r.mu, so a session stored here is always seen by the hook.
	r.mu.Lock()
	live := r.hub.Connected(connID)
	existing := r.sessions[connID][ref.RideID]
	if live && existing == nil {
		if r.sessions[connID] == nil {
			r.sessions[connID] = make(map[uuid.UUID]*chatsync.Session)
		}
		r.sessions[connID][ref.RideID] = s
	}
	r.mu.Unlock()

	switch {
	case !live:
		s.Close()
		return
	case existing != nil:
		s.Close()
		s = existing
	}
	r.hub.Reply(env, chatsync.Update{Kind: chatsync.Snapshot, RideID: ref.RideID, Messages: s.Messages()})
}

func (r *Realtime) send(env envelope.Envelope) {
	if _, ok := r.caller(env); !ok {
		return
	}
	frame, err := envelope.ParseData[sendFrame](env)
	if err != nil || frame.RideID == uuid.Nil {
		r.hub.ReplyError(env, 400, "ride_id is required")
		return
	}
	s := r.lookup(env.ConnID, frame.RideID)
	if s == nil {
		r.hub.ReplyError(env, 409, "chat is not open")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), actionTimeout)
	defer cancel()
	m, err := s.Send(ctx, frame.Content)
	switch {
	case errors.Is(err, chatsync.ErrSendInFlight):
		r.hub.ReplyError(env, 409, err.Error())
		return
	case errors.Is(err, chatsync.ErrClosed):
		r.hub.ReplyError(env, 410, err.Error())
		return
	case err != nil:
		code, msg := statusFor(err)
		r.hub.ReplyError(env, code, msg)
		return
	}
	r.hub.Reply(env, m)
}

func (r *Realtime) close(env envelope.Envelope) {
	ref, err := envelope.ParseData[rideRef](env)
	if err != nil || ref.RideID == uuid.Nil {
		r.hub.ReplyError(env, 400, "ride_id is required")
		return
	}

	r.mu.Lock()
	s := r.sessions[env.ConnID][ref.RideID]
	delete(r.sessions[env.ConnID], ref.RideID)
	r.mu.Unlock()

	if s != nil {
		s.Close()
	}
	r.hub.Reply(env, map[string]interface{}{"ride_id": ref.RideID, "closed": s != nil})
}

func (r *Realtime) rosterAction(env envelope.Envelope) {
	userID, ok := r.caller(env)
	if !ok {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), actionTimeout)
	defer cancel()
	rides, err := r.roster.ListChatRides(ctx, userID)
	if err != nil {
		code, msg := statusFor(err)
		r.hub.ReplyError(env, code, msg)
		return
	}
	r.hub.Reply(env, rides)
}

func (r *Realtime) disconnect(connID string) {
	r.mu.Lock()
	conn := r.sessions[connID]
	delete(r.sessions, connID)
	r.mu.Unlock()

	for _, s := range conn {
		s.Close()
	}
}

func (r *Realtime) lookup(connID string, rideID uuid.UUID) *chatsync.Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sessions[connID][rideID]
}

func (r *Realtime) caller(env envelope.Envelope) (uuid.UUID, bool) {
	id, err := uuid.Parse(env.UserID)
	if err != nil || id == uuid.Nil {
		r.hub.ReplyError(env, 401, "unauthorized")
		return uuid.Nil, false
	}
	return id, true
}

func eventFor(kind chatsync.UpdateKind) string {
	switch kind {
	case chatsync.Appended:
		return EventChatMessage
	case chatsync.Removed:
		return EventChatRemoved
	}
	return EventChatSnapshot
}
