package hub

import (
	"sync"

	"campusride/pkg/envelope"
	"campusride/pkg/logger"

	"github.com/gofiber/contrib/websocket"
	"github.com/google/uuid"
)

const ActionPing = "ping"

type ActionHandler func(envelope.Envelope)

// peer is one authenticated socket. Writes are serialized by mu because the
// websocket connection allows a single concurrent writer.
type peer struct {
	id     string
	userID uuid.UUID
	conn   *websocket.Conn
	mu     sync.Mutex
	log    *logger.Logger
}

func (p *peer) write(env envelope.Envelope) {
	raw, err := env.Marshal()
	if err != nil {
		p.log.WithError(err).Warn("marshal outbound frame")
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.conn.WriteMessage(websocket.TextMessage, raw); err != nil {
		p.log.WithError(err).Debugf("write %s failed", env.Action)
	}
}

// Hub routes envelopes between WebSocket clients and registered action
// handlers. Every inbound frame is stamped with the caller's identity and its
// socket id, and replies go back to that socket.
type Hub struct {
	mu           sync.RWMutex
	peers        map[string]*peer
	byUser       map[uuid.UUID]map[string]*peer
	handlers     map[string]ActionHandler
	onDisconnect []func(connID string)

	log *logger.Logger
}

func New(log *logger.Logger) *Hub {
	return &Hub{
		peers:    make(map[string]*peer),
		byUser:   make(map[uuid.UUID]map[string]*peer),
		handlers: make(map[string]ActionHandler),
		log:      log.Component("hub"),
	}
}

// On registers a handler. Handlers must be registered before the first
// connection is served.
func (h *Hub) On(action string, fn ActionHandler) {
	h.handlers[action] = fn
}

// OnDisconnect registers a hook run after a connection goes away.
func (h *Hub) OnDisconnect(fn func(connID string)) {
	h.onDisconnect = append(h.onDisconnect, fn)
}

// HandleClientConn serves one socket until it closes. userID comes from the
// token checked during the upgrade.
func (h *Hub) HandleClientConn(c *websocket.Conn, userID uuid.UUID) {
	p := h.attach(c, userID)
	defer h.detach(p)

	for {
		_, raw, err := c.ReadMessage()
		if err != nil {
			return
		}

		env, err := envelope.Unmarshal(raw)
		if err != nil {
			p.write(envelope.NewError(envelope.Envelope{Action: "frame"}, 400, "invalid JSON"))
			continue
		}
		if env.Action == ActionPing {
			p.write(envelope.New("pong", "system"))
			continue
		}
		if env.ID == "" {
			env.ID = envelope.NewID()
		}

		// Identity always comes from the token, never from the frame.
		env.UserID = userID.String()
		env.ReplyTo = env.ID
		env.ConnID = p.id

		handler, ok := h.handlers[env.Action]
		if !ok {
			p.write(envelope.NewError(env, 404, "unknown action: "+env.Action))
			continue
		}
		go handler(env)
	}
}

func (h *Hub) attach(c *websocket.Conn, userID uuid.UUID) *peer {
	p := &peer{id: envelope.NewID(), userID: userID, conn: c}
	p.log = h.log.WithFields(map[string]interface{}{"conn_id": p.id, "user_id": userID})

	h.mu.Lock()
	h.peers[p.id] = p
	if h.byUser[userID] == nil {
		h.byUser[userID] = make(map[string]*peer)
	}
	h.byUser[userID][p.id] = p
	total := len(h.peers)
	h.mu.Unlock()

	p.log.Infof("client connected, total=%d", total)
	return p
}

func (h *Hub) detach(p *peer) {
	h.mu.Lock()
	delete(h.peers, p.id)
	delete(h.byUser[p.userID], p.id)
	if len(h.byUser[p.userID]) == 0 {
		delete(h.byUser, p.userID)
	}
	total := len(h.peers)
	h.mu.Unlock()

	p.conn.Close()
	for _, fn := range h.onDisconnect {
		fn(p.id)
	}
	p.log.Infof("client disconnected, total=%d", total)
}

func (h *Hub) peer(connID string) (*peer, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	p, ok := h.peers[connID]
	return p, ok
}

// Connected reports whether the socket is still attached. Disconnect hooks run
// only after it turns false.
func (h *Hub) Connected(connID string) bool {
	_, ok := h.peer(connID)
	return ok
}

// Reply sends a response to the socket that made the request. It is dropped
// when that socket has gone away.
func (h *Hub) Reply(original envelope.Envelope, data interface{}) {
	env, err := envelope.NewReply(original, data)
	if err != nil {
		h.log.WithError(err).Warn("reply marshal failed")
		return
	}
	if p, ok := h.peer(original.ConnID); ok {
		p.write(env)
	}
}

func (h *Hub) ReplyError(original envelope.Envelope, code int, msg string) {
	if p, ok := h.peer(original.ConnID); ok {
		p.write(envelope.NewError(original, code, msg))
	}
}

// SendTo pushes an event to one connection. It reports false when the
// connection is gone.
func (h *Hub) SendTo(connID, action, service string, data interface{}) bool {
	p, ok := h.peer(connID)
	if !ok {
		return false
	}
	env, err := envelope.NewEvent(action, service, data)
	if err != nil {
		return false
	}
	env.UserID = p.userID.String()
	p.write(env)
	return true
}

func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.peers)
}

func (h *Hub) UserCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.byUser)
}
