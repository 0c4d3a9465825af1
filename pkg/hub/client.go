package hub

import (
	"errors"
	"net/http"
	"net/url"
	"sync"
	"time"

	"campusride/pkg/envelope"
	"campusride/pkg/logger"

	"github.com/fasthttp/websocket"
)

var ErrNotConnected = errors.New("hub client not connected")

// Client is a reconnecting hub connection that speaks envelopes.
type Client struct {
	hubURL string
	token  string
	log    *logger.Logger

	mu   sync.Mutex
	conn *websocket.Conn
	done chan struct{}

	onEnvelope func(envelope.Envelope)
	onConnect  func()
}

// NewClient creates a client for hubURL, e.g. "ws://localhost:8082/ws".
// The token is sent as a bearer Authorization header on every dial.
func NewClient(hubURL, token string, log *logger.Logger) *Client {
	return &Client{
		hubURL: hubURL,
		token:  token,
		log:    log.Component("hub-client"),
		done:   make(chan struct{}),
	}
}

// OnEnvelope registers the callback for inbound frames.
func (c *Client) OnEnvelope(fn func(envelope.Envelope)) {
	c.onEnvelope = fn
}

// OnConnect runs after every successful dial, including reconnects.
func (c *Client) OnConnect(fn func()) {
	c.onConnect = fn
}

// Connect keeps the connection alive until Close. It blocks; run it in a
// goroutine.
func (c *Client) Connect() {
	for {
		select {
		case <-c.done:
			return
		default:
		}

		if err := c.dial(); err != nil {
			c.log.WithError(err).Warn("dial failed, retrying in 3s")
			select {
			case <-c.done:
				return
			case <-time.After(3 * time.Second):
			}
			continue
		}

		c.log.Infof("connected to %s", c.hubURL)
		if c.onConnect != nil {
			go c.onConnect()
		}
		c.readLoop()

		select {
		case <-c.done:
			return
		case <-time.After(time.Second):
		}
		c.log.Info("disconnected, reconnecting")
	}
}

func (c *Client) dial() error {
	u, err := url.Parse(c.hubURL)
	if err != nil {
		return err
	}

	header := http.Header{}
	if c.token != "" {
		header.Set("Authorization", "Bearer "+c.token)
	}
	conn, _, err := websocket.DefaultDialer.Dial(u.String(), header)
	if err != nil {
		return err
	}

	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()
	return nil
}

func (c *Client) readLoop() {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		if c.conn == conn {
			c.conn = nil
		}
		c.mu.Unlock()
		conn.Close()
	}()

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return
		}
		env, err := envelope.Unmarshal(raw)
		if err != nil {
			continue
		}
		if c.onEnvelope != nil {
			c.onEnvelope(env)
		}
	}
}

func (c *Client) Send(env envelope.Envelope) error {
	data, err := env.Marshal()
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return ErrNotConnected
	}
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

// Request builds an envelope for action and sends it. The returned envelope's
// ID is what replies carry in ReplyTo.
func (c *Client) Request(action, service string, data interface{}) (envelope.Envelope, error) {
	env, err := envelope.NewRequest(action, service, data)
	if err != nil {
		return env, err
	}
	return env, c.Send(env)
}

func (c *Client) Close() {
	select {
	case <-c.done:
		return
	default:
		close(c.done)
	}
	c.mu.Lock()
	if c.conn != nil {
		c.conn.Close()
	}
	c.mu.Unlock()
}
