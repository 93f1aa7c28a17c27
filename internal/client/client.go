// Package client is the chat client: it maintains one websocket to the
// server, reconnects with a bounded backoff schedule, computes outbound
// integrity codes, and re-verifies every code it receives. The server's
// stored crc_valid flag is advisory; trust is the local recomputation.
package client

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"lanchat/internal/checksum"
	"lanchat/pkg/types"
)

var logger logrus.FieldLogger = logrus.StandardLogger()

// Defaults for the reconnection schedule.
const (
	DefaultMaxRetries  = 5
	DefaultBackoffBase = 1 * time.Second
	DefaultBackoffMax  = 5 * time.Second
)

// VerifiedMessage is a received message plus the local integrity verdict.
type VerifiedMessage struct {
	types.Message
	LocalValid bool
}

// Handlers are the application callbacks. Nil entries are skipped. They
// run on the read goroutine; do not block in them.
type Handlers struct {
	OnMessage         func(VerifiedMessage)
	OnHistory         func([]VerifiedMessage)
	OnMembers         func([]types.Member)
	OnJoined          func(types.PresencePayload)
	OnLeft            func(types.PresencePayload)
	OnTyping          func(types.TypingPayload)
	OnStopTyping      func(types.TypingPayload)
	OnMessageError    func(types.MessageErrorPayload)
	OnProfileRequired func(types.ProfileRequiredPayload)
	OnDisconnect      func(error)
}

// Cfg is a functional option for the client.
type Cfg func(*Client) error

// WithURL sets the websocket endpoint, e.g. ws://192.168.1.10:5000/ws.
func WithURL(url string) Cfg {
	return func(c *Client) error {
		if url == "" {
			return errors.New("url must not be empty")
		}
		c.url = url
		return nil
	}
}

// WithHandlers installs the application callbacks.
func WithHandlers(h Handlers) Cfg {
	return func(c *Client) error {
		c.handlers = h
		return nil
	}
}

// WithRetries bounds the reconnection attempts per outage.
func WithRetries(n int) Cfg {
	return func(c *Client) error {
		if n < 0 {
			return errors.New("retries must not be negative")
		}
		c.maxRetries = n
		return nil
	}
}

// WithBackoff sets the backoff schedule: the delay doubles each attempt
// starting from base, capped at max.
func WithBackoff(base, max time.Duration) Cfg {
	return func(c *Client) error {
		if base <= 0 || max < base {
			return errors.New("invalid backoff bounds")
		}
		c.backoffBase = base
		c.backoffMax = max
		return nil
	}
}

// Client mirrors the server's chat state over one websocket.
type Client struct {
	url         string
	maxRetries  int
	backoffBase time.Duration
	backoffMax  time.Duration
	handlers    Handlers
	dialer      *websocket.Dialer

	mu        sync.Mutex
	conn      *websocket.Conn
	connected bool
	closed    bool
}

// New creates a client; WithURL is required.
func New(cfgs ...Cfg) (*Client, error) {
	c := &Client{
		maxRetries:  DefaultMaxRetries,
		backoffBase: DefaultBackoffBase,
		backoffMax:  DefaultBackoffMax,
		dialer:      websocket.DefaultDialer,
	}
	for _, cfg := range cfgs {
		if err := cfg(c); err != nil {
			return nil, errors.Wrap(err, "configure client failed")
		}
	}
	if c.url == "" {
		return nil, errors.New("client requires a server url")
	}
	return c, nil
}

// Connect dials the server, retrying on failure up to the configured
// budget. On success the read loop starts in the background.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClientClosed
	}
	c.mu.Unlock()

	return c.connect(ctx)
}

func (c *Client) connect(ctx context.Context) error {
	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(c.backoffDelay(attempt)):
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		conn, _, err := c.dialer.DialContext(ctx, c.url, nil)
		if err != nil {
			lastErr = err
			logger.WithError(err).WithField("attempt", attempt+1).Warn("dial failed")
			continue
		}

		c.mu.Lock()
		if c.closed {
			c.mu.Unlock()
			_ = conn.Close()
			return ErrClientClosed
		}
		c.conn = conn
		c.connected = true
		c.mu.Unlock()

		go c.readLoop(ctx, conn)
		logger.WithField("url", c.url).Info("connected")
		return nil
	}
	return errors.Wrap(ErrRetriesExhausted, lastErr.Error())
}

// backoffDelay doubles per attempt up to the cap: base, 2*base, 4*base...
func (c *Client) backoffDelay(attempt int) time.Duration {
	delay := c.backoffBase << (attempt - 1)
	if delay > c.backoffMax || delay <= 0 {
		delay = c.backoffMax
	}
	return delay
}

// Close shuts the client down; no reconnection follows.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	c.connected = false
	if c.conn != nil {
		deadline := time.Now().Add(time.Second)
		_ = c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
		_ = c.conn.Close()
	}
	return nil
}

// send marshals and writes one frame, failing fast when disconnected.
func (c *Client) send(event string, data interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClientClosed
	}
	if !c.connected || c.conn == nil {
		return ErrNotConnected
	}
	frame, err := types.NewFrame(event, data)
	if err != nil {
		return errors.Wrap(err, "encode frame failed")
	}
	return c.conn.WriteJSON(frame)
}

// Send computes the integrity code for text and submits it. The ack is
// the broadcast echo arriving at OnMessage.
func (c *Client) Send(text string) error {
	code := checksum.FormatBinary(checksum.Compute(text))
	return c.send(types.EventSendMessage, types.SendMessagePayload{Message: text, CRC: code})
}

// Typing signals typing activity.
func (c *Client) Typing() error {
	return c.send(types.EventTyping, nil)
}

// StopTyping signals the end of typing activity.
func (c *Client) StopTyping() error {
	return c.send(types.EventStopTyping, nil)
}

// RequestHistory asks for the last limit messages; zero requests the
// server default window.
func (c *Client) RequestHistory(limit int) error {
	return c.send(types.EventGetHistory, types.GetHistoryPayload{Limit: limit})
}

// Connected reports whether a live connection exists.
func (c *Client) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

func (c *Client) readLoop(ctx context.Context, conn *websocket.Conn) {
	var readErr error
	for {
		var frame types.Frame
		if err := conn.ReadJSON(&frame); err != nil {
			readErr = err
			break
		}
		c.dispatch(frame)
	}

	c.mu.Lock()
	closed := c.closed
	if c.conn == conn {
		c.connected = false
		c.conn = nil
	}
	c.mu.Unlock()

	if closed {
		return
	}
	logger.WithError(readErr).Warn("connection lost")
	if c.handlers.OnDisconnect != nil {
		c.handlers.OnDisconnect(readErr)
	}

	if err := c.connect(ctx); err != nil {
		logger.WithError(err).Error("reconnect failed")
	}
}

func (c *Client) dispatch(frame types.Frame) {
	switch frame.Event {
	case types.EventMessage:
		var msg types.Message
		if c.decode(frame, &msg) && c.handlers.OnMessage != nil {
			c.handlers.OnMessage(c.verify(msg))
		}
	case types.EventChatHistory:
		var payload types.ChatHistoryPayload
		if c.decode(frame, &payload) && c.handlers.OnHistory != nil {
			verified := make([]VerifiedMessage, 0, len(payload.Messages))
			for _, msg := range payload.Messages {
				verified = append(verified, c.verify(*msg))
			}
			c.handlers.OnHistory(verified)
		}
	case types.EventMembersUpdate:
		var payload types.MembersUpdatePayload
		if c.decode(frame, &payload) && c.handlers.OnMembers != nil {
			c.handlers.OnMembers(payload.Members)
		}
	case types.EventUserJoined:
		var payload types.PresencePayload
		if c.decode(frame, &payload) && c.handlers.OnJoined != nil {
			c.handlers.OnJoined(payload)
		}
	case types.EventUserLeft:
		var payload types.PresencePayload
		if c.decode(frame, &payload) && c.handlers.OnLeft != nil {
			c.handlers.OnLeft(payload)
		}
	case types.EventTyping:
		var payload types.TypingPayload
		if c.decode(frame, &payload) && c.handlers.OnTyping != nil {
			c.handlers.OnTyping(payload)
		}
	case types.EventStopTyping:
		var payload types.TypingPayload
		if c.decode(frame, &payload) && c.handlers.OnStopTyping != nil {
			c.handlers.OnStopTyping(payload)
		}
	case types.EventMessageError:
		var payload types.MessageErrorPayload
		if c.decode(frame, &payload) && c.handlers.OnMessageError != nil {
			c.handlers.OnMessageError(payload)
		}
	case types.EventProfileRequired:
		var payload types.ProfileRequiredPayload
		if c.decode(frame, &payload) && c.handlers.OnProfileRequired != nil {
			c.handlers.OnProfileRequired(payload)
		}
	default:
		logger.WithField("event", frame.Event).Debug("unknown event ignored")
	}
}

func (c *Client) decode(frame types.Frame, v interface{}) bool {
	if err := json.Unmarshal(frame.Data, v); err != nil {
		logger.WithError(err).WithField("event", frame.Event).Warn("malformed frame ignored")
		return false
	}
	return true
}

// verify recomputes the integrity code locally. The stored flag is kept
// on the message but LocalValid is the verdict that matters.
func (c *Client) verify(msg types.Message) VerifiedMessage {
	return VerifiedMessage{Message: msg, LocalValid: checksum.Verify(msg.Text, msg.Checksum)}
}
