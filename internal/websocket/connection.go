// Package websocket adapts gorilla/websocket connections to the hub's
// Sender contract and runs the read side of the wire protocol.
package websocket

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"lanchat/pkg/types"
)

var logger logrus.FieldLogger = logrus.StandardLogger()

// Options bound the wire timing for one connection.
type Options struct {
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	PingInterval time.Duration
	SendBuffer   int
	MaxFrameSize int64
}

// DefaultOptions returns the production timing profile.
func DefaultOptions() Options {
	return Options{
		ReadTimeout:  60 * time.Second,
		WriteTimeout: 10 * time.Second,
		PingInterval: 30 * time.Second,
		SendBuffer:   100,
		MaxFrameSize: 64 * 1024,
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.ReadTimeout <= 0 {
		o.ReadTimeout = d.ReadTimeout
	}
	if o.WriteTimeout <= 0 {
		o.WriteTimeout = d.WriteTimeout
	}
	if o.PingInterval <= 0 {
		o.PingInterval = d.PingInterval
	}
	if o.SendBuffer <= 0 {
		o.SendBuffer = d.SendBuffer
	}
	if o.MaxFrameSize <= 0 {
		o.MaxFrameSize = d.MaxFrameSize
	}
	return o
}

// Connection owns one websocket. A single writer goroutine drains the send
// queue; Send never touches the socket directly, so it is safe from the
// hub loop and never blocks it.
type Connection struct {
	id   string
	conn *websocket.Conn
	opts Options

	sendCh chan types.Frame

	ctx       context.Context
	cancel    context.CancelFunc
	closeOnce sync.Once
}

// NewConnection wraps an upgraded websocket and starts its writer.
func NewConnection(conn *websocket.Conn, opts Options) *Connection {
	ctx, cancel := context.WithCancel(context.Background())
	c := &Connection{
		id:     uuid.NewString(),
		conn:   conn,
		opts:   opts.withDefaults(),
		sendCh: make(chan types.Frame, opts.withDefaults().SendBuffer),
		ctx:    ctx,
		cancel: cancel,
	}
	go c.writeLoop()
	return c
}

// ID returns the transport id this connection is registered under.
func (c *Connection) ID() string {
	return c.id
}

// Send queues a frame for delivery. A closed connection or a full queue is
// an error; the caller drops the session.
func (c *Connection) Send(frame types.Frame) error {
	select {
	case <-c.ctx.Done():
		return ErrConnectionClosed
	default:
	}

	select {
	case c.sendCh <- frame:
		return nil
	case <-c.ctx.Done():
		return ErrConnectionClosed
	default:
		return ErrSendBufferFull
	}
}

// Close tears the connection down. Safe to call more than once.
func (c *Connection) Close() error {
	c.closeOnce.Do(func() {
		c.cancel()
		deadline := time.Now().Add(c.opts.WriteTimeout)
		_ = c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
		_ = c.conn.Close()
	})
	return nil
}

func (c *Connection) writeLoop() {
	ticker := time.NewTicker(c.opts.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case frame := <-c.sendCh:
			_ = c.conn.SetWriteDeadline(time.Now().Add(c.opts.WriteTimeout))
			if err := c.conn.WriteJSON(frame); err != nil {
				logger.WithError(err).WithField("transport", c.id).Debug("write failed")
				_ = c.Close()
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(c.opts.WriteTimeout))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				_ = c.Close()
				return
			}
		case <-c.ctx.Done():
			return
		}
	}
}

// readLoop decodes inbound frames until the peer goes away. It runs on the
// HTTP handler's goroutine.
func (c *Connection) readLoop(dispatch func(types.Frame)) {
	c.conn.SetReadLimit(c.opts.MaxFrameSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(c.opts.ReadTimeout))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(c.opts.ReadTimeout))
	})

	for {
		var frame types.Frame
		if err := c.conn.ReadJSON(&frame); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				logger.WithError(err).WithField("transport", c.id).Debug("read failed")
			}
			return
		}
		_ = c.conn.SetReadDeadline(time.Now().Add(c.opts.ReadTimeout))
		dispatch(frame)
	}
}
