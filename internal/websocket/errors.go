package websocket

import "github.com/pkg/errors"

var (
	// ErrConnectionClosed is returned when sending on a closed connection.
	ErrConnectionClosed = errors.New("connection is closed")

	// ErrSendBufferFull is returned when the outbound queue is saturated.
	// The hub treats it as fatal for the session.
	ErrSendBufferFull = errors.New("send buffer is full")
)
