package client

import "github.com/pkg/errors"

var (
	// ErrNotConnected is returned by outbound calls while the client has no
	// live connection. Callers fail fast instead of queueing.
	ErrNotConnected = errors.New("client is not connected")

	// ErrRetriesExhausted is returned when the reconnection budget runs out.
	ErrRetriesExhausted = errors.New("reconnect attempts exhausted")

	// ErrClientClosed is returned after Close.
	ErrClientClosed = errors.New("client is closed")
)
