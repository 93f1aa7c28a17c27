package hub

import "github.com/pkg/errors"

var (
	// ErrHubAlreadyRunning is returned by Start on a running hub.
	ErrHubAlreadyRunning = errors.New("hub is already running")

	// ErrHubNotRunning is returned when the hub has not been started or was
	// stopped.
	ErrHubNotRunning = errors.New("hub is not running")

	// ErrChannelFull is returned when a command queue is saturated.
	ErrChannelFull = errors.New("hub channel is full")
)
