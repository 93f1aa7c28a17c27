// Package typing tracks which identities are currently typing. Entries are
// per identity, never per session: every session behind one address shares
// a single expiry timer, and any session's activity renews it.
//
// Like the registry, the tracker's methods are owned by the hub loop and
// are not safe for concurrent use. Expiry timers fire on their own
// goroutines but only ever post to the Expired channel, which the hub loop
// consumes and turns back into a HandleExpiry call.
package typing

import (
	"time"

	"github.com/sirupsen/logrus"
)

var logger logrus.FieldLogger = logrus.StandardLogger()

// DefaultTimeout is the inactivity window measured from each signal.
const DefaultTimeout = 3 * time.Second

// Expiry is posted when an identity's typing window elapses. Generation
// guards against a timer that fired concurrently with a renewal: the hub
// discards expiries whose generation is no longer current.
type Expiry struct {
	Address    string
	Generation uint64
}

type state struct {
	username   string
	generation uint64
	deadline   time.Time
	timer      *time.Timer
}

// Tracker is the Idle -> Typing -> Idle state machine for all identities.
type Tracker struct {
	timeout time.Duration
	entries map[string]*state
	expired chan Expiry
}

// NewTracker creates a tracker with the given inactivity timeout. A zero or
// negative timeout falls back to DefaultTimeout.
func NewTracker(timeout time.Duration) *Tracker {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Tracker{
		timeout: timeout,
		entries: make(map[string]*state),
		expired: make(chan Expiry, 128),
	}
}

// Expired is consumed by the hub loop; each received value must be passed
// to HandleExpiry.
func (t *Tracker) Expired() <-chan Expiry {
	return t.expired
}

// Signal records typing activity for an identity, arming or re-arming its
// expiry window from now. It reports whether this was an Idle -> Typing
// transition (only transitions are broadcast).
func (t *Tracker) Signal(address, username string) bool {
	now := time.Now()
	if s, ok := t.entries[address]; ok {
		// Renewal: cancel-and-reschedule, never stack timers.
		s.timer.Stop()
		s.generation++
		s.username = username
		s.deadline = now.Add(t.timeout)
		s.timer = t.arm(address, s.generation)
		return false
	}

	s := &state{username: username, generation: 1, deadline: now.Add(t.timeout)}
	s.timer = t.arm(address, s.generation)
	t.entries[address] = s
	return true
}

func (t *Tracker) arm(address string, generation uint64) *time.Timer {
	return time.AfterFunc(t.timeout, func() {
		select {
		case t.expired <- Expiry{Address: address, Generation: generation}:
		default:
			logger.WithField("address", address).Warn("typing expiry channel full, dropping event")
		}
	})
}

// Stop handles an explicit stop signal, reporting whether the identity was
// actually typing (a Typing -> Idle transition worth broadcasting).
func (t *Tracker) Stop(address string) (string, bool) {
	s, ok := t.entries[address]
	if !ok {
		return "", false
	}
	s.timer.Stop()
	delete(t.entries, address)
	return s.username, true
}

// HandleExpiry processes an expiry posted by a timer. A stale generation or
// an unexpired deadline means a renewal won the race; the expiry is
// discarded.
func (t *Tracker) HandleExpiry(e Expiry) (string, bool) {
	s, ok := t.entries[e.Address]
	if !ok || s.generation != e.Generation || time.Now().Before(s.deadline) {
		return "", false
	}
	delete(t.entries, e.Address)
	return s.username, true
}

// Clear silently drops an identity's entry when its last session
// disconnects; the accompanying user_left event makes a stop_typing
// broadcast redundant.
func (t *Tracker) Clear(address string) {
	if s, ok := t.entries[address]; ok {
		s.timer.Stop()
		delete(t.entries, address)
	}
}

// Typing reports whether an identity is currently in the Typing state.
func (t *Tracker) Typing(address string) bool {
	_, ok := t.entries[address]
	return ok
}

// Deadline returns the current expiry instant for a typing identity.
func (t *Tracker) Deadline(address string) (time.Time, bool) {
	s, ok := t.entries[address]
	if !ok {
		return time.Time{}, false
	}
	return s.deadline, true
}
