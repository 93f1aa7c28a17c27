// Package hub runs the chat core's event loop. One goroutine owns the
// session registry, the typing tracker, and the message pipeline; every
// mutation arrives over a command channel, so the shared maps need no
// locks and all sessions observe a single total order of broadcasts.
package hub

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"lanchat/internal/metrics"
	"lanchat/internal/pipeline"
	"lanchat/internal/registry"
	"lanchat/internal/typing"
	"lanchat/pkg/types"
)

var logger logrus.FieldLogger = logrus.StandardLogger()

// Sender is the outbound half of one live session. Implementations must
// not block the hub loop: a full send buffer is an error, not a stall.
type Sender interface {
	Send(frame types.Frame) error
	Close() error
}

// command is one queued mutation. Every kind travels on the same channel
// so that commands issued in sequence by one connection goroutine are
// consumed in that sequence; a frame dispatched right after Connect
// returns can never overtake the connect itself.
type command interface {
	isCommand()
}

type connectCmd struct {
	transportID   string
	sourceAddress string
	sender        Sender
}

type disconnectCmd struct {
	transportID string
}

type frameCmd struct {
	transportID string
	frame       types.Frame
}

func (connectCmd) isCommand()    {}
func (disconnectCmd) isCommand() {}
func (frameCmd) isCommand()      {}

// Hub coordinates presence, typing, and message flow for all sessions.
type Hub struct {
	registry *registry.Registry
	typing   *typing.Tracker
	pipeline *pipeline.Pipeline

	senders map[string]Sender

	commandCh  chan command
	shutdownCh chan struct{}

	sessions atomic.Int64

	running bool
	mu      sync.RWMutex
}

// New creates a hub over its three owned components.
func New(reg *registry.Registry, tracker *typing.Tracker, pipe *pipeline.Pipeline) *Hub {
	return &Hub{
		registry:  reg,
		typing:    tracker,
		pipeline:  pipe,
		senders:   make(map[string]Sender),
		commandCh: make(chan command, 1200),
	}
}

// Start launches the event loop. A stopped hub can be started again.
func (h *Hub) Start(ctx context.Context) error {
	h.mu.Lock()
	if h.running {
		h.mu.Unlock()
		return ErrHubAlreadyRunning
	}
	h.running = true
	h.shutdownCh = make(chan struct{})
	shutdownCh := h.shutdownCh
	h.mu.Unlock()

	go h.run(ctx, shutdownCh)
	return nil
}

// Stop shuts the event loop down.
func (h *Hub) Stop() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.running {
		return ErrHubNotRunning
	}
	h.running = false
	close(h.shutdownCh)
	return nil
}

func (h *Hub) queueGuard() error {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if !h.running {
		return ErrHubNotRunning
	}
	return nil
}

func (h *Hub) enqueue(cmd command) error {
	if err := h.queueGuard(); err != nil {
		return err
	}
	select {
	case h.commandCh <- cmd:
		return nil
	default:
		return ErrChannelFull
	}
}

// Connect queues a new session for registration.
func (h *Hub) Connect(transportID, sourceAddress string, sender Sender) error {
	return h.enqueue(connectCmd{transportID: transportID, sourceAddress: sourceAddress, sender: sender})
}

// Disconnect queues a session for removal.
func (h *Hub) Disconnect(transportID string) error {
	return h.enqueue(disconnectCmd{transportID: transportID})
}

// Dispatch queues an inbound frame from a session.
func (h *Hub) Dispatch(transportID string, frame types.Frame) error {
	return h.enqueue(frameCmd{transportID: transportID, frame: frame})
}

// SessionCount returns the number of live sessions. Safe from any
// goroutine.
func (h *Hub) SessionCount() int {
	return int(h.sessions.Load())
}

func (h *Hub) run(ctx context.Context, shutdownCh <-chan struct{}) {
	defer logger.Info("hub stopped")
	for {
		select {
		case cmd := <-h.commandCh:
			switch c := cmd.(type) {
			case connectCmd:
				h.handleConnect(ctx, c)
			case disconnectCmd:
				h.handleDisconnect(c.transportID)
			case frameCmd:
				h.handleFrame(ctx, c)
			}
		case e := <-h.typing.Expired():
			h.handleTypingExpiry(e)
		case <-shutdownCh:
			return
		case <-ctx.Done():
			return
		}
	}
}

func (h *Hub) handleConnect(ctx context.Context, cmd connectCmd) {
	session, identity := h.registry.Connect(ctx, cmd.transportID, cmd.sourceAddress)
	h.senders[cmd.transportID] = cmd.sender
	h.trackSessions()

	if !identity.Persisted {
		h.sendTo(cmd.transportID, types.EventProfileRequired, types.ProfileRequiredPayload{
			Message: "Profile not found. Please setup your profile first.",
			Address: session.Address,
		})
	}

	// First session for this identity means it just came online.
	if h.registry.SessionsFor(session.Address) == 1 {
		h.broadcast(cmd.transportID, types.EventUserJoined, types.PresencePayload{
			Address:   session.Address,
			Username:  identity.Username,
			Photo:     identity.Photo,
			Timestamp: time.Now().UTC(),
		})
	}

	h.broadcast("", types.EventMembersUpdate, types.MembersUpdatePayload{Members: h.registry.Snapshot()})

	// Connect-time replay of the default history window.
	history, err := h.pipeline.History(ctx, 0)
	if err != nil {
		logger.WithError(err).Warn("history replay failed")
		return
	}
	h.sendTo(cmd.transportID, types.EventChatHistory, types.ChatHistoryPayload{Messages: history})
}

func (h *Hub) handleDisconnect(transportID string) {
	sender, ok := h.senders[transportID]
	if !ok {
		return
	}
	delete(h.senders, transportID)
	_ = sender.Close()

	session, identity, last, ok := h.registry.Disconnect(transportID)
	h.trackSessions()
	if !ok {
		return
	}

	if last {
		// The user_left broadcast makes a trailing stop_typing redundant.
		h.typing.Clear(session.Address)
		h.broadcast(transportID, types.EventUserLeft, types.PresencePayload{
			Address:   session.Address,
			Username:  identity.Username,
			Photo:     identity.Photo,
			Timestamp: time.Now().UTC(),
		})
	}
	h.broadcast("", types.EventMembersUpdate, types.MembersUpdatePayload{Members: h.registry.Snapshot()})
}

func (h *Hub) handleFrame(ctx context.Context, cmd frameCmd) {
	session, identity, ok := h.registry.Get(cmd.transportID)
	if !ok {
		logger.WithField("transport", cmd.transportID).Debug("frame from unknown session dropped")
		return
	}

	switch cmd.frame.Event {
	case types.EventSendMessage:
		h.handleSubmit(ctx, cmd)
	case types.EventTyping:
		if h.typing.Signal(session.Address, identity.Username) {
			metrics.TypingTransitions.WithLabelValues("typing").Inc()
			h.broadcast(cmd.transportID, types.EventTyping, types.TypingPayload{
				Address:  session.Address,
				Username: identity.Username,
			})
		}
	case types.EventStopTyping:
		if username, stopped := h.typing.Stop(session.Address); stopped {
			metrics.TypingTransitions.WithLabelValues("idle").Inc()
			h.broadcast(cmd.transportID, types.EventStopTyping, types.TypingPayload{
				Address:  session.Address,
				Username: username,
			})
		}
	case types.EventGetHistory:
		var payload types.GetHistoryPayload
		if len(cmd.frame.Data) > 0 {
			if err := json.Unmarshal(cmd.frame.Data, &payload); err != nil {
				logger.WithError(err).Debug("malformed get_history payload")
			}
		}
		history, err := h.pipeline.History(ctx, payload.Limit)
		if err != nil {
			logger.WithError(err).Warn("history request failed")
			return
		}
		h.sendTo(cmd.transportID, types.EventChatHistory, types.ChatHistoryPayload{Messages: history})
	default:
		logger.WithField("event", cmd.frame.Event).Debug("unknown event dropped")
	}
}

func (h *Hub) handleSubmit(ctx context.Context, cmd frameCmd) {
	var payload types.SendMessagePayload
	if err := json.Unmarshal(cmd.frame.Data, &payload); err != nil {
		h.reject(cmd.transportID, "invalid message data", types.ReasonInvalidPayload)
		return
	}

	// Resolve the author's current display snapshot so profile edits show
	// up on new messages.
	identity, ok := h.registry.Resolve(ctx, cmd.transportID)
	if !ok {
		return
	}

	msg, err := h.pipeline.Submit(ctx, payload.Message, payload.CRC, identity)
	if err != nil {
		h.reject(cmd.transportID, err.Error(), pipeline.RejectReason(err))
		return
	}

	metrics.MessagesAccepted.Inc()
	// Echo-as-ack: the sender receives its own message via broadcast.
	h.broadcast("", types.EventMessage, msg)
}

func (h *Hub) handleTypingExpiry(e typing.Expiry) {
	username, expired := h.typing.HandleExpiry(e)
	if !expired {
		return
	}
	metrics.TypingTransitions.WithLabelValues("idle").Inc()
	h.broadcast("", types.EventStopTyping, types.TypingPayload{Address: e.Address, Username: username})
}

// reject reports a failed submission to the offending session only.
func (h *Hub) reject(transportID, message, reason string) {
	metrics.MessagesRejected.WithLabelValues(reason).Inc()
	h.sendTo(transportID, types.EventMessageError, types.MessageErrorPayload{Error: message, Reason: reason})
}

// sendTo delivers a frame to one session; a failed sender is disconnected.
func (h *Hub) sendTo(transportID, event string, data interface{}) {
	sender, ok := h.senders[transportID]
	if !ok {
		return
	}
	frame, err := types.NewFrame(event, data)
	if err != nil {
		logger.WithError(err).WithField("event", event).Error("encode frame failed")
		return
	}
	if err := sender.Send(frame); err != nil {
		logger.WithError(err).WithField("transport", transportID).Warn("send failed, dropping session")
		h.handleDisconnect(transportID)
	}
}

// broadcast delivers a frame to every session except the excluded
// transport. Sessions whose senders fail are dropped after the sweep so a
// slow client cannot stall the fan-out.
func (h *Hub) broadcast(except, event string, data interface{}) {
	frame, err := types.NewFrame(event, data)
	if err != nil {
		logger.WithError(err).WithField("event", event).Error("encode frame failed")
		return
	}

	var failed []string
	for transportID, sender := range h.senders {
		if transportID == except {
			continue
		}
		if err := sender.Send(frame); err != nil {
			failed = append(failed, transportID)
		}
	}
	for _, transportID := range failed {
		logger.WithField("transport", transportID).Warn("broadcast failed, dropping session")
		h.handleDisconnect(transportID)
	}
}

func (h *Hub) trackSessions() {
	count := int64(h.registry.SessionCount())
	h.sessions.Store(count)
	metrics.ConnectionsActive.Set(float64(count))
}
