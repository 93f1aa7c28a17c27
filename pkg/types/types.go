// Package types defines the shared data model for the LAN chat service:
// identities keyed by network address, ephemeral sessions, presence members,
// accepted messages, and the JSON frame envelope used on the WebSocket wire.
package types

import (
	"encoding/json"
	"time"
)

// Wire event names, inbound (client -> server).
const (
	EventSendMessage = "send_message"
	EventTyping      = "typing"
	EventStopTyping  = "stop_typing"
	EventGetHistory  = "get_history"
)

// Wire event names, outbound (server -> client).
const (
	EventMessage         = "message"
	EventChatHistory     = "chat_history"
	EventMembersUpdate   = "members_update"
	EventUserJoined      = "user_joined"
	EventUserLeft        = "user_left"
	EventMessageError    = "message_error"
	EventProfileRequired = "profile_required"
)

// Reject reasons carried by message_error frames.
const (
	ReasonInvalidPayload    = "invalid_payload"
	ReasonIntegrityMismatch = "integrity_mismatch"
	ReasonInternalError     = "internal_error"
)

// Identity is a stable chat participant keyed by normalized network address.
// Identities synthesized for unknown addresses have Persisted=false and are
// never written back to the store.
type Identity struct {
	Address    string    `json:"ip_client"`
	Username   string    `json:"username"`
	Photo      string    `json:"photo,omitempty"`
	CreatedAt  time.Time `json:"created_at,omitempty"`
	LastActive time.Time `json:"last_active,omitempty"`
	Persisted  bool      `json:"-"`
}

// Member is one entry of a presence snapshot.
type Member struct {
	Address  string `json:"ip_client"`
	Username string `json:"username"`
	Photo    string `json:"photo,omitempty"`
}

// Session is one live transport connection belonging to an Identity.
// Sessions are ephemeral and never persisted.
type Session struct {
	ID          string    `json:"id"`
	TransportID string    `json:"-"`
	Address     string    `json:"ip_client"`
	ConnectedAt time.Time `json:"connected_at"`
}

// Message is immutable once accepted by the pipeline. Checksum holds the
// integrity code exactly as transmitted by the sender; the server never
// recomputes and overwrites it. Username and Photo are a snapshot of the
// author's display attributes at send time, so they survive profile edits.
type Message struct {
	ID        string    `json:"id"`
	Text      string    `json:"message"`
	Checksum  string    `json:"crc"`
	Address   string    `json:"ip_client"`
	Username  string    `json:"username"`
	Photo     string    `json:"photo,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	Valid     bool      `json:"crc_valid"`
}

// Frame is the JSON envelope for every WebSocket exchange.
type Frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// NewFrame marshals data into a Frame for the given event.
func NewFrame(event string, data interface{}) (Frame, error) {
	if data == nil {
		return Frame{Event: event}, nil
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return Frame{}, err
	}
	return Frame{Event: event, Data: raw}, nil
}

// SendMessagePayload is the body of a send_message frame.
type SendMessagePayload struct {
	Message string `json:"message"`
	CRC     string `json:"crc"`
}

// GetHistoryPayload is the body of a get_history frame. A zero or negative
// limit requests the server default.
type GetHistoryPayload struct {
	Limit int `json:"limit,omitempty"`
}

// ChatHistoryPayload is the body of a chat_history frame, oldest first.
type ChatHistoryPayload struct {
	Messages []*Message `json:"messages"`
}

// MembersUpdatePayload is the body of a members_update frame.
type MembersUpdatePayload struct {
	Members []Member `json:"members"`
}

// PresencePayload is the body of user_joined and user_left frames, scoped to
// the identity that changed rather than the whole snapshot.
type PresencePayload struct {
	Address   string    `json:"ip_client"`
	Username  string    `json:"username"`
	Photo     string    `json:"photo,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// TypingPayload is the body of typing and stop_typing frames.
type TypingPayload struct {
	Address  string `json:"ip_client"`
	Username string `json:"username"`
}

// MessageErrorPayload is the body of a message_error frame, delivered only
// to the session whose submission was rejected.
type MessageErrorPayload struct {
	Error  string `json:"error"`
	Reason string `json:"reason"`
}

// ProfileRequiredPayload is the body of a profile_required frame.
type ProfileRequiredPayload struct {
	Message string `json:"message"`
	Address string `json:"ip"`
}
