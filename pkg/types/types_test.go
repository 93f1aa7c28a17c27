package types

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateText(t *testing.T) {
	require.NoError(t, ValidateText("hello", 1000))
	require.ErrorIs(t, ValidateText("", 1000), ErrEmptyMessage)
	require.ErrorIs(t, ValidateText(strings.Repeat("a", 1001), 1000), ErrMessageTooLong)
	// Limit is measured in characters, not bytes.
	require.NoError(t, ValidateText(strings.Repeat("é", 1000), 1000))
}

func TestValidateUsername(t *testing.T) {
	require.NoError(t, ValidateUsername("alice"))
	require.ErrorIs(t, ValidateUsername(""), ErrInvalidUsername)
	require.ErrorIs(t, ValidateUsername("   "), ErrInvalidUsername)
	require.ErrorIs(t, ValidateUsername(strings.Repeat("x", 21)), ErrInvalidUsername)
}

func TestIdentityValidate(t *testing.T) {
	id := &Identity{Address: "192.168.1.10", Username: "alice"}
	require.NoError(t, id.Validate())

	require.ErrorIs(t, (&Identity{Username: "alice"}).Validate(), ErrInvalidAddress)
	require.ErrorIs(t, (&Identity{Address: "a", Username: ""}).Validate(), ErrInvalidUsername)
}

func TestNewFrameRoundTrip(t *testing.T) {
	frame, err := NewFrame(EventTyping, TypingPayload{Address: "10.0.0.2", Username: "bob"})
	require.NoError(t, err)
	assert.Equal(t, EventTyping, frame.Event)

	var payload TypingPayload
	require.NoError(t, json.Unmarshal(frame.Data, &payload))
	assert.Equal(t, "bob", payload.Username)

	empty, err := NewFrame(EventStopTyping, nil)
	require.NoError(t, err)
	assert.Nil(t, empty.Data)
}

func TestMessageJSONFieldNames(t *testing.T) {
	// Wire field names are fixed by the protocol; a rename is a breaking change.
	raw, err := json.Marshal(&Message{ID: "m1", Text: "hi", Checksum: "0", Address: "10.0.0.1", Username: "alice", Valid: true})
	require.NoError(t, err)
	for _, field := range []string{`"message"`, `"crc"`, `"ip_client"`, `"username"`, `"crc_valid"`} {
		assert.Contains(t, string(raw), field)
	}
}
