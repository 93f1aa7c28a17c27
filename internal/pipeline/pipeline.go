// Package pipeline validates, persists, and prepares chat messages for
// broadcast. It owns the submit-time policy: a payload that fails length
// validation or integrity verification is rejected at the boundary and
// never stored.
package pipeline

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"lanchat/internal/checksum"
	"lanchat/internal/store"
	"lanchat/pkg/types"
)

// DefaultMaxMessageLength bounds the message body, in characters.
const DefaultMaxMessageLength = 1000

// DefaultHistoryLimit is the connect-time replay window.
const DefaultHistoryLimit = 50

// Pipeline turns validated submissions into log entries.
type Pipeline struct {
	log          store.MessageLog
	maxLength    int
	historyLimit int
}

// New creates a pipeline over the given message log. Non-positive limits
// fall back to the defaults.
func New(log store.MessageLog, maxLength, historyLimit int) *Pipeline {
	if maxLength <= 0 {
		maxLength = DefaultMaxMessageLength
	}
	if historyLimit <= 0 {
		historyLimit = DefaultHistoryLimit
	}
	return &Pipeline{log: log, maxLength: maxLength, historyLimit: historyLimit}
}

// Submit accepts a message from author, verifying the transmitted integrity
// code against the text. On success the message carries the author's
// display snapshot at send time, a fresh id, the server's wall clock, and
// the code exactly as transmitted, and is appended to the log. The caller
// broadcasts the returned message to every live session, sender included.
func (p *Pipeline) Submit(ctx context.Context, text, code string, author *types.Identity) (*types.Message, error) {
	if err := types.ValidateText(text, p.maxLength); err != nil {
		return nil, err
	}
	if !checksum.Verify(text, code) {
		return nil, ErrIntegrityMismatch
	}

	msg := &types.Message{
		ID:        uuid.NewString(),
		Text:      text,
		Checksum:  code,
		Address:   author.Address,
		Username:  author.Username,
		Photo:     author.Photo,
		Timestamp: time.Now().UTC(),
		Valid:     true,
	}
	if err := p.log.Append(ctx, msg); err != nil {
		return nil, errors.Wrap(err, "append message failed")
	}
	return msg, nil
}

// History returns the last limit accepted messages, oldest first, each
// carrying its originally stored integrity code. Replayed messages are not
// re-validated here; the requester re-verifies on receipt.
func (p *Pipeline) History(ctx context.Context, limit int) ([]*types.Message, error) {
	if limit <= 0 {
		limit = p.historyLimit
	}
	messages, err := p.log.Recent(ctx, limit)
	if err != nil {
		return nil, errors.Wrap(err, "read history failed")
	}
	if messages == nil {
		messages = []*types.Message{}
	}
	return messages, nil
}

// RejectReason maps a Submit error to the wire reject reason.
func RejectReason(err error) string {
	switch {
	case errors.Is(err, types.ErrEmptyMessage), errors.Is(err, types.ErrMessageTooLong):
		return types.ReasonInvalidPayload
	case errors.Is(err, ErrIntegrityMismatch):
		return types.ReasonIntegrityMismatch
	default:
		return types.ReasonInternalError
	}
}
