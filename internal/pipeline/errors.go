package pipeline

import "github.com/pkg/errors"

// ErrIntegrityMismatch indicates the transmitted checksum does not match
// the message text. The submission is rejected, not stored with a flag.
var ErrIntegrityMismatch = errors.New("checksum does not match message")
