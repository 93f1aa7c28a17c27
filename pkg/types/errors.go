package types

import "errors"

// Validation error types shared across the pipeline and the HTTP layer.
var (
	ErrEmptyMessage    = errors.New("message cannot be empty")
	ErrMessageTooLong  = errors.New("message is too long")
	ErrInvalidUsername = errors.New("username must be 1-20 characters")
	ErrInvalidAddress  = errors.New("address cannot be empty")
)
