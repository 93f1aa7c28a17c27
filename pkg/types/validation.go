package types

import (
	"strings"
	"unicode/utf8"
)

// MaxUsernameLength matches the profile setup limit enforced at the boundary.
const MaxUsernameLength = 20

// ValidateText checks a message body against the configured maximum length,
// counted in characters rather than bytes.
func ValidateText(text string, maxLen int) error {
	if text == "" {
		return ErrEmptyMessage
	}
	if maxLen > 0 && utf8.RuneCountInString(text) > maxLen {
		return ErrMessageTooLong
	}
	return nil
}

// ValidateUsername checks a display name for profile setup.
func ValidateUsername(name string) error {
	name = strings.TrimSpace(name)
	if name == "" || utf8.RuneCountInString(name) > MaxUsernameLength {
		return ErrInvalidUsername
	}
	return nil
}

// Validate checks an identity before it is persisted.
func (i *Identity) Validate() error {
	if i.Address == "" {
		return ErrInvalidAddress
	}
	return ValidateUsername(i.Username)
}

// AsMember converts an identity to its presence snapshot entry.
func (i *Identity) AsMember() Member {
	return Member{Address: i.Address, Username: i.Username, Photo: i.Photo}
}
