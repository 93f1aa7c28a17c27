package store

import "github.com/pkg/errors"

// ErrIdentityNotFound indicates no identity is persisted for an address.
var ErrIdentityNotFound = errors.New("identity not found")

// IsNotFound reports whether err is a missing-identity lookup failure.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrIdentityNotFound)
}
