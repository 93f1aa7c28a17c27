// Package registry is the server-side authoritative map of live transport
// connections to identities. It is owned by the hub's event loop: methods
// are not safe for concurrent use and must only be called from that loop.
package registry

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"lanchat/internal/store"
	"lanchat/pkg/types"
)

var logger logrus.FieldLogger = logrus.StandardLogger()

type entry struct {
	session  *types.Session
	identity *types.Identity
}

// Registry tracks live sessions keyed by transport id. It reads identities
// from the store but never writes them; persistence belongs to the boundary
// layer.
type Registry struct {
	identities store.IdentityStore
	sessions   map[string]*entry
}

// New creates an empty registry backed by the given identity store.
func New(identities store.IdentityStore) *Registry {
	return &Registry{
		identities: identities,
		sessions:   make(map[string]*entry),
	}
}

// synthesize builds the transient identity used when no profile is
// persisted for an address. It is never written back to the store.
func synthesize(address string) *types.Identity {
	return &types.Identity{
		Address:   address,
		Username:  "User_" + address,
		Persisted: false,
	}
}

// lookup resolves the identity for a normalized address, degrading to a
// synthesized identity when the store has no row or is unavailable.
// Presence must never block on storage availability.
func (r *Registry) lookup(ctx context.Context, address string) *types.Identity {
	identity, err := r.identities.FindByAddress(ctx, address)
	if err != nil {
		if !errors.Is(err, store.ErrIdentityNotFound) {
			logger.WithError(err).WithField("address", address).
				Warn("identity store unavailable, synthesizing identity")
		}
		return synthesize(address)
	}
	return identity
}

// Connect registers a new session for a transport connection. The source
// address is normalized and resolved to an identity; unknown addresses get
// a synthesized one.
func (r *Registry) Connect(ctx context.Context, transportID, sourceAddress string) (*types.Session, *types.Identity) {
	address := NormalizeAddress(sourceAddress)
	identity := r.lookup(ctx, address)

	session := &types.Session{
		ID:          uuid.NewString(),
		TransportID: transportID,
		Address:     address,
		ConnectedAt: time.Now().UTC(),
	}
	r.sessions[transportID] = &entry{session: session, identity: identity}

	logger.WithFields(logrus.Fields{
		"transport": transportID,
		"address":   address,
		"username":  identity.Username,
	}).Info("session connected")
	return session, identity
}

// Disconnect removes the session for a transport connection. last reports
// whether this was the identity's only remaining session, i.e. whether the
// identity just went offline.
func (r *Registry) Disconnect(transportID string) (session *types.Session, identity *types.Identity, last bool, ok bool) {
	e, ok := r.sessions[transportID]
	if !ok {
		return nil, nil, false, false
	}
	delete(r.sessions, transportID)

	last = true
	for _, other := range r.sessions {
		if other.session.Address == e.session.Address {
			last = false
			break
		}
	}

	logger.WithFields(logrus.Fields{
		"transport": transportID,
		"address":   e.session.Address,
		"offline":   last,
	}).Info("session disconnected")
	return e.session, e.identity, last, true
}

// Get returns the session and identity for a transport id.
func (r *Registry) Get(transportID string) (*types.Session, *types.Identity, bool) {
	e, ok := r.sessions[transportID]
	if !ok {
		return nil, nil, false
	}
	return e.session, e.identity, true
}

// Resolve re-reads the identity for a live session from the store so that
// display attributes reflect profile edits. On store failure the cached
// identity is kept.
func (r *Registry) Resolve(ctx context.Context, transportID string) (*types.Identity, bool) {
	e, ok := r.sessions[transportID]
	if !ok {
		return nil, false
	}
	identity, err := r.identities.FindByAddress(ctx, e.session.Address)
	if err != nil {
		return e.identity, true
	}
	e.identity = identity
	return identity, true
}

// Snapshot returns the distinct set of online identities in deterministic
// (address) order. Multiple sessions behind one address collapse to one
// member.
func (r *Registry) Snapshot() []types.Member {
	seen := make(map[string]types.Member)
	for _, e := range r.sessions {
		if _, dup := seen[e.session.Address]; !dup {
			seen[e.session.Address] = e.identity.AsMember()
		}
	}

	members := make([]types.Member, 0, len(seen))
	for _, m := range seen {
		members = append(members, m)
	}
	sort.Slice(members, func(i, j int) bool { return members[i].Address < members[j].Address })
	return members
}

// OnlineCount returns the number of distinct online identities.
func (r *Registry) OnlineCount() int {
	seen := make(map[string]struct{})
	for _, e := range r.sessions {
		seen[e.session.Address] = struct{}{}
	}
	return len(seen)
}

// SessionsFor returns the number of live sessions behind one address.
func (r *Registry) SessionsFor(address string) int {
	count := 0
	for _, e := range r.sessions {
		if e.session.Address == address {
			count++
		}
	}
	return count
}

// SessionCount returns the number of live sessions.
func (r *Registry) SessionCount() int {
	return len(r.sessions)
}
