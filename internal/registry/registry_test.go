package registry

import (
	"context"
	"fmt"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lanchat/internal/store"
	"lanchat/pkg/types"
)

// mockIdentityStore implements store.IdentityStore for registry tests.
type mockIdentityStore struct {
	identities map[string]*types.Identity
	failFind   bool
}

func newMockIdentityStore() *mockIdentityStore {
	return &mockIdentityStore{identities: make(map[string]*types.Identity)}
}

func (m *mockIdentityStore) FindByAddress(_ context.Context, address string) (*types.Identity, error) {
	if m.failFind {
		return nil, errors.New("store unavailable")
	}
	identity, ok := m.identities[address]
	if !ok {
		return nil, store.ErrIdentityNotFound
	}
	return identity, nil
}

func (m *mockIdentityStore) Upsert(_ context.Context, identity *types.Identity) (*types.Identity, error) {
	identity.Persisted = true
	m.identities[identity.Address] = identity
	return identity, nil
}

func (m *mockIdentityStore) TouchLastActive(context.Context, string) error { return nil }

func (m *mockIdentityStore) All(context.Context) ([]*types.Identity, error) { return nil, nil }

func TestNormalizeAddress(t *testing.T) {
	cases := map[string]string{
		"192.168.1.10":         "192.168.1.10",
		"192.168.1.10:54321":   "192.168.1.10",
		"::ffff:192.168.1.10":  "192.168.1.10",
		"[::ffff:10.0.0.7]:80": "10.0.0.7",
		"::1":                  "127.0.0.1",
		"[::1]:9999":           "127.0.0.1",
		"localhost":            "127.0.0.1",
		"":                     "127.0.0.1",
		"10.1.2.3, 172.16.0.1": "10.1.2.3",
	}
	for input, want := range cases {
		assert.Equalf(t, want, NormalizeAddress(input), "NormalizeAddress(%q)", input)
	}
}

func TestConnectResolvesPersistedIdentity(t *testing.T) {
	identities := newMockIdentityStore()
	identities.identities["192.168.1.10"] = &types.Identity{
		Address: "192.168.1.10", Username: "alice", Persisted: true,
	}
	r := New(identities)

	session, identity := r.Connect(context.Background(), "t1", "::ffff:192.168.1.10")
	require.NotNil(t, session)
	assert.Equal(t, "192.168.1.10", session.Address)
	assert.NotEmpty(t, session.ID)
	assert.Equal(t, "alice", identity.Username)
	assert.True(t, identity.Persisted)
}

func TestConnectSynthesizesUnknownIdentity(t *testing.T) {
	r := New(newMockIdentityStore())

	_, identity := r.Connect(context.Background(), "t1", "10.0.0.5:1234")
	assert.Equal(t, "User_10.0.0.5", identity.Username)
	assert.False(t, identity.Persisted)
}

func TestConnectDegradesWhenStoreUnavailable(t *testing.T) {
	identities := newMockIdentityStore()
	identities.failFind = true
	r := New(identities)

	// Presence never blocks on storage availability.
	session, identity := r.Connect(context.Background(), "t1", "10.0.0.5")
	require.NotNil(t, session)
	assert.Equal(t, "User_10.0.0.5", identity.Username)
	assert.False(t, identity.Persisted)
	assert.Equal(t, 1, r.SessionCount())
}

func TestSnapshotCountsAfterConnectsAndDisconnects(t *testing.T) {
	r := New(newMockIdentityStore())
	ctx := context.Background()

	const n, m = 7, 3
	for i := 0; i < n; i++ {
		r.Connect(ctx, fmt.Sprintf("t%d", i), fmt.Sprintf("10.0.0.%d", i))
	}
	require.Len(t, r.Snapshot(), n)

	for i := 0; i < m; i++ {
		_, _, last, ok := r.Disconnect(fmt.Sprintf("t%d", i))
		require.True(t, ok)
		assert.True(t, last)
	}

	snapshot := r.Snapshot()
	require.Len(t, snapshot, n-m)
	// Deterministic order, no duplicates.
	seen := make(map[string]bool)
	for _, member := range snapshot {
		assert.False(t, seen[member.Address])
		seen[member.Address] = true
	}
}

func TestMultipleSessionsShareOneIdentity(t *testing.T) {
	r := New(newMockIdentityStore())
	ctx := context.Background()

	r.Connect(ctx, "tab1", "192.168.1.10:1111")
	r.Connect(ctx, "tab2", "192.168.1.10:2222")
	assert.Equal(t, 2, r.SessionCount())
	assert.Equal(t, 2, r.SessionsFor("192.168.1.10"))
	assert.Equal(t, 1, r.OnlineCount())
	assert.Len(t, r.Snapshot(), 1)

	// Closing one tab does not take the identity offline.
	_, _, last, ok := r.Disconnect("tab1")
	require.True(t, ok)
	assert.False(t, last)
	assert.Len(t, r.Snapshot(), 1)

	// Closing the final tab does.
	_, _, last, ok = r.Disconnect("tab2")
	require.True(t, ok)
	assert.True(t, last)
	assert.Empty(t, r.Snapshot())
}

func TestDisconnectUnknownTransport(t *testing.T) {
	r := New(newMockIdentityStore())
	_, _, _, ok := r.Disconnect("missing")
	assert.False(t, ok)
}

func TestResolvePicksUpProfileEdits(t *testing.T) {
	identities := newMockIdentityStore()
	r := New(identities)
	ctx := context.Background()

	r.Connect(ctx, "t1", "10.0.0.5")

	// Profile created after connect; the next resolve sees it.
	_, err := identities.Upsert(ctx, &types.Identity{Address: "10.0.0.5", Username: "eve"})
	require.NoError(t, err)

	identity, ok := r.Resolve(ctx, "t1")
	require.True(t, ok)
	assert.Equal(t, "eve", identity.Username)

	// Store failure keeps the cached identity.
	identities.failFind = true
	identity, ok = r.Resolve(ctx, "t1")
	require.True(t, ok)
	assert.Equal(t, "eve", identity.Username)
}
