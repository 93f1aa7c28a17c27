package store

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lanchat/pkg/types"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	m, err := NewManager(filepath.Join(t.TempDir(), "lanchat_test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = m.Close() })
	return m
}

func TestIdentityLifecycle(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	_, err := m.FindByAddress(ctx, "192.168.1.10")
	require.ErrorIs(t, err, ErrIdentityNotFound)

	stored, err := m.Upsert(ctx, &types.Identity{Address: "192.168.1.10", Username: "alice", Photo: "/uploads/a.png"})
	require.NoError(t, err)
	assert.Equal(t, "alice", stored.Username)
	assert.True(t, stored.Persisted)
	createdAt := stored.CreatedAt

	// Update keeps the creation time, last-write-wins on the rest.
	updated, err := m.Upsert(ctx, &types.Identity{Address: "192.168.1.10", Username: "alice2"})
	require.NoError(t, err)
	assert.Equal(t, "alice2", updated.Username)
	assert.Equal(t, createdAt.Unix(), updated.CreatedAt.Unix())

	found, err := m.FindByAddress(ctx, "192.168.1.10")
	require.NoError(t, err)
	assert.Equal(t, "alice2", found.Username)
}

func TestUpsertRejectsInvalidIdentity(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	_, err := m.Upsert(ctx, &types.Identity{Address: "", Username: "alice"})
	require.ErrorIs(t, err, types.ErrInvalidAddress)

	_, err = m.Upsert(ctx, &types.Identity{Address: "10.0.0.1", Username: ""})
	require.ErrorIs(t, err, types.ErrInvalidUsername)
}

func TestTouchLastActive(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	stored, err := m.Upsert(ctx, &types.Identity{Address: "10.0.0.1", Username: "bob"})
	require.NoError(t, err)

	time.Sleep(10 * time.Millisecond)
	require.NoError(t, m.TouchLastActive(ctx, "10.0.0.1"))

	found, err := m.FindByAddress(ctx, "10.0.0.1")
	require.NoError(t, err)
	assert.False(t, found.LastActive.Before(stored.LastActive))

	// Unknown address is a no-op, not an error.
	require.NoError(t, m.TouchLastActive(ctx, "10.9.9.9"))
}

func TestAllOrdersByActivity(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	_, err := m.Upsert(ctx, &types.Identity{Address: "10.0.0.1", Username: "first"})
	require.NoError(t, err)
	time.Sleep(10 * time.Millisecond)
	_, err = m.Upsert(ctx, &types.Identity{Address: "10.0.0.2", Username: "second"})
	require.NoError(t, err)

	all, err := m.All(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "second", all[0].Username)
}

func TestMessageLogAppendAndRecent(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		require.NoError(t, m.Append(ctx, &types.Message{
			ID:        fmt.Sprintf("msg-%d", i),
			Text:      fmt.Sprintf("message %d", i),
			Checksum:  "00000000000000000000000000000000",
			Address:   "10.0.0.1",
			Username:  "alice",
			Timestamp: time.Now().UTC(),
			Valid:     true,
		}))
	}

	recent, err := m.Recent(ctx, 3)
	require.NoError(t, err)
	require.Len(t, recent, 3)
	// Last 3, oldest first.
	assert.Equal(t, "msg-2", recent[0].ID)
	assert.Equal(t, "msg-4", recent[2].ID)

	count, err := m.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 5, count)
}

func TestMessageLogPreservesStoredChecksum(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	// A code that does not match the text must come back verbatim; replay
	// re-validation is the client's job.
	require.NoError(t, m.Append(ctx, &types.Message{
		ID:        "msg-bad",
		Text:      "tampered after send",
		Checksum:  "10101010101010101010101010101010",
		Address:   "10.0.0.1",
		Username:  "mallory",
		Timestamp: time.Now().UTC(),
		Valid:     false,
	}))

	recent, err := m.Recent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, recent, 1)
	assert.Equal(t, "10101010101010101010101010101010", recent[0].Checksum)
	assert.False(t, recent[0].Valid)
}

func TestClear(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	require.NoError(t, m.Append(ctx, &types.Message{
		ID: "m1", Text: "x", Checksum: "0", Address: "a", Username: "u",
		Timestamp: time.Now().UTC(), Valid: true,
	}))
	require.NoError(t, m.Clear(ctx))

	count, err := m.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, count)
}
