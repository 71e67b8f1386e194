package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStoreAddRemoveCount(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	n, err := s.Count(ctx, "room-1")
	require.NoError(t, err)
	assert.Zero(t, n)

	require.NoError(t, s.Add(ctx, "room-1", "v1"))
	require.NoError(t, s.Add(ctx, "room-1", "v2"))
	// Re-adding the same viewer is idempotent.
	require.NoError(t, s.Add(ctx, "room-1", "v1"))

	n, err = s.Count(ctx, "room-1")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	require.NoError(t, s.Remove(ctx, "room-1", "v1"))
	n, err = s.Count(ctx, "room-1")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	// Removing an absent viewer is a no-op.
	require.NoError(t, s.Remove(ctx, "room-1", "ghost"))
}

func TestMemoryStoreRoomsAreIsolated(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	require.NoError(t, s.Add(ctx, "room-1", "v1"))
	require.NoError(t, s.Add(ctx, "room-2", "v1"))

	n, err := s.Count(ctx, "room-1")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	require.NoError(t, s.Remove(ctx, "room-1", "v1"))
	n, err = s.Count(ctx, "room-2")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}
