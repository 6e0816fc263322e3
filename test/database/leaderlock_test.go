package database

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Two processes over the same database must never both become leader: the
// in-memory state map is authoritative, so a second writer would corrupt it.
func TestLeaderLockIsExclusive(t *testing.T) {
	shared := NewSharedTestDB(t)
	first := shared.NewClient(t)
	second := shared.NewClient(t)
	ctx := context.Background()

	require.NoError(t, first.AcquireLeaderLock(ctx))

	err := second.AcquireLeaderLock(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "another instance holds the leader lock")

	// Closing the first instance releases the session lock; the second can
	// then take over. The release is tied to session teardown, so poll.
	require.NoError(t, first.Close())
	require.Eventually(t, func() bool {
		return second.AcquireLeaderLock(ctx) == nil
	}, 5*time.Second, 50*time.Millisecond)
}
