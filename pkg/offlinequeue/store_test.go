package offlinequeue

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/betterqa-sync/agent-core/pkg/observability/noop"
	"github.com/betterqa-sync/agent-core/pkg/synctypes"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "queue.db")
	s, err := Open(context.Background(), path, noop.NewProvider())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestStore_EnqueueDequeueRemove(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	events := []synctypes.Event{
		{ID: 1, BucketID: "aw-watcher-window_host", Timestamp: time.Now(), Duration: 5},
		{ID: 2, BucketID: "aw-watcher-window_host", Timestamp: time.Now(), Duration: 10},
	}

	n, err := s.Enqueue(ctx, events)
	require.NoError(t, err)
	require.Equal(t, 2, n)

	size, err := s.Size(ctx)
	require.NoError(t, err)
	require.Equal(t, 2, size)

	queued, err := s.Dequeue(ctx, 10)
	require.NoError(t, err)
	require.Len(t, queued, 2)

	ids := []int64{queued[0].RowID}
	require.NoError(t, s.Remove(ctx, ids))

	size, err = s.Size(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, size)
}

func TestStore_CapacityOverflow(t *testing.T) {
	s := openTestStore(t)
	s.maxSize = 3
	s.overflow = 1
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := s.Enqueue(ctx, []synctypes.Event{{ID: int64(i), BucketID: "b", Timestamp: time.Now()}})
		require.NoError(t, err)
	}

	_, err := s.Enqueue(ctx, []synctypes.Event{{ID: 99, BucketID: "b", Timestamp: time.Now()}})
	require.NoError(t, err)

	size, err := s.Size(ctx)
	require.NoError(t, err)
	require.LessOrEqual(t, size, 3)
}

func TestStore_Checkpoints(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	_, ok, err := s.GetCheckpoint(ctx, "bucket-1")
	require.NoError(t, err)
	require.False(t, ok)

	now := time.Now().UTC().Truncate(time.Second)
	require.NoError(t, s.SetCheckpoint(ctx, "bucket-1", now, 42))

	cp, ok, err := s.GetCheckpoint(ctx, "bucket-1")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, int64(42), cp.LastEventID)

	all, err := s.GetAllCheckpoints(ctx)
	require.NoError(t, err)
	require.Contains(t, all, "bucket-1")
}

func TestStore_Categories(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.SyncCategories(ctx, map[string]string{"Visual Studio Code": "code"}))

	category, ok, err := s.GetCategory(ctx, "Visual Studio Code")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "code", category)

	_, ok, err = s.GetCategory(ctx, "Unknown App")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestStore_RetryAndExpiry(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	_, err := s.Enqueue(ctx, []synctypes.Event{{ID: 1, BucketID: "b", Timestamp: time.Now()}})
	require.NoError(t, err)

	queued, err := s.Dequeue(ctx, 1)
	require.NoError(t, err)
	require.Len(t, queued, 1)

	ids := []int64{queued[0].RowID}
	require.NoError(t, s.IncrementRetry(ctx, ids))
	require.NoError(t, s.IncrementRetry(ctx, ids))

	removed, err := s.RemoveFailed(ctx, 2)
	require.NoError(t, err)
	require.Equal(t, int64(1), removed)
}
