package store_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"joblifecycle/internal/store"
)

func TestMemoryPutGet(t *testing.T) {
	ctx := context.Background()
	m := store.NewMemory()

	err := m.Put(ctx, "bookmarks/services/svc/jobs/pending/job1", map[string]any{"_id": "abc"}, nil)
	require.NoError(t, err)

	res, err := m.Get(ctx, "bookmarks/services/svc/jobs/pending/job1")
	require.NoError(t, err)
	require.Equal(t, "abc", res.Data["_id"])
}

func TestMemoryGetNotFound(t *testing.T) {
	m := store.NewMemory()
	_, err := m.Get(context.Background(), "nope")
	require.ErrorIs(t, err, store.ErrNotFound)
}

func TestMemoryPutMergesShallowly(t *testing.T) {
	ctx := context.Background()
	m := store.NewMemory()

	require.NoError(t, m.Put(ctx, "doc", map[string]any{"a": 1, "status": "pending"}, nil))
	require.NoError(t, m.Put(ctx, "doc", map[string]any{"status": "success"}, nil))

	res, err := m.Get(ctx, "doc")
	require.NoError(t, err)
	require.Equal(t, 1, res.Data["a"])
	require.Equal(t, "success", res.Data["status"])
}

func TestMemoryPostAssignsLocation(t *testing.T) {
	ctx := context.Background()
	m := store.NewMemory()

	result, err := m.Post(ctx, store.ResourcesRoot(), map[string]any{"service": "svc"})
	require.NoError(t, err)
	require.NotEmpty(t, result.Location)

	res, err := m.Get(ctx, result.Location)
	require.NoError(t, err)
	require.Equal(t, "svc", res.Data["service"])
	require.NotEmpty(t, res.Data["_id"])
}

func TestMemoryDeleteIsIdempotent(t *testing.T) {
	ctx := context.Background()
	m := store.NewMemory()

	require.NoError(t, m.Delete(ctx, "never-existed"))

	require.NoError(t, m.Put(ctx, "doc", map[string]any{"a": 1}, nil))
	require.NoError(t, m.Delete(ctx, "doc"))
	require.NoError(t, m.Delete(ctx, "doc"))

	_, err := m.Get(ctx, "doc")
	require.ErrorIs(t, err, store.ErrNotFound)
}

func TestMemoryWatchReceivesMergeOnParent(t *testing.T) {
	ctx := context.Background()
	m := store.NewMemory()

	watch, err := m.Watch(ctx, "bookmarks/services/svc/jobs/pending", 0)
	require.NoError(t, err)
	defer watch.Close()

	require.NoError(t, m.Put(ctx, "bookmarks/services/svc/jobs/pending/job1", map[string]any{"_id": "abc"}, nil))

	change := <-watch.Changes
	require.Equal(t, store.ChangeMerge, change.Type)
	entry, ok := change.Body["job1"].(map[string]any)
	require.True(t, ok)
	require.Equal(t, "abc", entry["_id"])
}

func TestMemoryWatchFromRevSkipsPriorChanges(t *testing.T) {
	ctx := context.Background()
	m := store.NewMemory()

	require.NoError(t, m.Put(ctx, "root/first", map[string]any{"n": 1}, nil))
	snapshot, err := m.Get(ctx, "root/first")
	require.NoError(t, err)

	watch, err := m.Watch(ctx, "root", snapshot.Rev)
	require.NoError(t, err)
	defer watch.Close()

	require.NoError(t, m.Put(ctx, "root/second", map[string]any{"n": 2}, nil))

	change := <-watch.Changes
	_, ok := change.Body["second"]
	require.True(t, ok)
}

func TestMemoryEnsureIdempotent(t *testing.T) {
	ctx := context.Background()
	m := store.NewMemory()

	tree := store.ServiceTree(store.MediaTypeJob)
	require.NoError(t, m.Ensure(ctx, store.ServiceRoot("svc"), tree))

	ok, err := m.Head(ctx, store.PendingPath("svc"))
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, m.Put(ctx, store.PendingPath("svc"), map[string]any{"marker": true}, nil))
	require.NoError(t, m.Ensure(ctx, store.ServiceRoot("svc"), tree))

	res, err := m.Get(ctx, store.PendingPath("svc"))
	require.NoError(t, err)
	require.Equal(t, true, res.Data["marker"])
}
