package queue_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"joblifecycle/internal/jobs"
	"joblifecycle/internal/queue"
	"joblifecycle/internal/store"
	"joblifecycle/internal/worker"
)

func waitFor(t *testing.T, timeout time.Duration, check func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if check() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	require.Fail(t, "condition not met before timeout")
}

func TestQueueDrainsExistingPendingOnStartup(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemory()
	reg := worker.NewRegistry()
	reg.Set("echo", worker.Spec{
		Timeout: time.Second,
		Work: func(ctx context.Context, job *jobs.Job, wctx *worker.Context) (any, error) {
			return "ok", nil
		},
	})

	posted, err := st.Post(ctx, store.ResourcesRoot(), map[string]any{
		"service": "svc", "type": "echo", "config": map[string]any{},
	})
	require.NoError(t, err)
	require.NoError(t, st.Put(ctx, store.PendingEntry("svc", "job_1"), map[string]any{"_id": posted.Location}, nil))

	q := queue.New(queue.Config{Service: "svc", Store: st, Registry: reg, Concurrency: 2})
	require.NoError(t, q.Start(ctx, false))
	defer q.Stop()

	waitFor(t, time.Second, func() bool {
		res, err := st.Get(ctx, posted.Location)
		return err == nil && res.Data["status"] == "success"
	})
}

func TestQueueSkipExistingLeavesPendingUntouched(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemory()
	reg := worker.NewRegistry()
	reg.Set("echo", worker.Spec{Timeout: time.Second, Work: func(ctx context.Context, job *jobs.Job, wctx *worker.Context) (any, error) {
		return "ok", nil
	}})

	posted, err := st.Post(ctx, store.ResourcesRoot(), map[string]any{
		"service": "svc", "type": "echo", "config": map[string]any{},
	})
	require.NoError(t, err)
	require.NoError(t, st.Put(ctx, store.PendingEntry("svc", "job_1"), map[string]any{"_id": posted.Location}, nil))

	q := queue.New(queue.Config{Service: "svc", Store: st, Registry: reg, Concurrency: 2})
	require.NoError(t, q.Start(ctx, true))
	defer q.Stop()

	time.Sleep(20 * time.Millisecond)
	res, err := st.Get(ctx, posted.Location)
	require.NoError(t, err)
	require.Nil(t, res.Data["status"])
}

func TestQueueDispatchesNewlyLinkedPendingJob(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemory()
	reg := worker.NewRegistry()
	reg.Set("echo", worker.Spec{Timeout: time.Second, Work: func(ctx context.Context, job *jobs.Job, wctx *worker.Context) (any, error) {
		return "ok", nil
	}})

	q := queue.New(queue.Config{Service: "svc", Store: st, Registry: reg, Concurrency: 2})
	require.NoError(t, q.Start(ctx, false))
	defer q.Stop()

	posted, err := st.Post(ctx, store.ResourcesRoot(), map[string]any{
		"service": "svc", "type": "echo", "config": map[string]any{},
	})
	require.NoError(t, err)
	require.NoError(t, st.Put(ctx, store.PendingEntry("svc", "job_2"), map[string]any{"_id": posted.Location}, nil))

	waitFor(t, time.Second, func() bool {
		res, err := st.Get(ctx, posted.Location)
		return err == nil && res.Data["status"] == "success"
	})
}
