package jobs_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"joblifecycle/internal/jobs"
	"joblifecycle/internal/store"
)

func TestLoadValidJob(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemory()

	require.NoError(t, st.Put(ctx, "resources/j1", map[string]any{
		"_id":     "j1",
		"service": "svc",
		"type":    "echo",
		"config":  map[string]any{"msg": "hi"},
	}, nil))

	job, err := jobs.Load(ctx, st, "resources/j1")
	require.NoError(t, err)
	require.True(t, job.IsJob)
	require.Equal(t, "svc", job.Service)
	require.Equal(t, "echo", job.Type)
	require.Equal(t, "hi", job.Config["msg"])
}

func TestLoadMissingFieldsRetriesThenInvalid(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemory()

	require.NoError(t, st.Put(ctx, "resources/j1", map[string]any{"service": "svc"}, nil))

	job, err := jobs.Load(ctx, st, "resources/j1")
	require.NoError(t, err)
	require.False(t, job.IsJob)
}

func TestLoadNotFoundPropagatesError(t *testing.T) {
	st := store.NewMemory()
	_, err := jobs.Load(context.Background(), st, "resources/missing")
	require.Error(t, err)
}

func TestJobAsMap(t *testing.T) {
	job := &jobs.Job{
		ID:      "j1",
		Service: "svc",
		Type:    "echo",
		Config:  map[string]any{"msg": "hi"},
		Status:  jobs.StatusSuccess,
		Result:  map[string]any{"ok": true},
	}
	doc := job.AsMap()
	require.Equal(t, "j1", doc["_id"])
	require.Equal(t, "success", doc["status"])
	result, ok := doc["result"].(map[string]any)
	require.True(t, ok)
	require.Equal(t, true, result["ok"])
}

func TestJobLastUpdateTime(t *testing.T) {
	older := time.Now().Add(-time.Hour)
	newer := time.Now()
	job := &jobs.Job{
		Updates: map[string]jobs.Update{
			"upd_1": {Status: "success", Time: older},
			"upd_2": {Status: "success", Time: newer},
			"upd_3": {Status: "started", Time: newer.Add(time.Minute)},
		},
	}
	require.True(t, job.LastUpdateTime(jobs.StatusSuccess).Equal(newer))
	require.True(t, job.LastUpdateTime(jobs.StatusFailure).IsZero())
}
