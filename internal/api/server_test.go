package api_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"joblifecycle/internal/api"
	"joblifecycle/internal/ratelimit"
	"joblifecycle/internal/store"
)

func TestHandleHealthzOK(t *testing.T) {
	st := store.NewMemory()
	require.NoError(t, st.Put(context.Background(), store.ResourcesRoot()+"/seed", map[string]any{"service": "svc"}, nil))

	srv := api.New(st, nil)
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
}

func TestHandleGetJobFound(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemory()
	posted, err := st.Post(ctx, store.ResourcesRoot(), map[string]any{
		"service": "svc", "type": "echo", "config": map[string]any{"x": 1}, "status": "success", "result": "done",
	})
	require.NoError(t, err)

	srv := api.New(st, nil)
	id := posted.Location[len(store.ResourcesRoot())+1:]

	req := httptest.NewRequest(http.MethodGet, "/jobs/"+id, nil)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]any
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	require.Equal(t, "svc", body["service"])
	require.Equal(t, "success", body["status"])
}

func TestHandleGetJobNotFound(t *testing.T) {
	st := store.NewMemory()
	srv := api.New(st, nil)

	req := httptest.NewRequest(http.MethodGet, "/jobs/missing", nil)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandleGetJobRateLimitsPerJobNotCaller(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemory()

	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()
	limiter := ratelimit.NewTokenBucket(redis.NewClient(&redis.Options{Addr: mr.Addr()}), 1, 1, time.Minute)

	posted1, err := st.Post(ctx, store.ResourcesRoot(), map[string]any{
		"service": "svc", "type": "echo", "config": map[string]any{}, "status": "success",
	})
	require.NoError(t, err)
	posted2, err := st.Post(ctx, store.ResourcesRoot(), map[string]any{
		"service": "svc", "type": "echo", "config": map[string]any{}, "status": "success",
	})
	require.NoError(t, err)
	id1 := posted1.Location[len(store.ResourcesRoot())+1:]
	id2 := posted2.Location[len(store.ResourcesRoot())+1:]

	srv := api.New(st, limiter)

	get := func(id string) int {
		req := httptest.NewRequest(http.MethodGet, "/jobs/"+id, nil)
		rec := httptest.NewRecorder()
		srv.Router().ServeHTTP(rec, req)
		return rec.Code
	}

	require.Equal(t, http.StatusOK, get(id1))
	require.Equal(t, http.StatusTooManyRequests, get(id1))

	// A different job's bucket is untouched by id1 exhausting its own.
	require.Equal(t, http.StatusOK, get(id2))
}
