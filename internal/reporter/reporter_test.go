package reporter_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"joblifecycle/internal/jobs"
	"joblifecycle/internal/reporter"
)

func TestDispatcherFiresOnlyMatchingStatus(t *testing.T) {
	var gotBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	d := reporter.NewDispatcher("svc", nil)
	d.Add(reporter.Config{Kind: reporter.KindChatWebhook, TargetStatus: jobs.StatusFailure, Params: map[string]string{"url": srv.URL}})

	job := &jobs.Job{ID: "j1", Service: "svc", Type: "echo"}
	d.Dispatch(context.Background(), job, "resources/j1", "j1", jobs.StatusSuccess)
	require.Nil(t, gotBody)

	d.Dispatch(context.Background(), job, "resources/j1", "j1", jobs.StatusFailure)
	require.NotNil(t, gotBody)
}

func TestDispatcherLogsUnknownKindWithoutPanicking(t *testing.T) {
	d := reporter.NewDispatcher("svc", nil)
	d.Add(reporter.Config{Kind: "no-such-kind", TargetStatus: jobs.StatusSuccess})

	job := &jobs.Job{ID: "j1", Service: "svc", Type: "echo"}
	require.NotPanics(t, func() {
		d.Dispatch(context.Background(), job, "resources/j1", "j1", jobs.StatusSuccess)
	})
}

func TestChatWebhookHandlerRequiresURL(t *testing.T) {
	job := &jobs.Job{ID: "j1", Service: "svc", Type: "echo"}
	err := reporter.ChatWebhookHandler(context.Background(), job, "resources/j1", "j1", jobs.StatusSuccess, map[string]string{})
	require.Error(t, err)
}

func TestChatWebhookHandlerPropagatesNon2xx(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	job := &jobs.Job{ID: "j1", Service: "svc", Type: "echo"}
	err := reporter.ChatWebhookHandler(context.Background(), job, "resources/j1", "j1", jobs.StatusFailure, map[string]string{"url": srv.URL})
	require.Error(t, err)
}
