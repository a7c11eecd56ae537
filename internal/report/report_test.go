package report_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"joblifecycle/internal/report"
	"joblifecycle/internal/store"
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

func fileJob(t *testing.T, st store.Store, service, status, day, jobKey string, doc map[string]any) {
	t.Helper()
	ctx := context.Background()
	posted, err := st.Post(ctx, store.ResourcesRoot(), doc)
	require.NoError(t, err)
	require.NoError(t, st.Ensure(ctx, store.DayIndexRoot(service, status)+"/"+day, store.Tree{"_type": store.MediaTypeJobsRoot}))
	link := map[string]any{"_id": jobKey, "path": posted.Location, "status": status}
	require.NoError(t, st.Put(ctx, store.DayIndexEntry(service, status, day, jobKey), link, nil))
}

func TestReportEmitsRowForSuccess(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemory()
	day := store.DayOf(time.Now())

	fileJob(t, st, "svc", "success", day, "job_1", map[string]any{
		"service": "svc", "type": "echo", "config": map[string]any{"customer": "acme"}, "status": "success",
	})

	r := report.New(st, report.Config{
		Service:   "svc",
		Name:      "daily",
		Frequency: "0 0 0 * * *",
		JobMappings: []report.ColumnMapping{
			{Column: "Customer", Pointer: "/config/customer"},
			{Column: "Outcome", Pointer: report.ErrorMappingsPointer},
		},
	}, nil)
	require.NoError(t, r.Start(ctx))
	defer r.Stop()

	rowPath := store.ReportRowEntry("svc", "daily", day, "job_1")
	waitFor(t, time.Second, func() bool {
		_, err := st.Get(ctx, rowPath)
		return err == nil
	})

	res, err := st.Get(ctx, rowPath)
	require.NoError(t, err)
	require.Equal(t, "acme", res.Data["Customer"])
	require.Equal(t, "Success", res.Data["Outcome"])
}

func TestReportEmitsRowForFailureWithUnknownKindFallback(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemory()
	day := store.DayOf(time.Now())

	fileJob(t, st, "svc", "failure", day, "job_2", map[string]any{
		"service": "svc", "type": "echo", "config": map[string]any{}, "status": "failure",
	})

	r := report.New(st, report.Config{
		Service:       "svc",
		Name:          "daily",
		Frequency:     "0 0 0 * * *",
		ErrorMappings: map[string]string{"bad-input": "Bad Input"},
		JobMappings: []report.ColumnMapping{
			{Column: "Outcome", Pointer: report.ErrorMappingsPointer},
		},
	}, nil)
	require.NoError(t, r.Start(ctx))
	defer r.Stop()

	rowPath := store.ReportRowEntry("svc", "daily", day, "job_2")
	waitFor(t, time.Second, func() bool {
		_, err := st.Get(ctx, rowPath)
		return err == nil
	})

	res, err := st.Get(ctx, rowPath)
	require.NoError(t, err)
	require.Equal(t, "Other Error", res.Data["Outcome"])
}

func TestReportFiltersByType(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemory()
	day := store.DayOf(time.Now())

	fileJob(t, st, "svc", "success", day, "job_3", map[string]any{
		"service": "svc", "type": "other", "config": map[string]any{}, "status": "success",
	})

	r := report.New(st, report.Config{
		Service:   "svc",
		Name:      "daily",
		Frequency: "0 0 0 * * *",
		Type:      []string{"echo"},
		JobMappings: []report.ColumnMapping{
			{Column: "Outcome", Pointer: report.ErrorMappingsPointer},
		},
	}, nil)
	require.NoError(t, r.Start(ctx))
	defer r.Stop()

	time.Sleep(30 * time.Millisecond)
	_, err := st.Get(ctx, store.ReportRowEntry("svc", "daily", day, "job_3"))
	require.ErrorIs(t, err, store.ErrNotFound)
}

func TestReportCronAggregationSendsEmail(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemory()
	day := store.DayOf(time.Now())

	fileJob(t, st, "svc", "success", day, "job_4", map[string]any{
		"service": "svc", "type": "echo", "config": map[string]any{"customer": "acme"}, "status": "success",
	})

	sent := false
	r := report.New(st, report.Config{
		Service:          "svc",
		Name:             "daily",
		Frequency:        "* * * * * *",
		EmailServiceName: "send-email",
		JobMappings: []report.ColumnMapping{
			{Column: "Customer", Pointer: "/config/customer"},
		},
		SendEmpty: true,
		Email: func() report.EmailTemplate {
			sent = true
			return report.EmailTemplate{From: "reports@example.com", ToEmail: "ops@example.com", Subject: "Daily report"}
		},
	}, nil)
	require.NoError(t, r.Start(ctx))
	defer r.Stop()

	waitFor(t, 3*time.Second, func() bool { return sent })

	res, err := st.Get(ctx, store.PendingPath("send-email"))
	require.NoError(t, err)
	require.NotEmpty(t, res.Data)
}
