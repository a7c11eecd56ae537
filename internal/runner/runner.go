// Package runner drives exactly one job from dispatch to a terminal,
// filed state (Component 3). It replaces the teacher's retry/backoff
// Processor loop: here a job either reaches success or failure in one
// pass, and it is re-observation of a still-pending entry — not
// in-process retry — that drives a stuck job forward.
package runner

import (
	"context"
	"errors"
	"fmt"
	"time"

	"joblifecycle/internal/idgen"
	"joblifecycle/internal/jobs"
	"joblifecycle/internal/store"
	"joblifecycle/internal/telemetry"
	"joblifecycle/internal/worker"
)

// ReporterDispatch invokes the configured finish reporters matching a
// terminal status. Service implements this; Runner only holds the
// interface, so Runner never imports Service and no ownership cycle
// results from Service also owning the Queue that constructs Runners.
type ReporterDispatch interface {
	Dispatch(ctx context.Context, job *jobs.Job, path, jobID string, status jobs.Status)
}

// Config bundles the dependencies one Runner needs. All fields are owned
// by the Service that constructs the Runner.
type Config struct {
	Service     string
	Store       store.Store
	Registry    *worker.Registry
	Reporters   ReporterDispatch
	EnableDebug bool
	EnableTrace bool
}

// Runner drives one job, identified by its pending-list key and the
// store path of its canonical document.
type Runner struct {
	cfg    Config
	jobKey string
	path   string
}

// New builds a Runner for one pending entry. jobKey is the link's key
// under pending; path is the store path of the job document the link
// points at.
func New(cfg Config, jobKey, path string) *Runner {
	return &Runner{cfg: cfg, jobKey: jobKey, path: path}
}

type workResult struct {
	value any
	err   error
}

// finish's last argument distinguishes a real terminal transition from
// re-observation of a job that was already terminal when loaded (§7
// at-least-once retry after filing failed past the status write but
// before the pending entry was deleted). Only a fresh transition should
// move the terminal gauges or fire finish reporters; re-observation must
// still clear the stuck pending entry idempotently without repeating
// those once-per-job side effects.
const (
	freshTransition = true
	reobservation   = false
)

// Run loads the job, drives it to a terminal state, and files it. It
// returns an error when loading the job, posting the "started" update, or
// filing fails (§7 StoreTransient), or when ctx is canceled before the
// worker returns; in each case the pending entry is left in place so the
// next observation retries.
func (r *Runner) Run(ctx context.Context) error {
	start := time.Now()

	job, err := jobs.Load(ctx, r.cfg.Store, r.path)
	if err != nil {
		return fmt.Errorf("runner: load %s: %w", r.path, err)
	}

	telemetry.JobsTotal.WithLabelValues(r.cfg.Service, job.Type, string(telemetry.StateRunning)).Inc()

	// A terminal status on load means this job was already filed once;
	// this checks ahead of IsJob because an invalid job's filed document
	// never regains service/type/config and so never reads back valid.
	if job.Status == jobs.StatusSuccess || job.Status == jobs.StatusFailure {
		t := job.LastUpdateTime(job.Status)
		if t.IsZero() {
			t = time.Now()
		}
		return r.finish(ctx, job, job.Status, job.Result, t, "", start, reobservation)
	}

	if !job.IsJob {
		return r.finish(ctx, job, jobs.StatusFailure, map[string]any{}, time.Now(), "invalid", start, freshTransition)
	}

	spec, err := r.cfg.Registry.Get(job.Type)
	if err != nil {
		return r.finish(ctx, job, jobs.StatusFailure, serializeError(err), time.Now(), "no-worker", start, freshTransition)
	}

	logger := &updateLogger{store: r.cfg.Store, path: r.path, enableDebug: r.cfg.EnableDebug, enableTrace: r.cfg.EnableTrace}
	if err := logger.Info(ctx, "started", "Runner started"); err != nil {
		return fmt.Errorf("runner: post started update: %w", err)
	}

	wctx := &worker.Context{JobID: job.ID, Store: r.cfg.Store, Log: logger}

	workCtx, cancel := context.WithTimeout(ctx, spec.Timeout)
	defer cancel()

	resultCh := make(chan workResult, 1)
	go func() {
		value, err := spec.Work(workCtx, job, wctx)
		resultCh <- workResult{value, err}
	}()

	select {
	case <-workCtx.Done():
		if errors.Is(workCtx.Err(), context.DeadlineExceeded) {
			return r.finish(ctx, job, jobs.StatusFailure, serializeTimeout(spec.Timeout), time.Now(), "timeout", start, freshTransition)
		}
		// Parent context canceled (service stop); leave the pending
		// entry in place, the next observation retries.
		return workCtx.Err()
	case res := <-resultCh:
		if res.err != nil {
			var werr *worker.Error
			kind := ""
			if errors.As(res.err, &werr) {
				kind = werr.Kind
			}
			return r.finish(ctx, job, jobs.StatusFailure, serializeError(res.err), time.Now(), kind, start, freshTransition)
		}
		return r.finish(ctx, job, jobs.StatusSuccess, res.value, time.Now(), "", start, freshTransition)
	}
}

// finish implements the §4.3.2 critical path. transition is
// reobservation only for the already-terminal short-circuit, where
// start..t does not measure an actual execution and the job's terminal
// transition was already filed (and reported) by a prior, failed
// attempt at this same filing sequence.
func (r *Runner) finish(ctx context.Context, job *jobs.Job, status jobs.Status, result any, t time.Time, failKind string, start time.Time, transition bool) error {
	day := store.DayOf(t)

	updateKey := idgen.NewUpdateKey()
	doc := map[string]any{
		"status": string(status),
		"result": result,
		"updates": map[string]any{
			updateKey: map[string]any{
				"status": string(status),
				"time":   t.UTC().Format(time.RFC3339Nano),
				"meta":   "Runner finished",
			},
		},
	}
	if err := r.cfg.Store.Put(ctx, r.path, doc, nil); err != nil {
		return fmt.Errorf("runner: finish write status: %w", err)
	}

	dayIndexDir := store.DayIndexRoot(r.cfg.Service, string(status)) + "/" + day
	if err := r.cfg.Store.Ensure(ctx, dayIndexDir, store.Tree{"_type": store.MediaTypeJobsRoot}); err != nil {
		return fmt.Errorf("runner: ensure day index: %w", err)
	}
	link := map[string]any{"_id": job.ID, "path": r.path, "status": string(status)}
	if failKind != "" {
		link["failKind"] = failKind
	}
	if err := r.cfg.Store.Put(ctx, store.DayIndexEntry(r.cfg.Service, string(status), day, r.jobKey), link, nil); err != nil {
		return fmt.Errorf("runner: link day index: %w", err)
	}

	if status == jobs.StatusFailure && failKind != "" {
		typedDir := fmt.Sprintf("%s/typed-failure/%s/day-index/%s", store.JobsRoot(r.cfg.Service), failKind, day)
		if err := r.cfg.Store.Ensure(ctx, typedDir, store.Tree{"_type": store.MediaTypeJobsRoot}); err != nil {
			return fmt.Errorf("runner: ensure typed-failure day index: %w", err)
		}
		if err := r.cfg.Store.Put(ctx, store.TypedFailureEntry(r.cfg.Service, failKind, day, r.jobKey), link, nil); err != nil {
			return fmt.Errorf("runner: link typed-failure: %w", err)
		}
	}

	if err := r.cfg.Store.Delete(ctx, store.PendingEntry(r.cfg.Service, r.jobKey)); err != nil {
		return fmt.Errorf("runner: delete pending entry: %w", err)
	}

	telemetry.JobsTotal.WithLabelValues(r.cfg.Service, job.Type, string(telemetry.StateRunning)).Dec()

	// A reobservation re-runs the filing steps above to clear a pending
	// entry stranded by a prior failed attempt, but the job already made
	// its terminal transition then: the queued->terminal gauge move and
	// the finish reporters fire exactly once, on the transition that
	// actually happened.
	if transition == freshTransition {
		telemetry.JobsTotal.WithLabelValues(r.cfg.Service, job.Type, string(telemetry.StateQueued)).Dec()
		telemetry.JobsTotal.WithLabelValues(r.cfg.Service, job.Type, string(status)).Inc()
		telemetry.JobTimes.WithLabelValues(r.cfg.Service, job.Type, string(status)).Observe(t.Sub(start).Seconds())

		if r.cfg.Reporters != nil {
			r.cfg.Reporters.Dispatch(ctx, job, r.path, job.ID, status)
		}
	}

	return nil
}

func serializeError(err error) map[string]any {
	return map[string]any{"name": "Error", "message": err.Error()}
}

func serializeTimeout(d time.Duration) map[string]any {
	return map[string]any{"name": "TimeoutError", "message": fmt.Sprintf("worker exceeded timeout of %s", d)}
}
