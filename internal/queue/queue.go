// Package queue implements Component 4: the per-service change-stream
// consumer that discovers pending jobs and dispatches a Runner for each
// one into a bounded-concurrency executor. It replaces the teacher's
// internal/queue (a Redis sorted-set ready/scheduled/in-flight queue)
// with a subscription against the store's pending list, generalizing the
// teacher's "consumer never blocks on submission" discipline from a
// BRPOPLPUSH loop to a change-stream Watch.
package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"joblifecycle/internal/jobs"
	"joblifecycle/internal/runner"
	"joblifecycle/internal/store"
	"joblifecycle/internal/telemetry"
	"joblifecycle/internal/worker"
)

// Config bundles the dependencies one Queue needs.
type Config struct {
	Service     string
	Store       store.Store
	Registry    *worker.Registry
	Reporters   runner.ReporterDispatch
	Concurrency int
	EnableDebug bool
	EnableTrace bool
	Logger      *slog.Logger
}

// Queue subscribes to one service's pending list and drives a Runner per
// entry, bounded by Concurrency concurrent Runners.
type Queue struct {
	cfg Config
	log *slog.Logger

	watch *store.Watch
	sem   chan struct{}
	wg    sync.WaitGroup

	stopOnce sync.Once
	stopCh   chan struct{}
}

// New builds a Queue. Call Start to begin consuming.
func New(cfg Config) *Queue {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Queue{
		cfg:    cfg,
		log:    log.With("service", cfg.Service),
		sem:    make(chan struct{}, cfg.Concurrency),
		stopCh: make(chan struct{}),
	}
}

// Start performs the §4.4 startup sequence: ensure the service's
// container paths, snapshot the pending list, subscribe for changes
// after that snapshot's revision, and — unless skipExisting — dispatch
// the snapshot's entries through the same path as live changes.
func (q *Queue) Start(ctx context.Context, skipExisting bool) error {
	if err := q.cfg.Store.Ensure(ctx, store.ServiceRoot(q.cfg.Service), store.ServiceTree(store.MediaTypeJob)); err != nil {
		return fmt.Errorf("queue: ensure service tree: %w", err)
	}

	pendingPath := store.PendingPath(q.cfg.Service)
	res, err := q.cfg.Store.Get(ctx, pendingPath)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("queue: get pending: %w", err)
	}

	watch, err := q.cfg.Store.Watch(ctx, pendingPath, res.Rev)
	if err != nil {
		return fmt.Errorf("queue: watch pending: %w", err)
	}
	q.watch = watch

	q.wg.Add(1)
	go q.consume(ctx, watch)

	if !skipExisting {
		for key, v := range res.Data {
			if isMetaKey(key) {
				continue
			}
			entry, ok := v.(map[string]any)
			if !ok {
				continue
			}
			q.dispatchEntry(ctx, key, entry)
		}
	}
	return nil
}

// Stop unsubscribes from the pending list and waits for in-flight
// Runners to drain. No new Runners are started once Stop is called.
func (q *Queue) Stop() {
	q.stopOnce.Do(func() { close(q.stopCh) })
	if q.watch != nil {
		_ = q.watch.Close()
	}
	q.wg.Wait()
}

func (q *Queue) consume(ctx context.Context, watch *store.Watch) {
	defer q.wg.Done()
	for {
		select {
		case <-q.stopCh:
			return
		case change, ok := <-watch.Changes:
			if !ok {
				// The subscription collapsed unexpectedly; this is a
				// restart condition, not normal termination.
				q.log.Error("pending watch channel closed unexpectedly")
				return
			}
			if change.Type != store.ChangeMerge {
				q.log.Debug("ignoring non-merge change on pending", "type", change.Type, "path", change.Path)
				continue
			}
			for key, v := range change.Body {
				if isMetaKey(key) {
					continue
				}
				entry, ok := v.(map[string]any)
				if !ok {
					q.log.Warn("ignoring malformed pending entry", "job_key", key)
					continue
				}
				q.dispatchEntry(ctx, key, entry)
			}
		}
	}
}

// dispatchEntry submits one pending entry to the bounded executor. It
// never blocks the caller on the semaphore itself: the semaphore wait
// happens inside the spawned goroutine, so the consumer loop can
// immediately go back to reading the change stream.
func (q *Queue) dispatchEntry(ctx context.Context, jobKey string, entry map[string]any) {
	linkPath, ok := entry["_id"].(string)
	if !ok || linkPath == "" {
		q.log.Warn("pending entry missing link, skipping", "job_key", jobKey)
		return
	}

	select {
	case <-q.stopCh:
		return
	default:
	}

	q.wg.Add(1)
	go func() {
		defer q.wg.Done()

		// The job is "queued" the moment it's handed to this goroutine,
		// before it ever waits on the concurrency semaphore; Runner.Run
		// pairs this with a StateRunning.Inc() once it actually starts,
		// and a StateQueued.Dec() when it reaches a terminal transition
		// (§4.3.2 step 6). jobType comes from a peek load here since the
		// pending link itself carries no type; Runner.Run reloads the
		// full job immediately after.
		jobType := ""
		if job, err := jobs.Load(ctx, q.cfg.Store, linkPath); err == nil {
			jobType = job.Type
		}
		telemetry.JobsTotal.WithLabelValues(q.cfg.Service, jobType, string(telemetry.StateQueued)).Inc()

		q.sem <- struct{}{}
		defer func() { <-q.sem }()

		// Stop may have been called while this goroutine waited for a
		// slot; the entry then stays pending for the next observation.
		select {
		case <-q.stopCh:
			return
		default:
		}

		r := runner.New(runner.Config{
			Service:     q.cfg.Service,
			Store:       q.cfg.Store,
			Registry:    q.cfg.Registry,
			Reporters:   q.cfg.Reporters,
			EnableDebug: q.cfg.EnableDebug,
			EnableTrace: q.cfg.EnableTrace,
		}, jobKey, linkPath)

		if err := r.Run(ctx); err != nil {
			q.log.Error("runner failed, pending entry left for retry", "job_key", jobKey, "error", err)
		}
	}()
}

func isMetaKey(key string) bool {
	switch key {
	case "_id", "_rev", "_meta", "_type":
		return true
	default:
		return false
	}
}
