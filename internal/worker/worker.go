// Package worker defines the contract a registered job handler satisfies
// and the concurrency-safe registry Service keeps of them. It replaces the
// teacher's internal/worker package (a retry/backoff processing loop plus
// two image-resize handlers) with the narrower contract this spec calls
// for: a typed function per job type, invoked once per job by a Runner,
// with no built-in retry — a job either reaches a terminal state or it
// doesn't, and re-observation (not in-process retry) is what drives a
// stuck job forward.
package worker

import (
	"context"
	"time"

	"joblifecycle/internal/jobs"
	"joblifecycle/internal/store"
)

// UpdateLogger posts progress entries to a job's updates log. Info and
// Error always post; Debug and Trace post only when the service enables
// them, per §4.3.1.
type UpdateLogger interface {
	Info(ctx context.Context, status string, meta any) error
	Debug(ctx context.Context, status string, meta any) error
	Trace(ctx context.Context, status string, meta any) error
	Error(ctx context.Context, status string, meta any) error
}

// Context is passed to every worker invocation. It exposes exactly the
// capabilities §4.3 grants a worker: the job's identifier, a store handle
// bound to the service's own credentials, and an update logger.
type Context struct {
	JobID string
	Store store.Store
	Log   UpdateLogger
}

// Func is a registered worker. It receives the loaded job and a Context,
// and returns the JSON-serializable result to store on success, or an
// error (optionally a *Error carrying a failure kind) on failure.
type Func func(ctx context.Context, job *jobs.Job, wctx *Context) (any, error)

// Spec pairs a worker function with the timeout the Runner enforces
// around every invocation.
type Spec struct {
	Work    Func
	Timeout time.Duration
}

// Error lets a worker declare a failure kind that propagates to the job's
// typed-failure filing (§7's WorkerFailure: "the error's declared kind tag
// is propagated as failKind").
type Error struct {
	Kind string
	Err  error
}

func (e *Error) Error() string { return e.Err.Error() }
func (e *Error) Unwrap() error { return e.Err }

// Fail wraps err with a failure kind for typed-failure filing.
func Fail(kind string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Err: err}
}
