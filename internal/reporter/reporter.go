// Package reporter implements Component 7: finish reporter dispatch. A
// finish reporter is a pluggable post-terminal notifier keyed on the
// job's terminal status; kinds are open, registered against a Dispatcher
// by name. The teacher has no post-completion notification of its own;
// kinds are dispatched through a table keyed by kind name rather than a
// fixed set of callbacks.
package reporter

import (
	"context"
	"fmt"
	"log/slog"

	"joblifecycle/internal/jobs"
	"joblifecycle/internal/telemetry"
)

// Handler delivers a finished job to one reporter kind's transport.
// Missing required params is the handler's responsibility to detect and
// report as an error; Dispatch logs and skips on any error.
type Handler func(ctx context.Context, job *jobs.Job, path, jobID string, status jobs.Status, params map[string]string) error

// Config is one configured finish reporter: a kind (dispatch key), the
// terminal status it fires on, and kind-specific parameters.
type Config struct {
	Kind         string
	TargetStatus jobs.Status
	Params       map[string]string
}

// Dispatcher holds the ordered list of configured reporters for one
// Service and the registry of handlers by kind. It implements
// runner.ReporterDispatch.
type Dispatcher struct {
	service   string
	handlers  map[string]Handler
	reporters []Config
	log       *slog.Logger
}

// NewDispatcher builds a Dispatcher with the built-in kinds registered.
func NewDispatcher(service string, log *slog.Logger) *Dispatcher {
	if log == nil {
		log = slog.Default()
	}
	d := &Dispatcher{
		service:  service,
		handlers: map[string]Handler{},
		log:      log.With("service", service, "component", "reporter"),
	}
	d.Register(KindChatWebhook, ChatWebhookHandler)
	return d
}

// Register adds or replaces the handler for kind.
func (d *Dispatcher) Register(kind string, h Handler) {
	d.handlers[kind] = h
}

// Add appends a configured reporter to the dispatch list. Reporters fire
// in registration order.
func (d *Dispatcher) Add(cfg Config) {
	d.reporters = append(d.reporters, cfg)
}

// Dispatch invokes every reporter whose TargetStatus matches status, in
// registration order. Reporter failures are logged and counted; they
// never affect job state and never re-enter the finish procedure that
// called Dispatch.
func (d *Dispatcher) Dispatch(ctx context.Context, job *jobs.Job, path, jobID string, status jobs.Status) {
	for _, cfg := range d.reporters {
		if cfg.TargetStatus != status {
			continue
		}
		handler, ok := d.handlers[cfg.Kind]
		if !ok {
			d.log.Error("finish reporter: unknown kind, skipping", "kind", cfg.Kind)
			continue
		}
		if err := handler(ctx, job, path, jobID, status, cfg.Params); err != nil {
			telemetry.FinishReporterFailures.WithLabelValues(d.service, cfg.Kind).Inc()
			d.log.Error("finish reporter failed", "kind", cfg.Kind, "job_id", jobID, "error", err)
		}
	}
}

func missingParam(kind, name string) error {
	return fmt.Errorf("reporter %s: missing required param %q", kind, name)
}
