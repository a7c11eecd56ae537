// Package service implements Component 5: the owner of a store handle,
// worker registry, metrics, and report set for one job-lifecycle-engine
// namespace. It is the public entry point a consuming process embeds,
// replacing the teacher's cmd/worker+cmd/api split with a single
// long-lived object a process configures once at startup, in the spirit
// of xraph-dispatch's engine type composing its queue/registry/dispatch
// collaborators behind one constructor.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"joblifecycle/internal/queue"
	"joblifecycle/internal/report"
	"joblifecycle/internal/reporter"
	"joblifecycle/internal/store"
	"joblifecycle/internal/telemetry"
	"joblifecycle/internal/worker"
)

// Service owns one service namespace's worker registry, report set, and
// queue lifecycle.
type Service struct {
	name        string
	store       store.Store
	concurrency int
	enableDebug bool
	enableTrace bool
	log         *slog.Logger

	registry   *worker.Registry
	dispatcher *reporter.Dispatcher

	mu      sync.Mutex
	reports map[string]*report.Report
	q       *queue.Queue
	running bool
}

// Option configures a Service at construction time.
type Option func(*Service)

// WithConcurrency overrides the default bounded-executor width.
func WithConcurrency(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.concurrency = n
		}
	}
}

// WithDebugUpdates enables posting of "debug" level update-log entries.
func WithDebugUpdates(enabled bool) Option {
	return func(s *Service) { s.enableDebug = enabled }
}

// WithTraceUpdates enables posting of "trace" level update-log entries.
func WithTraceUpdates(enabled bool) Option {
	return func(s *Service) { s.enableTrace = enabled }
}

// WithLogger overrides the default slog logger.
func WithLogger(log *slog.Logger) Option {
	return func(s *Service) { s.log = log }
}

// WithFinishReporter registers a configured finish reporter, appended in
// call order to the dispatch list.
func WithFinishReporter(cfg reporter.Config) Option {
	return func(s *Service) { s.dispatcher.Add(cfg) }
}

// New builds a Service bound to name and st. Call Start to begin
// consuming jobs.
func New(name string, st store.Store, opts ...Option) *Service {
	s := &Service{
		name:        name,
		store:       st,
		concurrency: 10,
		log:         slog.Default(),
		registry:    worker.NewRegistry(),
		reports:     map[string]*report.Report{},
	}
	s.dispatcher = reporter.NewDispatcher(name, s.log)
	for _, opt := range opts {
		opt(s)
	}
	s.log = s.log.With("service", name)
	return s
}

// On registers (or idempotently replaces) the worker for jobType, per
// §4.5. It zeroes every metric label combination for the type so the
// metrics surface reports a known state before the first job arrives.
func (s *Service) On(jobType string, spec worker.Spec) {
	s.registry.Set(jobType, spec)
	telemetry.InitJobType(s.name, jobType)
}

// Off unregisters jobType.
func (s *Service) Off(jobType string) {
	s.registry.Remove(jobType)
}

// GetWorker returns the registered spec for jobType, or an error if none
// is registered.
func (s *Service) GetWorker(jobType string) (worker.Spec, error) {
	return s.registry.Get(jobType)
}

// Store exposes the underlying store handle, e.g. for a status API or
// CLI built on top of a Service.
func (s *Service) Store() store.Store { return s.store }

// Name returns the service namespace.
func (s *Service) Name() string { return s.name }

// AddReport registers and returns a new Report for this service.
func (s *Service) AddReport(cfg report.Config) (*report.Report, error) {
	cfg.Service = s.name
	r := report.New(s.store, cfg, s.log)
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.reports[cfg.Name]; exists {
		return nil, fmt.Errorf("service: report %q already registered", cfg.Name)
	}
	s.reports[cfg.Name] = r
	return r, nil
}

// GetReport returns a previously registered report by name.
func (s *Service) GetReport(name string) (*report.Report, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.reports[name]
	if !ok {
		return nil, fmt.Errorf("service: no report named %q", name)
	}
	return r, nil
}

// Start launches the Queue and then every registered Report. It is an
// error to call Start on a Service whose Queue is already running.
func (s *Service) Start(ctx context.Context, skipExistingOverride *bool) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return fmt.Errorf("service %s: already started", s.name)
	}
	skipExisting := false
	if skipExistingOverride != nil {
		skipExisting = *skipExistingOverride
	}
	s.q = queue.New(queue.Config{
		Service:     s.name,
		Store:       s.store,
		Registry:    s.registry,
		Reporters:   s.dispatcher,
		Concurrency: s.concurrency,
		EnableDebug: s.enableDebug,
		EnableTrace: s.enableTrace,
		Logger:      s.log,
	})
	reports := make([]*report.Report, 0, len(s.reports))
	for _, r := range s.reports {
		reports = append(reports, r)
	}
	s.running = true
	s.mu.Unlock()

	if err := s.q.Start(ctx, skipExisting); err != nil {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
		return fmt.Errorf("service %s: start queue: %w", s.name, err)
	}

	for _, r := range reports {
		if err := r.Start(ctx); err != nil {
			s.log.Error("report failed to start", "report", r.Name(), "error", err)
		}
	}

	return nil
}

// Stop stops the Queue and every Report, waiting for in-flight work to
// drain.
func (s *Service) Stop() {
	s.mu.Lock()
	q := s.q
	reports := make([]*report.Report, 0, len(s.reports))
	for _, r := range s.reports {
		reports = append(reports, r)
	}
	s.running = false
	s.mu.Unlock()

	if q != nil {
		q.Stop()
	}
	for _, r := range reports {
		r.Stop()
	}
}
