// Package report implements Component 6: per-report row emission from the
// success/failure day-indexes plus cron-driven CSV aggregation and
// downstream email-job submission. It is grounded on CZERTAINLY-Seeker's
// internal/service/cron.go for six-field cron parsing and on
// xraph-dispatch's cron/scheduler.go for driving a parsed cron.Schedule
// with a hand-rolled tick loop instead of robfig/cron's own goroutine,
// which this package needs so a tick's window can be computed against a
// watermark the caller controls.
package report

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	cronlib "github.com/robfig/cron/v3"

	"joblifecycle/internal/jobs"
	"joblifecycle/internal/store"
)

// ColumnMapping pairs one CSV/report column with either an RFC 6901
// pointer into the job document, or the sentinel "errorMappings".
type ColumnMapping struct {
	Column  string
	Pointer string
}

// ErrorMappingsPointer is the sentinel pointer value §4.6.1 recognizes in
// place of a JSON pointer: resolve the column from ErrorMappings instead.
const ErrorMappingsPointer = "errorMappings"

// EmailTemplate is the email-job shape a Report's Email callback builds;
// Attachments[0].Content is overwritten with the rendered, base64-encoded
// CSV before the job is posted.
type EmailTemplate struct {
	From        string
	ToName      string
	ToEmail     string
	Subject     string
	Text        string
	Attachments []Attachment
}

// Attachment is one email attachment; Content is base64-encoded.
type Attachment struct {
	Filename string
	Type     string
	Content  string
}

// Config configures one Report.
type Config struct {
	Service string // set by Service.AddReport
	Name    string

	JobMappings   []ColumnMapping
	ErrorMappings map[string]string

	// Frequency is a six-field, seconds-precision cron expression.
	Frequency string

	// Type restricts row emission to these job types; empty means all.
	Type []string
	// Filter, if set, is an additional predicate a job must satisfy.
	Filter func(job *jobs.Job) bool
	// SendEmpty forces an email even when a cron window produced no rows.
	SendEmpty bool

	// EmailServiceName is the downstream service namespace the
	// generated email job is posted to.
	EmailServiceName string
	// Email builds the base email template for one cron firing.
	Email func() EmailTemplate
}

type state int

const (
	stateIdle state = iota
	stateRunning
	stateStopped
)

// Report watches a service's success and failure day-indexes, emitting a
// row per finished job, and aggregates those rows into a periodic CSV
// email per its cron Frequency.
type Report struct {
	store store.Store
	cfg   Config
	log   *slog.Logger

	schedule cronlib.Schedule
	lastCron time.Time

	mu          sync.Mutex
	st          state
	watchedDays map[string]bool
	stopCh      chan struct{}
	wg          sync.WaitGroup
}

// New builds a Report. Call Start to begin watching and scheduling.
func New(st store.Store, cfg Config, log *slog.Logger) *Report {
	if log == nil {
		log = slog.Default()
	}
	return &Report{
		store:       st,
		cfg:         cfg,
		log:         log.With("service", cfg.Service, "report", cfg.Name),
		watchedDays: map[string]bool{},
		stopCh:      make(chan struct{}),
	}
}

// Name returns the report's configured name.
func (r *Report) Name() string { return r.cfg.Name }

// Start transitions idle -> running: it begins watching both day-indexes
// for new rows and arms the cron schedule.
func (r *Report) Start(ctx context.Context) error {
	r.mu.Lock()
	if r.st != stateIdle {
		r.mu.Unlock()
		return fmt.Errorf("report %s: start called from non-idle state", r.cfg.Name)
	}
	r.st = stateRunning
	r.mu.Unlock()

	parser := cronlib.NewParser(cronlib.Second | cronlib.Minute | cronlib.Hour | cronlib.Dom | cronlib.Month | cronlib.Dow)
	schedule, err := parser.Parse(r.cfg.Frequency)
	if err != nil {
		return fmt.Errorf("report %s: parse frequency %q: %w", r.cfg.Name, r.cfg.Frequency, err)
	}
	r.schedule = schedule
	r.lastCron = time.Now()

	r.wg.Add(1)
	go r.watchStatusIndex(ctx, string(jobs.StatusSuccess))
	r.wg.Add(1)
	go r.watchStatusIndex(ctx, string(jobs.StatusFailure))

	r.wg.Add(1)
	go r.cronLoop(ctx)

	return nil
}

// Stop transitions running -> stopped: it stops the cron loop and all
// watches, waiting for any in-flight cron handler to complete.
func (r *Report) Stop() {
	r.mu.Lock()
	if r.st != stateRunning {
		r.mu.Unlock()
		return
	}
	r.st = stateStopped
	r.mu.Unlock()

	close(r.stopCh)
	r.wg.Wait()
}
