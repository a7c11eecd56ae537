// Package telemetry exposes the Prometheus metrics surface §4.5 specifies,
// following the teacher's internal/telemetry/metrics.go (a package-level
// singleton registry exposed over promhttp.Handler), generalized from
// teacher's unlabeled counters/gauges to the labeled vectors the job
// lifecycle engine's metrics contract requires.
package telemetry

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// JobState is one of the four gauge states tracked per (service, type).
type JobState string

const (
	StateQueued  JobState = "queued"
	StateRunning JobState = "running"
	StateSuccess JobState = "success"
	StateFailure JobState = "failure"
)

var allStates = []JobState{StateQueued, StateRunning, StateSuccess, StateFailure}

var (
	once sync.Once

	// JobsTotal is the oada_jobs_total gauge, per §4.5.
	JobsTotal = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "oada_jobs_total",
		Help: "Current count of jobs per service, type, and lifecycle state.",
	}, []string{"service", "type", "state"})

	// JobTimes is the job_times histogram, per §4.5's exact bucket
	// boundaries (seconds, powers of two from 1 to 524288).
	JobTimes = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "job_times",
		Help:    "Job execution duration in seconds, by service, type, and terminal status.",
		Buckets: []float64{1, 2, 4, 8, 16, 32, 64, 128, 256, 512, 1024, 2048, 4096, 8192, 16384, 32768, 65536, 131072, 262144, 524288},
	}, []string{"service", "type", "status"})

	// ReportRowsWritten counts rows emitted by every Report.
	ReportRowsWritten = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "oada_report_rows_total",
		Help: "Report rows written, by service and report name.",
	}, []string{"service", "report"})

	// ReportEmailsSent counts cron-driven email-job submissions.
	ReportEmailsSent = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "oada_report_emails_total",
		Help: "Email-send jobs submitted by report cron aggregation, by service and report name.",
	}, []string{"service", "report"})

	// FinishReporterFailures counts finish-reporter invocation failures,
	// which are logged and ignored per §7 but still worth alerting on.
	FinishReporterFailures = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "oada_finish_reporter_failures_total",
		Help: "Finish reporter invocations that returned an error.",
	}, []string{"service", "kind"})
)

// Handler exposes the /metrics HTTP handler, registering the collectors
// exactly once regardless of how many Service instances call it.
func Handler() http.Handler {
	once.Do(func() {
		prometheus.MustRegister(JobsTotal, JobTimes, ReportRowsWritten, ReportEmailsSent, FinishReporterFailures)
	})
	return promhttp.Handler()
}

// InitJobType zeroes every gauge state and both histogram-status label
// combinations for (service, jobType), per §4.5: "Initializes metric
// labels for this type with zero values for states {queued, running,
// success, failure} and histogram labels {success, failure}."
func InitJobType(service, jobType string) {
	for _, s := range allStates {
		JobsTotal.WithLabelValues(service, jobType, string(s)).Add(0)
	}
	JobTimes.WithLabelValues(service, jobType, "success")
	JobTimes.WithLabelValues(service, jobType, "failure")
}
