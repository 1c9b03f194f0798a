package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() {
	register(
		jobRunsTotal,
		jobSkipsTotal,
		jobDurationSeconds,
	)
}

var (
	jobRunsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reconcile_job_runs_total",
			Help: "Reconciliation job runs, labeled by job and outcome.",
		},
		[]string{"job", "outcome"}, // 'ok', 'error'
	)

	// Skips make overlapping-trigger collapses observable: a skipped run means
	// the re-entrancy guard refused a trigger while the job was in flight.
	jobSkipsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reconcile_job_skips_total",
			Help: "Triggers refused because the job was already running.",
		},
		[]string{"job"},
	)

	jobDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "reconcile_job_duration_seconds",
			Help:    "Reconciliation job run duration.",
			Buckets: []float64{0.1, 0.5, 1, 5, 15, 60, 300},
		},
		[]string{"job"},
	)
)

func IncJobRun(job, outcome string) {
	jobRunsTotal.WithLabelValues(norm(job), norm(outcome)).Inc()
}

func IncJobSkip(job string) {
	jobSkipsTotal.WithLabelValues(norm(job)).Inc()
}

func ObserveJobDuration(job string, seconds float64) {
	jobDurationSeconds.WithLabelValues(norm(job)).Observe(seconds)
}
