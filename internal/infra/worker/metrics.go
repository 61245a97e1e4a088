package worker

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"scout-alerts/internal/pkg/config"
)

// WorkerMetrics provides Prometheus metrics for the worker's cron jobs.
// It embeds ConfigMetrics for configuration monitoring.
//
// Metrics:
//   - worker_job_runs_total{job,status}: job runs by outcome (started, success, failure, skipped)
//   - worker_job_duration_seconds{job}: job duration
//   - worker_job_items_total{job,kind}: subscriptions checked, items found, messages sent
//   - worker_job_last_success_timestamp{job}: Unix time of the last successful run
//
// Example usage:
//
//	metrics := NewWorkerMetrics()
//	start := time.Now()
//	stats, err := pollSvc.CheckAll(ctx, poll.CheckOptions{})
//	metrics.RecordJobDuration(JobCheck, time.Since(start).Seconds())
//	if err == nil {
//	    metrics.RecordJobRun(JobCheck, "success")
//	    metrics.RecordItems(JobCheck, "new_items", int(stats.New))
//	    metrics.RecordLastSuccess(JobCheck)
//	}
type WorkerMetrics struct {
	*config.ConfigMetrics

	JobRunsTotal            *prometheus.CounterVec
	JobDurationSeconds      *prometheus.HistogramVec
	JobItemsTotal           *prometheus.CounterVec
	JobLastSuccessTimestamp *prometheus.GaugeVec
}

// NewWorkerMetrics creates and registers the worker metrics via promauto.
// Call it once per process.
func NewWorkerMetrics() *WorkerMetrics {
	return &WorkerMetrics{
		ConfigMetrics: config.NewConfigMetrics("worker"),

		JobRunsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "worker_job_runs_total",
			Help: "Total number of worker job runs by job and status",
		}, []string{"job", "status"}),

		JobDurationSeconds: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "worker_job_duration_seconds",
			Help:    "Duration of worker job runs in seconds",
			Buckets: []float64{1, 5, 30, 60, 300, 900, 1800}, // 1s .. 30m
		}, []string{"job"}),

		JobItemsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "worker_job_items_total",
			Help: "Units of work processed by worker jobs",
		}, []string{"job", "kind"}),

		JobLastSuccessTimestamp: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Name: "worker_job_last_success_timestamp",
			Help: "Unix timestamp of the last successful run of each job",
		}, []string{"job"}),
	}
}

// RecordJobRun counts one run of job with the given status.
func (m *WorkerMetrics) RecordJobRun(job, status string) {
	m.JobRunsTotal.WithLabelValues(job, status).Inc()
}

// RecordJobDuration observes the duration of one run in seconds.
func (m *WorkerMetrics) RecordJobDuration(job string, seconds float64) {
	m.JobDurationSeconds.WithLabelValues(job).Observe(seconds)
}

// RecordItems adds count units of kind processed by job.
// Non-positive counts are ignored.
func (m *WorkerMetrics) RecordItems(job, kind string, count int) {
	if count <= 0 {
		return
	}
	m.JobItemsTotal.WithLabelValues(job, kind).Add(float64(count))
}

// RecordLastSuccess stamps the current time as the last success of job.
func (m *WorkerMetrics) RecordLastSuccess(job string) {
	m.JobLastSuccessTimestamp.WithLabelValues(job).SetToCurrentTime()
}
