package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus instruments for the credential pipeline.
type Metrics struct {
	JobsEnqueued  prometheus.Counter
	JobsDuplicate prometheus.Counter
	JobsProcessed *prometheus.CounterVec
	JobRetries    prometheus.Counter
	JobDuration   prometheus.Histogram
	EnhanceFalls  prometheus.Counter
}

// New creates and registers all pipeline metrics with reg. Pass a fresh
// registry in tests to avoid duplicate registration.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		JobsEnqueued: factory.NewCounter(prometheus.CounterOpts{
			Name: "festcred_jobs_enqueued_total",
			Help: "Credential jobs accepted into the queue.",
		}),
		JobsDuplicate: factory.NewCounter(prometheus.CounterOpts{
			Name: "festcred_jobs_duplicate_total",
			Help: "Enqueue attempts absorbed by the per-registration uniqueness guarantee.",
		}),
		JobsProcessed: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "festcred_jobs_processed_total",
			Help: "Jobs finished by the worker, labelled by outcome.",
		}, []string{"outcome"}),
		JobRetries: factory.NewCounter(prometheus.CounterOpts{
			Name: "festcred_job_retries_total",
			Help: "Transient failures rescheduled with backoff.",
		}),
		JobDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "festcred_job_duration_seconds",
			Help:    "Wall time spent executing one credential job.",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 10),
		}),
		EnhanceFalls: factory.NewCounter(prometheus.CounterOpts{
			Name: "festcred_enhance_fallbacks_total",
			Help: "Enhancement calls that degraded to the unenhanced photo.",
		}),
	}
}
