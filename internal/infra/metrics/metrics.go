// Package metrics holds the Prometheus collectors shared by the worker,
// the reconciler and the HTTP layer.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "walletpay"

type Metrics struct {
	JobsProcessed       *prometheus.CounterVec
	JobDuration         *prometheus.HistogramVec
	ProviderCalls       *prometheus.CounterVec
	RollbacksExhausted  prometheus.Counter
	ReconcileRequeues   *prometheus.CounterVec
	HTTPRequests        *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
}

// New creates the collectors and registers them on reg. A nil reg leaves
// them unregistered, which is what most tests want.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		JobsProcessed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "worker", Name: "jobs_processed_total",
			Help: "Jobs handled by kind and outcome.",
		}, []string{"kind", "outcome"}),
		JobDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Subsystem: "worker", Name: "job_duration_seconds",
			Help:    "Job handler latency.",
			Buckets: prometheus.DefBuckets,
		}, []string{"kind"}),
		ProviderCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "provider", Name: "calls_total",
			Help: "Provider calls by bill type and outcome.",
		}, []string{"bill_type", "outcome"}),
		RollbacksExhausted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "worker", Name: "rollbacks_exhausted_total",
			Help: "Rollback jobs that failed after their last attempt.",
		}),
		ReconcileRequeues: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "reconcile", Name: "requeued_total",
			Help: "Jobs re-enqueued by the reconciliation sweep.",
		}, []string{"kind"}),
		HTTPRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "http", Name: "requests_total",
			Help: "HTTP requests by route and status code.",
		}, []string{"method", "route", "code"}),
		HTTPRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Subsystem: "http", Name: "request_duration_seconds",
			Help:    "HTTP request latency.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route"}),
	}

	if reg != nil {
		reg.MustRegister(
			m.JobsProcessed,
			m.JobDuration,
			m.ProviderCalls,
			m.RollbacksExhausted,
			m.ReconcileRequeues,
			m.HTTPRequests,
			m.HTTPRequestDuration,
		)
	}

	return m
}
