// Package metrics holds the Prometheus collectors for job orchestration.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "matchscope"

// Metrics bundles every collector the service exports. Each instance owns its
// registry so tests can create as many as they like.
type Metrics struct {
	registry *prometheus.Registry

	JobsSubmitted     *prometheus.CounterVec
	BatchJobs         *prometheus.CounterVec
	BatchQueueDepth   prometheus.Gauge
	PollErrors        prometheus.Counter
	ReclaimedJobs     prometheus.Counter
	VerificationItems *prometheus.CounterVec
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		JobsSubmitted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "jobs_submitted_total",
			Help:      "Analysis job submissions by result.",
		}, []string{"result"}),
		BatchJobs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "batch_jobs_total",
			Help:      "Batch scheduler targets finished, by outcome.",
		}, []string{"outcome"}),
		BatchQueueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "batch_queue_depth",
			Help:      "Targets waiting in the batch queue.",
		}),
		PollErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "poll_errors_total",
			Help:      "Failed job status reads while polling.",
		}),
		ReclaimedJobs: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reclaimed_jobs_total",
			Help:      "Jobs forced to failed by the reclaimer.",
		}),
		VerificationItems: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "verification_items_total",
			Help:      "Verification and post-analysis items by operation and result.",
		}, []string{"operation", "result"}),
	}

	m.registry.MustRegister(
		m.JobsSubmitted,
		m.BatchJobs,
		m.BatchQueueDepth,
		m.PollErrors,
		m.ReclaimedJobs,
		m.VerificationItems,
		prometheus.NewGoCollector(),
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry exposes the underlying registry, mainly for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Result labels a success/failure counter.
func Result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
