// internal/metrics/metrics.go
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HttpRequestsTotal counts HTTP requests served by the master API.
	HttpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of http requests handled by the service.",
		},
		[]string{"path", "method", "code"},
	)

	// JobsProcessedTotal counts jobs folded into a worker's model, by outcome.
	JobsProcessedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lsi_jobs_processed_total",
			Help: "Total number of jobs processed by a worker.",
		},
		[]string{"worker_id", "status"}, // success / failed
	)

	// AccumulateDuration observes how long the model takes to fold a job.
	AccumulateDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "lsi_accumulate_duration_seconds",
			Help:    "Time spent accumulating a single job into the model.",
			Buckets: prometheus.DefBuckets,
		},
	)

	// StateExportsTotal counts snapshots handed out by a worker.
	StateExportsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lsi_state_exports_total",
			Help: "Total number of state snapshots exported by a worker.",
		},
		[]string{"worker_id"},
	)

	// JobsQueued is the number of jobs waiting in the master queue.
	JobsQueued = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "lsi_jobs_queued",
			Help: "Number of jobs waiting to be handed to a worker.",
		},
	)

	// HarvestsTotal counts per-worker state harvests, by outcome.
	HarvestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lsi_harvests_total",
			Help: "Total number of worker state harvests.",
		},
		[]string{"status"},
	)

	// IsLeader is 1 while this master node holds leadership.
	IsLeader = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "is_leader",
			Help: "Is this node currently the leader. 1 if leader, 0 otherwise.",
		},
		[]string{"node_id"},
	)
)
