package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// EnqueuedTotal tracks items accepted into the batch queue
	EnqueuedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "classgate_enqueued_total",
			Help: "Total number of items enqueued for classification",
		},
	)

	// BatchesSentTotal tracks batches handed to the transport
	BatchesSentTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "classgate_batches_sent_total",
			Help: "Total number of batches sent to the classifier",
		},
	)

	// SendAttemptsTotal tracks individual HTTP attempts, including retries
	SendAttemptsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "classgate_send_attempts_total",
			Help: "Total number of HTTP send attempts",
		},
	)

	// RetriesTotal tracks attempts beyond the first for a batch
	RetriesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "classgate_retries_total",
			Help: "Total number of retried send attempts",
		},
	)

	// FailOpenTotal tracks items resolved by the fail-open fallback
	FailOpenTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "classgate_fail_open_total",
			Help: "Total number of items resolved fail-open after exhausted attempts",
		},
	)

	// UnmappedResultsTotal tracks items the remote response left without
	// a result, resolved with the allow default
	UnmappedResultsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "classgate_unmapped_results_total",
			Help: "Total number of items missing from classifier responses",
		},
	)

	// CacheHitsTotal tracks fingerprint cache hits
	CacheHitsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "classgate_cache_hits_total",
			Help: "Total number of result cache hits",
		},
	)

	// CacheMissesTotal tracks fingerprint cache misses
	CacheMissesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "classgate_cache_misses_total",
			Help: "Total number of result cache misses",
		},
	)

	// QueueDepth tracks the current number of pending items
	QueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "classgate_queue_depth",
			Help: "Current number of items waiting in the batch queue",
		},
	)
)
