package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics contains all Prometheus metrics for the paper discovery service.
// Metrics are organized by subsystem: searches, sources, dedup, cache,
// ingestion, and the PDF acquisition queue. All counters and histograms are
// registered via promauto for automatic registration with the default
// Prometheus registry.
type Metrics struct {
	// SearchesStarted counts search requests accepted by the orchestrator.
	SearchesStarted prometheus.Counter

	// SearchesCompleted counts searches that returned ranked results.
	SearchesCompleted prometheus.Counter

	// SearchesUnavailable counts searches where no source contributed.
	SearchesUnavailable prometheus.Counter

	// SearchDuration observes end-to-end search duration in seconds.
	SearchDuration prometheus.Histogram

	// SourceSearches counts per-source search attempts, labeled by source.
	SourceSearches *prometheus.CounterVec

	// SourceFailures counts per-source search failures, labeled by source and reason.
	SourceFailures *prometheus.CounterVec

	// SourceDuration observes per-source search duration in seconds.
	SourceDuration *prometheus.HistogramVec

	// PapersPerSource observes the distribution of raw papers returned per
	// source per search, labeled by source.
	PapersPerSource *prometheus.HistogramVec

	// DedupMerges counts raw records merged into an existing canonical paper,
	// labeled by match kind (doi, title_year).
	DedupMerges *prometheus.CounterVec

	// CacheHits counts result cache hits.
	CacheHits prometheus.Counter

	// CacheMisses counts result cache misses (including stale entries).
	CacheMisses prometheus.Counter

	// CacheWriteFailures counts best-effort cache writes that failed.
	CacheWriteFailures prometheus.Counter

	// PapersIngested counts papers persisted, labeled by fidelity.
	PapersIngested *prometheus.CounterVec

	// IngestDuplicates counts ingest calls resolved to an existing paper.
	IngestDuplicates prometheus.Counter

	// JobsEnqueued counts PDF jobs enqueued, labeled by priority.
	JobsEnqueued *prometheus.CounterVec

	// JobTransitions counts job state transitions, labeled by target status.
	JobTransitions *prometheus.CounterVec

	// JobsPoisoned counts jobs that exhausted their retry budget.
	JobsPoisoned prometheus.Counter

	// JobDuration observes time from claim to terminal outcome in seconds.
	JobDuration prometheus.Histogram

	// QueueDepth tracks the number of jobs per status.
	QueueDepth *prometheus.GaugeVec

	// ExtractionAttempts counts extraction strategy attempts, labeled by
	// method and outcome.
	ExtractionAttempts *prometheus.CounterVec

	// EventsPublished counts job status events published, labeled by sink
	// (bus, kafka).
	EventsPublished *prometheus.CounterVec

	// EventsDropped counts events dropped because a subscriber was slow.
	EventsDropped prometheus.Counter
}

// NewMetrics creates a new Metrics instance with all metrics initialized.
// The namespace is used as a prefix for all metric names.
func NewMetrics(namespace string) *Metrics {
	return &Metrics{
		SearchesStarted: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "searches_started_total",
			Help:      "Total number of search requests accepted",
		}),
		SearchesCompleted: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "searches_completed_total",
			Help:      "Total number of searches that returned ranked results",
		}),
		SearchesUnavailable: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "searches_unavailable_total",
			Help:      "Total number of searches where no source contributed",
		}),
		SearchDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "search_duration_seconds",
			Help:      "End-to-end search duration in seconds",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 20, 30},
		}),
		SourceSearches: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "source_searches_total",
			Help:      "Total number of per-source search attempts",
		}, []string{"source"}),
		SourceFailures: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "source_failures_total",
			Help:      "Total number of per-source search failures",
		}, []string{"source", "reason"}),
		SourceDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "source_duration_seconds",
			Help:      "Per-source search duration in seconds",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 15, 30},
		}, []string{"source"}),
		PapersPerSource: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "papers_per_source",
			Help:      "Raw papers returned per source per search",
			Buckets:   []float64{0, 1, 5, 10, 25, 50, 100, 200},
		}, []string{"source"}),
		DedupMerges: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dedup_merges_total",
			Help:      "Raw records merged into an existing canonical paper",
		}, []string{"match"}),
		CacheHits: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_hits_total",
			Help:      "Total number of result cache hits",
		}),
		CacheMisses: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_misses_total",
			Help:      "Total number of result cache misses",
		}),
		CacheWriteFailures: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_write_failures_total",
			Help:      "Total number of failed best-effort cache writes",
		}),
		PapersIngested: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "papers_ingested_total",
			Help:      "Total number of papers persisted",
		}, []string{"fidelity"}),
		IngestDuplicates: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ingest_duplicates_total",
			Help:      "Ingest calls resolved to an already-ingested paper",
		}),
		JobsEnqueued: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pdf_jobs_enqueued_total",
			Help:      "Total number of PDF jobs enqueued",
		}, []string{"priority"}),
		JobTransitions: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pdf_job_transitions_total",
			Help:      "Total number of PDF job state transitions",
		}, []string{"status"}),
		JobsPoisoned: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pdf_jobs_poisoned_total",
			Help:      "Total number of PDF jobs that exhausted retries",
		}),
		JobDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "pdf_job_duration_seconds",
			Help:      "Time from job claim to terminal outcome in seconds",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600},
		}),
		QueueDepth: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pdf_queue_depth",
			Help:      "Number of PDF jobs per status",
		}, []string{"status"}),
		ExtractionAttempts: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "extraction_attempts_total",
			Help:      "Extraction strategy attempts",
		}, []string{"method", "outcome"}),
		EventsPublished: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "job_events_published_total",
			Help:      "Job status events published",
		}, []string{"sink"}),
		EventsDropped: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "job_events_dropped_total",
			Help:      "Job status events dropped due to slow subscribers",
		}),
	}
}
