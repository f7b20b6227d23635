package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	JobsCompleted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "collector_jobs_completed_total",
			Help: "Total number of jobs completed per queue",
		},
		[]string{"queue", "job_type"},
	)

	JobsFailed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "collector_jobs_failed_total",
			Help: "Total number of jobs that failed permanently per queue",
		},
		[]string{"queue", "job_type", "error_code"},
	)

	JobsRetried = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "collector_jobs_retried_total",
			Help: "Total number of job retries scheduled per queue",
		},
		[]string{"queue"},
	)

	JobsStalled = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "collector_jobs_stalled_total",
			Help: "Total number of stalled jobs per queue",
		},
		[]string{"queue"},
	)

	JobDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "collector_job_duration_seconds",
			Help:    "Duration of job processing in seconds",
			Buckets: []float64{0.1, 0.5, 1, 5, 15, 30, 60, 120, 300, 900},
		},
		[]string{"queue", "job_type"},
	)

	JobsActive = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "collector_jobs_active",
			Help: "Number of active jobs per queue",
		},
		[]string{"queue"},
	)

	CandidatesProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "collector_candidates_processed_total",
			Help: "Candidate images processed by source, decision and quality bucket",
		},
		[]string{"source", "decision", "bucket"},
	)

	CandidateErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "collector_candidate_errors_total",
			Help: "Candidate-level errors by source and error code",
		},
		[]string{"source", "error_code"},
	)

	ItemsFinalized = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "collector_items_finalized_total",
			Help: "Collection runs finalized by resulting item status",
		},
		[]string{"category", "status"},
	)

	EventsPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "collector_events_published_total",
			Help: "Lifecycle events handed to each sink by outcome",
		},
		[]string{"sink", "status"},
	)

	EventsDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "collector_events_dropped_total",
			Help: "Lifecycle events dropped because the dispatch buffer was full",
		},
	)
)
