package scheduler

import (
	"image-collector/internal/common/metrics"
)

// MetricsListener translates lifecycle events into Prometheus series.
func MetricsListener() Listener {
	return func(e Event) {
		switch e.Type {
		case EventStarted:
			metrics.JobsActive.WithLabelValues(e.Queue).Inc()
		case EventCompleted:
			metrics.JobsActive.WithLabelValues(e.Queue).Dec()
			metrics.JobsCompleted.WithLabelValues(e.Queue, e.JobType).Inc()
			metrics.JobDuration.WithLabelValues(e.Queue, e.JobType).Observe(e.Duration.Seconds())
		case EventFailed:
			// stall failures already left the active set on the stalled event
			if e.ErrorCode != ErrorCodeStalled {
				metrics.JobsActive.WithLabelValues(e.Queue).Dec()
				metrics.JobDuration.WithLabelValues(e.Queue, e.JobType).Observe(e.Duration.Seconds())
			}
			if e.Terminal {
				metrics.JobsFailed.WithLabelValues(e.Queue, e.JobType, e.ErrorCode).Inc()
			}
		case EventRetrying:
			metrics.JobsRetried.WithLabelValues(e.Queue).Inc()
		case EventStalled:
			metrics.JobsActive.WithLabelValues(e.Queue).Dec()
			metrics.JobsStalled.WithLabelValues(e.Queue).Inc()
		}
	}
}
