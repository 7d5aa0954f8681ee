// Package metrics exposes Prometheus collectors for the flow engine.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "flow_engine"

// =============================================================================
// Collectors
// =============================================================================

var (
	// interactions counts processed interactions.
	// Labels: component_type, action, outcome (ok, rejected, error)
	interactions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "interaction",
		Name:      "total",
		Help:      "Processed component interactions",
	}, []string{"component_type", "action", "outcome"})

	interactionLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "interaction",
		Name:      "duration_seconds",
		Help:      "End-to-end interaction latency",
		Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
	}, []string{"component_type"})

	componentsCompleted = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "progress",
		Name:      "components_completed_total",
		Help:      "Components moved to COMPLETED",
	}, []string{"component_type"})

	stepsUnlocked = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "progress",
		Name:      "steps_unlocked_total",
		Help:      "Steps unlocked by completing the previous step",
	})

	// transitions counts assignment status transitions.
	// Labels: from, to
	transitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "assignment",
		Name:      "transitions_total",
		Help:      "Assignment status transitions",
	}, []string{"from", "to"})

	assignmentsCreated = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "assignment",
		Name:      "created_total",
		Help:      "Assignments created",
	})

	snapshotSize = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "snapshot",
		Name:      "size_bytes",
		Help:      "Canonical size of created snapshots",
		Buckets:   prometheus.ExponentialBuckets(1024, 4, 8),
	})

	snapshotDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "snapshot",
		Name:      "build_duration_seconds",
		Help:      "Time to build a snapshot",
		Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5},
	})

	overdueDetected = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "deadline",
		Name:      "overdue_detected_total",
		Help:      "Assignments latched as overdue",
	})

	overdueScans = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "deadline",
		Name:      "scans_total",
		Help:      "Overdue detection runs",
	}, []string{"status"})

	sideChannelFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "side_channel",
		Name:      "failures_total",
		Help:      "Swallowed failures of best-effort collaborators",
	}, []string{"channel"})

	eventsPublished = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "events",
		Name:      "published_total",
		Help:      "Domain events published on the bus",
	}, []string{"event_type"})

	// eventHandlers counts handler executions.
	// Labels: event_type, status (ok, error)
	eventHandlers = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "events",
		Name:      "handler_duration_seconds",
		Help:      "Event handler execution time",
		Buckets:   []float64{0.001, 0.01, 0.1, 0.5, 1, 5},
	}, []string{"event_type", "status"})

	jobRuns = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "scheduler",
		Name:      "job_duration_seconds",
		Help:      "Scheduled job execution time",
		Buckets:   []float64{0.01, 0.1, 0.5, 1, 5, 30, 120},
	}, []string{"job", "status"})
)

// =============================================================================
// Recording functions
// =============================================================================

// RecordInteraction records one interaction attempt.
func RecordInteraction(componentType, action, outcome string, d time.Duration) {
	interactions.WithLabelValues(componentType, action, outcome).Inc()
	interactionLatency.WithLabelValues(componentType).Observe(d.Seconds())
}

// RecordComponentCompleted records a component completion.
func RecordComponentCompleted(componentType string) {
	componentsCompleted.WithLabelValues(componentType).Inc()
}

// RecordStepsUnlocked records unlocked steps.
func RecordStepsUnlocked(n int) {
	if n > 0 {
		stepsUnlocked.Add(float64(n))
	}
}

// RecordTransition records an assignment status change.
func RecordTransition(from, to string) {
	transitions.WithLabelValues(from, to).Inc()
}

// RecordAssignmentCreated records a new assignment.
func RecordAssignmentCreated() {
	assignmentsCreated.Inc()
}

// RecordSnapshot records snapshot build statistics.
func RecordSnapshot(sizeBytes int, buildMs int64) {
	snapshotSize.Observe(float64(sizeBytes))
	snapshotDuration.Observe(float64(buildMs) / 1000)
}

// RecordOverdue records assignments latched as overdue.
func RecordOverdue(n int) {
	if n > 0 {
		overdueDetected.Add(float64(n))
	}
}

// RecordOverdueScan records one overdue detection run.
func RecordOverdueScan(status string) {
	overdueScans.WithLabelValues(status).Inc()
}

// RecordSideChannelFailure records a swallowed notification or achievement error.
func RecordSideChannelFailure(channel string) {
	sideChannelFailures.WithLabelValues(channel).Inc()
}

// RecordEventPublished records an event handed to the bus.
func RecordEventPublished(eventType string) {
	eventsPublished.WithLabelValues(eventType).Inc()
}

// RecordEventHandled records one handler execution.
func RecordEventHandled(eventType string, d time.Duration, ok bool) {
	status := "ok"
	if !ok {
		status = "error"
	}
	eventHandlers.WithLabelValues(eventType, status).Observe(d.Seconds())
}

// RecordJobRun records one scheduled job execution.
func RecordJobRun(job string, d time.Duration, ok bool) {
	status := "ok"
	if !ok {
		status = "error"
	}
	jobRuns.WithLabelValues(job, status).Observe(d.Seconds())
}
