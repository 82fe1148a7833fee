package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "quizgrade"

var (
	// SubmissionsTotal counts submission attempts by outcome: accepted, or
	// the rejection reason.
	SubmissionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "submissions_total",
		Help:      "Submission attempts by outcome.",
	}, []string{"outcome"})

	GradingDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "grading_duration_seconds",
		Help:      "Time spent building the answer key and grading one answer sheet.",
		Buckets:   prometheus.ExponentialBuckets(0.0001, 4, 8),
	})

	EventHandlerFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "event_handler_failures_total",
		Help:      "Event handlers that returned an error or panicked.",
	}, []string{"event"})
)
