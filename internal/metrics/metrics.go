package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "venuebook"

var (
	once sync.Once

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by endpoint.",
		},
		[]string{"endpoint"},
	)

	requestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "request_duration_seconds",
			Help:      "Time spent serving API requests.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"transport", "endpoint"},
	)

	submissions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "booking_submissions_total",
			Help:      "Booking submissions by venue and outcome.",
		},
		[]string{"venue", "outcome"},
	)

	decisions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "booking_decisions_total",
			Help:      "Administrator decisions by outcome.",
		},
		[]string{"outcome"},
	)

	tasks = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "worker_tasks_total",
			Help:      "Background tasks by type and result.",
		},
		[]string{"type", "result"},
	)
)

// Register registers Prometheus metrics. Safe to call multiple times.
func Register() {
	once.Do(func() {
		prometheus.MustRegister(httpRequests, requestDuration, submissions, decisions, tasks)
	})
}

// IncHTTP increments the counter for an endpoint label.
func IncHTTP(endpoint string) {
	httpRequests.WithLabelValues(endpoint).Inc()
}

func ObserveRequest(transport, endpoint string, started time.Time) {
	requestDuration.WithLabelValues(transport, endpoint).Observe(time.Since(started).Seconds())
}

// IncSubmission records a submission outcome: "accepted" or an error kind.
func IncSubmission(venue, outcome string) {
	submissions.WithLabelValues(venue, outcome).Inc()
}

func IncDecision(outcome string) {
	decisions.WithLabelValues(outcome).Inc()
}

func IncTask(taskType, result string) {
	tasks.WithLabelValues(taskType, result).Inc()
}
