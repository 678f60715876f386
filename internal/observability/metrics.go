package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	RidesCreated = promauto.NewCounter(prometheus.CounterOpts{Namespace: "trips", Name: "rides_created_total", Help: "Total rides created"})
	Transitions = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: "trips", Name: "ride_transitions_total", Help: "Total ride status transitions applied"},
		[]string{"to"},
	)
	TransitionConflicts = promauto.NewCounter(prometheus.CounterOpts{Namespace: "trips", Name: "ride_transition_conflicts_total", Help: "Transitions lost to a concurrent writer"})

	NotificationsEnqueued = promauto.NewCounter(prometheus.CounterOpts{Namespace: "trips", Name: "notifications_enqueued_total", Help: "Ride-request notifications enqueued"})
	NotificationsPublished = promauto.NewCounter(prometheus.CounterOpts{Namespace: "trips", Name: "notifications_published_total", Help: "Ride-request notifications delivered to the broker"})
	NotificationFailures = promauto.NewCounter(prometheus.CounterOpts{Namespace: "trips", Name: "notification_publish_failures_total", Help: "Failed notification publish attempts"})

	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: "trips", Name: "http_requests_total", Help: "Total HTTP requests handled"},
		[]string{"method", "path", "status"},
	)
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "trips",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency distribution",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
)
