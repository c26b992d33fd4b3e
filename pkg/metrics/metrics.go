package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	DomainEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "parking_domain_events_total",
			Help: "Domain events dispatched after commit, by type",
		},
		[]string{"type"},
	)

	EventHandlerFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "parking_event_handler_failures_total",
			Help: "Event handler failures, by event type and handler",
		},
		[]string{"type", "handler"},
	)

	CacheInvalidationFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "parking_cache_invalidation_failures_total",
			Help: "Cache keys or patterns that could not be invalidated",
		},
	)

	BookingCreateAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "parking_booking_create_attempts_total",
			Help: "Booking create transactions, by outcome",
		},
		[]string{"outcome"},
	)

	PaymentReconciliations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "parking_payment_reconciliations_total",
			Help: "Payment reconciliations, by outcome",
		},
		[]string{"outcome"},
	)

	ExpiredBookings = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "parking_expired_bookings_total",
			Help: "Unpaid bookings cancelled by the expiry sweep",
		},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "parking_http_request_duration_seconds",
			Help:    "HTTP request latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route", "status"},
	)
)
