package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	RunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: "ride_priority", Name: "runs_total", Help: "Orchestrator runs by outcome"},
		[]string{"outcome"},
	)
	FillerBookingsTotal = promauto.NewCounter(prometheus.CounterOpts{Namespace: "ride_priority", Name: "filler_bookings_total", Help: "Shuttle seats booked by filler accounts"})
	CancelsTotal        = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: "ride_priority", Name: "cancels_total", Help: "Cancel attempts by result"},
		[]string{"result"},
	)
	PendingUnwind = promauto.NewGauge(prometheus.GaugeOpts{Namespace: "ride_priority", Name: "pending_unwind", Help: "Filler bookings waiting for cancellation across active runs"})

	VendorRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "ride_priority",
			Name:      "vendor_request_duration_seconds",
			Help:      "Vendor API latency by operation and outcome",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"op", "outcome"},
	)

	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: "ride_priority", Name: "http_requests_total", Help: "Total HTTP requests handled"},
		[]string{"method", "path", "status"},
	)
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "ride_priority",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency distribution",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
)
