package metrics

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "guesthouse"

var (
	once sync.Once

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by route and status.",
		},
		[]string{"method", "route", "status"},
	)

	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by route.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)

	bookingsCreated = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bookings_created_total",
			Help:      "Pending bookings written to the ledger.",
		},
	)

	bookingFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "booking_create_failures_total",
			Help:      "Rejected booking attempts by reason.",
		},
		[]string{"reason"},
	)

	bookingsExpired = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bookings_expired_total",
			Help:      "Pending bookings cancelled by the expiry sweep.",
		},
	)

	reconciliations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "payment_reconciliations_total",
			Help:      "Payment verification outcomes.",
		},
		[]string{"outcome"},
	)

	gatewayRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "gateway_requests_total",
			Help:      "Calls to the payment gateway by operation and result.",
		},
		[]string{"operation", "result"},
	)
)

// Register registers Prometheus metrics. Safe to call multiple times.
func Register() {
	once.Do(func() {
		prometheus.MustRegister(
			httpRequests,
			httpDuration,
			bookingsCreated,
			bookingFailures,
			bookingsExpired,
			reconciliations,
			gatewayRequests,
		)
	})
}

// Handler exposes the default registry
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveHTTP records one finished request
func ObserveHTTP(method, route string, status int, elapsed time.Duration) {
	if route == "" {
		route = "unmatched"
	}
	httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	httpDuration.WithLabelValues(method, route).Observe(elapsed.Seconds())
}

// IncBookingCreated counts a successfully created booking
func IncBookingCreated() {
	bookingsCreated.Inc()
}

// IncBookingFailure counts a rejected booking attempt
func IncBookingFailure(reason string) {
	bookingFailures.WithLabelValues(reason).Inc()
}

// AddBookingsExpired counts bookings cancelled by the sweep
func AddBookingsExpired(n int) {
	bookingsExpired.Add(float64(n))
}

// IncReconciliation counts a verification outcome
func IncReconciliation(outcome string) {
	reconciliations.WithLabelValues(outcome).Inc()
}

// IncGatewayRequest counts a gateway call
func IncGatewayRequest(operation string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	gatewayRequests.WithLabelValues(operation, result).Inc()
}
