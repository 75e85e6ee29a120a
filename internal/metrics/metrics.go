package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	once sync.Once

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "lineup",
			Name:      "http_requests_total",
			Help:      "HTTP requests by endpoint and status.",
		},
		[]string{"endpoint", "status"},
	)

	reservationsCreated = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "lineup",
			Name:      "reservations_created_total",
			Help:      "Confirmed reservations by intake source.",
		},
		[]string{"source"},
	)

	reservationsCancelled = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "lineup",
			Name:      "reservations_cancelled_total",
			Help:      "Cancelled reservations.",
		},
	)

	slotConflicts = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "lineup",
			Name:      "slot_conflicts_total",
			Help:      "Create or extend attempts rejected at commit time.",
		},
	)

	sessionWarnings = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "lineup",
			Name:      "session_warnings_total",
			Help:      "Session reservations moved into the warning window.",
		},
	)

	sessionExpirations = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "lineup",
			Name:      "session_expirations_total",
			Help:      "Session reservations expired by the sweep.",
		},
	)

	availabilityQueries = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "lineup",
			Name:      "availability_queries_total",
			Help:      "Availability computations by result reason.",
		},
		[]string{"reason"},
	)
)

// Register registers Prometheus metrics. Safe to call multiple times.
func Register() {
	once.Do(func() {
		prometheus.MustRegister(
			httpRequests,
			reservationsCreated,
			reservationsCancelled,
			slotConflicts,
			sessionWarnings,
			sessionExpirations,
			availabilityQueries,
		)
	})
}

func IncHTTP(endpoint, status string)    { httpRequests.WithLabelValues(endpoint, status).Inc() }
func IncCreated(source string)           { reservationsCreated.WithLabelValues(source).Inc() }
func IncCancelled()                      { reservationsCancelled.Inc() }
func IncSlotConflict()                   { slotConflicts.Inc() }
func IncSessionWarning()                 { sessionWarnings.Inc() }
func IncSessionExpiration()              { sessionExpirations.Inc() }
func IncAvailabilityQuery(reason string) { availabilityQueries.WithLabelValues(reason).Inc() }
