package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Booking outcomes.
const (
	OutcomeBooked      = "booked"
	OutcomeConflict    = "conflict"
	OutcomeInvalidSlot = "invalid_slot"
	OutcomeForbidden   = "forbidden"
	OutcomeError       = "error"
)

// Metrics holds the process collectors. A nil *Metrics records nothing, so
// services and tests can run without a registry.
type Metrics struct {
	httpRequests    *prometheus.CounterVec
	httpDuration    *prometheus.HistogramVec
	bookingOutcomes *prometheus.CounterVec
	outboxRelayed   *prometheus.CounterVec
	gatherer        prometheus.Gatherer
}

// New creates the collectors and registers them on reg.
func New(reg *prometheus.Registry) *Metrics {
	m := &Metrics{
		httpRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "clinic_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "route", "status"},
		),
		httpDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "clinic_http_request_duration_seconds",
				Help:    "Duration of HTTP requests in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
		bookingOutcomes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "clinic_booking_outcomes_total",
				Help: "Booking and reschedule attempts by outcome",
			},
			[]string{"outcome"},
		),
		outboxRelayed: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "clinic_outbox_relayed_total",
				Help: "Outbox events handed to the event sink",
			},
			[]string{"sink", "result"},
		),
		gatherer: reg,
	}

	reg.MustRegister(m.httpRequests, m.httpDuration, m.bookingOutcomes, m.outboxRelayed)
	return m
}

func (m *Metrics) ObserveHTTP(method, route string, status int, took time.Duration) {
	if m == nil {
		return
	}
	m.httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.httpDuration.WithLabelValues(method, route).Observe(took.Seconds())
}

func (m *Metrics) Booking(outcome string) {
	if m == nil {
		return
	}
	m.bookingOutcomes.WithLabelValues(outcome).Inc()
}

func (m *Metrics) Relayed(sink, result string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.outboxRelayed.WithLabelValues(sink, result).Add(float64(n))
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}
