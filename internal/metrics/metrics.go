package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "clinic"

// Collector groups the service metrics. All methods are safe on a nil receiver
// so components can be constructed without metrics in tests.
type Collector struct {
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	inFlight        prometheus.Gauge

	appointmentsTotal *prometheus.CounterVec
	queueEnqueued     *prometheus.CounterVec
	queueCalled       prometheus.Counter
	raceRetries       *prometheus.CounterVec
	cacheLookups      *prometheus.CounterVec
}

// NewCollector registers the metrics on reg, or the default registerer when reg is nil.
func NewCollector(reg prometheus.Registerer) *Collector {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Collector{
		requestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests by method, route, and status code.",
		}, []string{"method", "route", "status"}),

		requestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency distribution.",
			Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0},
		}, []string{"method", "route"}),

		inFlight: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "in_flight_requests",
			Help:      "Current number of in-flight HTTP requests.",
		}),

		appointmentsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "scheduler",
			Name:      "appointment_requests_total",
			Help:      "Appointment create/reschedule attempts by outcome (booked, conflict).",
		}, []string{"outcome"}),

		queueEnqueued: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "queue",
			Name:      "enqueued_total",
			Help:      "Walk-in patients added to the queue by priority.",
		}, []string{"priority"}),

		queueCalled: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "queue",
			Name:      "called_total",
			Help:      "Queue items handed to a doctor through call-next.",
		}),

		raceRetries: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "store",
			Name:      "race_retries_total",
			Help:      "Operations retried after losing a serialization race, by operation.",
		}, []string{"operation"}),

		cacheLookups: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "lookups_total",
			Help:      "Cache lookups by result (hit, miss).",
		}, []string{"result"}),
	}
}

func (c *Collector) ObserveRequest(method, route, status string, seconds float64) {
	if c == nil {
		return
	}
	c.requestsTotal.WithLabelValues(method, route, status).Inc()
	c.requestDuration.WithLabelValues(method, route).Observe(seconds)
}

func (c *Collector) IncInFlight() {
	if c == nil {
		return
	}
	c.inFlight.Inc()
}

func (c *Collector) DecInFlight() {
	if c == nil {
		return
	}
	c.inFlight.Dec()
}

func (c *Collector) ObserveAppointment(outcome string) {
	if c == nil {
		return
	}
	c.appointmentsTotal.WithLabelValues(outcome).Inc()
}

func (c *Collector) ObserveEnqueue(priority string) {
	if c == nil {
		return
	}
	c.queueEnqueued.WithLabelValues(priority).Inc()
}

func (c *Collector) ObserveCall() {
	if c == nil {
		return
	}
	c.queueCalled.Inc()
}

func (c *Collector) ObserveRaceRetry(operation string) {
	if c == nil {
		return
	}
	c.raceRetries.WithLabelValues(operation).Inc()
}

func (c *Collector) ObserveCacheLookup(hit bool) {
	if c == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	c.cacheLookups.WithLabelValues(result).Inc()
}

// Handler serves the given gatherer, or the default one when g is nil.
func Handler(g prometheus.Gatherer) http.Handler {
	if g == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
