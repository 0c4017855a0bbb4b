package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics owns the Prometheus collectors for one process. All methods are
// safe on a nil receiver so tests may pass nil.
type Metrics struct {
	registry *prometheus.Registry

	httpRequests *prometheus.CounterVec
	httpLatency  *prometheus.HistogramVec
	httpErrors   *prometheus.CounterVec

	ticketEvents       *prometheus.CounterVec
	transcriptOutcomes *prometheus.CounterVec
	carryEvents        *prometheus.CounterVec
	feedbackRatings    prometheus.Histogram
	interactions       *prometheus.CounterVec
}

// NewMetrics registers collectors on a private registry.
func NewMetrics(service string) *Metrics {
	reg := prometheus.NewRegistry()
	constLabels := prometheus.Labels{"service": service}

	m := &Metrics{
		registry: reg,
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "http_requests_total",
			Help:        "Total number of HTTP requests.",
			ConstLabels: constLabels,
		}, []string{"method", "path", "status"}),
		httpLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:        "http_request_duration_seconds",
			Help:        "Duration of HTTP requests in seconds.",
			Buckets:     prometheus.DefBuckets,
			ConstLabels: constLabels,
		}, []string{"method", "path"}),
		httpErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "http_errors_total",
			Help:        "HTTP requests that ended in a domain error, by code.",
			ConstLabels: constLabels,
		}, []string{"method", "path", "code"}),
		ticketEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "ticket_transitions_total",
			Help:        "Ticket lifecycle transitions.",
			ConstLabels: constLabels,
		}, []string{"transition"}),
		transcriptOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "transcript_store_total",
			Help:        "Transcript sink writes by outcome.",
			ConstLabels: constLabels,
		}, []string{"outcome"}),
		carryEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "carry_requests_total",
			Help:        "Carry reports by resolution.",
			ConstLabels: constLabels,
		}, []string{"result"}),
		feedbackRatings: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:        "feedback_rating",
			Help:        "Star ratings submitted after closure.",
			Buckets:     []float64{1, 2, 3, 4, 5},
			ConstLabels: constLabels,
		}),
		interactions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "bot_interactions_total",
			Help:        "Chat interactions handled, by action and outcome.",
			ConstLabels: constLabels,
		}, []string{"action", "outcome"}),
	}

	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.httpRequests, m.httpLatency, m.httpErrors,
		m.ticketEvents, m.transcriptOutcomes, m.carryEvents,
		m.feedbackRatings, m.interactions,
	)
	return m
}

// Handler exposes the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// RecordRequest increments counters for requests.
func (m *Metrics) RecordRequest(path, method string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	m.httpRequests.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
	m.httpLatency.WithLabelValues(method, path).Observe(duration.Seconds())
}

// RecordError increments error counters.
func (m *Metrics) RecordError(path, method, code string) {
	if m == nil {
		return
	}
	m.httpErrors.WithLabelValues(method, path, code).Inc()
}

// RecordTicketTransition counts created, claimed, priority_set, closed, ...
func (m *Metrics) RecordTicketTransition(transition string) {
	if m == nil {
		return
	}
	m.ticketEvents.WithLabelValues(transition).Inc()
}

// RecordTranscriptOutcome counts stored versus degraded sink writes.
func (m *Metrics) RecordTranscriptOutcome(outcome string) {
	if m == nil {
		return
	}
	m.transcriptOutcomes.WithLabelValues(outcome).Inc()
}

// RecordCarry counts submitted, approved and declined carries.
func (m *Metrics) RecordCarry(result string) {
	if m == nil {
		return
	}
	m.carryEvents.WithLabelValues(result).Inc()
}

// RecordFeedback observes a submitted rating.
func (m *Metrics) RecordFeedback(rating int) {
	if m == nil {
		return
	}
	m.feedbackRatings.Observe(float64(rating))
}

// RecordInteraction counts handled chat interactions.
func (m *Metrics) RecordInteraction(action, outcome string) {
	if m == nil {
		return
	}
	m.interactions.WithLabelValues(action, outcome).Inc()
}
