package metrics

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "feedback"

// Metrics holds the service counters. A nil *Metrics is valid and records
// nothing.
type Metrics struct {
	gatherer prometheus.Gatherer

	rateLimitDecisions *prometheus.CounterVec
	trackedClients     prometheus.Gauge
	sessionExpiries    prometheus.Counter
	feedbackIngested   *prometheus.CounterVec
	analyses           *prometheus.CounterVec
}

// New registers the service metrics on reg
func New(reg *prometheus.Registry) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		gatherer: reg,
		rateLimitDecisions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ratelimit",
			Name:      "decisions_total",
			Help:      "Per-client throttling decisions, labeled by result",
		}, []string{"result"}),
		trackedClients: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "ratelimit",
			Name:      "tracked_clients",
			Help:      "Client identities currently held by the rate limiter",
		}),
		sessionExpiries: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "expiries_total",
			Help:      "Sessions forcibly signed out after idling past their timeout",
		}),
		feedbackIngested: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingest",
			Name:      "entries_total",
			Help:      "Feedback entries stored, labeled by source",
		}, []string{"source"}),
		analyses: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sentiment",
			Name:      "analyses_total",
			Help:      "Sentiment analyses, labeled by status",
		}, []string{"status"}),
	}
}

// NewDefault registers on a fresh registry that also carries the Go and
// process collectors
func NewDefault() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return New(reg)
}

func (m *Metrics) RateLimitDecision(accepted bool) {
	if m == nil {
		return
	}
	result := "accepted"
	if !accepted {
		result = "rejected"
	}
	m.rateLimitDecisions.WithLabelValues(result).Inc()
}

func (m *Metrics) TrackedClients(n int) {
	if m == nil {
		return
	}
	m.trackedClients.Set(float64(n))
}

func (m *Metrics) SessionExpired() {
	if m == nil {
		return
	}
	m.sessionExpiries.Inc()
}

func (m *Metrics) FeedbackIngested(source string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.feedbackIngested.WithLabelValues(source).Add(float64(n))
}

func (m *Metrics) Analysis(success bool) {
	if m == nil {
		return
	}
	status := "success"
	if !success {
		status = "failure"
	}
	m.analyses.WithLabelValues(status).Inc()
}

// Handler exposes the registry in the Prometheus text format
func (m *Metrics) Handler() fiber.Handler {
	gatherer := prometheus.DefaultGatherer
	if m != nil && m.gatherer != nil {
		gatherer = m.gatherer
	}
	return adaptor.HTTPHandler(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
}
