package middleware

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics stores application metrics on its own registry.
type Metrics struct {
	registry *prometheus.Registry

	RequestsTotal      *prometheus.CounterVec
	RequestsInProgress prometheus.Gauge
	RequestDuration    *prometheus.HistogramVec

	DetectionsTotal        *prometheus.CounterVec
	EnrichmentTotal        *prometheus.CounterVec
	ClassificationDuration *prometheus.HistogramVec
}

// NewMetrics registers every collector, including the Go runtime and
// process collectors, on a fresh registry.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,
		RequestsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "pestwatch_http_requests_total",
			Help: "HTTP requests by route, method and status code",
		}, []string{"route", "method", "code"}),
		RequestsInProgress: f.NewGauge(prometheus.GaugeOpts{
			Name: "pestwatch_http_requests_in_progress",
			Help: "HTTP requests currently being served",
		}),
		RequestDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "pestwatch_http_request_duration_seconds",
			Help:    "HTTP request latency by route",
			Buckets: prometheus.DefBuckets,
		}, []string{"route"}),
		DetectionsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "pestwatch_detections_total",
			Help: "Stored detections by outcome (likelihood, threat level or failed)",
		}, []string{"outcome"}),
		EnrichmentTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "pestwatch_enrichment_total",
			Help: "Reference image enrichment runs by outcome",
		}, []string{"outcome"}),
		ClassificationDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "pestwatch_classification_duration_seconds",
			Help:    "Vision model call latency",
			Buckets: []float64{0.5, 1, 2, 4, 8, 15, 30, 60},
		}, []string{"outcome"}),
	}
}

func (m *Metrics) ObserveClassification(d time.Duration, outcome string) {
	m.ClassificationDuration.WithLabelValues(outcome).Observe(d.Seconds())
}

func (m *Metrics) CountDetection(outcome string) {
	m.DetectionsTotal.WithLabelValues(outcome).Inc()
}

func (m *Metrics) CountEnrichment(outcome string) {
	m.EnrichmentTotal.WithLabelValues(outcome).Inc()
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Middleware tracks request metrics. Routes are labelled by their chi
// pattern so ids do not explode the label space.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		m.RequestsInProgress.Inc()
		defer m.RequestsInProgress.Dec()

		start := time.Now()
		wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(wrapped, r)

		route := "unmatched"
		if rc := chi.RouteContext(r.Context()); rc != nil {
			if p := rc.RoutePattern(); p != "" {
				route = p
			}
		}
		m.RequestsTotal.WithLabelValues(route, r.Method, strconv.Itoa(wrapped.statusCode)).Inc()
		m.RequestDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	})
}
