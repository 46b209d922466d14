package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the Prometheus collectors of the workshop service.
type Metrics struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	recalcTotal     *prometheus.CounterVec
	recalcDuration  prometheus.Histogram
	recalcTriggers  *prometheus.CounterVec
}

// NewMetrics creates a private registry with the HTTP and consumption collectors.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "taller_http_requests_total",
		Help: "HTTP requests by route and status code.",
	}, []string{"route", "code"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "taller_http_request_duration_seconds",
		Help:    "HTTP request duration by route.",
		Buckets: prometheus.DefBuckets,
	}, []string{"route"})
	recalcTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "taller_consumption_recalculations_total",
		Help: "Fabric consumption recalculations by result.",
	}, []string{"result"})
	recalcDuration := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "taller_consumption_recalculation_duration_seconds",
		Help:    "Time spent recalculating a project's fabric consumption.",
		Buckets: prometheus.DefBuckets,
	})
	triggers := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "taller_consumption_triggers_total",
		Help: "Recalculation triggers by origin.",
	}, []string{"origin"})
	registry.MustRegister(requests, duration, recalcTotal, recalcDuration, triggers)
	return &Metrics{
		registry:        registry,
		handler:         promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestsTotal:   requests,
		requestDuration: duration,
		recalcTotal:     recalcTotal,
		recalcDuration:  recalcDuration,
		recalcTriggers:  triggers,
	}
}

// Handler serves the /metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// Middleware records request count and latency under the matched chi route pattern.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(&recorder, r)
		route := routePattern(r)
		m.requestsTotal.WithLabelValues(route, strconv.Itoa(recorder.status)).Inc()
		m.requestDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	})
}

// ObserveRecalculation records one consumption recalculation.
func (m *Metrics) ObserveRecalculation(result string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.recalcTotal.WithLabelValues(result).Inc()
	m.recalcDuration.Observe(elapsed.Seconds())
}

// ObserveTrigger counts a recalculation request, e.g. "confirm", "manual" or "link".
func (m *Metrics) ObserveTrigger(origin string) {
	if m == nil {
		return
	}
	m.recalcTriggers.WithLabelValues(origin).Inc()
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func routePattern(r *http.Request) string {
	if routeCtx := chi.RouteContext(r.Context()); routeCtx != nil {
		if pattern := routeCtx.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	return "unknown"
}
