package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type HTTPServerMetrics struct {
	registry *prometheus.Registry
	service  string

	requestTotal    *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	requestInFlight prometheus.Gauge
	rejectedTotal   *prometheus.CounterVec

	cacheLookupsTotal      *prometheus.CounterVec
	cacheLookupDuration    *prometheus.HistogramVec
	cacheTierUnavailable   *prometheus.CounterVec
	cacheInvalidationTotal *prometheus.CounterVec

	fusionRequestsTotal *prometheus.CounterVec
	fusionDegradedTotal *prometheus.CounterVec
	fusionResults       *prometheus.HistogramVec

	webhookCallsTotal *prometheus.CounterVec
	breakerState      *prometheus.GaugeVec
}

func NewHTTPServerMetrics(service string) *HTTPServerMetrics {
	registry := prometheus.NewRegistry()

	requestTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "pva",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total HTTP requests processed.",
		},
		[]string{"service", "method", "path", "status"},
	)
	requestDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "pva",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service", "method", "path"},
	)
	requestInFlight := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "pva",
			Subsystem: "http",
			Name:      "in_flight_requests",
			Help:      "Number of in-flight HTTP requests.",
			ConstLabels: prometheus.Labels{
				"service": service,
			},
		},
	)
	rejectedTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "pva",
			Subsystem: "http",
			Name:      "rejected_total",
			Help:      "Requests rejected by traffic control.",
		},
		[]string{"service", "reason"},
	)
	cacheLookupsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "pva",
			Subsystem: "cache",
			Name:      "lookups_total",
			Help:      "Property lookups by serving tier and outcome.",
		},
		[]string{"service", "tier", "outcome"},
	)
	cacheLookupDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "pva",
			Subsystem: "cache",
			Name:      "lookup_duration_seconds",
			Help:      "Property lookup latency split by hit and miss path.",
			Buckets:   []float64{0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		},
		[]string{"service", "path"},
	)
	cacheTierUnavailable := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "pva",
			Subsystem: "cache",
			Name:      "tier_unavailable_total",
			Help:      "Distributed tier failures absorbed by the cache.",
		},
		[]string{"service", "operation"},
	)
	cacheInvalidationTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "pva",
			Subsystem: "cache",
			Name:      "invalidations_total",
			Help:      "Cache invalidations by scope.",
		},
		[]string{"service", "scope"},
	)
	fusionRequestsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "pva",
			Subsystem: "rag",
			Name:      "mode_requests_total",
			Help:      "Knowledge searches by fusion mode.",
		},
		[]string{"service", "mode"},
	)
	fusionDegradedTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "pva",
			Subsystem: "rag",
			Name:      "degraded_total",
			Help:      "Knowledge searches served with a missing signal.",
		},
		[]string{"service", "mode"},
	)
	fusionResults := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "pva",
			Subsystem: "rag",
			Name:      "retrieved_chunks",
			Help:      "Distribution of fused chunks per knowledge search.",
			Buckets:   []float64{0, 1, 2, 3, 5, 8, 13, 21},
		},
		[]string{"service"},
	)
	webhookCallsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "pva",
			Subsystem: "voice",
			Name:      "function_calls_total",
			Help:      "Voice platform function calls by function name and status.",
		},
		[]string{"service", "function", "status"},
	)
	breakerState := prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "pva",
			Subsystem: "resilience",
			Name:      "breaker_state",
			Help:      "Circuit breaker state per operation (0 closed, 1 half-open, 2 open).",
		},
		[]string{"service", "operation"},
	)

	registry.MustRegister(
		requestTotal,
		requestDuration,
		requestInFlight,
		rejectedTotal,
		cacheLookupsTotal,
		cacheLookupDuration,
		cacheTierUnavailable,
		cacheInvalidationTotal,
		fusionRequestsTotal,
		fusionDegradedTotal,
		fusionResults,
		webhookCallsTotal,
		breakerState,
	)

	return &HTTPServerMetrics{
		registry:               registry,
		service:                service,
		requestTotal:           requestTotal,
		requestDuration:        requestDuration,
		requestInFlight:        requestInFlight,
		rejectedTotal:          rejectedTotal,
		cacheLookupsTotal:      cacheLookupsTotal,
		cacheLookupDuration:    cacheLookupDuration,
		cacheTierUnavailable:   cacheTierUnavailable,
		cacheInvalidationTotal: cacheInvalidationTotal,
		fusionRequestsTotal:    fusionRequestsTotal,
		fusionDegradedTotal:    fusionDegradedTotal,
		fusionResults:          fusionResults,
		webhookCallsTotal:      webhookCallsTotal,
		breakerState:           breakerState,
	}
}

func (m *HTTPServerMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *HTTPServerMetrics) Middleware(service string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		path := normalizePath(r.URL.Path)
		recorder := &statusRecorder{
			ResponseWriter: w,
			statusCode:     http.StatusOK,
		}

		m.requestInFlight.Inc()
		defer m.requestInFlight.Dec()

		next.ServeHTTP(recorder, r)

		m.requestTotal.WithLabelValues(
			service,
			r.Method,
			path,
			strconv.Itoa(recorder.statusCode),
		).Inc()
		m.requestDuration.WithLabelValues(service, r.Method, path).Observe(time.Since(start).Seconds())
	})
}

func normalizePath(path string) string {
	switch path {
	case "/healthz", "/metrics", "/v1/properties/lookup", "/v1/properties/search", "/v1/knowledge/search",
		"/api/vapi/webhook", "/v1/cache/stats", "/v1/cache/reset", "/v1/cache/invalidate":
		return path
	default:
		return "other"
	}
}

func (m *HTTPServerMetrics) RecordRejected(reason string) {
	m.rejectedTotal.WithLabelValues(m.service, reason).Inc()
}

func (m *HTTPServerMetrics) RecordFunctionCall(function, status string) {
	if function == "" {
		function = "unknown"
	}
	m.webhookCallsTotal.WithLabelValues(m.service, function, status).Inc()
}

type statusRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (w *statusRecorder) WriteHeader(statusCode int) {
	w.statusCode = statusCode
	w.ResponseWriter.WriteHeader(statusCode)
}

// Unwrap lets http.ResponseController reach the underlying writer.
func (w *statusRecorder) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}
