package middleware

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds Prometheus metrics collectors
type Metrics struct {
	requestsTotal    *prometheus.CounterVec
	requestDuration  *prometheus.HistogramVec
	requestsInFlight prometheus.Gauge
	responseSize     *prometheus.HistogramVec
	gatherer         prometheus.Gatherer
}

// NewMetrics creates HTTP metrics on the default registry.
func NewMetrics(namespace string) *Metrics {
	return NewMetricsWith(prometheus.DefaultRegisterer, prometheus.DefaultGatherer, namespace)
}

// NewMetricsWith creates HTTP metrics on reg and serves them from gatherer.
func NewMetricsWith(reg prometheus.Registerer, gatherer prometheus.Gatherer, namespace string) *Metrics {
	if namespace == "" {
		namespace = "atelier"
	}
	factory := promauto.With(reg)

	return &Metrics{
		requestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		requestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request duration in seconds",
				// order placement can wait minutes on the shopper
				Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60, 120, 300},
			},
			[]string{"method", "path", "status"},
		),
		requestsInFlight: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "http_requests_in_flight",
				Help:      "Number of HTTP requests currently being processed",
			},
		),
		responseSize: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_response_size_bytes",
				Help:      "HTTP response size in bytes",
				Buckets:   []float64{100, 1000, 10000, 100000, 1000000},
			},
			[]string{"method", "path", "status"},
		),
		gatherer: gatherer,
	}
}

// Middleware returns an HTTP middleware that records metrics
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		m.requestsInFlight.Inc()
		defer m.requestsInFlight.Dec()

		wrapped := &metricsResponseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(wrapped, r)

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(wrapped.statusCode)
		path := normalizePath(routePath(r))

		m.requestsTotal.WithLabelValues(r.Method, path, status).Inc()
		m.requestDuration.WithLabelValues(r.Method, path, status).Observe(duration)
		m.responseSize.WithLabelValues(r.Method, path, status).Observe(float64(wrapped.bytesWritten))
	})
}

// Handler returns the Prometheus metrics HTTP handler
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

// metricsResponseWriter wraps http.ResponseWriter to capture status and size
type metricsResponseWriter struct {
	http.ResponseWriter
	statusCode   int
	bytesWritten int
}

func (w *metricsResponseWriter) WriteHeader(code int) {
	w.statusCode = code
	w.ResponseWriter.WriteHeader(code)
}

func (w *metricsResponseWriter) Write(b []byte) (int, error) {
	n, err := w.ResponseWriter.Write(b)
	w.bytesWritten += n
	return n, err
}

// routePath prefers the matched ServeMux pattern ("POST /api/orders/{id}")
// over the raw URL path.
func routePath(r *http.Request) string {
	if r.Pattern == "" {
		return r.URL.Path
	}
	pattern := r.Pattern
	if i := strings.IndexByte(pattern, ' '); i >= 0 {
		pattern = pattern[i+1:]
	}
	return pattern
}

// normalizePath collapses ids in URL paths so label cardinality stays bounded.
//
//	/api/orders/{id}                     -> /api/orders/:id
//	/api/checkout/sessions/{id}/cancel   -> /api/checkout/sessions/:id/cancel
func normalizePath(path string) string {
	segments := strings.Split(strings.Trim(path, "/"), "/")

	switch {
	case len(segments) == 3 && segments[0] == "api" && segments[1] == "orders":
		return "/api/orders/:id"
	case len(segments) == 5 && segments[0] == "api" && segments[1] == "checkout" && segments[2] == "sessions":
		return "/api/checkout/sessions/:id/" + segments[4]
	case len(segments) > 0 && segments[0] != "api" && segments[0] != "healthz" && segments[0] != "metrics":
		// anything else is a probe or a typo
		return "/other"
	}
	return path
}
