package api

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/dunamismax/pixelshelf/internal/domain"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type metrics struct {
	registry          *prometheus.Registry
	requestTotal      *prometheus.CounterVec
	requestDuration   *prometheus.HistogramVec
	rateLimitRejected *prometheus.CounterVec
	operationsTotal   *prometheus.CounterVec
	imageBytes        *prometheus.HistogramVec
}

func newMetrics() *metrics {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(registry)

	return &metrics{
		registry: registry,
		requestTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "pixelshelf_api_requests_total",
			Help: "Total HTTP requests handled by the API.",
		}, []string{"method", "route", "status"}),
		requestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "pixelshelf_api_request_duration_seconds",
			Help:    "API request latency in seconds.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route", "status"}),
		rateLimitRejected: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "pixelshelf_api_rate_limit_rejections_total",
			Help: "Total API requests rejected by rate limiting.",
		}, []string{"route"}),
		operationsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "pixelshelf_asset_operations_total",
			Help: "Asset operations by name and error kind (ok on success).",
		}, []string{"operation", "kind"}),
		imageBytes: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "pixelshelf_api_image_bytes",
			Help:    "Size of images received and returned by the API.",
			Buckets: prometheus.ExponentialBuckets(16<<10, 4, 7),
		}, []string{"direction"}),
	}
}

func (m *metrics) metricsHandler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *metrics) observeOperation(operation string, err error) {
	kind := "ok"
	if err != nil {
		kind = domain.ErrorKind(err)
	}
	m.operationsTotal.WithLabelValues(operation, kind).Inc()
}

func (m *metrics) observeImage(direction string, size int) {
	m.imageBytes.WithLabelValues(direction).Observe(float64(size))
}

func (m *metrics) withHTTPMetrics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(recorder, r)

		labels := []string{r.Method, routeLabel(r.URL.Path), strconv.Itoa(recorder.status)}
		m.requestTotal.WithLabelValues(labels...).Inc()
		m.requestDuration.WithLabelValues(labels...).Observe(time.Since(start).Seconds())
	})
}

// routeLabel collapses asset ids so label cardinality stays bounded.
func routeLabel(path string) string {
	switch {
	case strings.HasPrefix(path, "/api/images/"):
		return "/api/images/{id}"
	case path == "/api/images", path == "/api/upload", path == "/api/edit", path == "/api/save":
		return path
	case strings.HasPrefix(path, "/healthz"):
		return "/healthz"
	case strings.HasPrefix(path, "/metrics"):
		return "/metrics"
	default:
		return "unmatched"
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(statusCode int) {
	r.status = statusCode
	r.ResponseWriter.WriteHeader(statusCode)
}
