package metrics

import (
	"bufio"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type HTTPServerMetrics struct {
	registry *prometheus.Registry

	requestTotal    *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	requestInFlight prometheus.Gauge

	queryTotal           *prometheus.CounterVec
	queryRetrievalHit    *prometheus.CounterVec
	queryNoContext       *prometheus.CounterVec
	queryRetrievedChunks *prometheus.HistogramVec
	queryDuration        *prometheus.HistogramVec

	piiDetectedTotal *prometheus.CounterVec
	sessionsTotal    *prometheus.CounterVec
	activeSessions   prometheus.Gauge
}

func NewHTTPServerMetrics(service string) *HTTPServerMetrics {
	registry := prometheus.NewRegistry()

	requestTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "docveil",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total HTTP requests processed.",
		},
		[]string{"service", "method", "path", "status"},
	)
	requestDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "docveil",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service", "method", "path"},
	)
	requestInFlight := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "docveil",
			Subsystem: "http",
			Name:      "in_flight_requests",
			Help:      "Number of in-flight HTTP requests.",
			ConstLabels: prometheus.Labels{
				"service": service,
			},
		},
	)
	queryTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "docveil",
			Subsystem: "query",
			Name:      "requests_total",
			Help:      "Total successful query requests.",
		},
		[]string{"service"},
	)
	queryRetrievalHit := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "docveil",
			Subsystem: "query",
			Name:      "retrieval_hit_total",
			Help:      "Total query requests with at least one retrieved source.",
		},
		[]string{"service"},
	)
	queryNoContext := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "docveil",
			Subsystem: "query",
			Name:      "no_context_total",
			Help:      "Total query requests without retrieved sources.",
		},
		[]string{"service"},
	)
	queryRetrievedChunks := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "docveil",
			Subsystem: "query",
			Name:      "retrieved_chunks",
			Help:      "Distribution of retrieved chunks per successful query.",
			Buckets:   []float64{0, 1, 2, 3, 5, 8, 13, 21},
		},
		[]string{"service"},
	)
	queryDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "docveil",
			Subsystem: "query",
			Name:      "duration_seconds",
			Help:      "Query execution duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service"},
	)
	piiDetectedTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "docveil",
			Subsystem: "pii",
			Name:      "entities_detected_total",
			Help:      "Total PII entities replaced during ingestion, by kind.",
		},
		[]string{"service", "kind"},
	)
	sessionsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "docveil",
			Subsystem: "sessions",
			Name:      "lifecycle_total",
			Help:      "Session lifecycle events by type.",
		},
		[]string{"service", "event"},
	)
	activeSessions := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "docveil",
			Subsystem: "sessions",
			Name:      "active",
			Help:      "Number of sessions that are open (not torn down).",
			ConstLabels: prometheus.Labels{
				"service": service,
			},
		},
	)

	registry.MustRegister(
		requestTotal,
		requestDuration,
		requestInFlight,
		queryTotal,
		queryRetrievalHit,
		queryNoContext,
		queryRetrievedChunks,
		queryDuration,
		piiDetectedTotal,
		sessionsTotal,
		activeSessions,
	)

	return &HTTPServerMetrics{
		registry:             registry,
		requestTotal:         requestTotal,
		requestDuration:      requestDuration,
		requestInFlight:      requestInFlight,
		queryTotal:           queryTotal,
		queryRetrievalHit:    queryRetrievalHit,
		queryNoContext:       queryNoContext,
		queryRetrievedChunks: queryRetrievedChunks,
		queryDuration:        queryDuration,
		piiDetectedTotal:     piiDetectedTotal,
		sessionsTotal:        sessionsTotal,
		activeSessions:       activeSessions,
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

// normalizePath collapses IDs so the path label stays low-cardinality.
func normalizePath(path string) string {
	switch {
	case strings.HasPrefix(path, "/v1/sessions/"):
		rest := strings.TrimPrefix(path, "/v1/sessions/")
		if i := strings.Index(rest, "/"); i >= 0 {
			return "/v1/sessions/{session_id}/" + rest[i+1:]
		}
		return "/v1/sessions/{session_id}"
	case strings.HasPrefix(path, "/v1/documents/"):
		return "/v1/documents/{document_id}"
	default:
		return path
	}
}

func (m *HTTPServerMetrics) RecordQuery(service string, sourceCount int, duration time.Duration) {
	m.queryTotal.WithLabelValues(service).Inc()
	m.queryRetrievedChunks.WithLabelValues(service).Observe(float64(sourceCount))
	m.queryDuration.WithLabelValues(service).Observe(duration.Seconds())

	if sourceCount > 0 {
		m.queryRetrievalHit.WithLabelValues(service).Inc()
		return
	}
	m.queryNoContext.WithLabelValues(service).Inc()
}

func (m *HTTPServerMetrics) RecordPIIDetected(service, kind string, count int) {
	if count <= 0 {
		return
	}
	m.piiDetectedTotal.WithLabelValues(service, kind).Add(float64(count))
}

func (m *HTTPServerMetrics) RecordSessionEvent(service, event string) {
	m.sessionsTotal.WithLabelValues(service, event).Inc()
	switch event {
	case "created":
		m.activeSessions.Inc()
	case "closed":
		m.activeSessions.Dec()
	}
}

type statusRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (w *statusRecorder) WriteHeader(statusCode int) {
	w.statusCode = statusCode
	w.ResponseWriter.WriteHeader(statusCode)
}

func (w *statusRecorder) Flush() {
	flusher, ok := w.ResponseWriter.(http.Flusher)
	if ok {
		flusher.Flush()
	}
}

func (w *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hijacker, ok := w.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("response writer does not implement http.Hijacker")
	}
	return hijacker.Hijack()
}

func (w *statusRecorder) Push(target string, opts *http.PushOptions) error {
	pusher, ok := w.ResponseWriter.(http.Pusher)
	if !ok {
		return http.ErrNotSupported
	}
	return pusher.Push(target, opts)
}
