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

	stageRunsTotal    *prometheus.CounterVec
	stageDuration     *prometheus.HistogramVec
	intakeRejectTotal *prometheus.CounterVec
	batchMembers      *prometheus.HistogramVec
	retriesTotal      *prometheus.CounterVec
}

func NewHTTPServerMetrics(service string) *HTTPServerMetrics {
	registry := prometheus.NewRegistry()

	requestTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "reportflow",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total HTTP requests processed.",
		},
		[]string{"service", "method", "path", "status"},
	)
	requestDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "reportflow",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service", "method", "path"},
	)
	requestInFlight := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "reportflow",
			Subsystem: "http",
			Name:      "in_flight_requests",
			Help:      "Number of in-flight HTTP requests.",
			ConstLabels: prometheus.Labels{
				"service": service,
			},
		},
	)
	stageRunsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "reportflow",
			Subsystem: "pipeline",
			Name:      "stage_runs_total",
			Help:      "Total synchronous stage executions by stage and outcome.",
		},
		[]string{"service", "stage", "status"},
	)
	stageDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "reportflow",
			Subsystem: "pipeline",
			Name:      "stage_duration_seconds",
			Help:      "Synchronous stage duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service", "stage"},
	)
	intakeRejectTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "reportflow",
			Subsystem: "pipeline",
			Name:      "intake_rejections_total",
			Help:      "Total submissions rejected before entering the pipeline.",
		},
		[]string{"service", "reason"},
	)
	batchMembers := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "reportflow",
			Subsystem: "pipeline",
			Name:      "batch_members",
			Help:      "Distribution of eligible files per batch archive.",
			Buckets:   []float64{1, 2, 5, 10, 20, 50, 100, 200},
		},
		[]string{"service"},
	)
	retriesTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "reportflow",
			Subsystem: "pipeline",
			Name:      "stage_retries_total",
			Help:      "Total manual stage retries requested.",
		},
		[]string{"service", "stage"},
	)

	registry.MustRegister(
		requestTotal,
		requestDuration,
		requestInFlight,
		stageRunsTotal,
		stageDuration,
		intakeRejectTotal,
		batchMembers,
		retriesTotal,
	)

	return &HTTPServerMetrics{
		registry:          registry,
		requestTotal:      requestTotal,
		requestDuration:   requestDuration,
		requestInFlight:   requestInFlight,
		stageRunsTotal:    stageRunsTotal,
		stageDuration:     stageDuration,
		intakeRejectTotal: intakeRejectTotal,
		batchMembers:      batchMembers,
		retriesTotal:      retriesTotal,
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
	switch {
	case path == "/v1/documents/batch" || path == "/v1/documents/export":
		return path
	case strings.HasSuffix(path, "/retry"):
		return "/v1/documents/{document_id}/retry"
	case strings.HasSuffix(path, "/review"):
		return "/v1/documents/{document_id}/review"
	case strings.HasPrefix(path, "/v1/documents/"):
		return "/v1/documents/{document_id}"
	default:
		return path
	}
}

func (m *HTTPServerMetrics) RecordStageRun(service, stage, status string, duration time.Duration) {
	if status == "" {
		status = "unknown"
	}
	m.stageRunsTotal.WithLabelValues(service, stage, status).Inc()
	m.stageDuration.WithLabelValues(service, stage).Observe(duration.Seconds())
}

func (m *HTTPServerMetrics) RecordIntakeRejection(service, reason string) {
	if reason == "" {
		reason = "unknown"
	}
	m.intakeRejectTotal.WithLabelValues(service, reason).Inc()
}

func (m *HTTPServerMetrics) RecordBatch(service string, members int) {
	m.batchMembers.WithLabelValues(service).Observe(float64(members))
}

func (m *HTTPServerMetrics) RecordRetry(service, stage string) {
	m.retriesTotal.WithLabelValues(service, stage).Inc()
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
