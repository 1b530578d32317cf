package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type WorkerMetrics struct {
	service  string
	registry *prometheus.Registry

	predictionTotal    *prometheus.CounterVec
	predictionDuration *prometheus.HistogramVec
	predictionInFlight prometheus.Gauge
	staleWriteTotal    *prometheus.CounterVec
	coalescedTotal     *prometheus.CounterVec
}

func NewWorkerMetrics(service string) *WorkerMetrics {
	registry := prometheus.NewRegistry()

	predictionTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "reportflow",
			Subsystem: "worker",
			Name:      "predictions_total",
			Help:      "Total background predictions by outcome.",
		},
		[]string{"service", "status"},
	)
	predictionDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "reportflow",
			Subsystem: "worker",
			Name:      "prediction_duration_seconds",
			Help:      "Background prediction duration in seconds by outcome.",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120, 300},
		},
		[]string{"service", "status"},
	)
	predictionInFlight := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "reportflow",
			Subsystem: "worker",
			Name:      "predictions_in_flight",
			Help:      "Number of in-flight predictions in this process.",
			ConstLabels: prometheus.Labels{
				"service": service,
			},
		},
	)
	staleWriteTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "reportflow",
			Subsystem: "worker",
			Name:      "stale_writes_discarded_total",
			Help:      "Total prediction results discarded because their generation was superseded.",
		},
		[]string{"service"},
	)
	coalescedTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "reportflow",
			Subsystem: "worker",
			Name:      "dispatches_coalesced_total",
			Help:      "Total dispatches skipped because the document already had an in-flight prediction.",
		},
		[]string{"service"},
	)

	registry.MustRegister(predictionTotal, predictionDuration, predictionInFlight, staleWriteTotal, coalescedTotal)

	return &WorkerMetrics{
		service:            service,
		registry:           registry,
		predictionTotal:    predictionTotal,
		predictionDuration: predictionDuration,
		predictionInFlight: predictionInFlight,
		staleWriteTotal:    staleWriteTotal,
		coalescedTotal:     coalescedTotal,
	}
}

func (m *WorkerMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *WorkerMetrics) PredictionStarted() {
	m.predictionInFlight.Inc()
}

func (m *WorkerMetrics) PredictionFinished(duration time.Duration, err error) {
	m.predictionInFlight.Dec()

	status := "success"
	if err != nil {
		status = "error"
	}

	m.predictionTotal.WithLabelValues(m.service, status).Inc()
	m.predictionDuration.WithLabelValues(m.service, status).Observe(duration.Seconds())
}

func (m *WorkerMetrics) StaleWriteDiscarded() {
	m.staleWriteTotal.WithLabelValues(m.service).Inc()
}

func (m *WorkerMetrics) PredictionCoalesced() {
	m.coalescedTotal.WithLabelValues(m.service).Inc()
}
