package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// PipelineMetrics records case pipeline runs. It satisfies
// ports.PipelineObserver.
type PipelineMetrics struct {
	registry *prometheus.Registry
	service  string

	processTotal    *prometheus.CounterVec
	processDuration *prometheus.HistogramVec
	processInFlight prometheus.Gauge
	queueLag        *prometheus.HistogramVec
	sweptTotal      *prometheus.CounterVec
	breakerState    *prometheus.GaugeVec
}

// NewPipelineMetrics registers on registry, or on a private registry when nil.
func NewPipelineMetrics(service string, registry *prometheus.Registry) *PipelineMetrics {
	if registry == nil {
		registry = prometheus.NewRegistry()
	}

	processTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "coactivo",
			Subsystem: "pipeline",
			Name:      "case_process_total",
			Help:      "Total finished case runs by resulting state.",
		},
		[]string{"service", "state"},
	)
	processDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "coactivo",
			Subsystem: "pipeline",
			Name:      "case_process_duration_seconds",
			Help:      "Case run duration in seconds by resulting state.",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 20, 30, 60, 120},
		},
		[]string{"service", "state"},
	)
	processInFlight := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "coactivo",
			Subsystem: "pipeline",
			Name:      "case_process_in_flight",
			Help:      "Number of in-flight case runs.",
			ConstLabels: prometheus.Labels{
				"service": service,
			},
		},
	)
	queueLag := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "coactivo",
			Subsystem: "pipeline",
			Name:      "queue_lag_seconds",
			Help:      "Delay between case creation and run start.",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120, 300, 600},
		},
		[]string{"service"},
	)
	sweptTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "coactivo",
			Subsystem: "pipeline",
			Name:      "stale_cases_failed_total",
			Help:      "Cases failed by the stale sweeper.",
		},
		[]string{"service"},
	)
	breakerState := prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "coactivo",
			Subsystem: "resilience",
			Name:      "circuit_breaker_open",
			Help:      "1 while the named circuit breaker is open or half-open.",
		},
		[]string{"service", "operation"},
	)

	registry.MustRegister(processTotal, processDuration, processInFlight, queueLag, sweptTotal, breakerState)

	return &PipelineMetrics{
		registry:        registry,
		service:         service,
		processTotal:    processTotal,
		processDuration: processDuration,
		processInFlight: processInFlight,
		queueLag:        queueLag,
		sweptTotal:      sweptTotal,
		breakerState:    breakerState,
	}
}

func (m *PipelineMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *PipelineMetrics) CaseStarted(queueLag time.Duration) {
	m.processInFlight.Inc()
	if queueLag >= 0 {
		m.queueLag.WithLabelValues(m.service).Observe(queueLag.Seconds())
	}
}

func (m *PipelineMetrics) CaseFinished(outcome string, duration time.Duration) {
	m.processInFlight.Dec()
	if outcome == "" {
		outcome = "unknown"
	}
	m.processTotal.WithLabelValues(m.service, outcome).Inc()
	m.processDuration.WithLabelValues(m.service, outcome).Observe(duration.Seconds())
}

func (m *PipelineMetrics) CasesSwept(n int) {
	if n <= 0 {
		return
	}
	m.sweptTotal.WithLabelValues(m.service).Add(float64(n))
}

// BreakerStateChanged takes gobreaker state names.
func (m *PipelineMetrics) BreakerStateChanged(operation, state string) {
	value := 0.0
	if state != "closed" {
		value = 1
	}
	m.breakerState.WithLabelValues(m.service, operation).Set(value)
}
