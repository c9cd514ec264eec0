package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "gabarito"

// Metrics holds the service collectors. A nil *Metrics is a valid no-op.
type Metrics struct {
	Registry *prometheus.Registry

	corrections      *prometheus.CounterVec
	questionOutcomes *prometheus.CounterVec
	detectorDuration *prometheus.HistogramVec
	detectorFailures *prometheus.CounterVec
	detectionCache   *prometheus.CounterVec
}

func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		Registry: reg,
		corrections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "corrections_total",
			Help:      "Exam corrections by result.",
		}, []string{"result"}),
		questionOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "question_outcomes_total",
			Help:      "Scored questions by outcome.",
		}, []string{"outcome"}),
		detectorDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "detector_duration_seconds",
			Help:      "Mark detector latency.",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		}, []string{"engine"}),
		detectorFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "detector_failures_total",
			Help:      "Mark detector failures by reason.",
		}, []string{"engine", "reason"}),
		detectionCache: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "detection_cache_total",
			Help:      "Detection cache lookups by result.",
		}, []string{"result"}),
	}
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.corrections,
		m.questionOutcomes,
		m.detectorDuration,
		m.detectorFailures,
		m.detectionCache,
	)
	return m
}

func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})
}

func (m *Metrics) CorrectionDone(result string) {
	if m == nil {
		return
	}
	m.corrections.WithLabelValues(result).Inc()
}

func (m *Metrics) QuestionOutcome(outcome string, n int) {
	if m == nil || n == 0 {
		return
	}
	m.questionOutcomes.WithLabelValues(outcome).Add(float64(n))
}

// DetectorCall records one detector invocation; reason is empty on success.
func (m *Metrics) DetectorCall(engine string, d time.Duration, reason string) {
	if m == nil {
		return
	}
	m.detectorDuration.WithLabelValues(engine).Observe(d.Seconds())
	if reason != "" {
		m.detectorFailures.WithLabelValues(engine, reason).Inc()
	}
}

func (m *Metrics) CacheLookup(result string) {
	if m == nil {
		return
	}
	m.detectionCache.WithLabelValues(result).Inc()
}
