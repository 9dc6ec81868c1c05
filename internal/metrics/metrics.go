// Package metrics exposes Prometheus instrumentation for the safety pipeline.
// A nil *Metrics is valid and records nothing.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "safeguard"

type Metrics struct {
	registry *prometheus.Registry

	Assessments        *prometheus.CounterVec
	AssessmentDuration *prometheus.HistogramVec
	Indicators         *prometheus.CounterVec
	Failsafes          prometheus.Counter
	ExtractorFailures  *prometheus.CounterVec
	Interventions      *prometheus.CounterVec
	Overrides          prometheus.Counter
	ValidatorResults   *prometheus.CounterVec
	ResourceFallbacks  prometheus.Counter
	PersistenceErrors  *prometheus.CounterVec
	BlockedMessages    prometheus.Counter
}

func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		Assessments: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "assessments_total",
			Help:      "Assessments produced, by risk level.",
		}, []string{"app_id", "risk_level"}),
		AssessmentDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "assessment_duration_seconds",
			Help:      "Time from request to decision.",
			Buckets:   []float64{.001, .0025, .005, .01, .025, .05, .1, .25, .5, 1},
		}, []string{"operation"}),
		Indicators: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "indicators_total",
			Help:      "Indicators detected, by category and severity.",
		}, []string{"category", "severity"}),
		Failsafes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "failsafe_assessments_total",
			Help:      "Assessments produced by the failsafe path.",
		}),
		ExtractorFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "extractor_failures_total",
			Help:      "Recovered extractor and fusion failures.",
		}, []string{"stage"}),
		Interventions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "interventions_total",
			Help:      "Decisions that required intervention.",
		}, []string{"risk_level", "human_review"}),
		Overrides: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "safety_overrides_total",
			Help:      "Validation runs short-circuited by a critical safety signal.",
		}),
		ValidatorResults: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "validator_results_total",
			Help:      "Validator outcomes.",
		}, []string{"validator", "outcome"}),
		ResourceFallbacks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "resource_fallbacks_total",
			Help:      "Resource lookups served from the hardcoded fallback set.",
		}),
		PersistenceErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "persistence_errors_total",
			Help:      "Dropped writes by kind.",
		}, []string{"kind"}),
		BlockedMessages: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "blocked_messages_total",
			Help:      "Messages withheld from delivery.",
		}),
	}
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.Assessments, m.AssessmentDuration, m.Indicators, m.Failsafes,
		m.ExtractorFailures, m.Interventions, m.Overrides, m.ValidatorResults,
		m.ResourceFallbacks, m.PersistenceErrors, m.BlockedMessages,
	)
	return m
}

func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) ObserveAssessment(appID, level string, failsafe bool) {
	if m == nil {
		return
	}
	m.Assessments.WithLabelValues(appID, level).Inc()
	if failsafe {
		m.Failsafes.Inc()
	}
}

func (m *Metrics) ObserveIndicator(category, severity string) {
	if m == nil {
		return
	}
	m.Indicators.WithLabelValues(category, severity).Inc()
}

func (m *Metrics) ObserveDuration(operation string, start time.Time) {
	if m == nil {
		return
	}
	m.AssessmentDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
}

func (m *Metrics) ExtractorFailed(stage string) {
	if m == nil {
		return
	}
	m.ExtractorFailures.WithLabelValues(stage).Inc()
}

func (m *Metrics) Intervention(level string, review bool) {
	if m == nil {
		return
	}
	r := "false"
	if review {
		r = "true"
	}
	m.Interventions.WithLabelValues(level, r).Inc()
}

func (m *Metrics) Override() {
	if m == nil {
		return
	}
	m.Overrides.Inc()
}

func (m *Metrics) ValidatorOutcome(validator, outcome string) {
	if m == nil {
		return
	}
	m.ValidatorResults.WithLabelValues(validator, outcome).Inc()
}

func (m *Metrics) ResourceFallback() {
	if m == nil {
		return
	}
	m.ResourceFallbacks.Inc()
}

func (m *Metrics) PersistenceError(kind string) {
	if m == nil {
		return
	}
	m.PersistenceErrors.WithLabelValues(kind).Inc()
}

func (m *Metrics) Blocked() {
	if m == nil {
		return
	}
	m.BlockedMessages.Inc()
}
