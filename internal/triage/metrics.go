package triage

import "github.com/prometheus/client_golang/prometheus"

// Metrics holds Prometheus metrics for triage runs.
type Metrics struct {
	AttemptsTotal   *prometheus.CounterVec
	TriagesTotal    *prometheus.CounterVec
	LLMDuration     prometheus.Histogram
	TriageAttempts  prometheus.Histogram
	ActionsTotal    *prometheus.CounterVec
	ActionErrsTotal *prometheus.CounterVec
}

// NewMetrics registers and returns triage metrics on the given registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		AttemptsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "mailtriage_attempts_total",
			Help: "Model attempts by outcome.",
		}, []string{"outcome"}),
		TriagesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "mailtriage_triages_total",
			Help: "Emails triaged by final status.",
		}, []string{"status"}),
		LLMDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "mailtriage_llm_call_duration_seconds",
			Help:    "Duration of individual model calls in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.25, 2, 10), // 0.25s .. ~128s
		}),
		TriageAttempts: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "mailtriage_triage_attempts",
			Help:    "Attempts used per email.",
			Buckets: prometheus.LinearBuckets(1, 1, 5),
		}),
		ActionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "mailtriage_actions_total",
			Help: "Gmail actions applied by kind.",
		}, []string{"action"}),
		ActionErrsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "mailtriage_action_errors_total",
			Help: "Gmail actions that failed, by kind.",
		}, []string{"action"}),
	}

	reg.MustRegister(
		m.AttemptsTotal,
		m.TriagesTotal,
		m.LLMDuration,
		m.TriageAttempts,
		m.ActionsTotal,
		m.ActionErrsTotal,
	)

	return m
}

// Hooks returns client Hooks that update the corresponding metrics.
func (m *Metrics) Hooks() Hooks {
	return Hooks{
		OnAttempt: func(outcome string, duration float64) {
			m.AttemptsTotal.WithLabelValues(outcome).Inc()
			m.LLMDuration.Observe(duration)
		},
		OnComplete: func(status string, attempts int) {
			m.TriagesTotal.WithLabelValues(status).Inc()
			m.TriageAttempts.Observe(float64(attempts))
		},
	}
}

// RecordAction counts one applied Gmail action; failed actions are counted separately.
func (m *Metrics) RecordAction(action string, err error) {
	if err != nil {
		m.ActionErrsTotal.WithLabelValues(action).Inc()
		return
	}
	m.ActionsTotal.WithLabelValues(action).Inc()
}
