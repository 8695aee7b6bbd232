package prom

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"propMonitor/internal/domain"
	"propMonitor/internal/ports"
)

// Recorder exports evaluation outcomes as Prometheus metrics.
type Recorder struct {
	evaluations *prometheus.CounterVec
	violations  *prometheus.CounterVec
	errors      *prometheus.CounterVec
	duration    *prometheus.HistogramVec
	progress    *prometheus.HistogramVec
}

var _ ports.EvaluationRecorder = (*Recorder)(nil)

// NewRecorder creates the collectors and registers them with reg.
func NewRecorder(reg prometheus.Registerer) (*Recorder, error) {
	r := &Recorder{
		evaluations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "prop_evaluations_total",
			Help: "Account evaluations by phase and compliance verdict",
		}, []string{"phase", "compliant"}),
		violations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "prop_rule_violations_total",
			Help: "Rule violations reported by evaluations",
		}, []string{"rule", "severity"}),
		errors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "prop_evaluation_errors_total",
			Help: "Evaluations that could not run",
		}, []string{"reason"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "prop_evaluation_duration_seconds",
			Help:    "Time spent evaluating an account",
			Buckets: prometheus.ExponentialBuckets(0.0001, 4, 8),
		}, []string{"phase"}),
		// Labelled by phase only: account ids come from request bodies on ad-hoc evaluations.
		progress: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "prop_profit_progress_percent",
			Help:    "Profit progress toward the phase target reported by evaluations",
			Buckets: []float64{0, 25, 50, 75, 100, 150},
		}, []string{"phase"}),
	}

	for _, c := range []prometheus.Collector{r.evaluations, r.violations, r.errors, r.duration, r.progress} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// RecordEvaluation counts a completed evaluation.
func (r *Recorder) RecordEvaluation(account *domain.Account, result *domain.RuleEngineResult, took time.Duration) {
	if account == nil || result == nil {
		return
	}
	phase := string(account.Phase)
	compliant := "false"
	if result.IsCompliant {
		compliant = "true"
	}
	r.evaluations.WithLabelValues(phase, compliant).Inc()
	r.duration.WithLabelValues(phase).Observe(took.Seconds())
	for _, v := range result.Violations {
		r.violations.WithLabelValues(string(v.Type), string(v.Severity)).Inc()
	}
	progress, _ := result.PhaseProgress.ProfitProgress.Float64()
	r.progress.WithLabelValues(phase).Observe(progress)
}

// RecordEvaluationError counts an evaluation that failed before producing a result.
func (r *Recorder) RecordEvaluationError(account *domain.Account, err error) {
	reason := "other"
	switch {
	case errors.Is(err, ports.ErrConfigurationError):
		reason = "configuration"
	case errors.Is(err, ports.ErrNotFound):
		reason = "not_found"
	case errors.Is(err, ports.ErrQueryFailed), errors.Is(err, ports.ErrDBConnection):
		reason = "storage"
	}
	r.errors.WithLabelValues(reason).Inc()
}
