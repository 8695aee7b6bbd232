package risk

import (
	"fmt"
	"time"

	"propMonitor/internal/analytics"
	"propMonitor/internal/domain"
	"propMonitor/internal/ports"
)

// ConfigurationError reports an account that cannot be evaluated as configured.
// It matches ports.ErrConfigurationError with errors.Is.
type ConfigurationError struct {
	AccountID string
	Reason    string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("account %s: %s", e.AccountID, e.Reason)
}

func (e *ConfigurationError) Unwrap() error {
	return ports.ErrConfigurationError
}

// Engine evaluates accounts against their prop firm rule templates.
// It keeps no state between calls and is safe for concurrent use.
type Engine struct {
	now func() time.Time
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock overrides the clock used to pick "today" and stamp violations.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

// NewEngine creates a rule engine.
func NewEngine(opts ...Option) *Engine {
	e := &Engine{now: time.Now}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

var _ ports.RuleEvaluator = (*Engine)(nil)

// Evaluate runs a full evaluation at the engine's current time.
func (e *Engine) Evaluate(account *domain.Account, trades []*domain.Trade) (*domain.RuleEngineResult, error) {
	return e.EvaluateAt(account, trades, e.now())
}

// EvaluateAt runs a full evaluation as of now: metrics, rule check, phase progress.
// It fails only when the account has no usable rule template.
func (e *Engine) EvaluateAt(account *domain.Account, trades []*domain.Trade, now time.Time) (*domain.RuleEngineResult, error) {
	if account == nil {
		return nil, &ConfigurationError{Reason: "no account supplied"}
	}
	if !account.HasTemplate() {
		return nil, &ConfigurationError{AccountID: account.ID, Reason: "no prop firm rule template assigned"}
	}
	rules, ok := account.Template.ForPhase(account.Phase)
	if !ok {
		return nil, &ConfigurationError{
			AccountID: account.ID,
			Reason:    fmt.Sprintf("template %q has no rules for phase %s", account.Template.Name, account.Phase),
		}
	}

	metrics := analytics.ComputeMetrics(trades, account.InitialBalance, now)
	violations := CheckRules(rules, metrics, account, now)
	progress := EvaluatePhaseProgress(rules, metrics, account, now)

	return &domain.RuleEngineResult{
		IsCompliant:   !domain.HasCritical(violations),
		Violations:    violations,
		Metrics:       metrics,
		PhaseProgress: progress,
	}, nil
}
