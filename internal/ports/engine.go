package ports

import (
	"time"

	"propMonitor/internal/domain"
)

// RuleEvaluator evaluates an account snapshot against its prop firm rules.
type RuleEvaluator interface {
	// Evaluate returns the compliance verdict for the account and its trades.
	Evaluate(account *domain.Account, trades []*domain.Trade) (*domain.RuleEngineResult, error)
}

// EvaluationRecorder receives the outcome of every evaluation (e.g. for metrics).
type EvaluationRecorder interface {
	RecordEvaluation(account *domain.Account, result *domain.RuleEngineResult, took time.Duration)
	RecordEvaluationError(account *domain.Account, err error)
}
