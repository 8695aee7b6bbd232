package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Metrics is the statistics snapshot every rule is evaluated against.
// Percentages are expressed in percent.
type Metrics struct {
	TotalProfit     decimal.Decimal `json:"totalProfit"`     // Realized + unrealized P&L
	DailyProfit     decimal.Decimal `json:"dailyProfit"`     // P&L of trades opened today (UTC)
	BestTradingDay  decimal.Decimal `json:"bestTradingDay"`  // Floored at 0
	BestSingleTrade decimal.Decimal `json:"bestSingleTrade"` // Floored at 0, closed trades only
	CurrentDrawdown decimal.Decimal `json:"currentDrawdown"` // Max peak-to-trough, % of initial balance
	TradingDays     int             `json:"tradingDays"`
	WinRate         decimal.Decimal `json:"winRate"`
	ProfitFactor    decimal.Decimal `json:"profitFactor"`

	TotalTrades  int                        `json:"totalTrades"`
	ClosedTrades int                        `json:"closedTrades"`
	OpenTrades   int                        `json:"openTrades"`
	GrossProfit  decimal.Decimal            `json:"grossProfit"`
	GrossLoss    decimal.Decimal            `json:"grossLoss"`
	DailyProfits map[string]decimal.Decimal `json:"dailyProfits"` // Keyed by YYYY-MM-DD
}

// RuleViolation describes one breached or unmet rule. Violations are
// recomputed on every evaluation and never stored.
type RuleViolation struct {
	Type     RuleType        `json:"type"`
	Severity Severity        `json:"severity"`
	Message  string          `json:"message"`
	Value    decimal.Decimal `json:"value"`
	Limit    decimal.Decimal `json:"limit"`
	Time     time.Time       `json:"violationTime"`
}

// PhaseProgress reports how far the account is toward leaving its phase.
type PhaseProgress struct {
	ProfitProgress decimal.Decimal `json:"profitProgress"` // % of profit target reached, floored at 0
	DaysTraded     int             `json:"daysTraded"`
	CanAdvance     bool            `json:"canAdvance"`
	NextPhase      *Phase          `json:"nextPhase,omitempty"` // Only set when CanAdvance
}

// RuleEngineResult is the verdict of a single evaluation.
type RuleEngineResult struct {
	IsCompliant   bool            `json:"isCompliant"`
	Violations    []RuleViolation `json:"violations"`
	Metrics       Metrics         `json:"metrics"`
	PhaseProgress PhaseProgress   `json:"phaseProgress"`
}

// CriticalCount returns the number of CRITICAL violations.
func (r *RuleEngineResult) CriticalCount() int {
	return countCritical(r.Violations)
}

// HasCritical reports whether any violation in vs is CRITICAL.
func HasCritical(vs []RuleViolation) bool {
	return countCritical(vs) > 0
}

func countCritical(vs []RuleViolation) int {
	n := 0
	for _, v := range vs {
		if v.Severity == SeverityCritical {
			n++
		}
	}
	return n
}
