package risk

import (
	"time"

	"github.com/shopspring/decimal"

	"propMonitor/internal/domain"
)

// EvaluatePhaseProgress reports the progress toward the phase's profit target and whether
// the account may move to the next phase. Critical violations are recomputed here from
// the same rules and metrics rather than taken from an earlier pass.
//
// Advancement needs the target reached, the minimum trading days met and no critical
// violation. FUNDED is the last phase, so it never advances even when its rules carry
// a profit target: CanAdvance stays false there although the three conditions may hold.
func EvaluatePhaseProgress(rules domain.PhaseRules, metrics domain.Metrics, account *domain.Account, now time.Time) domain.PhaseProgress {
	progress := domain.PhaseProgress{
		ProfitProgress: decimal.Zero,
		DaysTraded:     metrics.TradingDays,
	}

	// A phase without a target amount (usually FUNDED) reports 0 and never advances.
	target := rules.ProfitTargetAmount
	if target == nil {
		return progress
	}

	// A zero target is reached by any non-negative result; progress stays 0.
	if target.IsPositive() {
		progress.ProfitProgress = decimal.Max(decimal.Zero, metrics.TotalProfit.Mul(hundred).Div(*target))
	}

	targetReached := metrics.TotalProfit.GreaterThanOrEqual(*target)
	daysMet := rules.MinTradingDays == nil || metrics.TradingDays >= *rules.MinTradingDays
	noCritical := !domain.HasCritical(CheckRules(rules, metrics, account, now))

	if targetReached && daysMet && noCritical {
		if next, ok := account.Phase.Next(); ok {
			progress.CanAdvance = true
			progress.NextPhase = &next
		}
	}
	return progress
}
