// Package risk evaluates prop firm rules against an account's trading metrics.
package risk

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"propMonitor/internal/domain"
)

var (
	hundred = decimal.NewFromInt(100)
	two     = decimal.NewFromInt(2)
)

// CheckRules compares metrics with the thresholds of the account's current phase and
// returns every violation found, in evaluation order: daily loss, overall loss,
// simple protection (daily, trade), minimum trading days. All rules are checked.
func CheckRules(rules domain.PhaseRules, metrics domain.Metrics, account *domain.Account, now time.Time) []domain.RuleViolation {
	violations := make([]domain.RuleViolation, 0)

	// Daily loss
	if metrics.DailyProfit.IsNegative() {
		dailyLossPercent := lossPercent(metrics.DailyProfit, account.InitialBalance)
		if dailyLossPercent.GreaterThan(rules.MaxDailyLoss) {
			violations = append(violations, domain.RuleViolation{
				Type:     domain.RuleDailyLoss,
				Severity: domain.SeverityCritical,
				Message: fmt.Sprintf("daily loss %s%% exceeds maximum allowed %s%%",
					dailyLossPercent.StringFixed(2), rules.MaxDailyLoss.StringFixed(2)),
				Value: dailyLossPercent,
				Limit: rules.MaxDailyLoss,
				Time:  now,
			})
		}
	}

	// Overall loss
	if metrics.TotalProfit.IsNegative() {
		overallLossPercent := lossPercent(metrics.TotalProfit, account.InitialBalance)
		if overallLossPercent.GreaterThan(rules.MaxOverallLoss) {
			violations = append(violations, domain.RuleViolation{
				Type:     domain.RuleOverallLoss,
				Severity: domain.SeverityCritical,
				Message: fmt.Sprintf("overall loss %s%% exceeds maximum allowed %s%%",
					overallLossPercent.StringFixed(2), rules.MaxOverallLoss.StringFixed(2)),
				Value: overallLossPercent,
				Limit: rules.MaxOverallLoss,
				Time:  now,
			})
		}
	}

	// Simple protection rules only apply after the first phase.
	if rules.ConsistencyRules && (account.Phase == domain.Phase2 || account.Phase == domain.PhaseFunded) {
		dailyOn, tradeOn := true, true
		if rules.SimpleProtection != nil {
			dailyOn = rules.SimpleProtection.DailyProtection
			tradeOn = rules.SimpleProtection.TradeProtection
		}

		if dailyOn {
			if v, ok := checkProtection(domain.RuleDailyProtection, "day", metrics.BestTradingDay, metrics.TotalProfit, now); ok {
				violations = append(violations, v)
			}
		}
		if tradeOn {
			if v, ok := checkProtection(domain.RuleTradeProtection, "trade", metrics.BestSingleTrade, metrics.TotalProfit, now); ok {
				violations = append(violations, v)
			}
		}
	}

	// Minimum trading days never fails the account, it only holds it in its phase.
	if rules.MinTradingDays != nil && metrics.TradingDays < *rules.MinTradingDays {
		violations = append(violations, domain.RuleViolation{
			Type:     domain.RuleMinTradingDays,
			Severity: domain.SeverityWarning,
			Message: fmt.Sprintf("traded %d of the required %d days",
				metrics.TradingDays, *rules.MinTradingDays),
			Value: decimal.NewFromInt(int64(metrics.TradingDays)),
			Limit: decimal.NewFromInt(int64(*rules.MinTradingDays)),
			Time:  now,
		})
	}

	return violations
}

// checkProtection requires a positive total profit to be at least twice best.
func checkProtection(ruleType domain.RuleType, unit string, best, totalProfit decimal.Decimal, now time.Time) (domain.RuleViolation, bool) {
	if !best.IsPositive() || !totalProfit.IsPositive() {
		return domain.RuleViolation{}, false
	}
	required := best.Mul(two)
	if !totalProfit.LessThan(required) {
		return domain.RuleViolation{}, false
	}
	return domain.RuleViolation{
		Type:     ruleType,
		Severity: domain.SeverityCritical,
		Message: fmt.Sprintf("total profit %s must be at least double the best single %s's profit (%s)",
			totalProfit.StringFixed(2), unit, required.StringFixed(2)),
		Value: totalProfit,
		Limit: required,
		Time:  now,
	}, true
}

// lossPercent returns |loss| as a percentage of balance, or zero for a non-positive balance.
func lossPercent(loss, balance decimal.Decimal) decimal.Decimal {
	if !balance.IsPositive() {
		return decimal.Zero
	}
	return loss.Abs().Mul(hundred).Div(balance)
}
