package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Account is a trading account under prop-firm evaluation.
type Account struct {
	ID             string          `json:"id"`
	Login          string          `json:"login"`            // Broker login
	Server         string          `json:"server,omitempty"` // Broker server name
	InitialBalance decimal.Decimal `json:"initialBalance"`   // Fixed at creation
	Phase          Phase           `json:"phase"`
	TemplateID     string          `json:"templateId,omitempty"`
	Template       *PropFirmRules  `json:"template,omitempty"` // nil when no rule template is assigned
	CreatedAt      time.Time       `json:"createdAt"`
}

// HasTemplate reports whether a rule template is assigned.
func (a *Account) HasTemplate() bool {
	return a.Template != nil
}

// PropFirmRules is a funding firm's rule template, one PhaseRules per phase.
type PropFirmRules struct {
	ID          string               `json:"id"`
	Name        string               `json:"name"`
	AccountSize decimal.Decimal      `json:"accountSize"`
	Phases      map[Phase]PhaseRules `json:"phases"`
}

// ForPhase returns the rules configured for p.
func (r *PropFirmRules) ForPhase(p Phase) (PhaseRules, bool) {
	if r == nil || r.Phases == nil {
		return PhaseRules{}, false
	}
	rules, ok := r.Phases[p]
	return rules, ok
}

// PhaseRules holds the thresholds of a single phase. Percentages are expressed
// in percent (5 means 5%). Optional fields are nil when not configured.
type PhaseRules struct {
	ProfitTarget         *decimal.Decimal       `json:"profitTarget,omitempty"`
	ProfitTargetAmount   *decimal.Decimal       `json:"profitTargetAmount,omitempty"`
	MaxDailyLoss         decimal.Decimal        `json:"maxDailyLoss"`
	MaxDailyLossAmount   decimal.Decimal        `json:"maxDailyLossAmount"`
	MaxOverallLoss       decimal.Decimal        `json:"maxOverallLoss"`
	MaxOverallLossAmount decimal.Decimal        `json:"maxOverallLossAmount"`
	MinTradingDays       *int                   `json:"minTradingDays,omitempty"`
	MaxTradingDays       *int                   `json:"maxTradingDays,omitempty"`
	ConsistencyRules     bool                   `json:"consistencyRules"`
	SimpleProtection     *SimpleProtectionRules `json:"simpleProtection,omitempty"`
}

// SimpleProtectionRules selects which consistency checks apply.
type SimpleProtectionRules struct {
	DailyProtection bool `json:"dailyProtection"`
	TradeProtection bool `json:"tradeProtection"`
}
