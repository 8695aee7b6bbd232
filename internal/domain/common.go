package domain

import (
	"fmt"
	"strings"
)

// OrderSide represents the side of a position (BUY or SELL).
type OrderSide string

const (
	Buy  OrderSide = "BUY"
	Sell OrderSide = "SELL"
)

// ParseSide accepts the spellings found in MT5 reports ("buy", "Sell", "BUY").
func ParseSide(s string) (OrderSide, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "BUY":
		return Buy, nil
	case "SELL":
		return Sell, nil
	default:
		return "", fmt.Errorf("unknown order side %q", s)
	}
}

// Phase is one of the sequential evaluation stages of a funded account.
type Phase string

const (
	Phase1      Phase = "PHASE_1"
	Phase2      Phase = "PHASE_2"
	PhaseFunded Phase = "FUNDED"
)

// phaseOrder is the only valid progression.
var phaseOrder = []Phase{Phase1, Phase2, PhaseFunded}

// Phases returns every phase in progression order.
func Phases() []Phase {
	out := make([]Phase, len(phaseOrder))
	copy(out, phaseOrder)
	return out
}

// ParsePhase converts a stored or user supplied string into a Phase.
func ParsePhase(s string) (Phase, error) {
	p := Phase(strings.ToUpper(strings.TrimSpace(s)))
	if !p.Valid() {
		return "", fmt.Errorf("unknown phase %q", s)
	}
	return p, nil
}

// Valid reports whether p is one of the known phases.
func (p Phase) Valid() bool {
	return p.index() >= 0
}

// Next returns the phase that follows p. ok is false for FUNDED and unknown phases.
func (p Phase) Next() (next Phase, ok bool) {
	i := p.index()
	if i < 0 || i == len(phaseOrder)-1 {
		return "", false
	}
	return phaseOrder[i+1], true
}

// IsTerminal reports whether no phase follows p.
func (p Phase) IsTerminal() bool {
	_, ok := p.Next()
	return !ok
}

func (p Phase) index() int {
	for i, candidate := range phaseOrder {
		if candidate == p {
			return i
		}
	}
	return -1
}

// Severity grades a rule violation.
type Severity string

const (
	// SeverityWarning marks an unmet soft requirement. It blocks advancement only.
	SeverityWarning Severity = "WARNING"
	// SeverityCritical marks a breached hard risk rule.
	SeverityCritical Severity = "CRITICAL"
)

// RuleType tags the rule that produced a violation.
type RuleType string

const (
	RuleDailyLoss       RuleType = "DAILY_LOSS"
	RuleOverallLoss     RuleType = "OVERALL_LOSS"
	RuleDailyProtection RuleType = "DAILY_PROTECTION"
	RuleTradeProtection RuleType = "TRADE_PROTECTION"
	RuleMinTradingDays  RuleType = "MIN_TRADING_DAYS"
)
