// Package templates reads prop firm rule templates from YAML, JSON or TOML files.
package templates

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/spf13/viper"

	"propMonitor/internal/domain"
	"propMonitor/internal/ports"
)

var hundred = decimal.NewFromInt(100)

// templateFile mirrors one entry of the "templates" list. Numbers are decoded
// as strings so they convert to decimals without float rounding.
type templateFile struct {
	ID          string               `mapstructure:"id"`
	Name        string               `mapstructure:"name"`
	AccountSize string               `mapstructure:"accountSize"`
	Phases      map[string]phaseFile `mapstructure:"phases"`
}

type phaseFile struct {
	ProfitTarget         string          `mapstructure:"profitTarget"`
	ProfitTargetAmount   string          `mapstructure:"profitTargetAmount"`
	MaxDailyLoss         string          `mapstructure:"maxDailyLoss"`
	MaxDailyLossAmount   string          `mapstructure:"maxDailyLossAmount"`
	MaxOverallLoss       string          `mapstructure:"maxOverallLoss"`
	MaxOverallLossAmount string          `mapstructure:"maxOverallLossAmount"`
	MinTradingDays       *int            `mapstructure:"minTradingDays"`
	MaxTradingDays       *int            `mapstructure:"maxTradingDays"`
	ConsistencyRules     bool            `mapstructure:"consistencyRules"`
	SimpleProtection     *protectionFile `mapstructure:"simpleProtection"`
}

type protectionFile struct {
	DailyProtection bool `mapstructure:"dailyProtection"`
	TradeProtection bool `mapstructure:"tradeProtection"`
}

// Loader converts template files into domain templates.
type Loader struct {
	logger ports.Logger
}

// NewLoader creates a new template loader.
func NewLoader(logger ports.Logger) *Loader {
	return &Loader{logger: logger}
}

// LoadFile reads every template from path. The format follows the file extension.
func (l *Loader) LoadFile(ctx context.Context, path string) ([]*domain.PropFirmRules, error) {
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("%w: reading %s: %w", ports.ErrTemplateLoad, filepath.Base(path), err)
	}
	return l.decode(ctx, v, path)
}

// Load reads templates from r in the given format ("yaml", "json", "toml").
func (l *Loader) Load(ctx context.Context, r io.Reader, format string) ([]*domain.PropFirmRules, error) {
	v := viper.New()
	v.SetConfigType(format)
	if err := v.ReadConfig(r); err != nil {
		return nil, fmt.Errorf("%w: parsing %s input: %w", ports.ErrTemplateLoad, format, err)
	}
	return l.decode(ctx, v, format+" input")
}

func (l *Loader) decode(ctx context.Context, v *viper.Viper, source string) ([]*domain.PropFirmRules, error) {
	var files []templateFile
	if err := v.UnmarshalKey("templates", &files); err != nil {
		return nil, fmt.Errorf("%w: decoding %s: %w", ports.ErrTemplateLoad, source, err)
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("%w: %s defines no templates", ports.ErrTemplateLoad, source)
	}

	out := make([]*domain.PropFirmRules, 0, len(files))
	seen := make(map[string]bool, len(files))
	for i, f := range files {
		tpl, err := f.toDomain()
		if err != nil {
			return nil, fmt.Errorf("%w: template #%d (%s): %w", ports.ErrTemplateLoad, i+1, f.Name, err)
		}
		if tpl.ID != "" {
			if seen[tpl.ID] {
				return nil, fmt.Errorf("%w: duplicate template id %q", ports.ErrTemplateLoad, tpl.ID)
			}
			seen[tpl.ID] = true
		}
		out = append(out, tpl)
	}

	if l.logger != nil {
		l.logger.Info(ctx, "Rule templates loaded", map[string]interface{}{"source": source, "count": len(out)})
	}
	return out, nil
}

func (f templateFile) toDomain() (*domain.PropFirmRules, error) {
	if strings.TrimSpace(f.Name) == "" {
		return nil, fmt.Errorf("name is required")
	}
	size, err := parseDecimal("accountSize", f.AccountSize)
	if err != nil {
		return nil, err
	}
	if size == nil || !size.IsPositive() {
		return nil, fmt.Errorf("accountSize must be positive")
	}
	if len(f.Phases) == 0 {
		return nil, fmt.Errorf("at least one phase is required")
	}

	tpl := &domain.PropFirmRules{
		ID:          f.ID,
		Name:        f.Name,
		AccountSize: *size,
		Phases:      make(map[domain.Phase]domain.PhaseRules, len(f.Phases)),
	}
	for key, pf := range f.Phases {
		// viper lower-cases map keys; ParsePhase is case-insensitive.
		phase, err := domain.ParsePhase(key)
		if err != nil {
			return nil, err
		}
		rules, err := pf.toDomain(*size)
		if err != nil {
			return nil, fmt.Errorf("phase %s: %w", phase, err)
		}
		tpl.Phases[phase] = rules
	}
	return tpl, nil
}

func (p phaseFile) toDomain(accountSize decimal.Decimal) (domain.PhaseRules, error) {
	var rules domain.PhaseRules

	target, err := parseDecimal("profitTarget", p.ProfitTarget)
	if err != nil {
		return rules, err
	}
	targetAmount, err := parseDecimal("profitTargetAmount", p.ProfitTargetAmount)
	if err != nil {
		return rules, err
	}
	rules.ProfitTarget, rules.ProfitTargetAmount = pair(target, targetAmount, accountSize)

	dailyPct, err := parseDecimal("maxDailyLoss", p.MaxDailyLoss)
	if err != nil {
		return rules, err
	}
	dailyAmt, err := parseDecimal("maxDailyLossAmount", p.MaxDailyLossAmount)
	if err != nil {
		return rules, err
	}
	daily, dailyAmount := pair(dailyPct, dailyAmt, accountSize)
	if daily == nil || !daily.IsPositive() {
		return rules, fmt.Errorf("maxDailyLoss must be positive")
	}
	rules.MaxDailyLoss, rules.MaxDailyLossAmount = *daily, *dailyAmount

	overallPct, err := parseDecimal("maxOverallLoss", p.MaxOverallLoss)
	if err != nil {
		return rules, err
	}
	overallAmt, err := parseDecimal("maxOverallLossAmount", p.MaxOverallLossAmount)
	if err != nil {
		return rules, err
	}
	overall, overallAmount := pair(overallPct, overallAmt, accountSize)
	if overall == nil || !overall.IsPositive() {
		return rules, fmt.Errorf("maxOverallLoss must be positive")
	}
	rules.MaxOverallLoss, rules.MaxOverallLossAmount = *overall, *overallAmount

	if p.MinTradingDays != nil && *p.MinTradingDays < 0 {
		return rules, fmt.Errorf("minTradingDays cannot be negative")
	}
	if p.MaxTradingDays != nil && p.MinTradingDays != nil && *p.MaxTradingDays < *p.MinTradingDays {
		return rules, fmt.Errorf("maxTradingDays %d is below minTradingDays %d", *p.MaxTradingDays, *p.MinTradingDays)
	}
	rules.MinTradingDays = p.MinTradingDays
	rules.MaxTradingDays = p.MaxTradingDays
	rules.ConsistencyRules = p.ConsistencyRules
	if p.SimpleProtection != nil {
		rules.SimpleProtection = &domain.SimpleProtectionRules{
			DailyProtection: p.SimpleProtection.DailyProtection,
			TradeProtection: p.SimpleProtection.TradeProtection,
		}
	}
	return rules, nil
}

// pair fills in whichever of percent/amount is missing from the other.
func pair(pct, amount *decimal.Decimal, accountSize decimal.Decimal) (*decimal.Decimal, *decimal.Decimal) {
	switch {
	case pct == nil && amount == nil:
		return nil, nil
	case pct == nil:
		p := amount.Mul(hundred).Div(accountSize)
		return &p, amount
	case amount == nil:
		a := pct.Mul(accountSize).Div(hundred)
		return pct, &a
	default:
		return pct, amount
	}
}

func parseDecimal(field, raw string) (*decimal.Decimal, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return nil, fmt.Errorf("%s: invalid number %q", field, raw)
	}
	return &d, nil
}
