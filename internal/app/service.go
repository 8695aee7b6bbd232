package app

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"github.com/shopspring/decimal"

	"propMonitor/internal/domain"
	"propMonitor/internal/ports"
)

// MonitoringService orchestrates account storage, trade imports and rule evaluation.
type MonitoringService struct {
	logger    ports.Logger
	accounts  ports.AccountRepository
	templates ports.TemplateRepository
	trades    ports.TradeRepository
	evaluator ports.RuleEvaluator
	recorder  ports.EvaluationRecorder

	cache *gocache.Cache // nil when caching is disabled
	now   func() time.Time
}

// ServiceConfig holds the dependencies of a MonitoringService.
type ServiceConfig struct {
	Logger    ports.Logger
	Accounts  ports.AccountRepository
	Templates ports.TemplateRepository
	Trades    ports.TradeRepository
	Evaluator ports.RuleEvaluator
	Recorder  ports.EvaluationRecorder // optional
	CacheTTL  time.Duration            // 0 disables the evaluation cache
	Clock     func() time.Time         // optional, defaults to time.Now
}

// NewMonitoringService creates a new application service instance.
func NewMonitoringService(cfg ServiceConfig) (*MonitoringService, error) {
	if cfg.Logger == nil || cfg.Accounts == nil || cfg.Templates == nil || cfg.Trades == nil || cfg.Evaluator == nil {
		return nil, fmt.Errorf("missing required dependencies for MonitoringService")
	}
	if cfg.CacheTTL < 0 {
		return nil, fmt.Errorf("cache TTL cannot be negative")
	}

	s := &MonitoringService{
		logger:    cfg.Logger,
		accounts:  cfg.Accounts,
		templates: cfg.Templates,
		trades:    cfg.Trades,
		evaluator: cfg.Evaluator,
		recorder:  cfg.Recorder,
		now:       cfg.Clock,
	}
	if s.now == nil {
		s.now = time.Now
	}
	if cfg.CacheTTL > 0 {
		s.cache = gocache.New(cfg.CacheTTL, 2*cfg.CacheTTL)
	}
	return s, nil
}

// --- Templates ---

// SyncTemplates upserts templates, typically the ones read from the templates file at startup.
func (s *MonitoringService) SyncTemplates(ctx context.Context, tpls []*domain.PropFirmRules) (int, error) {
	saved := 0
	for _, tpl := range tpls {
		if tpl == nil {
			continue
		}
		if _, err := s.templates.SaveTemplate(ctx, tpl); err != nil {
			s.logger.Error(ctx, err, "Failed to save template", map[string]interface{}{"template": tpl.Name})
			return saved, err
		}
		saved++
	}
	if s.cache != nil {
		// Rule changes invalidate every cached verdict.
		s.cache.Flush()
	}
	s.logger.Info(ctx, "Templates synchronized", map[string]interface{}{"count": saved})
	return saved, nil
}

// ListTemplates returns every stored template.
func (s *MonitoringService) ListTemplates(ctx context.Context) ([]*domain.PropFirmRules, error) {
	return s.templates.ListTemplates(ctx)
}

// --- Accounts ---

// NewAccountRequest carries the fields needed to register an account.
type NewAccountRequest struct {
	Login          string
	Server         string
	InitialBalance decimal.Decimal
	TemplateID     string
	Phase          domain.Phase // defaults to PHASE_1
}

// CreateAccount validates and stores a new account.
func (s *MonitoringService) CreateAccount(ctx context.Context, req NewAccountRequest) (*domain.Account, error) {
	if strings.TrimSpace(req.Login) == "" {
		return nil, fmt.Errorf("%w: login is required", ports.ErrInvalidAccount)
	}
	if !req.InitialBalance.IsPositive() {
		return nil, fmt.Errorf("%w: initial balance must be positive, got %s", ports.ErrInvalidAccount, req.InitialBalance)
	}
	phase := req.Phase
	if phase == "" {
		phase = domain.Phase1
	}
	if !phase.Valid() {
		return nil, fmt.Errorf("%w: unknown phase %q", ports.ErrInvalidAccount, phase)
	}

	acc := &domain.Account{
		Login:          strings.TrimSpace(req.Login),
		Server:         strings.TrimSpace(req.Server),
		InitialBalance: req.InitialBalance,
		Phase:          phase,
		TemplateID:     req.TemplateID,
		CreatedAt:      s.now().UTC(),
	}
	if req.TemplateID != "" {
		tpl, err := s.templates.FindTemplateByID(ctx, req.TemplateID)
		if err != nil {
			return nil, err
		}
		if tpl == nil {
			return nil, fmt.Errorf("template %s: %w", req.TemplateID, ports.ErrNotFound)
		}
		if _, ok := tpl.ForPhase(phase); !ok {
			return nil, fmt.Errorf("%w: template %q has no rules for %s", ports.ErrInvalidAccount, tpl.Name, phase)
		}
		acc.Template = tpl
	}

	if _, err := s.accounts.CreateAccount(ctx, acc); err != nil {
		s.logger.Error(ctx, err, "Failed to create account", map[string]interface{}{"login": acc.Login})
		return nil, err
	}
	s.logger.Info(ctx, "Account created", map[string]interface{}{
		"accountID": acc.ID, "login": acc.Login, "phase": acc.Phase, "balance": acc.InitialBalance.String(),
	})
	return acc, nil
}

// GetAccount returns the account or a wrapped ports.ErrNotFound.
func (s *MonitoringService) GetAccount(ctx context.Context, accountID string) (*domain.Account, error) {
	acc, err := s.accounts.FindAccountByID(ctx, accountID)
	if err != nil {
		return nil, err
	}
	if acc == nil {
		return nil, fmt.Errorf("account %s: %w", accountID, ports.ErrNotFound)
	}
	return acc, nil
}

// ListAccounts returns every registered account.
func (s *MonitoringService) ListAccounts(ctx context.Context) ([]*domain.Account, error) {
	return s.accounts.ListAccounts(ctx)
}

// --- Trades ---

// ImportTrades validates and stores trades for an account. Trades already
// stored under the same ticket are replaced.
func (s *MonitoringService) ImportTrades(ctx context.Context, accountID string, trades []*domain.Trade) (int, error) {
	if _, err := s.GetAccount(ctx, accountID); err != nil {
		return 0, err
	}
	if err := ValidateTrades(trades); err != nil {
		return 0, err
	}

	n, err := s.trades.SaveTrades(ctx, accountID, trades)
	if err != nil {
		s.logger.Error(ctx, err, "Failed to import trades", map[string]interface{}{"accountID": accountID})
		return 0, err
	}
	s.forget(accountID)
	s.logger.Info(ctx, "Trades imported", map[string]interface{}{"accountID": accountID, "count": n})
	return n, nil
}

// ListTrades returns the stored trades of an account.
func (s *MonitoringService) ListTrades(ctx context.Context, accountID string) ([]*domain.Trade, error) {
	if _, err := s.GetAccount(ctx, accountID); err != nil {
		return nil, err
	}
	return s.trades.FindByAccount(ctx, accountID)
}

// ValidateTrades rejects records the evaluation cannot interpret.
func ValidateTrades(trades []*domain.Trade) error {
	seen := make(map[int64]bool, len(trades))
	for i, t := range trades {
		if t == nil {
			return fmt.Errorf("%w: trade #%d is empty", ports.ErrInvalidTrades, i+1)
		}
		switch {
		case t.Ticket <= 0:
			return fmt.Errorf("%w: trade #%d has no ticket", ports.ErrInvalidTrades, i+1)
		case seen[t.Ticket]:
			return fmt.Errorf("%w: ticket %d appears twice", ports.ErrInvalidTrades, t.Ticket)
		case t.Symbol == "":
			return fmt.Errorf("%w: ticket %d has no symbol", ports.ErrInvalidTrades, t.Ticket)
		case t.Side != domain.Buy && t.Side != domain.Sell:
			return fmt.Errorf("%w: ticket %d has unknown side %q", ports.ErrInvalidTrades, t.Ticket, t.Side)
		case t.OpenTime.IsZero():
			return fmt.Errorf("%w: ticket %d has no open time", ports.ErrInvalidTrades, t.Ticket)
		case t.CloseTime != nil && t.CloseTime.Before(t.OpenTime):
			return fmt.Errorf("%w: ticket %d closes before it opens", ports.ErrInvalidTrades, t.Ticket)
		}
		seen[t.Ticket] = true
	}
	return nil
}

// --- Evaluation ---

// Evaluate runs the rule engine on an ad-hoc account snapshot without touching storage.
func (s *MonitoringService) Evaluate(ctx context.Context, account *domain.Account, trades []*domain.Trade) (*domain.RuleEngineResult, error) {
	return s.evaluate(ctx, account, trades)
}

// EvaluateAccount evaluates a stored account against its stored trades.
// Results are cached per account state and UTC day.
func (s *MonitoringService) EvaluateAccount(ctx context.Context, accountID string) (*domain.RuleEngineResult, error) {
	account, err := s.GetAccount(ctx, accountID)
	if err != nil {
		return nil, err
	}
	trades, err := s.trades.FindByAccount(ctx, accountID)
	if err != nil {
		return nil, err
	}

	key := s.cacheKey(account, trades)
	if s.cache != nil {
		if cached, ok := s.cache.Get(key); ok {
			s.logger.Debug(ctx, "Evaluation served from cache", map[string]interface{}{"accountID": accountID})
			return cached.(*domain.RuleEngineResult), nil
		}
	}

	result, err := s.evaluate(ctx, account, trades)
	if err != nil {
		return nil, err
	}
	if s.cache != nil {
		s.cache.SetDefault(key, result)
	}
	return result, nil
}

func (s *MonitoringService) evaluate(ctx context.Context, account *domain.Account, trades []*domain.Trade) (*domain.RuleEngineResult, error) {
	start := time.Now()
	result, err := s.evaluator.Evaluate(account, trades)
	if err != nil {
		fields := map[string]interface{}{}
		if account != nil {
			fields["accountID"] = account.ID
		}
		if errors.Is(err, ports.ErrConfigurationError) {
			fields["error"] = err.Error()
			s.logger.Warn(ctx, "Account could not be evaluated", fields)
		} else {
			s.logger.Error(ctx, err, "Account could not be evaluated", fields)
		}
		if s.recorder != nil {
			s.recorder.RecordEvaluationError(account, err)
		}
		return nil, err
	}
	took := time.Since(start)

	if s.recorder != nil {
		s.recorder.RecordEvaluation(account, result, took)
	}
	fields := map[string]interface{}{
		"accountID":  account.ID,
		"phase":      account.Phase,
		"compliant":  result.IsCompliant,
		"violations": len(result.Violations),
		"totalPnL":   result.Metrics.TotalProfit.StringFixed(2),
		"progress":   result.PhaseProgress.ProfitProgress.StringFixed(2),
		"canAdvance": result.PhaseProgress.CanAdvance,
	}
	if result.IsCompliant {
		s.logger.Info(ctx, "Account evaluated", fields)
	} else {
		s.logger.Warn(ctx, "Account breached critical rules", fields)
	}
	return result, nil
}

// AdvancePhase moves the account to its next phase when the evaluation allows it.
func (s *MonitoringService) AdvancePhase(ctx context.Context, accountID string) (*domain.Account, *domain.RuleEngineResult, error) {
	account, err := s.GetAccount(ctx, accountID)
	if err != nil {
		return nil, nil, err
	}
	if account.Phase.IsTerminal() {
		return account, nil, fmt.Errorf("account %s in %s: %w", accountID, account.Phase, ports.ErrPhaseTerminal)
	}

	result, err := s.EvaluateAccount(ctx, accountID)
	if err != nil {
		return account, nil, err
	}
	if !result.PhaseProgress.CanAdvance || result.PhaseProgress.NextPhase == nil {
		return account, result, fmt.Errorf("account %s: %w", accountID, ports.ErrCannotAdvance)
	}

	next := *result.PhaseProgress.NextPhase
	if err := s.accounts.UpdatePhase(ctx, accountID, next); err != nil {
		s.logger.Error(ctx, err, "Failed to advance account phase", map[string]interface{}{"accountID": accountID})
		return account, result, err
	}
	s.logger.Info(ctx, "Account advanced to next phase", map[string]interface{}{
		"accountID": accountID, "from": account.Phase, "to": next,
	})
	account.Phase = next
	return account, result, nil
}

// forget drops every cached evaluation of the account.
func (s *MonitoringService) forget(accountID string) {
	if s.cache == nil {
		return
	}
	prefix := accountID + "|"
	for key := range s.cache.Items() {
		if strings.HasPrefix(key, prefix) {
			s.cache.Delete(key)
		}
	}
}

// cacheKey identifies an evaluation input: account phase and template, the
// trades, and the UTC day that "today" resolves to.
func (s *MonitoringService) cacheKey(account *domain.Account, trades []*domain.Trade) string {
	h := sha256.New()
	for _, t := range trades {
		closed := ""
		if t.CloseTime != nil {
			closed = t.CloseTime.UTC().Format(time.RFC3339Nano)
		}
		fmt.Fprintf(h, "%d|%s|%s|%s;", t.Ticket, t.Profit.String(), t.OpenTime.UTC().Format(time.RFC3339Nano), closed)
	}
	return strings.Join([]string{
		account.ID,
		string(account.Phase),
		account.TemplateID,
		account.InitialBalance.String(),
		s.now().UTC().Format("2006-01-02"),
		hex.EncodeToString(h.Sum(nil)),
	}, "|")
}
