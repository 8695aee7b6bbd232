package app

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"propMonitor/internal/domain"
	"propMonitor/internal/ports"
	"propMonitor/internal/risk"
)

// Mock implementations
type mockLogger struct {
	mu         sync.Mutex
	infoMsgs   []string
	warnMsgs   []string
	warnFields []ports.Fields
	errorMsgs  []string
	errs       []error
}

func (m *mockLogger) Debug(ctx context.Context, msg string, fields ...ports.Fields) {}

func (m *mockLogger) Info(ctx context.Context, msg string, fields ...ports.Fields) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.infoMsgs = append(m.infoMsgs, msg)
}

func (m *mockLogger) Warn(ctx context.Context, msg string, fields ...ports.Fields) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.warnMsgs = append(m.warnMsgs, msg)
	m.warnFields = append(m.warnFields, fields...)
}

func (m *mockLogger) Error(ctx context.Context, err error, msg string, fields ...ports.Fields) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errorMsgs = append(m.errorMsgs, msg)
	m.errs = append(m.errs, err)
}

// mockStore is an in-memory account, template and trade repository.
type mockStore struct {
	accounts  map[string]*domain.Account
	templates map[string]*domain.PropFirmRules
	trades    map[string][]*domain.Trade
	updateErr error
	nextID    int
}

func newMockStore() *mockStore {
	return &mockStore{
		accounts:  make(map[string]*domain.Account),
		templates: make(map[string]*domain.PropFirmRules),
		trades:    make(map[string][]*domain.Trade),
	}
}

func (m *mockStore) CreateAccount(ctx context.Context, acc *domain.Account) (string, error) {
	m.nextID++
	acc.ID = fmt.Sprintf("acc-%d", m.nextID)
	stored := *acc
	m.accounts[acc.ID] = &stored
	return acc.ID, nil
}

func (m *mockStore) FindAccountByID(ctx context.Context, id string) (*domain.Account, error) {
	acc, ok := m.accounts[id]
	if !ok {
		return nil, nil
	}
	out := *acc
	out.Template = m.templates[acc.TemplateID]
	return &out, nil
}

func (m *mockStore) ListAccounts(ctx context.Context) ([]*domain.Account, error) {
	out := make([]*domain.Account, 0, len(m.accounts))
	for _, a := range m.accounts {
		out = append(out, a)
	}
	return out, nil
}

func (m *mockStore) UpdatePhase(ctx context.Context, id string, phase domain.Phase) error {
	if m.updateErr != nil {
		return m.updateErr
	}
	acc, ok := m.accounts[id]
	if !ok {
		return ports.ErrNotFound
	}
	acc.Phase = phase
	return nil
}

func (m *mockStore) SaveTemplate(ctx context.Context, tpl *domain.PropFirmRules) (string, error) {
	if tpl.ID == "" {
		tpl.ID = "tpl-" + tpl.Name
	}
	m.templates[tpl.ID] = tpl
	return tpl.ID, nil
}

func (m *mockStore) FindTemplateByID(ctx context.Context, id string) (*domain.PropFirmRules, error) {
	return m.templates[id], nil
}

func (m *mockStore) ListTemplates(ctx context.Context) ([]*domain.PropFirmRules, error) {
	out := make([]*domain.PropFirmRules, 0, len(m.templates))
	for _, t := range m.templates {
		out = append(out, t)
	}
	return out, nil
}

func (m *mockStore) SaveTrades(ctx context.Context, accountID string, trades []*domain.Trade) (int, error) {
	m.trades[accountID] = append(m.trades[accountID], trades...)
	return len(trades), nil
}

func (m *mockStore) FindByAccount(ctx context.Context, accountID string) ([]*domain.Trade, error) {
	return m.trades[accountID], nil
}

// countingEvaluator wraps the real engine and counts calls.
type countingEvaluator struct {
	inner ports.RuleEvaluator
	calls int
}

func (c *countingEvaluator) Evaluate(account *domain.Account, trades []*domain.Trade) (*domain.RuleEngineResult, error) {
	c.calls++
	return c.inner.Evaluate(account, trades)
}

type mockRecorder struct {
	evaluations int
	failures    []error
}

func (m *mockRecorder) RecordEvaluation(account *domain.Account, result *domain.RuleEngineResult, took time.Duration) {
	m.evaluations++
}

func (m *mockRecorder) RecordEvaluationError(account *domain.Account, err error) {
	m.failures = append(m.failures, err)
}

var testNow = time.Date(2024, 6, 14, 15, 0, 0, 0, time.UTC)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func decPtr(s string) *decimal.Decimal {
	d := dec(s)
	return &d
}

func intPtr(i int) *int {
	return &i
}

func challengeTemplate() *domain.PropFirmRules {
	base := domain.PhaseRules{
		MaxDailyLoss:         dec("5"),
		MaxDailyLossAmount:   dec("500"),
		MaxOverallLoss:       dec("10"),
		MaxOverallLossAmount: dec("1000"),
	}
	p1 := base
	p1.ProfitTarget = decPtr("8")
	p1.ProfitTargetAmount = decPtr("800")
	p1.MinTradingDays = intPtr(2)
	funded := base
	funded.ConsistencyRules = true

	return &domain.PropFirmRules{
		ID:          "challenge",
		Name:        "Challenge 10K",
		AccountSize: dec("10000"),
		Phases: map[domain.Phase]domain.PhaseRules{
			domain.Phase1:      p1,
			domain.PhaseFunded: funded,
		},
	}
}

type fixture struct {
	svc       *MonitoringService
	store     *mockStore
	logger    *mockLogger
	evaluator *countingEvaluator
	recorder  *mockRecorder
}

func newFixture(t *testing.T, cacheTTL time.Duration) *fixture {
	t.Helper()
	f := &fixture{
		store:     newMockStore(),
		logger:    &mockLogger{},
		evaluator: &countingEvaluator{inner: risk.NewEngine(risk.WithClock(func() time.Time { return testNow }))},
		recorder:  &mockRecorder{},
	}
	svc, err := NewMonitoringService(ServiceConfig{
		Logger:    f.logger,
		Accounts:  f.store,
		Templates: f.store,
		Trades:    f.store,
		Evaluator: f.evaluator,
		Recorder:  f.recorder,
		CacheTTL:  cacheTTL,
		Clock:     func() time.Time { return testNow },
	})
	require.NoError(t, err)
	f.svc = svc

	_, err = svc.SyncTemplates(context.Background(), []*domain.PropFirmRules{challengeTemplate()})
	require.NoError(t, err)
	return f
}

func (f *fixture) createAccount(t *testing.T, phase domain.Phase) *domain.Account {
	t.Helper()
	acc, err := f.svc.CreateAccount(context.Background(), NewAccountRequest{
		Login:          "7001234",
		Server:         "Broker-Live",
		InitialBalance: dec("10000"),
		TemplateID:     "challenge",
		Phase:          phase,
	})
	require.NoError(t, err)
	return acc
}

func newTrade(ticket int64, open time.Time, profit string) *domain.Trade {
	closeTime := open.Add(30 * time.Minute)
	return &domain.Trade{
		Ticket:    ticket,
		Symbol:    "GBPUSD",
		Side:      domain.Buy,
		Volume:    dec("1"),
		OpenPrice: dec("1.2710"),
		OpenTime:  open,
		CloseTime: &closeTime,
		Profit:    dec(profit),
	}
}

func TestNewMonitoringService_MissingDependencies(t *testing.T) {
	_, err := NewMonitoringService(ServiceConfig{Logger: &mockLogger{}})
	assert.Error(t, err)
}

func TestMonitoringService_CreateAccount(t *testing.T) {
	tests := []struct {
		name    string
		req     NewAccountRequest
		wantErr error
	}{
		{
			name: "valid defaults to phase 1",
			req:  NewAccountRequest{Login: "1", InitialBalance: dec("10000"), TemplateID: "challenge"},
		},
		{
			name:    "missing login",
			req:     NewAccountRequest{InitialBalance: dec("10000")},
			wantErr: ports.ErrInvalidAccount,
		},
		{
			name:    "zero balance",
			req:     NewAccountRequest{Login: "1", InitialBalance: decimal.Zero},
			wantErr: ports.ErrInvalidAccount,
		},
		{
			name:    "unknown phase",
			req:     NewAccountRequest{Login: "1", InitialBalance: dec("1"), Phase: "PHASE_9"},
			wantErr: ports.ErrInvalidAccount,
		},
		{
			name:    "unknown template",
			req:     NewAccountRequest{Login: "1", InitialBalance: dec("1"), TemplateID: "nope"},
			wantErr: ports.ErrNotFound,
		},
		{
			name:    "template lacks phase",
			req:     NewAccountRequest{Login: "1", InitialBalance: dec("1"), TemplateID: "challenge", Phase: domain.Phase2},
			wantErr: ports.ErrInvalidAccount,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, 0)
			acc, err := f.svc.CreateAccount(context.Background(), tt.req)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				assert.Nil(t, acc)
				return
			}
			require.NoError(t, err)
			assert.NotEmpty(t, acc.ID)
			assert.Equal(t, domain.Phase1, acc.Phase)
			assert.Equal(t, testNow, acc.CreatedAt)
			assert.True(t, acc.HasTemplate())
		})
	}
}

func TestMonitoringService_ImportTrades(t *testing.T) {
	f := newFixture(t, 0)
	acc := f.createAccount(t, domain.Phase1)
	ctx := context.Background()

	n, err := f.svc.ImportTrades(ctx, acc.ID, []*domain.Trade{
		newTrade(1, testNow.Add(-26*time.Hour), "150"),
		newTrade(2, testNow.Add(-2*time.Hour), "-40"),
	})
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	trades, err := f.svc.ListTrades(ctx, acc.ID)
	require.NoError(t, err)
	assert.Len(t, trades, 2)
	assert.Contains(t, f.logger.infoMsgs, "Trades imported")
}

func TestMonitoringService_ImportTrades_Rejects(t *testing.T) {
	f := newFixture(t, 0)
	acc := f.createAccount(t, domain.Phase1)
	ctx := context.Background()

	_, err := f.svc.ImportTrades(ctx, "missing", nil)
	assert.ErrorIs(t, err, ports.ErrNotFound)

	bad := newTrade(3, testNow, "10")
	bad.Side = "HOLD"
	_, err = f.svc.ImportTrades(ctx, acc.ID, []*domain.Trade{bad})
	assert.ErrorIs(t, err, ports.ErrInvalidTrades)
	assert.Empty(t, f.store.trades[acc.ID])
}

func TestValidateTrades(t *testing.T) {
	backwards := newTrade(5, testNow, "1")
	early := testNow.Add(-time.Minute)
	backwards.CloseTime = &early

	tests := []struct {
		name   string
		trades []*domain.Trade
		ok     bool
	}{
		{name: "valid", trades: []*domain.Trade{newTrade(1, testNow, "1"), newTrade(2, testNow, "-1")}, ok: true},
		{name: "empty list", trades: nil, ok: true},
		{name: "nil entry", trades: []*domain.Trade{nil}},
		{name: "duplicate ticket", trades: []*domain.Trade{newTrade(1, testNow, "1"), newTrade(1, testNow, "2")}},
		{name: "no ticket", trades: []*domain.Trade{newTrade(0, testNow, "1")}},
		{name: "closes before opening", trades: []*domain.Trade{backwards}},
		{name: "no open time", trades: []*domain.Trade{newTrade(4, time.Time{}, "1")}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateTrades(tt.trades)
			if tt.ok {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, ports.ErrInvalidTrades)
			}
		})
	}
}

func TestMonitoringService_EvaluateAccount(t *testing.T) {
	f := newFixture(t, 0)
	acc := f.createAccount(t, domain.Phase1)
	ctx := context.Background()
	_, err := f.svc.ImportTrades(ctx, acc.ID, []*domain.Trade{
		newTrade(1, testNow.Add(-50*time.Hour), "500"),
		newTrade(2, testNow.Add(-26*time.Hour), "400"),
	})
	require.NoError(t, err)

	result, err := f.svc.EvaluateAccount(ctx, acc.ID)
	require.NoError(t, err)

	assert.True(t, result.IsCompliant)
	assert.True(t, dec("900").Equal(result.Metrics.TotalProfit))
	assert.True(t, result.PhaseProgress.CanAdvance)
	assert.Equal(t, 1, f.recorder.evaluations)
	assert.Contains(t, f.logger.infoMsgs, "Account evaluated")
}

func TestMonitoringService_EvaluateAccount_NotFound(t *testing.T) {
	f := newFixture(t, 0)
	_, err := f.svc.EvaluateAccount(context.Background(), "ghost")
	assert.ErrorIs(t, err, ports.ErrNotFound)
	assert.Zero(t, f.evaluator.calls)
}

func TestMonitoringService_EvaluateAccount_NoTemplate(t *testing.T) {
	f := newFixture(t, 0)
	acc, err := f.svc.CreateAccount(context.Background(), NewAccountRequest{Login: "9", InitialBalance: dec("5000")})
	require.NoError(t, err)

	_, err = f.svc.EvaluateAccount(context.Background(), acc.ID)

	assert.ErrorIs(t, err, ports.ErrConfigurationError)
	require.Len(t, f.recorder.failures, 1)
	assert.Contains(t, f.logger.warnMsgs, "Account could not be evaluated")
	require.NotEmpty(t, f.logger.warnFields)
	assert.Equal(t, err.Error(), f.logger.warnFields[len(f.logger.warnFields)-1]["error"])
}

type failingEvaluator struct{ err error }

func (e failingEvaluator) Evaluate(account *domain.Account, trades []*domain.Trade) (*domain.RuleEngineResult, error) {
	return nil, e.err
}

func TestMonitoringService_Evaluate_LogsUnexpectedErrors(t *testing.T) {
	f := newFixture(t, 0)
	boom := errors.New("evaluator crashed")
	f.svc.evaluator = failingEvaluator{err: boom}

	_, err := f.svc.Evaluate(context.Background(), &domain.Account{ID: "adhoc"}, nil)

	assert.ErrorIs(t, err, boom)
	assert.Contains(t, f.logger.errorMsgs, "Account could not be evaluated")
	assert.Contains(t, f.logger.errs, boom)
	assert.NotContains(t, f.logger.warnMsgs, "Account could not be evaluated")
}

func TestMonitoringService_EvaluateAccount_Cache(t *testing.T) {
	f := newFixture(t, time.Minute)
	acc := f.createAccount(t, domain.Phase1)
	ctx := context.Background()
	_, err := f.svc.ImportTrades(ctx, acc.ID, []*domain.Trade{newTrade(1, testNow.Add(-3*time.Hour), "100")})
	require.NoError(t, err)

	first, err := f.svc.EvaluateAccount(ctx, acc.ID)
	require.NoError(t, err)
	second, err := f.svc.EvaluateAccount(ctx, acc.ID)
	require.NoError(t, err)
	assert.Same(t, first, second)
	assert.Equal(t, 1, f.evaluator.calls)

	// Importing drops the account's cached verdicts.
	assert.Equal(t, 1, f.svc.cache.ItemCount())
	_, err = f.svc.ImportTrades(ctx, acc.ID, []*domain.Trade{newTrade(2, testNow.Add(-time.Hour), "-700")})
	require.NoError(t, err)
	assert.Zero(t, f.svc.cache.ItemCount())
	third, err := f.svc.EvaluateAccount(ctx, acc.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, f.evaluator.calls)
	assert.False(t, third.IsCompliant)
	assert.Contains(t, f.logger.warnMsgs, "Account breached critical rules")

	// Template sync flushes the cache.
	_, err = f.svc.SyncTemplates(ctx, []*domain.PropFirmRules{challengeTemplate()})
	require.NoError(t, err)
	_, err = f.svc.EvaluateAccount(ctx, acc.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, f.evaluator.calls)
}

func TestMonitoringService_Evaluate_Stateless(t *testing.T) {
	f := newFixture(t, time.Minute)
	account := &domain.Account{
		ID:             "adhoc",
		InitialBalance: dec("10000"),
		Phase:          domain.PhaseFunded,
		Template:       challengeTemplate(),
	}

	trades := []*domain.Trade{
		newTrade(1, testNow.Add(-26*time.Hour), "50"),
		newTrade(2, testNow.Add(-time.Hour), "50"),
	}

	result, err := f.svc.Evaluate(context.Background(), account, trades)
	require.NoError(t, err)
	assert.True(t, result.IsCompliant)
	assert.False(t, result.PhaseProgress.CanAdvance)
	assert.Empty(t, f.store.accounts)
}

func TestMonitoringService_AdvancePhase(t *testing.T) {
	tests := []struct {
		name      string
		phase     domain.Phase
		trades    []*domain.Trade
		updateErr error
		wantErr   error
		wantPhase domain.Phase
	}{
		{
			name:  "target and days met",
			phase: domain.Phase1,
			trades: []*domain.Trade{
				newTrade(1, testNow.Add(-50*time.Hour), "500"),
				newTrade(2, testNow.Add(-26*time.Hour), "400"),
			},
			wantPhase: domain.Phase2,
		},
		{
			name:      "target not met",
			phase:     domain.Phase1,
			trades:    []*domain.Trade{newTrade(1, testNow.Add(-50*time.Hour), "100")},
			wantErr:   ports.ErrCannotAdvance,
			wantPhase: domain.Phase1,
		},
		{
			name:      "funded is terminal",
			phase:     domain.PhaseFunded,
			wantErr:   ports.ErrPhaseTerminal,
			wantPhase: domain.PhaseFunded,
		},
		{
			name:  "storage failure",
			phase: domain.Phase1,
			trades: []*domain.Trade{
				newTrade(1, testNow.Add(-50*time.Hour), "500"),
				newTrade(2, testNow.Add(-26*time.Hour), "400"),
			},
			updateErr: ports.ErrUpdateFailed,
			wantErr:   ports.ErrUpdateFailed,
			wantPhase: domain.Phase1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, 0)
			ctx := context.Background()
			acc := f.createAccount(t, tt.phase)
			if len(tt.trades) > 0 {
				_, err := f.svc.ImportTrades(ctx, acc.ID, tt.trades)
				require.NoError(t, err)
			}
			f.store.updateErr = tt.updateErr

			updated, _, err := f.svc.AdvancePhase(ctx, acc.ID)

			if tt.wantErr != nil {
				assert.True(t, errors.Is(err, tt.wantErr), "got %v", err)
			} else {
				require.NoError(t, err)
				assert.Equal(t, tt.wantPhase, updated.Phase)
			}
			stored, err := f.svc.GetAccount(ctx, acc.ID)
			require.NoError(t, err)
			assert.Equal(t, tt.wantPhase, stored.Phase)
		})
	}
}
