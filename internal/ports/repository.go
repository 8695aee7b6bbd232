package ports

import (
	"context"

	"propMonitor/internal/domain"
)

// AccountRepository defines the interface for storing and retrieving monitored accounts.
type AccountRepository interface {
	// CreateAccount saves a new account and returns its assigned ID.
	CreateAccount(ctx context.Context, acc *domain.Account) (string, error)
	// FindAccountByID retrieves an account with its rule template attached (if assigned).
	// Returns nil, nil if not found.
	FindAccountByID(ctx context.Context, id string) (*domain.Account, error)
	// ListAccounts retrieves all accounts, ordered by creation time.
	ListAccounts(ctx context.Context) ([]*domain.Account, error)
	// UpdatePhase moves an account to a new phase.
	UpdatePhase(ctx context.Context, id string, phase domain.Phase) error
}

// TemplateRepository defines the interface for storing prop firm rule templates.
type TemplateRepository interface {
	// SaveTemplate inserts or replaces a template and returns its ID.
	SaveTemplate(ctx context.Context, tpl *domain.PropFirmRules) (string, error)
	// FindTemplateByID retrieves a template. Returns nil, nil if not found.
	FindTemplateByID(ctx context.Context, id string) (*domain.PropFirmRules, error)
	// ListTemplates retrieves all templates ordered by name.
	ListTemplates(ctx context.Context) ([]*domain.PropFirmRules, error)
}

// TradeRepository defines the interface for storing and retrieving account trades.
type TradeRepository interface {
	// SaveTrades upserts trades for an account keyed by broker ticket and
	// returns the number of rows written.
	SaveTrades(ctx context.Context, accountID string, trades []*domain.Trade) (int, error)
	// FindByAccount retrieves all trades of an account ordered by open time.
	FindByAccount(ctx context.Context, accountID string) ([]*domain.Trade, error)
}
