package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/mattn/go-sqlite3" // SQLite driver
	"github.com/shopspring/decimal"

	"propMonitor/internal/domain"
	"propMonitor/internal/ports"
)

// Repository implements the account, template and trade repositories using SQLite.
type Repository struct {
	db     *sql.DB
	logger ports.Logger
}

var (
	_ ports.AccountRepository  = (*Repository)(nil)
	_ ports.TemplateRepository = (*Repository)(nil)
	_ ports.TradeRepository    = (*Repository)(nil)
)

// Config holds configuration for the SQLite repository.
type Config struct {
	DBPath string
	Logger ports.Logger
}

// NewRepository creates a new SQLite repository instance.
func NewRepository(cfg Config) (*Repository, error) {
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger is required for SQLite repository")
	}
	dbPath := cfg.DBPath
	if dbPath == "" {
		dbPath = "./data/prop_monitor.db"
	}

	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		err = fmt.Errorf("failed to create data directory '%s': %w: %w", filepath.Dir(dbPath), ports.ErrDBConnection, err)
		cfg.Logger.Error(context.Background(), err, "SQLite repository initialization failed")
		return nil, err
	}

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		err = fmt.Errorf("failed to open database at '%s': %w: %w", dbPath, ports.ErrDBConnection, err)
		cfg.Logger.Error(context.Background(), err, "SQLite repository initialization failed")
		return nil, err
	}

	if err := db.Ping(); err != nil {
		db.Close()
		err = fmt.Errorf("failed to ping database at '%s': %w: %w", dbPath, ports.ErrDBConnection, err)
		cfg.Logger.Error(context.Background(), err, "SQLite repository initialization failed")
		return nil, err
	}

	// A single connection serializes writers; WAL still lets readers proceed.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	cfg.Logger.Info(context.Background(), "SQLite database connection established", map[string]interface{}{"path": dbPath})

	repo := &Repository{db: db, logger: cfg.Logger}
	if err := repo.initializeSchema(context.Background()); err != nil {
		db.Close()
		err = fmt.Errorf("failed to initialize database schema: %w", err)
		cfg.Logger.Error(context.Background(), err, "SQLite repository initialization failed")
		return nil, err
	}
	cfg.Logger.Info(context.Background(), "Database schema initialized/verified")

	return repo, nil
}

// initializeSchema creates tables if they don't exist.
// Money columns are TEXT so decimals round-trip exactly.
func (r *Repository) initializeSchema(ctx context.Context) error {
	const schema = `
	CREATE TABLE IF NOT EXISTS templates (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		account_size TEXT NOT NULL,
		phases TEXT NOT NULL,
		updated_at TIMESTAMP NOT NULL
	);

	CREATE TABLE IF NOT EXISTS accounts (
		id TEXT PRIMARY KEY,
		login TEXT NOT NULL,
		server TEXT NOT NULL DEFAULT '',
		initial_balance TEXT NOT NULL,
		phase TEXT NOT NULL,
		template_id TEXT NULL REFERENCES templates (id),
		created_at TIMESTAMP NOT NULL
	);

	CREATE TABLE IF NOT EXISTS trades (
		id TEXT PRIMARY KEY,
		account_id TEXT NOT NULL REFERENCES accounts (id) ON DELETE CASCADE,
		ticket INTEGER NOT NULL,
		symbol TEXT NOT NULL,
		side TEXT NOT NULL,
		volume TEXT NOT NULL,
		open_price TEXT NOT NULL,
		close_price TEXT NULL,
		open_time TIMESTAMP NOT NULL,
		close_time TIMESTAMP NULL,
		profit TEXT NOT NULL,
		swap TEXT NOT NULL DEFAULT '0',
		commission TEXT NOT NULL DEFAULT '0',
		comment TEXT NOT NULL DEFAULT ''
	);
	CREATE UNIQUE INDEX IF NOT EXISTS idx_accounts_login_server ON accounts (login, server);
	CREATE UNIQUE INDEX IF NOT EXISTS idx_trades_account_ticket ON trades (account_id, ticket);
	CREATE INDEX IF NOT EXISTS idx_trades_account_open_time ON trades (account_id, open_time);
	`
	_, err := r.db.ExecContext(ctx, schema)
	if err != nil {
		return fmt.Errorf("failed to execute schema initialization: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (r *Repository) Close() error {
	if r.db != nil {
		r.logger.Info(context.Background(), "Closing SQLite database connection")
		return r.db.Close()
	}
	return nil
}

// isUniqueViolation reports whether err is a SQLite UNIQUE constraint failure.
func isUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
			sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	return false
}

// --- TemplateRepository Implementation ---

// SaveTemplate inserts or replaces a template and returns its ID.
func (r *Repository) SaveTemplate(ctx context.Context, tpl *domain.PropFirmRules) (string, error) {
	const query = `
	INSERT INTO templates (id, name, account_size, phases, updated_at)
	VALUES (?, ?, ?, ?, ?)
	ON CONFLICT (id) DO UPDATE SET
		name = excluded.name,
		account_size = excluded.account_size,
		phases = excluded.phases,
		updated_at = excluded.updated_at`

	if tpl.ID == "" {
		tpl.ID = uuid.NewString()
	}
	phases, err := json.Marshal(tpl.Phases)
	if err != nil {
		return "", fmt.Errorf("failed to encode phases of template %s: %w", tpl.ID, err)
	}

	_, err = r.db.ExecContext(ctx, query, tpl.ID, tpl.Name, tpl.AccountSize, string(phases), time.Now().UTC())
	if err != nil {
		return "", fmt.Errorf("failed to save template %s: %w: %w", tpl.ID, ports.ErrUpdateFailed, err)
	}
	r.logger.Debug(ctx, "Template saved", map[string]interface{}{"templateID": tpl.ID, "name": tpl.Name, "phases": len(tpl.Phases)})
	return tpl.ID, nil
}

// FindTemplateByID retrieves a template by its ID.
func (r *Repository) FindTemplateByID(ctx context.Context, id string) (*domain.PropFirmRules, error) {
	const query = `SELECT id, name, account_size, phases FROM templates WHERE id = ?`

	tpl, err := scanTemplate(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			r.logger.Debug(ctx, "Template not found by ID", map[string]interface{}{"templateID": id})
			return nil, nil
		}
		return nil, fmt.Errorf("failed to query template by ID %s: %w: %w", id, ports.ErrQueryFailed, err)
	}
	return tpl, nil
}

// ListTemplates retrieves all templates ordered by name.
func (r *Repository) ListTemplates(ctx context.Context) ([]*domain.PropFirmRules, error) {
	const query = `SELECT id, name, account_size, phases FROM templates ORDER BY name`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query templates: %w: %w", ports.ErrQueryFailed, err)
	}
	defer rows.Close()

	templates := make([]*domain.PropFirmRules, 0)
	for rows.Next() {
		tpl, err := scanTemplate(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan template during ListTemplates: %w", err)
		}
		templates = append(templates, tpl)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating template rows: %w", err)
	}
	return templates, nil
}

// --- AccountRepository Implementation ---

// CreateAccount saves a new account and returns its assigned ID.
func (r *Repository) CreateAccount(ctx context.Context, acc *domain.Account) (string, error) {
	const query = `
	INSERT INTO accounts (id, login, server, initial_balance, phase, template_id, created_at)
	VALUES (?, ?, ?, ?, ?, ?, ?)`

	if acc.ID == "" {
		acc.ID = uuid.NewString()
	}
	if acc.CreatedAt.IsZero() {
		acc.CreatedAt = time.Now().UTC()
	}
	var templateID sql.NullString
	if acc.TemplateID != "" {
		templateID = sql.NullString{String: acc.TemplateID, Valid: true}
	}

	_, err := r.db.ExecContext(ctx, query,
		acc.ID, acc.Login, acc.Server, acc.InitialBalance, string(acc.Phase), templateID, acc.CreatedAt.UTC())
	if err != nil {
		if isUniqueViolation(err) {
			return "", fmt.Errorf("account %s@%s: %w", acc.Login, acc.Server, ports.ErrDuplicateEntry)
		}
		return "", fmt.Errorf("failed to insert account %s: %w: %w", acc.Login, ports.ErrUpdateFailed, err)
	}
	r.logger.Debug(ctx, "Account created", map[string]interface{}{"accountID": acc.ID, "login": acc.Login, "phase": acc.Phase})
	return acc.ID, nil
}

// FindAccountByID retrieves an account with its template attached.
func (r *Repository) FindAccountByID(ctx context.Context, id string) (*domain.Account, error) {
	const query = `
	SELECT id, login, server, initial_balance, phase, template_id, created_at
	FROM accounts
	WHERE id = ?`

	acc, err := scanAccount(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			r.logger.Debug(ctx, "Account not found by ID", map[string]interface{}{"accountID": id})
			return nil, nil
		}
		return nil, fmt.Errorf("failed to query account by ID %s: %w: %w", id, ports.ErrQueryFailed, err)
	}
	if err := r.attachTemplates(ctx, []*domain.Account{acc}); err != nil {
		return nil, err
	}
	return acc, nil
}

// ListAccounts retrieves all accounts, ordered by creation time.
func (r *Repository) ListAccounts(ctx context.Context) ([]*domain.Account, error) {
	const query = `
	SELECT id, login, server, initial_balance, phase, template_id, created_at
	FROM accounts
	ORDER BY created_at, id`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query accounts: %w: %w", ports.ErrQueryFailed, err)
	}
	defer rows.Close()

	accounts := make([]*domain.Account, 0)
	for rows.Next() {
		acc, err := scanAccount(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan account during ListAccounts: %w", err)
		}
		accounts = append(accounts, acc)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating account rows: %w", err)
	}
	// rows must be drained before issuing the template lookups on the single connection.
	rows.Close()

	if err := r.attachTemplates(ctx, accounts); err != nil {
		return nil, err
	}
	return accounts, nil
}

// attachTemplates loads each distinct template once and links it to the accounts using it.
func (r *Repository) attachTemplates(ctx context.Context, accounts []*domain.Account) error {
	loaded := make(map[string]*domain.PropFirmRules)
	for _, acc := range accounts {
		if acc.TemplateID == "" {
			continue
		}
		tpl, ok := loaded[acc.TemplateID]
		if !ok {
			var err error
			tpl, err = r.FindTemplateByID(ctx, acc.TemplateID)
			if err != nil {
				return err
			}
			loaded[acc.TemplateID] = tpl
		}
		acc.Template = tpl
	}
	return nil
}

// UpdatePhase moves an account to a new phase.
func (r *Repository) UpdatePhase(ctx context.Context, id string, phase domain.Phase) error {
	const query = `UPDATE accounts SET phase = ? WHERE id = ?`

	result, err := r.db.ExecContext(ctx, query, string(phase), id)
	if err != nil {
		return fmt.Errorf("failed to update phase of account %s: %w: %w", id, ports.ErrUpdateFailed, err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected for account %s: %w", id, err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("account %s not found for update: %w", id, ports.ErrNotFound)
	}
	r.logger.Debug(ctx, "Account phase updated", map[string]interface{}{"accountID": id, "phase": phase})
	return nil
}

// --- TradeRepository Implementation ---

// SaveTrades upserts trades keyed by (account, ticket) inside a single transaction.
// Each trade's ID is set to the stored row's ID.
func (r *Repository) SaveTrades(ctx context.Context, accountID string, trades []*domain.Trade) (int, error) {
	const query = `
	INSERT INTO trades (id, account_id, ticket, symbol, side, volume, open_price, close_price,
	                    open_time, close_time, profit, swap, commission, comment)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT (account_id, ticket) DO UPDATE SET
		symbol = excluded.symbol,
		side = excluded.side,
		volume = excluded.volume,
		open_price = excluded.open_price,
		close_price = excluded.close_price,
		open_time = excluded.open_time,
		close_time = excluded.close_time,
		profit = excluded.profit,
		swap = excluded.swap,
		commission = excluded.commission,
		comment = excluded.comment
	RETURNING id`

	if len(trades) == 0 {
		return 0, nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin trade import for account %s: %w: %w", accountID, ports.ErrUpdateFailed, err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	stmt, err := tx.PrepareContext(ctx, query)
	if err != nil {
		return 0, fmt.Errorf("failed to prepare trade upsert: %w", err)
	}
	defer stmt.Close()

	saved := 0
	for _, t := range trades {
		if t == nil {
			continue
		}
		id := t.ID
		if id == "" {
			id = uuid.NewString()
		}
		var closePrice decimal.NullDecimal
		if t.ClosePrice != nil {
			closePrice = decimal.NullDecimal{Decimal: *t.ClosePrice, Valid: true}
		}
		var closeTime sql.NullTime
		if t.CloseTime != nil {
			closeTime = sql.NullTime{Time: t.CloseTime.UTC(), Valid: true}
		}

		err := stmt.QueryRowContext(ctx,
			id, accountID, t.Ticket, t.Symbol, string(t.Side), t.Volume, t.OpenPrice, closePrice,
			t.OpenTime.UTC(), closeTime, t.Profit, t.Swap, t.Commission, t.Comment,
		).Scan(&t.ID)
		if err != nil {
			return 0, fmt.Errorf("failed to upsert trade ticket %d for account %s: %w: %w", t.Ticket, accountID, ports.ErrUpdateFailed, err)
		}
		t.AccountID = accountID
		saved++
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit trade import for account %s: %w: %w", accountID, ports.ErrUpdateFailed, err)
	}
	r.logger.Debug(ctx, "Trades saved", map[string]interface{}{"accountID": accountID, "count": saved})
	return saved, nil
}

// FindByAccount retrieves all trades of an account ordered by open time.
func (r *Repository) FindByAccount(ctx context.Context, accountID string) ([]*domain.Trade, error) {
	const query = `
	SELECT id, account_id, ticket, symbol, side, volume, open_price, close_price,
	       open_time, close_time, profit, swap, commission, comment
	FROM trades
	WHERE account_id = ?
	ORDER BY open_time, ticket`

	rows, err := r.db.QueryContext(ctx, query, accountID)
	if err != nil {
		return nil, fmt.Errorf("failed to query trades for account %s: %w: %w", accountID, ports.ErrQueryFailed, err)
	}
	defer rows.Close()

	trades := make([]*domain.Trade, 0)
	for rows.Next() {
		trade, err := scanTrade(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan trade during FindByAccount: %w", err)
		}
		trades = append(trades, trade)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating trade rows: %w", err)
	}
	return trades, nil
}

// --- Helper Scan Functions ---

// scanner defines an interface compatible with *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...interface{}) error
}

func scanTemplate(s scanner) (*domain.PropFirmRules, error) {
	tpl := &domain.PropFirmRules{}
	var phases string
	if err := s.Scan(&tpl.ID, &tpl.Name, &tpl.AccountSize, &phases); err != nil {
		return nil, err // Handle sql.ErrNoRows in the caller
	}
	if err := json.Unmarshal([]byte(phases), &tpl.Phases); err != nil {
		return nil, fmt.Errorf("failed to decode phases of template %s: %w", tpl.ID, err)
	}
	return tpl, nil
}

func scanAccount(s scanner) (*domain.Account, error) {
	acc := &domain.Account{}
	var phase string
	var templateID sql.NullString
	err := s.Scan(&acc.ID, &acc.Login, &acc.Server, &acc.InitialBalance, &phase, &templateID, &acc.CreatedAt)
	if err != nil {
		return nil, err
	}
	acc.Phase = domain.Phase(phase)
	if templateID.Valid {
		acc.TemplateID = templateID.String
	}
	return acc, nil
}

func scanTrade(s scanner) (*domain.Trade, error) {
	t := &domain.Trade{}
	var side string
	var closePrice decimal.NullDecimal
	var closeTime sql.NullTime
	err := s.Scan(
		&t.ID, &t.AccountID, &t.Ticket, &t.Symbol, &side, &t.Volume, &t.OpenPrice, &closePrice,
		&t.OpenTime, &closeTime, &t.Profit, &t.Swap, &t.Commission, &t.Comment)
	if err != nil {
		return nil, err
	}
	t.Side = domain.OrderSide(side)
	if closePrice.Valid {
		cp := closePrice.Decimal
		t.ClosePrice = &cp
	}
	if closeTime.Valid {
		ct := closeTime.Time.UTC()
		t.CloseTime = &ct
	}
	t.OpenTime = t.OpenTime.UTC()
	return t, nil
}
