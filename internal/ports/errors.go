package ports

import "errors"

// Standard application-level errors.
// Adapters should wrap underlying infrastructure errors with these standard errors.
var (
	// General Errors
	ErrInvalidRequest     = errors.New("invalid request parameters or format")
	ErrNotFound           = errors.New("resource not found")
	ErrConfigurationError = errors.New("invalid or missing configuration")

	// Evaluation Errors
	ErrPhaseTerminal  = errors.New("account is already in its final phase")
	ErrCannotAdvance  = errors.New("account does not meet the requirements to advance")
	ErrTemplateLoad   = errors.New("failed to load rule templates")
	ErrInvalidTrades  = errors.New("invalid trade records")
	ErrInvalidAccount = errors.New("invalid account")

	// Database Specific Errors
	ErrDuplicateEntry = errors.New("database record already exists")
	ErrDBConnection   = errors.New("database connection error")
	ErrQueryFailed    = errors.New("database query failed")
	ErrUpdateFailed   = errors.New("database update failed")
)
