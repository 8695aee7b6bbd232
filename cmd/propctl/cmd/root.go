package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"propMonitor/internal/adapters/logger"
	"propMonitor/internal/adapters/sqlite"
	"propMonitor/internal/app"
	"propMonitor/internal/risk"
)

// rootOptions are the persistent flags shared by every subcommand.
type rootOptions struct {
	dbPath   string
	logLevel string
	now      func() time.Time
}

// NewRootCmd builds the propctl command tree.
func NewRootCmd() *cobra.Command {
	return newRootCmd(time.Now)
}

func newRootCmd(now func() time.Time) *cobra.Command {
	opts := &rootOptions{now: now}

	cmd := &cobra.Command{
		Use:   "propctl",
		Short: "Manage and evaluate prop firm challenge accounts",
		Long: `propctl works on the same SQLite database as the monitoring server.

It can:
  - Load prop firm rule templates from YAML/JSON files
  - Register accounts and import their MT5 trade history from CSV
  - Evaluate accounts against their phase rules
  - Advance accounts that passed their phase

Examples:
  propctl templates load rules.yaml
  propctl accounts create --login 5012345 --balance 100000 --template two-step-100k
  propctl import <account-id> trades.csv
  propctl evaluate <account-id>
  propctl check trades.csv --template rules.yaml --template-id two-step-100k --balance 100000`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVarP(&opts.dbPath, "db", "d", "./data/prop_monitor.db", "path to SQLite database")
	cmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "WARN", "log level (DEBUG, INFO, WARN, ERROR)")

	cmd.AddCommand(
		newTemplatesCmd(opts),
		newAccountsCmd(opts),
		newImportCmd(opts),
		newExportCmd(opts),
		newEvaluateCmd(opts),
		newAdvanceCmd(opts),
		newCheckCmd(opts),
	)
	return cmd
}

// Execute runs the root command.
func Execute() error {
	return NewRootCmd().Execute()
}

// session bundles an opened service with the resources to release.
type session struct {
	service *app.MonitoringService
	log     *logger.ZapLogger
	close   func()
}

func (o *rootOptions) newLogger() (*logger.ZapLogger, error) {
	return logger.NewZapLogger(logger.ParseLevel(o.logLevel))
}

// open wires the repository, engine and service the way the server does, without caching.
func (o *rootOptions) open(ctx context.Context) (*session, error) {
	log, err := o.newLogger()
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}
	repo, err := sqlite.NewRepository(sqlite.Config{DBPath: o.dbPath, Logger: log})
	if err != nil {
		return nil, err
	}
	svc, err := app.NewMonitoringService(app.ServiceConfig{
		Logger:    log,
		Accounts:  repo,
		Templates: repo,
		Trades:    repo,
		Evaluator: risk.NewEngine(risk.WithClock(o.now)),
		Clock:     o.now,
	})
	if err != nil {
		repo.Close()
		return nil, err
	}
	return &session{
		service: svc,
		log:     log,
		close: func() {
			repo.Close()
			_ = log.Sync()
		},
	}, nil
}
