package cmd

import (
	"fmt"
	"os"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"propMonitor/internal/adapters/templates"
	"propMonitor/internal/domain"
	"propMonitor/internal/ports"
	"propMonitor/internal/risk"
	"propMonitor/internal/utils"
)

// newCheckCmd evaluates a CSV file against a template file without touching the database.
func newCheckCmd(opts *rootOptions) *cobra.Command {
	var (
		templatePath, templateID, balance, phase string
		asJSON                                   bool
	)
	cmd := &cobra.Command{
		Use:   "check <trades.csv>",
		Short: "Evaluate a trade file against a template file without storing anything",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			log, err := opts.newLogger()
			if err != nil {
				return err
			}
			defer log.Sync() //nolint:errcheck

			tpls, err := templates.NewLoader(log).LoadFile(ctx, templatePath)
			if err != nil {
				return err
			}
			tpl, err := pickTemplate(tpls, templateID)
			if err != nil {
				return err
			}

			initial := tpl.AccountSize
			if balance != "" {
				if initial, err = decimal.NewFromString(balance); err != nil {
					return fmt.Errorf("invalid --balance %q: %w", balance, err)
				}
			}
			p, err := domain.ParsePhase(phase)
			if err != nil {
				return err
			}

			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()
			trades, err := utils.ReadTradesFromCSV(f)
			if err != nil {
				return err
			}

			account := &domain.Account{
				ID:             "check",
				InitialBalance: initial,
				Phase:          p,
				TemplateID:     tpl.ID,
				Template:       tpl,
			}
			result, err := risk.NewEngine(risk.WithClock(opts.now)).Evaluate(account, trades)
			if err != nil {
				return err
			}
			log.Debug(ctx, "Trade file checked", map[string]interface{}{
				"trades":     len(trades),
				"template":   tpl.ID,
				"violations": len(result.Violations),
			})
			return render(cmd.OutOrStdout(), account, result, asJSON)
		},
	}
	cmd.Flags().StringVar(&templatePath, "template", "", "template file (YAML, JSON or TOML)")
	cmd.Flags().StringVar(&templateID, "template-id", "", "template to use when the file holds several")
	cmd.Flags().StringVar(&balance, "balance", "", "initial balance (default: template account size)")
	cmd.Flags().StringVar(&phase, "phase", string(domain.Phase1), "phase to evaluate")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the raw result as JSON")
	_ = cmd.MarkFlagRequired("template")
	return cmd
}

func pickTemplate(tpls []*domain.PropFirmRules, id string) (*domain.PropFirmRules, error) {
	if id == "" {
		if len(tpls) == 1 {
			return tpls[0], nil
		}
		return nil, fmt.Errorf("template file holds %d templates, choose one with --template-id", len(tpls))
	}
	for _, tpl := range tpls {
		if tpl.ID == id {
			return tpl, nil
		}
	}
	return nil, fmt.Errorf("template %q: %w", id, ports.ErrNotFound)
}
