package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"propMonitor/internal/analytics"
	"propMonitor/internal/domain"
)

func newEvaluateCmd(opts *rootOptions) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "evaluate <account-id>",
		Short: "Evaluate a stored account against its phase rules",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			s, err := opts.open(ctx)
			if err != nil {
				return err
			}
			defer s.close()

			account, err := s.service.GetAccount(ctx, args[0])
			if err != nil {
				return err
			}
			result, err := s.service.EvaluateAccount(ctx, args[0])
			if err != nil {
				return err
			}
			return render(cmd.OutOrStdout(), account, result, asJSON)
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the raw result as JSON")
	return cmd
}

func render(w io.Writer, account *domain.Account, result *domain.RuleEngineResult, asJSON bool) error {
	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	}
	return printReport(w, account, result)
}

// printReport writes a human readable evaluation summary.
func printReport(out io.Writer, account *domain.Account, result *domain.RuleEngineResult) error {
	m := result.Metrics
	p := result.PhaseProgress

	status := "COMPLIANT"
	if !result.IsCompliant {
		status = "BREACHED"
	}
	fmt.Fprintf(out, "Account %s (%s) %s\n\n", account.ID, account.Phase, status)

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "Total P&L\t%s\n", m.TotalProfit.StringFixed(2))
	fmt.Fprintf(w, "Today P&L\t%s\n", m.DailyProfit.StringFixed(2))
	fmt.Fprintf(w, "Best day\t%s\n", m.BestTradingDay.StringFixed(2))
	fmt.Fprintf(w, "Best trade\t%s\n", m.BestSingleTrade.StringFixed(2))
	fmt.Fprintf(w, "Trading days\t%d\n", m.TradingDays)
	fmt.Fprintf(w, "Trades\t%d (%d closed, %d open)\n", m.TotalTrades, m.ClosedTrades, m.OpenTrades)
	fmt.Fprintf(w, "Win rate\t%s%%\n", m.WinRate.StringFixed(2))
	fmt.Fprintf(w, "Profit factor\t%s\n", m.ProfitFactor.StringFixed(2))
	fmt.Fprintf(w, "Max drawdown\t%s%%\n", m.CurrentDrawdown.StringFixed(2))
	fmt.Fprintf(w, "Target progress\t%s%%\n", p.ProfitProgress.StringFixed(2))
	if p.CanAdvance && p.NextPhase != nil {
		fmt.Fprintf(w, "Next phase\t%s (ready)\n", *p.NextPhase)
	}
	if err := w.Flush(); err != nil {
		return err
	}

	if len(result.Violations) > 0 {
		fmt.Fprintln(out, "\nViolations:")
		for _, v := range result.Violations {
			fmt.Fprintf(out, "  [%s] %s: %s\n", v.Severity, v.Type, v.Message)
		}
	}

	days := analytics.SortedDailyProfits(m)
	if len(days) > 0 {
		fmt.Fprintln(out, "\nDaily P&L:")
		w = tabwriter.NewWriter(out, 0, 0, 2, ' ', tabwriter.AlignRight)
		for _, d := range days {
			fmt.Fprintf(w, "  %s\t%s\t\n", d.Day.Format(analytics.DayKeyLayout), d.Profit.StringFixed(2))
		}
		return w.Flush()
	}
	return nil
}
