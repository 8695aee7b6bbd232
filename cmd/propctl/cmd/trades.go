package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"propMonitor/internal/utils"
)

func newImportCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "import <account-id> <trades.csv>",
		Short: "Import trade history from a CSV export",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(args[1])
			if err != nil {
				return err
			}
			defer f.Close()
			trades, err := utils.ReadTradesFromCSV(f)
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			s, err := opts.open(ctx)
			if err != nil {
				return err
			}
			defer s.close()

			n, err := s.service.ImportTrades(ctx, args[0], trades)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "imported %d trade(s)\n", n)
			return nil
		},
	}
}

func newExportCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "export <account-id> <trades.csv>",
		Short: "Export the stored trades of an account to CSV",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			s, err := opts.open(ctx)
			if err != nil {
				return err
			}
			defer s.close()

			trades, err := s.service.ListTrades(ctx, args[0])
			if err != nil {
				return err
			}
			if err := utils.WriteTradesToCSV(trades, args[1]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "exported %d trade(s) to %s\n", len(trades), args[1])
			return nil
		},
	}
}
