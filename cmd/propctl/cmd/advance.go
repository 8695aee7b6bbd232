package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"propMonitor/internal/ports"
)

func newAdvanceCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "advance <account-id>",
		Short: "Move an account to its next phase if it passed the current one",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			s, err := opts.open(ctx)
			if err != nil {
				return err
			}
			defer s.close()

			before, err := s.service.GetAccount(ctx, args[0])
			if err != nil {
				return err
			}
			acc, result, err := s.service.AdvancePhase(ctx, args[0])
			if err != nil {
				if errors.Is(err, ports.ErrCannotAdvance) && result != nil {
					_ = printReport(cmd.OutOrStdout(), before, result)
				}
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %s -> %s\n", acc.ID, before.Phase, acc.Phase)
			return nil
		},
	}
}
