package cmd

import (
	"fmt"
	"text/tabwriter"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"propMonitor/internal/app"
	"propMonitor/internal/domain"
)

func newAccountsCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "accounts",
		Short: "Register and list monitored accounts",
	}

	var (
		login, server, balance, templateID, phase string
	)
	createCmd := &cobra.Command{
		Use:   "create",
		Short: "Register a new account",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			initial, err := decimal.NewFromString(balance)
			if err != nil {
				return fmt.Errorf("invalid --balance %q: %w", balance, err)
			}
			req := app.NewAccountRequest{
				Login:          login,
				Server:         server,
				InitialBalance: initial,
				TemplateID:     templateID,
			}
			if phase != "" {
				if req.Phase, err = domain.ParsePhase(phase); err != nil {
					return err
				}
			}

			ctx := cmd.Context()
			s, err := opts.open(ctx)
			if err != nil {
				return err
			}
			defer s.close()

			acc, err := s.service.CreateAccount(ctx, req)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), acc.ID)
			return nil
		},
	}
	createCmd.Flags().StringVar(&login, "login", "", "broker login")
	createCmd.Flags().StringVar(&server, "server", "", "broker server")
	createCmd.Flags().StringVar(&balance, "balance", "", "initial balance")
	createCmd.Flags().StringVar(&templateID, "template", "", "rule template ID")
	createCmd.Flags().StringVar(&phase, "phase", "", "starting phase (default PHASE_1)")
	_ = createCmd.MarkFlagRequired("login")
	_ = createCmd.MarkFlagRequired("balance")

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List accounts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			s, err := opts.open(ctx)
			if err != nil {
				return err
			}
			defer s.close()

			accounts, err := s.service.ListAccounts(ctx)
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tLOGIN\tSERVER\tBALANCE\tPHASE\tTEMPLATE")
			for _, a := range accounts {
				tpl := "-"
				if a.HasTemplate() {
					tpl = a.Template.Name
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n", a.ID, a.Login, a.Server, a.InitialBalance.StringFixed(2), a.Phase, tpl)
			}
			return w.Flush()
		},
	}

	cmd.AddCommand(createCmd, listCmd)
	return cmd
}
