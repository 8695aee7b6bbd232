package cmd

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"propMonitor/internal/adapters/templates"
	"propMonitor/internal/domain"
)

func newTemplatesCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "templates",
		Short: "Manage prop firm rule templates",
	}

	loadCmd := &cobra.Command{
		Use:   "load <file>",
		Short: "Load templates from a YAML, JSON or TOML file into the database",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			s, err := opts.open(ctx)
			if err != nil {
				return err
			}
			defer s.close()

			tpls, err := templates.NewLoader(s.log).LoadFile(ctx, args[0])
			if err != nil {
				return err
			}
			n, err := s.service.SyncTemplates(ctx, tpls)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, tpl := range tpls {
				fmt.Fprintf(out, "%s\t%s\n", tpl.ID, tpl.Name)
			}
			fmt.Fprintf(out, "loaded %d template(s)\n", n)
			return nil
		},
	}

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List stored templates",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			s, err := opts.open(ctx)
			if err != nil {
				return err
			}
			defer s.close()

			tpls, err := s.service.ListTemplates(ctx)
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tNAME\tSIZE\tPHASES")
			for _, tpl := range tpls {
				fmt.Fprintf(w, "%s\t%s\t%s\t%v\n", tpl.ID, tpl.Name, tpl.AccountSize.StringFixed(0), phaseNames(tpl))
			}
			return w.Flush()
		},
	}

	cmd.AddCommand(loadCmd, listCmd)
	return cmd
}

func phaseNames(tpl *domain.PropFirmRules) []string {
	names := make([]string, 0, len(tpl.Phases))
	for _, p := range domain.Phases() {
		if _, ok := tpl.Phases[p]; ok {
			names = append(names, string(p))
		}
	}
	return names
}
