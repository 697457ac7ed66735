package commands

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func (c *CLI) newListCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List installed packages",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			entries, err := c.app.List(cmd.Context(), c.opts)
			if err != nil {
				return err
			}
			if len(entries) == 0 {
				_, _ = fmt.Fprintln(cmd.OutOrStdout(), "No packages installed.")
				return nil
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			_, _ = fmt.Fprintln(tw, "PACKAGE\tVERSION\tFILES")
			for _, e := range entries {
				_, _ = fmt.Fprintf(tw, "%s\t%s\t%d\n", e.ID, e.Version, len(e.Files))
			}
			return tw.Flush()
		},
	}
}

func (c *CLI) newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show outdated packages and locally modified files",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			status, err := c.app.Status(cmd.Context(), c.opts)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(status.Packages) == 0 {
				_, _ = fmt.Fprintln(out, "No packages installed.")
				return nil
			}

			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			_, _ = fmt.Fprintln(tw, "PACKAGE\tINSTALLED\tLATEST\tSTATE")
			for _, p := range status.Packages {
				latest, state := "?", "unknown"
				if p.Latest != nil {
					latest, state = p.Latest.String(), "up to date"
					if p.Outdated() {
						state = "outdated"
					}
				}
				if !p.Requested {
					state += ", dependency"
				}
				_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", p.ID, p.Installed, latest, state)
			}
			if err := tw.Flush(); err != nil {
				return err
			}

			for _, d := range status.Drift {
				_, _ = fmt.Fprintf(out, "%s: %s (%s)\n", d.Reason, d.Path, d.Package)
			}
			return nil
		},
	}
}

func (c *CLI) newSearchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "search [query]",
		Short: "Search the registry",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			query := ""
			if len(args) == 1 {
				query = args[0]
			}
			limit, _ := cmd.Flags().GetInt("limit")
			results, err := c.app.Search(cmd.Context(), c.opts, query, limit)
			if err != nil {
				return err
			}
			if len(results) == 0 {
				_, _ = fmt.Fprintln(cmd.OutOrStdout(), "No packages found.")
				return nil
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			_, _ = fmt.Fprintln(tw, "PACKAGE\tVERSION\tDESCRIPTION")
			for _, r := range results {
				_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\n", r.ID, r.Version, r.Description)
			}
			return tw.Flush()
		},
	}

	cmd.Flags().IntP("limit", "n", 20, "Maximum number of results")

	return cmd
}
