package commands

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
	"go.trai.ch/compak/internal/app"
	"go.trai.ch/compak/internal/core/domain"
	"go.trai.ch/zerr"
)

func (c *CLI) newInstallCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "install <package[@constraint]>...",
		Short: "Install packages and their dependencies",
		Args:  cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				// Display command usage help without returning an error
				_ = cmd.Help()
				return nil
			}
			raw, _ := cmd.Flags().GetStringArray("set")
			values, err := parseValues(raw)
			if err != nil {
				return err
			}
			report, err := c.app.Install(cmd.Context(), c.opts, args, values)
			if err != nil {
				return err
			}
			printReport(cmd.OutOrStdout(), report)
			return nil
		},
	}

	cmd.Flags().StringArray("set", nil, "Set a package parameter (key=value), repeatable")

	return cmd
}

func (c *CLI) newUpgradeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "upgrade <package[@constraint]>...",
		Short: "Change the constraint of installed packages and upgrade them",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			report, err := c.app.Upgrade(cmd.Context(), c.opts, args)
			if err != nil {
				return err
			}
			printReport(cmd.OutOrStdout(), report)
			return nil
		},
	}
}

func (c *CLI) newUninstallCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "uninstall <package>...",
		Aliases: []string{"remove", "rm"},
		Short:   "Remove packages and dependencies nothing else needs",
		Args:    cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			report, err := c.app.Uninstall(cmd.Context(), c.opts, args)
			if err != nil {
				return err
			}
			printReport(cmd.OutOrStdout(), report)
			return nil
		},
	}
}

func (c *CLI) newUpdateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "update",
		Short: "Re-resolve every requested package to the newest allowed versions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			report, err := c.app.Update(cmd.Context(), c.opts)
			if err != nil {
				return err
			}
			printReport(cmd.OutOrStdout(), report)
			return nil
		},
	}
}

func parseValues(raw []string) (map[string]string, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	values := make(map[string]string, len(raw))
	for _, kv := range raw {
		key, value, ok := strings.Cut(kv, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, zerr.With(zerr.Wrap(domain.ErrInvalidParameter, "expected key=value"), "value", kv)
		}
		values[key] = value
	}
	return values, nil
}

func printReport(w io.Writer, r *app.Report) {
	if r.Unchanged {
		_, _ = fmt.Fprintln(w, "Nothing to do.")
		return
	}
	for _, ch := range r.Diff.Install {
		_, _ = fmt.Fprintf(w, "+ %s %s\n", ch.ID, ch.After)
	}
	for _, ch := range r.Diff.Upgrade {
		verb := "upgraded"
		switch {
		case ch.IsDowngrade():
			verb = "downgraded"
		case ch.Before.Equal(*ch.After):
			verb = "reinstalled"
		}
		_, _ = fmt.Fprintf(w, "~ %s %s -> %s (%s)\n", ch.ID, ch.Before, ch.After, verb)
	}
	for _, ch := range r.Diff.Remove {
		_, _ = fmt.Fprintf(w, "- %s %s\n", ch.ID, ch.Before)
	}
	_, _ = fmt.Fprintf(w, "%d installed, %d changed, %d removed\n",
		len(r.Diff.Install), len(r.Diff.Upgrade), len(r.Diff.Remove))
}
