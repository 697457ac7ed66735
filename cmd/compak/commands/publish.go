package commands

import (
	"fmt"
	"net"

	"github.com/spf13/cobra"
)

const defaultServeAddr = "127.0.0.1:8420"

func (c *CLI) newExtractCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "extract <package[@constraint]> <dir>",
		Short: "Unpack package content without installing it",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			m, files, err := c.app.Extract(cmd.Context(), c.opts, args[0], args[1])
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Extracted %s (%d files) to %s\n", m.Ref(), len(files), args[1])
			return nil
		},
	}
}

func (c *CLI) newPublishCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "publish [dir]",
		Short: "Publish a package directory to the registry",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := "."
			if len(args) == 1 {
				dir = args[0]
			}
			m, d, err := c.app.Publish(cmd.Context(), c.opts, dir)
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Published %s (%s)\n", m.Ref(), d)
			return nil
		},
	}
}

func (c *CLI) newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the configured registry over HTTP",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			addr, _ := cmd.Flags().GetString("addr")
			return c.app.Serve(cmd.Context(), c.opts, addr, func(a net.Addr) {
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Listening on http://%s\n", a)
			})
		},
	}

	cmd.Flags().String("addr", defaultServeAddr, "Address to listen on")

	return cmd
}
