// Package commands implements the CLI commands for the compak package manager.
package commands

import (
	"context"
	"fmt"
	"io"
	"net"

	"github.com/opencontainers/go-digest"
	"github.com/spf13/cobra"
	"go.trai.ch/compak/internal/app"
	"go.trai.ch/compak/internal/build"
	"go.trai.ch/compak/internal/core/domain"
)

// CLI represents the command line interface for compak.
type CLI struct {
	app     Application
	rootCmd *cobra.Command
	opts    app.Options
	quiet   bool
	onQuiet func(bool)
}

// Application represents the application logic interface.
type Application interface {
	Install(ctx context.Context, opts app.Options, specs []string, values map[string]string) (*app.Report, error)
	Upgrade(ctx context.Context, opts app.Options, specs []string) (*app.Report, error)
	Uninstall(ctx context.Context, opts app.Options, ids []string) (*app.Report, error)
	Update(ctx context.Context, opts app.Options) (*app.Report, error)
	List(ctx context.Context, opts app.Options) ([]domain.LockEntry, error)
	Status(ctx context.Context, opts app.Options) (*app.Status, error)
	Search(ctx context.Context, opts app.Options, query string, limit int) ([]domain.SearchResult, error)
	Extract(ctx context.Context, opts app.Options, spec, dest string) (*domain.Manifest, []string, error)
	Publish(ctx context.Context, opts app.Options, dir string) (*domain.Manifest, digest.Digest, error)
	Serve(ctx context.Context, opts app.Options, addr string, ready func(net.Addr)) error
}

// Option configures the CLI.
type Option func(*CLI)

// WithQuietHandler registers a callback invoked with the value of --quiet
// before any command runs.
func WithQuietHandler(fn func(bool)) Option {
	return func(c *CLI) {
		c.onQuiet = fn
	}
}

// New creates a new CLI instance with the given app.
func New(a Application, options ...Option) *CLI {
	rootCmd := &cobra.Command{
		Use:           "compak",
		Short:         "A package manager for Docker Compose projects",
		SilenceUsage:  true,
		SilenceErrors: true,
		Version:       build.Version,
	}

	rootCmd.SetVersionTemplate(fmt.Sprintf(
		"{{.Name}} version {{.Version}} (commit: %s, date: %s)\n",
		build.Commit,
		build.Date,
	))
	rootCmd.InitDefaultVersionFlag()
	rootCmd.Flags().Lookup("version").Usage = "Print the application version"

	rootCmd.InitDefaultHelpFlag()
	rootCmd.Flags().Lookup("help").Usage = "Show help for command"

	c := &CLI{
		app:     a,
		rootCmd: rootCmd,
	}
	for _, o := range options {
		o(c)
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&c.opts.Project, "project", "C", "", "Run as if compak was started in this directory")
	flags.StringVar(&c.opts.Registry, "registry", "", "Registry directory or URL, overriding compak.yaml")
	flags.BoolVarP(&c.quiet, "quiet", "q", false, "Only log warnings and errors")

	rootCmd.PersistentPreRun = func(_ *cobra.Command, _ []string) {
		if c.onQuiet != nil {
			c.onQuiet(c.quiet)
		}
	}

	rootCmd.AddCommand(c.newInstallCmd())
	rootCmd.AddCommand(c.newUpgradeCmd())
	rootCmd.AddCommand(c.newUninstallCmd())
	rootCmd.AddCommand(c.newUpdateCmd())
	rootCmd.AddCommand(c.newListCmd())
	rootCmd.AddCommand(c.newStatusCmd())
	rootCmd.AddCommand(c.newSearchCmd())
	rootCmd.AddCommand(c.newExtractCmd())
	rootCmd.AddCommand(c.newPublishCmd())
	rootCmd.AddCommand(c.newServeCmd())
	rootCmd.AddCommand(c.newVersionCmd())

	return c
}

// Execute runs the root command with the given context.
func (c *CLI) Execute(ctx context.Context) error {
	c.rootCmd.SetContext(ctx)
	return c.rootCmd.Execute()
}

// SetArgs sets the arguments for the root command. Used for testing.
func (c *CLI) SetArgs(args []string) {
	c.rootCmd.SetArgs(args)
}

// SetOutput sets the output and error streams for the root command. Used for testing.
func (c *CLI) SetOutput(out, err io.Writer) {
	c.rootCmd.SetOut(out)
	c.rootCmd.SetErr(err)
}
