// Package commands implements the vidcached command line.
package commands

import (
	"context"
	"io"

	"github.com/spf13/cobra"
)

// Version is set at build time with -ldflags "-X .../commands.Version=..."
var Version = "dev"

// CLI represents the vidcached command line interface
type CLI struct {
	rootCmd    *cobra.Command
	configPath string
}

// New creates the root command and its subcommands
func New() *CLI {
	rootCmd := &cobra.Command{
		Use:           "vidcached",
		Short:         "Keeps a local cache of a remote video playlist up to date",
		SilenceUsage:  true,
		SilenceErrors: true,
		Version:       Version,
	}

	c := &CLI{rootCmd: rootCmd}
	rootCmd.PersistentFlags().StringVarP(&c.configPath, "config", "c", "",
		"Path to the config file (default: ./vidcache.yaml or /etc/vidcache/vidcache.yaml)")

	rootCmd.AddCommand(c.newRunCmd())
	rootCmd.AddCommand(c.newRefreshCmd())
	rootCmd.AddCommand(c.newListCmd())

	return c
}

// Execute runs the root command with the given context
func (c *CLI) Execute(ctx context.Context) error {
	c.rootCmd.SetContext(ctx)
	return c.rootCmd.Execute()
}

// SetArgs sets the arguments for the root command. Used for testing.
func (c *CLI) SetArgs(args []string) {
	c.rootCmd.SetArgs(args)
}

// SetOut redirects command output. Used for testing.
func (c *CLI) SetOut(w io.Writer) {
	c.rootCmd.SetOut(w)
}
