package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

func (c *CLI) newRefreshCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "refresh",
		Short: "Fetch the remote playlist once and replace the cache",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			a, err := c.newApp(cmd.Context())
			if err != nil {
				return err
			}
			defer func() {
				if cerr := a.Close(); err == nil {
					err = cerr
				}
			}()

			if err := a.pipeline.RefreshNow(cmd.Context()); err != nil {
				return err
			}
			snap := a.store.ReadAll()
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "cache refreshed: %d items\n", snap.Len())
			return err
		},
	}
}
