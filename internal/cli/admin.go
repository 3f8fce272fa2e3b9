package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

func newMigrateCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply store migrations (postgres schema, mongo indexes)",
		RunE: func(cmd *cobra.Command, _ []string) error {
			// opening the app migrates the configured store
			return opts.withApp(cmd, func(ctx context.Context, a *app) error {
				if err := a.store.Ping(ctx); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s store is up to date\n", a.cfg.Store.Driver)
				return nil
			})
		},
	}
}

func newVersionCmd(version string) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "ledger %s\n", version)
		},
	}
}
