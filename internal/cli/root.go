// Package cli is the operator command line of the ledger.
package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/sheikh-saqib/gateway-ledger/internal/config"
)

type rootOptions struct {
	configPath string
	envFile    string
	verbose    bool
}

// NewRootCmd builds the ledger command tree.
func NewRootCmd(version string) *cobra.Command {
	opts := &rootOptions{}

	rootCmd := &cobra.Command{
		Use:   "ledger",
		Short: "Double-entry ledger back office",
		Long: `ledger records balanced postings, closes and consolidates ledger days,
audits the hash chain, reconciles against bank and acquirer statements,
releases seller cashouts and confirms their settlement.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "Path to a YAML config file")
	rootCmd.PersistentFlags().StringVar(&opts.envFile, "env-file", ".env", "Path to a .env file (ignored when missing)")
	rootCmd.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "Enable debug logging")

	rootCmd.AddCommand(
		newPostCmd(opts),
		newBalanceCmd(opts),
		newTrialBalanceCmd(opts),
		newWalletCmd(opts),
		newCloseDayCmd(opts),
		newConsolidateCmd(opts),
		newAuditCmd(opts),
		newReconcileCmd(opts),
		newReleaseCmd(opts),
		newSettleCmd(opts),
		newProofCmd(opts),
		newRunDailyCmd(opts),
		newMigrateCmd(opts),
		newVersionCmd(version),
	)
	return rootCmd
}

// Execute runs the root command
func Execute(version string) error {
	if err := NewRootCmd(version).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		return err
	}
	return nil
}

// withApp loads configuration, connects the app and runs fn with it.
func (o *rootOptions) withApp(cmd *cobra.Command, fn func(ctx context.Context, a *app) error) (err error) {
	cfg, err := config.Load(o.configPath, o.envFile)
	if err != nil {
		return err
	}
	logger, err := newLogger(cfg.Log, o.verbose)
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		logger.Error("startup failed", zap.Error(err))
		return err
	}
	defer func() {
		err = multierr.Append(err, a.close())
	}()

	return fn(ctx, a)
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
