package cli

import (
	"context"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sheikh-saqib/gateway-ledger/internal/feed"
	"github.com/sheikh-saqib/gateway-ledger/internal/models"
	"github.com/sheikh-saqib/gateway-ledger/internal/pipeline"
	"github.com/sheikh-saqib/gateway-ledger/internal/proof"
)

func dateFlag(cmd *cobra.Command, target *string, required bool) {
	cmd.Flags().StringVarP(target, "date", "d", "", "Ledger day (YYYY-MM-DD)")
	if required {
		_ = cmd.MarkFlagRequired("date")
	}
}

func newCloseDayCmd(opts *rootOptions) *cobra.Command {
	var date string
	cmd := &cobra.Command{
		Use:   "close-day",
		Short: "Close the daily batch of a day and consolidate its snapshots",
		Long: `close-day writes the immutable batch of a day and consolidates its
snapshots. On a day that is already closed it keeps the batch and only
consolidates again, which repairs a close whose consolidation failed.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return opts.withApp(cmd, func(ctx context.Context, a *app) error {
				batch, err := a.closer().CloseDailyBatch(ctx, date)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), batch)
			})
		},
	}
	dateFlag(cmd, &date, true)
	return cmd
}

func newConsolidateCmd(opts *rootOptions) *cobra.Command {
	var date string
	cmd := &cobra.Command{
		Use:   "consolidate",
		Short: "Rebuild the snapshots of a day from its entries",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return opts.withApp(cmd, func(ctx context.Context, a *app) error {
				n, err := a.closer().Consolidate(ctx, date)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), map[string]any{"date_key": date, "snapshots": n})
			})
		},
	}
	dateFlag(cmd, &date, true)
	return cmd
}

func newAuditCmd(opts *rootOptions) *cobra.Command {
	var date string
	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Verify balance and hash chain of every posting, for one day or the whole store",
		Long: `audit prints the integrity report and exits non-zero when it found
anything, so schedulers can alert on it.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return opts.withApp(cmd, func(ctx context.Context, a *app) error {
				report, err := a.auditor().RunIntegrityCheck(ctx, date)
				if err != nil {
					return err
				}
				if err := printJSON(cmd.OutOrStdout(), report); err != nil {
					return err
				}
				if !report.Healthy() {
					return models.ErrIntegrityViolation
				}
				return nil
			})
		},
	}
	dateFlag(cmd, &date, false)
	return cmd
}

func newReconcileCmd(opts *rootOptions) *cobra.Command {
	var date, feedPath string
	cmd := &cobra.Command{
		Use:   "reconcile",
		Short: "Compare a day's snapshots with a bank/acquirer statement and lock or unlock the day",
		RunE: func(cmd *cobra.Command, _ []string) error {
			rows, err := feed.LoadStatement(feedPath)
			if err != nil {
				return err
			}
			return opts.withApp(cmd, func(ctx context.Context, a *app) error {
				engine, err := a.reconciler()
				if err != nil {
					return err
				}
				result, err := engine.Reconcile(ctx, rows, date)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), result)
			})
		},
	}
	dateFlag(cmd, &date, true)
	cmd.Flags().StringVar(&feedPath, "feed", "", "Statement file (.json, .yaml or .csv)")
	_ = cmd.MarkFlagRequired("feed")
	return cmd
}

func newReleaseCmd(opts *rootOptions) *cobra.Command {
	var date string
	cmd := &cobra.Command{
		Use:   "release",
		Short: "Release the payable balances of a reconciled day to seller wallets",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return opts.withApp(cmd, func(ctx context.Context, a *app) error {
				report, err := a.releaser().Run(ctx, date)
				if perr := printJSON(cmd.OutOrStdout(), report); perr != nil {
					return perr
				}
				return err
			})
		},
	}
	dateFlag(cmd, &date, true)
	return cmd
}

func newSettleCmd(opts *rootOptions) *cobra.Command {
	var date, confirmationsPath string
	cmd := &cobra.Command{
		Use:   "settle",
		Short: "Match released cashouts against transfer confirmations",
		RunE: func(cmd *cobra.Command, _ []string) error {
			confs, err := feed.LoadConfirmations(confirmationsPath)
			if err != nil {
				return err
			}
			return opts.withApp(cmd, func(ctx context.Context, a *app) error {
				report, err := a.settler().Run(ctx, date, confs)
				if perr := printJSON(cmd.OutOrStdout(), report); perr != nil {
					return perr
				}
				return err
			})
		},
	}
	dateFlag(cmd, &date, true)
	cmd.Flags().StringVar(&confirmationsPath, "confirmations", "", "Transfer confirmations file (.json, .yaml or .csv)")
	_ = cmd.MarkFlagRequired("confirmations")
	return cmd
}

func newProofCmd(opts *rootOptions) *cobra.Command {
	var date string
	proofCmd := &cobra.Command{
		Use:   "proof",
		Short: "Generate the signed proof of settlement of a closed day",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return opts.withApp(cmd, func(ctx context.Context, a *app) error {
				p, err := a.proofs().Generate(ctx, date)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), p)
			})
		},
	}
	dateFlag(proofCmd, &date, true)

	var file string
	verifyCmd := &cobra.Command{
		Use:   "verify",
		Short: "Check the digest and signature of a proof document",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return opts.withApp(cmd, func(_ context.Context, a *app) error {
				p, err := proof.Load(file)
				if err != nil {
					return err
				}
				if err := proof.Verify(p, []byte(a.cfg.Proof.SigningKey)); err != nil {
					return err
				}
				a.l.Info("proof verified", zap.String("date_key", p.DateKey), zap.String("digest", p.Digest))
				return printJSON(cmd.OutOrStdout(), map[string]any{"date_key": p.DateKey, "valid": true})
			})
		},
	}
	verifyCmd.Flags().StringVarP(&file, "file", "f", "", "Proof document (.yaml)")
	_ = verifyCmd.MarkFlagRequired("file")

	proofCmd.AddCommand(verifyCmd)
	return proofCmd
}

func newRunDailyCmd(opts *rootOptions) *cobra.Command {
	var date, feedPath, confirmationsPath, postingsPath, walletsPath string
	cmd := &cobra.Command{
		Use:   "run-daily",
		Short: "Close, audit, reconcile, release, settle and prove one day",
		Long: `run-daily executes the nightly sequence for a day under the day's
pipeline lock. --postings and --wallets seed the store first, which makes
the in-memory driver usable for a full dry run.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			in := pipeline.Input{DateKey: date}
			var err error
			if feedPath != "" {
				if in.Feed, err = feed.LoadStatement(feedPath); err != nil {
					return err
				}
			}
			if confirmationsPath != "" {
				if in.Confirmations, err = feed.LoadConfirmations(confirmationsPath); err != nil {
					return err
				}
			}
			var reqs []models.PostingRequest
			if postingsPath != "" {
				if reqs, err = feed.LoadPostingRequests(postingsPath); err != nil {
					return err
				}
			}
			var wallets []models.Wallet
			if walletsPath != "" {
				if wallets, err = feed.LoadWallets(walletsPath); err != nil {
					return err
				}
			}

			return opts.withApp(cmd, func(ctx context.Context, a *app) error {
				if err := saveWallets(ctx, a, wallets); err != nil {
					return err
				}
				if _, err := postAll(ctx, a, reqs); err != nil {
					return err
				}
				daily, err := a.daily()
				if err != nil {
					return err
				}
				summary, err := daily.Run(ctx, in)
				if perr := printJSON(cmd.OutOrStdout(), summary); perr != nil {
					return perr
				}
				return errors.Wrapf(err, "run-daily %s", date)
			})
		},
	}
	dateFlag(cmd, &date, true)
	cmd.Flags().StringVar(&feedPath, "feed", "", "Statement file (.json, .yaml or .csv)")
	cmd.Flags().StringVar(&confirmationsPath, "confirmations", "", "Transfer confirmations file")
	cmd.Flags().StringVar(&postingsPath, "postings", "", "Posting requests to record before the run")
	cmd.Flags().StringVar(&walletsPath, "wallets", "", "Wallets to save before the run")
	_ = cmd.MarkFlagRequired("feed")
	return cmd
}
