package cli

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/sheikh-saqib/gateway-ledger/internal/feed"
	"github.com/sheikh-saqib/gateway-ledger/internal/models"
)

func newPostCmd(opts *rootOptions) *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "post",
		Short: "Record the posting requests of a JSON or YAML file",
		RunE: func(cmd *cobra.Command, _ []string) error {
			reqs, err := feed.LoadPostingRequests(file)
			if err != nil {
				return err
			}
			return opts.withApp(cmd, func(ctx context.Context, a *app) error {
				receipts, err := postAll(ctx, a, reqs)
				if perr := printJSON(cmd.OutOrStdout(), receipts); perr != nil {
					return perr
				}
				return err
			})
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "Posting requests file")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

// postAll stops at the first rejected request and returns the receipts so far.
func postAll(ctx context.Context, a *app, reqs []models.PostingRequest) ([]models.PostingReceipt, error) {
	l := a.ledger()
	receipts := make([]models.PostingReceipt, 0, len(reqs))
	for i, req := range reqs {
		receipt, err := l.Post(ctx, req)
		if err != nil {
			return receipts, errors.Wrapf(err, "posting %d (%s)", i, req.Context.IdempotencyKey)
		}
		receipts = append(receipts, receipt)
	}
	return receipts, nil
}

func newBalanceCmd(opts *rootOptions) *cobra.Command {
	var sellerID, account, asOf string
	cmd := &cobra.Command{
		Use:   "balance",
		Short: "Show a seller's balance sheet, or one account, from daily snapshots",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return opts.withApp(cmd, func(ctx context.Context, a *app) error {
				at := time.Now().In(a.loc)
				if asOf != "" {
					_, end, err := models.DayBounds(asOf, a.loc)
					if err != nil {
						return err
					}
					at = end
				}
				cons := a.consolidator()
				if account != "" {
					bal, err := cons.AccountBalance(ctx, sellerID, account, at)
					if err != nil {
						return err
					}
					return printJSON(cmd.OutOrStdout(), bal)
				}
				sheet, err := cons.BalanceSheet(ctx, sellerID, at)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), sheet)
			})
		},
	}
	cmd.Flags().StringVar(&sellerID, "seller", "", "Seller ID")
	cmd.Flags().StringVar(&account, "account", "", "Single account to show")
	cmd.Flags().StringVar(&asOf, "as-of", "", "Last day included (YYYY-MM-DD, default today)")
	_ = cmd.MarkFlagRequired("seller")
	return cmd
}

func newTrialBalanceCmd(opts *rootOptions) *cobra.Command {
	var from, to string
	var series bool
	cmd := &cobra.Command{
		Use:   "trial-balance",
		Short: "Sum every account's snapshots over a date range",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return opts.withApp(cmd, func(ctx context.Context, a *app) error {
				cons := a.consolidator()
				if series {
					points, err := cons.BalanceSeries(ctx, from, to)
					if err != nil {
						return err
					}
					return printJSON(cmd.OutOrStdout(), points)
				}
				tb, err := cons.TrialBalance(ctx, from, to)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), tb)
			})
		},
	}
	cmd.Flags().StringVar(&from, "from", "", "First day (YYYY-MM-DD)")
	cmd.Flags().StringVar(&to, "to", "", "Last day (YYYY-MM-DD)")
	cmd.Flags().BoolVar(&series, "series", false, "Print the per-day balance series instead")
	_ = cmd.MarkFlagRequired("from")
	_ = cmd.MarkFlagRequired("to")
	return cmd
}

func newWalletCmd(opts *rootOptions) *cobra.Command {
	walletCmd := &cobra.Command{
		Use:   "wallet",
		Short: "Inspect or seed seller wallets",
	}

	var sellerID string
	showCmd := &cobra.Command{
		Use:   "show",
		Short: "Show a seller wallet",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return opts.withApp(cmd, func(ctx context.Context, a *app) error {
				w, err := a.store.GetWallet(ctx, sellerID)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), w)
			})
		},
	}
	showCmd.Flags().StringVar(&sellerID, "seller", "", "Seller ID")
	_ = showCmd.MarkFlagRequired("seller")

	var file string
	loadCmd := &cobra.Command{
		Use:   "load",
		Short: "Create or replace wallets from a JSON or YAML file",
		RunE: func(cmd *cobra.Command, _ []string) error {
			wallets, err := feed.LoadWallets(file)
			if err != nil {
				return err
			}
			return opts.withApp(cmd, func(ctx context.Context, a *app) error {
				if err := saveWallets(ctx, a, wallets); err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), map[string]int{"wallets": len(wallets)})
			})
		},
	}
	loadCmd.Flags().StringVarP(&file, "file", "f", "", "Wallets file")
	_ = loadCmd.MarkFlagRequired("file")

	walletCmd.AddCommand(showCmd, loadCmd)
	return walletCmd
}

func saveWallets(ctx context.Context, a *app, wallets []models.Wallet) error {
	for _, w := range wallets {
		if w.UpdatedAt.IsZero() {
			w.UpdatedAt = time.Now().UTC()
		}
		if err := a.store.SaveWallet(ctx, w); err != nil {
			return errors.Wrapf(err, "save wallet %s", w.SellerID)
		}
	}
	return nil
}
