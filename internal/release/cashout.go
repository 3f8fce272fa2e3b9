package release

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sheikh-saqib/gateway-ledger/internal/models"
	"github.com/sheikh-saqib/gateway-ledger/internal/models/events"
)

// Outcome is what a release run did for one seller.
type Outcome string

const (
	Released        Outcome = "released"
	AlreadyReleased Outcome = "already_released"
	SkippedLocked   Outcome = "skipped_locked"
	SkippedNoFunds  Outcome = "skipped_no_funds"
	SkippedNoWallet Outcome = "skipped_no_wallet"
	Failed          Outcome = "failed"
)

// SellerResult is the release outcome of one seller.
type SellerResult struct {
	SellerID  string          `json:"seller_id"`
	CashoutID string          `json:"cashout_id,omitempty"`
	Amount    decimal.Decimal `json:"amount"`
	Outcome   Outcome         `json:"outcome"`
	Error     string          `json:"error,omitempty"`
}

// ReleaseReport summarizes one D+1 release run.
type ReleaseReport struct {
	DateKey string          `json:"date_key"`
	Sellers []SellerResult  `json:"sellers"`
	Total   decimal.Decimal `json:"total"` // amount released by this run
}

// Count returns how many sellers ended with outcome o.
func (r ReleaseReport) Count(o Outcome) int {
	n := 0
	for _, s := range r.Sellers {
		if s.Outcome == o {
			n++
		}
	}
	return n
}

// CashoutID is the cashout identifier and posting key of a seller's release for dateKey.
func CashoutID(sellerID, dateKey string) string {
	return fmt.Sprintf("cashout:%s:%s", sellerID, dateKey)
}

// Releaser is the D+1 cashout release engine.
type Releaser struct {
	deps Deps
	cfg  Config
	l    *zap.Logger
}

func NewReleaser(deps Deps, cfg Config) *Releaser {
	deps = deps.withDefaults()
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	return &Releaser{deps: deps, cfg: cfg, l: deps.Logger}
}

// Run releases the payable balance of every seller whose snapshot for dateKey
// is unlocked and positive. Sellers are independent: one failing does not stop
// the others, and the run is safe to repeat.
func (r *Releaser) Run(ctx context.Context, dateKey string) (ReleaseReport, error) {
	report := ReleaseReport{DateKey: dateKey, Total: decimal.Zero}

	snaps, err := r.deps.Store.ListSnapshots(ctx, models.SnapshotFilter{DateKey: dateKey, Account: r.cfg.PayableAccount})
	if err != nil {
		return report, errors.Wrapf(err, "list payable snapshots of %s", dateKey)
	}

	var (
		mu sync.Mutex
		g  errgroup.Group
	)
	g.SetLimit(r.cfg.Workers)
	for _, snap := range snaps {
		if snap.SellerID == "" {
			continue
		}
		g.Go(func() error {
			res := r.releaseSeller(ctx, snap)
			mu.Lock()
			report.Sellers = append(report.Sellers, res)
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	sort.Slice(report.Sellers, func(i, j int) bool {
		return report.Sellers[i].SellerID < report.Sellers[j].SellerID
	})
	for _, s := range report.Sellers {
		if s.Outcome == Released {
			report.Total = report.Total.Add(s.Amount)
		}
	}

	r.l.Info("cashout release finished",
		zap.String("date_key", dateKey),
		zap.Int("released", report.Count(Released)),
		zap.Int("locked", report.Count(SkippedLocked)),
		zap.Int("failed", report.Count(Failed)),
		zap.String("total", report.Total.StringFixed(2)),
	)

	if n := report.Count(Failed); n > 0 {
		return report, errors.Errorf("release %s: %d sellers failed", dateKey, n)
	}
	return report, nil
}

func (r *Releaser) releaseSeller(ctx context.Context, snap models.LedgerSnapshot) SellerResult {
	seller := snap.SellerID
	id := CashoutID(seller, snap.DateKey)
	res := SellerResult{SellerID: seller, CashoutID: id, Amount: decimal.Zero}
	log := r.l.With(zap.String("seller_id", seller), zap.String("date_key", snap.DateKey))

	fail := func(err error) SellerResult {
		log.Error("cashout release failed", zap.Error(err))
		res.Outcome = Failed
		res.Error = err.Error()
		return res
	}

	if snap.Locked {
		log.Warn("snapshot locked, seller skipped",
			zap.String("divergence", snap.Divergence.String()), zap.Error(models.ErrSnapshotLocked))
		res.Outcome = SkippedLocked
		return res
	}

	amount, err := r.releasable(ctx, snap)
	if err != nil {
		return fail(err)
	}
	if !amount.IsPositive() {
		res.Outcome = SkippedNoFunds
		return res
	}
	res.Amount = amount

	if existing, err := r.deps.Store.GetCashout(ctx, id); err == nil {
		res.Amount = existing.Amount
		res.Outcome = AlreadyReleased
		return res
	} else if !errors.Is(err, models.ErrNotFound) {
		return fail(errors.Wrap(err, "get cashout"))
	}

	if _, err := r.deps.Store.GetWallet(ctx, seller); err != nil {
		if models.IsNotFound(err) {
			log.Warn("seller has no wallet, skipped", zap.Error(models.ErrMissingCollaboratorData))
			res.Outcome = SkippedNoWallet
			return res
		}
		return fail(errors.Wrap(err, "get wallet"))
	}

	receipt, err := r.deps.Poster.Post(ctx, transfer(id, id, seller, r.cfg.PayableAccount, r.cfg.ClearingAccount, amount))
	if err != nil {
		return fail(errors.Wrap(err, "post cashout"))
	}

	cashout := models.Cashout{
		ID:         id,
		SellerID:   seller,
		DateKey:    snap.DateKey,
		Amount:     amount,
		Status:     models.CashoutLiquidated,
		PostingKey: receipt.IdempotencyKey,
		ReleasedAt: r.deps.Now().UTC(),
	}
	switch err := r.deps.Store.ReleaseToWallet(ctx, cashout); {
	case errors.Is(err, models.ErrAlreadyExists):
		res.Outcome = AlreadyReleased
		return res
	case models.IsNotFound(err):
		// posted but wallet vanished; the posting key makes a retry safe
		log.Warn("wallet disappeared during release", zap.Error(models.ErrMissingCollaboratorData))
		res.Outcome = SkippedNoWallet
		return res
	case err != nil:
		return fail(errors.Wrap(err, "release to wallet"))
	}

	if r.deps.Audit != nil {
		err := r.deps.Audit.Append(models.AuditRecord{
			Kind:       models.AuditCashoutReleased,
			SellerID:   seller,
			DateKey:    snap.DateKey,
			CashoutID:  id,
			PostingKey: cashout.PostingKey,
			Amount:     amount,
			RecordedAt: cashout.ReleasedAt,
		})
		if err != nil {
			log.Error("failed to append audit record", zap.String("cashout_id", id), zap.Error(err))
		}
	}

	r.publish(ctx, cashout)
	log.Info("cashout released", zap.String("cashout_id", id), zap.String("amount", amount.StringFixed(2)))
	res.Outcome = Released
	return res
}

// releasable is the seller's payable natural balance on the snapshot's day,
// leaving out the release postings themselves. A release is stamped on the day
// it runs, so it must not offset the sales of that day.
func (r *Releaser) releasable(ctx context.Context, snap models.LedgerSnapshot) (decimal.Decimal, error) {
	from, to, err := models.DayBounds(snap.DateKey, r.cfg.Location)
	if err != nil {
		return decimal.Zero, err
	}
	entries, err := r.deps.Store.ListEntries(ctx, models.EntryFilter{
		From:     from,
		To:       to,
		SellerID: snap.SellerID,
		Account:  snap.Account,
	})
	if err != nil {
		return decimal.Zero, errors.Wrap(err, "list payable entries")
	}
	balance := decimal.Zero
	for _, e := range entries {
		if e.Source.System == SourceSystem {
			continue
		}
		if e.Side == models.Debit {
			balance = balance.Add(e.Amount)
		} else {
			balance = balance.Sub(e.Amount)
		}
	}
	return r.deps.Chart.Natural(snap.Account, balance).Round(2), nil
}

func (r *Releaser) publish(ctx context.Context, c models.Cashout) {
	if r.deps.Publisher == nil {
		return
	}
	event := events.CashoutReleased{
		CashoutID:  c.ID,
		SellerID:   c.SellerID,
		DateKey:    c.DateKey,
		Amount:     c.Amount,
		OccurredAt: c.ReleasedAt,
	}
	if err := r.deps.Publisher.Publish(ctx, events.TopicCashoutReleased, c.SellerID, event); err != nil {
		r.l.Warn("failed to publish cashout event", zap.String("cashout_id", c.ID), zap.Error(err))
	}
}
