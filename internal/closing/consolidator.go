// Package closing turns a day of ledger entries into an immutable daily batch
// and per-account balance snapshots.
package closing

import (
	"context"
	"fmt"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/sheikh-saqib/gateway-ledger/internal/accounts"
	interfaces "github.com/sheikh-saqib/gateway-ledger/internal/interfaces"
	"github.com/sheikh-saqib/gateway-ledger/internal/models"
)

// ConsolidatorStore is what the consolidator reads and writes.
type ConsolidatorStore interface {
	ListEntries(ctx context.Context, filter models.EntryFilter) ([]models.LedgerEntry, error)
	UpsertSnapshot(ctx context.Context, snapshot models.LedgerSnapshot) error
	ListSnapshots(ctx context.Context, filter models.SnapshotFilter) ([]models.LedgerSnapshot, error)
}

// Consolidator aggregates entries into daily snapshots and answers balance queries.
type Consolidator struct {
	store ConsolidatorStore
	chart *accounts.Chart
	loc   *time.Location
	now   func() time.Time
	l     *zap.Logger
}

// NewConsolidator creates a consolidator. loc decides day boundaries.
func NewConsolidator(store ConsolidatorStore, chart *accounts.Chart, loc *time.Location, logger *zap.Logger) *Consolidator {
	if loc == nil {
		loc = time.UTC
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Consolidator{store: store, chart: chart, loc: loc, now: time.Now, l: logger}
}

type groupKey struct {
	account  string
	sellerID string
}

// CreateDailySnapshots upserts one snapshot per (account, seller) touched on
// dateKey. Re-running recomputes the totals; lock state is left alone.
func (c *Consolidator) CreateDailySnapshots(ctx context.Context, dateKey string) (int, error) {
	from, to, err := models.DayBounds(dateKey, c.loc)
	if err != nil {
		return 0, err
	}

	entries, err := c.store.ListEntries(ctx, models.EntryFilter{From: from, To: to})
	if err != nil {
		return 0, errors.Wrapf(err, "list entries of %s", dateKey)
	}

	groups := aggregate(entries)
	now := c.now().UTC()

	for k, t := range groups {
		snap := models.LedgerSnapshot{
			DateKey:     dateKey,
			SellerID:    k.sellerID,
			Account:     k.account,
			DebitTotal:  t.debit,
			CreditTotal: t.credit,
			Balance:     t.debit.Sub(t.credit),
			UpdatedAt:   now,
		}
		if err := c.store.UpsertSnapshot(ctx, snap); err != nil {
			return 0, errors.Wrapf(err, "upsert snapshot %s/%s/%s", dateKey, k.account, k.sellerID)
		}
	}

	c.l.Info("daily snapshots consolidated",
		zap.String("date_key", dateKey),
		zap.Int("entries", len(entries)),
		zap.Int("snapshots", len(groups)))

	return len(groups), nil
}

type totals struct {
	debit  decimal.Decimal
	credit decimal.Decimal
}

func aggregate(entries []models.LedgerEntry) map[groupKey]totals {
	groups := make(map[groupKey]totals)
	for _, e := range entries {
		k := groupKey{account: e.Account, sellerID: e.SellerID}
		t, ok := groups[k]
		if !ok {
			t = totals{debit: decimal.Zero, credit: decimal.Zero}
		}
		if e.Side == models.Debit {
			t.debit = t.debit.Add(e.Amount)
		} else {
			t.credit = t.credit.Add(e.Amount)
		}
		groups[k] = t
	}
	return groups
}

// SnapshotID formats a snapshot identity for reports and logs.
func SnapshotID(dateKey, account, sellerID string) string {
	return fmt.Sprintf("%s/%s/%s", dateKey, account, sellerID)
}

var _ ConsolidatorStore = (interfaces.Store)(nil)
