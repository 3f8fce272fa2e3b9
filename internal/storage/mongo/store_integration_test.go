//go:build integration

package mongo

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tcmongo "github.com/testcontainers/testcontainers-go/modules/mongodb"

	"github.com/sheikh-saqib/gateway-ledger/internal/models"
)

func setupStore(t *testing.T) *Store {
	t.Helper()
	ctx := context.Background()

	// transactions need a replica set
	container, err := tcmongo.Run(ctx, "mongo:7", tcmongo.WithReplicaSet("rs0"))
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, container.Terminate(ctx)) })

	uri, err := container.ConnectionString(ctx)
	require.NoError(t, err)

	store, err := Connect(ctx, uri+"/?directConnection=true", "ledger_test")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	require.NoError(t, store.Migrate(ctx))
	return store
}

var created = time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

func TestIntegrationSavePostingIsIdempotent(t *testing.T) {
	ctx := context.Background()
	store := setupStore(t)

	entries := []models.LedgerEntry{
		{ID: "e0", BatchID: "b1", Sequence: 0, Account: "receivable", Side: models.Debit, Amount: decimal.RequireFromString("100.00"), Currency: "BRL", IdempotencyKey: "k1:0", PostingKey: "k1", CreatedAt: created},
		{ID: "e1", BatchID: "b1", Sequence: 1, Account: "payable_seller", Side: models.Credit, Amount: decimal.RequireFromString("100.00"), Currency: "BRL", IdempotencyKey: "k1:1", PostingKey: "k1", CreatedAt: created},
	}
	require.NoError(t, store.SavePosting(ctx, models.Posting{IdempotencyKey: "k1", BatchID: "b1", CreatedAt: created}, entries))
	err := store.SavePosting(ctx, models.Posting{IdempotencyKey: "k1", BatchID: "b2", CreatedAt: created}, entries)
	assert.ErrorIs(t, err, models.ErrDuplicatePosting)

	got, err := store.ListEntries(ctx, models.EntryFilter{From: created.Add(-time.Hour), To: created.Add(time.Hour)})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.True(t, decimal.RequireFromString("100").Equal(got[0].Amount))
	assert.Equal(t, models.Debit, got[0].Side)
}

func TestIntegrationSnapshotLockSurvivesUpsert(t *testing.T) {
	ctx := context.Background()
	store := setupStore(t)

	snap := models.LedgerSnapshot{DateKey: "2026-03-01", Account: "receivable", SellerID: "s",
		Balance: decimal.RequireFromString("100"), DebitTotal: decimal.RequireFromString("100"), CreditTotal: decimal.Zero, UpdatedAt: created}
	require.NoError(t, store.UpsertSnapshot(ctx, snap))
	n, err := store.SetSnapshotLock(ctx, "2026-03-01", true, decimal.RequireFromString("0.01"))
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	require.NoError(t, store.UpsertSnapshot(ctx, snap))

	snaps, err := store.ListSnapshots(ctx, models.SnapshotFilter{DateKey: "2026-03-01"})
	require.NoError(t, err)
	require.Len(t, snaps, 1)
	assert.True(t, snaps[0].Locked)
}

func TestIntegrationReleaseToWallet(t *testing.T) {
	ctx := context.Background()
	store := setupStore(t)
	require.NoError(t, store.SaveWallet(ctx, models.Wallet{SellerID: "s", Pending: decimal.RequireFromString("97")}))

	c := models.Cashout{ID: "cashout:s:2026-03-01", SellerID: "s", DateKey: "2026-03-01",
		Amount: decimal.RequireFromString("97"), Status: models.CashoutLiquidated, ReleasedAt: created}
	require.NoError(t, store.ReleaseToWallet(ctx, c))
	assert.ErrorIs(t, store.ReleaseToWallet(ctx, c), models.ErrAlreadyExists)

	w, err := store.GetWallet(ctx, "s")
	require.NoError(t, err)
	assert.True(t, decimal.RequireFromString("97").Equal(w.Available))
	assert.True(t, w.Pending.IsZero())

	c.ID, c.SellerID = "cashout:nobody:2026-03-01", "nobody"
	assert.ErrorIs(t, store.ReleaseToWallet(ctx, c), models.ErrNotFound)
	_, err = store.GetCashout(ctx, c.ID)
	assert.ErrorIs(t, err, models.ErrNotFound, "aborted transaction leaves no cashout")
}
