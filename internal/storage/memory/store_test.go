package memory

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sheikh-saqib/gateway-ledger/internal/models"
)

func entry(batch string, seq int, key string) models.LedgerEntry {
	return models.LedgerEntry{
		ID:             batch + key,
		BatchID:        batch,
		Sequence:       seq,
		Account:        "cash",
		Side:           models.Debit,
		Amount:         decimal.NewFromInt(1),
		IdempotencyKey: key,
		CreatedAt:      time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC),
	}
}

func TestSavePostingRejectsDuplicatesAtomically(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryLedgerStore()

	require.NoError(t, s.SavePosting(ctx, models.Posting{IdempotencyKey: "k1", BatchID: "b1"},
		[]models.LedgerEntry{entry("b1", 0, "k1:0"), entry("b1", 1, "k1:1")}))

	err := s.SavePosting(ctx, models.Posting{IdempotencyKey: "k1", BatchID: "b2"},
		[]models.LedgerEntry{entry("b2", 0, "x:0")})
	require.ErrorIs(t, err, models.ErrDuplicatePosting)

	// second line collides with a stored entry key: the first line must not be written either
	err = s.SavePosting(ctx, models.Posting{IdempotencyKey: "k2", BatchID: "b3"},
		[]models.LedgerEntry{entry("b3", 0, "k2:0"), entry("b3", 1, "k1:1")})
	require.ErrorIs(t, err, models.ErrDuplicatePosting)

	all, err := s.GetLedgerEntries(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	exists, err := s.PostingExists(ctx, "k2")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestSavePostingRejectsReusedBatchID(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryLedgerStore()

	require.NoError(t, s.SavePosting(ctx, models.Posting{IdempotencyKey: "k1", BatchID: "b1"},
		[]models.LedgerEntry{entry("b1", 0, "k1:0"), entry("b1", 1, "k1:1")}))

	err := s.SavePosting(ctx, models.Posting{IdempotencyKey: "k2", BatchID: "b1"},
		[]models.LedgerEntry{entry("b1", 0, "k2:0"), entry("b1", 1, "k2:1")})
	require.ErrorIs(t, err, models.ErrAlreadyExists)

	all, err := s.GetLedgerEntries(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	exists, err := s.PostingExists(ctx, "k2")
	require.NoError(t, err)
	assert.False(t, exists)

	require.NoError(t, s.SavePosting(ctx, models.Posting{IdempotencyKey: "k2", BatchID: "b2"},
		[]models.LedgerEntry{entry("b2", 0, "k2:0"), entry("b2", 1, "k2:1")}))
}

func TestUpsertSnapshotPreservesLock(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryLedgerStore()

	snap := models.LedgerSnapshot{DateKey: "2026-03-01", Account: "cash", SellerID: "s1", DebitTotal: decimal.NewFromInt(10)}
	require.NoError(t, s.UpsertSnapshot(ctx, snap))

	n, err := s.SetSnapshotLock(ctx, "2026-03-01", true, decimal.RequireFromString("0.01"))
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	snap.DebitTotal = decimal.NewFromInt(20)
	snap.Locked = false
	require.NoError(t, s.UpsertSnapshot(ctx, snap))

	got, err := s.ListSnapshots(ctx, models.SnapshotFilter{DateKey: "2026-03-01"})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.True(t, got[0].Locked)
	assert.True(t, decimal.NewFromInt(20).Equal(got[0].DebitTotal))
	assert.True(t, decimal.RequireFromString("0.01").Equal(got[0].Divergence))
}

func TestReleaseToWallet(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryLedgerStore()

	c := models.Cashout{ID: "cashout:s1:2026-03-01", SellerID: "s1", Amount: decimal.NewFromInt(97), Status: models.CashoutLiquidated}
	require.ErrorIs(t, s.ReleaseToWallet(ctx, c), models.ErrNotFound)

	require.NoError(t, s.SaveWallet(ctx, models.Wallet{SellerID: "s1", Pending: decimal.NewFromInt(97)}))
	require.NoError(t, s.ReleaseToWallet(ctx, c))
	require.ErrorIs(t, s.ReleaseToWallet(ctx, c), models.ErrAlreadyExists)

	w, err := s.GetWallet(ctx, "s1")
	require.NoError(t, err)
	assert.True(t, decimal.NewFromInt(97).Equal(w.Available))
	assert.True(t, w.Pending.IsZero())

	require.NoError(t, s.MarkCashoutSettled(ctx, c.ID, "ref-1", time.Now()))
	got, err := s.GetCashout(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, models.CashoutSettled, got.Status)
	assert.Equal(t, "ref-1", got.SettlementReference)
}

func TestCreateDailyBatchUniquePerDay(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryLedgerStore()

	require.NoError(t, s.CreateDailyBatch(ctx, models.LedgerBatch{DateKey: "2026-03-01", Closed: true}))
	require.ErrorIs(t, s.CreateDailyBatch(ctx, models.LedgerBatch{DateKey: "2026-03-01"}), models.ErrAlreadyExists)

	_, err := s.GetDailyBatch(ctx, "2026-03-02")
	require.ErrorIs(t, err, models.ErrNotFound)
}
