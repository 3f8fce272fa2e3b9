package pipeline_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sheikh-saqib/gateway-ledger/internal/accounts"
	"github.com/sheikh-saqib/gateway-ledger/internal/audit"
	"github.com/sheikh-saqib/gateway-ledger/internal/closing"
	"github.com/sheikh-saqib/gateway-ledger/internal/ledger"
	"github.com/sheikh-saqib/gateway-ledger/internal/lock/local"
	"github.com/sheikh-saqib/gateway-ledger/internal/models"
	"github.com/sheikh-saqib/gateway-ledger/internal/pipeline"
	"github.com/sheikh-saqib/gateway-ledger/internal/proof"
	"github.com/sheikh-saqib/gateway-ledger/internal/reconciliation"
	"github.com/sheikh-saqib/gateway-ledger/internal/release"
	"github.com/sheikh-saqib/gateway-ledger/internal/storage/memory"
	"github.com/sheikh-saqib/gateway-ledger/internal/storage/wal"
)

const dateKey = "2026-03-01"

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

type env struct {
	store  *memory.MemoryLedgerStore
	ledger *ledger.Ledger
	audit  *wal.AuditStore
	daily  *pipeline.Daily
	now    time.Time
}

func (e *env) clock() time.Time { return e.now }

func newEnv(t *testing.T) *env {
	t.Helper()
	e := &env{
		store: memory.NewMemoryLedgerStore(),
		now:   time.Date(2026, 3, 1, 14, 30, 0, 0, time.UTC),
	}
	auditStore, err := wal.NewAuditStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = auditStore.Close() })
	e.audit = auditStore

	chart := accounts.Default()
	locker := local.New()
	e.ledger = ledger.NewLedger(e.store, chart, ledger.WithClock(e.clock))
	cons := closing.NewConsolidator(e.store, chart, time.UTC, nil)
	deps := release.Deps{Store: e.store, Poster: e.ledger, Chart: chart, Audit: auditStore, Now: e.clock}
	cfg := release.DefaultConfig()

	e.daily = pipeline.NewDaily(pipeline.Steps{
		Closer:     closing.NewBatchCloser(e.store, cons, locker, nil, time.UTC, nil),
		Auditor:    audit.NewAuditor(e.store, time.UTC, nil),
		Reconciler: reconciliation.NewEngine(e.store, chart),
		Releaser:   release.NewReleaser(deps, cfg),
		Settler:    release.NewSettler(deps, cfg),
		Proofs:     proof.NewGenerator(e.store, t.TempDir(), []byte("k"), nil),
	}, locker, true, nil)

	require.NoError(t, e.store.SaveWallet(context.Background(), models.Wallet{SellerID: "seller-1", Pending: d("97.00")}))
	return e
}

// sale is scenario A's posting.
func (e *env) sale(t *testing.T, key string) models.PostingReceipt {
	t.Helper()
	receipt, err := e.ledger.Post(context.Background(), models.PostingRequest{
		Entries: []models.PostingLine{
			{Account: accounts.Receivable, Side: models.Debit, Amount: d("100.00")},
			{Account: accounts.PayableSeller, Side: models.Credit, Amount: d("97.00")},
			{Account: accounts.FeeRevenue, Side: models.Credit, Amount: d("3.00")},
		},
		Context: models.PostingContext{
			IdempotencyKey: key,
			TransactionID:  "tx-" + key,
			SellerID:       "seller-1",
			Source:         models.Source{System: "checkout", Acquirer: "acq"},
		},
	})
	require.NoError(t, err)
	return receipt
}

func feed(receivable string) []models.StatementRow {
	return []models.StatementRow{
		{Account: accounts.Receivable, Balance: d(receivable), Source: models.SourceAcquirer},
		{Account: accounts.PayableSeller, Balance: d("97.00"), Source: models.SourceBank},
		{Account: accounts.FeeRevenue, Balance: d("3.00"), Source: models.SourceBank},
	}
}

func (e *env) nextDay() { e.now = e.now.AddDate(0, 0, 1) }

func TestScenarioAPostsBalancedBatch(t *testing.T) {
	e := newEnv(t)
	receipt := e.sale(t, "sale-a")
	assert.Equal(t, 3, receipt.Entries)
	assert.False(t, receipt.Replayed)

	entries, err := e.store.ListEntries(context.Background(), models.EntryFilter{BatchID: receipt.BatchID})
	require.NoError(t, err)
	require.Len(t, entries, 3)
	debit, credit := decimal.Zero, decimal.Zero
	for _, en := range entries {
		if en.Side == models.Debit {
			debit = debit.Add(en.Amount)
		} else {
			credit = credit.Add(en.Amount)
		}
	}
	assert.True(t, debit.Equal(credit))
	assert.True(t, d("100.00").Equal(debit))
}

func TestScenarioBSnapshotsAfterClose(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	e.sale(t, "sale-a")
	e.nextDay()

	_, err := e.daily.Run(ctx, pipeline.Input{DateKey: dateKey, Feed: feed("100.00")})
	require.NoError(t, err)

	snaps, err := e.store.ListSnapshots(ctx, models.SnapshotFilter{DateKey: dateKey, Account: accounts.PayableSeller, SellerID: "seller-1"})
	require.NoError(t, err)
	require.Len(t, snaps, 1)
	assert.True(t, d("97.00").Equal(snaps[0].CreditTotal))
	assert.True(t, snaps[0].DebitTotal.IsZero())
	assert.True(t, d("-97.00").Equal(snaps[0].Balance))
}

func TestScenarioCReconciledDayReleasesFunds(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	e.sale(t, "sale-a")
	e.nextDay()

	summary, err := e.daily.Run(ctx, pipeline.Input{DateKey: dateKey, Feed: feed("100.00")})
	require.NoError(t, err)
	require.NotNil(t, summary.Integrity)
	assert.True(t, summary.Integrity.Healthy())
	require.NotNil(t, summary.Reconciliation)
	assert.False(t, summary.Reconciliation.Locked)
	require.NotNil(t, summary.Release)
	assert.Equal(t, 1, summary.Release.Count(release.Released))
	require.NotNil(t, summary.Proof)
	assert.NoError(t, proof.Verify(summary.Proof, []byte("k")))

	w, err := e.store.GetWallet(ctx, "seller-1")
	require.NoError(t, err)
	assert.True(t, d("97.00").Equal(w.Available), w.Available.String())

	records, err := e.audit.Records()
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, release.CashoutID("seller-1", dateKey), records[0].CashoutID)

	// a second run of the same day moves nothing
	summary, err = e.daily.Run(ctx, pipeline.Input{DateKey: dateKey, Feed: feed("100.00")})
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Release.Count(release.AlreadyReleased))
	w, err = e.store.GetWallet(ctx, "seller-1")
	require.NoError(t, err)
	assert.True(t, d("97.00").Equal(w.Available))
}

func TestScenarioDDivergentDayMovesNothing(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	e.sale(t, "sale-a")
	e.nextDay()

	summary, err := e.daily.Run(ctx, pipeline.Input{DateKey: dateKey, Feed: feed("99.00")})
	require.NoError(t, err)
	require.NotNil(t, summary.Reconciliation)
	assert.True(t, summary.Reconciliation.Locked)
	assert.True(t, d("0.01").Equal(summary.Reconciliation.Divergence))
	assert.Equal(t, 1, summary.Release.Count(release.SkippedLocked))

	w, err := e.store.GetWallet(ctx, "seller-1")
	require.NoError(t, err)
	assert.True(t, w.Available.IsZero())
	assert.True(t, d("97.00").Equal(w.Pending))

	cashouts, err := e.store.ListCashouts(ctx, models.CashoutFilter{})
	require.NoError(t, err)
	assert.Empty(t, cashouts)
	records, err := e.audit.Records()
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestConsecutiveDaysReleaseEachDaySales(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	e.sale(t, "sale-a")
	e.nextDay()

	summary, err := e.daily.Run(ctx, pipeline.Input{DateKey: dateKey, Feed: feed("100.00")})
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Release.Count(release.Released))

	// the day-one release debit is stamped on day two, next to a new sale
	e.sale(t, "sale-b")
	e.nextDay()

	const dayTwo = "2026-03-02"
	summary, err = e.daily.Run(ctx, pipeline.Input{DateKey: dayTwo, Feed: feed("100.00")})
	require.NoError(t, err)
	assert.False(t, summary.Reconciliation.Locked)
	require.Len(t, summary.Release.Sellers, 1)
	assert.Equal(t, release.Released, summary.Release.Sellers[0].Outcome)
	assert.True(t, d("97.00").Equal(summary.Release.Sellers[0].Amount), summary.Release.Sellers[0].Amount.String())

	snaps, err := e.store.ListSnapshots(ctx, models.SnapshotFilter{DateKey: dayTwo, Account: accounts.PayableSeller, SellerID: "seller-1"})
	require.NoError(t, err)
	require.Len(t, snaps, 1)
	assert.True(t, d("97.00").Equal(snaps[0].DebitTotal))
	assert.True(t, d("97.00").Equal(snaps[0].CreditTotal))

	w, err := e.store.GetWallet(ctx, "seller-1")
	require.NoError(t, err)
	assert.True(t, d("194.00").Equal(w.Available), w.Available.String())

	cashouts, err := e.store.ListCashouts(ctx, models.CashoutFilter{SellerID: "seller-1"})
	require.NoError(t, err)
	assert.Len(t, cashouts, 2)
}

func TestIntegrityFailureHaltsRelease(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	e.sale(t, "sale-a")

	// a posting written around the engine with a wrong chain
	bad := []models.LedgerEntry{
		{ID: "x-0", BatchID: "x", Sequence: 0, Account: accounts.Cash, Side: models.Debit, Amount: d("5"), Currency: "BRL", SideHash: "bad", IdempotencyKey: "x:0", CreatedAt: e.now},
		{ID: "x-1", BatchID: "x", Sequence: 1, Account: accounts.OwnerEquity, Side: models.Credit, Amount: d("5"), Currency: "BRL", SideHash: "bad", IdempotencyKey: "x:1", CreatedAt: e.now},
	}
	require.NoError(t, e.store.SavePosting(ctx, models.Posting{IdempotencyKey: "x", BatchID: "x"}, bad))
	e.nextDay()

	rows := append(feed("100.00"), models.StatementRow{Account: accounts.Cash, Balance: d("5.00"), Source: models.SourceBank})
	summary, err := e.daily.Run(ctx, pipeline.Input{DateKey: dateKey, Feed: rows})
	require.NoError(t, err)
	require.NotNil(t, summary.Integrity)
	assert.Equal(t, 1, summary.Integrity.BrokenHashes)
	assert.NotEmpty(t, summary.ReleaseHalted)
	assert.Nil(t, summary.Release)
	assert.NotNil(t, summary.Proof)

	w, err := e.store.GetWallet(ctx, "seller-1")
	require.NoError(t, err)
	assert.True(t, w.Available.IsZero())
}

func TestSettlementAfterLag(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	e.sale(t, "sale-a")
	e.nextDay()
	_, err := e.daily.Run(ctx, pipeline.Input{DateKey: dateKey, Feed: feed("100.00")})
	require.NoError(t, err)

	// two days later a new day closes and the transfer confirmation arrives
	e.now = time.Date(2026, 3, 3, 9, 0, 0, 0, time.UTC)
	e.sale(t, "sale-b")
	e.nextDay()
	// day 3 holds sale-b plus nothing else; receivable 100 and payable 97 again
	summary, err := e.daily.Run(ctx, pipeline.Input{
		DateKey:       "2026-03-03",
		Feed:          feed("100.00"),
		Confirmations: []models.TransferConfirmation{{Reference: "wire-1", Amount: d("97.00")}},
	})
	require.NoError(t, err)
	require.NotNil(t, summary.Settlement)
	require.Len(t, summary.Settlement.Settled, 1)
	assert.Equal(t, release.CashoutID("seller-1", dateKey), summary.Settlement.Settled[0].CashoutID)

	c, err := e.store.GetCashout(ctx, release.CashoutID("seller-1", dateKey))
	require.NoError(t, err)
	assert.Equal(t, models.CashoutSettled, c.Status)
}

func TestEmptyDayAborts(t *testing.T) {
	e := newEnv(t)
	_, err := e.daily.Run(context.Background(), pipeline.Input{DateKey: dateKey})
	assert.ErrorIs(t, err, models.ErrNoEntries)
}
