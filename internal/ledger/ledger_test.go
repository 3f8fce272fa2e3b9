package ledger_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sheikh-saqib/gateway-ledger/internal/accounts"
	"github.com/sheikh-saqib/gateway-ledger/internal/ledger"
	"github.com/sheikh-saqib/gateway-ledger/internal/models"
	"github.com/sheikh-saqib/gateway-ledger/internal/models/events"
	"github.com/sheikh-saqib/gateway-ledger/internal/storage/memory"
)

type recordingPublisher struct {
	mu     sync.Mutex
	topics []string
}

func (p *recordingPublisher) Publish(_ context.Context, topic, _ string, _ any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.topics = append(p.topics, topic)
	return nil
}

func line(account string, side models.Side, amount string) models.PostingLine {
	return models.PostingLine{Account: account, Side: side, Amount: decimal.RequireFromString(amount)}
}

func saleRequest(key string) models.PostingRequest {
	return models.PostingRequest{
		Entries: []models.PostingLine{
			line(accounts.Receivable, models.Debit, "100.00"),
			line(accounts.PayableSeller, models.Credit, "97.00"),
			line(accounts.FeeRevenue, models.Credit, "3.00"),
		},
		Context: models.PostingContext{
			IdempotencyKey: key,
			TransactionID:  "tx-" + key,
			SellerID:       "seller-1",
			Source:         models.Source{System: "checkout", Acquirer: "cielo"},
		},
	}
}

func newLedger(store *memory.MemoryLedgerStore, opts ...ledger.Option) *ledger.Ledger {
	fixed := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	opts = append([]ledger.Option{ledger.WithClock(func() time.Time { return fixed })}, opts...)
	return ledger.NewLedger(store, accounts.Default(), opts...)
}

func TestPostBalancedSale(t *testing.T) {
	ctx := context.Background()
	store := memory.NewMemoryLedgerStore()
	pub := &recordingPublisher{}
	l := newLedger(store, ledger.WithPublisher(pub))

	receipt, err := l.Post(ctx, saleRequest("key-a"))
	require.NoError(t, err)
	assert.False(t, receipt.Replayed)
	assert.Equal(t, 3, receipt.Entries)

	entries, err := l.GetLedgerEntries(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 3)

	debit, credit := decimal.Zero, decimal.Zero
	for i, e := range entries {
		assert.Equal(t, i, e.Sequence)
		assert.Equal(t, receipt.BatchID, e.BatchID)
		assert.Equal(t, "BRL", e.Currency)
		assert.Equal(t, "key-a", e.PostingKey)
		if e.Side == models.Debit {
			debit = debit.Add(e.Amount)
		} else {
			credit = credit.Add(e.Amount)
		}
	}
	assert.True(t, debit.Equal(credit))
	assert.Equal(t, -1, ledger.VerifyChain(entries))
	assert.Equal(t, []string{events.TopicPostingRecorded}, pub.topics)
}

func TestPostRejectsUnbalanced(t *testing.T) {
	ctx := context.Background()
	store := memory.NewMemoryLedgerStore()
	l := newLedger(store)

	req := saleRequest("key-b")
	req.Entries[2].Amount = decimal.RequireFromString("2.99")

	_, err := l.Post(ctx, req)
	require.ErrorIs(t, err, models.ErrUnbalancedBatch)

	entries, err := store.GetLedgerEntries(ctx)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestPostRoundsToCents(t *testing.T) {
	ctx := context.Background()
	store := memory.NewMemoryLedgerStore()
	l := newLedger(store)

	req := models.PostingRequest{
		Entries: []models.PostingLine{
			line(accounts.Receivable, models.Debit, "10.004"),
			line(accounts.PayableSeller, models.Credit, "10.00"),
		},
		Context: models.PostingContext{IdempotencyKey: "round", TransactionID: "tx"},
	}
	_, err := l.Post(ctx, req)
	require.NoError(t, err)

	bal, err := l.GetBalance(ctx, accounts.Receivable)
	require.NoError(t, err)
	assert.True(t, decimal.NewFromInt(10).Equal(bal))
}

func TestPostValidation(t *testing.T) {
	ctx := context.Background()
	l := newLedger(memory.NewMemoryLedgerStore())

	cases := map[string]func(r *models.PostingRequest){
		"single line":     func(r *models.PostingRequest) { r.Entries = r.Entries[:1] },
		"unknown account": func(r *models.PostingRequest) { r.Entries[0].Account = "nope" },
		"bad side":        func(r *models.PostingRequest) { r.Entries[0].Side = "sideways" },
		"zero amount":     func(r *models.PostingRequest) { r.Entries[1].Amount = decimal.Zero },
		"negative amount": func(r *models.PostingRequest) { r.Entries[1].Amount = decimal.NewFromInt(-97) },
		"missing key":     func(r *models.PostingRequest) { r.Context.IdempotencyKey = "" },
		"missing tx":      func(r *models.PostingRequest) { r.Context.TransactionID = "" },
		"mixed currency":  func(r *models.PostingRequest) { r.Entries[1].Currency = "USD" },
	}

	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			req := saleRequest("key-v")
			mutate(&req)
			_, err := l.Post(ctx, req)
			require.ErrorIs(t, err, models.ErrInvalidPosting)
			var verr models.ValidationError
			require.ErrorAs(t, err, &verr)
		})
	}
}

func TestPostIsIdempotent(t *testing.T) {
	ctx := context.Background()
	store := memory.NewMemoryLedgerStore()
	l := newLedger(store)

	first, err := l.Post(ctx, saleRequest("key-c"))
	require.NoError(t, err)

	second, err := l.Post(ctx, saleRequest("key-c"))
	require.NoError(t, err)
	assert.True(t, second.Replayed)
	assert.Empty(t, second.BatchID)

	entries, err := store.GetLedgerEntries(ctx)
	require.NoError(t, err)
	assert.Len(t, entries, 3)
	assert.Equal(t, first.BatchID, entries[0].BatchID)
}

func TestConcurrentRetriesWriteOnce(t *testing.T) {
	ctx := context.Background()
	store := memory.NewMemoryLedgerStore()
	l := newLedger(store)

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := l.Post(ctx, saleRequest("webhook-retry"))
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	entries, err := store.GetLedgerEntries(ctx)
	require.NoError(t, err)
	assert.Len(t, entries, 3)
}

func TestGetBalance(t *testing.T) {
	ctx := context.Background()
	l := newLedger(memory.NewMemoryLedgerStore())

	_, err := l.Post(ctx, saleRequest("k1"))
	require.NoError(t, err)
	_, err = l.Post(ctx, saleRequest("k2"))
	require.NoError(t, err)

	bal, err := l.GetBalance(ctx, accounts.PayableSeller)
	require.NoError(t, err)
	assert.True(t, decimal.RequireFromString("-194").Equal(bal))
}
