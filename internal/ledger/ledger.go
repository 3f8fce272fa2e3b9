package ledger

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/sheikh-saqib/gateway-ledger/internal/accounts"
	interfaces "github.com/sheikh-saqib/gateway-ledger/internal/interfaces"
	"github.com/sheikh-saqib/gateway-ledger/internal/models"
	"github.com/sheikh-saqib/gateway-ledger/internal/models/events"
)

// DefaultCurrency is used for lines that do not name one.
const DefaultCurrency = "BRL"

// Ledger is the posting engine. It is the only writer of ledger entries.
type Ledger struct {
	store     interfaces.LedgerStore
	chart     *accounts.Chart
	publisher interfaces.EventPublisher
	currency  string
	now       func() time.Time
	l         *zap.Logger
}

// Option configures a Ledger.
type Option func(*Ledger)

// WithPublisher publishes a PostingRecorded event after every new posting.
func WithPublisher(p interfaces.EventPublisher) Option {
	return func(l *Ledger) {
		l.publisher = p
	}
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(l *Ledger) {
		if logger != nil {
			l.l = logger
		}
	}
}

// WithClock overrides the time source used for CreatedAt.
func WithClock(now func() time.Time) Option {
	return func(l *Ledger) {
		if now != nil {
			l.now = now
		}
	}
}

// WithCurrency sets the currency applied to lines without one.
func WithCurrency(currency string) Option {
	return func(l *Ledger) {
		if currency != "" {
			l.currency = currency
		}
	}
}

// NewLedger creates a posting engine over store, validating accounts against chart.
func NewLedger(store interfaces.LedgerStore, chart *accounts.Chart, opts ...Option) *Ledger {
	l := &Ledger{
		store:    store,
		chart:    chart,
		currency: DefaultCurrency,
		now:      time.Now,
		l:        zap.NewNop(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Chart returns the chart of accounts the ledger validates against.
func (l *Ledger) Chart() *accounts.Chart {
	return l.chart
}

// Post records a balanced set of lines as one atomic posting. A request whose
// idempotency key was already posted is a no-op and returns a receipt with
// Replayed set.
func (l *Ledger) Post(ctx context.Context, req models.PostingRequest) (models.PostingReceipt, error) {
	key := strings.TrimSpace(req.Context.IdempotencyKey)
	receipt := models.PostingReceipt{IdempotencyKey: key}

	lines, err := l.normalize(req)
	if err != nil {
		return receipt, err
	}

	// Idempotency check
	exists, err := l.store.PostingExists(ctx, key)
	if err != nil {
		return receipt, errors.Wrap(err, "check posting key")
	}
	if exists {
		l.l.Debug("posting replayed", zap.String("idempotency_key", key))
		receipt.Replayed = true
		return receipt, nil
	}

	batchID := uuid.New().String()
	createdAt := l.now().UTC()

	var chain Chain
	entries := make([]models.LedgerEntry, len(lines))
	for i, line := range lines {
		entries[i] = models.LedgerEntry{
			ID:             uuid.New().String(),
			TransactionID:  req.Context.TransactionID,
			SellerID:       req.Context.SellerID,
			BatchID:        batchID,
			Sequence:       i,
			Account:        line.Account,
			Side:           line.Side,
			Amount:         line.Amount,
			Currency:       line.Currency,
			SideHash:       chain.Next(line.Account, line.Side, line.Amount, line.Currency),
			IdempotencyKey: fmt.Sprintf("%s:%d", key, i),
			PostingKey:     key,
			Source:         req.Context.Source,
			CreatedAt:      createdAt,
			EventAt:        req.Context.EventAt,
		}
	}

	posting := models.Posting{
		IdempotencyKey: key,
		TransactionID:  req.Context.TransactionID,
		SellerID:       req.Context.SellerID,
		BatchID:        batchID,
		EntryCount:     len(entries),
		CreatedAt:      createdAt,
	}

	if err := l.store.SavePosting(ctx, posting, entries); err != nil {
		if errors.Is(err, models.ErrDuplicatePosting) {
			// lost the race against a concurrent retry of the same request
			receipt.Replayed = true
			return receipt, nil
		}
		return receipt, errors.Wrap(err, "save posting")
	}

	receipt.BatchID = batchID
	receipt.Entries = len(entries)

	l.l.Info("posting recorded",
		zap.String("idempotency_key", key),
		zap.String("transaction_id", req.Context.TransactionID),
		zap.String("seller_id", req.Context.SellerID),
		zap.String("batch_id", batchID),
		zap.Int("entries", len(entries)))

	l.publish(ctx, posting, entries, req.Context.Source)

	return receipt, nil
}

func (l *Ledger) normalize(req models.PostingRequest) ([]models.PostingLine, error) {
	if strings.TrimSpace(req.Context.IdempotencyKey) == "" {
		return nil, models.ValidationError{Field: "context.idempotencyKey", Message: "is required"}
	}
	if strings.TrimSpace(req.Context.TransactionID) == "" {
		return nil, models.ValidationError{Field: "context.transactionId", Message: "is required"}
	}
	if len(req.Entries) < 2 {
		return nil, models.ValidationError{Field: "entries", Message: "a posting needs at least two lines"}
	}

	lines := make([]models.PostingLine, len(req.Entries))
	debit, credit := decimal.Zero, decimal.Zero
	currency := ""

	for i, in := range req.Entries {
		field := fmt.Sprintf("entries[%d]", i)

		if !l.chart.Has(in.Account) {
			return nil, models.ValidationError{Field: field + ".account", Message: fmt.Sprintf("unknown account %q", in.Account)}
		}
		if !in.Side.Valid() {
			return nil, models.ValidationError{Field: field + ".side", Message: fmt.Sprintf("unknown side %q", in.Side)}
		}

		amount := in.Amount.Round(2)
		if amount.Cmp(decimal.Zero) <= 0 {
			return nil, models.ValidationError{Field: field + ".amount", Message: "amount must be positive"}
		}

		cur := strings.ToUpper(strings.TrimSpace(in.Currency))
		if cur == "" {
			cur = l.currency
		}
		if currency == "" {
			currency = cur
		} else if cur != currency {
			return nil, models.ValidationError{Field: field + ".currency", Message: "all lines must share one currency"}
		}

		if in.Side == models.Debit {
			debit = debit.Add(amount)
		} else {
			credit = credit.Add(amount)
		}

		lines[i] = models.PostingLine{Account: in.Account, Side: in.Side, Amount: amount, Currency: cur}
	}

	if !debit.Equal(credit) {
		return nil, errors.Wrapf(models.ErrUnbalancedBatch, "debits %s, credits %s", debit.StringFixed(2), credit.StringFixed(2))
	}

	return lines, nil
}

func (l *Ledger) publish(ctx context.Context, posting models.Posting, entries []models.LedgerEntry, source models.Source) {
	if l.publisher == nil {
		return
	}

	total := decimal.Zero
	for _, e := range entries {
		if e.Side == models.Debit {
			total = total.Add(e.Amount)
		}
	}

	event := events.PostingRecorded{
		TransactionID:  posting.TransactionID,
		IdempotencyKey: posting.IdempotencyKey,
		SellerID:       posting.SellerID,
		BatchID:        posting.BatchID,
		Entries:        posting.EntryCount,
		TotalDebit:     total,
		SourceSystem:   source.System,
		OccurredAt:     posting.CreatedAt,
	}
	if err := l.publisher.Publish(ctx, events.TopicPostingRecorded, posting.IdempotencyKey, event); err != nil {
		l.l.Warn("failed to publish posting event",
			zap.String("idempotency_key", posting.IdempotencyKey),
			zap.Error(err))
	}
}

// GetBalance returns debits minus credits over every entry of account.
func (l *Ledger) GetBalance(ctx context.Context, account string) (decimal.Decimal, error) {
	ledgerEntries, err := l.store.GetEntriesByAccount(ctx, account)
	if err != nil {
		return decimal.Zero, err
	}

	balance := decimal.Zero
	for _, e := range ledgerEntries {
		if e.Side == models.Debit {
			balance = balance.Add(e.Amount)
		} else {
			balance = balance.Sub(e.Amount)
		}
	}
	return balance, nil
}

// GetLedgerEntries returns every stored entry.
func (l *Ledger) GetLedgerEntries(ctx context.Context) ([]models.LedgerEntry, error) {
	ledgerEntries, err := l.store.GetLedgerEntries(ctx)
	if err != nil {
		return []models.LedgerEntry{}, err
	}
	return ledgerEntries, nil
}
