// Package release moves reconciled seller balances out of the ledger: D+1
// cashout release into seller wallets and D+2 settlement confirmation.
package release

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/sheikh-saqib/gateway-ledger/internal/accounts"
	interfaces "github.com/sheikh-saqib/gateway-ledger/internal/interfaces"
	"github.com/sheikh-saqib/gateway-ledger/internal/models"
)

// SourceSystem tags postings made by the release engines.
const SourceSystem = "ledger-release"

// Poster records balanced postings.
type Poster interface {
	Post(ctx context.Context, req models.PostingRequest) (models.PostingReceipt, error)
}

// Store is what the release engines read and write.
type Store interface {
	ListSnapshots(ctx context.Context, filter models.SnapshotFilter) ([]models.LedgerSnapshot, error)
	ListEntries(ctx context.Context, filter models.EntryFilter) ([]models.LedgerEntry, error)
	GetWallet(ctx context.Context, sellerID string) (*models.Wallet, error)
	ReleaseToWallet(ctx context.Context, cashout models.Cashout) error
	GetCashout(ctx context.Context, id string) (*models.Cashout, error)
	ListCashouts(ctx context.Context, filter models.CashoutFilter) ([]models.Cashout, error)
	MarkCashoutSettled(ctx context.Context, id, reference string, settledAt time.Time) error
}

// Config names the accounts money moves through.
type Config struct {
	PayableAccount    string
	ClearingAccount   string
	CashAccount       string
	SettlementLagDays int
	Workers           int
	Location          *time.Location // ledger day boundaries, UTC when nil
}

func DefaultConfig() Config {
	return Config{
		PayableAccount:    accounts.PayableSeller,
		ClearingAccount:   accounts.CashoutClearing,
		CashAccount:       accounts.Cash,
		SettlementLagDays: 2,
		Workers:           4,
		Location:          time.UTC,
	}
}

// Deps groups the collaborators shared by both engines.
type Deps struct {
	Store     Store
	Poster    Poster
	Chart     *accounts.Chart
	Audit     interfaces.AuditLog
	Publisher interfaces.EventPublisher
	Logger    *zap.Logger
	Now       func() time.Time
}

func (d Deps) withDefaults() Deps {
	if d.Logger == nil {
		d.Logger = zap.NewNop()
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	return d
}

// payableLocked reports whether any payable snapshot of seller on dateKey is locked.
func payableLocked(ctx context.Context, store Store, account, dateKey, sellerID string) (bool, error) {
	snaps, err := store.ListSnapshots(ctx, models.SnapshotFilter{DateKey: dateKey, Account: account, SellerID: sellerID})
	if err != nil {
		return false, err
	}
	for _, s := range snaps {
		if s.Locked {
			return true, nil
		}
	}
	return false, nil
}

func transfer(key, txID, sellerID, debit, credit string, amount decimal.Decimal) models.PostingRequest {
	return models.PostingRequest{
		Entries: []models.PostingLine{
			{Account: debit, Side: models.Debit, Amount: amount},
			{Account: credit, Side: models.Credit, Amount: amount},
		},
		Context: models.PostingContext{
			IdempotencyKey: key,
			TransactionID:  txID,
			SellerID:       sellerID,
			Source:         models.Source{System: SourceSystem},
		},
	}
}
