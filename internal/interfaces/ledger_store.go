package interfaces

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/sheikh-saqib/gateway-ledger/internal/models"
)

// LedgerStore holds the append-only entry log.
type LedgerStore interface {
	// PostingExists reports whether a posting with idempotencyKey was already written.
	PostingExists(ctx context.Context, idempotencyKey string) (bool, error)
	// SavePosting writes the header and all entries atomically. It returns
	// models.ErrDuplicatePosting, writing nothing, when the header key exists.
	SavePosting(ctx context.Context, posting models.Posting, entries []models.LedgerEntry) error
	GetEntriesByAccount(ctx context.Context, account string) ([]models.LedgerEntry, error)
	GetLedgerEntries(ctx context.Context) ([]models.LedgerEntry, error)
	// ListEntries returns matching entries ordered by batch and sequence.
	ListEntries(ctx context.Context, filter models.EntryFilter) ([]models.LedgerEntry, error)
}

// BatchStore holds closed daily batches.
type BatchStore interface {
	GetDailyBatch(ctx context.Context, dateKey string) (*models.LedgerBatch, error)
	// CreateDailyBatch returns models.ErrAlreadyExists if the day already has a batch.
	CreateDailyBatch(ctx context.Context, batch models.LedgerBatch) error
	ListDailyBatches(ctx context.Context, fromDate, toDate string) ([]models.LedgerBatch, error)
}

// SnapshotStore holds daily balance snapshots.
type SnapshotStore interface {
	// UpsertSnapshot writes totals keyed on (dateKey, account, sellerId) and
	// leaves Locked and Divergence of an existing snapshot untouched.
	UpsertSnapshot(ctx context.Context, snapshot models.LedgerSnapshot) error
	ListSnapshots(ctx context.Context, filter models.SnapshotFilter) ([]models.LedgerSnapshot, error)
	// SetSnapshotLock sets locked and divergence on every snapshot of dateKey.
	SetSnapshotLock(ctx context.Context, dateKey string, locked bool, divergence decimal.Decimal) (int, error)
}

// WalletStore holds seller wallets and cashouts.
type WalletStore interface {
	GetWallet(ctx context.Context, sellerID string) (*models.Wallet, error)
	SaveWallet(ctx context.Context, wallet models.Wallet) error
	// ReleaseToWallet moves cashout.Amount from pending to available and
	// records the cashout in one atomic step. It returns models.ErrAlreadyExists
	// when the cashout ID was recorded before and models.ErrNotFound when the
	// seller has no wallet.
	ReleaseToWallet(ctx context.Context, cashout models.Cashout) error
	ListCashouts(ctx context.Context, filter models.CashoutFilter) ([]models.Cashout, error)
	GetCashout(ctx context.Context, id string) (*models.Cashout, error)
	MarkCashoutSettled(ctx context.Context, id, reference string, settledAt time.Time) error
}

// Store is everything the ledger core persists.
type Store interface {
	LedgerStore
	BatchStore
	SnapshotStore
	WalletStore
	Ping(ctx context.Context) error
	Close() error
}
