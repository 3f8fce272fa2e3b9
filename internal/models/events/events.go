package events

import (
	"time"

	"github.com/shopspring/decimal"
)

// Topics the ledger publishes to.
const (
	TopicPostingRecorded         = "ledger.posting.recorded"
	TopicBatchClosed             = "ledger.batch.closed"
	TopicReconciliationCompleted = "ledger.reconciliation.completed"
	TopicCashoutReleased         = "ledger.cashout.released"
	TopicCashoutSettled          = "ledger.cashout.settled"
)

type PostingRecorded struct {
	TransactionID  string          `json:"transaction_id"`
	IdempotencyKey string          `json:"idempotency_key"`
	SellerID       string          `json:"seller_id,omitempty"`
	BatchID        string          `json:"batch_id"`
	Entries        int             `json:"entries"`
	TotalDebit     decimal.Decimal `json:"total_debit"`
	SourceSystem   string          `json:"source_system"`
	OccurredAt     time.Time       `json:"occurred_at"`
}

type BatchClosed struct {
	DateKey      string          `json:"date_key"`
	BatchID      string          `json:"batch_id"`
	TotalEntries int             `json:"total_entries"`
	TotalDebit   decimal.Decimal `json:"total_debit"`
	TotalCredit  decimal.Decimal `json:"total_credit"`
	OccurredAt   time.Time       `json:"occurred_at"`
}

type ReconciliationCompleted struct {
	DateKey    string          `json:"date_key"`
	Divergence decimal.Decimal `json:"divergence"`
	Locked     bool            `json:"locked"`
	OccurredAt time.Time       `json:"occurred_at"`
}

type CashoutReleased struct {
	CashoutID  string          `json:"cashout_id"`
	SellerID   string          `json:"seller_id"`
	DateKey    string          `json:"date_key"`
	Amount     decimal.Decimal `json:"amount"`
	OccurredAt time.Time       `json:"occurred_at"`
}

type CashoutSettled struct {
	CashoutID  string          `json:"cashout_id"`
	SellerID   string          `json:"seller_id"`
	Amount     decimal.Decimal `json:"amount"`
	Reference  string          `json:"reference"`
	OccurredAt time.Time       `json:"occurred_at"`
}
