package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// PostingLine is one requested debit or credit.
type PostingLine struct {
	Account  string          `json:"account" yaml:"account"`
	Side     Side            `json:"side" yaml:"side"`
	Amount   decimal.Decimal `json:"amount" yaml:"amount"`
	Currency string          `json:"currency,omitempty" yaml:"currency,omitempty"`
}

// PostingContext carries the identity of a posting.
type PostingContext struct {
	IdempotencyKey string     `json:"idempotency_key" yaml:"idempotency_key"`
	TransactionID  string     `json:"transaction_id" yaml:"transaction_id"`
	SellerID       string     `json:"seller_id" yaml:"seller_id"`
	Source         Source     `json:"source" yaml:"source"`
	EventAt        *time.Time `json:"event_at,omitempty" yaml:"event_at,omitempty"`
}

// PostingRequest represents an intent to record a balanced money movement.
type PostingRequest struct {
	Entries []PostingLine  `json:"entries" yaml:"entries"`
	Context PostingContext `json:"context" yaml:"context"`
}

// PostingReceipt describes the outcome of a posting call.
type PostingReceipt struct {
	BatchID        string `json:"batch_id,omitempty"`
	IdempotencyKey string `json:"idempotency_key"`
	Entries        int    `json:"entries"`
	Replayed       bool   `json:"replayed"` // idempotency hit, nothing written
}
