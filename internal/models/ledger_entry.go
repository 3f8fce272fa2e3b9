package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Side is the accounting side of a ledger line.
type Side string

const (
	Debit  Side = "debit"
	Credit Side = "credit"
)

// Valid reports whether s is one of the two accounting sides.
func (s Side) Valid() bool {
	return s == Debit || s == Credit
}

// Source identifies the system that originated a posting.
type Source struct {
	System   string `json:"system" yaml:"system"`
	Acquirer string `json:"acquirer,omitempty" yaml:"acquirer,omitempty"`
	IP       string `json:"ip,omitempty" yaml:"ip,omitempty"`
}

// LedgerEntry represents one side of one posting. Entries are append-only.
type LedgerEntry struct {
	ID             string          `json:"id"`
	TransactionID  string          `json:"transaction_id"`
	SellerID       string          `json:"seller_id,omitempty"`
	BatchID        string          `json:"batch_id"`        // posting batch, shared by all lines of one Post call
	Sequence       int             `json:"sequence"`        // 0-based position within the batch
	Account        string          `json:"account"`         // chart-of-accounts key
	Side           Side            `json:"side"`            // debit or credit
	Amount         decimal.Decimal `json:"amount"`          // positive, 2 decimal places
	Currency       string          `json:"currency"`        // ISO 4217, e.g. BRL
	SideHash       string          `json:"side_hash"`       // cumulative hash over the batch up to this entry
	IdempotencyKey string          `json:"idempotency_key"` // <posting key>:<sequence>, unique across the store
	PostingKey     string          `json:"posting_key"`     // caller supplied idempotency key
	Source         Source          `json:"source"`
	CreatedAt      time.Time       `json:"created_at"`
	EventAt        *time.Time      `json:"event_at,omitempty"`
}

// Posting is the header row written together with the entries of one Post call.
// Its IdempotencyKey is the uniqueness guard for the whole posting.
type Posting struct {
	IdempotencyKey string    `json:"idempotency_key"`
	TransactionID  string    `json:"transaction_id"`
	SellerID       string    `json:"seller_id,omitempty"`
	BatchID        string    `json:"batch_id"`
	EntryCount     int       `json:"entry_count"`
	CreatedAt      time.Time `json:"created_at"`
}

// EntryFilter narrows entry listings. Zero values mean "any".
type EntryFilter struct {
	From     time.Time // inclusive
	To       time.Time // inclusive
	BatchID  string
	SellerID string
	Account  string
}

// Match reports whether e satisfies the filter.
func (f EntryFilter) Match(e LedgerEntry) bool {
	if !f.From.IsZero() && e.CreatedAt.Before(f.From) {
		return false
	}
	if !f.To.IsZero() && e.CreatedAt.After(f.To) {
		return false
	}
	if f.BatchID != "" && e.BatchID != f.BatchID {
		return false
	}
	if f.SellerID != "" && e.SellerID != f.SellerID {
		return false
	}
	if f.Account != "" && e.Account != f.Account {
		return false
	}
	return true
}
