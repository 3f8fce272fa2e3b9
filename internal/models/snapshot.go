package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// LedgerSnapshot is the consolidated balance of one account, optionally for one
// seller, on one day. Balance is always DebitTotal - CreditTotal.
type LedgerSnapshot struct {
	DateKey     string          `json:"date_key"`
	SellerID    string          `json:"seller_id,omitempty"`
	Account     string          `json:"account"`
	Balance     decimal.Decimal `json:"balance"`
	DebitTotal  decimal.Decimal `json:"debit_total"`
	CreditTotal decimal.Decimal `json:"credit_total"`
	Divergence  decimal.Decimal `json:"divergence"`
	Locked      bool            `json:"locked"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// SnapshotKey is the unique identity of a snapshot.
type SnapshotKey struct {
	DateKey  string
	Account  string
	SellerID string
}

// Key returns the snapshot identity.
func (s LedgerSnapshot) Key() SnapshotKey {
	return SnapshotKey{DateKey: s.DateKey, Account: s.Account, SellerID: s.SellerID}
}

// SnapshotFilter narrows snapshot listings. Zero values mean "any".
// FromDate and ToDate are inclusive date keys.
type SnapshotFilter struct {
	DateKey  string
	FromDate string
	ToDate   string
	SellerID string
	Account  string
}

// Match reports whether s satisfies the filter. Date keys compare lexically.
func (f SnapshotFilter) Match(s LedgerSnapshot) bool {
	if f.DateKey != "" && s.DateKey != f.DateKey {
		return false
	}
	if f.FromDate != "" && s.DateKey < f.FromDate {
		return false
	}
	if f.ToDate != "" && s.DateKey > f.ToDate {
		return false
	}
	if f.SellerID != "" && s.SellerID != f.SellerID {
		return false
	}
	if f.Account != "" && s.Account != f.Account {
		return false
	}
	return true
}
