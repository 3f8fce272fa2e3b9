package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// LedgerBatch is the closed aggregate of one calendar day. One per DateKey.
type LedgerBatch struct {
	DateKey      string          `json:"date_key"`
	BatchID      string          `json:"batch_id"`
	TotalEntries int             `json:"total_entries"`
	TotalDebit   decimal.Decimal `json:"total_debit"`
	TotalCredit  decimal.Decimal `json:"total_credit"`
	Closed       bool            `json:"closed"`
	ClosedAt     time.Time       `json:"closed_at"`
}

// Balanced reports whether the day's debits equal its credits.
func (b LedgerBatch) Balanced() bool {
	return b.TotalDebit.Equal(b.TotalCredit)
}
