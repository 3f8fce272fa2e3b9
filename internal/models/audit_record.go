package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// AuditKind names the fund movement an audit record describes.
type AuditKind string

const (
	AuditCashoutReleased AuditKind = "cashout_released"
	AuditCashoutSettled  AuditKind = "cashout_settled"
)

// AuditRecord links a wallet or cashout change to the posting that backs it.
type AuditRecord struct {
	Kind       AuditKind       `json:"kind"`
	SellerID   string          `json:"seller_id"`
	DateKey    string          `json:"date_key"`
	CashoutID  string          `json:"cashout_id"`
	PostingKey string          `json:"posting_key"`
	Amount     decimal.Decimal `json:"amount"`
	Reference  string          `json:"reference,omitempty"`
	RecordedAt time.Time       `json:"recorded_at"`
}
