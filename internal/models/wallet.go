package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Wallet holds the payable balances of one seller.
type Wallet struct {
	SellerID  string          `json:"seller_id" yaml:"seller_id"`
	Available decimal.Decimal `json:"available" yaml:"available"` // free to withdraw
	Pending   decimal.Decimal `json:"pending" yaml:"pending"`     // held until release
	UpdatedAt time.Time       `json:"updated_at" yaml:"updated_at,omitempty"`
}

// CashoutStatus is the lifecycle state of a cashout.
type CashoutStatus string

const (
	// CashoutLiquidated means funds were released to the wallet and a transfer is expected.
	CashoutLiquidated CashoutStatus = "liquidated"
	// CashoutSettled means an external transfer confirmation was matched.
	CashoutSettled CashoutStatus = "settled"
)

// Cashout records a D+1 release for one seller and day.
type Cashout struct {
	ID                  string          `json:"id"` // equal to the release posting key
	SellerID            string          `json:"seller_id"`
	DateKey             string          `json:"date_key"` // ledger day the release was computed from
	Amount              decimal.Decimal `json:"amount"`
	DestinationAccount  string          `json:"destination_account,omitempty"`
	Status              CashoutStatus   `json:"status"`
	PostingKey          string          `json:"posting_key"`
	ReleasedAt          time.Time       `json:"released_at"`
	SettledAt           *time.Time      `json:"settled_at,omitempty"`
	SettlementReference string          `json:"settlement_reference,omitempty"`
}

// CashoutFilter narrows cashout listings. Zero values mean "any".
type CashoutFilter struct {
	SellerID  string
	Status    CashoutStatus
	ToDateKey string // inclusive
}

// Match reports whether c satisfies the filter.
func (f CashoutFilter) Match(c Cashout) bool {
	if f.SellerID != "" && c.SellerID != f.SellerID {
		return false
	}
	if f.Status != "" && c.Status != f.Status {
		return false
	}
	if f.ToDateKey != "" && c.DateKey > f.ToDateKey {
		return false
	}
	return true
}

// TransferConfirmation is an external record that money left the platform.
type TransferConfirmation struct {
	Reference          string          `json:"reference" yaml:"reference"`
	Amount             decimal.Decimal `json:"amount" yaml:"amount"`
	DestinationAccount string          `json:"destination_account,omitempty" yaml:"destination_account,omitempty"`
	ConfirmedAt        time.Time       `json:"confirmed_at" yaml:"confirmed_at,omitempty"`
}
