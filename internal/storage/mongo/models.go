package mongo

import (
	"time"

	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/v2/bson"

	"github.com/sheikh-saqib/gateway-ledger/internal/models"
)

type postingModel struct {
	IdempotencyKey string    `bson:"_id"`
	BatchID        string    `bson:"batch_id"`
	TransactionID  string    `bson:"transaction_id"`
	SellerID       string    `bson:"seller_id"`
	EntryCount     int       `bson:"entry_count"`
	CreatedAt      time.Time `bson:"created_at"`
}

type entryModel struct {
	ID             string          `bson:"_id"`
	TransactionID  string          `bson:"transaction_id"`
	SellerID       string          `bson:"seller_id"`
	BatchID        string          `bson:"batch_id"`
	Sequence       int             `bson:"sequence"`
	Account        string          `bson:"account"`
	Side           string          `bson:"side"`
	Amount         bson.Decimal128 `bson:"amount"`
	Currency       string          `bson:"currency"`
	SideHash       string          `bson:"side_hash"`
	IdempotencyKey string          `bson:"idempotency_key"`
	PostingKey     string          `bson:"posting_key"`
	SourceSystem   string          `bson:"source_system"`
	SourceAcquirer string          `bson:"source_acquirer,omitempty"`
	SourceIP       string          `bson:"source_ip,omitempty"`
	CreatedAt      time.Time       `bson:"created_at"`
	EventAt        *time.Time      `bson:"event_at,omitempty"`
}

type batchModel struct {
	DateKey      string          `bson:"_id"`
	BatchID      string          `bson:"batch_id"`
	TotalEntries int             `bson:"total_entries"`
	TotalDebit   bson.Decimal128 `bson:"total_debit"`
	TotalCredit  bson.Decimal128 `bson:"total_credit"`
	Closed       bool            `bson:"closed"`
	ClosedAt     time.Time       `bson:"closed_at"`
}

type snapshotModel struct {
	ID          string          `bson:"_id"`
	DateKey     string          `bson:"date_key"`
	Account     string          `bson:"account"`
	SellerID    string          `bson:"seller_id"`
	Balance     bson.Decimal128 `bson:"balance"`
	DebitTotal  bson.Decimal128 `bson:"debit_total"`
	CreditTotal bson.Decimal128 `bson:"credit_total"`
	Divergence  bson.Decimal128 `bson:"divergence"`
	Locked      bool            `bson:"locked"`
	UpdatedAt   time.Time       `bson:"updated_at"`
}

type walletModel struct {
	SellerID  string          `bson:"_id"`
	Available bson.Decimal128 `bson:"available"`
	Pending   bson.Decimal128 `bson:"pending"`
	UpdatedAt time.Time       `bson:"updated_at"`
}

type cashoutModel struct {
	ID                  string          `bson:"_id"`
	SellerID            string          `bson:"seller_id"`
	DateKey             string          `bson:"date_key"`
	Amount              bson.Decimal128 `bson:"amount"`
	DestinationAccount  string          `bson:"destination_account,omitempty"`
	Status              string          `bson:"status"`
	PostingKey          string          `bson:"posting_key"`
	ReleasedAt          time.Time       `bson:"released_at"`
	SettledAt           *time.Time      `bson:"settled_at,omitempty"`
	SettlementReference string          `bson:"settlement_reference,omitempty"`
}

// toDec128 converts an amount to BSON Decimal128. decimal.Decimal strings always parse.
func toDec128(d decimal.Decimal) bson.Decimal128 {
	v, err := bson.ParseDecimal128(d.String())
	if err != nil {
		return bson.NewDecimal128(0, 0)
	}
	return v
}

func fromDec128(v bson.Decimal128) decimal.Decimal {
	d, err := decimal.NewFromString(v.String())
	if err != nil {
		return decimal.Zero
	}
	return d
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}

func toEntryModel(e models.LedgerEntry) entryModel {
	return entryModel{
		ID:             e.ID,
		TransactionID:  e.TransactionID,
		SellerID:       e.SellerID,
		BatchID:        e.BatchID,
		Sequence:       e.Sequence,
		Account:        e.Account,
		Side:           string(e.Side),
		Amount:         toDec128(e.Amount),
		Currency:       e.Currency,
		SideHash:       e.SideHash,
		IdempotencyKey: e.IdempotencyKey,
		PostingKey:     e.PostingKey,
		SourceSystem:   e.Source.System,
		SourceAcquirer: e.Source.Acquirer,
		SourceIP:       e.Source.IP,
		CreatedAt:      e.CreatedAt,
		EventAt:        e.EventAt,
	}
}

func fromEntryModel(m entryModel) models.LedgerEntry {
	return models.LedgerEntry{
		ID:             m.ID,
		TransactionID:  m.TransactionID,
		SellerID:       m.SellerID,
		BatchID:        m.BatchID,
		Sequence:       m.Sequence,
		Account:        m.Account,
		Side:           models.Side(m.Side),
		Amount:         fromDec128(m.Amount),
		Currency:       m.Currency,
		SideHash:       m.SideHash,
		IdempotencyKey: m.IdempotencyKey,
		PostingKey:     m.PostingKey,
		Source:         models.Source{System: m.SourceSystem, Acquirer: m.SourceAcquirer, IP: m.SourceIP},
		CreatedAt:      m.CreatedAt.UTC(),
		EventAt:        utcPtr(m.EventAt),
	}
}

func fromBatchModel(m batchModel) models.LedgerBatch {
	return models.LedgerBatch{
		DateKey:      m.DateKey,
		BatchID:      m.BatchID,
		TotalEntries: m.TotalEntries,
		TotalDebit:   fromDec128(m.TotalDebit),
		TotalCredit:  fromDec128(m.TotalCredit),
		Closed:       m.Closed,
		ClosedAt:     m.ClosedAt.UTC(),
	}
}

func fromSnapshotModel(m snapshotModel) models.LedgerSnapshot {
	return models.LedgerSnapshot{
		DateKey:     m.DateKey,
		SellerID:    m.SellerID,
		Account:     m.Account,
		Balance:     fromDec128(m.Balance),
		DebitTotal:  fromDec128(m.DebitTotal),
		CreditTotal: fromDec128(m.CreditTotal),
		Divergence:  fromDec128(m.Divergence),
		Locked:      m.Locked,
		UpdatedAt:   m.UpdatedAt.UTC(),
	}
}

func fromWalletModel(m walletModel) models.Wallet {
	return models.Wallet{
		SellerID:  m.SellerID,
		Available: fromDec128(m.Available),
		Pending:   fromDec128(m.Pending),
		UpdatedAt: m.UpdatedAt.UTC(),
	}
}

func toCashoutModel(c models.Cashout) cashoutModel {
	return cashoutModel{
		ID:                  c.ID,
		SellerID:            c.SellerID,
		DateKey:             c.DateKey,
		Amount:              toDec128(c.Amount),
		DestinationAccount:  c.DestinationAccount,
		Status:              string(c.Status),
		PostingKey:          c.PostingKey,
		ReleasedAt:          c.ReleasedAt,
		SettledAt:           c.SettledAt,
		SettlementReference: c.SettlementReference,
	}
}

func fromCashoutModel(m cashoutModel) models.Cashout {
	return models.Cashout{
		ID:                  m.ID,
		SellerID:            m.SellerID,
		DateKey:             m.DateKey,
		Amount:              fromDec128(m.Amount),
		DestinationAccount:  m.DestinationAccount,
		Status:              models.CashoutStatus(m.Status),
		PostingKey:          m.PostingKey,
		ReleasedAt:          m.ReleasedAt.UTC(),
		SettledAt:           utcPtr(m.SettledAt),
		SettlementReference: m.SettlementReference,
	}
}
