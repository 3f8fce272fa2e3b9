package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// IntegrityDetails lists the offending identifiers of an integrity check.
type IntegrityDetails struct {
	UnbalancedBatchIDs     []string `json:"unbalanced_batch_ids"`
	BrokenHashBatchIDs     []string `json:"broken_hash_batch_ids"`
	MissingSnapshots       []string `json:"missing_snapshots"` // dateKey/account/sellerId
	MismatchedDailyBatches []string `json:"mismatched_daily_batches"`
}

// IntegrityReport is the advisory output of the integrity auditor.
type IntegrityReport struct {
	DateKey                string           `json:"date_key,omitempty"` // empty when the whole store was audited
	VerifiedBatches        int              `json:"verified_batches"`
	UnbalancedBatches      int              `json:"unbalanced_batches"`
	BrokenHashes           int              `json:"broken_hashes"`
	MissingSnapshots       int              `json:"missing_snapshots"`
	MismatchedDailyBatches int              `json:"mismatched_daily_batches"`
	Details                IntegrityDetails `json:"details"`
	CheckedAt              time.Time        `json:"checked_at"`
}

// Healthy reports whether the check found nothing.
func (r IntegrityReport) Healthy() bool {
	return r.UnbalancedBatches == 0 && r.BrokenHashes == 0 &&
		r.MissingSnapshots == 0 && r.MismatchedDailyBatches == 0
}

// StatementSource tells where an external balance came from.
type StatementSource string

const (
	SourceBank     StatementSource = "bank"
	SourceAcquirer StatementSource = "acquirer"
)

// StatementRow is one balance line of a bank or acquirer statement.
type StatementRow struct {
	Account string          `json:"account" yaml:"account"`
	Balance decimal.Decimal `json:"balance" yaml:"balance"`
	Source  StatementSource `json:"source,omitempty" yaml:"source,omitempty"`
}

// AccountMatch pairs an internal and an external balance for one account.
type AccountMatch struct {
	Account  string          `json:"account"`
	Internal decimal.Decimal `json:"internal"`
	External decimal.Decimal `json:"external"`
	Delta    decimal.Decimal `json:"delta"`
}

// ReconciliationResult is the outcome of comparing a day's snapshots to a feed.
type ReconciliationResult struct {
	DateKey           string          `json:"date_key"`
	Matched           []AccountMatch  `json:"matched"`
	Mismatched        []AccountMatch  `json:"mismatched"`
	MissingInLedger   []StatementRow  `json:"missing_in_ledger"`
	MissingInExternal []AccountMatch  `json:"missing_in_external"`
	ExpectedBalance   decimal.Decimal `json:"expected_balance"`
	BankBalance       decimal.Decimal `json:"bank_balance"`
	AcquirerBalance   decimal.Decimal `json:"acquirer_balance"`
	Divergence        decimal.Decimal `json:"divergence"`
	Locked            bool            `json:"locked"`
	SnapshotsUpdated  int             `json:"snapshots_updated"`
}
