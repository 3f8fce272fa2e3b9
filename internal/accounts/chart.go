// Package accounts holds the chart of accounts. A Chart is built once at
// startup and passed to the components that need it; it is never mutated.
package accounts

import (
	"os"
	"sort"
	"strings"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// Nature is the accounting classification of an account.
type Nature string

const (
	Asset     Nature = "asset"
	Liability Nature = "liability"
	Equity    Nature = "equity"
	Revenue   Nature = "revenue"
	Expense   Nature = "expense"
)

// Valid reports whether n is a known nature.
func (n Nature) Valid() bool {
	switch n {
	case Asset, Liability, Equity, Revenue, Expense:
		return true
	}
	return false
}

// CreditNormal reports whether the account grows on the credit side.
func (n Nature) CreditNormal() bool {
	return n == Liability || n == Equity || n == Revenue
}

// Well-known account keys of the default chart.
const (
	Cash            = "cash"
	Receivable      = "receivable"
	ReserveHeld     = "reserve_held"
	PayableSeller   = "payable_seller"
	CashoutClearing = "cashout_clearing"
	ReservePayable  = "reserve_payable"
	FeeRevenue      = "fee_revenue"
	ProviderFees    = "provider_fee_expense"
	ChargebackLoss  = "chargeback_loss"
	OwnerEquity     = "owner_equity"
)

// Account is one entry of the chart.
type Account struct {
	Key         string `yaml:"key"`
	Description string `yaml:"description"`
	Nature      Nature `yaml:"nature"`
}

// Chart is an immutable registry of accounts.
type Chart struct {
	accounts map[string]Account
}

// New validates accounts and builds a chart from them.
func New(accounts []Account) (*Chart, error) {
	if len(accounts) == 0 {
		return nil, errors.New("chart of accounts is empty")
	}

	m := make(map[string]Account, len(accounts))
	for _, a := range accounts {
		key := strings.TrimSpace(a.Key)
		if key == "" {
			return nil, errors.New("chart of accounts: empty account key")
		}
		if !a.Nature.Valid() {
			return nil, errors.Errorf("chart of accounts: account %q has unknown nature %q", key, a.Nature)
		}
		if _, dup := m[key]; dup {
			return nil, errors.Errorf("chart of accounts: duplicate account %q", key)
		}
		a.Key = key
		m[key] = a
	}

	return &Chart{accounts: m}, nil
}

// Default returns the built-in payment gateway chart.
func Default() *Chart {
	c, err := New([]Account{
		{Key: Cash, Description: "Cash held at settlement bank", Nature: Asset},
		{Key: Receivable, Description: "Amounts due from acquirers", Nature: Asset},
		{Key: ReserveHeld, Description: "Rolling reserve retained by acquirers", Nature: Asset},
		{Key: PayableSeller, Description: "Amounts owed to sellers", Nature: Liability},
		{Key: CashoutClearing, Description: "Released cashouts awaiting bank transfer", Nature: Liability},
		{Key: ReservePayable, Description: "Seller reserves owed back after hold period", Nature: Liability},
		{Key: FeeRevenue, Description: "Gateway fees", Nature: Revenue},
		{Key: ProviderFees, Description: "Acquirer and provider fees", Nature: Expense},
		{Key: ChargebackLoss, Description: "Chargebacks absorbed by the gateway", Nature: Expense},
		{Key: OwnerEquity, Description: "Owner equity", Nature: Equity},
	})
	if err != nil {
		panic(err)
	}
	return c
}

type chartFile struct {
	Accounts []Account `yaml:"accounts"`
}

// Load reads a chart from a YAML file of the form `accounts: [{key, description, nature}]`.
func Load(path string) (*Chart, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "read chart of accounts")
	}

	var f chartFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, errors.Wrap(err, "decode chart of accounts")
	}

	return New(f.Accounts)
}

// Lookup returns the account registered under key.
func (c *Chart) Lookup(key string) (Account, bool) {
	a, ok := c.accounts[key]
	return a, ok
}

// Has reports whether key is a registered account.
func (c *Chart) Has(key string) bool {
	_, ok := c.accounts[key]
	return ok
}

// Nature returns the nature of key, false if unknown.
func (c *Chart) Nature(key string) (Nature, bool) {
	a, ok := c.accounts[key]
	return a.Nature, ok
}

// Natural converts a debit-minus-credit balance into the account's natural
// sign: credit-normal accounts flip. Unknown accounts are returned unchanged.
func (c *Chart) Natural(key string, debitMinusCredit decimal.Decimal) decimal.Decimal {
	if n, ok := c.Nature(key); ok && n.CreditNormal() {
		return debitMinusCredit.Neg()
	}
	return debitMinusCredit
}

// Accounts returns every account sorted by key.
func (c *Chart) Accounts() []Account {
	out := make([]Account, 0, len(c.accounts))
	for _, a := range c.accounts {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}
