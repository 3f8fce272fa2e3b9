package closing

import (
	"context"
	"sort"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"github.com/sheikh-saqib/gateway-ledger/internal/accounts"
	"github.com/sheikh-saqib/gateway-ledger/internal/models"
)

// AccountBalance is the cumulative position of one account.
type AccountBalance struct {
	Account     string          `json:"account"`
	Nature      accounts.Nature `json:"nature"`
	DebitTotal  decimal.Decimal `json:"debit_total"`
	CreditTotal decimal.Decimal `json:"credit_total"`
	Balance     decimal.Decimal `json:"balance"` // debit - credit
	Natural     decimal.Decimal `json:"natural"` // balance signed by nature
}

// TrialBalance lists every account over a date range.
type TrialBalance struct {
	FromDate    string           `json:"from_date"`
	ToDate      string           `json:"to_date"`
	Lines       []AccountBalance `json:"lines"`
	TotalDebit  decimal.Decimal  `json:"total_debit"`
	TotalCredit decimal.Decimal  `json:"total_credit"`
	Balanced    bool             `json:"balanced"`
}

// BalancePoint is one day of the global balance series.
type BalancePoint struct {
	DateKey     string          `json:"date_key"`
	DebitTotal  decimal.Decimal `json:"debit_total"`
	CreditTotal decimal.Decimal `json:"credit_total"`
	Balance     decimal.Decimal `json:"balance"`
	Cumulative  decimal.Decimal `json:"cumulative"`
}

// AccountBalance sums the snapshots of one seller's account up to and including asOf.
func (c *Consolidator) AccountBalance(ctx context.Context, sellerID, account string, asOf time.Time) (AccountBalance, error) {
	snaps, err := c.store.ListSnapshots(ctx, models.SnapshotFilter{
		SellerID: sellerID,
		Account:  account,
		ToDate:   models.DateKey(asOf, c.loc),
	})
	if err != nil {
		return AccountBalance{}, errors.Wrap(err, "list snapshots")
	}

	lines := c.fold(snaps)
	if len(lines) == 0 {
		return c.line(account, decimal.Zero, decimal.Zero), nil
	}
	return lines[0], nil
}

// BalanceSheet returns every account position of one seller up to asOf.
func (c *Consolidator) BalanceSheet(ctx context.Context, sellerID string, asOf time.Time) ([]AccountBalance, error) {
	if sellerID == "" {
		return nil, errors.New("seller id is required")
	}
	snaps, err := c.store.ListSnapshots(ctx, models.SnapshotFilter{
		SellerID: sellerID,
		ToDate:   models.DateKey(asOf, c.loc),
	})
	if err != nil {
		return nil, errors.Wrap(err, "list snapshots")
	}
	return c.fold(snaps), nil
}

// TrialBalance aggregates all sellers' snapshots between two date keys.
func (c *Consolidator) TrialBalance(ctx context.Context, fromDate, toDate string) (TrialBalance, error) {
	snaps, err := c.store.ListSnapshots(ctx, models.SnapshotFilter{FromDate: fromDate, ToDate: toDate})
	if err != nil {
		return TrialBalance{}, errors.Wrap(err, "list snapshots")
	}

	tb := TrialBalance{
		FromDate:    fromDate,
		ToDate:      toDate,
		Lines:       c.fold(snaps),
		TotalDebit:  decimal.Zero,
		TotalCredit: decimal.Zero,
	}
	for _, l := range tb.Lines {
		tb.TotalDebit = tb.TotalDebit.Add(l.DebitTotal)
		tb.TotalCredit = tb.TotalCredit.Add(l.CreditTotal)
	}
	tb.Balanced = tb.TotalDebit.Equal(tb.TotalCredit)
	return tb, nil
}

// BalanceSeries returns per-day global totals with a running balance.
func (c *Consolidator) BalanceSeries(ctx context.Context, fromDate, toDate string) ([]BalancePoint, error) {
	snaps, err := c.store.ListSnapshots(ctx, models.SnapshotFilter{FromDate: fromDate, ToDate: toDate})
	if err != nil {
		return nil, errors.Wrap(err, "list snapshots")
	}

	byDay := make(map[string]*BalancePoint)
	for _, s := range snaps {
		p, ok := byDay[s.DateKey]
		if !ok {
			p = &BalancePoint{DateKey: s.DateKey, DebitTotal: decimal.Zero, CreditTotal: decimal.Zero}
			byDay[s.DateKey] = p
		}
		p.DebitTotal = p.DebitTotal.Add(s.DebitTotal)
		p.CreditTotal = p.CreditTotal.Add(s.CreditTotal)
	}

	series := make([]BalancePoint, 0, len(byDay))
	for _, p := range byDay {
		p.Balance = p.DebitTotal.Sub(p.CreditTotal)
		series = append(series, *p)
	}
	sort.Slice(series, func(i, j int) bool { return series[i].DateKey < series[j].DateKey })

	running := decimal.Zero
	for i := range series {
		running = running.Add(series[i].Balance)
		series[i].Cumulative = running
	}
	return series, nil
}

func (c *Consolidator) fold(snaps []models.LedgerSnapshot) []AccountBalance {
	type acc struct{ debit, credit decimal.Decimal }
	byAccount := make(map[string]*acc)
	for _, s := range snaps {
		a, ok := byAccount[s.Account]
		if !ok {
			a = &acc{debit: decimal.Zero, credit: decimal.Zero}
			byAccount[s.Account] = a
		}
		a.debit = a.debit.Add(s.DebitTotal)
		a.credit = a.credit.Add(s.CreditTotal)
	}

	out := make([]AccountBalance, 0, len(byAccount))
	for account, a := range byAccount {
		out = append(out, c.line(account, a.debit, a.credit))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Account < out[j].Account })
	return out
}

func (c *Consolidator) line(account string, debit, credit decimal.Decimal) AccountBalance {
	nature, _ := c.chart.Nature(account)
	balance := debit.Sub(credit)
	return AccountBalance{
		Account:     account,
		Nature:      nature,
		DebitTotal:  debit,
		CreditTotal: credit,
		Balance:     balance,
		Natural:     c.chart.Natural(account, balance),
	}
}
