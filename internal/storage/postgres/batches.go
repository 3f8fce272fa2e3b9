package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"github.com/sheikh-saqib/gateway-ledger/internal/models"
)

const batchColumns = `date_key, batch_id, total_entries, total_debit, total_credit, closed, closed_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanBatch(row rowScanner) (models.LedgerBatch, error) {
	var b models.LedgerBatch
	err := row.Scan(&b.DateKey, &b.BatchID, &b.TotalEntries, &b.TotalDebit, &b.TotalCredit, &b.Closed, &b.ClosedAt)
	b.ClosedAt = b.ClosedAt.UTC()
	return b, err
}

func (p *PostgresLedgerStore) GetDailyBatch(ctx context.Context, dateKey string) (*models.LedgerBatch, error) {
	const query = `SELECT ` + batchColumns + ` FROM ledger_batches WHERE date_key = $1`

	b, err := scanBatch(p.db.QueryRowContext(ctx, query, dateKey))
	if err == sql.ErrNoRows {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &b, nil
}

func (p *PostgresLedgerStore) CreateDailyBatch(ctx context.Context, b models.LedgerBatch) error {
	const query = `INSERT INTO ledger_batches (` + batchColumns + `) VALUES ($1, $2, $3, $4, $5, $6, $7)`

	_, err := p.db.ExecContext(ctx, query, b.DateKey, b.BatchID, b.TotalEntries, b.TotalDebit, b.TotalCredit, b.Closed, b.ClosedAt)
	if isUniqueViolation(err, "") {
		return models.ErrAlreadyExists
	}
	return err
}

func (p *PostgresLedgerStore) ListDailyBatches(ctx context.Context, fromDate, toDate string) ([]models.LedgerBatch, error) {
	query := `SELECT ` + batchColumns + ` FROM ledger_batches`
	var (
		where []string
		args  []any
	)
	if fromDate != "" {
		args = append(args, fromDate)
		where = append(where, fmt.Sprintf("date_key >= $%d", len(args)))
	}
	if toDate != "" {
		args = append(args, toDate)
		where = append(where, fmt.Sprintf("date_key <= $%d", len(args)))
	}
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY date_key`

	rows, err := p.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var batches []models.LedgerBatch
	for rows.Next() {
		b, err := scanBatch(rows)
		if err != nil {
			return nil, err
		}
		batches = append(batches, b)
	}
	return batches, rows.Err()
}

// UpsertSnapshot never touches locked or divergence of an existing row.
func (p *PostgresLedgerStore) UpsertSnapshot(ctx context.Context, s models.LedgerSnapshot) error {
	const query = `INSERT INTO ledger_snapshots (date_key, account, seller_id, balance, debit_total, credit_total, updated_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7)
	ON CONFLICT (date_key, account, seller_id) DO UPDATE
	SET balance = EXCLUDED.balance,
	    debit_total = EXCLUDED.debit_total,
	    credit_total = EXCLUDED.credit_total,
	    updated_at = EXCLUDED.updated_at`

	_, err := p.db.ExecContext(ctx, query, s.DateKey, s.Account, s.SellerID, s.Balance, s.DebitTotal, s.CreditTotal, s.UpdatedAt)
	return errors.Wrap(err, "upsert snapshot")
}

func (p *PostgresLedgerStore) ListSnapshots(ctx context.Context, filter models.SnapshotFilter) ([]models.LedgerSnapshot, error) {
	var (
		where []string
		args  []any
	)
	add := func(cond string, v any) {
		args = append(args, v)
		where = append(where, fmt.Sprintf(cond, len(args)))
	}
	if filter.DateKey != "" {
		add("date_key = $%d", filter.DateKey)
	}
	if filter.FromDate != "" {
		add("date_key >= $%d", filter.FromDate)
	}
	if filter.ToDate != "" {
		add("date_key <= $%d", filter.ToDate)
	}
	if filter.SellerID != "" {
		add("seller_id = $%d", filter.SellerID)
	}
	if filter.Account != "" {
		add("account = $%d", filter.Account)
	}

	query := `SELECT date_key, account, seller_id, balance, debit_total, credit_total, divergence, locked, updated_at
	FROM ledger_snapshots`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY date_key, account, seller_id`

	rows, err := p.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var snaps []models.LedgerSnapshot
	for rows.Next() {
		var s models.LedgerSnapshot
		if err := rows.Scan(&s.DateKey, &s.Account, &s.SellerID, &s.Balance, &s.DebitTotal, &s.CreditTotal,
			&s.Divergence, &s.Locked, &s.UpdatedAt); err != nil {
			return nil, err
		}
		s.UpdatedAt = s.UpdatedAt.UTC()
		snaps = append(snaps, s)
	}
	return snaps, rows.Err()
}

func (p *PostgresLedgerStore) SetSnapshotLock(ctx context.Context, dateKey string, locked bool, divergence decimal.Decimal) (int, error) {
	const query = `UPDATE ledger_snapshots SET locked = $2, divergence = $3 WHERE date_key = $1`

	res, err := p.db.ExecContext(ctx, query, dateKey, locked, divergence)
	if err != nil {
		return 0, errors.Wrap(err, "set snapshot lock")
	}
	n, err := res.RowsAffected()
	return int(n), err
}
