package postgres

import (
	"context"
	"database/sql"
	"time"

	"github.com/pkg/errors"

	"github.com/sheikh-saqib/gateway-ledger/internal/models"
)

func (p *PostgresLedgerStore) GetWallet(ctx context.Context, sellerID string) (*models.Wallet, error) {
	const query = `SELECT seller_id, available, pending, updated_at FROM wallets WHERE seller_id = $1`

	var w models.Wallet
	err := p.db.QueryRowContext(ctx, query, sellerID).Scan(&w.SellerID, &w.Available, &w.Pending, &w.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	w.UpdatedAt = w.UpdatedAt.UTC()
	return &w, nil
}

func (p *PostgresLedgerStore) SaveWallet(ctx context.Context, w models.Wallet) error {
	const query = `INSERT INTO wallets (seller_id, available, pending, updated_at) VALUES ($1, $2, $3, $4)
	ON CONFLICT (seller_id) DO UPDATE
	SET available = EXCLUDED.available, pending = EXCLUDED.pending, updated_at = EXCLUDED.updated_at`

	updatedAt := w.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = time.Now().UTC()
	}
	_, err := p.db.ExecContext(ctx, query, w.SellerID, w.Available, w.Pending, updatedAt)
	return err
}

// ReleaseToWallet records the cashout and moves its amount from pending to
// available in one transaction.
func (p *PostgresLedgerStore) ReleaseToWallet(ctx context.Context, c models.Cashout) (err error) {
	dbTx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}

	defer func() {
		if err != nil {
			dbTx.Rollback()
		}
	}()

	const update = `UPDATE wallets SET pending = pending - $2, available = available + $2, updated_at = $3
	WHERE seller_id = $1`
	res, err := dbTx.ExecContext(ctx, update, c.SellerID, c.Amount, c.ReleasedAt)
	if err != nil {
		return errors.Wrap(err, "update wallet")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		err = models.ErrNotFound
		return err
	}

	const insert = `INSERT INTO cashouts (id, seller_id, date_key, amount, destination_account, status, posting_key, released_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`
	_, err = dbTx.ExecContext(ctx, insert, c.ID, c.SellerID, c.DateKey, c.Amount, c.DestinationAccount,
		string(c.Status), c.PostingKey, c.ReleasedAt)
	if isUniqueViolation(err, "") {
		err = models.ErrAlreadyExists
		return err
	}
	if err != nil {
		return errors.Wrap(err, "insert cashout")
	}
	return dbTx.Commit()
}

const cashoutColumns = `id, seller_id, date_key, amount, destination_account, status, posting_key, released_at,
	settled_at, settlement_reference`

func scanCashout(row rowScanner) (models.Cashout, error) {
	var (
		c         models.Cashout
		status    string
		settledAt sql.NullTime
	)
	err := row.Scan(&c.ID, &c.SellerID, &c.DateKey, &c.Amount, &c.DestinationAccount, &status, &c.PostingKey,
		&c.ReleasedAt, &settledAt, &c.SettlementReference)
	c.Status = models.CashoutStatus(status)
	c.ReleasedAt = c.ReleasedAt.UTC()
	if settledAt.Valid {
		t := settledAt.Time.UTC()
		c.SettledAt = &t
	}
	return c, err
}

func (p *PostgresLedgerStore) GetCashout(ctx context.Context, id string) (*models.Cashout, error) {
	const query = `SELECT ` + cashoutColumns + ` FROM cashouts WHERE id = $1`

	c, err := scanCashout(p.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (p *PostgresLedgerStore) ListCashouts(ctx context.Context, filter models.CashoutFilter) ([]models.Cashout, error) {
	const query = `SELECT ` + cashoutColumns + ` FROM cashouts
	WHERE ($1 = '' OR seller_id = $1) AND ($2 = '' OR status = $2) AND ($3 = '' OR date_key <= $3)
	ORDER BY released_at, id`

	rows, err := p.db.QueryContext(ctx, query, filter.SellerID, string(filter.Status), filter.ToDateKey)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var cashouts []models.Cashout
	for rows.Next() {
		c, err := scanCashout(rows)
		if err != nil {
			return nil, err
		}
		cashouts = append(cashouts, c)
	}
	return cashouts, rows.Err()
}

func (p *PostgresLedgerStore) MarkCashoutSettled(ctx context.Context, id, reference string, settledAt time.Time) error {
	const query = `UPDATE cashouts SET status = $2, settlement_reference = $3, settled_at = $4 WHERE id = $1`

	res, err := p.db.ExecContext(ctx, query, id, string(models.CashoutSettled), reference, settledAt)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return models.ErrNotFound
	}
	return nil
}
