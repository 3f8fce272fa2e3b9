package postgres

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	migratepg "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/lib/pq"
	"github.com/pkg/errors"

	interfaces "github.com/sheikh-saqib/gateway-ledger/internal/interfaces"
	"github.com/sheikh-saqib/gateway-ledger/internal/models"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

const uniqueViolation = "23505"

type PostgresLedgerStore struct {
	db *sql.DB
}

func NewPostgresLedgerStore(db *sql.DB) *PostgresLedgerStore {
	return &PostgresLedgerStore{
		db: db,
	}
}

// Open connects to dsn with lib/pq and checks the connection.
func Open(ctx context.Context, dsn string) (*PostgresLedgerStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, errors.Wrap(err, "open postgres")
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, errors.Wrap(models.ErrStoreNotReady, err.Error())
	}
	return NewPostgresLedgerStore(db), nil
}

// Migrate applies the embedded schema migrations. An up-to-date schema is not an error.
func (p *PostgresLedgerStore) Migrate() error {
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return errors.Wrap(err, "load migrations")
	}
	driver, err := migratepg.WithInstance(p.db, &migratepg.Config{})
	if err != nil {
		return errors.Wrap(err, "create migration driver")
	}
	m, err := migrate.NewWithInstance("iofs", src, "postgres", driver)
	if err != nil {
		return errors.Wrap(err, "create migration instance")
	}

	if err := m.Up(); err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			return nil
		}
		var dirtyErr migrate.ErrDirty
		if errors.As(err, &dirtyErr) {
			return errors.Errorf("migration failed: dirty database version %d", dirtyErr.Version)
		}
		return errors.Wrap(err, "migration failed")
	}
	return nil
}

func (p *PostgresLedgerStore) Ping(ctx context.Context) error {
	return p.db.PingContext(ctx)
}

func (p *PostgresLedgerStore) Close() error {
	return p.db.Close()
}

// isUniqueViolation reports whether err is a unique violation, optionally of constraint.
func isUniqueViolation(err error, constraint string) bool {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) || pqErr.Code != uniqueViolation {
		return false
	}
	return constraint == "" || pqErr.Constraint == constraint
}

func (p *PostgresLedgerStore) PostingExists(ctx context.Context, idempotencyKey string) (bool, error) {
	const query = `SELECT 1 FROM ledger_postings WHERE idempotency_key = $1 LIMIT 1`

	var exists int
	err := p.db.QueryRowContext(ctx, query, idempotencyKey).Scan(&exists)

	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	return true, nil
}

func (p *PostgresLedgerStore) savePosting(ctx context.Context, posting models.Posting, dbTx *sql.Tx) error {
	const query = `INSERT INTO ledger_postings (idempotency_key, batch_id, transaction_id, seller_id, entry_count, created_at)
	VALUES ($1, $2, $3, $4, $5, $6)`

	_, err := dbTx.ExecContext(ctx, query, posting.IdempotencyKey, posting.BatchID, posting.TransactionID,
		posting.SellerID, posting.EntryCount, posting.CreatedAt)
	return err
}

func (p *PostgresLedgerStore) saveEntry(ctx context.Context, e models.LedgerEntry, dbTx *sql.Tx) error {
	const query = `INSERT INTO ledger_entries (id, transaction_id, seller_id, batch_id, sequence, account, side,
	amount, currency, side_hash, idempotency_key, posting_key, source_system, source_acquirer, source_ip, created_at, event_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)`

	var eventAt sql.NullTime
	if e.EventAt != nil {
		eventAt = sql.NullTime{Time: *e.EventAt, Valid: true}
	}
	_, err := dbTx.ExecContext(ctx, query, e.ID, e.TransactionID, e.SellerID, e.BatchID, e.Sequence, e.Account,
		string(e.Side), e.Amount, e.Currency, e.SideHash, e.IdempotencyKey, e.PostingKey,
		e.Source.System, e.Source.Acquirer, e.Source.IP, e.CreatedAt, eventAt)
	return err
}

// SavePosting writes the header and entries in one transaction. The header
// primary key is the idempotency guard.
func (p *PostgresLedgerStore) SavePosting(ctx context.Context, posting models.Posting, entries []models.LedgerEntry) (err error) {
	dbTx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}

	defer func() {
		if err != nil {
			dbTx.Rollback()
		}
	}()

	if err = p.savePosting(ctx, posting, dbTx); err != nil {
		if isUniqueViolation(err, "ledger_postings_pkey") {
			return models.ErrDuplicatePosting
		}
		if isUniqueViolation(err, "") {
			return models.ErrAlreadyExists
		}
		return errors.Wrap(err, "insert posting")
	}

	for _, e := range entries {
		if err = p.saveEntry(ctx, e, dbTx); err != nil {
			if isUniqueViolation(err, "ledger_entries_idempotency_key_key") {
				return models.ErrDuplicatePosting
			}
			if isUniqueViolation(err, "") {
				return models.ErrAlreadyExists
			}
			return errors.Wrapf(err, "insert entry %d", e.Sequence)
		}
	}
	return dbTx.Commit()
}

const entryColumns = `id, transaction_id, seller_id, batch_id, sequence, account, side, amount, currency, side_hash,
	idempotency_key, posting_key, source_system, source_acquirer, source_ip, created_at, event_at`

func (p *PostgresLedgerStore) GetLedgerEntries(ctx context.Context) ([]models.LedgerEntry, error) {
	return p.ListEntries(ctx, models.EntryFilter{})
}

func (p *PostgresLedgerStore) GetEntriesByAccount(ctx context.Context, account string) ([]models.LedgerEntry, error) {
	return p.ListEntries(ctx, models.EntryFilter{Account: account})
}

func (p *PostgresLedgerStore) ListEntries(ctx context.Context, filter models.EntryFilter) ([]models.LedgerEntry, error) {
	var (
		where []string
		args  []any
	)
	add := func(cond string, v any) {
		args = append(args, v)
		where = append(where, fmt.Sprintf(cond, len(args)))
	}
	if !filter.From.IsZero() {
		add("created_at >= $%d", filter.From)
	}
	if !filter.To.IsZero() {
		add("created_at <= $%d", filter.To)
	}
	if filter.BatchID != "" {
		add("batch_id = $%d", filter.BatchID)
	}
	if filter.SellerID != "" {
		add("seller_id = $%d", filter.SellerID)
	}
	if filter.Account != "" {
		add("account = $%d", filter.Account)
	}

	query := `SELECT ` + entryColumns + ` FROM ledger_entries`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY created_at, batch_id, sequence`

	rows, err := p.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}

	defer rows.Close()

	var entries []models.LedgerEntry
	for rows.Next() {
		var (
			e       models.LedgerEntry
			side    string
			eventAt sql.NullTime
		)
		err := rows.Scan(&e.ID, &e.TransactionID, &e.SellerID, &e.BatchID, &e.Sequence, &e.Account, &side,
			&e.Amount, &e.Currency, &e.SideHash, &e.IdempotencyKey, &e.PostingKey,
			&e.Source.System, &e.Source.Acquirer, &e.Source.IP, &e.CreatedAt, &eventAt)
		if err != nil {
			return nil, err
		}
		e.Side = models.Side(side)
		e.CreatedAt = e.CreatedAt.UTC()
		if eventAt.Valid {
			t := eventAt.Time.UTC()
			e.EventAt = &t
		}
		entries = append(entries, e)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}
	return entries, nil
}

var _ interfaces.Store = (*PostgresLedgerStore)(nil)
