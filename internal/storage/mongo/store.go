// Package mongo stores the ledger in MongoDB. Multi-document writes use
// session transactions, so the deployment must be a replica set.
package mongo

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	interfaces "github.com/sheikh-saqib/gateway-ledger/internal/interfaces"
	"github.com/sheikh-saqib/gateway-ledger/internal/models"
)

// Collection name constants.
const (
	colPostings  = "ledger_postings"
	colEntries   = "ledger_entries"
	colBatches   = "ledger_batches"
	colSnapshots = "ledger_snapshots"
	colWallets   = "wallets"
	colCashouts  = "cashouts"
)

// compile-time interface check
var _ interfaces.Store = (*Store)(nil)

// Store implements interfaces.Store on a MongoDB database.
type Store struct {
	client *mongo.Client
	db     *mongo.Database
}

// New wraps an existing client.
func New(client *mongo.Client, database string) *Store {
	return &Store{client: client, db: client.Database(database)}
}

// Connect dials uri and checks the connection.
func Connect(ctx context.Context, uri, database string) (*Store, error) {
	client, err := mongo.Connect(options.Client().ApplyURI(uri))
	if err != nil {
		return nil, errors.Wrap(err, "connect")
	}
	s := New(client, database)
	if err := s.Ping(ctx); err != nil {
		_ = client.Disconnect(ctx)
		return nil, errors.Wrap(models.ErrStoreNotReady, err.Error())
	}
	return s, nil
}

// Migrate creates indexes for all ledger collections.
func (s *Store) Migrate(ctx context.Context) error {
	for col, idx := range migrationIndexes() {
		if len(idx) == 0 {
			continue
		}
		if _, err := s.db.Collection(col).Indexes().CreateMany(ctx, idx); err != nil {
			return errors.Wrapf(err, "migrate %s indexes", col)
		}
	}
	return nil
}

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx, nil)
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.client.Disconnect(context.Background())
}

func (s *Store) col(name string) *mongo.Collection {
	return s.db.Collection(name)
}

// inTransaction runs fn in a session transaction.
func (s *Store) inTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	sess, err := s.client.StartSession()
	if err != nil {
		return errors.Wrap(err, "start session")
	}
	defer sess.EndSession(ctx)

	_, err = sess.WithTransaction(ctx, func(ctx context.Context) (any, error) {
		return nil, fn(ctx)
	})
	return err
}

// ==================== Ledger Store ====================

func (s *Store) PostingExists(ctx context.Context, idempotencyKey string) (bool, error) {
	n, err := s.col(colPostings).CountDocuments(ctx, bson.M{"_id": idempotencyKey})
	if err != nil {
		return false, errors.Wrap(err, "posting exists")
	}
	return n > 0, nil
}

// SavePosting inserts the header and entries in one transaction. The header
// _id is the idempotency guard.
func (s *Store) SavePosting(ctx context.Context, posting models.Posting, entries []models.LedgerEntry) error {
	docs := make([]any, len(entries))
	for i, e := range entries {
		docs[i] = toEntryModel(e)
	}

	return s.inTransaction(ctx, func(ctx context.Context) error {
		_, err := s.col(colPostings).InsertOne(ctx, postingModel{
			IdempotencyKey: posting.IdempotencyKey,
			BatchID:        posting.BatchID,
			TransactionID:  posting.TransactionID,
			SellerID:       posting.SellerID,
			EntryCount:     posting.EntryCount,
			CreatedAt:      posting.CreatedAt,
		})
		if mongo.IsDuplicateKeyError(err) {
			return models.ErrDuplicatePosting
		}
		if err != nil {
			return errors.Wrap(err, "insert posting")
		}

		if _, err := s.col(colEntries).InsertMany(ctx, docs); err != nil {
			if mongo.IsDuplicateKeyError(err) {
				return models.ErrDuplicatePosting
			}
			return errors.Wrap(err, "insert entries")
		}
		return nil
	})
}

func (s *Store) GetLedgerEntries(ctx context.Context) ([]models.LedgerEntry, error) {
	return s.ListEntries(ctx, models.EntryFilter{})
}

func (s *Store) GetEntriesByAccount(ctx context.Context, account string) ([]models.LedgerEntry, error) {
	return s.ListEntries(ctx, models.EntryFilter{Account: account})
}

func (s *Store) ListEntries(ctx context.Context, f models.EntryFilter) ([]models.LedgerEntry, error) {
	filter := bson.M{}
	if !f.From.IsZero() || !f.To.IsZero() {
		created := bson.M{}
		if !f.From.IsZero() {
			created["$gte"] = f.From
		}
		if !f.To.IsZero() {
			created["$lte"] = f.To
		}
		filter["created_at"] = created
	}
	if f.BatchID != "" {
		filter["batch_id"] = f.BatchID
	}
	if f.SellerID != "" {
		filter["seller_id"] = f.SellerID
	}
	if f.Account != "" {
		filter["account"] = f.Account
	}

	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}, {Key: "batch_id", Value: 1}, {Key: "sequence", Value: 1}})
	cur, err := s.col(colEntries).Find(ctx, filter, opts)
	if err != nil {
		return nil, errors.Wrap(err, "list entries")
	}
	var docs []entryModel
	if err := cur.All(ctx, &docs); err != nil {
		return nil, errors.Wrap(err, "decode entries")
	}

	entries := make([]models.LedgerEntry, 0, len(docs))
	for _, d := range docs {
		entries = append(entries, fromEntryModel(d))
	}
	return entries, nil
}

// ==================== Batch Store ====================

func (s *Store) GetDailyBatch(ctx context.Context, dateKey string) (*models.LedgerBatch, error) {
	var m batchModel
	err := s.col(colBatches).FindOne(ctx, bson.M{"_id": dateKey}).Decode(&m)
	if err != nil {
		if isNoDocuments(err) {
			return nil, models.ErrNotFound
		}
		return nil, errors.Wrap(err, "get daily batch")
	}
	b := fromBatchModel(m)
	return &b, nil
}

func (s *Store) CreateDailyBatch(ctx context.Context, b models.LedgerBatch) error {
	_, err := s.col(colBatches).InsertOne(ctx, batchModel{
		DateKey:      b.DateKey,
		BatchID:      b.BatchID,
		TotalEntries: b.TotalEntries,
		TotalDebit:   toDec128(b.TotalDebit),
		TotalCredit:  toDec128(b.TotalCredit),
		Closed:       b.Closed,
		ClosedAt:     b.ClosedAt,
	})
	if mongo.IsDuplicateKeyError(err) {
		return models.ErrAlreadyExists
	}
	if err != nil {
		return errors.Wrap(err, "create daily batch")
	}
	return nil
}

func (s *Store) ListDailyBatches(ctx context.Context, fromDate, toDate string) ([]models.LedgerBatch, error) {
	filter := bson.M{}
	if r := dateRange(fromDate, toDate); len(r) > 0 {
		filter["_id"] = r
	}
	cur, err := s.col(colBatches).Find(ctx, filter, options.Find().SetSort(bson.D{{Key: "_id", Value: 1}}))
	if err != nil {
		return nil, errors.Wrap(err, "list daily batches")
	}
	var docs []batchModel
	if err := cur.All(ctx, &docs); err != nil {
		return nil, errors.Wrap(err, "decode daily batches")
	}

	batches := make([]models.LedgerBatch, 0, len(docs))
	for _, d := range docs {
		batches = append(batches, fromBatchModel(d))
	}
	return batches, nil
}

// ==================== Snapshot Store ====================

func snapshotID(k models.SnapshotKey) string {
	return k.DateKey + "/" + k.Account + "/" + k.SellerID
}

// UpsertSnapshot sets totals and only initializes locked and divergence on insert.
func (s *Store) UpsertSnapshot(ctx context.Context, snap models.LedgerSnapshot) error {
	update := bson.M{
		"$set": bson.M{
			"balance":      toDec128(snap.Balance),
			"debit_total":  toDec128(snap.DebitTotal),
			"credit_total": toDec128(snap.CreditTotal),
			"updated_at":   snap.UpdatedAt,
		},
		"$setOnInsert": bson.M{
			"date_key":   snap.DateKey,
			"account":    snap.Account,
			"seller_id":  snap.SellerID,
			"divergence": toDec128(decimal.Zero),
			"locked":     false,
		},
	}
	_, err := s.col(colSnapshots).UpdateOne(ctx, bson.M{"_id": snapshotID(snap.Key())}, update,
		options.UpdateOne().SetUpsert(true))
	if err != nil {
		return errors.Wrap(err, "upsert snapshot")
	}
	return nil
}

func (s *Store) ListSnapshots(ctx context.Context, f models.SnapshotFilter) ([]models.LedgerSnapshot, error) {
	filter := bson.M{}
	if f.DateKey != "" {
		filter["date_key"] = f.DateKey
	} else if r := dateRange(f.FromDate, f.ToDate); len(r) > 0 {
		filter["date_key"] = r
	}
	if f.SellerID != "" {
		filter["seller_id"] = f.SellerID
	}
	if f.Account != "" {
		filter["account"] = f.Account
	}

	opts := options.Find().SetSort(bson.D{{Key: "date_key", Value: 1}, {Key: "account", Value: 1}, {Key: "seller_id", Value: 1}})
	cur, err := s.col(colSnapshots).Find(ctx, filter, opts)
	if err != nil {
		return nil, errors.Wrap(err, "list snapshots")
	}
	var docs []snapshotModel
	if err := cur.All(ctx, &docs); err != nil {
		return nil, errors.Wrap(err, "decode snapshots")
	}

	snaps := make([]models.LedgerSnapshot, 0, len(docs))
	for _, d := range docs {
		snaps = append(snaps, fromSnapshotModel(d))
	}
	return snaps, nil
}

func (s *Store) SetSnapshotLock(ctx context.Context, dateKey string, locked bool, divergence decimal.Decimal) (int, error) {
	res, err := s.col(colSnapshots).UpdateMany(ctx, bson.M{"date_key": dateKey}, bson.M{
		"$set": bson.M{"locked": locked, "divergence": toDec128(divergence)},
	})
	if err != nil {
		return 0, errors.Wrap(err, "set snapshot lock")
	}
	return int(res.MatchedCount), nil
}

// ==================== Wallet Store ====================

func (s *Store) GetWallet(ctx context.Context, sellerID string) (*models.Wallet, error) {
	var m walletModel
	err := s.col(colWallets).FindOne(ctx, bson.M{"_id": sellerID}).Decode(&m)
	if err != nil {
		if isNoDocuments(err) {
			return nil, models.ErrNotFound
		}
		return nil, errors.Wrap(err, "get wallet")
	}
	w := fromWalletModel(m)
	return &w, nil
}

func (s *Store) SaveWallet(ctx context.Context, w models.Wallet) error {
	updatedAt := w.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = now()
	}
	_, err := s.col(colWallets).ReplaceOne(ctx, bson.M{"_id": w.SellerID}, walletModel{
		SellerID:  w.SellerID,
		Available: toDec128(w.Available),
		Pending:   toDec128(w.Pending),
		UpdatedAt: updatedAt,
	}, options.Replace().SetUpsert(true))
	if err != nil {
		return errors.Wrap(err, "save wallet")
	}
	return nil
}

// ReleaseToWallet inserts the cashout and moves its amount from pending to
// available in one transaction.
func (s *Store) ReleaseToWallet(ctx context.Context, c models.Cashout) error {
	return s.inTransaction(ctx, func(ctx context.Context) error {
		if _, err := s.col(colCashouts).InsertOne(ctx, toCashoutModel(c)); err != nil {
			if mongo.IsDuplicateKeyError(err) {
				return models.ErrAlreadyExists
			}
			return errors.Wrap(err, "insert cashout")
		}

		res, err := s.col(colWallets).UpdateOne(ctx, bson.M{"_id": c.SellerID}, bson.M{
			"$inc": bson.M{
				"pending":   toDec128(c.Amount.Neg()),
				"available": toDec128(c.Amount),
			},
			"$set": bson.M{"updated_at": c.ReleasedAt},
		})
		if err != nil {
			return errors.Wrap(err, "update wallet")
		}
		if res.MatchedCount == 0 {
			return models.ErrNotFound
		}
		return nil
	})
}

func (s *Store) GetCashout(ctx context.Context, id string) (*models.Cashout, error) {
	var m cashoutModel
	err := s.col(colCashouts).FindOne(ctx, bson.M{"_id": id}).Decode(&m)
	if err != nil {
		if isNoDocuments(err) {
			return nil, models.ErrNotFound
		}
		return nil, errors.Wrap(err, "get cashout")
	}
	c := fromCashoutModel(m)
	return &c, nil
}

func (s *Store) ListCashouts(ctx context.Context, f models.CashoutFilter) ([]models.Cashout, error) {
	filter := bson.M{}
	if f.SellerID != "" {
		filter["seller_id"] = f.SellerID
	}
	if f.Status != "" {
		filter["status"] = string(f.Status)
	}
	if f.ToDateKey != "" {
		filter["date_key"] = bson.M{"$lte": f.ToDateKey}
	}

	opts := options.Find().SetSort(bson.D{{Key: "released_at", Value: 1}, {Key: "_id", Value: 1}})
	cur, err := s.col(colCashouts).Find(ctx, filter, opts)
	if err != nil {
		return nil, errors.Wrap(err, "list cashouts")
	}
	var docs []cashoutModel
	if err := cur.All(ctx, &docs); err != nil {
		return nil, errors.Wrap(err, "decode cashouts")
	}

	cashouts := make([]models.Cashout, 0, len(docs))
	for _, d := range docs {
		cashouts = append(cashouts, fromCashoutModel(d))
	}
	return cashouts, nil
}

func (s *Store) MarkCashoutSettled(ctx context.Context, id, reference string, settledAt time.Time) error {
	res, err := s.col(colCashouts).UpdateOne(ctx, bson.M{"_id": id}, bson.M{
		"$set": bson.M{
			"status":               string(models.CashoutSettled),
			"settlement_reference": reference,
			"settled_at":           settledAt,
		},
	})
	if err != nil {
		return errors.Wrap(err, "mark cashout settled")
	}
	if res.MatchedCount == 0 {
		return models.ErrNotFound
	}
	return nil
}

// ==================== Helpers ====================

// now returns the current UTC time.
func now() time.Time {
	return time.Now().UTC()
}

// isNoDocuments checks if an error wraps mongo.ErrNoDocuments.
func isNoDocuments(err error) bool {
	return errors.Is(err, mongo.ErrNoDocuments)
}

// dateRange builds an inclusive range over date keys.
func dateRange(from, to string) bson.M {
	r := bson.M{}
	if from != "" {
		r["$gte"] = from
	}
	if to != "" {
		r["$lte"] = to
	}
	return r
}

// migrationIndexes returns the index definitions for all ledger collections.
func migrationIndexes() map[string][]mongo.IndexModel {
	return map[string][]mongo.IndexModel{
		colPostings: {
			{Keys: bson.D{{Key: "batch_id", Value: 1}}, Options: options.Index().SetUnique(true)},
		},
		colEntries: {
			{Keys: bson.D{{Key: "idempotency_key", Value: 1}}, Options: options.Index().SetUnique(true)},
			{Keys: bson.D{{Key: "batch_id", Value: 1}, {Key: "sequence", Value: 1}}, Options: options.Index().SetUnique(true)},
			{Keys: bson.D{{Key: "created_at", Value: 1}, {Key: "batch_id", Value: 1}, {Key: "sequence", Value: 1}}},
			{Keys: bson.D{{Key: "account", Value: 1}}},
		},
		colSnapshots: {
			{
				Keys:    bson.D{{Key: "date_key", Value: 1}, {Key: "account", Value: 1}, {Key: "seller_id", Value: 1}},
				Options: options.Index().SetUnique(true),
			},
		},
		colCashouts: {
			{Keys: bson.D{{Key: "status", Value: 1}, {Key: "date_key", Value: 1}}},
			{Keys: bson.D{{Key: "seller_id", Value: 1}}},
		},
	}
}
