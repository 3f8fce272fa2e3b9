package closing

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	interfaces "github.com/sheikh-saqib/gateway-ledger/internal/interfaces"
	"github.com/sheikh-saqib/gateway-ledger/internal/models"
	"github.com/sheikh-saqib/gateway-ledger/internal/models/events"
)

// BatchStore is what the batch closer reads and writes.
type BatchStore interface {
	ListEntries(ctx context.Context, filter models.EntryFilter) ([]models.LedgerEntry, error)
	GetDailyBatch(ctx context.Context, dateKey string) (*models.LedgerBatch, error)
	CreateDailyBatch(ctx context.Context, batch models.LedgerBatch) error
}

// BatchCloser closes one calendar day at a time.
type BatchCloser struct {
	store        BatchStore
	consolidator *Consolidator
	locker       interfaces.Locker
	publisher    interfaces.EventPublisher
	loc          *time.Location
	now          func() time.Time
	l            *zap.Logger
}

// NewBatchCloser creates a closer that consolidates snapshots after each close.
// publisher may be nil.
func NewBatchCloser(store BatchStore, consolidator *Consolidator, locker interfaces.Locker,
	publisher interfaces.EventPublisher, loc *time.Location, logger *zap.Logger) *BatchCloser {
	if loc == nil {
		loc = time.UTC
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BatchCloser{
		store:        store,
		consolidator: consolidator,
		locker:       locker,
		publisher:    publisher,
		loc:          loc,
		now:          time.Now,
		l:            logger,
	}
}

// LockKey is the lock serializing close and consolidation of one day.
func LockKey(dateKey string) string {
	return "ledger:close:" + dateKey
}

// CloseDailyBatch aggregates the entries of dateKey into a closed batch and
// consolidates the day's snapshots. A day that is already closed keeps its
// batch and only has its snapshots consolidated again.
// A day without entries fails with models.ErrNoEntries and writes nothing.
func (b *BatchCloser) CloseDailyBatch(ctx context.Context, dateKey string) (*models.LedgerBatch, error) {
	var (
		closed *models.LedgerBatch
		fresh  bool
	)

	err := b.locker.WithLock(ctx, LockKey(dateKey), func(ctx context.Context) error {
		existing, err := b.store.GetDailyBatch(ctx, dateKey)
		if err == nil && existing.Closed {
			b.l.Info("daily batch already closed", zap.String("date_key", dateKey))
			closed = existing
			// repairs snapshots of a close whose consolidation failed
			return b.consolidate(ctx, dateKey)
		}
		if err != nil && !errors.Is(err, models.ErrNotFound) {
			return errors.Wrapf(err, "load daily batch %s", dateKey)
		}

		batch, err := b.aggregate(ctx, dateKey)
		if err != nil {
			return err
		}

		if err := b.store.CreateDailyBatch(ctx, *batch); err != nil {
			if errors.Is(err, models.ErrAlreadyExists) {
				b.l.Info("daily batch closed concurrently", zap.String("date_key", dateKey))
				if closed, err = b.store.GetDailyBatch(ctx, dateKey); err != nil {
					return err
				}
				return b.consolidate(ctx, dateKey)
			}
			return errors.Wrapf(err, "create daily batch %s", dateKey)
		}
		closed = batch
		fresh = true

		b.l.Info("daily batch closed",
			zap.String("date_key", dateKey),
			zap.String("batch_id", batch.BatchID),
			zap.Int("entries", batch.TotalEntries),
			zap.String("total_debit", batch.TotalDebit.StringFixed(2)),
			zap.String("total_credit", batch.TotalCredit.StringFixed(2)))

		return b.consolidate(ctx, dateKey)
	})
	if err != nil {
		return nil, err
	}

	if fresh {
		b.publish(ctx, closed)
	}
	return closed, nil
}

func (b *BatchCloser) consolidate(ctx context.Context, dateKey string) error {
	if _, err := b.consolidator.CreateDailySnapshots(ctx, dateKey); err != nil {
		return errors.Wrapf(err, "consolidate snapshots of %s", dateKey)
	}
	return nil
}

// Consolidate re-runs snapshot consolidation for dateKey under the day lock.
func (b *BatchCloser) Consolidate(ctx context.Context, dateKey string) (int, error) {
	var n int
	err := b.locker.WithLock(ctx, LockKey(dateKey), func(ctx context.Context) error {
		var err error
		n, err = b.consolidator.CreateDailySnapshots(ctx, dateKey)
		return err
	})
	return n, err
}

func (b *BatchCloser) aggregate(ctx context.Context, dateKey string) (*models.LedgerBatch, error) {
	from, to, err := models.DayBounds(dateKey, b.loc)
	if err != nil {
		return nil, err
	}

	entries, err := b.store.ListEntries(ctx, models.EntryFilter{From: from, To: to})
	if err != nil {
		return nil, errors.Wrapf(err, "list entries of %s", dateKey)
	}
	if len(entries) == 0 {
		return nil, errors.Wrapf(models.ErrNoEntries, "close %s", dateKey)
	}

	debit, credit := decimal.Zero, decimal.Zero
	for _, e := range entries {
		if e.Side == models.Debit {
			debit = debit.Add(e.Amount)
		} else {
			credit = credit.Add(e.Amount)
		}
	}

	return &models.LedgerBatch{
		DateKey:      dateKey,
		BatchID:      uuid.New().String(),
		TotalEntries: len(entries),
		TotalDebit:   debit,
		TotalCredit:  credit,
		Closed:       true,
		ClosedAt:     b.now().UTC(),
	}, nil
}

func (b *BatchCloser) publish(ctx context.Context, batch *models.LedgerBatch) {
	if b.publisher == nil || batch == nil {
		return
	}
	event := events.BatchClosed{
		DateKey:      batch.DateKey,
		BatchID:      batch.BatchID,
		TotalEntries: batch.TotalEntries,
		TotalDebit:   batch.TotalDebit,
		TotalCredit:  batch.TotalCredit,
		OccurredAt:   batch.ClosedAt,
	}
	if err := b.publisher.Publish(ctx, events.TopicBatchClosed, batch.DateKey, event); err != nil {
		b.l.Warn("failed to publish batch closed event", zap.String("date_key", batch.DateKey), zap.Error(err))
	}
}
