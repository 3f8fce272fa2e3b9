// Package reconciliation compares daily snapshots with external statements and
// locks the day when they diverge.
package reconciliation

import (
	"context"
	"sort"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/sheikh-saqib/gateway-ledger/internal/accounts"
	interfaces "github.com/sheikh-saqib/gateway-ledger/internal/interfaces"
	"github.com/sheikh-saqib/gateway-ledger/internal/models"
	"github.com/sheikh-saqib/gateway-ledger/internal/models/events"
)

var (
	// DefaultTolerance is the per-account matching tolerance in currency units.
	DefaultTolerance = decimal.RequireFromString("0.01")
	// DefaultLockThreshold is the aggregate divergence (5 basis points) at which a day is locked.
	DefaultLockThreshold = decimal.RequireFromString("0.0005")
)

// Store is what the engine reads and writes. Lock state is owned by this engine.
type Store interface {
	ListSnapshots(ctx context.Context, filter models.SnapshotFilter) ([]models.LedgerSnapshot, error)
	SetSnapshotLock(ctx context.Context, dateKey string, locked bool, divergence decimal.Decimal) (int, error)
}

// Engine reconciles one day at a time.
type Engine struct {
	store         Store
	chart         *accounts.Chart
	publisher     interfaces.EventPublisher
	tolerance     decimal.Decimal
	lockThreshold decimal.Decimal
	now           func() time.Time
	l             *zap.Logger
}

// Option configures an Engine.
type Option func(*Engine)

func WithTolerance(d decimal.Decimal) Option {
	return func(e *Engine) { e.tolerance = d }
}

func WithLockThreshold(d decimal.Decimal) Option {
	return func(e *Engine) { e.lockThreshold = d }
}

func WithPublisher(p interfaces.EventPublisher) Option {
	return func(e *Engine) { e.publisher = p }
}

func WithLogger(l *zap.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.l = l
		}
	}
}

func NewEngine(store Store, chart *accounts.Chart, opts ...Option) *Engine {
	e := &Engine{
		store:         store,
		chart:         chart,
		tolerance:     DefaultTolerance,
		lockThreshold: DefaultLockThreshold,
		now:           time.Now,
		l:             zap.NewNop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Divergence returns |expected - external| / max(expected, 1) rounded to 8
// places for storage and display. Lock decisions use ShouldLock.
func Divergence(expected, external decimal.Decimal) decimal.Decimal {
	return expected.Sub(external).Abs().DivRound(divergenceFloor(expected), 8)
}

// ShouldLock reports whether |expected - external| / max(expected, 1) reaches
// the lock threshold. The comparison is cross-multiplied so it is exact.
func (e *Engine) ShouldLock(expected, external decimal.Decimal) bool {
	gap := expected.Sub(external).Abs()
	return gap.GreaterThanOrEqual(e.lockThreshold.Mul(divergenceFloor(expected)))
}

func divergenceFloor(expected decimal.Decimal) decimal.Decimal {
	return decimal.Max(expected, decimal.NewFromInt(1))
}

// Reconcile matches the snapshots of dateKey against feed and sets the lock
// state of every snapshot of the day. A divergent day is a result, not an error.
func (e *Engine) Reconcile(ctx context.Context, feed []models.StatementRow, dateKey string) (models.ReconciliationResult, error) {
	result := models.ReconciliationResult{DateKey: dateKey}

	snaps, err := e.store.ListSnapshots(ctx, models.SnapshotFilter{DateKey: dateKey})
	if err != nil {
		return result, errors.Wrapf(err, "list snapshots of %s", dateKey)
	}
	if len(snaps) == 0 {
		return result, errors.Wrapf(models.ErrNoEntries, "reconcile %s", dateKey)
	}

	internal := e.internalBalances(snaps)
	external := make(map[string]decimal.Decimal)
	for _, row := range feed {
		external[row.Account] = external[row.Account].Add(row.Balance)
	}

	e.match(internal, external, feed, &result)

	result.ExpectedBalance = decimal.Zero
	for account, bal := range internal {
		if n, _ := e.chart.Nature(account); n == accounts.Asset {
			result.ExpectedBalance = result.ExpectedBalance.Add(bal)
		}
	}
	result.BankBalance, result.AcquirerBalance = decimal.Zero, decimal.Zero
	for _, row := range feed {
		if n, _ := e.chart.Nature(row.Account); n != accounts.Asset {
			continue
		}
		if row.Source == models.SourceAcquirer {
			result.AcquirerBalance = result.AcquirerBalance.Add(row.Balance)
		} else {
			result.BankBalance = result.BankBalance.Add(row.Balance)
		}
	}

	externalTotal := result.BankBalance.Add(result.AcquirerBalance)
	result.Divergence = Divergence(result.ExpectedBalance, externalTotal)
	result.Locked = e.ShouldLock(result.ExpectedBalance, externalTotal)

	n, err := e.store.SetSnapshotLock(ctx, dateKey, result.Locked, result.Divergence)
	if err != nil {
		return result, errors.Wrapf(err, "set lock state of %s", dateKey)
	}
	result.SnapshotsUpdated = n

	fields := []zap.Field{
		zap.String("date_key", dateKey),
		zap.String("divergence", result.Divergence.String()),
		zap.String("expected", result.ExpectedBalance.StringFixed(2)),
		zap.String("bank", result.BankBalance.StringFixed(2)),
		zap.String("acquirer", result.AcquirerBalance.StringFixed(2)),
		zap.Int("matched", len(result.Matched)),
		zap.Int("mismatched", len(result.Mismatched)),
		zap.Int("missing_in_ledger", len(result.MissingInLedger)),
		zap.Int("missing_in_external", len(result.MissingInExternal)),
	}
	if result.Locked {
		e.l.Warn("ledger diverges from external feed, snapshots locked",
			append(fields, zap.Error(models.ErrReconciliationDivergence))...)
	} else {
		e.l.Info("reconciliation passed", fields...)
	}

	e.publish(ctx, result)
	return result, nil
}

// internalBalances sums the natural balance of each account across sellers.
func (e *Engine) internalBalances(snaps []models.LedgerSnapshot) map[string]decimal.Decimal {
	out := make(map[string]decimal.Decimal)
	for _, s := range snaps {
		out[s.Account] = out[s.Account].Add(e.chart.Natural(s.Account, s.Balance))
	}
	return out
}

func (e *Engine) match(internal, external map[string]decimal.Decimal, feed []models.StatementRow, result *models.ReconciliationResult) {
	names := make([]string, 0, len(internal))
	for account := range internal {
		names = append(names, account)
	}
	sort.Strings(names)

	for _, account := range names {
		in := internal[account]
		ext, ok := external[account]
		if !ok {
			result.MissingInExternal = append(result.MissingInExternal, models.AccountMatch{
				Account: account, Internal: in, External: decimal.Zero, Delta: in,
			})
			continue
		}
		m := models.AccountMatch{Account: account, Internal: in, External: ext, Delta: in.Sub(ext)}
		if m.Delta.Abs().LessThanOrEqual(e.tolerance) {
			result.Matched = append(result.Matched, m)
		} else {
			result.Mismatched = append(result.Mismatched, m)
		}
	}

	for _, row := range feed {
		if _, ok := internal[row.Account]; !ok {
			result.MissingInLedger = append(result.MissingInLedger, row)
		}
	}
}

func (e *Engine) publish(ctx context.Context, result models.ReconciliationResult) {
	if e.publisher == nil {
		return
	}
	event := events.ReconciliationCompleted{
		DateKey:    result.DateKey,
		Divergence: result.Divergence,
		Locked:     result.Locked,
		OccurredAt: e.now().UTC(),
	}
	if err := e.publisher.Publish(ctx, events.TopicReconciliationCompleted, result.DateKey, event); err != nil {
		e.l.Warn("failed to publish reconciliation event", zap.String("date_key", result.DateKey), zap.Error(err))
	}
}
