package release

import (
	"context"
	"sort"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/sheikh-saqib/gateway-ledger/internal/models"
	"github.com/sheikh-saqib/gateway-ledger/internal/models/events"
)

// SettlementMatch pairs a settled cashout with the confirmation that settled it.
type SettlementMatch struct {
	CashoutID string          `json:"cashout_id"`
	SellerID  string          `json:"seller_id"`
	Reference string          `json:"reference"`
	Amount    decimal.Decimal `json:"amount"`
}

// SettlementReport summarizes one D+2 settlement run.
type SettlementReport struct {
	DateKey             string            `json:"date_key"`
	Cutoff              string            `json:"cutoff"` // cashouts of this day or earlier were considered
	Settled             []SettlementMatch `json:"settled"`
	Unmatched           []string          `json:"unmatched"` // cashout ids left liquidated
	Locked              []string          `json:"locked"`    // cashout ids skipped on a locked day
	Failed              []string          `json:"failed"`
	UnusedConfirmations []string          `json:"unused_confirmations"`
}

// SettlementID is the posting key of the settlement of cashoutID.
func SettlementID(cashoutID string) string {
	return "settlement:" + cashoutID
}

// Settler is the D+2 settlement confirmation engine.
type Settler struct {
	deps Deps
	cfg  Config
	l    *zap.Logger
}

func NewSettler(deps Deps, cfg Config) *Settler {
	deps = deps.withDefaults()
	return &Settler{deps: deps, cfg: cfg, l: deps.Logger}
}

// Run matches liquidated cashouts at least SettlementLagDays older than dateKey
// against confirmations. Each confirmation settles at most one cashout;
// unmatched cashouts stay liquidated for the next run.
func (s *Settler) Run(ctx context.Context, dateKey string, confirmations []models.TransferConfirmation) (SettlementReport, error) {
	report := SettlementReport{DateKey: dateKey}

	cutoff, err := models.ShiftDateKey(dateKey, -s.cfg.SettlementLagDays)
	if err != nil {
		return report, err
	}
	report.Cutoff = cutoff

	pending, err := s.deps.Store.ListCashouts(ctx, models.CashoutFilter{Status: models.CashoutLiquidated, ToDateKey: cutoff})
	if err != nil {
		return report, errors.Wrap(err, "list liquidated cashouts")
	}
	// oldest day first so an older cashout wins a shared amount
	sort.SliceStable(pending, func(i, j int) bool {
		if pending[i].DateKey != pending[j].DateKey {
			return pending[i].DateKey < pending[j].DateKey
		}
		return pending[i].SellerID < pending[j].SellerID
	})

	used := make([]bool, len(confirmations))
	for _, c := range pending {
		log := s.l.With(zap.String("cashout_id", c.ID), zap.String("seller_id", c.SellerID), zap.String("date_key", c.DateKey))

		locked, err := payableLocked(ctx, s.deps.Store, s.cfg.PayableAccount, c.DateKey, c.SellerID)
		if err != nil {
			return report, errors.Wrapf(err, "check lock of %s", c.DateKey)
		}
		if locked {
			log.Warn("snapshot locked, settlement skipped", zap.Error(models.ErrSnapshotLocked))
			report.Locked = append(report.Locked, c.ID)
			continue
		}

		idx := match(c, confirmations, used)
		if idx < 0 {
			log.Warn("no transfer confirmation for cashout, left pending",
				zap.String("amount", c.Amount.StringFixed(2)), zap.Error(models.ErrUnmatchedSettlement))
			report.Unmatched = append(report.Unmatched, c.ID)
			continue
		}

		conf := confirmations[idx]
		if err := s.settle(ctx, c, conf); err != nil {
			log.Error("settlement failed", zap.String("reference", conf.Reference), zap.Error(err))
			report.Failed = append(report.Failed, c.ID)
			continue
		}
		used[idx] = true
		report.Settled = append(report.Settled, SettlementMatch{
			CashoutID: c.ID, SellerID: c.SellerID, Reference: conf.Reference, Amount: c.Amount,
		})
		log.Info("cashout settled", zap.String("reference", conf.Reference))
	}

	for i, conf := range confirmations {
		if !used[i] {
			report.UnusedConfirmations = append(report.UnusedConfirmations, conf.Reference)
		}
	}

	s.l.Info("settlement confirmation finished",
		zap.String("date_key", dateKey),
		zap.String("cutoff", cutoff),
		zap.Int("settled", len(report.Settled)),
		zap.Int("unmatched", len(report.Unmatched)),
		zap.Int("locked", len(report.Locked)),
	)

	if len(report.Failed) > 0 {
		return report, errors.Errorf("settle %s: %d cashouts failed", dateKey, len(report.Failed))
	}
	return report, nil
}

// match returns the index of the first unused confirmation for c, or -1.
func match(c models.Cashout, confirmations []models.TransferConfirmation, used []bool) int {
	for i, conf := range confirmations {
		if used[i] || !conf.Amount.Round(2).Equal(c.Amount.Round(2)) {
			continue
		}
		if c.DestinationAccount != "" && conf.DestinationAccount != "" && c.DestinationAccount != conf.DestinationAccount {
			continue
		}
		return i
	}
	return -1
}

func (s *Settler) settle(ctx context.Context, c models.Cashout, conf models.TransferConfirmation) error {
	key := SettlementID(c.ID)
	if _, err := s.deps.Poster.Post(ctx, transfer(key, conf.Reference, c.SellerID, s.cfg.ClearingAccount, s.cfg.CashAccount, c.Amount)); err != nil {
		return errors.Wrap(err, "post settlement")
	}

	settledAt := conf.ConfirmedAt
	if settledAt.IsZero() {
		settledAt = s.deps.Now()
	}
	settledAt = settledAt.UTC()
	if err := s.deps.Store.MarkCashoutSettled(ctx, c.ID, conf.Reference, settledAt); err != nil {
		return errors.Wrap(err, "mark cashout settled")
	}

	if s.deps.Audit != nil {
		err := s.deps.Audit.Append(models.AuditRecord{
			Kind:       models.AuditCashoutSettled,
			SellerID:   c.SellerID,
			DateKey:    c.DateKey,
			CashoutID:  c.ID,
			PostingKey: key,
			Amount:     c.Amount,
			Reference:  conf.Reference,
			RecordedAt: settledAt,
		})
		if err != nil {
			s.l.Error("failed to append audit record", zap.String("cashout_id", c.ID), zap.Error(err))
		}
	}

	s.publish(ctx, c, conf.Reference, settledAt)
	return nil
}

func (s *Settler) publish(ctx context.Context, c models.Cashout, reference string, at time.Time) {
	if s.deps.Publisher == nil {
		return
	}
	event := events.CashoutSettled{
		CashoutID:  c.ID,
		SellerID:   c.SellerID,
		Amount:     c.Amount,
		Reference:  reference,
		OccurredAt: at,
	}
	if err := s.deps.Publisher.Publish(ctx, events.TopicCashoutSettled, c.SellerID, event); err != nil {
		s.l.Warn("failed to publish settlement event", zap.String("cashout_id", c.ID), zap.Error(err))
	}
}
