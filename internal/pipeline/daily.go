// Package pipeline runs the nightly sequence for one ledger day.
package pipeline

import (
	"context"

	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/sheikh-saqib/gateway-ledger/internal/audit"
	"github.com/sheikh-saqib/gateway-ledger/internal/closing"
	interfaces "github.com/sheikh-saqib/gateway-ledger/internal/interfaces"
	"github.com/sheikh-saqib/gateway-ledger/internal/models"
	"github.com/sheikh-saqib/gateway-ledger/internal/proof"
	"github.com/sheikh-saqib/gateway-ledger/internal/reconciliation"
	"github.com/sheikh-saqib/gateway-ledger/internal/release"
)

// Input is the external data a day needs.
type Input struct {
	DateKey       string
	Feed          []models.StatementRow
	Confirmations []models.TransferConfirmation
}

// Summary records what every step of a run produced.
type Summary struct {
	DateKey        string                       `json:"date_key"`
	Batch          *models.LedgerBatch          `json:"batch,omitempty"`
	Snapshots      int                          `json:"snapshots"`
	Integrity      *models.IntegrityReport      `json:"integrity,omitempty"`
	Reconciliation *models.ReconciliationResult `json:"reconciliation,omitempty"`
	Release        *release.ReleaseReport       `json:"release,omitempty"`
	Settlement     *release.SettlementReport    `json:"settlement,omitempty"`
	Proof          *proof.Proof                 `json:"proof,omitempty"`
	ReleaseHalted  string                       `json:"release_halted,omitempty"` // why release steps did not run
}

// Steps are the components a run drives.
type Steps struct {
	Closer     *closing.BatchCloser
	Auditor    *audit.Auditor
	Reconciler *reconciliation.Engine
	Releaser   *release.Releaser
	Settler    *release.Settler
	Proofs     *proof.Generator
}

// Daily runs close, audit, reconciliation, release, settlement and proof for one day.
type Daily struct {
	steps           Steps
	locker          interfaces.Locker
	haltOnIntegrity bool
	l               *zap.Logger
}

func NewDaily(steps Steps, locker interfaces.Locker, haltOnIntegrity bool, logger *zap.Logger) *Daily {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Daily{steps: steps, locker: locker, haltOnIntegrity: haltOnIntegrity, l: logger}
}

// LockKey is the lock held for a whole run of dateKey.
func LockKey(dateKey string) string {
	return "ledger:pipeline:" + dateKey
}

// Run executes the day under its pipeline lock. Close, audit and reconciliation
// failures abort the run before any money moves. Release and settlement
// failures are returned after the proof step.
func (d *Daily) Run(ctx context.Context, in Input) (Summary, error) {
	summary := Summary{DateKey: in.DateKey}
	err := d.locker.WithLock(ctx, LockKey(in.DateKey), func(ctx context.Context) error {
		return d.run(ctx, in, &summary)
	})
	return summary, err
}

func (d *Daily) run(ctx context.Context, in Input, s *Summary) error {
	log := d.l.With(zap.String("date_key", in.DateKey))

	batch, err := d.steps.Closer.CloseDailyBatch(ctx, in.DateKey)
	if err != nil {
		return errors.Wrap(err, "close day")
	}
	s.Batch = batch

	// recovers snapshots of a run interrupted between close and consolidation
	if s.Snapshots, err = d.steps.Closer.Consolidate(ctx, in.DateKey); err != nil {
		return errors.Wrap(err, "consolidate day")
	}

	report, err := d.steps.Auditor.RunIntegrityCheck(ctx, in.DateKey)
	if err != nil {
		return errors.Wrap(err, "integrity check")
	}
	s.Integrity = &report

	result, err := d.steps.Reconciler.Reconcile(ctx, in.Feed, in.DateKey)
	if err != nil {
		return errors.Wrap(err, "reconcile")
	}
	s.Reconciliation = &result

	var stepErrs error
	switch {
	case d.haltOnIntegrity && !report.Healthy():
		s.ReleaseHalted = "integrity check failed"
		log.Error("release halted", zap.String("reason", s.ReleaseHalted), zap.Error(models.ErrIntegrityViolation))
	default:
		// locked snapshots are skipped per seller inside the engines
		rel, err := d.steps.Releaser.Run(ctx, in.DateKey)
		s.Release = &rel
		stepErrs = multierr.Append(stepErrs, errors.Wrap(err, "release"))

		set, err := d.steps.Settler.Run(ctx, in.DateKey, in.Confirmations)
		s.Settlement = &set
		stepErrs = multierr.Append(stepErrs, errors.Wrap(err, "settle"))
	}

	p, err := d.steps.Proofs.Generate(ctx, in.DateKey)
	if err != nil {
		stepErrs = multierr.Append(stepErrs, errors.Wrap(err, "proof of settlement"))
	}
	s.Proof = p

	log.Info("daily pipeline finished",
		zap.Bool("healthy", report.Healthy()),
		zap.Bool("locked", result.Locked),
		zap.String("divergence", result.Divergence.String()),
		zap.Bool("release_halted", s.ReleaseHalted != ""),
		zap.Error(stepErrs),
	)
	return stepErrs
}
