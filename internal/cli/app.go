package cli

import (
	"context"
	"io"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/sheikh-saqib/gateway-ledger/internal/accounts"
	"github.com/sheikh-saqib/gateway-ledger/internal/audit"
	"github.com/sheikh-saqib/gateway-ledger/internal/closing"
	"github.com/sheikh-saqib/gateway-ledger/internal/config"
	"github.com/sheikh-saqib/gateway-ledger/internal/events/kafka"
	interfaces "github.com/sheikh-saqib/gateway-ledger/internal/interfaces"
	"github.com/sheikh-saqib/gateway-ledger/internal/ledger"
	"github.com/sheikh-saqib/gateway-ledger/internal/lock/local"
	"github.com/sheikh-saqib/gateway-ledger/internal/lock/redislock"
	"github.com/sheikh-saqib/gateway-ledger/internal/pipeline"
	"github.com/sheikh-saqib/gateway-ledger/internal/proof"
	"github.com/sheikh-saqib/gateway-ledger/internal/reconciliation"
	"github.com/sheikh-saqib/gateway-ledger/internal/release"
	"github.com/sheikh-saqib/gateway-ledger/internal/storage/memory"
	"github.com/sheikh-saqib/gateway-ledger/internal/storage/mongo"
	"github.com/sheikh-saqib/gateway-ledger/internal/storage/postgres"
	"github.com/sheikh-saqib/gateway-ledger/internal/storage/wal"
)

// app holds the components one command invocation works with.
type app struct {
	cfg       config.Config
	l         *zap.Logger
	loc       *time.Location
	chart     *accounts.Chart
	store     interfaces.Store
	locker    interfaces.Locker
	publisher interfaces.EventPublisher
	auditLog  *wal.AuditStore
	closers   []io.Closer
}

func newLogger(cfg config.LogConfig, verbose bool) (*zap.Logger, error) {
	zc := zap.NewProductionConfig()
	if cfg.Development {
		zc = zap.NewDevelopmentConfig()
	}
	level := zapcore.InfoLevel
	if cfg.Level != "" {
		parsed, err := zapcore.ParseLevel(cfg.Level)
		if err != nil {
			return nil, errors.Wrapf(err, "log.level %q", cfg.Level)
		}
		level = parsed
	}
	if verbose {
		level = zapcore.DebugLevel
	}
	zc.Level = zap.NewAtomicLevelAt(level)
	return zc.Build()
}

// newApp connects every collaborator named by cfg. The caller must call close.
func newApp(ctx context.Context, cfg config.Config, logger *zap.Logger) (*app, error) {
	a := &app{cfg: cfg, l: logger}

	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}
	a.loc = loc

	a.chart = accounts.Default()
	if cfg.Ledger.ChartPath != "" {
		if a.chart, err = accounts.Load(cfg.Ledger.ChartPath); err != nil {
			return nil, err
		}
	}

	if err := a.openStore(ctx); err != nil {
		return nil, err
	}

	if cfg.Redis.Enabled {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		a.closers = append(a.closers, client)
		if err := client.Ping(ctx).Err(); err != nil {
			return nil, multierr.Append(errors.Wrap(err, "ping redis"), a.close())
		}
		if a.locker, err = redislock.New(client, redislock.DefaultOptions(), logger); err != nil {
			return nil, multierr.Append(err, a.close())
		}
	} else {
		a.locker = local.New()
	}

	if cfg.Kafka.Enabled {
		pub := kafka.NewPublisher(cfg.Kafka.Brokers)
		a.publisher = pub
		a.closers = append(a.closers, pub)
	}

	if cfg.Audit.WALDir != "" {
		if a.auditLog, err = wal.NewAuditStore(cfg.Audit.WALDir); err != nil {
			return nil, multierr.Append(err, a.close())
		}
		a.closers = append(a.closers, a.auditLog)
	}

	logger.Debug("ledger app ready",
		zap.String("store", cfg.Store.Driver),
		zap.Bool("kafka", cfg.Kafka.Enabled),
		zap.Bool("redis", cfg.Redis.Enabled),
		zap.String("timezone", loc.String()),
	)
	return a, nil
}

func (a *app) openStore(ctx context.Context) error {
	switch a.cfg.Store.Driver {
	case config.DriverPostgres:
		pg, err := postgres.Open(ctx, a.cfg.Store.PostgresDSN)
		if err != nil {
			return err
		}
		if err := pg.Migrate(); err != nil {
			return multierr.Append(err, pg.Close())
		}
		a.store = pg
	case config.DriverMongo:
		mg, err := mongo.Connect(ctx, a.cfg.Store.MongoURI, a.cfg.Store.MongoDatabase)
		if err != nil {
			return err
		}
		if err := mg.Migrate(ctx); err != nil {
			return multierr.Append(err, mg.Close())
		}
		a.store = mg
	default:
		a.store = memory.NewMemoryLedgerStore()
	}
	a.closers = append(a.closers, a.store)
	return nil
}

func (a *app) close() error {
	var err error
	for i := len(a.closers) - 1; i >= 0; i-- {
		err = multierr.Append(err, a.closers[i].Close())
	}
	a.closers = nil
	return err
}

// auditTrail keeps a nil *wal.AuditStore from becoming a non-nil interface.
func (a *app) auditTrail() interfaces.AuditLog {
	if a.auditLog == nil {
		return nil
	}
	return a.auditLog
}

func (a *app) ledger() *ledger.Ledger {
	return ledger.NewLedger(a.store, a.chart,
		ledger.WithPublisher(a.publisher),
		ledger.WithLogger(a.l),
		ledger.WithCurrency(a.cfg.Ledger.Currency),
	)
}

func (a *app) consolidator() *closing.Consolidator {
	return closing.NewConsolidator(a.store, a.chart, a.loc, a.l)
}

func (a *app) closer() *closing.BatchCloser {
	return closing.NewBatchCloser(a.store, a.consolidator(), a.locker, a.publisher, a.loc, a.l)
}

func (a *app) auditor() *audit.Auditor {
	return audit.NewAuditor(a.store, a.loc, a.l)
}

func (a *app) reconciler() (*reconciliation.Engine, error) {
	tolerance, err := a.cfg.Tolerance()
	if err != nil {
		return nil, err
	}
	threshold, err := a.cfg.LockThreshold()
	if err != nil {
		return nil, err
	}
	return reconciliation.NewEngine(a.store, a.chart,
		reconciliation.WithTolerance(tolerance),
		reconciliation.WithLockThreshold(threshold),
		reconciliation.WithPublisher(a.publisher),
		reconciliation.WithLogger(a.l),
	), nil
}

func (a *app) releaseDeps() (release.Deps, release.Config) {
	deps := release.Deps{
		Store:     a.store,
		Poster:    a.ledger(),
		Chart:     a.chart,
		Audit:     a.auditTrail(),
		Publisher: a.publisher,
		Logger:    a.l,
	}
	cfg := release.Config{
		PayableAccount:    a.cfg.Release.PayableAccount,
		ClearingAccount:   a.cfg.Release.ClearingAccount,
		CashAccount:       a.cfg.Release.CashAccount,
		SettlementLagDays: a.cfg.Release.SettlementLagDays,
		Workers:           a.cfg.Release.Workers,
		Location:          a.loc,
	}
	return deps, cfg
}

func (a *app) releaser() *release.Releaser {
	return release.NewReleaser(a.releaseDeps())
}

func (a *app) settler() *release.Settler {
	return release.NewSettler(a.releaseDeps())
}

func (a *app) proofs() *proof.Generator {
	return proof.NewGenerator(a.store, a.cfg.Proof.OutputDir, []byte(a.cfg.Proof.SigningKey), a.l)
}

func (a *app) daily() (*pipeline.Daily, error) {
	rec, err := a.reconciler()
	if err != nil {
		return nil, err
	}
	steps := pipeline.Steps{
		Closer:     a.closer(),
		Auditor:    a.auditor(),
		Reconciler: rec,
		Releaser:   a.releaser(),
		Settler:    a.settler(),
		Proofs:     a.proofs(),
	}
	return pipeline.NewDaily(steps, a.locker, a.cfg.Pipeline.HaltOnIntegrityViolation, a.l), nil
}
