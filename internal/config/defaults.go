package config

import (
	"github.com/sheikh-saqib/gateway-ledger/internal/accounts"
	"github.com/sheikh-saqib/gateway-ledger/internal/ledger"
)

// Default returns a configuration that runs entirely in memory.
func Default() Config {
	return Config{
		Store: StoreConfig{
			Driver:        DriverMemory,
			MongoDatabase: "ledger",
		},
		Kafka: KafkaConfig{Brokers: []string{"localhost:9092"}},
		Redis: RedisConfig{Addr: "localhost:6379"},
		Ledger: LedgerConfig{
			Timezone: "UTC",
			Currency: ledger.DefaultCurrency,
		},
		Reconciliation: ReconciliationConfig{
			Tolerance:     "0.01",
			LockThreshold: "0.0005",
		},
		Release: ReleaseConfig{
			PayableAccount:    accounts.PayableSeller,
			ClearingAccount:   accounts.CashoutClearing,
			CashAccount:       accounts.Cash,
			SettlementLagDays: 2,
			Workers:           4,
		},
		Pipeline: PipelineConfig{HaltOnIntegrityViolation: true},
		Audit:    AuditConfig{WALDir: "data/audit"},
		Proof:    ProofConfig{OutputDir: "data/proofs"},
		Log:      LogConfig{Level: "info"},
	}
}

// defaults flattens Default into viper keys. Every key must be listed so
// that LEDGER_* environment overrides reach Unmarshal.
func defaults() map[string]any {
	d := Default()
	return map[string]any{
		"store.driver":                         d.Store.Driver,
		"store.postgres_dsn":                   d.Store.PostgresDSN,
		"store.mongo_uri":                      d.Store.MongoURI,
		"store.mongo_database":                 d.Store.MongoDatabase,
		"kafka.enabled":                        d.Kafka.Enabled,
		"kafka.brokers":                        d.Kafka.Brokers,
		"redis.enabled":                        d.Redis.Enabled,
		"redis.addr":                           d.Redis.Addr,
		"redis.password":                       d.Redis.Password,
		"redis.db":                             d.Redis.DB,
		"ledger.timezone":                      d.Ledger.Timezone,
		"ledger.currency":                      d.Ledger.Currency,
		"ledger.chart_path":                    d.Ledger.ChartPath,
		"reconciliation.tolerance":             d.Reconciliation.Tolerance,
		"reconciliation.lock_threshold":        d.Reconciliation.LockThreshold,
		"release.payable_account":              d.Release.PayableAccount,
		"release.clearing_account":             d.Release.ClearingAccount,
		"release.cash_account":                 d.Release.CashAccount,
		"release.settlement_lag_days":          d.Release.SettlementLagDays,
		"release.workers":                      d.Release.Workers,
		"pipeline.halt_on_integrity_violation": d.Pipeline.HaltOnIntegrityViolation,
		"audit.wal_dir":                        d.Audit.WALDir,
		"proof.output_dir":                     d.Proof.OutputDir,
		"proof.signing_key":                    d.Proof.SigningKey,
		"log.level":                            d.Log.Level,
		"log.development":                      d.Log.Development,
	}
}
