package config

import (
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

// Config is the full ledger configuration.
type Config struct {
	Store          StoreConfig          `yaml:"store" mapstructure:"store"`
	Kafka          KafkaConfig          `yaml:"kafka" mapstructure:"kafka"`
	Redis          RedisConfig          `yaml:"redis" mapstructure:"redis"`
	Ledger         LedgerConfig         `yaml:"ledger" mapstructure:"ledger"`
	Reconciliation ReconciliationConfig `yaml:"reconciliation" mapstructure:"reconciliation"`
	Release        ReleaseConfig        `yaml:"release" mapstructure:"release"`
	Pipeline       PipelineConfig       `yaml:"pipeline" mapstructure:"pipeline"`
	Audit          AuditConfig          `yaml:"audit" mapstructure:"audit"`
	Proof          ProofConfig          `yaml:"proof" mapstructure:"proof"`
	Log            LogConfig            `yaml:"log" mapstructure:"log"`
}

// Store drivers.
const (
	DriverMemory   = "memory"
	DriverPostgres = "postgres"
	DriverMongo    = "mongo"
)

// StoreConfig selects and addresses the ledger store.
type StoreConfig struct {
	Driver        string `yaml:"driver" mapstructure:"driver"`
	PostgresDSN   string `yaml:"postgres_dsn" mapstructure:"postgres_dsn"`
	MongoURI      string `yaml:"mongo_uri" mapstructure:"mongo_uri"`
	MongoDatabase string `yaml:"mongo_database" mapstructure:"mongo_database"`
}

// KafkaConfig enables event publishing.
type KafkaConfig struct {
	Enabled bool     `yaml:"enabled" mapstructure:"enabled"`
	Brokers []string `yaml:"brokers" mapstructure:"brokers"`
}

// RedisConfig enables the distributed day lock.
type RedisConfig struct {
	Enabled  bool   `yaml:"enabled" mapstructure:"enabled"`
	Addr     string `yaml:"addr" mapstructure:"addr"`
	Password string `yaml:"password" mapstructure:"password"`
	DB       int    `yaml:"db" mapstructure:"db"`
}

type LedgerConfig struct {
	Timezone  string `yaml:"timezone" mapstructure:"timezone"`
	Currency  string `yaml:"currency" mapstructure:"currency"`
	ChartPath string `yaml:"chart_path" mapstructure:"chart_path"` // empty uses the built-in chart
}

// ReconciliationConfig carries ratios as strings so they parse exactly.
type ReconciliationConfig struct {
	Tolerance     string `yaml:"tolerance" mapstructure:"tolerance"`
	LockThreshold string `yaml:"lock_threshold" mapstructure:"lock_threshold"`
}

type ReleaseConfig struct {
	PayableAccount    string `yaml:"payable_account" mapstructure:"payable_account"`
	ClearingAccount   string `yaml:"clearing_account" mapstructure:"clearing_account"`
	CashAccount       string `yaml:"cash_account" mapstructure:"cash_account"`
	SettlementLagDays int    `yaml:"settlement_lag_days" mapstructure:"settlement_lag_days"`
	Workers           int    `yaml:"workers" mapstructure:"workers"`
}

type PipelineConfig struct {
	HaltOnIntegrityViolation bool `yaml:"halt_on_integrity_violation" mapstructure:"halt_on_integrity_violation"`
}

type AuditConfig struct {
	WALDir string `yaml:"wal_dir" mapstructure:"wal_dir"`
}

type ProofConfig struct {
	OutputDir  string `yaml:"output_dir" mapstructure:"output_dir"`
	SigningKey string `yaml:"signing_key" mapstructure:"signing_key"`
}

type LogConfig struct {
	Level       string `yaml:"level" mapstructure:"level"`
	Development bool   `yaml:"development" mapstructure:"development"`
}

// Location resolves the ledger timezone.
func (c Config) Location() (*time.Location, error) {
	if c.Ledger.Timezone == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(c.Ledger.Timezone)
	if err != nil {
		return nil, errors.Wrapf(err, "ledger.timezone %q", c.Ledger.Timezone)
	}
	return loc, nil
}

// Tolerance is the per-account reconciliation tolerance.
func (c Config) Tolerance() (decimal.Decimal, error) {
	return parseRatio("reconciliation.tolerance", c.Reconciliation.Tolerance)
}

// LockThreshold is the divergence at which a day is locked.
func (c Config) LockThreshold() (decimal.Decimal, error) {
	return parseRatio("reconciliation.lock_threshold", c.Reconciliation.LockThreshold)
}

func parseRatio(key, value string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(value)
	if err != nil {
		return decimal.Zero, errors.Wrapf(err, "%s %q", key, value)
	}
	if d.IsNegative() {
		return decimal.Zero, errors.Errorf("%s must not be negative, got %s", key, value)
	}
	return d, nil
}

// Validate checks the values a run cannot start without.
func (c Config) Validate() error {
	switch c.Store.Driver {
	case DriverMemory:
	case DriverPostgres:
		if c.Store.PostgresDSN == "" {
			return errors.New("store.postgres_dsn is required for the postgres driver")
		}
	case DriverMongo:
		if c.Store.MongoURI == "" || c.Store.MongoDatabase == "" {
			return errors.New("store.mongo_uri and store.mongo_database are required for the mongo driver")
		}
	default:
		return errors.Errorf("unknown store.driver %q", c.Store.Driver)
	}
	if c.Kafka.Enabled && len(c.Kafka.Brokers) == 0 {
		return errors.New("kafka.brokers is required when kafka is enabled")
	}
	if c.Redis.Enabled && c.Redis.Addr == "" {
		return errors.New("redis.addr is required when redis is enabled")
	}
	if c.Release.SettlementLagDays < 0 {
		return errors.Errorf("release.settlement_lag_days must not be negative, got %d", c.Release.SettlementLagDays)
	}
	if c.Release.Workers < 1 {
		return errors.Errorf("release.workers must be at least 1, got %d", c.Release.Workers)
	}
	if _, err := c.Location(); err != nil {
		return err
	}
	if _, err := c.Tolerance(); err != nil {
		return err
	}
	_, err := c.LockThreshold()
	return err
}
