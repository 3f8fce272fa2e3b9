package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func noEnvFile(t *testing.T) string {
	return filepath.Join(t.TempDir(), "missing.env")
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("", noEnvFile(t))
	require.NoError(t, err)

	assert.Equal(t, Default(), cfg)
	assert.Equal(t, DriverMemory, cfg.Store.Driver)
	assert.Equal(t, "BRL", cfg.Ledger.Currency)
	assert.Equal(t, 2, cfg.Release.SettlementLagDays)

	tol, err := cfg.Tolerance()
	require.NoError(t, err)
	assert.True(t, tol.Equal(decimal.RequireFromString("0.01")))

	threshold, err := cfg.LockThreshold()
	require.NoError(t, err)
	assert.True(t, threshold.Equal(decimal.RequireFromString("0.0005")))
}

func TestLoadYAMLAndEnvOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "ledger.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
store:
  driver: postgres
  postgres_dsn: postgres://ledger@localhost/ledger?sslmode=disable
ledger:
  timezone: America/Sao_Paulo
reconciliation:
  tolerance: "0.05"
release:
  workers: 8
`), 0o600))

	t.Setenv("LEDGER_RELEASE_WORKERS", "2")
	t.Setenv("LEDGER_KAFKA_ENABLED", "true")
	t.Setenv("LEDGER_KAFKA_BROKERS", "k1:9092,k2:9092")

	cfg, err := Load(path, noEnvFile(t))
	require.NoError(t, err)

	assert.Equal(t, DriverPostgres, cfg.Store.Driver)
	assert.Equal(t, 2, cfg.Release.Workers)
	assert.True(t, cfg.Kafka.Enabled)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, "0.05", cfg.Reconciliation.Tolerance)
	assert.Equal(t, "0.0005", cfg.Reconciliation.LockThreshold)

	loc, err := cfg.Location()
	require.NoError(t, err)
	assert.Equal(t, "America/Sao_Paulo", loc.String())
}

func TestLoadEnvFile(t *testing.T) {
	envFile := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(envFile, []byte("LEDGER_PROOF_SIGNING_KEY=from-dotenv\n"), 0o600))
	t.Cleanup(func() { os.Unsetenv("LEDGER_PROOF_SIGNING_KEY") })

	cfg, err := Load("", envFile)
	require.NoError(t, err)
	assert.Equal(t, "from-dotenv", cfg.Proof.SigningKey)
}

func TestLoadMissingConfigFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"), noEnvFile(t))
	require.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		errMsg string
	}{
		{"unknown driver", func(c *Config) { c.Store.Driver = "sqlite" }, "unknown store.driver"},
		{"postgres without dsn", func(c *Config) { c.Store.Driver = DriverPostgres }, "postgres_dsn"},
		{"mongo without uri", func(c *Config) { c.Store.Driver = DriverMongo }, "mongo_uri"},
		{"kafka without brokers", func(c *Config) { c.Kafka.Enabled = true; c.Kafka.Brokers = nil }, "kafka.brokers"},
		{"redis without addr", func(c *Config) { c.Redis.Enabled = true; c.Redis.Addr = "" }, "redis.addr"},
		{"no workers", func(c *Config) { c.Release.Workers = 0 }, "release.workers"},
		{"negative lag", func(c *Config) { c.Release.SettlementLagDays = -1 }, "settlement_lag_days"},
		{"bad timezone", func(c *Config) { c.Ledger.Timezone = "Mars/Olympus" }, "ledger.timezone"},
		{"bad tolerance", func(c *Config) { c.Reconciliation.Tolerance = "abc" }, "reconciliation.tolerance"},
		{"negative threshold", func(c *Config) { c.Reconciliation.LockThreshold = "-0.1" }, "must not be negative"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}

	require.NoError(t, Default().Validate())
}
