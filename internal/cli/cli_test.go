package cli

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sheikh-saqib/gateway-ledger/internal/models"
	"github.com/sheikh-saqib/gateway-ledger/internal/pipeline"
	"github.com/sheikh-saqib/gateway-ledger/internal/proof"
	"github.com/sheikh-saqib/gateway-ledger/internal/release"
)

const salePostings = `[
  {
    "entries": [
      {"account": "receivable", "side": "debit", "amount": "100.00"},
      {"account": "payable_seller", "side": "credit", "amount": "95.00"},
      {"account": "fee_revenue", "side": "credit", "amount": "5.00"}
    ],
    "context": {
      "idempotency_key": "sale-1",
      "transaction_id": "tx-1",
      "seller_id": "seller-1",
      "source": {"system": "checkout", "acquirer": "acme"}
    }
  }
]`

type env struct {
	dir     string
	walDir  string
	proofs  string
	envFile string
}

func setup(t *testing.T) env {
	dir := t.TempDir()
	e := env{
		dir:     dir,
		walDir:  filepath.Join(dir, "audit"),
		proofs:  filepath.Join(dir, "proofs"),
		envFile: filepath.Join(dir, "missing.env"),
	}
	t.Setenv("LEDGER_STORE_DRIVER", "memory")
	t.Setenv("LEDGER_AUDIT_WAL_DIR", e.walDir)
	t.Setenv("LEDGER_PROOF_OUTPUT_DIR", e.proofs)
	t.Setenv("LEDGER_PROOF_SIGNING_KEY", "secret")
	t.Setenv("LEDGER_LOG_LEVEL", "error")
	return e
}

func (e env) file(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(e.dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func (e env) run(args ...string) (string, error) {
	cmd := NewRootCmd("test")
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(append([]string{"--env-file", e.envFile}, args...))
	err := cmd.Execute()
	return out.String(), err
}

func TestVersion(t *testing.T) {
	e := setup(t)
	out, err := e.run("version")
	require.NoError(t, err)
	assert.Equal(t, "ledger test\n", out)
}

func TestRunDailyInMemory(t *testing.T) {
	e := setup(t)
	today := models.DateKey(time.Now(), time.UTC)

	postings := e.file(t, "postings.json", salePostings)
	wallets := e.file(t, "wallets.yaml", "- seller_id: seller-1\n  pending: 95.00\n")
	statement := e.file(t, "statement.csv", "account,balance,source\nreceivable,100.00,acquirer\n")

	out, err := e.run("run-daily",
		"--date", today,
		"--postings", postings,
		"--wallets", wallets,
		"--feed", statement,
	)
	require.NoError(t, err, out)

	var summary pipeline.Summary
	require.NoError(t, json.Unmarshal([]byte(out), &summary))

	require.NotNil(t, summary.Batch)
	assert.Equal(t, 3, summary.Batch.TotalEntries)
	require.NotNil(t, summary.Integrity)
	assert.True(t, summary.Integrity.Healthy())
	require.NotNil(t, summary.Reconciliation)
	assert.False(t, summary.Reconciliation.Locked)
	assert.True(t, summary.Reconciliation.Divergence.IsZero())

	require.NotNil(t, summary.Release)
	require.Len(t, summary.Release.Sellers, 1)
	assert.Equal(t, release.Released, summary.Release.Sellers[0].Outcome)
	assert.True(t, decimal.RequireFromString("95").Equal(summary.Release.Total))

	require.NotNil(t, summary.Proof)
	assert.Equal(t, proof.AlgorithmHMAC, summary.Proof.Algorithm)
	docPath := filepath.Join(e.proofs, "proof-"+today+".yaml")
	assert.FileExists(t, docPath)
	assert.FileExists(t, filepath.Join(e.proofs, "proof-"+today+".sha256"))

	out, err = e.run("proof", "verify", "--file", docPath)
	require.NoError(t, err, out)
	assert.Contains(t, out, `"valid": true`)

	t.Setenv("LEDGER_PROOF_SIGNING_KEY", "other")
	_, err = e.run("proof", "verify", "--file", docPath)
	require.ErrorIs(t, err, models.ErrIntegrityViolation)
}

func TestRunDailyLocksOnDivergentFeed(t *testing.T) {
	e := setup(t)
	today := models.DateKey(time.Now(), time.UTC)

	postings := e.file(t, "postings.json", salePostings)
	wallets := e.file(t, "wallets.json", `[{"seller_id": "seller-1", "pending": "95.00"}]`)
	statement := e.file(t, "statement.json", `[{"account": "receivable", "balance": "90.00", "source": "acquirer"}]`)

	out, err := e.run("run-daily", "--date", today, "--postings", postings, "--wallets", wallets, "--feed", statement)
	require.NoError(t, err, out)

	var summary pipeline.Summary
	require.NoError(t, json.Unmarshal([]byte(out), &summary))
	assert.True(t, summary.Reconciliation.Locked)
	require.Len(t, summary.Release.Sellers, 1)
	assert.Equal(t, release.SkippedLocked, summary.Release.Sellers[0].Outcome)
	assert.True(t, summary.Release.Total.IsZero())
}

func TestPostRejectsUnbalanced(t *testing.T) {
	e := setup(t)
	bad := e.file(t, "bad.json", `{
  "entries": [
    {"account": "receivable", "side": "debit", "amount": "100.00"},
    {"account": "payable_seller", "side": "credit", "amount": "99.99"}
  ],
  "context": {"idempotency_key": "sale-2", "transaction_id": "tx-2", "seller_id": "seller-1"}
}`)

	out, err := e.run("post", "--file", bad)
	require.ErrorIs(t, err, models.ErrUnbalancedBatch)
	assert.Contains(t, out, "[]")
}

func TestPostRecordsAndReplays(t *testing.T) {
	e := setup(t)
	twice := e.file(t, "twice.yaml", `
- entries:
    - {account: receivable, side: debit, amount: 10}
    - {account: payable_seller, side: credit, amount: 10}
  context: {idempotency_key: k-1, transaction_id: tx-1, seller_id: seller-1}
- entries:
    - {account: receivable, side: debit, amount: 10}
    - {account: payable_seller, side: credit, amount: 10}
  context: {idempotency_key: k-1, transaction_id: tx-1, seller_id: seller-1}
`)
	out, err := e.run("post", "--file", twice)
	require.NoError(t, err, out)

	var receipts []models.PostingReceipt
	require.NoError(t, json.Unmarshal([]byte(out), &receipts))
	require.Len(t, receipts, 2)
	assert.False(t, receipts[0].Replayed)
	assert.True(t, receipts[1].Replayed)
}

func TestInvalidConfig(t *testing.T) {
	e := setup(t)
	t.Setenv("LEDGER_STORE_DRIVER", "sqlite")
	_, err := e.run("close-day", "--date", "2024-03-01")
	require.ErrorContains(t, err, "unknown store.driver")
}

func TestRequiredFlags(t *testing.T) {
	e := setup(t)
	_, err := e.run("reconcile", "--date", "2024-03-01")
	require.ErrorContains(t, err, "feed")
}
