// Package proof produces the signed daily close statement.
package proof

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/sheikh-saqib/gateway-ledger/internal/models"
)

const (
	AlgorithmDigest = "SHA-256"
	AlgorithmHMAC   = "HMAC-SHA256"
)

// Store is what the generator reads.
type Store interface {
	GetDailyBatch(ctx context.Context, dateKey string) (*models.LedgerBatch, error)
	ListSnapshots(ctx context.Context, filter models.SnapshotFilter) ([]models.LedgerSnapshot, error)
}

// AccountTotal is one account line of the document.
type AccountTotal struct {
	Account string `yaml:"account" json:"account"`
	Debit   string `yaml:"debit" json:"debit"`
	Credit  string `yaml:"credit" json:"credit"`
	Balance string `yaml:"balance" json:"balance"`
}

// Proof is the Proof of Settlement of one day. Amounts are fixed at 2 dp.
type Proof struct {
	DateKey     string         `yaml:"date_key" json:"date_key"`
	BatchID     string         `yaml:"batch_id" json:"batch_id"`
	TotalDebit  string         `yaml:"total_debit" json:"total_debit"`
	TotalCredit string         `yaml:"total_credit" json:"total_credit"`
	Balance     string         `yaml:"balance" json:"balance"`
	RecordCount int            `yaml:"record_count" json:"record_count"`
	GeneratedAt time.Time      `yaml:"generated_at" json:"generated_at"`
	Accounts    []AccountTotal `yaml:"accounts" json:"accounts"`
	Algorithm   string         `yaml:"algorithm" json:"algorithm"`
	Digest      string         `yaml:"digest" json:"digest"`
	Signature   string         `yaml:"signature" json:"signature"`

	DocumentPath string `yaml:"-" json:"document_path,omitempty"`
	DigestPath   string `yaml:"-" json:"digest_path,omitempty"`
}

// Digest is hex SHA-256 over dateKey|totalDebit|totalCredit|balance|recordCount.
func Digest(dateKey, totalDebit, totalCredit, balance string, recordCount int) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s|%s|%s|%s|%d", dateKey, totalDebit, totalCredit, balance, recordCount)))
	return hex.EncodeToString(sum[:])
}

// Sign returns hex HMAC-SHA256(key, digest), or the digest itself without a key.
func Sign(digest string, key []byte) string {
	if len(key) == 0 {
		return digest
	}
	mac := hmac.New(sha256.New, key)
	mac.Write([]byte(digest))
	return hex.EncodeToString(mac.Sum(nil))
}

// Verify recomputes the digest and signature of p.
func Verify(p *Proof, key []byte) error {
	digest := Digest(p.DateKey, p.TotalDebit, p.TotalCredit, p.Balance, p.RecordCount)
	if digest != p.Digest {
		return errors.Wrapf(models.ErrIntegrityViolation, "proof %s: digest mismatch", p.DateKey)
	}
	if !hmac.Equal([]byte(Sign(digest, key)), []byte(p.Signature)) {
		return errors.Wrapf(models.ErrIntegrityViolation, "proof %s: signature mismatch", p.DateKey)
	}
	return nil
}

// Load reads a proof document written by Generate.
func Load(path string) (*Proof, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "read proof")
	}
	var p Proof
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, errors.Wrap(err, "decode proof")
	}
	p.DocumentPath = path
	return &p, nil
}

// Generator builds proofs from closed days.
type Generator struct {
	store     Store
	outputDir string
	key       []byte
	now       func() time.Time
	l         *zap.Logger
}

// NewGenerator creates a generator. With an empty outputDir proofs are
// returned but not written.
func NewGenerator(store Store, outputDir string, signingKey []byte, logger *zap.Logger) *Generator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Generator{store: store, outputDir: outputDir, key: signingKey, now: time.Now, l: logger}
}

// Generate builds the proof of dateKey and writes proof-<dateKey>.yaml and
// proof-<dateKey>.sha256. The day must be closed and consolidated.
func (g *Generator) Generate(ctx context.Context, dateKey string) (*Proof, error) {
	batch, err := g.store.GetDailyBatch(ctx, dateKey)
	if err != nil {
		if models.IsNotFound(err) {
			return nil, errors.Wrapf(models.ErrBatchNotClosed, "proof %s", dateKey)
		}
		return nil, errors.Wrapf(err, "get daily batch %s", dateKey)
	}
	if !batch.Closed {
		return nil, errors.Wrapf(models.ErrBatchNotClosed, "proof %s", dateKey)
	}

	snaps, err := g.store.ListSnapshots(ctx, models.SnapshotFilter{DateKey: dateKey})
	if err != nil {
		return nil, errors.Wrapf(err, "list snapshots of %s", dateKey)
	}
	if len(snaps) == 0 {
		return nil, errors.Wrapf(models.ErrNoEntries, "proof %s", dateKey)
	}

	debit, credit := decimal.Zero, decimal.Zero
	perAccount := make(map[string][2]decimal.Decimal)
	for _, s := range snaps {
		debit = debit.Add(s.DebitTotal)
		credit = credit.Add(s.CreditTotal)
		t := perAccount[s.Account]
		perAccount[s.Account] = [2]decimal.Decimal{t[0].Add(s.DebitTotal), t[1].Add(s.CreditTotal)}
	}

	p := &Proof{
		DateKey:     dateKey,
		BatchID:     batch.BatchID,
		TotalDebit:  debit.StringFixed(2),
		TotalCredit: credit.StringFixed(2),
		Balance:     debit.Sub(credit).StringFixed(2),
		RecordCount: len(snaps),
		GeneratedAt: g.now().UTC(),
		Algorithm:   AlgorithmDigest,
	}
	for account, t := range perAccount {
		p.Accounts = append(p.Accounts, AccountTotal{
			Account: account,
			Debit:   t[0].StringFixed(2),
			Credit:  t[1].StringFixed(2),
			Balance: t[0].Sub(t[1]).StringFixed(2),
		})
	}
	sort.Slice(p.Accounts, func(i, j int) bool { return p.Accounts[i].Account < p.Accounts[j].Account })

	p.Digest = Digest(p.DateKey, p.TotalDebit, p.TotalCredit, p.Balance, p.RecordCount)
	p.Signature = Sign(p.Digest, g.key)
	if len(g.key) > 0 {
		p.Algorithm = AlgorithmHMAC
	}

	if g.outputDir != "" {
		if err := g.write(p); err != nil {
			return nil, err
		}
	}

	g.l.Info("proof of settlement generated",
		zap.String("date_key", dateKey),
		zap.String("digest", p.Digest),
		zap.Int("record_count", p.RecordCount),
		zap.String("document", p.DocumentPath),
	)
	return p, nil
}

func (g *Generator) write(p *Proof) error {
	if err := os.MkdirAll(g.outputDir, 0o755); err != nil {
		return errors.Wrap(err, "create proof directory")
	}

	doc, err := yaml.Marshal(p)
	if err != nil {
		return errors.Wrap(err, "encode proof")
	}
	p.DocumentPath = filepath.Join(g.outputDir, fmt.Sprintf("proof-%s.yaml", p.DateKey))
	if err := os.WriteFile(p.DocumentPath, doc, 0o644); err != nil {
		return errors.Wrap(err, "write proof document")
	}

	p.DigestPath = filepath.Join(g.outputDir, fmt.Sprintf("proof-%s.sha256", p.DateKey))
	if err := os.WriteFile(p.DigestPath, []byte(p.Digest+"\n"), 0o644); err != nil {
		return errors.Wrap(err, "write proof digest")
	}
	return nil
}
