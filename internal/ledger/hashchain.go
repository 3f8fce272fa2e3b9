package ledger

import (
	"crypto/sha256"
	"encoding/hex"

	"github.com/shopspring/decimal"

	"github.com/sheikh-saqib/gateway-ledger/internal/models"
)

// Chain folds ledger lines into a cumulative SHA-256 digest. The zero value
// starts an empty chain.
type Chain struct {
	last string
}

// Next hashes one line onto the chain and returns the new head.
func (c *Chain) Next(account string, side models.Side, amount decimal.Decimal, currency string) string {
	h := sha256.New()
	h.Write([]byte(c.last))
	h.Write([]byte(account))
	h.Write([]byte(side))
	h.Write([]byte(amount.StringFixed(2)))
	h.Write([]byte(currency))
	c.last = hex.EncodeToString(h.Sum(nil))
	return c.last
}

// Head returns the current chain head.
func (c *Chain) Head() string {
	return c.last
}

// ChainHashes recomputes the side hashes of entries in the order given.
func ChainHashes(entries []models.LedgerEntry) []string {
	var c Chain
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = c.Next(e.Account, e.Side, e.Amount, e.Currency)
	}
	return out
}

// VerifyChain compares stored hashes against a fresh recomputation. Entries
// must be ordered by sequence. It returns the index of the first divergent
// entry, or -1 when the chain is intact.
func VerifyChain(entries []models.LedgerEntry) int {
	for i, h := range ChainHashes(entries) {
		if entries[i].SideHash != h {
			return i
		}
	}
	return -1
}
