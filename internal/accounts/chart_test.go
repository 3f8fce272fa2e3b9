package accounts

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultChart(t *testing.T) {
	c := Default()

	n, ok := c.Nature(PayableSeller)
	require.True(t, ok)
	assert.Equal(t, Liability, n)
	assert.True(t, c.Has(Receivable))
	assert.False(t, c.Has("unknown"))
	assert.Len(t, c.Accounts(), 10)
}

func TestNaturalBalance(t *testing.T) {
	c := Default()

	// payable_seller credited 97: debit-credit is -97, natural is +97
	assert.True(t, decimal.RequireFromString("97").Equal(c.Natural(PayableSeller, decimal.RequireFromString("-97"))))
	assert.True(t, decimal.RequireFromString("100").Equal(c.Natural(Receivable, decimal.RequireFromString("100"))))
	assert.True(t, decimal.RequireFromString("-5").Equal(c.Natural("unknown", decimal.RequireFromString("-5"))))
}

func TestNewRejectsInvalidCharts(t *testing.T) {
	_, err := New(nil)
	require.Error(t, err)

	_, err = New([]Account{{Key: "a", Nature: "bogus"}})
	require.Error(t, err)

	_, err = New([]Account{{Key: "a", Nature: Asset}, {Key: "a", Nature: Liability}})
	require.Error(t, err)

	_, err = New([]Account{{Key: " ", Nature: Asset}})
	require.Error(t, err)
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "chart.yaml")
	content := `accounts:
  - key: cash
    description: Bank
    nature: asset
  - key: payable_seller
    description: Sellers
    nature: liability
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	c, err := Load(path)
	require.NoError(t, err)

	a, ok := c.Lookup("payable_seller")
	require.True(t, ok)
	assert.Equal(t, "Sellers", a.Description)
	assert.Len(t, c.Accounts(), 2)
}
