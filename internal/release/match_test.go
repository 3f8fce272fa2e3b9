package release

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"github.com/sheikh-saqib/gateway-ledger/internal/models"
)

func TestMatchUsesDestinationWhenBothSidesHaveOne(t *testing.T) {
	amount := decimal.RequireFromString("10.00")
	confirmations := []models.TransferConfirmation{
		{Reference: "a", Amount: amount, DestinationAccount: "acc-2"},
		{Reference: "b", Amount: amount, DestinationAccount: "acc-1"},
		{Reference: "c", Amount: amount},
	}

	used := make([]bool, len(confirmations))
	assert.Equal(t, 1, match(models.Cashout{Amount: amount, DestinationAccount: "acc-1"}, confirmations, used))
	assert.Equal(t, 0, match(models.Cashout{Amount: amount}, confirmations, used))

	used[0], used[1] = true, true
	assert.Equal(t, 2, match(models.Cashout{Amount: amount, DestinationAccount: "acc-9"}, confirmations, used))
	assert.Equal(t, -1, match(models.Cashout{Amount: decimal.RequireFromString("10.01")}, confirmations, used))
}
