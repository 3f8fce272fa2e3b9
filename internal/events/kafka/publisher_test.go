package kafka

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sheikh-saqib/gateway-ledger/internal/models/events"
)

func TestMessageCarriesTopicKeyAndJSON(t *testing.T) {
	event := events.CashoutReleased{
		CashoutID:  "cashout:seller-1:2026-03-01",
		SellerID:   "seller-1",
		DateKey:    "2026-03-01",
		Amount:     decimal.RequireFromString("97.00"),
		OccurredAt: time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC),
	}

	msg, err := Message(events.TopicCashoutReleased, "seller-1", event)
	require.NoError(t, err)
	assert.Equal(t, events.TopicCashoutReleased, msg.Topic)
	assert.Equal(t, []byte("seller-1"), msg.Key)

	var decoded events.CashoutReleased
	require.NoError(t, json.Unmarshal(msg.Value, &decoded))
	assert.Equal(t, event.CashoutID, decoded.CashoutID)
	assert.True(t, event.Amount.Equal(decoded.Amount))
}

func TestMessageRejectsUnencodableEvent(t *testing.T) {
	_, err := Message("t", "k", make(chan int))
	assert.Error(t, err)
}
