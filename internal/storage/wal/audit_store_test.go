package wal

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sheikh-saqib/gateway-ledger/internal/models"
)

func record(kind models.AuditKind, cashoutID, amount string) models.AuditRecord {
	return models.AuditRecord{
		Kind:       kind,
		SellerID:   "seller-1",
		DateKey:    "2026-03-01",
		CashoutID:  cashoutID,
		PostingKey: cashoutID,
		Amount:     decimal.RequireFromString(amount),
		RecordedAt: time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC),
	}
}

func TestAuditStoreAppendAndRead(t *testing.T) {
	s, err := NewAuditStore(t.TempDir())
	require.NoError(t, err)
	defer func() {
		assert.NoError(t, s.Close())
	}()

	require.NoError(t, s.Append(record(models.AuditCashoutReleased, "cashout:seller-1:2026-03-01", "97.00")))
	require.NoError(t, s.Append(record(models.AuditCashoutSettled, "cashout:seller-1:2026-03-01", "97.00")))
	assert.Equal(t, uint64(2), s.CurrentIndex())

	records, err := s.Records()
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, models.AuditCashoutReleased, records[0].Kind)
	assert.Equal(t, models.AuditCashoutSettled, records[1].Kind)
	assert.True(t, decimal.RequireFromString("97").Equal(records[0].Amount))
}

func TestAuditStoreRequiresCashoutID(t *testing.T) {
	s, err := NewAuditStore(t.TempDir())
	require.NoError(t, err)
	defer s.Close()

	assert.Error(t, s.Append(models.AuditRecord{Kind: models.AuditCashoutReleased}))
	assert.Equal(t, uint64(0), s.CurrentIndex())
}

func TestAuditStoreSurvivesReopen(t *testing.T) {
	dir := t.TempDir()
	s, err := NewAuditStore(dir)
	require.NoError(t, err)
	require.NoError(t, s.Append(record(models.AuditCashoutReleased, "cashout:seller-1:2026-03-01", "10.00")))
	require.NoError(t, s.Close())

	s, err = NewAuditStore(dir)
	require.NoError(t, err)
	defer s.Close()
	require.NoError(t, s.Append(record(models.AuditCashoutReleased, "cashout:seller-2:2026-03-01", "20.00")))

	records, err := s.Records()
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "cashout:seller-2:2026-03-01", records[1].CashoutID)
}

func TestNilAuditStore(t *testing.T) {
	var s *AuditStore
	assert.Error(t, s.Append(record(models.AuditCashoutReleased, "x", "1")))
	assert.Equal(t, uint64(0), s.CurrentIndex())
}
