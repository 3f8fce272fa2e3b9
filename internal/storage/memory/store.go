package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	interfaces "github.com/sheikh-saqib/gateway-ledger/internal/interfaces"
	"github.com/sheikh-saqib/gateway-ledger/internal/models"
)

// MemoryLedgerStore is an in-memory implementation of interfaces.Store.
// A single mutex makes every multi-row write atomic.
type MemoryLedgerStore struct {
	mu sync.RWMutex

	entries    []models.LedgerEntry
	entryKeys  map[string]struct{} // entry idempotency keys
	batchIDs   map[string]struct{} // posting batch ids
	postings   map[string]models.Posting
	batches    map[string]models.LedgerBatch
	snapshots  map[models.SnapshotKey]models.LedgerSnapshot
	wallets    map[string]models.Wallet
	cashouts   map[string]models.Cashout
	cashoutIDs []string // insertion order
}

// NewMemoryLedgerStore creates an empty store.
func NewMemoryLedgerStore() *MemoryLedgerStore {
	return &MemoryLedgerStore{
		entries:   make([]models.LedgerEntry, 0),
		entryKeys: make(map[string]struct{}),
		batchIDs:  make(map[string]struct{}),
		postings:  make(map[string]models.Posting),
		batches:   make(map[string]models.LedgerBatch),
		snapshots: make(map[models.SnapshotKey]models.LedgerSnapshot),
		wallets:   make(map[string]models.Wallet),
		cashouts:  make(map[string]models.Cashout),
	}
}

func (m *MemoryLedgerStore) PostingExists(_ context.Context, idempotencyKey string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	_, exists := m.postings[idempotencyKey]
	return exists, nil
}

// SavePosting validates every uniqueness constraint before touching state, so
// a rejected posting leaves nothing behind.
func (m *MemoryLedgerStore) SavePosting(_ context.Context, posting models.Posting, entries []models.LedgerEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.postings[posting.IdempotencyKey]; exists {
		return models.ErrDuplicatePosting
	}

	seq := make(map[int]struct{}, len(entries))
	for _, e := range entries {
		if _, dup := m.entryKeys[e.IdempotencyKey]; dup {
			return models.ErrDuplicatePosting
		}
		if _, dup := seq[e.Sequence]; dup {
			return models.ErrAlreadyExists
		}
		seq[e.Sequence] = struct{}{}
	}
	if _, dup := m.batchIDs[posting.BatchID]; dup {
		return models.ErrAlreadyExists
	}

	m.postings[posting.IdempotencyKey] = posting
	m.batchIDs[posting.BatchID] = struct{}{}
	for _, e := range entries {
		m.entryKeys[e.IdempotencyKey] = struct{}{}
		m.entries = append(m.entries, e)
	}
	return nil
}

// GetLedgerEntries returns a copy of all ledger entries stored in memory.
func (m *MemoryLedgerStore) GetLedgerEntries(_ context.Context) ([]models.LedgerEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	copied := make([]models.LedgerEntry, len(m.entries))
	copy(copied, m.entries)
	return copied, nil
}

func (m *MemoryLedgerStore) GetEntriesByAccount(ctx context.Context, account string) ([]models.LedgerEntry, error) {
	return m.ListEntries(ctx, models.EntryFilter{Account: account})
}

func (m *MemoryLedgerStore) ListEntries(_ context.Context, filter models.EntryFilter) ([]models.LedgerEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []models.LedgerEntry
	for _, e := range m.entries {
		if filter.Match(e) {
			result = append(result, e)
		}
	}

	sort.SliceStable(result, func(i, j int) bool {
		a, b := result[i], result[j]
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		if a.BatchID != b.BatchID {
			return a.BatchID < b.BatchID
		}
		return a.Sequence < b.Sequence
	})
	return result, nil
}

func (m *MemoryLedgerStore) GetDailyBatch(_ context.Context, dateKey string) (*models.LedgerBatch, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	b, ok := m.batches[dateKey]
	if !ok {
		return nil, models.ErrNotFound
	}
	return &b, nil
}

func (m *MemoryLedgerStore) CreateDailyBatch(_ context.Context, batch models.LedgerBatch) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.batches[batch.DateKey]; exists {
		return models.ErrAlreadyExists
	}
	m.batches[batch.DateKey] = batch
	return nil
}

func (m *MemoryLedgerStore) ListDailyBatches(_ context.Context, fromDate, toDate string) ([]models.LedgerBatch, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]models.LedgerBatch, 0)
	for _, b := range m.batches {
		if fromDate != "" && b.DateKey < fromDate {
			continue
		}
		if toDate != "" && b.DateKey > toDate {
			continue
		}
		result = append(result, b)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].DateKey < result[j].DateKey })
	return result, nil
}

func (m *MemoryLedgerStore) UpsertSnapshot(_ context.Context, snapshot models.LedgerSnapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := snapshot.Key()
	if existing, ok := m.snapshots[key]; ok {
		snapshot.Locked = existing.Locked
		snapshot.Divergence = existing.Divergence
	} else {
		snapshot.Locked = false
		snapshot.Divergence = decimal.Zero
	}
	m.snapshots[key] = snapshot
	return nil
}

func (m *MemoryLedgerStore) ListSnapshots(_ context.Context, filter models.SnapshotFilter) ([]models.LedgerSnapshot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]models.LedgerSnapshot, 0)
	for _, s := range m.snapshots {
		if filter.Match(s) {
			result = append(result, s)
		}
	}
	sortSnapshots(result)
	return result, nil
}

func (m *MemoryLedgerStore) SetSnapshotLock(_ context.Context, dateKey string, locked bool, divergence decimal.Decimal) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	n := 0
	for k, s := range m.snapshots {
		if k.DateKey != dateKey {
			continue
		}
		s.Locked = locked
		s.Divergence = divergence
		m.snapshots[k] = s
		n++
	}
	return n, nil
}

func (m *MemoryLedgerStore) GetWallet(_ context.Context, sellerID string) (*models.Wallet, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	w, ok := m.wallets[sellerID]
	if !ok {
		return nil, models.ErrNotFound
	}
	return &w, nil
}

func (m *MemoryLedgerStore) SaveWallet(_ context.Context, wallet models.Wallet) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.wallets[wallet.SellerID] = wallet
	return nil
}

func (m *MemoryLedgerStore) ReleaseToWallet(_ context.Context, cashout models.Cashout) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.cashouts[cashout.ID]; exists {
		return models.ErrAlreadyExists
	}
	w, ok := m.wallets[cashout.SellerID]
	if !ok {
		return models.ErrNotFound
	}

	w.Pending = w.Pending.Sub(cashout.Amount)
	w.Available = w.Available.Add(cashout.Amount)
	w.UpdatedAt = cashout.ReleasedAt
	m.wallets[cashout.SellerID] = w

	m.cashouts[cashout.ID] = cashout
	m.cashoutIDs = append(m.cashoutIDs, cashout.ID)
	return nil
}

func (m *MemoryLedgerStore) ListCashouts(_ context.Context, filter models.CashoutFilter) ([]models.Cashout, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]models.Cashout, 0)
	for _, id := range m.cashoutIDs {
		c := m.cashouts[id]
		if filter.Match(c) {
			result = append(result, c)
		}
	}
	return result, nil
}

func (m *MemoryLedgerStore) GetCashout(_ context.Context, id string) (*models.Cashout, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	c, ok := m.cashouts[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	return &c, nil
}

func (m *MemoryLedgerStore) MarkCashoutSettled(_ context.Context, id, reference string, settledAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, ok := m.cashouts[id]
	if !ok {
		return models.ErrNotFound
	}
	c.Status = models.CashoutSettled
	c.SettlementReference = reference
	c.SettledAt = &settledAt
	m.cashouts[id] = c
	return nil
}

func (m *MemoryLedgerStore) Ping(context.Context) error { return nil }

func (m *MemoryLedgerStore) Close() error { return nil }

func sortSnapshots(s []models.LedgerSnapshot) {
	sort.Slice(s, func(i, j int) bool {
		if s[i].DateKey != s[j].DateKey {
			return s[i].DateKey < s[j].DateKey
		}
		if s[i].Account != s[j].Account {
			return s[i].Account < s[j].Account
		}
		return s[i].SellerID < s[j].SellerID
	})
}

// Compile-time check: ensure MemoryLedgerStore implements Store interface
var _ interfaces.Store = (*MemoryLedgerStore)(nil)
