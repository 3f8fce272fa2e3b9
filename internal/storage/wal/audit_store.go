package wal

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/pkg/errors"
	"github.com/vadiminshakov/gowal"

	interfaces "github.com/sheikh-saqib/gateway-ledger/internal/interfaces"
	"github.com/sheikh-saqib/gateway-ledger/internal/models"
)

const (
	defaultAuditDir   = "./wal/audit"
	auditSegmentLimit = 1000
	auditMaxSegments  = 1000
	auditKeyPrefix    = "audit_"
)

// AuditStore is an append-only trail of fund movements kept in a WAL.
type AuditStore struct {
	wal *gowal.Wal
	mu  sync.RWMutex
}

// NewAuditStore opens (or creates) the audit WAL under dir.
func NewAuditStore(dir string) (*AuditStore, error) {
	if dir == "" {
		dir = defaultAuditDir
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.Wrap(err, "create audit WAL dir")
	}

	wal, err := gowal.NewWAL(gowal.Config{
		Dir:              dir,
		Prefix:           "audit_",
		SegmentThreshold: auditSegmentLimit,
		MaxSegments:      auditMaxSegments,
		IsInSyncDiskMode: true,
	})
	if err != nil {
		return nil, errors.Wrap(err, "init audit WAL")
	}

	return &AuditStore{wal: wal}, nil
}

// Append writes record at the next WAL index.
func (s *AuditStore) Append(record models.AuditRecord) error {
	if s == nil || s.wal == nil {
		return errors.New("audit store is not initialized")
	}
	if record.CashoutID == "" {
		return fmt.Errorf("audit record cashout id is required")
	}

	payload, err := json.Marshal(record)
	if err != nil {
		return errors.Wrap(err, "marshal audit record")
	}
	key := fmt.Sprintf("%s%s_%s", auditKeyPrefix, record.Kind, record.CashoutID)

	s.mu.Lock()
	defer s.mu.Unlock()

	return s.wal.Write(s.wal.CurrentIndex()+1, key, payload)
}

// Records returns every audit record in write order.
func (s *AuditStore) Records() ([]models.AuditRecord, error) {
	if s == nil || s.wal == nil {
		return nil, errors.New("audit store is not initialized")
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	records := make([]models.AuditRecord, 0)
	for m := range s.wal.Iterator() {
		if !strings.HasPrefix(m.Key, auditKeyPrefix) {
			continue
		}
		var record models.AuditRecord
		if err := json.Unmarshal(m.Value, &record); err != nil {
			return nil, errors.Wrap(err, "decode audit record")
		}
		records = append(records, record)
	}
	return records, nil
}

// CurrentIndex returns the latest WAL index stored.
func (s *AuditStore) CurrentIndex() uint64 {
	if s == nil || s.wal == nil {
		return 0
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.wal.CurrentIndex()
}

func (s *AuditStore) Close() error {
	if s == nil || s.wal == nil {
		return errors.New("audit store is not initialized")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	return s.wal.Close()
}

var _ interfaces.AuditLog = (*AuditStore)(nil)
