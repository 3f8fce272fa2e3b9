package interfaces

import "github.com/sheikh-saqib/gateway-ledger/internal/models"

// AuditLog is an append-only trail of fund movements.
type AuditLog interface {
	Append(record models.AuditRecord) error
	Records() ([]models.AuditRecord, error)
}
