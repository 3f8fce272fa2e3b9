package models

import (
	"fmt"

	"github.com/pkg/errors"
)

// Ledger error taxonomy.
var (
	ErrInvalidPosting           = errors.New("ledger: invalid posting")
	ErrUnbalancedBatch          = errors.New("ledger: unbalanced batch")
	ErrDuplicatePosting         = errors.New("ledger: duplicate posting")
	ErrIntegrityViolation       = errors.New("ledger: integrity violation")
	ErrReconciliationDivergence = errors.New("ledger: reconciliation divergence")
	ErrUnmatchedSettlement      = errors.New("ledger: unmatched settlement")
	ErrMissingCollaboratorData  = errors.New("ledger: missing collaborator data")
	ErrSnapshotLocked           = errors.New("ledger: snapshot locked")
)

// Store and job errors.
var (
	ErrNotFound       = errors.New("ledger: not found")
	ErrAlreadyExists  = errors.New("ledger: already exists")
	ErrNoEntries      = errors.New("ledger: no entries for day")
	ErrBatchNotClosed = errors.New("ledger: daily batch not closed")
	ErrStoreNotReady  = errors.New("ledger: store not ready")
)

// ValidationError represents a rejected posting field.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("ledger: validation failed for %s: %s", e.Field, e.Message)
}

// Unwrap lets errors.Is match ErrInvalidPosting.
func (e ValidationError) Unwrap() error {
	return ErrInvalidPosting
}

// IsNotFound returns true if the error is a not found error.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound) || errors.Is(err, ErrMissingCollaboratorData)
}

// IsRetryable returns true if re-running the same job later can succeed.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrStoreNotReady) ||
		errors.Is(err, ErrNoEntries) ||
		errors.Is(err, ErrBatchNotClosed)
}
