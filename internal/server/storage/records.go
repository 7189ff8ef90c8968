package storage

import (
	"context"
	"time"

	"github.com/iudanet/finkeeper/internal/models"
)

// RecordStorage defines interface for financial record persistence.
// Reconciliation correctness depends on the compare-and-swap contract of
// UpdateRecordCAS: two concurrent writers observing the same version can
// never both apply.
type RecordStorage interface {
	// CreateRecord inserts a new record
	// Returns ErrRecordAlreadyExists if a record with this id exists
	CreateRecord(ctx context.Context, record *models.Record) error

	// GetRecord retrieves a record by id scoped to its owner
	// Returns ErrRecordNotFound if record doesn't exist
	GetRecord(ctx context.Context, userID, recordID string) (*models.Record, error)

	// UpdateRecordCAS persists record fields only if the stored version
	// still equals expectedVersion; on success the version is incremented
	// and written back to record.Version. Returns ErrVersionMismatch when
	// the optimistic check fails and ErrRecordNotFound when the record is
	// absent.
	UpdateRecordCAS(ctx context.Context, record *models.Record, expectedVersion int64) error

	// ListRecords retrieves all records of a user ordered by occurred_at.
	// Soft-deleted records are included only when includeDeleted is set.
	ListRecords(ctx context.Context, userID string, includeDeleted bool) ([]*models.Record, error)

	// ListRecordsUpdatedSince retrieves records changed after the given
	// time, ordered by updated_at ascending. Used by sync pull.
	ListRecordsUpdatedSince(ctx context.Context, userID string, since time.Time) ([]*models.Record, error)
}
