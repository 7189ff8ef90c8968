package storage

import (
	"context"
	"time"

	"github.com/iudanet/finkeeper/internal/models"
)

// ConflictStorage defines interface for the conflict graveyard.
//
// CreateConflict and ApplyResolution are transactional over both the
// conflicts table and the contested record: a record can never end up
// marked clean while a true conflict exists, and never the reverse.
type ConflictStorage interface {
	// CreateConflict inserts a conflict entry and, in the same transaction,
	// flips the record's sync status to conflict and increments its conflict
	// counter. Idempotent for retried requests: when an open conflict for the
	// same (record, client hash) already exists, the existing entry is
	// returned with created=false and the record is left untouched.
	CreateConflict(ctx context.Context, conflict *models.Conflict) (existing *models.Conflict, created bool, err error)

	// GetConflict retrieves a conflict by id
	// Returns ErrConflictNotFound if conflict doesn't exist
	GetConflict(ctx context.Context, conflictID string) (*models.Conflict, error)

	// ListConflicts retrieves conflicts of a user, newest first.
	// Empty status means all statuses.
	ListConflicts(ctx context.Context, userID, status string) ([]*models.Conflict, error)

	// ApplyResolution persists a conflict resolution atomically: the record
	// fields are written through a compare-and-swap on expectedVersion and
	// the conflict transitions open -> resolved with strategy and timestamp
	// recorded, in one transaction. Returns ErrConflictNotFound,
	// ErrConflictAlreadyResolved or ErrVersionMismatch.
	ApplyResolution(ctx context.Context, conflictID, strategy string, resolvedAt time.Time, record *models.Record, expectedVersion int64) error
}
