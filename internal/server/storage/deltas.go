package storage

import (
	"context"
	"time"

	"github.com/iudanet/finkeeper/internal/models"
)

// DeltaFilter narrows ledger queries. Zero values mean "no constraint".
type DeltaFilter struct {
	From       time.Time // exclusive lower bound on timestamp
	To         time.Time // inclusive upper bound on timestamp
	EntityType string
	Operation  string
}

// DeltaStorage defines interface for the append-only delta ledger.
// Entries are immutable: no update or delete operation exists.
type DeltaStorage interface {
	// AppendDelta inserts a delta and assigns its global sequence number
	// (delta.Seq is set on return). Append is all-or-nothing.
	AppendDelta(ctx context.Context, delta *models.Delta) error

	// ListDeltas retrieves a user's deltas matching the filter in ascending
	// (timestamp, seq) order. An empty window returns an empty slice, not
	// an error.
	ListDeltas(ctx context.Context, userID string, filter DeltaFilter) ([]*models.Delta, error)

	// ListDeltasByEntity retrieves all deltas of one entity in ascending
	// order. Used for per-record audit trails.
	ListDeltasByEntity(ctx context.Context, userID, entityID string) ([]*models.Delta, error)

	// GetDelta retrieves a delta by id
	// Returns ErrDeltaNotFound if delta doesn't exist
	GetDelta(ctx context.Context, deltaID string) (*models.Delta, error)

	// ListDeltasCausedBy retrieves deltas whose caused_by references the
	// given delta id: the forward edges of the causal chain.
	ListDeltasCausedBy(ctx context.Context, deltaID string) ([]*models.Delta, error)
}
