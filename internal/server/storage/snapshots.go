package storage

import (
	"context"
	"time"

	"github.com/iudanet/finkeeper/internal/models"
)

// SnapshotStorage defines interface for snapshot persistence.
// Implementations are expected to verify integrity on read and return
// ErrSnapshotCorrupted when stored bytes no longer match their hash.
type SnapshotStorage interface {
	// SaveSnapshot persists a snapshot
	SaveSnapshot(ctx context.Context, snapshot *models.Snapshot) error

	// GetSnapshot retrieves a snapshot by its exact timestamp
	// Returns ErrSnapshotNotFound if snapshot doesn't exist
	GetSnapshot(ctx context.Context, userID string, takenAt time.Time) (*models.Snapshot, error)

	// LatestSnapshotBefore retrieves the newest snapshot taken at or before t.
	// Returns ErrSnapshotNotFound when the user has no snapshot in range.
	LatestSnapshotBefore(ctx context.Context, userID string, t time.Time) (*models.Snapshot, error)

	// ListSnapshots retrieves snapshot metadata for a user in ascending
	// order of taken_at. State payloads are not loaded.
	ListSnapshots(ctx context.Context, userID string) ([]*models.Snapshot, error)

	// DeleteSnapshot removes a snapshot by its exact timestamp
	DeleteSnapshot(ctx context.Context, userID string, takenAt time.Time) error

	// DeleteSnapshotsOlderThan removes snapshots of one type taken before
	// cutoff. Returns the number of snapshots removed.
	DeleteSnapshotsOlderThan(ctx context.Context, userID, snapshotType string, cutoff time.Time) (int, error)
}
