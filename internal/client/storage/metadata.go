package storage

import (
	"context"
	"time"
)

//go:generate moq -out metadata_mock.go . MetadataStorage

// MetadataStorage defines interface for device metadata that outlives
// a session: the device actor id and sync bookkeeping.
type MetadataStorage interface {
	// SaveDeviceID persists the device actor id. Written once per device.
	SaveDeviceID(ctx context.Context, deviceID string) error

	// GetDeviceID retrieves the device actor id.
	// Returns an empty string if the device has no id yet.
	GetDeviceID(ctx context.Context) (string, error)

	// SaveLastSync saves the server time of the last successful sync
	SaveLastSync(ctx context.Context, t time.Time) error

	// GetLastSync retrieves the server time of the last successful sync.
	// Returns the zero time if no sync has been performed yet.
	GetLastSync(ctx context.Context) (time.Time, error)
}
