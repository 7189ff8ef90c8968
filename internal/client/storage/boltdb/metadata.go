package boltdb

import (
	"context"
	"fmt"
	"time"

	"go.etcd.io/bbolt"

	"github.com/iudanet/finkeeper/internal/client/storage"
)

const (
	keyDeviceID = "device_id"
	keyLastSync = "last_sync"
)

// Compile-time check that Storage implements MetadataStorage
var _ storage.MetadataStorage = (*Storage)(nil)

// SaveDeviceID persists the device actor id
func (s *Storage) SaveDeviceID(ctx context.Context, deviceID string) error {
	if s.db == nil {
		return storage.ErrStorageClosed
	}

	return s.db.Update(func(tx *bbolt.Tx) error {
		if err := tx.Bucket(bucketMetadata).Put([]byte(keyDeviceID), []byte(deviceID)); err != nil {
			return fmt.Errorf("failed to save device id: %w", err)
		}
		return nil
	})
}

// GetDeviceID retrieves the device actor id, empty if never assigned
func (s *Storage) GetDeviceID(ctx context.Context) (string, error) {
	if s.db == nil {
		return "", storage.ErrStorageClosed
	}

	var deviceID string

	err := s.db.View(func(tx *bbolt.Tx) error {
		if data := tx.Bucket(bucketMetadata).Get([]byte(keyDeviceID)); data != nil {
			deviceID = string(data)
		}
		return nil
	})
	if err != nil {
		return "", err
	}

	return deviceID, nil
}

// SaveLastSync saves the server time of the last successful sync
func (s *Storage) SaveLastSync(ctx context.Context, t time.Time) error {
	if s.db == nil {
		return storage.ErrStorageClosed
	}

	data, err := t.UTC().MarshalBinary()
	if err != nil {
		return fmt.Errorf("failed to marshal sync time: %w", err)
	}

	return s.db.Update(func(tx *bbolt.Tx) error {
		if err := tx.Bucket(bucketMetadata).Put([]byte(keyLastSync), data); err != nil {
			return fmt.Errorf("failed to save last sync: %w", err)
		}
		return nil
	})
}

// GetLastSync retrieves the server time of the last successful sync.
// Returns the zero time before the first sync.
func (s *Storage) GetLastSync(ctx context.Context) (time.Time, error) {
	if s.db == nil {
		return time.Time{}, storage.ErrStorageClosed
	}

	var t time.Time

	err := s.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket(bucketMetadata).Get([]byte(keyLastSync))
		if data == nil {
			return nil
		}
		if err := t.UnmarshalBinary(data); err != nil {
			return fmt.Errorf("failed to unmarshal sync time: %w", err)
		}
		return nil
	})
	if err != nil {
		return time.Time{}, err
	}

	return t, nil
}
