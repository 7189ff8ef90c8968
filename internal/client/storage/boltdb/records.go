package boltdb

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"go.etcd.io/bbolt"

	"github.com/iudanet/finkeeper/internal/client/storage"
)

// Compile-time check that Storage implements RecordStorage
var _ storage.RecordStorage = (*Storage)(nil)

// SaveRecord stores or replaces a local record
func (s *Storage) SaveRecord(ctx context.Context, record *storage.LocalRecord) error {
	if s.db == nil {
		return storage.ErrStorageClosed
	}
	if record == nil || record.Record == nil {
		return fmt.Errorf("local record is nil")
	}

	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to marshal local record: %w", err)
	}

	err = s.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(bucketRecords)
		if err := bucket.Put([]byte(record.Record.ID), data); err != nil {
			return fmt.Errorf("failed to save record: %w", err)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("transaction failed: %w", err)
	}

	return nil
}

// GetRecord retrieves a local record by id
func (s *Storage) GetRecord(ctx context.Context, id string) (*storage.LocalRecord, error) {
	if s.db == nil {
		return nil, storage.ErrStorageClosed
	}

	var record *storage.LocalRecord

	err := s.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket(bucketRecords).Get([]byte(id))
		if data == nil {
			return storage.ErrRecordNotFound
		}

		record = &storage.LocalRecord{}
		if err := json.Unmarshal(data, record); err != nil {
			return fmt.Errorf("failed to unmarshal record: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return record, nil
}

// ListRecords returns local records ordered by occurred_at
func (s *Storage) ListRecords(ctx context.Context, includeDeleted bool) ([]*storage.LocalRecord, error) {
	return s.listRecords(func(record *storage.LocalRecord) bool {
		return includeDeleted || !record.Record.Deleted
	})
}

// ListPending returns records with unsynchronized local edits
func (s *Storage) ListPending(ctx context.Context) ([]*storage.LocalRecord, error) {
	return s.listRecords(func(record *storage.LocalRecord) bool {
		return record.Pending
	})
}

func (s *Storage) listRecords(keep func(*storage.LocalRecord) bool) ([]*storage.LocalRecord, error) {
	if s.db == nil {
		return nil, storage.ErrStorageClosed
	}

	var records []*storage.LocalRecord

	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketRecords).ForEach(func(k, v []byte) error {
			var record storage.LocalRecord
			if err := json.Unmarshal(v, &record); err != nil {
				return fmt.Errorf("failed to unmarshal record: %w", err)
			}
			if keep(&record) {
				records = append(records, &record)
			}
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list records: %w", err)
	}

	sort.Slice(records, func(i, j int) bool {
		a, b := records[i].Record, records[j].Record
		if !a.OccurredAt.Equal(b.OccurredAt) {
			return a.OccurredAt.Before(b.OccurredAt)
		}
		return a.ID < b.ID
	})

	return records, nil
}

// DeleteRecord removes a record from the cache entirely
func (s *Storage) DeleteRecord(ctx context.Context, id string) error {
	if s.db == nil {
		return storage.ErrStorageClosed
	}

	err := s.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(bucketRecords)
		if bucket.Get([]byte(id)) == nil {
			return storage.ErrRecordNotFound
		}
		return bucket.Delete([]byte(id))
	})
	if err != nil {
		return err
	}

	return nil
}

// Clear removes all records from the cache
func (s *Storage) Clear(ctx context.Context) error {
	if s.db == nil {
		return storage.ErrStorageClosed
	}

	err := s.db.Update(func(tx *bbolt.Tx) error {
		if err := tx.DeleteBucket(bucketRecords); err != nil {
			return fmt.Errorf("failed to delete bucket: %w", err)
		}
		if _, err := tx.CreateBucket(bucketRecords); err != nil {
			return fmt.Errorf("failed to create bucket: %w", err)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("clear transaction failed: %w", err)
	}

	return nil
}
