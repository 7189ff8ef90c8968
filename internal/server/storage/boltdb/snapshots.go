package boltdb

import (
	"bytes"
	"compress/gzip"
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"go.etcd.io/bbolt"

	"github.com/iudanet/finkeeper/internal/integrity"
	"github.com/iudanet/finkeeper/internal/models"
	"github.com/iudanet/finkeeper/internal/server/storage"
)

// Снапшоты одного пользователя лежат в его вложенном bucket'е двумя частями:
// meta (JSON без состояния) и state (gzip-сжатые байты состояния). Ключ обеих
// частей - big-endian наносекунды TakenAt, поэтому курсор перебирает снапшоты
// в хронологическом порядке.

// SaveSnapshot persists a snapshot. The state is compressed transparently:
// callers pass plain serialized state bytes, Compressed and SizeBytes are
// set on the snapshot to reflect what was actually stored.
func (s *Storage) SaveSnapshot(ctx context.Context, snapshot *models.Snapshot) error {
	compressed, err := compressState(snapshot.State)
	if err != nil {
		return fmt.Errorf("failed to compress snapshot state: %w", err)
	}

	snapshot.Compressed = true
	snapshot.SizeBytes = int64(len(compressed))

	meta, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot meta: %w", err)
	}

	key := encodeSnapshotKey(snapshot.TakenAt)

	return s.db.Update(func(tx *bbolt.Tx) error {
		metaBucket, stateBucket, err := userBuckets(tx, snapshot.UserID, true)
		if err != nil {
			return err
		}

		if err := metaBucket.Put(key, meta); err != nil {
			return fmt.Errorf("failed to save snapshot meta: %w", err)
		}
		if err := stateBucket.Put(key, compressed); err != nil {
			return fmt.Errorf("failed to save snapshot state: %w", err)
		}

		return nil
	})
}

// GetSnapshot retrieves a snapshot by its exact timestamp
func (s *Storage) GetSnapshot(ctx context.Context, userID string, takenAt time.Time) (*models.Snapshot, error) {
	var snapshot *models.Snapshot

	err := s.db.View(func(tx *bbolt.Tx) error {
		metaBucket, stateBucket, err := userBuckets(tx, userID, false)
		if err != nil {
			return err
		}

		key := encodeSnapshotKey(takenAt)
		meta := metaBucket.Get(key)
		if meta == nil {
			return storage.ErrSnapshotNotFound
		}

		snapshot, err = decodeSnapshot(meta, stateBucket.Get(key))
		return err
	})

	if err != nil {
		return nil, err
	}

	return snapshot, nil
}

// LatestSnapshotBefore retrieves the newest snapshot taken at or before t
func (s *Storage) LatestSnapshotBefore(ctx context.Context, userID string, t time.Time) (*models.Snapshot, error) {
	var snapshot *models.Snapshot

	err := s.db.View(func(tx *bbolt.Tx) error {
		metaBucket, stateBucket, err := userBuckets(tx, userID, false)
		if err != nil {
			return err
		}

		target := encodeSnapshotKey(t)
		c := metaBucket.Cursor()

		// Ищем первый ключ >= t, затем отступаем к новейшему ключу <= t
		k, v := c.Seek(target)
		switch {
		case k == nil:
			k, v = c.Last()
		case bytes.Equal(k, target):
			// Точное попадание
		default:
			k, v = c.Prev()
		}

		if k == nil {
			return storage.ErrSnapshotNotFound
		}

		snapshot, err = decodeSnapshot(v, stateBucket.Get(k))
		return err
	})

	if err != nil {
		return nil, err
	}

	return snapshot, nil
}

// ListSnapshots retrieves snapshot metadata for a user in ascending order
// of taken_at. State payloads are not loaded.
func (s *Storage) ListSnapshots(ctx context.Context, userID string) ([]*models.Snapshot, error) {
	var snapshots []*models.Snapshot

	err := s.db.View(func(tx *bbolt.Tx) error {
		metaBucket, _, err := userBuckets(tx, userID, false)
		if errors.Is(err, storage.ErrSnapshotNotFound) {
			// У пользователя нет снапшотов
			return nil
		}
		if err != nil {
			return err
		}

		return metaBucket.ForEach(func(k, v []byte) error {
			snapshot := &models.Snapshot{}
			if err := json.Unmarshal(v, snapshot); err != nil {
				return fmt.Errorf("failed to unmarshal snapshot meta: %w", err)
			}
			snapshots = append(snapshots, snapshot)
			return nil
		})
	})

	if err != nil {
		return nil, err
	}

	return snapshots, nil
}

// DeleteSnapshot removes a snapshot by its exact timestamp
func (s *Storage) DeleteSnapshot(ctx context.Context, userID string, takenAt time.Time) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		metaBucket, stateBucket, err := userBuckets(tx, userID, false)
		if err != nil {
			return err
		}

		key := encodeSnapshotKey(takenAt)
		if metaBucket.Get(key) == nil {
			return storage.ErrSnapshotNotFound
		}

		if err := metaBucket.Delete(key); err != nil {
			return fmt.Errorf("failed to delete snapshot meta: %w", err)
		}
		if err := stateBucket.Delete(key); err != nil {
			return fmt.Errorf("failed to delete snapshot state: %w", err)
		}

		return nil
	})
}

// DeleteSnapshotsOlderThan removes snapshots of one type taken before cutoff.
// Returns the number of snapshots removed.
func (s *Storage) DeleteSnapshotsOlderThan(ctx context.Context, userID, snapshotType string, cutoff time.Time) (int, error) {
	deleted := 0

	err := s.db.Update(func(tx *bbolt.Tx) error {
		metaBucket, stateBucket, err := userBuckets(tx, userID, false)
		if errors.Is(err, storage.ErrSnapshotNotFound) {
			return nil
		}
		if err != nil {
			return err
		}

		limit := encodeSnapshotKey(cutoff)

		// Сначала собираем ключи, потом удаляем: не мутируем bucket под курсором
		var victims [][]byte
		c := metaBucket.Cursor()
		for k, v := c.First(); k != nil && bytes.Compare(k, limit) < 0; k, v = c.Next() {
			snapshot := &models.Snapshot{}
			if err := json.Unmarshal(v, snapshot); err != nil {
				return fmt.Errorf("failed to unmarshal snapshot meta: %w", err)
			}
			if snapshot.Type == snapshotType {
				victims = append(victims, append([]byte(nil), k...))
			}
		}

		for _, k := range victims {
			if err := metaBucket.Delete(k); err != nil {
				return fmt.Errorf("failed to delete snapshot meta: %w", err)
			}
			if err := stateBucket.Delete(k); err != nil {
				return fmt.Errorf("failed to delete snapshot state: %w", err)
			}
			deleted++
		}

		return nil
	})

	if err != nil {
		return 0, err
	}

	return deleted, nil
}

// userBuckets возвращает meta и state buckets пользователя.
// При create=false отсутствие buckets означает отсутствие снапшотов.
func userBuckets(tx *bbolt.Tx, userID string, create bool) (meta, state *bbolt.Bucket, err error) {
	top := tx.Bucket(bucketSnapshots)
	if top == nil {
		return nil, nil, fmt.Errorf("snapshots bucket not found")
	}

	if create {
		user, err := top.CreateBucketIfNotExists([]byte(userID))
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create user bucket: %w", err)
		}
		meta, err = user.CreateBucketIfNotExists(bucketMeta)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create meta bucket: %w", err)
		}
		state, err = user.CreateBucketIfNotExists(bucketState)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create state bucket: %w", err)
		}
		return meta, state, nil
	}

	user := top.Bucket([]byte(userID))
	if user == nil {
		return nil, nil, storage.ErrSnapshotNotFound
	}
	meta = user.Bucket(bucketMeta)
	state = user.Bucket(bucketState)
	if meta == nil || state == nil {
		return nil, nil, storage.ErrSnapshotNotFound
	}

	return meta, state, nil
}

// decodeSnapshot восстанавливает снапшот из meta и сжатого состояния,
// проверяя хеш целостности.
func decodeSnapshot(meta, compressed []byte) (*models.Snapshot, error) {
	snapshot := &models.Snapshot{}
	if err := json.Unmarshal(meta, snapshot); err != nil {
		return nil, fmt.Errorf("failed to unmarshal snapshot meta: %w", err)
	}

	if compressed == nil {
		return nil, storage.ErrSnapshotCorrupted
	}

	state := compressed
	if snapshot.Compressed {
		var err error
		state, err = decompressState(compressed)
		if err != nil {
			return nil, storage.ErrSnapshotCorrupted
		}
	}

	// Хеш считается по несжатому состоянию
	if integrity.HashWithDomain(integrity.DomainSnapshot, state) != snapshot.StateHash {
		return nil, storage.ErrSnapshotCorrupted
	}

	snapshot.State = state

	return snapshot, nil
}

func encodeSnapshotKey(t time.Time) []byte {
	key := make([]byte, 8)
	binary.BigEndian.PutUint64(key, uint64(t.UnixNano()))
	return key
}

func compressState(state []byte) ([]byte, error) {
	var buf bytes.Buffer
	w := gzip.NewWriter(&buf)
	if _, err := w.Write(state); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decompressState(compressed []byte) ([]byte, error) {
	r, err := gzip.NewReader(bytes.NewReader(compressed))
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = r.Close()
	}()

	return io.ReadAll(r)
}
