package consensus

import (
	"context"
	"log/slog"
	"os"
	"sort"
	"time"

	"github.com/iudanet/finkeeper/internal/models"
	"github.com/iudanet/finkeeper/internal/server/storage"
)

// Compile-time interface checks
var (
	_ storage.RecordStorage   = (*mockRecordStorage)(nil)
	_ storage.ConflictStorage = (*mockConflictStorage)(nil)
	_ storage.DeltaStorage    = (*mockDeltaStorage)(nil)
)

func setupTestLogger() *slog.Logger {
	opts := &slog.HandlerOptions{
		Level: slog.LevelError, // Only show errors in tests
	}
	handler := slog.NewTextHandler(os.Stdout, opts)
	return slog.New(handler)
}

func recordKey(userID, recordID string) string {
	return userID + "/" + recordID
}

// mockRecordStorage is an in-memory RecordStorage with CAS semantics
type mockRecordStorage struct {
	records    map[string]*models.Record // userID/recordID -> Record
	createHook func(ctx context.Context, record *models.Record) error
	getError   error
	failCAS    int // искусственные проигрыши гонки версий
}

func newMockRecordStorage() *mockRecordStorage {
	return &mockRecordStorage{records: make(map[string]*models.Record)}
}

func (m *mockRecordStorage) put(record *models.Record) {
	m.records[recordKey(record.UserID, record.ID)] = record.Clone()
}

func (m *mockRecordStorage) CreateRecord(ctx context.Context, record *models.Record) error {
	if m.createHook != nil {
		return m.createHook(ctx, record)
	}
	key := recordKey(record.UserID, record.ID)
	if _, exists := m.records[key]; exists {
		return storage.ErrRecordAlreadyExists
	}
	m.records[key] = record.Clone()
	return nil
}

func (m *mockRecordStorage) GetRecord(ctx context.Context, userID, recordID string) (*models.Record, error) {
	if m.getError != nil {
		return nil, m.getError
	}
	record, ok := m.records[recordKey(userID, recordID)]
	if !ok {
		return nil, storage.ErrRecordNotFound
	}
	return record.Clone(), nil
}

func (m *mockRecordStorage) UpdateRecordCAS(ctx context.Context, record *models.Record, expectedVersion int64) error {
	key := recordKey(record.UserID, record.ID)
	stored, ok := m.records[key]
	if !ok {
		return storage.ErrRecordNotFound
	}
	if m.failCAS > 0 {
		m.failCAS--
		return storage.ErrVersionMismatch
	}
	if stored.Version != expectedVersion {
		return storage.ErrVersionMismatch
	}
	updated := record.Clone()
	updated.Version = expectedVersion + 1
	m.records[key] = updated
	record.Version = expectedVersion + 1
	return nil
}

func (m *mockRecordStorage) ListRecords(ctx context.Context, userID string, includeDeleted bool) ([]*models.Record, error) {
	var records []*models.Record
	for _, record := range m.records {
		if record.UserID != userID {
			continue
		}
		if record.Deleted && !includeDeleted {
			continue
		}
		records = append(records, record.Clone())
	}
	sort.Slice(records, func(i, j int) bool {
		return records[i].OccurredAt.Before(records[j].OccurredAt)
	})
	return records, nil
}

func (m *mockRecordStorage) ListRecordsUpdatedSince(ctx context.Context, userID string, since time.Time) ([]*models.Record, error) {
	var records []*models.Record
	for _, record := range m.records {
		if record.UserID != userID || !record.UpdatedAt.After(since) {
			continue
		}
		records = append(records, record.Clone())
	}
	sort.Slice(records, func(i, j int) bool {
		return records[i].UpdatedAt.Before(records[j].UpdatedAt)
	})
	return records, nil
}

// mockConflictStorage emulates the transactional conflict semantics of the
// sqlite driver: conflict insert flips the record, resolution applies CAS.
type mockConflictStorage struct {
	conflicts   map[string]*models.Conflict
	records     *mockRecordStorage
	createError error
	applyError  error
	failApply   int // искусственные проигрыши гонки версий при разрешении
}

func newMockConflictStorage(records *mockRecordStorage) *mockConflictStorage {
	return &mockConflictStorage{
		conflicts: make(map[string]*models.Conflict),
		records:   records,
	}
}

func (m *mockConflictStorage) CreateConflict(ctx context.Context, conflict *models.Conflict) (*models.Conflict, bool, error) {
	if m.createError != nil {
		return nil, false, m.createError
	}

	// Дедупликация открытых конфликтов по (record, client hash)
	for _, existing := range m.conflicts {
		if existing.RecordID == conflict.RecordID &&
			existing.ClientHash == conflict.ClientHash &&
			existing.Status == models.ConflictStatusOpen {
			return existing, false, nil
		}
	}

	key := recordKey(conflict.UserID, conflict.RecordID)
	record, ok := m.records.records[key]
	if !ok {
		return nil, false, storage.ErrRecordNotFound
	}
	record.SyncStatus = models.SyncStatusConflict
	record.ConflictCount++
	record.Version++
	record.UpdatedAt = conflict.DetectedAt

	m.conflicts[conflict.ID] = conflict
	return conflict, true, nil
}

func (m *mockConflictStorage) GetConflict(ctx context.Context, conflictID string) (*models.Conflict, error) {
	conflict, ok := m.conflicts[conflictID]
	if !ok {
		return nil, storage.ErrConflictNotFound
	}
	return conflict, nil
}

func (m *mockConflictStorage) ListConflicts(ctx context.Context, userID, status string) ([]*models.Conflict, error) {
	var conflicts []*models.Conflict
	for _, conflict := range m.conflicts {
		if conflict.UserID != userID {
			continue
		}
		if status != "" && conflict.Status != status {
			continue
		}
		conflicts = append(conflicts, conflict)
	}
	sort.Slice(conflicts, func(i, j int) bool {
		return conflicts[i].DetectedAt.After(conflicts[j].DetectedAt)
	})
	return conflicts, nil
}

func (m *mockConflictStorage) ApplyResolution(
	ctx context.Context,
	conflictID, strategy string,
	resolvedAt time.Time,
	record *models.Record,
	expectedVersion int64,
) error {
	if m.applyError != nil {
		return m.applyError
	}

	conflict, ok := m.conflicts[conflictID]
	if !ok {
		return storage.ErrConflictNotFound
	}
	if conflict.Status != models.ConflictStatusOpen {
		return storage.ErrConflictAlreadyResolved
	}
	if m.failApply > 0 {
		m.failApply--
		return storage.ErrVersionMismatch
	}

	key := recordKey(record.UserID, record.ID)
	stored, ok := m.records.records[key]
	if !ok {
		return storage.ErrRecordNotFound
	}
	if stored.Version != expectedVersion {
		return storage.ErrVersionMismatch
	}

	updated := record.Clone()
	updated.Version = expectedVersion + 1
	m.records.records[key] = updated
	record.Version = expectedVersion + 1

	conflict.Status = models.ConflictStatusResolved
	conflict.Strategy = strategy
	conflict.ResolvedAt = &resolvedAt
	return nil
}

// mockDeltaStorage is an in-memory append-only delta ledger
type mockDeltaStorage struct {
	deltas      []*models.Delta
	appendError error
}

func newMockDeltaStorage() *mockDeltaStorage {
	return &mockDeltaStorage{}
}

func (m *mockDeltaStorage) AppendDelta(ctx context.Context, delta *models.Delta) error {
	if m.appendError != nil {
		return m.appendError
	}
	delta.Seq = int64(len(m.deltas) + 1)
	m.deltas = append(m.deltas, delta)
	return nil
}

func (m *mockDeltaStorage) ListDeltas(ctx context.Context, userID string, filter storage.DeltaFilter) ([]*models.Delta, error) {
	var deltas []*models.Delta
	for _, delta := range m.deltas {
		if delta.UserID != userID {
			continue
		}
		if !filter.From.IsZero() && !delta.Timestamp.After(filter.From) {
			continue
		}
		if !filter.To.IsZero() && delta.Timestamp.After(filter.To) {
			continue
		}
		if filter.EntityType != "" && delta.EntityType != filter.EntityType {
			continue
		}
		if filter.Operation != "" && delta.Operation != filter.Operation {
			continue
		}
		deltas = append(deltas, delta)
	}
	return deltas, nil
}

func (m *mockDeltaStorage) ListDeltasByEntity(ctx context.Context, userID, entityID string) ([]*models.Delta, error) {
	var deltas []*models.Delta
	for _, delta := range m.deltas {
		if delta.UserID == userID && delta.EntityID == entityID {
			deltas = append(deltas, delta)
		}
	}
	return deltas, nil
}

func (m *mockDeltaStorage) GetDelta(ctx context.Context, deltaID string) (*models.Delta, error) {
	for _, delta := range m.deltas {
		if delta.ID == deltaID {
			return delta, nil
		}
	}
	return nil, storage.ErrDeltaNotFound
}

func (m *mockDeltaStorage) ListDeltasCausedBy(ctx context.Context, deltaID string) ([]*models.Delta, error) {
	var deltas []*models.Delta
	for _, delta := range m.deltas {
		if delta.CausedBy == deltaID {
			deltas = append(deltas, delta)
		}
	}
	return deltas, nil
}

func (m *mockDeltaStorage) lastDelta() *models.Delta {
	if len(m.deltas) == 0 {
		return nil
	}
	return m.deltas[len(m.deltas)-1]
}
