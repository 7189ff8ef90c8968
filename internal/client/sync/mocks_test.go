package sync

import (
	"context"
	"sort"
	"time"

	clientapi "github.com/iudanet/finkeeper/internal/client/api"
	"github.com/iudanet/finkeeper/internal/client/storage"
	"github.com/iudanet/finkeeper/pkg/api"
)

// mockClientAPI реализует только Sync; остальные методы ClientAPI
// сервису синхронизации не нужны
type mockClientAPI struct {
	clientapi.ClientAPI

	syncFunc  func(ctx context.Context, accessToken string, req api.SyncRequest) (*api.SyncResponse, error)
	syncCalls []api.SyncRequest
}

func (m *mockClientAPI) Sync(ctx context.Context, accessToken string, req api.SyncRequest) (*api.SyncResponse, error) {
	m.syncCalls = append(m.syncCalls, req)
	return m.syncFunc(ctx, accessToken, req)
}

// mockRecordStorage — локальный кеш записей в памяти
type mockRecordStorage struct {
	records map[string]*storage.LocalRecord

	saveErr error
	getErr  error
	listErr error
}

func newMockRecordStorage() *mockRecordStorage {
	return &mockRecordStorage{records: make(map[string]*storage.LocalRecord)}
}

func (m *mockRecordStorage) SaveRecord(_ context.Context, record *storage.LocalRecord) error {
	if m.saveErr != nil {
		return m.saveErr
	}
	m.records[record.Record.ID] = record
	return nil
}

func (m *mockRecordStorage) GetRecord(_ context.Context, id string) (*storage.LocalRecord, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	record, ok := m.records[id]
	if !ok {
		return nil, storage.ErrRecordNotFound
	}
	return record, nil
}

func (m *mockRecordStorage) ListRecords(_ context.Context, includeDeleted bool) ([]*storage.LocalRecord, error) {
	if m.listErr != nil {
		return nil, m.listErr
	}
	result := []*storage.LocalRecord{}
	for _, record := range m.records {
		if record.Record.Deleted && !includeDeleted {
			continue
		}
		result = append(result, record)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].Record.ID < result[j].Record.ID
	})
	return result, nil
}

func (m *mockRecordStorage) ListPending(_ context.Context) ([]*storage.LocalRecord, error) {
	if m.listErr != nil {
		return nil, m.listErr
	}
	result := []*storage.LocalRecord{}
	for _, record := range m.records {
		if record.Pending {
			result = append(result, record)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].Record.ID < result[j].Record.ID
	})
	return result, nil
}

func (m *mockRecordStorage) DeleteRecord(_ context.Context, id string) error {
	delete(m.records, id)
	return nil
}

func (m *mockRecordStorage) Clear(_ context.Context) error {
	m.records = make(map[string]*storage.LocalRecord)
	return nil
}

// mockMetadataStorage — метаданные устройства в памяти
type mockMetadataStorage struct {
	deviceID string
	lastSync time.Time

	getLastSyncErr  error
	saveLastSyncErr error
}

func (m *mockMetadataStorage) SaveDeviceID(_ context.Context, deviceID string) error {
	m.deviceID = deviceID
	return nil
}

func (m *mockMetadataStorage) GetDeviceID(_ context.Context) (string, error) {
	return m.deviceID, nil
}

func (m *mockMetadataStorage) SaveLastSync(_ context.Context, t time.Time) error {
	if m.saveLastSyncErr != nil {
		return m.saveLastSyncErr
	}
	m.lastSync = t
	return nil
}

func (m *mockMetadataStorage) GetLastSync(_ context.Context) (time.Time, error) {
	if m.getLastSyncErr != nil {
		return time.Time{}, m.getLastSyncErr
	}
	return m.lastSync, nil
}
