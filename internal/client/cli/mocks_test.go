package cli

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	clientapi "github.com/iudanet/finkeeper/internal/client/api"
	"github.com/iudanet/finkeeper/internal/client/auth"
	"github.com/iudanet/finkeeper/internal/client/storage"
	syncsvc "github.com/iudanet/finkeeper/internal/client/sync"
	"github.com/iudanet/finkeeper/pkg/api"
)

// mockIO пишет вывод в буфер и отдает заранее заданные ответы на prompt
type mockIO struct {
	out       strings.Builder
	inputs    []string
	passwords []string
}

func (m *mockIO) Println(a ...any) {
	fmt.Fprintln(&m.out, a...)
}

func (m *mockIO) Printf(format string, a ...any) {
	fmt.Fprintf(&m.out, format, a...)
}

func (m *mockIO) ReadInput(prompt string) (string, error) {
	if len(m.inputs) == 0 {
		return "", io.EOF
	}
	input := m.inputs[0]
	m.inputs = m.inputs[1:]
	return input, nil
}

func (m *mockIO) ReadPassword(prompt string) (string, error) {
	if len(m.passwords) == 0 {
		return "", io.EOF
	}
	password := m.passwords[0]
	m.passwords = m.passwords[1:]
	return password, nil
}

func (m *mockIO) Output() string {
	return m.out.String()
}

// mockAuthService отдает заранее заданную сессию и результаты
type mockAuthService struct {
	session        *storage.Session
	sessionErr     error
	deviceID       string
	deviceIDErr    error
	accessToken    string
	accessTokenErr error
	registerResult *auth.RegisterResult
	registerErr    error
	loginResult    *auth.LoginResult
	loginErr       error
	logoutErr      error
	logoutCalls    int
}

var _ auth.Service = (*mockAuthService)(nil)

func (m *mockAuthService) Register(_ context.Context, username, password string) (*auth.RegisterResult, error) {
	return m.registerResult, m.registerErr
}

func (m *mockAuthService) Login(_ context.Context, username, password string) (*auth.LoginResult, error) {
	return m.loginResult, m.loginErr
}

func (m *mockAuthService) Logout(_ context.Context) error {
	m.logoutCalls++
	return m.logoutErr
}

func (m *mockAuthService) Session(_ context.Context) (*storage.Session, error) {
	if m.sessionErr != nil {
		return nil, m.sessionErr
	}
	return m.session, nil
}

func (m *mockAuthService) AccessToken(_ context.Context) (string, error) {
	if m.accessTokenErr != nil {
		return "", m.accessTokenErr
	}
	return m.accessToken, nil
}

func (m *mockAuthService) DeviceID(_ context.Context) (string, error) {
	if m.deviceIDErr != nil {
		return "", m.deviceIDErr
	}
	return m.deviceID, nil
}

// mockSyncService отдает заранее заданный результат синхронизации
type mockSyncService struct {
	result       *syncsvc.Result
	syncErr      error
	pendingCount int
	pendingErr   error
	syncCalls    int
}

var _ syncsvc.Service = (*mockSyncService)(nil)

func (m *mockSyncService) Sync(_ context.Context, accessToken, username, deviceID string) (*syncsvc.Result, error) {
	m.syncCalls++
	if m.syncErr != nil {
		return nil, m.syncErr
	}
	return m.result, nil
}

func (m *mockSyncService) PendingCount(_ context.Context) (int, error) {
	if m.pendingErr != nil {
		return 0, m.pendingErr
	}
	return m.pendingCount, nil
}

// mockAPI реализует только методы истории и конфликтов
type mockAPI struct {
	clientapi.ClientAPI

	listConflictsFunc   func(ctx context.Context, accessToken, status string) (*api.ConflictsListResponse, error)
	resolveConflictFunc func(ctx context.Context, accessToken, conflictID string, req api.ResolveConflictRequest) (*api.ResolveConflictResponse, error)
	stateAtFunc         func(ctx context.Context, accessToken string, at time.Time, includeRecords bool) (*api.StateResponse, error)
	diffFunc            func(ctx context.Context, accessToken string, from, to time.Time) (*api.DiffResponse, error)
	evolutionFunc       func(ctx context.Context, accessToken string, start, end time.Time, interval string) (*api.EvolutionResponse, error)
	timelineFunc        func(ctx context.Context, accessToken string, from, to time.Time) (*api.TimelineResponse, error)
}

func (m *mockAPI) ListConflicts(ctx context.Context, accessToken, status string) (*api.ConflictsListResponse, error) {
	return m.listConflictsFunc(ctx, accessToken, status)
}

func (m *mockAPI) ResolveConflict(ctx context.Context, accessToken, conflictID string, req api.ResolveConflictRequest) (*api.ResolveConflictResponse, error) {
	return m.resolveConflictFunc(ctx, accessToken, conflictID, req)
}

func (m *mockAPI) StateAt(ctx context.Context, accessToken string, at time.Time, includeRecords bool) (*api.StateResponse, error) {
	return m.stateAtFunc(ctx, accessToken, at, includeRecords)
}

func (m *mockAPI) Diff(ctx context.Context, accessToken string, from, to time.Time) (*api.DiffResponse, error) {
	return m.diffFunc(ctx, accessToken, from, to)
}

func (m *mockAPI) Evolution(ctx context.Context, accessToken string, start, end time.Time, interval string) (*api.EvolutionResponse, error) {
	return m.evolutionFunc(ctx, accessToken, start, end, interval)
}

func (m *mockAPI) Timeline(ctx context.Context, accessToken string, from, to time.Time) (*api.TimelineResponse, error) {
	return m.timelineFunc(ctx, accessToken, from, to)
}

// mockRecordStorage — локальный кеш записей в памяти для dataService
type mockRecordStorage struct {
	records map[string]*storage.LocalRecord
}

func newMockRecordStorage() *mockRecordStorage {
	return &mockRecordStorage{records: make(map[string]*storage.LocalRecord)}
}

func (m *mockRecordStorage) SaveRecord(_ context.Context, record *storage.LocalRecord) error {
	m.records[record.Record.ID] = record
	return nil
}

func (m *mockRecordStorage) GetRecord(_ context.Context, id string) (*storage.LocalRecord, error) {
	record, ok := m.records[id]
	if !ok {
		return nil, storage.ErrRecordNotFound
	}
	return record, nil
}

func (m *mockRecordStorage) ListRecords(_ context.Context, includeDeleted bool) ([]*storage.LocalRecord, error) {
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
	result := []*storage.LocalRecord{}
	for _, record := range m.records {
		if record.Pending {
			result = append(result, record)
		}
	}
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
