package handlers

import (
	"context"
	"log/slog"
	"os"
	"sort"
	"time"

	"github.com/iudanet/finkeeper/internal/consensus"
	"github.com/iudanet/finkeeper/internal/models"
	"github.com/iudanet/finkeeper/internal/server/storage"
)

// Compile-time interface checks
var (
	_ storage.UserStorage     = (*mockUserStorage)(nil)
	_ storage.TokenStorage    = (*mockTokenStorage)(nil)
	_ storage.RecordStorage   = (*mockRecordStorage)(nil)
	_ storage.ConflictStorage = (*mockConflictStorage)(nil)
	_ storage.DeltaStorage    = (*mockDeltaStorage)(nil)
	_ storage.SnapshotStorage = (*mockSnapshotStorage)(nil)
	_ Reconciler              = (*mockReconciler)(nil)
	_ Resolver                = (*mockResolver)(nil)
)

// setupTestLogger creates a logger for testing
func setupTestLogger() *slog.Logger {
	opts := &slog.HandlerOptions{
		Level: slog.LevelError, // Only show errors in tests
	}
	handler := slog.NewTextHandler(os.Stdout, opts)
	return slog.New(handler)
}

// mockUserStorage — хранилище пользователей поверх карты
type mockUserStorage struct {
	users       map[string]*models.User // username -> User
	createError error
	getError    error
	lastLogins  []string // user ids, по которым обновлялся last_login
}

func (m *mockUserStorage) CreateUser(ctx context.Context, user *models.User) error {
	if m.createError != nil {
		return m.createError
	}
	if _, exists := m.users[user.Username]; exists {
		return storage.ErrUserAlreadyExists
	}
	m.users[user.Username] = user
	return nil
}

func (m *mockUserStorage) GetUserByUsername(ctx context.Context, username string) (*models.User, error) {
	if m.getError != nil {
		return nil, m.getError
	}
	user, ok := m.users[username]
	if !ok {
		return nil, storage.ErrUserNotFound
	}
	return user, nil
}

func (m *mockUserStorage) GetUserByID(ctx context.Context, id string) (*models.User, error) {
	if m.getError != nil {
		return nil, m.getError
	}
	for _, user := range m.users {
		if user.ID == id {
			return user, nil
		}
	}
	return nil, storage.ErrUserNotFound
}

func (m *mockUserStorage) UpdateLastLogin(ctx context.Context, userID string, loginTime time.Time) error {
	m.lastLogins = append(m.lastLogins, userID)
	return nil
}

// mockTokenStorage — хранилище refresh-токенов поверх карты
type mockTokenStorage struct {
	tokens        map[string]*models.RefreshToken // token -> RefreshToken
	saveError     error
	getError      error
	deleteError   error
	deletedTokens []string
}

func (m *mockTokenStorage) SaveRefreshToken(ctx context.Context, token *models.RefreshToken) error {
	if m.saveError != nil {
		return m.saveError
	}
	m.tokens[token.Token] = token
	return nil
}

func (m *mockTokenStorage) GetRefreshToken(ctx context.Context, token string) (*models.RefreshToken, error) {
	if m.getError != nil {
		return nil, m.getError
	}
	rt, ok := m.tokens[token]
	if !ok {
		return nil, storage.ErrTokenNotFound
	}
	return rt, nil
}

func (m *mockTokenStorage) DeleteRefreshToken(ctx context.Context, token string) error {
	if m.deleteError != nil {
		return m.deleteError
	}
	if _, ok := m.tokens[token]; !ok {
		return storage.ErrTokenNotFound
	}
	delete(m.tokens, token)
	m.deletedTokens = append(m.deletedTokens, token)
	return nil
}

func (m *mockTokenStorage) DeleteUserTokens(ctx context.Context, userID string) (int, error) {
	if m.deleteError != nil {
		return 0, m.deleteError
	}
	count := 0
	for token, rt := range m.tokens {
		if rt.UserID == userID {
			delete(m.tokens, token)
			m.deletedTokens = append(m.deletedTokens, token)
			count++
		}
	}
	return count, nil
}

func (m *mockTokenStorage) DeleteExpiredTokens(ctx context.Context) (int, error) {
	return 0, nil
}

// mockRecordStorage — хранилище записей поверх карты
type mockRecordStorage struct {
	records   map[string]*models.Record // record id -> Record
	getError  error
	listError error
}

func newMockRecordStorage() *mockRecordStorage {
	return &mockRecordStorage{records: make(map[string]*models.Record)}
}

func (m *mockRecordStorage) CreateRecord(ctx context.Context, record *models.Record) error {
	if _, exists := m.records[record.ID]; exists {
		return storage.ErrRecordAlreadyExists
	}
	m.records[record.ID] = record
	return nil
}

func (m *mockRecordStorage) GetRecord(ctx context.Context, userID, recordID string) (*models.Record, error) {
	if m.getError != nil {
		return nil, m.getError
	}
	record, ok := m.records[recordID]
	if !ok || record.UserID != userID {
		return nil, storage.ErrRecordNotFound
	}
	return record, nil
}

func (m *mockRecordStorage) UpdateRecordCAS(ctx context.Context, record *models.Record, expectedVersion int64) error {
	stored, ok := m.records[record.ID]
	if !ok {
		return storage.ErrRecordNotFound
	}
	if stored.Version != expectedVersion {
		return storage.ErrVersionMismatch
	}
	record.Version = expectedVersion + 1
	m.records[record.ID] = record
	return nil
}

func (m *mockRecordStorage) ListRecords(ctx context.Context, userID string, includeDeleted bool) ([]*models.Record, error) {
	if m.listError != nil {
		return nil, m.listError
	}
	out := make([]*models.Record, 0)
	for _, record := range m.records {
		if record.UserID != userID {
			continue
		}
		if record.Deleted && !includeDeleted {
			continue
		}
		out = append(out, record)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].OccurredAt.Before(out[j].OccurredAt) })
	return out, nil
}

func (m *mockRecordStorage) ListRecordsUpdatedSince(ctx context.Context, userID string, since time.Time) ([]*models.Record, error) {
	if m.listError != nil {
		return nil, m.listError
	}
	out := make([]*models.Record, 0)
	for _, record := range m.records {
		if record.UserID == userID && record.UpdatedAt.After(since) {
			out = append(out, record)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.Before(out[j].UpdatedAt) })
	return out, nil
}

// mockConflictStorage — хранилище конфликтов поверх карты
type mockConflictStorage struct {
	conflicts map[string]*models.Conflict // conflict id -> Conflict
	listError error
}

func (m *mockConflictStorage) CreateConflict(ctx context.Context, conflict *models.Conflict) (*models.Conflict, bool, error) {
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
	if m.listError != nil {
		return nil, m.listError
	}
	out := make([]*models.Conflict, 0)
	for _, conflict := range m.conflicts {
		if conflict.UserID != userID {
			continue
		}
		if status != "" && conflict.Status != status {
			continue
		}
		out = append(out, conflict)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DetectedAt.After(out[j].DetectedAt) })
	return out, nil
}

func (m *mockConflictStorage) ApplyResolution(
	ctx context.Context,
	conflictID, strategy string,
	resolvedAt time.Time,
	record *models.Record,
	expectedVersion int64,
) error {
	stored, ok := m.conflicts[conflictID]
	if !ok {
		return storage.ErrConflictNotFound
	}
	if stored.Status == models.ConflictStatusResolved {
		return storage.ErrConflictAlreadyResolved
	}
	stored.Status = models.ConflictStatusResolved
	stored.Strategy = strategy
	stored.ResolvedAt = &resolvedAt
	return nil
}

// mockDeltaStorage — журнал дельт поверх слайса
type mockDeltaStorage struct {
	deltas    []*models.Delta
	listError error
}

func (m *mockDeltaStorage) AppendDelta(ctx context.Context, delta *models.Delta) error {
	delta.Seq = int64(len(m.deltas) + 1)
	m.deltas = append(m.deltas, delta)
	return nil
}

func (m *mockDeltaStorage) ListDeltas(ctx context.Context, userID string, filter storage.DeltaFilter) ([]*models.Delta, error) {
	if m.listError != nil {
		return nil, m.listError
	}
	out := make([]*models.Delta, 0)
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
		out = append(out, delta)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Timestamp.Equal(out[j].Timestamp) {
			return out[i].Seq < out[j].Seq
		}
		return out[i].Timestamp.Before(out[j].Timestamp)
	})
	return out, nil
}

func (m *mockDeltaStorage) ListDeltasByEntity(ctx context.Context, userID, entityID string) ([]*models.Delta, error) {
	out := make([]*models.Delta, 0)
	for _, delta := range m.deltas {
		if delta.UserID == userID && delta.EntityID == entityID {
			out = append(out, delta)
		}
	}
	return out, nil
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
	out := make([]*models.Delta, 0)
	for _, delta := range m.deltas {
		if delta.CausedBy == deltaID {
			out = append(out, delta)
		}
	}
	return out, nil
}

// mockSnapshotStorage — пустое хранилище снапшотов: реплей истории
// в тестах handler'ов всегда идет с нуля по журналу дельт
type mockSnapshotStorage struct{}

func (m *mockSnapshotStorage) SaveSnapshot(ctx context.Context, snapshot *models.Snapshot) error {
	return nil
}

func (m *mockSnapshotStorage) GetSnapshot(ctx context.Context, userID string, takenAt time.Time) (*models.Snapshot, error) {
	return nil, storage.ErrSnapshotNotFound
}

func (m *mockSnapshotStorage) LatestSnapshotBefore(ctx context.Context, userID string, t time.Time) (*models.Snapshot, error) {
	return nil, storage.ErrSnapshotNotFound
}

func (m *mockSnapshotStorage) ListSnapshots(ctx context.Context, userID string) ([]*models.Snapshot, error) {
	return nil, nil
}

func (m *mockSnapshotStorage) DeleteSnapshot(ctx context.Context, userID string, takenAt time.Time) error {
	return nil
}

func (m *mockSnapshotStorage) DeleteSnapshotsOlderThan(ctx context.Context, userID, snapshotType string, cutoff time.Time) (int, error) {
	return 0, nil
}

// mockReconciler подменяет движок реконсиляции в тестах sync handler'а
type mockReconciler struct {
	reconcileFunc func(ctx context.Context, sub consensus.Submission) (*consensus.Outcome, error)
	submissions   []consensus.Submission
}

func (m *mockReconciler) Reconcile(ctx context.Context, sub consensus.Submission) (*consensus.Outcome, error) {
	m.submissions = append(m.submissions, sub)
	return m.reconcileFunc(ctx, sub)
}

// mockResolver подменяет разрешение конфликтов в тестах conflicts handler'а
type mockResolver struct {
	resolveFunc func(ctx context.Context, userID, conflictID, strategy string, overrides map[string]any) (*models.Record, error)
}

func (m *mockResolver) ResolveConflict(
	ctx context.Context,
	userID, conflictID, strategy string,
	overrides map[string]any,
) (*models.Record, error) {
	return m.resolveFunc(ctx, userID, conflictID, strategy, overrides)
}
