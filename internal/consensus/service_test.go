package consensus

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iudanet/finkeeper/internal/integrity"
	"github.com/iudanet/finkeeper/internal/models"
	"github.com/iudanet/finkeeper/internal/server/storage"
	"github.com/iudanet/finkeeper/internal/vclock"
)

func setupTestService() (*Service, *mockRecordStorage, *mockConflictStorage, *mockDeltaStorage) {
	records := newMockRecordStorage()
	conflicts := newMockConflictStorage(records)
	deltas := newMockDeltaStorage()
	svc := NewService(records, conflicts, deltas, setupTestLogger())
	return svc, records, conflicts, deltas
}

// testRecord возвращает клиентскую версию записи с валидным контент-хешем
func testRecord(t *testing.T, userID string) *models.Record {
	t.Helper()

	record := &models.Record{
		ID:         uuid.New().String(),
		UserID:     userID,
		Type:       models.RecordTypeExpense,
		Amount:     decimal.RequireFromString("125.50"),
		Currency:   "EUR",
		Category:   "groceries",
		Account:    "checking",
		Note:       "weekly shopping",
		OccurredAt: time.Date(2024, 3, 10, 14, 30, 0, 0, time.UTC),
		Clock:      vclock.Clock{"device-1": 1},
	}
	rehash(t, record)
	return record
}

func rehash(t *testing.T, record *models.Record) {
	t.Helper()

	hash, err := integrity.HashCanonical(integrity.DomainRecord, record.ContentFields())
	require.NoError(t, err)
	record.ContentHash = hash
}

// seedServer кладет в хранилище серверную версию записи и возвращает её
func seedServer(records *mockRecordStorage, client *models.Record, clock vclock.Clock) *models.Record {
	server := client.Clone()
	server.Clock = clock.Copy()
	server.SyncStatus = models.SyncStatusSynced
	server.Version = 1
	server.CreatedAt = time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	server.UpdatedAt = server.CreatedAt
	records.put(server)
	return server
}

func TestReconcile_CreateNewRecord(t *testing.T) {
	ctx := context.Background()
	svc, records, _, deltas := setupTestService()

	client := testRecord(t, "user-1")

	outcome, err := svc.Reconcile(ctx, Submission{
		Record:    client,
		DeviceID:  "device-1",
		SessionID: "sess-1",
		RequestID: "req-1",
	})
	require.NoError(t, err)

	assert.Equal(t, ActionCreate, outcome.Action)
	assert.Empty(t, outcome.Reason)
	assert.Nil(t, outcome.Conflict)
	assert.Equal(t, vclock.Clock{"device-1": 1, ServerActor: 1}, outcome.Record.Clock)
	assert.Equal(t, int64(1), outcome.Record.Version)
	assert.Equal(t, models.SyncStatusSynced, outcome.Record.SyncStatus)

	stored, err := records.GetRecord(ctx, "user-1", client.ID)
	require.NoError(t, err)
	assert.Equal(t, outcome.Record.Clock, stored.Clock)
	assert.Equal(t, "weekly shopping", stored.Note)

	delta := deltas.lastDelta()
	require.NotNil(t, delta)
	assert.Equal(t, models.OpCreate, delta.Operation)
	assert.Equal(t, client.ID, delta.EntityID)
	assert.Equal(t, "device-1", delta.Actor)
	assert.Equal(t, "sess-1", delta.SessionID)
	assert.Equal(t, "req-1", delta.RequestID)
	assert.Empty(t, delta.Reason)
	assert.Nil(t, delta.Before)
	assert.NotNil(t, delta.After)
	assert.True(t, delta.Impact.BalanceDelta.Equal(decimal.RequireFromString("-125.50")))
	assert.True(t, delta.Impact.ExpenseDelta.Equal(decimal.RequireFromString("125.50")))
}

func TestReconcile_NilRecord(t *testing.T) {
	ctx := context.Background()
	svc, _, _, _ := setupTestService()

	outcome, err := svc.Reconcile(ctx, Submission{DeviceID: "device-1"})
	assert.Error(t, err)
	assert.Nil(t, outcome)
}

func TestReconcile_ContentHashMismatch(t *testing.T) {
	ctx := context.Background()
	svc, records, _, deltas := setupTestService()

	client := testRecord(t, "user-1")
	client.ContentHash = "deadbeef"

	outcome, err := svc.Reconcile(ctx, Submission{Record: client, DeviceID: "device-1"})
	assert.ErrorIs(t, err, ErrContentHashMismatch)
	assert.Nil(t, outcome)

	_, err = records.GetRecord(ctx, "user-1", client.ID)
	assert.ErrorIs(t, err, storage.ErrRecordNotFound)
	assert.Nil(t, deltas.lastDelta())
}

func TestReconcile_StaleUpdate(t *testing.T) {
	ctx := context.Background()
	svc, records, _, deltas := setupTestService()

	client := testRecord(t, "user-1")
	server := seedServer(records, client, vclock.Clock{"device-1": 2, ServerActor: 1})
	server.Note = "newer server note"
	rehash(t, server)
	records.put(server)

	// Клиент каузально позади сервера
	client.Clock = vclock.Clock{"device-1": 1}
	client.Note = "old client note"
	rehash(t, client)

	outcome, err := svc.Reconcile(ctx, Submission{Record: client, DeviceID: "device-1"})
	require.NoError(t, err)

	assert.Equal(t, ActionIgnore, outcome.Action)
	assert.Equal(t, ReasonStaleUpdate, outcome.Reason)
	assert.Equal(t, vclock.Clock{"device-1": 2, ServerActor: 1}, outcome.Record.Clock)

	stored, err := records.GetRecord(ctx, "user-1", client.ID)
	require.NoError(t, err)
	assert.Equal(t, "newer server note", stored.Note)
	assert.Equal(t, int64(1), stored.Version)
	assert.Nil(t, deltas.lastDelta())
}

func TestReconcile_FastForwardUpdate(t *testing.T) {
	ctx := context.Background()
	svc, records, _, deltas := setupTestService()

	client := testRecord(t, "user-1")
	server := seedServer(records, client, vclock.Clock{"device-1": 1, ServerActor: 1})

	// Клиент каузально впереди: видел серверную версию и правил поверх
	client.Clock = vclock.Clock{"device-1": 2, ServerActor: 1}
	client.Note = "updated note"
	rehash(t, client)

	outcome, err := svc.Reconcile(ctx, Submission{Record: client, DeviceID: "device-1"})
	require.NoError(t, err)

	assert.Equal(t, ActionUpdate, outcome.Action)
	assert.Equal(t, vclock.Clock{"device-1": 2, ServerActor: 2}, outcome.Record.Clock)
	assert.Equal(t, int64(2), outcome.Record.Version)
	assert.Equal(t, models.SyncStatusSynced, outcome.Record.SyncStatus)
	assert.Equal(t, server.CreatedAt, outcome.Record.CreatedAt)

	stored, err := records.GetRecord(ctx, "user-1", client.ID)
	require.NoError(t, err)
	assert.Equal(t, "updated note", stored.Note)
	assert.Equal(t, int64(2), stored.Version)

	delta := deltas.lastDelta()
	require.NotNil(t, delta)
	assert.Equal(t, models.OpUpdate, delta.Operation)
	assert.NotNil(t, delta.Before)
	assert.NotNil(t, delta.After)

	var found bool
	for _, change := range delta.Changes {
		if change.Field == "note" {
			found = true
			assert.Equal(t, "weekly shopping", change.Old)
			assert.Equal(t, "updated note", change.New)
		}
	}
	assert.True(t, found, "expected a note field change")
}

func TestReconcile_RedundantUpdate(t *testing.T) {
	ctx := context.Background()
	svc, records, _, deltas := setupTestService()

	client := testRecord(t, "user-1")
	seedServer(records, client, vclock.Clock{"device-1": 1, ServerActor: 1})

	// Повтор доставки: часы и содержимое совпадают с серверными
	client.Clock = vclock.Clock{"device-1": 1, ServerActor: 1}

	outcome, err := svc.Reconcile(ctx, Submission{Record: client, DeviceID: "device-1"})
	require.NoError(t, err)

	assert.Equal(t, ActionIgnore, outcome.Action)
	assert.Equal(t, ReasonRedundantUpdate, outcome.Reason)
	assert.Nil(t, deltas.lastDelta())

	stored, err := records.GetRecord(ctx, "user-1", client.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stored.Version)
}

func TestReconcile_ConcurrentConflict(t *testing.T) {
	ctx := context.Background()
	svc, records, conflicts, deltas := setupTestService()

	client := testRecord(t, "user-1")
	seedServer(records, client, vclock.Clock{"device-1": 1, ServerActor: 1})

	// Правка с другого устройства, не видевшего серверную версию
	client.Clock = vclock.Clock{"device-2": 1}
	client.Note = "from device 2"
	rehash(t, client)

	outcome, err := svc.Reconcile(ctx, Submission{Record: client, DeviceID: "device-2"})
	require.NoError(t, err)

	assert.Equal(t, ActionConflict, outcome.Action)
	require.NotNil(t, outcome.Conflict)
	assert.Equal(t, models.ConflictStatusOpen, outcome.Conflict.Status)
	assert.Equal(t, client.ContentHash, outcome.Conflict.ClientHash)
	assert.Equal(t, "device-2", outcome.Conflict.DeviceID)
	assert.Equal(t, vclock.Clock{"device-1": 1, ServerActor: 1}, outcome.Conflict.ServerClock)
	assert.Equal(t, vclock.Clock{"device-2": 1}, outcome.Conflict.ClientClock)

	// Обе версии сохранены целиком
	var serverState, clientState models.Record
	require.NoError(t, json.Unmarshal(outcome.Conflict.ServerState, &serverState))
	require.NoError(t, json.Unmarshal(outcome.Conflict.ClientState, &clientState))
	assert.Equal(t, "weekly shopping", serverState.Note)
	assert.Equal(t, "from device 2", clientState.Note)

	// Авторитетное содержимое не изменилось, изменились только sync-метаданные
	stored, err := records.GetRecord(ctx, "user-1", client.ID)
	require.NoError(t, err)
	assert.Equal(t, "weekly shopping", stored.Note)
	assert.Equal(t, models.SyncStatusConflict, stored.SyncStatus)
	assert.Equal(t, 1, stored.ConflictCount)
	assert.Equal(t, int64(2), stored.Version)
	assert.Equal(t, stored.SyncStatus, outcome.Record.SyncStatus)

	// Конфликт не меняет авторитетное состояние, дельта не пишется
	assert.Nil(t, deltas.lastDelta())
	assert.Len(t, conflicts.conflicts, 1)
}

func TestReconcile_EqualClocksDivergentContent(t *testing.T) {
	ctx := context.Background()
	svc, records, _, _ := setupTestService()

	client := testRecord(t, "user-1")
	seedServer(records, client, vclock.Clock{"device-1": 1, ServerActor: 1})

	// Часы равны, но содержимое разошлось: повреждение или подмена
	client.Clock = vclock.Clock{"device-1": 1, ServerActor: 1}
	client.Note = "silently diverged"
	rehash(t, client)

	outcome, err := svc.Reconcile(ctx, Submission{Record: client, DeviceID: "device-1"})
	require.NoError(t, err)

	assert.Equal(t, ActionConflict, outcome.Action)
	require.NotNil(t, outcome.Conflict)
	assert.Equal(t, models.ConflictStatusOpen, outcome.Conflict.Status)

	stored, err := records.GetRecord(ctx, "user-1", client.ID)
	require.NoError(t, err)
	assert.Equal(t, "weekly shopping", stored.Note)
}

func TestReconcile_ConflictDeduplicated(t *testing.T) {
	ctx := context.Background()
	svc, records, conflicts, _ := setupTestService()

	client := testRecord(t, "user-1")
	seedServer(records, client, vclock.Clock{"device-1": 1, ServerActor: 1})

	client.Clock = vclock.Clock{"device-2": 1}
	client.Note = "from device 2"
	rehash(t, client)

	sub := Submission{Record: client, DeviceID: "device-2"}

	first, err := svc.Reconcile(ctx, sub)
	require.NoError(t, err)
	require.NotNil(t, first.Conflict)

	// Ретрай той же правки не плодит дубликаты и не трогает счетчики
	second, err := svc.Reconcile(ctx, sub)
	require.NoError(t, err)
	require.NotNil(t, second.Conflict)

	assert.Equal(t, first.Conflict.ID, second.Conflict.ID)
	assert.Len(t, conflicts.conflicts, 1)

	stored, err := records.GetRecord(ctx, "user-1", client.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, stored.ConflictCount)
	assert.Equal(t, int64(2), stored.Version)
}

func TestReconcile_CASRetrySucceeds(t *testing.T) {
	ctx := context.Background()
	svc, records, _, deltas := setupTestService()

	client := testRecord(t, "user-1")
	seedServer(records, client, vclock.Clock{"device-1": 1, ServerActor: 1})

	client.Clock = vclock.Clock{"device-1": 2, ServerActor: 1}
	client.Note = "updated note"
	rehash(t, client)

	// Две проигранные гонки версий, третья попытка проходит
	records.failCAS = 2

	outcome, err := svc.Reconcile(ctx, Submission{Record: client, DeviceID: "device-1"})
	require.NoError(t, err)

	assert.Equal(t, ActionUpdate, outcome.Action)
	assert.Len(t, deltas.deltas, 1)
}

func TestReconcile_RetriesExhausted(t *testing.T) {
	ctx := context.Background()
	svc, records, _, deltas := setupTestService()

	client := testRecord(t, "user-1")
	seedServer(records, client, vclock.Clock{"device-1": 1, ServerActor: 1})

	client.Clock = vclock.Clock{"device-1": 2, ServerActor: 1}
	client.Note = "updated note"
	rehash(t, client)

	records.failCAS = maxCASRetries

	outcome, err := svc.Reconcile(ctx, Submission{Record: client, DeviceID: "device-1"})
	assert.ErrorIs(t, err, ErrRetriesExhausted)
	assert.Nil(t, outcome)
	assert.Nil(t, deltas.lastDelta())

	stored, err := records.GetRecord(ctx, "user-1", client.ID)
	require.NoError(t, err)
	assert.Equal(t, "weekly shopping", stored.Note)
	assert.Equal(t, int64(1), stored.Version)
}

func TestReconcile_CreateRace(t *testing.T) {
	ctx := context.Background()
	svc, records, conflicts, _ := setupTestService()

	client := testRecord(t, "user-1")
	client.Clock = vclock.Clock{"device-1": 1}
	rehash(t, client)

	// Конкурирующая вставка с другого устройства между чтением и созданием
	records.createHook = func(ctx context.Context, record *models.Record) error {
		records.createHook = nil

		competing := record.Clone()
		competing.Note = "raced in first"
		competing.Clock = vclock.Clock{"device-2": 1, ServerActor: 1}
		competing.SyncStatus = models.SyncStatusSynced
		competing.Version = 1
		rehash(t, competing)
		records.put(competing)

		return storage.ErrRecordAlreadyExists
	}

	outcome, err := svc.Reconcile(ctx, Submission{Record: client, DeviceID: "device-1"})
	require.NoError(t, err)

	// Повторная реконсиляция видит конкурентную запись и фиксирует конфликт
	assert.Equal(t, ActionConflict, outcome.Action)
	require.NotNil(t, outcome.Conflict)
	assert.Len(t, conflicts.conflicts, 1)

	stored, err := records.GetRecord(ctx, "user-1", client.ID)
	require.NoError(t, err)
	assert.Equal(t, "raced in first", stored.Note)
}

func TestReconcile_DeleteAndRestoreOperations(t *testing.T) {
	tests := []struct {
		name          string
		serverDeleted bool
		clientDeleted bool
		wantOperation string
	}{
		{
			name:          "delete produces delete delta",
			serverDeleted: false,
			clientDeleted: true,
			wantOperation: models.OpDelete,
		},
		{
			name:          "restore produces restore delta",
			serverDeleted: true,
			clientDeleted: false,
			wantOperation: models.OpRestore,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			svc, records, _, deltas := setupTestService()

			client := testRecord(t, "user-1")
			server := seedServer(records, client, vclock.Clock{"device-1": 1, ServerActor: 1})
			server.Deleted = tt.serverDeleted
			rehash(t, server)
			records.put(server)

			client.Clock = vclock.Clock{"device-1": 2, ServerActor: 1}
			client.Deleted = tt.clientDeleted
			rehash(t, client)

			outcome, err := svc.Reconcile(ctx, Submission{Record: client, DeviceID: "device-1"})
			require.NoError(t, err)
			require.Equal(t, ActionUpdate, outcome.Action)

			delta := deltas.lastDelta()
			require.NotNil(t, delta)
			assert.Equal(t, tt.wantOperation, delta.Operation)

			if tt.wantOperation == models.OpDelete {
				// Удаление расхода возвращает деньги в баланс
				assert.True(t, delta.Impact.BalanceDelta.Equal(decimal.RequireFromString("125.50")))
				assert.True(t, delta.Impact.ExpenseDelta.Equal(decimal.RequireFromString("-125.50")))
			} else {
				assert.True(t, delta.Impact.BalanceDelta.Equal(decimal.RequireFromString("-125.50")))
				assert.True(t, delta.Impact.ExpenseDelta.Equal(decimal.RequireFromString("125.50")))
			}
		})
	}
}
