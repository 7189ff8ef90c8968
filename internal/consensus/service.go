// Package consensus реализует реконсиляцию конкурентных правок финансовых
// записей по векторным часам: каузально упорядоченные правки применяются,
// конкурентные фиксируются как конфликты с сохранением обеих версий.
package consensus

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/iudanet/finkeeper/internal/audit"
	"github.com/iudanet/finkeeper/internal/integrity"
	"github.com/iudanet/finkeeper/internal/models"
	"github.com/iudanet/finkeeper/internal/server/storage"
	"github.com/iudanet/finkeeper/internal/vclock"
)

// Action константы исхода реконсиляции
const (
	ActionCreate   = "create"
	ActionUpdate   = "update"
	ActionIgnore   = "ignore"
	ActionConflict = "conflict"
)

// Reason константы уточняют исход ignore
const (
	ReasonStaleUpdate     = "stale_update"
	ReasonRedundantUpdate = "redundant_update"
	ReasonUnknownRelation = "unknown_relation"
)

// ServerActor — компонент векторных часов, принадлежащий серверу.
// Каждая принятая сервером правка продвигает этот компонент.
const ServerActor = "server"

// maxCASRetries ограничивает перечитывание после проигранной гонки версий
const maxCASRetries = 3

var (
	// ErrContentHashMismatch indicates the client-declared content hash does
	// not match the hash recomputed over the submitted payload
	ErrContentHashMismatch = errors.New("content hash mismatch")

	// ErrRetriesExhausted indicates the reconcile CAS loop lost the version
	// race too many times in a row
	ErrRetriesExhausted = errors.New("reconcile retries exhausted")

	// ErrUnknownStrategy indicates an unsupported conflict resolution strategy
	ErrUnknownStrategy = errors.New("unknown resolution strategy")
)

// Submission — присланная устройством версия записи вместе с каузальным
// контекстом запроса.
type Submission struct {
	Record    *models.Record // клиентская версия записи, включая часы
	DeviceID  string         // актор, от имени которого пришла правка
	SessionID string
	RequestID string
}

// Outcome — результат реконсиляции одной присланной записи.
// Устаревшие, избыточные и конфликтующие правки — значения, а не ошибки:
// клиент должен узнать исход и продолжить синхронизацию остальных записей.
type Outcome struct {
	Action   string           // "create", "update", "ignore", "conflict"
	Reason   string           // уточнение для ignore, иначе пусто
	Record   *models.Record   // авторитетное состояние записи после реконсиляции
	Conflict *models.Conflict // заполнен при Action == "conflict"
}

// Service реализует движок реконсиляции поверх хранилищ записей,
// конфликтов и журнала дельт.
type Service struct {
	records   storage.RecordStorage
	conflicts storage.ConflictStorage
	deltas    storage.DeltaStorage
	logger    *slog.Logger
}

// NewService creates a reconciliation engine
func NewService(
	records storage.RecordStorage,
	conflicts storage.ConflictStorage,
	deltas storage.DeltaStorage,
	logger *slog.Logger,
) *Service {
	return &Service{
		records:   records,
		conflicts: conflicts,
		deltas:    deltas,
		logger:    logger,
	}
}

// Reconcile сравнивает присланную версию записи с серверной по векторным
// часам и применяет каузально упорядоченный исход:
//
//   - записи нет на сервере -> create;
//   - клиент каузально позади -> ignore/stale_update;
//   - клиент каузально впереди -> update через CAS по версии;
//   - часы конкурентны либо равны при разном содержимом -> conflict,
//     обе версии сохраняются;
//   - часы равны, содержимое совпадает -> ignore/redundant_update.
//
// Проигранная гонка версий приводит к перечитыванию и повторной
// реконсиляции, ограниченной maxCASRetries.
func (s *Service) Reconcile(ctx context.Context, sub Submission) (*Outcome, error) {
	if sub.Record == nil {
		return nil, fmt.Errorf("submission record is required")
	}

	client := sub.Record.Clone()

	// Проверяем заявленный клиентом контент-хеш пересчетом
	computed, err := integrity.HashCanonical(integrity.DomainRecord, client.ContentFields())
	if err != nil {
		return nil, fmt.Errorf("failed to hash submitted record: %w", err)
	}
	if client.ContentHash != "" && client.ContentHash != computed {
		return nil, fmt.Errorf("%w: declared %s, computed %s",
			ErrContentHashMismatch, client.ContentHash, computed)
	}
	client.ContentHash = computed

	for attempt := 0; attempt < maxCASRetries; attempt++ {
		server, err := s.records.GetRecord(ctx, client.UserID, client.ID)
		if errors.Is(err, storage.ErrRecordNotFound) {
			outcome, err := s.create(ctx, sub, client)
			if errors.Is(err, storage.ErrRecordAlreadyExists) {
				// Запись появилась между чтением и вставкой: реконсилируем заново
				continue
			}
			return outcome, err
		}
		if err != nil {
			return nil, err
		}

		relation := vclock.Compare(client.Clock, server.Clock)
		switch {
		case relation == vclock.Less:
			return &Outcome{Action: ActionIgnore, Reason: ReasonStaleUpdate, Record: server}, nil

		case relation == vclock.Greater:
			outcome, err := s.update(ctx, sub, client, server)
			if errors.Is(err, storage.ErrVersionMismatch) {
				continue
			}
			return outcome, err

		case relation == vclock.Equal && client.ContentHash == server.ContentHash:
			return &Outcome{Action: ActionIgnore, Reason: ReasonRedundantUpdate, Record: server}, nil

		case relation == vclock.Equal || relation == vclock.Concurrent:
			return s.conflict(ctx, sub, client, server, relation)

		default:
			s.logger.ErrorContext(ctx, "unreachable clock relation",
				slog.String("relation", relation.String()),
				slog.String("record_id", client.ID),
				slog.String("user_id", client.UserID))
			return &Outcome{Action: ActionIgnore, Reason: ReasonUnknownRelation, Record: server}, nil
		}
	}

	return nil, ErrRetriesExhausted
}

// create вставляет ранее неизвестную запись: серверный компонент часов
// продвигается в знак принятия правки.
func (s *Service) create(ctx context.Context, sub Submission, client *models.Record) (*Outcome, error) {
	now := time.Now().UTC()

	record := client.Clone()
	record.Clock = client.Clock.Increment(ServerActor)
	record.SyncStatus = models.SyncStatusSynced
	record.ConflictCount = 0
	record.Version = 1
	record.CreatedAt = now
	record.UpdatedAt = now

	if err := s.records.CreateRecord(ctx, record); err != nil {
		return nil, err
	}

	err := s.appendDelta(ctx, audit.DeltaInput{
		UserID:    record.UserID,
		EntityID:  record.ID,
		Operation: models.OpCreate,
		After:     record,
		Actor:     sub.DeviceID,
		Clock:     record.Clock,
		Timestamp: now,
		SessionID: sub.SessionID,
		RequestID: sub.RequestID,
	})
	if err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "record created",
		slog.String("record_id", record.ID),
		slog.String("user_id", record.UserID),
		slog.String("device_id", sub.DeviceID))

	return &Outcome{Action: ActionCreate, Record: record}, nil
}

// update применяет каузально доминирующую клиентскую версию через CAS.
func (s *Service) update(ctx context.Context, sub Submission, client, server *models.Record) (*Outcome, error) {
	now := time.Now().UTC()

	record := client.Clone()
	record.Clock = vclock.Merge(client.Clock, server.Clock).Increment(ServerActor)
	record.SyncStatus = models.SyncStatusSynced
	record.ConflictCount = server.ConflictCount
	record.CreatedAt = server.CreatedAt
	record.UpdatedAt = now

	if err := s.records.UpdateRecordCAS(ctx, record, server.Version); err != nil {
		return nil, err
	}

	op := deriveOperation(server, record)
	err := s.appendDelta(ctx, audit.DeltaInput{
		UserID:    record.UserID,
		EntityID:  record.ID,
		Operation: op,
		Before:    server,
		After:     record,
		Actor:     sub.DeviceID,
		Clock:     record.Clock,
		Timestamp: now,
		SessionID: sub.SessionID,
		RequestID: sub.RequestID,
	})
	if err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "record updated",
		slog.String("record_id", record.ID),
		slog.String("user_id", record.UserID),
		slog.String("device_id", sub.DeviceID),
		slog.String("operation", op))

	return &Outcome{Action: ActionUpdate, Record: record}, nil
}

// conflict фиксирует конкурентную правку: обе версии сохраняются целиком,
// авторитетное содержимое записи не меняется.
func (s *Service) conflict(
	ctx context.Context,
	sub Submission,
	client, server *models.Record,
	relation vclock.Relation,
) (*Outcome, error) {
	serverState, err := json.Marshal(server)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal server state: %w", err)
	}
	clientState, err := json.Marshal(client)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal client state: %w", err)
	}

	conflict := &models.Conflict{
		ID:          uuid.New().String(),
		RecordID:    server.ID,
		UserID:      server.UserID,
		DeviceID:    sub.DeviceID,
		ServerState: serverState,
		ClientState: clientState,
		ServerClock: server.Clock.Copy(),
		ClientClock: client.Clock.Copy(),
		ClientHash:  client.ContentHash,
		Status:      models.ConflictStatusOpen,
		DetectedAt:  time.Now().UTC(),
	}

	stored, created, err := s.conflicts.CreateConflict(ctx, conflict)
	if err != nil {
		return nil, err
	}

	if created {
		s.logger.WarnContext(ctx, "conflict detected",
			slog.String("conflict_id", stored.ID),
			slog.String("record_id", server.ID),
			slog.String("user_id", server.UserID),
			slog.String("device_id", sub.DeviceID),
			slog.String("relation", relation.String()))
	} else {
		s.logger.InfoContext(ctx, "conflict submission deduplicated",
			slog.String("conflict_id", stored.ID),
			slog.String("record_id", server.ID))
	}

	// Перечитываем запись: создание конфликта изменило её sync-метаданные
	fresh, err := s.records.GetRecord(ctx, server.UserID, server.ID)
	if err != nil {
		return nil, err
	}

	return &Outcome{Action: ActionConflict, Record: fresh, Conflict: stored}, nil
}

func (s *Service) appendDelta(ctx context.Context, in audit.DeltaInput) error {
	delta, err := audit.BuildDelta(in)
	if err != nil {
		return fmt.Errorf("failed to build delta: %w", err)
	}

	if err := s.deltas.AppendDelta(ctx, delta); err != nil {
		return fmt.Errorf("failed to append delta: %w", err)
	}

	return nil
}

// deriveOperation уточняет операцию журнала по переходу флага deleted
func deriveOperation(before, after *models.Record) string {
	switch {
	case !before.Deleted && after.Deleted:
		return models.OpDelete
	case before.Deleted && !after.Deleted:
		return models.OpRestore
	default:
		return models.OpUpdate
	}
}
