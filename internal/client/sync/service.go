// Package sync реализует синхронизацию локального кеша устройства
// с сервером: push ожидающих правок, применение поштучных исходов
// согласования и pull серверных изменений по векторным часам.
package sync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	clientapi "github.com/iudanet/finkeeper/internal/client/api"
	"github.com/iudanet/finkeeper/internal/client/storage"
	"github.com/iudanet/finkeeper/internal/models"
	"github.com/iudanet/finkeeper/internal/vclock"
	"github.com/iudanet/finkeeper/pkg/api"
)

//go:generate moq -out service_mock.go . Service

// Service определяет интерфейс сервиса синхронизации
type Service interface {
	// Sync выполняет полный цикл push/pull с сервером
	Sync(ctx context.Context, accessToken, username, deviceID string) (*Result, error)

	// PendingCount возвращает число записей, ожидающих синхронизации
	PendingCount(ctx context.Context) (int, error)
}

// Result — итоги одного цикла синхронизации
type Result struct {
	Pushed    int // отправлено локальных правок
	Created   int // принято сервером как новые записи
	Updated   int // принято сервером как каузальные обновления
	Ignored   int // отвергнуто как устаревшие или избыточные
	Conflicts int // зафиксировано конфликтов
	Pulled    int // получено серверных изменений
	Applied   int // применено серверных изменений к локальному кешу
}

type service struct {
	apiClient clientapi.ClientAPI
	records   storage.RecordStorage
	metadata  storage.MetadataStorage
	logger    *slog.Logger
}

// NewService создает сервис синхронизации
func NewService(
	apiClient clientapi.ClientAPI,
	records storage.RecordStorage,
	metadata storage.MetadataStorage,
	logger *slog.Logger,
) Service {
	return &service{
		apiClient: apiClient,
		records:   records,
		metadata:  metadata,
		logger:    logger,
	}
}

// Sync выполняет полный цикл синхронизации:
//  1. push всех ожидающих локальных правок вместе с их часами;
//  2. применение поштучных исходов (create/update/ignore/conflict);
//  3. pull серверных изменений после последней синхронизации и слияние
//     их в локальный кеш по сравнению векторных часов.
func (s *service) Sync(ctx context.Context, accessToken, username, deviceID string) (*Result, error) {
	result := &Result{}

	lastSync, err := s.metadata.GetLastSync(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get last sync time: %w", err)
	}

	pending, err := s.records.ListPending(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list pending records: %w", err)
	}
	result.Pushed = len(pending)

	req := api.SyncRequest{
		DeviceID: deviceID,
		Since:    lastSync,
		Records:  make([]api.SyncRecord, 0, len(pending)),
	}
	for _, local := range pending {
		req.Records = append(req.Records, toSyncRecord(local.Record))
	}

	resp, err := s.apiClient.Sync(ctx, accessToken, req)
	if err != nil {
		return nil, fmt.Errorf("sync request failed: %w", err)
	}

	s.logger.Info("sync response received",
		slog.Int("results", len(resp.Results)),
		slog.Int("changed", len(resp.Changed)),
		slog.Int("conflicts", resp.Conflicts))

	if err := s.applyOutcomes(ctx, resp.Results, result); err != nil {
		return nil, err
	}

	if err := s.pullChanges(ctx, username, resp.Changed, result); err != nil {
		return nil, err
	}

	if err := s.metadata.SaveLastSync(ctx, resp.ServerTime); err != nil {
		// Некритично: следующий pull заберет чуть больше записей
		s.logger.Warn("failed to save last sync time", slog.Any("error", err))
	}

	s.logger.Info("sync completed",
		slog.Int("pushed", result.Pushed),
		slog.Int("created", result.Created),
		slog.Int("updated", result.Updated),
		slog.Int("ignored", result.Ignored),
		slog.Int("conflicts", result.Conflicts),
		slog.Int("pulled", result.Pulled),
		slog.Int("applied", result.Applied))

	return result, nil
}

// applyOutcomes применяет поштучные исходы push к локальному кешу
func (s *service) applyOutcomes(ctx context.Context, outcomes []api.SyncResult, result *Result) error {
	for _, outcome := range outcomes {
		local, err := s.records.GetRecord(ctx, outcome.RecordID)
		if err != nil {
			if errors.Is(err, storage.ErrRecordNotFound) {
				continue
			}
			return fmt.Errorf("failed to get local record %s: %w", outcome.RecordID, err)
		}

		switch outcome.Outcome {
		case "create", "update":
			// Сервер принял правку: запись больше не pending, часы
			// заменяются авторитетными (с продвинутым серверным актором)
			if outcome.Outcome == "create" {
				result.Created++
			} else {
				result.Updated++
			}
			local.Pending = false
			local.Record.SyncStatus = models.SyncStatusSynced
			if len(outcome.Clock) > 0 {
				local.Record.Clock = vclock.Clock(outcome.Clock).Copy()
			}

		case "ignore":
			// Устаревшая или избыточная правка: локальная версия будет
			// выровнена серверной из pull
			result.Ignored++
			local.Pending = false

		case "conflict":
			// Конфликт зафиксирован на сервере; локальная версия остается
			// до разрешения, повторный push не нужен
			result.Conflicts++
			local.Pending = false
			local.Record.SyncStatus = models.SyncStatusConflict

		default:
			s.logger.Warn("unknown sync outcome",
				slog.String("record_id", outcome.RecordID),
				slog.String("outcome", outcome.Outcome))
			continue
		}

		if err := s.records.SaveRecord(ctx, local); err != nil {
			return fmt.Errorf("failed to save record %s: %w", outcome.RecordID, err)
		}
	}

	return nil
}

// pullChanges сливает серверные изменения в локальный кеш. Побеждает
// каузально доминирующая версия. При конкурентных часах локальная
// версия сохраняется, если она ожидает отправки или помечена
// конфликтной: конфликт зафиксирован сервером и будет разрешен явно,
// а разрешенная версия каузально доминирует и придет следующим pull.
func (s *service) pullChanges(ctx context.Context, username string, changed []api.ServerRecord, result *Result) error {
	result.Pulled = len(changed)

	for _, serverRecord := range changed {
		record, err := fromServerRecord(username, serverRecord)
		if err != nil {
			return fmt.Errorf("invalid server record %s: %w", serverRecord.ID, err)
		}

		local, err := s.records.GetRecord(ctx, record.ID)
		if errors.Is(err, storage.ErrRecordNotFound) {
			if err := s.records.SaveRecord(ctx, &storage.LocalRecord{
				Record:   record,
				Pending:  false,
				PulledAt: time.Now().UTC(),
			}); err != nil {
				return fmt.Errorf("failed to save pulled record %s: %w", record.ID, err)
			}
			result.Applied++
			continue
		}
		if err != nil {
			return fmt.Errorf("failed to get local record %s: %w", record.ID, err)
		}

		relation := vclock.Compare(record.Clock, local.Record.Clock)
		contested := local.Pending || local.Record.SyncStatus == models.SyncStatusConflict
		adopt := relation == vclock.Greater || relation == vclock.Equal ||
			(relation == vclock.Concurrent && !contested)
		if !adopt {
			s.logger.Debug("keeping local version",
				slog.String("record_id", record.ID),
				slog.String("relation", relation.String()))
			continue
		}

		local.Record = record
		local.Pending = false
		local.PulledAt = time.Now().UTC()
		if err := s.records.SaveRecord(ctx, local); err != nil {
			return fmt.Errorf("failed to save pulled record %s: %w", record.ID, err)
		}
		result.Applied++
	}

	return nil
}

// PendingCount возвращает число записей, ожидающих синхронизации
func (s *service) PendingCount(ctx context.Context) (int, error) {
	pending, err := s.records.ListPending(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to list pending records: %w", err)
	}
	return len(pending), nil
}
