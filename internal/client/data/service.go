// Package data реализует локальные операции над финансовыми записями
// устройства. Каждая офлайн-правка продвигает компонент часов этого
// устройства и помечает запись как ожидающую синхронизации.
package data

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/iudanet/finkeeper/internal/client/storage"
	"github.com/iudanet/finkeeper/internal/integrity"
	"github.com/iudanet/finkeeper/internal/models"
	"github.com/iudanet/finkeeper/internal/validation"
	"github.com/iudanet/finkeeper/internal/vclock"
)

// Service управляет локальным кешем записей устройства
type Service struct {
	records storage.RecordStorage
	logger  *slog.Logger
}

// NewService создает сервис локальных записей
func NewService(records storage.RecordStorage, logger *slog.Logger) *Service {
	return &Service{
		records: records,
		logger:  logger,
	}
}

// AddInput — параметры новой финансовой записи
type AddInput struct {
	OccurredAt     time.Time
	Type           string
	Category       string
	Account        string
	CounterAccount string
	Note           string
	Currency       string
	Amount         decimal.Decimal
}

// Add создает новую запись в локальном кеше. Часы записи начинаются
// с {deviceID: 1}: первая правка, увиденная этим устройством.
func (s *Service) Add(ctx context.Context, username, deviceID string, in AddInput) (*models.Record, error) {
	occurredAt := in.OccurredAt
	if occurredAt.IsZero() {
		occurredAt = time.Now().UTC()
	}
	currency := in.Currency
	if currency == "" {
		currency = "USD"
	}

	record := &models.Record{
		ID:             uuid.New().String(),
		UserID:         username,
		Type:           in.Type,
		Category:       in.Category,
		Account:        in.Account,
		CounterAccount: in.CounterAccount,
		Note:           in.Note,
		Currency:       currency,
		Amount:         in.Amount,
		OccurredAt:     occurredAt,
		SyncStatus:     models.SyncStatusSynced,
		Clock:          vclock.New().Increment(deviceID),
	}

	if err := validation.ValidateRecord(record); err != nil {
		return nil, err
	}

	if err := s.rehash(record); err != nil {
		return nil, err
	}

	if err := s.records.SaveRecord(ctx, &storage.LocalRecord{Record: record, Pending: true}); err != nil {
		return nil, fmt.Errorf("failed to save record: %w", err)
	}

	s.logger.Debug("record added",
		slog.String("record_id", record.ID),
		slog.String("type", record.Type),
		slog.String("amount", record.Amount.String()))

	return record, nil
}

// Get возвращает запись локального кеша по идентификатору
func (s *Service) Get(ctx context.Context, id string) (*storage.LocalRecord, error) {
	return s.records.GetRecord(ctx, id)
}

// List возвращает записи локального кеша в порядке occurred_at
func (s *Service) List(ctx context.Context, includeDeleted bool) ([]*storage.LocalRecord, error) {
	return s.records.ListRecords(ctx, includeDeleted)
}

// Delete помечает запись удаленной. Это обычная правка: компонент часов
// устройства продвигается, запись уходит на сервер при следующем sync.
func (s *Service) Delete(ctx context.Context, deviceID, id string) error {
	local, err := s.records.GetRecord(ctx, id)
	if err != nil {
		return err
	}
	if local.Record.Deleted {
		return fmt.Errorf("record %s is already deleted", id)
	}

	record := local.Record.Clone()
	record.Deleted = true
	record.Clock = record.Clock.Increment(deviceID)
	if err := s.rehash(record); err != nil {
		return err
	}

	if err := s.records.SaveRecord(ctx, &storage.LocalRecord{Record: record, Pending: true}); err != nil {
		return fmt.Errorf("failed to save deleted record: %w", err)
	}

	return nil
}

// rehash пересчитывает контент-хеш записи после правки
func (s *Service) rehash(record *models.Record) error {
	hash, err := integrity.HashCanonical(integrity.DomainRecord, record.ContentFields())
	if err != nil {
		return fmt.Errorf("failed to hash record: %w", err)
	}
	record.ContentHash = hash
	return nil
}
