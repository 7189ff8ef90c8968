package storage

import (
	"context"
	"time"

	"github.com/iudanet/finkeeper/internal/models"
)

//go:generate moq -out records_mock.go . RecordStorage

// LocalRecord — запись в локальном кеше устройства. Pending выставляется
// при каждой офлайн-правке и снимается, когда сервер подтверждает приём:
// именно pending-записи уходят в push при синхронизации.
type LocalRecord struct {
	PulledAt time.Time      `json:"pulled_at"` // PulledAt когда запись последний раз приходила с сервера
	Record   *models.Record `json:"record"`    // Record сама запись вместе с часами
	Pending  bool           `json:"pending"`   // Pending есть локальные правки, не виденные сервером
}

// RecordStorage defines interface for the device-local record cache
type RecordStorage interface {
	// SaveRecord stores or replaces a local record
	SaveRecord(ctx context.Context, record *LocalRecord) error

	// GetRecord retrieves a local record by id
	// Returns ErrRecordNotFound if record doesn't exist
	GetRecord(ctx context.Context, id string) (*LocalRecord, error)

	// ListRecords returns all local records. Soft-deleted records are
	// included only when includeDeleted is set.
	ListRecords(ctx context.Context, includeDeleted bool) ([]*LocalRecord, error)

	// ListPending returns records with unsynchronized local edits
	ListPending(ctx context.Context) ([]*LocalRecord, error)

	// DeleteRecord removes a record from the cache entirely.
	// Soft delete is a record edit, not a cache removal.
	DeleteRecord(ctx context.Context, id string) error

	// Clear removes all records from the cache (full re-sync)
	Clear(ctx context.Context) error
}
