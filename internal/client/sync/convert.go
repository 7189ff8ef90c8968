package sync

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/iudanet/finkeeper/internal/models"
	"github.com/iudanet/finkeeper/internal/vclock"
	"github.com/iudanet/finkeeper/pkg/api"
)

// toSyncRecord конвертирует локальную запись в формат провода
func toSyncRecord(record *models.Record) api.SyncRecord {
	return api.SyncRecord{
		ID:             record.ID,
		Type:           record.Type,
		Category:       record.Category,
		Account:        record.Account,
		CounterAccount: record.CounterAccount,
		Note:           record.Note,
		Currency:       record.Currency,
		Amount:         record.Amount.String(),
		OccurredAt:     record.OccurredAt,
		Deleted:        record.Deleted,
		ContentHash:    record.ContentHash,
		Clock:          record.Clock.Copy(),
	}
}

// fromServerRecord конвертирует авторитетную серверную запись в локальную
func fromServerRecord(username string, in api.ServerRecord) (*models.Record, error) {
	amount, err := decimal.NewFromString(in.Amount)
	if err != nil {
		return nil, fmt.Errorf("invalid amount %q: %w", in.Amount, err)
	}

	return &models.Record{
		ID:             in.ID,
		UserID:         username,
		Type:           in.Type,
		Category:       in.Category,
		Account:        in.Account,
		CounterAccount: in.CounterAccount,
		Note:           in.Note,
		Currency:       in.Currency,
		Amount:         amount,
		OccurredAt:     in.OccurredAt,
		CreatedAt:      in.CreatedAt,
		UpdatedAt:      in.UpdatedAt,
		Deleted:        in.Deleted,
		ContentHash:    in.ContentHash,
		SyncStatus:     in.SyncStatus,
		ConflictCount:  in.ConflictCount,
		Version:        in.Version,
		Clock:          vclock.Clock(in.Clock).Copy(),
	}, nil
}
