package audit

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/iudanet/finkeeper/internal/models"
	"github.com/iudanet/finkeeper/internal/vclock"
)

// DeltaInput — параметры фиксируемого перехода состояния записи.
type DeltaInput struct {
	Timestamp time.Time
	Clock     vclock.Clock
	Before    *models.Record // nil для create
	After     *models.Record // nil для delete допустим, обычно soft-deleted запись
	UserID    string
	EntityID  string
	Operation string
	Reason    string // причина сверх операции, например conflict_resolved
	Actor     string
	SessionID string
	RequestID string
	CausedBy  string
}

// BuildDelta собирает дельту журнала для одного перехода состояния
// транзакции: сериализует before/after, вычисляет пополевые изменения
// и финансовое влияние. Дельта получает собственный UUID; глобальный
// порядковый номер назначит хранилище при вставке.
func BuildDelta(in DeltaInput) (*models.Delta, error) {
	if in.Operation == "" {
		return nil, fmt.Errorf("operation is required")
	}

	var before, after json.RawMessage
	if in.Before != nil {
		raw, err := json.Marshal(in.Before)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal before state: %w", err)
		}
		before = raw
	}
	if in.After != nil {
		raw, err := json.Marshal(in.After)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal after state: %w", err)
		}
		after = raw
	}

	return &models.Delta{
		ID:         uuid.New().String(),
		UserID:     in.UserID,
		EntityType: models.EntityTransaction,
		EntityID:   in.EntityID,
		Operation:  in.Operation,
		Reason:     in.Reason,
		Before:     before,
		After:      after,
		Changes:    ChangedFields(in.Before, in.After),
		Impact:     ComputeImpact(in.Before, in.After),
		Actor:      in.Actor,
		Clock:      in.Clock.Copy(),
		SessionID:  in.SessionID,
		RequestID:  in.RequestID,
		CausedBy:   in.CausedBy,
		Timestamp:  in.Timestamp,
	}, nil
}

// Reverse строит обратную дельту: производное значение, отменяющее эффект
// исходной. Before/after меняются местами, влияние берется с обратным знаком,
// операция инвертируется (reverse от delete — это restore: счетчик транзакций
// должен вернуться, а не уйти дальше в минус).
//
// Обратная дельта — вычисленное значение, она не попадает в журнал
// и не изменяет исходную запись. CausedBy указывает на исходную дельту.
func Reverse(d *models.Delta) (*models.Delta, error) {
	var op string
	switch d.Operation {
	case models.OpCreate:
		op = models.OpDelete
	case models.OpDelete:
		op = models.OpRestore
	case models.OpRestore:
		op = models.OpDelete
	case models.OpUpdate:
		op = models.OpUpdate
	default:
		return nil, fmt.Errorf("cannot reverse unknown operation %q", d.Operation)
	}

	changes := make([]models.FieldChange, len(d.Changes))
	for i, change := range d.Changes {
		changes[i] = models.FieldChange{
			Field: change.Field,
			Old:   change.New,
			New:   change.Old,
		}
	}

	return &models.Delta{
		UserID:     d.UserID,
		EntityType: d.EntityType,
		EntityID:   d.EntityID,
		Operation:  op,
		Before:     append(json.RawMessage(nil), d.After...),
		After:      append(json.RawMessage(nil), d.Before...),
		Changes:    changes,
		Impact:     NegateImpact(d.Impact),
		Actor:      d.Actor,
		Clock:      d.Clock.Copy(),
		CausedBy:   d.ID,
		Timestamp:  d.Timestamp,
	}, nil
}
