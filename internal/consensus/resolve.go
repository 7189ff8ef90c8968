package consensus

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/iudanet/finkeeper/internal/audit"
	"github.com/iudanet/finkeeper/internal/integrity"
	"github.com/iudanet/finkeeper/internal/models"
	"github.com/iudanet/finkeeper/internal/server/storage"
	"github.com/iudanet/finkeeper/internal/vclock"
)

// ResolveConflict применяет выбранную стратегию к открытому конфликту:
//
//   - client_wins: содержимое берется из сохраненной клиентской версии;
//   - server_wins: содержимое остается серверным;
//   - merge: серверная версия плюс переданные пополевые переопределения.
//
// Разрешение само по себе каузальное событие: часы обеих версий сливаются
// и серверный компонент продвигается. Запись возвращается в synced,
// счетчик конфликтов уменьшается (не ниже нуля), переход open -> resolved
// фиксируется ровно один раз. Проигранная гонка версий приводит
// к повторному чтению и пересборке, ограниченной maxCASRetries.
func (s *Service) ResolveConflict(
	ctx context.Context,
	userID, conflictID, strategy string,
	overrides map[string]any,
) (*models.Record, error) {
	switch strategy {
	case models.StrategyClientWins, models.StrategyServerWins, models.StrategyMerge:
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownStrategy, strategy)
	}

	conflict, err := s.conflicts.GetConflict(ctx, conflictID)
	if err != nil {
		return nil, err
	}
	if conflict.UserID != userID {
		// Чужие конфликты неотличимы от несуществующих
		return nil, storage.ErrConflictNotFound
	}
	if conflict.Status != models.ConflictStatusOpen {
		return nil, storage.ErrConflictAlreadyResolved
	}

	for attempt := 0; attempt < maxCASRetries; attempt++ {
		server, err := s.records.GetRecord(ctx, userID, conflict.RecordID)
		if err != nil {
			return nil, err
		}

		resolved, err := buildResolution(server, conflict, strategy, overrides)
		if err != nil {
			return nil, err
		}

		now := time.Now().UTC()
		resolved.UpdatedAt = now

		err = s.conflicts.ApplyResolution(ctx, conflictID, strategy, now, resolved, server.Version)
		if errors.Is(err, storage.ErrVersionMismatch) {
			continue
		}
		if err != nil {
			return nil, err
		}

		op := deriveOperation(server, resolved)
		err = s.appendDelta(ctx, audit.DeltaInput{
			UserID:    resolved.UserID,
			EntityID:  resolved.ID,
			Operation: op,
			Reason:    models.DeltaReasonConflictResolved,
			Before:    server,
			After:     resolved,
			Actor:     ServerActor,
			Clock:     resolved.Clock,
			Timestamp: now,
		})
		if err != nil {
			return nil, err
		}

		s.logger.InfoContext(ctx, "conflict resolved",
			slog.String("conflict_id", conflictID),
			slog.String("record_id", resolved.ID),
			slog.String("user_id", userID),
			slog.String("strategy", strategy))

		return resolved, nil
	}

	return nil, ErrRetriesExhausted
}

// buildResolution собирает итоговое состояние записи по стратегии.
// Не мутирует ни серверную версию, ни конфликт.
func buildResolution(
	server *models.Record,
	conflict *models.Conflict,
	strategy string,
	overrides map[string]any,
) (*models.Record, error) {
	resolved := server.Clone()

	switch strategy {
	case models.StrategyClientWins:
		clientRecord := &models.Record{}
		if err := json.Unmarshal(conflict.ClientState, clientRecord); err != nil {
			return nil, fmt.Errorf("failed to unmarshal client state: %w", err)
		}
		copyContent(resolved, clientRecord)

	case models.StrategyServerWins:
		// Содержимое остается серверным

	case models.StrategyMerge:
		if err := applyOverrides(resolved, overrides); err != nil {
			return nil, err
		}
	}

	hash, err := integrity.HashCanonical(integrity.DomainRecord, resolved.ContentFields())
	if err != nil {
		return nil, fmt.Errorf("failed to hash resolved record: %w", err)
	}
	resolved.ContentHash = hash

	resolved.Clock = vclock.Merge(server.Clock, conflict.ClientClock).Increment(ServerActor)
	resolved.SyncStatus = models.SyncStatusSynced

	count := server.ConflictCount - 1
	if count < 0 {
		count = 0
	}
	resolved.ConflictCount = count

	return resolved, nil
}

// copyContent переносит содержательные поля записи; sync-метаданные,
// часы и версия не затрагиваются.
func copyContent(dst, src *models.Record) {
	dst.Type = src.Type
	dst.Amount = src.Amount
	dst.Currency = src.Currency
	dst.Category = src.Category
	dst.Account = src.Account
	dst.CounterAccount = src.CounterAccount
	dst.Note = src.Note
	dst.OccurredAt = src.OccurredAt
	dst.Deleted = src.Deleted
}

// applyOverrides применяет пополевые переопределения стратегии merge.
// Ключи совпадают с содержательными полями записи; суммы передаются
// десятичными строками, float не принимается.
func applyOverrides(record *models.Record, overrides map[string]any) error {
	for field, value := range overrides {
		switch field {
		case "type", "currency", "category", "account", "counter_account", "note":
			v, ok := value.(string)
			if !ok {
				return fmt.Errorf("override %q must be a string", field)
			}
			setStringField(record, field, v)

		case "amount":
			v, ok := value.(string)
			if !ok {
				return fmt.Errorf("override %q must be a decimal string", field)
			}
			amount, err := decimal.NewFromString(v)
			if err != nil {
				return fmt.Errorf("override %q is not a valid decimal: %w", field, err)
			}
			record.Amount = amount

		case "occurred_at":
			v, ok := value.(string)
			if !ok {
				return fmt.Errorf("override %q must be an RFC3339 string", field)
			}
			at, err := time.Parse(time.RFC3339Nano, v)
			if err != nil {
				return fmt.Errorf("override %q is not a valid timestamp: %w", field, err)
			}
			record.OccurredAt = at

		case "deleted":
			v, ok := value.(bool)
			if !ok {
				return fmt.Errorf("override %q must be a boolean", field)
			}
			record.Deleted = v

		default:
			return fmt.Errorf("unknown override field %q", field)
		}
	}

	return nil
}

func setStringField(record *models.Record, field, value string) {
	switch field {
	case "type":
		record.Type = value
	case "currency":
		record.Currency = value
	case "category":
		record.Category = value
	case "account":
		record.Account = value
	case "counter_account":
		record.CounterAccount = value
	case "note":
		record.Note = value
	}
}
