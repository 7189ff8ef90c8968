package handlers

import (
	"fmt"
	"sort"

	"github.com/shopspring/decimal"

	"github.com/iudanet/finkeeper/internal/models"
	"github.com/iudanet/finkeeper/internal/replay"
	"github.com/iudanet/finkeeper/internal/vclock"
	"github.com/iudanet/finkeeper/pkg/api"
)

// recordFromSync собирает доменную запись из присланной по проводу.
// Сумма парсится из десятичной строки, владелец берется из токена,
// а не из тела запроса.
func recordFromSync(userID string, in api.SyncRecord) (*models.Record, error) {
	amount, err := decimal.NewFromString(in.Amount)
	if err != nil {
		return nil, fmt.Errorf("invalid amount %q: %w", in.Amount, err)
	}

	return &models.Record{
		ID:             in.ID,
		UserID:         userID,
		Type:           in.Type,
		Category:       in.Category,
		Account:        in.Account,
		CounterAccount: in.CounterAccount,
		Note:           in.Note,
		Currency:       in.Currency,
		Amount:         amount,
		OccurredAt:     in.OccurredAt,
		Deleted:        in.Deleted,
		ContentHash:    in.ContentHash,
		Clock:          vclock.Clock(in.Clock).Copy(),
	}, nil
}

// recordToAPI конвертирует авторитетную серверную запись в формат провода
func recordToAPI(record *models.Record) api.ServerRecord {
	return api.ServerRecord{
		SyncRecord: api.SyncRecord{
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
		},
		CreatedAt:     record.CreatedAt,
		UpdatedAt:     record.UpdatedAt,
		SyncStatus:    record.SyncStatus,
		ConflictCount: record.ConflictCount,
		Version:       record.Version,
	}
}

func recordsToAPI(records []*models.Record) []api.ServerRecord {
	out := make([]api.ServerRecord, 0, len(records))
	for _, record := range records {
		out = append(out, recordToAPI(record))
	}
	return out
}

func conflictToAPI(conflict *models.Conflict) api.Conflict {
	return api.Conflict{
		ID:          conflict.ID,
		RecordID:    conflict.RecordID,
		DeviceID:    conflict.DeviceID,
		Status:      conflict.Status,
		Strategy:    conflict.Strategy,
		DetectedAt:  conflict.DetectedAt,
		ResolvedAt:  conflict.ResolvedAt,
		ServerClock: conflict.ServerClock.Copy(),
		ClientClock: conflict.ClientClock.Copy(),
		ServerState: conflict.ServerState,
		ClientState: conflict.ClientState,
	}
}

func decimalMapToAPI(in map[string]decimal.Decimal) map[string]string {
	out := make(map[string]string, len(in))
	for key, value := range in {
		out[key] = value.String()
	}
	return out
}

// stateToAPI конвертирует вычисленное состояние в формат провода.
// Записи отдаются отсортированными по occurred_at: карта состояния
// не имеет порядка, а клиенту нужен стабильный вывод.
func stateToAPI(state *models.State, meta *replay.Metadata) api.StateResponse {
	resp := api.StateResponse{
		AsOf:             state.AsOf,
		Balance:          state.Balance.String(),
		TotalIncome:      state.TotalIncome.String(),
		TotalExpenses:    state.TotalExpenses.String(),
		TransactionCount: state.TransactionCount,
		Accounts:         decimalMapToAPI(state.Accounts),
		Categories:       decimalMapToAPI(state.Categories),
		Budgets:          make([]api.BudgetState, 0, len(state.Budgets)),
		Goals:            make([]api.GoalState, 0, len(state.Goals)),
	}

	for _, budget := range state.Budgets {
		resp.Budgets = append(resp.Budgets, api.BudgetState{
			ID:       budget.ID,
			Category: budget.Category,
			Limit:    budget.Limit.String(),
			Spent:    budget.Spent.String(),
		})
	}

	for _, goal := range state.Goals {
		resp.Goals = append(resp.Goals, api.GoalState{
			ID:     goal.ID,
			Name:   goal.Name,
			Target: goal.Target.String(),
			Saved:  goal.Saved.String(),
		})
	}

	if len(state.Records) > 0 {
		records := make([]*models.Record, 0, len(state.Records))
		for _, record := range state.Records {
			records = append(records, record)
		}
		sort.Slice(records, func(i, j int) bool {
			if !records[i].OccurredAt.Equal(records[j].OccurredAt) {
				return records[i].OccurredAt.Before(records[j].OccurredAt)
			}
			return records[i].ID < records[j].ID
		})
		resp.Records = recordsToAPI(records)
	}

	if meta != nil {
		resp.Replay = &api.ReplayInfo{
			SnapshotTakenAt: meta.SnapshotTakenAt,
			SnapshotID:      meta.SnapshotID,
			SnapshotType:    meta.SnapshotType,
			DeltasApplied:   meta.DeltasApplied,
			DurationMS:      meta.Duration.Milliseconds(),
		}
	}

	return resp
}

func diffToAPI(diff *replay.StateDiff, summary string) api.DiffResponse {
	return api.DiffResponse{
		From:          diff.From,
		To:            diff.To,
		BalanceDelta:  diff.BalanceDelta.String(),
		IncomeDelta:   diff.IncomeDelta.String(),
		ExpensesDelta: diff.ExpensesDelta.String(),
		CountDelta:    diff.CountDelta,
		ByCategory:    decimalMapToAPI(diff.ByCategory),
		Summary:       summary,
	}
}

func impactToAPI(impact models.FinancialImpact) api.Impact {
	return api.Impact{
		BalanceDelta:   impact.BalanceDelta.String(),
		IncomeDelta:    impact.IncomeDelta.String(),
		ExpenseDelta:   impact.ExpenseDelta.String(),
		AccountDeltas:  decimalMapToAPI(impact.AccountDeltas),
		CategoryDeltas: decimalMapToAPI(impact.CategoryDeltas),
	}
}

// deltaToTimeline конвертирует дельту журнала в элемент таймлайна
func deltaToTimeline(delta *models.Delta, text string) api.TimelineEntry {
	changes := make([]api.FieldChange, 0, len(delta.Changes))
	for _, change := range delta.Changes {
		changes = append(changes, api.FieldChange{
			Field: change.Field,
			Old:   change.Old,
			New:   change.New,
		})
	}

	return api.TimelineEntry{
		ID:         delta.ID,
		EntityType: delta.EntityType,
		EntityID:   delta.EntityID,
		Operation:  delta.Operation,
		Reason:     delta.Reason,
		Timestamp:  delta.Timestamp,
		Actor:      delta.Actor,
		Clock:      delta.Clock.Copy(),
		Changes:    changes,
		Impact:     impactToAPI(delta.Impact),
		CausedBy:   delta.CausedBy,
		Text:       text,
	}
}
