package replay

import (
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/iudanet/finkeeper/internal/models"
)

// applyDelta складывает одну дельту в состояние. Свертка детерминирована:
// одна и та же последовательность дельт всегда дает одно и то же состояние.
func applyDelta(state *models.State, delta *models.Delta, includeRecords bool) error {
	state.Balance = state.Balance.Add(delta.Impact.BalanceDelta)
	state.TotalIncome = state.TotalIncome.Add(delta.Impact.IncomeDelta)
	state.TotalExpenses = state.TotalExpenses.Add(delta.Impact.ExpenseDelta)

	for account, change := range delta.Impact.AccountDeltas {
		accumulate(state.Accounts, account, change)
	}
	for category, change := range delta.Impact.CategoryDeltas {
		accumulate(state.Categories, category, change)
	}

	switch delta.EntityType {
	case models.EntityTransaction:
		applyCount(state, delta)
		if includeRecords {
			if err := applyRecord(state, delta); err != nil {
				return err
			}
		}
	case models.EntityBudget:
		if err := applyBudget(state, delta); err != nil {
			return err
		}
	case models.EntityGoal:
		if err := applyGoal(state, delta); err != nil {
			return err
		}
	}

	return nil
}

// accumulate прибавляет изменение к ключу справочника, убирая обнулившиеся
// позиции: отсутствие ключа и ноль эквивалентны.
func accumulate(m map[string]decimal.Decimal, key string, change decimal.Decimal) {
	if key == "" {
		return
	}
	total := m[key].Add(change)
	if total.IsZero() {
		delete(m, key)
		return
	}
	m[key] = total
}

// applyCount ведет счетчик транзакций: create и restore добавляют, delete
// убирает не ниже нуля, update не меняет.
func applyCount(state *models.State, delta *models.Delta) {
	switch delta.Operation {
	case models.OpCreate, models.OpRestore:
		state.TransactionCount++
	case models.OpDelete:
		if state.TransactionCount > 0 {
			state.TransactionCount--
		}
	}
}

// applyRecord ведет карту записей состояния по after-снимкам дельт.
// Удаленные записи из карты убираются: карта отражает действующие
// записи на момент даты.
func applyRecord(state *models.State, delta *models.Delta) error {
	if delta.EntityType != models.EntityTransaction {
		return nil
	}

	if delta.Operation == models.OpDelete {
		delete(state.Records, delta.EntityID)
		return nil
	}
	if len(delta.After) == 0 {
		return nil
	}

	record := &models.Record{}
	if err := json.Unmarshal(delta.After, record); err != nil {
		return fmt.Errorf("failed to unmarshal record from delta %s: %w", delta.ID, err)
	}

	if state.Records == nil {
		state.Records = make(map[string]*models.Record)
	}
	state.Records[delta.EntityID] = record

	return nil
}

func applyBudget(state *models.State, delta *models.Delta) error {
	if delta.Operation == models.OpDelete {
		state.Budgets = removeBudget(state.Budgets, delta.EntityID)
		return nil
	}
	if len(delta.After) == 0 {
		return nil
	}

	budget := models.BudgetState{}
	if err := json.Unmarshal(delta.After, &budget); err != nil {
		return fmt.Errorf("failed to unmarshal budget from delta %s: %w", delta.ID, err)
	}
	if budget.ID == "" {
		budget.ID = delta.EntityID
	}

	for i := range state.Budgets {
		if state.Budgets[i].ID == budget.ID {
			state.Budgets[i] = budget
			return nil
		}
	}
	state.Budgets = append(state.Budgets, budget)

	return nil
}

func removeBudget(budgets []models.BudgetState, id string) []models.BudgetState {
	out := budgets[:0]
	for _, budget := range budgets {
		if budget.ID != id {
			out = append(out, budget)
		}
	}
	return out
}

func applyGoal(state *models.State, delta *models.Delta) error {
	if delta.Operation == models.OpDelete {
		state.Goals = removeGoal(state.Goals, delta.EntityID)
		return nil
	}
	if len(delta.After) == 0 {
		return nil
	}

	goal := models.GoalState{}
	if err := json.Unmarshal(delta.After, &goal); err != nil {
		return fmt.Errorf("failed to unmarshal goal from delta %s: %w", delta.ID, err)
	}
	if goal.ID == "" {
		goal.ID = delta.EntityID
	}

	for i := range state.Goals {
		if state.Goals[i].ID == goal.ID {
			state.Goals[i] = goal
			return nil
		}
	}
	state.Goals = append(state.Goals, goal)

	return nil
}

func removeGoal(goals []models.GoalState, id string) []models.GoalState {
	out := goals[:0]
	for _, goal := range goals {
		if goal.ID != id {
			out = append(out, goal)
		}
	}
	return out
}
