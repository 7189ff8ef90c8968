// Package narrator превращает дельты журнала и разницы состояний в
// описания человеческим языком. Шаблонная реализация детерминирована
// и доступна всегда; модельная — опциональная надстройка поверх нее.
package narrator

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/iudanet/finkeeper/internal/models"
	"github.com/iudanet/finkeeper/internal/replay"
)

// Narrator описывает события журнала текстом для пользователя
type Narrator interface {
	// DescribeDelta возвращает описание одной дельты одним предложением
	DescribeDelta(ctx context.Context, delta *models.Delta) string

	// SummarizeDiff возвращает сводку изменений за период
	SummarizeDiff(ctx context.Context, diff *replay.StateDiff, period string) string
}

// TemplateNarrator строит описания по фиксированным шаблонам
type TemplateNarrator struct{}

func NewTemplateNarrator() *TemplateNarrator {
	return &TemplateNarrator{}
}

func (n *TemplateNarrator) DescribeDelta(_ context.Context, delta *models.Delta) string {
	if delta == nil {
		return ""
	}

	subject := deltaSubject(delta)

	var text string
	switch delta.Operation {
	case models.OpCreate:
		text = "Added " + subject
	case models.OpUpdate:
		text = "Updated " + subject + changesSuffix(delta.Changes)
	case models.OpDelete:
		text = "Deleted " + subject
	case models.OpRestore:
		text = "Restored " + subject
	default:
		text = "Modified " + subject
	}

	if delta.Reason == models.DeltaReasonConflictResolved {
		text += " while resolving a sync conflict"
	}

	return text
}

func (n *TemplateNarrator) SummarizeDiff(_ context.Context, diff *replay.StateDiff, period string) string {
	if diff == nil {
		return ""
	}

	if period == "" {
		period = fmt.Sprintf("%s to %s",
			diff.From.Format("2006-01-02"),
			diff.To.Format("2006-01-02"))
	}

	parts := []string{
		describeAmount("balance", diff.BalanceDelta),
		describeAmount("income", diff.IncomeDelta),
		describeAmount("expenses", diff.ExpensesDelta),
		describeCount(diff.CountDelta),
	}

	if category, change, ok := topCategory(diff.ByCategory); ok {
		parts = append(parts, fmt.Sprintf("most movement in %s (%s)", category, signed(change)))
	}

	return fmt.Sprintf("Over %s: %s.", period, strings.Join(parts, ", "))
}

// deltaSubject строит именную часть описания по содержимому дельты.
// Для транзакций берется состояние после перехода, для delete — до него.
func deltaSubject(delta *models.Delta) string {
	switch delta.EntityType {
	case models.EntityTransaction:
		payload := delta.After
		if len(payload) == 0 {
			payload = delta.Before
		}

		var record models.Record
		if err := json.Unmarshal(payload, &record); err != nil || record.Type == "" {
			return "transaction " + delta.EntityID
		}

		return fmt.Sprintf("%s of %s %s in %s",
			record.Type, record.Amount.String(), record.Currency, record.Category)

	case models.EntityBudget:
		var budget models.BudgetState
		if err := json.Unmarshal(delta.After, &budget); err == nil && budget.Category != "" {
			return "budget for " + budget.Category
		}
		return "budget " + delta.EntityID

	case models.EntityGoal:
		var goal models.GoalState
		if err := json.Unmarshal(delta.After, &goal); err == nil && goal.Name != "" {
			return fmt.Sprintf("goal %q", goal.Name)
		}
		return "goal " + delta.EntityID

	default:
		return delta.EntityType + " " + delta.EntityID
	}
}

func changesSuffix(changes []models.FieldChange) string {
	if len(changes) == 0 {
		return ""
	}

	if len(changes) == 1 {
		c := changes[0]
		return fmt.Sprintf(" (%s: %s -> %s)", c.Field, orEmpty(c.Old), orEmpty(c.New))
	}

	fields := make([]string, 0, len(changes))
	for _, c := range changes {
		fields = append(fields, c.Field)
	}
	return " (changed: " + strings.Join(fields, ", ") + ")"
}

func describeAmount(what string, d decimal.Decimal) string {
	switch {
	case d.IsPositive():
		return fmt.Sprintf("%s grew by %s", what, d.String())
	case d.IsNegative():
		return fmt.Sprintf("%s fell by %s", what, d.Neg().String())
	default:
		return what + " unchanged"
	}
}

func describeCount(n int) string {
	switch {
	case n > 1:
		return fmt.Sprintf("%d transactions added", n)
	case n == 1:
		return "1 transaction added"
	case n == -1:
		return "1 transaction removed"
	case n < -1:
		return fmt.Sprintf("%d transactions removed", -n)
	default:
		return "transaction count unchanged"
	}
}

// topCategory возвращает категорию с наибольшим абсолютным изменением.
// При равных изменениях побеждает меньшее имя: описание детерминировано.
func topCategory(byCategory map[string]decimal.Decimal) (string, decimal.Decimal, bool) {
	var (
		bestName   string
		bestChange decimal.Decimal
		found      bool
	)

	for category, change := range byCategory {
		switch {
		case !found,
			change.Abs().GreaterThan(bestChange.Abs()),
			change.Abs().Equal(bestChange.Abs()) && category < bestName:
			bestName = category
			bestChange = change
			found = true
		}
	}

	return bestName, bestChange, found
}

func signed(d decimal.Decimal) string {
	if d.IsPositive() {
		return "+" + d.String()
	}
	return d.String()
}

func orEmpty(s string) string {
	if s == "" {
		return `""`
	}
	return s
}
