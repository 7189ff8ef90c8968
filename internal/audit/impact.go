// Package audit вычисляет производные артефакты каждого принятого изменения:
// пополевые изменения, финансовое влияние и саму дельту для журнала.
// Журнал дельт — durable-дом для этих значений, но вычисляет их этот пакет.
package audit

import (
	"github.com/shopspring/decimal"

	"github.com/iudanet/finkeeper/internal/models"
)

// contribution — вклад записи в агрегаты состояния.
// Удаленная запись не вносит ничего: soft delete полностью
// выводит запись из балансов.
type contribution struct {
	accounts   map[string]decimal.Decimal
	categories map[string]decimal.Decimal
	balance    decimal.Decimal
	income     decimal.Decimal
	expenses   decimal.Decimal
}

func zeroContribution() contribution {
	return contribution{
		accounts:   map[string]decimal.Decimal{},
		categories: map[string]decimal.Decimal{},
	}
}

func recordContribution(r *models.Record) contribution {
	c := zeroContribution()
	if r == nil || r.Deleted {
		return c
	}

	switch r.Type {
	case models.RecordTypeIncome:
		c.balance = r.Amount
		c.income = r.Amount
		addDelta(c.accounts, r.Account, r.Amount)
	case models.RecordTypeExpense:
		c.balance = r.Amount.Neg()
		c.expenses = r.Amount
		addDelta(c.accounts, r.Account, r.Amount.Neg())
	case models.RecordTypeTransfer:
		// Перевод не меняет общий баланс, только распределение по счетам.
		addDelta(c.accounts, r.Account, r.Amount.Neg())
		addDelta(c.accounts, r.CounterAccount, r.Amount)
	}

	if r.Category != "" {
		addDelta(c.categories, r.Category, r.Amount)
	}

	return c
}

func addDelta(m map[string]decimal.Decimal, key string, delta decimal.Decimal) {
	if key == "" || delta.IsZero() {
		return
	}
	m[key] = m[key].Add(delta)
}

// ComputeImpact вычисляет финансовое влияние перехода before -> after
// для транзакции. Влияние — разность вкладов двух состояний, поэтому
// create/update/delete/restore считаются одной формулой:
// у create нет before (нулевой вклад), у delete after удален (нулевой вклад).
func ComputeImpact(before, after *models.Record) models.FinancialImpact {
	prev := recordContribution(before)
	next := recordContribution(after)

	impact := models.FinancialImpact{
		BalanceDelta:   next.balance.Sub(prev.balance),
		IncomeDelta:    next.income.Sub(prev.income),
		ExpenseDelta:   next.expenses.Sub(prev.expenses),
		AccountDeltas:  subtractMaps(next.accounts, prev.accounts),
		CategoryDeltas: subtractMaps(next.categories, prev.categories),
	}
	return impact
}

// subtractMaps возвращает поточечную разность next - prev по объединению
// ключей, опуская нулевые результаты.
func subtractMaps(next, prev map[string]decimal.Decimal) map[string]decimal.Decimal {
	out := make(map[string]decimal.Decimal)
	for key, value := range next {
		out[key] = value
	}
	for key, value := range prev {
		out[key] = out[key].Sub(value)
	}
	for key, value := range out {
		if value.IsZero() {
			delete(out, key)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// NegateImpact возвращает влияние с обратным знаком по всем полям.
// Используется при построении обратной дельты.
func NegateImpact(impact models.FinancialImpact) models.FinancialImpact {
	out := models.FinancialImpact{
		BalanceDelta: impact.BalanceDelta.Neg(),
		IncomeDelta:  impact.IncomeDelta.Neg(),
		ExpenseDelta: impact.ExpenseDelta.Neg(),
		Budgets:      append([]string(nil), impact.Budgets...),
		Goals:        append([]string(nil), impact.Goals...),
	}
	if impact.AccountDeltas != nil {
		out.AccountDeltas = make(map[string]decimal.Decimal, len(impact.AccountDeltas))
		for account, delta := range impact.AccountDeltas {
			out.AccountDeltas[account] = delta.Neg()
		}
	}
	if impact.CategoryDeltas != nil {
		out.CategoryDeltas = make(map[string]decimal.Decimal, len(impact.CategoryDeltas))
		for category, delta := range impact.CategoryDeltas {
			out.CategoryDeltas[category] = delta.Neg()
		}
	}
	return out
}
