package models

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

// BudgetState представляет состояние бюджета внутри агрегата State.
type BudgetState struct {
	ID       string          `json:"id"`       // ID идентификатор бюджета
	Category string          `json:"category"` // Category категория, которую ограничивает бюджет
	Limit    decimal.Decimal `json:"limit"`    // Limit лимит бюджета
	Spent    decimal.Decimal `json:"spent"`    // Spent потрачено в рамках бюджета
}

// GoalState представляет состояние накопительной цели внутри агрегата State.
type GoalState struct {
	ID     string          `json:"id"`     // ID идентификатор цели
	Name   string          `json:"name"`   // Name название цели
	Target decimal.Decimal `json:"target"` // Target целевая сумма
	Saved  decimal.Decimal `json:"saved"`  // Saved накоплено
}

// State представляет полное финансовое состояние пользователя на момент AsOf.
// Это значение-агрегат: реплей всегда работает с собственной копией,
// никакого разделяемого изменяемого состояния между вызовами нет.
type State struct {
	AsOf time.Time `json:"as_of"` // AsOf момент времени, на который вычислено состояние

	Categories map[string]decimal.Decimal `json:"categories"`        // Categories суммарный оборот по категориям
	Accounts   map[string]decimal.Decimal `json:"accounts"`          // Accounts баланс по счетам
	Records    map[string]*Record         `json:"records,omitempty"` // Records записи на момент AsOf (заполняется по запросу)

	Budgets []BudgetState `json:"budgets"` // Budgets состояния бюджетов
	Goals   []GoalState   `json:"goals"`   // Goals состояния целей

	Balance          decimal.Decimal `json:"balance"`           // Balance общий баланс
	TotalIncome      decimal.Decimal `json:"total_income"`      // TotalIncome сумма доходов
	TotalExpenses    decimal.Decimal `json:"total_expenses"`    // TotalExpenses сумма расходов
	TransactionCount int             `json:"transaction_count"` // TransactionCount число транзакций
}

// NewState создает пустое состояние с инициализированными справочниками.
func NewState() *State {
	return &State{
		Categories: make(map[string]decimal.Decimal),
		Accounts:   make(map[string]decimal.Decimal),
		Budgets:    []BudgetState{},
		Goals:      []GoalState{},
	}
}

// Clone создает глубокую копию состояния. Реплей начинает с копии базового
// снапшота и складывает дельты в нее, не трогая оригинал.
func (s *State) Clone() *State {
	out := &State{
		AsOf:             s.AsOf,
		Balance:          s.Balance,
		TotalIncome:      s.TotalIncome,
		TotalExpenses:    s.TotalExpenses,
		TransactionCount: s.TransactionCount,
		Categories:       make(map[string]decimal.Decimal, len(s.Categories)),
		Accounts:         make(map[string]decimal.Decimal, len(s.Accounts)),
		Budgets:          make([]BudgetState, len(s.Budgets)),
		Goals:            make([]GoalState, len(s.Goals)),
	}

	for category, total := range s.Categories {
		out.Categories[category] = total
	}
	for account, balance := range s.Accounts {
		out.Accounts[account] = balance
	}
	copy(out.Budgets, s.Budgets)
	copy(out.Goals, s.Goals)

	if s.Records != nil {
		out.Records = make(map[string]*Record, len(s.Records))
		for id, record := range s.Records {
			out.Records[id] = record.Clone()
		}
	}

	return out
}

// ContentFields возвращает детерминированное представление состояния
// для хеша целостности снапшота. Записи и AsOf не входят: хеш зависит
// только от агрегатов, которые снапшот действительно хранит.
func (s *State) ContentFields() map[string]any {
	categories := make(map[string]string, len(s.Categories))
	for category, total := range s.Categories {
		categories[category] = total.String()
	}
	accounts := make(map[string]string, len(s.Accounts))
	for account, balance := range s.Accounts {
		accounts[account] = balance.String()
	}

	// Списки сортируются по id, чтобы порядок вставки не влиял на хеш.
	budgets := make([]any, 0, len(s.Budgets))
	for _, b := range sortedBudgets(s.Budgets) {
		budgets = append(budgets, map[string]any{
			"id":       b.ID,
			"category": b.Category,
			"limit":    b.Limit.String(),
			"spent":    b.Spent.String(),
		})
	}
	goals := make([]any, 0, len(s.Goals))
	for _, g := range sortedGoals(s.Goals) {
		goals = append(goals, map[string]any{
			"id":     g.ID,
			"name":   g.Name,
			"target": g.Target.String(),
			"saved":  g.Saved.String(),
		})
	}

	return map[string]any{
		"balance":           s.Balance.String(),
		"total_income":      s.TotalIncome.String(),
		"total_expenses":    s.TotalExpenses.String(),
		"categories":        categories,
		"accounts":          accounts,
		"budgets":           budgets,
		"goals":             goals,
		"transaction_count": s.TransactionCount,
	}
}

func sortedBudgets(in []BudgetState) []BudgetState {
	out := make([]BudgetState, len(in))
	copy(out, in)
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func sortedGoals(in []GoalState) []GoalState {
	out := make([]GoalState, len(in))
	copy(out, in)
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
