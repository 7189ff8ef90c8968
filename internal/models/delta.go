package models

import (
	"encoding/json"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/iudanet/finkeeper/internal/vclock"
)

// Operation константы для операций, порождающих дельту
const (
	OpCreate  = "create"
	OpUpdate  = "update"
	OpDelete  = "delete"
	OpRestore = "restore"
)

// EntityType константы для типов сущностей в журнале дельт
const (
	EntityTransaction = "transaction"
	EntityBudget      = "budget"
	EntityGoal        = "goal"
)

// DeltaReason константы для причины перехода, когда её стоит зафиксировать
// сверх самой операции
const (
	DeltaReasonConflictResolved = "conflict_resolved"
)

// FieldChange описывает изменение одного поля: имя, старое и новое значения
// в строковом представлении.
type FieldChange struct {
	Field string `json:"field"`
	Old   string `json:"old"`
	New   string `json:"new"`
}

// FinancialImpact — вычисленное финансовое влияние одной дельты.
// Дельты income/expense раскладываются по отдельным полям, а не выводятся
// из знака BalanceDelta: удаление расхода уменьшает сумму расходов,
// а не добавляет доход.
type FinancialImpact struct {
	AccountDeltas  map[string]decimal.Decimal `json:"account_deltas,omitempty"`  // AccountDeltas изменение баланса по счетам
	CategoryDeltas map[string]decimal.Decimal `json:"category_deltas,omitempty"` // CategoryDeltas изменение оборота по категориям

	Budgets []string `json:"budgets,omitempty"` // Budgets затронутые бюджеты (id)
	Goals   []string `json:"goals,omitempty"`   // Goals затронутые цели (id)

	BalanceDelta decimal.Decimal `json:"balance_delta"` // BalanceDelta изменение общего баланса
	IncomeDelta  decimal.Decimal `json:"income_delta"`  // IncomeDelta изменение суммы доходов
	ExpenseDelta decimal.Decimal `json:"expense_delta"` // ExpenseDelta изменение суммы расходов
}

// AffectedCategories возвращает отсортированный список категорий,
// затронутых дельтой.
func (fi FinancialImpact) AffectedCategories() []string {
	out := make([]string, 0, len(fi.CategoryDeltas))
	for category := range fi.CategoryDeltas {
		out = append(out, category)
	}
	sort.Strings(out)
	return out
}

// Delta представляет одно неизменяемое событие перехода состояния.
// Журнал дельт append-only: записи никогда не изменяются и не удаляются,
// что делает его пригодным для аудита и восстановления исторического состояния.
//
// CausedBy ссылается на дельту-причину (каузальная цепочка для форензики);
// обратные ссылки Triggers не хранятся, а вычисляются запросом по caused_by.
// Цепочка по построению ациклична: дельта не может сослаться на себя
// или на более позднюю дельту.
type Delta struct {
	Timestamp time.Time       `json:"timestamp"` // Timestamp время фиксации перехода
	Clock     vclock.Clock    `json:"clock"`     // Clock часы записи после применения перехода
	Impact    FinancialImpact `json:"impact"`    // Impact вычисленное финансовое влияние

	Before  json.RawMessage `json:"before,omitempty"`  // Before состояние до перехода (nil для create)
	After   json.RawMessage `json:"after,omitempty"`   // After состояние после перехода (nil для delete)
	Changes []FieldChange   `json:"changes,omitempty"` // Changes пополевые изменения

	ID         string `json:"id"`                   // ID уникальный идентификатор дельты (UUID)
	UserID     string `json:"user_id"`              // UserID владелец истории
	EntityType string `json:"entity_type"`          // EntityType "transaction", "budget", "goal"
	EntityID   string `json:"entity_id"`            // EntityID идентификатор измененной сущности
	Operation  string `json:"operation"`            // Operation "create", "update", "delete", "restore"
	Reason     string `json:"reason,omitempty"`     // Reason причина перехода ("conflict_resolved", пусто для обычных)
	Actor      string `json:"actor"`                // Actor идентификатор актора (устройство или сервер)
	SessionID  string `json:"session_id,omitempty"` // SessionID каузальный контекст: сессия
	RequestID  string `json:"request_id,omitempty"` // RequestID каузальный контекст: запрос
	CausedBy   string `json:"caused_by,omitempty"`  // CausedBy идентификатор дельты-причины (пусто если корневая)

	Seq int64 `json:"seq"` // Seq глобальный порядковый номер, назначается хранилищем при вставке
}
