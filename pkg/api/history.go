package api

import "time"

// ReplayInfo представляет метаданные реплея состояния
type ReplayInfo struct {
	SnapshotTakenAt *time.Time `json:"snapshot_taken_at,omitempty"` // база реплея (nil = с нуля)
	SnapshotID      string     `json:"snapshot_id,omitempty"`       // идентификатор снапшота-базы
	SnapshotType    string     `json:"snapshot_type,omitempty"`     // тип снапшота-базы
	DeltasApplied   int        `json:"deltas_applied"`              // применено дельт поверх базы
	DurationMS      int64      `json:"duration_ms"`                 // длительность реплея
}

// BudgetState представляет состояние бюджета на момент времени
type BudgetState struct {
	ID       string `json:"id"`       // идентификатор бюджета
	Category string `json:"category"` // ограничиваемая категория
	Limit    string `json:"limit"`    // лимит, десятичная строка
	Spent    string `json:"spent"`    // потрачено, десятичная строка
}

// GoalState представляет состояние цели накопления на момент времени
type GoalState struct {
	ID     string `json:"id"`     // идентификатор цели
	Name   string `json:"name"`   // название цели
	Target string `json:"target"` // целевая сумма
	Saved  string `json:"saved"`  // накоплено
}

// StateResponse представляет финансовое состояние на момент времени
type StateResponse struct {
	AsOf             time.Time         `json:"as_of"`             // момент времени состояния
	Categories       map[string]string `json:"categories"`        // оборот по категориям
	Accounts         map[string]string `json:"accounts"`          // баланс по счетам
	Budgets          []BudgetState     `json:"budgets"`           // состояния бюджетов
	Goals            []GoalState       `json:"goals"`             // состояния целей
	Records          []ServerRecord    `json:"records,omitempty"` // записи (по запросу)
	Replay           *ReplayInfo       `json:"replay,omitempty"`  // метаданные реплея
	Balance          string            `json:"balance"`           // общий баланс
	TotalIncome      string            `json:"total_income"`      // сумма доходов
	TotalExpenses    string            `json:"total_expenses"`    // сумма расходов
	TransactionCount int               `json:"transaction_count"` // число транзакций
}

// DiffResponse представляет разницу состояний между двумя моментами
type DiffResponse struct {
	From          time.Time         `json:"from"`              // начало периода
	To            time.Time         `json:"to"`                // конец периода
	ByCategory    map[string]string `json:"by_category"`       // изменение оборота по категориям
	BalanceDelta  string            `json:"balance_delta"`     // изменение баланса
	IncomeDelta   string            `json:"income_delta"`      // изменение доходов
	ExpensesDelta string            `json:"expenses_delta"`    // изменение расходов
	CountDelta    int               `json:"count_delta"`       // изменение числа транзакций
	Summary       string            `json:"summary,omitempty"` // текстовое описание периода
}

// EvolutionPoint представляет сводку состояния в одной точке выборки
type EvolutionPoint struct {
	At               time.Time `json:"at"`                // момент выборки
	Balance          string    `json:"balance"`           // баланс
	TotalIncome      string    `json:"total_income"`      // доходы нарастающим итогом
	TotalExpenses    string    `json:"total_expenses"`    // расходы нарастающим итогом
	TransactionCount int       `json:"transaction_count"` // число транзакций
}

// EvolutionResponse представляет эволюцию состояния через равные интервалы
type EvolutionResponse struct {
	Start    time.Time        `json:"start"`    // начало диапазона
	End      time.Time        `json:"end"`      // конец диапазона
	Interval string           `json:"interval"` // daily | weekly | monthly
	Points   []EvolutionPoint `json:"points"`   // точки выборки, обе границы включены
}

// FieldChange представляет изменение одного поля записи
type FieldChange struct {
	Field string `json:"field"` // имя поля
	Old   string `json:"old"`   // значение до
	New   string `json:"new"`   // значение после
}

// Impact представляет финансовый эффект дельты
type Impact struct {
	AccountDeltas  map[string]string `json:"account_deltas,omitempty"`  // изменение по счетам
	CategoryDeltas map[string]string `json:"category_deltas,omitempty"` // изменение по категориям
	BalanceDelta   string            `json:"balance_delta"`             // изменение баланса
	IncomeDelta    string            `json:"income_delta"`              // изменение доходов
	ExpenseDelta   string            `json:"expense_delta"`             // изменение расходов
}

// TimelineEntry представляет одну дельту журнала с текстовым описанием
type TimelineEntry struct {
	Timestamp  time.Time         `json:"timestamp"`           // время применения дельты
	Clock      map[string]uint64 `json:"clock"`               // часы после применения
	Changes    []FieldChange     `json:"changes,omitempty"`   // пополевые изменения
	Impact     Impact            `json:"impact"`              // финансовый эффект
	ID         string            `json:"id"`                  // идентификатор дельты
	EntityType string            `json:"entity_type"`         // transaction | budget | goal
	EntityID   string            `json:"entity_id"`           // идентификатор сущности
	Operation  string            `json:"operation"`           // create | update | delete | restore
	Reason     string            `json:"reason"`              // user_edit | conflict_resolved | ...
	Actor      string            `json:"actor"`               // кто внес изменение
	CausedBy   string            `json:"caused_by,omitempty"` // причинная дельта
	Text       string            `json:"text"`                // описание человеческим языком
}

// TimelineResponse представляет журнал изменений за период
type TimelineResponse struct {
	From    time.Time       `json:"from"`    // начало периода
	To      time.Time       `json:"to"`      // конец периода
	Entries []TimelineEntry `json:"entries"` // дельты в каузальном порядке
	Total   int             `json:"total"`   // число дельт в ответе
}
