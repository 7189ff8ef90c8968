package models

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/iudanet/finkeeper/internal/vclock"
)

// RecordType константы для типов финансовых записей
const (
	RecordTypeIncome   = "income"
	RecordTypeExpense  = "expense"
	RecordTypeTransfer = "transfer"
)

// SyncStatus константы для статуса синхронизации записи
const (
	SyncStatusSynced   = "synced"
	SyncStatusConflict = "conflict"
)

// Record представляет финансовую запись (транзакцию), изменяемую
// конкурентно с нескольких устройств. Векторные часы отслеживают
// каузальный порядок правок, контент-хеш выявляет расхождение данных
// независимо от состояния часов.
type Record struct {
	OccurredAt time.Time    `json:"occurred_at"` // OccurredAt дата/время операции (задается пользователем)
	CreatedAt  time.Time    `json:"created_at"`  // CreatedAt время появления записи на сервере
	UpdatedAt  time.Time    `json:"updated_at"`  // UpdatedAt время последнего принятого изменения
	Clock      vclock.Clock `json:"clock"`       // Clock векторные часы записи (актор -> счетчик)

	ID             string          `json:"id"`              // ID уникальный идентификатор записи (UUID)
	UserID         string          `json:"user_id"`         // UserID идентификатор владельца
	Type           string          `json:"type"`            // Type тип записи: "income", "expense", "transfer"
	Category       string          `json:"category"`        // Category категория ("groceries", "salary", ...)
	Account        string          `json:"account"`         // Account счет, по которому прошла операция
	CounterAccount string          `json:"counter_account"` // CounterAccount счет-получатель (только для transfer)
	Note           string          `json:"note"`            // Note произвольный комментарий пользователя
	Currency       string          `json:"currency"`        // Currency код валюты (ISO 4217)
	ContentHash    string          `json:"content_hash"`    // ContentHash хеш содержимого (hex sha256)
	SyncStatus     string          `json:"sync_status"`     // SyncStatus статус: "synced" или "conflict"
	Amount         decimal.Decimal `json:"amount"`          // Amount сумма операции (всегда положительная)
	Version        int64           `json:"version"`         // Version токен оптимистичной блокировки (CAS)
	ConflictCount  int             `json:"conflict_count"`  // ConflictCount число открытых конфликтов записи
	Deleted        bool            `json:"deleted"`         // Deleted флаг soft delete
}

// ContentFields возвращает содержательные поля записи для контент-хеширования
// и вычисления изменений. Часы, версия и sync-метаданные сюда не входят:
// хеш должен зависеть только от данных, а не от истории синхронизации.
func (r *Record) ContentFields() map[string]any {
	return map[string]any{
		"type":            r.Type,
		"amount":          r.Amount.String(),
		"currency":        r.Currency,
		"category":        r.Category,
		"account":         r.Account,
		"counter_account": r.CounterAccount,
		"note":            r.Note,
		"occurred_at":     r.OccurredAt.UTC().Format(time.RFC3339Nano),
		"deleted":         r.Deleted,
	}
}

// Clone создает глубокую копию записи.
// decimal.Decimal неизменяем, копируется по значению; часы копируются явно.
func (r *Record) Clone() *Record {
	out := *r
	out.Clock = r.Clock.Copy()
	return &out
}
