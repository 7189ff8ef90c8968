package models

import (
	"encoding/json"
	"time"

	"github.com/iudanet/finkeeper/internal/vclock"
)

// ConflictStatus константы для жизненного цикла конфликта.
// Единственный допустимый переход: open -> resolved (терминальное состояние).
const (
	ConflictStatusOpen     = "open"
	ConflictStatusResolved = "resolved"
)

// ResolutionStrategy константы для стратегий разрешения конфликта
const (
	StrategyClientWins = "client_wins"
	StrategyServerWins = "server_wins"
	StrategyMerge      = "merge"
)

// Conflict представляет зафиксированный конфликт между серверной и клиентской
// версиями записи: часы конкурентны (или равны при расходящемся содержимом),
// ни одна сторона каузально не доминирует. Обе версии сохраняются целиком —
// реконсилер никогда не теряет данные, которые не может каузально упорядочить.
//
// Запись неизменяема после создания, кроме полей разрешения (Status, Strategy,
// ResolvedAt), которые выставляются ровно один раз. Удаление конфликтов —
// внешняя задача обслуживания, не реконсилера.
type Conflict struct {
	DetectedAt time.Time  `json:"detected_at"`           // DetectedAt время обнаружения конфликта
	ResolvedAt *time.Time `json:"resolved_at,omitempty"` // ResolvedAt время разрешения (nil пока open)

	ServerClock vclock.Clock    `json:"server_clock"` // ServerClock часы серверной версии на момент конфликта
	ClientClock vclock.Clock    `json:"client_clock"` // ClientClock часы клиентской версии
	ServerState json.RawMessage `json:"server_state"` // ServerState полный снимок серверной версии записи
	ClientState json.RawMessage `json:"client_state"` // ClientState полный снимок клиентской версии записи

	ID         string `json:"id"`          // ID уникальный идентификатор конфликта (UUID)
	RecordID   string `json:"record_id"`   // RecordID идентификатор спорной записи
	UserID     string `json:"user_id"`     // UserID владелец записи
	DeviceID   string `json:"device_id"`   // DeviceID устройство, приславшее конфликтующую версию
	ClientHash string `json:"client_hash"` // ClientHash контент-хеш клиентской версии
	Status     string `json:"status"`      // Status "open" или "resolved"
	Strategy   string `json:"strategy"`    // Strategy выбранная стратегия (пусто пока open)
}
