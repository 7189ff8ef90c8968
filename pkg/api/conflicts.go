package api

import (
	"encoding/json"
	"time"
)

// Conflict представляет зафиксированный конфликт версий записи.
// Обе версии отдаются целиком: клиент показывает их пользователю
// для выбора стратегии разрешения.
type Conflict struct {
	DetectedAt  time.Time         `json:"detected_at"`           // время обнаружения
	ResolvedAt  *time.Time        `json:"resolved_at,omitempty"` // время разрешения (nil пока open)
	ServerClock map[string]uint64 `json:"server_clock"`          // часы серверной версии
	ClientClock map[string]uint64 `json:"client_clock"`          // часы клиентской версии
	ServerState json.RawMessage   `json:"server_state"`          // серверная версия записи
	ClientState json.RawMessage   `json:"client_state"`          // клиентская версия записи
	ID          string            `json:"id"`                    // UUID конфликта
	RecordID    string            `json:"record_id"`             // спорная запись
	DeviceID    string            `json:"device_id"`             // устройство-источник клиентской версии
	Status      string            `json:"status"`                // open | resolved
	Strategy    string            `json:"strategy,omitempty"`    // стратегия разрешения (пусто пока open)
}

// ConflictsListResponse представляет список конфликтов пользователя
type ConflictsListResponse struct {
	Conflicts []Conflict `json:"conflicts"` // конфликты, новые первыми
	Total     int        `json:"total"`     // число конфликтов в ответе
}

// ResolveConflictRequest представляет запрос на разрешение конфликта
type ResolveConflictRequest struct {
	Strategy string         `json:"strategy"`         // client_wins | server_wins | merge
	Merged   map[string]any `json:"merged,omitempty"` // пополевые переопределения для merge
}

// ResolveConflictResponse представляет результат разрешения
type ResolveConflictResponse struct {
	Record  ServerRecord `json:"record"`  // авторитетная запись после разрешения
	Message string       `json:"message"` // сообщение об успешном разрешении
}
