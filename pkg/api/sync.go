package api

import "time"

// SyncRecord представляет одну финансовую запись на проводе.
// Суммы передаются десятичными строками, часы — картой актор -> счетчик.
type SyncRecord struct {
	OccurredAt     time.Time         `json:"occurred_at"`               // дата/время операции
	Clock          map[string]uint64 `json:"clock"`                     // векторные часы записи
	ID             string            `json:"id"`                        // UUID записи
	Type           string            `json:"type"`                      // income | expense | transfer
	Category       string            `json:"category"`                  // категория операции
	Account        string            `json:"account"`                   // счет операции
	CounterAccount string            `json:"counter_account,omitempty"` // счет-получатель (transfer)
	Note           string            `json:"note,omitempty"`            // комментарий
	Currency       string            `json:"currency"`                  // код валюты ISO 4217
	Amount         string            `json:"amount"`                    // сумма, десятичная строка
	ContentHash    string            `json:"content_hash"`              // контент-хеш версии клиента
	Deleted        bool              `json:"deleted"`                   // флаг soft delete
}

// SyncRequest представляет пакет правок с одного устройства
type SyncRequest struct {
	Since    time.Time    `json:"since,omitempty"` // отдать серверные изменения после этого момента
	DeviceID string       `json:"device_id"`       // актор векторных часов устройства
	Records  []SyncRecord `json:"records"`         // присланные версии записей
}

// SyncResult представляет исход согласования одной записи
type SyncResult struct {
	Clock      map[string]uint64 `json:"clock,omitempty"`       // часы авторитетной версии
	RecordID   string            `json:"record_id"`             // идентификатор записи
	Outcome    string            `json:"outcome"`               // create | update | ignore | conflict | error
	Reason     string            `json:"reason,omitempty"`      // уточнение для ignore
	ConflictID string            `json:"conflict_id,omitempty"` // идентификатор конфликта при outcome=conflict
	Error      string            `json:"error,omitempty"`       // ошибка валидации записи
}

// ServerRecord представляет авторитетную серверную версию записи
type ServerRecord struct {
	SyncRecord
	CreatedAt     time.Time `json:"created_at"`     // время появления на сервере
	UpdatedAt     time.Time `json:"updated_at"`     // время последнего принятого изменения
	SyncStatus    string    `json:"sync_status"`    // synced | conflict
	ConflictCount int       `json:"conflict_count"` // число открытых конфликтов
	Version       int64     `json:"version"`        // серверный CAS-токен
}

// SyncResponse представляет ответ сервера на синхронизацию
type SyncResponse struct {
	ServerTime time.Time      `json:"server_time"` // часы сервера на момент ответа
	Results    []SyncResult   `json:"results"`     // поштучные исходы присланных записей
	Changed    []ServerRecord `json:"changed"`     // серверные изменения после since
	Conflicts  int            `json:"conflicts"`   // конфликтов зафиксировано в этом пакете
}
