package models

import "time"

// SnapshotType константы для типов снапшотов.
// Тип определяет политику удержания: дневные снапшоты живут недолго,
// месячные — годами. Сама политика применяется внешним обслуживанием.
const (
	SnapshotDaily    = "daily"
	SnapshotWeekly   = "weekly"
	SnapshotMonthly  = "monthly"
	SnapshotOnDemand = "on_demand"
)

// Snapshot представляет периодический контрольный снимок полного
// финансового состояния пользователя. Снапшот ограничивает стоимость
// реплея: восстановление начинается с ближайшего снимка, а не с нуля.
// Неизменяем после записи; удаляется только политикой удержания.
type Snapshot struct {
	TakenAt   time.Time `json:"taken_at"`   // TakenAt момент времени, на который снято состояние
	CreatedAt time.Time `json:"created_at"` // CreatedAt время записи снапшота

	State []byte `json:"-"` // State сериализованное состояние (gzip при Compressed)

	ID          string `json:"id"`           // ID уникальный идентификатор снапшота (UUID)
	UserID      string `json:"user_id"`      // UserID владелец состояния
	Type        string `json:"type"`         // Type "daily", "weekly", "monthly", "on_demand"
	StateHash   string `json:"state_hash"`   // StateHash хеш целостности состояния (hex sha256)
	SizeBytes   int64  `json:"size_bytes"`   // SizeBytes размер сериализованного состояния
	RecordCount int    `json:"record_count"` // RecordCount число транзакций в состоянии
	Compressed  bool   `json:"compressed"`   // Compressed признак gzip-сжатия State
}
