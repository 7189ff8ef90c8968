package api

// RecordsListResponse представляет список записей пользователя
type RecordsListResponse struct {
	Records []ServerRecord `json:"records"` // записи в порядке occurred_at
	Total   int            `json:"total"`   // число записей в ответе
}
