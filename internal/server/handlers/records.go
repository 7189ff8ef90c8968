package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/iudanet/finkeeper/internal/server/storage"
	"github.com/iudanet/finkeeper/pkg/api"
)

// RecordsHandler обрабатывает чтение авторитетных записей сервера
type RecordsHandler struct {
	logger  *slog.Logger
	records storage.RecordStorage
}

// NewRecordsHandler создает handler записей
func NewRecordsHandler(logger *slog.Logger, records storage.RecordStorage) *RecordsHandler {
	return &RecordsHandler{
		logger:  logger,
		records: records,
	}
}

// List обрабатывает GET /api/v1/records
// Удаленные записи включаются параметром ?deleted=true
func (h *RecordsHandler) List(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	userID, ok := GetUserID(ctx)
	if !ok {
		sendError(h.logger, w, "unauthorized", http.StatusUnauthorized)
		return
	}

	includeDeleted := r.URL.Query().Get("deleted") == "true"

	records, err := h.records.ListRecords(ctx, userID, includeDeleted)
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to list records",
			slog.String("user_id", userID), slog.Any("error", err))
		sendError(h.logger, w, "internal server error", http.StatusInternalServerError)
		return
	}

	resp := api.RecordsListResponse{
		Records: recordsToAPI(records),
		Total:   len(records),
	}
	sendJSON(h.logger, w, resp, http.StatusOK)
}

// Get обрабатывает GET /api/v1/records/{id}
func (h *RecordsHandler) Get(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	userID, ok := GetUserID(ctx)
	if !ok {
		sendError(h.logger, w, "unauthorized", http.StatusUnauthorized)
		return
	}

	recordID := r.PathValue("id")
	if recordID == "" {
		sendError(h.logger, w, "record id is required", http.StatusBadRequest)
		return
	}

	record, err := h.records.GetRecord(ctx, userID, recordID)
	if err != nil {
		if errors.Is(err, storage.ErrRecordNotFound) {
			sendError(h.logger, w, "record not found", http.StatusNotFound)
			return
		}
		h.logger.ErrorContext(ctx, "failed to get record",
			slog.String("record_id", recordID), slog.Any("error", err))
		sendError(h.logger, w, "internal server error", http.StatusInternalServerError)
		return
	}

	sendJSON(h.logger, w, recordToAPI(record), http.StatusOK)
}
