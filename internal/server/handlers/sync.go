package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/iudanet/finkeeper/internal/consensus"
	"github.com/iudanet/finkeeper/internal/server/storage"
	"github.com/iudanet/finkeeper/internal/validation"
	"github.com/iudanet/finkeeper/pkg/api"
)

//go:generate moq -out reconciler_mock.go . Reconciler

// Reconciler согласует присланную версию записи с серверной
type Reconciler interface {
	Reconcile(ctx context.Context, sub consensus.Submission) (*consensus.Outcome, error)
}

// SyncHandler обрабатывает пакетную синхронизацию устройств
type SyncHandler struct {
	logger     *slog.Logger
	reconciler Reconciler
	records    storage.RecordStorage
}

// NewSyncHandler создает handler синхронизации
func NewSyncHandler(logger *slog.Logger, reconciler Reconciler, records storage.RecordStorage) *SyncHandler {
	return &SyncHandler{
		logger:     logger,
		reconciler: reconciler,
		records:    records,
	}
}

// HandleSync обрабатывает POST /api/v1/sync: каждая присланная запись
// согласуется независимо, исходы отдаются поштучно, затем добавляются
// серверные изменения после since. Ошибка одной записи не роняет пакет.
func (h *SyncHandler) HandleSync(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	userID, ok := GetUserID(ctx)
	if !ok {
		h.logger.ErrorContext(ctx, "user id not found in context")
		sendError(h.logger, w, "unauthorized", http.StatusUnauthorized)
		return
	}

	var req api.SyncRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.WarnContext(ctx, "failed to decode sync request", slog.Any("error", err))
		sendError(h.logger, w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.DeviceID == "" {
		sendError(h.logger, w, "device_id is required", http.StatusBadRequest)
		return
	}

	h.logger.InfoContext(ctx, "sync request",
		slog.String("user_id", userID),
		slog.String("device_id", req.DeviceID),
		slog.Int("records", len(req.Records)))

	results := make([]api.SyncResult, 0, len(req.Records))
	conflicts := 0

	for _, in := range req.Records {
		result, ok := h.reconcileOne(ctx, userID, req.DeviceID, in)
		if !ok {
			sendError(h.logger, w, "internal server error", http.StatusInternalServerError)
			return
		}
		if result.Outcome == "conflict" {
			conflicts++
		}
		results = append(results, result)
	}

	changed, err := h.records.ListRecordsUpdatedSince(ctx, userID, req.Since)
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to list changed records",
			slog.String("user_id", userID), slog.Any("error", err))
		sendError(h.logger, w, "internal server error", http.StatusInternalServerError)
		return
	}

	resp := api.SyncResponse{
		ServerTime: time.Now().UTC(),
		Results:    results,
		Changed:    recordsToAPI(changed),
		Conflicts:  conflicts,
	}
	sendJSON(h.logger, w, resp, http.StatusOK)

	h.logger.InfoContext(ctx, "sync completed",
		slog.String("user_id", userID),
		slog.Int("results", len(results)),
		slog.Int("changed", len(changed)),
		slog.Int("conflicts", conflicts))
}

// reconcileOne согласует одну присланную запись. Невалидная запись
// или расхождение контент-хеша — поштучная ошибка в результате;
// false возвращается только при инфраструктурном сбое.
func (h *SyncHandler) reconcileOne(ctx context.Context, userID, deviceID string, in api.SyncRecord) (api.SyncResult, bool) {
	record, err := recordFromSync(userID, in)
	if err != nil {
		return api.SyncResult{RecordID: in.ID, Outcome: "error", Error: err.Error()}, true
	}
	if err := validation.ValidateRecord(record); err != nil {
		return api.SyncResult{RecordID: in.ID, Outcome: "error", Error: err.Error()}, true
	}

	outcome, err := h.reconciler.Reconcile(ctx, consensus.Submission{
		Record:   record,
		DeviceID: deviceID,
	})
	if err != nil {
		if errors.Is(err, consensus.ErrContentHashMismatch) {
			return api.SyncResult{RecordID: in.ID, Outcome: "error", Error: err.Error()}, true
		}
		h.logger.ErrorContext(ctx, "reconcile failed",
			slog.String("record_id", in.ID), slog.Any("error", err))
		return api.SyncResult{}, false
	}

	result := api.SyncResult{
		RecordID: in.ID,
		Outcome:  outcome.Action,
		Reason:   outcome.Reason,
	}
	if outcome.Record != nil {
		result.Clock = outcome.Record.Clock.Copy()
	}
	if outcome.Conflict != nil {
		result.ConflictID = outcome.Conflict.ID
	}
	return result, true
}
