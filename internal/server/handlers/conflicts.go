package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/iudanet/finkeeper/internal/consensus"
	"github.com/iudanet/finkeeper/internal/models"
	"github.com/iudanet/finkeeper/internal/server/storage"
	"github.com/iudanet/finkeeper/pkg/api"
)

//go:generate moq -out resolver_mock.go . Resolver

// Resolver разрешает зафиксированный конфликт выбранной стратегией
type Resolver interface {
	ResolveConflict(ctx context.Context, userID, conflictID, strategy string, overrides map[string]any) (*models.Record, error)
}

// ConflictsHandler обрабатывает просмотр и разрешение конфликтов
type ConflictsHandler struct {
	logger    *slog.Logger
	conflicts storage.ConflictStorage
	resolver  Resolver
}

// NewConflictsHandler создает handler конфликтов
func NewConflictsHandler(logger *slog.Logger, conflicts storage.ConflictStorage, resolver Resolver) *ConflictsHandler {
	return &ConflictsHandler{
		logger:    logger,
		conflicts: conflicts,
		resolver:  resolver,
	}
}

// List обрабатывает GET /api/v1/conflicts?status=open
// Пустой статус означает все конфликты
func (h *ConflictsHandler) List(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	userID, ok := GetUserID(ctx)
	if !ok {
		sendError(h.logger, w, "unauthorized", http.StatusUnauthorized)
		return
	}

	status := r.URL.Query().Get("status")
	switch status {
	case "", models.ConflictStatusOpen, models.ConflictStatusResolved:
	default:
		sendError(h.logger, w, "status must be open or resolved", http.StatusBadRequest)
		return
	}

	conflicts, err := h.conflicts.ListConflicts(ctx, userID, status)
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to list conflicts",
			slog.String("user_id", userID), slog.Any("error", err))
		sendError(h.logger, w, "internal server error", http.StatusInternalServerError)
		return
	}

	resp := api.ConflictsListResponse{
		Conflicts: make([]api.Conflict, 0, len(conflicts)),
		Total:     len(conflicts),
	}
	for _, conflict := range conflicts {
		resp.Conflicts = append(resp.Conflicts, conflictToAPI(conflict))
	}
	sendJSON(h.logger, w, resp, http.StatusOK)
}

// Resolve обрабатывает POST /api/v1/conflicts/{id}/resolve
func (h *ConflictsHandler) Resolve(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	userID, ok := GetUserID(ctx)
	if !ok {
		sendError(h.logger, w, "unauthorized", http.StatusUnauthorized)
		return
	}

	conflictID := r.PathValue("id")
	if conflictID == "" {
		sendError(h.logger, w, "conflict id is required", http.StatusBadRequest)
		return
	}

	var req api.ResolveConflictRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.WarnContext(ctx, "failed to decode resolve request", slog.Any("error", err))
		sendError(h.logger, w, "invalid request body", http.StatusBadRequest)
		return
	}

	record, err := h.resolver.ResolveConflict(ctx, userID, conflictID, req.Strategy, req.Merged)
	if err != nil {
		switch {
		case errors.Is(err, consensus.ErrUnknownStrategy):
			sendError(h.logger, w, err.Error(), http.StatusBadRequest)
		case errors.Is(err, storage.ErrConflictNotFound):
			sendError(h.logger, w, "conflict not found", http.StatusNotFound)
		case errors.Is(err, storage.ErrConflictAlreadyResolved):
			sendError(h.logger, w, "conflict is already resolved", http.StatusConflict)
		default:
			h.logger.ErrorContext(ctx, "failed to resolve conflict",
				slog.String("conflict_id", conflictID), slog.Any("error", err))
			sendError(h.logger, w, "internal server error", http.StatusInternalServerError)
		}
		return
	}

	h.logger.InfoContext(ctx, "conflict resolved",
		slog.String("conflict_id", conflictID),
		slog.String("strategy", req.Strategy),
		slog.String("record_id", record.ID))

	resp := api.ResolveConflictResponse{
		Record:  recordToAPI(record),
		Message: "conflict resolved",
	}
	sendJSON(h.logger, w, resp, http.StatusOK)
}
