package handlers

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/iudanet/finkeeper/internal/narrator"
	"github.com/iudanet/finkeeper/internal/replay"
	"github.com/iudanet/finkeeper/internal/server/storage"
	"github.com/iudanet/finkeeper/pkg/api"
)

// HistoryHandler обрабатывает запросы к исторической части движка:
// реплей состояния, сравнение, эволюцию и таймлайн журнала
type HistoryHandler struct {
	logger   *slog.Logger
	engine   *replay.Engine
	deltas   storage.DeltaStorage
	narrator narrator.Narrator
}

// NewHistoryHandler создает handler истории
func NewHistoryHandler(
	logger *slog.Logger,
	engine *replay.Engine,
	deltas storage.DeltaStorage,
	narr narrator.Narrator,
) *HistoryHandler {
	return &HistoryHandler{
		logger:   logger,
		engine:   engine,
		deltas:   deltas,
		narrator: narr,
	}
}

// State обрабатывает GET /api/v1/history/state?at=RFC3339&records=true
// Без параметра at возвращается текущее состояние
func (h *HistoryHandler) State(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	userID, ok := GetUserID(ctx)
	if !ok {
		sendError(h.logger, w, "unauthorized", http.StatusUnauthorized)
		return
	}

	at := time.Now().UTC()
	if raw := r.URL.Query().Get("at"); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			sendError(h.logger, w, "invalid 'at' parameter: expected RFC3339", http.StatusBadRequest)
			return
		}
		at = parsed
	}
	includeRecords := r.URL.Query().Get("records") == "true"

	state, meta, err := h.engine.ReplayToDate(ctx, userID, at, replay.Options{
		IncludeRecords:  includeRecords,
		IncludeMetadata: true,
	})
	if err != nil {
		h.logger.ErrorContext(ctx, "replay failed",
			slog.String("user_id", userID),
			slog.Time("at", at),
			slog.Any("error", err))
		sendError(h.logger, w, "internal server error", http.StatusInternalServerError)
		return
	}

	sendJSON(h.logger, w, stateToAPI(state, meta), http.StatusOK)
}

// Diff обрабатывает GET /api/v1/history/diff?from=RFC3339&to=RFC3339
func (h *HistoryHandler) Diff(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	userID, ok := GetUserID(ctx)
	if !ok {
		sendError(h.logger, w, "unauthorized", http.StatusUnauthorized)
		return
	}

	from, to, err := parseRange(r, "from", "to")
	if err != nil {
		sendError(h.logger, w, err.Error(), http.StatusBadRequest)
		return
	}

	diff, err := h.engine.CompareStates(ctx, userID, from, to)
	if err != nil {
		h.logger.ErrorContext(ctx, "state comparison failed",
			slog.String("user_id", userID), slog.Any("error", err))
		sendError(h.logger, w, "internal server error", http.StatusInternalServerError)
		return
	}

	period := fmt.Sprintf("%s to %s", from.Format("2006-01-02"), to.Format("2006-01-02"))
	summary := h.narrator.SummarizeDiff(ctx, diff, period)

	sendJSON(h.logger, w, diffToAPI(diff, summary), http.StatusOK)
}

// Evolution обрабатывает GET /api/v1/history/evolution?start&end&interval
// Обе границы диапазона включаются в выборку
func (h *HistoryHandler) Evolution(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	userID, ok := GetUserID(ctx)
	if !ok {
		sendError(h.logger, w, "unauthorized", http.StatusUnauthorized)
		return
	}

	start, end, err := parseRange(r, "start", "end")
	if err != nil {
		sendError(h.logger, w, err.Error(), http.StatusBadRequest)
		return
	}
	interval := replay.Interval(r.URL.Query().Get("interval"))
	if interval == "" {
		interval = replay.IntervalDaily
	}

	evo, err := h.engine.Evolution(userID, start, end, interval)
	if err != nil {
		sendError(h.logger, w, err.Error(), http.StatusBadRequest)
		return
	}

	resp := api.EvolutionResponse{
		Start:    start,
		End:      end,
		Interval: string(interval),
		Points:   []api.EvolutionPoint{},
	}
	for evo.Next(ctx) {
		point := evo.Point()
		resp.Points = append(resp.Points, api.EvolutionPoint{
			At:               point.At,
			Balance:          point.State.Balance.String(),
			TotalIncome:      point.State.TotalIncome.String(),
			TotalExpenses:    point.State.TotalExpenses.String(),
			TransactionCount: point.State.TransactionCount,
		})
	}
	if err := evo.Err(); err != nil {
		h.logger.ErrorContext(ctx, "evolution failed",
			slog.String("user_id", userID), slog.Any("error", err))
		sendError(h.logger, w, "internal server error", http.StatusInternalServerError)
		return
	}

	sendJSON(h.logger, w, resp, http.StatusOK)
}

// Timeline обрабатывает GET /api/v1/history/timeline?from&to
// Дельты отдаются в каузальном порядке с текстовыми описаниями
func (h *HistoryHandler) Timeline(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	userID, ok := GetUserID(ctx)
	if !ok {
		sendError(h.logger, w, "unauthorized", http.StatusUnauthorized)
		return
	}

	from, to, err := parseRange(r, "from", "to")
	if err != nil {
		sendError(h.logger, w, err.Error(), http.StatusBadRequest)
		return
	}

	deltas, err := h.deltas.ListDeltas(ctx, userID, storage.DeltaFilter{From: from, To: to})
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to list deltas",
			slog.String("user_id", userID), slog.Any("error", err))
		sendError(h.logger, w, "internal server error", http.StatusInternalServerError)
		return
	}

	resp := api.TimelineResponse{
		From:    from,
		To:      to,
		Entries: make([]api.TimelineEntry, 0, len(deltas)),
		Total:   len(deltas),
	}
	for _, delta := range deltas {
		text := h.narrator.DescribeDelta(ctx, delta)
		resp.Entries = append(resp.Entries, deltaToTimeline(delta, text))
	}

	sendJSON(h.logger, w, resp, http.StatusOK)
}

// parseRange разбирает пару обязательных RFC3339 параметров запроса
func parseRange(r *http.Request, fromKey, toKey string) (from, to time.Time, err error) {
	rawFrom := r.URL.Query().Get(fromKey)
	rawTo := r.URL.Query().Get(toKey)
	if rawFrom == "" || rawTo == "" {
		return time.Time{}, time.Time{}, fmt.Errorf("'%s' and '%s' parameters are required", fromKey, toKey)
	}
	from, err = time.Parse(time.RFC3339, rawFrom)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("invalid '%s' parameter: expected RFC3339", fromKey)
	}
	to, err = time.Parse(time.RFC3339, rawTo)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("invalid '%s' parameter: expected RFC3339", toKey)
	}
	return from, to, nil
}
