// Package replay восстанавливает финансовое состояние пользователя на любой
// момент прошлого: берется ближайший снапшот не позже целевой даты, поверх
// него в хронологическом порядке складываются дельты журнала. Реплей
// детерминирован и свободен от побочных эффектов: каждая свертка работает
// с собственной копией состояния.
package replay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/iudanet/finkeeper/internal/models"
	"github.com/iudanet/finkeeper/internal/server/storage"
)

// Options управляет объемом восстанавливаемого состояния
type Options struct {
	IncludeRecords  bool // IncludeRecords восстанавливать карту записей на момент даты
	IncludeMetadata bool // IncludeMetadata возвращать метаданные реплея
}

// Metadata описывает, как именно было восстановлено состояние
type Metadata struct {
	SnapshotTakenAt *time.Time    `json:"snapshot_taken_at,omitempty"` // SnapshotTakenAt момент базового снапшота (nil при реплее с нуля)
	SnapshotID      string        `json:"snapshot_id,omitempty"`       // SnapshotID идентификатор базового снапшота
	SnapshotType    string        `json:"snapshot_type,omitempty"`     // SnapshotType тип базового снапшота
	DeltasApplied   int           `json:"deltas_applied"`              // DeltasApplied число свернутых дельт
	Duration        time.Duration `json:"duration"`                    // Duration длительность реплея
}

// Engine восстанавливает исторические состояния из снапшотов и журнала дельт
type Engine struct {
	deltas    storage.DeltaStorage
	snapshots storage.SnapshotStorage
	logger    *slog.Logger
}

// NewEngine creates a time-travel replay engine
func NewEngine(deltas storage.DeltaStorage, snapshots storage.SnapshotStorage, logger *slog.Logger) *Engine {
	return &Engine{
		deltas:    deltas,
		snapshots: snapshots,
		logger:    logger,
	}
}

// ReplayToDate восстанавливает состояние пользователя на момент target.
// База — свежайший пригодный снапшот не позже target, поверх складываются
// дельты окна (снапшот, target]. Без снапшота свертка идет с нуля по всем
// дельтам не позже target. Карта записей в снапшоты не входит, поэтому при
// IncludeRecords дельты до снапшота тоже читаются, но применяются только
// к карте записей.
func (e *Engine) ReplayToDate(
	ctx context.Context,
	userID string,
	target time.Time,
	opts Options,
) (*models.State, *Metadata, error) {
	started := time.Now()

	state, snap, err := e.baseState(ctx, userID, target)
	if err != nil {
		return nil, nil, err
	}

	filter := storage.DeltaFilter{To: target}
	if snap != nil && !opts.IncludeRecords {
		filter.From = snap.TakenAt
	}

	deltas, err := e.deltas.ListDeltas(ctx, userID, filter)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to list deltas: %w", err)
	}

	applied := 0
	for _, delta := range deltas {
		// Агрегаты до снапшота уже учтены самим снапшотом
		if snap != nil && !delta.Timestamp.After(snap.TakenAt) {
			if err := applyRecord(state, delta); err != nil {
				return nil, nil, err
			}
			continue
		}
		if err := applyDelta(state, delta, opts.IncludeRecords); err != nil {
			return nil, nil, err
		}
		applied++
	}

	state.AsOf = target

	if !opts.IncludeMetadata {
		return state, nil, nil
	}

	meta := &Metadata{
		DeltasApplied: applied,
		Duration:      time.Since(started),
	}
	if snap != nil {
		takenAt := snap.TakenAt
		meta.SnapshotTakenAt = &takenAt
		meta.SnapshotID = snap.ID
		meta.SnapshotType = snap.Type
	}

	return state, meta, nil
}

// baseState подбирает базу реплея: свежайший пригодный снапшот не позже
// target либо пустое состояние. Снапшот, удаленный политикой удержания или
// испорченный между выбором и чтением, не фатален: берется следующий
// по старшинству, в худшем случае реплей идет с нуля.
func (e *Engine) baseState(
	ctx context.Context,
	userID string,
	target time.Time,
) (*models.State, *models.Snapshot, error) {
	metas, err := e.snapshots.ListSnapshots(ctx, userID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to list snapshots: %w", err)
	}

	for i := len(metas) - 1; i >= 0; i-- {
		meta := metas[i]
		if meta.TakenAt.After(target) {
			continue
		}

		snap, err := e.snapshots.GetSnapshot(ctx, userID, meta.TakenAt)
		if errors.Is(err, storage.ErrSnapshotNotFound) || errors.Is(err, storage.ErrSnapshotCorrupted) {
			e.logger.WarnContext(ctx, "snapshot unusable, trying older one",
				slog.String("user_id", userID),
				slog.Time("taken_at", meta.TakenAt),
				slog.Any("error", err))
			continue
		}
		if err != nil {
			return nil, nil, fmt.Errorf("failed to read snapshot: %w", err)
		}

		state := &models.State{}
		if err := json.Unmarshal(snap.State, state); err != nil {
			return nil, nil, fmt.Errorf("failed to unmarshal snapshot state: %w", err)
		}
		normalize(state)

		return state, snap, nil
	}

	return models.NewState(), nil, nil
}

// normalize восстанавливает пустые справочники после десериализации
func normalize(state *models.State) {
	if state.Categories == nil {
		state.Categories = make(map[string]decimal.Decimal)
	}
	if state.Accounts == nil {
		state.Accounts = make(map[string]decimal.Decimal)
	}
	if state.Budgets == nil {
		state.Budgets = []models.BudgetState{}
	}
	if state.Goals == nil {
		state.Goals = []models.GoalState{}
	}
}

// StateDiff — разница финансового состояния между двумя моментами времени
type StateDiff struct {
	From time.Time `json:"from"` // From начало сравнения
	To   time.Time `json:"to"`   // To конец сравнения

	ByCategory map[string]decimal.Decimal `json:"by_category,omitempty"` // ByCategory изменение оборота по категориям

	BalanceDelta  decimal.Decimal `json:"balance_delta"`  // BalanceDelta изменение общего баланса
	IncomeDelta   decimal.Decimal `json:"income_delta"`   // IncomeDelta изменение суммы доходов
	ExpensesDelta decimal.Decimal `json:"expenses_delta"` // ExpensesDelta изменение суммы расходов
	CountDelta    int             `json:"count_delta"`    // CountDelta изменение числа транзакций
}

// CompareStates реплеит состояние на два момента времени и возвращает
// разницу to - from. Оба реплея независимы, порядок дат не ограничен:
// сравнение в обратную сторону меняет знак.
func (e *Engine) CompareStates(ctx context.Context, userID string, from, to time.Time) (*StateDiff, error) {
	fromState, _, err := e.ReplayToDate(ctx, userID, from, Options{})
	if err != nil {
		return nil, err
	}
	toState, _, err := e.ReplayToDate(ctx, userID, to, Options{})
	if err != nil {
		return nil, err
	}

	diff := &StateDiff{
		From:          from,
		To:            to,
		BalanceDelta:  toState.Balance.Sub(fromState.Balance),
		IncomeDelta:   toState.TotalIncome.Sub(fromState.TotalIncome),
		ExpensesDelta: toState.TotalExpenses.Sub(fromState.TotalExpenses),
		CountDelta:    toState.TransactionCount - fromState.TransactionCount,
	}

	byCategory := make(map[string]decimal.Decimal)
	for category, total := range toState.Categories {
		byCategory[category] = total
	}
	for category, total := range fromState.Categories {
		byCategory[category] = byCategory[category].Sub(total)
	}
	for category, total := range byCategory {
		if total.IsZero() {
			delete(byCategory, category)
		}
	}
	if len(byCategory) > 0 {
		diff.ByCategory = byCategory
	}

	return diff, nil
}
