// Package snapshot периодически снимает контрольные снимки состояния
// пользователей и применяет политику удержания. Снапшоты ускоряют реплей,
// но не влияют на его корректность: журнал дельт остается единственным
// источником истины, и реплей переживает потерю любого снапшота.
package snapshot

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/iudanet/finkeeper/internal/integrity"
	"github.com/iudanet/finkeeper/internal/models"
	"github.com/iudanet/finkeeper/internal/replay"
	"github.com/iudanet/finkeeper/internal/server/storage"
)

var ErrUnknownSnapshotType = errors.New("unknown snapshot type")

// Периодичность планового снятия по типам. On-demand снапшоты
// планировщиком не снимаются.
var cadence = map[string]time.Duration{
	models.SnapshotDaily:   24 * time.Hour,
	models.SnapshotWeekly:  7 * 24 * time.Hour,
	models.SnapshotMonthly: 30 * 24 * time.Hour,
}

// Политика удержания по типам.
var retention = map[string]time.Duration{
	models.SnapshotDaily:    30 * 24 * time.Hour,
	models.SnapshotWeekly:   180 * 24 * time.Hour,
	models.SnapshotMonthly:  2 * 365 * 24 * time.Hour,
	models.SnapshotOnDemand: 90 * 24 * time.Hour,
}

// retentionHorizon — самое долгое удержание; пользователи без активности
// за этот срок не имеют снапшотов, подлежащих удалению.
const retentionHorizon = 2 * 365 * 24 * time.Hour

var scheduledTypes = []string{
	models.SnapshotDaily,
	models.SnapshotWeekly,
	models.SnapshotMonthly,
}

// Replayer восстанавливает состояние пользователя на момент времени
type Replayer interface {
	ReplayToDate(
		ctx context.Context,
		userID string,
		target time.Time,
		opts replay.Options,
	) (*models.State, *replay.Metadata, error)
}

// ActivitySource перечисляет пользователей, писавших дельты после since
type ActivitySource interface {
	ListActiveUsers(ctx context.Context, since time.Time) ([]string, error)
}

// Service снимает снапшоты состояния и применяет политику удержания
type Service struct {
	replayer  Replayer
	snapshots storage.SnapshotStorage
	activity  ActivitySource
	logger    *slog.Logger
	interval  time.Duration // interval шаг планировщика
}

func NewService(
	replayer Replayer,
	snapshots storage.SnapshotStorage,
	activity ActivitySource,
	interval time.Duration,
	logger *slog.Logger,
) *Service {
	return &Service{
		replayer:  replayer,
		snapshots: snapshots,
		activity:  activity,
		logger:    logger,
		interval:  interval,
	}
}

// Capture снимает снапшот текущего состояния пользователя. Состояние
// реплеится из журнала, сериализуется и хешируется; сжатием занимается
// хранилище снапшотов.
func (s *Service) Capture(ctx context.Context, userID, snapshotType string) (*models.Snapshot, error) {
	switch snapshotType {
	case models.SnapshotDaily, models.SnapshotWeekly, models.SnapshotMonthly, models.SnapshotOnDemand:
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownSnapshotType, snapshotType)
	}

	now := time.Now().UTC()

	state, _, err := s.replayer.ReplayToDate(ctx, userID, now, replay.Options{})
	if err != nil {
		return nil, fmt.Errorf("failed to replay state: %w", err)
	}

	// Блоб канонический: момент времени несет TakenAt, а одинаковые
	// состояния дают одинаковые байты и одинаковый хеш. Реплей при
	// восстановлении выставляет AsOf заново.
	state.AsOf = time.Time{}

	raw, err := json.Marshal(state)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal state: %w", err)
	}

	hash := integrity.HashWithDomain(integrity.DomainSnapshot, raw)

	// Повторный on-demand запрос при неизменном состоянии возвращает
	// существующий снапшот вместо нового блоба. Плановые типы пишутся
	// всегда: периодичность считается по TakenAt последнего снапшота типа.
	if snapshotType == models.SnapshotOnDemand {
		latest, lookupErr := s.snapshots.LatestSnapshotBefore(ctx, userID, now)
		if lookupErr == nil && latest.Type == models.SnapshotOnDemand && latest.StateHash == hash {
			return latest, nil
		}
	}

	snapshot := &models.Snapshot{
		ID:          uuid.New().String(),
		UserID:      userID,
		Type:        snapshotType,
		TakenAt:     now,
		CreatedAt:   now,
		State:       raw,
		StateHash:   hash,
		SizeBytes:   int64(len(raw)),
		RecordCount: state.TransactionCount,
	}

	if err := s.snapshots.SaveSnapshot(ctx, snapshot); err != nil {
		return nil, fmt.Errorf("failed to save snapshot: %w", err)
	}

	s.logger.InfoContext(ctx, "snapshot captured",
		slog.String("user_id", userID),
		slog.String("type", snapshotType),
		slog.Int("record_count", snapshot.RecordCount),
		slog.Int64("size_bytes", snapshot.SizeBytes),
	)

	return snapshot, nil
}

// Run запускает планировщик и блокируется до отмены контекста.
// Каждый тик снимает просроченные плановые снапшоты активных
// пользователей и применяет политику удержания.
func (s *Service) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.logger.InfoContext(ctx, "snapshot scheduler started",
		slog.Duration("interval", s.interval))

	for {
		select {
		case <-ticker.C:
			s.tick(ctx)
		case <-ctx.Done():
			s.logger.InfoContext(ctx, "snapshot scheduler stopped")
			return
		}
	}
}

func (s *Service) tick(ctx context.Context) {
	since := time.Now().UTC().Add(-2 * s.interval)

	users, err := s.activity.ListActiveUsers(ctx, since)
	if err != nil {
		s.logger.ErrorContext(ctx, "failed to list active users",
			slog.Any("error", err))
		return
	}

	for _, userID := range users {
		s.captureDue(ctx, userID)
	}

	if _, err := s.Prune(ctx); err != nil {
		s.logger.ErrorContext(ctx, "failed to prune snapshots",
			slog.Any("error", err))
	}
}

// captureDue снимает снапшоты тех плановых типов, чья периодичность
// для пользователя истекла. Ошибка одного типа не мешает остальным.
func (s *Service) captureDue(ctx context.Context, userID string) {
	metas, err := s.snapshots.ListSnapshots(ctx, userID)
	if err != nil {
		s.logger.ErrorContext(ctx, "failed to list snapshots",
			slog.String("user_id", userID),
			slog.Any("error", err))
		return
	}

	now := time.Now().UTC()

	for _, snapshotType := range scheduledTypes {
		if !due(metas, snapshotType, now) {
			continue
		}
		if _, err := s.Capture(ctx, userID, snapshotType); err != nil {
			s.logger.ErrorContext(ctx, "failed to capture snapshot",
				slog.String("user_id", userID),
				slog.String("type", snapshotType),
				slog.Any("error", err))
		}
	}
}

// due сообщает, пора ли снимать снапшот данного типа
func due(metas []*models.Snapshot, snapshotType string, now time.Time) bool {
	var last time.Time
	for _, meta := range metas {
		if meta.Type == snapshotType && meta.TakenAt.After(last) {
			last = meta.TakenAt
		}
	}

	if last.IsZero() {
		return true
	}

	return now.Sub(last) >= cadence[snapshotType]
}

// Prune применяет политику удержания к снапшотам недавно активных
// пользователей и возвращает число удаленных. Удаление безопасно
// одновременно с реплеем: реплей, не заставший снапшот, откатывается
// на более старый или идет с нуля.
func (s *Service) Prune(ctx context.Context) (int, error) {
	now := time.Now().UTC()

	users, err := s.activity.ListActiveUsers(ctx, now.Add(-retentionHorizon))
	if err != nil {
		return 0, fmt.Errorf("failed to list active users: %w", err)
	}

	removed := 0

	for _, userID := range users {
		n, err := s.pruneUser(ctx, userID, now)
		removed += n
		if err != nil {
			return removed, err
		}
	}

	if removed > 0 {
		s.logger.InfoContext(ctx, "snapshots pruned",
			slog.Int("removed", removed))
	}

	return removed, nil
}

func (s *Service) pruneUser(ctx context.Context, userID string, now time.Time) (int, error) {
	removed := 0

	for snapshotType, keep := range retention {
		n, err := s.snapshots.DeleteSnapshotsOlderThan(ctx, userID, snapshotType, now.Add(-keep))
		removed += n
		if err != nil {
			return removed, fmt.Errorf("failed to prune %s snapshots: %w", snapshotType, err)
		}
	}

	return removed, nil
}
