package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/iudanet/finkeeper/internal/models"
	"github.com/iudanet/finkeeper/internal/server/storage"
)

const deltaColumns = `seq, id, user_id, entity_type, entity_id, operation, reason, timestamp,
		actor, clock, before_state, after_state, changes, impact, caused_by, session_id, request_id`

// AppendDelta inserts a delta and assigns its global sequence number.
// Метки времени храним целыми наносекундами Unix: сравнение окон реплея
// должно быть точным и не зависеть от текстового формата дат.
func (s *Storage) AppendDelta(ctx context.Context, delta *models.Delta) error {
	query := `
		INSERT INTO deltas (id, user_id, entity_type, entity_id, operation, reason, timestamp,
			actor, clock, before_state, after_state, changes, impact, caused_by, session_id, request_id)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	clock, err := marshalClock(delta.Clock)
	if err != nil {
		return err
	}

	changes := delta.Changes
	if changes == nil {
		changes = []models.FieldChange{}
	}
	changesJSON, err := json.Marshal(changes)
	if err != nil {
		return fmt.Errorf("failed to marshal changes: %w", err)
	}

	impactJSON, err := json.Marshal(delta.Impact)
	if err != nil {
		return fmt.Errorf("failed to marshal impact: %w", err)
	}

	var before, after any
	if len(delta.Before) > 0 {
		before = string(delta.Before)
	}
	if len(delta.After) > 0 {
		after = string(delta.After)
	}

	result, err := s.db.ExecContext(ctx, query,
		delta.ID,
		delta.UserID,
		delta.EntityType,
		delta.EntityID,
		delta.Operation,
		delta.Reason,
		delta.Timestamp.UnixNano(),
		delta.Actor,
		clock,
		before,
		after,
		string(changesJSON),
		string(impactJSON),
		delta.CausedBy,
		delta.SessionID,
		delta.RequestID,
	)
	if err != nil {
		return fmt.Errorf("failed to insert delta: %w", err)
	}

	seq, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get delta seq: %w", err)
	}
	delta.Seq = seq

	return nil
}

// ListDeltas retrieves a user's deltas matching the filter in ascending order
func (s *Storage) ListDeltas(ctx context.Context, userID string, filter storage.DeltaFilter) ([]*models.Delta, error) {
	query := `
		SELECT ` + deltaColumns + `
		FROM deltas
		WHERE user_id = ?
	`
	args := []any{userID}

	// Окно (from, to]: нижняя граница исключается, верхняя включается
	if !filter.From.IsZero() {
		query += ` AND timestamp > ?`
		args = append(args, filter.From.UnixNano())
	}
	if !filter.To.IsZero() {
		query += ` AND timestamp <= ?`
		args = append(args, filter.To.UnixNano())
	}
	if filter.EntityType != "" {
		query += ` AND entity_type = ?`
		args = append(args, filter.EntityType)
	}
	if filter.Operation != "" {
		query += ` AND operation = ?`
		args = append(args, filter.Operation)
	}

	query += ` ORDER BY timestamp ASC, seq ASC`

	return s.queryDeltas(ctx, query, args...)
}

// ListDeltasByEntity retrieves all deltas of one entity in ascending order
func (s *Storage) ListDeltasByEntity(ctx context.Context, userID, entityID string) ([]*models.Delta, error) {
	query := `
		SELECT ` + deltaColumns + `
		FROM deltas
		WHERE user_id = ? AND entity_id = ?
		ORDER BY timestamp ASC, seq ASC
	`

	return s.queryDeltas(ctx, query, userID, entityID)
}

// GetDelta retrieves a delta by id
func (s *Storage) GetDelta(ctx context.Context, deltaID string) (*models.Delta, error) {
	query := `
		SELECT ` + deltaColumns + `
		FROM deltas
		WHERE id = ?
	`

	delta, err := scanDelta(s.db.QueryRowContext(ctx, query, deltaID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, storage.ErrDeltaNotFound
		}
		return nil, fmt.Errorf("failed to get delta: %w", err)
	}

	return delta, nil
}

// ListDeltasCausedBy retrieves deltas whose caused_by references the given delta
func (s *Storage) ListDeltasCausedBy(ctx context.Context, deltaID string) ([]*models.Delta, error) {
	query := `
		SELECT ` + deltaColumns + `
		FROM deltas
		WHERE caused_by = ?
		ORDER BY timestamp ASC, seq ASC
	`

	return s.queryDeltas(ctx, query, deltaID)
}

// ListActiveUsers возвращает пользователей, писавших дельты после since.
// Используется планировщиком снапшотов.
func (s *Storage) ListActiveUsers(ctx context.Context, since time.Time) ([]string, error) {
	query := `SELECT DISTINCT user_id FROM deltas WHERE timestamp > ? ORDER BY user_id`

	rows, err := s.db.QueryContext(ctx, query, since.UnixNano())
	if err != nil {
		return nil, fmt.Errorf("failed to query active users: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var users []string

	for rows.Next() {
		var userID string
		if err := rows.Scan(&userID); err != nil {
			return nil, fmt.Errorf("failed to scan user id: %w", err)
		}
		users = append(users, userID)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration error: %w", err)
	}

	return users, nil
}

func (s *Storage) queryDeltas(ctx context.Context, query string, args ...any) ([]*models.Delta, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query deltas: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var deltas []*models.Delta

	for rows.Next() {
		delta, err := scanDelta(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan delta: %w", err)
		}
		deltas = append(deltas, delta)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration error: %w", err)
	}

	return deltas, nil
}

func scanDelta(row rowScanner) (*models.Delta, error) {
	delta := &models.Delta{}
	var timestamp int64
	var clock, changes, impact string
	var before, after sql.NullString

	err := row.Scan(
		&delta.Seq,
		&delta.ID,
		&delta.UserID,
		&delta.EntityType,
		&delta.EntityID,
		&delta.Operation,
		&delta.Reason,
		&timestamp,
		&delta.Actor,
		&clock,
		&before,
		&after,
		&changes,
		&impact,
		&delta.CausedBy,
		&delta.SessionID,
		&delta.RequestID,
	)
	if err != nil {
		return nil, err
	}

	delta.Timestamp = time.Unix(0, timestamp).UTC()

	delta.Clock, err = unmarshalClock(clock)
	if err != nil {
		return nil, err
	}

	if before.Valid {
		delta.Before = []byte(before.String)
	}
	if after.Valid {
		delta.After = []byte(after.String)
	}

	if err := json.Unmarshal([]byte(changes), &delta.Changes); err != nil {
		return nil, fmt.Errorf("failed to unmarshal changes: %w", err)
	}
	if err := json.Unmarshal([]byte(impact), &delta.Impact); err != nil {
		return nil, fmt.Errorf("failed to unmarshal impact: %w", err)
	}

	return delta, nil
}
