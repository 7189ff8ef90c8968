package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/iudanet/finkeeper/internal/models"
	"github.com/iudanet/finkeeper/internal/server/storage"
)

const conflictColumns = `id, user_id, record_id, device_id, server_state, client_state,
		server_clock, client_clock, client_hash, status, strategy, detected_at, resolved_at`

// CreateConflict inserts a conflict entry and flips the record's sync status
// in the same transaction. Idempotent: an already open conflict for the same
// (record, client hash) pair is returned as is with created=false.
func (s *Storage) CreateConflict(ctx context.Context, conflict *models.Conflict) (*models.Conflict, bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	// Дедупликация ретраев: та же клиентская версия уже в конфликте
	existing, err := getOpenConflict(ctx, tx, conflict.RecordID, conflict.ClientHash)
	if err != nil && !errors.Is(err, storage.ErrConflictNotFound) {
		return nil, false, err
	}
	if existing != nil {
		return existing, false, nil
	}

	serverClock, err := marshalClock(conflict.ServerClock)
	if err != nil {
		return nil, false, err
	}
	clientClock, err := marshalClock(conflict.ClientClock)
	if err != nil {
		return nil, false, err
	}

	insertQuery := `
		INSERT INTO conflicts (` + conflictColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err = tx.ExecContext(ctx, insertQuery,
		conflict.ID,
		conflict.UserID,
		conflict.RecordID,
		conflict.DeviceID,
		string(conflict.ServerState),
		string(conflict.ClientState),
		serverClock,
		clientClock,
		conflict.ClientHash,
		conflict.Status,
		conflict.Strategy,
		conflict.DetectedAt,
		conflict.ResolvedAt,
	)
	if err != nil {
		// Частичный уникальный индекс страхует проверку выше
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			existing, getErr := getOpenConflict(ctx, tx, conflict.RecordID, conflict.ClientHash)
			if getErr != nil {
				return nil, false, getErr
			}
			return existing, false, nil
		}
		return nil, false, fmt.Errorf("failed to insert conflict: %w", err)
	}

	// Переводим запись в конфликтное состояние. Версия увеличивается,
	// чтобы конкурентный CAS-писатель со старой версией перечитал запись
	// и увидел конфликт.
	flipQuery := `
		UPDATE records
		SET sync_status = ?, conflict_count = conflict_count + 1,
			version = version + 1, updated_at = ?
		WHERE id = ? AND user_id = ?
	`

	result, err := tx.ExecContext(ctx, flipQuery,
		models.SyncStatusConflict,
		conflict.DetectedAt,
		conflict.RecordID,
		conflict.UserID,
	)
	if err != nil {
		return nil, false, fmt.Errorf("failed to flag record conflict: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return nil, false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return nil, false, storage.ErrRecordNotFound
	}

	if err := tx.Commit(); err != nil {
		return nil, false, fmt.Errorf("failed to commit transaction: %w", err)
	}

	return conflict, true, nil
}

// GetConflict retrieves a conflict by id
func (s *Storage) GetConflict(ctx context.Context, conflictID string) (*models.Conflict, error) {
	query := `
		SELECT ` + conflictColumns + `
		FROM conflicts
		WHERE id = ?
	`

	conflict, err := scanConflict(s.db.QueryRowContext(ctx, query, conflictID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, storage.ErrConflictNotFound
		}
		return nil, fmt.Errorf("failed to get conflict: %w", err)
	}

	return conflict, nil
}

// ListConflicts retrieves conflicts of a user, newest first
func (s *Storage) ListConflicts(ctx context.Context, userID, status string) ([]*models.Conflict, error) {
	query := `
		SELECT ` + conflictColumns + `
		FROM conflicts
		WHERE user_id = ?
	`
	args := []any{userID}

	if status != "" {
		query += ` AND status = ?`
		args = append(args, status)
	}
	query += ` ORDER BY detected_at DESC, id ASC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query conflicts: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var conflicts []*models.Conflict

	for rows.Next() {
		conflict, err := scanConflict(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan conflict: %w", err)
		}
		conflicts = append(conflicts, conflict)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration error: %w", err)
	}

	return conflicts, nil
}

// ApplyResolution persists a conflict resolution atomically: the resolved
// record is written through compare-and-swap and the conflict transitions
// open -> resolved in one transaction.
func (s *Storage) ApplyResolution(
	ctx context.Context,
	conflictID, strategy string,
	resolvedAt time.Time,
	record *models.Record,
	expectedVersion int64,
) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	var status string
	err = tx.QueryRowContext(ctx, `SELECT status FROM conflicts WHERE id = ?`, conflictID).Scan(&status)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return storage.ErrConflictNotFound
		}
		return fmt.Errorf("failed to get conflict status: %w", err)
	}
	if status != models.ConflictStatusOpen {
		return storage.ErrConflictAlreadyResolved
	}

	if err := updateRecordCAS(ctx, tx, record, expectedVersion); err != nil {
		return err
	}

	result, err := tx.ExecContext(ctx,
		`UPDATE conflicts SET status = ?, strategy = ?, resolved_at = ? WHERE id = ? AND status = ?`,
		models.ConflictStatusResolved,
		strategy,
		resolvedAt,
		conflictID,
		models.ConflictStatusOpen,
	)
	if err != nil {
		return fmt.Errorf("failed to resolve conflict: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return storage.ErrConflictAlreadyResolved
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

func getOpenConflict(ctx context.Context, q execer, recordID, clientHash string) (*models.Conflict, error) {
	query := `
		SELECT ` + conflictColumns + `
		FROM conflicts
		WHERE record_id = ? AND client_hash = ? AND status = ?
	`

	conflict, err := scanConflict(q.QueryRowContext(ctx, query, recordID, clientHash, models.ConflictStatusOpen))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, storage.ErrConflictNotFound
		}
		return nil, fmt.Errorf("failed to get open conflict: %w", err)
	}

	return conflict, nil
}

func scanConflict(row rowScanner) (*models.Conflict, error) {
	conflict := &models.Conflict{}
	var serverState, clientState, serverClock, clientClock string
	var resolvedAt sql.NullTime

	err := row.Scan(
		&conflict.ID,
		&conflict.UserID,
		&conflict.RecordID,
		&conflict.DeviceID,
		&serverState,
		&clientState,
		&serverClock,
		&clientClock,
		&conflict.ClientHash,
		&conflict.Status,
		&conflict.Strategy,
		&conflict.DetectedAt,
		&resolvedAt,
	)
	if err != nil {
		return nil, err
	}

	conflict.ServerState = []byte(serverState)
	conflict.ClientState = []byte(clientState)

	conflict.ServerClock, err = unmarshalClock(serverClock)
	if err != nil {
		return nil, err
	}
	conflict.ClientClock, err = unmarshalClock(clientClock)
	if err != nil {
		return nil, err
	}

	if resolvedAt.Valid {
		conflict.ResolvedAt = &resolvedAt.Time
	}

	return conflict, nil
}
