package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/iudanet/finkeeper/internal/models"
	"github.com/iudanet/finkeeper/internal/server/storage"
	"github.com/iudanet/finkeeper/internal/vclock"
)

// execer объединяет *sql.DB и *sql.Tx: методы записей переиспользуются
// внутри транзакций конфликтов.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// rowScanner объединяет *sql.Row и *sql.Rows
type rowScanner interface {
	Scan(dest ...any) error
}

const recordColumns = `id, user_id, type, amount, currency, category, account, counter_account,
		note, occurred_at, clock, content_hash, sync_status, conflict_count, version, deleted,
		created_at, updated_at`

// CreateRecord inserts a new record
func (s *Storage) CreateRecord(ctx context.Context, record *models.Record) error {
	query := `
		INSERT INTO records (` + recordColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	clock, err := marshalClock(record.Clock)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx, query,
		record.ID,
		record.UserID,
		record.Type,
		record.Amount.String(),
		record.Currency,
		record.Category,
		record.Account,
		record.CounterAccount,
		record.Note,
		record.OccurredAt,
		clock,
		record.ContentHash,
		record.SyncStatus,
		record.ConflictCount,
		record.Version,
		record.Deleted,
		record.CreatedAt,
		record.UpdatedAt,
	)

	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return storage.ErrRecordAlreadyExists
		}
		return fmt.Errorf("failed to insert record: %w", err)
	}

	return nil
}

// GetRecord retrieves a record by id scoped to its owner
func (s *Storage) GetRecord(ctx context.Context, userID, recordID string) (*models.Record, error) {
	return getRecord(ctx, s.db, userID, recordID)
}

func getRecord(ctx context.Context, q execer, userID, recordID string) (*models.Record, error) {
	query := `
		SELECT ` + recordColumns + `
		FROM records
		WHERE id = ? AND user_id = ?
	`

	record, err := scanRecord(q.QueryRowContext(ctx, query, recordID, userID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, storage.ErrRecordNotFound
		}
		return nil, fmt.Errorf("failed to get record: %w", err)
	}

	return record, nil
}

// UpdateRecordCAS persists record fields via compare-and-swap on version
func (s *Storage) UpdateRecordCAS(ctx context.Context, record *models.Record, expectedVersion int64) error {
	return updateRecordCAS(ctx, s.db, record, expectedVersion)
}

// updateRecordCAS пишет содержимое записи только если версия в хранилище
// не изменилась с момента чтения. Любая успешная запись увеличивает версию,
// поэтому два конкурентных писателя с одной версией никогда не применятся оба.
func updateRecordCAS(ctx context.Context, q execer, record *models.Record, expectedVersion int64) error {
	query := `
		UPDATE records
		SET type = ?, amount = ?, currency = ?, category = ?, account = ?,
			counter_account = ?, note = ?, occurred_at = ?, clock = ?, content_hash = ?,
			sync_status = ?, conflict_count = ?, version = version + 1, deleted = ?, updated_at = ?
		WHERE id = ? AND user_id = ? AND version = ?
	`

	clock, err := marshalClock(record.Clock)
	if err != nil {
		return err
	}

	result, err := q.ExecContext(ctx, query,
		record.Type,
		record.Amount.String(),
		record.Currency,
		record.Category,
		record.Account,
		record.CounterAccount,
		record.Note,
		record.OccurredAt,
		clock,
		record.ContentHash,
		record.SyncStatus,
		record.ConflictCount,
		record.Deleted,
		record.UpdatedAt,
		record.ID,
		record.UserID,
		expectedVersion,
	)

	if err != nil {
		return fmt.Errorf("failed to update record: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rows == 0 {
		// Различаем отсутствие записи и проигранную гонку версий
		var exists int
		err := q.QueryRowContext(ctx,
			`SELECT COUNT(1) FROM records WHERE id = ? AND user_id = ?`,
			record.ID, record.UserID,
		).Scan(&exists)
		if err != nil {
			return fmt.Errorf("failed to check record existence: %w", err)
		}
		if exists == 0 {
			return storage.ErrRecordNotFound
		}
		return storage.ErrVersionMismatch
	}

	record.Version = expectedVersion + 1

	return nil
}

// ListRecords retrieves all records of a user ordered by occurred_at
func (s *Storage) ListRecords(ctx context.Context, userID string, includeDeleted bool) ([]*models.Record, error) {
	query := `
		SELECT ` + recordColumns + `
		FROM records
		WHERE user_id = ?
	`
	if !includeDeleted {
		query += ` AND deleted = 0`
	}
	query += ` ORDER BY occurred_at ASC, id ASC`

	return s.queryRecords(ctx, query, userID)
}

// ListRecordsUpdatedSince retrieves records changed after the given time
func (s *Storage) ListRecordsUpdatedSince(ctx context.Context, userID string, since time.Time) ([]*models.Record, error) {
	query := `
		SELECT ` + recordColumns + `
		FROM records
		WHERE user_id = ? AND updated_at > ?
		ORDER BY updated_at ASC, id ASC
	`

	return s.queryRecords(ctx, query, userID, since)
}

func (s *Storage) queryRecords(ctx context.Context, query string, args ...any) ([]*models.Record, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query records: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var records []*models.Record

	for rows.Next() {
		record, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan record: %w", err)
		}
		records = append(records, record)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration error: %w", err)
	}

	return records, nil
}

func scanRecord(row rowScanner) (*models.Record, error) {
	record := &models.Record{}
	var amount, clock string

	err := row.Scan(
		&record.ID,
		&record.UserID,
		&record.Type,
		&amount,
		&record.Currency,
		&record.Category,
		&record.Account,
		&record.CounterAccount,
		&record.Note,
		&record.OccurredAt,
		&clock,
		&record.ContentHash,
		&record.SyncStatus,
		&record.ConflictCount,
		&record.Version,
		&record.Deleted,
		&record.CreatedAt,
		&record.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	record.Amount, err = decimal.NewFromString(amount)
	if err != nil {
		return nil, fmt.Errorf("failed to parse amount: %w", err)
	}

	record.Clock, err = unmarshalClock(clock)
	if err != nil {
		return nil, err
	}

	return record, nil
}

func marshalClock(c vclock.Clock) (string, error) {
	if c == nil {
		c = vclock.New()
	}
	data, err := json.Marshal(c)
	if err != nil {
		return "", fmt.Errorf("failed to marshal clock: %w", err)
	}
	return string(data), nil
}

func unmarshalClock(data string) (vclock.Clock, error) {
	clock := vclock.New()
	if err := json.Unmarshal([]byte(data), &clock); err != nil {
		return nil, fmt.Errorf("failed to unmarshal clock: %w", err)
	}
	return clock, nil
}
