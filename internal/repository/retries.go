package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"campreg/internal/database"
	"campreg/internal/models"
)

type RetryRepository struct {
	db *database.DB
}

func NewRetryRepository(db *database.DB) *RetryRepository {
	return &RetryRepository{db: db}
}

const retryColumns = `id, user_id, intent, attempts, status, order_code, created_at, updated_at`

func (r *RetryRepository) Create(ctx context.Context, rec *models.RetryRecord) error {
	intentJSON, err := json.Marshal(rec.Intent)
	if err != nil {
		return fmt.Errorf("failed to marshal intent: %w", err)
	}
	attemptsJSON, err := json.Marshal(rec.Attempts)
	if err != nil {
		return fmt.Errorf("failed to marshal attempts: %w", err)
	}

	query := `
		INSERT INTO retry_records (id, user_id, intent, attempts, status, order_code)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at, updated_at`

	return r.db.QueryRowContext(ctx, query,
		rec.ID,
		rec.UserID,
		intentJSON,
		attemptsJSON,
		rec.Status,
		nullString(rec.OrderCode),
	).Scan(&rec.CreatedAt, &rec.UpdatedAt)
}

func (r *RetryRepository) GetByID(ctx context.Context, id string) (*models.RetryRecord, error) {
	query := `SELECT ` + retryColumns + ` FROM retry_records WHERE id = $1`

	rec, err := scanRetryRecord(r.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return rec, err
}

func (r *RetryRepository) GetByUserID(ctx context.Context, userID int64) ([]models.RetryRecord, error) {
	query := `SELECT ` + retryColumns + `
		FROM retry_records
		WHERE user_id = $1
		ORDER BY created_at DESC`

	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectRetryRecords(rows)
}

// Update applies the record's current state with a compare-and-set guard:
// the row is only written while it is still pending. The returned bool
// reports whether the write was applied; false means the record went
// terminal concurrently and the caller's result must not be committed.
func (r *RetryRepository) Update(ctx context.Context, rec *models.RetryRecord) (bool, error) {
	attemptsJSON, err := json.Marshal(rec.Attempts)
	if err != nil {
		return false, fmt.Errorf("failed to marshal attempts: %w", err)
	}

	query := `
		UPDATE retry_records
		SET attempts = $1, status = $2, order_code = $3, updated_at = NOW()
		WHERE id = $4 AND status = 'pending'`

	res, err := r.db.ExecContext(ctx, query,
		attemptsJSON,
		rec.Status,
		nullString(rec.OrderCode),
		rec.ID,
	)
	if err != nil {
		return false, err
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected == 1, nil
}

// GetPending returns all non-terminal records, oldest first. The worker uses
// this at startup to resume retries that survived a process restart.
func (r *RetryRepository) GetPending(ctx context.Context) ([]models.RetryRecord, error) {
	query := `SELECT ` + retryColumns + `
		FROM retry_records
		WHERE status = 'pending'
		ORDER BY created_at ASC`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectRetryRecords(rows)
}

// GetExpiredPending returns pending records created before the cutoff.
func (r *RetryRepository) GetExpiredPending(ctx context.Context, cutoff time.Time) ([]models.RetryRecord, error) {
	query := `SELECT ` + retryColumns + `
		FROM retry_records
		WHERE status = 'pending' AND created_at < $1
		ORDER BY created_at ASC`

	rows, err := r.db.QueryContext(ctx, query, cutoff)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectRetryRecords(rows)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRetryRecord(row rowScanner) (*models.RetryRecord, error) {
	var (
		rec          models.RetryRecord
		intentJSON   []byte
		attemptsJSON []byte
		orderCode    sql.NullString
	)

	err := row.Scan(
		&rec.ID,
		&rec.UserID,
		&intentJSON,
		&attemptsJSON,
		&rec.Status,
		&orderCode,
		&rec.CreatedAt,
		&rec.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal(intentJSON, &rec.Intent); err != nil {
		return nil, fmt.Errorf("failed to unmarshal intent: %w", err)
	}
	if err := json.Unmarshal(attemptsJSON, &rec.Attempts); err != nil {
		return nil, fmt.Errorf("failed to unmarshal attempts: %w", err)
	}
	rec.OrderCode = orderCode.String

	return &rec, nil
}

func collectRetryRecords(rows *sql.Rows) ([]models.RetryRecord, error) {
	var records []models.RetryRecord
	for rows.Next() {
		rec, err := scanRetryRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, *rec)
	}
	return records, rows.Err()
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
