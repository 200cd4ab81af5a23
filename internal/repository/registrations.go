package repository

import (
	"context"
	"database/sql"

	"campreg/internal/database"
	"campreg/internal/models"
)

type RegistrationRepository struct {
	db *database.DB
}

func NewRegistrationRepository(db *database.DB) *RegistrationRepository {
	return &RegistrationRepository{db: db}
}

// Create persists a registration. The table keeps one row per (user, event);
// resubmitting after a cancellation revives that row with the new order code
// instead of tripping the unique constraint.
func (r *RegistrationRepository) Create(ctx context.Context, reg *models.Registration) error {
	query := `
		INSERT INTO registrations (user_id, event_slug, order_code, identity, status)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (user_id, event_slug) DO UPDATE
		SET order_code = EXCLUDED.order_code,
		    identity = EXCLUDED.identity,
		    status = EXCLUDED.status,
		    updated_at = NOW()
		RETURNING id, created_at, updated_at`

	return r.db.QueryRowContext(ctx, query,
		reg.UserID,
		reg.EventSlug,
		reg.OrderCode,
		reg.Identity,
		reg.Status,
	).Scan(&reg.ID, &reg.CreatedAt, &reg.UpdatedAt)
}

func (r *RegistrationRepository) GetByUserAndEvent(ctx context.Context, userID int64, eventSlug string) (*models.Registration, error) {
	query := `
		SELECT id, user_id, event_slug, order_code, identity, status, created_at, updated_at
		FROM registrations
		WHERE user_id = $1 AND event_slug = $2`

	reg := &models.Registration{}
	err := r.db.QueryRowContext(ctx, query, userID, eventSlug).Scan(
		&reg.ID,
		&reg.UserID,
		&reg.EventSlug,
		&reg.OrderCode,
		&reg.Identity,
		&reg.Status,
		&reg.CreatedAt,
		&reg.UpdatedAt,
	)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	return reg, err
}

func (r *RegistrationRepository) GetByUser(ctx context.Context, userID int64) ([]models.Registration, error) {
	query := `
		SELECT id, user_id, event_slug, order_code, identity, status, created_at, updated_at
		FROM registrations
		WHERE user_id = $1
		ORDER BY created_at DESC`

	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var regs []models.Registration
	for rows.Next() {
		var reg models.Registration
		err := rows.Scan(
			&reg.ID,
			&reg.UserID,
			&reg.EventSlug,
			&reg.OrderCode,
			&reg.Identity,
			&reg.Status,
			&reg.CreatedAt,
			&reg.UpdatedAt,
		)
		if err != nil {
			return nil, err
		}
		regs = append(regs, reg)
	}

	return regs, rows.Err()
}

// UpdateStatusByOrder marks the registration for an external order code,
// used when a cancellation is confirmed upstream.
func (r *RegistrationRepository) UpdateStatusByOrder(ctx context.Context, orderCode, status string) error {
	query := `
		UPDATE registrations
		SET status = $1, updated_at = NOW()
		WHERE order_code = $2`

	_, err := r.db.ExecContext(ctx, query, status, orderCode)
	return err
}
