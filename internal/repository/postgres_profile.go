package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/Dhoini/checkout-service/internal/models"
	"github.com/Dhoini/checkout-service/pkg/logger"
	"github.com/jmoiron/sqlx"
)

type postgresProfileRepo struct {
	db  *sqlx.DB
	log *logger.Logger
}

// NewPostgresProfileRepository создает репозиторий профилей для PostgreSQL.
func NewPostgresProfileRepository(db *sqlx.DB, log *logger.Logger) ProfileRepository {
	return &postgresProfileRepo{db: db, log: log}
}

func (r *postgresProfileRepo) GetByID(ctx context.Context, id string) (*models.Profile, error) {
	query := `SELECT id, full_name, phone_number, company_name, email, updated_at FROM profiles WHERE id = $1`

	var p models.Profile
	if err := r.db.GetContext(ctx, &p, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		r.log.Errorw("Failed to get profile", "error", err, "profileID", id)
		return nil, fmt.Errorf("db: get profile: %w", err)
	}
	return &p, nil
}

func (r *postgresProfileRepo) Upsert(ctx context.Context, profile *models.Profile) error {
	if profile.ID == "" {
		return fmt.Errorf("%w: profile id is empty", ErrInvalidData)
	}
	profile.UpdatedAt = time.Now().UTC()

	query := `
		INSERT INTO profiles (id, full_name, phone_number, company_name, email, updated_at)
		VALUES (:id, :full_name, :phone_number, :company_name, :email, :updated_at)
		ON CONFLICT (id) DO UPDATE SET
			full_name    = COALESCE(NULLIF(EXCLUDED.full_name, ''), profiles.full_name),
			phone_number = COALESCE(NULLIF(EXCLUDED.phone_number, ''), profiles.phone_number),
			company_name = COALESCE(NULLIF(EXCLUDED.company_name, ''), profiles.company_name),
			email        = COALESCE(NULLIF(EXCLUDED.email, ''), profiles.email),
			updated_at   = EXCLUDED.updated_at`

	if _, err := r.db.NamedExecContext(ctx, query, profile); err != nil {
		r.log.Errorw("Failed to upsert profile", "error", err, "profileID", profile.ID)
		return fmt.Errorf("db: upsert profile: %w", err)
	}
	return nil
}

func (r *postgresProfileRepo) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM profiles WHERE id = $1`, id)
	if err != nil {
		r.log.Errorw("Failed to delete profile", "error", err, "profileID", id)
		return fmt.Errorf("db: delete profile: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}
