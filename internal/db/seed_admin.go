package db

import (
	"context"
	"errors"
	"time"

	"github.com/geocoder89/seodash/internal/config"
	"github.com/geocoder89/seodash/internal/domain/user"
	"github.com/geocoder89/seodash/internal/security"
	"github.com/geocoder89/seodash/internal/validation"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// EnsureSuperAdmin creates the configured super admin once. The account
// is born verified since nobody could verify it by email.
func EnsureSuperAdmin(ctx context.Context, pool *pgxpool.Pool, cfg config.Config) (bool, error) {
	if cfg.AdminEmail == "" || cfg.AdminPassword == "" {
		return false, nil
	}

	email := validation.NormalizeEmail(cfg.AdminEmail)

	var existing string
	err := pool.QueryRow(ctx, `SELECT id FROM users WHERE email = $1`, email).Scan(&existing)
	if err == nil {
		return false, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return false, err
	}

	hash, err := security.HashPassword(cfg.AdminPassword)
	if err != nil {
		return false, err
	}

	now := time.Now().UTC()

	_, err = pool.Exec(ctx, `
		INSERT INTO users (id, email, password_hash, name, role, is_active,
		                   email_verified, status, email_verified_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, TRUE, TRUE, $6, $7, $7, $7)
		ON CONFLICT (email) DO NOTHING
	`, uuid.NewString(), email, hash, cfg.AdminName, user.RoleSuperAdmin, user.StatusActive, now)
	if err != nil {
		return false, err
	}

	return true, nil
}
