package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/geocoder89/seodash/internal/observability"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var ErrRefreshTokenNotFound = errors.New("refresh token not found")

type RefreshTokenRow struct {
	ID         string
	UserID     string
	TokenHash  string
	ExpiresAt  time.Time
	RevokedAt  *time.Time
	ReplacedBy *string
	CreatedAt  time.Time
}

type RefreshTokensRepo struct {
	base
}

func NewRefreshTokensRepo(pool *pgxpool.Pool, prom *observability.Prom) *RefreshTokensRepo {
	return &RefreshTokensRepo{base{pool: pool, prom: prom}}
}

// Save stores a freshly issued refresh token.
func (r *RefreshTokensRepo) Save(ctx context.Context, row RefreshTokenRow) error {
	return r.withTx(ctx, func(tx pgx.Tx) error {
		return r.Create(ctx, tx, row)
	})
}

// Rotate locks the presented token, lets check reject it, then replaces it
// with next. Concurrent rotations of one token serialize on the row lock,
// so only the first succeeds.
func (r *RefreshTokensRepo) Rotate(ctx context.Context, oldID string, check func(RefreshTokenRow) error, next RefreshTokenRow) error {
	return r.withTx(ctx, func(tx pgx.Tx) error {
		row, err := r.GetForUpdate(ctx, tx, oldID)
		if err != nil {
			return err
		}
		if err := check(row); err != nil {
			return err
		}
		if err := r.Revoke(ctx, tx, row.ID, &next.ID); err != nil {
			return err
		}
		return r.Create(ctx, tx, next)
	})
}

// RevokeByID is idempotent.
func (r *RefreshTokensRepo) RevokeByID(ctx context.Context, id string) error {
	return r.withTx(ctx, func(tx pgx.Tx) error {
		return r.Revoke(ctx, tx, id, nil)
	})
}

func (r *RefreshTokensRepo) Create(ctx context.Context, tx pgx.Tx, row RefreshTokenRow) error {
	return r.observe("refresh_tokens.create", func() error {
		_, err := tx.Exec(ctx, `
			INSERT INTO refresh_tokens (id, user_id, token_hash, expires_at, revoked_at, replaced_by, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			row.ID, row.UserID, row.TokenHash, row.ExpiresAt, row.RevokedAt, row.ReplacedBy, row.CreatedAt,
		)
		return err
	})
}

// GetForUpdate locks the row so two refreshes of the same token serialize.
func (r *RefreshTokensRepo) GetForUpdate(ctx context.Context, tx pgx.Tx, id string) (RefreshTokenRow, error) {
	var row RefreshTokenRow

	err := r.observe("refresh_tokens.get_for_update", func() error {
		return tx.QueryRow(ctx, `
			SELECT id, user_id, token_hash, expires_at, revoked_at, replaced_by, created_at
			FROM refresh_tokens
			WHERE id = $1
			FOR UPDATE`, id).Scan(
			&row.ID,
			&row.UserID,
			&row.TokenHash,
			&row.ExpiresAt,
			&row.RevokedAt,
			&row.ReplacedBy,
			&row.CreatedAt,
		)
	})
	if err != nil {
		if isNoRows(err) {
			return RefreshTokenRow{}, ErrRefreshTokenNotFound
		}
		return RefreshTokenRow{}, err
	}
	return row, nil
}

func (r *RefreshTokensRepo) Revoke(ctx context.Context, tx pgx.Tx, id string, replacedBy *string) error {
	return r.observe("refresh_tokens.revoke", func() error {
		_, err := tx.Exec(ctx, `
			UPDATE refresh_tokens
			SET revoked_at = NOW(), replaced_by = $2
			WHERE id = $1 AND revoked_at IS NULL`, id, replacedBy)
		return err
	})
}

// RevokeAllForUser ends every live session of a user, e.g. after a
// password reset.
func (r *RefreshTokensRepo) RevokeAllForUser(ctx context.Context, userID string) (int64, error) {
	var affected int64
	err := r.observe("refresh_tokens.revoke_all_for_user", func() error {
		tag, err := r.pool.Exec(ctx, `
			UPDATE refresh_tokens
			SET revoked_at = NOW()
			WHERE user_id = $1 AND revoked_at IS NULL`, userID)
		affected = tag.RowsAffected()
		return err
	})
	return affected, err
}

func (r *RefreshTokensRepo) PurgeExpired(ctx context.Context, cutoff time.Time) (int64, error) {
	var affected int64
	err := r.observe("refresh_tokens.purge_expired", func() error {
		tag, err := r.pool.Exec(ctx, `DELETE FROM refresh_tokens WHERE expires_at < $1`, cutoff)
		affected = tag.RowsAffected()
		return err
	})
	return affected, err
}
