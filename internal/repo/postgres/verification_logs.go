package postgres

import (
	"context"

	"github.com/geocoder89/seodash/internal/domain/token"
	"github.com/geocoder89/seodash/internal/observability"
	"github.com/jackc/pgx/v5/pgxpool"
)

type VerificationLogsRepo struct {
	base
}

func NewVerificationLogsRepo(pool *pgxpool.Pool, prom *observability.Prom) *VerificationLogsRepo {
	return &VerificationLogsRepo{base{pool: pool, prom: prom}}
}

func nullIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func (r *VerificationLogsRepo) Insert(ctx context.Context, entry token.VerificationLog) error {
	return r.observe("verification_logs.insert", func() error {
		_, err := r.pool.Exec(ctx, `
			INSERT INTO verification_logs (email, status, reason, ip, user_agent, created_at)
			VALUES ($1, $2, $3, $4, $5, $6)`,
			entry.Email, entry.Status, nullIfEmpty(entry.Reason),
			nullIfEmpty(entry.IP), nullIfEmpty(entry.UserAgent), entry.CreatedAt)
		return err
	})
}
