package postgres

import (
	"context"
	"time"

	"github.com/geocoder89/seodash/internal/domain/token"
	"github.com/geocoder89/seodash/internal/observability"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// OneTimeTokensRepo backs both email verification and password reset
// tokens. The two tables differ only in which column scopes "one active
// token" and whether a user id is stored.
type OneTimeTokensRepo struct {
	base
	table   string
	scope   string
	withUID bool
}

func NewVerificationTokensRepo(pool *pgxpool.Pool, prom *observability.Prom) *OneTimeTokensRepo {
	return &OneTimeTokensRepo{
		base:  base{pool: pool, prom: prom},
		table: "email_verification_tokens",
		scope: "email",
	}
}

func NewResetTokensRepo(pool *pgxpool.Pool, prom *observability.Prom) *OneTimeTokensRepo {
	return &OneTimeTokensRepo{
		base:    base{pool: pool, prom: prom},
		table:   "password_reset_tokens",
		scope:   "user_id",
		withUID: true,
	}
}

func (r *OneTimeTokensRepo) op(name string) string {
	return r.table + "." + name
}

func (r *OneTimeTokensRepo) columns() string {
	uid := "NULL::text"
	if r.withUID {
		uid = "user_id::text"
	}
	return `id, ` + uid + `, email, token_hash, expires_at, used, used_at, created_at`
}

func (r *OneTimeTokensRepo) scan(row pgx.Row) (token.Token, error) {
	var t token.Token
	var uid *string

	err := row.Scan(&t.ID, &uid, &t.Email, &t.TokenHash, &t.ExpiresAt, &t.Used, &t.UsedAt, &t.CreatedAt)
	if uid != nil {
		t.UserID = *uid
	}
	return t, err
}

// Issue invalidates any unused token in the same scope and stores the new
// one, in a single transaction.
func (r *OneTimeTokensRepo) Issue(ctx context.Context, req token.IssueRequest) (token.Token, error) {
	now := time.Now().UTC()
	t := token.Token{
		ID:        uuid.NewString(),
		UserID:    req.UserID,
		Email:     req.Email,
		TokenHash: req.TokenHash,
		ExpiresAt: now.Add(req.TTL),
		CreatedAt: now,
	}

	scopeValue := req.Email
	if r.withUID {
		scopeValue = req.UserID
	}

	err := r.observe(r.op("issue"), func() error {
		return r.withTx(ctx, func(tx pgx.Tx) error {
			_, err := tx.Exec(ctx, `
				UPDATE `+r.table+`
				SET used = TRUE, used_at = $2
				WHERE `+r.scope+` = $1 AND NOT used`, scopeValue, now)
			if err != nil {
				return err
			}

			if r.withUID {
				_, err = tx.Exec(ctx, `
					INSERT INTO `+r.table+` (id, user_id, email, token_hash, expires_at, used, created_at)
					VALUES ($1, $2, $3, $4, $5, FALSE, $6)`,
					t.ID, t.UserID, t.Email, t.TokenHash, t.ExpiresAt, t.CreatedAt)
			} else {
				_, err = tx.Exec(ctx, `
					INSERT INTO `+r.table+` (id, email, token_hash, expires_at, used, created_at)
					VALUES ($1, $2, $3, $4, FALSE, $5)`,
					t.ID, t.Email, t.TokenHash, t.ExpiresAt, t.CreatedAt)
			}
			return err
		})
	})
	if err != nil {
		return token.Token{}, err
	}
	return t, nil
}

// FindValid returns the unused, unexpired token with hash.
func (r *OneTimeTokensRepo) FindValid(ctx context.Context, hash string) (token.Token, error) {
	var t token.Token

	err := r.observe(r.op("find_valid"), func() error {
		var err error
		t, err = r.scan(r.pool.QueryRow(ctx, `
			SELECT `+r.columns()+`
			FROM `+r.table+`
			WHERE token_hash = $1 AND NOT used AND expires_at > NOW()`, hash))
		return err
	})
	if err != nil {
		if isNoRows(err) {
			return token.Token{}, token.ErrTokenNotFound
		}
		return token.Token{}, err
	}
	return t, nil
}

// FindByHash returns the token regardless of state, so callers can tell
// a used link from an expired one.
func (r *OneTimeTokensRepo) FindByHash(ctx context.Context, hash string) (token.Token, error) {
	var t token.Token

	err := r.observe(r.op("find_by_hash"), func() error {
		var err error
		t, err = r.scan(r.pool.QueryRow(ctx, `
			SELECT `+r.columns()+` FROM `+r.table+` WHERE token_hash = $1`, hash))
		return err
	})
	if err != nil {
		if isNoRows(err) {
			return token.Token{}, token.ErrTokenNotFound
		}
		return token.Token{}, err
	}
	return t, nil
}

// MarkUsed redeems a token. A token that was already redeemed reports
// ErrTokenNotFound so concurrent redemptions cannot both succeed.
func (r *OneTimeTokensRepo) MarkUsed(ctx context.Context, id string) error {
	var tag pgconn.CommandTag

	err := r.observe(r.op("mark_used"), func() error {
		var err error
		tag, err = r.pool.Exec(ctx, `
			UPDATE `+r.table+` SET used = TRUE, used_at = NOW()
			WHERE id = $1 AND NOT used`, id)
		return err
	})
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return token.ErrTokenNotFound
	}
	return nil
}

// PurgeExpired deletes tokens that expired before cutoff.
func (r *OneTimeTokensRepo) PurgeExpired(ctx context.Context, cutoff time.Time) (int64, error) {
	var tag pgconn.CommandTag

	err := r.observe(r.op("purge_expired"), func() error {
		var err error
		tag, err = r.pool.Exec(ctx, `DELETE FROM `+r.table+` WHERE expires_at < $1`, cutoff)
		return err
	})
	return tag.RowsAffected(), err
}
