package postgres

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/geocoder89/seodash/internal/domain/token"
	"github.com/geocoder89/seodash/internal/domain/user"
	"github.com/geocoder89/seodash/internal/observability"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const userColumns = `id, email, password_hash, name, role, site_link, accessible_sites,
	is_active, email_verified, status, email_verified_at, created_by, created_at, updated_at`

type UsersRepo struct {
	base
}

func NewUsersRepo(pool *pgxpool.Pool, prom *observability.Prom) *UsersRepo {
	return &UsersRepo{base{pool: pool, prom: prom}}
}

func scanUser(row pgx.Row) (user.User, error) {
	var u user.User

	err := row.Scan(
		&u.ID,
		&u.Email,
		&u.PasswordHash,
		&u.Name,
		&u.Role,
		&u.SiteLink,
		&u.AccessibleSites,
		&u.IsActive,
		&u.EmailVerified,
		&u.Status,
		&u.EmailVerifiedAt,
		&u.CreatedBy,
		&u.CreatedAt,
		&u.UpdatedAt,
	)
	if u.AccessibleSites == nil {
		u.AccessibleSites = []string{}
	}
	return u, err
}

func (r *UsersRepo) getOne(ctx context.Context, op, where string, arg any) (user.User, error) {
	var u user.User

	err := r.observe(op, func() error {
		var err error
		u, err = scanUser(r.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE `+where, arg))
		return err
	})
	if err != nil {
		if isNoRows(err) {
			return user.User{}, user.ErrUserNotFound
		}
		return user.User{}, err
	}
	return u, nil
}

func (r *UsersRepo) GetByEmail(ctx context.Context, email string) (user.User, error) {
	return r.getOne(ctx, "users.get_by_email", "email = $1", email)
}

func (r *UsersRepo) GetByID(ctx context.Context, id string) (user.User, error) {
	if _, err := uuid.Parse(id); err != nil {
		return user.User{}, user.ErrUserNotFound
	}
	return r.getOne(ctx, "users.get_by_id", "id = $1", id)
}

// Create inserts a pending, unverified account.
func (r *UsersRepo) Create(ctx context.Context, req user.CreateRequest) (user.User, error) {
	now := time.Now().UTC()
	var u user.User

	err := r.observe("users.create", func() error {
		var err error
		u, err = scanUser(r.pool.QueryRow(ctx, `
			INSERT INTO users (id, email, password_hash, name, role, site_link, accessible_sites,
			                   is_active, email_verified, status, created_by, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, '{}', TRUE, FALSE, $7, $8, $9, $9)
			RETURNING `+userColumns,
			uuid.NewString(), req.Email, req.PasswordHash, req.Name, req.Role, req.SiteLink,
			user.StatusPending, req.CreatedBy, now,
		))
		return err
	})
	if err != nil {
		if IsUniqueViolation(err) {
			return user.User{}, user.ErrEmailTaken
		}
		return user.User{}, err
	}
	return u, nil
}

func (r *UsersRepo) list(ctx context.Context, op, query string, args ...any) ([]user.User, error) {
	var rows pgx.Rows

	err := r.observe(op, func() error {
		var qerr error
		rows, qerr = r.pool.Query(ctx, query, args...)
		return qerr
	})
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]user.User, 0)
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

func (r *UsersRepo) List(ctx context.Context, includeInactive bool) ([]user.User, error) {
	q := `SELECT ` + userColumns + ` FROM users`
	if !includeInactive {
		q += ` WHERE is_active`
	}
	q += ` ORDER BY created_at DESC`

	return r.list(ctx, "users.list", q)
}

// ListWithSites returns active accounts that have a site linked.
func (r *UsersRepo) ListWithSites(ctx context.Context) ([]user.User, error) {
	return r.list(ctx, "users.list_with_sites", `
		SELECT `+userColumns+`
		FROM users
		WHERE is_active AND site_link IS NOT NULL AND site_link <> ''
		ORDER BY created_at ASC`)
}

func (r *UsersRepo) ListSuperAdmins(ctx context.Context) ([]user.User, error) {
	return r.list(ctx, "users.list_super_admins", `
		SELECT `+userColumns+`
		FROM users
		WHERE role = $1 AND is_active
		ORDER BY created_at ASC`, user.RoleSuperAdmin)
}

func (r *UsersRepo) Update(ctx context.Context, id string, req user.UpdateRequest) (user.User, error) {
	if _, err := uuid.Parse(id); err != nil {
		return user.User{}, user.ErrUserNotFound
	}

	sets := []string{"updated_at = NOW()"}
	args := []any{id}
	add := func(col string, v any) {
		args = append(args, v)
		sets = append(sets, fmt.Sprintf("%s = $%d", col, len(args)))
	}

	if req.Name != nil {
		add("name", *req.Name)
	}
	if req.Role != nil {
		add("role", *req.Role)
	}
	if req.ClearSiteLink {
		sets = append(sets, "site_link = NULL")
	} else if req.SiteLink != nil {
		add("site_link", *req.SiteLink)
	}
	if req.AccessibleSites != nil {
		add("accessible_sites", *req.AccessibleSites)
	}
	if req.IsActive != nil {
		add("is_active", *req.IsActive)
	}

	q := `UPDATE users SET ` + strings.Join(sets, ", ") + ` WHERE id = $1 RETURNING ` + userColumns

	var u user.User
	err := r.observe("users.update", func() error {
		var err error
		u, err = scanUser(r.pool.QueryRow(ctx, q, args...))
		return err
	})
	if err != nil {
		if isNoRows(err) {
			return user.User{}, user.ErrUserNotFound
		}
		return user.User{}, err
	}
	return u, nil
}

// Delete removes the user. Reports, refresh and reset tokens cascade by
// foreign key; verification tokens are keyed by email and go in the same
// transaction.
func (r *UsersRepo) Delete(ctx context.Context, id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return user.ErrUserNotFound
	}

	return r.observe("users.delete", func() error {
		return r.withTx(ctx, func(tx pgx.Tx) error {
			var email string
			err := tx.QueryRow(ctx, `DELETE FROM users WHERE id = $1 RETURNING email`, id).Scan(&email)
			if err != nil {
				if isNoRows(err) {
					return user.ErrUserNotFound
				}
				return err
			}

			_, err = tx.Exec(ctx, `DELETE FROM email_verification_tokens WHERE email = $1`, email)
			return err
		})
	})
}

// MarkVerified activates the account behind a redeemed verification link.
func (r *UsersRepo) MarkVerified(ctx context.Context, id string, at time.Time) error {
	var affected int64
	err := r.observe("users.mark_verified", func() error {
		tag, err := r.pool.Exec(ctx, `
			UPDATE users
			SET email_verified = TRUE,
			    status = $2,
			    email_verified_at = $3,
			    updated_at = NOW()
			WHERE id = $1`, id, user.StatusActive, at)
		affected = tag.RowsAffected()
		return err
	})
	if err != nil {
		return err
	}
	if affected == 0 {
		return user.ErrUserNotFound
	}
	return nil
}

// ResetPassword redeems the reset token and stores the new password hash
// atomically. A spent or expired token reports token.ErrTokenNotFound and
// leaves the password untouched; a failed password write leaves the token
// redeemable.
func (r *UsersRepo) ResetPassword(ctx context.Context, tokenID, userID, passwordHash string) error {
	return r.observe("users.reset_password", func() error {
		return r.withTx(ctx, func(tx pgx.Tx) error {
			tag, err := tx.Exec(ctx, `
				UPDATE password_reset_tokens SET used = TRUE, used_at = NOW()
				WHERE id = $1 AND user_id = $2 AND NOT used AND expires_at > NOW()`, tokenID, userID)
			if err != nil {
				return err
			}
			if tag.RowsAffected() == 0 {
				return token.ErrTokenNotFound
			}

			tag, err = tx.Exec(ctx, `
				UPDATE users SET password_hash = $2, updated_at = NOW() WHERE id = $1`, userID, passwordHash)
			if err != nil {
				return err
			}
			if tag.RowsAffected() == 0 {
				return user.ErrUserNotFound
			}
			return nil
		})
	})
}

// DeletePendingOlderThan removes never-verified signups created before cutoff.
func (r *UsersRepo) DeletePendingOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	var affected int64
	err := r.observe("users.delete_pending", func() error {
		tag, err := r.pool.Exec(ctx, `
			DELETE FROM users
			WHERE status = $1
			  AND NOT email_verified
			  AND role <> $2
			  AND created_at < $3`, user.StatusPending, user.RoleSuperAdmin, cutoff)
		affected = tag.RowsAffected()
		return err
	})
	return affected, err
}
