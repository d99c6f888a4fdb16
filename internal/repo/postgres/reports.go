package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/geocoder89/seodash/internal/domain/report"
	"github.com/geocoder89/seodash/internal/observability"
	"github.com/geocoder89/seodash/internal/utils"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const reportColumns = `id, user_id, url, report_data, performance_score, seo_score,
	accessibility_score, pdf_key, pdf_size, generated_at, created_at`

type ReportsRepo struct {
	base
}

func NewReportsRepo(pool *pgxpool.Pool, prom *observability.Prom) *ReportsRepo {
	return &ReportsRepo{base{pool: pool, prom: prom}}
}

func scanReport(row pgx.Row) (report.Report, error) {
	var rp report.Report
	err := row.Scan(
		&rp.ID,
		&rp.UserID,
		&rp.URL,
		&rp.Data,
		&rp.PerformanceScore,
		&rp.SEOScore,
		&rp.AccessibilityScore,
		&rp.PDFKey,
		&rp.PDFSize,
		&rp.GeneratedAt,
		&rp.CreatedAt,
	)
	return rp, err
}

func (r *ReportsRepo) Create(ctx context.Context, req report.CreateRequest) (report.Report, error) {
	now := time.Now().UTC()
	generatedAt := req.GeneratedAt
	if generatedAt.IsZero() {
		generatedAt = now
	}

	var rp report.Report
	err := r.observe("reports.create", func() error {
		var err error
		rp, err = scanReport(r.pool.QueryRow(ctx, `
			INSERT INTO reports (id, user_id, url, report_data, performance_score, seo_score,
			                     accessibility_score, pdf_key, pdf_size, generated_at, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
			RETURNING `+reportColumns,
			uuid.NewString(), req.UserID, req.URL, req.Data, req.PerformanceScore, req.SEOScore,
			req.AccessibilityScore, req.PDFKey, req.PDFSize, generatedAt, now,
		))
		return err
	})
	if err != nil {
		return report.Report{}, fmt.Errorf("insert report: %w", err)
	}
	return rp, nil
}

// ListByUser pages through a user's reports, newest first. after is the
// cursor of the last row of the previous page.
func (r *ReportsRepo) ListByUser(
	ctx context.Context,
	userID string,
	limit int,
	after *utils.Cursor,
) (items []report.Report, nextCursor *string, err error) {
	args := []any{userID}
	q := `SELECT ` + reportColumns + ` FROM reports WHERE user_id = $1`

	if after != nil {
		q += ` AND (generated_at, id) < ($2, $3)`
		args = append(args, after.At, after.ID)
	}
	args = append(args, limit+1)
	q += fmt.Sprintf(` ORDER BY generated_at DESC, id DESC LIMIT $%d`, len(args))

	var rows pgx.Rows
	err = r.observe("reports.list_by_user", func() error {
		var qerr error
		rows, qerr = r.pool.Query(ctx, q, args...)
		return qerr
	})
	if err != nil {
		return nil, nil, err
	}
	defer rows.Close()

	out := make([]report.Report, 0, limit)
	for rows.Next() {
		rp, scanErr := scanReport(rows)
		if scanErr != nil {
			return nil, nil, scanErr
		}
		out = append(out, rp)
	}
	if rows.Err() != nil {
		return nil, nil, rows.Err()
	}

	if len(out) > limit {
		out = out[:limit]
		last := out[len(out)-1]

		cur, encErr := utils.EncodeCursor(last.GeneratedAt, last.ID)
		if encErr != nil {
			return nil, nil, encErr
		}
		nextCursor = &cur
	}
	return out, nextCursor, nil
}

// GetForUser returns a report only when userID owns it.
func (r *ReportsRepo) GetForUser(ctx context.Context, id, userID string) (report.Report, error) {
	if _, err := uuid.Parse(id); err != nil {
		return report.Report{}, report.ErrReportNotFound
	}

	var rp report.Report
	err := r.observe("reports.get_for_user", func() error {
		var err error
		rp, err = scanReport(r.pool.QueryRow(ctx, `
			SELECT `+reportColumns+` FROM reports WHERE id = $1 AND user_id = $2`, id, userID))
		return err
	})
	if err != nil {
		if isNoRows(err) {
			return report.Report{}, report.ErrReportNotFound
		}
		return report.Report{}, err
	}
	return rp, nil
}

// DeleteForUser removes an owned report and returns the deleted row so the
// caller can drop its blob.
func (r *ReportsRepo) DeleteForUser(ctx context.Context, id, userID string) (report.Report, error) {
	if _, err := uuid.Parse(id); err != nil {
		return report.Report{}, report.ErrReportNotFound
	}

	var rp report.Report
	err := r.observe("reports.delete_for_user", func() error {
		var err error
		rp, err = scanReport(r.pool.QueryRow(ctx, `
			DELETE FROM reports WHERE id = $1 AND user_id = $2
			RETURNING `+reportColumns, id, userID))
		return err
	})
	if err != nil {
		if isNoRows(err) {
			return report.Report{}, report.ErrReportNotFound
		}
		return report.Report{}, err
	}
	return rp, nil
}

// KeysForUser lists the blob keys of every report a user owns. Used before
// an account is deleted, since the cascade only reaches the rows.
func (r *ReportsRepo) KeysForUser(ctx context.Context, userID string) ([]string, error) {
	var rows pgx.Rows
	err := r.observe("reports.keys_for_user", func() error {
		var qerr error
		rows, qerr = r.pool.Query(ctx, `SELECT pdf_key FROM reports WHERE user_id = $1`, userID)
		return qerr
	})
	if err != nil {
		return nil, err
	}

	return pgx.CollectRows(rows, pgx.RowTo[string])
}
