package postgres

import (
	"context"

	"github.com/geocoder89/seodash/internal/observability"
	"github.com/geocoder89/seodash/internal/storage"
	"github.com/jackc/pgx/v5/pgxpool"
)

// BlobsRepo stores PDF bytes in postgres when no object store is configured.
type BlobsRepo struct {
	base
}

func NewBlobsRepo(pool *pgxpool.Pool, prom *observability.Prom) *BlobsRepo {
	return &BlobsRepo{base{pool: pool, prom: prom}}
}

func (r *BlobsRepo) Put(ctx context.Context, key string, data []byte, _ string) error {
	return r.observe("report_blobs.put", func() error {
		_, err := r.pool.Exec(ctx, `
			INSERT INTO report_blobs (key, data, created_at)
			VALUES ($1, $2, NOW())
			ON CONFLICT (key) DO UPDATE SET data = EXCLUDED.data`, key, data)
		return err
	})
}

func (r *BlobsRepo) Get(ctx context.Context, key string) ([]byte, error) {
	var data []byte
	err := r.observe("report_blobs.get", func() error {
		return r.pool.QueryRow(ctx, `SELECT data FROM report_blobs WHERE key = $1`, key).Scan(&data)
	})
	if err != nil {
		if isNoRows(err) {
			return nil, storage.ErrBlobNotFound
		}
		return nil, err
	}
	return data, nil
}

func (r *BlobsRepo) Delete(ctx context.Context, key string) error {
	return r.observe("report_blobs.delete", func() error {
		_, err := r.pool.Exec(ctx, `DELETE FROM report_blobs WHERE key = $1`, key)
		return err
	})
}

var _ storage.BlobStore = (*BlobsRepo)(nil)
